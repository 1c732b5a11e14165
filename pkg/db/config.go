package db

// Config describes a single database handle. Collecta opens two: the
// action store it owns and the accounting ledger it only reads.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
