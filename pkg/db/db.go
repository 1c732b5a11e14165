package db

import (
	"fmt"
	"time"

	"github.com/smallbiznis/collecta/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
	gormprom "gorm.io/plugin/prometheus"
)

// LedgerConn wraps the handle onto the accounting ledger so fx can tell
// it apart from the action store. The ledger is never written to.
type LedgerConn struct {
	*gorm.DB
}

// Available reports whether a ledger connection was configured at all.
func (l LedgerConn) Available() bool {
	return l.DB != nil
}

// Open dials cfg and applies the pool settings.
func Open(cfg Config) (*gorm.DB, error) {
	return open(cfg, &gorm.Config{})
}

func open(cfg Config, gcfg *gorm.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	}
	return conn, nil
}

func actionStoreConfig(cfg config.Config) Config {
	return Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}

func ledgerConfig(cfg config.Config) Config {
	return Config{
		Type:     cfg.LedgerDBType,
		Host:     cfg.LedgerDBHost,
		Port:     cfg.LedgerDBPort,
		Name:     cfg.LedgerDBName,
		User:     cfg.LedgerDBUser,
		Password: cfg.LedgerDBPassword,
		SSLMode:  cfg.LedgerDBSSLMode,
	}
}

func provideActionStore(cfg config.Config) (*gorm.DB, error) {
	conn, err := Open(actionStoreConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := conn.Use(gormprom.New(gormprom.Config{
		DBName:          cfg.DBName,
		RefreshInterval: 15,
	})); err != nil {
		return nil, err
	}
	return conn, nil
}

// provideLedger opens the ledger without pinging it. Ledger outages must
// not keep the app from booting; queries surface the failure per call and
// the reconciliation layer degrades from there.
func provideLedger(cfg config.Config) (LedgerConn, error) {
	lcfg := ledgerConfig(cfg)
	if lcfg.Host == "" && lcfg.Type != "sqlite" {
		return LedgerConn{}, nil
	}
	conn, err := open(lcfg, &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		return LedgerConn{}, err
	}
	return LedgerConn{conn}, nil
}

var Module = fx.Module("db",
	fx.Provide(provideActionStore),
	fx.Provide(provideLedger),
)
