package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	PortalURL   string
	MetricsAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	LedgerDBType     string
	LedgerDBHost     string
	LedgerDBPort     string
	LedgerDBName     string
	LedgerDBUser     string
	LedgerDBPassword string
	LedgerDBSSLMode  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPSSL      bool

	SchedulerRunInterval int
	SchedulerBatchSize   int
	ExpireGraceDays      int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "collecta"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),

		PortalURL:   strings.TrimSpace(getenv("PORTAL_URL", "")),
		MetricsAddr: getenv("METRICS_ADDR", ":2112"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "collecta"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		LedgerDBType:     getenv("LEDGER_DATABASE_TYPE", "sqlserver"),
		LedgerDBHost:     getenv("LEDGER_DATABASE_HOST", ""),
		LedgerDBPort:     getenv("LEDGER_DATABASE_PORT", "1433"),
		LedgerDBName:     getenv("LEDGER_DATABASE_NAME", ""),
		LedgerDBUser:     getenv("LEDGER_DATABASE_USER", ""),
		LedgerDBPassword: getenv("LEDGER_DATABASE_PASSWORD", ""),
		LedgerDBSSLMode:  getenv("LEDGER_DATABASE_SSLMODE", "disable"),

		SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
		SMTPPort:     getenvInt("SMTP_PORT", 25),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     strings.TrimSpace(getenv("SMTP_FROM", "")),
		SMTPSSL:      getenvBool("SMTP_SSL", false),

		SchedulerRunInterval: getenvInt("SCHEDULER_RUN_INTERVAL", 3600),
		SchedulerBatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 200),
		ExpireGraceDays:      getenvInt("EXPIRE_GRACE_DAYS", 90),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
