package database

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultSQLiteFile is used when neither a URL nor a driver is configured.
const DefaultSQLiteFile = "flow_market.db"

// Config holds database configuration.
// URL takes precedence over the discrete fields when set.
type Config struct {
	URL             string `mapstructure:"url"`
	Driver          string `mapstructure:"driver"` // postgres, mysql, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`   // postgres only
	FilePath        string `mapstructure:"file_path"` // sqlite only
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
	LogLevel        string `mapstructure:"log_level"`         // silent, error, warn, info
}

// New creates a new GORM database connection based on the config.
func New(cfg *Config) (*gorm.DB, error) {
	driver, dsn, err := ResolveDSN(cfg)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(parseLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	return db, nil
}

// ResolveDSN returns the driver name and DSN for cfg.
//
//	postgres://u:p@h/db           → postgres, sslmode=require appended when absent
//	mysql://u:p@h:3306/db         → mysql, u:p@tcp(h:3306)/db?charset=utf8mb4&parseTime=True&loc=UTC
//	sqlite:///var/data/market.db  → sqlite, /var/data/market.db
//	(empty)                       → sqlite, flow_market.db
func ResolveDSN(cfg *Config) (driver, dsn string, err error) {
	if cfg.URL != "" {
		return resolveURL(cfg.URL)
	}

	switch cfg.Driver {
	case "postgres":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "require"
		}
		return "postgres", fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode,
		), nil
	case "mysql":
		return "mysql", fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		), nil
	case "sqlite", "":
		path := cfg.FilePath
		if path == "" {
			path = DefaultSQLiteFile
		}
		return "sqlite", path, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func resolveURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid database url: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		q := u.Query()
		if q.Get("sslmode") == "" {
			q.Set("sslmode", "require")
			u.RawQuery = q.Encode()
		}
		return "postgres", u.String(), nil

	case "mysql":
		q := u.Query()
		if q.Get("parseTime") == "" {
			q.Set("parseTime", "True")
		}
		if q.Get("charset") == "" {
			q.Set("charset", "utf8mb4")
		}
		if q.Get("loc") == "" {
			q.Set("loc", "UTC")
		}
		host := u.Host
		if u.Port() == "" {
			host += ":3306"
		}
		dsn := fmt.Sprintf("%s@tcp(%s)/%s?%s", u.User.String(), host, strings.TrimPrefix(u.Path, "/"), q.Encode())
		return "mysql", dsn, nil

	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(u.Path, "/")
		if strings.HasPrefix(u.Path, "//") {
			path = u.Path[1:]
		}
		if u.Host != "" {
			path = u.Host + u.Path
		}
		if path == "" {
			path = DefaultSQLiteFile
		}
		return "sqlite", path, nil

	default:
		return "", "", fmt.Errorf("unsupported database url scheme: %q", u.Scheme)
	}
}

func parseLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// AutoMigrate runs GORM auto-migration for the given models.
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	return db.AutoMigrate(models...)
}
