// Package conn dials the Postgres instance backing the run archive.
package conn

import (
	"fmt"
	"net/url"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Config locates the archive database. DSN wins when set; otherwise the
// discrete fields are assembled into one.
type Config struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Gorm     *gorm.Config
}

// Client wraps the archive's connection pool.
type Client struct {
	db *gorm.DB
}

// Open connects to Postgres. SQL logging is silenced unless the caller
// supplies its own gorm config; archive writes run inside the simulation
// process and must not interleave with its structured logs.
func Open(cfg Config) (*Client, error) {
	gormCfg := cfg.Gorm
	if gormCfg == nil {
		gormCfg = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}

	db, err := gorm.Open(postgres.Open(cfg.dsn()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	return &Client{db: db}, nil
}

// DB returns the underlying gorm handle.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (cfg Config) dsn() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	if cfg.Database != "" {
		u.Path = "/" + cfg.Database
	}
	u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()
	return u.String()
}
