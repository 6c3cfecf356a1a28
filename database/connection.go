// database/connection.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/gewnthar/areasync/config"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// DSN renders the driver connection string for cfg.
// username:password@protocol(address)/dbname?param=value
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s",
		cfg.User,
		cfg.Password,
		net.JoinHostPort(cfg.Host, cfg.Port),
		cfg.DBName,
		cfg.Charset,
	)
}

// OpenDB opens the connection pool and verifies it with a ping.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// One writer walks the tree; a small pool is plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
