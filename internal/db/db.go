package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open opens the database named by dsn with the driver ParseDSN picks.
func Open(dsn string) (*sql.DB, Dialect, error) {
	driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, Dialect{}, err
	}
	db, err := sql.Open(driver.Name, source)
	if err != nil {
		return nil, Dialect{}, err
	}
	if driver.Name == SQLite.Name {
		// sqlite serializes writers; one connection also keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, driver, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
