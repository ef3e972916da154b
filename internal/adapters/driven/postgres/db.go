package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// DB is the connection pool shared by the store registry, the product cache
// and the advisory lock.
type DB struct {
	*sql.DB
}

// PoolConfig sizes the connection pool. Zero values fall back to the
// defaults the worker runs with.
type PoolConfig struct {
	URL             string
	MaxOpenConns    int           // default: 10
	MaxIdleConns    int           // default: 2, capped at MaxOpenConns
	ConnMaxLifetime time.Duration // default: 5m
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	return c
}

// Connect opens the pool and pings the server once.
func Connect(ctx context.Context, cfg PoolConfig) (*DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres: empty database URL")
	}
	cfg = cfg.withDefaults()

	pool, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: pool}, nil
}

// InitSchema creates the registry and cache tables if they are missing.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init cache schema: %w", err)
	}
	return nil
}

// inTx runs fn in one transaction for a store's cache rows. Errors are
// labelled with op and the store ID, and a failed rollback is joined to the
// error that caused it.
func (db *DB) inTx(ctx context.Context, op, storeID string, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s for store %s: begin: %w", op, storeID, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return fmt.Errorf("%s for store %s: %w", op, storeID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s for store %s: commit: %w", op, storeID, err)
	}
	return nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
