package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dtroode/identity-store/internal/repository/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connection holds the pgx pool and a database/sql handle sharing it.
type Connection struct {
	*pgxpool.Pool
	DB *sql.DB
}

// NewConnection opens a pool for dsn and applies pending migrations.
func NewConnection(ctx context.Context, dsn string) (*Connection, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	conn := &Connection{
		Pool: pool,
		DB:   stdlib.OpenDBFromPool(pool),
	}

	if err := conn.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return conn, nil
}

// Migrate applies the embedded schema migrations.
func (c *Connection) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	return sqlstore.Migrate(ctx, c.DB, goose.DialectPostgres, fsys)
}

// Close releases the sql handle and the pool.
func (c *Connection) Close() error {
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	return nil
}

// Ping checks the pool can reach the server.
func (c *Connection) Ping(ctx context.Context) error {
	if c.Pool == nil {
		return fmt.Errorf("connection pool is nil")
	}
	return c.Pool.Ping(ctx)
}
