// Package sqlite runs the user store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dtroode/identity-store/internal/model"
	"github.com/dtroode/identity-store/internal/repository/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const userColumns = `id, email, email_token, email_token_expires_at, admin, doc, created_at, updated_at`

// Dialect is the SQLite statement set.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	Queries: sqlstore.Queries{
		FindByID:         `SELECT ` + userColumns + ` FROM users WHERE id = ?`,
		FindByEmail:      `SELECT ` + userColumns + ` FROM users WHERE email = ?`,
		FindByEmailToken: `SELECT ` + userColumns + ` FROM users WHERE email_token = ? AND email_token_expires_at > ?`,
		FindByProvider: `SELECT u.id, u.email, u.email_token, u.email_token_expires_at, u.admin, u.doc, u.created_at, u.updated_at
			FROM users u JOIN user_providers p ON p.user_id = u.id
			WHERE p.provider = ? AND p.provider_account_id = ?`,
		Insert: `INSERT INTO users (email, email_token, email_token_expires_at, doc, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id, admin`,
		InsertProvider: `INSERT INTO user_providers (provider, provider_account_id, user_id) VALUES (?, ?, ?)`,
		Update: `UPDATE users SET email = ?, email_token = ?, email_token_expires_at = ?, doc = ?, updated_at = ?
			WHERE id = ? RETURNING admin, created_at`,
		DeleteProviders: `DELETE FROM user_providers WHERE user_id = ?`,
		Delete:          `DELETE FROM users WHERE id = ?`,
		Redeem: `UPDATE users SET email_token = NULL, email_token_expires_at = NULL,
			doc = json_set(doc, '$.emailVerified', ?), updated_at = ?
			WHERE email_token = ? AND email_token_expires_at > ?
			RETURNING ` + userColumns,
		Count: `SELECT COUNT(*) FROM users`,
		List:  `SELECT ` + userColumns + ` FROM users ORDER BY %s, id LIMIT ? OFFSET ?`,
	},
	SortColumns: map[model.SortKey]string{
		model.SortByID:        "id",
		model.SortByEmail:     "email",
		model.SortByName:      "json_extract(doc, '$.name')",
		model.SortByCreatedAt: "created_at",
	},
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// DB is an open SQLite database with the schema applied.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database file at path and applies migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// one writer at a time
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	if err := sqlstore.Migrate(ctx, sqlDB, goose.DialectSQLite3, fsys); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// NewUserRepository creates a user repository on an open SQLite database.
func NewUserRepository(db *DB) *sqlstore.UserRepository {
	return sqlstore.NewUserRepository(db.DB, Dialect)
}
