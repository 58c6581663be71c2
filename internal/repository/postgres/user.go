package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/identity-store/internal/model"
	"github.com/dtroode/identity-store/internal/repository/sqlstore"
)

const uniqueViolation = "23505"

const userColumns = `id, email, email_token, email_token_expires_at, admin, doc::text, created_at, updated_at`

// Dialect is the Postgres statement set.
var Dialect = sqlstore.Dialect{
	Name: "postgres",
	Queries: sqlstore.Queries{
		FindByID:         `SELECT ` + userColumns + ` FROM users WHERE id = $1`,
		FindByEmail:      `SELECT ` + userColumns + ` FROM users WHERE email = $1`,
		FindByEmailToken: `SELECT ` + userColumns + ` FROM users WHERE email_token = $1 AND email_token_expires_at > $2`,
		FindByProvider: `SELECT u.id, u.email, u.email_token, u.email_token_expires_at, u.admin, u.doc::text, u.created_at, u.updated_at
			FROM users u JOIN user_providers p ON p.user_id = u.id
			WHERE p.provider = $1 AND p.provider_account_id = $2`,
		Insert: `INSERT INTO users (email, email_token, email_token_expires_at, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, admin`,
		InsertProvider: `INSERT INTO user_providers (provider, provider_account_id, user_id) VALUES ($1, $2, $3)`,
		Update: `UPDATE users SET email = $1, email_token = $2, email_token_expires_at = $3, doc = $4, updated_at = $5
			WHERE id = $6 RETURNING admin, created_at`,
		DeleteProviders: `DELETE FROM user_providers WHERE user_id = $1`,
		Delete:          `DELETE FROM users WHERE id = $1`,
		Redeem: `UPDATE users SET email_token = NULL, email_token_expires_at = NULL,
			doc = jsonb_set(doc, '{emailVerified}', to_jsonb($1::text)), updated_at = $2
			WHERE email_token = $3 AND email_token_expires_at > $4
			RETURNING ` + userColumns,
		Count: `SELECT COUNT(*) FROM users`,
		List:  `SELECT ` + userColumns + ` FROM users ORDER BY %s, id LIMIT $1 OFFSET $2`,
	},
	SortColumns: map[model.SortKey]string{
		model.SortByID:        "id",
		model.SortByEmail:     "email",
		model.SortByName:      "doc->>'name'",
		model.SortByCreatedAt: "created_at",
	},
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// NewUserRepository creates a user repository on a Postgres database/sql handle.
func NewUserRepository(db *sql.DB) *sqlstore.UserRepository {
	return sqlstore.NewUserRepository(db, Dialect)
}
