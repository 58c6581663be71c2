package sqlstore

import "github.com/dtroode/identity-store/internal/model"

// Queries is the statement set a backend provides. Placeholders appear in the
// order the repository passes arguments.
type Queries struct {
	// FindByID, FindByEmail: (key).
	FindByID    string
	FindByEmail string
	// FindByEmailToken: (token, nowMillis).
	FindByEmailToken string
	// FindByProvider: (provider, accountID).
	FindByProvider string
	// Insert: (email, emailToken, expiresMillis, doc, createdMillis, updatedMillis) RETURNING id, admin.
	Insert string
	// InsertProvider: (provider, accountID, userID).
	InsertProvider string
	// Update: (email, emailToken, expiresMillis, doc, updatedMillis, id) RETURNING admin, created_at.
	Update string
	// DeleteProviders, Delete: (id).
	DeleteProviders string
	Delete          string
	// Redeem: (verifiedAt RFC3339, updatedMillis, token, nowMillis) RETURNING user columns.
	Redeem string
	Count  string
	// List has one %s verb for the ORDER BY expression, then (limit, offset).
	List string
}

// Dialect adapts the repository to one SQL backend.
type Dialect struct {
	Name    string
	Queries Queries
	// SortColumns maps each allowed sort key to a fixed column expression.
	SortColumns map[model.SortKey]string
	// IsUniqueViolation reports whether err is a unique or primary key violation.
	IsUniqueViolation func(err error) bool
}
