package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dtroode/identity-store/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

// UserRepository stores users in a users table plus a user_providers link table.
type UserRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewUserRepository creates a repository over db speaking the given dialect.
func NewUserRepository(db *sql.DB, dialect Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: dialect, now: time.Now}
}

// Dialect returns the backend name the repository was built for.
func (r *UserRepository) Dialect() string {
	return r.dialect.Name
}

// FindByID returns the user with the given id or model.ErrNotFound.
func (r *UserRepository) FindByID(ctx context.Context, id model.UserID) (model.User, error) {
	return r.findOne(ctx, "find user by id", r.dialect.Queries.FindByID, int64(id))
}

// FindByEmail returns the user owning the email or model.ErrNotFound.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, "find user by email", r.dialect.Queries.FindByEmail, model.NormalizeEmail(email))
}

// FindByEmailToken returns the user holding a token that has not expired at now.
func (r *UserRepository) FindByEmailToken(ctx context.Context, token string, now time.Time) (model.User, error) {
	return r.findOne(ctx, "find user by email token", r.dialect.Queries.FindByEmailToken, token, toMillis(now))
}

// FindByProvider returns the user linked to the provider account.
func (r *UserRepository) FindByProvider(ctx context.Context, provider, accountID string) (model.User, error) {
	return r.findOne(ctx, "find user by provider", r.dialect.Queries.FindByProvider, provider, accountID)
}

func (r *UserRepository) findOne(ctx context.Context, op, query string, args ...any) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, model.NewStoreError(op, err)
	}
	return u, nil
}

// Create inserts the user and its provider links in one transaction. The id is
// assigned by the store; admin starts at the column default.
func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	user.ID = 0
	user.Email = model.NormalizeEmail(user.Email)
	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	doc, err := encodeDocument(user)
	if err != nil {
		return model.User{}, model.NewStoreError("create user", err)
	}
	token, expires := tokenColumns(user)

	err = WithTx(ctx, r.db, nil, func(ctx context.Context, tx DBTX) error {
		var id int64
		row := tx.QueryRowContext(ctx, r.dialect.Queries.Insert,
			nullString(user.Email), token, expires, doc, toMillis(now), toMillis(now))
		if err := row.Scan(&id, &user.Admin); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		user.ID = model.UserID(id)

		return r.insertProviders(ctx, tx, user)
	})
	if err != nil {
		return model.User{}, r.classify("create user", err)
	}

	return r.normalizeTimes(user), nil
}

// Replace overwrites the stored document of an existing user, provider links
// included, in one transaction. The admin column is never written.
func (r *UserRepository) Replace(ctx context.Context, user model.User) (model.User, error) {
	user.Email = model.NormalizeEmail(user.Email)
	now := r.now().UTC()
	user.UpdatedAt = now

	doc, err := encodeDocument(user)
	if err != nil {
		return model.User{}, model.NewStoreError("replace user", err)
	}
	token, expires := tokenColumns(user)

	err = WithTx(ctx, r.db, nil, func(ctx context.Context, tx DBTX) error {
		var createdAt int64
		row := tx.QueryRowContext(ctx, r.dialect.Queries.Update,
			nullString(user.Email), token, expires, doc, toMillis(now), int64(user.ID))
		if err := row.Scan(&user.Admin, &createdAt); err != nil {
			return err
		}
		user.CreatedAt = fromMillis(createdAt)

		if _, err := tx.ExecContext(ctx, r.dialect.Queries.DeleteProviders, int64(user.ID)); err != nil {
			return fmt.Errorf("failed to clear provider links: %w", err)
		}
		return r.insertProviders(ctx, tx, user)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, r.classify("replace user", err)
	}

	return r.normalizeTimes(user), nil
}

// Delete removes the user and its provider links. It reports whether a row existed.
func (r *UserRepository) Delete(ctx context.Context, id model.UserID) (bool, error) {
	var deleted bool
	err := WithTx(ctx, r.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, r.dialect.Queries.DeleteProviders, int64(id)); err != nil {
			return fmt.Errorf("failed to delete provider links: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.dialect.Queries.Delete, int64(id))
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, model.NewStoreError("delete user", err)
	}
	return deleted, nil
}

// RedeemEmailToken clears an unexpired token and stamps emailVerified in a single
// conditional write, so a token is redeemed at most once.
func (r *UserRepository) RedeemEmailToken(ctx context.Context, token string, verifiedAt time.Time) (model.User, error) {
	now := r.now().UTC()
	row := r.db.QueryRowContext(ctx, r.dialect.Queries.Redeem,
		verifiedAt.UTC().Format(time.RFC3339Nano), toMillis(now), token, toMillis(now))

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, model.NewStoreError("redeem email token", err)
	}
	return u, nil
}

// List returns one page of users ordered by an allowlisted column, plus the total count.
func (r *UserRepository) List(ctx context.Context, params model.ListParams) (model.UserPage, error) {
	column, ok := r.dialect.SortColumns[params.Sort]
	if !ok {
		return model.UserPage{}, model.NewInvalidCriteriaError(fmt.Sprintf("unsupported sort key %q", params.Sort))
	}

	var page model.UserPage
	if err := r.db.QueryRowContext(ctx, r.dialect.Queries.Count).Scan(&page.Total); err != nil {
		return model.UserPage{}, model.NewStoreError("count users", err)
	}

	// column comes from the dialect allowlist, never from the request.
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(r.dialect.Queries.List, column), params.Size, params.Offset())
	if err != nil {
		return model.UserPage{}, model.NewStoreError("list users", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return model.UserPage{}, model.NewStoreError("list users", err)
		}
		page.Users = append(page.Users, u)
	}
	if err := rows.Err(); err != nil {
		return model.UserPage{}, model.NewStoreError("list users", err)
	}

	return page, nil
}

func (r *UserRepository) insertProviders(ctx context.Context, tx DBTX, user model.User) error {
	names := make([]string, 0, len(user.Providers))
	for name := range user.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, r.dialect.Queries.InsertProvider,
			name, user.Providers[name].ID, int64(user.ID)); err != nil {
			return fmt.Errorf("failed to link provider %s: %w", name, err)
		}
	}
	return nil
}

func (r *UserRepository) classify(op string, err error) error {
	if r.dialect.IsUniqueViolation != nil && r.dialect.IsUniqueViolation(err) {
		return model.NewUniquenessConflictError(err)
	}
	return model.NewStoreError(op, err)
}

// normalizeTimes truncates timestamps to the stored precision so returned
// records equal what a later read yields.
func (r *UserRepository) normalizeTimes(u model.User) model.User {
	u.CreatedAt = fromMillis(toMillis(u.CreatedAt))
	u.UpdatedAt = fromMillis(toMillis(u.UpdatedAt))
	if u.EmailToken == "" || u.EmailTokenExpires == nil {
		u.EmailToken = ""
		u.EmailTokenExpires = nil
	} else {
		t := fromMillis(toMillis(*u.EmailTokenExpires))
		u.EmailTokenExpires = &t
	}
	return u
}
