package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dtroode/identity-store/internal/model"
)

// Keys that live in their own columns and are kept out of the stored document.
var columnKeys = []string{
	model.KeyID,
	model.KeyLegacyID,
	model.KeyEmail,
	model.KeyEmailToken,
	model.KeyEmailTokenExpires,
	model.KeyAdmin,
	model.KeyCreatedAt,
	model.KeyUpdatedAt,
}

type rowScanner interface {
	Scan(dest ...any) error
}

func encodeDocument(u model.User) (string, error) {
	doc := u.Document()
	for _, k := range columnKeys {
		delete(doc, k)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user document: %w", err)
	}
	return string(raw), nil
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		id        int64
		email     sql.NullString
		token     sql.NullString
		expires   sql.NullInt64
		admin     bool
		doc       []byte
		createdAt int64
		updatedAt int64
	)

	if err := row.Scan(&id, &email, &token, &expires, &admin, &doc, &createdAt, &updatedAt); err != nil {
		return model.User{}, err
	}

	fields := map[string]any{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &fields); err != nil {
			return model.User{}, fmt.Errorf("failed to unmarshal user document: %w", err)
		}
	}
	for _, k := range columnKeys {
		delete(fields, k)
	}

	u, err := model.UserFromDocument(fields)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to decode user document: %w", err)
	}

	u.ID = model.UserID(id)
	u.Email = email.String
	u.EmailToken = token.String
	if expires.Valid {
		t := fromMillis(expires.Int64)
		u.EmailTokenExpires = &t
	}
	u.Admin = admin
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)

	return u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// tokenColumns returns the email token pair; a token without expiry is stored as absent.
func tokenColumns(u model.User) (sql.NullString, sql.NullInt64) {
	if u.EmailToken == "" || u.EmailTokenExpires == nil {
		return sql.NullString{}, sql.NullInt64{}
	}
	return nullString(u.EmailToken), sql.NullInt64{Int64: toMillis(*u.EmailTokenExpires), Valid: true}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
