package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Document keys with a fixed meaning. Every other key belongs to the profile.
const (
	KeyID                = "id"
	KeyLegacyID          = "_id"
	KeyName              = "name"
	KeyEmail             = "email"
	KeyEmailVerified     = "emailVerified"
	KeyEmailToken        = "emailToken"
	KeyEmailTokenExpires = "emailTokenExpires"
	KeyAdmin             = "admin"
	KeyProviders         = "providers"
	KeyCreatedAt         = "createdAt"
	KeyUpdatedAt         = "updatedAt"
)

var reservedKeys = map[string]struct{}{
	KeyID: {}, KeyLegacyID: {}, KeyName: {}, KeyEmail: {}, KeyEmailVerified: {},
	KeyEmailToken: {}, KeyEmailTokenExpires: {}, KeyAdmin: {}, KeyProviders: {},
	KeyCreatedAt: {}, KeyUpdatedAt: {},
}

// Document flattens the user into a JSON-compatible map. Declared fields win over
// profile keys of the same name; unset optional fields are omitted, except
// emailVerified which is always present.
func (u User) Document() map[string]any {
	doc := make(map[string]any, len(u.Profile)+8)
	for k, v := range u.Profile {
		if _, reserved := reservedKeys[k]; !reserved {
			doc[k] = v
		}
	}

	if u.ID != 0 {
		doc[KeyID] = int64(u.ID)
	}
	if u.Name != "" {
		doc[KeyName] = u.Name
	}
	if u.Email != "" {
		doc[KeyEmail] = u.Email
	}
	doc[KeyEmailVerified] = formatTime(u.EmailVerified)
	if u.EmailToken != "" {
		doc[KeyEmailToken] = u.EmailToken
		doc[KeyEmailTokenExpires] = formatTime(u.EmailTokenExpires)
	}
	doc[KeyAdmin] = u.Admin
	if len(u.Providers) > 0 {
		providers := make(map[string]any, len(u.Providers))
		for name, link := range u.Providers {
			entry := map[string]any{"id": link.ID}
			if link.Token != "" {
				entry["token"] = link.Token
			}
			providers[name] = entry
		}
		doc[KeyProviders] = providers
	}
	if !u.CreatedAt.IsZero() {
		doc[KeyCreatedAt] = formatTime(&u.CreatedAt)
	}
	if !u.UpdatedAt.IsZero() {
		doc[KeyUpdatedAt] = formatTime(&u.UpdatedAt)
	}

	return doc
}

// Document returns the public view as a map with exactly five keys.
func (p PublicUser) Document() map[string]any {
	doc := map[string]any{
		KeyID:            int64(p.ID),
		KeyEmailVerified: formatTime(p.EmailVerified),
		KeyAdmin:         p.Admin,
	}
	if p.Name != "" {
		doc[KeyName] = p.Name
	}
	if p.Email != "" {
		doc[KeyEmail] = p.Email
	}
	return doc
}

// UserFromDocument is the inverse of User.Document. The legacy "_id" key is
// accepted when "id" is absent or zero.
func UserFromDocument(doc map[string]any) (User, error) {
	var (
		u   User
		err error
	)

	for k, v := range doc {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		if u.Profile == nil {
			u.Profile = make(map[string]any)
		}
		u.Profile[k] = v
	}

	if u.ID, err = documentID(doc); err != nil {
		return User{}, err
	}

	if u.Name, err = stringField(doc, KeyName); err != nil {
		return User{}, err
	}
	if u.Email, err = stringField(doc, KeyEmail); err != nil {
		return User{}, err
	}
	if u.EmailToken, err = stringField(doc, KeyEmailToken); err != nil {
		return User{}, err
	}
	if u.EmailVerified, err = timeField(doc, KeyEmailVerified); err != nil {
		return User{}, err
	}
	if u.EmailTokenExpires, err = timeField(doc, KeyEmailTokenExpires); err != nil {
		return User{}, err
	}
	if raw, ok := doc[KeyAdmin]; ok && raw != nil {
		admin, ok := raw.(bool)
		if !ok {
			return User{}, invalidField(KeyAdmin)
		}
		u.Admin = admin
	}
	if u.Providers, err = providersField(doc); err != nil {
		return User{}, err
	}
	if t, err := timeField(doc, KeyCreatedAt); err != nil {
		return User{}, err
	} else if t != nil {
		u.CreatedAt = *t
	}
	if t, err := timeField(doc, KeyUpdatedAt); err != nil {
		return User{}, err
	} else if t != nil {
		u.UpdatedAt = *t
	}

	return u, nil
}

// documentID reads "id", falling back to the legacy "_id" when "id" is missing,
// null, zero or a blank string.
func documentID(doc map[string]any) (UserID, error) {
	for _, key := range []string{KeyID, KeyLegacyID} {
		raw, ok := doc[key]
		if !ok || raw == nil {
			continue
		}
		if s, isString := raw.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		id, err := ParseUserID(raw)
		if err != nil {
			return 0, err
		}
		if id != 0 {
			return id, nil
		}
	}
	return 0, nil
}

// ParseUserID accepts the numeric shapes an id takes after a trip through JSON or protobuf.
func ParseUserID(raw any) (UserID, error) {
	switch v := raw.(type) {
	case UserID:
		return v, nil
	case int64:
		return UserID(v), nil
	case int:
		return UserID(v), nil
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, invalidField(KeyID)
		}
		return UserID(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, invalidField(KeyID)
		}
		return UserID(n), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, invalidField(KeyID)
		}
		return UserID(n), nil
	}
	return 0, invalidField(KeyID)
}

func invalidField(key string) error {
	return &Error{Code: CodeSerialization, Message: fmt.Sprintf("invalid %q field", key)}
}

func stringField(doc map[string]any, key string) (string, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidField(key)
	}
	return s, nil
}

func timeField(doc map[string]any, key string) (*time.Time, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return &v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, invalidField(key)
		}
		return &t, nil
	}
	return nil, invalidField(key)
}

func providersField(doc map[string]any) (map[string]ProviderLink, error) {
	raw, ok := doc[KeyProviders]
	if !ok || raw == nil {
		return nil, nil
	}
	entries, ok := raw.(map[string]any)
	if !ok {
		return nil, invalidField(KeyProviders)
	}

	links := make(map[string]ProviderLink, len(entries))
	for name, entry := range entries {
		fields, ok := entry.(map[string]any)
		if !ok {
			return nil, invalidField(KeyProviders)
		}
		var id string
		switch v := fields["id"].(type) {
		case string:
			id = v
		case float64:
			// numeric account ids, e.g. GitHub
			id = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if id == "" {
			return nil, invalidField(KeyProviders)
		}
		token, err := stringField(fields, "token")
		if err != nil {
			return nil, invalidField(KeyProviders)
		}
		links[name] = ProviderLink{ID: id, Token: token}
	}
	return links, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
