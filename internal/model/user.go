package model

import (
	"context"
	"strings"
	"time"
)

// UserID is the store-assigned identity of a user. It doubles as the session principal id.
type UserID int64

// ProviderLink is an external OAuth account linked to a user.
type ProviderLink struct {
	ID    string `json:"id"`
	Token string `json:"token,omitempty"`
}

// User is the stored identity record.
type User struct {
	ID                UserID
	Name              string
	Email             string
	EmailVerified     *time.Time
	EmailToken        string
	EmailTokenExpires *time.Time
	Admin             bool
	Providers         map[string]ProviderLink
	// Profile holds every other document field, passed through untouched.
	Profile   map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the session-safe projection of a User.
type PublicUser struct {
	ID            UserID
	Name          string
	Email         string
	EmailVerified *time.Time
	Admin         bool
}

// Subject is anything that carries a principal id: a stored record or its public view.
type Subject interface {
	SubjectID() UserID
}

// SubjectID implements Subject.
func (u User) SubjectID() UserID { return u.ID }

// SubjectID implements Subject.
func (p PublicUser) SubjectID() UserID { return p.ID }

// Public projects the user down to the fields a session may expose.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Admin:         u.Admin,
	}
}

// HasEmailToken reports whether the user holds a sign-in token that is still redeemable at now.
func (u User) HasEmailToken(now time.Time) bool {
	return u.EmailToken != "" && u.EmailTokenExpires != nil && u.EmailTokenExpires.After(now)
}

// NormalizeEmail returns the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SortKey names a column the user listing can be ordered by.
type SortKey string

const (
	SortByID        SortKey = "id"
	SortByEmail     SortKey = "email"
	SortByName      SortKey = "name"
	SortByCreatedAt SortKey = "createdAt"
)

// Valid reports whether the key is one of the allowed sort keys.
func (k SortKey) Valid() bool {
	switch k {
	case SortByID, SortByEmail, SortByName, SortByCreatedAt:
		return true
	}
	return false
}

// ListParams selects one page of users.
type ListParams struct {
	Page int
	Size int
	Sort SortKey
}

// Offset returns the number of rows to skip for the page.
func (p ListParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Size
}

// UserPage is one page of the user listing.
type UserPage struct {
	Users []User
	Total int64
}

// UserStore defines persistence operations for users.
type UserStore interface {
	FindByID(ctx context.Context, id UserID) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByEmailToken(ctx context.Context, token string, now time.Time) (User, error)
	FindByProvider(ctx context.Context, provider, accountID string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Replace(ctx context.Context, user User) (User, error)
	Delete(ctx context.Context, id UserID) (bool, error)
	RedeemEmailToken(ctx context.Context, token string, verifiedAt time.Time) (User, error)
	List(ctx context.Context, params ListParams) (UserPage, error)
}
