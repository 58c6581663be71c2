package model

import "strings"

// Criteria selects a single user. Exactly one of ByID, ByEmail, ByEmailToken or
// ByProvider; the set is closed.
type Criteria interface {
	criteria()
}

// ByID looks a user up by principal id.
type ByID struct{ ID UserID }

// ByEmail looks a user up by email address.
type ByEmail struct{ Email string }

// ByEmailToken looks a user up by an unexpired sign-in token.
type ByEmailToken struct{ Token string }

// ByProvider looks a user up by a linked OAuth account.
type ByProvider struct {
	Name string
	ID   string
}

func (ByID) criteria()         {}
func (ByEmail) criteria()      {}
func (ByEmailToken) criteria() {}
func (ByProvider) criteria()   {}

// ProviderKey identifies an account at an OAuth provider.
type ProviderKey struct {
	Name string
	ID   string
}

// Lookup is the loose key bag callers send. Any subset of fields may be set.
type Lookup struct {
	ID         UserID
	Email      string
	EmailToken string
	Provider   *ProviderKey
}

// Criteria picks the first non-empty key from the bag, in order id, email,
// emailToken, provider. Blank strings count as empty. Extra keys are ignored.
func (l Lookup) Criteria() (Criteria, error) {
	token := strings.TrimSpace(l.EmailToken)

	switch {
	case l.ID != 0:
		return ByID{ID: l.ID}, nil
	case NormalizeEmail(l.Email) != "":
		return ByEmail{Email: l.Email}, nil
	case token != "":
		return ByEmailToken{Token: token}, nil
	case l.Provider != nil && strings.TrimSpace(l.Provider.Name) != "" && strings.TrimSpace(l.Provider.ID) != "":
		return ByProvider{Name: l.Provider.Name, ID: l.Provider.ID}, nil
	}
	return nil, NewInvalidCriteriaError("no lookup key supplied")
}
