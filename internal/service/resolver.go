package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// Resolver finds users by any one lookup key.
type Resolver struct {
	store  model.UserStore
	logger *logger.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver over store.
func NewResolver(store model.UserStore, logger *logger.Logger) *Resolver {
	return &Resolver{store: store, logger: logger, now: time.Now}
}

// Find returns the user matching criteria, or nil when nothing matches.
// A miss is not an error; the result looks the same whichever key was used.
func (r *Resolver) Find(ctx context.Context, criteria model.Criteria) (*model.User, error) {
	var (
		user model.User
		err  error
	)

	switch c := criteria.(type) {
	case model.ByID:
		if c.ID <= 0 {
			return nil, model.NewInvalidCriteriaError("id must be positive")
		}
		user, err = r.store.FindByID(ctx, c.ID)
	case model.ByEmail:
		if model.NormalizeEmail(c.Email) == "" {
			return nil, model.NewInvalidCriteriaError("email is empty")
		}
		user, err = r.store.FindByEmail(ctx, c.Email)
	case model.ByEmailToken:
		if c.Token == "" {
			return nil, model.NewInvalidCriteriaError("email token is empty")
		}
		user, err = r.store.FindByEmailToken(ctx, c.Token, r.now())
	case model.ByProvider:
		if c.Name == "" || c.ID == "" {
			return nil, model.NewInvalidCriteriaError("provider name and id are required")
		}
		user, err = r.store.FindByProvider(ctx, c.Name, c.ID)
	default:
		return nil, model.NewInvalidCriteriaError("no lookup key supplied")
	}

	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.logger.Debug("Resolver service: no user matched",
				"by", criteriaKind(criteria))
			return nil, nil
		}
		r.logger.Error("Resolver service: failed to find user",
			"by", criteriaKind(criteria),
			"error", err.Error())
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	r.logger.Debug("Resolver service: user found",
		"by", criteriaKind(criteria),
		"id", user.ID)

	return &user, nil
}

// FindByLookup resolves the key bag to a single criterion and runs Find.
func (r *Resolver) FindByLookup(ctx context.Context, lookup model.Lookup) (*model.User, error) {
	criteria, err := lookup.Criteria()
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, criteria)
}

// criteriaKind names the key used, never its value; tokens and emails stay out of logs.
func criteriaKind(c model.Criteria) string {
	switch c.(type) {
	case model.ByID:
		return "id"
	case model.ByEmail:
		return "email"
	case model.ByEmailToken:
		return "emailToken"
	case model.ByProvider:
		return "provider"
	}
	return "none"
}
