package service

import (
	"context"
	"fmt"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// Page bounds for the user listing.
const (
	DefaultPageSize = 10
	MaxPageSize     = 499
)

// PublicPage is one page of public user views.
type PublicPage struct {
	Users []model.PublicUser
	Total int64
}

// Directory lists users for administrators.
type Directory struct {
	store  model.UserStore
	logger *logger.Logger
}

// NewDirectory creates a Directory.
func NewDirectory(store model.UserStore, logger *logger.Logger) *Directory {
	return &Directory{store: store, logger: logger}
}

// ListUsers returns one page of users, ordered by an allowed sort key.
func (d *Directory) ListUsers(ctx context.Context, params model.ListParams) (PublicPage, error) {
	if params.Page < 1 {
		return PublicPage{}, model.NewInvalidCriteriaError("page must be positive")
	}
	if params.Size < 1 || params.Size > MaxPageSize {
		return PublicPage{}, model.NewInvalidCriteriaError(fmt.Sprintf("size must be between 1 and %d", MaxPageSize))
	}
	if !params.Sort.Valid() {
		return PublicPage{}, model.NewInvalidCriteriaError(fmt.Sprintf("unsupported sort key %q", params.Sort))
	}

	page, err := d.store.List(ctx, params)
	if err != nil {
		d.logger.Error("Directory service: failed to list users",
			"page", params.Page,
			"size", params.Size,
			"sort", params.Sort,
			"error", err.Error())
		return PublicPage{}, fmt.Errorf("failed to list users: %w", err)
	}

	out := PublicPage{
		Users: make([]model.PublicUser, 0, len(page.Users)),
		Total: page.Total,
	}
	for _, u := range page.Users {
		out.Users = append(out.Users, u.Public())
	}

	return out, nil
}
