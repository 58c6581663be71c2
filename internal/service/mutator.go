package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// ProfileKey is the archive key of a user's raw OAuth profile.
func ProfileKey(id model.UserID) string {
	return fmt.Sprintf("users/%d/oauth-profile.json", id)
}

// Mutator creates, replaces and removes user records.
type Mutator struct {
	store    model.UserStore
	archive  model.ProfileArchive
	tokenTTL time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewMutator creates a Mutator. archive may be nil, which disables profile archiving.
func NewMutator(store model.UserStore, archive model.ProfileArchive, tokenTTL time.Duration, logger *logger.Logger) *Mutator {
	return &Mutator{
		store:    store,
		archive:  archive,
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Insert stores a new user and returns it with its assigned id. Any id on the
// input is ignored and admin always starts false. oauthProfile, when given, is
// archived after the record is committed.
func (m *Mutator) Insert(ctx context.Context, user model.User, oauthProfile map[string]any) (model.User, error) {
	user.ID = 0
	user.Admin = false
	m.defaultTokenExpiry(&user)

	saved, err := m.store.Create(ctx, user)
	if err != nil {
		if errors.Is(err, model.ErrUniquenessConflict) {
			m.logger.Info("Mutator service: insert rejected, email or provider already linked")
		} else {
			m.logger.Error("Mutator service: failed to insert user",
				"error", err.Error())
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	m.logger.Info("Mutator service: user inserted",
		"id", saved.ID)

	if oauthProfile != nil {
		m.archiveProfile(ctx, saved.ID, oauthProfile)
	}

	return saved, nil
}

// Update replaces the whole stored document of an existing user. It never creates a user.
func (m *Mutator) Update(ctx context.Context, user model.User) (model.User, error) {
	if user.ID <= 0 {
		return model.User{}, fmt.Errorf("failed to update user: %w", model.ErrNotFound)
	}
	m.defaultTokenExpiry(&user)

	saved, err := m.store.Replace(ctx, user)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			m.logger.Info("Mutator service: update target missing",
				"id", user.ID)
		} else {
			m.logger.Error("Mutator service: failed to update user",
				"id", user.ID,
				"error", err.Error())
		}
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}

	m.logger.Debug("Mutator service: user updated",
		"id", saved.ID)

	return saved, nil
}

// Remove deletes the user and its provider links. It reports false, without
// error, when the user did not exist.
func (m *Mutator) Remove(ctx context.Context, id model.UserID) (bool, error) {
	deleted, err := m.store.Delete(ctx, id)
	if err != nil {
		m.logger.Error("Mutator service: failed to remove user",
			"id", id,
			"error", err.Error())
		return false, fmt.Errorf("failed to remove user: %w", err)
	}

	if !deleted {
		m.logger.Debug("Mutator service: nothing to remove",
			"id", id)
		return false, nil
	}

	m.logger.Info("Mutator service: user removed",
		"id", id)

	if m.archive != nil {
		if err := m.archive.Delete(ctx, ProfileKey(id)); err != nil {
			m.logger.Warn("Mutator service: failed to delete archived profile",
				"id", id,
				"error", err.Error())
		}
	}

	return true, nil
}

func (m *Mutator) defaultTokenExpiry(user *model.User) {
	if user.EmailToken != "" && user.EmailTokenExpires == nil {
		expires := m.now().Add(m.tokenTTL)
		user.EmailTokenExpires = &expires
	}
	if user.EmailToken == "" {
		user.EmailTokenExpires = nil
	}
}

func (m *Mutator) archiveProfile(ctx context.Context, id model.UserID, profile map[string]any) {
	if m.archive == nil {
		return
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		m.logger.Warn("Mutator service: oauth profile is not serialisable",
			"id", id,
			"error", err.Error())
		return
	}

	if err := m.archive.Upload(ctx, ProfileKey(id), bytes.NewReader(raw)); err != nil {
		m.logger.Warn("Mutator service: failed to archive oauth profile",
			"id", id,
			"error", err.Error())
		return
	}

	m.logger.Debug("Mutator service: oauth profile archived",
		"id", id)
}
