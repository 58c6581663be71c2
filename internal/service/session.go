package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// ErrInvalidSession is returned when a session token does not resolve to a live user.
var ErrInvalidSession = errors.New("invalid session")

// Session translates between stored users and session principals.
type Session struct {
	store  model.UserStore
	tokens model.TokenManager
	logger *logger.Logger
}

// NewSession creates a Session.
func NewSession(store model.UserStore, tokens model.TokenManager, logger *logger.Logger) *Session {
	return &Session{store: store, tokens: tokens, logger: logger}
}

// Serialize returns the principal id of a stored user or its public view.
func (s *Session) Serialize(subject model.Subject) (model.UserID, error) {
	if subject == nil || subject.SubjectID() <= 0 {
		s.logger.Warn("Session service: unable to serialise user without id")
		return 0, model.ErrSerialization
	}
	return subject.SubjectID(), nil
}

// Deserialize loads the user behind a principal id and projects its public view.
// It returns nil when the user no longer exists.
func (s *Session) Deserialize(ctx context.Context, id model.UserID) (*model.PublicUser, error) {
	if id <= 0 {
		return nil, nil
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Debug("Session service: principal no longer exists",
				"id", id)
			return nil, nil
		}
		s.logger.Error("Session service: failed to deserialise user",
			"id", id,
			"error", err.Error())
		return nil, fmt.Errorf("failed to deserialise user: %w", err)
	}

	public := user.Public()
	return &public, nil
}

// IssueToken signs a session token for an existing principal.
func (s *Session) IssueToken(ctx context.Context, id model.UserID) (string, error) {
	public, err := s.Deserialize(ctx, id)
	if err != nil {
		return "", err
	}
	if public == nil {
		return "", fmt.Errorf("failed to issue session token: %w", model.ErrNotFound)
	}

	token, err := s.tokens.GenerateSessionToken(public.ID)
	if err != nil {
		s.logger.Error("Session service: failed to sign session token",
			"id", id,
			"error", err.Error())
		return "", fmt.Errorf("failed to issue session token: %w", err)
	}

	s.logger.Info("Session service: session token issued",
		"id", id)

	return token, nil
}

// Authenticate resolves a session token to the public view of its user.
func (s *Session) Authenticate(ctx context.Context, token string) (*model.PublicUser, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	id, err := s.tokens.ParseSessionToken(token)
	if err != nil {
		s.logger.Debug("Session service: rejected session token",
			"error", err.Error())
		return nil, ErrInvalidSession
	}

	public, err := s.Deserialize(ctx, id)
	if err != nil {
		return nil, err
	}
	if public == nil {
		return nil, ErrInvalidSession
	}

	return public, nil
}
