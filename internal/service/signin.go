package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

const (
	signInSubject = "Sign in link"
	tokenBytes    = 32
)

// SignInConfig tunes the passwordless email flow.
type SignInConfig struct {
	TokenTTL    time.Duration
	SendTimeout time.Duration
	// LogLinks writes every sign-in link to the log; meant for development.
	LogLinks bool
}

// SignIn drives the one-time email link flow: request, dispatch, redeem.
type SignIn struct {
	store   model.UserStore
	mutator *Mutator
	mailer  model.Mailer
	cfg     SignInConfig
	logger  *logger.Logger
	now     func() time.Time
}

// NewSignIn creates a SignIn flow.
func NewSignIn(store model.UserStore, mutator *Mutator, mailer model.Mailer, cfg SignInConfig, logger *logger.Logger) *SignIn {
	return &SignIn{
		store:   store,
		mutator: mutator,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// RequestSignIn attaches a fresh token to the user owning email, creating the
// user first when needed. Any previous token is superseded. An empty token is
// replaced by a random one. It returns the user and the token written.
func (s *SignIn) RequestSignIn(ctx context.Context, email, token string) (model.User, string, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return model.User{}, "", model.NewInvalidCriteriaError("email is empty")
	}

	if token == "" {
		var err error
		if token, err = generateToken(); err != nil {
			return model.User{}, "", fmt.Errorf("failed to generate sign-in token: %w", err)
		}
	}

	user, err := s.userForEmail(ctx, email)
	if err != nil {
		return model.User{}, "", err
	}

	expires := s.now().Add(s.cfg.TokenTTL)
	user.EmailToken = token
	user.EmailTokenExpires = &expires

	saved, err := s.mutator.Update(ctx, user)
	if err != nil {
		return model.User{}, "", fmt.Errorf("failed to attach sign-in token: %w", err)
	}

	s.logger.Info("SignIn service: sign-in requested",
		"id", saved.ID,
		"expires", expires.Format(time.RFC3339))

	return saved, token, nil
}

func (s *SignIn) userForEmail(ctx context.Context, email string) (model.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to find user by email: %w", err)
	}

	user, err = s.mutator.Insert(ctx, model.User{Email: email}, nil)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrUniquenessConflict) {
		return model.User{}, err
	}

	// lost a race with a concurrent request for the same address
	user, err = s.store.FindByEmail(ctx, email)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// SendSignInEmail dispatches the sign-in link to email. The send keeps running
// after ctx is cancelled, bounded by the configured timeout; its outcome is
// delivered once on the returned channel, which is then closed. A failed send
// leaves the token valid.
func (s *SignIn) SendSignInEmail(ctx context.Context, email, url string) <-chan error {
	done := make(chan error, 1)
	msg := signInMail(model.NormalizeEmail(email), url)

	if s.cfg.LogLinks {
		s.logger.Info("SignIn service: sign-in link",
			"email", msg.To,
			"url", url)
	}

	sendCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(sendCtx, s.cfg.SendTimeout)
		defer cancel()

		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Error("SignIn service: failed to send sign-in email",
				"error", err.Error())
			done <- fmt.Errorf("failed to send sign-in email: %w", err)
			return
		}

		s.logger.Debug("SignIn service: sign-in email sent")
		done <- nil
	}()

	return done
}

// RedeemSignIn consumes token and marks the owner's email verified. It returns
// nil when the token is unknown, expired or already used.
func (s *SignIn) RedeemSignIn(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}

	user, err := s.store.RedeemEmailToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Info("SignIn service: sign-in token rejected")
			return nil, nil
		}
		s.logger.Error("SignIn service: failed to redeem sign-in token",
			"error", err.Error())
		return nil, fmt.Errorf("failed to redeem sign-in token: %w", err)
	}

	s.logger.Info("SignIn service: sign-in token redeemed",
		"id", user.ID)

	return &user, nil
}

func signInMail(to, url string) model.Mail {
	return model.Mail{
		To:      to,
		Subject: signInSubject,
		Text:    fmt.Sprintf("Use the link below to sign in:\n\n%s\n\n", url),
		HTML:    fmt.Sprintf("<p>Use the link below to sign in:</p><p>%s</p>", html.EscapeString(url)),
	}
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
