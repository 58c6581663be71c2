package handler

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// Request and response field names.
const (
	fieldUser         = "user"
	fieldOAuthProfile = "oauthProfile"
	fieldProvider     = "provider"
	fieldProviderName = "name"
	fieldProviderID   = "id"
	fieldRemoved      = "removed"
	fieldToken        = "token"
	fieldURL          = "url"
	fieldWait         = "wait"
	fieldSent         = "sent"
)

// ResolverService finds users.
type ResolverService interface {
	FindByLookup(ctx context.Context, lookup model.Lookup) (*model.User, error)
}

// MutatorService writes users.
type MutatorService interface {
	Insert(ctx context.Context, user model.User, oauthProfile map[string]any) (model.User, error)
	Update(ctx context.Context, user model.User) (model.User, error)
	Remove(ctx context.Context, id model.UserID) (bool, error)
}

// SessionService converts between users and session principals.
type SessionService interface {
	Serialize(subject model.Subject) (model.UserID, error)
	Deserialize(ctx context.Context, id model.UserID) (*model.PublicUser, error)
	IssueToken(ctx context.Context, id model.UserID) (string, error)
}

// SignInService runs the passwordless email flow.
type SignInService interface {
	RequestSignIn(ctx context.Context, email, token string) (model.User, string, error)
	SendSignInEmail(ctx context.Context, email, url string) <-chan error
	RedeemSignIn(ctx context.Context, token string) (*model.User, error)
}

// Identity handles the adapter gRPC endpoints.
type Identity struct {
	resolver       ResolverService
	mutator        MutatorService
	session        SessionService
	signIn         SignInService
	contextManager model.ContextManager
	logger         *logger.Logger
}

var _ IdentityAdapterServer = (*Identity)(nil)

// NewIdentity creates a new Identity handler.
func NewIdentity(
	resolver ResolverService,
	mutator MutatorService,
	session SessionService,
	signIn SignInService,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Identity {
	return &Identity{
		resolver:       resolver,
		mutator:        mutator,
		session:        session,
		signIn:         signIn,
		contextManager: contextManager,
		logger:         logger,
	}
}

// Find resolves a lookup bag {id, email, emailToken, provider{name,id}} to {user: document|null}.
func (h *Identity) Find(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	lookup, err := lookupFromRequest(req.AsMap())
	if err != nil {
		return nil, h.fail(err)
	}

	user, err := h.resolver.FindByLookup(ctx, lookup)
	if err != nil {
		return nil, h.fail(err)
	}

	if user == nil {
		return userResponse(nil)
	}
	return userResponse(user.Document())
}

// Insert stores {user} and returns it with its assigned id. An optional
// oauthProfile object is archived alongside.
func (h *Identity) Insert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()

	user, err := userFromRequest(fields)
	if err != nil {
		return nil, h.fail(err)
	}

	var profile map[string]any
	if raw, ok := fields[fieldOAuthProfile]; ok && raw != nil {
		if profile, ok = raw.(map[string]any); !ok {
			return nil, status.Error(codes.InvalidArgument, "oauthProfile must be an object")
		}
	}

	saved, err := h.mutator.Insert(ctx, user, profile)
	if err != nil {
		return nil, h.fail(err)
	}
	h.audit(ctx, "user inserted", saved.ID)

	return userResponse(saved.Document())
}

// Update replaces the document of an existing user.
func (h *Identity) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := userFromRequest(req.AsMap())
	if err != nil {
		return nil, h.fail(err)
	}

	saved, err := h.mutator.Update(ctx, user)
	if err != nil {
		return nil, h.fail(err)
	}
	h.audit(ctx, "user updated", saved.ID)

	return userResponse(saved.Document())
}

// Remove deletes {id} and reports {removed}.
func (h *Identity) Remove(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idFromRequest(req.AsMap())
	if err != nil {
		return nil, h.fail(err)
	}

	removed, err := h.mutator.Remove(ctx, id)
	if err != nil {
		return nil, h.fail(err)
	}
	if removed {
		h.audit(ctx, "user removed", id)
	}

	return structpb.NewStruct(map[string]any{fieldRemoved: removed})
}

// Serialize maps {user} (stored record or public view) to {id}.
func (h *Identity) Serialize(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := userFromRequest(req.AsMap())
	if err != nil {
		return nil, h.fail(model.ErrSerialization)
	}

	id, err := h.session.Serialize(user)
	if err != nil {
		return nil, h.fail(err)
	}

	return structpb.NewStruct(map[string]any{model.KeyID: int64(id)})
}

// Deserialize maps {id} to {user: publicUser|null}.
func (h *Identity) Deserialize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idFromRequest(req.AsMap())
	if err != nil {
		return nil, h.fail(err)
	}

	public, err := h.session.Deserialize(ctx, id)
	if err != nil {
		return nil, h.fail(err)
	}

	if public == nil {
		return userResponse(nil)
	}
	return userResponse(public.Document())
}

// RequestSignIn attaches a fresh sign-in token to {email}, creating the user if
// needed, and returns {user, token}.
func (h *Identity) RequestSignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()

	email, _ := fields[model.KeyEmail].(string)
	token, _ := fields[fieldToken].(string)

	user, token, err := h.signIn.RequestSignIn(ctx, email, token)
	if err != nil {
		return nil, h.fail(err)
	}

	return structpb.NewStruct(map[string]any{
		fieldUser:  user.Document(),
		fieldToken: token,
	})
}

// SendSignInEmail dispatches {email, url}. With {wait: true} the call returns
// once the mail transport answered; otherwise it returns right away.
func (h *Identity) SendSignInEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()

	email, _ := fields[model.KeyEmail].(string)
	url, _ := fields[fieldURL].(string)
	wait, _ := fields[fieldWait].(bool)

	if model.NormalizeEmail(email) == "" || url == "" {
		return nil, status.Error(codes.InvalidArgument, "email and url are required")
	}

	done := h.signIn.SendSignInEmail(ctx, email, url)
	if !wait {
		return structpb.NewStruct(map[string]any{fieldSent: false})
	}

	select {
	case err := <-done:
		if err != nil {
			return nil, status.Error(codes.Unavailable, "failed to send sign-in email")
		}
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	return structpb.NewStruct(map[string]any{fieldSent: true})
}

// RedeemSignIn consumes {token} and returns {user: document|null}.
func (h *Identity) RedeemSignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token, _ := req.AsMap()[fieldToken].(string)

	user, err := h.signIn.RedeemSignIn(ctx, token)
	if err != nil {
		return nil, h.fail(err)
	}

	if user == nil {
		return userResponse(nil)
	}
	return userResponse(user.Document())
}

// IssueSessionToken signs a session token for {id}.
func (h *Identity) IssueSessionToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idFromRequest(req.AsMap())
	if err != nil {
		return nil, h.fail(err)
	}

	token, err := h.session.IssueToken(ctx, id)
	if err != nil {
		return nil, h.fail(err)
	}

	return structpb.NewStruct(map[string]any{fieldToken: token})
}

func (h *Identity) fail(err error) error {
	st := handleError(err)
	h.logger.Debug("Identity handler: request failed",
		"code", status.Code(st).String(),
		"error", err.Error())
	return st
}

// audit records a write together with the service that asked for it.
func (h *Identity) audit(ctx context.Context, event string, id model.UserID) {
	caller, ok := h.contextManager.GetCallerFromContext(ctx)
	if !ok {
		caller = "unknown"
	}
	requestID, _ := h.contextManager.GetRequestIDFromContext(ctx)

	h.logger.Info("Identity handler: "+event,
		"user_id", int64(id),
		"caller", caller,
		"request_id", requestID)
}

func userResponse(doc map[string]any) (*structpb.Struct, error) {
	var user any
	if doc != nil {
		user = doc
	}

	resp, err := structpb.NewStruct(map[string]any{fieldUser: user})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode user")
	}
	return resp, nil
}

func userFromRequest(fields map[string]any) (model.User, error) {
	doc, ok := fields[fieldUser].(map[string]any)
	if !ok {
		return model.User{}, model.NewInvalidCriteriaError("user must be an object")
	}
	return model.UserFromDocument(doc)
}

func idFromRequest(fields map[string]any) (model.UserID, error) {
	raw, ok := fields[model.KeyID]
	if !ok || raw == nil {
		return 0, model.NewInvalidCriteriaError("id is required")
	}
	id, err := model.ParseUserID(raw)
	if err != nil {
		return 0, model.NewInvalidCriteriaError("id must be an integer")
	}
	return id, nil
}

func lookupFromRequest(fields map[string]any) (model.Lookup, error) {
	var lookup model.Lookup

	if raw, ok := fields[model.KeyID]; ok && !isBlank(raw) {
		id, err := model.ParseUserID(raw)
		if err != nil {
			return model.Lookup{}, model.NewInvalidCriteriaError("id must be an integer")
		}
		lookup.ID = id
	}
	lookup.Email, _ = fields[model.KeyEmail].(string)
	lookup.EmailToken, _ = fields[model.KeyEmailToken].(string)

	if provider, ok := fields[fieldProvider].(map[string]any); ok {
		name, _ := provider[fieldProviderName].(string)
		accountID, err := providerAccountID(provider[fieldProviderID])
		if err != nil {
			return model.Lookup{}, err
		}
		lookup.Provider = &model.ProviderKey{Name: name, ID: accountID}
	}

	return lookup, nil
}

// isBlank reports a null or whitespace-only string value, which a lookup treats as absent.
func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

// providerAccountID accepts string ids and the numeric ids some providers issue.
func providerAccountID(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		id, err := model.ParseUserID(v)
		if err != nil {
			return "", model.NewInvalidCriteriaError("provider id must be a string or an integer")
		}
		return strconv.FormatInt(int64(id), 10), nil
	}
	return "", model.NewInvalidCriteriaError("provider id must be a string or an integer")
}
