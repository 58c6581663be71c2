package handler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcctx "github.com/dtroode/identity-store/internal/api/grpc/context"
	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/mocks"
	"github.com/dtroode/identity-store/internal/model"
	"github.com/dtroode/identity-store/internal/repository/sqlite"
	"github.com/dtroode/identity-store/internal/service"
	"github.com/dtroode/identity-store/internal/testutil"
	"github.com/dtroode/identity-store/internal/token"
)

func newTestIdentity(t *testing.T, mailer model.Mailer) *Identity {
	t.Helper()
	return newTestIdentityWithLogger(t, mailer, testutil.MakeNoopLogger())
}

func newTestIdentityWithLogger(t *testing.T, mailer model.Mailer, log *logger.Logger) *Identity {
	t.Helper()

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := sqlite.NewUserRepository(db)
	mutator := service.NewMutator(store, nil, time.Hour, log)

	return NewIdentity(
		service.NewResolver(store, log),
		mutator,
		service.NewSession(store, token.NewJWT("test-secret", time.Hour), log),
		service.NewSignIn(store, mutator, mailer, service.SignInConfig{TokenTTL: time.Hour, SendTimeout: time.Second}, log),
		grpcctx.NewManager(),
		log,
	)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestIdentity_InsertFindRemove(t *testing.T) {
	ctx := context.Background()
	h := newTestIdentity(t, mocks.NewMailer(t))

	resp, err := h.Insert(ctx, mustStruct(t, map[string]any{
		"user": map[string]any{"id": 77, "email": "A@x.com", "name": "Ann", "admin": true, "locale": "en"},
	}))
	require.NoError(t, err)
	user := resp.AsMap()["user"].(map[string]any)
	assert.Equal(t, float64(1), user["id"])
	assert.Equal(t, "a@x.com", user["email"])
	assert.Equal(t, false, user["admin"])
	assert.Equal(t, "en", user["locale"])
	assert.Nil(t, user["emailVerified"])

	resp, err = h.Find(ctx, mustStruct(t, map[string]any{"email": "a@x.com"}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.AsMap()["user"].(map[string]any)["id"])

	resp, err = h.Remove(ctx, mustStruct(t, map[string]any{"id": 1}))
	require.NoError(t, err)
	assert.Equal(t, true, resp.AsMap()["removed"])

	resp, err = h.Find(ctx, mustStruct(t, map[string]any{"id": 1}))
	require.NoError(t, err)
	assert.Nil(t, resp.AsMap()["user"])

	resp, err = h.Remove(ctx, mustStruct(t, map[string]any{"id": 1}))
	require.NoError(t, err)
	assert.Equal(t, false, resp.AsMap()["removed"])
}

func TestIdentity_WritesLogCaller(t *testing.T) {
	log, buf := testutil.MakeBufferLogger()
	h := newTestIdentityWithLogger(t, mocks.NewMailer(t), log)

	cm := grpcctx.NewManager()
	ctx := cm.SetCallerToContext(context.Background(), "web")
	ctx = cm.SetRequestIDToContext(ctx, "req-1")

	_, err := h.Insert(ctx, mustStruct(t, map[string]any{"user": map[string]any{"email": "a@x.com"}}))
	require.NoError(t, err)
	_, err = h.Remove(ctx, mustStruct(t, map[string]any{"id": 1}))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `msg="Identity handler: user inserted"`)
	assert.Contains(t, out, `msg="Identity handler: user removed"`)
	assert.Contains(t, out, "caller=web")
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "user_id=1")
}

func TestIdentity_Insert_Conflict(t *testing.T) {
	ctx := context.Background()
	h := newTestIdentity(t, mocks.NewMailer(t))

	req := mustStruct(t, map[string]any{
		"user": map[string]any{"email": "a@x.com", "providers": map[string]any{"github": map[string]any{"id": 42}}},
	})
	_, err := h.Insert(ctx, req)
	require.NoError(t, err)

	_, err = h.Insert(ctx, req)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	resp, err := h.Find(ctx, mustStruct(t, map[string]any{"provider": map[string]any{"name": "github", "id": 42}}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.AsMap()["user"].(map[string]any)["id"])
}

func TestIdentity_Find_Errors(t *testing.T) {
	h := newTestIdentity(t, mocks.NewMailer(t))

	_, err := h.Find(context.Background(), mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.Find(context.Background(), mustStruct(t, map[string]any{"id": "abc"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestIdentity_Find_BlankKeysFallThrough(t *testing.T) {
	ctx := context.Background()
	h := newTestIdentity(t, mocks.NewMailer(t))

	_, err := h.Insert(ctx, mustStruct(t, map[string]any{
		"user": map[string]any{"email": "a@x.com", "providers": map[string]any{"gh": map[string]any{"id": "1"}}},
	}))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  map[string]any
	}{
		{name: "empty id", req: map[string]any{"id": "", "email": "a@x.com"}},
		{name: "null id", req: map[string]any{"id": nil, "email": "a@x.com"}},
		{name: "blank email", req: map[string]any{"email": "  ", "provider": map[string]any{"name": "gh", "id": "1"}}},
		{name: "blank token", req: map[string]any{"emailToken": "", "provider": map[string]any{"name": "gh", "id": "1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.Find(ctx, mustStruct(t, tt.req))
			require.NoError(t, err)
			user, ok := resp.AsMap()["user"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, float64(1), user["id"])
		})
	}
}

func TestIdentity_Update(t *testing.T) {
	ctx := context.Background()
	h := newTestIdentity(t, mocks.NewMailer(t))

	_, err := h.Update(ctx, mustStruct(t, map[string]any{"user": map[string]any{"id": 5, "email": "a@x.com"}}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.Insert(ctx, mustStruct(t, map[string]any{"user": map[string]any{"email": "a@x.com", "name": "Ann"}}))
	require.NoError(t, err)

	resp, err := h.Update(ctx, mustStruct(t, map[string]any{"user": map[string]any{"id": 1, "email": "b@x.com", "admin": true}}))
	require.NoError(t, err)
	user := resp.AsMap()["user"].(map[string]any)
	assert.Equal(t, "b@x.com", user["email"])
	assert.Nil(t, user["name"])
	assert.Equal(t, false, user["admin"])
}

func TestIdentity_SerializeDeserialize(t *testing.T) {
	ctx := context.Background()
	h := newTestIdentity(t, mocks.NewMailer(t))

	_, err := h.Insert(ctx, mustStruct(t, map[string]any{"user": map[string]any{"email": "a@x.com"}}))
	require.NoError(t, err)

	resp, err := h.Serialize(ctx, mustStruct(t, map[string]any{"user": map[string]any{"_id": "1", "email": "a@x.com"}}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.AsMap()["id"])

	resp, err = h.Serialize(ctx, mustStruct(t, map[string]any{"user": map[string]any{"id": 0, "_id": 1}}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.AsMap()["id"])

	_, err = h.Serialize(ctx, mustStruct(t, map[string]any{"user": map[string]any{"email": "a@x.com"}}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err = h.Deserialize(ctx, mustStruct(t, map[string]any{"id": 1}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":            float64(1),
		"email":         "a@x.com",
		"emailVerified": nil,
		"admin":         false,
	}, resp.AsMap()["user"])

	resp, err = h.Deserialize(ctx, mustStruct(t, map[string]any{"id": 2}))
	require.NoError(t, err)
	assert.Nil(t, resp.AsMap()["user"])
}

func TestIdentity_EmailSignIn(t *testing.T) {
	ctx := context.Background()

	mailer := mocks.NewMailer(t)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(m model.Mail) bool {
		return m.To == "a@x.com" && m.Subject == "Sign in link"
	})).Return(nil)

	h := newTestIdentity(t, mailer)

	resp, err := h.RequestSignIn(ctx, mustStruct(t, map[string]any{"email": "a@x.com"}))
	require.NoError(t, err)
	tok := resp.AsMap()["token"].(string)
	require.NotEmpty(t, tok)

	resp, err = h.SendSignInEmail(ctx, mustStruct(t, map[string]any{
		"email": "a@x.com",
		"url":   "https://app.test/cb?token=" + tok,
		"wait":  true,
	}))
	require.NoError(t, err)
	assert.Equal(t, true, resp.AsMap()["sent"])

	resp, err = h.RedeemSignIn(ctx, mustStruct(t, map[string]any{"token": tok}))
	require.NoError(t, err)
	user := resp.AsMap()["user"].(map[string]any)
	assert.NotNil(t, user["emailVerified"])
	assert.Nil(t, user["emailToken"])

	resp, err = h.RedeemSignIn(ctx, mustStruct(t, map[string]any{"token": tok}))
	require.NoError(t, err)
	assert.Nil(t, resp.AsMap()["user"])
}

func TestIdentity_SendSignInEmail_Failure(t *testing.T) {
	mailer := mocks.NewMailer(t)
	mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	h := newTestIdentity(t, mailer)

	_, err := h.SendSignInEmail(context.Background(), mustStruct(t, map[string]any{
		"email": "a@x.com",
		"url":   "https://app.test/cb",
		"wait":  true,
	}))
	assert.Equal(t, codes.Unavailable, status.Code(err))

	_, err = h.SendSignInEmail(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestIdentity_IssueSessionToken(t *testing.T) {
	ctx := context.Background()
	h := newTestIdentity(t, mocks.NewMailer(t))

	_, err := h.IssueSessionToken(ctx, mustStruct(t, map[string]any{"id": 1}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.Insert(ctx, mustStruct(t, map[string]any{"user": map[string]any{"email": "a@x.com"}}))
	require.NoError(t, err)

	resp, err := h.IssueSessionToken(ctx, mustStruct(t, map[string]any{"id": 1}))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AsMap()["token"])
}
