package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/identity-store/internal/mail"
	"github.com/dtroode/identity-store/internal/model"
	"github.com/dtroode/identity-store/internal/repository/sqlite"
	"github.com/dtroode/identity-store/internal/testutil"
	"github.com/dtroode/identity-store/internal/token"
)

type flowFixture struct {
	store    model.UserStore
	resolver *Resolver
	mutator  *Mutator
	session  *Session
	signIn   *SignIn
}

func newFlowFixture(t *testing.T) flowFixture {
	t.Helper()

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := testutil.MakeNoopLogger()
	store := sqlite.NewUserRepository(db)
	mutator := NewMutator(store, nil, time.Hour, log)

	return flowFixture{
		store:    store,
		resolver: NewResolver(store, log),
		mutator:  mutator,
		session:  NewSession(store, token.NewJWT("test-secret", time.Hour), log),
		signIn: NewSignIn(store, mutator, mail.NewLogSender(log),
			SignInConfig{TokenTTL: time.Hour, SendTimeout: time.Second}, log),
	}
}

func TestFlow_InsertThenDeserialize(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)

	saved, err := f.mutator.Insert(ctx, model.User{Email: "a@x.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.UserID(1), saved.ID)
	assert.False(t, saved.Admin)

	public, err := f.session.Deserialize(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, &model.PublicUser{ID: 1, Email: "a@x.com"}, public)

	id, err := f.session.Serialize(saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, id)
}

func TestFlow_EmailSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)

	user, tok, err := f.signIn.RequestSignIn(ctx, "a@x.com", "")
	require.NoError(t, err)
	require.NoError(t, <-f.signIn.SendSignInEmail(ctx, user.Email, "https://app.test/cb?token="+tok))

	found, err := f.resolver.Find(ctx, model.ByEmailToken{Token: tok})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	redeemed, err := f.signIn.RedeemSignIn(ctx, tok)
	require.NoError(t, err)
	require.NotNil(t, redeemed)
	assert.NotNil(t, redeemed.EmailVerified)
	assert.Empty(t, redeemed.EmailToken)

	again, err := f.signIn.RedeemSignIn(ctx, tok)
	require.NoError(t, err)
	assert.Nil(t, again)

	found, err = f.resolver.Find(ctx, model.ByEmailToken{Token: tok})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFlow_NewTokenSupersedesOld(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)

	_, first, err := f.signIn.RequestSignIn(ctx, "a@x.com", "first")
	require.NoError(t, err)
	_, second, err := f.signIn.RequestSignIn(ctx, "a@x.com", "second")
	require.NoError(t, err)

	stale, err := f.signIn.RedeemSignIn(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, stale)

	fresh, err := f.signIn.RedeemSignIn(ctx, second)
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestFlow_ConcurrentRequestsShareOneUser(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)

	const n = 8
	ids := make([]model.UserID, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, _, err := f.signIn.RequestSignIn(ctx, "race@x.com", "")
			ids[i], errs[i] = user.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	page, err := f.store.List(ctx, model.ListParams{Page: 1, Size: 10, Sort: model.SortByID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestFlow_SessionToken(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)

	saved, err := f.mutator.Insert(ctx, model.User{Email: "a@x.com"}, nil)
	require.NoError(t, err)

	tok, err := f.session.IssueToken(ctx, saved.ID)
	require.NoError(t, err)

	public, err := f.session.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, public.ID)

	ok, err := f.mutator.Remove(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.session.Authenticate(ctx, tok)
	require.ErrorIs(t, err, ErrInvalidSession)
}
