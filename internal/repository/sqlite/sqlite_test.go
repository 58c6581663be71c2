package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/identity-store/internal/model"
	"github.com/dtroode/identity-store/internal/repository/sqlstore"
)

func openRepo(t *testing.T) *sqlstore.UserRepository {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepository(db)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.EqualError(t, err, "storage path is required")
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.db")

	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestUserRepository_InsertFindRemove(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	saved, err := repo.Create(ctx, model.User{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, model.UserID(1), saved.ID)
	assert.False(t, saved.Admin)

	byEmail, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byEmail.ID)

	byID, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, byID)

	ok, err := repo.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	ok, err = repo.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserRepository_IDsAreNotReused(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	first, err := repo.Create(ctx, model.User{Email: "first@x.com"})
	require.NoError(t, err)
	_, err = repo.Delete(ctx, first.ID)
	require.NoError(t, err)

	second, err := repo.Create(ctx, model.User{Email: "second@x.com"})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)
}

func TestUserRepository_Uniqueness(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	_, err := repo.Create(ctx, model.User{
		Email:     "a@x.com",
		Providers: map[string]model.ProviderLink{"github": {ID: "42"}},
	})
	require.NoError(t, err)

	t.Run("email", func(t *testing.T) {
		_, err := repo.Create(ctx, model.User{Email: "A@X.com"})
		assert.ErrorIs(t, err, model.ErrUniquenessConflict)
	})

	t.Run("provider link leaves no partial row", func(t *testing.T) {
		_, err := repo.Create(ctx, model.User{
			Email:     "b@x.com",
			Providers: map[string]model.ProviderLink{"github": {ID: "42"}},
		})
		assert.ErrorIs(t, err, model.ErrUniquenessConflict)

		_, err = repo.FindByEmail(ctx, "b@x.com")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("users without email", func(t *testing.T) {
		_, err := repo.Create(ctx, model.User{Providers: map[string]model.ProviderLink{"google": {ID: "1"}}})
		require.NoError(t, err)
		_, err = repo.Create(ctx, model.User{Providers: map[string]model.ProviderLink{"google": {ID: "2"}}})
		require.NoError(t, err)
	})
}

func TestUserRepository_ReplaceIsFullDocument(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	saved, err := repo.Create(ctx, model.User{
		Email:     "a@x.com",
		Name:      "Ada",
		Providers: map[string]model.ProviderLink{"github": {ID: "1"}},
		Profile:   map[string]any{"avatar": "a.png", "locale": "en"},
	})
	require.NoError(t, err)

	saved.Name = "Ada L."
	saved.Profile = map[string]any{"locale": "fr"}
	saved.Providers = map[string]model.ProviderLink{"google": {ID: "g"}}
	saved.Admin = true

	replaced, err := repo.Replace(ctx, saved)
	require.NoError(t, err)
	assert.False(t, replaced.Admin, "admin is not writable")

	got, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got.Name)
	assert.Equal(t, map[string]any{"locale": "fr"}, got.Profile)
	assert.False(t, got.Admin)

	_, err = repo.FindByProvider(ctx, "github", "1")
	assert.ErrorIs(t, err, model.ErrNotFound, "dropped link is gone")
	byGoogle, err := repo.FindByProvider(ctx, "google", "g")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byGoogle.ID)
}

func TestUserRepository_ReplaceMissing(t *testing.T) {
	repo := openRepo(t)

	_, err := repo.Replace(context.Background(), model.User{ID: 42, Email: "ghost@x.com"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = repo.FindByEmail(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, model.ErrNotFound, "update never inserts")
}

func TestUserRepository_EmailToken(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	now := time.Now()

	live := now.Add(time.Hour)
	saved, err := repo.Create(ctx, model.User{Email: "a@x.com", EmailToken: "live", EmailTokenExpires: &live})
	require.NoError(t, err)

	stale := now.Add(-time.Minute)
	_, err = repo.Create(ctx, model.User{Email: "b@x.com", EmailToken: "stale", EmailTokenExpires: &stale})
	require.NoError(t, err)

	found, err := repo.FindByEmailToken(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)

	_, err = repo.FindByEmailToken(ctx, "stale", now)
	assert.ErrorIs(t, err, model.ErrNotFound, "expired token never matches")

	_, err = repo.RedeemEmailToken(ctx, "stale", now)
	assert.ErrorIs(t, err, model.ErrNotFound)

	redeemed, err := repo.RedeemEmailToken(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, redeemed.ID)
	assert.Empty(t, redeemed.EmailToken)
	require.NotNil(t, redeemed.EmailVerified)

	_, err = repo.RedeemEmailToken(ctx, "live", now)
	assert.ErrorIs(t, err, model.ErrNotFound, "second redemption fails")
	_, err = repo.FindByEmailToken(ctx, "live", now)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUserRepository_ConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	expires := time.Now().Add(time.Hour)
	_, err := repo.Create(ctx, model.User{Email: "a@x.com", EmailToken: "once", EmailTokenExpires: &expires})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.RedeemEmailToken(ctx, "once", time.Now()); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestUserRepository_ConcurrentReplace(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	saved, err := repo.Create(ctx, model.User{Email: "race@x.com"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Replace(ctx, model.User{
				ID:      saved.ID,
				Email:   "race@x.com",
				Name:    fmt.Sprintf("writer-%d", i),
				Profile: map[string]any{"writer": float64(i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("writer-%v", got.Profile["writer"]), got.Name, "document is one writer's, never a mix")
}

func TestUserRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := repo.Create(ctx, model.User{Email: name + "@x.com", Name: name})
		require.NoError(t, err)
	}

	page, err := repo.List(ctx, model.ListParams{Page: 1, Size: 2, Sort: model.SortByName})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "alice", page.Users[0].Name)
	assert.Equal(t, "bob", page.Users[1].Name)

	page, err = repo.List(ctx, model.ListParams{Page: 2, Size: 2, Sort: model.SortByID})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "bob", page.Users[0].Name)
}
