package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/estock/internal/database"
	"github.com/iliyamo/estock/internal/model"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func TestIdentityRepoCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepo(openDB(t))

	id := &model.Identity{UID: "u1", Email: "  Alice@Example.COM ", DisplayName: "Alice", Claims: map[string]any{"role": "admin"}}
	require.NoError(t, repo.Create(ctx, id))
	assert.Equal(t, "alice@example.com", id.Email)

	got, err := repo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UID)
	assert.Equal(t, "admin", got.Claims["role"])
	assert.Nil(t, got.LastSignInAt)

	err = repo.Create(ctx, &model.Identity{UID: "u2", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrEmailExists)

	got.Disabled = true
	got.DisplayName = "Alice B"
	require.NoError(t, repo.Update(ctx, &got))
	again, err := repo.GetByUID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, again.Disabled)
	assert.Equal(t, "Alice B", again.DisplayName)

	now := time.Now().UTC()
	require.NoError(t, repo.TouchSignIn(ctx, "u1", now))
	again, err = repo.GetByUID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, again.LastSignInAt)
	assert.WithinDuration(t, now, *again.LastSignInAt, time.Millisecond)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, "u1"))
	_, err = repo.GetByUID(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "u1"), ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &model.Identity{UID: "ghost", Email: "g@x"}), ErrNotFound)
}

func TestTokenRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepo(openDB(t))

	require.NoError(t, repo.StoreRefresh(ctx, "u1", "h1", time.Now().Add(time.Hour)))
	require.NoError(t, repo.StoreRefresh(ctx, "u1", "h2", time.Now().Add(time.Hour)))
	require.NoError(t, repo.StoreRefresh(ctx, "u1", "old", time.Now().Add(-time.Hour)))

	uid, err := repo.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = repo.ValidateRefresh(ctx, "old")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = repo.ValidateRefresh(ctx, "nope")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	require.NoError(t, repo.RevokeByHash(ctx, "h1"))
	_, err = repo.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	require.NoError(t, repo.RevokeAllForUser(ctx, "u1"))
	_, err = repo.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResetRepoConsumesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewResetRepo(openDB(t))

	require.NoError(t, repo.Store(ctx, "u1", "r1", time.Now().Add(time.Hour)))
	require.NoError(t, repo.Store(ctx, "u1", "expired", time.Now().Add(-time.Minute)))

	uid, err := repo.Consume(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = repo.Consume(ctx, "r1")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = repo.Consume(ctx, "expired")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
