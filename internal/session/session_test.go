package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/identity"
	"github.com/iliyamo/estock/internal/model"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type fakeVerifier map[string]model.Identity

func (f fakeVerifier) VerifyToken(_ context.Context, token string) (model.Identity, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return model.Identity{}, identity.ErrUnauthenticated
}

// failingStore fails every read, simulating an unreachable document store.
type failingStore struct{ docstore.Store }

func (failingStore) Get(context.Context, string, string) (docstore.Document, error) {
	return docstore.Document{}, errors.New("connection refused")
}

var alice = model.Identity{UID: "alice", Email: "alice@example.com", DisplayName: "Alice"}

func TestResolveDefaultsToViewer(t *testing.T) {
	r := NewResolver(fakeVerifier{"tok": alice}, docstore.NewMemStore(), nil)
	s, err := r.Resolve(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, model.RoleViewer, s.Role)
	assert.False(t, s.Disabled)
	assert.Equal(t, "alice@example.com", s.Email)
	assert.False(t, s.CanWrite())
}

func TestResolveReadsProfile(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	require.NoError(t, store.Set(ctx, model.CollectionUsers, "alice", map[string]any{"role": "contributor"}, false))
	r := NewResolver(fakeVerifier{"tok": alice}, store, nil)

	s, err := r.Resolve(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, model.RoleContributor, s.Role)
	assert.True(t, s.CanWrite())
	assert.ErrorIs(t, RequireAdmin(s), ErrForbidden)
}

func TestResolveUnauthenticated(t *testing.T) {
	r := NewResolver(fakeVerifier{}, docstore.NewMemStore(), nil)
	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = r.Resolve(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, RequireAdmin(Session{}), ErrUnauthenticated)
}

func TestResolveDisabled(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	require.NoError(t, store.Set(ctx, model.CollectionUsers, "alice", map[string]any{"role": "admin", "disabled": true}, false))
	r := NewResolver(fakeVerifier{"tok": alice}, store, nil)

	s, err := r.Resolve(ctx, "tok")
	assert.ErrorIs(t, err, ErrAccountDisabled)
	assert.True(t, s.Disabled)
	assert.False(t, s.CanWrite())
}

func TestResolveFailsClosed(t *testing.T) {
	r := NewResolver(fakeVerifier{"tok": alice}, failingStore{docstore.NewMemStore()}, nil)
	s, err := r.Resolve(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrRoleResolution)
	assert.Equal(t, model.RoleViewer, s.Role)
	assert.Equal(t, "alice", s.UID)
}

func TestEnsureProfile(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	p := &Profiles{Store: store}

	pr, created, err := p.EnsureProfile(ctx, alice)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RoleViewer, pr.Role)
	assert.False(t, pr.Disabled)

	_, err = p.Apply(ctx, "alice", Change{Role: rolePtr(model.RoleAdmin)})
	require.NoError(t, err)
	pr, created, err = p.EnsureProfile(ctx, alice)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.RoleAdmin, pr.Role, "existing profile is not reset")

	mirror, err := store.Get(ctx, model.CollectionRoles, "alice")
	require.NoError(t, err)
	assert.Equal(t, "admin", mirror.Data["role"])
}

func TestApplyBatchesRoleAndDisabled(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	p := &Profiles{Store: store}
	_, _, err := p.EnsureProfile(ctx, alice)
	require.NoError(t, err)

	disabled := true
	name := "  Alice A. "
	pr, err := p.Apply(ctx, "alice", Change{Role: rolePtr(model.RoleContributor), Disabled: &disabled, DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, model.RoleContributor, pr.Role)
	assert.True(t, pr.Disabled)
	assert.Equal(t, "Alice A.", pr.DisplayName)

	mirror, err := store.Get(ctx, model.CollectionRoles, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"role": "contributor", "disabled": true}, mirror.Data)
	assert.True(t, Change{}.Empty())
}

func TestSoftDeleteHidesProfile(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	p := &Profiles{Store: store, Now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }}
	bob := model.Identity{UID: "bob", Email: "bob@example.com"}
	_, _, err := p.EnsureProfile(ctx, alice)
	require.NoError(t, err)
	_, err = p.Provision(ctx, bob, "Bob", model.RoleContributor, "alice")
	require.NoError(t, err)

	list, err := p.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, p.SoftDelete(ctx, "bob"))
	list, err = p.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].UID)

	all, err := p.ByUID(ctx)
	require.NoError(t, err)
	require.NotNil(t, all["bob"].DeletedAt)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), *all["bob"].DeletedAt)
	mirror, err := store.Get(ctx, model.CollectionRoles, "bob")
	require.NoError(t, err)
	assert.Equal(t, true, mirror.Data["deleted"])

	assert.ErrorIs(t, p.SoftDelete(ctx, "ghost"), ErrProfileNotFound)

	// Provisioning again restores the profile.
	_, err = p.Provision(ctx, bob, "Bob", model.RoleViewer, "alice")
	require.NoError(t, err)
	list, err = p.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	p := &Profiles{Store: store}
	_, _, err := p.EnsureProfile(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, p.Purge(ctx, "alice"))
	_, err = p.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestHolderReplaceNotifiesLatest(t *testing.T) {
	h := NewHolder(Session{UID: "alice", Role: model.RoleViewer})
	ch, stop := h.Watch()
	defer stop()

	h.Replace(Session{UID: "alice", Role: model.RoleContributor})
	h.Replace(Session{UID: "alice", Role: model.RoleAdmin})

	got := <-ch
	assert.Equal(t, model.RoleAdmin, got.Role)
	assert.Equal(t, model.RoleAdmin, h.Current().Role)
	select {
	case <-ch:
		t.Fatal("stale session delivered")
	default:
	}
}

func TestFollowTracksProfile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := docstore.NewMemStore()
	h := NewHolder(Session{UID: "alice", Role: model.RoleViewer})
	ch, stop := h.Watch()
	defer stop()

	require.NoError(t, Follow(ctx, store, h, zap.NewNop()))
	require.NoError(t, store.Set(ctx, model.CollectionUsers, "alice", map[string]any{"role": "admin", "disabled": true}, false))

	select {
	case s := <-ch:
		assert.Equal(t, model.RoleAdmin, s.Role)
		assert.True(t, s.Disabled)
	case <-time.After(2 * time.Second):
		t.Fatal("holder not replaced")
	}
	cancel()
	time.Sleep(20 * time.Millisecond)
}

func TestFollowIgnoresOtherProfiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := docstore.NewMemStore()
	h := NewHolder(Session{UID: "alice", Role: model.RoleContributor})
	ch, stop := h.Watch()
	defer stop()

	require.NoError(t, store.Set(ctx, model.CollectionUsers, "alice", map[string]any{"role": "contributor"}, false))
	require.NoError(t, Follow(ctx, store, h, zap.NewNop()))
	require.NoError(t, store.Set(ctx, model.CollectionUsers, "bob", map[string]any{"role": "admin", "disabled": true}, false))

	select {
	case s := <-ch:
		t.Fatalf("unexpected replacement: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, model.RoleContributor, h.Current().Role)
	cancel()
	time.Sleep(20 * time.Millisecond)
}

func rolePtr(r model.Role) *model.Role { return &r }
