package actionbar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/model"
)

func TestForRole(t *testing.T) {
	assert.Equal(t, Affordances{Export: true}, For(model.RoleViewer))
	assert.Equal(t, Affordances{Add: true, Edit: true, Delete: true, Export: true}, For(model.RoleContributor))
	assert.Equal(t, Affordances{Add: true, Edit: true, Delete: true, Export: true}, For(model.RoleAdmin))
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	id, err := store.Create(ctx, "office", map[string]any{"name": "stapler"})
	require.NoError(t, err)
	bar := &Bar{Store: store, Collection: "office"}

	assert.ErrorIs(t, bar.Delete(ctx, model.RoleContributor, id, Confirmed(false)), ErrConfirmationRequired)
	assert.ErrorIs(t, bar.Delete(ctx, model.RoleContributor, id, nil), ErrConfirmationRequired)
	assert.ErrorIs(t, bar.Delete(ctx, model.RoleViewer, id, Confirmed(true)), ErrForbidden)
	_, err = store.Get(ctx, "office", id)
	require.NoError(t, err, "record survives declined deletes")

	var prompt string
	ask := ConfirmFunc(func(_ context.Context, p string) bool { prompt = p; return true })
	require.NoError(t, bar.Delete(ctx, model.RoleAdmin, id, ask))
	assert.NotEmpty(t, prompt)
	_, err = store.Get(ctx, "office", id)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}
