package editor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/estock/internal/database"
	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/session"
)

var ppe = model.Collection{
	Name:  "ppe",
	Title: "PPE",
	Fields: model.Schema{
		{Key: "materialNumber", Label: "Material Number", Kind: model.KindText, Required: true},
		{Key: "description", Label: "Description", Kind: model.KindText},
		{Key: "qtyIn", Label: "Qty In", Kind: model.KindNumber},
	},
}

var (
	contributor = session.Session{UID: "u-1", Role: model.RoleContributor}
	viewer      = session.Session{UID: "u-2", Role: model.RoleViewer}
)

type failingStore struct {
	docstore.Store
}

func (failingStore) Create(context.Context, string, map[string]any) (string, error) {
	return "", errors.New("permission denied")
}

func TestCreateWritesCoercedData(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	e := New(ppe, store, nil)

	e.OpenCreate()
	require.NoError(t, e.Set("materialNumber", "  P-100 "))
	require.NoError(t, e.Set("qtyIn", "abc"))
	require.ErrorIs(t, e.Set("bogus", "x"), ErrUnknownKey)

	id, err := e.Save(ctx, contributor)
	require.NoError(t, err)
	assert.Equal(t, Closed, e.Mode())

	doc, err := store.Get(ctx, "ppe", id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"materialNumber":   "P-100",
		"description":      "",
		"qtyIn":            0.0,
		model.KeyCreatedBy: "u-1",
	}, doc.Data)
}

func TestNonFiniteNumbersSaveAsZero(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "editor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	store := docstore.NewSQLStore(db, nil, nil)

	for _, raw := range []string{"NaN", "Inf", "-infinity", "1e999"} {
		e := New(ppe, store, nil)
		e.OpenCreate()
		require.NoError(t, e.Set("materialNumber", "P-"+raw))
		require.NoError(t, e.Set("qtyIn", raw))

		id, err := e.Save(ctx, contributor)
		require.NoError(t, err, raw)
		doc, err := store.Get(ctx, "ppe", id)
		require.NoError(t, err)
		assert.Equal(t, 0.0, doc.Data["qtyIn"], raw)
	}
}

func TestRequiredFieldBlocksWrite(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	e := New(ppe, store, nil)

	e.OpenCreate()
	require.NoError(t, e.Set("materialNumber", "   "))
	_, err := e.Save(ctx, contributor)
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"materialNumber"}, verr.Fields)
	assert.Equal(t, CreateOpen, e.Mode())
	assert.True(t, e.Form().Fields[0].Invalid)

	docs, err := store.List(ctx, "ppe", docstore.Order{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestEditUpdatesSchemaFieldsOnly(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	id, err := store.Create(ctx, "ppe", map[string]any{"materialNumber": "P-1", "qtyIn": 4.0, model.KeyCreatedBy: "u-9"})
	require.NoError(t, err)
	doc, err := store.Get(ctx, "ppe", id)
	require.NoError(t, err)

	e := New(ppe, store, nil)
	e.OpenEdit(id, doc.Data)
	form := e.Form()
	assert.Equal(t, "Edit Data", form.Title)
	assert.Equal(t, "P-1", form.Fields[0].Value)
	assert.Equal(t, "", form.Fields[1].Value)
	assert.Equal(t, "4", form.Fields[2].Value)

	require.NoError(t, e.SetAll(map[string]any{"qtyIn": 7.5, "createdBy": "mallory"}))
	got, err := e.Save(ctx, contributor)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	doc, err = store.Get(ctx, "ppe", id)
	require.NoError(t, err)
	assert.Equal(t, 7.5, doc.Data["qtyIn"])
	assert.Equal(t, "u-9", doc.Data[model.KeyCreatedBy])
}

func TestEditMissingRecordStaysOpen(t *testing.T) {
	e := New(ppe, docstore.NewMemStore(), nil)
	e.OpenEdit("gone", map[string]any{"materialNumber": "P-1"})
	_, err := e.Save(context.Background(), contributor)
	require.ErrorIs(t, err, ErrRemoteWrite)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Equal(t, EditOpen, e.Mode())
	assert.Equal(t, GenericFailure, e.Form().Message)
}

func TestRemoteFailureKeepsFormOpen(t *testing.T) {
	e := New(ppe, failingStore{}, nil)
	e.OpenCreate()
	require.NoError(t, e.Set("materialNumber", "P-2"))
	_, err := e.Save(context.Background(), contributor)
	require.ErrorIs(t, err, ErrRemoteWrite)
	assert.Equal(t, CreateOpen, e.Mode())
	assert.Equal(t, "P-2", e.Form().Fields[0].Value)
	assert.Equal(t, GenericFailure, e.Message())
}

func TestViewerCannotSave(t *testing.T) {
	store := docstore.NewMemStore()
	e := New(ppe, store, nil)
	e.OpenCreate()
	require.NoError(t, e.Set("materialNumber", "P-3"))
	_, err := e.Save(context.Background(), viewer)
	require.ErrorIs(t, err, ErrForbidden)

	disabled := contributor
	disabled.Disabled = true
	_, err = e.Save(context.Background(), disabled)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestClosedEditor(t *testing.T) {
	e := New(ppe, docstore.NewMemStore(), nil)
	assert.ErrorIs(t, e.Set("materialNumber", "x"), ErrNotOpen)
	_, err := e.Save(context.Background(), contributor)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.Empty(t, e.Form().Fields)

	e.OpenCreate()
	require.NoError(t, e.Set("materialNumber", "x"))
	e.Cancel()
	assert.Equal(t, Closed, e.Mode())
	e.OpenCreate()
	assert.Equal(t, "Add New", e.Form().Title)
	assert.Equal(t, "", e.Form().Fields[0].Value)
}
