// Package actionbar gates the add, edit, delete and export affordances of a
// stock page by role and carries out the confirmed delete.
package actionbar

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/model"
)

var (
	// ErrConfirmationRequired is returned when the user declined (or was
	// never asked) to confirm a delete.  Nothing is written.
	ErrConfirmationRequired = errors.New("delete requires confirmation")
	// ErrForbidden is returned when the role may not write.
	ErrForbidden = errors.New("role may not modify records")
	// ErrRemoteWrite wraps store failures; the row is left unchanged.
	ErrRemoteWrite = errors.New("could not write to the store")
)

// Affordances lists the visible controls.
type Affordances struct {
	Add    bool `json:"add"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
	Export bool `json:"export"`
}

// For derives the affordances of role: writers get add, edit and delete;
// export is always available.
func For(role model.Role) Affordances {
	w := role.CanWrite()
	return Affordances{Add: w, Edit: w, Delete: w, Export: true}
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Confirmed is a Confirmer with a fixed answer; HTTP callers pass the value
// of their explicit confirmation parameter.
type Confirmed bool

func (c Confirmed) Confirm(context.Context, string) bool { return bool(c) }

// Bar performs the row actions of one collection.
type Bar struct {
	Store      docstore.Store
	Collection string
	Log        *zap.Logger
}

// Delete permanently removes a record after confirmation.  Records have no
// soft delete.
func (b *Bar) Delete(ctx context.Context, role model.Role, id string, confirm Confirmer) error {
	if !For(role).Delete {
		return ErrForbidden
	}
	if confirm == nil || !confirm.Confirm(ctx, "Delete this record?") {
		return ErrConfirmationRequired
	}
	if err := b.Store.Delete(ctx, b.Collection, id); err != nil {
		if b.Log != nil {
			b.Log.Error("record delete failed", zap.String("collection", b.Collection), zap.String("id", id), zap.Error(err))
		}
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}
