// Package editor is the schema-driven record form of a stock page.  One
// Editor creates or updates exactly one record at a time; it is not safe for
// concurrent use.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/session"
)

// Mode is the editor state.
type Mode int

const (
	Closed Mode = iota
	CreateOpen
	EditOpen
)

func (m Mode) String() string {
	switch m {
	case CreateOpen:
		return "create"
	case EditOpen:
		return "edit"
	}
	return "closed"
}

// GenericFailure is the only message shown when a write fails.
const GenericFailure = "Failed to save data."

var (
	ErrValidation  = errors.New("validation failed")
	ErrForbidden   = errors.New("role may not modify records")
	ErrRemoteWrite = errors.New("could not write to the store")
	ErrNotOpen     = errors.New("editor is not open")
	ErrUnknownKey  = errors.New("unknown field")
)

// ValidationError lists the required fields that were empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("required fields empty: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Editor holds the form state of one collection.
type Editor struct {
	coll  model.Collection
	store docstore.Store
	log   *zap.Logger

	mode    Mode
	id      string
	values  map[string]string
	invalid map[string]bool
	message string
}

func New(coll model.Collection, store docstore.Store, log *zap.Logger) *Editor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Editor{coll: coll, store: store, log: log.With(zap.String("collection", coll.Name))}
	e.reset()
	return e
}

func (e *Editor) reset() {
	e.id = ""
	e.values = make(map[string]string, len(e.coll.Fields))
	e.invalid = map[string]bool{}
	e.message = ""
}

func (e *Editor) Mode() Mode        { return e.mode }
func (e *Editor) EditingID() string { return e.id }
func (e *Editor) Message() string   { return e.message }

// OpenCreate clears the form and enters create mode.
func (e *Editor) OpenCreate() {
	e.reset()
	e.mode = CreateOpen
}

// OpenEdit pre-fills the form from current and binds it to id.
func (e *Editor) OpenEdit(id string, current map[string]any) {
	e.reset()
	e.mode = EditOpen
	e.id = id
	for _, f := range e.coll.Fields {
		if v, ok := current[f.Key]; ok && v != nil {
			e.values[f.Key] = model.FormatValue(f, v)
		}
	}
}

// Cancel closes the form without writing.
func (e *Editor) Cancel() {
	e.reset()
	e.mode = Closed
}

// Set stores the raw input of one field.
func (e *Editor) Set(key, raw string) error {
	if e.mode == Closed {
		return ErrNotOpen
	}
	if _, ok := e.coll.Fields.Field(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	e.values[key] = raw
	delete(e.invalid, key)
	return nil
}

// SetAll applies submitted values.  Keys outside the schema are ignored.
func (e *Editor) SetAll(values map[string]any) error {
	if e.mode == Closed {
		return ErrNotOpen
	}
	for _, f := range e.coll.Fields {
		v, ok := values[f.Key]
		if !ok {
			continue
		}
		if err := e.Set(f.Key, rawString(v)); err != nil {
			return err
		}
	}
	return nil
}

func rawString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return model.FormatNumber(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// Validate marks every required field that is empty after trimming.
func (e *Editor) Validate() error {
	e.invalid = map[string]bool{}
	var missing []string
	for _, f := range e.coll.Fields {
		if f.Required && strings.TrimSpace(e.values[f.Key]) == "" {
			e.invalid[f.Key] = true
			missing = append(missing, f.Key)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Data is the document body the form currently describes: numbers are
// coerced (0 when unparseable) and text is trimmed.
func (e *Editor) Data() map[string]any {
	out := make(map[string]any, len(e.coll.Fields))
	for _, f := range e.coll.Fields {
		raw := e.values[f.Key]
		if f.IsNumeric() {
			out[f.Key] = model.CoerceNumber(raw)
		} else {
			out[f.Key] = strings.TrimSpace(raw)
		}
	}
	return out
}

// Save validates and writes the form.  A create sets createdBy to the
// session uid and returns the new id; an edit updates the schema fields of
// the bound record only.  On success the editor closes; on failure it stays
// open with GenericFailure as message.
func (e *Editor) Save(ctx context.Context, s session.Session) (string, error) {
	if e.mode == Closed {
		return "", ErrNotOpen
	}
	e.message = ""
	if !s.CanWrite() {
		e.message = GenericFailure
		return "", ErrForbidden
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	data := e.Data()

	var (
		id  string
		err error
	)
	switch e.mode {
	case CreateOpen:
		data[model.KeyCreatedBy] = s.UID
		id, err = e.store.Create(ctx, e.coll.Name, data)
	case EditOpen:
		id = e.id
		err = e.store.Update(ctx, e.coll.Name, id, data)
	}
	if err != nil {
		e.log.Error("record save failed", zap.String("mode", e.mode.String()), zap.String("id", id), zap.String("uid", s.UID), zap.Error(err))
		e.message = GenericFailure
		return "", fmt.Errorf("%w: %w", ErrRemoteWrite, err)
	}
	e.log.Info("record saved", zap.String("mode", e.mode.String()), zap.String("id", id), zap.String("uid", s.UID))
	e.Cancel()
	return id, nil
}

// FormField is one input of the rendered form.
type FormField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Value    string `json:"value"`
	Invalid  bool   `json:"invalid,omitempty"`
}

// Form is the toolkit-independent rendering of the editor.
type Form struct {
	Mode    string      `json:"mode"`
	Title   string      `json:"title"`
	ID      string      `json:"id,omitempty"`
	Fields  []FormField `json:"fields"`
	Message string      `json:"message,omitempty"`
}

// Form renders the current state.  A closed editor renders no fields.
func (e *Editor) Form() Form {
	f := Form{Mode: e.mode.String(), ID: e.id, Message: e.message}
	switch e.mode {
	case CreateOpen:
		f.Title = "Add New"
	case EditOpen:
		f.Title = "Edit Data"
	default:
		return f
	}
	for _, fd := range e.coll.Fields {
		f.Fields = append(f.Fields, FormField{
			Key:      fd.Key,
			Label:    fd.Label,
			Type:     string(fd.Kind),
			Required: fd.Required,
			Value:    e.values[fd.Key],
			Invalid:  e.invalid[fd.Key],
		})
	}
	return f
}
