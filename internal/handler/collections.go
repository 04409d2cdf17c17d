package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/actionbar"
	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/editor"
	"github.com/iliyamo/estock/internal/export"
	"github.com/iliyamo/estock/internal/middleware"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/session"
	"github.com/iliyamo/estock/internal/table"
)

// CollectionHandler serves the stock pages: views over the live table
// controllers and the record writes that feed them.
type CollectionHandler struct {
	Registry *table.Registry
	Store    docstore.Store
	Exporter *export.Ranked
	LoginURL string
	Log      *zap.Logger
	Now      func() time.Time
}

func NewCollectionHandler(reg *table.Registry, store docstore.Store, exp *export.Ranked, loginURL string, log *zap.Logger) *CollectionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CollectionHandler{Registry: reg, Store: store, Exporter: exp, LoginURL: loginURL, Log: log, Now: time.Now}
}

func (h *CollectionHandler) controller(c echo.Context) (*table.Controller, error) {
	ctrl, ok := h.Registry.Get(c.Param("name"))
	if !ok {
		return nil, c.JSON(http.StatusNotFound, echo.Map{"error": "collection not found"})
	}
	return ctrl, nil
}

// queryFrom reads search, sort, dir, toggle, page and pageSize.  toggle
// applies one header click to the sort given by sort and dir.
func queryFrom(c echo.Context, coll model.Collection) table.Query {
	q := table.NewQuery(coll.PageSize)
	if n, ok := table.ParsePageSize(c.QueryParam("pageSize")); ok {
		q = q.WithPageSize(n)
	}
	q = q.WithSearch(c.QueryParam("search"))
	if key := c.QueryParam("sort"); key != "" {
		dir := table.ParseSortDir(c.QueryParam("dir"))
		if dir == table.SortNone {
			dir = table.SortAsc
		}
		q.Sort = table.Sort{Key: key, Dir: dir}
	}
	if key := c.QueryParam("toggle"); key != "" {
		q = q.WithToggledSort(key)
	}
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil {
		q = q.WithPage(p)
	}
	return q
}

// List returns the catalog.  The response does not depend on the caller and
// is safe to cache.
func (h *CollectionHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"collections": h.Registry.Collections()})
}

// View renders one page of a collection for the caller's role.
func (h *CollectionHandler) View(c echo.Context) error {
	ctrl, err := h.controller(c)
	if ctrl == nil {
		return err
	}
	s := middleware.CurrentSession(c)
	q := queryFrom(c, ctrl.Collection())
	return c.JSON(http.StatusOK, table.Render(ctrl.Collection(), ctrl.View(q), actionbar.For(s.Role)))
}

// Stream pushes a rendered view as a server-sent event on every snapshot and
// on every change of the caller's profile.  A role change re-renders with
// the new affordances; a disable ends the stream with a signout event.
func (h *CollectionHandler) Stream(c echo.Context) error {
	ctrl, err := h.controller(c)
	if ctrl == nil {
		return err
	}
	ctx := c.Request().Context()
	coll := ctrl.Collection()
	q := queryFrom(c, coll)

	holder := session.NewHolder(middleware.CurrentSession(c))
	sessions, unwatch := holder.Watch()
	defer unwatch()
	if err := session.Follow(ctx, h.Store, holder, h.Log); err != nil {
		h.Log.Error("follow profile failed", zap.String("uid", holder.Current().UID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "stream unavailable"})
	}
	changes, stop := ctrl.Changes()
	defer stop()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v any) error {
		body, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body); err != nil {
			return err
		}
		w.Flush()
		return nil
	}
	render := func() error {
		s := holder.Current()
		return send("view", table.Render(coll, ctrl.View(q), actionbar.For(s.Role)))
	}

	if err := render(); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := render(); err != nil {
				return nil
			}
		case s := <-sessions:
			if s.Disabled {
				_ = send("signout", echo.Map{"error": "account disabled", "redirect": h.LoginURL})
				return nil
			}
			if err := render(); err != nil {
				return nil
			}
		}
	}
}

type writeReq struct {
	Fields map[string]any `json:"fields"`
}

func (h *CollectionHandler) save(c echo.Context, e *editor.Editor, status int) error {
	var req writeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := e.SetAll(req.Fields); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx, cancel := timeout(c)
	defer cancel()

	id, err := e.Save(ctx, middleware.CurrentSession(c))
	var verr *editor.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "required fields missing", "fields": verr.Fields, "form": e.Form()})
	case errors.Is(err, editor.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, editor.ErrRemoteWrite):
		if errors.Is(err, docstore.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "record not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": editor.GenericFailure, "form": e.Form()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": editor.GenericFailure})
	}
	return c.JSON(status, echo.Map{"id": id})
}

// Create adds a record.
func (h *CollectionHandler) Create(c echo.Context) error {
	ctrl, err := h.controller(c)
	if ctrl == nil {
		return err
	}
	e := editor.New(ctrl.Collection(), h.Store, h.Log)
	e.OpenCreate()
	return h.save(c, e, http.StatusCreated)
}

// Update edits the schema fields of a record.  Fields absent from the body
// keep their stored value.
func (h *CollectionHandler) Update(c echo.Context) error {
	ctrl, err := h.controller(c)
	if ctrl == nil {
		return err
	}
	coll := ctrl.Collection()
	id := c.Param("id")

	ctx, cancel := timeout(c)
	doc, err := h.Store.Get(ctx, coll.Name, id)
	cancel()
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrInvalidCollection):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "record not found"})
	case err != nil:
		h.Log.Error("load record failed", zap.String("collection", coll.Name), zap.String("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": editor.GenericFailure})
	}
	e := editor.New(coll, h.Store, h.Log)
	e.OpenEdit(id, doc.Data)
	return h.save(c, e, http.StatusOK)
}

// Delete hard-deletes a record.  The caller confirms with ?confirm=true.
func (h *CollectionHandler) Delete(c echo.Context) error {
	ctrl, err := h.controller(c)
	if ctrl == nil {
		return err
	}
	confirmed, _ := strconv.ParseBool(c.QueryParam("confirm"))
	bar := &actionbar.Bar{Store: h.Store, Collection: ctrl.Collection().Name, Log: h.Log}

	ctx, cancel := timeout(c)
	defer cancel()
	err = bar.Delete(ctx, middleware.CurrentSession(c).Role, c.Param("id"), actionbar.Confirmed(confirmed))
	switch {
	case errors.Is(err, actionbar.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, actionbar.ErrConfirmationRequired):
		return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "delete requires confirmation"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete data."})
	}
	return c.NoContent(http.StatusNoContent)
}

// Export downloads the collection as a spreadsheet.  Collections exporting
// the filtered set honor search and sort.
func (h *CollectionHandler) Export(c echo.Context) error {
	ctrl, err := h.controller(c)
	if ctrl == nil {
		return err
	}
	coll := ctrl.Collection()
	sheet := export.Build(coll, ctrl.ExportSet(queryFrom(c, coll)))

	var buf bytes.Buffer
	backend, err := h.Exporter.Export(c.Request().Context(), sheet, &buf)
	if err != nil {
		h.Log.Error("export failed", zap.String("collection", coll.Name), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "Export is unavailable. Please try again later."})
	}
	name := export.Filename(coll.Name, h.Now().Local())
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, backend.ContentType(), buf.Bytes())
}
