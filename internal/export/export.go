// Package export turns a table's record set into a downloadable spreadsheet.
// Spreadsheet libraries sit behind Backend so the fallback order is a
// configuration concern.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/table"
)

// ErrExportUnavailable is returned when no backend could produce a file.
var ErrExportUnavailable = errors.New("no spreadsheet backend available")

// SheetName is the single sheet of every export.
const SheetName = "Data"

// Sheet is a backend-independent table: a header row and value rows.  Values
// are strings or float64.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Backend encodes a Sheet in one spreadsheet format.
type Backend interface {
	Name() string
	ContentType() string
	Encode(ctx context.Context, s Sheet, w io.Writer) error
}

// Build lays out rows the way the export file shows them: ID, the schema
// fields, Total Stock when the collection has a rule, then the timestamps in
// ISO 8601.
func Build(c model.Collection, rows []table.Row) Sheet {
	header := []string{"ID"}
	for _, f := range c.Fields {
		header = append(header, f.Label)
	}
	if c.Total.Enabled() {
		header = append(header, "Total Stock")
	}
	header = append(header, "Created At", "Updated At")

	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		line := make([]any, 0, len(header))
		line = append(line, r.Record.ID)
		for _, f := range c.Fields {
			v := r.Record.Value(f.Key)
			if f.IsNumeric() {
				line = append(line, model.CoerceNumber(v))
				continue
			}
			line = append(line, model.FormatValue(f, v))
		}
		if c.Total.Enabled() {
			line = append(line, r.Total)
		}
		line = append(line, isoTime(r.Record.CreatedAt), isoTime(r.Record.UpdatedAt))
		out = append(out, line)
	}
	return Sheet{Name: SheetName, Header: header, Rows: out}
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Filename is {collection}_{YYYY-MM-DD_HH-MM}.xlsx for now as given; callers
// pass local time.
func Filename(collection string, now time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", collection, now.Format("2006-01-02_15-04"))
}

// Ranked tries each backend in order.  Output is buffered so a failing
// backend never leaves a partial file in w.
type Ranked struct {
	Backends []Backend
	Log      *zap.Logger
}

func NewRanked(log *zap.Logger, backends ...Backend) *Ranked {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranked{Backends: backends, Log: log}
}

// Export writes the first successful encoding to w and returns the backend
// that produced it.
func (r *Ranked) Export(ctx context.Context, s Sheet, w io.Writer) (Backend, error) {
	for _, b := range r.Backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := b.Encode(ctx, s, &buf); err != nil {
			r.Log.Warn("export backend failed", zap.String("backend", b.Name()), zap.Error(err))
			continue
		}
		if _, err := buf.WriteTo(w); err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, ErrExportUnavailable
}
