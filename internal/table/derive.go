package table

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/iliyamo/estock/internal/model"
)

// TotalKey is the sort key of the computed total column.
const TotalKey = "total"

// Row is one record with its computed total.
type Row struct {
	Record   model.Record
	Total    float64
	HasTotal bool
}

// View is the derived state of the table for one query.
type View struct {
	Rows     []Row // current page
	Filtered int   // rows matching the search
	Count    int   // rows in the snapshot
	Page     int
	Pages    int
	PageSize int
	Sort     Sort
	Search   string
}

// Derive runs the pipeline filter, sort, paginate over records.  It is a
// pure function; records are not modified.
func Derive(records []model.Record, schema model.Schema, totals model.TotalRule, q Query) View {
	rows := Filter(records, schema, totals, q.Search)
	SortRows(rows, schema, q.Sort)
	v := View{Filtered: len(rows), Count: len(records), Sort: q.Sort, Search: q.Search, PageSize: q.PageSize}
	v.Rows, v.Page, v.Pages = Paginate(rows, q.PageSize, q.Page)
	return v
}

// Filter keeps records whose field values, computed total or id contain
// search, ignoring case.  Store order is preserved.
func Filter(records []model.Record, schema model.Schema, totals model.TotalRule, search string) []Row {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]Row, 0, len(records))
	for _, r := range records {
		row := Row{Record: r}
		if totals.Enabled() {
			row.Total, row.HasTotal = totals.Compute(r.Fields), true
		}
		if needle == "" || matches(row, schema, needle) {
			out = append(out, row)
		}
	}
	return out
}

func matches(row Row, schema model.Schema, needle string) bool {
	if strings.Contains(strings.ToLower(row.Record.ID), needle) {
		return true
	}
	for _, f := range schema {
		if strings.Contains(strings.ToLower(model.FormatValue(f, row.Record.Value(f.Key))), needle) {
			return true
		}
	}
	return row.HasTotal && strings.Contains(model.FormatNumber(row.Total), needle)
}

// SortRows orders rows in place by s.  Numeric columns compare as numbers,
// others with a numeric-aware, case-insensitive collation.  Empty values go
// last when ascending and first when descending.  Equal rows keep their
// relative order; SortNone keeps store order.
func SortRows(rows []Row, schema model.Schema, s Sort) {
	if !s.Active() {
		return
	}
	key := sortKeyFor(schema, s.Key)
	if key == nil {
		return
	}
	col := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	cmp := func(a, b Row) int {
		av, aEmpty := key(a)
		bv, bEmpty := key(b)
		switch {
		case aEmpty && bEmpty:
			return 0
		case aEmpty:
			return 1
		case bEmpty:
			return -1
		}
		if an, ok := av.(float64); ok {
			bn := bv.(float64)
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
		return col.CompareString(av.(string), bv.(string))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if s.Dir == SortDesc {
			return cmp(rows[j], rows[i]) < 0
		}
		return cmp(rows[i], rows[j]) < 0
	})
}

// sortKeyFor returns the extractor of column key: the comparable value and
// whether it is empty.  Unknown keys yield nil.
func sortKeyFor(schema model.Schema, key string) func(Row) (any, bool) {
	if key == TotalKey {
		if _, clash := schema.Field(TotalKey); !clash {
			return func(r Row) (any, bool) { return r.Total, !r.HasTotal }
		}
	}
	f, ok := schema.Field(key)
	if !ok {
		return nil
	}
	if f.IsNumeric() {
		return func(r Row) (any, bool) {
			v := r.Record.Value(f.Key)
			if v == nil {
				return 0.0, true
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				return 0.0, true
			}
			return model.CoerceNumber(v), false
		}
	}
	return func(r Row) (any, bool) {
		s := strings.TrimSpace(model.FormatValue(f, r.Record.Value(f.Key)))
		return s, s == ""
	}
}

// Paginate returns the page slice of rows and the clamped page number.
// The page is clamped to [1, pages]; an empty set has one empty page.
func Paginate(rows []Row, size, page int) ([]Row, int, int) {
	n := len(rows)
	if size <= PageSizeAll || n == 0 {
		return rows, 1, 1
	}
	pages := (n + size - 1) / size
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := start + size
	if end > n {
		end = n
	}
	return rows[start:end], page, pages
}
