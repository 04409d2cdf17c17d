// Package table is the realtime table controller of a stock page: it keeps
// a live snapshot of one collection and derives the filtered, sorted and
// paginated view shown to a session.
package table

import (
	"strconv"
	"strings"
)

// SortDir is the state of a column's sort toggle.
type SortDir int

const (
	SortNone SortDir = iota // store order
	SortAsc
	SortDesc
)

func (d SortDir) String() string {
	switch d {
	case SortAsc:
		return "asc"
	case SortDesc:
		return "desc"
	}
	return "none"
}

// ParseSortDir accepts "asc" and "desc"; anything else is SortNone.
func ParseSortDir(s string) SortDir {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return SortAsc
	case "desc":
		return SortDesc
	}
	return SortNone
}

// Sort is the active sort column.  The zero value keeps store order.
type Sort struct {
	Key string
	Dir SortDir
}

// Active reports whether any column sorts.
func (s Sort) Active() bool { return s.Key != "" && s.Dir != SortNone }

// ToggleSort advances the sort after a click on column key.  The same column
// cycles asc, desc, none; a different column starts at asc.
func ToggleSort(cur Sort, key string) Sort {
	if cur.Key != key || cur.Dir == SortNone {
		return Sort{Key: key, Dir: SortAsc}
	}
	if cur.Dir == SortAsc {
		return Sort{Key: key, Dir: SortDesc}
	}
	return Sort{}
}

// PageSizeAll shows every row on one page.
const PageSizeAll = 0

// PageSizes are the selectable page sizes.
var PageSizes = []int{10, 25, 50, 100, PageSizeAll}

// DefaultPageSize is used when a collection configures none.
const DefaultPageSize = 10

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	for _, s := range PageSizes {
		if s == n {
			return true
		}
	}
	return false
}

// ParsePageSize parses "10", "25", "50", "100" or "all".
func ParsePageSize(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "all" {
		return PageSizeAll, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n == PageSizeAll || !ValidPageSize(n) {
		return 0, false
	}
	return n, true
}

// FormatPageSize is the inverse of ParsePageSize.
func FormatPageSize(n int) string {
	if n == PageSizeAll {
		return "all"
	}
	return strconv.Itoa(n)
}

// Query is the per-session view state.
type Query struct {
	Search   string
	Sort     Sort
	Page     int
	PageSize int
}

// NewQuery starts at page 1 with the given page size.
func NewQuery(pageSize int) Query {
	if !ValidPageSize(pageSize) {
		pageSize = DefaultPageSize
	}
	return Query{Page: 1, PageSize: pageSize}
}

// WithSearch changes the search term and returns to the first page.
func (q Query) WithSearch(s string) Query {
	q.Search = s
	q.Page = 1
	return q
}

// WithToggledSort applies ToggleSort for key.
func (q Query) WithToggledSort(key string) Query {
	q.Sort = ToggleSort(q.Sort, key)
	return q
}

// WithPage selects a page; Derive clamps it.
func (q Query) WithPage(p int) Query {
	q.Page = p
	return q
}

// WithPageSize changes the page size and returns to the first page.
// Invalid sizes are ignored.
func (q Query) WithPageSize(n int) Query {
	if ValidPageSize(n) {
		q.PageSize = n
		q.Page = 1
	}
	return q
}
