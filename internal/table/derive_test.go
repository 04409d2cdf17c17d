package table

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/estock/internal/model"
)

var officeSchema = model.Schema{
	{Key: "materialNumber", Label: "Material Number", Kind: model.KindText, Required: true},
	{Key: "name", Label: "Name", Kind: model.KindText},
	{Key: "qtyIn", Label: "Qty In", Kind: model.KindNumber},
	{Key: "qtyOut", Label: "Qty Out", Kind: model.KindNumber},
}

var officeTotal = model.TotalRule{Add: []string{"qtyIn"}, Subtract: []string{"qtyOut"}}

func rec(id string, fields map[string]any) model.Record {
	return model.Record{ID: id, Fields: fields}
}

func ids(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Record.ID
	}
	return out
}

func TestToggleSortCycles(t *testing.T) {
	s := ToggleSort(Sort{}, "name")
	assert.Equal(t, Sort{Key: "name", Dir: SortAsc}, s)
	s = ToggleSort(s, "name")
	assert.Equal(t, Sort{Key: "name", Dir: SortDesc}, s)
	s = ToggleSort(s, "name")
	assert.Equal(t, Sort{}, s)

	// switching column restarts at ascending
	s = ToggleSort(Sort{Key: "qtyIn", Dir: SortDesc}, "name")
	assert.Equal(t, Sort{Key: "name", Dir: SortAsc}, s)
}

func TestThreeClicksRestoreStoreOrder(t *testing.T) {
	records := []model.Record{
		rec("c", map[string]any{"name": "Cable"}),
		rec("a", map[string]any{"name": "Adapter"}),
		rec("b", map[string]any{"name": "Battery"}),
	}
	q := NewQuery(10).WithToggledSort("qtyIn") // a different column was active first
	q = q.WithToggledSort("name").WithToggledSort("name").WithToggledSort("name")
	v := Derive(records, officeSchema, officeTotal, q)
	assert.Equal(t, []string{"c", "a", "b"}, ids(v.Rows))
	assert.False(t, v.Sort.Active())
}

func TestSortNumericWithEmptiesLast(t *testing.T) {
	records := []model.Record{
		rec("r1", map[string]any{"qtyIn": 10.0}),
		rec("r2", map[string]any{}),
		rec("r3", map[string]any{"qtyIn": "2"}),
		rec("r4", map[string]any{"qtyIn": 5.0}),
		rec("r5", map[string]any{"qtyIn": ""}),
	}
	asc := Derive(records, officeSchema, officeTotal, Query{Sort: Sort{Key: "qtyIn", Dir: SortAsc}, Page: 1, PageSize: PageSizeAll})
	assert.Equal(t, []string{"r3", "r4", "r1", "r2", "r5"}, ids(asc.Rows))

	desc := Derive(records, officeSchema, officeTotal, Query{Sort: Sort{Key: "qtyIn", Dir: SortDesc}, Page: 1, PageSize: PageSizeAll})
	assert.Equal(t, []string{"r2", "r5", "r1", "r4", "r3"}, ids(desc.Rows))
}

func TestSortTextIsNumericAwareAndCaseInsensitive(t *testing.T) {
	records := []model.Record{
		rec("a", map[string]any{"name": "item 10"}),
		rec("b", map[string]any{"name": "Item 2"}),
		rec("c", map[string]any{"name": ""}),
		rec("d", map[string]any{"name": "item 1"}),
	}
	v := Derive(records, officeSchema, officeTotal, Query{Sort: Sort{Key: "name", Dir: SortAsc}, Page: 1})
	assert.Equal(t, []string{"d", "b", "a", "c"}, ids(v.Rows))
}

func TestSortByTotal(t *testing.T) {
	records := []model.Record{
		rec("a", map[string]any{"qtyIn": 10.0, "qtyOut": 9.0}),
		rec("b", map[string]any{"qtyIn": 10.0, "qtyOut": 1.0}),
		rec("c", map[string]any{"qtyIn": 4.0}),
	}
	v := Derive(records, officeSchema, officeTotal, Query{Sort: Sort{Key: TotalKey, Dir: SortDesc}, Page: 1})
	assert.Equal(t, []string{"b", "c", "a"}, ids(v.Rows))
}

func TestSortStableForTies(t *testing.T) {
	records := []model.Record{
		rec("x", map[string]any{"qtyIn": 1.0}),
		rec("y", map[string]any{"qtyIn": 1.0}),
		rec("z", map[string]any{"qtyIn": 1.0}),
	}
	v := Derive(records, officeSchema, officeTotal, Query{Sort: Sort{Key: "qtyIn", Dir: SortDesc}, Page: 1})
	assert.Equal(t, []string{"x", "y", "z"}, ids(v.Rows))
}

func TestUnknownSortKeyKeepsStoreOrder(t *testing.T) {
	records := []model.Record{rec("b", nil), rec("a", nil)}
	v := Derive(records, officeSchema, officeTotal, Query{Sort: Sort{Key: "nope", Dir: SortAsc}, Page: 1})
	assert.Equal(t, []string{"b", "a"}, ids(v.Rows))
}

func TestFilter(t *testing.T) {
	records := []model.Record{
		rec("id-AAA", map[string]any{"materialNumber": "M-001", "name": "Stapler", "qtyIn": 5.0}),
		rec("id-BBB", map[string]any{"materialNumber": "M-002", "name": "Paper", "qtyIn": 120.0, "qtyOut": 20.0}),
		rec("id-CCC", map[string]any{"materialNumber": "X-9", "name": "Toner"}),
	}
	find := func(s string) []string {
		return ids(Filter(records, officeSchema, officeTotal, s))
	}
	assert.Equal(t, []string{"id-AAA"}, find("stap"))
	assert.Equal(t, []string{"id-AAA", "id-BBB"}, find("m-00"))
	assert.Equal(t, []string{"id-CCC"}, find("ccc"), "matches the record id")
	assert.Equal(t, []string{"id-BBB"}, find("100"), "matches the computed total")
	assert.Equal(t, []string{"id-AAA", "id-BBB", "id-CCC"}, find("  "))
	assert.Empty(t, find("nothing"))
}

func many(n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = rec(fmt.Sprintf("r%02d", i), map[string]any{"name": fmt.Sprintf("item %d", i)})
	}
	return out
}

func TestPagination(t *testing.T) {
	records := many(25)
	v := Derive(records, officeSchema, officeTotal, Query{Page: 2, PageSize: 10})
	require.Len(t, v.Rows, 10)
	assert.Equal(t, "r10", v.Rows[0].Record.ID)
	assert.Equal(t, "r19", v.Rows[9].Record.ID)
	assert.Equal(t, 3, v.Pages)
	assert.Equal(t, 25, v.Filtered)

	last := Derive(records, officeSchema, officeTotal, Query{Page: 99, PageSize: 10})
	assert.Equal(t, 3, last.Page)
	assert.Equal(t, []string{"r20", "r21", "r22", "r23", "r24"}, ids(last.Rows))

	first := Derive(records, officeSchema, officeTotal, Query{Page: -4, PageSize: 25})
	assert.Equal(t, 1, first.Page)
	assert.Len(t, first.Rows, 25)

	all := Derive(records, officeSchema, officeTotal, Query{Page: 3, PageSize: PageSizeAll})
	assert.Equal(t, 1, all.Page)
	assert.Len(t, all.Rows, 25)

	empty := Derive(records, officeSchema, officeTotal, Query{Search: "zzz", Page: 5, PageSize: 10})
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 1, empty.Pages)
	assert.Empty(t, empty.Rows)
}

func TestQueryHelpers(t *testing.T) {
	q := NewQuery(7)
	assert.Equal(t, Query{Page: 1, PageSize: DefaultPageSize}, q)
	q = q.WithPage(3).WithSearch("x")
	assert.Equal(t, 1, q.Page)
	q = q.WithPage(3).WithPageSize(33)
	assert.Equal(t, 3, q.Page, "invalid page size is ignored")
	q = q.WithPageSize(PageSizeAll)
	assert.Equal(t, Query{Search: "x", Page: 1, PageSize: PageSizeAll}, q)

	for _, s := range []string{"10", "25", "50", "100", "all", "ALL"} {
		n, ok := ParsePageSize(s)
		require.True(t, ok, s)
		assert.Equal(t, s == "all" || s == "ALL", n == PageSizeAll)
	}
	for _, s := range []string{"0", "7", "", "-10"} {
		_, ok := ParsePageSize(s)
		assert.False(t, ok, s)
	}
	assert.Equal(t, SortDesc, ParseSortDir("DESC"))
	assert.Equal(t, SortNone, ParseSortDir("sideways"))
}

func TestDeriveDoesNotMutateInput(t *testing.T) {
	records := []model.Record{rec("b", map[string]any{"name": "b"}), rec("a", map[string]any{"name": "a"})}
	before := append([]model.Record(nil), records...)
	Derive(records, officeSchema, officeTotal, Query{Sort: Sort{Key: "name", Dir: SortAsc}, Page: 1})
	if diff := cmp.Diff(before, records); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
}
