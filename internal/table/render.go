package table

import (
	"github.com/iliyamo/estock/internal/actionbar"
	"github.com/iliyamo/estock/internal/model"
)

// Column is one header cell.
type Column struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Numeric  bool   `json:"numeric,omitempty"`
	Sortable bool   `json:"sortable"`
	Sort     string `json:"sort,omitempty"` // asc | desc while this column sorts
}

// Action is a row control.
type Action struct {
	Kind    string `json:"kind"` // edit | delete
	Confirm bool   `json:"confirm,omitempty"`
}

// RenderedRow is a row of display strings.
type RenderedRow struct {
	ID      string   `json:"id"`
	Cells   []string `json:"cells"`
	Actions []Action `json:"actions,omitempty"`
}

// Pager describes pagination controls.
type Pager struct {
	Page      int      `json:"page"`
	Pages     int      `json:"pages"`
	PageSize  string   `json:"pageSize"`
	PageSizes []string `json:"pageSizes"`
	Filtered  int      `json:"filtered"`
	Count     int      `json:"count"`
}

// Tree is the toolkit-independent view of a stock page.
type Tree struct {
	Collection string                `json:"collection"`
	Title      string                `json:"title"`
	Search     string                `json:"search"`
	Toolbar    actionbar.Affordances `json:"toolbar"`
	Columns    []Column              `json:"columns"`
	Rows       []RenderedRow         `json:"rows"`
	Pager      Pager                 `json:"pager"`
}

// Render is a pure function of the collection, one derived view and the
// affordances of the viewing role.  Without edit or delete affordances rows
// carry data cells only.
func Render(c model.Collection, v View, aff actionbar.Affordances) Tree {
	t := Tree{
		Collection: c.Name,
		Title:      c.Title,
		Search:     v.Search,
		Toolbar:    aff,
		Columns:    make([]Column, 0, len(c.Fields)+1),
		Rows:       make([]RenderedRow, 0, len(v.Rows)),
		Pager: Pager{
			Page:     v.Page,
			Pages:    v.Pages,
			PageSize: FormatPageSize(v.PageSize),
			Filtered: v.Filtered,
			Count:    v.Count,
		},
	}
	for _, n := range PageSizes {
		t.Pager.PageSizes = append(t.Pager.PageSizes, FormatPageSize(n))
	}
	for _, f := range c.Fields {
		t.Columns = append(t.Columns, column(f.Key, f.Label, f.IsNumeric(), v.Sort))
	}
	if c.Total.Enabled() {
		t.Columns = append(t.Columns, column(TotalKey, "Total Stock", true, v.Sort))
	}

	var actions []Action
	if aff.Edit {
		actions = append(actions, Action{Kind: "edit"})
	}
	if aff.Delete {
		actions = append(actions, Action{Kind: "delete", Confirm: true})
	}
	for _, r := range v.Rows {
		cells := make([]string, 0, len(t.Columns))
		for _, f := range c.Fields {
			cells = append(cells, model.FormatValue(f, r.Record.Value(f.Key)))
		}
		if c.Total.Enabled() {
			cells = append(cells, model.FormatNumber(r.Total))
		}
		t.Rows = append(t.Rows, RenderedRow{ID: r.Record.ID, Cells: cells, Actions: actions})
	}
	return t
}

func column(key, label string, numeric bool, s Sort) Column {
	c := Column{Key: key, Label: label, Numeric: numeric, Sortable: true}
	if s.Active() && s.Key == key {
		c.Sort = s.Dir.String()
	}
	return c
}
