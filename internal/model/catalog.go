package model

import (
	"fmt"
	"strings"
)

// ExportScope selects which record set an export serializes.
type ExportScope string

const (
	ExportAll      ExportScope = "all"      // every record of the collection
	ExportFiltered ExportScope = "filtered" // the records matching the current search, in view order
)

// Collection configures one tracked collection (office, ppe, souvenir,
// supplier).  Variants of the stock page differ only in these fields.
type Collection struct {
	Name        string      `json:"name" yaml:"name"`
	Title       string      `json:"title" yaml:"title"`
	Fields      Schema      `json:"fields" yaml:"fields"`
	Total       TotalRule   `json:"total" yaml:"total"`
	ExportScope ExportScope `json:"exportScope" yaml:"export_scope"`
	PageSize    int         `json:"pageSize" yaml:"page_size"`
}

// Validate checks the collection is usable and fills defaults.
func (c *Collection) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("collection without name")
	}
	if c.Name == CollectionUsers || c.Name == CollectionRoles {
		return fmt.Errorf("collection %q is reserved", c.Name)
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("collection %s has no fields", c.Name)
	}
	if c.Title == "" {
		c.Title = c.Name
	}
	seen := make(map[string]bool, len(c.Fields))
	for i := range c.Fields {
		f := &c.Fields[i]
		if f.Key == "" {
			return fmt.Errorf("collection %s: field %d has no key", c.Name, i)
		}
		switch f.Key {
		case KeyID, KeyCreatedAt, KeyUpdatedAt, KeyCreatedBy:
			return fmt.Errorf("collection %s: field key %q is reserved", c.Name, f.Key)
		}
		if seen[f.Key] {
			return fmt.Errorf("collection %s: duplicate field %q", c.Name, f.Key)
		}
		seen[f.Key] = true
		if f.Label == "" {
			f.Label = f.Key
		}
		switch f.Kind {
		case "":
			f.Kind = KindText
		case KindText, KindNumber, KindDate:
		default:
			return fmt.Errorf("collection %s: field %s has unknown kind %q", c.Name, f.Key, f.Kind)
		}
	}
	for _, k := range append(append([]string(nil), c.Total.Add...), c.Total.Subtract...) {
		f, ok := c.Fields.Field(k)
		if !ok || !f.IsNumeric() {
			return fmt.Errorf("collection %s: total refers to non-numeric field %q", c.Name, k)
		}
	}
	switch c.ExportScope {
	case "":
		c.ExportScope = ExportAll
	case ExportAll, ExportFiltered:
	default:
		return fmt.Errorf("collection %s: unknown export scope %q", c.Name, c.ExportScope)
	}
	return nil
}
