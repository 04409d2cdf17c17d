package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/table"
)

type catalogFile struct {
	Collections []model.Collection `yaml:"collections"`
}

// LoadCatalog reads the collection catalog from path.  A missing file yields
// DefaultCatalog.
func LoadCatalog(path string) ([]model.Collection, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, err
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a YAML catalog.  Unknown keys are
// rejected so a typo in a field definition does not silently drop a column.
func ParseCatalog(raw []byte) ([]model.Collection, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Collections) == 0 {
		return nil, errors.New("catalog declares no collections")
	}
	return normalizeCatalog(f.Collections)
}

func normalizeCatalog(in []model.Collection) ([]model.Collection, error) {
	seen := make(map[string]bool, len(in))
	out := make([]model.Collection, 0, len(in))
	for _, c := range in {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate collection %q", c.Name)
		}
		seen[c.Name] = true
		if c.PageSize == 0 || !table.ValidPageSize(c.PageSize) {
			c.PageSize = table.DefaultPageSize
		}
		out = append(out, c)
	}
	return out, nil
}

func stockFields(first ...model.Field) model.Schema {
	return append(first,
		model.Field{Key: "unit", Label: "Unit"},
		model.Field{Key: "qtyIn", Label: "Qty In", Kind: model.KindNumber},
		model.Field{Key: "qtyOut", Label: "Qty Out", Kind: model.KindNumber},
	)
}

var stockTotal = model.TotalRule{Add: []string{"qtyIn"}, Subtract: []string{"qtyOut"}}

// DefaultCatalog is the built-in set of stock pages.
func DefaultCatalog() []model.Collection {
	cat := []model.Collection{
		{
			Name:  "office",
			Title: "Office Supplies",
			Fields: stockFields(
				model.Field{Key: "materialNumber", Label: "Material Number", Required: true},
				model.Field{Key: "name", Label: "Item Name", Required: true},
			),
			Total: stockTotal,
		},
		{
			Name:  "ppe",
			Title: "Personal Protective Equipment",
			Fields: stockFields(
				model.Field{Key: "materialNumber", Label: "Material Number", Required: true},
				model.Field{Key: "description", Label: "Description", Required: true},
				model.Field{Key: "size", Label: "Size"},
			),
			Total: stockTotal,
		},
		{
			Name:  "souvenir",
			Title: "Souvenirs",
			Fields: stockFields(
				model.Field{Key: "item", Label: "Item", Required: true},
			),
			Total: stockTotal,
		},
		{
			Name:  "supplier",
			Title: "Supplier Deliveries",
			Fields: model.Schema{
				{Key: "supplierName", Label: "Supplier", Required: true},
				{Key: "materialNumber", Label: "Material Number", Required: true},
				{Key: "deliveryDate", Label: "Delivery Date", Kind: model.KindDate},
				{Key: "qty", Label: "Quantity", Kind: model.KindNumber},
				{Key: "contact", Label: "Contact"},
			},
			ExportScope: model.ExportFiltered,
			PageSize:    25,
		},
	}
	out, err := normalizeCatalog(cat)
	if err != nil {
		panic(err)
	}
	return out
}
