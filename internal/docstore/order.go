package docstore

import (
	"fmt"
	"sort"
	"strings"
)

// sortDocuments orders docs in place.  Documents are first compared by the
// order field and then by id so equal keys keep a stable, repeatable order.
func sortDocuments(docs []Document, order Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		c := compareByOrder(docs[i], docs[j], order.Field)
		if c == 0 {
			c = strings.Compare(docs[i].ID, docs[j].ID)
		}
		if order.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareByOrder(a, b Document, field string) int {
	switch field {
	case OrderCreatedAt, "":
		return a.CreatedAt.Compare(b.CreatedAt)
	case OrderUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case OrderID:
		return strings.Compare(a.ID, b.ID)
	}
	av, bv := a.Data[field], b.Data[field]
	if an, ok := av.(float64); ok {
		if bn, ok := bv.(float64); ok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(av), fmt.Sprint(bv))
}

// systemOrder reports whether the order can be expressed on table columns.
func systemOrder(order Order) bool {
	switch order.Field {
	case OrderCreatedAt, OrderUpdatedAt, OrderID, "":
		return true
	}
	return false
}
