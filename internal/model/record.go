package model

import "time"

// System keys written alongside caller-defined fields.
const (
	KeyCreatedBy = "createdBy"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
	KeyID        = "id"
)

// Record is one inventory item of a tracked collection (office supply, PPE,
// souvenir, supplier stock entry).
//
// Fields:
//  ID        – opaque store-assigned identifier, immutable after creation.
//  Fields    – caller-defined values keyed by schema field key.
//  CreatedAt – store-assigned creation timestamp.
//  UpdatedAt – store-assigned timestamp of the last write.
//  CreatedBy – uid of the identity that created the record.
type Record struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	CreatedBy string         `json:"createdBy,omitempty"`
}

// NewRecord splits a raw document body into caller fields and the createdBy
// system field.
func NewRecord(id string, data map[string]any, createdAt, updatedAt time.Time) Record {
	fields := make(map[string]any, len(data))
	var createdBy string
	for k, v := range data {
		if k == KeyCreatedBy {
			createdBy, _ = v.(string)
			continue
		}
		fields[k] = v
	}
	return Record{ID: id, Fields: fields, CreatedAt: createdAt, UpdatedAt: updatedAt, CreatedBy: createdBy}
}

// Value returns the raw value of a caller field, nil when absent.
func (r Record) Value(key string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[key]
}
