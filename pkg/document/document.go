// Package document defines the versioned memory document model shared by the
// merge engine, the store and the projection builder. Documents are plain
// nested maps; all transforms over them are pure and return new values.
package document

import (
	"time"

	"github.com/zestify/healthmem/pkg/template"
)

// Metadata carries document lifecycle timestamps.
// LastUpdated is monotonically non-decreasing per (user, category).
type Metadata struct {
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// MemoryDocument is one per-user, per-category document. The payload shape is
// defined by the category's template. Documents are never physically deleted;
// updates replace the whole document.
type MemoryDocument struct {
	UserID   string                 `json:"user_id"`
	Category template.Category      `json:"category"`
	Metadata Metadata               `json:"metadata"`
	Payload  map[string]interface{} `json:"payload"`
}

// Clone returns a deep copy of the document. The merge engine operates on
// clones so the caller's document is never mutated.
func (d *MemoryDocument) Clone() *MemoryDocument {
	return &MemoryDocument{
		UserID:   d.UserID,
		Category: d.Category,
		Metadata: d.Metadata,
		Payload:  CloneValue(d.Payload).(map[string]interface{}),
	}
}

// CloneValue deep-copies a JSON-shaped value (maps, slices, scalars).
func CloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = CloneValue(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = CloneValue(child)
		}
		return out
	default:
		return val
	}
}
