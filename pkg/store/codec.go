package store

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/zestify/healthmem/pkg/document"
	"github.com/zestify/healthmem/pkg/template"
)

// storedDocument is the persisted layout: one unit per (user_id, category)
// holding metadata and payload. user_id and category live in the key, not
// the body.
type storedDocument struct {
	Metadata storedMetadata         `json:"metadata"`
	Payload  map[string]interface{} `json:"payload"`
}

type storedMetadata struct {
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// encodeDocument serializes a document. Every string value in the payload is
// NFC-normalized first so that equal-looking text from different producers
// (device sync vs. conversation) stores identically.
func encodeDocument(doc *document.MemoryDocument) ([]byte, error) {
	body := storedDocument{
		Metadata: storedMetadata{
			CreatedAt:   doc.Metadata.CreatedAt.UTC(),
			LastUpdated: doc.Metadata.LastUpdated.UTC(),
		},
		Payload: normalizeStrings(doc.Payload).(map[string]interface{}),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document body: %w", err)
	}
	return data, nil
}

func decodeDocument(userID string, category template.Category, data []byte) (*document.MemoryDocument, error) {
	var body storedDocument
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document body: %w", err)
	}
	payload := body.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &document.MemoryDocument{
		UserID:   userID,
		Category: category,
		Metadata: document.Metadata{
			CreatedAt:   body.Metadata.CreatedAt,
			LastUpdated: body.Metadata.LastUpdated,
		},
		Payload: payload,
	}, nil
}

// normalizeStrings returns a copy of v with all string values (not keys)
// NFC-normalized.
func normalizeStrings(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = normalizeStrings(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = normalizeStrings(child)
		}
		return out
	default:
		return val
	}
}
