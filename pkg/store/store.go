// Package store owns per-(user, category) documents: default instantiation
// via the template registry, (de)serialization, metadata stamping, and the
// persistence collaborator beneath it.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zestify/healthmem/pkg/document"
	"github.com/zestify/healthmem/pkg/template"
)

// RawStore is the persistence collaborator beneath the document store. One
// addressable unit exists per (user_id, category). Save must be atomic per
// key: a reader never observes a partially written unit.
type RawStore interface {
	// Load returns the stored bytes for a key. ok is false if the key has
	// never been saved.
	Load(ctx context.Context, userID string, category template.Category) (data []byte, ok bool, err error)

	// Save replaces the stored bytes for a key as a unit.
	Save(ctx context.Context, userID string, category template.Category, data []byte) error

	// Categories lists the categories stored for a user.
	Categories(ctx context.Context, userID string) ([]template.Category, error)

	// Close releases underlying resources.
	Close() error
}

// Clock supplies timestamps; overridable in tests.
type Clock func() time.Time

// DocumentStore creates, loads and saves memory documents.
type DocumentStore struct {
	registry *template.Registry
	raw      RawStore
	now      Clock
}

// NewDocumentStore wires a document store over a raw persistence
// collaborator. clock may be nil, defaulting to time.Now.
func NewDocumentStore(registry *template.Registry, raw RawStore, clock Clock) *DocumentStore {
	if clock == nil {
		clock = time.Now
	}
	return &DocumentStore{registry: registry, raw: raw, now: clock}
}

// LoadOrCreate returns the existing document for (userID, category), or a
// fresh one instantiated from the category template's defaults with
// created_at = last_updated = now. The fresh document is not persisted until
// the first Save.
func (s *DocumentStore) LoadOrCreate(ctx context.Context, userID string, category template.Category) (*document.MemoryDocument, error) {
	schema, err := s.registry.Resolve(category)
	if err != nil {
		return nil, err
	}

	data, ok, err := s.raw.Load(ctx, userID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s/%s: %w", userID, category, err)
	}
	if !ok {
		now := s.now()
		return &document.MemoryDocument{
			UserID:   userID,
			Category: category,
			Metadata: document.Metadata{CreatedAt: now, LastUpdated: now},
			Payload:  schema.DefaultPayload(),
		}, nil
	}

	doc, err := decodeDocument(userID, category, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", userID, category, err)
	}
	return doc, nil
}

// Save persists the document as a unit and stamps last_updated. The stamp is
// monotonic non-decreasing even under a clock that steps backward. Returns
// the saved version; the input document is not mutated.
func (s *DocumentStore) Save(ctx context.Context, doc *document.MemoryDocument) (*document.MemoryDocument, error) {
	saved := doc.Clone()

	now := s.now()
	if now.After(saved.Metadata.LastUpdated) {
		saved.Metadata.LastUpdated = now
	}

	data, err := encodeDocument(saved)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s/%s: %w", doc.UserID, doc.Category, err)
	}

	if err := s.raw.Save(ctx, saved.UserID, saved.Category, data); err != nil {
		return nil, fmt.Errorf("failed to save document %s/%s: %w", doc.UserID, doc.Category, err)
	}

	return saved, nil
}

// Categories lists the categories persisted for a user.
func (s *DocumentStore) Categories(ctx context.Context, userID string) ([]template.Category, error) {
	return s.raw.Categories(ctx, userID)
}
