// Package story hosts documents: uuid-keyed collections of image
// elements that transports bind sessions to.
package story

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"storyview-server-go/internal/domain/media"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
	"storyview-server-go/internal/platform/storage"
)

// Document is one hosted story and its elements.
type Document struct {
	id        string
	title     string
	createdAt time.Time

	mu       sync.RWMutex
	elements map[string]*media.Element
	order    []string
}

func (d *Document) ID() string    { return d.id }
func (d *Document) Title() string { return d.title }

func (d *Document) CreatedAt() time.Time { return d.createdAt }

// AddElement registers an element under its id.
func (d *Document) AddElement(el *media.Element) {
	if el == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.elements[el.ID()]; !exists {
		d.order = append(d.order, el.ID())
	}
	d.elements[el.ID()] = el
}

// Element looks one element up by id.
func (d *Document) Element(id string) (*media.Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.elements[id]
	return el, ok
}

// Elements returns the document's elements in insertion order.
func (d *Document) Elements() []*media.Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*media.Element, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.elements[id])
	}
	return out
}

// RemoveElement drops an element. In-flight loads run to completion;
// their results land on a node nothing references anymore.
func (d *Document) RemoveElement(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.elements[id]; !ok {
		return
	}
	delete(d.elements, id)
	for i, oid := range d.order {
		if oid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Describe summarizes the document for the HTTP API.
func (d *Document) Describe() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	els := make([]map[string]any, 0, len(d.order))
	for _, id := range d.order {
		els = append(els, d.elements[id].Describe())
	}
	return map[string]any{
		"id":         d.id,
		"title":      d.title,
		"created_at": d.createdAt,
		"elements":   els,
	}
}

// Registry is the process-wide document index. When a database is
// attached, documents survive restarts as StoryRecord rows.
type Registry struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	logger *logging.Logger
	db     *gorm.DB
}

// NewRegistry builds a registry. db may be nil for a purely in-memory
// runtime.
func NewRegistry(logger *logging.Logger, db *gorm.DB) *Registry {
	return &Registry{
		docs:   make(map[string]*Document),
		logger: logger,
		db:     db,
	}
}

// Create registers a new document.
func (r *Registry) Create(ctx context.Context, title string) (*Document, error) {
	doc := &Document{
		id:        uuid.NewString(),
		title:     title,
		createdAt: time.Now(),
		elements:  make(map[string]*media.Element),
	}

	r.mu.Lock()
	r.docs[doc.id] = doc
	r.mu.Unlock()

	if r.db != nil {
		def, err := sonic.Marshal(map[string]string{"title": title})
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "story.create", "failed to encode definition", err)
		}
		row := &storage.StoryRecord{
			DocumentID: doc.id,
			Title:      title,
			Definition: def,
		}
		if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
			r.mu.Lock()
			delete(r.docs, doc.id)
			r.mu.Unlock()
			return nil, errors.Wrap(errors.KindStorage, "story.create", "failed to persist document", err)
		}
	}

	r.logger.InfoTag("STORY", "document %s created (%q)", doc.id, title)
	return doc, nil
}

// Get returns the document with the given id.
func (r *Registry) Get(id string) (*Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	return doc, ok
}

// List returns all documents, unordered.
func (r *Registry) List() []*Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc)
	}
	return out
}

// Remove drops a document and its persisted record.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.docs[id]
	delete(r.docs, id)
	r.mu.Unlock()
	if !ok {
		return errors.New(errors.KindConfig, "story.remove", "document not found")
	}

	if r.db != nil {
		if err := r.db.WithContext(ctx).
			Where("document_id = ?", id).
			Delete(&storage.StoryRecord{}).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "story.remove", "failed to delete record", err)
		}
	}
	r.logger.InfoTag("STORY", "document %s removed", id)
	return nil
}

// Element resolves an element across all documents, for transports
// that address elements without naming the document.
func (r *Registry) Element(documentID, elementID string) (*media.Element, bool) {
	doc, ok := r.Get(documentID)
	if !ok {
		return nil, false
	}
	return doc.Element(elementID)
}
