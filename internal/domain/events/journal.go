package events

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/storage"
)

// Journal persists element lifecycle events so the dev console can
// replay what happened to a document after the fact.
type Journal struct {
	db *gorm.DB
}

// NewJournal builds a journal over the given database.
func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// Attach subscribes the journal to the element lifecycle topics on bus.
func (j *Journal) Attach(bus evBusLike) error {
	for _, topic := range []string{
		TopicElementBuilt,
		TopicElementSelected,
		TopicElementLoaded,
		TopicElementFallback,
	} {
		t := topic
		if err := bus.Subscribe(t, func(ev ElementEvent) {
			_ = j.Record(context.Background(), t, ev)
		}); err != nil {
			return err
		}
	}
	return nil
}

// evBusLike is the slice of the bus API the journal needs, so it
// attaches to either the sync or the async bus.
type evBusLike interface {
	Subscribe(topic string, fn interface{}) error
}

// Record writes one event row. Payload encoding failures are storage
// errors; the caller decides whether they matter.
func (j *Journal) Record(ctx context.Context, topic string, ev ElementEvent) error {
	if j == nil || j.db == nil {
		return nil
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "events.journal", "failed to encode event", err)
	}
	row := &storage.RuntimeEvent{
		Topic:     topic,
		SessionID: ev.DocumentID,
		ElementID: ev.ElementID,
		Data:      data,
		CreatedAt: time.Now(),
	}
	if err := j.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "events.journal", "failed to store event", err)
	}
	return nil
}

// ByDocument returns the journal for one document, oldest first.
func (j *Journal) ByDocument(ctx context.Context, documentID string, limit int) ([]storage.RuntimeEvent, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	var rows []storage.RuntimeEvent
	q := j.db.WithContext(ctx).
		Where("session_id = ?", documentID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "events.journal", "failed to read journal", err)
	}
	return rows, nil
}
