package events

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storyview-server-go/internal/platform/storage"
)

func TestSyncPublishSubscribe(t *testing.T) {
	bus := New()

	var got ElementEvent
	err := bus.Subscribe(TopicElementLoaded, func(ev ElementEvent) {
		got = ev
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	bus.Publish(TopicElementLoaded, ElementEvent{ElementID: "el-1", URL: "a.jpg", Seq: 3})

	if got.ElementID != "el-1" || got.URL != "a.jpg" || got.Seq != 3 {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestAsyncBusDeliversAndFlushes(t *testing.T) {
	ab := NewAsyncBus(2)
	ab.Start()
	defer ab.Stop()

	var count atomic.Int64
	if err := ab.Subscribe(TopicDevLog, func(ev DevLogEvent) {
		count.Add(1)
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		if ok := ab.Publish(TopicDevLog, DevLogEvent{Level: "INFO", Message: "x"}); !ok {
			t.Fatalf("publish %d dropped unexpectedly", i)
		}
	}
	ab.Flush()

	if count.Load() != 20 {
		t.Fatalf("expected 20 deliveries, got %d", count.Load())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()

	calls := 0
	handler := func(ev ElementEvent) { calls++ }
	if err := bus.Subscribe(TopicElementFallback, handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	bus.Publish(TopicElementFallback, ElementEvent{ElementID: "el-1"})
	if err := bus.Unsubscribe(TopicElementFallback, handler); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	bus.Publish(TopicElementFallback, ElementEvent{ElementID: "el-1"})

	if calls != 1 {
		t.Fatalf("expected exactly one delivery, got %d", calls)
	}
}

func openJournalDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&storage.RuntimeEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestJournalRecordsBusEvents(t *testing.T) {
	db := openJournalDB(t)
	bus := New()

	journal := NewJournal(db)
	if err := journal.Attach(bus); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	bus.Publish(TopicElementSelected, ElementEvent{DocumentID: "doc-1", ElementID: "el-1", URL: "a.jpg"})
	bus.Publish(TopicElementLoaded, ElementEvent{DocumentID: "doc-1", ElementID: "el-1", URL: "a.jpg"})
	bus.Publish(TopicElementLoaded, ElementEvent{DocumentID: "doc-2", ElementID: "el-9", URL: "b.jpg"})

	rows, err := journal.ByDocument(context.Background(), "doc-1", 0)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 journal rows for doc-1, got %d", len(rows))
	}
	if rows[0].Topic != TopicElementSelected || rows[1].Topic != TopicElementLoaded {
		t.Fatalf("unexpected topics: %s, %s", rows[0].Topic, rows[1].Topic)
	}
}
