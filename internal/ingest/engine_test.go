package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/conversation"
	"github.com/dmelo/convd/internal/store"
)

func testEngine(t *testing.T) (*Engine, *conversation.Index, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	index := conversation.NewIndex(db, b, zap.NewNop())
	engine := NewEngine(index, b, zap.NewNop())
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)
	return engine, index, db, b
}

// waitFor polls until the condition holds or the deadline expires.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", desc)
}

func listCount(t *testing.T, index *conversation.Index) int {
	t.Helper()
	entries, err := index.GetAll(false, nil)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestMessageAddedRefreshesIndex(t *testing.T) {
	_, index, db, b := testEngine(t)

	if err := db.UpsertContact(&store.Contact{Identity: "AAAAAAAA", State: store.StateActive}); err != nil {
		t.Fatal(err)
	}
	m := &store.Message{
		Kind: store.KindContact, Identity: "AAAAAAAA",
		Body: "hi", Type: store.MessageTypeText,
		IsSaved: true, IsDownloaded: true, CreatedAt: 1000,
	}
	if _, err := db.InsertMessage(m); err != nil {
		t.Fatal(err)
	}
	if err := db.SetContactLastUpdate("AAAAAAAA", 1000); err != nil {
		t.Fatal(err)
	}

	b.Emit(bus.KindMessageAdded, m)

	waitFor(t, "conversation to appear", func() bool {
		return listCount(t, index) == 1
	})
}

func TestReceiverRemovedDropsConversation(t *testing.T) {
	_, index, db, b := testEngine(t)

	lastUpdate := int64(1000)
	if err := db.UpsertContact(&store.Contact{Identity: "AAAAAAAA", State: store.StateActive, LastUpdate: &lastUpdate}); err != nil {
		t.Fatal(err)
	}
	if listCount(t, index) != 1 {
		t.Fatal("precondition: conversation should be cached")
	}

	b.Emit(bus.KindReceiverRemoved, bus.ReceiverRef{Kind: string(store.KindContact), Identifier: "AAAAAAAA"})

	waitFor(t, "conversation to disappear", func() bool {
		return listCount(t, index) == 0
	})
}

func TestTagsUpdatedResorts(t *testing.T) {
	_, index, db, b := testEngine(t)

	old := int64(1000)
	recent := int64(2000)
	if err := db.UpsertContact(&store.Contact{Identity: "OLD00000", State: store.StateActive, LastUpdate: &old}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertContact(&store.Contact{Identity: "NEW00000", State: store.StateActive, LastUpdate: &recent}); err != nil {
		t.Fatal(err)
	}
	if listCount(t, index) != 2 {
		t.Fatal("precondition: two conversations")
	}

	if err := db.AddTag("contact-OLD00000", store.TagPinned); err != nil {
		t.Fatal(err)
	}
	b.Emit(bus.KindTagsUpdated, bus.ReceiverRef{Kind: string(store.KindContact), Identifier: "OLD00000"})

	waitFor(t, "pinned conversation to sort first", func() bool {
		entries, err := index.GetAll(false, nil)
		if err != nil {
			t.Fatal(err)
		}
		return len(entries) == 2 && entries[0].Identifier() == "OLD00000" && entries[0].IsPinTagged
	})
}
