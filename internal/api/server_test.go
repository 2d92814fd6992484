package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/conversation"
	"github.com/dmelo/convd/internal/ingest"
	"github.com/dmelo/convd/internal/status"
	"github.com/dmelo/convd/internal/store"
)

func testServer(t *testing.T) *httptest.Server {
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
	machine := status.NewMachine(b)
	index := conversation.NewIndex(db, b, zap.NewNop())
	engine := ingest.NewEngine(index, b, zap.NewNop())
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	srv := NewServer(db, index, b, machine, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeEntries(t *testing.T, resp *http.Response) []entryJSON {
	t.Helper()
	var payload struct {
		Data []entryJSON `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	return payload.Data
}

// listEventually polls the conversation list until the expected count
// shows up; mutations propagate through the bus asynchronously.
func listEventually(t *testing.T, ts *httptest.Server, path string, want int) []entryJSON {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var entries []entryJSON
	for time.Now().Before(deadline) {
		resp := doJSON(t, ts, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
		entries = decodeEntries(t, resp)
		if len(entries) == want {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("GET %s: got %d entries, want %d", path, len(entries), want)
	return nil
}

func TestStatusEndpoint(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, ts, http.MethodGet, "/v1/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		State            string `json:"state"`
		HasConversations bool   `json:"has_conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.State != string(status.Booting) {
		t.Errorf("state = %q, want BOOTING", payload.State)
	}
	if payload.HasConversations {
		t.Error("expected no conversations on fresh store")
	}
}

func TestMessageFlowSurfacesConversation(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, ts, http.MethodPut, "/v1/contacts/AAAAAAAA", map[string]any{"name": "Alice"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("upsert contact status = %d", resp.StatusCode)
	}

	// Contact without lastUpdate has no conversation yet.
	entries := listEventually(t, ts, "/v1/conversations", 0)
	_ = entries

	resp = doJSON(t, ts, http.MethodPost, "/v1/messages", map[string]any{
		"kind":     "contact",
		"identity": "AAAAAAAA",
		"body":     "hello",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add message status = %d", resp.StatusCode)
	}

	entries = listEventually(t, ts, "/v1/conversations", 1)
	e := entries[0]
	if e.Kind != "contact" || e.Identifier != "AAAAAAAA" {
		t.Errorf("entry = %+v", e)
	}
	if e.MessageCount != 1 {
		t.Errorf("messageCount = %d, want 1", e.MessageCount)
	}
	if e.UnreadCount != 1 {
		t.Errorf("unreadCount = %d, want 1", e.UnreadCount)
	}
	if e.DisplayName != "Alice" {
		t.Errorf("displayName = %q, want Alice", e.DisplayName)
	}
	if e.LatestMessage == nil || e.LatestMessage.Body != "hello" {
		t.Error("latest message missing")
	}
}

func TestArchiveEndpoints(t *testing.T) {
	ts := testServer(t)

	doJSON(t, ts, http.MethodPut, "/v1/contacts/AAAAAAAA", map[string]any{"last_update": 1000})
	listEventually(t, ts, "/v1/conversations", 1)

	resp := doJSON(t, ts, http.MethodPost, "/v1/conversations/contact/AAAAAAAA/archive", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("archive status = %d", resp.StatusCode)
	}
	listEventually(t, ts, "/v1/conversations", 0)
	listEventually(t, ts, "/v1/conversations/archived", 1)

	resp = doJSON(t, ts, http.MethodPost, "/v1/conversations/contact/AAAAAAAA/unarchive", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unarchive status = %d", resp.StatusCode)
	}
	listEventually(t, ts, "/v1/conversations", 1)
}

func TestPrivateCategoryEndpoints(t *testing.T) {
	ts := testServer(t)

	doJSON(t, ts, http.MethodPut, "/v1/contacts/AAAAAAAA", map[string]any{"last_update": 1000})
	doJSON(t, ts, http.MethodPut, "/v1/contacts/BBBBBBBB", map[string]any{"last_update": 2000})
	listEventually(t, ts, "/v1/conversations", 2)

	resp := doJSON(t, ts, http.MethodPost, "/v1/conversations/contact/AAAAAAAA/private", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("private status = %d", resp.StatusCode)
	}

	entries := listEventually(t, ts, "/v1/conversations?no_hidden=true", 1)
	if entries[0].Identifier != "BBBBBBBB" {
		t.Errorf("remaining conversation = %s, want BBBBBBBB", entries[0].Identifier)
	}
	listEventually(t, ts, "/v1/conversations", 2)

	resp = doJSON(t, ts, http.MethodDelete, "/v1/conversations/contact/AAAAAAAA/private", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unprivate status = %d", resp.StatusCode)
	}
	listEventually(t, ts, "/v1/conversations?no_hidden=true", 2)
}

func TestPinEndpointsResort(t *testing.T) {
	ts := testServer(t)

	doJSON(t, ts, http.MethodPut, "/v1/contacts/OLD00000", map[string]any{"last_update": 1000})
	doJSON(t, ts, http.MethodPut, "/v1/contacts/NEW00000", map[string]any{"last_update": 2000})
	listEventually(t, ts, "/v1/conversations", 2)

	resp := doJSON(t, ts, http.MethodPost, "/v1/conversations/contact/OLD00000/pin", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("pin status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := listEventually(t, ts, "/v1/conversations", 2)
		if entries[0].Identifier == "OLD00000" && entries[0].IsPinned {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pinned conversation never sorted first")
}

func TestUnknownKindRejected(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/v1/conversations/channel/1/archive", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteMessageEndpoint(t *testing.T) {
	ts := testServer(t)

	doJSON(t, ts, http.MethodPut, "/v1/contacts/AAAAAAAA", map[string]any{})
	resp := doJSON(t, ts, http.MethodPost, "/v1/messages", map[string]any{
		"kind":     "contact",
		"identity": "AAAAAAAA",
		"body":     "bye",
	})
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	listEventually(t, ts, "/v1/conversations", 1)

	resp = doJSON(t, ts, http.MethodDelete, "/v1/messages/contact/"+formatID(created.ID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete message status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := listEventually(t, ts, "/v1/conversations", 1)
		if entries[0].MessageCount == 0 && entries[0].LatestMessage == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("conversation never reflected the deleted message")
}

func TestDeleteMissingMessage(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, ts, http.MethodDelete, "/v1/messages/contact/999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
