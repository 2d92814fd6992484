package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmelo/convd/internal/api"
	"github.com/dmelo/convd/internal/bus"
	"github.com/dmelo/convd/internal/config"
	"github.com/dmelo/convd/internal/conversation"
	"github.com/dmelo/convd/internal/ingest"
	"github.com/dmelo/convd/internal/lock"
	"github.com/dmelo/convd/internal/status"
	"github.com/dmelo/convd/internal/store"
)

func TestDaemonLifecycle(t *testing.T) {
	cfg := &config.Config{
		Listen:   "127.0.0.1:0",
		DataDir:  t.TempDir(),
		LogLevel: "info",
	}

	lk, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	index := conversation.NewIndex(db, b, logger)
	engine := ingest.NewEngine(index, b, logger)
	engine.Start(context.Background())
	defer engine.Stop()

	apiServer := api.NewServer(db, index, b, machine, logger)
	srv, err := NewServer(cfg, apiServer, logger)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	}()

	base := "http://" + srv.Addr()
	client := &http.Client{Timeout: 5 * time.Second}

	// Seed a conversation directly through the store, then warm the
	// cache the way the lifecycle hook does.
	lastUpdate := int64(1000)
	if err := db.UpsertContact(&store.Contact{Identity: "AAAAAAAA", Name: "Alice", State: store.StateActive, LastUpdate: &lastUpdate}); err != nil {
		t.Fatal(err)
	}
	_ = machine.Transition(status.Loading)
	if _, err := index.GetAll(false, nil); err != nil {
		t.Fatal(err)
	}
	_ = machine.Transition(status.Ready)

	resp, err := client.Get(base + "/v1/status")
	if err != nil {
		t.Fatalf("GET /v1/status error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var statusPayload struct {
		State            string `json:"state"`
		HasConversations bool   `json:"has_conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&statusPayload); err != nil {
		t.Fatal(err)
	}
	if statusPayload.State != string(status.Ready) {
		t.Errorf("state = %q, want READY", statusPayload.State)
	}
	if !statusPayload.HasConversations {
		t.Error("expected has_conversations = true")
	}

	resp, err = client.Get(base + "/v1/conversations")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var listPayload struct {
		Data []struct {
			UID         string `json:"uid"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listPayload); err != nil {
		t.Fatal(err)
	}
	if len(listPayload.Data) != 1 {
		t.Fatalf("conversation count = %d, want 1", len(listPayload.Data))
	}
	if listPayload.Data[0].DisplayName != "Alice" {
		t.Errorf("displayName = %q, want Alice", listPayload.Data[0].DisplayName)
	}
}

func TestServerRejectsBusyAddress(t *testing.T) {
	cfg := &config.Config{Listen: "127.0.0.1:0", DataDir: t.TempDir()}
	logger := zap.NewNop()

	b := bus.New()
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	index := conversation.NewIndex(db, b, logger)
	apiServer := api.NewServer(db, index, b, status.NewMachine(b), logger)

	first, err := NewServer(cfg, apiServer, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		first.Stop(ctx)
	}()

	// Binding the same resolved address again must fail.
	busyCfg := &config.Config{Listen: first.Addr(), DataDir: cfg.DataDir}
	if _, err := NewServer(busyCfg, apiServer, logger); err == nil {
		t.Error("expected error binding an address already in use")
	}
}
