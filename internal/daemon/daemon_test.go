package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"courier/internal/api"
	"courier/internal/bus"
	"courier/internal/chat"
	"courier/internal/config"
	"courier/internal/status"
	"courier/internal/store"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	cfg.ListenAddr = "127.0.0.1:0"
	tmp := t.TempDir()
	cfg.DataDir = filepath.Join(tmp, "data")
	cfg.LogPath = filepath.Join(tmp, "courierd.log")
	return cfg
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := memoryConfig(t)

	// Setup components the way the fx module does.
	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	exec := store.NewMemExec()
	alloc := store.NewAllocator(exec)
	svc := chat.NewService(store.NewConversationIndex(exec, alloc), store.NewMessageLog(exec, alloc), b)
	handlers := api.NewHandlers(svc, machine, logger)

	srv, err := NewServer(cfg, handlers, logger)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	if err := machine.Transition(status.Ready); err != nil {
		t.Fatal(err)
	}

	base := "http://" + srv.Addr()
	waitForServer(t, base)

	// Send a message through the live server.
	resp, err := http.Post(base+"/api/messages", "application/json",
		strings.NewReader(`{"sender_id": 1, "receiver_id": 2, "content": "hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	var msg struct {
		ID             int64 `json:"id"`
		ConversationID int64 `json:"conversation_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/messages = %d", resp.StatusCode)
	}
	if msg.ID == 0 || msg.ConversationID == 0 {
		t.Fatalf("ids not assigned: %+v", msg)
	}

	// The conversation is now readable.
	resp, err = http.Get(fmt.Sprintf("%s/api/conversations/%d", base, msg.ConversationID))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET conversation = %d, want 200", resp.StatusCode)
	}

	// Health endpoint reflects the state machine.
	resp, err = http.Get(base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", resp.StatusCode)
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves and the app
// starts and stops cleanly on the in-memory backend.
func TestFxModuleWiring(t *testing.T) {
	cfg := memoryConfig(t)

	app := fx.New(Module(cfg), fx.NopLogger)
	if err := app.Err(); err != nil {
		t.Fatalf("fx graph error: %v", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("app.Stop() error = %v", err)
	}
}

func waitForServer(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never came up", base)
}
