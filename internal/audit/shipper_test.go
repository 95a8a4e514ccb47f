package audit_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/identity-service/identity-service/internal/audit"
	"github.com/identity-service/identity-service/internal/config"
	"github.com/identity-service/identity-service/internal/db/models"
)

// ---------------------------------------------------------------------------
// FromAuditLog
// ---------------------------------------------------------------------------

func TestFromAuditLog(t *testing.T) {
	ip := "203.0.113.7"
	created := time.Date(2026, 10, 19, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	e := audit.FromAuditLog(&models.AuditLog{
		ID:        42,
		UserID:    7,
		Action:    models.ActionLogin,
		Details:   "User a@b.com logged in",
		IP:        &ip,
		CreatedAt: created,
	}, "req-1")

	if e.ID != 42 || e.UserID != 7 || e.Action != "login" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.IPAddress != ip || e.RequestID != "req-1" {
		t.Errorf("IPAddress/RequestID = %q/%q", e.IPAddress, e.RequestID)
	}
	if !e.Timestamp.Equal(created) || e.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v in UTC", e.Timestamp, created)
	}

	noIP := audit.FromAuditLog(&models.AuditLog{ID: 1, UserID: 1, Action: models.ActionRegister}, "")
	if noIP.IPAddress != "" {
		t.Errorf("IPAddress = %q, want empty", noIP.IPAddress)
	}
}

// ---------------------------------------------------------------------------
// MultiShipper: via NewMultiShipper factory
// ---------------------------------------------------------------------------

func TestNewMultiShipper_Empty(t *testing.T) {
	ms, err := audit.NewMultiShipper(nil, nil)
	if err != nil {
		t.Fatalf("NewMultiShipper(nil) error: %v", err)
	}
	if ms == nil {
		t.Fatal("NewMultiShipper returned nil")
	}
}

func TestMultiShipper_ShipEmpty(t *testing.T) {
	ms, _ := audit.NewMultiShipper(nil, nil)
	if err := ms.Ship(context.Background(), &audit.LogEntry{Action: "test"}); err != nil {
		t.Errorf("Ship() on empty multi-shipper = %v, want nil", err)
	}
}

func TestMultiShipper_CloseEmpty(t *testing.T) {
	ms, _ := audit.NewMultiShipper(nil, nil)
	if err := ms.Close(); err != nil {
		t.Errorf("Close() on empty multi-shipper = %v, want nil", err)
	}
}

func TestNewMultiShipper_DisabledConfigSkipped(t *testing.T) {
	cfgs := []config.AuditShipperConfig{
		{Enabled: false, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: "http://example.com"}},
	}
	ms, err := audit.NewMultiShipper(cfgs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Disabled config → acts as empty multi-shipper
	if err := ms.Ship(context.Background(), &audit.LogEntry{Action: "test"}); err != nil {
		t.Errorf("Ship() = %v, want nil", err)
	}
}

func TestNewMultiShipper_UnknownType(t *testing.T) {
	cfgs := []config.AuditShipperConfig{{Enabled: true, Type: "foobar"}}
	if _, err := audit.NewMultiShipper(cfgs, nil); err == nil {
		t.Error("expected error for unknown shipper type, got nil")
	}
}

func TestNewMultiShipper_WebhookNilConfig(t *testing.T) {
	cfgs := []config.AuditShipperConfig{{Enabled: true, Type: "webhook", Webhook: nil}}
	if _, err := audit.NewMultiShipper(cfgs, nil); err == nil {
		t.Error("expected error for webhook with nil config, got nil")
	}
}

func TestNewMultiShipper_ArchiveWithoutStorage(t *testing.T) {
	cfgs := []config.AuditShipperConfig{{Enabled: true, Type: "archive"}}
	if _, err := audit.NewMultiShipper(cfgs, nil); err == nil {
		t.Error("expected error for archive shipper without storage, got nil")
	}
}

func TestNewMultiShipper_FileNilConfig(t *testing.T) {
	cfgs := []config.AuditShipperConfig{{Enabled: true, Type: "file", File: nil}}
	if _, err := audit.NewMultiShipper(cfgs, nil); err == nil {
		t.Error("expected error for file with nil config, got nil")
	}
}

func TestMultiShipper_ContinuesAfterShipperError(t *testing.T) {
	// First server: returns 500 (causes WebhookShipper to return an error)
	srv1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv1.Close()

	// Second server: records successful delivery
	var srv2Count atomic.Int32
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		srv2Count.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv2.Close()

	cfgs := []config.AuditShipperConfig{
		{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: srv1.URL, TimeoutSecs: 1}},
		{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: srv2.URL, TimeoutSecs: 1}},
	}
	ms, err := audit.NewMultiShipper(cfgs, nil)
	if err != nil {
		t.Fatalf("NewMultiShipper error: %v", err)
	}
	defer ms.Close()

	shipErr := ms.Ship(context.Background(), &audit.LogEntry{Action: "test"})
	if shipErr == nil {
		t.Error("Ship() = nil, want error from first shipper")
	}
	if n := srv2Count.Load(); n != 1 {
		t.Errorf("second shipper received %d calls, want 1", n)
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_ShipEntry(t *testing.T) {
	var received bytes.Buffer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		received.ReadFrom(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:         srv.URL,
		TimeoutSecs: 5,
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper error: %v", err)
	}
	defer ws.Close()

	entry := &audit.LogEntry{ID: 1, Action: "login", UserID: 11, Details: "User a@b.com logged in"}
	if err := ws.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}

	var decoded audit.LogEntry
	if err := json.Unmarshal(received.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if decoded.Action != entry.Action {
		t.Errorf("Action = %q, want %q", decoded.Action, entry.Action)
	}
	if decoded.UserID != entry.UserID {
		t.Errorf("UserID = %d, want %d", decoded.UserID, entry.UserID)
	}
}

func TestWebhookShipper_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{URL: srv.URL, TimeoutSecs: 5})
	defer ws.Close()

	if err := ws.Ship(context.Background(), &audit.LogEntry{Action: "err"}); err == nil {
		t.Error("Ship() = nil, want error for 500 response")
	}
}

func TestWebhookShipper_CustomHeader(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Auth-Token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:         srv.URL,
		TimeoutSecs: 5,
		Headers:     map[string]string{"X-Auth-Token": "secret"},
	})
	defer ws.Close()

	ws.Ship(context.Background(), &audit.LogEntry{Action: "header.test"})
	if gotToken != "secret" {
		t.Errorf("X-Auth-Token = %q, want secret", gotToken)
	}
}

func TestWebhookShipper_Close(t *testing.T) {
	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:         "http://localhost:0",
		TimeoutSecs: 1,
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	// Close should not panic
	if err := ws.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	// Second close should also not panic (closeOnce)
	ws.Close()
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_ShipEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper error: %v", err)
	}

	entry := &audit.LogEntry{ID: 2, Action: "register", UserID: 12, Details: "User c@d.com registered"}
	if err := fs.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	line := bytes.TrimRight(data, "\n")
	var decoded audit.LogEntry
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Action != entry.Action {
		t.Errorf("Action = %q, want %q", decoded.Action, entry.Action)
	}
	if decoded.UserID != entry.UserID {
		t.Errorf("UserID = %d, want %d", decoded.UserID, entry.UserID)
	}
}

func TestFileShipper_MultipleEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multi.log")

	fs, _ := audit.NewFileShipper(&config.AuditFileConfig{Path: path})
	for i := 0; i < 5; i++ {
		fs.Ship(context.Background(), &audit.LogEntry{ID: int64(i), Action: "profile_view"})
	}
	fs.Close()

	data, _ := os.ReadFile(path)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	count := 0
	for scanner.Scan() {
		count++
	}
	if count != 5 {
		t.Errorf("file has %d lines, want 5", count)
	}
}

func TestNewFileShipper_InvalidPath(t *testing.T) {
	// Nonexistent parent directory → OpenFile should fail
	path := filepath.Join(t.TempDir(), "nodir", "audit.log")
	if _, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path}); err == nil {
		t.Error("expected error for path with nonexistent parent, got nil")
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper with batching (covers processBatches + flushBatch)
// ---------------------------------------------------------------------------

func TestWebhookShipper_BatchedShip(t *testing.T) {
	// Use a channel to synchronize: server signals when it receives a request
	done := make(chan struct{}, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:           srv.URL,
		TimeoutSecs:   5,
		BatchSize:     1, // Batch of 1 triggers flush immediately on first entry
		FlushInterval: 60,
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper error: %v", err)
	}
	defer ws.Close()

	// Ship 1 entry: fills the batch immediately (BatchSize=1)
	if err := ws.Ship(context.Background(), &audit.LogEntry{Action: "batch-1"}); err != nil {
		t.Fatalf("Ship(1) error: %v", err)
	}

	// Wait for server to receive the batch (up to 3 seconds)
	select {
	case <-done:
		// success
	case <-time.After(3 * time.Second):
		t.Error("timed out waiting for batch to be sent to server")
	}
}

func TestWebhookShipper_BatchFlushOnInterval(t *testing.T) {
	done := make(chan struct{}, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:           srv.URL,
		TimeoutSecs:   5,
		BatchSize:     100, // Large batch, won't fill by count
		FlushInterval: 1,   // Short flush interval
	})
	defer ws.Close()

	// Ship 1 entry: should be flushed by the interval ticker
	ws.Ship(context.Background(), &audit.LogEntry{Action: "interval-flush"})

	// Wait for server to receive (up to 3 seconds)
	select {
	case <-done:
		// success: interval flush worked
	case <-time.After(5 * time.Second):
		t.Error("timed out waiting for interval flush")
	}
}

func TestWebhookShipper_BatchFlushOnClose(t *testing.T) {
	done := make(chan struct{}, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:           srv.URL,
		TimeoutSecs:   5,
		BatchSize:     100, // Large batch, won't fill by count
		FlushInterval: 60,  // Long interval, won't fire in test
	})

	// Ship 1 entry and wait for goroutine to add it to the batch
	ws.Ship(context.Background(), &audit.LogEntry{Action: "flush-on-close"})
	// Give goroutine time to pick up entry from batchCh and add to batch slice
	time.Sleep(50 * time.Millisecond)

	// Close triggers batch flush of remaining entries
	ws.Close()

	// Wait for server to receive (up to 3 seconds)
	select {
	case <-done:
		// success: close flushed the batch
	case <-time.After(3 * time.Second):
		t.Error("timed out waiting for close-triggered flush")
	}
}

func TestWebhookShipper_AcceptedEntriesSurviveConcurrentClose(t *testing.T) {
	var received atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []audit.LogEntry
		if err := json.NewDecoder(r.Body).Decode(&batch); err == nil {
			received.Add(int64(len(batch)))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	for round := 0; round < 20; round++ {
		received.Store(0)
		ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{
			URL:           srv.URL,
			TimeoutSecs:   5,
			BatchSize:     50,
			FlushInterval: 60,
		})
		if err != nil {
			t.Fatalf("NewWebhookShipper() error: %v", err)
		}

		var accepted atomic.Int64
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					if ws.Ship(context.Background(), &audit.LogEntry{Action: "login"}) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		_ = ws.Close()
		wg.Wait()

		if got, want := received.Load(), accepted.Load(); got != want {
			t.Fatalf("round %d: webhook received %d entries, Ship accepted %d", round, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// FileShipper rotation (covers rotate function)
// ---------------------------------------------------------------------------

func TestFileShipper_Rotate(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.log")

	// Pre-fill file to just over 1MB to trigger rotation on next Ship call
	data := make([]byte, 1*1024*1024+1)
	if err := os.WriteFile(logPath, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs, err := audit.NewFileShipper(&config.AuditFileConfig{
		Path:       logPath,
		MaxSizeMB:  1,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	// This Ship call should trigger rotation because the file is > 1MB
	if err := fs.Ship(context.Background(), &audit.LogEntry{Action: "after-rotate"}); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}

	// Original file should exist (new file after rotation)
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("log file missing after rotation: %v", err)
	}
	// Backup .1 should exist
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("backup .1 missing after rotation: %v", err)
	}
}
