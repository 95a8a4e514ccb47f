package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/identity-service/identity-service/internal/config"
	"github.com/identity-service/identity-service/internal/safego"
	"github.com/identity-service/identity-service/internal/telemetry"
)

const (
	defaultWebhookTimeout       = 10 * time.Second
	defaultWebhookFlushInterval = 5 * time.Second
	webhookQueueSize            = 1000
)

// WebhookShipper ships audit logs to an HTTP endpoint. With a batch size set,
// entries are queued and POSTed as a JSON array; otherwise each entry is
// POSTed on its own.
type WebhookShipper struct {
	url           string
	headers       map[string]string
	timeout       time.Duration
	batchSize     int
	flushInterval time.Duration

	client  *http.Client
	batchCh chan *LogEntry
	batch   []*LogEntry
	closeCh chan struct{}
	done    chan struct{}

	// mu orders enqueues against Close so nothing lands in batchCh after the
	// batcher's final drain
	mu     sync.Mutex
	closed bool
}

// NewWebhookShipper creates a new webhook shipper
func NewWebhookShipper(cfg *config.AuditWebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	flushInterval := time.Duration(cfg.FlushInterval) * time.Second
	if flushInterval <= 0 {
		flushInterval = defaultWebhookFlushInterval
	}

	ws := &WebhookShipper{
		url:           cfg.URL,
		headers:       cfg.Headers,
		timeout:       timeout,
		batchSize:     cfg.BatchSize,
		flushInterval: flushInterval,
		client:        &http.Client{Timeout: timeout},
		batchCh:       make(chan *LogEntry, webhookQueueSize),
		closeCh:       make(chan struct{}),
		done:          make(chan struct{}),
	}

	if ws.batchSize > 0 {
		safego.Go("audit-webhook-batcher", ws.processBatches)
	} else {
		close(ws.done)
	}

	return ws, nil
}

// Name implements Shipper
func (ws *WebhookShipper) Name() string { return "webhook" }

func (ws *WebhookShipper) processBatches() {
	defer close(ws.done)

	ticker := time.NewTicker(ws.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-ws.batchCh:
			ws.batch = append(ws.batch, entry)
			if len(ws.batch) >= ws.batchSize {
				ws.flushBatch()
			}
		case <-ticker.C:
			ws.flushBatch()
		case <-ws.closeCh:
			for {
				select {
				case entry := <-ws.batchCh:
					ws.batch = append(ws.batch, entry)
				default:
					ws.flushBatch()
					return
				}
			}
		}
	}
}

// flushBatch sends the current batch. Only the batcher goroutine touches it.
func (ws *WebhookShipper) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}
	defer func() { ws.batch = ws.batch[:0] }()

	data, err := json.Marshal(ws.batch)
	if err != nil {
		slog.Error("failed to marshal audit batch", "shipper", ws.Name(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.timeout)
	defer cancel()

	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues(ws.Name()).Inc()
		slog.Warn("failed to send audit batch",
			"shipper", ws.Name(),
			"entries", len(ws.batch),
			"error", err)
	}
}

// Ship sends an entry to the webhook
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.batchSize > 0 {
		ws.mu.Lock()
		if ws.closed {
			ws.mu.Unlock()
			return fmt.Errorf("webhook shipper is closed")
		}
		select {
		case ws.batchCh <- entry:
			ws.mu.Unlock()
			return nil
		default:
			// queue full, send directly
		}
		ws.mu.Unlock()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	return ws.sendRequest(ctx, data)
}

func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Close stops the batcher and waits for the final flush
func (ws *WebhookShipper) Close() error {
	ws.mu.Lock()
	if !ws.closed {
		ws.closed = true
		close(ws.closeCh)
	}
	ws.mu.Unlock()
	<-ws.done
	return nil
}
