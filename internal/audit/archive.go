package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/identity-service/identity-service/internal/config"
	"github.com/identity-service/identity-service/internal/safego"
	"github.com/identity-service/identity-service/internal/storage"
	"github.com/identity-service/identity-service/internal/telemetry"
	"github.com/identity-service/identity-service/pkg/checksum"
)

const (
	defaultArchivePrefix        = "audit"
	defaultArchiveBatchSize     = 500
	defaultArchiveFlushInterval = 60 * time.Second
	archiveWriteTimeout         = 30 * time.Second
	archiveContentType          = "application/x-ndjson"

	// archiveBufferBatches bounds the buffer to this many batches while
	// storage is failing; older entries are dropped first
	archiveBufferBatches = 10
)

// ArchiveShipper buffers entries and writes them to object storage as
// newline-delimited JSON batches under <prefix>/YYYY/MM/DD/. A batch is
// written when it reaches the batch size, on every flush interval, and on
// Close.
//
// After a failed write, Ship stops writing and leaves retries to the flush
// interval. The buffer holds at most archiveBufferBatches batches; beyond
// that the oldest entries are dropped and counted in
// audit_ship_failures_total.
type ArchiveShipper struct {
	store         storage.Storage
	prefix        string
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	verify        bool
	now           func() time.Time

	mu        sync.Mutex
	buf       []*LogEntry
	failing   bool
	dropping  bool
	closeCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewArchiveShipper creates an archive shipper and starts its flush loop
func NewArchiveShipper(cfg *config.AuditArchiveConfig, store storage.Storage) *ArchiveShipper {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultArchiveBatchSize
	}
	flushInterval := time.Duration(cfg.FlushInterval) * time.Second
	if flushInterval <= 0 {
		flushInterval = defaultArchiveFlushInterval
	}

	as := &ArchiveShipper{
		store:         store,
		prefix:        prefix,
		batchSize:     batchSize,
		maxBuffered:   batchSize * archiveBufferBatches,
		flushInterval: flushInterval,
		verify:        cfg.VerifyWrites,
		now:           time.Now,
		closeCh:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	safego.Go("audit-archive-flusher", as.loop)
	return as
}

// Name implements Shipper
func (as *ArchiveShipper) Name() string { return "archive" }

func (as *ArchiveShipper) loop() {
	defer close(as.done)

	ticker := time.NewTicker(as.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			as.flushLogged(context.Background())
		case <-as.closeCh:
			as.flushLogged(context.Background())
			return
		}
	}
}

// Ship buffers entry and writes the batch once it is full. While storage is
// failing it only buffers.
func (as *ArchiveShipper) Ship(ctx context.Context, entry *LogEntry) error {
	as.mu.Lock()
	select {
	case <-as.closeCh:
		as.mu.Unlock()
		return fmt.Errorf("archive shipper is closed")
	default:
	}
	as.buf = append(as.buf, entry)
	as.trimLocked()
	full := len(as.buf) >= as.batchSize && !as.failing
	as.mu.Unlock()

	if full {
		return as.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered entries as one object. On failure the entries are
// put back at the front of the buffer for the next attempt.
func (as *ArchiveShipper) Flush(ctx context.Context) error {
	as.mu.Lock()
	batch := as.buf
	as.buf = nil
	as.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := as.write(ctx, batch); err != nil {
		as.mu.Lock()
		as.buf = append(batch, as.buf...)
		as.failing = true
		as.trimLocked()
		as.mu.Unlock()
		return err
	}

	as.mu.Lock()
	as.failing = false
	as.dropping = false
	as.mu.Unlock()
	return nil
}

// trimLocked drops the oldest entries beyond maxBuffered. Callers hold as.mu.
func (as *ArchiveShipper) trimLocked() {
	excess := len(as.buf) - as.maxBuffered
	if excess <= 0 {
		return
	}

	if !as.dropping {
		slog.Error("audit archive buffer full, dropping oldest entries",
			"shipper", as.Name(),
			"max_buffered", as.maxBuffered,
			"oldest_dropped_id", as.buf[0].ID)
		as.dropping = true
	}
	telemetry.AuditShipFailuresTotal.WithLabelValues(as.Name()).Add(float64(excess))

	kept := make([]*LogEntry, as.maxBuffered)
	copy(kept, as.buf[excess:])
	as.buf = kept
}

func (as *ArchiveShipper) flushLogged(ctx context.Context) {
	if err := as.Flush(ctx); err != nil {
		telemetry.AuditShipFailuresTotal.WithLabelValues(as.Name()).Inc()
		slog.Warn("failed to archive audit batch", "shipper", as.Name(), "error", err)
	}
}

func (as *ArchiveShipper) write(ctx context.Context, batch []*LogEntry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode audit entry %d: %w", e.ID, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, archiveWriteTimeout)
	defer cancel()

	key := as.objectKey(as.now().UTC())
	res, err := as.store.Put(ctx, key, buf.Bytes(), archiveContentType)
	if err != nil {
		return fmt.Errorf("failed to write audit archive %s: %w", key, err)
	}

	if as.verify {
		if err := as.verifyObject(ctx, res); err != nil {
			return err
		}
	}

	slog.Info("archived audit batch",
		"path", res.Path,
		"entries", len(batch),
		"size", res.Size,
		"sha256", res.Checksum)
	return nil
}

// verifyObject reads a written object back and checks it against the digest
// reported by Put
func (as *ArchiveShipper) verifyObject(ctx context.Context, res *storage.PutResult) error {
	rc, err := as.store.Get(ctx, res.Path)
	if err != nil {
		return fmt.Errorf("failed to read back audit archive %s: %w", res.Path, err)
	}
	defer rc.Close()

	ok, err := checksum.VerifySHA256(rc, res.Checksum)
	if err != nil {
		return fmt.Errorf("failed to verify audit archive %s: %w", res.Path, err)
	}
	if !ok {
		return fmt.Errorf("audit archive %s does not match sha256 %s", res.Path, res.Checksum)
	}
	return nil
}

func (as *ArchiveShipper) objectKey(t time.Time) string {
	name := fmt.Sprintf("%s-%s.ndjson", t.Format("20060102T150405Z"), uuid.NewString())
	return path.Join(as.prefix, t.Format("2006/01/02"), name)
}

// Close stops the flush loop after a final flush
func (as *ArchiveShipper) Close() error {
	as.closeOnce.Do(func() {
		as.mu.Lock()
		close(as.closeCh)
		as.mu.Unlock()
	})
	<-as.done
	return nil
}
