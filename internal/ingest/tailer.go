// Package ingest implements a local event-log file tailer for a single
// host, used by `ergometer serve` in place of the out-of-scope websocket
// broker. It polls a growing append-only file, throttled by a token
// bucket, and yields whole-record batches at the offsets it has already
// read.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/lslunis/ergometer/internal/cache"
	"github.com/lslunis/ergometer/internal/events"
)

// Config configures one Tailer.
type Config struct {
	// Host identifies this log in the Host-Position Register.
	Host string
	// Path is the event log file to tail.
	Path string
	// PollInterval is how often to check the file for growth. Each
	// check reads at most one chunk, whether or not the previous check
	// found data.
	PollInterval time.Duration
	// RateLimitPerSecond and RateLimitBurst bound how many batches per
	// second the tailer forwards, so a burst of writes to the log
	// cannot flood the Cache Controller faster than it processes.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Tailer watches one host's local event log and emits decoded batches
// at ascending byte offsets, matching the subscribe contract of §6:
// position equals the byte offset in the host's log at which Bytes
// begins, and len(Bytes) is always a multiple of events.RecordSize.
type Tailer struct {
	cfg     Config
	log     *slog.Logger
	limiter *rate.Limiter
}

// New creates a Tailer. A nil logger is replaced with slog.Default().
func New(cfg Config, log *slog.Logger) *Tailer {
	if log == nil {
		log = slog.Default()
	}
	return &Tailer{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst),
	}
}

// Run opens cfg.Path at position (resuming where the Host-Position
// Register last left off) and sends a cache.Batch on batches every time
// it observes unread, record-aligned bytes, until ctx is cancelled. It
// never closes batches; the caller owns that channel's lifetime.
func (t *Tailer) Run(ctx context.Context, position int64, batches chan<- cache.Batch) error {
	f, err := os.Open(t.cfg.Path)
	if err != nil {
		return fmt.Errorf("ingest: opening %s: %w", t.cfg.Path, err)
	}
	defer f.Close()

	if _, err := f.Seek(position, io.SeekStart); err != nil {
		return fmt.Errorf("ingest: seeking %s to %d: %w", t.cfg.Path, position, err)
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := t.readAligned(f)
			if err != nil {
				return err
			}
			if n == nil {
				continue
			}
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
			batch := cache.Batch{Host: t.cfg.Host, Position: position, Bytes: n}
			select {
			case batches <- batch:
				position += int64(len(n))
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// readAligned reads whatever is available past the current offset,
// truncated to a whole number of records: a writer that is mid-append
// leaves a partial trailing record, which is picked up on the next
// poll. Returns nil, nil if nothing new is available.
func (t *Tailer) readAligned(f *os.File) ([]byte, error) {
	buf := make([]byte, 64*events.RecordSize)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ingest: reading %s: %w", t.cfg.Path, err)
	}
	if n == 0 {
		return nil, nil
	}
	aligned := n - (n % events.RecordSize)
	if aligned == 0 {
		// Partial record: rewind so the next read starts at its
		// beginning instead of skipping the unread tail.
		if _, seekErr := f.Seek(int64(-n), io.SeekCurrent); seekErr != nil {
			return nil, fmt.Errorf("ingest: rewinding partial record in %s: %w", t.cfg.Path, seekErr)
		}
		return nil, nil
	}
	if aligned < n {
		if _, seekErr := f.Seek(int64(aligned-n), io.SeekCurrent); seekErr != nil {
			return nil, fmt.Errorf("ingest: rewinding trailing partial record in %s: %w", t.cfg.Path, seekErr)
		}
	}
	t.log.Debug("ingest: read batch", "host", t.cfg.Host, "bytes", aligned)
	return buf[:aligned], nil
}
