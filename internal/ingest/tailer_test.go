package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lslunis/ergometer/internal/cache"
	"github.com/lslunis/ergometer/internal/events"
)

func writeLog(t *testing.T, recs ...events.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.log")
	var data []byte
	for _, r := range recs {
		data = append(data, r.Encode()...)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTailerYieldsOneBatchForExistingRecords(t *testing.T) {
	path := writeLog(t,
		events.Record{Kind: events.Action, Value: 1, Time: 100},
		events.Record{Kind: events.Action, Value: 1, Time: 101},
	)

	tailer := New(Config{
		Host:               "h1",
		Path:               path,
		PollInterval:       5 * time.Millisecond,
		RateLimitPerSecond: 100,
		RateLimitBurst:     10,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	batches := make(chan cache.Batch, 4)
	errc := make(chan error, 1)
	go func() { errc <- tailer.Run(ctx, 0, batches) }()

	select {
	case b := <-batches:
		if b.Host != "h1" || b.Position != 0 {
			t.Errorf("batch = %+v, want host h1 at position 0", b)
		}
		if len(b.Bytes) != 2*events.RecordSize {
			t.Errorf("len(Bytes) = %d, want %d", len(b.Bytes), 2*events.RecordSize)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a batch")
	}

	cancel()
	<-errc
}

func TestTailerResumesFromGivenPosition(t *testing.T) {
	path := writeLog(t,
		events.Record{Kind: events.Action, Value: 1, Time: 100},
		events.Record{Kind: events.Action, Value: 1, Time: 101},
	)

	tailer := New(Config{
		Host:               "h1",
		Path:               path,
		PollInterval:       5 * time.Millisecond,
		RateLimitPerSecond: 100,
		RateLimitBurst:     10,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	batches := make(chan cache.Batch, 4)
	errc := make(chan error, 1)
	go func() { errc <- tailer.Run(ctx, events.RecordSize, batches) }()

	select {
	case b := <-batches:
		if b.Position != events.RecordSize {
			t.Errorf("Position = %d, want %d", b.Position, events.RecordSize)
		}
		if len(b.Bytes) != events.RecordSize {
			t.Errorf("len(Bytes) = %d, want %d (only the second record)", len(b.Bytes), events.RecordSize)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a batch")
	}

	cancel()
	<-errc
}
