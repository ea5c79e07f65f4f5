package metrics_test

import (
	"context"
	"testing"

	"github.com/lslunis/ergometer/internal/activity"
	"github.com/lslunis/ergometer/internal/edge"
	"github.com/lslunis/ergometer/internal/metrics"
	"github.com/lslunis/ergometer/internal/store"
)

func openTestTx(t *testing.T) (*store.Store, *store.Tx) {
	t.Helper()
	st, err := store.Open(context.Background(), "file::memory:?cache=shared", store.Defaults)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	tx, err := st.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(func() {
		tx.Rollback()
		st.Close()
	})
	return st, tx
}

func TestActivityTotalWindowClipping(t *testing.T) {
	_, tx := openTestTx(t)
	ctx := context.Background()
	u := activity.NewUpdater(tx)

	for start := int64(100); start < 110; start++ {
		if _, err := u.Update(ctx, start, 1); err != nil {
			t.Fatalf("Update(%d): %v", start, err)
		}
	}
	// activity now spans [100, 110)

	got, err := metrics.ActivityTotal(ctx, tx, 0, 1000)
	if err != nil {
		t.Fatalf("ActivityTotal: %v", err)
	}
	if got != 10 {
		t.Errorf("ActivityTotal(full range) = %d, want 10", got)
	}

	got, err = metrics.ActivityTotal(ctx, tx, 103, 106)
	if err != nil {
		t.Fatalf("ActivityTotal: %v", err)
	}
	if got != 3 {
		t.Errorf("ActivityTotal(clipped) = %d, want 3", got)
	}
}

func TestRestStartIsSecondToLastEdge(t *testing.T) {
	_, tx := openTestTx(t)
	ctx := context.Background()
	u := activity.NewUpdater(tx)

	if _, err := u.Update(ctx, 500, 1); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := metrics.RestStart(ctx, tx)
	if err != nil {
		t.Fatalf("RestStart: %v", err)
	}
	if got != 501 {
		t.Errorf("RestStart = %d, want 501 (the falling edge starting the current pause)", got)
	}
}

func TestSessionStartNoRestsYet(t *testing.T) {
	_, tx := openTestTx(t)
	ctx := context.Background()

	got, err := metrics.SessionStart(ctx, tx, 300)
	if err != nil {
		t.Fatalf("SessionStart: %v", err)
	}
	if got != edge.MinTime {
		t.Errorf("SessionStart with no activity = %d, want edge.MinTime", got)
	}
}

func TestSessionStartFindsSecondMostRecentRest(t *testing.T) {
	_, tx := openTestTx(t)
	ctx := context.Background()
	u := activity.NewUpdater(tx)

	restTarget := int64(100)
	// Three activities separated by pauses >= restTarget.
	for _, start := range []int64{1000, 1000 + restTarget + 10, 1000 + 2*(restTarget+10)} {
		if _, err := u.Update(ctx, start, 1); err != nil {
			t.Fatalf("Update(%d): %v", start, err)
		}
	}

	got, err := metrics.SessionStart(ctx, tx, restTarget)
	if err != nil {
		t.Fatalf("SessionStart: %v", err)
	}
	// The most recent "pause" in edge-pairing terms is always the open
	// interval from the last activity to the MaxTime sentinel, which is
	// never a real rest. The second pause found is the true most recent
	// completed rest, whose end is the start of the latest activity.
	want := int64(1000 + 2*(restTarget+10))
	if got != want {
		t.Errorf("SessionStart = %d, want %d", got, want)
	}
}
