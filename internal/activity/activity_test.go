package activity

import (
	"context"
	"sort"
	"testing"

	"github.com/lslunis/ergometer/internal/edge"
)

// memStore is an in-memory Store used to test the Updater's algorithm in
// isolation from SQLite.
type memStore struct {
	edges map[int64]edge.Edge
}

func newMemStore(activities ...[2]int64) *memStore {
	s := &memStore{edges: map[int64]edge.Edge{
		edge.MinTime: {Time: edge.MinTime, Polarity: edge.Falling},
		edge.MaxTime: {Time: edge.MaxTime, Polarity: edge.Rising},
	}}
	for _, a := range activities {
		s.edges[a[0]] = edge.Edge{Time: a[0], Polarity: edge.Rising}
		s.edges[a[1]] = edge.Edge{Time: a[1], Polarity: edge.Falling}
	}
	return s
}

func (s *memStore) EdgesSpanning(_ context.Context, start, end int64) ([]edge.Edge, error) {
	var times []int64
	for t := range s.edges {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	lower := edge.MinTime
	for _, t := range times {
		if t < start && t > lower {
			lower = t
		}
	}
	var out []edge.Edge
	for _, t := range times {
		if t >= lower {
			out = append(out, s.edges[t])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	var trimmed []edge.Edge
	for _, e := range out {
		trimmed = append(trimmed, e)
		if e.Time > end {
			break
		}
	}
	return trimmed, nil
}

func (s *memStore) InsertEdge(_ context.Context, e edge.Edge) error {
	s.edges[e.Time] = e
	return nil
}

func (s *memStore) DeleteEdge(_ context.Context, e edge.Edge) error {
	delete(s.edges, e.Time)
	return nil
}

func (s *memStore) activities() [][2]int64 {
	var times []int64
	for t := range s.edges {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	// times[0] is the MinTime sentinel and the last entry the MaxTime
	// sentinel; the rising/falling pairs between them are the activities.
	var acts [][2]int64
	for i := 1; i+2 < len(times); i += 2 {
		acts = append(acts, [2]int64{times[i], times[i+1]})
	}
	return acts
}

func assertActivity(t *testing.T, s *memStore, want ...int64) {
	t.Helper()
	var wantPairs [][2]int64
	for i := 0; i+1 < len(want); i += 2 {
		wantPairs = append(wantPairs, [2]int64{want[i], want[i+1]})
	}
	got := s.activities()
	if len(got) != len(wantPairs) {
		t.Fatalf("activities = %v, want %v", got, wantPairs)
	}
	for i := range got {
		if got[i] != wantPairs[i] {
			t.Fatalf("activities = %v, want %v", got, wantPairs)
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	s := newMemStore()
	u := NewUpdater(s)
	now := int64(1589137550)
	got, err := u.Update(context.Background(), now, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("Update = %d, want 1", got)
	}
	assertActivity(t, s, now, now+1)
}

func TestSplitNonempty(t *testing.T) {
	s := newMemStore([2]int64{15, 20})
	u := NewUpdater(s)
	got, err := u.Update(context.Background(), 35, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("Update = %d, want 1", got)
	}
	assertActivity(t, s, 15, 20, 35, 36)
}

func TestMinimumPossibleSplit(t *testing.T) {
	s := newMemStore([2]int64{15, 27})
	u := NewUpdater(s)
	got, err := u.Update(context.Background(), 42, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("Update = %d, want 1", got)
	}
	assertActivity(t, s, 15, 27, 42, 43)
}

func TestShrinkFromLeft(t *testing.T) {
	s := newMemStore([2]int64{15, 20})
	u := NewUpdater(s)
	ctx := context.Background()

	got, err := u.Update(ctx, 25, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Errorf("first Update = %d, want 6", got)
	}
	assertActivity(t, s, 15, 26)

	got, err = u.Update(ctx, 26, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("second Update = %d, want 1", got)
	}
	assertActivity(t, s, 15, 27)
}

func TestShrinkFromRight(t *testing.T) {
	s := newMemStore([2]int64{35, 40})
	u := NewUpdater(s)
	ctx := context.Background()

	got, err := u.Update(ctx, 34, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("first Update = %d, want 1", got)
	}
	assertActivity(t, s, 34, 40)

	got, err = u.Update(ctx, 19, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 15 {
		t.Errorf("second Update = %d, want 15", got)
	}
	assertActivity(t, s, 19, 40)
}

func TestShrinkFromBoth(t *testing.T) {
	s := newMemStore([2]int64{25, 30}, [2]int64{59, 65})
	u := NewUpdater(s)
	ctx := context.Background()

	got, err := u.Update(ctx, 29, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("first Update = %d, want 0", got)
	}

	got, err = u.Update(ctx, 44, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 29 {
		t.Errorf("second Update = %d, want 29", got)
	}
	assertActivity(t, s, 25, 65)
}

func TestFillAfterShrinking(t *testing.T) {
	s := newMemStore([2]int64{25, 30})
	u := NewUpdater(s)
	ctx := context.Background()

	got, err := u.Update(ctx, 31, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("first Update = %d, want 2", got)
	}

	got, err = u.Update(ctx, 30, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("second Update = %d, want 0", got)
	}
	assertActivity(t, s, 25, 32)
}

func TestTimeFallsBetweenPauses(t *testing.T) {
	s := newMemStore([2]int64{25, 30}, [2]int64{59, 65})
	u := NewUpdater(s)
	ctx := context.Background()

	for _, start := range []int64{25, 26, 29} {
		got, err := u.Update(ctx, start, 1)
		if err != nil {
			t.Fatal(err)
		}
		if got != 0 {
			t.Errorf("Update(%d,1) = %d, want 0", start, got)
		}
	}
	assertActivity(t, s, 25, 30, 59, 65)
}

func TestBadInputRejectsNonPositiveValue(t *testing.T) {
	s := newMemStore()
	u := NewUpdater(s)
	if _, err := u.Update(context.Background(), 10, 0); err == nil {
		t.Fatal("expected error for zero-length activity")
	}
}
