// Package metrics computes the engine's three derived read-outs —
// activity_total, session_start, and rest_start — directly from the Edge
// Store, with no cached state of their own.
package metrics

import (
	"context"
	"fmt"

	"github.com/lslunis/ergometer/internal/edge"
	"github.com/lslunis/ergometer/internal/store"
)

// EdgeReader is the store access metrics needs. *store.Store and
// *store.Tx both satisfy it.
type EdgeReader interface {
	EdgesSpanning(ctx context.Context, start, end int64) ([]edge.Edge, error)
	SecondToLast(ctx context.Context) (edge.Edge, bool, error)
	EdgesDescending(ctx context.Context) (*store.EdgeCursor, error)
}

// ActivityTotal sums the activity seconds within [start, end): the edges
// spanning the window, trimmed to the window bounds.
func ActivityTotal(ctx context.Context, r EdgeReader, start, end int64) (int64, error) {
	edges, err := r.EdgesSpanning(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("metrics: activity_total: %w", err)
	}

	i := 0
	for i < len(edges) && edges[i].Polarity == edge.Falling {
		i++
	}
	var total int64
	for i+1 < len(edges) {
		rising, falling := edges[i], edges[i+1]
		lo, hi := rising.Time, falling.Time
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		if hi > lo {
			total += hi - lo
		}
		i += 2
	}
	return total, nil
}

// SessionStart returns the Unix time the current session began: the end
// (rising edge) of the second-most-recent pause at least restTarget
// seconds long. It streams edges newest-first and stops as soon as it
// has found two such pauses, so it never scans the whole table in the
// common case. Returns edge.MinTime if fewer than two such pauses exist.
func SessionStart(ctx context.Context, r EdgeReader, restTarget int64) (int64, error) {
	cur, err := r.EdgesDescending(ctx)
	if err != nil {
		return 0, fmt.Errorf("metrics: session_start: %w", err)
	}
	defer cur.Close()

	var pauseEnd *edge.Edge
	var restEnds []int64
	for cur.Next() {
		e, err := cur.Edge()
		if err != nil {
			return 0, fmt.Errorf("metrics: session_start: %w", err)
		}
		if pauseEnd == nil {
			cp := e
			pauseEnd = &cp
			continue
		}
		pauseStart := e
		if pauseEnd.Time-pauseStart.Time >= restTarget {
			restEnds = append(restEnds, pauseEnd.Time)
			if len(restEnds) == 2 {
				return restEnds[1], nil
			}
		}
		pauseEnd = nil
	}
	if err := cur.Close(); err != nil {
		return 0, fmt.Errorf("metrics: session_start: %w", err)
	}
	return edge.MinTime, nil
}

// RestStart returns the time of the second-to-last edge in the store.
// The last edge is always the MaxTime rising sentinel, so this is the
// falling edge that starts the current pause (the MinTime sentinel when
// the store holds only sentinels). Returns edge.MinTime if fewer than
// two edges exist.
func RestStart(ctx context.Context, r EdgeReader) (int64, error) {
	e, ok, err := r.SecondToLast(ctx)
	if err != nil {
		return 0, fmt.Errorf("metrics: rest_start: %w", err)
	}
	if !ok {
		return edge.MinTime, nil
	}
	return e.Time, nil
}
