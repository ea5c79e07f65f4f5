// Package activity implements the Activity Updater: folding one second
// (or, for back-filled batches, a short run of seconds) of activity into
// the edge sequence, widening any pause shorter than edge.MinPause into
// activity on both sides.
package activity

import (
	"context"
	"fmt"
	"sort"

	"github.com/lslunis/ergometer/internal/edge"
	"github.com/lslunis/ergometer/internal/ergerr"
)

// Store is what an Updater needs from the Edge Store: a window query to
// refill its cursor cache, plus the two mutations it issues.
type Store interface {
	EdgesSpanning(ctx context.Context, start, end int64) ([]edge.Edge, error)
	InsertEdge(ctx context.Context, e edge.Edge) error
	DeleteEdge(ctx context.Context, e edge.Edge) error
}

// Updater applies Update calls against one Store, amortizing repeated
// edges_spanning probes across a run of nearby updates with a small
// cursor cache (boxedEdges). An Updater belongs to a single batch
// application and must not be shared across concurrent callers.
type Updater struct {
	store      Store
	boxedEdges []edge.Edge // sorted ascending by Time
}

func NewUpdater(store Store) *Updater {
	return &Updater{store: store}
}

type pause struct {
	start edge.Edge // falling
	end   edge.Edge // rising
}

// pausesIn pairs up the falling/rising edges in window into pause
// intervals, dropping any leading rising edge (the new interval's left
// side already lies inside an existing activity) and discarding a
// trailing unpaired edge (the right side lies inside one).
func pausesIn(window []edge.Edge) []pause {
	i := 0
	for i < len(window) && window[i].Polarity == edge.Rising {
		i++
	}
	var pauses []pause
	for i+1 < len(window) {
		pauses = append(pauses, pause{start: window[i], end: window[i+1]})
		i += 2
	}
	return pauses
}

// Update folds the half-open interval [start, start+value) into the edge
// sequence and returns the activity increase: the number of seconds
// newly covered that used to be pause.
func (u *Updater) Update(ctx context.Context, start, value int64) (int64, error) {
	if value < 1 {
		return 0, &ergerr.BadInputError{Reason: fmt.Sprintf("activity value must be >= 1, got %d", value)}
	}
	if start < 0 || start+value > edge.MaxTime {
		return 0, &ergerr.BadInputError{Reason: fmt.Sprintf("activity interval [%d, %d) out of bounds", start, start+value)}
	}

	end := start + value
	startEdge := edge.Edge{Time: start, Polarity: edge.Rising}
	endEdge := edge.Edge{Time: end, Polarity: edge.Falling}

	startIndex := sort.Search(len(u.boxedEdges), func(i int) bool { return u.boxedEdges[i].Time > start })
	endIndex := sort.Search(len(u.boxedEdges), func(i int) bool { return u.boxedEdges[i].Time >= end })

	if startIndex == 0 || endIndex == len(u.boxedEdges) {
		loaded, err := u.store.EdgesSpanning(ctx, start, end)
		if err != nil {
			return 0, fmt.Errorf("activity: loading edge window: %w", err)
		}
		if len(loaded) < 2 {
			return 0, &ergerr.CorruptionError{Reason: "edge window missing bracketing edges"}
		}
		u.boxedEdges = loaded
		startIndex = 1
		endIndex = len(u.boxedEdges) - 1
	}

	leftBound := u.boxedEdges[startIndex-1]
	rightBound := u.boxedEdges[endIndex]
	window := append([]edge.Edge(nil), u.boxedEdges[startIndex-1:endIndex+1]...)

	pauses := pausesIn(window)

	var toDelete, toInsert []edge.Edge
	var total int64
	leftDeleted, rightDeleted := false, false

	for _, p := range pauses {
		total += p.end.Time - p.start.Time

		dLeft := start - p.start.Time
		if dLeft >= edge.MinPause {
			total -= dLeft
			toInsert = append(toInsert, startEdge)
		} else {
			if p.start.Time == leftBound.Time {
				leftDeleted = true
			}
			toDelete = append(toDelete, p.start)
		}

		dRight := p.end.Time - end
		if dRight >= edge.MinPause {
			total -= dRight
			toInsert = append(toInsert, endEdge)
		} else {
			if p.end.Time == rightBound.Time {
				rightDeleted = true
			}
			toDelete = append(toDelete, p.end)
		}
	}

	// Deletes must land before inserts: a collapsed pause boundary and a
	// newly kept activity edge can share the same time value (the
	// boundary falls exactly on an existing edge), and only this order
	// avoids a transient primary-key collision.
	for _, e := range toDelete {
		if err := u.store.DeleteEdge(ctx, e); err != nil {
			return 0, fmt.Errorf("activity: deleting edge at %d: %w", e.Time, err)
		}
	}
	for _, e := range toInsert {
		if err := u.store.InsertEdge(ctx, e); err != nil {
			return 0, fmt.Errorf("activity: inserting edge at %d: %w", e.Time, err)
		}
	}

	newBoxed := make([]edge.Edge, 0, len(toInsert)+2)
	if !leftDeleted {
		newBoxed = append(newBoxed, leftBound)
	}
	if !rightDeleted {
		newBoxed = append(newBoxed, rightBound)
	}
	newBoxed = append(newBoxed, toInsert...)
	sort.Slice(newBoxed, func(i, j int) bool { return newBoxed[i].Time < newBoxed[j].Time })
	u.boxedEdges = newBoxed

	return total, nil
}
