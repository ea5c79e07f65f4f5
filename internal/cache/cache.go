// Package cache implements the Cache Controller: it consumes decoded
// event batches, drives the Activity Updater and Settings Register, and
// recomputes only the metrics a batch could have changed before
// publishing a delta to observers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lslunis/ergometer/internal/activity"
	"github.com/lslunis/ergometer/internal/ergerr"
	"github.com/lslunis/ergometer/internal/ergotime"
	"github.com/lslunis/ergometer/internal/events"
	"github.com/lslunis/ergometer/internal/logging"
	"github.com/lslunis/ergometer/internal/metrics"
	"github.com/lslunis/ergometer/internal/store"
)

// Cache is the published read-out state: the result of a full
// recomputation over the committed store, maintained incrementally.
// Publication replaces the whole value atomically; fields are never
// mutated in place once published.
type Cache struct {
	DayStart      int64
	DailyTotal    int64
	SessionStart  int64
	RestStart     int64
	DailyTarget   int64
	SessionTarget int64
	RestTarget    int64
}

// Delta lists which Cache fields a batch changed, alongside the new
// Cache value. Observers that only care about specific metrics can skip
// work when their fields are unset.
type Delta struct {
	Cache        Cache
	DailyTotal   bool
	SessionStart bool
	RestStart    bool
	Targets      bool
}

// Batch is one decoded unit of work from the transport layer: position
// is the byte offset in host's log at which bytes begins, per §6's
// subscribe contract.
type Batch struct {
	Host     string
	Position int64
	Bytes    []byte
}

// Beginner opens a transaction bundling edge, settings, and
// host-position mutation. *store.Store satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (*store.Tx, error)
}

// Now returns the current wall-clock time. Tests supply a fixed clock;
// production wires time.Now.
type Now func() time.Time

// NewUpdater constructs the per-transaction Activity Updater. Production
// wires NewActivityUpdater, which wraps activity.NewUpdater; it is taken
// as a parameter rather
// than called inline so the controller does not hard-code which Store
// implementation the updater sees.
type NewUpdater func(tx *store.Tx) *activity.Updater

// Controller owns the edge store and the live cache. It processes one
// batch at a time; see the concurrency model's single-writer rule. The
// updater factory is passed in explicitly rather than bound globally, so
// one process can run independent controllers (e.g. in tests) without
// shared state.
type Controller struct {
	store      Beginner
	now        Now
	log        *logging.DecisionLogger
	newUpdater NewUpdater
	cache      Cache
}

// NewActivityUpdater adapts activity.NewUpdater to the NewUpdater shape
// Process expects; it is the production factory passed to New.
func NewActivityUpdater(tx *store.Tx) *activity.Updater {
	return activity.NewUpdater(tx)
}

// New creates a Controller seeded with the given initial cache (normally
// the result of a full recomputation at startup), clock, and updater
// factory.
func New(s Beginner, now Now, log *logging.DecisionLogger, newUpdater NewUpdater, initial Cache) *Controller {
	return &Controller{store: s, now: now, log: log, newUpdater: newUpdater, cache: initial}
}

// Cache returns a copy of the current published cache.
func (c *Controller) Cache() Cache {
	return c.cache
}

// Process applies one batch and returns the resulting delta. It opens
// one transaction, runs the position gate, processes every record,
// selectively refreshes metrics, checks invariants, and commits — or
// rolls back and returns the error, as-is or wrapped with %w, so the
// caller (the transport layer) can classify it with errors.As. A batch
// that is not a whole number of records is reported as a BadInputError.
func (c *Controller) Process(ctx context.Context, b Batch) (Delta, error) {
	records, err := events.DecodeBatch(b.Bytes)
	if err != nil {
		return Delta{}, &ergerr.BadInputError{Reason: err.Error()}
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return Delta{}, fmt.Errorf("cache: beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// The position gate: AdvanceHostPosition rejects a mismatched
	// b.Position before anything else is mutated. The advance itself
	// only takes effect if the whole batch later commits.
	if err := tx.AdvanceHostPosition(ctx, b.Host, b.Position, int64(len(b.Bytes))); err != nil {
		return Delta{}, err
	}

	next := c.cache
	delta := Delta{}

	today := ergotime.DayStartOf(c.now())
	if today != next.DayStart {
		next.DayStart = today
		next.DailyTotal = -1 // invalidated; recomputed below
	}

	updater := c.newUpdater(tx)

	var minStart, maxEnd int64 = -1, -1
	restTargetChanged := false

	for _, rec := range records {
		if !rec.Kind.IsSetting() {
			inc, err := updater.Update(ctx, rec.Time, int64(rec.Value))
			if err != nil {
				var bad *ergerr.BadInputError
				if errors.As(err, &bad) {
					continue
				}
				return Delta{}, err
			}
			if minStart < 0 || rec.Time < minStart {
				minStart = rec.Time
			}
			end := rec.Time + int64(rec.Value)
			if end > maxEnd {
				maxEnd = end
			}
			if next.DailyTotal >= 0 && ergotime.IsOnDay(rec.Time, next.DayStart) {
				next.DailyTotal += inc
			}
			continue
		}

		kind, ok := settingKindOf(rec.Kind)
		if !ok {
			continue // unhandled but not fatal, per §4.2
		}
		changed, err := tx.UpdateSettingIfNewer(ctx, kind, int64(rec.Value), rec.Time)
		if err != nil {
			return Delta{}, fmt.Errorf("cache: updating setting %s: %w", kind, err)
		}
		if changed && kind == store.RestTarget {
			restTargetChanged = true
		}
	}

	restTarget, _, err := tx.GetSetting(ctx, store.RestTarget)
	if err != nil {
		return Delta{}, fmt.Errorf("cache: reading rest_target: %w", err)
	}

	if next.DailyTotal < 0 {
		total, err := metrics.ActivityTotal(ctx, tx, next.DayStart, next.DayStart+86400)
		if err != nil {
			return Delta{}, fmt.Errorf("cache: recomputing daily_total: %w", err)
		}
		next.DailyTotal = total
		delta.DailyTotal = true
	}

	recomputeSession := restTargetChanged
	if !recomputeSession && minStart >= 0 {
		windowLo := next.SessionStart - restTarget
		windowHi := next.SessionStart
		if maxEnd >= windowLo && minStart <= windowHi {
			recomputeSession = true
		}
		if maxEnd >= next.RestStart+restTarget {
			recomputeSession = true
		}
	}
	if recomputeSession {
		start, err := metrics.SessionStart(ctx, tx, restTarget)
		if err != nil {
			return Delta{}, fmt.Errorf("cache: recomputing session_start: %w", err)
		}
		next.SessionStart = start
		delta.SessionStart = true
	}

	if maxEnd > next.RestStart {
		next.RestStart = maxEnd
		delta.RestStart = true
	}

	daily, _, err := tx.GetSetting(ctx, store.DailyTarget)
	if err != nil {
		return Delta{}, fmt.Errorf("cache: reading daily_target: %w", err)
	}
	session, _, err := tx.GetSetting(ctx, store.SessionTarget)
	if err != nil {
		return Delta{}, fmt.Errorf("cache: reading session_target: %w", err)
	}
	if daily != next.DailyTarget || session != next.SessionTarget || restTarget != next.RestTarget {
		next.DailyTarget, next.SessionTarget, next.RestTarget = daily, session, restTarget
		delta.Targets = true
	}

	if err := tx.CheckInvariants(ctx); err != nil {
		return Delta{}, err
	}

	if err := tx.Commit(); err != nil {
		return Delta{}, fmt.Errorf("cache: committing: %w", err)
	}
	committed = true

	c.cache = next
	delta.Cache = next
	c.log.Log(map[string]any{
		"host":          b.Host,
		"position":      b.Position,
		"daily_total":   delta.DailyTotal,
		"session_start": delta.SessionStart,
		"rest_start":    delta.RestStart,
		"targets":       delta.Targets,
	})

	return delta, nil
}

func settingKindOf(k events.Kind) (store.SettingKind, bool) {
	switch k {
	case events.DailyTarget:
		return store.DailyTarget, true
	case events.SessionTarget:
		return store.SessionTarget, true
	case events.RestTarget:
		return store.RestTarget, true
	default:
		return "", false
	}
}

// Readout computes the UI-facing tuple from the current cache and now,
// per §4.6: daily/rest/session values as seen by an observer, with
// targets passed through unchanged.
type Readout struct {
	DailyValue    int64
	RestValue     int64
	SessionValue  int64
	DailyTarget   int64
	SessionTarget int64
	RestTarget    int64
}

func (c *Controller) Readout(now int64) Readout {
	cache := c.cache
	out := Readout{
		DailyTarget:   cache.DailyTarget,
		SessionTarget: cache.SessionTarget,
		RestTarget:    cache.RestTarget,
		RestValue:     now - cache.RestStart,
	}
	if ergotime.IsOnDay(now, cache.DayStart) {
		out.DailyValue = cache.DailyTotal
	}
	if out.RestValue < cache.RestTarget {
		out.SessionValue = now - cache.SessionStart
	}
	return out
}

