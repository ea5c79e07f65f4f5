// Package store holds the engine's persistence layer: the Edge Store,
// the Settings Register, and the Host-Position Register, all co-resident
// in one SQLite database and mutated together under one transaction per
// batch so the Cache Controller's updates are atomic.
package store

import (
	"context"

	"github.com/lslunis/ergometer/internal/edge"
)

// SettingKind names one of the three persisted targets. Unlike activity
// edges, settings are a simple last-writer-wins register keyed by kind.
type SettingKind string

const (
	DailyTarget   SettingKind = "daily_target"
	SessionTarget SettingKind = "session_target"
	RestTarget    SettingKind = "rest_target"
)

// Defaults seed the Settings Register the first time its table is
// created; every command opens the store with these values, and the
// targets in config.yaml are not used for seeding. Once a row exists
// only update_if_newer touches it.
var Defaults = map[SettingKind]int64{
	DailyTarget:   8 * 3600,
	SessionTarget: 1 * 3600,
	RestTarget:    5 * 60,
}

// EdgeReader is the read side of the Edge Store: everything the Activity
// Updater and the metric queries need. *Store and *Tx both implement it,
// so a metric can run either against the live store (ergometer status)
// or inside an in-flight transaction (the Cache Controller's recompute
// step).
type EdgeReader interface {
	// EdgesSpanning returns the edges bracketing [start, end]: the
	// greatest edge strictly less than start (or the MinTime sentinel),
	// every edge in between, and the least edge strictly greater than
	// end (or the MaxTime sentinel).
	EdgesSpanning(ctx context.Context, start, end int64) ([]edge.Edge, error)
	// SecondToLast returns the edge immediately before the newest edge
	// in the store, or ok=false if fewer than two edges exist.
	SecondToLast(ctx context.Context) (edge.Edge, bool, error)
	// EdgesDescending opens a cursor over every edge, newest first. The
	// caller must Close it.
	EdgesDescending(ctx context.Context) (*EdgeCursor, error)
}

// EdgeWriter is the write side of the Edge Store.
type EdgeWriter interface {
	InsertEdge(ctx context.Context, e edge.Edge) error
	DeleteEdge(ctx context.Context, e edge.Edge) error
}

// SettingsReader reads the Settings Register.
type SettingsReader interface {
	GetSetting(ctx context.Context, kind SettingKind) (value, writtenAt int64, err error)
}

// SettingsWriter applies update_if_newer semantics to the Settings
// Register: a write is applied only if its timestamp is strictly newer
// than the stored one, and reports whether it changed anything.
type SettingsWriter interface {
	UpdateSettingIfNewer(ctx context.Context, kind SettingKind, value, writtenAt int64) (changed bool, err error)
}

// HostPosition reads and advances the Host-Position Register, the gate
// that rejects out-of-order or replayed batches from a host.
type HostPosition interface {
	GetHostPosition(ctx context.Context, host string) (position int64, exists bool, err error)
	AdvanceHostPosition(ctx context.Context, host string, expected, delta int64) error
}

// HostPositionEntry is one row of the Host-Position Register, surfaced
// to `ergometer status --hosts`.
type HostPositionEntry struct {
	Host     string
	Position int64
}

// Invariants checks the Edge Store's structural invariants: sentinel
// presence, strict time ordering, alternating polarity, and the minimum
// pause gap between consecutive edges.
type Invariants interface {
	CheckInvariants(ctx context.Context) error
}

// Transaction bundles everything the Cache Controller needs inside one
// atomic batch: edge, settings, and host-position mutation, plus the
// invariant check run just before commit. *Tx implements it.
type Transaction interface {
	EdgeReader
	EdgeWriter
	SettingsReader
	SettingsWriter
	HostPosition
	Invariants
	Commit() error
	Rollback() error
}
