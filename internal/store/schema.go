package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lslunis/ergometer/internal/edge"
)

// SchemaVersion is the current on-disk schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS activity_edges (
    time   INTEGER PRIMARY KEY,
    rising INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    kind  TEXT PRIMARY KEY,
    value INTEGER NOT NULL,
    time  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS host_positions (
    host     TEXT PRIMARY KEY,
    position INTEGER NOT NULL
);
`

// initSchema creates the schema if it does not already exist and, only
// on first creation, inserts the two permanent sentinel edges and the
// default settings. An already-populated database is left untouched.
func initSchema(ctx context.Context, db *sql.DB, defaults map[SettingKind]int64) error {
	var tableCount int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'activity_edges'`,
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("store: checking schema: %w", err)
	}
	firstRun := tableCount == 0

	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	if !firstRun {
		return nil
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO activity_edges (time, rising) VALUES (?, 0), (?, 1)`,
		edge.MinTime, edge.MaxTime,
	); err != nil {
		return fmt.Errorf("store: inserting sentinel edges: %w", err)
	}
	for kind, value := range defaults {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO settings (kind, value, time) VALUES (?, ?, 0)`,
			string(kind), value,
		); err != nil {
			return fmt.Errorf("store: seeding setting %s: %w", kind, err)
		}
	}
	return nil
}

// checkInvariants runs the Edge Store's structural checks: the sentinel
// edges are present, every time is within bounds, consecutive edges
// strictly increase in time and alternate polarity, and no two
// consecutive pause edges are closer together than edge.MinPause (a
// merge that should have collapsed them never committed). It never
// repairs anything it finds wrong; callers surface ergerr.CorruptionError.
func checkInvariants(ctx context.Context, q execer) error {
	rows, err := q.QueryContext(ctx, `SELECT time, rising FROM activity_edges ORDER BY time ASC`)
	if err != nil {
		return fmt.Errorf("store: reading edges for invariant check: %w", err)
	}
	defer rows.Close()

	var prev edge.Edge
	count := 0
	for rows.Next() {
		var t int64
		var rising int
		if err := rows.Scan(&t, &rising); err != nil {
			return fmt.Errorf("store: scanning edge: %w", err)
		}
		cur := edge.Edge{Time: t, Polarity: polarityOf(rising)}
		if count == 0 {
			if cur.Time != edge.MinTime || cur.Polarity != edge.Falling {
				return invariantErrorf("first edge is not the MinTime falling sentinel: %+v", cur)
			}
		} else {
			if cur.Time <= prev.Time {
				return invariantErrorf("edge times not strictly increasing: %d then %d", prev.Time, cur.Time)
			}
			if cur.Polarity == prev.Polarity {
				return invariantErrorf("consecutive edges share polarity at times %d and %d", prev.Time, cur.Time)
			}
			if prev.Polarity == edge.Falling && cur.Time-prev.Time < edge.MinPause && cur.Time != edge.MaxTime {
				return invariantErrorf("pause shorter than MinPause between %d and %d", prev.Time, cur.Time)
			}
		}
		prev = cur
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: iterating edges for invariant check: %w", err)
	}
	if count < 2 {
		return invariantErrorf("fewer than two edges in store (missing sentinels)")
	}
	if prev.Time != edge.MaxTime || prev.Polarity != edge.Rising {
		return invariantErrorf("last edge is not the MaxTime rising sentinel: %+v", prev)
	}
	return nil
}
