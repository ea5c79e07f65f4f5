package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/lslunis/ergometer/internal/edge"
	"github.com/lslunis/ergometer/internal/ergerr"
)

// execer is the subset of *sql.DB and *sql.Tx that the free query
// functions below need. Writing the edge/settings/host-position queries
// once against this interface, rather than once per concrete type, keeps
// Store's direct (read-only) methods and Tx's transactional methods from
// duplicating SQL.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func polarityOf(rising int) edge.Polarity {
	if rising != 0 {
		return edge.Rising
	}
	return edge.Falling
}

func risingInt(p edge.Polarity) int {
	if p == edge.Rising {
		return 1
	}
	return 0
}

func invariantErrorf(format string, args ...any) error {
	return &ergerr.CorruptionError{Reason: fmt.Sprintf(format, args...)}
}

// Store owns the SQLite connection pool backing the Edge Store, Settings
// Register, and Host-Position Register. It is safe for concurrent use:
// reads take a shared lock, and Begin takes an exclusive one for the
// duration of the write transaction, matching the engine's single-writer
// concurrency model.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open creates (if needed) and opens the database at path, running
// pending schema setup. defaults seeds the Settings Register on first
// creation only.
func Open(ctx context.Context, path string, defaults map[SettingKind]int64) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer model; serialize at Store.mu instead of the pool
	db.SetMaxIdleConns(1)

	if err := initSchema(ctx, db, defaults); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) EdgesSpanning(ctx context.Context, start, end int64) ([]edge.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return edgesSpanning(ctx, s.db, start, end)
}

func (s *Store) SecondToLast(ctx context.Context) (edge.Edge, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return secondToLast(ctx, s.db)
}

func (s *Store) EdgesDescending(ctx context.Context) (*EdgeCursor, error) {
	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, `SELECT time, rising FROM activity_edges ORDER BY time DESC`)
	if err != nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store: opening descending cursor: %w", err)
	}
	return &EdgeCursor{rows: rows, release: s.mu.RUnlock}, nil
}

func (s *Store) GetSetting(ctx context.Context, kind SettingKind) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSetting(ctx, s.db, kind)
}

func (s *Store) GetHostPosition(ctx context.Context, host string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getHostPosition(ctx, s.db, host)
}

// ListHostPositions returns every row of the Host-Position Register,
// ordered by host name.
func (s *Store) ListHostPositions(ctx context.Context) ([]HostPositionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT host, position FROM host_positions ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("store: listing host positions: %w", err)
	}
	defer rows.Close()

	var entries []HostPositionEntry
	for rows.Next() {
		var e HostPositionEntry
		if err := rows.Scan(&e.Host, &e.Position); err != nil {
			return nil, fmt.Errorf("store: scanning host position: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: listing host positions: %w", err)
	}
	return entries, nil
}

func (s *Store) CheckInvariants(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return checkInvariants(ctx, s.db)
}

// Begin starts the single write transaction the Cache Controller uses to
// apply one batch atomically. It holds Store's exclusive lock until the
// returned Tx is committed or rolled back.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	s.mu.Lock()
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("store: beginning transaction: %w", err)
	}
	return &Tx{tx: sqlTx, release: s.mu.Unlock}, nil
}

// Tx is one atomic batch application: edge mutations, setting writes,
// and the host-position advance, checked for invariant violations before
// commit.
type Tx struct {
	tx      *sql.Tx
	release func()
	done    bool
}

func (t *Tx) EdgesSpanning(ctx context.Context, start, end int64) ([]edge.Edge, error) {
	return edgesSpanning(ctx, t.tx, start, end)
}

func (t *Tx) SecondToLast(ctx context.Context) (edge.Edge, bool, error) {
	return secondToLast(ctx, t.tx)
}

func (t *Tx) EdgesDescending(ctx context.Context) (*EdgeCursor, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT time, rising FROM activity_edges ORDER BY time DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: opening descending cursor: %w", err)
	}
	return &EdgeCursor{rows: rows}, nil
}

func (t *Tx) InsertEdge(ctx context.Context, e edge.Edge) error {
	return insertEdge(ctx, t.tx, e)
}

func (t *Tx) DeleteEdge(ctx context.Context, e edge.Edge) error {
	return deleteEdge(ctx, t.tx, e)
}

func (t *Tx) GetSetting(ctx context.Context, kind SettingKind) (int64, int64, error) {
	return getSetting(ctx, t.tx, kind)
}

func (t *Tx) UpdateSettingIfNewer(ctx context.Context, kind SettingKind, value, writtenAt int64) (bool, error) {
	return updateSettingIfNewer(ctx, t.tx, kind, value, writtenAt)
}

func (t *Tx) GetHostPosition(ctx context.Context, host string) (int64, bool, error) {
	return getHostPosition(ctx, t.tx, host)
}

func (t *Tx) AdvanceHostPosition(ctx context.Context, host string, expected, delta int64) error {
	return advanceHostPosition(ctx, t.tx, host, expected, delta)
}

func (t *Tx) CheckInvariants(ctx context.Context) error {
	return checkInvariants(ctx, t.tx)
}

func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.release()
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.release()
	return t.tx.Rollback()
}

// EdgeCursor streams edges without materializing the whole table. Used
// by session_start, which stops pulling rows as soon as it has found two
// sufficiently long pauses.
type EdgeCursor struct {
	rows    *sql.Rows
	release func()
	closed  bool
}

func (c *EdgeCursor) Next() bool { return c.rows.Next() }

func (c *EdgeCursor) Edge() (edge.Edge, error) {
	var t int64
	var rising int
	if err := c.rows.Scan(&t, &rising); err != nil {
		return edge.Edge{}, fmt.Errorf("store: scanning cursor row: %w", err)
	}
	return edge.Edge{Time: t, Polarity: polarityOf(rising)}, nil
}

func (c *EdgeCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.rows.Close()
	if c.release != nil {
		c.release()
	}
	return err
}

// --- shared query implementations, each usable against *sql.DB or *sql.Tx ---

func edgesSpanning(ctx context.Context, q execer, start, end int64) ([]edge.Edge, error) {
	var lowerBound int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(time), ?) FROM activity_edges WHERE time < ?`,
		edge.MinTime, start,
	).Scan(&lowerBound)
	if err != nil {
		return nil, fmt.Errorf("store: finding lower bound: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT time, rising FROM activity_edges WHERE time >= ? ORDER BY time ASC`,
		lowerBound,
	)
	if err != nil {
		return nil, fmt.Errorf("store: querying edge window: %w", err)
	}
	defer rows.Close()

	var out []edge.Edge
	for rows.Next() {
		var t int64
		var rising int
		if err := rows.Scan(&t, &rising); err != nil {
			return nil, fmt.Errorf("store: scanning edge window: %w", err)
		}
		out = append(out, edge.Edge{Time: t, Polarity: polarityOf(rising)})
		if t > end {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating edge window: %w", err)
	}
	return out, nil
}

func secondToLast(ctx context.Context, q execer) (edge.Edge, bool, error) {
	var t int64
	var rising int
	err := q.QueryRowContext(ctx,
		`SELECT time, rising FROM activity_edges ORDER BY time DESC LIMIT 1 OFFSET 1`,
	).Scan(&t, &rising)
	if err == sql.ErrNoRows {
		return edge.Edge{}, false, nil
	}
	if err != nil {
		return edge.Edge{}, false, fmt.Errorf("store: querying second-to-last edge: %w", err)
	}
	return edge.Edge{Time: t, Polarity: polarityOf(rising)}, true, nil
}

func insertEdge(ctx context.Context, q execer, e edge.Edge) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO activity_edges (time, rising) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM activity_edges WHERE time = ?)`,
		e.Time, risingInt(e.Polarity), e.Time,
	)
	if err != nil {
		return fmt.Errorf("store: inserting edge at %d: %w", e.Time, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invariantErrorf("edge already exists at time %d", e.Time)
	}
	return nil
}

func deleteEdge(ctx context.Context, q execer, e edge.Edge) error {
	res, err := q.ExecContext(ctx, `DELETE FROM activity_edges WHERE time = ? AND rising = ?`, e.Time, risingInt(e.Polarity))
	if err != nil {
		return fmt.Errorf("store: deleting edge at %d: %w", e.Time, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invariantErrorf("no edge to delete at time %d", e.Time)
	}
	return nil
}

func getSetting(ctx context.Context, q execer, kind SettingKind) (int64, int64, error) {
	var value, writtenAt int64
	err := q.QueryRowContext(ctx, `SELECT value, time FROM settings WHERE kind = ?`, string(kind)).Scan(&value, &writtenAt)
	if err != nil {
		return 0, 0, fmt.Errorf("store: reading setting %s: %w", kind, err)
	}
	return value, writtenAt, nil
}

func updateSettingIfNewer(ctx context.Context, q execer, kind SettingKind, value, writtenAt int64) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE settings SET value = ?, time = ? WHERE kind = ? AND time < ?`,
		value, writtenAt, string(kind), writtenAt,
	)
	if err != nil {
		return false, fmt.Errorf("store: updating setting %s: %w", kind, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func getHostPosition(ctx context.Context, q execer, host string) (int64, bool, error) {
	var position int64
	err := q.QueryRowContext(ctx, `SELECT position FROM host_positions WHERE host = ?`, host).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: reading host position for %s: %w", host, err)
	}
	return position, true, nil
}

// advanceHostPosition enforces the position gate: a batch is accepted
// only if its claimed starting offset matches the host's recorded
// position, and the register then advances by delta. A host seen for
// the first time is accepted only at expected == 0.
func advanceHostPosition(ctx context.Context, q execer, host string, expected, delta int64) error {
	current, exists, err := getHostPosition(ctx, q, host)
	if err != nil {
		return err
	}
	if !exists {
		current = 0
	}
	if current != expected {
		return &ergerr.PositionError{Host: host, Expected: current, Got: expected}
	}
	if !exists {
		_, err = q.ExecContext(ctx, `INSERT INTO host_positions (host, position) VALUES (?, ?)`, host, expected+delta)
	} else {
		_, err = q.ExecContext(ctx, `UPDATE host_positions SET position = ? WHERE host = ?`, expected+delta, host)
	}
	if err != nil {
		return fmt.Errorf("store: advancing host position for %s: %w", host, err)
	}
	return nil
}
