/*
PURPOSE:
  SQLite backend for the sampler state. One file holds any number of
  runs; reads target the latest complete one.

REQUIREMENTS:
  User-specified:
  - Keep draws between invocations so 'run' can replay a fit.

  Implementation-discovered:
  - An import that fails halfway must not replace the last good run.
    Runs started with NewRun stay pending until CommitRun, and Init
    never selects a pending run.
  - Points are stored as JSON arrays; widths vary between fits.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.NewDependencies, internal/cli (import-draws)
  - Uses: modernc.org/sqlite (pure Go driver)

ERROR HANDLING:
  - Every method fails before Init.
  - ImportRun removes the rows of a failed or empty import and restores
    the previous run.

USAGE:
  st := sampler.NewSQLiteStore("model152both.db")
  if err := st.Init(ctx); err != nil { ... }
  n, err := st.ImportRun(ctx, "draws.txt", f)

RELATED FILES:
  - internal/sampler/store.go
  - internal/sampler/import.go
*/

package sampler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// createdAtLayout sorts lexically in time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps sampler runs in a SQLite file. Reads and writes go to
// the most recent complete run unless NewRun starts another one.
type SQLiteStore struct {
	path string

	mu       sync.RWMutex
	db       *sql.DB
	runID    string
	previous string
	pending  bool
}

// NewSQLiteStore returns a store for path. Call Init before use.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database, creates the tables and selects the latest
// complete run. It is a no-op on an open store.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.runID, s.previous, s.pending = "", "", false
	err = db.QueryRowContext(ctx, `SELECT id FROM runs WHERE complete = 1 ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&s.runID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// RunID returns the run reads and writes currently target, or "" before any run exists.
func (s *SQLiteStore) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// NewRun starts a pending run and makes it current for this store. The run
// is only visible to later Init calls after CommitRun.
func (s *SQLiteStore) NewRun(ctx context.Context, source string) (string, error) {
	return s.newRun(ctx, source, false)
}

func (s *SQLiteStore) newRun(ctx context.Context, source string, complete bool) (string, error) {
	db, _, err := s.current()
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	done := 0
	if complete {
		done = 1
	}
	_, err = db.ExecContext(ctx, `INSERT INTO runs (id, source, created_at, complete) VALUES (?, ?, ?, ?)`,
		id, source, time.Now().UTC().Format(createdAtLayout), done)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if !s.pending {
		s.previous = s.runID
	}
	s.runID = id
	s.pending = !complete
	s.mu.Unlock()
	return id, nil
}

// CommitRun marks the current run complete.
func (s *SQLiteStore) CommitRun(ctx context.Context) error {
	db, run, err := s.current()
	if err != nil {
		return err
	}
	if run == "" {
		return errors.New("no run to commit")
	}
	if _, err := db.ExecContext(ctx, `UPDATE runs SET complete = 1 WHERE id = ?`, run); err != nil {
		return err
	}

	s.mu.Lock()
	s.pending = false
	s.previous = ""
	s.mu.Unlock()
	return nil
}

// AbortRun deletes the pending run started by NewRun and makes the run
// that was current before it current again.
func (s *SQLiteStore) AbortRun(ctx context.Context) error {
	s.mu.RLock()
	db, run, pending, previous := s.db, s.runID, s.pending, s.previous
	s.mu.RUnlock()
	if db == nil {
		return errors.New("store is not initialized")
	}
	if !pending {
		return errors.New("no pending run to abort")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM samples WHERE run_id = ?`,
		`DELETE FROM labels WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, run); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.mu.Lock()
	s.runID = previous
	s.previous = ""
	s.pending = false
	s.mu.Unlock()
	return nil
}

// ImportRun reads a draw dump (see Import) into a new run named after
// source. The run becomes current only if at least one sample was read
// and nothing failed; otherwise its rows are removed and the previous run
// stays current. It returns the run id and the number of samples.
func (s *SQLiteStore) ImportRun(ctx context.Context, source string, r io.Reader) (string, int, error) {
	run, err := s.NewRun(ctx, source)
	if err != nil {
		return "", 0, err
	}
	n, err := Import(ctx, r, s)
	if err == nil && n == 0 {
		err = fmt.Errorf("%w: %s has no samples", ErrNoDraws, source)
	}
	if err == nil {
		err = s.CommitRun(ctx)
	}
	if err != nil {
		if abortErr := s.AbortRun(context.WithoutCancel(ctx)); abortErr != nil {
			return "", n, errors.Join(err, fmt.Errorf("discard run %s: %w", run, abortErr))
		}
		return "", n, err
	}
	return run, n, nil
}

// ensureRun creates a complete run for writes made without NewRun.
func (s *SQLiteStore) ensureRun(ctx context.Context) (*sql.DB, string, error) {
	db, run, err := s.current()
	if err != nil || run != "" {
		return db, run, err
	}
	run, err = s.newRun(ctx, "", true)
	return db, run, err
}

// SetLabels replaces the parameter labels of the current run.
func (s *SQLiteStore) SetLabels(ctx context.Context, labels []string) error {
	db, run, err := s.ensureRun(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE run_id = ?`, run); err != nil {
		return err
	}
	for i, name := range labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO labels (run_id, idx, name) VALUES (?, ?, ?)`, run, i, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Labels returns the parameter labels of the current run.
func (s *SQLiteStore) Labels(ctx context.Context) ([]string, error) {
	db, run, err := s.current()
	if err != nil || run == "" {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM labels WHERE run_id = ? ORDER BY idx`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		labels = append(labels, name)
	}
	return labels, rows.Err()
}

// Append writes samples to the current run in one transaction. A sample
// at an existing (generation, chain) replaces it.
func (s *SQLiteStore) Append(ctx context.Context, samples ...Sample) error {
	db, run, err := s.ensureRun(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, generation, chain, logp, point, outlier)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(run_id, generation, chain) DO UPDATE SET
			logp = excluded.logp,
			point = excluded.point
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sm := range samples {
		payload, err := json.Marshal(sm.Point)
		if err != nil {
			return fmt.Errorf("encode chain %d generation %d: %w", sm.Chain, sm.Generation, err)
		}
		if _, err := stmt.ExecContext(ctx, run, sm.Generation, sm.Chain, sm.LogP, payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MarkOutliers flags the chains of the current run that fail the IQR test
// and returns how many were flagged.
func (s *SQLiteStore) MarkOutliers(ctx context.Context) (int, error) {
	db, run, err := s.current()
	if err != nil || run == "" {
		return 0, err
	}

	rows, err := db.QueryContext(ctx, `SELECT generation, chain, logp FROM samples WHERE run_id = ?`, run)
	if err != nil {
		return 0, err
	}
	var samples []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.Generation, &sm.Chain, &sm.LogP); err != nil {
			rows.Close()
			return 0, err
		}
		samples = append(samples, sm)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	outliers := iqrOutliers(chainScores(samples))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE samples SET outlier = 0 WHERE run_id = ?`, run); err != nil {
		return 0, err
	}
	for _, c := range outliers {
		if _, err := tx.ExecContext(ctx, `UPDATE samples SET outlier = 1 WHERE run_id = ? AND chain = ?`, run, c); err != nil {
			return 0, err
		}
	}
	return len(outliers), tx.Commit()
}

// Draw returns the points of non-outlier chains in the last portion of
// generations, ordered by generation then chain.
func (s *SQLiteStore) Draw(ctx context.Context, portion float64) (Draws, error) {
	if err := checkPortion(portion); err != nil {
		return Draws{}, err
	}
	db, run, err := s.current()
	if err != nil {
		return Draws{}, err
	}
	if run == "" {
		return Draws{}, ErrNoDraws
	}

	gens, err := s.generations(ctx, db, run)
	if err != nil {
		return Draws{}, err
	}
	if len(gens) == 0 {
		return Draws{}, ErrNoDraws
	}
	from := firstKeptGeneration(gens, portion)

	rows, err := db.QueryContext(ctx, `
		SELECT point FROM samples
		WHERE run_id = ? AND outlier = 0 AND generation >= ?
		ORDER BY generation, chain
	`, run, from)
	if err != nil {
		return Draws{}, err
	}
	defer rows.Close()

	var d Draws
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return Draws{}, err
		}
		var point []float64
		if err := json.Unmarshal(payload, &point); err != nil {
			return Draws{}, fmt.Errorf("decode stored point: %w", err)
		}
		if len(d.Points) > 0 && len(point) != len(d.Points[0]) {
			return Draws{}, fmt.Errorf("%w: stored points have %d and %d values", ErrWidthMismatch, len(d.Points[0]), len(point))
		}
		d.Points = append(d.Points, point)
	}
	if err := rows.Err(); err != nil {
		return Draws{}, err
	}
	if len(d.Points) == 0 {
		return Draws{}, ErrNoDraws
	}

	d.Labels, err = s.Labels(ctx)
	return d, err
}

func (s *SQLiteStore) generations(ctx context.Context, db *sql.DB, run string) ([]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT generation FROM samples WHERE run_id = ? ORDER BY generation`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []int
	for rows.Next() {
		var g int
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// Close closes the database. The store can be opened again with Init.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) current() (*sql.DB, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, "", errors.New("store is not initialized")
	}
	return s.db, s.runID, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL,
			complete INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS labels (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (run_id, idx)
		);
		CREATE TABLE IF NOT EXISTS samples (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			chain INTEGER NOT NULL,
			logp REAL NOT NULL,
			point TEXT NOT NULL,
			outlier INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, generation, chain)
		);
	`)
	return err
}
