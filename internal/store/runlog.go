// Package store keeps a SQLite log of planner runs and their iterations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/elektrokombinacija/cgcp-planner/internal/algo"
	"github.com/elektrokombinacija/cgcp-planner/internal/core"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("store: run not found")

// RunLog is a SQLite database of runs.
type RunLog struct {
	db *sql.DB
}

// Run is one row of the runs table.
type Run struct {
	ID         string
	Algorithm  string
	Instance   string
	StartedAt  time.Time
	Finished   bool
	Iterations int
	Objective  float64
	UpperBound float64
	Stop       string
	Elapsed    time.Duration
}

// ColumnSummary describes one column of a final mixture.
type ColumnSummary struct {
	Weight float64   `json:"weight"`
	Policy string    `json:"policy"`
	Reward float64   `json:"reward"`
	Cost   []float64 `json:"cost"`
}

// Open opens or creates the database at path.
func Open(path string) (*RunLog, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &RunLog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			algorithm TEXT NOT NULL,
			instance TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished INTEGER NOT NULL DEFAULT 0,
			iterations INTEGER NOT NULL DEFAULT 0,
			objective REAL NOT NULL DEFAULT 0,
			upper_bound REAL NOT NULL DEFAULT 0,
			stop TEXT NOT NULL DEFAULT '',
			elapsed_ns INTEGER NOT NULL DEFAULT 0,
			mixture BLOB
		);`,
		`CREATE TABLE IF NOT EXISTS iterations (
			run_id TEXT NOT NULL REFERENCES runs(id),
			iteration INTEGER NOT NULL,
			objective REAL NOT NULL,
			upper_bound REAL NOT NULL,
			gap REAL NOT NULL,
			dual_distance REAL NOT NULL,
			duals TEXT NOT NULL,
			columns INTEGER NOT NULL,
			elapsed_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS iterations_run ON iterations(run_id, iteration);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (l *RunLog) Close() error { return l.db.Close() }

// StartRun inserts a run and returns its id.
func (l *RunLog) StartRun(ctx context.Context, algorithm, instance string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, algorithm, instance, started_at) VALUES (?, ?, ?, ?)`,
		id, algorithm, instance, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// AddIteration appends one iteration record.
func (l *RunLog) AddIteration(ctx context.Context, runID string, rec algo.IterationRecord) error {
	duals, err := json.Marshal(finite(rec.Duals))
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO iterations (run_id, iteration, objective, upper_bound, gap, dual_distance, duals, columns, elapsed_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Iteration, clampInf(rec.Objective), clampInf(rec.UpperBound), clampInf(rec.Gap),
		clampInf(rec.DualDistance), string(duals), rec.Columns, rec.Elapsed.Nanoseconds())
	if err != nil {
		return fmt.Errorf("insert iteration: %w", err)
	}
	return nil
}

// FinishRun stores the outcome and the compressed mixture summary.
func (l *RunLog) FinishRun(ctx context.Context, sum algo.RunSummary, sol *core.Solution) error {
	var blob []byte
	if sol != nil {
		var err error
		if blob, err = encodeMixture(summarize(sol)); err != nil {
			return err
		}
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished = 1, iterations = ?, objective = ?, upper_bound = ?, stop = ?, elapsed_ns = ?, mixture = ?
		 WHERE id = ?`,
		sum.Iterations, clampInf(sum.Objective), clampInf(sum.UpperBound), sum.Stop.String(),
		sum.Elapsed.Nanoseconds(), blob, sum.RunID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, sum.RunID)
	}
	return nil
}

// Runs lists runs, newest first.
func (l *RunLog) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, algorithm, instance, started_at, finished, iterations, objective, upper_bound, stop, elapsed_ns
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var started, elapsed int64
		if err := rows.Scan(&r.ID, &r.Algorithm, &r.Instance, &started, &r.Finished, &r.Iterations,
			&r.Objective, &r.UpperBound, &r.Stop, &elapsed); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		r.Elapsed = time.Duration(elapsed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Iterations returns the records of one run in order.
func (l *RunLog) Iterations(ctx context.Context, runID string) ([]algo.IterationRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT iteration, objective, upper_bound, gap, dual_distance, duals, columns, elapsed_ns
		 FROM iterations WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []algo.IterationRecord
	for rows.Next() {
		rec := algo.IterationRecord{RunID: runID}
		var duals string
		var elapsed int64
		if err := rows.Scan(&rec.Iteration, &rec.Objective, &rec.UpperBound, &rec.Gap,
			&rec.DualDistance, &duals, &rec.Columns, &elapsed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(duals), &rec.Duals); err != nil {
			return nil, fmt.Errorf("decode duals: %w", err)
		}
		rec.Elapsed = time.Duration(elapsed)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Mixture returns the final mixture summary of a run, one slice per agent.
func (l *RunLog) Mixture(ctx context.Context, runID string) ([][]ColumnSummary, error) {
	var blob []byte
	err := l.db.QueryRowContext(ctx, `SELECT mixture FROM runs WHERE id = ?`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, nil
	}
	return decodeMixture(blob)
}

func summarize(sol *core.Solution) [][]ColumnSummary {
	out := make([][]ColumnSummary, sol.NumAgents())
	for i, mix := range sol.Mixtures {
		for j, col := range mix.Columns {
			out[i] = append(out[i], ColumnSummary{
				Weight: mix.Weights[j],
				Policy: col.Policy.Kind().String(),
				Reward: col.ExpectedReward,
				Cost:   append([]float64(nil), col.ExpectedCost.Total...),
			})
		}
	}
	return out
}

var (
	encOnce  sync.Once
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	codecErr error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	encOnce.Do(func() {
		enc, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		dec, codecErr = zstd.NewReader(nil)
	})
	return enc, dec, codecErr
}

func encodeMixture(m [][]ColumnSummary) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	e, _, err := codecs()
	if err != nil {
		return nil, err
	}
	return e.EncodeAll(raw, nil), nil
}

func decodeMixture(blob []byte) ([][]ColumnSummary, error) {
	_, d, err := codecs()
	if err != nil {
		return nil, err
	}
	raw, err := d.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress mixture: %w", err)
	}
	var m [][]ColumnSummary
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
