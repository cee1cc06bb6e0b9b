// Package persistence provides SQLite-based storage for sweep runs, trial
// results and mission events.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/rescue-sweep/internal/engine"
	"github.com/talgya/rescue-sweep/internal/mission"
)

// DB wraps a SQLite connection for sweep results.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Shards write from several goroutines; SQLite takes one writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		policy TEXT NOT NULL,
		config TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE TABLE IF NOT EXISTS trials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		shard INTEGER NOT NULL,
		trial INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		alpha REAL NOT NULL,
		beta REAL NOT NULL,
		gamma REAL NOT NULL,
		ticks INTEGER NOT NULL,
		sim_time REAL NOT NULL,
		rescued INTEGER NOT NULL,
		victims INTEGER NOT NULL,
		drones_done INTEGER NOT NULL,
		drones INTEGER NOT NULL,
		heat REAL NOT NULL,
		pending INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		trial INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		time REAL NOT NULL,
		entity TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sweep_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trials_run ON trials(run_id, trial);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, trial, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunInfo is a row of the runs table.
type RunInfo struct {
	ID         string  `db:"id"`
	Scenario   string  `db:"scenario"`
	Policy     string  `db:"policy"`
	Config     string  `db:"config"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
}

// Run records the results of one sweep invocation. It implements
// engine.Recorder and is safe for concurrent use.
type Run struct {
	db *DB
	ID string
}

// BeginRun registers a new sweep run and returns its recorder.
func (db *DB) BeginRun(scenario, policy, config string) (*Run, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, scenario, policy, config, started_at) VALUES (?, ?, ?, ?, ?)",
		id, scenario, policy, config, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	slog.Info("run registered", "run", id, "scenario", scenario, "policy", policy)
	return &Run{db: db, ID: id}, nil
}

// Finish stamps the run's finish time.
func (r *Run) Finish() error {
	_, err := r.db.conn.Exec("UPDATE runs SET finished_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), r.ID)
	return err
}

// SaveTrial appends one trial result.
func (r *Run) SaveTrial(res engine.Result) error {
	s := res.Summary
	_, err := r.db.conn.Exec(`INSERT INTO trials
		(run_id, shard, trial, seed, alpha, beta, gamma, ticks, sim_time,
		 rescued, victims, drones_done, drones, heat, pending, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, res.Shard, res.Trial, res.Seed,
		res.Params.Alpha, res.Params.Beta, res.Params.Gamma,
		s.Ticks, res.Time, s.Rescued, s.Victims, s.DronesDone, s.Drones,
		s.Heat, s.Pending, res.Elapsed.Milliseconds(),
	)
	return err
}

// SaveEvents appends the events of one trial.
func (r *Run) SaveEvents(res engine.Result, events []mission.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO events
		(run_id, trial, tick, time, entity, category, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(r.ID, res.Trial, e.Tick, e.Time, e.Entity, e.Category, e.Description); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// TrialRow is a row of the trials table.
type TrialRow struct {
	ID         int64   `json:"id" db:"id"`
	RunID      string  `json:"run_id" db:"run_id"`
	Shard      int     `json:"shard" db:"shard"`
	Trial      int     `json:"trial" db:"trial"`
	Seed       int64   `json:"seed" db:"seed"`
	Alpha      float64 `json:"alpha" db:"alpha"`
	Beta       float64 `json:"beta" db:"beta"`
	Gamma      float64 `json:"gamma" db:"gamma"`
	Ticks      int     `json:"ticks" db:"ticks"`
	SimTime    float64 `json:"sim_time" db:"sim_time"`
	Rescued    int     `json:"rescued" db:"rescued"`
	Victims    int     `json:"victims" db:"victims"`
	DronesDone int     `json:"drones_done" db:"drones_done"`
	Drones     int     `json:"drones" db:"drones"`
	Heat       float64 `json:"heat" db:"heat"`
	Pending    int     `json:"pending" db:"pending"`
	ElapsedMS  int64   `json:"elapsed_ms" db:"elapsed_ms"`
}

// TrialResults returns every trial of a run in trial order.
func (db *DB) TrialResults(runID string) ([]TrialRow, error) {
	var rows []TrialRow
	err := db.conn.Select(&rows, "SELECT * FROM trials WHERE run_id = ? ORDER BY trial", runID)
	return rows, err
}

// GetRun returns one run by id.
func (db *DB) GetRun(id string) (RunInfo, error) {
	var run RunInfo
	err := db.conn.Get(&run, "SELECT * FROM runs WHERE id = ?", id)
	return run, err
}

// Runs returns all registered runs, newest first.
func (db *DB) Runs() ([]RunInfo, error) {
	var runs []RunInfo
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, id")
	return runs, err
}

// RecentEvents returns the most recent N events of a run.
func (db *DB) RecentEvents(runID string, limit int) ([]mission.Event, error) {
	var events []mission.Event
	err := db.conn.Select(&events,
		`SELECT tick, time, entity, category, description FROM events
		 WHERE run_id = ? ORDER BY id DESC LIMIT ?`,
		runID, limit,
	)
	return events, err
}

// PointStats aggregates the trials of one parameter point.
type PointStats struct {
	Alpha       float64 `json:"alpha" db:"alpha"`
	Beta        float64 `json:"beta" db:"beta"`
	Gamma       float64 `json:"gamma" db:"gamma"`
	Trials      int     `json:"trials" db:"trials"`
	MeanRescued float64 `json:"mean_rescued" db:"mean_rescued"`
	MeanHeat    float64 `json:"mean_heat" db:"mean_heat"`
}

// PointSummary averages a run's trials per (alpha, beta, gamma) point.
func (db *DB) PointSummary(runID string) ([]PointStats, error) {
	var out []PointStats
	err := db.conn.Select(&out, `SELECT alpha, beta, gamma, COUNT(*) AS trials,
		AVG(rescued) AS mean_rescued, AVG(heat) AS mean_heat
		FROM trials WHERE run_id = ?
		GROUP BY alpha, beta, gamma ORDER BY alpha, beta, gamma`, runID)
	return out, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO sweep_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sweep_meta WHERE key = ?", key)
	return value, err
}
