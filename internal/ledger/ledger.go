// Package ledger records runs, driver state transitions and external tool
// invocations in a SQLite database kept next to the run logs.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// FileName is the ledger database created under logs/.
const FileName = "sherlock.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	output_dir  TEXT NOT NULL,
	manifest    TEXT NOT NULL,
	version     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	state       TEXT,
	exit_code   INTEGER
);
CREATE TABLE IF NOT EXISTS transitions (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	seq        INTEGER NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	at         TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS invocations (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	tool        TEXT NOT NULL,
	subject     TEXT NOT NULL,
	command     TEXT NOT NULL,
	attempt     INTEGER NOT NULL,
	exit_code   INTEGER NOT NULL,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	killed      INTEGER NOT NULL,
	error       TEXT NOT NULL
);`

const timeLayout = time.RFC3339Nano

// Run describes one execution of the pipeline.
type Run struct {
	ID        string
	OutputDir string
	Manifest  string
	Version   string
	StartedAt time.Time
}

// Transition is one move of the driver state machine.
type Transition struct {
	From string
	To   string
	At   time.Time
}

// Invocation is one attempt at running an external tool.
type Invocation struct {
	Tool      string
	Subject   string
	Command   string
	Attempt   int
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
	Killed    bool
	Error     string
}

// Ledger is safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create ledger directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open ledger %s", path)
	}
	// a single connection serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, errors.Wrap(err, "unable to create ledger tables")
	}

	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts run.
func (l *Ledger) StartRun(ctx context.Context, run Run) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, output_dir, manifest, version, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.OutputDir, run.Manifest, run.Version, run.StartedAt.UTC().Format(timeLayout))

	return errors.Wrapf(err, "unable to record run %s", run.ID)
}

// FinishRun stores the final state and exit code of a run.
func (l *Ledger) FinishRun(ctx context.Context, runID, state string, exitCode int, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, state = ?, exit_code = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), state, exitCode, runID)

	return errors.Wrapf(err, "unable to finish run %s", runID)
}

// RecordTransition appends a transition to the history of a run.
func (l *Ledger) RecordTransition(ctx context.Context, runID string, tr Transition) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO transitions (run_id, seq, from_state, to_state, at)
		 VALUES (?, (SELECT COUNT(*) FROM transitions WHERE run_id = ?), ?, ?, ?)`,
		runID, runID, tr.From, tr.To, tr.At.UTC().Format(timeLayout))

	return errors.Wrapf(err, "unable to record transition %s -> %s", tr.From, tr.To)
}

// RecordInvocation stores one tool attempt.
func (l *Ledger) RecordInvocation(ctx context.Context, runID string, inv Invocation) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO invocations (run_id, tool, subject, command, attempt, exit_code, started_at, duration_ms, killed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, inv.Tool, inv.Subject, inv.Command, inv.Attempt, inv.ExitCode,
		inv.StartedAt.UTC().Format(timeLayout), inv.Duration.Milliseconds(), inv.Killed, inv.Error)

	return errors.Wrapf(err, "unable to record %s invocation for %s", inv.Tool, inv.Subject)
}

// Transitions returns the transitions of a run in order.
func (l *Ledger) Transitions(ctx context.Context, runID string) ([]Transition, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT from_state, to_state, at FROM transitions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query transitions")
	}
	defer func() { _ = rows.Close() }()

	var res []Transition
	for rows.Next() {
		var tr Transition
		var at string
		if err := rows.Scan(&tr.From, &tr.To, &at); err != nil {
			return nil, errors.Wrap(err, "unable to scan transition")
		}
		tr.At, err = time.Parse(timeLayout, at)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid transition time %q", at)
		}
		res = append(res, tr)
	}

	return res, errors.Wrap(rows.Err(), "unable to read transitions")
}

// Invocations returns the tool invocations of a run in insertion order.
func (l *Ledger) Invocations(ctx context.Context, runID string) ([]Invocation, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT tool, subject, command, attempt, exit_code, started_at, duration_ms, killed, error
		 FROM invocations WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query invocations")
	}
	defer func() { _ = rows.Close() }()

	var res []Invocation
	for rows.Next() {
		var inv Invocation
		var startedAt string
		var durationMS int64
		if err := rows.Scan(&inv.Tool, &inv.Subject, &inv.Command, &inv.Attempt, &inv.ExitCode,
			&startedAt, &durationMS, &inv.Killed, &inv.Error); err != nil {
			return nil, errors.Wrap(err, "unable to scan invocation")
		}
		inv.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid invocation time %q", startedAt)
		}
		inv.Duration = time.Duration(durationMS) * time.Millisecond
		res = append(res, inv)
	}

	return res, errors.Wrap(rows.Err(), "unable to read invocations")
}

// RunState returns the final state and exit code of a run. ok is false while
// the run has not finished.
func (l *Ledger) RunState(ctx context.Context, runID string) (state string, exitCode int, ok bool, err error) {
	var st sql.NullString
	var code sql.NullInt64
	err = l.db.QueryRowContext(ctx, `SELECT state, exit_code FROM runs WHERE id = ?`, runID).Scan(&st, &code)
	if err != nil {
		return "", 0, false, errors.Wrapf(err, "unable to read run %s", runID)
	}

	return st.String, int(code.Int64), st.Valid, nil
}
