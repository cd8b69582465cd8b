// Package store persists analysis runs, their defects and the converged
// block states in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"go/token"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gnolang/absint/internal/analysis/interp"
	"github.com/gnolang/absint/internal/analysis/state"
	tt "github.com/gnolang/absint/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// Phases of a stored block state.
const (
	PhaseIn  = "in"
	PhaseOut = "out"
)

// Store is a handle on one results database.
type Store struct {
	db *sql.DB
}

// Run is one analysis of one module.
type Run struct {
	ID        string
	Module    string
	StartedAt time.Time
	// Config is the effective configuration, as written to the config file.
	Config  string
	Defects []tt.Issue
	States  []StateDump
}

// StateDump is the textual abstract state at the entry or exit of a block.
type StateDump struct {
	Function string
	Block    string
	Phase    string
	Dump     string
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun writes run with its defects and states in one transaction. A run
// without ID gets a fresh time-ordered one, which is returned.
func (s *Store) SaveRun(ctx context.Context, run *Run) (string, error) {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("save run: %w", err)
		}
		run.ID = id.String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, module, started_at, config) VALUES (?, ?, ?, ?)`,
		run.ID, run.Module, run.StartedAt.UnixNano(), run.Config,
	); err != nil {
		return "", fmt.Errorf("save run %s: %w", run.ID, err)
	}
	for i, d := range run.Defects {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO defects
			(run_id, seq, rule, category, severity, filename, function, block, line, col, message, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, d.Rule, d.Category, d.Severity.String(), d.Filename, d.Function, d.Block,
			d.Start.Line, d.Start.Column, d.Message, d.Note,
		); err != nil {
			return "", fmt.Errorf("save defect %d of run %s: %w", i, run.ID, err)
		}
	}
	for _, st := range run.States {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO states (run_id, function, block, phase, dump) VALUES (?, ?, ?, ?, ?)`,
			run.ID, st.Function, st.Block, st.Phase, st.Dump,
		); err != nil {
			return "", fmt.Errorf("save state %s:%s of run %s: %w", st.Function, st.Block, run.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// Runs lists the runs of module, newest first. An empty module lists all
// runs. Defects and states are not loaded.
func (s *Store) Runs(ctx context.Context, module string) ([]Run, error) {
	query := `SELECT id, module, started_at, config FROM runs`
	var args []any
	if module != "" {
		query += ` WHERE module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY started_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.Module, &started, &r.Config); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Defects returns the defects of a run in the order they were saved.
func (s *Store) Defects(ctx context.Context, runID string) ([]tt.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule, category, severity, filename, function, block, line, col, message, note
		FROM defects WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("defects of run %s: %w", runID, err)
	}
	defer rows.Close()

	var issues []tt.Issue
	for rows.Next() {
		var i tt.Issue
		var severity string
		var line, col int
		if err := rows.Scan(&i.Rule, &i.Category, &severity, &i.Filename, &i.Function, &i.Block,
			&line, &col, &i.Message, &i.Note); err != nil {
			return nil, fmt.Errorf("defects of run %s: %w", runID, err)
		}
		if i.Severity, err = tt.ParseSeverity(severity); err != nil {
			return nil, fmt.Errorf("defects of run %s: %w", runID, err)
		}
		i.Start = token.Position{Filename: i.Filename, Line: line, Column: col}
		i.End = i.Start
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// States returns the stored states of a run, restricted to function when
// it is not empty.
func (s *Store) States(ctx context.Context, runID, function string) ([]StateDump, error) {
	query := `SELECT function, block, phase, dump FROM states WHERE run_id = ?`
	args := []any{runID}
	if function != "" {
		query += ` AND function = ?`
		args = append(args, function)
	}
	query += ` ORDER BY function, block, phase`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("states of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []StateDump
	for rows.Next() {
		var d StateDump
		if err := rows.Scan(&d.Function, &d.Block, &d.Phase, &d.Dump); err != nil {
			return nil, fmt.Errorf("states of run %s: %w", runID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Dumps renders the converged entry and exit state of every reached block
// of res.
func Dumps(res *interp.Result) ([]StateDump, error) {
	var out []StateDump
	for _, fr := range res.Ordered() {
		for _, b := range fr.Graph.ReversePostOrder() {
			br := fr.Blocks[b]
			if br == nil || br.In == nil {
				continue
			}
			for _, phase := range []struct {
				name string
				st   *state.State
			}{{PhaseIn, br.In}, {PhaseOut, br.Out}} {
				if phase.st == nil {
					continue
				}
				var sb strings.Builder
				if err := phase.st.Dump(&sb); err != nil {
					return nil, fmt.Errorf("dump %s:%s: %w", fr.Func.Name, b.Name, err)
				}
				out = append(out, StateDump{Function: fr.Func.Name, Block: b.Name, Phase: phase.name, Dump: sb.String()})
			}
		}
	}
	return out, nil
}
