// Package store persists tickets, retrieval checkpoints and weekly reports in a
// local SQLite database.
//
// All access goes through a Session, which wraps one transaction and commits
// it on every exit path. Each Upsert inside a session is atomic on its own.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/pkg/models"

	_ "modernc.org/sqlite"
)

// DBName is the database file created under the storage root.
const DBName = "jira.db"

// Table names.
const (
	TableTicket        = "ticket"
	TableLastRetrieval = "last_retrieval"
	TableWeeklyReport  = "weekly_report"
)

// CheckpointLayout is the minute-precision layout returned by LatestValue.
const CheckpointLayout = "2006-01-02 15:04"

var (
	// ErrStorageInit is returned when the storage root or database cannot be created or opened.
	ErrStorageInit = errors.New("storage initialization failed")
	// ErrSchemaMismatch is returned when rows passed to one Upsert do not share
	// the table's arity.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrUnknownTable is returned for table names outside the fixed schema.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownColumn is returned for column names outside the fixed schema.
	ErrUnknownColumn = errors.New("unknown column")
)

type tableDef struct {
	columns []string
	ddl     string
}

var schema = map[string]tableDef{
	TableTicket: {
		columns: []string{"key", "reporter", "assignee", "description", "status", "comment", "changelog", "createdDate", "raw"},
		ddl:     `CREATE TABLE IF NOT EXISTS ticket(key TEXT PRIMARY KEY, reporter TEXT NOT NULL, assignee TEXT NOT NULL, description TEXT, status TEXT NOT NULL, comment TEXT, changelog TEXT, createdDate TEXT NOT NULL, raw TEXT NOT NULL)`,
	},
	TableLastRetrieval: {
		columns: []string{"retrievalDate", "retrievalCount"},
		ddl:     `CREATE TABLE IF NOT EXISTS last_retrieval(retrievalDate TEXT PRIMARY KEY, retrievalCount INTEGER NOT NULL)`,
	},
	TableWeeklyReport: {
		columns: []string{"week_start", "resolved", "testing", "in_progress", "open", "updatedDate"},
		ddl:     `CREATE TABLE IF NOT EXISTS weekly_report(week_start TEXT PRIMARY KEY, resolved TEXT NOT NULL, testing TEXT NOT NULL, in_progress TEXT NOT NULL, open TEXT NOT NULL, updatedDate TEXT NOT NULL)`,
	},
}

// Store is a handle on the local database.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates rootDir if absent and opens (or creates) the database inside it
// in write-ahead-log mode.
func Open(rootDir string) (*Store, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("%w: empty storage root", ErrStorageInit)
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %v", ErrStorageInit, rootDir, err)
	}

	path := filepath.Join(rootDir, DBName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrStorageInit, path, err)
	}
	// One connection keeps the per-connection pragmas in force and matches the
	// single-writer model.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrStorageInit, pragma, err)
		}
	}

	logging.Debug("opened local store", "path", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables if they do not exist. Safe to call on every run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, name := range []string{TableTicket, TableLastRetrieval, TableWeeklyReport} {
		if _, err := s.db.ExecContext(ctx, schema[name].ddl); err != nil {
			return fmt.Errorf("%w: failed to create table %s: %v", ErrStorageInit, name, err)
		}
	}
	return nil
}

// Session runs fn inside one transaction and commits it on every exit path,
// including when fn returns an error or panics. fn's error and any commit
// error are both returned.
func (s *Store) Session(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Commit()
			panic(p)
		}
		if cerr := sqlTx.Commit(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to commit session: %w", cerr))
		}
	}()

	return fn(&Tx{tx: sqlTx})
}

// WithStore opens the store under rootDir, ensures the schema, runs fn in a
// session and closes the store, whatever fn returns.
func WithStore(ctx context.Context, rootDir string, fn func(tx *Tx) error) (err error) {
	s, err := Open(rootDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close store: %w", cerr))
		}
	}()

	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	return s.Session(ctx, fn)
}

// Tx is the view of the store available inside a Session.
type Tx struct {
	tx *sql.Tx
}

// Upsert replaces rows by primary key. All rows must have the table's arity;
// otherwise nothing is written and ErrSchemaMismatch is returned. The rows are
// written atomically: a failure part way through leaves none of them.
func (t *Tx) Upsert(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	def, ok := schema[table]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	arities := make(map[int]struct{})
	for _, row := range rows {
		arities[len(row)] = struct{}{}
	}
	if len(arities) > 1 {
		return fmt.Errorf("%w: inconsistent number of fields for table %s: %v", ErrSchemaMismatch, table, keys(arities))
	}
	if n := len(rows[0]); n != len(def.columns) {
		return fmt.Errorf("%w: table %s has %d columns, rows have %d fields", ErrSchemaMismatch, table, len(def.columns), n)
	}

	query := fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(def.columns, ", "), strings.TrimSuffix(strings.Repeat("?,", len(def.columns)), ","))

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT upsert"); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}

	if err := t.execAll(ctx, query, rows); err != nil {
		_, _ = t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT upsert")
		_, _ = t.tx.ExecContext(ctx, "RELEASE SAVEPOINT upsert")
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT upsert"); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}

	logging.Debug("upserted rows", "table", table, "count", len(rows))
	return nil
}

func (t *Tx) execAll(ctx context.Context, query string, rows [][]any) error {
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return err
		}
	}
	return nil
}

// LatestValue returns the maximum timestamp stored in table.column, converted
// to loc and truncated to minutes (CheckpointLayout). ok is false when the
// table is empty.
func (t *Tx) LatestValue(ctx context.Context, table, column string, loc *time.Location) (value string, ok bool, err error) {
	if err := checkColumn(table, column); err != nil {
		return "", false, err
	}
	if loc == nil {
		loc = time.UTC
	}

	var raw sql.NullString
	query := fmt.Sprintf("SELECT max(%s) FROM %s", column, table)
	if err := t.tx.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return "", false, fmt.Errorf("failed to read latest %s.%s: %w", table, column, err)
	}
	if !raw.Valid {
		return "", false, nil
	}

	ts, err := models.ParseTimestamp(raw.String)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse %s.%s value %q: %w", table, column, raw.String, err)
	}
	return ts.In(loc).Format(CheckpointLayout), true, nil
}

// CountRows returns the number of rows in table.
func (t *Tx) CountRows(ctx context.Context, table string) (int, error) {
	if _, ok := schema[table]; !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	var n int
	if err := t.tx.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// GetTicket loads one ticket row by key.
func (t *Tx) GetTicket(ctx context.Context, key string) (models.Ticket, bool, error) {
	var tk models.Ticket
	var description, comment, changelog sql.NullString
	err := t.tx.QueryRowContext(ctx,
		"SELECT key, reporter, assignee, description, status, comment, changelog, createdDate, raw FROM ticket WHERE key = ?", key).
		Scan(&tk.Key, &tk.Reporter, &tk.Assignee, &description, &tk.Status, &comment, &changelog, &tk.CreatedDate, &tk.Raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, false, nil
	}
	if err != nil {
		return models.Ticket{}, false, fmt.Errorf("failed to load ticket %s: %w", key, err)
	}
	tk.Description, tk.Comment, tk.Changelog = description.String, comment.String, changelog.String
	return tk, true, nil
}

// GetWeeklyReport loads the report stored for a week start (YYYY-MM-DD).
func (t *Tx) GetWeeklyReport(ctx context.Context, weekStart string) (models.WeeklyReport, bool, error) {
	var r models.WeeklyReport
	err := t.tx.QueryRowContext(ctx,
		"SELECT week_start, resolved, testing, in_progress, open, updatedDate FROM weekly_report WHERE week_start = ?", weekStart).
		Scan(&r.WeekStart, &r.Resolved, &r.Testing, &r.InProgress, &r.Open, &r.UpdatedDate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeeklyReport{}, false, nil
	}
	if err != nil {
		return models.WeeklyReport{}, false, fmt.Errorf("failed to load weekly report %s: %w", weekStart, err)
	}
	return r, true, nil
}

func checkColumn(table, column string) error {
	def, ok := schema[table]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	for _, c := range def.columns {
		if c == column {
			return nil
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
}

func keys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
