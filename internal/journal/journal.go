// Package journal records every p4 invocation, grouped by the CLI operation
// that issued it, in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"

	"p4-go/internal/journal/migrations"
	"p4-go/internal/p4"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Invocation status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusRunning = "running"
)

// IDGenerator produces invocation IDs.
type IDGenerator interface {
	New() string
}

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// Operation is one CLI command that issued p4 invocations.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Entry is one recorded p4 invocation.
type Entry struct {
	ID          string
	OperationID sql.NullInt64
	Command     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	Error       string
}

func (e *Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Journal is the SQLite-backed invocation log. It implements p4.Observer.
type Journal struct {
	db     *sql.DB
	ids    IDGenerator
	clock  p4.Clock
	logger p4.Logger
	path   string

	// operationID links new invocations to the running operation; 0 means none.
	operationID int64
}

// Options configures a Journal. Nil fields get real implementations.
type Options struct {
	IDs    IDGenerator
	Clock  p4.Clock
	Logger p4.Logger
}

// Open opens (creating if needed) the journal database at path.
// path can be a file path or ":memory:". The schema is not migrated.
func Open(path string, opts Options) (*Journal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	j := NewJournalFromDB(db, opts)
	j.path = path
	return j, nil
}

// NewJournalFromDB wraps an existing connection.
func NewJournalFromDB(db *sql.DB, opts Options) *Journal {
	j := &Journal{db: db, ids: opts.IDs, clock: opts.Clock, logger: opts.Logger}
	if j.ids == nil {
		j.ids = UUIDGenerator{}
	}
	if j.clock == nil {
		j.clock = p4.RealClock{}
	}
	if j.logger == nil {
		j.logger = p4.NewNopLogger()
	}
	return j
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// A second pooled connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate brings the schema to the latest version.
func (j *Journal) Migrate() error {
	return migrations.Up(j.db)
}

// CheckMigrations verifies the schema is up-to-date.
func (j *Journal) CheckMigrations() error {
	return migrations.CheckStatus(j.db)
}

// Path is the database location given to Open.
func (j *Journal) Path() string { return j.path }

// BeginOperation starts a new operation; invocations recorded until
// FinishOperation are linked to it.
func (j *Journal) BeginOperation(operation, parameters string) (int64, error) {
	res, err := j.db.ExecContext(context.Background(),
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		j.clock.Now().UTC(), operation, parameters, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading operation id: %w", err)
	}
	j.operationID = id
	return id, nil
}

// FinishOperation closes the running operation with status.
func (j *Journal) FinishOperation(status string) error {
	if j.operationID == 0 {
		return errors.New("no operation in progress")
	}
	_, err := j.db.ExecContext(context.Background(),
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		j.clock.Now().UTC(), status, j.operationID)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	j.operationID = 0
	return nil
}

// Record stores one finished invocation.
func (j *Journal) Record(inv p4.Invocation) (*Entry, error) {
	e := &Entry{
		ID:         j.ids.New(),
		Command:    shellquote.Join(inv.Command...),
		StartedAt:  inv.Started.UTC(),
		FinishedAt: inv.Finished.UTC(),
		Status:     StatusSuccess,
	}
	if inv.Err != nil {
		e.Status = StatusError
		e.Error = strings.TrimSpace(inv.Err.Error())
	}
	if j.operationID != 0 {
		e.OperationID = sql.NullInt64{Int64: j.operationID, Valid: true}
	}

	_, err := j.db.ExecContext(context.Background(),
		`INSERT INTO invocations (id, operation_id, command, started_at, finished_at, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OperationID, e.Command, e.StartedAt, e.FinishedAt, e.Status, e.Error)
	if err != nil {
		return nil, fmt.Errorf("recording invocation: %w", err)
	}
	return e, nil
}

// CommandFinished records inv; a storage failure is logged and dropped so
// that journaling never fails a p4 command.
func (j *Journal) CommandFinished(inv p4.Invocation) {
	if _, err := j.Record(inv); err != nil {
		j.logger.Warn("journal write failed", "error", err)
	}
}

// List returns the most recent invocations, newest first.
func (j *Journal) List(limit int) ([]*Entry, error) {
	rows, err := j.db.QueryContext(context.Background(),
		`SELECT id, operation_id, command, started_at, finished_at, status, error
		 FROM invocations ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing invocations: %w", err)
	}
	return scanEntries(rows)
}

// Invocations returns the invocations of one operation in execution order.
func (j *Journal) Invocations(operationID int64) ([]*Entry, error) {
	rows, err := j.db.QueryContext(context.Background(),
		`SELECT id, operation_id, command, started_at, finished_at, status, error
		 FROM invocations WHERE operation_id = ? ORDER BY rowid`, operationID)
	if err != nil {
		return nil, fmt.Errorf("listing invocations for operation %d: %w", operationID, err)
	}
	return scanEntries(rows)
}

// ListOperations returns the most recent operations, newest first.
func (j *Journal) ListOperations(limit int) ([]*Operation, error) {
	rows, err := j.db.QueryContext(context.Background(),
		`SELECT id, operation, parameters, status, started_at, finished_at
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &op.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OperationID, &e.Command, &e.StartedAt, &e.FinishedAt, &e.Status, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning invocation: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading invocations: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
