// Package db provides the on-device record store for tasksync.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3, WAL mode)
// holding the canonical local copy of every task. It is the source of truth
// for reads; the remote collection is reconciled into it by internal/sync.
//
// Architecture:
//   - Database file: $TSK_HOME/tasks.db
//   - WAL mode: concurrent readers during writes
//   - Writes: serialized through Write, one SQLite transaction each
//   - Schema: tasks, schema_meta (versioned migrations)
//   - Observation: Subscribe delivers committed changes in commit order
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

var (
	// ErrNotFound is returned when a task id is not in the store.
	ErrNotFound = errors.New("task not found")

	// ErrSchemaTooNew is returned by InitSchema when the file was written
	// by a newer binary.
	ErrSchemaTooNew = errors.New("database schema is newer than this binary")
)

// timeLayout is fixed-width so TEXT ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = `id, title, description, is_completed, created_at, updated_at, synced, user_id`

// DB wraps the SQLite connection with task-specific operations.
type DB struct {
	conn *sql.DB
	path string

	// writeMu serializes write transactions and change delivery.
	writeMu sync.Mutex

	obsMu     sync.RWMutex
	observers map[int]func(Change)
	nextObsID int
}

// Open creates a new database connection at the specified path.
//
// The database is opened in WAL mode. Call InitSchema before use.
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open(filepath.Join(home, "tasks.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection
	// gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:      conn,
		path:      path,
		observers: make(map[int]func(Change)),
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// Get retrieves a single task by ID.
// Returns ErrNotFound if the task is not in the store.
func (db *DB) Get(ctx context.Context, id string) (*schema.Task, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return task, nil
}

// ListOptions configures ListByUser.
type ListOptions struct {
	// HideCompleted drops tasks with isCompleted = true.
	HideCompleted bool
	// UnsyncedOnly keeps only tasks that still owe a push.
	UnsyncedOnly bool
	// Since keeps tasks created at or after this instant (zero = no bound).
	Since time.Time
	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// ListByUser returns the tasks owned by userID, newest first.
//
// The owner filter is an exact match; a task is never returned for any
// other user id.
func (db *DB) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*schema.Task, error) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{userID}

	if opts.HideCompleted {
		conditions = append(conditions, "is_completed = 0")
	}
	if opts.UnsyncedOnly {
		conditions = append(conditions, "synced = 0")
	}
	if !opts.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(opts.Since))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC`

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// Counts summarizes a user's tasks.
type Counts struct {
	Total     int
	Completed int
	Unsynced  int
}

// CountByUser returns task counts for userID.
func (db *DB) CountByUser(ctx context.Context, userID string) (Counts, error) {
	var c Counts
	err := db.conn.QueryRowContext(ctx, `
	SELECT COUNT(*),
	       COALESCE(SUM(is_completed), 0),
	       COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0)
	FROM tasks WHERE user_id = ?`, userID).Scan(&c.Total, &c.Completed, &c.Unsynced)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count tasks: %w", err)
	}
	return c, nil
}

// GetTaskCount returns the total number of tasks in the database, all owners.
func (db *DB) GetTaskCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get task count: %w", err)
	}
	return count, nil
}

// Write runs fn inside one transaction.
//
// Either every change fn makes is committed or none is. Writes are
// serialized. After a successful commit the changes are delivered to
// observers in the order they were made; observers run on the writing
// goroutine and must not call Write themselves.
func (db *DB) Write(ctx context.Context, fn func(tx *Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.notify(tx.changes)
	return nil
}

// MarkSynced acknowledges a successful remote write of task id at version
// (the UpdatedAt the push was built from).
//
// It sets synced = true only if the record still exists and has not been
// mutated since. A missing record is not an error: it reports false.
func (db *DB) MarkSynced(ctx context.Context, id string, version time.Time) (bool, error) {
	applied := false
	err := db.Write(ctx, func(tx *Tx) error {
		task, err := tx.Get(id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !task.UpdatedAt.Equal(version) || task.Synced {
			return nil
		}

		res, err := tx.tx.ExecContext(tx.ctx,
			`UPDATE tasks SET synced = 1 WHERE id = ? AND updated_at = ?`,
			id, formatTime(version))
		if err != nil {
			return fmt.Errorf("failed to mark task %s synced: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		task.Synced = true
		tx.record(Change{Op: OpSynced, TaskID: id, UserID: task.UserID, Task: task})
		applied = true
		return nil
	})
	return applied, err
}

// Tx is an open write transaction. It is only valid inside Write.
type Tx struct {
	ctx     context.Context
	tx      *sql.Tx
	changes []Change
}

// Get reads a task inside the transaction.
// Returns ErrNotFound if it does not exist.
func (tx *Tx) Get(id string) (*schema.Task, error) {
	row := tx.tx.QueryRowContext(tx.ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return task, nil
}

// Upsert inserts the task or updates every field of the existing row with
// the same id.
func (tx *Tx) Upsert(task *schema.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		is_completed = excluded.is_completed,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		synced = excluded.synced,
		user_id = excluded.user_id
	`

	_, err := tx.tx.ExecContext(tx.ctx, query,
		task.ID,
		task.Title,
		nullString(task.Description),
		boolToInt(task.IsCompleted),
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
		boolToInt(task.Synced),
		task.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
	}

	tx.record(Change{Op: OpUpsert, TaskID: task.ID, UserID: task.UserID, Task: task.Clone()})
	return nil
}

// Delete removes a task. It reports whether a row was removed; deleting a
// missing task is not an error.
func (tx *Tx) Delete(id string) (bool, error) {
	var userID string
	err := tx.tx.QueryRowContext(tx.ctx, `SELECT user_id FROM tasks WHERE id = ?`, id).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up task %s: %w", id, err)
	}

	if _, err := tx.tx.ExecContext(tx.ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete task %s: %w", id, err)
	}

	tx.record(Change{Op: OpDelete, TaskID: id, UserID: userID})
	return true, nil
}

func (tx *Tx) record(c Change) {
	tx.changes = append(tx.changes, c)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*schema.Task, error) {
	var task schema.Task
	var description sql.NullString
	var isCompleted, synced int
	var createdAt, updatedAt string

	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&isCompleted,
		&createdAt,
		&updatedAt,
		&synced,
		&task.UserID,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.IsCompleted = isCompleted != 0
	task.Synced = synced != 0

	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &task, nil
}

// scanTasks is a helper function to scan multiple tasks from query results.
func scanTasks(rows *sql.Rows) ([]*schema.Task, error) {
	var tasks []*schema.Task

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the fixed-width layout and the second-precision RFC3339
// values written by schema version 1.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
