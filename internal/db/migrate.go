package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// migration moves the store from version-1 to version.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, apply: migrateV1},
	{version: 2, apply: migrateV2},
}

// migrateV1 creates the tasks table.
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		is_completed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		user_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	`)
	return err
}

// migrateV2 rewrites timestamps into the fixed-width layout so that TEXT
// ordering is chronological, and adds the owner/creation index used by
// ListByUser.
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, created_at, updated_at FROM tasks`)
	if err != nil {
		return err
	}

	type stamp struct{ id, created, updated string }
	var stamps []stamp
	for rows.Next() {
		var s stamp
		if err := rows.Scan(&s.id, &s.created, &s.updated); err != nil {
			rows.Close()
			return err
		}
		stamps = append(stamps, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, s := range stamps {
		created, err := parseTime(s.created)
		if err != nil {
			return fmt.Errorf("task %s: bad created_at %q: %w", s.id, s.created, err)
		}
		updated, err := parseTime(s.updated)
		if err != nil {
			return fmt.Errorf("task %s: bad updated_at %q: %w", s.id, s.updated, err)
		}
		if updated.Before(created) {
			updated = created
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET created_at = ?, updated_at = ? WHERE id = ?`,
			formatTime(created), formatTime(updated), s.id); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
	CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_tasks_unsynced ON tasks(user_id) WHERE synced = 0;
	`)
	return err
}

// InitSchema creates or migrates the schema to schema.Version.
//
// This is idempotent - safe to call multiple times. A store that already
// holds tasks from an older compatible version is migrated in place. A store
// from a newer version returns ErrSchemaTooNew and is left untouched.
func (db *DB) InitSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	current, err := db.storedVersion(ctx)
	if err != nil {
		return err
	}
	if current > schema.Version {
		return fmt.Errorf("%w: file is version %d, binary supports %d", ErrSchemaTooNew, current, schema.Version)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx); err != nil {
		return fmt.Errorf("migration to version %d failed: %w", m.version, err)
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO schema_meta (key, value) VALUES ('version', ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(m.version)); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
	}
	return nil
}

// SchemaVersion returns the version recorded in the store.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return db.storedVersion(ctx)
}

// storedVersion reads schema_meta. A tasks table without a version row is
// treated as version 1, the layout that predates schema_meta.
func (db *DB) storedVersion(ctx context.Context) (int, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var n int
		if err := db.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tasks'`).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to inspect schema: %w", err)
		}
		if n > 0 {
			return 1, nil
		}
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", raw, err)
	}
	return v, nil
}
