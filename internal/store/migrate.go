package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration moves the schema from version-1 to version. Each one runs in its
// own transaction together with the user_version bump, so a failure leaves
// the previous version intact and the migration is retried on next open.
// Statements are written so that re-running them is harmless.
type migration struct {
	version int
	name    string
	up      func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, name: "base schema", up: migrateV1},
	{version: 2, name: "hierarchy and ordering", up: migrateV2},
	{version: 3, name: "comments", up: migrateV3},
}

var currentVersion = migrations[len(migrations)-1].version

func (s *Store) migrate(ctx context.Context) error {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version >= currentVersion {
		return nil
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *Store) runMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := m.up(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		color       TEXT NOT NULL DEFAULT '#6366f1',
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'pending',
		priority    TEXT NOT NULL DEFAULT 'medium',
		deadline    TEXT,
		category    TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at);

	CREATE TABLE IF NOT EXISTS subtasks (
		id          TEXT PRIMARY KEY,
		todo_id     TEXT NOT NULL,
		title       TEXT NOT NULL,
		completed   INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_subtasks_todo ON subtasks(todo_id);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO settings (key, value) VALUES
		('locale',             'en'),
		('theme',              'system'),
		('isThreeStepEnabled', 'false'),
		('pinnedTaskIds',      '[]');
	`
	_, err := tx.ExecContext(ctx, ddl)
	return err
}

func migrateV2(ctx context.Context, tx *sql.Tx) error {
	columns := []struct{ table, column, decl string }{
		{"projects", "icon", "TEXT NOT NULL DEFAULT ''"},
		{"projects", "description", "TEXT NOT NULL DEFAULT ''"},
		{"projects", "deadline", "TEXT"},
		{"projects", "sort_order", "INTEGER NOT NULL DEFAULT 0"},
		{"projects", "is_pinned", "INTEGER NOT NULL DEFAULT 0"},
		{"projects", "is_default", "INTEGER NOT NULL DEFAULT 0"},
		{"items", "category_id", "TEXT"},
		{"items", "recurrence", "TEXT NOT NULL DEFAULT ''"},
		{"items", "is_subtask_process_enabled", "INTEGER NOT NULL DEFAULT 0"},
		{"items", "sort_order", "INTEGER NOT NULL DEFAULT 0"},
		{"subtasks", "parent_id", "TEXT"},
		{"subtasks", "status", "TEXT NOT NULL DEFAULT 'pending'"},
		{"subtasks", "sort_order", "INTEGER NOT NULL DEFAULT 0"},
	}
	for _, c := range columns {
		if err := addColumn(ctx, tx, c.table, c.column, c.decl); err != nil {
			return err
		}
	}

	// Backfill: status mirrors the old boolean, items lose the
	// in-progress state, and existing rows keep their creation order.
	const backfill = `
	UPDATE subtasks SET status = 'completed' WHERE completed = 1 AND status <> 'completed';
	UPDATE items SET status = 'pending' WHERE status NOT IN ('pending', 'completed');
	UPDATE items SET sort_order = (
		SELECT COUNT(*) FROM items AS o WHERE o.created_at < items.created_at
	) WHERE sort_order = 0;
	UPDATE projects SET sort_order = (
		SELECT COUNT(*) FROM projects AS o WHERE o.created_at < projects.created_at
	) WHERE sort_order = 0;

	CREATE INDEX IF NOT EXISTS idx_subtasks_parent  ON subtasks(parent_id);
	CREATE INDEX IF NOT EXISTS idx_items_category   ON items(category_id);
	`
	_, err := tx.ExecContext(ctx, backfill)
	return err
}

func migrateV3(ctx context.Context, tx *sql.Tx) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS comments (
		id          TEXT PRIMARY KEY,
		todo_id     TEXT NOT NULL,
		text        TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		user_id     TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_comments_todo ON comments(todo_id);
	`
	_, err := tx.ExecContext(ctx, ddl)
	return err
}

// addColumn adds column to table unless it already exists.
func addColumn(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("table info %s: %w", table, err)
	}
	exists := false
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == column {
			exists = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	if err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
