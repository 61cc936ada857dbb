package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sadopc/done/internal/model"
	_ "modernc.org/sqlite"
)

// Store is one user's local database.
type Store struct {
	db     *sql.DB
	userID string
	path   string
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	// Configure pragmas.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UserID is the identity this store belongs to; empty for stores opened
// outside a Registry.
func (s *Store) UserID() string { return s.userID }

func (s *Store) Path() string { return s.path }

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, persistErr("read user_version", err)
	}
	return version, nil
}

func (s *Store) Projects() *Table[model.Project] { return &Table[model.Project]{q: s.db, def: projectsTable} }
func (s *Store) Items() *Table[model.Item]       { return &Table[model.Item]{q: s.db, def: itemsTable} }
func (s *Store) Subtasks() *Table[model.Subtask] { return &Table[model.Subtask]{q: s.db, def: subtasksTable} }
func (s *Store) Comments() *Table[model.Comment] { return &Table[model.Comment]{q: s.db, def: commentsTable} }

// Tx exposes the tables inside one transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Projects() *Table[model.Project] { return &Table[model.Project]{q: t.tx, def: projectsTable} }
func (t *Tx) Items() *Table[model.Item]       { return &Table[model.Item]{q: t.tx, def: itemsTable} }
func (t *Tx) Subtasks() *Table[model.Subtask] { return &Table[model.Subtask]{q: t.tx, def: subtasksTable} }
func (t *Tx) Comments() *Table[model.Comment] { return &Table[model.Comment]{q: t.tx, def: commentsTable} }

// Apply writes every upsert and deletion of cs. Deletions run first.
func (t *Tx) Apply(ctx context.Context, cs model.ChangeSet) error {
	if err := t.Comments().BulkDelete(ctx, cs.DeletedComments); err != nil {
		return err
	}
	if err := t.Subtasks().BulkDelete(ctx, cs.DeletedSubtasks); err != nil {
		return err
	}
	if err := t.Items().BulkDelete(ctx, cs.DeletedItems); err != nil {
		return err
	}
	if err := t.Projects().BulkDelete(ctx, cs.DeletedProjects); err != nil {
		return err
	}
	if err := t.Projects().BulkPut(ctx, cs.Projects); err != nil {
		return err
	}
	if err := t.Items().BulkPut(ctx, cs.Items); err != nil {
		return err
	}
	if err := t.Subtasks().BulkPut(ctx, cs.Subtasks); err != nil {
		return err
	}
	return t.Comments().BulkPut(ctx, cs.Comments)
}

// Transaction runs fn in a single transaction: either every write made
// through tx commits or none does. Errors returned by fn are passed through
// unchanged; begin/commit failures are persistence errors.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, persistErr("rollback", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	return nil
}

// Apply writes cs in one transaction.
func (s *Store) Apply(ctx context.Context, cs model.ChangeSet) error {
	return s.Transaction(ctx, func(tx *Tx) error { return tx.Apply(ctx, cs) })
}

// Load reads every table.
func (s *Store) Load(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	var err error
	if snap.Projects, err = s.Projects().All(ctx); err != nil {
		return snap, err
	}
	if snap.Items, err = s.Items().All(ctx); err != nil {
		return snap, err
	}
	if snap.Subtasks, err = s.Subtasks().All(ctx); err != nil {
		return snap, err
	}
	if snap.Comments, err = s.Comments().All(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

// DefaultDataDir returns ~/.config/done (or the platform equivalent).
func DefaultDataDir() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "done"), nil
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &model.PersistenceError{Op: op, Err: err}
}
