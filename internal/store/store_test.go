package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sadopc/done/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(id, title string) model.Item {
	now := time.Now().UTC()
	return model.Item{
		ID:        id,
		Title:     title,
		Status:    model.ItemPending,
		Priority:  model.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ============================================================
// Store initialization
// ============================================================

func TestNewMemory(t *testing.T) {
	s, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	version, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if version != currentVersion {
		t.Fatalf("expected user_version %d, got %d", currentVersion, version)
	}
}

func TestNewWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "done.db")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Items().Put(context.Background(), testItem("i1", "Persisted")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Reopen: data survives and migrations are not re-applied.
	s2, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	it, err := s2.Items().Get(context.Background(), "i1")
	if err != nil {
		t.Fatal(err)
	}
	if it.Title != "Persisted" {
		t.Fatalf("expected Persisted, got %q", it.Title)
	}
}

func TestDefaultDataDir(t *testing.T) {
	dir, err := DefaultDataDir()
	if err != nil {
		t.Skip("no user config dir:", err)
	}
	if filepath.Base(dir) != "done" {
		t.Fatalf("unexpected data dir %q", dir)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
	// Re-running every step on an up-to-date schema is harmless too.
	for _, m := range migrations {
		if err := s.runMigration(context.Background(), m); err != nil {
			t.Fatalf("re-run migration %d: %v", m.version, err)
		}
	}
}

func TestMigrationUpgradesLegacyDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := migrateV1(ctx, tx); err != nil {
		t.Fatal(err)
	}
	legacy := []string{
		`PRAGMA user_version = 1`,
		`INSERT INTO items (id, title, status, category, created_at, updated_at)
			VALUES ('old', 'Legacy', 'in-progress', 'Work', '2024-01-02T10:00:00Z', '2024-01-02T10:00:00Z')`,
		`INSERT INTO items (id, title, status, created_at, updated_at)
			VALUES ('older', 'Older', 'completed', '2024-01-01T10:00:00Z', '2024-01-01T10:00:00Z')`,
		`INSERT INTO subtasks (id, todo_id, title, completed) VALUES ('s1', 'old', 'Done step', 1)`,
		`INSERT INTO subtasks (id, todo_id, title, completed) VALUES ('s2', 'old', 'Open step', 0)`,
	}
	for _, q := range legacy {
		if _, err := tx.Exec(q); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := New(path)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	defer s.Close()

	old, err := s.Items().Get(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != model.ItemPending {
		t.Fatalf("expected legacy in-progress to become pending, got %q", old.Status)
	}
	if old.LegacyCategory != "Work" {
		t.Fatalf("expected legacy category kept, got %q", old.LegacyCategory)
	}
	if old.CategoryID != nil {
		t.Fatal("expected no category id before facade migration")
	}
	if old.Order != 1 {
		t.Fatalf("expected order backfilled from creation time, got %d", old.Order)
	}

	s1, _ := s.Subtasks().Get(ctx, "s1")
	if s1.Status != model.SubtaskCompleted || !s1.Completed {
		t.Fatalf("expected s1 completed, got %+v", s1)
	}
	s2, _ := s.Subtasks().Get(ctx, "s2")
	if s2.Status != model.SubtaskPending || s2.Completed {
		t.Fatalf("expected s2 pending, got %+v", s2)
	}
	if n, _ := s.Comments().Count(ctx); n != 0 {
		t.Fatalf("expected empty comments table, got %d rows", n)
	}
}

// ============================================================
// Tables
// ============================================================

func TestPutAndGetItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	deadline := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	it := testItem("i1", "Write report")
	it.Deadline = &deadline
	it.CategoryID = model.StringPtr("p1")
	it.Recurrence = model.RecurrenceWeekly
	it.IsSubtaskProcessEnabled = true
	it.Order = 3

	if err := s.Items().Put(ctx, it); err != nil {
		t.Fatal(err)
	}
	got, err := s.Items().Get(ctx, "i1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Write report" || got.Order != 3 || !got.IsSubtaskProcessEnabled {
		t.Fatalf("unexpected item %+v", got)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Fatalf("deadline mismatch: %v", got.Deadline)
	}
	if got.CategoryID == nil || *got.CategoryID != "p1" {
		t.Fatalf("category mismatch: %v", got.CategoryID)
	}
	if got.Recurrence != model.RecurrenceWeekly {
		t.Fatalf("recurrence mismatch: %q", got.Recurrence)
	}
	if !got.CreatedAt.Equal(it.CreatedAt) {
		t.Fatalf("createdAt mismatch: %v vs %v", got.CreatedAt, it.CreatedAt)
	}
}

func TestPutReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Items().Put(ctx, testItem("i1", "v1"))
	s.Items().Put(ctx, testItem("i1", "v2"))

	all, err := s.Items().All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Title != "v2" {
		t.Fatalf("expected one item titled v2, got %+v", all)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Projects().Get(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf model.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "project" || nf.ID != "missing" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestCorruptTimestampIsPersistenceError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `INSERT INTO items (id, title, status, created_at, updated_at)
		VALUES ('bad', 'Bad', 'pending', 'yesterday-ish', '2024-01-01T10:00:00Z')`)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Items().Get(ctx, "bad"); !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("expected ErrPersistence from Get, got %v", err)
	}
	if _, err := s.Items().All(ctx); !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("expected ErrPersistence from All, got %v", err)
	}
}

func TestAddDuplicateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Items().Add(ctx, testItem("i1", "first")); err != nil {
		t.Fatal(err)
	}
	err := s.Items().Add(ctx, testItem("i1", "second"))
	if !errors.Is(err, model.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	got, _ := s.Items().Get(ctx, "i1")
	if got.Title != "first" {
		t.Fatalf("duplicate add overwrote record: %q", got.Title)
	}
}

func TestUpdateAndDeleteMissingAreNoOps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Items().Update(ctx, testItem("ghost", "x")); err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if err := s.Items().Delete(ctx, "ghost"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if n, _ := s.Items().Count(ctx); n != 0 {
		t.Fatalf("update of missing id created a row")
	}
}

func TestUpdateExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := model.Project{ID: "p1", Title: "Work", Color: "#fff", CreatedAt: time.Now()}
	s.Projects().Add(ctx, p)
	p.Title = "Office"
	p.IsPinned = true
	if err := s.Projects().Update(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Projects().Get(ctx, "p1")
	if got.Title != "Office" || !got.IsPinned {
		t.Fatalf("unexpected project %+v", got)
	}
}

func TestWhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Subtasks().BulkPut(ctx, []model.Subtask{
		{ID: "a", TodoID: "i1", Title: "A", Order: 1},
		{ID: "b", TodoID: "i1", Title: "B", Order: 0},
		{ID: "c", TodoID: "i2", Title: "C"},
	})

	subs, err := s.Subtasks().Where(ctx, "todo_id", "i1")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].ID != "b" {
		t.Fatalf("unexpected subtasks %+v", subs)
	}
	if _, err := s.Subtasks().Where(ctx, "nope; DROP TABLE subtasks", 1); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestSubtaskParentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Subtasks().Put(ctx, model.Subtask{ID: "p", TodoID: "i1", Title: "Parent", Status: model.SubtaskInProgress})
	s.Subtasks().Put(ctx, model.Subtask{ID: "c", TodoID: "i1", ParentID: model.StringPtr("p"), Title: "Child", Completed: true})

	p, _ := s.Subtasks().Get(ctx, "p")
	if p.ParentID != nil || p.Status != model.SubtaskInProgress || p.Completed {
		t.Fatalf("unexpected parent %+v", p)
	}
	c, _ := s.Subtasks().Get(ctx, "c")
	if c.ParentID == nil || *c.ParentID != "p" {
		t.Fatalf("parent id lost: %+v", c)
	}
	if c.Status != model.SubtaskCompleted {
		t.Fatalf("expected status derived from completed, got %q", c.Status)
	}
}

func TestBulkDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Comments().BulkPut(ctx, []model.Comment{
		{ID: "c1", TodoID: "i1", Text: "one", CreatedAt: time.Now()},
		{ID: "c2", TodoID: "i1", Text: "two", CreatedAt: time.Now()},
		{ID: "c3", TodoID: "i2", Text: "three", CreatedAt: time.Now()},
	})
	if err := s.Comments().BulkDelete(ctx, []string{"c1", "c2", "unknown"}); err != nil {
		t.Fatal(err)
	}
	all, _ := s.Comments().All(ctx)
	if len(all) != 1 || all[0].ID != "c3" {
		t.Fatalf("unexpected comments %+v", all)
	}
}

// ============================================================
// Transactions
// ============================================================

func TestTransactionCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx *Tx) error {
		if err := tx.Items().Put(ctx, testItem("i1", "Task")); err != nil {
			return err
		}
		return tx.Subtasks().Put(ctx, model.Subtask{ID: "s1", TodoID: "i1", Title: "Step"})
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subtasks().Get(ctx, "s1"); err != nil {
		t.Fatalf("subtask not committed: %v", err)
	}
}

func TestTransactionRollsBackAllTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Items().Put(ctx, testItem("i1", "Task"))
	s.Subtasks().Put(ctx, model.Subtask{ID: "s1", TodoID: "i1", Title: "Step"})

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx *Tx) error {
		if err := tx.Subtasks().Delete(ctx, "s1"); err != nil {
			return err
		}
		if err := tx.Items().Delete(ctx, "i1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to pass through, got %v", err)
	}
	if _, err := s.Items().Get(ctx, "i1"); err != nil {
		t.Fatalf("item delete not rolled back: %v", err)
	}
	if _, err := s.Subtasks().Get(ctx, "s1"); err != nil {
		t.Fatalf("subtask delete not rolled back: %v", err)
	}
}

func TestApplyChangeSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Items().Put(ctx, testItem("gone", "Gone"))
	s.Subtasks().Put(ctx, model.Subtask{ID: "gs", TodoID: "gone", Title: "x"})

	err := s.Apply(ctx, model.ChangeSet{
		Items:           []model.Item{testItem("new", "New")},
		Subtasks:        []model.Subtask{{ID: "ns", TodoID: "new", Title: "y"}},
		DeletedItems:    []string{"gone"},
		DeletedSubtasks: []string{"gs"},
	})
	if err != nil {
		t.Fatal(err)
	}
	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 1 || snap.Items[0].ID != "new" {
		t.Fatalf("unexpected items %+v", snap.Items)
	}
	if len(snap.Subtasks) != 1 || snap.Subtasks[0].ID != "ns" {
		t.Fatalf("unexpected subtasks %+v", snap.Subtasks)
	}
}

func TestClosedStoreReportsPersistenceError(t *testing.T) {
	s, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	err = s.Items().Put(context.Background(), testItem("i1", "x"))
	if !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	err = s.Apply(context.Background(), model.ChangeSet{Items: []model.Item{testItem("i1", "x")}})
	if !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("expected ErrPersistence from Apply, got %v", err)
	}
}

// ============================================================
// Settings
// ============================================================

func TestSettingsDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	defaults := map[string]string{
		"locale":             "en",
		"theme":              "system",
		"isThreeStepEnabled": "false",
		"pinnedTaskIds":      "[]",
	}

	for k, expected := range defaults {
		val, err := s.GetSetting(ctx, k)
		if err != nil {
			t.Fatalf("GetSetting(%q): %v", k, err)
		}
		if val != expected {
			t.Fatalf("GetSetting(%q) = %q, want %q", k, val, expected)
		}
	}
}

func TestSetSettingOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SetSetting(ctx, "key", "v1")
	s.SetSetting(ctx, "key", "v2")
	val, _ := s.GetSetting(ctx, "key")
	if val != "v2" {
		t.Fatalf("expected v2, got %s", val)
	}
}

func TestGetSettingNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSetting(context.Background(), "nonexistent")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSetting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SetSetting(ctx, "tmp", "1")
	if err := s.DeleteSetting(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSetting(ctx, "tmp"); err == nil {
		t.Fatal("expected setting to be gone")
	}
}

func TestGetAllSettings(t *testing.T) {
	s := newTestStore(t)
	all, err := s.GetAllSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) < 4 {
		t.Fatalf("expected at least 4 default settings, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Fatalf("settings not sorted: %s >= %s", all[i-1].Key, all[i].Key)
		}
	}
}
