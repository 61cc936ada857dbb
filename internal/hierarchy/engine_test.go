package hierarchy

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/done/internal/model"
)

type fixture struct {
	t     *testing.T
	cache *model.Cache
	eng   *Engine
}

func newFixture(t *testing.T, snap model.Snapshot) *fixture {
	t.Helper()
	c := model.NewCache()
	c.Load(snap)
	n := 0
	eng := &Engine{
		NewID: func() string { n++; return fmt.Sprintf("new-%d", n) },
		Now:   func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
	return &fixture{t: t, cache: c, eng: eng}
}

func (f *fixture) apply(cs model.ChangeSet, err error) {
	f.t.Helper()
	require.NoError(f.t, err)
	f.cache.Apply(cs)
	f.checkInvariants()
}

func (f *fixture) sub(id string) model.Subtask {
	f.t.Helper()
	s, ok := f.cache.Subtask(id)
	require.True(f.t, ok, "subtask %s missing", id)
	return s
}

// checkInvariants asserts completed mirrors status and that no subtask
// nests deeper than two levels.
func (f *fixture) checkInvariants() {
	f.t.Helper()
	for _, s := range f.cache.Snapshot().Subtasks {
		assert.Equal(f.t, s.Status == model.SubtaskCompleted, s.Completed, "subtask %s", s.ID)
		if s.IsTopLevel() {
			continue
		}
		parent, ok := f.cache.Subtask(*s.ParentID)
		if !ok {
			continue
		}
		assert.True(f.t, parent.IsTopLevel(), "subtask %s nests under a child", s.ID)
		assert.Equal(f.t, s.TodoID, parent.TodoID, "subtask %s and parent in different items", s.ID)
	}
}

func item(id string, process bool) model.Item {
	return model.Item{ID: id, Title: "Item " + id, Status: model.ItemPending, Priority: model.PriorityMedium, IsSubtaskProcessEnabled: process}
}

func sub(id, todoID, parentID string, order int) model.Subtask {
	s := model.Subtask{ID: id, TodoID: todoID, Title: "Sub " + id, Status: model.SubtaskPending, Order: order}
	if parentID != "" {
		s.ParentID = model.StringPtr(parentID)
	}
	return s
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, model.SubtaskCompleted, NextStatus(model.SubtaskPending, false))
	assert.Equal(t, model.SubtaskPending, NextStatus(model.SubtaskCompleted, false))
	assert.Equal(t, model.SubtaskCompleted, NextStatus(model.SubtaskInProgress, false))

	assert.Equal(t, model.SubtaskInProgress, NextStatus(model.SubtaskPending, true))
	assert.Equal(t, model.SubtaskCompleted, NextStatus(model.SubtaskInProgress, true))
	assert.Equal(t, model.SubtaskPending, NextStatus(model.SubtaskCompleted, true))
}

func TestToggleParentCascadesDown(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items:    []model.Item{item("task", false)},
		Subtasks: []model.Subtask{sub("parent", "task", "", 0), sub("child", "task", "parent", 0)},
	})

	f.apply(f.eng.Toggle(f.cache, "parent"))
	assert.True(t, f.sub("parent").Completed)
	assert.True(t, f.sub("child").Completed)

	f.apply(f.eng.Toggle(f.cache, "parent"))
	assert.False(t, f.sub("parent").Completed)
	assert.False(t, f.sub("child").Completed)
	assert.Equal(t, model.SubtaskPending, f.sub("child").Status)
}

func TestToggleParentInProcessModeForcesChildren(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items: []model.Item{item("task", true)},
		Subtasks: []model.Subtask{
			sub("parent", "task", "", 0),
			sub("c1", "task", "parent", 0),
			sub("c2", "task", "parent", 1),
		},
	})

	f.apply(f.eng.Toggle(f.cache, "parent"))
	assert.Equal(t, model.SubtaskInProgress, f.sub("parent").Status)
	assert.Equal(t, model.SubtaskInProgress, f.sub("c1").Status)
	assert.Equal(t, model.SubtaskInProgress, f.sub("c2").Status)

	f.apply(f.eng.Toggle(f.cache, "parent"))
	assert.True(t, f.sub("c1").Completed)
	assert.True(t, f.sub("c2").Completed)
}

func TestCompletingLastSiblingCompletesParent(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items: []model.Item{item("task", false)},
		Subtasks: []model.Subtask{
			sub("parent", "task", "", 0),
			sub("c1", "task", "parent", 0),
			sub("c2", "task", "parent", 1),
		},
	})

	f.apply(f.eng.Toggle(f.cache, "c1"))
	assert.False(t, f.sub("parent").Completed)

	f.apply(f.eng.Toggle(f.cache, "c2"))
	assert.True(t, f.sub("parent").Completed)

	// Un-completing any child un-completes the parent at once.
	f.apply(f.eng.Toggle(f.cache, "c1"))
	assert.False(t, f.sub("parent").Completed)
	assert.Equal(t, model.SubtaskPending, f.sub("parent").Status)
}

func TestUncompletingChildInProcessModeLeavesParentInProgress(t *testing.T) {
	c1 := sub("c1", "task", "parent", 0)
	c1.SetStatus(model.SubtaskCompleted)
	c2 := sub("c2", "task", "parent", 1)
	c2.SetStatus(model.SubtaskCompleted)
	parent := sub("parent", "task", "", 0)
	parent.SetStatus(model.SubtaskCompleted)

	f := newFixture(t, model.Snapshot{
		Items:    []model.Item{item("task", true)},
		Subtasks: []model.Subtask{parent, c1, c2},
	})

	f.apply(f.eng.Toggle(f.cache, "c1"))
	assert.Equal(t, model.SubtaskPending, f.sub("c1").Status)
	assert.Equal(t, model.SubtaskInProgress, f.sub("parent").Status)
}

func TestToggleNotFound(t *testing.T) {
	f := newFixture(t, model.Snapshot{})
	_, err := f.eng.Toggle(f.cache, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReparentMovesSubtree(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items: []model.Item{item("a", false), item("b", false)},
		Subtasks: []model.Subtask{
			sub("p", "a", "", 0),
			sub("c1", "a", "p", 0),
			sub("c2", "a", "p", 1),
			sub("other", "a", "", 1),
			sub("existing", "b", "", 4),
		},
	})

	f.apply(f.eng.Reparent(f.cache, "p", "b"))

	p := f.sub("p")
	assert.Equal(t, "b", p.TodoID)
	assert.Nil(t, p.ParentID)
	assert.Equal(t, 5, p.Order)
	for _, id := range []string{"c1", "c2"} {
		c := f.sub(id)
		assert.Equal(t, "b", c.TodoID)
		require.NotNil(t, c.ParentID)
		assert.Equal(t, "p", *c.ParentID)
	}
	assert.Equal(t, "a", f.sub("other").TodoID)
}

func TestReparentChildBecomesTopLevel(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items:    []model.Item{item("a", false), item("b", false)},
		Subtasks: []model.Subtask{sub("p", "a", "", 0), sub("c", "a", "p", 0)},
	})

	f.apply(f.eng.Reparent(f.cache, "c", "b"))
	c := f.sub("c")
	assert.Equal(t, "b", c.TodoID)
	assert.Nil(t, c.ParentID)
	assert.Empty(t, f.cache.Children("p"))
}

func TestReparentMissingTarget(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items:    []model.Item{item("a", false)},
		Subtasks: []model.Subtask{sub("p", "a", "", 0)},
	})
	_, err := f.eng.Reparent(f.cache, "p", "nowhere")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReorderAssignsOrderOnly(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items:    []model.Item{item("a", false)},
		Subtasks: []model.Subtask{sub("x", "a", "", 0), sub("y", "a", "", 1), sub("z", "a", "x", 0)},
	})

	f.apply(f.eng.Reorder(f.cache, []model.Subtask{
		{ID: "x", Order: 1},
		{ID: "y", Order: 0},
	}))

	top := f.cache.TopLevel("a")
	require.Len(t, top, 2)
	assert.Equal(t, "y", top[0].ID)
	assert.Equal(t, "x", top[1].ID)
	assert.Len(t, f.cache.Children("x"), 1)
	assert.Equal(t, "a", f.sub("x").TodoID)
}

func TestReorderUnknownSubtask(t *testing.T) {
	f := newFixture(t, model.Snapshot{})
	_, err := f.eng.Reorder(f.cache, []model.Subtask{{ID: "ghost"}})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConvertRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := item("src", false)
	src.Title = "Plan trip"
	src.Priority = model.PriorityHigh
	f := newFixture(t, model.Snapshot{
		Items: []model.Item{src, item("dst", false)},
		Subtasks: []model.Subtask{
			sub("book", "src", "", 0),
			sub("flight", "src", "book", 0),
			sub("pack", "src", "", 1),
		},
		Comments: []model.Comment{{ID: "cm", TodoID: "src", Text: "note", CreatedAt: now}},
	})

	cs, newSubID, err := f.eng.ConvertItemToSubtask(f.cache, "src", "dst")
	f.apply(cs, err)

	_, ok := f.cache.Item("src")
	assert.False(t, ok)
	_, ok = f.cache.Comment("cm")
	assert.False(t, ok)

	converted := f.sub(newSubID)
	assert.Equal(t, "Plan trip", converted.Title)
	assert.Equal(t, "dst", converted.TodoID)
	children := f.cache.Children(newSubID)
	require.Len(t, children, 3)
	assert.Equal(t, []string{"book", "flight", "pack"}, []string{children[0].ID, children[1].ID, children[2].ID})

	cs, newItemID, err := f.eng.ConvertSubtaskToItem(f.cache, newSubID)
	f.apply(cs, err)

	restored, ok := f.cache.Item(newItemID)
	require.True(t, ok)
	assert.Equal(t, "Plan trip", restored.Title)
	_, ok = f.cache.Subtask(newSubID)
	assert.False(t, ok)

	top := f.cache.TopLevel(newItemID)
	require.Len(t, top, 3)
	for _, s := range top {
		assert.Nil(t, s.ParentID)
	}
	assert.Empty(t, f.cache.SubtasksOf("dst"))
}

func TestConvertItemToSubtaskKeepsCompletion(t *testing.T) {
	src := item("src", false)
	src.Status = model.ItemCompleted
	f := newFixture(t, model.Snapshot{Items: []model.Item{src, item("dst", false)}})

	cs, id, err := f.eng.ConvertItemToSubtask(f.cache, "src", "dst")
	f.apply(cs, err)
	assert.Equal(t, model.SubtaskCompleted, f.sub(id).Status)
}

func TestConvertItemToSubtaskErrors(t *testing.T) {
	f := newFixture(t, model.Snapshot{Items: []model.Item{item("a", false)}})

	_, _, err := f.eng.ConvertItemToSubtask(f.cache, "a", "a")
	assert.ErrorIs(t, err, ErrSameItem)
	_, _, err = f.eng.ConvertItemToSubtask(f.cache, "a", "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, _, err = f.eng.ConvertItemToSubtask(f.cache, "missing", "a")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConvertSubtaskToItemCopiesOwnerFields(t *testing.T) {
	deadline := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	owner := item("owner", false)
	owner.Priority = model.PriorityLow
	owner.Deadline = &deadline
	owner.CategoryID = model.StringPtr("proj")
	owner.Order = 7
	f := newFixture(t, model.Snapshot{
		Items:    []model.Item{owner},
		Subtasks: []model.Subtask{sub("s", "owner", "", 0)},
	})

	cs, id, err := f.eng.ConvertSubtaskToItem(f.cache, "s")
	f.apply(cs, err)

	it, ok := f.cache.Item(id)
	require.True(t, ok)
	assert.Equal(t, model.PriorityLow, it.Priority)
	require.NotNil(t, it.Deadline)
	assert.True(t, it.Deadline.Equal(deadline))
	require.NotNil(t, it.CategoryID)
	assert.Equal(t, "proj", *it.CategoryID)
	assert.Equal(t, 8, it.Order)
}

func TestDeleteItemLeavesSiblingsAlone(t *testing.T) {
	now := time.Now()
	f := newFixture(t, model.Snapshot{
		Items: []model.Item{item("a", false), item("b", false)},
		Subtasks: []model.Subtask{
			sub("a1", "a", "", 0), sub("a2", "a", "a1", 0),
			sub("b1", "b", "", 0), sub("b2", "b", "b1", 0),
		},
		Comments: []model.Comment{
			{ID: "ca", TodoID: "a", CreatedAt: now},
			{ID: "cb", TodoID: "b", CreatedAt: now},
		},
	})

	f.apply(f.eng.DeleteItem(f.cache, "a"))

	assert.Empty(t, f.cache.SubtasksOf("a"))
	assert.Empty(t, f.cache.CommentsOf("a"))
	assert.Len(t, f.cache.SubtasksOf("b"), 2)
	assert.Len(t, f.cache.CommentsOf("b"), 1)
}

func TestDeleteSubtaskRemovesDirectChildren(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items:    []model.Item{item("a", false)},
		Subtasks: []model.Subtask{sub("p", "a", "", 0), sub("c", "a", "p", 0), sub("q", "a", "", 1)},
	})

	f.apply(f.eng.DeleteSubtask(f.cache, "p"))
	subs := f.cache.SubtasksOf("a")
	require.Len(t, subs, 1)
	assert.Equal(t, "q", subs[0].ID)
}

func TestDeleteProjectClearsCategory(t *testing.T) {
	inProject := item("in", false)
	inProject.CategoryID = model.StringPtr("p")
	elsewhere := item("out", false)
	elsewhere.CategoryID = model.StringPtr("q")
	f := newFixture(t, model.Snapshot{
		Projects: []model.Project{{ID: "p", Title: "P"}, {ID: "q", Title: "Q"}},
		Items:    []model.Item{inProject, elsewhere},
	})

	f.apply(f.eng.DeleteProject(f.cache, "p"))

	it, _ := f.cache.Item("in")
	assert.Nil(t, it.CategoryID)
	it, _ = f.cache.Item("out")
	require.NotNil(t, it.CategoryID)
	assert.Equal(t, "q", *it.CategoryID)
	_, ok := f.cache.Project("p")
	assert.False(t, ok)
}

func TestValidateSubtask(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items: []model.Item{item("a", false), item("b", false)},
		Subtasks: []model.Subtask{
			sub("p", "a", "", 0),
			sub("c", "a", "p", 0),
			sub("pb", "b", "", 0),
		},
	})

	assert.NoError(t, ValidateSubtask(f.cache, sub("new", "a", "p", 1)))
	assert.NoError(t, ValidateSubtask(f.cache, sub("new", "a", "", 1)))
	assert.ErrorIs(t, ValidateSubtask(f.cache, sub("new", "a", "c", 0)), ErrDepthExceeded)
	assert.ErrorIs(t, ValidateSubtask(f.cache, sub("new", "a", "pb", 0)), ErrParentMismatch)
	assert.ErrorIs(t, ValidateSubtask(f.cache, sub("new", "zz", "", 0)), model.ErrNotFound)
	assert.ErrorIs(t, ValidateSubtask(f.cache, sub("new", "a", "ghost", 0)), model.ErrNotFound)
	// A parent with children cannot itself gain a parent.
	assert.ErrorIs(t, ValidateSubtask(f.cache, sub("p", "a", "q", 0)), model.ErrNotFound)
	f.cache.Apply(model.ChangeSet{Subtasks: []model.Subtask{sub("q", "a", "", 2)}})
	assert.ErrorIs(t, ValidateSubtask(f.cache, sub("p", "a", "q", 0)), ErrDepthExceeded)
}

func TestNextSiblingOrder(t *testing.T) {
	f := newFixture(t, model.Snapshot{
		Items:    []model.Item{item("a", false)},
		Subtasks: []model.Subtask{sub("p", "a", "", 3), sub("c", "a", "p", 5)},
	})
	assert.Equal(t, 4, NextSiblingOrder(f.cache, "a", nil))
	assert.Equal(t, 6, NextSiblingOrder(f.cache, "a", model.StringPtr("p")))
	assert.Equal(t, 0, NextSiblingOrder(f.cache, "b", nil))
}
