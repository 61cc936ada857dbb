// Package hierarchy plans subtask state changes. Planners read the current
// state through a View and return the model.ChangeSet that carries it out;
// they never mutate anything themselves.
package hierarchy

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sadopc/done/internal/model"
)

var (
	ErrDepthExceeded  = errors.New("subtasks nest at most two levels")
	ErrParentMismatch = errors.New("parent subtask belongs to another item")
	ErrSameItem       = errors.New("item cannot be converted into its own subtask")
)

// View is the read side the planners need. *model.Cache implements it.
type View interface {
	Project(id string) (model.Project, bool)
	Item(id string) (model.Item, bool)
	Items() []model.Item
	Subtask(id string) (model.Subtask, bool)
	SubtasksOf(todoID string) []model.Subtask
	Children(parentID string) []model.Subtask
	CommentsOf(todoID string) []model.Comment
}

type Engine struct {
	NewID func() string
	Now   func() time.Time
}

func New() *Engine {
	return &Engine{
		NewID: uuid.NewString,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// NextStatus is the status a toggle moves to. Without process mode the
// toggle is binary; with it the status cycles through in-progress.
func NextStatus(cur model.SubtaskStatus, process bool) model.SubtaskStatus {
	if !process {
		if cur == model.SubtaskCompleted {
			return model.SubtaskPending
		}
		return model.SubtaskCompleted
	}
	switch cur {
	case model.SubtaskPending:
		return model.SubtaskInProgress
	case model.SubtaskInProgress:
		return model.SubtaskCompleted
	default:
		return model.SubtaskPending
	}
}

// Toggle advances a subtask and cascades the result. A top-level subtask
// forces its direct children to the same status. A child re-derives its
// parent from the siblings as they are after the toggle: all completed
// completes the parent, and any incomplete child un-completes a completed
// parent.
func (e *Engine) Toggle(v View, subtaskID string) (model.ChangeSet, error) {
	var cs model.ChangeSet
	s, ok := v.Subtask(subtaskID)
	if !ok {
		return cs, model.NotFoundError{Kind: "subtask", ID: subtaskID}
	}
	process := processEnabled(v, s.TodoID)

	s.Normalize()
	next := NextStatus(s.Status, process)
	s.SetStatus(next)
	cs.Subtasks = append(cs.Subtasks, s)

	if s.IsTopLevel() {
		for _, c := range v.Children(s.ID) {
			if c.Status == next && c.Completed == (next == model.SubtaskCompleted) {
				continue
			}
			c.SetStatus(next)
			cs.Subtasks = append(cs.Subtasks, c)
		}
		return cs, nil
	}

	parent, ok := v.Subtask(*s.ParentID)
	if !ok {
		return cs, nil
	}
	allDone, anyDone := true, false
	for _, sib := range v.Children(parent.ID) {
		if sib.ID == s.ID {
			sib = s
		}
		if sib.Completed {
			anyDone = true
		} else {
			allDone = false
		}
	}

	switch {
	case allDone && parent.Status != model.SubtaskCompleted:
		parent.SetStatus(model.SubtaskCompleted)
		cs.Subtasks = append(cs.Subtasks, parent)
	case !allDone && parent.Status == model.SubtaskCompleted:
		if anyDone && processEnabled(v, parent.TodoID) {
			parent.SetStatus(model.SubtaskInProgress)
		} else {
			parent.SetStatus(model.SubtaskPending)
		}
		cs.Subtasks = append(cs.Subtasks, parent)
	}
	return cs, nil
}

// Reparent moves a subtask and its descendants to another item. The moved
// subtask becomes top-level at the end of the destination; descendants keep
// their parent links.
func (e *Engine) Reparent(v View, subtaskID, targetItemID string) (model.ChangeSet, error) {
	var cs model.ChangeSet
	s, ok := v.Subtask(subtaskID)
	if !ok {
		return cs, model.NotFoundError{Kind: "subtask", ID: subtaskID}
	}
	if _, ok := v.Item(targetItemID); !ok {
		return cs, model.NotFoundError{Kind: "item", ID: targetItemID}
	}

	s.TodoID = targetItemID
	s.ParentID = nil
	s.Order = nextTopLevelOrder(v, targetItemID, s.ID)
	cs.Subtasks = append(cs.Subtasks, s)

	for _, d := range descendants(v, s.ID) {
		d.TodoID = targetItemID
		cs.Subtasks = append(cs.Subtasks, d)
	}
	return cs, nil
}

// Reorder assigns the order of every listed subtask from the list entries.
// Nothing else about the stored subtasks changes and no renumbering is done.
func (e *Engine) Reorder(v View, updated []model.Subtask) (model.ChangeSet, error) {
	var cs model.ChangeSet
	for _, u := range updated {
		s, ok := v.Subtask(u.ID)
		if !ok {
			return model.ChangeSet{}, model.NotFoundError{Kind: "subtask", ID: u.ID}
		}
		if s.Order == u.Order {
			continue
		}
		s.Order = u.Order
		cs.Subtasks = append(cs.Subtasks, s)
	}
	return cs, nil
}

// ConvertItemToSubtask turns an item into a top-level subtask of target.
// The item's subtasks, flattened depth-first, become children of the new
// subtask. The item and its comments are deleted. It returns the new
// subtask id.
func (e *Engine) ConvertItemToSubtask(v View, itemID, targetItemID string) (model.ChangeSet, string, error) {
	var cs model.ChangeSet
	if itemID == targetItemID {
		return cs, "", ErrSameItem
	}
	it, ok := v.Item(itemID)
	if !ok {
		return cs, "", model.NotFoundError{Kind: "item", ID: itemID}
	}
	if _, ok := v.Item(targetItemID); !ok {
		return cs, "", model.NotFoundError{Kind: "item", ID: targetItemID}
	}

	parent := model.Subtask{
		ID:     e.NewID(),
		TodoID: targetItemID,
		Title:  it.Title,
		Order:  nextTopLevelOrder(v, targetItemID, ""),
	}
	if it.Completed() {
		parent.SetStatus(model.SubtaskCompleted)
	} else {
		parent.SetStatus(model.SubtaskPending)
	}
	cs.Subtasks = append(cs.Subtasks, parent)

	for i, s := range flatten(v.SubtasksOf(itemID)) {
		s.TodoID = targetItemID
		s.ParentID = model.StringPtr(parent.ID)
		s.Order = i
		s.Normalize()
		cs.Subtasks = append(cs.Subtasks, s)
	}

	cs.DeletedItems = append(cs.DeletedItems, itemID)
	for _, c := range v.CommentsOf(itemID) {
		cs.DeletedComments = append(cs.DeletedComments, c.ID)
	}
	return cs, parent.ID, nil
}

// ConvertSubtaskToItem promotes a subtask to a new item that copies
// priority, deadline and category from the current owner. The subtask's
// direct children become top-level subtasks of the new item and the
// subtask itself is deleted. It returns the new item id.
func (e *Engine) ConvertSubtaskToItem(v View, subtaskID string) (model.ChangeSet, string, error) {
	var cs model.ChangeSet
	s, ok := v.Subtask(subtaskID)
	if !ok {
		return cs, "", model.NotFoundError{Kind: "subtask", ID: subtaskID}
	}

	now := e.Now()
	it := model.Item{
		ID:        e.NewID(),
		Title:     s.Title,
		Status:    model.ItemPending,
		Priority:  model.PriorityMedium,
		Order:     nextItemOrder(v),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.Completed {
		it.Status = model.ItemCompleted
	}
	if owner, ok := v.Item(s.TodoID); ok {
		it.Priority = owner.Priority
		it.Deadline = owner.Deadline
		it.CategoryID = owner.CategoryID
		it.IsSubtaskProcessEnabled = owner.IsSubtaskProcessEnabled
	}
	cs.Items = append(cs.Items, it)

	for i, c := range v.Children(s.ID) {
		c.TodoID = it.ID
		c.ParentID = nil
		c.Order = i
		cs.Subtasks = append(cs.Subtasks, c)
	}
	cs.DeletedSubtasks = append(cs.DeletedSubtasks, s.ID)
	return cs, it.ID, nil
}

// DeleteSubtask removes a subtask and its direct children.
func (e *Engine) DeleteSubtask(v View, subtaskID string) (model.ChangeSet, error) {
	var cs model.ChangeSet
	if _, ok := v.Subtask(subtaskID); !ok {
		return cs, model.NotFoundError{Kind: "subtask", ID: subtaskID}
	}
	cs.DeletedSubtasks = append(cs.DeletedSubtasks, subtaskID)
	for _, c := range v.Children(subtaskID) {
		cs.DeletedSubtasks = append(cs.DeletedSubtasks, c.ID)
	}
	return cs, nil
}

// DeleteItem removes an item with all of its subtasks and comments.
func (e *Engine) DeleteItem(v View, itemID string) (model.ChangeSet, error) {
	var cs model.ChangeSet
	if _, ok := v.Item(itemID); !ok {
		return cs, model.NotFoundError{Kind: "item", ID: itemID}
	}
	cs.DeletedItems = append(cs.DeletedItems, itemID)
	for _, s := range v.SubtasksOf(itemID) {
		cs.DeletedSubtasks = append(cs.DeletedSubtasks, s.ID)
	}
	for _, c := range v.CommentsOf(itemID) {
		cs.DeletedComments = append(cs.DeletedComments, c.ID)
	}
	return cs, nil
}

// DeleteProject removes a project and clears the category of its items.
func (e *Engine) DeleteProject(v View, projectID string) (model.ChangeSet, error) {
	var cs model.ChangeSet
	if _, ok := v.Project(projectID); !ok {
		return cs, model.NotFoundError{Kind: "project", ID: projectID}
	}
	cs.DeletedProjects = append(cs.DeletedProjects, projectID)
	now := e.Now()
	for _, it := range v.Items() {
		if it.CategoryID == nil || *it.CategoryID != projectID {
			continue
		}
		it.CategoryID = nil
		it.UpdatedAt = now
		cs.Items = append(cs.Items, it)
	}
	return cs, nil
}

// ValidateSubtask checks that s can be stored: its item exists and, if it
// has a parent, the parent is a top-level subtask of the same item.
func ValidateSubtask(v View, s model.Subtask) error {
	if _, ok := v.Item(s.TodoID); !ok {
		return model.NotFoundError{Kind: "item", ID: s.TodoID}
	}
	if s.IsTopLevel() {
		return nil
	}
	if *s.ParentID == s.ID {
		return ErrDepthExceeded
	}
	parent, ok := v.Subtask(*s.ParentID)
	if !ok {
		return model.NotFoundError{Kind: "subtask", ID: *s.ParentID}
	}
	if parent.TodoID != s.TodoID {
		return ErrParentMismatch
	}
	if !parent.IsTopLevel() {
		return ErrDepthExceeded
	}
	if len(v.Children(s.ID)) > 0 {
		return ErrDepthExceeded
	}
	return nil
}

// NextSiblingOrder returns the order that appends to the sibling group
// (todoID, parentID).
func NextSiblingOrder(v View, todoID string, parentID *string) int {
	if parentID == nil || *parentID == "" {
		return nextTopLevelOrder(v, todoID, "")
	}
	next := 0
	for _, c := range v.Children(*parentID) {
		if c.Order >= next {
			next = c.Order + 1
		}
	}
	return next
}

func processEnabled(v View, itemID string) bool {
	it, ok := v.Item(itemID)
	return ok && it.IsSubtaskProcessEnabled
}

func nextTopLevelOrder(v View, todoID, skipID string) int {
	next := 0
	for _, s := range v.SubtasksOf(todoID) {
		if s.ID == skipID || !s.IsTopLevel() {
			continue
		}
		if s.Order >= next {
			next = s.Order + 1
		}
	}
	return next
}

func nextItemOrder(v View) int {
	next := 0
	for _, it := range v.Items() {
		if it.Order >= next {
			next = it.Order + 1
		}
	}
	return next
}

// descendants walks the subtree under rootID depth-first.
func descendants(v View, rootID string) []model.Subtask {
	var out []model.Subtask
	seen := map[string]bool{rootID: true}
	var walk func(id string)
	walk = func(id string) {
		for _, c := range v.Children(id) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			walk(c.ID)
		}
	}
	walk(rootID)
	return out
}

// flatten orders an item's subtasks depth-first: each top-level subtask is
// followed by its children. Subtasks whose parent is gone come last.
func flatten(subs []model.Subtask) []model.Subtask {
	children := make(map[string][]model.Subtask)
	var top []model.Subtask
	for _, s := range subs {
		if s.IsTopLevel() {
			top = append(top, s)
		} else {
			children[*s.ParentID] = append(children[*s.ParentID], s)
		}
	}

	out := make([]model.Subtask, 0, len(subs))
	seen := make(map[string]bool, len(subs))
	for _, t := range top {
		out = append(out, t)
		seen[t.ID] = true
		for _, c := range children[t.ID] {
			out = append(out, c)
			seen[c.ID] = true
		}
	}
	for _, s := range subs {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}
	return out
}
