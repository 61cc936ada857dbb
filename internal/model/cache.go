package model

import (
	"sort"
	"sync"
)

// Cache is the in-memory copy of one user's data. Lists keep insertion
// order; the by-owner indices are recomputed whenever subtasks or comments
// change. Read methods return copies.
type Cache struct {
	mu       sync.RWMutex
	projects collection[Project]
	items    collection[Item]
	subtasks collection[Subtask]
	comments collection[Comment]

	subtasksByTodo   map[string][]string
	childrenByParent map[string][]string
	commentsByTodo   map[string][]string
}

func NewCache() *Cache {
	c := &Cache{
		projects: newCollection(func(p Project) string { return p.ID }),
		items:    newCollection(func(it Item) string { return it.ID }),
		subtasks: newCollection(func(s Subtask) string { return s.ID }),
		comments: newCollection(func(cm Comment) string { return cm.ID }),
	}
	c.reindex()
	return c
}

// Load replaces the whole content of the cache.
func (c *Cache) Load(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects.reset(s.Projects)
	c.items.reset(s.Items)
	c.subtasks.reset(s.Subtasks)
	c.comments.reset(s.Comments)
	c.reindex()
}

// Snapshot returns a copy of everything held.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Projects: c.projects.all(),
		Items:    c.items.all(),
		Subtasks: c.subtasks.all(),
		Comments: c.comments.all(),
	}
}

// Apply applies cs and returns the change set that reverts it.
func (c *Cache) Apply(cs ChangeSet) ChangeSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	var undo ChangeSet
	for _, id := range cs.DeletedComments {
		if prev, ok := c.comments.remove(id); ok {
			undo.Comments = append(undo.Comments, prev)
		}
	}
	for _, id := range cs.DeletedSubtasks {
		if prev, ok := c.subtasks.remove(id); ok {
			undo.Subtasks = append(undo.Subtasks, prev)
		}
	}
	for _, id := range cs.DeletedItems {
		if prev, ok := c.items.remove(id); ok {
			undo.Items = append(undo.Items, prev)
		}
	}
	for _, id := range cs.DeletedProjects {
		if prev, ok := c.projects.remove(id); ok {
			undo.Projects = append(undo.Projects, prev)
		}
	}

	for _, p := range cs.Projects {
		if prev, ok := c.projects.put(p); ok {
			undo.Projects = append(undo.Projects, prev)
		} else {
			undo.DeletedProjects = append(undo.DeletedProjects, p.ID)
		}
	}
	for _, it := range cs.Items {
		if prev, ok := c.items.put(it); ok {
			undo.Items = append(undo.Items, prev)
		} else {
			undo.DeletedItems = append(undo.DeletedItems, it.ID)
		}
	}
	for _, s := range cs.Subtasks {
		if prev, ok := c.subtasks.put(s); ok {
			undo.Subtasks = append(undo.Subtasks, prev)
		} else {
			undo.DeletedSubtasks = append(undo.DeletedSubtasks, s.ID)
		}
	}
	for _, cm := range cs.Comments {
		if prev, ok := c.comments.put(cm); ok {
			undo.Comments = append(undo.Comments, prev)
		} else {
			undo.DeletedComments = append(undo.DeletedComments, cm.ID)
		}
	}

	c.reindex()
	return undo
}

func (c *Cache) Projects() []Project {
	c.mu.RLock()
	out := c.projects.all()
	c.mu.RUnlock()
	SortProjects(out)
	return out
}

func (c *Cache) Project(id string) (Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projects.get(id)
}

func (c *Cache) Items() []Item {
	c.mu.RLock()
	out := c.items.all()
	c.mu.RUnlock()
	SortItems(out)
	return out
}

func (c *Cache) Item(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.get(id)
}

// ItemsIn returns the items of a project. An empty projectID selects the
// uncategorized items, including those whose project no longer exists.
func (c *Cache) ItemsIn(projectID string) []Item {
	c.mu.RLock()
	var out []Item
	for _, it := range c.items.list {
		cat := ""
		if it.CategoryID != nil {
			if _, ok := c.projects.get(*it.CategoryID); ok {
				cat = *it.CategoryID
			}
		}
		if cat == projectID {
			out = append(out, it)
		}
	}
	c.mu.RUnlock()
	SortItems(out)
	return out
}

func (c *Cache) Subtask(id string) (Subtask, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subtasks.get(id)
}

// SubtasksOf returns every subtask of an item, both levels, in order.
func (c *Cache) SubtasksOf(todoID string) []Subtask {
	c.mu.RLock()
	out := c.lookupSubtasks(c.subtasksByTodo[todoID])
	c.mu.RUnlock()
	SortSubtasks(out)
	return out
}

// TopLevel returns the subtasks of an item that have no parent.
func (c *Cache) TopLevel(todoID string) []Subtask {
	var out []Subtask
	for _, s := range c.SubtasksOf(todoID) {
		if s.IsTopLevel() {
			out = append(out, s)
		}
	}
	return out
}

// Children returns the direct children of a subtask.
func (c *Cache) Children(parentID string) []Subtask {
	c.mu.RLock()
	out := c.lookupSubtasks(c.childrenByParent[parentID])
	c.mu.RUnlock()
	SortSubtasks(out)
	return out
}

func (c *Cache) Comment(id string) (Comment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.comments.get(id)
}

// CommentsOf returns the comments of an item, oldest first.
func (c *Cache) CommentsOf(todoID string) []Comment {
	c.mu.RLock()
	ids := c.commentsByTodo[todoID]
	out := make([]Comment, 0, len(ids))
	for _, id := range ids {
		if cm, ok := c.comments.get(id); ok {
			out = append(out, cm)
		}
	}
	c.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (c *Cache) lookupSubtasks(ids []string) []Subtask {
	out := make([]Subtask, 0, len(ids))
	for _, id := range ids {
		if s, ok := c.subtasks.get(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// reindex rebuilds the owner indices. Callers hold c.mu.
func (c *Cache) reindex() {
	c.subtasksByTodo = make(map[string][]string)
	c.childrenByParent = make(map[string][]string)
	for _, s := range c.subtasks.list {
		c.subtasksByTodo[s.TodoID] = append(c.subtasksByTodo[s.TodoID], s.ID)
		if !s.IsTopLevel() {
			c.childrenByParent[*s.ParentID] = append(c.childrenByParent[*s.ParentID], s.ID)
		}
	}
	c.commentsByTodo = make(map[string][]string)
	for _, cm := range c.comments.list {
		c.commentsByTodo[cm.TodoID] = append(c.commentsByTodo[cm.TodoID], cm.ID)
	}
}

// collection is an insertion-ordered list with an id index.
type collection[T any] struct {
	key  func(T) string
	list []T
	pos  map[string]int
}

func newCollection[T any](key func(T) string) collection[T] {
	return collection[T]{key: key, pos: make(map[string]int)}
}

func (c *collection[T]) get(id string) (T, bool) {
	i, ok := c.pos[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.list[i], true
}

// put replaces the record with the same id, or appends it.
func (c *collection[T]) put(v T) (T, bool) {
	id := c.key(v)
	if i, ok := c.pos[id]; ok {
		prev := c.list[i]
		c.list[i] = v
		return prev, true
	}
	c.pos[id] = len(c.list)
	c.list = append(c.list, v)
	var zero T
	return zero, false
}

func (c *collection[T]) remove(id string) (T, bool) {
	i, ok := c.pos[id]
	if !ok {
		var zero T
		return zero, false
	}
	prev := c.list[i]
	c.list = append(c.list[:i:i], c.list[i+1:]...)
	delete(c.pos, id)
	for j := i; j < len(c.list); j++ {
		c.pos[c.key(c.list[j])] = j
	}
	return prev, true
}

func (c *collection[T]) reset(vs []T) {
	c.list = make([]T, 0, len(vs))
	c.pos = make(map[string]int, len(vs))
	for _, v := range vs {
		c.put(v)
	}
}

func (c *collection[T]) all() []T {
	out := make([]T, len(c.list))
	copy(out, c.list)
	return out
}
