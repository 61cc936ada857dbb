package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sadopc/done/internal/model"
)

// Timestamps are stored as RFC 3339 text in UTC.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(column, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: bad timestamp %q: %w", column, s, err)
	}
	return t, nil
}

func parseTimePtr(column string, s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(column, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func stringPtrArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

var projectsTable = schema[model.Project]{
	name: "projects",
	kind: "project",
	columns: []string{
		"id", "title", "color", "icon", "description", "deadline",
		"sort_order", "is_pinned", "is_default", "created_at",
	},
	orderBy: "sort_order, title",
	id:      func(p model.Project) string { return p.ID },
	values: func(p model.Project) []any {
		return []any{
			p.ID, p.Title, p.Color, p.Icon, p.Description, formatTimePtr(p.Deadline),
			p.Order, p.IsPinned, p.IsDefault, formatTime(p.CreatedAt),
		}
	},
	scan: func(r scanner) (model.Project, error) {
		var p model.Project
		var deadline sql.NullString
		var createdAt string
		err := r.Scan(&p.ID, &p.Title, &p.Color, &p.Icon, &p.Description, &deadline,
			&p.Order, &p.IsPinned, &p.IsDefault, &createdAt)
		if err != nil {
			return p, err
		}
		if p.Deadline, err = parseTimePtr("deadline", deadline); err != nil {
			return p, err
		}
		p.CreatedAt, err = parseTime("created_at", createdAt)
		return p, err
	},
}

var itemsTable = schema[model.Item]{
	name: "items",
	kind: "item",
	columns: []string{
		"id", "title", "description", "status", "priority", "deadline", "recurrence",
		"category_id", "is_subtask_process_enabled", "sort_order", "category",
		"created_at", "updated_at",
	},
	orderBy: "sort_order, created_at, id",
	id:      func(it model.Item) string { return it.ID },
	values: func(it model.Item) []any {
		return []any{
			it.ID, it.Title, it.Description, string(it.Status), string(it.Priority),
			formatTimePtr(it.Deadline), string(it.Recurrence), stringPtrArg(it.CategoryID),
			it.IsSubtaskProcessEnabled, it.Order, it.LegacyCategory,
			formatTime(it.CreatedAt), formatTime(it.UpdatedAt),
		}
	},
	scan: func(r scanner) (model.Item, error) {
		var it model.Item
		var status, priority, recurrence, createdAt, updatedAt string
		var deadline, category sql.NullString
		err := r.Scan(&it.ID, &it.Title, &it.Description, &status, &priority, &deadline, &recurrence,
			&category, &it.IsSubtaskProcessEnabled, &it.Order, &it.LegacyCategory,
			&createdAt, &updatedAt)
		if err != nil {
			return it, err
		}
		it.Status = model.ItemStatus(status)
		if it.Status != model.ItemCompleted {
			it.Status = model.ItemPending
		}
		it.Priority = model.Priority(priority)
		it.Recurrence = model.Recurrence(recurrence)
		it.CategoryID = stringPtr(category)
		if it.Deadline, err = parseTimePtr("deadline", deadline); err != nil {
			return it, err
		}
		if it.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return it, err
		}
		it.UpdatedAt, err = parseTime("updated_at", updatedAt)
		return it, err
	},
}

var subtasksTable = schema[model.Subtask]{
	name:    "subtasks",
	kind:    "subtask",
	columns: []string{"id", "todo_id", "parent_id", "title", "completed", "status", "sort_order"},
	orderBy: "todo_id, sort_order, id",
	id:      func(s model.Subtask) string { return s.ID },
	values: func(s model.Subtask) []any {
		s.Normalize()
		return []any{s.ID, s.TodoID, stringPtrArg(s.ParentID), s.Title, s.Completed, string(s.Status), s.Order}
	},
	scan: func(r scanner) (model.Subtask, error) {
		var s model.Subtask
		var parent sql.NullString
		var status string
		if err := r.Scan(&s.ID, &s.TodoID, &parent, &s.Title, &s.Completed, &status, &s.Order); err != nil {
			return s, err
		}
		s.ParentID = stringPtr(parent)
		s.Status = model.SubtaskStatus(status)
		s.Normalize()
		return s, nil
	},
}

var commentsTable = schema[model.Comment]{
	name:    "comments",
	kind:    "comment",
	columns: []string{"id", "todo_id", "text", "created_at", "user_id"},
	orderBy: "created_at, id",
	id:      func(c model.Comment) string { return c.ID },
	values: func(c model.Comment) []any {
		return []any{c.ID, c.TodoID, c.Text, formatTime(c.CreatedAt), c.UserID}
	},
	scan: func(r scanner) (model.Comment, error) {
		var c model.Comment
		var createdAt string
		if err := r.Scan(&c.ID, &c.TodoID, &c.Text, &createdAt, &c.UserID); err != nil {
			return c, err
		}
		var err error
		c.CreatedAt, err = parseTime("created_at", createdAt)
		return c, err
	},
}
