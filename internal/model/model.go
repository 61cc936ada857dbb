package model

import (
	"sort"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ItemStatus is the status of a top-level task.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemCompleted ItemStatus = "completed"
)

// SubtaskStatus is the status of a subtask. InProgress is only reachable
// when the owning item has IsSubtaskProcessEnabled set.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in-progress"
	SubtaskCompleted  SubtaskStatus = "completed"
)

type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Project is a category shown in the sidebar.
type Project struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Color       string     `json:"color"`
	Icon        string     `json:"icon,omitempty"`
	Description string     `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Order       int        `json:"order"`
	IsPinned    bool       `json:"isPinned"`
	IsDefault   bool       `json:"isDefault"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Item is a top-level task.
type Item struct {
	ID                      string     `json:"id"`
	Title                   string     `json:"title"`
	Description             string     `json:"description"`
	Status                  ItemStatus `json:"status"`
	Priority                Priority   `json:"priority"`
	Deadline                *time.Time `json:"deadline,omitempty"`
	Recurrence              Recurrence `json:"recurrence,omitempty"`
	CategoryID              *string    `json:"categoryId,omitempty"`
	IsSubtaskProcessEnabled bool       `json:"isSubtaskProcessEnabled"`
	Order                   int        `json:"order"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`

	// LegacyCategory is the free-text category of pre-v2 records. It is
	// cleared once Initialize has mapped it onto CategoryID.
	LegacyCategory string `json:"category,omitempty"`
}

func (it Item) Completed() bool { return it.Status == ItemCompleted }

// Subtask belongs to an Item and optionally to a parent subtask. Hierarchy
// depth is at most two: a parent never has a parent itself.
type Subtask struct {
	ID        string        `json:"id"`
	TodoID    string        `json:"todoId"`
	ParentID  *string       `json:"parentId"`
	Title     string        `json:"title"`
	Completed bool          `json:"completed"`
	Status    SubtaskStatus `json:"status"`
	Order     int           `json:"order"`
}

// SetStatus updates Status and keeps Completed in step with it.
func (s *Subtask) SetStatus(st SubtaskStatus) {
	s.Status = st
	s.Completed = st == SubtaskCompleted
}

// Normalize repairs records written by older clients: a missing status is
// derived from Completed, otherwise Completed follows Status.
func (s *Subtask) Normalize() {
	switch s.Status {
	case SubtaskPending, SubtaskInProgress, SubtaskCompleted:
		s.Completed = s.Status == SubtaskCompleted
	default:
		if s.Completed {
			s.Status = SubtaskCompleted
		} else {
			s.Status = SubtaskPending
		}
	}
}

func (s Subtask) IsTopLevel() bool { return s.ParentID == nil || *s.ParentID == "" }

type Comment struct {
	ID        string    `json:"id"`
	TodoID    string    `json:"todoId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    string    `json:"userId"`
}

type Setting struct {
	Key   string
	Value string
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string { return &s }

// SortProjects orders projects by (Order, Title).
func SortProjects(ps []Project) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Order != ps[j].Order {
			return ps[i].Order < ps[j].Order
		}
		return ps[i].Title < ps[j].Title
	})
}

// SortItems orders items by (Order, CreatedAt, ID).
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortSubtasks orders subtasks by (Order, ID).
func SortSubtasks(subs []Subtask) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].Order != subs[j].Order {
			return subs[i].Order < subs[j].Order
		}
		return subs[i].ID < subs[j].ID
	})
}
