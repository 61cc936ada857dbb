package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/done/internal/model"
)

type jsonExport struct {
	ExportedAt string     `json:"exported_at"`
	Count      int        `json:"count"`
	Items      []jsonItem `json:"items"`
}

type jsonItem struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Project    string        `json:"project,omitempty"`
	Status     string        `json:"status"`
	Priority   string        `json:"priority"`
	Deadline   string        `json:"deadline,omitempty"`
	Recurrence string        `json:"recurrence,omitempty"`
	CreatedAt  string        `json:"created_at"`
	Subtasks   []jsonSubtask `json:"subtasks,omitempty"`
	Comments   []string      `json:"comments,omitempty"`
}

type jsonSubtask struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Status   string        `json:"status"`
	Children []jsonSubtask `json:"children,omitempty"`
}

// ToJSON writes items with their subtask tree and comments.
func ToJSON(snap model.Snapshot, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(snap.Items),
	}

	projects := projectNames(snap.Projects)
	subs := subtasksByItem(snap.Subtasks)
	comments := make(map[string][]string)
	for _, c := range snap.Comments {
		comments[c.TodoID] = append(comments[c.TodoID], c.Text)
	}
	items := append([]model.Item(nil), snap.Items...)
	model.SortItems(items)

	for _, it := range items {
		export.Items = append(export.Items, jsonItem{
			ID:         it.ID,
			Title:      it.Title,
			Project:    projectName(projects, it.CategoryID),
			Status:     string(it.Status),
			Priority:   string(it.Priority),
			Deadline:   formatTimePtr(it.Deadline),
			Recurrence: string(it.Recurrence),
			CreatedAt:  it.CreatedAt.Local().Format(time.RFC3339),
			Subtasks:   subtaskTree(subs[it.ID]),
			Comments:   comments[it.ID],
		})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// subtaskTree nests children under their parents. subs is already sorted.
func subtaskTree(subs []model.Subtask) []jsonSubtask {
	children := make(map[string][]jsonSubtask)
	for _, s := range subs {
		if !s.IsTopLevel() {
			children[*s.ParentID] = append(children[*s.ParentID], jsonSubtask{ID: s.ID, Title: s.Title, Status: string(s.Status)})
		}
	}
	var out []jsonSubtask
	for _, s := range subs {
		if s.IsTopLevel() {
			out = append(out, jsonSubtask{ID: s.ID, Title: s.Title, Status: string(s.Status), Children: children[s.ID]})
		}
	}
	return out
}
