package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/done/internal/model"
)

// ToCSV writes one row per item with its subtask progress.
func ToCSV(snap model.Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Header
	if err := w.Write([]string{"ID", "Title", "Project", "Status", "Priority", "Deadline", "Recurrence", "Subtasks", "Created"}); err != nil {
		return err
	}

	projects := projectNames(snap.Projects)
	subs := subtasksByItem(snap.Subtasks)
	items := append([]model.Item(nil), snap.Items...)
	model.SortItems(items)

	for _, it := range items {
		done, total := progress(subs[it.ID])
		row := []string{
			it.ID,
			it.Title,
			projectName(projects, it.CategoryID),
			string(it.Status),
			string(it.Priority),
			formatTimePtr(it.Deadline),
			string(it.Recurrence),
			formatProgress(done, total),
			it.CreatedAt.Local().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

func projectNames(ps []model.Project) map[string]string {
	m := make(map[string]string, len(ps))
	for _, p := range ps {
		m[p.ID] = p.Title
	}
	return m
}

func projectName(names map[string]string, id *string) string {
	if id == nil {
		return ""
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return "Unknown"
}

func subtasksByItem(subs []model.Subtask) map[string][]model.Subtask {
	m := make(map[string][]model.Subtask)
	for _, s := range subs {
		m[s.TodoID] = append(m[s.TodoID], s)
	}
	for _, group := range m {
		model.SortSubtasks(group)
	}
	return m
}

func progress(subs []model.Subtask) (done, total int) {
	for _, s := range subs {
		total++
		if s.Completed {
			done++
		}
	}
	return done, total
}

func formatProgress(done, total int) string {
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d", done, total)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}
