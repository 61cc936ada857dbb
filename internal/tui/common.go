package tui

import (
	"fmt"
	"time"

	"github.com/sadopc/done/internal/model"
)

// viewState represents the currently active view.
type viewState int

const (
	viewTasks viewState = iota
	viewProjects
	viewReports
	viewSettings
)

var viewNames = []string{"Tasks", "Projects", "Reports", "Settings"}

// --- Messages ---

// mutationMsg reports the outcome of a service call.
type mutationMsg struct {
	status string
	err    error
}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

func mutated(status string, err error) mutationMsg {
	if err != nil {
		return mutationMsg{err: err}
	}
	return mutationMsg{status: status}
}

// --- Helpers ---

// formatDeadline renders a deadline relative to now: "today 17:00",
// "tomorrow", "Mar 14" or "overdue Mar 10".
func formatDeadline(d *time.Time, now time.Time) string {
	if d == nil {
		return ""
	}
	local := d.Local()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, now.Location())
	clock := ""
	if local.Hour() != 0 || local.Minute() != 0 {
		clock = " " + local.Format("15:04")
	}

	switch days := int(day.Sub(today).Hours() / 24); {
	case local.Before(now) && days < 0:
		return "overdue " + local.Format("Jan 02")
	case days == 0:
		return "today" + clock
	case days == 1:
		return "tomorrow" + clock
	default:
		return local.Format("Jan 02") + clock
	}
}

func subtaskMark(st model.SubtaskStatus) string {
	switch st {
	case model.SubtaskCompleted:
		return "[x]"
	case model.SubtaskInProgress:
		return "[~]"
	default:
		return "[ ]"
	}
}

func itemMark(it model.Item) string {
	if it.Completed() {
		return "[x]"
	}
	return "[ ]"
}

// formatProgress renders done/total as "3/5"; empty when there is nothing
// to count.
func formatProgress(done, total int) string {
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d", done, total)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
