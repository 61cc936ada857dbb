package tui

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/done/internal/export"
	"github.com/sadopc/done/internal/model"
)

type exportFormat struct {
	name  string
	ext   string
	write func(model.Snapshot, string) error
}

var exportFormats = []exportFormat{
	{"CSV", "csv", export.ToCSV},
	{"JSON", "json", export.ToJSON},
}

// exportPicker is the overlay that chooses an export format and writes the
// current snapshot to dir.
type exportPicker struct {
	open   bool
	cursor int
	dir    string
}

// update handles a key while the picker is open. snapshot is called only
// when an export actually starts.
func (e exportPicker) update(msg tea.KeyMsg, snapshot func() model.Snapshot) (exportPicker, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if e.cursor > 0 {
			e.cursor--
		}
	case key.Matches(msg, keys.Down):
		if e.cursor < len(exportFormats)-1 {
			e.cursor++
		}
	case key.Matches(msg, keys.Enter):
		e.open = false
		return e, exportCmd(exportFormats[e.cursor], snapshot(), e.dir, time.Now())
	case key.Matches(msg, keys.Back):
		e.open = false
	}
	return e, nil
}

func exportCmd(f exportFormat, snap model.Snapshot, dir string, now time.Time) tea.Cmd {
	path := filepath.Join(dir, fmt.Sprintf("done-export-%s.%s", now.Format("2006-01-02"), f.ext))
	return func() tea.Msg {
		if err := f.write(snap, path); err != nil {
			return statusMsg{text: fmt.Sprintf("%s error: %v", f.name, err), isError: true}
		}
		return exportDoneMsg{path: path}
	}
}

func (e exportPicker) view(width int) string {
	rows := []string{titleStyle.Render("Export Format"), ""}
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == e.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f.name))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: export  esc: cancel"))
	return activePanelStyle.Width(width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
