package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/done/internal/tasks"
)

// App is the root Bubble Tea model.
type App struct {
	svc    *tasks.Service
	width  int
	height int

	activeView viewState
	showHelp   bool
	exporter   exportPicker
	theme      string

	tasks    tasksModel
	projects projectsModel
	reports  reportsModel
	settings settingsModel

	help    help.Model
	status  string
	isError bool
}

func NewApp(svc *tasks.Service) App {
	h := help.New()
	h.ShowAll = false

	home, _ := os.UserHomeDir()
	return App{
		svc:        svc,
		activeView: viewTasks,
		exporter:   exportPicker{dir: home},
		tasks:      newTasksModel(svc),
		projects:   newProjectsModel(svc),
		reports:    newReportsModel(svc),
		settings:   newSettingsModel(svc),
		help:       h,
	}
}

type themeMsg string

func (a App) loadTheme() tea.Cmd {
	return func() tea.Msg {
		theme, _ := a.svc.Settings().Theme(context.Background())
		return themeMsg(theme)
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.loadTheme(), a.tasks.Init(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.tasks.setSize(a.width, contentHeight)
		a.projects.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, a.refreshCurrentView()

	case tea.KeyMsg:
		if a.exporter.open {
			var cmd tea.Cmd
			a.exporter, cmd = a.exporter.update(msg, a.svc.Cache().Snapshot)
			return a, cmd
		}
		// Forms get every key, including the global ones.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}
		if name, ok := globalKey(msg); ok {
			return a.applyGlobal(name)
		}

	case tickMsg:
		// Remote changes land in the cache without a message; repaint from it.
		cmds := []tea.Cmd{tickCmd()}
		if !a.isFormActive() && !a.exporter.open {
			cmds = append(cmds, a.refreshCurrentView())
		}
		return a, tea.Batch(cmds...)

	case themeMsg:
		if string(msg) != a.theme {
			a.theme = string(msg)
			applyTheme(a.theme)
		}
		return a, nil

	case mutationMsg:
		if msg.err != nil {
			a.status = "Error: " + msg.err.Error()
			a.isError = true
		} else {
			a.status = msg.status
			a.isError = false
		}
		cmds := []tea.Cmd{a.refreshCurrentView()}
		if a.activeView == viewSettings {
			cmds = append(cmds, a.loadTheme())
		}
		return a, tea.Batch(cmds...)

	case statusMsg:
		a.status = msg.text
		a.isError = msg.isError
		return a, nil

	case exportDoneMsg:
		a.status = "Exported to " + msg.path
		a.isError = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

// globalKey names the app-level action bound to msg, if any.
func globalKey(msg tea.KeyMsg) (string, bool) {
	for _, b := range []struct {
		name    string
		binding key.Binding
	}{
		{"export", keys.Export},
		{"quit", keys.Quit},
		{"help", keys.Help},
		{"tab1", keys.Tab1},
		{"tab2", keys.Tab2},
		{"tab3", keys.Tab3},
		{"tab4", keys.Tab4},
		{"tab", keys.Tab},
	} {
		if key.Matches(msg, b.binding) {
			return b.name, true
		}
	}
	return "", false
}

func (a App) applyGlobal(name string) (tea.Model, tea.Cmd) {
	switch name {
	case "export":
		a.exporter.open = true
		a.exporter.cursor = 0
		return a, nil
	case "quit":
		return a, tea.Quit
	case "help":
		a.showHelp = !a.showHelp
		a.help.ShowAll = a.showHelp
		return a, nil
	case "tab1":
		a.activeView = viewTasks
	case "tab2":
		a.activeView = viewProjects
	case "tab3":
		a.activeView = viewReports
	case "tab4":
		a.activeView = viewSettings
	case "tab":
		a.activeView = (a.activeView + 1) % viewState(len(viewNames))
	}
	return a, a.refreshCurrentView()
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewTasks:
		a.tasks, cmd = a.tasks.update(msg)
	case viewProjects:
		a.projects, cmd = a.projects.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewTasks:
		return a.tasks.formActive
	case viewProjects:
		return a.projects.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewTasks:
		return a.tasks.refresh()
	case viewProjects:
		return a.projects.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch {
	case a.exporter.open:
		content = a.exporter.view(a.width)
	case a.activeView == viewTasks:
		content = a.tasks.view()
	case a.activeView == viewProjects:
		content = a.projects.view()
	case a.activeView == viewReports:
		content = a.reports.view()
	case a.activeView == viewSettings:
		content = a.settings.view()
	}

	contentHeight := max(1, a.height-lipgloss.Height(header)-lipgloss.Height(footer))
	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	tabs := make([]string, len(viewNames))
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs[i] = activeTabStyle.Render(name)
		} else {
			tabs[i] = inactiveTabStyle.Render(name)
		}
	}
	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("done")
	left := title + mutedStyle.Render("  "+a.svc.UserID()+"  "+a.summary(time.Now()))

	gap := max(1, a.width-lipgloss.Width(left)-lipgloss.Width(tabRow)-4)
	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, left, strings.Repeat(" ", gap), tabRow),
	)
}

// summary counts the open and overdue items, e.g. "4 open · 1 overdue".
func (a App) summary(now time.Time) string {
	open, overdue := 0, 0
	for _, it := range a.svc.Cache().Items() {
		if it.Completed() {
			continue
		}
		open++
		if it.Deadline != nil && it.Deadline.Before(now) {
			overdue++
		}
	}
	s := fmt.Sprintf("%d open", open)
	if overdue > 0 {
		s += fmt.Sprintf(" · %d overdue", overdue)
	}
	return s
}

func (a App) renderFooter() string {
	left := footerStyle.Render(a.help.View(keys))

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.isError {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	gap := max(1, a.width-lipgloss.Width(left)-lipgloss.Width(status)-2)
	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, strings.Repeat(" ", gap), status)
}
