package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/tasks"
)

type reportMode int

const (
	reportByProject reportMode = iota
	reportByPriority
)

// reportGroup counts the items of one project or priority.
type reportGroup struct {
	name    string
	color   string
	open    int
	done    int
	overdue int
}

type reportsModel struct {
	svc    *tasks.Service
	width  int
	height int

	mode   reportMode
	groups []reportGroup

	chart barchart.Model
}

func newReportsModel(svc *tasks.Service) reportsModel {
	return reportsModel{
		svc:   svc,
		chart: barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	groups []reportGroup
}

func (r reportsModel) refresh() tea.Cmd {
	mode := r.mode
	return func() tea.Msg {
		return reportsDataMsg{groups: buildReport(r.svc.Cache(), mode, time.Now())}
	}
}

func buildReport(c *model.Cache, mode reportMode, now time.Time) []reportGroup {
	var groups []reportGroup
	index := make(map[string]int)
	add := func(key, name, color string) {
		index[key] = len(groups)
		groups = append(groups, reportGroup{name: name, color: color})
	}

	switch mode {
	case reportByPriority:
		add(string(model.PriorityHigh), "High", string(colorAccent))
		add(string(model.PriorityMedium), "Medium", string(colorWarning))
		add(string(model.PriorityLow), "Low", string(colorSecondary))
	default:
		for _, p := range c.Projects() {
			add(p.ID, p.Title, p.Color)
		}
		add("", "No project", string(colorMuted))
	}

	for _, it := range c.Items() {
		k := string(it.Priority)
		if mode == reportByProject {
			k = ""
			if it.CategoryID != nil {
				if _, ok := index[*it.CategoryID]; ok {
					k = *it.CategoryID
				}
			}
		}
		i, ok := index[k]
		if !ok {
			continue
		}
		g := &groups[i]
		switch {
		case it.Completed():
			g.done++
		case it.Deadline != nil && it.Deadline.Before(now):
			g.overdue++
			g.open++
		default:
			g.open++
		}
	}

	// Drop empty groups.
	out := groups[:0]
	for _, g := range groups {
		if g.open+g.done > 0 {
			out = append(out, g)
		}
	}
	return out
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		r.groups = msg.groups
		r.buildChart()
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left), key.Matches(msg, keys.Right):
			if r.mode == reportByProject {
				r.mode = reportByPriority
			} else {
				r.mode = reportByProject
			}
			return r, r.refresh()
		}
	}
	return r, nil
}

func (r *reportsModel) buildChart() {
	chartWidth := r.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)

	var bars []barchart.BarData
	for _, g := range r.groups {
		bars = append(bars, barchart.BarData{
			Label: truncate(g.name, 10),
			Values: []barchart.BarValue{
				{Name: "done", Value: float64(g.done), Style: lipgloss.NewStyle().Foreground(colorSuccess)},
				{Name: "open", Value: float64(g.open), Style: lipgloss.NewStyle().Foreground(lipgloss.Color(g.color))},
			},
		})
	}
	if len(bars) == 0 {
		bars = []barchart.BarData{{
			Label:  "",
			Values: []barchart.BarValue{{Name: "", Value: 0, Style: lipgloss.NewStyle().Foreground(colorSubtle)}},
		}}
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	// Mode tabs
	projectTab := inactiveTabStyle.Render("By project")
	priorityTab := inactiveTabStyle.Render("By priority")
	if r.mode == reportByProject {
		projectTab = activeTabStyle.Render("By project")
	} else {
		priorityTab = activeTabStyle.Render("By priority")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, projectTab, priorityTab)

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", modeTabs,
	)

	legend := successStyle.Render("●") + " done  " + mutedStyle.Render("● open")
	nav := mutedStyle.Render("  ←/→: switch mode")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", r.chart.View(), "", "  "+legend, "", r.renderSummaryTable(w), "", nav,
		),
	)
}

func (r reportsModel) renderSummaryTable(w int) string {
	if len(r.groups) == 0 {
		return mutedStyle.Render("  No tasks yet")
	}

	var rows []string
	headerRow := mutedStyle.Render(fmt.Sprintf("  %-22s %6s %6s %8s %6s", "Group", "Open", "Done", "Overdue", "Rate"))
	rows = append(rows, headerRow)
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 52))))

	for _, g := range r.groups {
		colorDot := lipgloss.NewStyle().Foreground(lipgloss.Color(g.color)).Render("●")
		overdue := fmt.Sprintf("%8d", g.overdue)
		if g.overdue > 0 {
			overdue = errorStyle.Render(overdue)
		}
		rows = append(rows, fmt.Sprintf("  %s %-20s %6d %6d %s %6s",
			colorDot, truncate(g.name, 20), g.open, g.done, overdue, completionRate(g.done, g.open+g.done),
		))
	}

	return strings.Join(rows, "\n")
}

func completionRate(done, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", done*100/total)
}
