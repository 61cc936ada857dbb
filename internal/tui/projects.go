package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/tasks"
)

var projectColors = []string{"#6366f1", "#3b82f6", "#10b981", "#f59e0b", "#ec4899", "#ef4444", "#8b5cf6", "#14b8a6"}

// projectRow is a project with its item counts.
type projectRow struct {
	project model.Project
	open    int
	done    int
}

type projectsModel struct {
	svc    *tasks.Service
	width  int
	height int

	projects     []projectRow
	items        []model.Item
	cursor       int
	itemCursor   int
	viewingItems bool // true = viewing items of selected project

	formActive bool
	form       *huh.Form
	formType   string // "project", "edit_project"

	// Form field pointers (survive value copies)
	formName  *string
	formColor *string
	formIcon  *string

	editingID string
}

func newProjectsModel(svc *tasks.Service) projectsModel {
	name, color, icon := "", projectColors[0], ""
	return projectsModel{
		svc:       svc,
		formName:  &name,
		formColor: &color,
		formIcon:  &icon,
	}
}

func (p *projectsModel) setSize(w, h int) {
	p.width = w
	p.height = h
}

type projectsDataMsg struct {
	projects []projectRow
}

type projectItemsMsg struct {
	items []model.Item
}

func (p projectsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return projectsDataMsg{projects: projectRows(p.svc.Cache())}
	}
}

func projectRows(c *model.Cache) []projectRow {
	var rows []projectRow
	for _, proj := range c.Projects() {
		r := projectRow{project: proj}
		for _, it := range c.ItemsIn(proj.ID) {
			if it.Completed() {
				r.done++
			} else {
				r.open++
			}
		}
		rows = append(rows, r)
	}
	return rows
}

func (p projectsModel) refreshItems() tea.Cmd {
	if p.cursor >= len(p.projects) {
		return nil
	}
	pid := p.projects[p.cursor].project.ID
	return func() tea.Msg {
		return projectItemsMsg{items: p.svc.Cache().ItemsIn(pid)}
	}
}

func (p projectsModel) update(msg tea.Msg) (projectsModel, tea.Cmd) {
	if p.formActive && p.form != nil {
		return p.updateForm(msg)
	}

	switch msg := msg.(type) {
	case projectsDataMsg:
		p.projects = msg.projects
		if p.cursor >= len(p.projects) {
			p.cursor = max(0, len(p.projects)-1)
		}
		if p.viewingItems {
			return p, p.refreshItems()
		}
		return p, nil

	case projectItemsMsg:
		p.items = msg.items
		if p.itemCursor >= len(p.items) {
			p.itemCursor = max(0, len(p.items)-1)
		}
		return p, nil

	case tea.KeyMsg:
		if p.viewingItems {
			return p.updateItemView(msg)
		}
		return p.updateProjectList(msg)
	}
	return p, nil
}

func (p projectsModel) updateProjectList(msg tea.KeyMsg) (projectsModel, tea.Cmd) {
	ctx := context.Background()
	svc := p.svc

	switch {
	case key.Matches(msg, keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, keys.Down):
		if p.cursor < len(p.projects)-1 {
			p.cursor++
		}
	case key.Matches(msg, keys.Enter):
		if len(p.projects) > 0 {
			p.viewingItems = true
			p.itemCursor = 0
			return p, p.refreshItems()
		}
	case key.Matches(msg, keys.New):
		return p.showProjectForm("project")
	case key.Matches(msg, keys.Edit):
		if len(p.projects) > 0 {
			return p.showProjectForm("edit_project")
		}
	case key.Matches(msg, keys.Delete):
		if len(p.projects) > 0 {
			proj := p.projects[p.cursor].project
			return p, func() tea.Msg {
				return mutated("Deleted project "+proj.Title, svc.DeleteProject(ctx, proj.ID))
			}
		}
	case key.Matches(msg, keys.MoveUp), key.Matches(msg, keys.MoveDown):
		j := p.cursor + 1
		if key.Matches(msg, keys.MoveUp) {
			j = p.cursor - 1
		}
		if j < 0 || j >= len(p.projects) {
			return p, nil
		}
		ids := make([]string, len(p.projects))
		for i, r := range p.projects {
			ids[i] = r.project.ID
		}
		ids[p.cursor], ids[j] = ids[j], ids[p.cursor]
		p.cursor = j
		return p, func() tea.Msg { return mutated("", svc.ReorderProjects(ctx, ids)) }
	}
	return p, nil
}

func (p projectsModel) updateItemView(msg tea.KeyMsg) (projectsModel, tea.Cmd) {
	ctx := context.Background()
	svc := p.svc

	switch {
	case key.Matches(msg, keys.Back):
		p.viewingItems = false
		return p, p.refresh()
	case key.Matches(msg, keys.Up):
		if p.itemCursor > 0 {
			p.itemCursor--
		}
	case key.Matches(msg, keys.Down):
		if p.itemCursor < len(p.items)-1 {
			p.itemCursor++
		}
	case key.Matches(msg, keys.Toggle):
		if len(p.items) > 0 {
			it := p.items[p.itemCursor]
			return p, func() tea.Msg {
				_, err := svc.ToggleItem(ctx, it.ID)
				return mutated("Toggled "+it.Title, err)
			}
		}
	}
	return p, nil
}

func (p projectsModel) showProjectForm(formType string) (projectsModel, tea.Cmd) {
	*p.formName = ""
	*p.formColor = projectColors[0]
	*p.formIcon = ""
	p.formType = formType
	if formType == "edit_project" {
		proj := p.projects[p.cursor].project
		*p.formName = proj.Title
		*p.formColor = proj.Color
		*p.formIcon = proj.Icon
		p.editingID = proj.ID
	}

	colorOptions := make([]huh.Option[string], len(projectColors))
	for i, c := range projectColors {
		colorOptions[i] = huh.NewOption(fmt.Sprintf("● %s", c), c)
	}

	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Project Name").Value(p.formName),
			huh.NewSelect[string]().Title("Color").Options(colorOptions...).Value(p.formColor),
			huh.NewInput().Title("Icon").Value(p.formIcon),
		),
	).WithShowHelp(true).WithShowErrors(true)

	p.formActive = true
	return p, p.form.Init()
}

func (p projectsModel) updateForm(msg tea.Msg) (projectsModel, tea.Cmd) {
	// Check for escape to cancel form
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			p.formActive = false
			p.form = nil
			return p, nil
		}
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	if p.form.State == huh.StateCompleted {
		p.formActive = false
		if strings.TrimSpace(*p.formName) == "" {
			return p, nil
		}
		ctx := context.Background()
		svc := p.svc
		name, color, icon := *p.formName, *p.formColor, *p.formIcon
		switch p.formType {
		case "project":
			return p, func() tea.Msg {
				_, err := svc.AddProject(ctx, tasks.ProjectInput{Title: name, Color: color, Icon: icon})
				return mutated("Created project "+name, err)
			}
		case "edit_project":
			id := p.editingID
			return p, func() tea.Msg {
				proj, ok := svc.Cache().Project(id)
				if !ok {
					return mutated("", model.NotFoundError{Kind: "project", ID: id})
				}
				proj.Title, proj.Color, proj.Icon = name, color, icon
				return mutated("Saved project "+name, svc.UpdateProject(ctx, proj))
			}
		}
	}

	return p, cmd
}

func (p projectsModel) view() string {
	if p.formActive && p.form != nil {
		title := titleStyle.Render("New Project")
		if p.formType == "edit_project" {
			title = titleStyle.Render("Edit Project")
		}
		formView := p.form.View()
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", formView)
		return panelStyle.Width(p.width - 4).Render(content)
	}

	if p.viewingItems {
		return p.renderItemView()
	}
	return p.renderProjectList()
}

func (p projectsModel) renderProjectList() string {
	w := p.width - 4
	title := titleStyle.Render("Projects")

	if len(p.projects) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No projects yet. Press n to create one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	// Table header
	header := mutedStyle.Render(fmt.Sprintf("  %-3s %-24s %6s %6s", "", "Name", "Open", "Done"))
	rows = append(rows, header)

	for i, r := range p.projects {
		colorDot := lipgloss.NewStyle().Foreground(lipgloss.Color(r.project.Color)).Render("●")
		cursor := "  "
		style := normalItemStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		row := style.Render(fmt.Sprintf("%s%s %-24s %6d %6d", cursor, colorDot, truncate(r.project.Title, 24), r.open, r.done))
		rows = append(rows, row)
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  e: edit  d: delete  K/J: reorder  enter: tasks"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (p projectsModel) renderItemView() string {
	w := p.width - 4
	proj := p.projects[p.cursor].project
	colorDot := lipgloss.NewStyle().Foreground(lipgloss.Color(proj.Color)).Render("●")
	title := titleStyle.Render(fmt.Sprintf("%s %s", colorDot, proj.Title))

	if len(p.items) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No tasks in this project."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	for i, it := range p.items {
		cursor := "  "
		style := normalItemStyle
		if it.Completed() {
			style = doneStyle
		}
		if i == p.itemCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, cursor+style.Render(itemMark(it)+" "+it.Title))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  space: toggle  esc: back"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
