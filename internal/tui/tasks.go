package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/done/internal/dateparse"
	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/tasks"
)

type rowKind int

const (
	rowItem rowKind = iota
	rowSubtask
)

// row is one line of the task tree.
type row struct {
	kind     rowKind
	item     model.Item
	sub      model.Subtask
	depth    int
	done     int
	total    int
	comments int
	pinned   bool
	expanded bool
}

type tasksModel struct {
	svc    *tasks.Service
	width  int
	height int

	rows     []row
	cursor   int
	expanded map[string]bool
	hideDone bool

	formActive bool
	form       *huh.Form
	formType   string // "item", "edit_item", "subtask", "edit_subtask", "comment"

	// Form field pointers (survive value copies)
	formTitle      *string
	formPriority   *string
	formRecurrence *string
	formProject    *string

	target row
}

func newTasksModel(svc *tasks.Service) tasksModel {
	title, prio, rec, proj := "", string(model.PriorityMedium), "", ""
	return tasksModel{
		svc:            svc,
		expanded:       make(map[string]bool),
		formTitle:      &title,
		formPriority:   &prio,
		formRecurrence: &rec,
		formProject:    &proj,
	}
}

func (m tasksModel) Init() tea.Cmd {
	return m.refresh()
}

func (m *tasksModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type tasksDataMsg struct {
	rows []row
}

func (m tasksModel) refresh() tea.Cmd {
	expanded := make(map[string]bool, len(m.expanded))
	for k, v := range m.expanded {
		expanded[k] = v
	}
	hideDone := m.hideDone
	return func() tea.Msg {
		pinned, _ := m.svc.Settings().PinnedIDs(context.Background())
		return tasksDataMsg{rows: buildRows(m.svc.Cache(), pinned, expanded, hideDone)}
	}
}

// buildRows flattens the cache into display rows. Pinned items come first
// in pin order, then the rest by their order. Subtasks are listed only for
// expanded items.
func buildRows(c *model.Cache, pinned []string, expanded map[string]bool, hideDone bool) []row {
	items := c.Items()
	rank := make(map[string]int, len(pinned))
	for i, id := range pinned {
		rank[id] = i
	}
	slices.SortStableFunc(items, func(a, b model.Item) int {
		ra, pa := rank[a.ID]
		rb, pb := rank[b.ID]
		switch {
		case pa && pb:
			return ra - rb
		case pa:
			return -1
		case pb:
			return 1
		}
		return 0
	})

	var rows []row
	for _, it := range items {
		if hideDone && it.Completed() {
			continue
		}
		subs := c.SubtasksOf(it.ID)
		r := row{
			kind:     rowItem,
			item:     it,
			comments: len(c.CommentsOf(it.ID)),
			expanded: expanded[it.ID],
		}
		_, r.pinned = rank[it.ID]
		for _, s := range subs {
			r.total++
			if s.Completed {
				r.done++
			}
		}
		rows = append(rows, r)
		if !r.expanded {
			continue
		}
		for _, top := range c.TopLevel(it.ID) {
			rows = append(rows, row{kind: rowSubtask, item: it, sub: top, depth: 1})
			for _, child := range c.Children(top.ID) {
				rows = append(rows, row{kind: rowSubtask, item: it, sub: child, depth: 2})
			}
		}
	}
	return rows
}

func (m tasksModel) selected() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

func (m tasksModel) update(msg tea.Msg) (tasksModel, tea.Cmd) {
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tasksDataMsg:
		m.rows = msg.rows
		if m.cursor >= len(m.rows) {
			m.cursor = max(0, len(m.rows)-1)
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateList(msg)
	}
	return m, nil
}

func (m tasksModel) updateList(msg tea.KeyMsg) (tasksModel, tea.Cmd) {
	r, ok := m.selected()

	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, keys.New):
		return m.showItemForm(row{}, "item")
	case key.Matches(msg, keys.Filter):
		m.hideDone = !m.hideDone
		m.cursor = 0
		return m, m.refresh()
	}
	if !ok {
		return m, nil
	}

	ctx := context.Background()
	svc := m.svc
	switch {
	case key.Matches(msg, keys.Enter), key.Matches(msg, keys.Right), key.Matches(msg, keys.Left):
		if r.kind == rowItem && r.total > 0 {
			open := !m.expanded[r.item.ID]
			if key.Matches(msg, keys.Right) {
				open = true
			} else if key.Matches(msg, keys.Left) {
				open = false
			}
			m.expanded[r.item.ID] = open
			return m, m.refresh()
		}
	case key.Matches(msg, keys.Toggle):
		if r.kind == rowItem {
			return m, func() tea.Msg {
				_, err := svc.ToggleItem(ctx, r.item.ID)
				return mutated("Toggled "+r.item.Title, err)
			}
		}
		return m, func() tea.Msg {
			_, err := svc.ToggleSubtask(ctx, r.sub.ID)
			return mutated("Toggled "+r.sub.Title, err)
		}
	case key.Matches(msg, keys.AddSub):
		m.expanded[r.item.ID] = true
		return m.showTitleForm(r, "subtask", "")
	case key.Matches(msg, keys.Edit):
		if r.kind == rowItem {
			return m.showItemForm(r, "edit_item")
		}
		return m.showTitleForm(r, "edit_subtask", r.sub.Title)
	case key.Matches(msg, keys.Comment):
		return m.showTitleForm(r, "comment", "")
	case key.Matches(msg, keys.Delete):
		if r.kind == rowItem {
			return m, func() tea.Msg {
				return mutated("Deleted "+r.item.Title, svc.DeleteItem(ctx, r.item.ID))
			}
		}
		return m, func() tea.Msg {
			return mutated("Deleted "+r.sub.Title, svc.DeleteSubtask(ctx, r.sub.ID))
		}
	case key.Matches(msg, keys.Pin):
		if r.kind == rowItem {
			return m, func() tea.Msg {
				pinned, err := svc.Settings().TogglePinned(ctx, r.item.ID)
				if pinned {
					return mutated("Pinned "+r.item.Title, err)
				}
				return mutated("Unpinned "+r.item.Title, err)
			}
		}
	case key.Matches(msg, keys.Promote):
		if r.kind == rowSubtask {
			return m, func() tea.Msg {
				_, err := svc.ConvertSubtaskToItem(ctx, r.sub.ID)
				return mutated("Promoted "+r.sub.Title, err)
			}
		}
	case key.Matches(msg, keys.MoveUp), key.Matches(msg, keys.MoveDown):
		delta := 1
		if key.Matches(msg, keys.MoveUp) {
			delta = -1
		}
		return m, m.move(r, delta)
	}
	return m, nil
}

// move swaps the selected row with its neighbour in the same sibling group.
func (m tasksModel) move(r row, delta int) tea.Cmd {
	ctx := context.Background()
	svc := m.svc
	c := svc.Cache()

	if r.kind == rowItem {
		items := c.Items()
		ids := make([]string, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		i := slices.Index(ids, r.item.ID)
		j := i + delta
		if i < 0 || j < 0 || j >= len(ids) {
			return nil
		}
		ids[i], ids[j] = ids[j], ids[i]
		return func() tea.Msg { return mutated("", svc.ReorderItems(ctx, ids)) }
	}

	var siblings []model.Subtask
	if r.sub.IsTopLevel() {
		siblings = c.TopLevel(r.sub.TodoID)
	} else {
		siblings = c.Children(*r.sub.ParentID)
	}
	i := slices.IndexFunc(siblings, func(s model.Subtask) bool { return s.ID == r.sub.ID })
	j := i + delta
	if i < 0 || j < 0 || j >= len(siblings) {
		return nil
	}
	siblings[i], siblings[j] = siblings[j], siblings[i]
	for k := range siblings {
		siblings[k].Order = k
	}
	return func() tea.Msg { return mutated("", svc.ReorderSubtasks(ctx, siblings)) }
}

func (m tasksModel) projectOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("None", "")}
	for _, p := range m.svc.Cache().Projects() {
		opts = append(opts, huh.NewOption(p.Title, p.ID))
	}
	return opts
}

func (m tasksModel) showItemForm(r row, formType string) (tasksModel, tea.Cmd) {
	*m.formTitle = ""
	*m.formPriority = string(model.PriorityMedium)
	*m.formRecurrence = ""
	*m.formProject = ""
	if formType == "edit_item" {
		*m.formTitle = r.item.Title
		*m.formPriority = string(r.item.Priority)
		*m.formRecurrence = string(r.item.Recurrence)
		if r.item.CategoryID != nil {
			*m.formProject = *r.item.CategoryID
		}
	}
	m.formType = formType
	m.target = r

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Description("e.g. \"Call mom tomorrow at 5pm\"").Value(m.formTitle),
			huh.NewSelect[string]().Title("Priority").
				Options(
					huh.NewOption("Low", string(model.PriorityLow)),
					huh.NewOption("Medium", string(model.PriorityMedium)),
					huh.NewOption("High", string(model.PriorityHigh)),
				).Value(m.formPriority),
			huh.NewSelect[string]().Title("Repeat").
				Options(
					huh.NewOption("Never", ""),
					huh.NewOption("Daily", string(model.RecurrenceDaily)),
					huh.NewOption("Weekly", string(model.RecurrenceWeekly)),
					huh.NewOption("Monthly", string(model.RecurrenceMonthly)),
				).Value(m.formRecurrence),
			huh.NewSelect[string]().Title("Project").Options(m.projectOptions()...).Value(m.formProject),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m tasksModel) showTitleForm(r row, formType, initial string) (tasksModel, tea.Cmd) {
	*m.formTitle = initial
	m.formType = formType
	m.target = r

	label := "Subtask"
	if formType == "comment" {
		label = "Comment"
	}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title(label).Value(m.formTitle),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m tasksModel) updateForm(msg tea.Msg) (tasksModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			m.formActive = false
			m.form = nil
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.formActive = false
		if strings.TrimSpace(*m.formTitle) == "" {
			return m, nil
		}
		return m, m.submitForm()
	}

	return m, cmd
}

// submitForm turns the completed form into a service call.
func (m tasksModel) submitForm() tea.Cmd {
	ctx := context.Background()
	svc := m.svc
	r := m.target
	title := *m.formTitle
	priority := model.Priority(*m.formPriority)
	recurrence := model.Recurrence(*m.formRecurrence)
	var project *string
	if *m.formProject != "" {
		project = model.StringPtr(*m.formProject)
	}

	switch m.formType {
	case "item":
		return func() tea.Msg {
			in := tasks.ItemInput{Title: title, Priority: priority, Recurrence: recurrence, CategoryID: project}
			if res, ok := dateparse.Parse(title, time.Now()); ok && res.Title != "" {
				deadline := res.Deadline.UTC()
				in.Title = res.Title
				in.Deadline = &deadline
			}
			it, err := svc.AddItem(ctx, in)
			return mutated("Added "+it.Title, err)
		}
	case "edit_item":
		id := r.item.ID
		return func() tea.Msg {
			// Re-read so a toggle since the form opened is not overwritten.
			it, ok := svc.Cache().Item(id)
			if !ok {
				return mutated("", model.NotFoundError{Kind: "item", ID: id})
			}
			it.Title = title
			it.Priority = priority
			it.Recurrence = recurrence
			it.CategoryID = project
			return mutated("Saved "+it.Title, svc.UpdateItem(ctx, it))
		}
	case "subtask":
		var parent *string
		if r.kind == rowSubtask {
			if r.sub.IsTopLevel() {
				parent = model.StringPtr(r.sub.ID)
			} else {
				parent = r.sub.ParentID
			}
		}
		return func() tea.Msg {
			_, err := svc.AddSubtask(ctx, r.item.ID, parent, title)
			return mutated("Added subtask", err)
		}
	case "edit_subtask":
		id := r.sub.ID
		return func() tea.Msg { return mutated("Saved subtask", svc.RenameSubtask(ctx, id, title)) }
	case "comment":
		return func() tea.Msg {
			_, err := svc.AddComment(ctx, r.item.ID, title)
			return mutated("Comment added", err)
		}
	}
	return nil
}

func (m tasksModel) view() string {
	w := m.width - 4
	if m.formActive && m.form != nil {
		title := titleStyle.Render(formTitles[m.formType])
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", m.form.View())
		return panelStyle.Width(w).Render(content)
	}

	title := titleStyle.Render("Tasks")
	if m.hideDone {
		title += mutedStyle.Render("  (hiding completed)")
	}
	if len(m.rows) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("Nothing to do. Press n to add a task."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var lines []string
	lines = append(lines, title, "")

	// Keep the cursor in view.
	visible := max(1, m.height-8)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(len(m.rows), start+visible)

	projects := make(map[string]model.Project)
	for _, p := range m.svc.Cache().Projects() {
		projects[p.ID] = p
	}
	now := time.Now()
	for i := start; i < end; i++ {
		lines = append(lines, m.renderRow(m.rows[i], i == m.cursor, projects, now, w))
	}

	lines = append(lines, "")
	lines = append(lines, mutedStyle.Render("  space: toggle  n: new  a: subtask  e: edit  d: delete  p: pin  c: comment  enter: expand"))

	return panelStyle.Width(w).Render(strings.Join(lines, "\n"))
}

var formTitles = map[string]string{
	"item":         "New Task",
	"edit_item":    "Edit Task",
	"subtask":      "New Subtask",
	"edit_subtask": "Edit Subtask",
	"comment":      "Add Comment",
}

func (m tasksModel) renderRow(r row, selected bool, projects map[string]model.Project, now time.Time, w int) string {
	cursor := "  "
	style := normalItemStyle
	if selected {
		cursor = "> "
		style = selectedItemStyle
	}

	if r.kind == rowSubtask {
		indent := strings.Repeat("  ", r.depth)
		text := subtaskMark(r.sub.Status) + " " + r.sub.Title
		switch {
		case selected:
		case r.sub.Status == model.SubtaskCompleted:
			style = doneStyle
		case r.sub.Status == model.SubtaskInProgress:
			style = inProgressStyle
		}
		return cursor + indent + style.Render(truncate(text, w-len(indent)-6))
	}

	it := r.item
	fold := "  "
	if r.total > 0 {
		fold = "▸ "
		if r.expanded {
			fold = "▾ "
		}
	}
	if it.Completed() && !selected {
		style = doneStyle
	}
	text := style.Render(truncate(itemMark(it)+" "+it.Title, w/2))

	var meta []string
	if r.pinned {
		meta = append(meta, pinnedStyle.Render("pinned"))
	}
	if it.CategoryID != nil {
		if p, ok := projects[*it.CategoryID]; ok {
			dot := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).Render("●")
			meta = append(meta, dot+" "+mutedStyle.Render(p.Title))
		}
	}
	if it.Priority == model.PriorityHigh {
		meta = append(meta, accentStyle.Render("!"))
	}
	if d := formatDeadline(it.Deadline, now); d != "" {
		if strings.HasPrefix(d, "overdue") && !it.Completed() {
			meta = append(meta, errorStyle.Render(d))
		} else {
			meta = append(meta, highlightStyle.Render(d))
		}
	}
	if it.Recurrence != model.RecurrenceNone {
		meta = append(meta, mutedStyle.Render("↻ "+string(it.Recurrence)))
	}
	if p := formatProgress(r.done, r.total); p != "" {
		meta = append(meta, successStyle.Render(p))
	}
	if r.comments > 0 {
		meta = append(meta, mutedStyle.Render(fmt.Sprintf("%d comments", r.comments)))
	}
	return cursor + fold + text + "  " + strings.Join(meta, "  ")
}
