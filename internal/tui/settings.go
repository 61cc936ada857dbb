package tui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/tasks"
)

type settingsModel struct {
	svc    *tasks.Service
	width  int
	height int

	settings   []model.Setting
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	locale    *string
	theme     *string
	threeStep *bool
}

func newSettingsModel(svc *tasks.Service) settingsModel {
	locale, theme, threeStep := "", "", false
	return settingsModel{
		svc:       svc,
		locale:    &locale,
		theme:     &theme,
		threeStep: &threeStep,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []model.Setting
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		settings, _ := s.svc.Store().GetAllSettings(context.Background())
		return settingsDataMsg{settings: settings}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.settings = msg.settings
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.Edit):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	ctx := context.Background()
	set := s.svc.Settings()

	// Load current values
	*s.locale, _ = set.Locale(ctx)
	*s.theme, _ = set.Theme(ctx)
	*s.threeStep, _ = set.ThreeStepEnabled(ctx)

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Language").
				Options(
					huh.NewOption("English", "en"),
					huh.NewOption("Svenska", "sv"),
				).Value(s.locale),
			huh.NewSelect[string]().Title("Theme").
				Options(
					huh.NewOption("System", "system"),
					huh.NewOption("Light", "light"),
					huh.NewOption("Dark", "dark"),
				).Value(s.theme),
			huh.NewConfirm().Title("Three-step subtasks for new tasks").
				Description("pending → in progress → completed").
				Value(s.threeStep),
		).Title("General"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		return s, tea.Sequence(s.saveSettings(), s.refresh())
	}

	return s, cmd
}

func (s settingsModel) saveSettings() tea.Cmd {
	set := s.svc.Settings()
	locale, theme, threeStep := *s.locale, *s.theme, *s.threeStep
	return func() tea.Msg {
		ctx := context.Background()
		if err := set.SetLocale(ctx, locale); err != nil {
			return mutated("", err)
		}
		if err := set.SetTheme(ctx, theme); err != nil {
			return mutated("", err)
		}
		return mutated("Settings saved", set.SetThreeStepEnabled(ctx, threeStep))
	}
}

func (s settingsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Settings")
		formView := s.form.View()
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", formView),
		)
	}

	title := titleStyle.Render("Settings")
	hint := mutedStyle.Render("Press enter to edit settings")

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(24).Render(settingLabels[setting.Key])
		if label == "" {
			label = lipgloss.NewStyle().Width(24).Render(setting.Key)
		}
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}

	rows = append(rows, "")
	rows = append(rows, hint)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

var settingLabels = map[string]string{
	tasks.SettingLocale:       "Language",
	tasks.SettingTheme:        "Theme",
	tasks.SettingThreeStep:    "Three-step subtasks",
	tasks.SettingPinnedTaskID: "Pinned tasks",
}

func formatSettingValue(k, v string) string {
	switch k {
	case tasks.SettingLocale:
		switch v {
		case "en":
			return "English"
		case "sv":
			return "Svenska"
		}
	case tasks.SettingThreeStep:
		if on, err := strconv.ParseBool(v); err == nil {
			if on {
				return "on"
			}
			return "off"
		}
	case tasks.SettingPinnedTaskID:
		if v == "[]" || v == "" {
			return "none"
		}
		return v
	}
	return v
}
