package tui

import "github.com/charmbracelet/lipgloss"

// palette is one color theme. The "system" theme picks dark or light from
// the terminal background.
type palette struct {
	primary, secondary, accent lipgloss.Color
	muted, subtle, fg          lipgloss.Color
	success, warning, error    lipgloss.Color
	highlight                  lipgloss.Color
}

var (
	darkPalette = palette{
		primary:   "#6C63FF",
		secondary: "#2EC4B6",
		accent:    "#FF6B6B",
		muted:     "#666666",
		subtle:    "#414868",
		fg:        "#C0CAF5",
		success:   "#2ECC71",
		warning:   "#F39C12",
		error:     "#E74C3C",
		highlight: "#7AA2F7",
	}
	lightPalette = palette{
		primary:   "#4F46E5",
		secondary: "#0F766E",
		accent:    "#DC2626",
		muted:     "#6B7280",
		subtle:    "#D1D5DB",
		fg:        "#1F2937",
		success:   "#15803D",
		warning:   "#B45309",
		error:     "#B91C1C",
		highlight: "#2563EB",
	}
)

// Current colors, set by applyTheme.
var (
	colorPrimary   lipgloss.Color
	colorSecondary lipgloss.Color
	colorAccent    lipgloss.Color
	colorMuted     lipgloss.Color
	colorSubtle    lipgloss.Color
	colorSuccess   lipgloss.Color
	colorWarning   lipgloss.Color
)

var (
	activeTabStyle    lipgloss.Style
	inactiveTabStyle  lipgloss.Style
	panelStyle        lipgloss.Style
	activePanelStyle  lipgloss.Style
	doneStyle         lipgloss.Style
	inProgressStyle   lipgloss.Style
	pinnedStyle       lipgloss.Style
	titleStyle        lipgloss.Style
	subtitleStyle     lipgloss.Style
	accentStyle       lipgloss.Style
	successStyle      lipgloss.Style
	warningStyle      lipgloss.Style
	errorStyle        lipgloss.Style
	mutedStyle        lipgloss.Style
	highlightStyle    lipgloss.Style
	headerStyle       lipgloss.Style
	footerStyle       lipgloss.Style
	selectedItemStyle lipgloss.Style
	normalItemStyle   lipgloss.Style
)

func init() {
	applyTheme("dark")
}

func paletteFor(theme string) palette {
	switch theme {
	case "light":
		return lightPalette
	case "system":
		if !lipgloss.HasDarkBackground() {
			return lightPalette
		}
	}
	return darkPalette
}

// applyTheme rebuilds every style from the palette of theme.
func applyTheme(theme string) {
	p := paletteFor(theme)

	colorPrimary = p.primary
	colorSecondary = p.secondary
	colorAccent = p.accent
	colorMuted = p.muted
	colorSubtle = p.subtle
	colorSuccess = p.success
	colorWarning = p.warning

	activeTabStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.primary).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(p.primary).
		Padding(0, 2)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(p.muted).Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.subtle).
		Padding(1, 2)
	activePanelStyle = panelStyle.BorderForeground(p.primary)

	doneStyle = lipgloss.NewStyle().Foreground(p.muted).Strikethrough(true)
	inProgressStyle = lipgloss.NewStyle().Foreground(p.warning)
	pinnedStyle = lipgloss.NewStyle().Foreground(p.secondary)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(p.fg)
	subtitleStyle = lipgloss.NewStyle().Foreground(p.muted)
	accentStyle = lipgloss.NewStyle().Foreground(p.accent)
	successStyle = lipgloss.NewStyle().Foreground(p.success)
	warningStyle = lipgloss.NewStyle().Foreground(p.warning)
	errorStyle = lipgloss.NewStyle().Foreground(p.error)
	mutedStyle = lipgloss.NewStyle().Foreground(p.muted)
	highlightStyle = lipgloss.NewStyle().Foreground(p.highlight)

	headerStyle = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(p.muted).Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().Foreground(p.primary).Bold(true)
	normalItemStyle = lipgloss.NewStyle().Foreground(p.fg)
}
