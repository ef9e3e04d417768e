// Package styles provides colours and lipgloss styles for the build watcher.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is the colour palette.
type Theme struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Border     lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:    lipgloss.Color("#7C3AED"),
		Secondary:  lipgloss.Color("#06B6D4"),
		Foreground: lipgloss.Color("#CDD6F4"),
		Muted:      lipgloss.Color("#6C7086"),
		Success:    lipgloss.Color("#A6E3A1"),
		Warning:    lipgloss.Color("#F9E2AF"),
		Error:      lipgloss.Color("#F38BA8"),
		Border:     lipgloss.Color("#45475A"),
	}
}

// Styles are the pre-built styles used by the watcher.
type Styles struct {
	theme *Theme

	Title lipgloss.Style
	Muted lipgloss.Style

	// StageDone, StageActive and StagePending render the pipeline stage list.
	StageDone    lipgloss.Style
	StageActive  lipgloss.Style
	StagePending lipgloss.Style

	// BarFilled and BarEmpty render the progress bar cells.
	BarFilled lipgloss.Style
	BarEmpty  lipgloss.Style

	Error   lipgloss.Style
	Hint    lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style

	StatusBar lipgloss.Style
	Box       lipgloss.Style
}

// NewStyles creates styles from a theme. A nil theme uses the default.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		theme: theme,

		Title: lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Muted: lipgloss.NewStyle().Foreground(theme.Muted),

		StageDone:    lipgloss.NewStyle().Foreground(theme.Success),
		StageActive:  lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary),
		StagePending: lipgloss.NewStyle().Foreground(theme.Muted),

		BarFilled: lipgloss.NewStyle().Foreground(theme.Primary),
		BarEmpty:  lipgloss.NewStyle().Foreground(theme.Border),

		Error:   lipgloss.NewStyle().Bold(true).Foreground(theme.Error),
		Hint:    lipgloss.NewStyle().Italic(true).Foreground(theme.Warning),
		Warning: lipgloss.NewStyle().Foreground(theme.Warning),
		Success: lipgloss.NewStyle().Bold(true).Foreground(theme.Success),

		StatusBar: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Background(lipgloss.Color("#181825")).
			Padding(0, 1),

		Box: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the theme used by these styles.
func (s *Styles) Theme() *Theme {
	return s.theme
}
