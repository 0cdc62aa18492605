package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by the progress view.
type Styles struct {
	App      lipgloss.Style
	Title    lipgloss.Style
	Phase    lipgloss.Style
	Done     lipgloss.Style
	Error    lipgloss.Style
	Help     lipgloss.Style
	// BarColor fills the progress bar.
	BarColor string
}

// DefaultStyles returns the default style configuration.
// Industrial design: grayscale with single desaturated teal accent.
func DefaultStyles() Styles {
	primary := lipgloss.AdaptiveColor{Light: "#505050", Dark: "#A0A0A0"}
	subtle := lipgloss.AdaptiveColor{Light: "#888888", Dark: "#606060"}
	accent := lipgloss.AdaptiveColor{Light: "#4A7070", Dark: "#5F8787"}
	danger := lipgloss.AdaptiveColor{Light: "#8A4A4A", Dark: "#AF7575"}

	return Styles{
		App: lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2).
			PaddingRight(2),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),

		Phase: lipgloss.NewStyle().
			Foreground(primary),

		Done: lipgloss.NewStyle().
			Foreground(accent),

		Error: lipgloss.NewStyle().
			Foreground(danger),

		Help: lipgloss.NewStyle().
			Foreground(subtle).
			Padding(1, 0),

		BarColor: accent.Dark,
	}
}
