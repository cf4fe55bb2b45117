package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme contains the styles used by the terminal dashboard.
type Theme struct {
	Title     lipgloss.Style
	StatusBar lipgloss.Style
	Panel     lipgloss.Style
	Heading   lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Spinner   lipgloss.Style
	Bar       lipgloss.Style

	// classes maps view classes (status-*, confidence-*, topic-*,
	// outcome-*) to styles.
	classes map[string]lipgloss.Style
}

// DefaultTheme returns the dark theme.
func DefaultTheme() Theme {
	border := lipgloss.Color("63")
	muted := lipgloss.Color("245")

	green := lipgloss.Color("42")
	yellow := lipgloss.Color("220")
	red := lipgloss.Color("203")
	blue := lipgloss.Color("39")
	purple := lipgloss.Color("141")

	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	banner := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c).
			Foreground(c).
			Padding(0, 1)
	}

	return Theme{
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")),
		StatusBar: lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(border).
			Padding(0, 1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(border).
			Padding(0, 1),
		Heading: lipgloss.NewStyle().Bold(true).Foreground(blue),
		Muted:   fg(muted),
		Error:   fg(red).Bold(true),
		Spinner: fg(purple),
		Bar:     fg(green),
		classes: map[string]lipgloss.Style{
			"status-pending":     fg(muted),
			"status-in-progress": fg(yellow).Bold(true),
			"status-completed":   fg(green),
			"status-blocked":     fg(red).Bold(true),
			"status-unknown":     fg(muted),

			"confidence-low":     fg(red),
			"confidence-medium":  fg(yellow),
			"confidence-high":    fg(green),
			"confidence-unknown": fg(muted),

			"topic-analysis":   fg(blue),
			"topic-plan":       fg(purple),
			"topic-execution":  fg(yellow),
			"topic-reflection": fg(lipgloss.Color("117")),
			"topic-summary":    fg(green).Bold(true),
			"topic-update":     fg(muted),

			"outcome-completed": banner(green),
			"outcome-stalled":   banner(yellow),
			"outcome-limit":     banner(yellow),
			"outcome-stopped":   banner(muted),
			"outcome-crash":     banner(red),
			"outcome-unknown":   banner(muted),
		},
	}
}

// Class returns the style for a view class, or a plain style.
func (t Theme) Class(name string) lipgloss.Style {
	if s, ok := t.classes[name]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
