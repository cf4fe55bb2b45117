package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to width runes, adding an ellipsis if needed.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	if width >= 3 {
		return string(runes[:width-3]) + "..."
	}
	return string(runes[:width])
}

// WrapText wraps text to fit within width. Words longer than width are
// placed on their own line.
func WrapText(text string, width int) []string {
	if width <= 0 {
		return nil
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}

// ProgressBar renders pct (0..100) as a bar of the given width, e.g.
// "████████░░░░░░░░". Out of range values are clamped.
func ProgressBar(pct, width int) string {
	if width <= 0 {
		return ""
	}
	pct = max(0, min(100, pct))
	filled := pct * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// ShortID returns the first eight characters of a run ID.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// keyHint renders a shortcut hint such as "[enter] start".
func keyHint(key, action string) string {
	return fmt.Sprintf("[%s] %s", key, action)
}
