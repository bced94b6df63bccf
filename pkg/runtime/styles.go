package runtime

import "github.com/charmbracelet/lipgloss"

// Step status glyphs — convey meaning without relying on color alone.
const (
	glyphRunning = "▶"
	glyphRan     = "✓"
	glyphFailed  = "✗"
	glyphSkipped = "⊘"
	glyphNote    = "·"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	styleRan = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	styleFailed = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	styleSkipped = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	styleRunning = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)
