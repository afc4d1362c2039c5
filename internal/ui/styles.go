package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/IdeaForge/internal/project"
)

var (
	// Colors
	ColorPrimary   = lipgloss.Color("205") // Pink
	ColorSecondary = lipgloss.Color("241") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorError     = lipgloss.Color("160") // Red
	ColorWarning   = lipgloss.Color("214") // Orange/Yellow
	ColorText      = lipgloss.Color("252") // White/Gray
	ColorCyan      = lipgloss.Color("87")

	StyleTitle   = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleSubtle  = lipgloss.NewStyle().Foreground(ColorSecondary)
	StylePrimary = lipgloss.NewStyle().Foreground(ColorPrimary)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleText    = lipgloss.NewStyle().Foreground(ColorText)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Padding(0, 1)

	StyleStageBox = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorSecondary).
			Padding(0, 1)
)

// Icon returns a styled icon string
func Icon(icon string, style lipgloss.Style) string {
	return style.Render(icon)
}

// StatusStyle returns the style used to print a project status.
func StatusStyle(s project.Status) lipgloss.Style {
	switch s {
	case project.StatusCompleted:
		return StyleSuccess
	case project.StatusFailed:
		return StyleError
	case project.StatusPaused:
		return StyleWarning
	case project.StatusInProgress:
		return StylePrimary
	default:
		return StyleSubtle
	}
}

// TaskIcon returns the icon for a task status.
func TaskIcon(s project.TaskStatus) string {
	switch s {
	case project.TaskCompleted:
		return Icon("✓", StyleSuccess)
	case project.TaskFailed:
		return Icon("✗", StyleError)
	case project.TaskSkipped:
		return Icon("-", StyleSubtle)
	case project.TaskInProgress:
		return Icon("•", StylePrimary)
	default:
		return Icon("○", StyleSubtle)
	}
}
