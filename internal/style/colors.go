package style

import "github.com/charmbracelet/lipgloss"

// Shared styles used across table headers and status rendering.
var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	StatusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	StatusWaiting = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	StatusIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	StatusDead    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	StatusBroken  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
