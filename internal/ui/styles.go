package ui

import "github.com/charmbracelet/lipgloss"

// Adaptive colors so the dashboard reads on both light and dark
// terminals. NO_COLOR is respected automatically by lipgloss.
var (
	colorGood   = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorBad    = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleGood  = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	styleBad   = lipgloss.NewStyle().Foreground(colorBad).Bold(true)
	styleWarn  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	styleButtonUp = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorBorder).
			Foreground(colorMuted).
			Padding(0, 1)

	styleButtonDown = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorGood).
			Foreground(colorGood).
			Bold(true).
			Padding(0, 1)
)
