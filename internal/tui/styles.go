package tui

import "github.com/charmbracelet/lipgloss"

// Layout defaults used before the first WindowSizeMsg arrives.
const (
	defaultWidth  = 100
	defaultHeight = 24
	borderPadding = 2

	// tableChrome is the number of lines around the table: tabs, status bar,
	// toast line and table header.
	tableChrome = 7
)

// Shared styles.
//
//nolint:gochecknoglobals // lipgloss styles are immutable values.
var (
	SubtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	InfoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

	WarningStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	CriticalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	TabStyle       = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("245"))
	ActiveTabStyle = lipgloss.NewStyle().Padding(0, 2).Bold(true).Underline(true).Foreground(lipgloss.Color("39"))

	TableHeaderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240")).
				BorderBottom(true).
				Bold(true)
	TableSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))
)
