package tui

import "github.com/charmbracelet/lipgloss"

const helpText = ": command  space pause  [/] speed  +/- zoom  arrows pan  0 reset view  q quit"

var boundsColor = lipgloss.Color("240")

var (
	canvasStyle = lipgloss.NewStyle().Padding(0, 1)
	statsStyle  = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(statsWidth)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(11)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).PaddingTop(1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(1)
	outputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).PaddingLeft(1)
)
