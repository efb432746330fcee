// Package ui renders pgclient/pgserver/pgproxy CLI output: status lines,
// key-value summaries, and result-set tables. Styles here are scoped to
// what those three commands actually print — a connection's wire
// protocol outcome (success/warning/error/info) and a query result's
// rows and columns — not a general-purpose style kit.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Brand colors
var (
	ColorPrimary = lipgloss.Color("#0EA5E9") // Sky blue
	ColorSuccess = lipgloss.Color("#10B981") // Emerald
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorMuted   = lipgloss.Color("#64748B") // Slate
)

// Semantic styles
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		MarginBottom(1)

	Success = lipgloss.NewStyle().
		Foreground(ColorSuccess)

	Warning = lipgloss.NewStyle().
		Foreground(ColorWarning)

	Error = lipgloss.NewStyle().
		Foreground(ColorError)

	Info = lipgloss.NewStyle().
		Foreground(ColorPrimary)

	Muted = lipgloss.NewStyle().
		Foreground(ColorMuted)

	// NullStyle renders a DataRow field that carried SQL NULL (a nil
	// *string, not an empty string) visually distinct from an ordinary
	// empty value, the way psql renders "(null)" in a muted color.
	NullStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true)
)

// Component styles
var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(1, 2)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorMuted)
)

// Icons (using unicode)
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
)
