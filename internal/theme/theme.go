// Package theme holds the terminal styles of the cadence CLI.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/task-cadence/internal/bucket"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for table headers.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Padding(0, 1)

// CellStyle pads table cells.
var CellStyle = lipgloss.NewStyle().Padding(0, 1)

// BorderStyle colours table borders.
var BorderStyle = lipgloss.NewStyle().Foreground(ColorBorder)

// DoneStyle dims completed tasks.
var DoneStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Strikethrough(true)

// HelpStyle is used for hints and secondary text such as ids and keys.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// WarnStyle flags blocked or failed operations.
var WarnStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)

// BucketStyle returns the heading style of a display bucket.
func BucketStyle(b bucket.Bucket) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Underline(true)

	switch b {
	case bucket.Daily:
		return base.Foreground(ColorBlue)
	case bucket.Weekly:
		return base.Foreground(ColorGreen)
	case bucket.Monthly:
		return base.Foreground(ColorYellow)
	case bucket.Yearly:
		return base.Foreground(ColorOrange)
	case bucket.Custom:
		return base.Foreground(ColorMagenta)
	case bucket.Missed:
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorWhite)
	}
}
