package styles

import (
	"github.com/allbin/go-serialhost/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	// Content area
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(1, 2).
			Margin(1, 0)

	// Notices written into the data view (disconnects, write failures)
	NoticeStyle = lipgloss.NewStyle().
			Foreground(colors.Yellow).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)

	// Plain command output
	InfoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Green)
)

type StatusType int

const (
	StatusConnecting StatusType = iota
	StatusConnected
	StatusDisconnected
	StatusError
)

// Indicator returns the one-character connection marker for status
func Indicator(status StatusType) string {
	switch status {
	case StatusConnected:
		return lipgloss.NewStyle().Foreground(colors.Green).Render("●")
	case StatusConnecting:
		return lipgloss.NewStyle().Foreground(colors.Yellow).Render("○")
	case StatusError:
		return lipgloss.NewStyle().Foreground(colors.Red).Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(colors.Red).Render("○")
	}
}
