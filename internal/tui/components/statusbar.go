package components

import (
	"fmt"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/internal/tui/colors"
	"github.com/allbin/go-serialhost/internal/tui/styles"
	"github.com/allbin/go-serialhost/manager"
	"github.com/charmbracelet/lipgloss"
)

type StatusBar struct {
	portPath string
	status   styles.StatusType
	err      error
	width    int
	config   *serial.Config
	stats    manager.Stats
}

func NewStatusBar(portPath string) *StatusBar {
	return &StatusBar{
		portPath: portPath,
		status:   styles.StatusConnecting,
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

// SetConfig records the line settings shown on the right of the bar
func (sb *StatusBar) SetConfig(config serial.Config) {
	sb.config = &config
}

func (sb *StatusBar) SetStats(stats manager.Stats) {
	sb.stats = stats
}

func (sb *StatusBar) SetConnecting() {
	sb.status, sb.err = styles.StatusConnecting, nil
}

func (sb *StatusBar) SetConnected() {
	sb.status, sb.err = styles.StatusConnected, nil
}

// SetDisconnected marks the port gone. A non-nil err is shown as a failure.
func (sb *StatusBar) SetDisconnected(err error) {
	sb.status, sb.err = styles.StatusDisconnected, err
	if err != nil {
		sb.status = styles.StatusError
	}
}

func (sb *StatusBar) Status() styles.StatusType { return sb.status }

func (sb *StatusBar) Err() error { return sb.err }

func (sb *StatusBar) lineSettings() string {
	if sb.config == nil {
		return "⚡ serial"
	}
	return fmt.Sprintf("⚡ %s %s", sb.config, sb.config.FlowControl)
}

func (sb *StatusBar) counters() string {
	return fmt.Sprintf("RX %d TX %d", sb.stats.BytesRead, sb.stats.BytesWritten)
}

// View renders the bar. inputMode is NORMAL or INSERT, sendingMode is
// shown next to it in insert mode and scrollMode on the right.
func (sb *StatusBar) View(inputMode, sendingMode, scrollMode, timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	modeColor := colors.Blue
	if inputMode == "INSERT" {
		modeColor = colors.Green
	}
	mode := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(modeColor).
		Bold(true).
		Padding(0, 1).
		Render(inputMode)

	port := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.portPath)

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	left := []string{mode, port, styles.Indicator(sb.status)}
	if inputMode == "INSERT" && sendingMode != "" {
		left = append(left, lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	if sb.err != nil {
		left = append(left, lipgloss.NewStyle().
			Foreground(colors.Red).
			Padding(0, 1).
			Render(sb.err.Error()))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	muted := lipgloss.NewStyle().Foreground(colors.Subtext0).Padding(0, 1)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Foreground(colors.Teal).Padding(0, 1).Render(sb.counters()),
		divider,
		muted.Render(sb.lineSettings()),
		divider,
		muted.Render(scrollMode),
		divider,
		lipgloss.NewStyle().Foreground(colors.Subtext1).Padding(0, 1).Render(timestamp),
	)

	spacerWidth := width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
