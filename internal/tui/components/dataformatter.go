package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-serialhost/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

// TxStatus tracks a written chunk through the manager
type TxStatus int

const (
	TxPending TxStatus = iota
	TxWritten
	TxFailed
)

// DataReceivedMsg is one chunk of traffic shown in the terminal. RX chunks
// come from listener read events, TX chunks from the input line.
type DataReceivedMsg struct {
	Timestamp time.Time
	Data      []byte
	IsTX      bool
	Status    TxStatus
}

type DisplayMode struct {
	ShowHex        bool
	ShowASCII      bool
	ShowTimestamps bool
	ShowIndicators bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(mode DisplayMode) *DataFormatter {
	return &DataFormatter{mode: mode}
}

func (df *DataFormatter) SetDisplayMode(mode DisplayMode) {
	df.mode = mode
}

func (df *DataFormatter) DisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) indicator(msg DataReceivedMsg) string {
	if !msg.IsTX {
		return lipgloss.NewStyle().Foreground(colors.Sky).Bold(true).Render("↙ RX")
	}

	txColor, text := colors.Peach, "TX"
	switch msg.Status {
	case TxPending:
		txColor, text = colors.Yellow, "TX ○"
	case TxWritten:
		txColor, text = colors.Green, "TX ✓"
	case TxFailed:
		txColor, text = colors.Red, "TX ✗"
	}
	return lipgloss.NewStyle().Foreground(txColor).Bold(true).Render("↗ " + text)
}

// Printable replaces every byte outside printable ASCII with a dot
func Printable(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func (df *DataFormatter) FormatMessage(msg DataReceivedMsg) string {
	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+Printable(msg.Data))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}
	line := strings.Join(parts, "  ")

	var prefix []string
	if df.mode.ShowTimestamps {
		prefix = append(prefix, lipgloss.NewStyle().
			Foreground(colors.Subtext0).
			Render("["+msg.Timestamp.Format("15:04:05.000")+"]"))
	}
	if df.mode.ShowIndicators {
		prefix = append(prefix, df.indicator(msg)+":")
	}
	if len(prefix) == 0 {
		return line
	}
	return strings.Join(prefix, " ") + " " + line
}

func (df *DataFormatter) FormatMessages(messages []DataReceivedMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

func (df *DataFormatter) ToggleTimestamps() {
	df.mode.ShowTimestamps = !df.mode.ShowTimestamps
}

func (df *DataFormatter) ToggleIndicators() {
	df.mode.ShowIndicators = !df.mode.ShowIndicators
}
