package components

import (
	"strings"

	"github.com/allbin/go-serialhost/internal/hostcmd"
	"github.com/allbin/go-serialhost/internal/tui/colors"
	"github.com/allbin/go-serialhost/internal/tui/styles"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type SendingMode int

const (
	SendingModeASCII SendingMode = iota
	SendingModeHex
)

func (s SendingMode) String() string {
	if s == SendingModeHex {
		return "HEX"
	}
	return "ASCII"
}

const (
	asciiPlaceholder = "Type message and press Enter to send..."
	hexPlaceholder   = "Enter hex (e.g. 48656C6C6F or 48 65 6C 6C 6F)..."
	historyLimit     = 100
)

// Input is the send line of the interactive terminal, with a shell-like
// history.
type Input struct {
	textInput    textinput.Model
	sendingMode  SendingMode
	lineEnding   string
	history      []string
	historyIndex int
	draft        string
	width        int
}

// NewInput returns an ASCII-mode input. lineEnding is appended to ASCII
// payloads.
func NewInput(lineEnding string) *Input {
	ti := textinput.New()
	ti.Placeholder = asciiPlaceholder
	ti.CharLimit = 512
	ti.Prompt = ""

	return &Input{
		textInput:    ti,
		lineEnding:   lineEnding,
		historyIndex: -1,
	}
}

func (i *Input) SetWidth(width int) {
	i.width = width
	// border(2) + padding(2) + prompt(1) + space(1)
	i.textInput.Width = max(width-6, 20)
}

func (i *Input) Focus() tea.Cmd {
	return i.textInput.Focus()
}

func (i *Input) Blur() {
	i.textInput.Blur()
}

func (i *Input) Value() string {
	return i.textInput.Value()
}

func (i *Input) SetValue(value string) {
	i.textInput.SetValue(value)
}

func (i *Input) Reset() {
	i.textInput.Reset()
}

func (i *Input) ToggleSendingMode() {
	if i.sendingMode == SendingModeASCII {
		i.sendingMode = SendingModeHex
		i.textInput.Placeholder = hexPlaceholder
		return
	}
	i.sendingMode = SendingModeASCII
	i.textInput.Placeholder = asciiPlaceholder
}

func (i *Input) SendingMode() SendingMode {
	return i.sendingMode
}

// Payload converts the current value to the bytes to write
func (i *Input) Payload() ([]byte, error) {
	value := i.textInput.Value()
	if i.sendingMode == SendingModeHex {
		return hostcmd.ParseHex(value)
	}
	return []byte(value + i.lineEnding), nil
}

func (i *Input) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return cmd
}

func (i *Input) View(insert bool) string {
	promptSymbol, promptColor := ">", colors.Green
	if i.sendingMode == SendingModeHex {
		promptSymbol, promptColor = "#", colors.Yellow
	}
	prompt := lipgloss.NewStyle().Foreground(promptColor).Bold(true).Render(promptSymbol)

	content := i.textInput.View()
	if !insert {
		content = lipgloss.NewStyle().
			Foreground(colors.Overlay0).
			Render("Press 'i' to enter insert mode")
	}

	style := styles.InputStyle.
		Width(max(i.width-4, 10)).
		AlignHorizontal(lipgloss.Left)
	if insert {
		style = style.BorderForeground(colors.Green)
	}
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", content))
}

// AddToHistory records command unless it is blank or repeats the last entry
func (i *Input) AddToHistory(command string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	if n := len(i.history); n == 0 || i.history[n-1] != command {
		i.history = append(i.history, command)
		if len(i.history) > historyLimit {
			i.history = i.history[1:]
		}
	}
	i.historyIndex = -1
	i.draft = ""
}

func (i *Input) History() []string {
	return append([]string(nil), i.history...)
}

func (i *Input) HistoryUp() {
	if len(i.history) == 0 {
		return
	}
	switch {
	case i.historyIndex == -1:
		i.draft = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	case i.historyIndex > 0:
		i.historyIndex--
	}
	i.textInput.SetValue(i.history[i.historyIndex])
}

func (i *Input) HistoryDown() {
	if i.historyIndex == -1 {
		return
	}
	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
		return
	}
	i.historyIndex = -1
	i.textInput.SetValue(i.draft)
	i.draft = ""
}
