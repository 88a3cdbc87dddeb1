package components

import (
	"strings"

	"github.com/allbin/go-serialhost/internal/tui/styles"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultScrollback is the number of entries a Terminal keeps
const DefaultScrollback = 5000

type entry struct {
	msg    DataReceivedMsg
	notice string
}

// Terminal is a scrolling view of port traffic. It keeps the raw chunks so
// a display mode change re-renders the whole history.
type Terminal struct {
	viewport   viewport.Model
	formatter  *DataFormatter
	entries    []entry
	lines      []string
	scrollback int
	follow     bool
}

func NewTerminal(width, height int, mode DisplayMode) *Terminal {
	return &Terminal{
		viewport:   viewport.New(width, height),
		formatter:  NewDataFormatter(mode),
		scrollback: DefaultScrollback,
		follow:     true,
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
}

func (t *Terminal) Width() int { return t.viewport.Width }

func (t *Terminal) SetScrollback(n int) {
	if n > 0 {
		t.scrollback = n
		t.trim()
	}
}

func (t *Terminal) AddMessage(msg DataReceivedMsg) {
	t.add(entry{msg: msg})
}

// AddNotice appends a styled line that is not port data
func (t *Terminal) AddNotice(text string) {
	t.add(entry{notice: text})
}

// UpdateLast replaces the most recent TX entry's status
func (t *Terminal) UpdateLast(status TxStatus) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].notice == "" && t.entries[i].msg.IsTX {
			t.entries[i].msg.Status = status
			t.lines[i] = t.render(t.entries[i])
			t.sync()
			return
		}
	}
}

func (t *Terminal) add(e entry) {
	t.entries = append(t.entries, e)
	t.lines = append(t.lines, t.render(e))
	t.trim()
	t.sync()
}

func (t *Terminal) trim() {
	if over := len(t.entries) - t.scrollback; over > 0 {
		t.entries = append(t.entries[:0:0], t.entries[over:]...)
		t.lines = append(t.lines[:0:0], t.lines[over:]...)
	}
}

func (t *Terminal) render(e entry) string {
	if e.notice != "" {
		return styles.NoticeStyle.Render(e.notice)
	}
	return t.formatter.FormatMessage(e.msg)
}

func (t *Terminal) refresh() {
	for i, e := range t.entries {
		t.lines[i] = t.render(e)
	}
	t.sync()
}

func (t *Terminal) sync() {
	t.viewport.SetContent(strings.Join(t.lines, "\n"))
	if t.follow {
		t.viewport.GotoBottom()
	}
}

// Lines returns the rendered history
func (t *Terminal) Lines() []string {
	return append([]string(nil), t.lines...)
}

func (t *Terminal) Len() int { return len(t.entries) }

func (t *Terminal) Clear() {
	t.entries = nil
	t.lines = nil
	t.viewport.SetContent("")
}

// Following reports whether new data scrolls the view to the bottom
func (t *Terminal) Following() bool { return t.follow }

func (t *Terminal) ScrollUp(n int) {
	t.follow = false
	t.viewport.LineUp(n)
}

func (t *Terminal) ScrollDown(n int) {
	t.viewport.LineDown(n)
	t.follow = t.viewport.AtBottom()
}

func (t *Terminal) GotoTop() {
	t.follow = false
	t.viewport.GotoTop()
}

func (t *Terminal) GotoBottom() {
	t.follow = true
	t.viewport.GotoBottom()
}

func (t *Terminal) DisplayMode() DisplayMode {
	return t.formatter.DisplayMode()
}

func (t *Terminal) ToggleHex() {
	t.formatter.ToggleHex()
	t.refresh()
}

func (t *Terminal) ToggleASCII() {
	t.formatter.ToggleASCII()
	t.refresh()
}

func (t *Terminal) ToggleTimestamps() {
	t.formatter.ToggleTimestamps()
	t.refresh()
}

func (t *Terminal) ToggleIndicators() {
	t.formatter.ToggleIndicators()
	t.refresh()
}

func (t *Terminal) Update(msg tea.Msg) tea.Cmd {
	// Only size changes go to the viewport; its default key map would
	// shadow ours.
	if _, ok := msg.(tea.WindowSizeMsg); !ok {
		return nil
	}
	var cmd tea.Cmd
	t.viewport, cmd = t.viewport.Update(msg)
	return cmd
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
