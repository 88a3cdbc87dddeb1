// Package models holds the Bubble Tea model shared by the listen and
// connect terminals. All port access goes through a manager.Manager.
package models

import (
	"context"
	"fmt"
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/internal/tui/components"
	"github.com/allbin/go-serialhost/internal/tui/keys"
	"github.com/allbin/go-serialhost/internal/tui/styles"
	"github.com/allbin/go-serialhost/manager"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// InputMode is the vim-like mode of the interactive terminal
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	if m == InputModeInsert {
		return "INSERT"
	}
	return "NORMAL"
}

// ConnectionStatusMsg is the outcome of opening the port and starting its
// listener
type ConnectionStatusMsg struct {
	Connected bool
	Error     error
}

// StatsMsg carries a periodic manager.Stats snapshot
type StatsMsg struct {
	Stats manager.Stats
	Err   error
}

// WriteResultMsg completes a send started from the input line
type WriteResultMsg struct {
	N   int
	Err error
}

type Options struct {
	// Interactive adds the send line
	Interactive bool
	Display     components.DisplayMode
	// LineEnding is appended to ASCII sends
	LineEnding    string
	Config        serial.Config
	Listen        manager.ListenOptions
	StatsInterval time.Duration
	Scrollback    int
}

const defaultStatsInterval = time.Second

type SerialModel struct {
	ctx  context.Context
	mgr  *manager.Manager
	port string
	opts Options

	connected bool
	ready     bool
	err       error
	inputMode InputMode

	terminal  *components.Terminal
	statusBar *components.StatusBar
	input     *components.Input
	help      help.Model
	keys      keys.ConnectKeys
	now       func() time.Time
}

// NewSerialModel returns a model that opens port through mgr when the
// program starts. ctx bounds every manager call the model makes.
func NewSerialModel(ctx context.Context, mgr *manager.Manager, port string, opts Options) *SerialModel {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = defaultStatsInterval
	}

	m := &SerialModel{
		ctx:       ctx,
		mgr:       mgr,
		port:      port,
		opts:      opts,
		terminal:  components.NewTerminal(80, 20, opts.Display),
		statusBar: components.NewStatusBar(port),
		help:      help.New(),
		keys:      keys.NewConnectKeys(),
		now:       time.Now,
	}
	m.terminal.SetScrollback(opts.Scrollback)
	m.statusBar.SetConfig(opts.Config)
	if opts.Interactive {
		m.input = components.NewInput(opts.LineEnding)
	}
	return m
}

func (m *SerialModel) Port() string { return m.port }

func (m *SerialModel) IsConnected() bool { return m.connected }

func (m *SerialModel) Err() error { return m.err }

func (m *SerialModel) InputMode() InputMode { return m.inputMode }

func (m *SerialModel) Terminal() *components.Terminal { return m.terminal }

func (m *SerialModel) Init() tea.Cmd {
	return tea.Batch(m.connect, m.tick())
}

func (m *SerialModel) connect() tea.Msg {
	if err := m.mgr.Open(m.ctx, m.port, serial.WithConfig(m.opts.Config)); err != nil {
		return ConnectionStatusMsg{Error: err}
	}
	if err := m.mgr.StartListening(m.ctx, m.port, m.opts.Listen); err != nil {
		return ConnectionStatusMsg{Error: err}
	}
	return ConnectionStatusMsg{Connected: true}
}

func (m *SerialModel) tick() tea.Cmd {
	return tea.Tick(m.opts.StatsInterval, func(time.Time) tea.Msg {
		stats, err := m.mgr.Stats(m.ctx, m.port)
		return StatsMsg{Stats: stats, Err: err}
	})
}

func (m *SerialModel) write(data []byte) tea.Cmd {
	return func() tea.Msg {
		n, err := m.mgr.Write(m.ctx, m.port, data)
		return WriteResultMsg{N: n, Err: err}
	}
}

func (m *SerialModel) resize(width, height int) {
	// status bar, border line and the input box
	reserved := 2
	if m.input != nil {
		reserved += 3
		m.input.SetWidth(width)
	}
	m.terminal.SetSize(width, max(height-reserved, 1))
	m.statusBar.SetWidth(width)
	m.ready = true
}

func (m *SerialModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, m.terminal.Update(msg)

	case ConnectionStatusMsg:
		m.connected = msg.Connected
		m.err = msg.Error
		if msg.Connected {
			m.statusBar.SetConnected()
		} else {
			m.statusBar.SetDisconnected(msg.Error)
			m.terminal.AddNotice(fmt.Sprintf("Failed to open %s: %v", m.port, msg.Error))
		}

	case components.DataReceivedMsg:
		m.terminal.AddMessage(msg)

	case DisconnectedMsg:
		m.connected = false
		m.statusBar.SetDisconnected(nil)
		m.terminal.AddNotice(msg.Message)

	case WriteResultMsg:
		if msg.Err != nil {
			m.terminal.UpdateLast(components.TxFailed)
			m.terminal.AddNotice(fmt.Sprintf("Write failed: %v", msg.Err))
		} else {
			m.terminal.UpdateLast(components.TxWritten)
		}

	case StatsMsg:
		if msg.Err == nil {
			m.statusBar.SetStats(msg.Stats)
		}
		return m, m.tick()

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	if m.input != nil && m.inputMode == InputModeInsert {
		return m, m.input.Update(msg)
	}
	return m, nil
}

func (m *SerialModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return tea.Quit
	}
	if m.inputMode == InputModeInsert {
		return m.handleInsertKey(msg)
	}

	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		return tea.Quit
	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
	case m.input != nil && key.Matches(msg, k.InsertMode):
		m.inputMode = InputModeInsert
		return m.input.Focus()
	case key.Matches(msg, k.Clear):
		m.terminal.Clear()
	case key.Matches(msg, k.ToggleHex):
		m.terminal.ToggleHex()
	case key.Matches(msg, k.ToggleASCII):
		m.terminal.ToggleASCII()
	case key.Matches(msg, k.ToggleTimestamps):
		m.terminal.ToggleTimestamps()
	case key.Matches(msg, k.ToggleIndicators):
		m.terminal.ToggleIndicators()
	case key.Matches(msg, k.Up):
		m.terminal.ScrollUp(1)
	case key.Matches(msg, k.Down):
		m.terminal.ScrollDown(1)
	case key.Matches(msg, k.GotoTop):
		m.terminal.GotoTop()
	case key.Matches(msg, k.GotoBottom):
		m.terminal.GotoBottom()
	}
	return nil
}

func (m *SerialModel) handleInsertKey(msg tea.KeyMsg) tea.Cmd {
	k := m.keys
	switch {
	case key.Matches(msg, k.Escape):
		m.inputMode = InputModeNormal
		m.input.Blur()
		return nil
	case key.Matches(msg, k.ToggleSendMode):
		m.input.ToggleSendingMode()
		return nil
	case key.Matches(msg, k.HistoryUp):
		m.input.HistoryUp()
		return nil
	case key.Matches(msg, k.HistoryDown):
		m.input.HistoryDown()
		return nil
	case key.Matches(msg, k.Send):
		return m.send()
	}
	return m.input.Update(msg)
}

func (m *SerialModel) send() tea.Cmd {
	value := m.input.Value()
	if value == "" {
		return nil
	}
	data, err := m.input.Payload()
	if err != nil {
		m.terminal.AddNotice(fmt.Sprintf("Invalid input: %v", err))
		return nil
	}

	m.input.AddToHistory(value)
	m.input.Reset()
	m.terminal.AddMessage(components.DataReceivedMsg{
		Timestamp: m.now(),
		Data:      data,
		IsTX:      true,
		Status:    components.TxPending,
	})
	return m.write(data)
}

func (m *SerialModel) View() string {
	content := "Initializing..."
	if m.ready {
		content = m.terminal.View()
	}

	scroll := "SCROLL"
	if m.terminal.Following() {
		scroll = "FOLLOW"
	}
	sendingMode := ""
	if m.input != nil {
		sendingMode = m.input.SendingMode().String()
	}

	sections := []string{styles.ContentBorderStyle.Render(content)}
	if m.input != nil {
		sections = append(sections, m.input.View(m.inputMode == InputModeInsert))
	}
	if m.help.ShowAll {
		var helpView string
		if m.input != nil {
			helpView = m.help.View(m.keys)
		} else {
			helpView = m.help.View(m.keys.TerminalKeys)
		}
		sections = append(sections, styles.HelpStyle.Render(helpView))
	}
	sections = append(sections, m.statusBar.View(m.inputMode.String(), sendingMode, scroll, m.now().Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
