package models

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/internal/porttest"
	"github.com/allbin/go-serialhost/internal/tui/components"
	"github.com/allbin/go-serialhost/manager"
	tea "github.com/charmbracelet/bubbletea"
)

func TestRelayRoutesPortEvents(t *testing.T) {
	relay := NewRelay("test", "/dev/ttyUSB0")

	// Nothing is delivered before Attach.
	if err := relay.Emit(manager.ReadEvent("test", "/dev/ttyUSB0"), manager.ReadData{Data: []byte("x"), Size: 1}); err != nil {
		t.Fatalf("Emit() before Attach failed: %v", err)
	}

	var got []tea.Msg
	relay.Attach(func(msg tea.Msg) { got = append(got, msg) })

	relay.Emit(manager.ReadEvent("test", "/dev/ttyUSB0"), manager.ReadData{Data: []byte("hi"), Size: 2})
	relay.Emit(manager.ReadEvent("test", "/dev/ttyUSB1"), manager.ReadData{Data: []byte("other"), Size: 5})
	relay.Emit(manager.DisconnectEvent("test", "/dev/ttyUSB0"), "Serial port /dev/ttyUSB0 disconnected!")

	if len(got) != 2 {
		t.Fatalf("relayed %d messages, want 2: %#v", len(got), got)
	}
	data, ok := got[0].(components.DataReceivedMsg)
	if !ok || string(data.Data) != "hi" || data.IsTX {
		t.Errorf("first message = %#v, want RX data %q", got[0], "hi")
	}
	disc, ok := got[1].(DisconnectedMsg)
	if !ok || disc.Message != "Serial port /dev/ttyUSB0 disconnected!" {
		t.Errorf("second message = %#v, want DisconnectedMsg", got[1])
	}
}

func newTestModel(t *testing.T, interactive bool) (*SerialModel, *porttest.Device) {
	t.Helper()
	dev := porttest.NewDevice("COM1")
	open := func(name string, config serial.Config) (serial.Port, error) {
		if name != "COM1" {
			return nil, serial.ErrDeviceNotFound
		}
		return dev.Open(config), nil
	}
	mgr := manager.New(nil, manager.WithOpener(open))
	t.Cleanup(func() { mgr.CloseAll(context.Background()) })

	m := NewSerialModel(context.Background(), mgr, "COM1", Options{
		Interactive: interactive,
		Display:     components.DisplayMode{ShowASCII: true},
		LineEnding:  "\n",
		Config:      serial.DefaultConfig(),
		Listen:      manager.ListenOptions{PollInterval: 5 * time.Millisecond},
	})
	return m, dev
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestConnectOpensAndListens(t *testing.T) {
	m, _ := newTestModel(t, false)

	msg := m.connect()
	status, ok := msg.(ConnectionStatusMsg)
	if !ok || !status.Connected || status.Error != nil {
		t.Fatalf("connect() = %#v, want connected", msg)
	}
	m.Update(status)
	if !m.IsConnected() {
		t.Error("IsConnected() = false after successful connect")
	}

	listening, err := m.mgr.Listening(context.Background(), "COM1")
	if err != nil || !listening {
		t.Errorf("Listening() = %v, %v; want true", listening, err)
	}
}

func TestConnectFailure(t *testing.T) {
	m, _ := newTestModel(t, false)
	m.port = "COM9"

	status := m.connect().(ConnectionStatusMsg)
	if status.Connected || !errors.Is(status.Error, serial.ErrDeviceNotFound) {
		t.Fatalf("connect() = %#v, want ErrDeviceNotFound", status)
	}
	m.Update(status)
	if m.IsConnected() || m.Err() == nil {
		t.Error("model should record the failed open")
	}
	if lines := m.Terminal().Lines(); len(lines) != 1 || !strings.Contains(lines[0], "Failed to open COM9") {
		t.Errorf("Lines() = %q, want a failure notice", lines)
	}
}

func TestDataAndDisconnectMessages(t *testing.T) {
	m, _ := newTestModel(t, false)
	m.Update(ConnectionStatusMsg{Connected: true})

	m.Update(components.DataReceivedMsg{Timestamp: time.Now(), Data: []byte("hello")})
	m.Update(DisconnectedMsg{Message: "Serial port COM1 disconnected!"})

	if m.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
	lines := m.Terminal().Lines()
	if len(lines) != 2 || lines[0] != "ASCII: hello" || !strings.Contains(lines[1], "disconnected") {
		t.Errorf("Lines() = %q", lines)
	}
}

func TestInsertModeSend(t *testing.T) {
	m, dev := newTestModel(t, true)
	if status := m.connect().(ConnectionStatusMsg); !status.Connected {
		t.Fatalf("connect() failed: %v", status.Error)
	}

	m.Update(keyRunes("i"))
	if m.InputMode() != InputModeInsert {
		t.Fatalf("InputMode() = %v, want INSERT", m.InputMode())
	}
	for _, r := range "ping" {
		m.Update(keyRunes(string(r)))
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("Enter in insert mode returned no write command")
	}
	result, ok := cmd().(WriteResultMsg)
	if !ok || result.Err != nil || result.N != len("ping\n") {
		t.Fatalf("write command = %#v, want %d bytes written", result, len("ping\n"))
	}
	m.Update(result)

	if got := string(dev.Written()); got != "ping\n" {
		t.Errorf("device received %q, want %q", got, "ping\n")
	}
	if lines := m.Terminal().Lines(); len(lines) == 0 || lines[0] != "ASCII: ping." {
		t.Errorf("Lines() = %q, want the TX chunk first", lines)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.InputMode() != InputModeNormal {
		t.Errorf("InputMode() after esc = %v, want NORMAL", m.InputMode())
	}
}

func TestListenOnlyIgnoresInsert(t *testing.T) {
	m, _ := newTestModel(t, false)
	m.Update(keyRunes("i"))
	if m.InputMode() != InputModeNormal {
		t.Errorf("InputMode() = %v, want NORMAL without a send line", m.InputMode())
	}

	_, cmd := m.Update(keyRunes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
