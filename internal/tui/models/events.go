package models

import (
	"sync"
	"time"

	"github.com/allbin/go-serialhost/internal/tui/components"
	"github.com/allbin/go-serialhost/manager"
	tea "github.com/charmbracelet/bubbletea"
)

// DisconnectedMsg reports that the port's listener saw the device go away
type DisconnectedMsg struct {
	Message string
}

// Relay turns listener events for one port into Bubble Tea messages. Events
// arriving before Attach, or for other ports, are dropped.
type Relay struct {
	readEvent       string
	disconnectEvent string

	mu   sync.RWMutex
	send func(tea.Msg)
}

var _ manager.EventSink = (*Relay)(nil)

func NewRelay(prefix, port string) *Relay {
	return &Relay{
		readEvent:       manager.ReadEvent(prefix, port),
		disconnectEvent: manager.DisconnectEvent(prefix, port),
	}
}

// Attach starts delivery, usually with tea.Program.Send
func (r *Relay) Attach(send func(tea.Msg)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.send = send
}

func (r *Relay) Emit(event string, payload any) error {
	r.mu.RLock()
	send := r.send
	r.mu.RUnlock()
	if send == nil {
		return nil
	}

	switch event {
	case r.readEvent:
		if data, ok := payload.(manager.ReadData); ok {
			send(components.DataReceivedMsg{Timestamp: time.Now(), Data: data.Data})
		}
	case r.disconnectEvent:
		msg, _ := payload.(string)
		send(DisconnectedMsg{Message: msg})
	}
	return nil
}
