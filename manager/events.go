package manager

import (
	"fmt"
	"strings"
)

// DefaultEventPrefix is prepended to every event name
const DefaultEventPrefix = "plugin-serialplugin"

// EventSink receives listener events. Emit is called from listener
// goroutines and must be safe for concurrent use.
type EventSink interface {
	Emit(event string, payload any) error
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(event string, payload any) error

func (f SinkFunc) Emit(event string, payload any) error { return f(event, payload) }

type discardSink struct{}

func (discardSink) Emit(string, any) error { return nil }

// ReadData is the payload of a read event
type ReadData struct {
	Data []byte `json:"data"`
	Size int    `json:"size"`
}

var idReplacer = strings.NewReplacer("/", "-", `\`, "-", ".", "-")

// SanitizeID makes a port identifier safe for use in an event name
func SanitizeID(id string) string {
	return idReplacer.Replace(id)
}

// ReadEvent returns the name of the data event for a port
func ReadEvent(prefix, id string) string {
	return prefix + "-read-" + SanitizeID(id)
}

// DisconnectEvent returns the name of the disconnect event for a port
func DisconnectEvent(prefix, id string) string {
	return prefix + "-disconnected-" + SanitizeID(id)
}

func disconnectMessage(id string) string {
	return fmt.Sprintf("Serial port %s disconnected!", id)
}
