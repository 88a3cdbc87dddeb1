package hostcmd

import (
	"io"
	"strings"
	"sync"

	"github.com/allbin/go-serialhost/manager"
	"github.com/goccy/go-json"
)

// Result is the reply to one command line
type Result struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event is one listener event as written by Output
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	// Text is the payload decoded as UTF-8, for read events
	Text string `json:"text,omitempty"`
}

// Output writes results and events as JSON lines. It implements
// manager.EventSink and is safe for concurrent use.
type Output struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ manager.EventSink = (*Output)(nil)

func NewOutput(w io.Writer) *Output {
	return &Output{enc: json.NewEncoder(w)}
}

func (o *Output) Emit(event string, payload any) error {
	ev := Event{Event: event, Payload: payload}
	if data, ok := payload.(manager.ReadData); ok {
		ev.Text = strings.ToValidUTF8(string(data.Data), "�")
	}
	return o.write(ev)
}

func (o *Output) Result(r Result) error {
	return o.write(r)
}

func (o *Output) write(v any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enc.Encode(v)
}
