package manager

import (
	"time"

	"go.uber.org/atomic"
)

// Stats is a point-in-time view of one managed port
type Stats struct {
	Port           string
	OpenedAt       time.Time
	Listening      bool
	BytesRead      uint64
	BytesWritten   uint64
	EventsEmitted  uint64
	EmitErrors     uint64
	ListenerStarts uint64
	Disconnects    uint64
}

// portStats is shared by a record and its listeners, which update it
// without taking the registry lock
type portStats struct {
	openedAt time.Time

	bytesRead      atomic.Uint64
	bytesWritten   atomic.Uint64
	eventsEmitted  atomic.Uint64
	emitErrors     atomic.Uint64
	listenerStarts atomic.Uint64
	disconnects    atomic.Uint64
}

func newPortStats() *portStats {
	return &portStats{openedAt: time.Now()}
}

func (s *portStats) snapshot(id string, listening bool) Stats {
	return Stats{
		Port:           id,
		OpenedAt:       s.openedAt,
		Listening:      listening,
		BytesRead:      s.bytesRead.Load(),
		BytesWritten:   s.bytesWritten.Load(),
		EventsEmitted:  s.eventsEmitted.Load(),
		EmitErrors:     s.emitErrors.Load(),
		ListenerStarts: s.listenerStarts.Load(),
		Disconnects:    s.disconnects.Load(),
	}
}
