// Package mock provides an in-memory [sse.Emitter] for tests.
package mock

import (
	"sync"
	"time"

	"github.com/mirrorcast/mirrorcast/internal/sse"
)

// Event is one recorded emission.
type Event struct {
	Kind    sse.Kind
	Payload sse.Payload
}

// Emitter records every emitted event and stamps payloads the way a real
// dispatcher would, so tests can assert on sequence numbers and timestamps.
type Emitter struct {
	mu     sync.Mutex
	start  time.Time
	seq    int64
	Events []Event

	// Err, if set, is returned by every Emit call.
	Err error
}

var _ sse.Emitter = (*Emitter)(nil)

// New returns an empty recording emitter.
func New() *Emitter {
	return &Emitter{start: time.Now()}
}

func (e *Emitter) Emit(kind sse.Kind, payload sse.Payload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	if e.start.IsZero() {
		e.start = time.Now()
	}
	ts := float64(e.start.UnixNano())/1e9 + time.Since(e.start).Seconds()
	sse.Stamp(payload, e.seq, ts)
	e.Events = append(e.Events, Event{Kind: kind, Payload: payload})
	e.seq++
	return nil
}

// Kinds returns the kinds of all recorded events in emission order.
func (e *Emitter) Kinds() []sse.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sse.Kind, len(e.Events))
	for i, ev := range e.Events {
		out[i] = ev.Kind
	}
	return out
}
