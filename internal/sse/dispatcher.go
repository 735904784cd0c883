package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

var (
	// ErrStreamClosed is returned by Emit after Close.
	ErrStreamClosed = errors.New("sse: stream closed")

	// ErrStreamTerminated is returned by Emit after a terminal event has
	// been emitted.
	ErrStreamTerminated = errors.New("sse: stream already terminated")
)

// Emitter is the pipeline-facing side of a dispatcher.
//
// Implementations assign the sequence number and server timestamp; callers
// pass payloads with a zero [Envelope].
type Emitter interface {
	Emit(kind Kind, payload Payload) error
}

// Dispatcher writes events to a single HTTP response body in SSE wire
// format. It is safe for concurrent use; emission is serialised so that
// sequence numbers, timestamps and the byte stream can never interleave.
type Dispatcher struct {
	log    *slog.Logger
	turnID string

	mu         sync.Mutex
	w          io.Writer
	flusher    http.Flusher
	start      time.Time
	seq        int64
	closed     bool
	terminated bool
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithLogger sets the logger used for per-emit instrumentation.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// NewDispatcher wraps w for a single turn. If w implements [http.Flusher]
// every event is flushed to the client immediately after being written.
func NewDispatcher(w io.Writer, turnID string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:    slog.Default(),
		turnID: turnID,
		w:      w,
		start:  time.Now(),
	}
	if f, ok := w.(http.Flusher); ok {
		d.flusher = f
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ Emitter = (*Dispatcher)(nil)

// Emit stamps payload with the next sequence number and a monotonic
// timestamp, writes it as one SSE event and flushes. After a terminal
// event ([Kind.Terminal]) all further calls fail with
// [ErrStreamTerminated].
func (d *Dispatcher) Emit(kind Kind, payload Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrStreamClosed
	}
	if d.terminated {
		return ErrStreamTerminated
	}

	seq := d.seq
	// Wall-clock base plus a monotonic-clock offset: never goes backwards
	// even if the wall clock is stepped mid-turn.
	ts := float64(d.start.UnixNano())/1e9 + time.Since(d.start).Seconds()
	payload.stamp(seq, ts)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: marshal %s event: %w", kind, err)
	}
	n, err := fmt.Fprintf(d.w, "event: %s\ndata: %s\n\n", kind, data)
	if err != nil {
		d.closed = true
		return fmt.Errorf("sse: write %s event: %w", kind, err)
	}
	if d.flusher != nil {
		d.flusher.Flush()
	}

	d.seq++
	if kind.Terminal() {
		d.terminated = true
	}

	d.log.Debug("sse event emitted",
		"turn_id", d.turnID,
		"seq", seq,
		"event", string(kind),
		"bytes", n)
	return nil
}

// Seq returns the number of events emitted so far.
func (d *Dispatcher) Seq() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

// Terminated reports whether a terminal event has been emitted.
func (d *Dispatcher) Terminated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminated
}

// Close marks the stream unusable. It does not close the underlying writer;
// that belongs to the HTTP layer.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}
