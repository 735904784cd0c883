package sse_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mirrorcast/mirrorcast/internal/sse"
)

// flushRecorder counts Flush calls so tests can verify per-event flushing.
type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

type wireEvent struct {
	kind string
	data map[string]any
}

// parseStream splits an SSE byte stream into decoded events.
func parseStream(t *testing.T, raw string) []wireEvent {
	t.Helper()
	var out []wireEvent
	for _, block := range strings.Split(strings.TrimSuffix(raw, "\n\n"), "\n\n") {
		lines := strings.Split(block, "\n")
		if len(lines) != 2 {
			t.Fatalf("malformed event block %q", block)
		}
		ev := wireEvent{kind: strings.TrimPrefix(lines[0], "event: ")}
		payload := strings.TrimPrefix(lines[1], "data: ")
		if err := json.Unmarshal([]byte(payload), &ev.data); err != nil {
			t.Fatalf("decode %q: %v", payload, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestEmit_WireFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	d := sse.NewDispatcher(&buf, "turn-1")

	if err := d.Emit(sse.KindTranscription, &sse.TranscriptionEvent{Text: "hello", Language: "en", Time: 0.2}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := d.Emit(sse.KindComplete, &sse.CompleteEvent{TotalTime: 1.5, ChunkCount: 0}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	events := parseStream(t, buf.String())
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].kind != "transcription" || events[1].kind != "complete" {
		t.Errorf("kinds = %s, %s", events[0].kind, events[1].kind)
	}
	if got := events[0].data["text"]; got != "hello" {
		t.Errorf("text = %v, want hello", got)
	}
	if got := events[1].data["chunk_count"]; got != float64(0) {
		t.Errorf("chunk_count = %v, want 0", got)
	}
}

func TestEmit_DenseMonotonicSeq(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	d := sse.NewDispatcher(&buf, "turn-1")

	for i := 0; i < 5; i++ {
		if err := d.Emit(sse.KindVideoChunk, &sse.VideoChunkEvent{ChunkIndex: i}); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}

	events := parseStream(t, buf.String())
	lastTS := -1.0
	for i, ev := range events {
		if got := ev.data["seq"]; got != float64(i) {
			t.Errorf("event %d: seq = %v, want %d", i, got, i)
		}
		ts, ok := ev.data["server_timestamp"].(float64)
		if !ok {
			t.Fatalf("event %d: server_timestamp missing", i)
		}
		if ts < lastTS {
			t.Errorf("event %d: timestamp %v went backwards from %v", i, ts, lastTS)
		}
		lastTS = ts
	}
}

func TestEmit_TerminalStopsStream(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	d := sse.NewDispatcher(&buf, "turn-1")

	if err := d.Emit(sse.KindError, &sse.ErrorEvent{Error: "boom", Kind: "internal"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	err := d.Emit(sse.KindComplete, &sse.CompleteEvent{})
	if !errors.Is(err, sse.ErrStreamTerminated) {
		t.Fatalf("Emit after terminal = %v, want ErrStreamTerminated", err)
	}
	if !d.Terminated() {
		t.Error("Terminated() = false after terminal event")
	}
}

func TestEmit_AfterClose(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	d := sse.NewDispatcher(&buf, "turn-1")
	d.Close()

	err := d.Emit(sse.KindTranscription, &sse.TranscriptionEvent{Text: "x"})
	if !errors.Is(err, sse.ErrStreamClosed) {
		t.Fatalf("Emit after Close = %v, want ErrStreamClosed", err)
	}
}

func TestEmit_FlushPerEvent(t *testing.T) {
	t.Parallel()
	rec := &flushRecorder{}
	d := sse.NewDispatcher(rec, "turn-1")

	for i := 0; i < 3; i++ {
		if err := d.Emit(sse.KindVideoChunk, &sse.VideoChunkEvent{ChunkIndex: i}); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}
	if rec.flushes != 3 {
		t.Errorf("flushes = %d, want 3", rec.flushes)
	}
}
