// Package sse serialises pipeline events onto one HTTP response body as a
// server-sent event stream with strict per-turn ordering guarantees.
//
// Every event carries a dense, strictly monotonic sequence number and a
// monotonic server timestamp, both assigned atomically at emission time.
// The per-emit instrumentation log is what allows the system to prove
// retrospectively that backend ordering was correct when clients report
// out-of-order arrival.
package sse

// Kind is the closed set of event types a turn may emit.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindLLMResponse   Kind = "llm_response"
	KindVideoChunk    Kind = "video_chunk"
	KindComplete      Kind = "complete"
	KindError         Kind = "error"
)

// Terminal reports whether no further events may follow k within a turn.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError
}

// Envelope carries the fields common to every event payload. The dispatcher
// fills it during Emit; callers leave it zero.
type Envelope struct {
	// Seq is dense and strictly monotonic within the turn, starting at 0.
	Seq int64 `json:"seq"`

	// ServerTimestamp is a monotonic timestamp in seconds with fractional
	// part, taken at emission time.
	ServerTimestamp float64 `json:"server_timestamp"`
}

// stamp is called by the dispatcher under its emission lock.
func (e *Envelope) stamp(seq int64, ts float64) {
	e.Seq = seq
	e.ServerTimestamp = ts
}

// Payload is implemented by all event payload types via the embedded
// [Envelope].
type Payload interface {
	stamp(seq int64, ts float64)
}

// Stamp fills p's envelope. It exists for [Emitter] implementations outside
// this package; [Dispatcher] stamps internally.
func Stamp(p Payload, seq int64, ts float64) {
	p.stamp(seq, ts)
}

// TranscriptionEvent reports the ASR result for the user's clip.
type TranscriptionEvent struct {
	Envelope

	// Text is the transcript of the user's clip.
	Text string `json:"text"`

	// Language is the detected (or hinted) BCP-47 language.
	Language string `json:"language"`

	// Time is the ASR wall time in seconds.
	Time float64 `json:"time"`
}

// LLMResponseEvent reports the assistant's full response text.
type LLMResponseEvent struct {
	Envelope

	// Text is the assistant's response.
	Text string `json:"text"`

	// Fallback reports that the text is a canned response emitted because
	// the dialogue model failed.
	Fallback bool `json:"fallback,omitempty"`
}

// VideoChunkEvent announces one playable video artifact.
type VideoChunkEvent struct {
	Envelope

	// ChunkIndex is 0-based and strictly increasing within the turn.
	ChunkIndex int `json:"chunk_index"`

	// VideoURL is the relative URL of the artifact.
	VideoURL string `json:"video_url"`

	// TextChunk is the utterance fragment spoken in this clip.
	TextChunk string `json:"text_chunk"`

	// ChunkTime is the generation wall time for this chunk, in seconds.
	ChunkTime float64 `json:"chunk_time"`

	// AudioDurationS and VideoDurationS are the artifact durations.
	AudioDurationS float64 `json:"audio_duration_s"`
	VideoDurationS float64 `json:"video_duration_s"`
}

// CompleteEvent terminates a successful turn.
type CompleteEvent struct {
	Envelope

	// TotalTime is the whole-turn wall time in seconds.
	TotalTime float64 `json:"total_time"`

	// ChunkCount is the number of video_chunk events emitted.
	ChunkCount int `json:"chunk_count"`
}

// ErrorEvent terminates a failed turn.
type ErrorEvent struct {
	Envelope

	// Error is a human-readable description.
	Error string `json:"error"`

	// Kind is the machine-readable error class.
	Kind string `json:"kind"`
}
