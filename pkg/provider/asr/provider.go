// Package asr defines the Provider interface for automatic speech recognition
// backends.
//
// An ASR provider wraps a batch transcription service (e.g., a local
// whisper-server or faster-whisper HTTP wrapper) and exposes a uniform
// single-shot interface: one recorded clip in, one transcript out. The gateway
// pipeline calls Transcribe exactly once per turn, so no streaming session
// handling is required at this layer.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned when the audio container cannot be decoded
// by the backend (the pipeline accepts audio/webm, audio/wav, and audio/ogg).
var ErrUnsupportedFormat = errors.New("asr: unsupported audio format")

// Result is the outcome of a single transcription call.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the BCP-47 language detected by the backend. When the
	// backend does not perform detection this echoes the caller's hint.
	Language string

	// Confidence is the backend's overall confidence (0.0–1.0). Zero when the
	// backend does not report one.
	Confidence float64
}

// Provider is the abstraction over any ASR backend.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation and deadlines promptly; the pipeline applies a per-call
// timeout around every invocation.
type Provider interface {
	// Transcribe converts a complete recorded clip into text. The audio slice
	// holds an entire container file (webm, wav, or ogg), not raw PCM.
	//
	// langHint is a BCP-47 language hint ("en", "zh-cn", …). An empty hint
	// lets the backend auto-detect, if supported.
	Transcribe(ctx context.Context, audio []byte, langHint string) (*Result, error)
}
