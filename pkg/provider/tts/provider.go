// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service capable of zero-shot voice
// cloning: each Synthesize call carries a reference to a short speaker sample
// and returns one complete utterance. The gateway synthesises one utterance
// fragment per video chunk, so the contract is batch rather than streaming —
// pipelining happens at the chunk level, not inside a single synthesis call.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceRef identifies the cloning target for a synthesis call.
type VoiceRef struct {
	// SpeakerSample is the server-side name or path of a short reference
	// recording (WAV) of the voice to clone.
	SpeakerSample string
}

// Audio is the result of one synthesis call.
type Audio struct {
	// Data holds a complete WAV file.
	Data []byte

	// SampleRate is the sample rate of the synthesised audio in Hz.
	SampleRate int

	// DurationS is the audio duration in seconds.
	DurationS float64
}

// Provider is the abstraction over any voice-cloning TTS backend.
//
// Implementations must honour ctx cancellation and deadlines promptly; the
// pipeline applies a per-chunk timeout around every invocation.
type Provider interface {
	// Synthesize renders text in the voice described by voice. language is a
	// BCP-47 code from the provider's supported set (e.g., "en", "zh-cn", "es").
	Synthesize(ctx context.Context, text string, voice VoiceRef, language string) (*Audio, error)
}
