// Package lipsync defines the Provider interface for talking-head video
// synthesis backends.
//
// A lip-sync provider animates a still portrait so its mouth follows a given
// speech recording, producing a short fast-start MP4 clip. The inference
// engines behind this interface (Ditto, LivePortrait, …) are GPU-bound and
// effectively single-resource: providers serialise concurrent Animate calls
// internally, so callers may invoke them from concurrent turns without
// additional coordination.
package lipsync

import "context"

// Options carries per-call rendering parameters.
type Options struct {
	// FPS is the output frame rate. Zero means the backend default.
	FPS int

	// Resolution is the output square edge length in pixels (e.g., 320).
	// Zero means the backend default.
	Resolution int

	// DiffusionSteps trades quality for speed in diffusion-based backends.
	// Zero means the backend default.
	DiffusionSteps int
}

// Video is the result of one animation call.
type Video struct {
	// Data holds a complete MP4 file with the moov atom before mdat
	// (fast start), so partial downloads are immediately playable.
	Data []byte

	// DurationS is the clip duration in seconds. It matches the driving
	// audio's duration within 50 ms.
	DurationS float64

	// FrameCount is the number of video frames rendered.
	FrameCount int
}

// Provider is the abstraction over any lip-sync backend.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation and deadlines promptly; the pipeline applies a per-chunk
// timeout around every invocation.
type Provider interface {
	// Animate renders a talking-head clip of the portrait speaking the given
	// audio. audio holds a complete WAV file; portrait names a server-side
	// reference image.
	Animate(ctx context.Context, audio []byte, portrait string, opts Options) (*Video, error)
}
