// Package mock provides a test double for the lipsync.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/mirrorcast/mirrorcast/pkg/provider/lipsync"
)

// AnimateCall records a single invocation of Animate.
type AnimateCall struct {
	// Audio is the driving audio passed to Animate.
	Audio []byte
	// Portrait is the reference image name passed to Animate.
	Portrait string
	// Opts are the rendering options passed to Animate.
	Opts lipsync.Options
}

// Provider is a mock implementation of lipsync.Provider.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// Video is returned by Animate. May be nil (returns a tiny placeholder clip).
	Video *lipsync.Video

	// Err, if non-nil, is returned by Animate instead of Video.
	Err error

	// ErrAfter, when > 0, makes Animate succeed for the first ErrAfter calls
	// and return Err from then on. Used to exercise mid-turn failures.
	ErrAfter int

	// AnimateCalls records every invocation of Animate in order.
	AnimateCalls []AnimateCall
}

var _ lipsync.Provider = (*Provider)(nil)

// Animate records the call and returns the configured Video or Err.
func (p *Provider) Animate(_ context.Context, audio []byte, portrait string, opts lipsync.Options) (*lipsync.Video, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnimateCalls = append(p.AnimateCalls, AnimateCall{Audio: audio, Portrait: portrait, Opts: opts})
	if p.Err != nil && (p.ErrAfter == 0 || len(p.AnimateCalls) > p.ErrAfter) {
		return nil, p.Err
	}
	if p.Video == nil {
		return &lipsync.Video{Data: []byte("mp4"), DurationS: 1, FrameCount: 25}, nil
	}
	video := *p.Video
	return &video, nil
}
