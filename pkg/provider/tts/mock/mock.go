// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/mirrorcast/mirrorcast/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the fragment passed to Synthesize.
	Text string
	// Voice is the voice reference passed to Synthesize.
	Voice tts.VoiceRef
	// Language is the language code passed to Synthesize.
	Language string
}

// Provider is a mock implementation of tts.Provider.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize. May be nil (returns an empty Audio).
	Audio *tts.Audio

	// Err, if non-nil, is returned by Synthesize instead of Audio.
	Err error

	// ErrAfter, when > 0, makes Synthesize succeed for the first ErrAfter
	// calls and return Err from then on. Used to exercise mid-turn failures.
	ErrAfter int

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns the configured Audio or Err.
func (p *Provider) Synthesize(_ context.Context, text string, voice tts.VoiceRef, language string) (*tts.Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice, Language: language})
	if p.Err != nil && (p.ErrAfter == 0 || len(p.SynthesizeCalls) > p.ErrAfter) {
		return nil, p.Err
	}
	if p.Audio == nil {
		return &tts.Audio{Data: []byte("wav"), SampleRate: 24000, DurationS: 1}, nil
	}
	audio := *p.Audio
	return &audio, nil
}
