// Package mock provides a test double for the asr.Provider interface.
//
// Use Provider in unit tests to feed controlled transcripts without a live
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/mirrorcast/mirrorcast/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Audio is the clip passed to Transcribe.
	Audio []byte
	// LangHint is the language hint passed to Transcribe.
	LangHint string
}

// Provider is a mock implementation of asr.Provider.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe. May be nil (returns an empty Result).
	Result *asr.Result

	// Err, if non-nil, is returned by Transcribe instead of Result.
	Err error

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

var _ asr.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured Result or Err.
func (p *Provider) Transcribe(_ context.Context, audio []byte, langHint string) (*asr.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: audio, LangHint: langHint})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result == nil {
		return &asr.Result{}, nil
	}
	res := *p.Result
	return &res, nil
}
