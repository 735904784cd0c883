package resilience

import (
	"context"
	"log/slog"

	"github.com/mirrorcast/mirrorcast/pkg/provider/llm"
)

// DefaultCannedText is spoken when the dialogue model fails and no
// replacement text is configured.
const DefaultCannedText = "I'm sorry, I'm having trouble thinking right now. Could you say that again?"

// CannedFallback wraps an [llm.Provider] so that a turn never dies on a
// model failure. When the primary errors out, times out or its breaker is
// open, the response is a fixed canned reply flagged with Fallback=true so
// downstream stages can tell synthesised apologies from real answers.
type CannedFallback struct {
	primary llm.Provider
	breaker *Breaker
	text    string
	log     *slog.Logger
}

var _ llm.Provider = (*CannedFallback)(nil)

// FallbackOption configures a [CannedFallback].
type FallbackOption func(*CannedFallback)

// WithCannedText replaces [DefaultCannedText].
func WithCannedText(text string) FallbackOption {
	return func(f *CannedFallback) {
		if text != "" {
			f.text = text
		}
	}
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *Breaker) FallbackOption {
	return func(f *CannedFallback) {
		f.breaker = b
	}
}

// WithLogger sets the logger used when a fallback fires.
func WithLogger(log *slog.Logger) FallbackOption {
	return func(f *CannedFallback) {
		f.log = log
	}
}

// NewCannedFallback wraps primary.
func NewCannedFallback(primary llm.Provider, opts ...FallbackOption) *CannedFallback {
	f := &CannedFallback{
		primary: primary,
		breaker: NewBreaker(BreakerConfig{Name: "llm"}),
		text:    DefaultCannedText,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Respond forwards to the primary through the breaker. Any failure,
// including an open breaker, yields the canned response with Fallback set;
// Respond itself never returns an error. Context cancellation is the one
// exception: a caller that has gone away gets its context error back
// untouched.
func (f *CannedFallback) Respond(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	var resp *llm.ChatResponse
	err := f.breaker.Do(func() error {
		var innerErr error
		resp, innerErr = f.primary.Respond(ctx, req)
		return innerErr
	})
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f.log.Warn("dialogue model failed, using canned response",
		"error", err,
		"breaker_state", f.breaker.State().String())
	return &llm.ChatResponse{Text: f.text, Fallback: true}, nil
}
