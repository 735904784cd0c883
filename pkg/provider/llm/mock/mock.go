// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the pipeline sends correct
// ChatRequests and to feed controlled responses without a live backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Response: &llm.ChatResponse{Text: "Hi there. How are you?"},
//	}
//	resp, err := p.Respond(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/mirrorcast/mirrorcast/pkg/provider/llm"
)

// RespondCall records a single invocation of Respond.
type RespondCall struct {
	// Req is the ChatRequest passed to Respond.
	Req llm.ChatRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Respond. May be nil (returns an empty response).
	Response *llm.ChatResponse

	// Err, if non-nil, is returned by Respond instead of Response.
	Err error

	// RespondCalls records every invocation of Respond in order.
	RespondCalls []RespondCall
}

var _ llm.Provider = (*Provider)(nil)

// Respond records the call and returns the configured Response or Err.
func (p *Provider) Respond(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RespondCalls = append(p.RespondCalls, RespondCall{Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Response == nil {
		return &llm.ChatResponse{}, nil
	}
	resp := *p.Response
	return &resp, nil
}
