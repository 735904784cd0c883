// Package llm defines the Provider interface for dialogue model backends.
//
// An LLM provider wraps a remote or local chat model API (OpenAI, a vLLM
// deployment of Qwen, Ollama, …) behind a single blocking Respond call. The
// gateway speaks one full assistant turn per user turn, so incremental token
// streaming is not part of this contract — the downstream chunker operates on
// the complete response text.
//
// Implementations must be safe for concurrent use and must propagate ctx
// cancellation promptly; the pipeline applies a per-call timeout around every
// invocation.
package llm

import "context"

// Role identifies the author of a dialogue message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the dialogue history.
type Message struct {
	// Role is the author of this message.
	Role Role

	// Content is the plain-text body.
	Content string
}

// ChatRequest carries everything the model needs to produce a response.
type ChatRequest struct {
	// SystemPrompt is a high-priority instruction injected before the history.
	SystemPrompt string

	// History is the ordered prior conversation, oldest first. The current
	// user utterance is appended by the caller as the final Message.
	History []Message

	// UserText is the current user utterance that drives the response.
	UserText string

	// MaxTokens caps completion length. Zero means the provider default.
	MaxTokens int

	// Temperature controls output randomness. Zero means the provider default.
	Temperature float64
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	// Text is the full assistant response.
	Text string

	// Fallback reports that the text came from a canned fallback rather than
	// the model (set by resilience wrappers, never by real providers).
	Fallback bool
}

// Provider is the abstraction over any dialogue model backend.
type Provider interface {
	// Respond sends the request to the model and waits for the full reply.
	// Returns an error if the request fails or ctx expires first.
	Respond(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
