package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mirrorcast/mirrorcast/internal/resilience"
	"github.com/mirrorcast/mirrorcast/pkg/provider/llm"
	llmmock "github.com/mirrorcast/mirrorcast/pkg/provider/llm/mock"
)

func TestCannedFallback_PassesThroughOnSuccess(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{}
	primary.Response = &llm.ChatResponse{Text: "hello there"}
	f := resilience.NewCannedFallback(primary)

	resp, err := f.Respond(context.Background(), llm.ChatRequest{UserText: "hi"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text != "hello there" || resp.Fallback {
		t.Fatalf("resp = %+v, want primary response", resp)
	}
	if len(primary.RespondCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.RespondCalls))
	}
}

func TestCannedFallback_CannedOnFailure(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{}
	primary.Err = errors.New("model exploded")
	f := resilience.NewCannedFallback(primary, resilience.WithCannedText("one moment please"))

	resp, err := f.Respond(context.Background(), llm.ChatRequest{UserText: "hi"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text != "one moment please" {
		t.Errorf("Text = %q, want canned", resp.Text)
	}
	if !resp.Fallback {
		t.Error("Fallback flag not set on canned response")
	}
}

func TestCannedFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{}
	primary.Err = errors.New("model exploded")
	f := resilience.NewCannedFallback(primary,
		resilience.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{Name: "llm", MaxFailures: 1})))

	ctx := context.Background()
	f.Respond(ctx, llm.ChatRequest{UserText: "first"})

	resp, err := f.Respond(ctx, llm.ChatRequest{UserText: "second"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !resp.Fallback {
		t.Error("expected canned response while breaker open")
	}
	if len(primary.RespondCalls) != 1 {
		t.Errorf("primary called %d times, want 1 (breaker should block the second)", len(primary.RespondCalls))
	}
}

func TestCannedFallback_ContextCancellation(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{}
	primary.Err = context.Canceled
	f := resilience.NewCannedFallback(primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Respond(ctx, llm.ChatRequest{UserText: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled (no canned reply for a gone caller)", err)
	}
}
