package history_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mirrorcast/mirrorcast/internal/history"
	"github.com/mirrorcast/mirrorcast/pkg/provider/llm"
)

func TestAppendAndSnapshot(t *testing.T) {
	t.Parallel()
	s := history.New()

	s.Append("alice", "hello", "hi there")
	s.Append("alice", "how are you", "great")

	got := s.Snapshot("alice")
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi there"},
		{Role: llm.RoleUser, Content: "how are you"},
		{Role: llm.RoleAssistant, Content: "great"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestUsersAreIsolated(t *testing.T) {
	t.Parallel()
	s := history.New()

	s.Append("alice", "hello", "hi")
	if got := s.Snapshot("bob"); len(got) != 0 {
		t.Fatalf("bob's transcript has %d messages, want 0", len(got))
	}
}

func TestBoundedLength(t *testing.T) {
	t.Parallel()
	s := history.New(history.WithMaxMessages(4))

	for i := 0; i < 5; i++ {
		s.Append("alice", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	got := s.Snapshot("alice")
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}
	if got[0].Content != "q3" || got[3].Content != "a4" {
		t.Errorf("trim kept wrong window: first=%q last=%q", got[0].Content, got[3].Content)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	s := history.New()
	s.Append("alice", "hello", "hi")

	snap := s.Snapshot("alice")
	snap[0].Content = "mutated"

	if got := s.Snapshot("alice")[0].Content; got != "hello" {
		t.Fatalf("store mutated through snapshot: %q", got)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	s := history.New()
	s.Append("alice", "hello", "hi")
	s.Clear("alice")

	if got := s.Snapshot("alice"); len(got) != 0 {
		t.Fatalf("transcript has %d messages after Clear", len(got))
	}
}

func TestConcurrentAppend(t *testing.T) {
	t.Parallel()
	s := history.New(history.WithMaxMessages(1000))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.Append("alice", fmt.Sprintf("q%d-%d", n, j), "a")
			}
		}(i)
	}
	wg.Wait()

	if got := len(s.Snapshot("alice")); got != 200 {
		t.Fatalf("got %d messages, want 200", got)
	}
}
