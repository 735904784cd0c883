// Package history keeps short per-user conversation transcripts in memory.
//
// The store exists to give the dialogue model context across turns. It is
// intentionally small: a bounded ring of user/assistant message pairs per
// user, snapshotted at turn start so a turn sees a stable view even while
// other turns append.
package history

import (
	"sync"

	"github.com/mirrorcast/mirrorcast/pkg/provider/llm"
)

// DefaultMaxMessages bounds each user's transcript. Oldest messages are
// dropped first.
const DefaultMaxMessages = 20

// Store holds per-user transcripts. The zero value is not usable; call
// [New].
type Store struct {
	maxMessages int

	mu    sync.Mutex
	users map[string][]llm.Message
}

// Option configures a [Store].
type Option func(*Store)

// WithMaxMessages bounds each transcript to n messages. Values below 1 keep
// [DefaultMaxMessages].
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.maxMessages = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		maxMessages: DefaultMaxMessages,
		users:       make(map[string][]llm.Message),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of userID's transcript, oldest first. Mutating
// the returned slice does not affect the store.
func (s *Store) Snapshot(userID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.users[userID]
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Append records one exchange for userID, trimming the oldest messages if
// the transcript exceeds the bound.
func (s *Store) Append(userID, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.users[userID],
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: assistantText},
	)
	if over := len(msgs) - s.maxMessages; over > 0 {
		msgs = msgs[over:]
	}
	s.users[userID] = msgs
}

// Clear drops userID's transcript.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}
