package chat

import (
	"sync"
	"time"
)

// Store is the in-memory transcript of one conversation: append-only,
// ordered, timestamps never moving backwards even when callers supply their
// own.
type Store struct {
	mu     sync.RWMutex
	msgs   []Message
	lastTS time.Time
}

func NewStore() *Store {
	return &Store{}
}

// Append adds a message to the end of the transcript and returns the stored
// copy. A zero timestamp is filled with the current time; a timestamp behind
// the newest stored message is clamped forward to it.
func (s *Store) Append(m Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if m.Timestamp.Before(s.lastTS) {
		m.Timestamp = s.lastTS
	}
	s.lastTS = m.Timestamp

	s.msgs = append(s.msgs, m)
	return m
}

// Messages returns a copy of the transcript in append order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Last returns the newest message, if any.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.msgs) == 0 {
		return Message{}, false
	}
	return s.msgs[len(s.msgs)-1], true
}
