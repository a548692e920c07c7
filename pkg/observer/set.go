// Package observer holds the set of connected observer sinks and fans
// broadcast messages out to them.
package observer

import (
	"sync"

	"github.com/google/uuid"
)

// Sink receives broadcast text messages. Implementations must not block:
// the hub treats every send as fire-and-forget, so a slow consumer should
// buffer or drop and report the failure through the error return.
type Sink interface {
	Send(text string) error
}

// Token identifies a registered observer. Tokens are opaque; the zero
// value is never issued.
type Token = uuid.UUID

// Set is the collection of currently registered observers.
// Set is safe for concurrent use.
type Set struct {
	mu        sync.Mutex
	observers map[Token]Sink
}

// NewSet creates an empty observer set.
func NewSet() *Set {
	return &Set{
		observers: make(map[Token]Sink),
	}
}

// Register adds a sink and returns the token used to deregister it.
func (s *Set) Register(sink Sink) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.New()
	s.observers[token] = sink
	return token
}

// Deregister removes the observer with the given token. Deregistering an
// unknown or already-removed token is a no-op.
func (s *Set) Deregister(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, token)
}

// Broadcast delivers text to every registered observer. Each delivery is an
// independent attempt: a failing sink never blocks or aborts delivery to the
// others. Failing sinks are removed best-effort; transport-level disconnect
// detection remains the primary removal path.
func (s *Set) Broadcast(text string) {
	s.mu.Lock()
	targets := make(map[Token]Sink, len(s.observers))
	for token, sink := range s.observers {
		targets[token] = sink
	}
	s.mu.Unlock()

	var failed []Token
	for token, sink := range targets {
		if err := sink.Send(text); err != nil {
			failed = append(failed, token)
		}
	}

	if len(failed) == 0 {
		return
	}
	s.mu.Lock()
	for _, token := range failed {
		delete(s.observers, token)
	}
	s.mu.Unlock()
}

// Len returns the number of registered observers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}
