package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Hub is the table of live sessions keyed by connection id.
type Hub struct {
	deps Deps
	opts Options

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewHub(deps Deps, opts Options) *Hub {
	return &Hub{deps: deps, opts: opts, sessions: make(map[string]*Session)}
}

// Open registers a new session for a transport connection and starts its loop.
// The session removes itself from the table when it completes.
func (h *Hub) Open(ctx context.Context, t Transport) *Session {
	s := NewSession(uuid.NewString(), t, h.deps, h.opts)
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		s.Run(ctx)
		h.mu.Lock()
		delete(h.sessions, s.ID())
		h.mu.Unlock()
	}()
	return s
}

// Get looks up a live session.
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Active reports the number of live sessions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Wait blocks until every session finished or ctx ends.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
