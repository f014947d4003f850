package session

import (
	"sort"
	"sync"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// Registry maps client identifiers to their sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint64]*Session),
	}
}

// Insert adds s. It fails without touching the registry when the identifier
// is already tracked.
func (r *Registry) Insert(s *Session) error {
	if s == nil {
		return oops.Errorf("cannot insert nil session")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return oops.Errorf("client %d is already registered", s.ID())
	}
	r.sessions[s.ID()] = s

	log.WithFields(logger.Fields{
		"at":         "session.(*Registry).Insert",
		"clientID":   s.ID(),
		"remoteAddr": s.RemoteAddr(),
		"count":      len(r.sessions),
	}).Debug("session_registered")
	return nil
}

// Remove deletes the entry for id. Removing an unknown id is a no-op; the
// return value reports whether an entry was deleted.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return false
	}
	delete(r.sessions, id)

	log.WithFields(logger.Fields{
		"at":       "session.(*Registry).Remove",
		"clientID": id,
		"count":    len(r.sessions),
	}).Debug("session_removed")
	return true
}

// Get returns the session for id, if tracked.
func (r *Registry) Get(id uint64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns the tracked sessions ordered by identifier. The slice is
// a copy; sessions in it may be removed concurrently.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
