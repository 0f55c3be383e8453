package server

import (
	"sync"
	"time"

	"github.com/mhpenta/detailsmatter"
	"github.com/mhpenta/detailsmatter/evolution"
	"github.com/mhpenta/detailsmatter/gallery"
)

// liveSession is a conversation held by the server between requests.
type liveSession struct {
	conv   *evolution.Conversation
	images detailsmatter.ImageStore

	// forkedFrom is set when the conversation started as a gallery fork.
	forkedFrom *gallery.ForkInfo

	// lastUsed is guarded by the registry lock.
	lastUsed time.Time
}

type registry struct {
	sessions map[string]*liveSession
	mu       sync.Mutex
	now      func() time.Time
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*liveSession), now: time.Now}
}

func (r *registry) add(s *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.lastUsed = r.now()
	r.sessions[s.conv.ID()] = s
}

// get returns a session and marks it used.
func (r *registry) get(id string) (*liveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	s.lastUsed = r.now()
	return s, nil
}

func (r *registry) remove(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	return s, ok
}

// expire removes and returns the sessions unused for longer than idle.
func (r *registry) expire(idle time.Duration) []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-idle)

	var out []*liveSession
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			out = append(out, s)
		}
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
