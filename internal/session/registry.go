package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

// Registry maps session IDs to sessions, expiring idle ones.
type Registry struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// Purge expired sessions at twice the TTL frequency.
	return &Registry{cache: cache.New(ttl, ttl/2), ttl: ttl}
}

// Get returns the live session for id and refreshes its expiry.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	x, found := r.cache.Get(id)
	if !found {
		return nil, false
	}
	sess := x.(*Session)
	r.cache.Set(id, sess, r.ttl)
	return sess, true
}

// Create registers a fresh session under a new random ID.
func (r *Registry) Create() *Session {
	sess := New(uuid.NewString())
	r.cache.Set(sess.ID(), sess, r.ttl)
	return sess
}

// GetOrCreate returns the session for id, or a new one when id is unknown or
// expired. created reports which.
func (r *Registry) GetOrCreate(id string) (sess *Session, created bool) {
	if s, ok := r.Get(id); ok {
		return s, false
	}
	return r.Create(), true
}

func (r *Registry) Delete(id string) {
	r.cache.Delete(id)
}

// Len is the number of sessions currently held, expired or not yet purged.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
