package fsm

import (
	"sync"
	"time"

	"github.com/orlyatnik/campbot/internal/models"
)

// DefaultCacheTTL bounds how stale a cached participant may get before the
// next read goes back to the store.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	participant *models.Participant
	expiresAt   time.Time
}

// ParticipantCache is an advisory read-through cache in front of the store.
// Expired entries are treated as absent and removed lazily on access.
// Anything that mutates the store out-of-band must Invalidate the user.
type ParticipantCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]cacheEntry
}

func NewParticipantCache(ttl time.Duration) *ParticipantCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ParticipantCache{
		ttl:     ttl,
		entries: make(map[int64]cacheEntry),
	}
}

func (c *ParticipantCache) Get(userID int64) (*models.Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, userID)
		return nil, false
	}
	return entry.participant, true
}

func (c *ParticipantCache) Put(userID int64, p *models.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = cacheEntry{
		participant: p,
		expiresAt:   time.Now().Add(c.ttl),
	}
}

func (c *ParticipantCache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
}
