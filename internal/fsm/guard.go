package fsm

import (
	"sync"
	"time"
)

const (
	// Telegram redelivers updates on webhook timeouts; anything older than a
	// day cannot come back, so entries are dropped after that.
	guardTTL = 24 * time.Hour

	// Hard cap on remembered update ids. Oldest-first eviction keeps memory
	// bounded under sustained traffic.
	guardMaxEntries = 10000
)

type guardEntry struct {
	updateID int
	seenAt   time.Time
}

// UpdateGuard deduplicates inbound update ids within a retention window.
// Process-local: a restart forgets everything, which is an accepted tradeoff.
type UpdateGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int

	seen  map[int]time.Time
	order []guardEntry
}

func NewUpdateGuard() *UpdateGuard {
	return &UpdateGuard{
		ttl:     guardTTL,
		maxSize: guardMaxEntries,
		seen:    make(map[int]time.Time),
	}
}

func (g *UpdateGuard) IsProcessed(updateID int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.purgeLocked(time.Now())
	_, ok := g.seen[updateID]
	return ok
}

func (g *UpdateGuard) MarkProcessed(updateID int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	g.seen[updateID] = now
	g.order = append(g.order, guardEntry{updateID: updateID, seenAt: now})
	g.purgeLocked(now)
}

// purgeLocked drops expired entries and then evicts oldest-first while over
// the cap. The order queue may hold stale duplicates for re-marked ids; the
// timestamp check keeps them from deleting a live entry.
func (g *UpdateGuard) purgeLocked(now time.Time) {
	for len(g.order) > 0 {
		head := g.order[0]
		if now.Sub(head.seenAt) <= g.ttl && len(g.seen) <= g.maxSize {
			break
		}
		g.order = g.order[1:]
		if ts, ok := g.seen[head.updateID]; ok && ts.Equal(head.seenAt) {
			delete(g.seen, head.updateID)
		}
	}
}
