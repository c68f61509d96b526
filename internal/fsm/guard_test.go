package fsm

import (
	"testing"
	"time"
)

func TestGuardDeduplicates(t *testing.T) {
	g := NewUpdateGuard()

	if g.IsProcessed(42) {
		t.Fatal("fresh id must not be processed")
	}
	g.MarkProcessed(42)
	if !g.IsProcessed(42) {
		t.Fatal("marked id must be processed")
	}
	if g.IsProcessed(43) {
		t.Fatal("unrelated id must not be processed")
	}
}

func TestGuardRetentionExpiry(t *testing.T) {
	g := NewUpdateGuard()
	g.MarkProcessed(42)

	// Age the entry past the retention window.
	g.mu.Lock()
	old := time.Now().Add(-guardTTL - time.Minute)
	g.seen[42] = old
	g.order[0].seenAt = old
	g.mu.Unlock()

	if g.IsProcessed(42) {
		t.Fatal("entry older than retention must be treated as new")
	}

	// Re-marking after expiry works like a first sighting.
	g.MarkProcessed(42)
	if !g.IsProcessed(42) {
		t.Fatal("re-marked id must be processed again")
	}
}

func TestGuardCapacityEvictsOldest(t *testing.T) {
	g := &UpdateGuard{
		ttl:     guardTTL,
		maxSize: 3,
		seen:    make(map[int]time.Time),
	}

	for id := 1; id <= 4; id++ {
		g.MarkProcessed(id)
	}

	if g.IsProcessed(1) {
		t.Error("oldest entry should have been evicted")
	}
	for id := 2; id <= 4; id++ {
		if !g.IsProcessed(id) {
			t.Errorf("entry %d should have survived eviction", id)
		}
	}
}

func TestGuardStaleQueueEntryDoesNotEvictLiveOne(t *testing.T) {
	g := &UpdateGuard{
		ttl:     guardTTL,
		maxSize: 2,
		seen:    make(map[int]time.Time),
	}

	g.MarkProcessed(1)
	// Age the queue head without purging, then re-mark: purge now meets a
	// stale queue entry for a live id.
	g.mu.Lock()
	old := time.Now().Add(-guardTTL - time.Minute)
	g.order[0].seenAt = old
	g.mu.Unlock()
	g.MarkProcessed(1)

	if !g.IsProcessed(1) {
		t.Fatal("re-marked id must stay processed despite the stale queue entry")
	}
}
