package fsm

import "sync"

// UserSerializer funnels all mutating work for one user through a single
// queue: strict submission order per user id, full parallelism across ids.
// Each call chains on the previous tail channel for its user and becomes the
// new tail; the last unit to finish removes the map entry so idle users cost
// nothing.
type UserSerializer struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
}

func NewUserSerializer() *UserSerializer {
	return &UserSerializer{tails: make(map[int64]chan struct{})}
}

// RunExclusive runs fn once every previously submitted unit for userID has
// finished. fn's error goes to this caller only; a failed unit never blocks
// the ones queued behind it. There is no way to abandon a queued unit: a
// caller that stops waiting still leaves it to run, which is what keeps
// interrupted retries from corrupting later state.
func (s *UserSerializer) RunExclusive(userID int64, fn func() error) error {
	done := make(chan struct{})

	s.mu.Lock()
	prev := s.tails[userID]
	s.tails[userID] = done
	s.mu.Unlock()

	if prev != nil {
		<-prev
	}

	defer func() {
		close(done)
		s.mu.Lock()
		if s.tails[userID] == done {
			delete(s.tails, userID)
		}
		s.mu.Unlock()
	}()

	return fn()
}

// PendingUsers reports how many user queues currently exist. Exposed for
// tests and debug logging.
func (s *UserSerializer) PendingUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}
