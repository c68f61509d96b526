package fsm

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSerializerOrdersUnitsPerUser(t *testing.T) {
	s := NewUserSerializer()

	release := make(chan struct{})
	started := make(chan struct{})

	var mu sync.Mutex
	var got []int

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunExclusive(7, func() error {
			close(started)
			<-release
			mu.Lock()
			got = append(got, 0)
			mu.Unlock()
			return nil
		})
	}()
	<-started

	// Queue three more units behind the blocked one, waiting for each to
	// register as the new tail so submission order is known.
	s.mu.Lock()
	tail := s.tails[7]
	s.mu.Unlock()
	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunExclusive(7, func() error {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
				return nil
			})
		}()
		for {
			s.mu.Lock()
			next := s.tails[7]
			s.mu.Unlock()
			if next != tail {
				tail = next
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	close(release)
	wg.Wait()

	want := []int{0, 1, 2, 3}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d units to run, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("units ran out of submission order: %v", got)
		}
	}

	if n := s.PendingUsers(); n != 0 {
		t.Errorf("queues should be cleaned up, %d left", n)
	}
}

func TestSerializerUsersRunInParallel(t *testing.T) {
	s := NewUserSerializer()

	blockedRunning := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunExclusive(1, func() error {
			close(blockedRunning)
			<-release
			return nil
		})
	}()
	<-blockedRunning

	// A unit for another user must not wait behind user 1.
	done := make(chan struct{})
	go func() {
		s.RunExclusive(2, func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unit for user 2 blocked behind user 1")
	}

	close(release)
	wg.Wait()
}

func TestSerializerErrorDoesNotPoisonQueue(t *testing.T) {
	s := NewUserSerializer()

	want := errors.New("boom")
	if err := s.RunExclusive(5, func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected unit error back, got %v", err)
	}

	ran := false
	if err := s.RunExclusive(5, func() error { ran = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("later unit must run after a failed one")
	}
	if n := s.PendingUsers(); n != 0 {
		t.Errorf("queues should be cleaned up, %d left", n)
	}
}
