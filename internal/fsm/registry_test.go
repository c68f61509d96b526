package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/orlyatnik/campbot/internal/models"
	"github.com/orlyatnik/campbot/internal/storage"
)

// fakeStore is an in-memory Store with counters for asserting how many
// writes actually reached it.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[int64]*models.Participant
	patches int
	reads   int

	// failPatchesWithNotFound makes the next N PatchFields calls report a
	// missing row even though it exists, for the recovery path.
	failPatchesWithNotFound int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]*models.Participant)}
}

func (f *fakeStore) seed(p *models.Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.rows[p.UserID] = &cp
}

func (f *fakeStore) FindByUserID(_ context.Context, userID int64) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	p, ok := f.rows[userID]
	if !ok {
		return nil, fmt.Errorf("participant %d: %w", userID, storage.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetOrCreate(_ context.Context, userID, chatID int64, username, defaultShift string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.rows[userID]; ok {
		cp := *p
		return &cp, nil
	}
	p := &models.Participant{
		UserID:   userID,
		ChatID:   chatID,
		Username: username,
		Status:   models.StatusNew,
		Shift:    defaultShift,
	}
	f.rows[userID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeStore) PatchFields(_ context.Context, userID int64, patch models.FieldPatch, newStatus *models.Status) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPatchesWithNotFound > 0 {
		f.failPatchesWithNotFound--
		return nil, storage.ErrNotFound
	}
	p, ok := f.rows[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	f.patches++
	patch.Apply(p)
	if newStatus != nil {
		p.Status = *newStatus
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patches
}

func TestRegistryTransitionLegalThenIllegal(t *testing.T) {
	store := newFakeStore()
	store.seed(&models.Participant{UserID: 10, Status: models.StatusNew})
	r := NewRegistry(store, time.Minute)
	ctx := context.Background()

	p, err := r.Transition(ctx, 10, models.StatusFormFilling, models.FieldPatch{})
	if err != nil {
		t.Fatalf("legal transition failed: %v", err)
	}
	if p.Status != models.StatusFormFilling {
		t.Fatalf("expected FORM_FILLING, got %s", p.Status)
	}

	writesBefore := store.patchCount()
	p, err = r.Transition(ctx, 10, models.StatusConfirmed, models.FieldPatch{})
	if err != nil {
		t.Fatalf("illegal transition must not error: %v", err)
	}
	if p.Status != models.StatusFormFilling {
		t.Errorf("illegal transition must leave status untouched, got %s", p.Status)
	}
	if store.patchCount() != writesBefore {
		t.Error("illegal transition must not reach the store")
	}
}

func TestRegistryConcurrentDuplicateSubmitWritesOnce(t *testing.T) {
	store := newFakeStore()
	store.seed(&models.Participant{UserID: 20, Status: models.StatusFormFilling})
	r := NewRegistry(store, time.Minute)
	ctx := context.Background()

	// Two copies of the same trigger race through the serializer. The first
	// moves FORM_FILLING to FORM_CONFIRM; the second sees FORM_CONFIRM and has
	// nowhere legal to go with the same target.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RunExclusive(20, func() error {
				_, err := r.Transition(ctx, 20, models.StatusFormConfirm, models.FieldPatch{})
				return err
			})
		}()
	}
	wg.Wait()

	if n := store.patchCount(); n != 1 {
		t.Fatalf("expected exactly one store write, got %d", n)
	}
	p, err := r.Get(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.StatusFormConfirm {
		t.Errorf("expected FORM_CONFIRM, got %s", p.Status)
	}
}

func TestRegistryGetCachesAndMapsNotFound(t *testing.T) {
	store := newFakeStore()
	store.seed(&models.Participant{UserID: 30, Status: models.StatusInfo})
	r := NewRegistry(store, time.Minute)
	ctx := context.Background()

	if _, err := r.Get(ctx, 30); err != nil {
		t.Fatal(err)
	}
	readsAfterFirst := store.reads
	if _, err := r.Get(ctx, 30); err != nil {
		t.Fatal(err)
	}
	if store.reads != readsAfterFirst {
		t.Error("second Get must be served from cache")
	}

	_, err := r.Get(ctx, 999)
	if !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestRegistryPatchRecoversFromStaleNotFound(t *testing.T) {
	store := newFakeStore()
	store.seed(&models.Participant{UserID: 40, Status: models.StatusFormFilling})
	r := NewRegistry(store, time.Minute)
	ctx := context.Background()

	// First write reports not found even though the row exists. The registry
	// must invalidate, re-read and retry once.
	store.failPatchesWithNotFound = 1

	fio := "Иванов Иван"
	p, err := r.Patch(ctx, 40, models.FieldPatch{FIO: &fio})
	if err != nil {
		t.Fatalf("recoverable not-found must succeed on retry: %v", err)
	}
	if p.FIO != fio {
		t.Errorf("patch not applied, got %q", p.FIO)
	}
	if n := store.patchCount(); n != 1 {
		t.Errorf("expected one effective write, got %d", n)
	}
}

func TestRegistryPatchMissingParticipant(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, time.Minute)

	fio := "x"
	_, err := r.Patch(context.Background(), 50, models.FieldPatch{FIO: &fio})
	if !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestRegistryGetOrCreate(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, time.Minute)
	ctx := context.Background()

	p, err := r.GetOrCreate(ctx, 60, 600, "vasya", "первая")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.StatusNew {
		t.Errorf("new participant must start in NEW, got %s", p.Status)
	}
	if p.Shift != "первая" {
		t.Errorf("default shift not set, got %q", p.Shift)
	}

	again, err := r.GetOrCreate(ctx, 60, 600, "vasya", "первая")
	if err != nil {
		t.Fatal(err)
	}
	if again.UserID != p.UserID {
		t.Error("second call must return the same participant")
	}
}
