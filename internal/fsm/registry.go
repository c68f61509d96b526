// Package fsm holds the participant state machine and the process-wide
// shared state around it: the per-user serializer, the read cache and the
// inbound update guard. All of it lives on one Registry value constructed at
// startup and injected into the handlers.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orlyatnik/campbot/internal/models"
	"github.com/orlyatnik/campbot/internal/storage"
	"github.com/sirupsen/logrus"
)

// ErrParticipantNotFound means the store authoritatively has no row for the
// user. Distinct from an illegal transition, which is absorbed silently.
var ErrParticipantNotFound = errors.New("participant not found")

// Store is the record store contract the registry needs. Implementations
// must return storage.ErrNotFound for a missing row and retry transient
// failures internally.
type Store interface {
	FindByUserID(ctx context.Context, userID int64) (*models.Participant, error)
	GetOrCreate(ctx context.Context, userID, chatID int64, username, defaultShift string) (*models.Participant, error)
	PatchFields(ctx context.Context, userID int64, patch models.FieldPatch, newStatus *models.Status) (*models.Participant, error)
}

type Registry struct {
	store Store
	cache *ParticipantCache
	guard *UpdateGuard
	users *UserSerializer
}

func NewRegistry(store Store, cacheTTL time.Duration) *Registry {
	return &Registry{
		store: store,
		cache: NewParticipantCache(cacheTTL),
		guard: NewUpdateGuard(),
		users: NewUserSerializer(),
	}
}

func (r *Registry) Guard() *UpdateGuard { return r.guard }

// RunExclusive serializes fn against every other unit of work for userID.
// All Transition/Patch calls for a user must happen inside it.
func (r *Registry) RunExclusive(userID int64, fn func() error) error {
	return r.users.RunExclusive(userID, fn)
}

// Get returns the participant from cache or store. Misses are cached.
func (r *Registry) Get(ctx context.Context, userID int64) (*models.Participant, error) {
	if p, ok := r.cache.Get(userID); ok {
		return p, nil
	}
	p, err := r.store.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrParticipantNotFound, userID)
		}
		return nil, err
	}
	r.cache.Put(userID, p)
	return p, nil
}

// GetOrCreate returns the participant, inserting a NEW row on first contact.
func (r *Registry) GetOrCreate(ctx context.Context, userID, chatID int64, username, defaultShift string) (*models.Participant, error) {
	if p, ok := r.cache.Get(userID); ok {
		return p, nil
	}
	p, err := r.store.GetOrCreate(ctx, userID, chatID, username, defaultShift)
	if err != nil {
		return nil, err
	}
	r.cache.Put(userID, p)
	return p, nil
}

// Invalidate drops the cached participant. Required after any out-of-band
// store mutation (admin edits, payment provider callbacks).
func (r *Registry) Invalidate(userID int64) {
	r.cache.Invalidate(userID)
}

// Transition moves the participant to target, writing the optional field
// patch in the same store operation. An illegal transition is not an error:
// it is logged and the current record comes back unchanged, so duplicate or
// out-of-order triggers cannot crash a conversation. A participant that is
// missing entirely is a hard error.
func (r *Registry) Transition(ctx context.Context, userID int64, target models.Status, patch models.FieldPatch) (*models.Participant, error) {
	current, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransitionTo(target) {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"from":    current.Status,
			"to":      target,
		}).Warn("illegal status transition ignored")
		return current, nil
	}

	updated, err := r.patchWithRecovery(ctx, userID, patch, &target)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Patch applies field changes without touching status.
func (r *Registry) Patch(ctx context.Context, userID int64, patch models.FieldPatch) (*models.Participant, error) {
	return r.patchWithRecovery(ctx, userID, patch, nil)
}

// patchWithRecovery writes the patch and refreshes the cache. A "not found"
// on the write is recoverable once: the cache entry may point at a row that
// moved, so invalidate, re-read the store and retry the write before
// concluding the participant truly does not exist.
func (r *Registry) patchWithRecovery(ctx context.Context, userID int64, patch models.FieldPatch, newStatus *models.Status) (*models.Participant, error) {
	updated, err := r.store.PatchFields(ctx, userID, patch, newStatus)
	if err == nil {
		r.cache.Put(userID, updated)
		return updated, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	r.cache.Invalidate(userID)
	if _, rerr := r.store.FindByUserID(ctx, userID); rerr != nil {
		if errors.Is(rerr, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrParticipantNotFound, userID)
		}
		return nil, rerr
	}

	updated, err = r.store.PatchFields(ctx, userID, patch, newStatus)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrParticipantNotFound, userID)
		}
		return nil, err
	}
	r.cache.Put(userID, updated)
	return updated, nil
}
