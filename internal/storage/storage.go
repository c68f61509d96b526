package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orlyatnik/campbot/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound marks an authoritative "no such participant" from the store,
// as opposed to a transient failure. Callers check it with errors.Is.
var ErrNotFound = errors.New("participant not found")

const (
	maxRetries     = 3
	initialBackoff = time.Second
)

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.Participant{},
		&models.ConversationLog{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// withRetry runs fn up to maxRetries times with exponential backoff.
// ErrNotFound is authoritative and never retried.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else if errors.Is(err, ErrNotFound) {
			return err
		} else {
			lastErr = err
		}

		if attempt < maxRetries-1 {
			delay := initialBackoff << attempt
			logrus.Warnf("store retry attempt=%d delay=%s: %v", attempt+1, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (s *Storage) FindByUserID(ctx context.Context, userID int64) (*models.Participant, error) {
	var p models.Participant
	err := withRetry(ctx, func() error {
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("getting participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreate returns the participant or inserts a fresh NEW row. Safe to
// call concurrently for the same user: the insert is on-conflict-do-nothing
// followed by a read, as long as callers go through the per-user serializer
// no duplicate rows can appear even on append-only backends.
func (s *Storage) GetOrCreate(ctx context.Context, userID, chatID int64, username, defaultShift string) (*models.Participant, error) {
	toCreate := &models.Participant{
		UserID:   userID,
		ChatID:   chatID,
		Username: username,
		Status:   models.StatusNew,
		Shift:    defaultShift,
	}

	var p models.Participant
	err := withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "user_id"}},
					DoNothing: true,
				}).
				Create(toCreate).
				Error; err != nil {
				return fmt.Errorf("creating participant: %w", err)
			}

			if err := tx.Where("user_id = ?", userID).First(&p).Error; err != nil {
				return fmt.Errorf("getting participant: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("in tx: %w", err)
	}

	return &p, nil
}

// PatchFields applies a partial update, optionally changing status in the
// same write, and returns the refreshed row. Must be called from inside the
// user's serializer region: the underlying read-then-write is not atomic
// against other writers for the same row.
func (s *Storage) PatchFields(ctx context.Context, userID int64, patch models.FieldPatch, newStatus *models.Status) (*models.Participant, error) {
	updates := patch.Updates()
	if newStatus != nil {
		updates["status"] = *newStatus
	}
	if len(updates) == 0 {
		return s.FindByUserID(ctx, userID)
	}
	updates["updated_at"] = time.Now()

	var p models.Participant
	err := withRetry(ctx, func() error {
		res := s.db.
			WithContext(ctx).
			Model(&models.Participant{}).
			Where("user_id = ?", userID).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("updating participant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
			return fmt.Errorf("rereading participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) AppendLog(ctx context.Context, entry *models.ConversationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if len(entry.TextPreview) > 500 {
		entry.TextPreview = entry.TextPreview[:500]
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("appending conversation log: %w", err)
	}
	return nil
}

func (s *Storage) GetSettings(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (s *Storage) SetSetting(ctx context.Context, key, value string) error {
	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&models.Setting{Key: key, Value: value}).
		Error; err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// PendingFinalSend lists confirmed participants who have not yet received
// the terminal "you're in" message.
func (s *Storage) PendingFinalSend(ctx context.Context) ([]*models.Participant, error) {
	var result []*models.Participant
	err := withRetry(ctx, func() error {
		if err := s.db.
			WithContext(ctx).
			Where("status = ? AND final_sent_at IS NULL AND chat_id <> 0", models.StatusConfirmed).
			Limit(100).
			Find(&result).
			Error; err != nil {
			return fmt.Errorf("getting pending final sends: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

var reminderStatuses = []models.Status{
	models.StatusNew,
	models.StatusInfo,
	models.StatusFormFilling,
	models.StatusFormConfirm,
	models.StatusWaitPayment,
	models.StatusPaymentSent,
}

// ForReminders lists participants stuck on a reminded step: inactive longer
// than inactiveFor and not nudged within cooldown.
func (s *Storage) ForReminders(ctx context.Context, inactiveFor, cooldown time.Duration) ([]*models.Participant, error) {
	now := time.Now()
	var result []*models.Participant
	err := withRetry(ctx, func() error {
		if err := s.db.
			WithContext(ctx).
			Where("status IN ? AND chat_id <> 0", reminderStatuses).
			Where("updated_at < ?", now.Add(-inactiveFor)).
			Where("last_reminder_at IS NULL OR last_reminder_at < ?", now.Add(-cooldown)).
			Limit(100).
			Find(&result).
			Error; err != nil {
			return fmt.Errorf("getting reminder candidates: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type BroadcastSegment string

const (
	BroadcastAll       BroadcastSegment = "all"
	BroadcastConfirmed BroadcastSegment = "confirmed"
	BroadcastWaiting   BroadcastSegment = "waiting"
)

func (s *Storage) ForBroadcast(ctx context.Context, segment BroadcastSegment) ([]*models.Participant, error) {
	q := s.db.WithContext(ctx).Where("chat_id <> 0")
	switch segment {
	case BroadcastConfirmed:
		q = q.Where("status = ?", models.StatusConfirmed)
	case BroadcastWaiting:
		q = q.Where("status IN ?", []models.Status{models.StatusWaitPayment, models.StatusPaymentSent})
	case BroadcastAll:
	default:
		return nil, fmt.Errorf("unknown broadcast segment %q", segment)
	}

	var result []*models.Participant
	if err := q.Find(&result).Error; err != nil {
		return nil, fmt.Errorf("getting broadcast recipients: %w", err)
	}
	return result, nil
}
