package store

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bagmachine-remote/internal/model"
	"bagmachine-remote/internal/session"
)

// Store defines the interface for all database operations.
type Store interface {
	// Record appends a completed operator action to the journal.
	Record(ctx context.Context, r session.Record) error
	// Recent returns the newest journal entries first.
	Recent(ctx context.Context, limit int) ([]model.JournalEntry, error)

	// Prune deletes journal entries created before the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)

	PutSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	// SubscriptionsFor lists the subscriptions that want a message of the
	// given kind. Failure messages go to everyone.
	SubscriptionsFor(ctx context.Context, failure bool) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

func (s *gormStore) Record(ctx context.Context, r session.Record) error {
	at := r.At
	if at.IsZero() {
		at = s.now()
	}
	entry := model.JournalEntry{
		SessionID: r.SessionID,
		Action:    string(r.Action),
		Outcome:   string(r.Outcome),
		Value:     r.Value,
		Message:   r.Message,
		Detail:    truncate(r.Detail, 512),
		CreatedAt: at,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.Wrapf(err, "failed to journal %s", r.Action)
	}
	return nil
}

func (s *gormStore) Recent(ctx context.Context, limit int) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to read journal")
	}
	return entries, nil
}

func (s *gormStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&model.JournalEntry{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to prune journal")
	}
	return res.RowsAffected, nil
}

func (s *gormStore) PutSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "failures_only"}),
	}).Create(sub).Error
	if err != nil {
		return errors.Wrap(err, "failed to save subscription")
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load subscription")
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return errors.Wrap(err, "failed to delete subscription")
	}
	return nil
}

func (s *gormStore) SubscriptionsFor(ctx context.Context, failure bool) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	q := s.db.WithContext(ctx)
	if !failure {
		q = q.Where("failures_only = ?", false)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list subscriptions")
	}
	return subs, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
