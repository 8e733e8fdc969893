package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PruneSchedule runs the journal cleanup once a day shortly after midnight.
const PruneSchedule = "15 0 * * *"

// SchedulePrune registers a job on c that drops journal entries older than
// retention.
func SchedulePrune(c *cron.Cron, s Store, retention time.Duration, log *logrus.Entry) (cron.EntryID, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be positive")
	}
	id, err := c.AddFunc(PruneSchedule, func() {
		PruneOnce(context.Background(), s, retention, time.Now(), log)
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to schedule journal pruning")
	}
	return id, nil
}

// PruneOnce deletes entries older than retention relative to now.
func PruneOnce(ctx context.Context, s Store, retention time.Duration, now time.Time, log *logrus.Entry) {
	removed, err := s.Prune(ctx, now.Add(-retention))
	if err != nil {
		log.WithError(err).Warn("journal pruning failed")
		return
	}
	if removed > 0 {
		log.WithField("removed", removed).Info("pruned old journal entries")
	}
}
