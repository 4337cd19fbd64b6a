package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"prompt-job-runner/internal/domain"
	"prompt-job-runner/internal/domain/ports/adapter"
)

var _ adapter.QuotaGuard = (*DailyRunQuota)(nil)

// DailyRunQuota enforces the per-owner daily run budget with a Redis counter
// keyed by owner and UTC day. The counter ticks once per started run, so a
// run that later fails still consumed budget. Store errors fail open: quota
// is advisory and must not turn a Redis outage into hard job failures.
type DailyRunQuota struct {
	client RedisClient
	limit  int
	log    *zerolog.Logger
}

func NewDailyRunQuota(client RedisClient, limit int, log *zerolog.Logger) *DailyRunQuota {
	return &DailyRunQuota{client: client, limit: limit, log: log}
}

func (q *DailyRunQuota) CheckDailyRunBudget(ctx context.Context, ownerID string) error {
	key := dailyRunKey(ownerID, time.Now().UTC())

	count, err := q.client.Incr(ctx, key)
	if err != nil {
		q.log.Warn().Err(err).Str("owner_id", ownerID).Msg("quota counter unavailable; allowing run")
		return nil
	}
	if count == 1 {
		// Key outlives the day it counts so a clock-skewed reader still sees it.
		if err := q.client.Expire(ctx, key, 48*time.Hour); err != nil {
			q.log.Warn().Err(err).Str("key", key).Msg("failed to set quota key expiry")
		}
	}
	if count > int64(q.limit) {
		return fmt.Errorf("%w (limit %d)", domain.ErrQuotaExceeded, q.limit)
	}
	return nil
}

func dailyRunKey(ownerID string, day time.Time) string {
	return fmt.Sprintf("runquota:%s:%s", ownerID, day.Format("2006-01-02"))
}

// NoopQuota allows every run; used when Redis is not configured.
type NoopQuota struct{}

var _ adapter.QuotaGuard = (*NoopQuota)(nil)

func (NoopQuota) CheckDailyRunBudget(ctx context.Context, ownerID string) error { return nil }
