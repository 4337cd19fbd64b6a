package adapter

import "context"

// QuotaGuard is consulted before each generation call. It returns
// domain.ErrQuotaExceeded when the owner is over their daily run budget;
// that outcome is tracked separately and never counts toward auto-disable.
type QuotaGuard interface {
	CheckDailyRunBudget(ctx context.Context, ownerID string) error
}
