package queue

import (
	"context"
	"errors"
	"time"

	"github.com/sokograph/backend/pkg/leaselock"
	"github.com/sokograph/backend/pkg/logger"
	"github.com/sokograph/backend/pkg/persist"
)

const reconcileLeaseKey = "reconcile_sweep"

// ProcessReconcileMessage runs one orphan sweep under the reconcile lease. A
// busy lease means another worker is already sweeping; the message is acked.
func ProcessReconcileMessage(
	ctx context.Context,
	lock *leaselock.Client,
	coordinator *persist.Coordinator,
) error {
	err := lock.WithLease(ctx, reconcileLeaseKey, leaselock.Options{
		TTL:         5 * time.Minute,
		TokenPrefix: "reconcile_",
	}, func(ctx context.Context) error {
		stats, err := coordinator.Reconcile(ctx)
		if err != nil {
			return err
		}
		logger.Info("[Queue] Reconcile sweep finished",
			"repaired", stats.Repaired, "expired", stats.Expired, "pending", stats.Pending)
		return nil
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Reconcile sweep already running elsewhere")
		return nil
	}
	return err
}
