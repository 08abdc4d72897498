package persist

import (
	"context"
	"fmt"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/logger"
)

// ReconcileStats summarizes one sweep over the orphan markers.
type ReconcileStats struct {
	Repaired int
	Expired  int
	Pending  int
}

// Reconcile repairs the aftermath of partial commits. For every orphan
// marker it either completes the missing relational row from the orphaned
// document, or removes a document whose payload cannot be read back once it
// is older than the retention window. The sweep is idempotent and safe to
// run repeatedly; only one instance may run at a time (callers hold the
// reconcile lease).
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	orphans, err := c.docs.ListOrphans(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list orphans: %w", err)
	}
	if len(orphans) == 0 {
		logger.Debug("[Reconcile] No orphans found")
		return stats, nil
	}

	logger.Info("[Reconcile] Sweeping orphans", "count", len(orphans))

	for _, orphan := range orphans {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		rec, err := c.docs.GetDocument(ctx, orphan.CompanyID, orphan.DocumentID)
		if err != nil {
			if c.now().Sub(orphan.OrphanedAt) > c.retention {
				if err := c.expireOrphan(ctx, orphan); err != nil {
					logger.Error("[Reconcile] Failed to expire orphan", "document_id", orphan.DocumentID, "err", err)
					stats.Pending++
					continue
				}
				stats.Expired++
				continue
			}
			logger.Warn("[Reconcile] Orphaned document unreadable, keeping until retention",
				"company_id", orphan.CompanyID, "document_id", orphan.DocumentID, "err", err)
			stats.Pending++
			continue
		}

		row := common.RelationalRecord{
			DocumentID:         rec.DocumentID,
			CompanyID:          rec.CompanyID,
			Category:           rec.Category,
			CategoryConfidence: rec.CategoryConfidence,
			KeyFactSummary:     KeyFactSummary(rec.Facts),
			ExtractorVersion:   rec.Provenance.ExtractorVersion,
		}
		if err := c.rel.UpsertRecord(ctx, row); err != nil {
			logger.Error("[Reconcile] Failed to complete relational row", "document_id", orphan.DocumentID, "err", err)
			stats.Pending++
			continue
		}
		if err := c.docs.ClearOrphan(ctx, orphan.CompanyID, orphan.DocumentID); err != nil {
			logger.Error("[Reconcile] Failed to clear orphan marker", "document_id", orphan.DocumentID, "err", err)
			stats.Pending++
			continue
		}
		stats.Repaired++
	}

	logger.Info("[Reconcile] Sweep complete",
		"repaired", stats.Repaired, "expired", stats.Expired, "pending", stats.Pending)
	return stats, nil
}

func (c *Coordinator) expireOrphan(ctx context.Context, orphan OrphanRef) error {
	if err := c.docs.DeleteDocument(ctx, orphan.CompanyID, orphan.DocumentID); err != nil {
		return err
	}
	return c.docs.ClearOrphan(ctx, orphan.CompanyID, orphan.DocumentID)
}
