package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/extract"
	"github.com/sokograph/backend/pkg/logger"
	"github.com/sokograph/backend/pkg/persist"
)

// CompanyRegistry registers company identity records during ingestion.
type CompanyRegistry interface {
	UpsertCompany(ctx context.Context, c common.Company) error
}

// ProcessIngestMessage runs one document through classification, extraction
// and the two-tier commit. Stale-version rejections are terminal and acked;
// storage failures are returned so the worker retries the message.
func ProcessIngestMessage(
	ctx context.Context,
	engine *extract.Engine,
	coordinator *persist.Coordinator,
	registry CompanyRegistry,
	msg string,
) error {
	data := new(QueueIngestMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to unmarshal ingest message: %w", err)
	}
	if data.Document.ID == "" || data.Document.CompanyID == "" {
		return fmt.Errorf("ingest message missing document or company id")
	}

	if data.Company != nil {
		if data.Company.ID != data.Document.CompanyID {
			return fmt.Errorf("company %s does not match document scope %s", data.Company.ID, data.Document.CompanyID)
		}
		if err := registry.UpsertCompany(ctx, *data.Company); err != nil {
			return err
		}
	}

	result := engine.ClassifyAndExtract(data.Document.ID, data.RawText, data.EntitySpans)

	outcome, err := coordinator.Commit(ctx, data.Document, data.RawText, result)
	if err != nil {
		if errors.Is(err, persist.ErrStaleVersion) {
			logger.Warn("[Queue] Stale extraction rejected",
				"company_id", data.Document.CompanyID,
				"document_id", data.Document.ID,
				"extractor_version", result.ExtractorVersion)
			return nil
		}
		return err
	}

	logger.Info("[Queue] Document committed",
		"company_id", data.Document.CompanyID,
		"document_id", outcome.DocumentID,
		"status", outcome.Status,
		"category", result.Category,
		"facts", len(result.Facts),
		"needs_review", result.NeedsReview)
	return nil
}
