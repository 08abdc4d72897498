// Package persist owns the consistency protocol between the two persistence
// tiers: the document tier holding full payloads (source of truth) and the
// relational tier holding lightweight, queryable reference rows. There is no
// shared transaction across the tiers; the coordinator makes the failure
// modes enumerable instead.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/logger"
)

// DocumentStore is the document tier. Implementations must scope every key
// by company and must treat orphan markers as separate from payloads, so a
// failed relational write never destroys a document.
type DocumentStore interface {
	PutDocument(ctx context.Context, rec common.DocumentRecord) error
	GetDocument(ctx context.Context, companyID, documentID string) (common.DocumentRecord, error)
	DeleteDocument(ctx context.Context, companyID, documentID string) error

	MarkOrphaned(ctx context.Context, companyID, documentID string, at time.Time) error
	ClearOrphan(ctx context.Context, companyID, documentID string) error
	ListOrphans(ctx context.Context) ([]OrphanRef, error)
}

// RelationalStore is the relational tier of reference rows.
type RelationalStore interface {
	UpsertRecord(ctx context.Context, rec common.RelationalRecord) error
	GetRecord(ctx context.Context, companyID, documentID string) (common.RelationalRecord, error)
	ListRecords(ctx context.Context, companyID string) ([]common.RelationalRecord, error)
	ListAllRecords(ctx context.Context) ([]common.RelationalRecord, error)
}

// OrphanRef identifies a document-tier record whose relational row is
// missing.
type OrphanRef struct {
	CompanyID  string
	DocumentID string
	OrphanedAt time.Time
}

// defaultOrphanRetention is how long an orphaned document whose payload
// cannot be read back is kept before the sweep removes it.
const defaultOrphanRetention = 72 * time.Hour

// Coordinator drives the ordered two-tier write and the reads that resolve
// reference rows back to payloads.
type Coordinator struct {
	docs      DocumentStore
	rel       RelationalStore
	retention time.Duration
	now       func() time.Time
}

type CoordinatorOption func(*Coordinator)

// WithOrphanRetention overrides the retention window for unrepairable
// orphans.
func WithOrphanRetention(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.retention = d
	}
}

func withClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator wires a coordinator over the two tier backends.
func NewCoordinator(docs DocumentStore, rel RelationalStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		docs:      docs,
		rel:       rel,
		retention: defaultOrphanRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// Commit persists one document and its extraction result across both tiers.
// The document tier is written first: the relational row is disposable and
// reconstructable from the document, never the reverse, so the tier that is
// harder to regenerate goes in first. A failed relational write leaves the
// document marked orphaned for the reconciliation sweep.
func (c *Coordinator) Commit(ctx context.Context, doc common.SourceDocument, rawText string, res common.ExtractionResult) (common.CommitOutcome, error) {
	if doc.CompanyID == "" {
		return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitFailed},
			fmt.Errorf("commit requires a company scope")
	}
	if doc.ID == "" || doc.ID != res.DocumentID {
		return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitFailed},
			fmt.Errorf("document id %q does not match extraction result %q", doc.ID, res.DocumentID)
	}

	// Version guard. The relational row is checked first, but after a
	// partial commit the row is missing while the document tier still holds
	// the stored version, so an absent row falls back to the document tier.
	// A guard that cannot read the stored version fails the commit; it never
	// lets a write through unchecked.
	existing, err := c.rel.GetRecord(ctx, doc.CompanyID, doc.ID)
	switch {
	case err == nil:
		if existing.ExtractorVersion >= res.ExtractorVersion {
			return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitRejectedStale},
				fmt.Errorf("stored version %d >= incoming %d: %w", existing.ExtractorVersion, res.ExtractorVersion, ErrStaleVersion)
		}
	case errors.Is(err, ErrNotFound):
		stored, docErr := c.docs.GetDocument(ctx, doc.CompanyID, doc.ID)
		switch {
		case docErr == nil:
			if stored.Provenance.ExtractorVersion >= res.ExtractorVersion {
				return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitRejectedStale},
					fmt.Errorf("stored version %d >= incoming %d: %w", stored.Provenance.ExtractorVersion, res.ExtractorVersion, ErrStaleVersion)
			}
		case !errors.Is(docErr, ErrNotFound):
			return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitFailed},
				fmt.Errorf("version guard could not read stored document %s: %w", doc.ID, docErr)
		}
	default:
		return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitFailed},
			fmt.Errorf("version guard could not read reference row %s: %w", doc.ID, err)
	}

	record := common.DocumentRecord{
		DocumentID:         doc.ID,
		CompanyID:          doc.CompanyID,
		RawText:            rawText,
		Category:           res.Category,
		CategoryConfidence: res.CategoryConfidence,
		Facts:              res.Facts,
		Provenance: common.Provenance{
			MediaType:        doc.MediaType,
			RawContentRef:    doc.RawContentRef,
			IngestionTime:    doc.IngestionTime,
			ExtractorVersion: res.ExtractorVersion,
			ExtractionTime:   res.ExtractionTime,
		},
	}

	if err := c.docs.PutDocument(ctx, record); err != nil {
		return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitFailed},
			fmt.Errorf("%w: %v", ErrCommitDocumentFailure, err)
	}

	row := common.RelationalRecord{
		DocumentID:         doc.ID,
		CompanyID:          doc.CompanyID,
		Category:           res.Category,
		CategoryConfidence: res.CategoryConfidence,
		KeyFactSummary:     KeyFactSummary(res.Facts),
		ExtractorVersion:   res.ExtractorVersion,
	}
	if err := c.rel.UpsertRecord(ctx, row); err != nil {
		if markErr := c.docs.MarkOrphaned(ctx, doc.CompanyID, doc.ID, c.now().UTC()); markErr != nil {
			logger.Error("[Persist] Failed to mark orphaned document", "document_id", doc.ID, "err", markErr)
		}
		return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitPartial},
			fmt.Errorf("%w: %v", ErrCommitPartialFailure, err)
	}

	return common.CommitOutcome{DocumentID: doc.ID, Status: common.CommitCommitted}, nil
}

// Resolve follows a relational reference row to its document payload. A row
// whose target payload is missing is a fatal consistency violation and is
// surfaced, never skipped.
func (c *Coordinator) Resolve(ctx context.Context, companyID, documentID string) (common.DocumentRecord, error) {
	if companyID == "" {
		return common.DocumentRecord{}, fmt.Errorf("resolve requires a company scope")
	}

	row, err := c.rel.GetRecord(ctx, companyID, documentID)
	if err != nil {
		return common.DocumentRecord{}, err
	}
	if row.CompanyID != companyID {
		return common.DocumentRecord{}, fmt.Errorf("relational record %s: %w", documentID, ErrCompanyScope)
	}

	rec, err := c.docs.GetDocument(ctx, companyID, documentID)
	if err != nil {
		logger.Error("[Persist] Consistency violation", "company_id", companyID, "document_id", documentID, "err", err)
		return common.DocumentRecord{}, fmt.Errorf("document %s: %w", documentID, ErrConsistencyViolation)
	}
	if rec.CompanyID != companyID {
		return common.DocumentRecord{}, fmt.Errorf("document record %s: %w", documentID, ErrCompanyScope)
	}
	return rec, nil
}

// ListCompanyRecords returns the reference rows for one company. The company
// scope is re-validated on every returned row.
func (c *Coordinator) ListCompanyRecords(ctx context.Context, companyID string) ([]common.RelationalRecord, error) {
	if companyID == "" {
		return nil, fmt.Errorf("listing requires a company scope")
	}
	rows, err := c.rel.ListRecords(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.CompanyID != companyID {
			return nil, fmt.Errorf("relational record %s: %w", row.DocumentID, ErrCompanyScope)
		}
	}
	return rows, nil
}

// KeyFactSummary builds the compact fact digest stored on the reference row:
// the highest-confidence fact per identifier kind plus the highest-confidence
// amount.
func KeyFactSummary(facts []common.Fact) string {
	bestByKind := make(map[common.FactKind]common.Fact)
	for _, f := range facts {
		if !f.Kind.IsIdentifier() && f.Kind != common.FactAmount {
			continue
		}
		best, ok := bestByKind[f.Kind]
		if !ok || f.Confidence > best.Confidence {
			bestByKind[f.Kind] = f
		}
	}

	order := []common.FactKind{common.FactTaxID, common.FactRegistrationRef, common.FactGovernmentCode, common.FactAmount}
	parts := make([]string, 0, len(order))
	for _, kind := range order {
		if f, ok := bestByKind[kind]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", kind, f.NormalizedValue))
		}
	}
	return strings.Join(parts, " ")
}
