package common

import "time"

// FactKind identifies the type of an extracted datum.
type FactKind string

const (
	FactAmount          FactKind = "amount"
	FactTaxID           FactKind = "tax_id"
	FactRegistrationRef FactKind = "registration_ref"
	FactDate            FactKind = "date"
	FactPartyName       FactKind = "party_name"
	FactGovernmentCode  FactKind = "government_code"
)

// IsIdentifier reports whether k is an identifier kind. Identifiers take
// precedence during span-overlap resolution and are the only kinds the graph
// builder links companies on.
func (k FactKind) IsIdentifier() bool {
	switch k {
	case FactTaxID, FactRegistrationRef, FactGovernmentCode:
		return true
	}
	return false
}

// Category is the document type assigned by classification.
type Category string

const (
	CategoryInvoice     Category = "invoice"
	CategoryContract    Category = "contract"
	CategoryTender      Category = "tender"
	CategoryCertificate Category = "certificate"
	CategoryStatement   Category = "statement"
	CategoryReceipt     Category = "receipt"
	CategoryOther       Category = "other"
)

// Company is the identity record every scoped entity hangs off. The ID is
// immutable and globally unique; all document reads and writes must carry it.
type Company struct {
	ID                 string `json:"id"`
	LegalName          string `json:"legal_name"`
	RegistrationNumber string `json:"registration_number"`
	TaxIdentifier      string `json:"tax_identifier"`
	Status             string `json:"status"`
}

// SourceDocument describes an ingested document. Immutable once stored;
// RawContentRef points at the original payload in the document tier.
type SourceDocument struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"company_id"`
	MediaType     string    `json:"media_type"`
	RawContentRef string    `json:"raw_content_ref"`
	IngestionTime time.Time `json:"ingestion_time"`
}

// Fact is a single typed, confidence-scored extracted datum. Facts are
// immutable once attached to an ExtractionResult.
type Fact struct {
	Kind            FactKind `json:"kind"`
	NormalizedValue string   `json:"normalized_value"`
	RawSpan         string   `json:"raw_span"`
	Confidence      float64  `json:"confidence"`
}

// ExtractionResult is the output of classification and extraction for one
// document. A result supersedes a prior result for the same document only
// when its ExtractorVersion is strictly greater.
type ExtractionResult struct {
	DocumentID         string    `json:"document_id"`
	Category           Category  `json:"category"`
	CategoryConfidence float64   `json:"category_confidence"`
	NeedsReview        bool      `json:"needs_review"`
	Facts              []Fact    `json:"facts"`
	ExtractionTime     time.Time `json:"extraction_time"`
	ExtractorVersion   int       `json:"extractor_version"`
}

// RelationalRecord is the lightweight reference row in the relational tier.
// It is disposable and reconstructable from the DocumentRecord, never the
// reverse, and must always resolve to exactly one DocumentRecord.
type RelationalRecord struct {
	DocumentID         string   `json:"document_id"`
	CompanyID          string   `json:"company_id"`
	Category           Category `json:"category"`
	CategoryConfidence float64  `json:"category_confidence"`
	KeyFactSummary     string   `json:"key_fact_summary"`
	ExtractorVersion   int      `json:"extractor_version"`
}

// Provenance records where a DocumentRecord's content came from.
type Provenance struct {
	MediaType        string    `json:"media_type"`
	RawContentRef    string    `json:"raw_content_ref"`
	IngestionTime    time.Time `json:"ingestion_time"`
	ExtractorVersion int       `json:"extractor_version"`
	ExtractionTime   time.Time `json:"extraction_time"`
}

// DocumentRecord is the full payload in the document tier and the canonical
// source of truth for fact content.
type DocumentRecord struct {
	DocumentID         string     `json:"document_id"`
	CompanyID          string     `json:"company_id"`
	RawText            string     `json:"raw_text"`
	Category           Category   `json:"category"`
	CategoryConfidence float64    `json:"category_confidence"`
	Facts              []Fact     `json:"facts"`
	Provenance         Provenance `json:"provenance"`
}

// CommitStatus is the terminal state of a two-tier commit.
type CommitStatus string

const (
	// CommitCommitted means both tiers hold the record.
	CommitCommitted CommitStatus = "committed"
	// CommitPartial means the document tier holds the record but the
	// relational row is missing; the reconciliation sweep will repair it.
	CommitPartial CommitStatus = "partial"
	// CommitFailed means nothing was persisted and the caller may retry.
	CommitFailed CommitStatus = "failed"
	// CommitRejectedStale means a stale extractor version attempted a
	// rewrite and the stored result was left untouched.
	CommitRejectedStale CommitStatus = "rejected_stale"
)

// CommitOutcome is returned to the upload layer after a commit attempt.
// DocumentID is stable across retries of the same document.
type CommitOutcome struct {
	DocumentID string       `json:"document_id"`
	Status     CommitStatus `json:"status"`
}

// FactRef points back at a persisted fact used as edge evidence.
type FactRef struct {
	DocumentID      string   `json:"document_id"`
	CompanyID       string   `json:"company_id"`
	Kind            FactKind `json:"kind"`
	NormalizedValue string   `json:"normalized_value"`
	Confidence      float64  `json:"confidence"`
}

// RelationshipEdge is an undirected weighted edge between two companies,
// derived from shared identifier facts or declared counterparty mentions.
// Edges are recomputed wholesale on each graph rebuild, never patched.
type RelationshipEdge struct {
	CompanyA string    `json:"company_a"`
	CompanyB string    `json:"company_b"`
	Weight   float64   `json:"weight"`
	Evidence []FactRef `json:"evidence"`
}

// CentralityScore holds the per-company centrality measures for one graph
// generation.
type CentralityScore struct {
	CompanyID   string  `json:"company_id"`
	Generation  string  `json:"generation"`
	Degree      float64 `json:"degree"`
	Betweenness float64 `json:"betweenness"`
	Closeness   float64 `json:"closeness"`
	Eigenvector float64 `json:"eigenvector"`
	PageRank    float64 `json:"pagerank"`
}

// CommunityAssignment places a company in a detected community for one graph
// generation.
type CommunityAssignment struct {
	CompanyID  string `json:"company_id"`
	Generation string `json:"generation"`
	Community  int    `json:"community"`
}

// RiskScore is the derived per-company risk for one graph generation.
type RiskScore struct {
	CompanyID  string  `json:"company_id"`
	Generation string  `json:"generation"`
	Score      float64 `json:"score"`
}
