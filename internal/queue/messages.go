package queue

import (
	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/extract"
)

// QueueIngestMsg carries one document through extraction and commit. RawText
// is the already-extracted plain text from the OCR layer; EntitySpans are
// optional model-suggested spans and may be empty. Company, when present,
// registers or refreshes the company identity record before the commit.
type QueueIngestMsg struct {
	Message     string                `json:"message"`
	Company     *common.Company       `json:"company,omitempty"`
	Document    common.SourceDocument `json:"document"`
	RawText     string                `json:"raw_text"`
	EntitySpans []extract.EntitySpan  `json:"entity_spans,omitempty"`
}

// QueueReconcileMsg triggers one orphan sweep.
type QueueReconcileMsg struct {
	Message string `json:"message"`
}

// QueueAnalyzeMsg triggers one full graph rebuild and generation publish.
type QueueAnalyzeMsg struct {
	Message string `json:"message"`
}
