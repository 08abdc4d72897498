package persist

import (
	"context"
	"time"

	"github.com/sokograph/backend/pkg/common"
)

// GenerationStore persists derived graph analytics, versioned by generation.
// A generation is written fully as pending and becomes visible only through
// the atomic publish swap; a cancelled build discards its pending generation
// and the previous published one stays authoritative.
type GenerationStore interface {
	CreateGeneration(ctx context.Context, generation string, builtAt time.Time) error
	SaveEdges(ctx context.Context, generation string, edges []common.RelationshipEdge) error
	SaveCentrality(ctx context.Context, scores []common.CentralityScore) error
	SaveCommunities(ctx context.Context, assignments []common.CommunityAssignment) error
	SaveRisk(ctx context.Context, scores []common.RiskScore) error

	// PublishGeneration atomically swaps the pending generation in as the
	// published one and prunes superseded generations.
	PublishGeneration(ctx context.Context, generation string) error
	// DiscardGeneration drops an unpublished generation and everything
	// tagged with it.
	DiscardGeneration(ctx context.Context, generation string) error
	// CurrentGeneration returns the published generation, or ErrNotFound
	// when none has been published yet.
	CurrentGeneration(ctx context.Context) (string, error)
}
