package graph

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/logger"
	"github.com/sokograph/backend/pkg/persist"
)

// ErrBuildAborted wraps cancellation during a rebuild. The previously
// published generation remains authoritative.
var ErrBuildAborted = fmt.Errorf("graph build aborted")

// Analysis is one complete generation of derived analytics.
type Analysis struct {
	Generation  string
	BuiltAt     time.Time
	Edges       []common.RelationshipEdge
	Centrality  []common.CentralityScore
	Communities []common.CommunityAssignment
	Risk        []common.RiskScore
}

// Analyze computes centrality, communities and risk for a built graph under
// a fresh generation id. Cancellation is checked between stages; an aborted
// run returns ErrBuildAborted and nothing is persisted.
func Analyze(ctx context.Context, g *Graph) (Analysis, error) {
	generation, err := gonanoid.New()
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to mint generation id: %w", err)
	}

	a := Analysis{
		Generation: generation,
		BuiltAt:    time.Now().UTC(),
		Edges:      g.Edges(),
	}

	if err := checkpoint(ctx); err != nil {
		return Analysis{}, err
	}
	a.Centrality = g.Centrality()

	if err := checkpoint(ctx); err != nil {
		return Analysis{}, err
	}
	a.Communities = g.Communities()

	if err := checkpoint(ctx); err != nil {
		return Analysis{}, err
	}
	a.Risk = g.Risk(a.Centrality)

	for i := range a.Centrality {
		a.Centrality[i].Generation = generation
	}
	for i := range a.Communities {
		a.Communities[i].Generation = generation
	}
	for i := range a.Risk {
		a.Risk[i].Generation = generation
	}

	logger.Info("[Graph] Analysis complete",
		"generation", generation,
		"nodes", len(g.Nodes()),
		"edges", len(a.Edges))
	return a, nil
}

// Publish writes one analysis generation and swaps it in atomically. A
// failure before the swap discards the pending generation; the previously
// published one is untouched either way.
func Publish(ctx context.Context, store persist.GenerationStore, a Analysis) error {
	if err := store.CreateGeneration(ctx, a.Generation, a.BuiltAt); err != nil {
		return err
	}

	discard := func(cause error) error {
		if err := store.DiscardGeneration(context.WithoutCancel(ctx), a.Generation); err != nil {
			logger.Error("[Graph] Failed to discard pending generation", "generation", a.Generation, "err", err)
		}
		return cause
	}

	steps := []func() error{
		func() error { return store.SaveEdges(ctx, a.Generation, a.Edges) },
		func() error { return store.SaveCentrality(ctx, a.Centrality) },
		func() error { return store.SaveCommunities(ctx, a.Communities) },
		func() error { return store.SaveRisk(ctx, a.Risk) },
	}
	for _, step := range steps {
		if err := checkpoint(ctx); err != nil {
			return discard(err)
		}
		if err := step(); err != nil {
			return discard(err)
		}
	}

	if err := store.PublishGeneration(ctx, a.Generation); err != nil {
		return discard(err)
	}
	logger.Info("[Graph] Generation published", "generation", a.Generation)
	return nil
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBuildAborted, err)
	}
	return nil
}
