package queue

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/graph"
	"github.com/sokograph/backend/pkg/leaselock"
	"github.com/sokograph/backend/pkg/logger"
	"github.com/sokograph/backend/pkg/persist"
)

const analyzeLeaseKey = "graph_rebuild"

// resolveConcurrency bounds parallel document-tier reads during a rebuild.
const resolveConcurrency = 8

// GraphSource provides the cross-company inputs of a rebuild.
type GraphSource interface {
	ListCompanies(ctx context.Context) ([]common.Company, error)
	ListAllRecords(ctx context.Context) ([]common.RelationalRecord, error)
}

// ProcessAnalyzeMessage rebuilds the relationship graph from scratch and
// publishes a new analytics generation, single-writer under the rebuild
// lease. Cancellation or failure before the publish swap leaves the previous
// generation authoritative.
func ProcessAnalyzeMessage(
	ctx context.Context,
	lock *leaselock.Client,
	source GraphSource,
	coordinator *persist.Coordinator,
	generations persist.GenerationStore,
) error {
	err := lock.WithLease(ctx, analyzeLeaseKey, leaselock.Options{
		TTL:         15 * time.Minute,
		TokenPrefix: "analyze_",
	}, func(ctx context.Context) error {
		companies, err := source.ListCompanies(ctx)
		if err != nil {
			return err
		}
		rows, err := source.ListAllRecords(ctx)
		if err != nil {
			return err
		}

		docs, err := resolveAll(ctx, coordinator, rows)
		if err != nil {
			return err
		}

		g := graph.Build(companies, docs)
		analysis, err := graph.Analyze(ctx, g)
		if err != nil {
			return err
		}
		return graph.Publish(ctx, generations, analysis)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Graph rebuild already running elsewhere")
		return nil
	}
	return err
}

// resolveAll follows every reference row to its document payload. A missing
// payload is a consistency violation and aborts the rebuild; the graph must
// never be built from a partial snapshot.
func resolveAll(ctx context.Context, coordinator *persist.Coordinator, rows []common.RelationalRecord) ([]common.DocumentRecord, error) {
	docs := make([]common.DocumentRecord, len(rows))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(resolveConcurrency)
	for i, row := range rows {
		eg.Go(func() error {
			rec, err := coordinator.Resolve(ctx, row.CompanyID, row.DocumentID)
			if err != nil {
				return err
			}
			docs[i] = rec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}
