// Package pgx implements the relational tier and the graph generation store
// on Postgres.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/persist"
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements persist.RelationalStore and persist.GenerationStore over a
// pgx connection pool.
type Store struct {
	conn *pgxpool.Pool
}

var (
	_ persist.RelationalStore = (*Store)(nil)
	_ persist.GenerationStore = (*Store)(nil)
)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{conn: pool}
}

// NewPool connects to Postgres and verifies the connection.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// UpsertRecord writes a reference row, replacing any previous row for the
// same (company, document) pair.
func (s *Store) UpsertRecord(ctx context.Context, rec common.RelationalRecord) error {
	query, args, err := qb.Insert("document_records").
		Columns("company_id", "document_id", "category", "category_confidence", "key_fact_summary", "extractor_version", "updated_at").
		Values(rec.CompanyID, rec.DocumentID, string(rec.Category), rec.CategoryConfidence, rec.KeyFactSummary, rec.ExtractorVersion, time.Now().UTC()).
		Suffix(`ON CONFLICT (company_id, document_id) DO UPDATE SET
			category = EXCLUDED.category,
			category_confidence = EXCLUDED.category_confidence,
			key_fact_summary = EXCLUDED.key_fact_summary,
			extractor_version = EXCLUDED.extractor_version,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert query: %w", err)
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert reference row: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, companyID, documentID string) (common.RelationalRecord, error) {
	query, args, err := qb.Select("company_id", "document_id", "category", "category_confidence", "key_fact_summary", "extractor_version").
		From("document_records").
		Where(sq.Eq{"company_id": companyID, "document_id": documentID}).
		ToSql()
	if err != nil {
		return common.RelationalRecord{}, fmt.Errorf("failed to build select query: %w", err)
	}

	var rec common.RelationalRecord
	err = s.conn.QueryRow(ctx, query, args...).Scan(
		&rec.CompanyID, &rec.DocumentID, &rec.Category, &rec.CategoryConfidence, &rec.KeyFactSummary, &rec.ExtractorVersion,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.RelationalRecord{}, persist.ErrNotFound
		}
		return common.RelationalRecord{}, fmt.Errorf("failed to get reference row: %w", err)
	}
	return rec, nil
}

// ListRecords returns all reference rows for one company, ordered by
// document id for deterministic iteration.
func (s *Store) ListRecords(ctx context.Context, companyID string) ([]common.RelationalRecord, error) {
	return s.listRecords(ctx, sq.Eq{"company_id": companyID})
}

// ListAllRecords returns every reference row. Used only by the graph
// builder, which crosses company scopes on purpose.
func (s *Store) ListAllRecords(ctx context.Context) ([]common.RelationalRecord, error) {
	return s.listRecords(ctx, nil)
}

func (s *Store) listRecords(ctx context.Context, where any) ([]common.RelationalRecord, error) {
	builder := qb.Select("company_id", "document_id", "category", "category_confidence", "key_fact_summary", "extractor_version").
		From("document_records").
		OrderBy("company_id", "document_id")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference rows: %w", err)
	}
	defer rows.Close()

	var records []common.RelationalRecord
	for rows.Next() {
		var rec common.RelationalRecord
		if err := rows.Scan(&rec.CompanyID, &rec.DocumentID, &rec.Category, &rec.CategoryConfidence, &rec.KeyFactSummary, &rec.ExtractorVersion); err != nil {
			return nil, fmt.Errorf("failed to scan reference row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reference rows: %w", err)
	}
	return records, nil
}

const (
	generationPending   = "pending"
	generationPublished = "published"
)

// CreateGeneration registers a new pending generation. Everything written
// under it stays invisible until PublishGeneration.
func (s *Store) CreateGeneration(ctx context.Context, generation string, builtAt time.Time) error {
	query, args, err := qb.Insert("graph_generations").
		Columns("generation", "status", "built_at").
		Values(generation, generationPending, builtAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build generation insert: %w", err)
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create generation %s: %w", generation, err)
	}
	return nil
}

func (s *Store) SaveEdges(ctx context.Context, generation string, edges []common.RelationshipEdge) error {
	if len(edges) == 0 {
		return nil
	}
	builder := qb.Insert("relationship_edges").
		Columns("generation", "company_a", "company_b", "weight", "evidence")
	for _, e := range edges {
		evidence, err := json.Marshal(e.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal edge evidence: %w", err)
		}
		builder = builder.Values(generation, e.CompanyA, e.CompanyB, e.Weight, evidence)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build edge insert: %w", err)
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save edges: %w", err)
	}
	return nil
}

func (s *Store) SaveCentrality(ctx context.Context, scores []common.CentralityScore) error {
	if len(scores) == 0 {
		return nil
	}
	builder := qb.Insert("centrality_scores").
		Columns("generation", "company_id", "degree", "betweenness", "closeness", "eigenvector", "pagerank")
	for _, sc := range scores {
		builder = builder.Values(sc.Generation, sc.CompanyID, sc.Degree, sc.Betweenness, sc.Closeness, sc.Eigenvector, sc.PageRank)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build centrality insert: %w", err)
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save centrality scores: %w", err)
	}
	return nil
}

func (s *Store) SaveCommunities(ctx context.Context, assignments []common.CommunityAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	builder := qb.Insert("community_assignments").
		Columns("generation", "company_id", "community")
	for _, a := range assignments {
		builder = builder.Values(a.Generation, a.CompanyID, a.Community)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build community insert: %w", err)
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save community assignments: %w", err)
	}
	return nil
}

func (s *Store) SaveRisk(ctx context.Context, scores []common.RiskScore) error {
	if len(scores) == 0 {
		return nil
	}
	builder := qb.Insert("risk_scores").
		Columns("generation", "company_id", "score")
	for _, sc := range scores {
		builder = builder.Values(sc.Generation, sc.CompanyID, sc.Score)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build risk insert: %w", err)
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save risk scores: %w", err)
	}
	return nil
}

// PublishGeneration promotes a pending generation and demotes the previous
// published one in a single transaction, so readers switch between complete
// snapshots and never observe a mix. Superseded generations are pruned by
// cascade.
func (s *Store) PublishGeneration(ctx context.Context, generation string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE graph_generations SET status = 'superseded' WHERE status = $1`,
		generationPublished,
	); err != nil {
		return fmt.Errorf("failed to demote published generation: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE graph_generations SET status = $1 WHERE generation = $2 AND status = $3`,
		generationPublished, generation, generationPending,
	)
	if err != nil {
		return fmt.Errorf("failed to promote generation %s: %w", generation, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("generation %s is not pending: %w", generation, persist.ErrNotFound)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM graph_generations WHERE status = 'superseded'`,
	); err != nil {
		return fmt.Errorf("failed to prune superseded generations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit publish transaction: %w", err)
	}
	return nil
}

// DiscardGeneration removes an unpublished generation. The published one is
// never discarded through this path.
func (s *Store) DiscardGeneration(ctx context.Context, generation string) error {
	_, err := s.conn.Exec(ctx,
		`DELETE FROM graph_generations WHERE generation = $1 AND status <> $2`,
		generation, generationPublished,
	)
	if err != nil {
		return fmt.Errorf("failed to discard generation %s: %w", generation, err)
	}
	return nil
}

func (s *Store) CurrentGeneration(ctx context.Context) (string, error) {
	var generation string
	err := s.conn.QueryRow(ctx,
		`SELECT generation FROM graph_generations WHERE status = $1`,
		generationPublished,
	).Scan(&generation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", persist.ErrNotFound
		}
		return "", fmt.Errorf("failed to get published generation: %w", err)
	}
	return generation, nil
}
