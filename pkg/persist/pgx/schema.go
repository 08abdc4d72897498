package pgx

import (
	"context"
	"fmt"
)

// Schema is the relational-tier DDL. Reference rows are keyed by
// (company_id, document_id); everything derived from a graph build hangs off
// graph_generations so pruning a generation cascades.
const Schema = `
CREATE TABLE IF NOT EXISTS companies (
	id                  text PRIMARY KEY,
	legal_name          text NOT NULL,
	registration_number text NOT NULL DEFAULT '',
	tax_identifier      text NOT NULL DEFAULT '',
	status              text NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS document_records (
	company_id          text NOT NULL,
	document_id         text NOT NULL,
	category            text NOT NULL,
	category_confidence double precision NOT NULL,
	key_fact_summary    text NOT NULL DEFAULT '',
	extractor_version   integer NOT NULL,
	updated_at          timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, document_id)
);

CREATE TABLE IF NOT EXISTS graph_generations (
	generation text PRIMARY KEY,
	status     text NOT NULL DEFAULT 'pending',
	built_at   timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS relationship_edges (
	generation text NOT NULL REFERENCES graph_generations(generation) ON DELETE CASCADE,
	company_a  text NOT NULL,
	company_b  text NOT NULL,
	weight     double precision NOT NULL,
	evidence   jsonb NOT NULL DEFAULT '[]',
	PRIMARY KEY (generation, company_a, company_b)
);

CREATE TABLE IF NOT EXISTS centrality_scores (
	generation  text NOT NULL REFERENCES graph_generations(generation) ON DELETE CASCADE,
	company_id  text NOT NULL,
	degree      double precision NOT NULL,
	betweenness double precision NOT NULL,
	closeness   double precision NOT NULL,
	eigenvector double precision NOT NULL,
	pagerank    double precision NOT NULL,
	PRIMARY KEY (generation, company_id)
);

CREATE TABLE IF NOT EXISTS community_assignments (
	generation text NOT NULL REFERENCES graph_generations(generation) ON DELETE CASCADE,
	company_id text NOT NULL,
	community  integer NOT NULL,
	PRIMARY KEY (generation, company_id)
);

CREATE TABLE IF NOT EXISTS risk_scores (
	generation text NOT NULL REFERENCES graph_generations(generation) ON DELETE CASCADE,
	company_id text NOT NULL,
	score      double precision NOT NULL,
	PRIMARY KEY (generation, company_id)
);

CREATE TABLE IF NOT EXISTS batch_locks (
	lock_key   text PRIMARY KEY,
	locked_by  text NOT NULL,
	expires_at timestamptz NOT NULL
);
`

// EnsureSchema applies the DDL. Safe to run on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure relational schema: %w", err)
	}
	return nil
}
