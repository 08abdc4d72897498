package pgx

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/persist"
)

// UpsertCompany registers or refreshes a company identity record. The id is
// immutable; everything else follows the latest write.
func (s *Store) UpsertCompany(ctx context.Context, c common.Company) error {
	if c.ID == "" {
		return fmt.Errorf("company requires an id")
	}
	query, args, err := qb.Insert("companies").
		Columns("id", "legal_name", "registration_number", "tax_identifier", "status").
		Values(c.ID, c.LegalName, c.RegistrationNumber, c.TaxIdentifier, c.Status).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			legal_name = EXCLUDED.legal_name,
			registration_number = EXCLUDED.registration_number,
			tax_identifier = EXCLUDED.tax_identifier,
			status = EXCLUDED.status`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build company upsert: %w", err)
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert company %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetCompany(ctx context.Context, companyID string) (common.Company, error) {
	query, args, err := qb.Select("id", "legal_name", "registration_number", "tax_identifier", "status").
		From("companies").
		Where(sq.Eq{"id": companyID}).
		ToSql()
	if err != nil {
		return common.Company{}, fmt.Errorf("failed to build company select: %w", err)
	}

	var c common.Company
	err = s.conn.QueryRow(ctx, query, args...).Scan(&c.ID, &c.LegalName, &c.RegistrationNumber, &c.TaxIdentifier, &c.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Company{}, persist.ErrNotFound
		}
		return common.Company{}, fmt.Errorf("failed to get company %s: %w", companyID, err)
	}
	return c, nil
}

// ListCompanies returns every registered company ordered by id. Used by the
// graph rebuild, which operates cross-company.
func (s *Store) ListCompanies(ctx context.Context) ([]common.Company, error) {
	query, args, err := qb.Select("id", "legal_name", "registration_number", "tax_identifier", "status").
		From("companies").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build company list: %w", err)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []common.Company
	for rows.Next() {
		var c common.Company
		if err := rows.Scan(&c.ID, &c.LegalName, &c.RegistrationNumber, &c.TaxIdentifier, &c.Status); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read companies: %w", err)
	}
	return companies, nil
}
