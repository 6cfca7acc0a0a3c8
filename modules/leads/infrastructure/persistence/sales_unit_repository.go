package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/salesunit"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence/models"
	"github.com/iota-uz/leadrouter/pkg/composables"
)

const selectSalesUnitSQL = `SELECT id, name, type, active, created_at FROM sales_units`

type SalesUnitRepository struct{}

func NewSalesUnitRepository() salesunit.Repository {
	return &SalesUnitRepository{}
}

func (r *SalesUnitRepository) GetByID(ctx context.Context, id int64) (*salesunit.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var row models.SalesUnit
	if err := tx.QueryRow(ctx, selectSalesUnitSQL+` WHERE id = $1`, id).Scan(
		&row.ID, &row.Name, &row.Type, &row.Active, &row.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, salesunit.ErrUnitNotFound
		}
		return nil, errors.Wrap(err, "failed to get sales unit")
	}
	return toDomainSalesUnit(&row), nil
}

func (r *SalesUnitRepository) List(ctx context.Context, activeOnly bool) ([]*salesunit.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := selectSalesUnitSQL
	if activeOnly {
		query += ` WHERE active`
	}
	rows, err := tx.Query(ctx, query+` ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sales units")
	}
	defer rows.Close()

	var out []*salesunit.Unit
	for rows.Next() {
		var row models.SalesUnit
		if err := rows.Scan(&row.ID, &row.Name, &row.Type, &row.Active, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, toDomainSalesUnit(&row))
	}
	return out, rows.Err()
}
