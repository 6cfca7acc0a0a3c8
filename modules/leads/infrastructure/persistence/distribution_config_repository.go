package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence/models"
	"github.com/iota-uz/leadrouter/pkg/composables"
)

const selectConfigSQL = `
	SELECT c.unit_id, u.name, c.weight::text, c.active_for_leads, c.max_per_day, c.max_per_week,
	       c.notes, c.created_by, c.updated_by, c.created_at, c.updated_at
	FROM lead_distribution_configs c
	JOIN sales_units u ON u.id = c.unit_id`

type DistributionConfigRepository struct{}

func NewDistributionConfigRepository() distribution.Repository {
	return &DistributionConfigRepository{}
}

func scanConfig(row pgx.Row) (distribution.Config, error) {
	var m models.DistributionConfig
	if err := row.Scan(
		&m.UnitID,
		&m.UnitName,
		&m.Weight,
		&m.ActiveForLeads,
		&m.MaxPerDay,
		&m.MaxPerWeek,
		&m.Notes,
		&m.CreatedBy,
		&m.UpdatedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return distribution.Config{}, err
	}
	return toDomainConfig(&m)
}

func (r *DistributionConfigRepository) queryConfigs(ctx context.Context, where string) ([]distribution.Config, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, selectConfigSQL+where+` ORDER BY u.name, c.unit_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list distribution configs")
	}
	defer rows.Close()

	var out []distribution.Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (r *DistributionConfigRepository) List(ctx context.Context) ([]distribution.Config, error) {
	return r.queryConfigs(ctx, "")
}

// ListActive returns configs that take part in allocation: the unit is active
// and the config is active for leads.
func (r *DistributionConfigRepository) ListActive(ctx context.Context) ([]distribution.Config, error) {
	return r.queryConfigs(ctx, ` WHERE c.active_for_leads AND u.active`)
}

func (r *DistributionConfigRepository) GetByUnit(ctx context.Context, unitID int64) (*distribution.Config, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := scanConfig(tx.QueryRow(ctx, selectConfigSQL+` WHERE c.unit_id = $1`, unitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, distribution.ErrConfigNotFound
		}
		return nil, errors.Wrap(err, "failed to get distribution config")
	}
	return &cfg, nil
}
