package persistence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence/models"
	"github.com/iota-uz/leadrouter/pkg/composables"
)

const selectLeadSQL = `
	SELECT id, customer_id, source, priority, state, interest, notes, active, created_at, updated_at
	FROM leads`

type LeadRepository struct{}

func NewLeadRepository() lead.Repository {
	return &LeadRepository{}
}

func scanLead(row pgx.Row) (*lead.Lead, error) {
	var m models.Lead
	if err := row.Scan(
		&m.ID,
		&m.CustomerID,
		&m.Source,
		&m.Priority,
		&m.State,
		&m.Interest,
		&m.Notes,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lead.ErrLeadNotFound
		}
		return nil, errors.Wrap(err, "failed to scan lead")
	}
	return toDomainLead(&m), nil
}

func (r *LeadRepository) Create(ctx context.Context, l *lead.Lead) (*lead.Lead, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m := toDBLead(l)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return scanLead(tx.QueryRow(ctx, `
		INSERT INTO leads (customer_id, source, priority, state, interest, notes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, customer_id, source, priority, state, interest, notes, active, created_at, updated_at
	`,
		m.CustomerID,
		m.Source,
		m.Priority,
		m.State,
		m.Interest,
		m.Notes,
		m.Active,
		m.CreatedAt,
	))
}

func (r *LeadRepository) GetByID(ctx context.Context, id int64) (*lead.Lead, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return scanLead(tx.QueryRow(ctx, selectLeadSQL+` WHERE id = $1`, id))
}

// UpdateState sets the lead state and appends appendNote, if any, on a new line.
func (r *LeadRepository) UpdateState(ctx context.Context, id int64, state lead.State, appendNote string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET
			state = $2,
			notes = CASE
				WHEN $3::text = '' THEN notes
				WHEN COALESCE(notes, '') = '' THEN $3
				ELSE notes || E'\n' || $3
			END,
			updated_at = now()
		WHERE id = $1
	`, id, string(state), appendNote)
	if err != nil {
		return errors.Wrap(err, "failed to update lead state")
	}
	if tag.RowsAffected() == 0 {
		return lead.ErrLeadNotFound
	}
	return nil
}

func (r *LeadRepository) LatestByCustomerSince(ctx context.Context, customerID int64, since time.Time) (*lead.Lead, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return scanLead(tx.QueryRow(ctx, selectLeadSQL+`
		WHERE customer_id = $1 AND active AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, customerID, since))
}
