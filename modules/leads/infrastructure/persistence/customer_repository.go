package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence/models"
	"github.com/iota-uz/leadrouter/pkg/composables"
)

type CustomerRepository struct{}

func NewCustomerRepository() lead.CustomerRepository {
	return &CustomerRepository{}
}

func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*lead.Customer, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var row models.Customer
	if err := tx.QueryRow(ctx, `
		SELECT id, external_id, name, created_at FROM customers WHERE id = $1
	`, id).Scan(&row.ID, &row.ExternalID, &row.Name, &row.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lead.ErrCustomerNotFound
		}
		return nil, errors.Wrap(err, "failed to get customer")
	}
	return toDomainCustomer(&row), nil
}

// GetOrCreate returns the customer with externalID, inserting it first when
// missing. The bool reports whether a row was inserted.
func (r *CustomerRepository) GetOrCreate(ctx context.Context, externalID, name string) (*lead.Customer, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, false, err
	}
	var row models.Customer
	err = tx.QueryRow(ctx, `
		INSERT INTO customers (external_id, name)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, external_id, name, created_at
	`, externalID, nullString(name)).Scan(&row.ID, &row.ExternalID, &row.Name, &row.CreatedAt)
	if err == nil {
		return toDomainCustomer(&row), true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, errors.Wrap(err, "failed to insert customer")
	}

	if err := tx.QueryRow(ctx, `
		SELECT id, external_id, name, created_at FROM customers WHERE external_id = $1
	`, externalID).Scan(&row.ID, &row.ExternalID, &row.Name, &row.CreatedAt); err != nil {
		return nil, false, errors.Wrap(err, "failed to load customer")
	}
	return toDomainCustomer(&row), false, nil
}
