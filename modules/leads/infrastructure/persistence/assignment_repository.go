package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence/models"
	"github.com/iota-uz/leadrouter/pkg/composables"
	"github.com/iota-uz/leadrouter/pkg/constants"
	"github.com/iota-uz/leadrouter/pkg/repo"
)

const (
	assignmentColumns = `id, lead_id, customer_id, unit_id, user_id, assigned_by, type, status,
		assigned_at, accepted_at, notes, config_snapshot, active, created_at, updated_at`
	selectAssignmentSQL = `SELECT ` + assignmentColumns + ` FROM lead_assignments`

	periodDay  = "day"
	periodWeek = "week"
)

// AssignmentRepository is the allocation ledger backed by lead_assignments and
// lead_allocation_counters.
type AssignmentRepository struct{}

func NewAssignmentRepository() assignment.Ledger {
	return &AssignmentRepository{}
}

func scanAssignment(row pgx.Row) (*assignment.Assignment, error) {
	var m models.Assignment
	if err := row.Scan(
		&m.ID,
		&m.LeadID,
		&m.CustomerID,
		&m.UnitID,
		&m.UserID,
		&m.AssignedBy,
		&m.Type,
		&m.Status,
		&m.AssignedAt,
		&m.AcceptedAt,
		&m.Notes,
		&m.ConfigSnapshot,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, assignment.ErrAssignmentNotFound
		}
		return nil, errors.Wrap(err, "failed to scan assignment")
	}
	return toDomainAssignment(&m)
}

// Create inserts a. When a is active, any other active assignment of the same
// lead is deactivated first.
func (r *AssignmentRepository) Create(ctx context.Context, a *assignment.Assignment) (*assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, err := toDBAssignment(a)
	if err != nil {
		return nil, err
	}
	if m.AssignedAt.IsZero() {
		m.AssignedAt = time.Now()
	}
	if m.Active {
		if _, err := tx.Exec(ctx, `
			UPDATE lead_assignments
			SET active = FALSE, status = $2, updated_at = now()
			WHERE lead_id = $1 AND active
		`, m.LeadID, string(assignment.StatusTransferred)); err != nil {
			return nil, errors.Wrap(err, "failed to supersede active assignment")
		}
	}
	return scanAssignment(tx.QueryRow(ctx, `
		INSERT INTO lead_assignments (
			lead_id, customer_id, unit_id, user_id, assigned_by, type, status,
			assigned_at, accepted_at, notes, config_snapshot, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+assignmentColumns,
		m.LeadID,
		m.CustomerID,
		m.UnitID,
		m.UserID,
		m.AssignedBy,
		m.Type,
		m.Status,
		m.AssignedAt,
		m.AcceptedAt,
		m.Notes,
		m.ConfigSnapshot,
		m.Active,
	))
}

func (r *AssignmentRepository) Update(ctx context.Context, a *assignment.Assignment) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	m, err := toDBAssignment(a)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE lead_assignments SET
			unit_id = $2,
			user_id = $3,
			assigned_by = $4,
			type = $5,
			status = $6,
			assigned_at = $7,
			accepted_at = $8,
			notes = $9,
			active = $10,
			updated_at = now()
		WHERE id = $1
	`,
		m.ID,
		m.UnitID,
		m.UserID,
		m.AssignedBy,
		m.Type,
		m.Status,
		m.AssignedAt,
		m.AcceptedAt,
		m.Notes,
		m.Active,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update assignment")
	}
	if tag.RowsAffected() == 0 {
		return assignment.ErrAssignmentNotFound
	}
	return nil
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return scanAssignment(tx.QueryRow(ctx, selectAssignmentSQL+` WHERE id = $1`, id))
}

func (r *AssignmentRepository) GetActiveByLead(ctx context.Context, leadID int64) (*assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return scanAssignment(tx.QueryRow(ctx, selectAssignmentSQL+`
		WHERE lead_id = $1 AND active
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1
	`, leadID))
}

// LockActiveByLead row-locks the active assignment of leadID. It must run inside a
// transaction; timeout bounds the wait and surfaces as lock_not_available.
func (r *AssignmentRepository) LockActiveByLead(ctx context.Context, leadID int64, timeout time.Duration) (*assignment.Assignment, error) {
	tx, err := composables.UseCurrentTx(ctx)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", timeout.Milliseconds())); err != nil {
			return nil, errors.Wrap(err, "failed to set lock_timeout")
		}
	}
	return scanAssignment(tx.QueryRow(ctx, selectAssignmentSQL+`
		WHERE lead_id = $1 AND active
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`, leadID))
}

func (r *AssignmentRepository) LatestActiveByCustomer(ctx context.Context, customerID int64) (*assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return scanAssignment(tx.QueryRow(ctx, selectAssignmentSQL+`
		WHERE customer_id = $1 AND active
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1
	`, customerID))
}

func (r *AssignmentRepository) LatestActiveByCustomerSince(ctx context.Context, customerID int64, since time.Time) (*assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return scanAssignment(tx.QueryRow(ctx, selectAssignmentSQL+`
		WHERE customer_id = $1 AND active AND assigned_at >= $2
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1
	`, customerID, since))
}

func (r *AssignmentRepository) Find(ctx context.Context, params *assignment.FindParams) ([]*assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	where, args := buildAssignmentFilters(params)
	query := selectAssignmentSQL
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit, offset := constants.MaxLimit, 0
	if params != nil {
		if params.Limit > 0 && params.Limit < limit {
			limit = params.Limit
		}
		offset = params.Offset
	}
	query = repo.Join(query, `ORDER BY assigned_at DESC, id DESC`, repo.FormatLimitOffset(limit, offset))

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find assignments")
	}
	defer rows.Close()

	var out []*assignment.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func buildAssignmentFilters(params *assignment.FindParams) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if params == nil {
		return where, args
	}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if params.UnitID != nil {
		add("unit_id = $%d", *params.UnitID)
	}
	if params.UserID != nil {
		add("user_id = $%d", *params.UserID)
	}
	if params.Active != nil {
		add("active = $%d", *params.Active)
	}
	if params.From != nil && !params.From.IsZero() {
		add("assigned_at >= $%d", *params.From)
	}
	if params.To != nil && !params.To.IsZero() {
		add("assigned_at < $%d", *params.To)
	}
	return where, args
}

// Counts reads the day and week counters of w.
func (r *AssignmentRepository) Counts(ctx context.Context, w assignment.Window) (assignment.Counts, error) {
	counts := assignment.Counts{Day: map[int64]int{}, Week: map[int64]int{}}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return counts, err
	}
	rows, err := tx.Query(ctx, `
		SELECT unit_id, period, allocated
		FROM lead_allocation_counters
		WHERE (period = 'day' AND period_start = $1::date)
		   OR (period = 'week' AND period_start = $2::date)
	`, w.Day.Format(time.DateOnly), w.WeekStart.Format(time.DateOnly))
	if err != nil {
		return counts, errors.Wrap(err, "failed to read allocation counters")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			unitID    int64
			period    string
			allocated int32
		)
		if err := rows.Scan(&unitID, &period, &allocated); err != nil {
			return counts, err
		}
		switch period {
		case periodDay:
			counts.Day[unitID] = int(allocated)
		case periodWeek:
			counts.Week[unitID] = int(allocated)
		}
	}
	return counts, rows.Err()
}

// IncrementCounters bumps both counters of unitID for w in one statement.
func (r *AssignmentRepository) IncrementCounters(ctx context.Context, unitID int64, w assignment.Window) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO lead_allocation_counters (unit_id, period, period_start, allocated)
		VALUES ($1, 'day', $2::date, 1), ($1, 'week', $3::date, 1)
		ON CONFLICT (unit_id, period, period_start)
		DO UPDATE SET allocated = lead_allocation_counters.allocated + 1
	`, unitID, w.Day.Format(time.DateOnly), w.WeekStart.Format(time.DateOnly))
	return errors.Wrap(err, "failed to increment allocation counters")
}
