package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/pkg/composables"
)

func assignmentRow(id, leadID int64, userID *int64, snapshot []byte, at time.Time) []any {
	return []any{
		id, leadID, int64(7), int64(3), userID, (*int64)(nil),
		"AUTOMATIC", "ASSIGNED", at, (*time.Time)(nil), (*string)(nil),
		snapshot, true, at, at,
	}
}

func TestAssignmentRepository_CreateSupersedesAndStoresSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var insertArgs []any
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "INSERT INTO lead_assignments")
			insertArgs = args
			return stubRow{values: assignmentRow(11, 5, nil, args[10].([]byte), now)}
		},
	}
	ctx := composables.WithTx(context.Background(), tx)

	created, err := NewAssignmentRepository().Create(ctx, &assignment.Assignment{
		LeadID:     5,
		CustomerID: 7,
		UnitID:     3,
		Type:       assignment.TypeAutomatic,
		Status:     assignment.StatusAssigned,
		AssignedAt: now,
		Active:     true,
		Snapshot:   &assignment.Snapshot{Weight: "40", Deficit: "0.4000", TotalToday: 0},
	})
	require.NoError(t, err)

	require.Len(t, tx.execs, 1)
	require.Contains(t, tx.execs[0].sql, "SET active = FALSE")
	require.Equal(t, int64(5), tx.execs[0].args[0])
	require.Equal(t, "TRANSFERRED", tx.execs[0].args[1])

	var snap map[string]any
	require.NoError(t, json.Unmarshal(insertArgs[10].([]byte), &snap))
	require.Equal(t, "40", snap["weight"])

	require.Equal(t, int64(11), created.ID)
	require.NotNil(t, created.Snapshot)
	require.Equal(t, "0.4000", created.Snapshot.Deficit)
	require.True(t, created.UnitOnly())
}

func TestAssignmentRepository_LockActiveByLead(t *testing.T) {
	_, err := NewAssignmentRepository().LockActiveByLead(context.Background(), 5, time.Second)
	require.ErrorIs(t, err, composables.ErrNoTx)

	userID := int64(300)
	now := time.Now()
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "FOR UPDATE")
			require.Equal(t, int64(5), args[0])
			return stubRow{values: assignmentRow(11, 5, &userID, nil, now)}
		},
	}
	ctx := composables.WithTx(context.Background(), tx)
	a, err := NewAssignmentRepository().LockActiveByLead(ctx, 5, 1500*time.Millisecond)
	require.NoError(t, err)
	require.True(t, a.AssignedTo(300))
	require.Nil(t, a.Snapshot)
	require.Len(t, tx.execs, 1)
	require.Equal(t, "1500ms", tx.execs[0].args[0])
}

func TestAssignmentRepository_NotFound(t *testing.T) {
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return stubRow{err: pgx.ErrNoRows}
		},
	}
	ctx := composables.WithTx(context.Background(), tx)
	_, err := NewAssignmentRepository().LatestActiveByCustomerSince(ctx, 7, time.Now())
	require.ErrorIs(t, err, assignment.ErrAssignmentNotFound)
}

func TestAssignmentRepository_UpdateMissingRow(t *testing.T) {
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	ctx := composables.WithTx(context.Background(), tx)
	err := NewAssignmentRepository().Update(ctx, &assignment.Assignment{ID: 99, Type: assignment.TypeManual})
	require.ErrorIs(t, err, assignment.ErrAssignmentNotFound)
}

func TestAssignmentRepository_CountsAndIncrement(t *testing.T) {
	w := assignment.WindowFor(time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC), time.UTC)
	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			require.Contains(t, sql, "lead_allocation_counters")
			require.Equal(t, "2026-03-11", args[0])
			require.Equal(t, "2026-03-09", args[1])
			return &stubRows{data: [][]any{
				{int64(1), "day", int32(4)},
				{int64(1), "week", int32(9)},
				{int64(2), "week", int32(2)},
			}}, nil
		},
	}
	ctx := composables.WithTx(context.Background(), tx)
	repo := NewAssignmentRepository()

	counts, err := repo.Counts(ctx, w)
	require.NoError(t, err)
	require.Equal(t, map[int64]int{1: 4}, counts.Day)
	require.Equal(t, map[int64]int{1: 9, 2: 2}, counts.Week)
	require.Equal(t, 4, counts.TotalDay())

	require.NoError(t, repo.IncrementCounters(ctx, 2, w))
	require.Len(t, tx.execs, 1)
	require.Contains(t, tx.execs[0].sql, "ON CONFLICT")
	require.Equal(t, []any{int64(2), "2026-03-11", "2026-03-09"}, tx.execs[0].args)
}

func TestAssignmentRepository_FindBuildsFilters(t *testing.T) {
	unitID := int64(3)
	active := true
	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			require.Contains(t, sql, "unit_id = $1 AND active = $2")
			require.Contains(t, sql, "LIMIT 20 OFFSET 40")
			require.Equal(t, []any{unitID, active}, args)
			return &stubRows{}, nil
		},
	}
	ctx := composables.WithTx(context.Background(), tx)
	out, err := NewAssignmentRepository().Find(ctx, &assignment.FindParams{
		UnitID: &unitID,
		Active: &active,
		Limit:  20,
		Offset: 40,
	})
	require.NoError(t, err)
	require.Empty(t, out)
}
