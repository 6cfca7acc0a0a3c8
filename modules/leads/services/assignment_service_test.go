package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/team"
	"github.com/iota-uz/leadrouter/modules/leads/domain/events"
	"github.com/iota-uz/leadrouter/pkg/authz"
	"github.com/iota-uz/leadrouter/pkg/eventbus"
)

type recordingLocker struct {
	mu       sync.Mutex
	keys     []string
	failures []error
	held     bool
}

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if len(l.failures) > 0 {
		err := l.failures[0]
		l.failures = l.failures[1:]
		return err
	}
	l.held = true
	defer func() { l.held = false }()
	return fn(ctx)
}

type serviceFixture struct {
	svc       *AssignmentService
	clock     *fakeClock
	leads     *fakeLeads
	customers *fakeCustomers
	configs   *fakeConfigs
	ledger    *fakeLedger
	team      *fakeTeam
	locker    *recordingLocker
	events    []any
}

func newServiceFixture(t *testing.T, configs ...distribution.Config) *serviceFixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	f := &serviceFixture{
		clock:     clock,
		leads:     newFakeLeads(clock),
		customers: newFakeCustomers(),
		configs:   &fakeConfigs{rows: configs},
		ledger:    newFakeLedger(),
		team: &fakeTeam{memberships: []team.Membership{
			member(1, 100, 1, team.PositionManager),
			member(2, 300, 2, team.PositionAgent),
			member(3, 400, 1, team.PositionAgent),
		}},
		locker: &recordingLocker{},
	}
	bus := eventbus.NewEventPublisher(logrus.New())
	bus.Subscribe(func(e *events.AssignmentCreated) { f.events = append(f.events, e) })
	bus.Subscribe(func(e *events.AssignmentUpdated) { f.events = append(f.events, e) })
	bus.Subscribe(func(e *events.LeadRejected) { f.events = append(f.events, e) })

	f.svc = NewAssignmentService(AssignmentServiceOptions{
		Leads:          f.leads,
		Customers:      f.customers,
		Configs:        f.configs,
		Ledger:         f.ledger,
		Team:           f.team,
		Locker:         f.locker,
		Publisher:      bus,
		TxRunner:       passthroughTx,
		LockTimeout:    time.Second,
		LockRetryLimit: 1,
		Now:            clock.Now,
	})
	return f
}

func defaultConfigs() []distribution.Config {
	return []distribution.Config{cfg(1, "Alpha", 40), cfg(2, "Beta", 35), cfg(3, "Gamma", 25)}
}

func (f *serviceFixture) newLead(t *testing.T, customerID int64) *lead.Lead {
	t.Helper()
	l, err := f.leads.Create(context.Background(), &lead.Lead{CustomerID: customerID, State: lead.StateNew, Active: true})
	require.NoError(t, err)
	return l
}

func requireServiceError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr), "expected ServiceError, got %v", err)
	require.Equal(t, status, svcErr.Status)
	require.Equal(t, code, svcErr.Code)
}

func TestAssign_AllocatesAndCountsUnderLock(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	l := f.newLead(t, 1)

	res, err := f.svc.Assign(context.Background(), l.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeAllocated, res.Outcome)
	require.Equal(t, int64(1), res.Assignment.UnitID)
	require.Nil(t, res.Assignment.UserID)
	require.Equal(t, assignment.TypeAutomatic, res.Assignment.Type)
	require.NotNil(t, res.Assignment.Snapshot)
	require.Equal(t, "40", res.Assignment.Snapshot.Weight)

	require.Equal(t, []string{"leads.allocation:2026-03-10"}, f.locker.keys)
	counts, err := f.ledger.Counts(context.Background(), assignment.WindowFor(f.clock.Now(), time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, counts.Day[1])
	require.Equal(t, 1, counts.Week[1])

	stored, err := f.leads.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.Equal(t, lead.StateAssigned, stored.State)

	require.Len(t, f.events, 1)
	created, ok := f.events[0].(*events.AssignmentCreated)
	require.True(t, ok)
	require.Equal(t, res.Assignment.ID, created.Assignment.ID)
}

func TestAssign_FollowsDeficitOrder(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	var units []int64
	for i := int64(1); i <= 4; i++ {
		l := f.newLead(t, i)
		res, err := f.svc.Assign(context.Background(), l.ID, 0)
		require.NoError(t, err)
		units = append(units, res.Assignment.UnitID)
	}
	require.Equal(t, []int64{1, 2, 3, 1}, units)
}

func TestAssign_RetainedCustomerKeepsAssignment(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	first := f.newLead(t, 1)
	res, err := f.svc.Assign(context.Background(), first.ID, 0)
	require.NoError(t, err)

	f.clock.Advance(30 * day)
	second := f.newLead(t, 1)
	again, err := f.svc.Assign(context.Background(), second.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeRetained, again.Outcome)
	require.Equal(t, res.Assignment.ID, again.Assignment.ID)
	require.Equal(t, first.ID, again.Lead.ID)
	require.Equal(t, 1, f.ledger.creates)
	require.Len(t, f.locker.keys, 1)
}

func TestAssign_NoEligibleUnit(t *testing.T) {
	capped := cfg(1, "Alpha", 100)
	capped.MaxPerDay = intPtr(0)
	f := newServiceFixture(t, capped)
	l := f.newLead(t, 1)

	res, err := f.svc.Assign(context.Background(), l.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnassigned, res.Outcome)
	require.Nil(t, res.Assignment)
	require.Equal(t, 0, f.ledger.creates)
	require.Empty(t, f.events)

	stored, err := f.leads.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.Equal(t, lead.StateNew, stored.State)
}

func TestAssign_DailyCapExcludesUnitForRestOfDay(t *testing.T) {
	alpha := cfg(1, "Alpha", 90)
	alpha.MaxPerDay = intPtr(1)
	f := newServiceFixture(t, alpha, cfg(2, "Beta", 10))

	var units []int64
	for i := int64(1); i <= 3; i++ {
		res, err := f.svc.Assign(context.Background(), f.newLead(t, i).ID, 0)
		require.NoError(t, err)
		units = append(units, res.Assignment.UnitID)
	}
	require.Equal(t, []int64{1, 2, 2}, units)

	f.clock.Advance(day)
	res, err := f.svc.Assign(context.Background(), f.newLead(t, 9).ID, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Assignment.UnitID)
}

func TestAssign_ForbiddenActor(t *testing.T) {
	prev := authorizeLeadsFn
	authorizeLeadsFn = func(context.Context, int64, string, string) error { return authz.ErrForbidden }
	t.Cleanup(func() { authorizeLeadsFn = prev })

	f := newServiceFixture(t, defaultConfigs()...)
	_, err := f.svc.Assign(context.Background(), f.newLead(t, 1).ID, 10)
	requireServiceError(t, err, http.StatusForbidden, CodeForbidden)
	require.Equal(t, 0, f.ledger.creates)
}

func TestIntake_CreatesAndAllocates(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	res, err := f.svc.Intake(context.Background(), IntakeRequest{ExternalID: "+998 90 123-45-67", Note: "hello"})
	require.NoError(t, err)
	require.Equal(t, OutcomeAllocated, res.Outcome)
	require.True(t, res.NewCustomer)
	require.Equal(t, "998901234567", res.Customer.ExternalID)
	require.Equal(t, lead.SourceWhatsApp, res.Lead.Source)
	require.Equal(t, lead.PriorityMedium, res.Lead.Priority)
	require.Equal(t, lead.StateAssigned, res.Lead.State)

	f.clock.Advance(2 * time.Hour)
	again, err := f.svc.Intake(context.Background(), IntakeRequest{ExternalID: "998901234567"})
	require.NoError(t, err)
	require.Equal(t, OutcomeRetained, again.Outcome)
	require.Equal(t, res.Lead.ID, again.Lead.ID)
	require.False(t, again.NewCustomer)
}

func TestIntake_BurstReturnsSameLead(t *testing.T) {
	f := newServiceFixture(t)
	first, err := f.svc.Intake(context.Background(), IntakeRequest{ExternalID: "777"})
	require.NoError(t, err)
	require.Equal(t, OutcomeUnassigned, first.Outcome)

	f.clock.Advance(23 * time.Hour)
	second, err := f.svc.Intake(context.Background(), IntakeRequest{ExternalID: "777"})
	require.NoError(t, err)
	require.Equal(t, OutcomeBurst, second.Outcome)
	require.Equal(t, first.Lead.ID, second.Lead.ID)

	f.clock.Advance(2 * time.Hour)
	third, err := f.svc.Intake(context.Background(), IntakeRequest{ExternalID: "777"})
	require.NoError(t, err)
	require.NotEqual(t, first.Lead.ID, third.Lead.ID)
}

func TestIntake_FailedAllocationLeavesNoLead(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	f.locker.failures = []error{assignment.ErrWindowBusy}

	_, err := f.svc.Intake(context.Background(), IntakeRequest{ExternalID: "555"})
	requireServiceError(t, err, http.StatusConflict, CodeAssignmentConflict)
	require.Empty(t, f.leads.rows)
	require.Equal(t, 0, f.ledger.creates)

	f.clock.Advance(time.Minute)
	res, err := f.svc.Intake(context.Background(), IntakeRequest{ExternalID: "555"})
	require.NoError(t, err)
	require.Equal(t, OutcomeAllocated, res.Outcome)
	require.False(t, res.NewCustomer)
	require.Equal(t, lead.StateAssigned, res.Lead.State)
	require.NotNil(t, res.Assignment)
	require.Len(t, f.leads.rows, 1)
	require.Len(t, f.locker.keys, 2)
}

func TestIntake_RequiresExternalID(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Intake(context.Background(), IntakeRequest{ExternalID: " + "})
	requireServiceError(t, err, http.StatusUnprocessableEntity, CodeInvalidInput)
}

func TestAssignToUser_MembershipNotFound(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	suspended := member(9, 900, 1, team.PositionAgent)
	suspended.Status = team.StatusSuspended
	f.team.memberships = append(f.team.memberships, suspended)
	l := f.newLead(t, 1)

	for _, userID := range []int64{555, 900} {
		_, err := f.svc.AssignToUser(context.Background(), l.ID, userID, 100)
		requireServiceError(t, err, http.StatusUnprocessableEntity, CodeMembershipNotFound)
	}
	require.Equal(t, 0, f.ledger.creates)
	require.Equal(t, 0, f.ledger.locks)
}

func TestAssignToUser_CreatesManualAssignment(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	l := f.newLead(t, 1)

	a, err := f.svc.AssignToUser(context.Background(), l.ID, 300, 100)
	require.NoError(t, err)
	require.Equal(t, assignment.TypeManual, a.Type)
	require.Equal(t, int64(2), a.UnitID)
	require.True(t, a.AssignedTo(300))
	require.Equal(t, int64(100), *a.AssignedBy)

	counts, err := f.ledger.Counts(context.Background(), assignment.WindowFor(f.clock.Now(), time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, counts.Day[2])
	require.Len(t, f.events, 1)
}

func TestAssignToUser_CountersMoveUnderWindowLock(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	l := f.newLead(t, 1)
	var lockedIncrements, increments int
	f.ledger.onIncrement = func() {
		increments++
		if f.locker.held {
			lockedIncrements++
		}
	}

	_, err := f.svc.AssignToUser(context.Background(), l.ID, 300, 100)
	require.NoError(t, err)

	window := assignment.WindowFor(f.clock.Now(), time.UTC)
	require.Equal(t, []string{window.LockKey()}, f.locker.keys)
	require.Equal(t, 1, increments)
	require.Equal(t, 1, lockedIncrements)

	res, err := f.svc.Assign(context.Background(), f.newLead(t, 2).ID, 0)
	require.NoError(t, err)
	require.Equal(t, []string{window.LockKey(), window.LockKey()}, f.locker.keys)
	require.Equal(t, 2, lockedIncrements)
	require.Equal(t, int64(1), res.Assignment.UnitID)
}

func TestAssignToUser_UpdatesExistingAssignment(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	l := f.newLead(t, 1)
	res, err := f.svc.Assign(context.Background(), l.ID, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Assignment.UnitID)

	a, err := f.svc.AssignToUser(context.Background(), l.ID, 300, 100)
	require.NoError(t, err)
	require.Equal(t, res.Assignment.ID, a.ID)
	require.Equal(t, int64(2), a.UnitID)
	require.Equal(t, assignment.TypeAutomatic, a.Type)
	require.Equal(t, 1, f.ledger.creates)

	a, err = f.svc.AssignToUser(context.Background(), l.ID, 400, 100)
	require.NoError(t, err)
	require.Equal(t, assignment.TypeReassignment, a.Type)
	require.Equal(t, int64(1), a.UnitID)

	require.Len(t, f.events, 3)
	updated, ok := f.events[2].(*events.AssignmentUpdated)
	require.True(t, ok)
	require.True(t, updated.Previous.AssignedTo(300))
	require.True(t, updated.Assignment.AssignedTo(400))
}

func TestAssignToUser_RetriesLockOnce(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	l := f.newLead(t, 1)
	f.ledger.lockErrs = []error{&pgconn.PgError{Code: "55P03"}}

	a, err := f.svc.AssignToUser(context.Background(), l.ID, 300, 100)
	require.NoError(t, err)
	require.True(t, a.AssignedTo(300))
	require.Equal(t, 2, f.ledger.locks)
}

func TestAssignToUser_ConflictAfterRetry(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	l := f.newLead(t, 1)
	f.ledger.lockErrs = []error{&pgconn.PgError{Code: "55P03"}, &pgconn.PgError{Code: "40001"}}

	_, err := f.svc.AssignToUser(context.Background(), l.ID, 300, 100)
	requireServiceError(t, err, http.StatusConflict, CodeAssignmentConflict)
	require.Equal(t, 2, f.ledger.locks)
	require.Equal(t, 0, f.ledger.creates)
}

func TestReject(t *testing.T) {
	f := newServiceFixture(t, defaultConfigs()...)
	l := f.newLead(t, 1)
	a, err := f.svc.AssignToUser(context.Background(), l.ID, 300, 100)
	require.NoError(t, err)

	err = f.svc.Reject(context.Background(), l.ID, 400, "not mine")
	requireServiceError(t, err, http.StatusForbidden, CodeNotAssignee)

	require.NoError(t, f.svc.Reject(context.Background(), l.ID, 300, "wrong region"))

	stored, err := f.ledger.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.False(t, stored.Active)
	require.Equal(t, assignment.StatusRejected, stored.Status)

	got, err := f.leads.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.Equal(t, lead.StateRejected, got.State)
	require.Contains(t, got.Notes, "Rejected by 300: wrong region")

	rejected, ok := f.events[len(f.events)-1].(*events.LeadRejected)
	require.True(t, ok)
	require.Equal(t, "wrong region", rejected.Reason)

	err = f.svc.Reject(context.Background(), l.ID, 300, "again")
	requireServiceError(t, err, http.StatusForbidden, CodeNotAssignee)
}

func TestReject_RequiresUser(t *testing.T) {
	f := newServiceFixture(t)
	err := f.svc.Reject(context.Background(), 1, 0, "")
	requireServiceError(t, err, http.StatusUnauthorized, CodeUnauthenticated)
}
