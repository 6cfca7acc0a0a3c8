package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/team"
)

func passthroughTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeLeads struct {
	mu     sync.Mutex
	clock  *fakeClock
	nextID int64
	rows   map[int64]*lead.Lead
}

func newFakeLeads(clock *fakeClock) *fakeLeads {
	return &fakeLeads{clock: clock, rows: map[int64]*lead.Lead{}}
}

func (f *fakeLeads) Create(_ context.Context, l *lead.Lead) (*lead.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *l
	cp.ID = f.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = f.clock.Now()
	}
	cp.UpdatedAt = cp.CreatedAt
	f.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeLeads) GetByID(_ context.Context, id int64) (*lead.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[id]
	if !ok {
		return nil, lead.ErrLeadNotFound
	}
	out := *l
	return &out, nil
}

func (f *fakeLeads) UpdateState(_ context.Context, id int64, state lead.State, appendNote string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[id]
	if !ok {
		return lead.ErrLeadNotFound
	}
	l.State = state
	if appendNote != "" {
		if l.Notes != "" {
			l.Notes += "\n"
		}
		l.Notes += appendNote
	}
	return nil
}

func (f *fakeLeads) LatestByCustomerSince(_ context.Context, customerID int64, since time.Time) (*lead.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *lead.Lead
	for _, l := range f.rows {
		if l.CustomerID != customerID || !l.Active || l.CreatedAt.Before(since) {
			continue
		}
		if best == nil || l.CreatedAt.After(best.CreatedAt) {
			best = l
		}
	}
	if best == nil {
		return nil, lead.ErrLeadNotFound
	}
	out := *best
	return &out, nil
}

type fakeCustomers struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*lead.Customer
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{rows: map[string]*lead.Customer{}}
}

func (f *fakeCustomers) GetByID(_ context.Context, id int64) (*lead.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, lead.ErrCustomerNotFound
}

func (f *fakeCustomers) GetOrCreate(_ context.Context, externalID, name string) (*lead.Customer, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.rows[externalID]; ok {
		out := *c
		return &out, false, nil
	}
	f.nextID++
	c := &lead.Customer{ID: f.nextID, ExternalID: externalID, Name: name}
	f.rows[externalID] = c
	out := *c
	return &out, true, nil
}

type fakeConfigs struct {
	rows []distribution.Config
	err  error
}

func (f *fakeConfigs) List(context.Context) ([]distribution.Config, error) {
	return f.rows, f.err
}

func (f *fakeConfigs) ListActive(context.Context) ([]distribution.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]distribution.Config, 0, len(f.rows))
	for _, c := range f.rows {
		if c.ActiveForLeads {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConfigs) GetByUnit(_ context.Context, unitID int64) (*distribution.Config, error) {
	for _, c := range f.rows {
		if c.UnitID == unitID {
			out := c
			return &out, nil
		}
	}
	return nil, distribution.ErrConfigNotFound
}

type counterKey struct {
	unitID int64
	period string
	start  string
}

type fakeLedger struct {
	mu          sync.Mutex
	nextID      int64
	rows        []*assignment.Assignment
	counters    map[counterKey]int
	lockErrs    []error
	locks       int
	creates     int
	onIncrement func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{counters: map[counterKey]int{}}
}

func (f *fakeLedger) seed(a assignment.Assignment) *assignment.Assignment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = f.nextID
	f.rows = append(f.rows, &a)
	out := a
	return &out
}

func (f *fakeLedger) Create(_ context.Context, a *assignment.Assignment) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if a.Active {
		for _, row := range f.rows {
			if row.LeadID == a.LeadID && row.Active {
				row.Active = false
				row.Status = assignment.StatusTransferred
			}
		}
	}
	f.nextID++
	cp := *a
	cp.ID = f.nextID
	f.rows = append(f.rows, &cp)
	out := cp
	return &out, nil
}

func (f *fakeLedger) Update(_ context.Context, a *assignment.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.ID == a.ID {
			cp := *a
			f.rows[i] = &cp
			return nil
		}
	}
	return assignment.ErrAssignmentNotFound
}

func (f *fakeLedger) GetByID(_ context.Context, id int64) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			out := *row
			return &out, nil
		}
	}
	return nil, assignment.ErrAssignmentNotFound
}

func (f *fakeLedger) latest(match func(*assignment.Assignment) bool) (*assignment.Assignment, error) {
	var best *assignment.Assignment
	for _, row := range f.rows {
		if !row.Active || !match(row) {
			continue
		}
		if best == nil || row.AssignedAt.After(best.AssignedAt) {
			best = row
		}
	}
	if best == nil {
		return nil, assignment.ErrAssignmentNotFound
	}
	out := *best
	return &out, nil
}

func (f *fakeLedger) GetActiveByLead(_ context.Context, leadID int64) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest(func(a *assignment.Assignment) bool { return a.LeadID == leadID })
}

func (f *fakeLedger) LockActiveByLead(_ context.Context, leadID int64, _ time.Duration) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks++
	if len(f.lockErrs) > 0 {
		err := f.lockErrs[0]
		f.lockErrs = f.lockErrs[1:]
		return nil, err
	}
	return f.latest(func(a *assignment.Assignment) bool { return a.LeadID == leadID })
}

func (f *fakeLedger) LatestActiveByCustomer(_ context.Context, customerID int64) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest(func(a *assignment.Assignment) bool { return a.CustomerID == customerID })
}

func (f *fakeLedger) LatestActiveByCustomerSince(_ context.Context, customerID int64, since time.Time) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest(func(a *assignment.Assignment) bool {
		return a.CustomerID == customerID && !a.AssignedAt.Before(since)
	})
}

func (f *fakeLedger) Find(_ context.Context, params *assignment.FindParams) ([]*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*assignment.Assignment
	for _, row := range f.rows {
		if params.UnitID != nil && row.UnitID != *params.UnitID {
			continue
		}
		if params.Active != nil && row.Active != *params.Active {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLedger) Counts(_ context.Context, w assignment.Window) (assignment.Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := assignment.Counts{Day: map[int64]int{}, Week: map[int64]int{}}
	day := w.Day.Format(time.DateOnly)
	week := w.WeekStart.Format(time.DateOnly)
	for k, v := range f.counters {
		switch {
		case k.period == "day" && k.start == day:
			c.Day[k.unitID] = v
		case k.period == "week" && k.start == week:
			c.Week[k.unitID] = v
		}
	}
	return c, nil
}

func (f *fakeLedger) IncrementCounters(_ context.Context, unitID int64, w assignment.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[counterKey{unitID, "day", w.Day.Format(time.DateOnly)}]++
	f.counters[counterKey{unitID, "week", w.WeekStart.Format(time.DateOnly)}]++
	if f.onIncrement != nil {
		f.onIncrement()
	}
	return nil
}

type fakeTeam struct {
	memberships []team.Membership
	relations   []team.Relation
	err         error
}

func (f *fakeTeam) ActiveMembershipsByUser(_ context.Context, userID int64) ([]team.Membership, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []team.Membership
	for _, m := range f.memberships {
		if m.UserID == userID && m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeTeam) LoadSnapshot(context.Context, int64) (*team.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return team.NewSnapshot(f.memberships, f.relations), nil
}

func member(id, userID, unitID int64, pos team.Position) team.Membership {
	return team.Membership{ID: id, UserID: userID, UnitID: unitID, Position: pos, Active: true, Status: team.StatusActive}
}

func edge(id, supervisor, subordinate int64) team.Relation {
	return team.Relation{
		ID:                      id,
		SupervisorMembershipID:  supervisor,
		SubordinateMembershipID: subordinate,
		Type:                    team.RelationDirectSupervision,
		Active:                  true,
	}
}
