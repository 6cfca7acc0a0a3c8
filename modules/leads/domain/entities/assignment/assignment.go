package assignment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrWindowBusy is returned when the allocation window lock cannot be taken in time.
	ErrWindowBusy = errors.New("allocation window is busy")
)

type Type string

const (
	TypeAutomatic    Type = "AUTOMATIC"
	TypeManual       Type = "MANUAL"
	TypeReassignment Type = "REASSIGNMENT"
	TypeEmergency    Type = "EMERGENCY"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAutomatic, TypeManual, TypeReassignment, TypeEmergency:
		return true
	}
	return false
}

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusAssigned    Status = "ASSIGNED"
	StatusAccepted    Status = "ACCEPTED"
	StatusRejected    Status = "REJECTED"
	StatusTransferred Status = "TRANSFERRED"
)

// Snapshot records the unit configuration and the deficit at decision time.
type Snapshot struct {
	Weight     string `json:"weight"`
	MaxPerDay  *int   `json:"max_per_day,omitempty"`
	MaxPerWeek *int   `json:"max_per_week,omitempty"`
	Expected   string `json:"expected,omitempty"`
	Actual     int    `json:"actual"`
	Deficit    string `json:"deficit,omitempty"`
	TotalToday int    `json:"total_today"`
}

// Assignment binds a lead to a sales unit and optionally to one user.
// Records are never deleted; at most one per lead is active.
type Assignment struct {
	ID         int64      `json:"id"`
	LeadID     int64      `json:"lead_id"`
	CustomerID int64      `json:"customer_id"`
	UnitID     int64      `json:"unit_id"`
	UserID     *int64     `json:"user_id,omitempty"`
	AssignedBy *int64     `json:"assigned_by,omitempty"`
	Type       Type       `json:"type"`
	Status     Status     `json:"status"`
	AssignedAt time.Time  `json:"assigned_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Snapshot   *Snapshot  `json:"config_snapshot,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AssignedTo reports whether userID is the assigned user.
func (a *Assignment) AssignedTo(userID int64) bool {
	return a != nil && a.UserID != nil && *a.UserID == userID
}

// UnitOnly reports whether the assignment has no user yet.
func (a *Assignment) UnitOnly() bool {
	return a != nil && a.UserID == nil
}

// Counts holds per-unit allocation counters for one window.
type Counts struct {
	Day  map[int64]int
	Week map[int64]int
}

// TotalDay is the number of leads allocated in the day window.
func (c Counts) TotalDay() int {
	n := 0
	for _, v := range c.Day {
		n += v
	}
	return n
}

type FindParams struct {
	UnitID *int64
	UserID *int64
	From   *time.Time
	To     *time.Time
	Active *bool
	Limit  int
	Offset int
}

// Ledger is the append-only store of assignments and their counters.
type Ledger interface {
	// Create inserts a, deactivating any other active assignment of the same lead.
	Create(ctx context.Context, a *Assignment) (*Assignment, error)
	Update(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id int64) (*Assignment, error)
	GetActiveByLead(ctx context.Context, leadID int64) (*Assignment, error)
	// LockActiveByLead returns the active assignment row locked FOR UPDATE.
	LockActiveByLead(ctx context.Context, leadID int64, timeout time.Duration) (*Assignment, error)
	LatestActiveByCustomer(ctx context.Context, customerID int64) (*Assignment, error)
	LatestActiveByCustomerSince(ctx context.Context, customerID int64, since time.Time) (*Assignment, error)
	Find(ctx context.Context, params *FindParams) ([]*Assignment, error)
	Counts(ctx context.Context, w Window) (Counts, error)
	IncrementCounters(ctx context.Context, unitID int64, w Window) error
}
