package lead

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrLeadNotFound     = errors.New("lead not found")
	ErrCustomerNotFound = errors.New("customer not found")
)

type State string

const (
	StateNew        State = "new"
	StateAssigned   State = "assigned"
	StateInProgress State = "in_progress"
	StateQualified  State = "qualified"
	StateRejected   State = "rejected"
	StateConverted  State = "converted"
)

type Source string

const (
	SourceWhatsApp    Source = "whatsapp"
	SourceReferral    Source = "referral"
	SourceAdvertising Source = "advertising"
	SourceFair        Source = "fair"
	SourcePhone       Source = "phone"
	SourceWeb         Source = "web"
	SourceOther       Source = "other"
)

// ParseSource maps free-form input to a known source, defaulting to SourceOther.
func ParseSource(s string) Source {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceWhatsApp, SourceReferral, SourceAdvertising, SourceFair, SourcePhone, SourceWeb:
		return src
	default:
		return SourceOther
	}
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Lead struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Source     Source    `json:"source"`
	Priority   Priority  `json:"priority"`
	State      State     `json:"state"`
	Interest   string    `json:"interest,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Customer is identified by a stable external identity such as a phone number.
type Customer struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// NormalizeExternalID strips formatting from phone-like identities.
func NormalizeExternalID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		switch r {
		case '+', ' ', '-', '(', ')', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type Repository interface {
	Create(ctx context.Context, l *Lead) (*Lead, error)
	GetByID(ctx context.Context, id int64) (*Lead, error)
	UpdateState(ctx context.Context, id int64, state State, appendNote string) error
	// LatestByCustomerSince returns the newest active lead created at or after since.
	LatestByCustomerSince(ctx context.Context, customerID int64, since time.Time) (*Lead, error)
}

type CustomerRepository interface {
	GetByID(ctx context.Context, id int64) (*Customer, error)
	// GetOrCreate returns the customer for externalID, creating it when absent.
	GetOrCreate(ctx context.Context, externalID, name string) (*Customer, bool, error)
}
