package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
)

// Outcome tells how an incoming lead was resolved.
type Outcome string

const (
	OutcomeRetained   Outcome = "retained"
	OutcomeBurst      Outcome = "burst"
	OutcomeAllocated  Outcome = "allocated"
	OutcomeUnassigned Outcome = "unassigned"
	OutcomeNone       Outcome = "none"
)

const (
	DefaultRetentionWindow = 90 * 24 * time.Hour
	DefaultBurstWindow     = 24 * time.Hour
)

type Guarded struct {
	Outcome    Outcome
	Lead       *lead.Lead
	Assignment *assignment.Assignment
}

// StickinessGuard keeps returning customers with their previous handler and
// collapses bursts of messages into one lead. It only reads.
type StickinessGuard struct {
	ledger    assignment.Ledger
	leads     lead.Repository
	retention time.Duration
	burst     time.Duration
	now       func() time.Time
}

func NewStickinessGuard(ledger assignment.Ledger, leads lead.Repository, retention, burst time.Duration) *StickinessGuard {
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}
	if burst <= 0 {
		burst = DefaultBurstWindow
	}
	return &StickinessGuard{
		ledger:    ledger,
		leads:     leads,
		retention: retention,
		burst:     burst,
		now:       time.Now,
	}
}

// Check runs the retention check and then the burst check. The two are
// independent: a retained customer never reaches the burst check.
func (g *StickinessGuard) Check(ctx context.Context, customerID int64) (*Guarded, error) {
	now := g.now()

	a, err := g.ledger.LatestActiveByCustomerSince(ctx, customerID, now.Add(-g.retention))
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if a != nil {
		l, err := g.leads.GetByID(ctx, a.LeadID)
		if err != nil {
			return nil, err
		}
		recordStickiness(OutcomeRetained)
		logWithFields(ctx, logrus.DebugLevel, "customer retained by active assignment", logrus.Fields{
			"customer_id":   customerID,
			"assignment_id": a.ID,
			"unit_id":       a.UnitID,
		})
		return &Guarded{Outcome: OutcomeRetained, Lead: l, Assignment: a}, nil
	}

	l, err := g.leads.LatestByCustomerSince(ctx, customerID, now.Add(-g.burst))
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if l != nil {
		recordStickiness(OutcomeBurst)
		logWithFields(ctx, logrus.DebugLevel, "recent lead reused", logrus.Fields{
			"customer_id": customerID,
			"lead_id":     l.ID,
		})
		return &Guarded{Outcome: OutcomeBurst, Lead: l}, nil
	}
	return &Guarded{Outcome: OutcomeNone}, nil
}
