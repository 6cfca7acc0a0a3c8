package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/team"
	"github.com/iota-uz/leadrouter/modules/leads/domain/events"
	"github.com/iota-uz/leadrouter/pkg/composables"
	"github.com/iota-uz/leadrouter/pkg/eventbus"
)

type AssignmentServiceOptions struct {
	Leads     lead.Repository
	Customers lead.CustomerRepository
	Configs   distribution.Repository
	Ledger    assignment.Ledger
	Team      team.Repository
	Locker    WindowLocker
	Publisher eventbus.EventBus
	TxRunner  TxRunner

	Location        *time.Location
	RetentionWindow time.Duration
	BurstWindow     time.Duration
	LockTimeout     time.Duration
	LockRetryLimit  int
	Now             func() time.Time
}

// AssignmentService routes leads to sales units and handles manual overrides.
type AssignmentService struct {
	leads     lead.Repository
	customers lead.CustomerRepository
	configs   distribution.Repository
	ledger    assignment.Ledger
	team      team.Repository
	locker    WindowLocker
	publisher eventbus.EventBus
	inTx      TxRunner
	guard     *StickinessGuard

	loc         *time.Location
	lockTimeout time.Duration
	retryLimit  int
	now         func() time.Time
}

func NewAssignmentService(opts AssignmentServiceOptions) *AssignmentService {
	s := &AssignmentService{
		leads:       opts.Leads,
		customers:   opts.Customers,
		configs:     opts.Configs,
		ledger:      opts.Ledger,
		team:        opts.Team,
		locker:      opts.Locker,
		publisher:   opts.Publisher,
		inTx:        opts.TxRunner,
		loc:         opts.Location,
		lockTimeout: opts.LockTimeout,
		retryLimit:  opts.LockRetryLimit,
		now:         opts.Now,
	}
	if s.locker == nil {
		s.locker = noopLocker{}
	}
	if s.inTx == nil {
		s.inTx = defaultTxRunner
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.retryLimit < 0 {
		s.retryLimit = 0
	}
	s.guard = NewStickinessGuard(opts.Ledger, opts.Leads, opts.RetentionWindow, opts.BurstWindow)
	s.guard.now = s.now
	return s
}

type AssignResult struct {
	Outcome     Outcome                `json:"outcome"`
	Lead        *lead.Lead             `json:"lead,omitempty"`
	Assignment  *assignment.Assignment `json:"assignment,omitempty"`
	Allocation  *Allocation            `json:"allocation,omitempty"`
	Customer    *lead.Customer         `json:"customer,omitempty"`
	NewCustomer bool                   `json:"new_customer,omitempty"`
}

type IntakeRequest struct {
	ExternalID string
	Name       string
	Source     lead.Source
	Interest   string
	Note       string
}

// Intake records an inbound contact. A customer held by an active assignment or
// with a lead from the last burst window gets that lead back; otherwise a new
// lead is created and allocated.
func (s *AssignmentService) Intake(ctx context.Context, req IntakeRequest) (*AssignResult, error) {
	if err := authorizeLeads(ctx, actorFrom(ctx), LeadsAuthzObject, "create"); err != nil {
		return nil, mapDomainError(err)
	}
	externalID := lead.NormalizeExternalID(req.ExternalID)
	if externalID == "" {
		return nil, newServiceError(http.StatusUnprocessableEntity, CodeInvalidInput, "external id is required", nil)
	}

	customer, created, err := s.customers.GetOrCreate(ctx, externalID, strings.TrimSpace(req.Name))
	if err != nil {
		return nil, mapDomainError(err)
	}

	guarded, err := s.guard.Check(ctx, customer.ID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	switch guarded.Outcome {
	case OutcomeRetained:
		return &AssignResult{
			Outcome:    OutcomeRetained,
			Lead:       guarded.Lead,
			Assignment: guarded.Assignment,
			Customer:   customer,
		}, nil
	case OutcomeBurst:
		a, err := s.ledger.GetActiveByLead(ctx, guarded.Lead.ID)
		if err != nil && !isNotFound(err) {
			return nil, mapDomainError(err)
		}
		return &AssignResult{Outcome: OutcomeBurst, Lead: guarded.Lead, Assignment: a, Customer: customer}, nil
	}

	source := req.Source
	if source == "" {
		source = lead.SourceWhatsApp
	}
	create := func(txCtx context.Context) (*lead.Lead, error) {
		return s.leads.Create(txCtx, &lead.Lead{
			CustomerID: customer.ID,
			Source:     source,
			Priority:   lead.PriorityMedium,
			State:      lead.StateNew,
			Interest:   strings.TrimSpace(req.Interest),
			Notes:      strings.TrimSpace(req.Note),
			Active:     true,
		})
	}

	res, err := s.allocate(ctx, 0, create)
	if err != nil {
		return nil, err
	}
	res.Customer = customer
	res.NewCustomer = created
	return res, nil
}

// Assign allocates lead to a sales unit. A customer already held by an active
// assignment inside the retention window keeps it and nothing is written.
// Outcome is unassigned when no unit is eligible.
func (s *AssignmentService) Assign(ctx context.Context, leadID, requestedBy int64) (*AssignResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "leads.AssignmentService.Assign")
	defer span.End()
	span.SetAttributes(attribute.Int64("leads.lead_id", leadID))

	if err := authorizeLeads(ctx, requestedBy, AssignmentsAuthzObject, "auto_assign"); err != nil {
		return nil, mapDomainError(err)
	}
	l, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, mapDomainError(err)
	}

	guarded, err := s.guard.Check(ctx, l.CustomerID)
	if err != nil {
		span.RecordError(err)
		return nil, mapDomainError(err)
	}
	if guarded.Outcome == OutcomeRetained {
		span.SetAttributes(attribute.String("leads.outcome", string(OutcomeRetained)))
		return &AssignResult{Outcome: OutcomeRetained, Lead: guarded.Lead, Assignment: guarded.Assignment}, nil
	}

	res, err := s.allocate(ctx, requestedBy, func(context.Context) (*lead.Lead, error) {
		return l, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("leads.outcome", string(res.Outcome)))
	return res, nil
}

// allocate runs one deficit round under the allocation window lock and writes
// the assignment together with the unit counters. load runs in the same
// transaction, so a lead it creates is rolled back when allocation fails.
func (s *AssignmentService) allocate(
	ctx context.Context,
	requestedBy int64,
	load func(context.Context) (*lead.Lead, error),
) (*AssignResult, error) {
	now := s.now()
	window := assignment.WindowFor(now, s.loc)
	var res *AssignResult

	err := s.locker.WithLock(ctx, window.LockKey(), func(lockCtx context.Context) error {
		return s.inTx(lockCtx, func(txCtx context.Context) error {
			l, err := load(txCtx)
			if err != nil {
				return err
			}
			res = &AssignResult{Outcome: OutcomeUnassigned, Lead: l}

			configs, err := s.configs.ListActive(txCtx)
			if err != nil {
				return err
			}
			s.checkConsistency(txCtx, configs)

			counts, err := s.ledger.Counts(txCtx, window)
			if err != nil {
				return err
			}
			alloc := Allocate(configs, counts)
			res.Allocation = alloc
			logAllocation(txCtx, l.ID, alloc)
			if alloc.Winner == nil {
				return nil
			}

			created, err := s.ledger.Create(txCtx, &assignment.Assignment{
				LeadID:     l.ID,
				CustomerID: l.CustomerID,
				UnitID:     alloc.Winner.Config.UnitID,
				AssignedBy: actorPtr(requestedBy),
				Type:       assignment.TypeAutomatic,
				Status:     assignment.StatusAssigned,
				AssignedAt: now,
				Snapshot:   alloc.Snapshot(),
				Active:     true,
			})
			if err != nil {
				return err
			}
			if err := s.ledger.IncrementCounters(txCtx, created.UnitID, window); err != nil {
				return err
			}
			if err := s.leads.UpdateState(txCtx, l.ID, lead.StateAssigned, ""); err != nil {
				return err
			}
			l.State = lead.StateAssigned
			res.Assignment = created
			res.Outcome = OutcomeAllocated
			return nil
		})
	})
	if err != nil {
		recordAllocation("error")
		return nil, mapDomainError(err)
	}

	if res.Assignment == nil {
		recordAllocation("no_eligible_unit")
		logWithFields(ctx, logrus.WarnLevel, "no eligible sales unit, lead left for manual triage", logrus.Fields{
			"lead_id": res.Lead.ID,
		})
		return res, nil
	}
	recordAllocation("allocated")
	recordAllocatedUnit(res.Allocation.Winner.Config.UnitName)
	s.publish(events.NewAssignmentCreated(composables.UseRequestID(ctx), *res.Assignment))
	return res, nil
}

func (s *AssignmentService) checkConsistency(ctx context.Context, configs []distribution.Config) {
	consistent := distribution.Consistent(configs)
	recordConfigConsistency(consistent)
	if consistent {
		return
	}
	logWithFields(ctx, logrus.WarnLevel, "active distribution weights do not sum to 100", logrus.Fields{
		"total_weight": distribution.TotalActiveWeight(configs).String(),
		"units":        len(configs),
	})
}

func logAllocation(ctx context.Context, leadID int64, alloc *Allocation) {
	for _, c := range alloc.Candidates {
		logWithFields(ctx, logrus.DebugLevel, "allocation candidate", logrus.Fields{
			"lead_id":  leadID,
			"unit_id":  c.Config.UnitID,
			"weight":   c.Config.Weight.String(),
			"expected": c.Expected.StringFixed(4),
			"actual":   c.Today,
			"deficit":  c.Deficit.StringFixed(4),
			"eligible": c.Eligible,
		})
	}
	if alloc.Winner != nil {
		logWithFields(ctx, logrus.InfoLevel, "lead allocated", logrus.Fields{
			"lead_id":     leadID,
			"unit_id":     alloc.Winner.Config.UnitID,
			"unit_name":   alloc.Winner.Config.UnitName,
			"total_today": alloc.TotalToday,
		})
	}
}

// AssignToUser binds lead to userID in the unit of the user's active membership.
// Concurrent overrides of the same lead are serialized on the assignment row.
// The allocation window lock is held as well, since a first assignment moves
// the unit counters.
func (s *AssignmentService) AssignToUser(ctx context.Context, leadID, userID, actorID int64) (*assignment.Assignment, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "leads.AssignmentService.AssignToUser")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("leads.lead_id", leadID),
		attribute.Int64("leads.user_id", userID),
		attribute.Int64("leads.actor_id", actorID),
	)

	if err := authorizeLeads(ctx, actorID, AssignmentsAuthzObject, "assign"); err != nil {
		return nil, mapDomainError(err)
	}
	membership, err := s.assignableMembership(ctx, userID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	l, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, mapDomainError(err)
	}

	var (
		prev   *assignment.Assignment
		result *assignment.Assignment
	)
	err = s.withWindowLockRetry(ctx, func(txCtx context.Context, now time.Time, window assignment.Window) error {
		prev, result = nil, nil
		cur, err := s.ledger.LockActiveByLead(txCtx, l.ID, s.lockTimeout)
		if err != nil && !isNotFound(err) {
			return err
		}

		if cur == nil {
			created, err := s.ledger.Create(txCtx, &assignment.Assignment{
				LeadID:     l.ID,
				CustomerID: l.CustomerID,
				UnitID:     membership.UnitID,
				UserID:     &userID,
				AssignedBy: actorPtr(actorID),
				Type:       assignment.TypeManual,
				Status:     assignment.StatusAssigned,
				AssignedAt: now,
				Active:     true,
			})
			if err != nil {
				return err
			}
			if err := s.ledger.IncrementCounters(txCtx, created.UnitID, window); err != nil {
				return err
			}
			result = created
		} else {
			before := *cur
			prev = &before
			if cur.UserID != nil && *cur.UserID != userID {
				cur.Type = assignment.TypeReassignment
			}
			cur.UnitID = membership.UnitID
			cur.UserID = &userID
			cur.AssignedBy = actorPtr(actorID)
			cur.AssignedAt = now
			cur.Status = assignment.StatusAssigned
			if err := s.ledger.Update(txCtx, cur); err != nil {
				return err
			}
			result = cur
		}
		return s.leads.UpdateState(txCtx, l.ID, lead.StateAssigned, "")
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, mapDomainError(err)
	}

	logWithFields(ctx, logrus.InfoLevel, "lead assigned to user", logrus.Fields{
		"lead_id":       l.ID,
		"user_id":       userID,
		"unit_id":       result.UnitID,
		"actor_id":      actorID,
		"assignment_id": result.ID,
		"type":          result.Type,
	})
	requestID := composables.UseRequestID(ctx)
	if prev == nil {
		s.publish(events.NewAssignmentCreated(requestID, *result))
	} else {
		s.publish(events.NewAssignmentUpdated(requestID, *prev, *result))
	}
	return result, nil
}

func (s *AssignmentService) assignableMembership(ctx context.Context, userID int64) (*team.Membership, error) {
	memberships, err := s.team.ActiveMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range memberships {
		if memberships[i].Assignable() {
			return &memberships[i], nil
		}
	}
	return nil, team.ErrMembershipNotFound
}

// Reject returns a lead from the user it is assigned to. The assignment is
// deactivated and the reason is appended to the lead notes.
func (s *AssignmentService) Reject(ctx context.Context, leadID, userID int64, reason string) error {
	if userID <= 0 {
		return newServiceError(http.StatusUnauthorized, CodeUnauthenticated, "user is required", nil)
	}
	if err := authorizeLeads(ctx, userID, AssignmentsAuthzObject, "reject"); err != nil {
		return mapDomainError(err)
	}
	reason = strings.TrimSpace(reason)

	var rejected *assignment.Assignment
	err := s.withLockRetry(ctx, func(txCtx context.Context) error {
		cur, err := s.ledger.LockActiveByLead(txCtx, leadID, s.lockTimeout)
		if err != nil && !isNotFound(err) {
			return err
		}
		if !cur.AssignedTo(userID) {
			return newServiceError(http.StatusForbidden, CodeNotAssignee, "lead is not assigned to this user", nil)
		}
		cur.Active = false
		cur.Status = assignment.StatusRejected
		if err := s.ledger.Update(txCtx, cur); err != nil {
			return err
		}
		note := fmt.Sprintf("Rejected by %d", userID)
		if reason != "" {
			note += ": " + reason
		}
		rejected = cur
		return s.leads.UpdateState(txCtx, leadID, lead.StateRejected, note)
	})
	if err != nil {
		return mapDomainError(err)
	}

	logWithFields(ctx, logrus.InfoLevel, "lead rejected", logrus.Fields{
		"lead_id":       leadID,
		"user_id":       userID,
		"assignment_id": rejected.ID,
	})
	s.publish(events.NewLeadRejected(composables.UseRequestID(ctx), leadID, rejected.ID, userID, reason))
	return nil
}

// withLockRetry runs fn in a transaction and retries lock or serialization
// failures up to the configured limit.
func (s *AssignmentService) withLockRetry(ctx context.Context, fn func(context.Context) error) error {
	return s.retry(ctx, func(attemptCtx context.Context) error {
		return s.inTx(attemptCtx, fn)
	})
}

// withWindowLockRetry is withLockRetry with every attempt holding the
// allocation window lock for the current day.
func (s *AssignmentService) withWindowLockRetry(
	ctx context.Context,
	fn func(ctx context.Context, now time.Time, window assignment.Window) error,
) error {
	return s.retry(ctx, func(attemptCtx context.Context) error {
		now := s.now()
		window := assignment.WindowFor(now, s.loc)
		return s.locker.WithLock(attemptCtx, window.LockKey(), func(lockCtx context.Context) error {
			return s.inTx(lockCtx, func(txCtx context.Context) error {
				return fn(txCtx, now, window)
			})
		})
	})
}

func (s *AssignmentService) retry(ctx context.Context, attempt func(context.Context) error) error {
	for n := 0; ; n++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || n >= s.retryLimit {
			return err
		}
		recordAssignmentConflict("retry")
		logWithFields(ctx, logrus.WarnLevel, "assignment row busy, retrying", logrus.Fields{
			"attempt": n + 1,
			"error":   err.Error(),
		})
	}
}

func (s *AssignmentService) publish(event any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

func actorPtr(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func actorFrom(ctx context.Context) int64 {
	id, err := composables.UseActor(ctx)
	if err != nil {
		return 0
	}
	return id
}
