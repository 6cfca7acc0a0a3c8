package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/team"
)

const tracerName = "github.com/iota-uz/leadrouter/modules/leads/services"

// AccessGate decides whether a viewer may open a lead and its conversation.
type AccessGate struct {
	leads     lead.Repository
	ledger    assignment.Ledger
	hierarchy *HierarchyService
}

func NewAccessGate(leads lead.Repository, ledger assignment.Ledger, hierarchy *HierarchyService) *AccessGate {
	return &AccessGate{leads: leads, ledger: ledger, hierarchy: hierarchy}
}

type AccessDecision struct {
	Allowed      bool     `json:"authorized"`
	Mode         ViewMode `json:"mode"`
	LeadID       int64    `json:"lead_id"`
	AssignmentID *int64   `json:"assignment_id,omitempty"`
	Reason       string   `json:"reason"`
}

// Authorize checks viewer against the active assignment of the lead's customer.
// Chat access belongs to the assigned user alone.
func (g *AccessGate) Authorize(ctx context.Context, viewer, leadID int64, mode ViewMode) (*AccessDecision, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "leads.AccessGate.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("leads.viewer_id", viewer),
		attribute.Int64("leads.lead_id", leadID),
		attribute.String("leads.view_mode", string(mode)),
	)

	l, err := g.leads.GetByID(ctx, leadID)
	if err != nil {
		span.RecordError(err)
		return nil, mapDomainError(err)
	}
	a, err := g.ledger.LatestActiveByCustomer(ctx, l.CustomerID)
	if err != nil && !isNotFound(err) {
		span.RecordError(err)
		return nil, mapDomainError(err)
	}

	d := &AccessDecision{Mode: mode, LeadID: leadID}
	if a != nil {
		id := a.ID
		d.AssignmentID = &id
	}
	if mode == ViewSupervision {
		d.Allowed, d.Reason = g.supervise(ctx, viewer, a)
	} else {
		d.Mode = ViewChat
		d.Allowed = a.AssignedTo(viewer)
		d.Reason = "assigned_user"
		if !d.Allowed {
			d.Reason = "not_assigned_user"
		}
	}

	span.SetAttributes(attribute.Bool("leads.allowed", d.Allowed))
	recordAccessDecision(d.Mode, d.Allowed)
	logWithFields(ctx, logrus.DebugLevel, "access decision", logrus.Fields{
		"viewer_id": viewer,
		"lead_id":   leadID,
		"mode":      d.Mode,
		"allowed":   d.Allowed,
		"reason":    d.Reason,
	})
	return d, nil
}

func (g *AccessGate) supervise(ctx context.Context, viewer int64, a *assignment.Assignment) (bool, string) {
	vis, snap := g.hierarchy.resolve(ctx, viewer, ViewSupervision)
	if vis.All {
		return true, "unrestricted"
	}
	if a == nil {
		if snap != nil && snap.CanSupervise(viewer) {
			return true, "unassigned_supervisor"
		}
		return false, "unassigned"
	}
	if a.UserID != nil {
		if vis.Contains(*a.UserID) {
			return true, "in_hierarchy"
		}
		return false, "outside_hierarchy"
	}
	if snap != nil && vis.Degraded == "" && supervisesUnit(snap, viewer, a.UnitID) {
		return true, "unit_supervisor"
	}
	return false, "unit_only"
}

// supervisesUnit reports whether viewer holds a supervising membership in unitID.
func supervisesUnit(s *team.Snapshot, viewer, unitID int64) bool {
	for _, m := range s.MembershipsOf(viewer) {
		if m.UnitID != unitID {
			continue
		}
		if team.Can(m.Position, team.CapSupervise) || len(s.Subordinates(m.ID)) > 0 {
			return true
		}
	}
	return false
}
