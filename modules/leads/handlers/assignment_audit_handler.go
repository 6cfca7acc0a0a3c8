package handlers

import (
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/leadrouter/modules/leads/domain/events"
	"github.com/iota-uz/leadrouter/pkg/eventbus"
)

// AssignmentAuditHandler writes one structured audit line per assignment change.
type AssignmentAuditHandler struct {
	logger *logrus.Entry
}

func NewAssignmentAuditHandler(logger *logrus.Logger) *AssignmentAuditHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AssignmentAuditHandler{logger: logger.WithField("component", "leads.audit")}
}

func RegisterAssignmentEventHandlers(bus eventbus.EventBus, logger *logrus.Logger) *AssignmentAuditHandler {
	h := NewAssignmentAuditHandler(logger)
	bus.Subscribe(h.onAssignmentCreated)
	bus.Subscribe(h.onAssignmentUpdated)
	bus.Subscribe(h.onLeadRejected)
	return h
}

func metaFields(m events.Meta) logrus.Fields {
	f := logrus.Fields{
		"event_id":    m.EventID.String(),
		"occurred_at": m.OccurredAt,
	}
	if m.RequestID != "" {
		f["request_id"] = m.RequestID
	}
	if m.ActorID != nil {
		f["actor_id"] = *m.ActorID
	}
	return f
}

func (h *AssignmentAuditHandler) onAssignmentCreated(e *events.AssignmentCreated) {
	a := e.Assignment
	fields := metaFields(e.Meta)
	fields["event"] = "assignment.created"
	fields["assignment_id"] = a.ID
	fields["lead_id"] = a.LeadID
	fields["unit_id"] = a.UnitID
	fields["type"] = a.Type
	if a.UserID != nil {
		fields["user_id"] = *a.UserID
	}
	if a.Snapshot != nil {
		fields["deficit"] = a.Snapshot.Deficit
		fields["total_today"] = a.Snapshot.TotalToday
	}
	h.logger.WithFields(fields).Info("lead assignment created")
}

func (h *AssignmentAuditHandler) onAssignmentUpdated(e *events.AssignmentUpdated) {
	fields := metaFields(e.Meta)
	fields["event"] = "assignment.updated"
	fields["assignment_id"] = e.Assignment.ID
	fields["lead_id"] = e.Assignment.LeadID
	fields["type"] = e.Assignment.Type
	fields["unit_from"] = e.Previous.UnitID
	fields["unit_to"] = e.Assignment.UnitID
	if e.Previous.UserID != nil {
		fields["user_from"] = *e.Previous.UserID
	}
	if e.Assignment.UserID != nil {
		fields["user_to"] = *e.Assignment.UserID
	}
	if patch, err := jsondiff.Compare(e.Previous, e.Assignment); err != nil {
		h.logger.WithError(err).Warn("assignment diff failed")
	} else if len(patch) > 0 {
		fields["changes"] = patch.String()
	}
	h.logger.WithFields(fields).Info("lead assignment updated")
}

func (h *AssignmentAuditHandler) onLeadRejected(e *events.LeadRejected) {
	fields := metaFields(e.Meta)
	fields["event"] = "lead.rejected"
	fields["lead_id"] = e.LeadID
	fields["assignment_id"] = e.AssignmentID
	fields["user_id"] = e.UserID
	fields["reason"] = e.Reason
	h.logger.WithFields(fields).Warn("lead rejected")
}
