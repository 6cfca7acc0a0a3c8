package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
)

type Meta struct {
	EventID    uuid.UUID `json:"event_id"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	ActorID    *int64    `json:"actor_id,omitempty"`
}

func newMeta(requestID string, actorID *int64) Meta {
	return Meta{
		EventID:    uuid.New(),
		RequestID:  requestID,
		OccurredAt: time.Now().UTC(),
		ActorID:    actorID,
	}
}

// AssignmentCreated is published after a new active assignment is committed.
type AssignmentCreated struct {
	Meta
	Assignment assignment.Assignment `json:"assignment"`
}

// AssignmentUpdated is published after an existing assignment changes unit or user.
type AssignmentUpdated struct {
	Meta
	Previous   assignment.Assignment `json:"previous"`
	Assignment assignment.Assignment `json:"assignment"`
}

type LeadRejected struct {
	Meta
	LeadID       int64  `json:"lead_id"`
	AssignmentID int64  `json:"assignment_id"`
	UserID       int64  `json:"user_id"`
	Reason       string `json:"reason,omitempty"`
}

// LeadUnassigned is published when allocation finds no eligible unit.
type LeadUnassigned struct {
	Meta
	LeadID int64 `json:"lead_id"`
}

func NewAssignmentCreated(requestID string, a assignment.Assignment) *AssignmentCreated {
	return &AssignmentCreated{Meta: newMeta(requestID, a.AssignedBy), Assignment: a}
}

func NewAssignmentUpdated(requestID string, prev, next assignment.Assignment) *AssignmentUpdated {
	return &AssignmentUpdated{Meta: newMeta(requestID, next.AssignedBy), Previous: prev, Assignment: next}
}

func NewLeadRejected(requestID string, leadID, assignmentID, userID int64, reason string) *LeadRejected {
	actor := userID
	return &LeadRejected{
		Meta:         newMeta(requestID, &actor),
		LeadID:       leadID,
		AssignmentID: assignmentID,
		UserID:       userID,
		Reason:       reason,
	}
}

func NewLeadUnassigned(requestID string, leadID int64) *LeadUnassigned {
	return &LeadUnassigned{Meta: newMeta(requestID, nil), LeadID: leadID}
}
