package team

import (
	"context"
	"errors"
	"sort"
)

var ErrMembershipNotFound = errors.New("active team membership not found")

type MembershipStatus string

const (
	StatusActive    MembershipStatus = "ACTIVE"
	StatusInactive  MembershipStatus = "INACTIVE"
	StatusSuspended MembershipStatus = "SUSPENDED"
)

type Membership struct {
	ID       int64            `json:"id"`
	UserID   int64            `json:"user_id"`
	UnitID   int64            `json:"unit_id"`
	Position Position         `json:"position"`
	Active   bool             `json:"active"`
	Status   MembershipStatus `json:"status"`
}

// Assignable reports whether leads may be handed to this member.
func (m Membership) Assignable() bool {
	return m.Active && m.Status == StatusActive
}

type RelationType string

const (
	RelationDirectSupervision RelationType = "DIRECT_SUPERVISION"
	RelationHierarchical      RelationType = "HIERARCHICAL"
)

type Relation struct {
	ID                      int64        `json:"id"`
	SupervisorMembershipID  int64        `json:"supervisor_membership_id"`
	SubordinateMembershipID int64        `json:"subordinate_membership_id"`
	Type                    RelationType `json:"type"`
	Active                  bool         `json:"active"`
}

// Snapshot is a point-in-time, indexed view of memberships and supervision edges.
// Inactive rows are dropped when the snapshot is built.
type Snapshot struct {
	memberships  map[int64]Membership
	byUser       map[int64][]int64
	byUnit       map[int64][]int64
	subordinates map[int64][]int64
}

func NewSnapshot(memberships []Membership, relations []Relation) *Snapshot {
	s := &Snapshot{
		memberships:  make(map[int64]Membership, len(memberships)),
		byUser:       make(map[int64][]int64),
		byUnit:       make(map[int64][]int64),
		subordinates: make(map[int64][]int64),
	}
	for _, m := range memberships {
		if !m.Active {
			continue
		}
		if _, dup := s.memberships[m.ID]; dup {
			continue
		}
		s.memberships[m.ID] = m
		s.byUser[m.UserID] = append(s.byUser[m.UserID], m.ID)
		s.byUnit[m.UnitID] = append(s.byUnit[m.UnitID], m.ID)
	}
	for _, r := range relations {
		if !r.Active {
			continue
		}
		s.subordinates[r.SupervisorMembershipID] = append(s.subordinates[r.SupervisorMembershipID], r.SubordinateMembershipID)
	}
	for _, ids := range s.byUser {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return s
}

func (s *Snapshot) collect(ids []int64) []Membership {
	out := make([]Membership, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.memberships[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// MembershipsOf returns the active memberships of userID ordered by id.
func (s *Snapshot) MembershipsOf(userID int64) []Membership {
	return s.collect(s.byUser[userID])
}

// UnitMembers returns the active memberships of unitID.
func (s *Snapshot) UnitMembers(unitID int64) []Membership {
	return s.collect(s.byUnit[unitID])
}

// Subordinates returns the active memberships directly below membershipID.
// Edges pointing at unknown or inactive memberships are skipped.
func (s *Snapshot) Subordinates(membershipID int64) []Membership {
	return s.collect(s.subordinates[membershipID])
}

// CanSupervise reports whether userID holds a supervising position or has any active subordinate.
func (s *Snapshot) CanSupervise(userID int64) bool {
	for _, m := range s.MembershipsOf(userID) {
		if Can(m.Position, CapSupervise) {
			return true
		}
		if len(s.Subordinates(m.ID)) > 0 {
			return true
		}
	}
	return false
}

type Repository interface {
	ActiveMembershipsByUser(ctx context.Context, userID int64) ([]Membership, error)
	// LoadSnapshot reads the viewer's memberships, their units' members and every
	// supervision edge reachable from the viewer.
	LoadSnapshot(ctx context.Context, viewerID int64) (*Snapshot, error)
}
