package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/team"
)

type ViewMode string

const (
	ViewChat        ViewMode = "chat"
	ViewSupervision ViewMode = "supervision"
)

func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ViewChat, ViewSupervision:
		return m, nil
	case "":
		return ViewChat, nil
	default:
		return "", fmt.Errorf("unknown view mode %q", s)
	}
}

// Visibility is the set of users whose leads a viewer may see.
// All means no restriction.
type Visibility struct {
	All      bool    `json:"all"`
	UserIDs  []int64 `json:"user_ids,omitempty"`
	Degraded string  `json:"degraded,omitempty"`

	set map[int64]struct{}
}

func newVisibility(ids map[int64]struct{}) Visibility {
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return Visibility{UserIDs: out, set: ids}
}

func selfOnly(viewer int64, reason string) Visibility {
	v := newVisibility(map[int64]struct{}{viewer: {}})
	v.Degraded = reason
	return v
}

func (v Visibility) Contains(userID int64) bool {
	if v.All {
		return true
	}
	if v.set != nil {
		_, ok := v.set[userID]
		return ok
	}
	for _, id := range v.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

const (
	degradedMultipleUnits   = "multiple_units"
	degradedUnknownPosition = "unknown_position"
)

// Resolve computes the visibility of viewer over a point-in-time snapshot.
// Chat mode is always the viewer alone. Supervision mode returns everyone for
// a viewer without membership, the whole unit for a unit manager, and otherwise
// the viewer plus every membership reachable through relation edges. A viewer
// with no edges sees the whole unit. Ambiguous membership data yields the
// viewer alone.
func Resolve(s *team.Snapshot, viewer int64, mode ViewMode) Visibility {
	if mode != ViewSupervision || s == nil {
		return selfOnly(viewer, "")
	}

	memberships := s.MembershipsOf(viewer)
	if len(memberships) == 0 {
		return Visibility{All: true}
	}

	unitID := memberships[0].UnitID
	manager := false
	for _, m := range memberships {
		if m.UnitID != unitID {
			return selfOnly(viewer, degradedMultipleUnits)
		}
		if m.Position == team.PositionUnknown {
			return selfOnly(viewer, degradedUnknownPosition)
		}
		if team.Can(m.Position, team.CapViewUnit) {
			manager = true
		}
	}
	if manager {
		return unitVisibility(s, viewer, unitID)
	}

	users := map[int64]struct{}{viewer: {}}
	visited := make(map[int64]struct{}, len(memberships))
	queue := make([]int64, 0, len(memberships))
	for _, m := range memberships {
		visited[m.ID] = struct{}{}
		queue = append(queue, m.ID)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, sub := range s.Subordinates(id) {
			if _, seen := visited[sub.ID]; seen {
				continue
			}
			visited[sub.ID] = struct{}{}
			users[sub.UserID] = struct{}{}
			queue = append(queue, sub.ID)
		}
	}
	if len(users) == 1 {
		return unitVisibility(s, viewer, unitID)
	}
	return newVisibility(users)
}

func unitVisibility(s *team.Snapshot, viewer, unitID int64) Visibility {
	users := map[int64]struct{}{viewer: {}}
	for _, m := range s.UnitMembers(unitID) {
		users[m.UserID] = struct{}{}
	}
	return newVisibility(users)
}

// HierarchyService loads a consistent team snapshot per call and resolves visibility.
type HierarchyService struct {
	team team.Repository
	inTx TxRunner
}

func NewHierarchyService(repo team.Repository, inTx TxRunner) *HierarchyService {
	if inTx == nil {
		inTx = defaultTxRunner
	}
	return &HierarchyService{team: repo, inTx: inTx}
}

func (s *HierarchyService) Snapshot(ctx context.Context, viewer int64) (*team.Snapshot, error) {
	var snap *team.Snapshot
	err := s.inTx(ctx, func(txCtx context.Context) error {
		var err error
		snap, err = s.team.LoadSnapshot(txCtx, viewer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Visibility never fails: a snapshot that cannot be loaded degrades to the viewer alone.
func (s *HierarchyService) Visibility(ctx context.Context, viewer int64, mode ViewMode) Visibility {
	v, _ := s.resolve(ctx, viewer, mode)
	return v
}

func (s *HierarchyService) resolve(ctx context.Context, viewer int64, mode ViewMode) (Visibility, *team.Snapshot) {
	if mode != ViewSupervision {
		return selfOnly(viewer, ""), nil
	}
	snap, err := s.Snapshot(ctx, viewer)
	if err != nil {
		logWithFields(ctx, logrus.WarnLevel, "hierarchy snapshot unavailable, restricting to self", logrus.Fields{
			"viewer_id": viewer,
			"error":     err.Error(),
		})
		return selfOnly(viewer, "snapshot_unavailable"), nil
	}
	v := Resolve(snap, viewer, mode)
	if v.Degraded != "" {
		logWithFields(ctx, logrus.WarnLevel, "ambiguous membership data, restricting to self", logrus.Fields{
			"viewer_id": viewer,
			"reason":    v.Degraded,
		})
	}
	return v, snap
}
