package persistence

import (
	"context"

	"github.com/pkg/errors"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/team"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence/models"
	"github.com/iota-uz/leadrouter/pkg/composables"
)

// reachableMembershipsCTE walks relation edges from every active membership of $1.
// UNION drops already visited ids, so cycles terminate.
const reachableMembershipsCTE = `
	WITH RECURSIVE reach(id) AS (
		SELECT id FROM team_memberships WHERE user_id = $1 AND active
		UNION
		SELECT r.subordinate_membership_id
		FROM team_hierarchy_relations r
		JOIN reach ON r.supervisor_membership_id = reach.id
		WHERE r.active
	)`

type TeamRepository struct{}

func NewTeamRepository() team.Repository {
	return &TeamRepository{}
}

func (r *TeamRepository) ActiveMembershipsByUser(ctx context.Context, userID int64) ([]team.Membership, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, user_id, unit_id, position, active, status
		FROM team_memberships
		WHERE user_id = $1 AND active
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memberships")
	}
	defer rows.Close()

	var out []team.Membership
	for rows.Next() {
		var m models.TeamMembership
		if err := rows.Scan(&m.ID, &m.UserID, &m.UnitID, &m.Position, &m.Active, &m.Status); err != nil {
			return nil, err
		}
		out = append(out, toDomainMembership(&m))
	}
	return out, rows.Err()
}

// LoadSnapshot reads the memberships and relation edges relevant to viewerID:
// the viewer's units and everything reachable from the viewer's memberships.
// Callers run it inside one transaction so both reads share a view.
func (r *TeamRepository) LoadSnapshot(ctx context.Context, viewerID int64) (*team.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, reachableMembershipsCTE+`
		SELECT m.id, m.user_id, m.unit_id, m.position, m.active, m.status
		FROM team_memberships m
		WHERE m.active AND (
			m.id IN (SELECT id FROM reach)
			OR m.unit_id IN (SELECT unit_id FROM team_memberships WHERE user_id = $1 AND active)
		)
		ORDER BY m.id
	`, viewerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load memberships")
	}
	var memberships []team.Membership
	for rows.Next() {
		var m models.TeamMembership
		if err := rows.Scan(&m.ID, &m.UserID, &m.UnitID, &m.Position, &m.Active, &m.Status); err != nil {
			rows.Close()
			return nil, err
		}
		memberships = append(memberships, toDomainMembership(&m))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, reachableMembershipsCTE+`
		SELECT r.id, r.supervisor_membership_id, r.subordinate_membership_id, r.relation_type, r.active
		FROM team_hierarchy_relations r
		WHERE r.active AND r.supervisor_membership_id IN (SELECT id FROM reach)
		ORDER BY r.id
	`, viewerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load hierarchy relations")
	}
	defer rows.Close()
	var relations []team.Relation
	for rows.Next() {
		var m models.HierarchyRelation
		if err := rows.Scan(&m.ID, &m.SupervisorMembershipID, &m.SubordinateMembershipID, &m.RelationType, &m.Active); err != nil {
			return nil, err
		}
		relations = append(relations, toDomainRelation(&m))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return team.NewSnapshot(memberships, relations), nil
}
