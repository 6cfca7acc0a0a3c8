package persistence

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/lead"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/salesunit"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/team"
	"github.com/iota-uz/leadrouter/modules/leads/infrastructure/persistence/models"
)

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intFromInt32(v *int32) *int {
	if v == nil {
		return nil
	}
	out := int(*v)
	return &out
}

func toDomainSalesUnit(m *models.SalesUnit) *salesunit.Unit {
	return &salesunit.Unit{
		ID:        m.ID,
		Name:      m.Name,
		Type:      m.Type,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
}

func toDomainConfig(m *models.DistributionConfig) (distribution.Config, error) {
	weight, err := decimal.NewFromString(m.Weight)
	if err != nil {
		return distribution.Config{}, errors.Wrapf(err, "invalid weight %q for unit %d", m.Weight, m.UnitID)
	}
	return distribution.Config{
		UnitID:         m.UnitID,
		UnitName:       m.UnitName,
		Weight:         weight,
		ActiveForLeads: m.ActiveForLeads,
		MaxPerDay:      intFromInt32(m.MaxPerDay),
		MaxPerWeek:     intFromInt32(m.MaxPerWeek),
		Notes:          derefString(m.Notes),
		CreatedBy:      m.CreatedBy,
		UpdatedBy:      m.UpdatedBy,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func toDomainCustomer(m *models.Customer) *lead.Customer {
	return &lead.Customer{
		ID:         m.ID,
		ExternalID: m.ExternalID,
		Name:       derefString(m.Name),
		CreatedAt:  m.CreatedAt,
	}
}

func toDomainLead(m *models.Lead) *lead.Lead {
	return &lead.Lead{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		Source:     lead.ParseSource(m.Source),
		Priority:   lead.Priority(m.Priority),
		State:      lead.State(m.State),
		Interest:   derefString(m.Interest),
		Notes:      derefString(m.Notes),
		Active:     m.Active,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toDBLead(l *lead.Lead) *models.Lead {
	return &models.Lead{
		ID:         l.ID,
		CustomerID: l.CustomerID,
		Source:     string(l.Source),
		Priority:   string(l.Priority),
		State:      string(l.State),
		Interest:   nullString(l.Interest),
		Notes:      nullString(l.Notes),
		Active:     l.Active,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

func toDomainAssignment(m *models.Assignment) (*assignment.Assignment, error) {
	a := &assignment.Assignment{
		ID:         m.ID,
		LeadID:     m.LeadID,
		CustomerID: m.CustomerID,
		UnitID:     m.UnitID,
		UserID:     m.UserID,
		AssignedBy: m.AssignedBy,
		Type:       assignment.Type(m.Type),
		Status:     assignment.Status(m.Status),
		AssignedAt: m.AssignedAt,
		AcceptedAt: m.AcceptedAt,
		Notes:      derefString(m.Notes),
		Active:     m.Active,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if len(m.ConfigSnapshot) > 0 && string(m.ConfigSnapshot) != "null" {
		var snap assignment.Snapshot
		if err := json.Unmarshal(m.ConfigSnapshot, &snap); err != nil {
			return nil, errors.Wrapf(err, "invalid config snapshot for assignment %d", m.ID)
		}
		a.Snapshot = &snap
	}
	return a, nil
}

func toDBAssignment(a *assignment.Assignment) (*models.Assignment, error) {
	m := &models.Assignment{
		ID:         a.ID,
		LeadID:     a.LeadID,
		CustomerID: a.CustomerID,
		UnitID:     a.UnitID,
		UserID:     a.UserID,
		AssignedBy: a.AssignedBy,
		Type:       string(a.Type),
		Status:     string(a.Status),
		AssignedAt: a.AssignedAt,
		AcceptedAt: a.AcceptedAt,
		Notes:      nullString(a.Notes),
		Active:     a.Active,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
	if a.Snapshot != nil {
		raw, err := json.Marshal(a.Snapshot)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode config snapshot")
		}
		m.ConfigSnapshot = raw
	}
	return m, nil
}

func toDomainMembership(m *models.TeamMembership) team.Membership {
	return team.Membership{
		ID:       m.ID,
		UserID:   m.UserID,
		UnitID:   m.UnitID,
		Position: team.ParsePosition(m.Position),
		Active:   m.Active,
		Status:   team.MembershipStatus(m.Status),
	}
}

func toDomainRelation(m *models.HierarchyRelation) team.Relation {
	return team.Relation{
		ID:                      m.ID,
		SupervisorMembershipID:  m.SupervisorMembershipID,
		SubordinateMembershipID: m.SubordinateMembershipID,
		Type:                    team.RelationType(m.RelationType),
		Active:                  m.Active,
	}
}
