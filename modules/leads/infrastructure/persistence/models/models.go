package models

import "time"

type SalesUnit struct {
	ID        int64
	Name      string
	Type      string
	Active    bool
	CreatedAt time.Time
}

type DistributionConfig struct {
	UnitID         int64
	UnitName       string
	Weight         string
	ActiveForLeads bool
	MaxPerDay      *int32
	MaxPerWeek     *int32
	Notes          *string
	CreatedBy      *int64
	UpdatedBy      *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Customer struct {
	ID         int64
	ExternalID string
	Name       *string
	CreatedAt  time.Time
}

type Lead struct {
	ID         int64
	CustomerID int64
	Source     string
	Priority   string
	State      string
	Interest   *string
	Notes      *string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Assignment struct {
	ID             int64
	LeadID         int64
	CustomerID     int64
	UnitID         int64
	UserID         *int64
	AssignedBy     *int64
	Type           string
	Status         string
	AssignedAt     time.Time
	AcceptedAt     *time.Time
	Notes          *string
	ConfigSnapshot []byte
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type TeamMembership struct {
	ID       int64
	UserID   int64
	UnitID   int64
	Position string
	Active   bool
	Status   string
}

type HierarchyRelation struct {
	ID                      int64
	SupervisorMembershipID  int64
	SubordinateMembershipID int64
	RelationType            string
	Active                  bool
}
