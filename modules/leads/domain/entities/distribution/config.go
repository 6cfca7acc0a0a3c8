package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigNotFound = errors.New("distribution config not found")

	hundred = decimal.NewFromInt(100)
)

// Config is the per-unit share of incoming leads and its optional caps.
// A nil cap means unlimited.
type Config struct {
	UnitID         int64           `json:"unit_id"`
	UnitName       string          `json:"unit_name"`
	Weight         decimal.Decimal `json:"weight"`
	ActiveForLeads bool            `json:"active_for_leads"`
	MaxPerDay      *int            `json:"max_per_day,omitempty"`
	MaxPerWeek     *int            `json:"max_per_week,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      *int64          `json:"created_by,omitempty"`
	UpdatedBy      *int64          `json:"updated_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (c Config) Validate() error {
	if c.UnitID <= 0 {
		return fmt.Errorf("unit_id is required")
	}
	if c.Weight.IsNegative() || c.Weight.GreaterThan(hundred) {
		return fmt.Errorf("weight must be within [0,100], got %s", c.Weight.String())
	}
	if c.MaxPerDay != nil && *c.MaxPerDay < 0 {
		return fmt.Errorf("max_per_day must be non-negative")
	}
	if c.MaxPerWeek != nil && *c.MaxPerWeek < 0 {
		return fmt.Errorf("max_per_week must be non-negative")
	}
	return nil
}

// Fraction returns the weight as a share of one.
func (c Config) Fraction() decimal.Decimal {
	return c.Weight.Div(hundred)
}

// UnderCaps reports whether the unit can still take a lead given its counts
// for the current day and week.
func (c Config) UnderCaps(today, week int) bool {
	if c.MaxPerDay != nil && today >= *c.MaxPerDay {
		return false
	}
	if c.MaxPerWeek != nil && week >= *c.MaxPerWeek {
		return false
	}
	return true
}

// TotalActiveWeight sums the weights of configs that are active for leads.
func TotalActiveWeight(configs []Config) decimal.Decimal {
	total := decimal.Zero
	for _, c := range configs {
		if c.ActiveForLeads {
			total = total.Add(c.Weight)
		}
	}
	return total
}

// Consistent reports whether active weights add up to exactly 100.
func Consistent(configs []Config) bool {
	return TotalActiveWeight(configs).Equal(hundred)
}

type Repository interface {
	List(ctx context.Context) ([]Config, error)
	ListActive(ctx context.Context) ([]Config, error)
	GetByUnit(ctx context.Context, unitID int64) (*Config, error)
}
