package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
)

const DefaultSimulationMax = 100000

type UnitStats struct {
	UnitID           int64           `json:"unit_id"`
	UnitName         string          `json:"unit_name"`
	Weight           decimal.Decimal `json:"weight"`
	MaxPerDay        *int            `json:"max_per_day,omitempty"`
	MaxPerWeek       *int            `json:"max_per_week,omitempty"`
	Today            int             `json:"current_count"`
	Week             int             `json:"week_count"`
	Expected         decimal.Decimal `json:"expected_count"`
	Deficit          decimal.Decimal `json:"deficit"`
	ActualPercentage decimal.Decimal `json:"actual_percentage"`
	Accuracy         decimal.Decimal `json:"accuracy"`
	Capped           bool            `json:"capped"`
}

type DistributionStats struct {
	Date        string          `json:"date"`
	WeekStart   string          `json:"week_start"`
	TotalToday  int             `json:"total_leads_today"`
	TotalWeight decimal.Decimal `json:"total_active_weight"`
	Consistent  bool            `json:"consistent"`
	Units       []UnitStats     `json:"units"`
}

// DistributionService reports how leads are spread over units.
type DistributionService struct {
	configs       distribution.Repository
	ledger        assignment.Ledger
	inTx          TxRunner
	loc           *time.Location
	now           func() time.Time
	simulationMax int
}

func NewDistributionService(configs distribution.Repository, ledger assignment.Ledger, loc *time.Location, simulationMax int) *DistributionService {
	if loc == nil {
		loc = time.UTC
	}
	if simulationMax <= 0 {
		simulationMax = DefaultSimulationMax
	}
	return &DistributionService{
		configs:       configs,
		ledger:        ledger,
		inTx:          defaultTxRunner,
		loc:           loc,
		now:           time.Now,
		simulationMax: simulationMax,
	}
}

func (s *DistributionService) TotalActiveWeight(ctx context.Context) (decimal.Decimal, error) {
	configs, err := s.configs.List(ctx)
	if err != nil {
		return decimal.Zero, mapDomainError(err)
	}
	return distribution.TotalActiveWeight(configs), nil
}

// Stats compares today's allocation per active unit against its weight.
func (s *DistributionService) Stats(ctx context.Context, actorID int64) (*DistributionStats, error) {
	if err := authorizeLeads(ctx, actorID, DistributionAuthzObject, "view"); err != nil {
		return nil, mapDomainError(err)
	}

	window := assignment.WindowFor(s.now(), s.loc)
	var (
		configs []distribution.Config
		counts  assignment.Counts
	)
	err := s.inTx(ctx, func(txCtx context.Context) error {
		var err error
		if configs, err = s.configs.ListActive(txCtx); err != nil {
			return err
		}
		counts, err = s.ledger.Counts(txCtx, window)
		return err
	})
	if err != nil {
		return nil, mapDomainError(err)
	}

	consistent := distribution.Consistent(configs)
	recordConfigConsistency(consistent)

	total := counts.TotalDay()
	totalDec := decimal.NewFromInt(int64(total))
	stats := &DistributionStats{
		Date:        window.Day.Format(time.DateOnly),
		WeekStart:   window.WeekStart.Format(time.DateOnly),
		TotalToday:  total,
		TotalWeight: distribution.TotalActiveWeight(configs),
		Consistent:  consistent,
		Units:       make([]UnitStats, 0, len(configs)),
	}
	for _, c := range sortCandidates(configs) {
		today := counts.Day[c.UnitID]
		week := counts.Week[c.UnitID]
		current := decimal.NewFromInt(int64(today))
		expected := c.Fraction().Mul(totalDec)
		actual := decimal.Zero
		if total > 0 {
			actual = current.Div(totalDec).Mul(hundredPercent)
		}
		stats.Units = append(stats.Units, UnitStats{
			UnitID:           c.UnitID,
			UnitName:         c.UnitName,
			Weight:           c.Weight,
			MaxPerDay:        c.MaxPerDay,
			MaxPerWeek:       c.MaxPerWeek,
			Today:            today,
			Week:             week,
			Expected:         expected.Round(2),
			Deficit:          expected.Sub(current).Round(2),
			ActualPercentage: actual.Round(2),
			Accuracy:         hundredPercent.Sub(c.Weight.Sub(actual).Abs()).Round(2),
			Capped:           !c.UnderCaps(today, week),
		})
	}
	return stats, nil
}

// Simulate replays n leads over the current active configuration without writing.
func (s *DistributionService) Simulate(ctx context.Context, actorID int64, n int) (*SimulationResult, error) {
	if err := authorizeLeads(ctx, actorID, DistributionAuthzObject, "simulate"); err != nil {
		return nil, mapDomainError(err)
	}
	if n <= 0 || n > s.simulationMax {
		return nil, newServiceError(
			http.StatusUnprocessableEntity,
			CodeInvalidInput,
			fmt.Sprintf("leads must be between 1 and %d", s.simulationMax),
			nil,
		)
	}
	configs, err := s.configs.ListActive(ctx)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return Simulate(configs, n, false), nil
}
