package services

import (
	"github.com/shopspring/decimal"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
)

type SimulatedUnit struct {
	UnitID             int64           `json:"unit_id"`
	UnitName           string          `json:"unit_name"`
	ExpectedPercentage decimal.Decimal `json:"expected_percentage"`
	Assigned           int             `json:"assigned"`
	FinalPercentage    decimal.Decimal `json:"final_percentage"`
	Accuracy           decimal.Decimal `json:"accuracy"`
}

type SimulationResult struct {
	TotalLeads      int             `json:"total_leads"`
	TotalAssigned   int             `json:"total_assigned"`
	Units           []SimulatedUnit `json:"units"`
	AverageAccuracy decimal.Decimal `json:"average_accuracy"`
	// Sequence lists the winning unit id for each simulated lead.
	Sequence []int64 `json:"sequence,omitempty"`
}

// Simulate replays the deficit rule over n leads starting from an empty day.
// Caps are ignored; only units active for leads take part.
func Simulate(configs []distribution.Config, n int, keepSequence bool) *SimulationResult {
	active := make([]distribution.Config, 0, len(configs))
	for _, c := range configs {
		if !c.ActiveForLeads {
			continue
		}
		c.MaxPerDay = nil
		c.MaxPerWeek = nil
		active = append(active, c)
	}
	active = sortCandidates(active)

	res := &SimulationResult{TotalLeads: n, AverageAccuracy: decimal.Zero}
	if len(active) == 0 || n <= 0 {
		return res
	}

	counts := assignment.Counts{Day: make(map[int64]int, len(active)), Week: map[int64]int{}}
	if keepSequence {
		res.Sequence = make([]int64, 0, n)
	}
	for i := 0; i < n; i++ {
		alloc := Allocate(active, counts)
		if alloc.Winner == nil {
			break
		}
		id := alloc.Winner.Config.UnitID
		counts.Day[id]++
		res.TotalAssigned++
		if keepSequence {
			res.Sequence = append(res.Sequence, id)
		}
	}

	total := decimal.NewFromInt(int64(n))
	sum := decimal.Zero
	for _, c := range active {
		assigned := counts.Day[c.UnitID]
		final := decimal.NewFromInt(int64(assigned)).Div(total).Mul(hundredPercent)
		accuracy := hundredPercent.Sub(c.Weight.Sub(final).Abs())
		sum = sum.Add(accuracy)
		res.Units = append(res.Units, SimulatedUnit{
			UnitID:             c.UnitID,
			UnitName:           c.UnitName,
			ExpectedPercentage: c.Weight,
			Assigned:           assigned,
			FinalPercentage:    final.Round(2),
			Accuracy:           accuracy.Round(2),
		})
	}
	res.AverageAccuracy = sum.Div(decimal.NewFromInt(int64(len(active)))).Round(2)
	return res
}

var hundredPercent = decimal.NewFromInt(100)
