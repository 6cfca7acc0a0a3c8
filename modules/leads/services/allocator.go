package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/assignment"
	"github.com/iota-uz/leadrouter/modules/leads/domain/entities/distribution"
)

// Candidate is one unit's standing in an allocation round.
type Candidate struct {
	Config   distribution.Config `json:"config"`
	Today    int                 `json:"today"`
	Week     int                 `json:"week"`
	Eligible bool                `json:"eligible"`
	Expected decimal.Decimal     `json:"expected"`
	Deficit  decimal.Decimal     `json:"deficit"`
}

// Allocation is the outcome of one deficit round. Winner is nil when no unit is eligible.
type Allocation struct {
	TotalToday int         `json:"total_today"`
	Candidates []Candidate `json:"candidates"`
	Winner     *Candidate  `json:"winner,omitempty"`
}

// Snapshot captures the winner's configuration for the ledger.
func (a *Allocation) Snapshot() *assignment.Snapshot {
	if a == nil || a.Winner == nil {
		return nil
	}
	w := a.Winner
	return &assignment.Snapshot{
		Weight:     w.Config.Weight.String(),
		MaxPerDay:  w.Config.MaxPerDay,
		MaxPerWeek: w.Config.MaxPerWeek,
		Expected:   w.Expected.StringFixed(4),
		Actual:     w.Today,
		Deficit:    w.Deficit.StringFixed(4),
		TotalToday: a.TotalToday,
	}
}

// sortCandidates orders configs by unit name, then unit id. The first unit in
// this order wins a tie on deficit.
func sortCandidates(configs []distribution.Config) []distribution.Config {
	out := make([]distribution.Config, len(configs))
	copy(out, configs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UnitName != out[j].UnitName {
			return out[i].UnitName < out[j].UnitName
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out
}

// Allocate picks the unit with the largest deficit between its weighted share of
// today's leads (including the incoming one) and what it already received.
// Units inactive for leads or at a daily or weekly cap are not candidates.
func Allocate(configs []distribution.Config, counts assignment.Counts) *Allocation {
	total := counts.TotalDay()
	next := decimal.NewFromInt(int64(total + 1))

	result := &Allocation{TotalToday: total}
	winner := -1
	for _, cfg := range sortCandidates(configs) {
		if !cfg.ActiveForLeads {
			continue
		}
		c := Candidate{
			Config: cfg,
			Today:  counts.Day[cfg.UnitID],
			Week:   counts.Week[cfg.UnitID],
		}
		c.Eligible = cfg.UnderCaps(c.Today, c.Week)
		c.Expected = cfg.Fraction().Mul(next)
		c.Deficit = c.Expected.Sub(decimal.NewFromInt(int64(c.Today)))
		result.Candidates = append(result.Candidates, c)

		if !c.Eligible {
			continue
		}
		if winner < 0 || c.Deficit.GreaterThan(result.Candidates[winner].Deficit) {
			winner = len(result.Candidates) - 1
		}
	}
	if winner >= 0 {
		w := result.Candidates[winner]
		result.Winner = &w
	}
	return result
}
