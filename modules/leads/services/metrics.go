package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	leadsAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leads",
		Subsystem: "allocation",
		Name:      "decisions_total",
		Help:      "Total number of allocation decisions broken down by outcome.",
	}, []string{"outcome"})

	leadsAllocatedUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leads",
		Subsystem: "allocation",
		Name:      "units_total",
		Help:      "Total number of leads allocated per sales unit.",
	}, []string{"unit"})

	leadsAccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leads",
		Subsystem: "access",
		Name:      "decisions_total",
		Help:      "Total number of access gate decisions broken down by mode and result.",
	}, []string{"mode", "result"})

	leadsAssignmentConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leads",
		Subsystem: "assignment",
		Name:      "conflicts_total",
		Help:      "Total number of assignment write conflicts broken down by kind.",
	}, []string{"kind"})

	leadsConfigInconsistent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "leads",
		Subsystem: "distribution",
		Name:      "config_inconsistent",
		Help:      "1 when active distribution weights do not add up to 100.",
	})
)

func recordAllocation(outcome string) {
	leadsAllocations.WithLabelValues(outcome).Inc()
}

func recordAllocatedUnit(unit string) {
	if unit == "" {
		unit = "unknown"
	}
	leadsAllocatedUnits.WithLabelValues(unit).Inc()
}

func recordAccessDecision(mode ViewMode, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	leadsAccessDecisions.WithLabelValues(string(mode), result).Inc()
}

func recordAssignmentConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	leadsAssignmentConflicts.WithLabelValues(kind).Inc()
}

func recordConfigConsistency(consistent bool) {
	if consistent {
		leadsConfigInconsistent.Set(0)
		return
	}
	leadsConfigInconsistent.Set(1)
}

var leadsStickiness = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "leads",
	Subsystem: "stickiness",
	Name:      "short_circuits_total",
	Help:      "Total number of allocations skipped by the stickiness guard broken down by kind.",
}, []string{"kind"})

func recordStickiness(outcome Outcome) {
	leadsStickiness.WithLabelValues(string(outcome)).Inc()
}
