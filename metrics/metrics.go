// Package metrics records scheduling outcomes for operational visibility.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives engine events. Implementations must be safe for
// concurrent use; the Nop recorder is the default everywhere.
type Recorder interface {
	// RecordPlacement counts a placement attempt by assignment kind
	// ("task"/"absence") and outcome ("ok", "slot_full", "conflict",
	// "blocked", "invalid", "error").
	RecordPlacement(kind, outcome string)

	// RecordLeaveDecision counts a leave workflow transition
	// ("approved", "rejected", "cancelled", "balance_exceeded").
	RecordLeaveDecision(decision string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) RecordPlacement(string, string) {}
func (Nop) RecordLeaveDecision(string)     {}

// =============================================================================
// PROMETHEUS RECORDER
// =============================================================================

// Prom exposes engine counters through a Prometheus registerer.
type Prom struct {
	placements *prometheus.CounterVec
	decisions  *prometheus.CounterVec
}

// NewProm registers the engine collectors on reg. If reg is nil the default
// registerer is used. Already-registered collectors are reused so repeated
// construction (tests, handler rebuilds) is safe.
func NewProm(reg prometheus.Registerer) (*Prom, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	placements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_placements_total",
		Help: "Placement attempts by assignment kind and outcome",
	}, []string{"kind", "outcome"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_leave_decisions_total",
		Help: "Leave workflow transitions by decision",
	}, []string{"decision"})

	if err := reg.Register(placements); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			placements = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(decisions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			decisions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return &Prom{placements: placements, decisions: decisions}, nil
}

func (p *Prom) RecordPlacement(kind, outcome string) {
	p.placements.WithLabelValues(kind, outcome).Inc()
}

func (p *Prom) RecordLeaveDecision(decision string) {
	p.decisions.WithLabelValues(decision).Inc()
}
