// Package policy implements the pure decision function at the heart of the
// controller: given one tick's snapshot, emit exactly one ScalingDecision.
// See SPEC_FULL.md §4.4 for the four ordered rules this implements.
package policy

import (
	"fmt"

	"github.com/PoornavG/txn-autoscaler/internal/bottleneck"
	"github.com/PoornavG/txn-autoscaler/internal/tierset"
)

// Reason enumerates the NoOp reasons the spec names explicitly.
type Reason string

const (
	ReasonInCooldown         Reason = "InCooldown"
	ReasonMetricsUnavailable Reason = "MetricsUnavailable"
	ReasonAtMaxOrUnknown     Reason = "AtMaxOrUnknown"
	ReasonRateUnavailable    Reason = "RateUnavailable"
	ReasonTrafficPresent     Reason = "TrafficPresent"
	ReasonAlreadyMinimal     Reason = "AlreadyMinimal"
)

// Kind tags which variant a Decision is.
type Kind int

const (
	KindNoOp Kind = iota
	KindScaleUp
	KindScaleDown
)

// Decision is the tagged ScalingDecision variant from spec.md §3.
type Decision struct {
	Kind       Kind
	Reason     Reason // set only for KindNoOp
	Deployment string // set for ScaleUp/ScaleDown
	From       int32
	To         int32
}

func (d Decision) String() string {
	switch d.Kind {
	case KindScaleUp:
		return fmt.Sprintf("ScaleUp(%s, %d -> %d)", d.Deployment, d.From, d.To)
	case KindScaleDown:
		return fmt.Sprintf("ScaleDown(%s, %d -> %d)", d.Deployment, d.From, d.To)
	default:
		return fmt.Sprintf("NoOp(%s)", d.Reason)
	}
}

func noOp(reason Reason) Decision { return Decision{Kind: KindNoOp, Reason: reason} }

// Reading carries the result of a single scalar metrics query: a value, or
// an error that makes the value unusable this tick.
type Reading struct {
	Value float64
	Err   error
}

// Snapshot is the joined, read-only input to one tick's decision, per
// spec.md §4.4.
type Snapshot struct {
	TotalLatencyMS    Reading
	RPS               Reading
	TierSelfTimes     map[string]bottleneck.TierLatency // keyed by metric_name
	Replicas          map[string]int32                  // keyed by deployment_name
	CooldownRemaining float64                            // seconds; > 0 means still cooling down
}

// Policy holds the static bounds and the compiled-in service map the
// decision function needs.
type Policy struct {
	SLOMillis        float64
	MaxReplicas      int32
	MinReplicas      int32
	IdleRPSThreshold float64
	Services         tierset.Map
}

// Decide applies the four ordered rules from spec.md §4.4 and returns
// exactly one Decision.
func (p Policy) Decide(snap Snapshot) Decision {
	// Rule 1: cooldown guard.
	if snap.CooldownRemaining > 0 {
		return noOp(ReasonInCooldown)
	}

	// Rule 2: missing data.
	if snap.TotalLatencyMS.Err != nil {
		return noOp(ReasonMetricsUnavailable)
	}

	// Rule 3: scale-up branch.
	if snap.TotalLatencyMS.Value > p.SLOMillis {
		bottleneckService := bottleneck.Select(p.Services, snap.TierSelfTimes)
		desc, ok := p.Services.ByMetricName(bottleneckService)
		if !ok {
			return noOp(ReasonAtMaxOrUnknown)
		}

		r, known := snap.Replicas[desc.DeploymentName]
		if known && r < p.MaxReplicas {
			return Decision{Kind: KindScaleUp, Deployment: desc.DeploymentName, From: r, To: r + 1}
		}
		return noOp(ReasonAtMaxOrUnknown)
	}

	// Rule 4: scale-down branch (total_latency_ms <= SLO_MS).
	if snap.RPS.Err != nil {
		return noOp(ReasonRateUnavailable)
	}
	if snap.RPS.Value >= p.IdleRPSThreshold {
		return noOp(ReasonTrafficPresent)
	}

	for _, desc := range p.Services.ScaleDownCandidates() {
		r, known := snap.Replicas[desc.DeploymentName]
		if known && r > p.MinReplicas {
			return Decision{Kind: KindScaleDown, Deployment: desc.DeploymentName, From: r, To: r - 1}
		}
	}
	return noOp(ReasonAlreadyMinimal)
}
