package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PoornavG/txn-autoscaler/internal/bottleneck"
	"github.com/PoornavG/txn-autoscaler/internal/tierset"
)

func testServices() tierset.Map {
	return tierset.Map{
		{MetricName: "storefront-service", DeploymentName: "storefront-deployment", ScaleDownEligible: false, ClientEdges: []string{"mid-service"}},
		{MetricName: "mid-service", DeploymentName: "mid-deployment", ScaleDownEligible: true, ClientEdges: []string{"backend-service"}},
		{MetricName: "backend-service", DeploymentName: "backend-deployment", ScaleDownEligible: true},
	}
}

func testPolicy() Policy {
	return Policy{
		SLOMillis:        500,
		MaxReplicas:      5,
		MinReplicas:      1,
		IdleRPSThreshold: 0.5,
		Services:         testServices(),
	}
}

// Scenario 1 from spec.md §8: idle scale-down cascade.
func TestDecide_IdleScaleDownCascade(t *testing.T) {
	p := testPolicy()

	d1 := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 50},
		RPS:            Reading{Value: 0.1},
		Replicas:       map[string]int32{"mid-deployment": 2, "backend-deployment": 2},
	})
	assert.Equal(t, Decision{Kind: KindScaleDown, Deployment: "mid-deployment", From: 2, To: 1}, d1)

	d2 := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 50},
		RPS:            Reading{Value: 0.1},
		Replicas:       map[string]int32{"mid-deployment": 1, "backend-deployment": 2},
	})
	assert.Equal(t, Decision{Kind: KindScaleDown, Deployment: "backend-deployment", From: 2, To: 1}, d2)

	d3 := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 50},
		RPS:            Reading{Value: 0.1},
		Replicas:       map[string]int32{"mid-deployment": 1, "backend-deployment": 1},
	})
	assert.Equal(t, noOp(ReasonAlreadyMinimal), d3)
}

// Scenario 2 from spec.md §8: backend-bottleneck scale-up.
func TestDecide_BackendBottleneckScaleUp(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 800},
		TierSelfTimes: map[string]bottleneck.TierLatency{
			"mid-service":     {MetricName: "mid-service", ServerTimeMS: 750, ClientTimeMS: 700},
			"backend-service": {MetricName: "backend-service", ServerTimeMS: 700},
		},
		Replicas: map[string]int32{"backend-deployment": 2},
	})
	assert.Equal(t, Decision{Kind: KindScaleUp, Deployment: "backend-deployment", From: 2, To: 3}, d)
}

// Scenario 3 from spec.md §8: mid-tier-bottleneck scale-up.
func TestDecide_MidTierBottleneckScaleUp(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 900},
		TierSelfTimes: map[string]bottleneck.TierLatency{
			"mid-service":     {MetricName: "mid-service", ServerTimeMS: 850, ClientTimeMS: 100},
			"backend-service": {MetricName: "backend-service", ServerTimeMS: 100},
		},
		Replicas: map[string]int32{"mid-deployment": 1},
	})
	assert.Equal(t, Decision{Kind: KindScaleUp, Deployment: "mid-deployment", From: 1, To: 2}, d)
}

// Scenario 4 from spec.md §8: cooldown suppression.
func TestDecide_CooldownSuppressesEverything(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS:    Reading{Value: 800},
		CooldownRemaining: 30,
		Replicas:          map[string]int32{"backend-deployment": 3},
	})
	assert.Equal(t, noOp(ReasonInCooldown), d)
}

// Scenario 5 from spec.md §8: traffic present, SLO met.
func TestDecide_TrafficPresentBlocksScaleDown(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 200},
		RPS:            Reading{Value: 50},
		Replicas:       map[string]int32{"mid-deployment": 2, "backend-deployment": 2},
	})
	assert.Equal(t, noOp(ReasonTrafficPresent), d)
}

// Scenario 6 from spec.md §8: metrics outage.
func TestDecide_MetricsOutage(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Err: errors.New("boom")},
	})
	assert.Equal(t, noOp(ReasonMetricsUnavailable), d)
}

func TestDecide_LatencyExactlyAtSLOTakesScaleDownBranch(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 500}, // == SLO, not >
		RPS:            Reading{Value: 0.1},
		Replicas:       map[string]int32{"mid-deployment": 2, "backend-deployment": 2},
	})
	assert.Equal(t, KindScaleDown, d.Kind)
}

func TestDecide_ReplicaAtMaxDuringScaleUp(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 800},
		TierSelfTimes: map[string]bottleneck.TierLatency{
			"backend-service": {MetricName: "backend-service", ServerTimeMS: 900},
		},
		Replicas: map[string]int32{"backend-deployment": 5},
	})
	assert.Equal(t, noOp(ReasonAtMaxOrUnknown), d)
}

func TestDecide_UnknownReplicaCountDuringScaleUp(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 800},
		TierSelfTimes: map[string]bottleneck.TierLatency{
			"backend-service": {MetricName: "backend-service", ServerTimeMS: 900},
		},
		Replicas: map[string]int32{},
	})
	assert.Equal(t, noOp(ReasonAtMaxOrUnknown), d)
}

func TestDecide_RateUnavailableDuringScaleDown(t *testing.T) {
	p := testPolicy()
	d := p.Decide(Snapshot{
		TotalLatencyMS: Reading{Value: 100},
		RPS:            Reading{Err: errors.New("boom")},
	})
	assert.Equal(t, noOp(ReasonRateUnavailable), d)
}

func TestDecide_IsIdempotentOnIdenticalSnapshot(t *testing.T) {
	p := testPolicy()
	snap := Snapshot{
		TotalLatencyMS: Reading{Value: 800},
		TierSelfTimes: map[string]bottleneck.TierLatency{
			"backend-service": {MetricName: "backend-service", ServerTimeMS: 900},
		},
		Replicas: map[string]int32{"backend-deployment": 2},
	}
	first := p.Decide(snap)
	second := p.Decide(snap)
	assert.Equal(t, first, second)
}
