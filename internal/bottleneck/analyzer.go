// Package bottleneck computes each tier's self-time from server/client
// latency averages and selects the worst tier. It is pure: no I/O, no
// dependency on a metrics backend, per SPEC_FULL.md §4.3.
package bottleneck

import "github.com/PoornavG/txn-autoscaler/internal/tierset"

// TierLatency is one tier's measured server-side latency and its client-side
// latency, the outgoing-call latency observed at this tier. The reconciler
// fills ClientTimeMS from one query over all of the tier's CLIENT spans;
// with more than one ClientEdge that is an average across edges, not a sum.
// A leaf tier leaves ClientTimeMS at zero.
type TierLatency struct {
	MetricName   string
	ServerTimeMS float64
	ClientTimeMS float64
}

// SelfTime returns max(0, server - client), per spec.md §3.
func (t TierLatency) SelfTime() float64 {
	self := t.ServerTimeMS - t.ClientTimeMS
	if self < 0 {
		return 0
	}
	return self
}

// Select returns the metric_name of the tier with the greatest self-time,
// breaking ties by services' order in the ServiceMap (spec.md §4.3, §9).
//
// A tier in services with no entry in latencies is treated as having zero
// self-time.
func Select(services tierset.Map, latencies map[string]TierLatency) string {
	var (
		bestName string
		bestTime float64
		found    bool
	)

	for _, svc := range services {
		lat, ok := latencies[svc.MetricName]
		var self float64
		if ok {
			self = lat.SelfTime()
		}

		if !found || self > bestTime {
			bestName = svc.MetricName
			bestTime = self
			found = true
		}
	}

	return bestName
}
