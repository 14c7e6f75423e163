// Package tierset holds the static description of the request pipeline's tiers:
// which metric name each tracer emits, which deployment fronts it, and whether
// it is allowed to be scaled below the floor.
package tierset

// SpanKind distinguishes an inbound (server) span from an outbound (client) one.
type SpanKind string

const (
	SpanKindServer SpanKind = "SPAN_KIND_SERVER"
	SpanKindClient SpanKind = "SPAN_KIND_CLIENT"
)

// Descriptor identifies one logical tier of the pipeline.
type Descriptor struct {
	// MetricName is the service_name label value emitted by the tier's tracer.
	MetricName string
	// DeploymentName is the orchestrator object this tier's replicas live on.
	DeploymentName string
	// ScaleDownEligible is false for front-tier services, which are never
	// scaled below MinReplicas.
	ScaleDownEligible bool
	// ClientEdges names the metric_name of each tier this tier calls downstream.
	// A linear chain has at most one entry; see SPEC_FULL.md §3 for the
	// fan-out generalization this slice exists to support.
	ClientEdges []string
}

// Map is the ordered, compiled-in set of tiers. Order defines scale-down
// preference and is the tie-break BottleneckAnalyzer falls back to.
type Map []Descriptor

// ByMetricName returns the descriptor with the given metric name, if present.
func (m Map) ByMetricName(metricName string) (Descriptor, bool) {
	for _, d := range m {
		if d.MetricName == metricName {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ScaleDownCandidates returns the tiers eligible for scale-down, in Map order.
func (m Map) ScaleDownCandidates() []Descriptor {
	out := make([]Descriptor, 0, len(m))
	for _, d := range m {
		if d.ScaleDownEligible {
			out = append(out, d)
		}
	}
	return out
}
