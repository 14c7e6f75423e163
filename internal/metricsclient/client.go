// Package metricsclient evaluates the two PromQL-shaped queries the control
// loop needs against a Prometheus-compatible time-series backend: average
// latency and request rate, both scoped to a service and span kind.
package metricsclient

import (
	"context"
	"fmt"
	"math"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/PoornavG/txn-autoscaler/internal/scalererr"
	"github.com/PoornavG/txn-autoscaler/internal/tierset"
)

// Client is the interface the reconciler depends on, so tests can supply a
// fake without standing up an HTTP server.
type Client interface {
	AvgLatencyMS(ctx context.Context, service string, kind tierset.SpanKind, window string) (float64, error)
	RequestRate(ctx context.Context, service string, kind tierset.SpanKind, window string) (float64, error)
}

// promClient is the production Client, backed by the real Prometheus HTTP API
// client rather than hand-rolled JSON decoding (see DESIGN.md).
type promClient struct {
	api promv1.API
	log *zap.Logger
}

// New builds a Client against the given Prometheus base address, discarding
// any query warnings. Use NewWithLogger to have them logged.
func New(address string) (Client, error) {
	return NewWithLogger(address, zap.NewNop())
}

// NewWithLogger builds a Client that logs any PromQL evaluation warnings
// (e.g. partial scrape, truncated series) at warn level instead of dropping
// them.
func NewWithLogger(address string, log *zap.Logger) (Client, error) {
	c, err := promapi.NewClient(promapi.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("%w: building prometheus client: %v", scalererr.ErrConfiguration, err)
	}
	return &promClient{api: promv1.NewAPI(c), log: log}, nil
}

// AvgLatencyMS evaluates
//
//	sum(rate(latency_milliseconds_sum{service_name=S,span_kind=K}[W]))
//	  / sum(rate(latency_milliseconds_count{service_name=S,span_kind=K}[W]))
//
// as two separate scalar queries, per SPEC_FULL.md §4.1. A zero or missing
// denominator is reported as 0ms, never as an error.
func (c *promClient) AvgLatencyMS(ctx context.Context, service string, kind tierset.SpanKind, window string) (float64, error) {
	sum, err := c.scalar(ctx, sumQuery(service, kind, window))
	if err != nil {
		return 0, err
	}
	count, err := c.scalar(ctx, countQuery(service, kind, window))
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	return sum / count, nil
}

// RequestRate evaluates sum(rate(latency_milliseconds_count{...}[W])).
func (c *promClient) RequestRate(ctx context.Context, service string, kind tierset.SpanKind, window string) (float64, error) {
	return c.scalar(ctx, countQuery(service, kind, window))
}

func sumQuery(service string, kind tierset.SpanKind, window string) string {
	return fmt.Sprintf(`sum(rate(latency_milliseconds_sum{service_name=%q,span_kind=%q}[%s]))`, service, string(kind), window)
}

func countQuery(service string, kind tierset.SpanKind, window string) string {
	return fmt.Sprintf(`sum(rate(latency_milliseconds_count{service_name=%q,span_kind=%q}[%s]))`, service, string(kind), window)
}

// scalar runs an instant query and returns its single scalar value, treating
// an empty result set as zero and surfacing any transport/evaluation failure
// as ErrMetricsTransport.
func (c *promClient) scalar(ctx context.Context, query string) (float64, error) {
	value, warnings, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: query %q: %v", scalererr.ErrMetricsTransport, query, err)
	}
	for _, w := range warnings {
		c.log.Warn("prometheus query warning", zap.String("query", query), zap.String("warning", w))
	}

	vec, ok := value.(model.Vector)
	if !ok {
		return 0, fmt.Errorf("%w: query %q returned %s, want vector", scalererr.ErrMetricsShape, query, value.Type())
	}
	if len(vec) == 0 {
		return 0, nil
	}

	v := float64(vec[0].Value)
	if math.IsNaN(v) {
		return 0, nil
	}
	return v, nil
}
