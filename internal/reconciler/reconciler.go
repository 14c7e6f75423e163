// Package reconciler drives the control loop: once per tick it queries
// latency and replica state, runs the bottleneck analysis and scaling
// policy, applies any decision, and tracks the cooldown window. See
// SPEC_FULL.md §4.5.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PoornavG/txn-autoscaler/internal/bottleneck"
	"github.com/PoornavG/txn-autoscaler/internal/metricsclient"
	"github.com/PoornavG/txn-autoscaler/internal/orchestrator"
	"github.com/PoornavG/txn-autoscaler/internal/policy"
	"github.com/PoornavG/txn-autoscaler/internal/tierset"
)

// Clock abstracts time.Now so tests can control tick timing without sleeping.
type Clock func() time.Time

// Reconciler owns ControllerState (spec.md §3: last_scale_at is a field here,
// never package-level mutable state) and drives the tick loop.
type Reconciler struct {
	Metrics      metricsclient.Client
	Orchestrator orchestrator.Client
	Policy       policy.Policy
	Services     tierset.Map
	EntryService string
	QueryWindow  string
	Cooldown     time.Duration
	QueryTimeout time.Duration
	TickInterval time.Duration

	Log   *zap.Logger
	Clock Clock

	lastScaleAt time.Time
}

// New builds a Reconciler with last_scale_at initialized so the first tick
// is never in cooldown (spec.md §3, §4.5 "Start-up").
func New(
	metrics metricsclient.Client,
	orch orchestrator.Client,
	pol policy.Policy,
	services tierset.Map,
	entryService, queryWindow string,
	cooldown, queryTimeout, tickInterval time.Duration,
	log *zap.Logger,
) *Reconciler {
	r := &Reconciler{
		Metrics:      metrics,
		Orchestrator: orch,
		Policy:       pol,
		Services:     services,
		EntryService: entryService,
		QueryWindow:  queryWindow,
		Cooldown:     cooldown,
		QueryTimeout: queryTimeout,
		TickInterval: tickInterval,
		Log:          log,
		Clock:        time.Now,
	}
	r.lastScaleAt = r.Clock().Add(-cooldown)
	return r
}

// Run loops until ctx is cancelled, ticking at TickInterval and backing off
// with a fixed sleep after any error escapes Tick (spec.md §4.5 step 7; §7
// "the loop continues after a fixed back-off sleep").
func (r *Reconciler) Run(ctx context.Context) {
	const backoff = 5 * time.Second

	ticker := time.NewTicker(r.TickInterval)
	defer ticker.Stop()

	r.tickAndLog(ctx, backoff)

	for {
		select {
		case <-ctx.Done():
			r.Log.Info("reconciler loop stopping")
			return
		case <-ticker.C:
			r.tickAndLog(ctx, backoff)
		}
	}
}

func (r *Reconciler) tickAndLog(ctx context.Context, backoff time.Duration) {
	decision, err := r.Tick(ctx)
	if err != nil {
		r.Log.Warn("tick failed, backing off", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		return
	}
	r.Log.Info("tick complete", zap.String("decision", decision.String()))
}

// Tick runs exactly one reconciliation pass (spec.md §4.5 steps 2-6). Any
// unclassified failure is caught here and mapped to a logged NoOp, never
// propagated as a raw panic or unhandled exception (spec.md §9, §7).
func (r *Reconciler) Tick(ctx context.Context) (decision policy.Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New("tick panicked, treating as NoOp this tick")
			decision = policy.Decision{Kind: policy.KindNoOp, Reason: policy.ReasonMetricsUnavailable}
		}
	}()

	queryCtx, cancel := context.WithTimeout(ctx, r.QueryTimeout)
	defer cancel()

	snap := r.observe(queryCtx)
	decision = r.Policy.Decide(snap)

	switch decision.Kind {
	case policy.KindScaleUp, policy.KindScaleDown:
		if applyErr := r.Orchestrator.SetReplicas(queryCtx, decision.Deployment, decision.To); applyErr != nil {
			r.Log.Warn("scaling patch failed, leaving cooldown unchanged so the next tick retries",
				zap.String("deployment", decision.Deployment), zap.Error(applyErr))
			return decision, nil
		}
		r.lastScaleAt = r.Clock()
	}

	return decision, nil
}

// observe performs steps 2-4 of spec.md §4.5: total latency/RPS for the
// entry service, per-tier server/client latencies, and current replica
// counts, issuing the independent queries concurrently and joining them
// before returning (spec.md §5's parallel-fetch allowance).
func (r *Reconciler) observe(ctx context.Context) policy.Snapshot {
	snap := policy.Snapshot{
		TierSelfTimes:     make(map[string]bottleneck.TierLatency, len(r.Services)),
		Replicas:          make(map[string]int32, len(r.Services)),
		CooldownRemaining: r.cooldownRemaining(),
	}

	if snap.CooldownRemaining > 0 {
		// Rule 1 will fire regardless; skip the I/O entirely.
		return snap
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	g.Go(func() error {
		v, err := r.Metrics.AvgLatencyMS(gctx, r.EntryService, tierset.SpanKindServer, r.QueryWindow)
		mu.Lock()
		snap.TotalLatencyMS = policy.Reading{Value: v, Err: err}
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := r.Metrics.RequestRate(gctx, r.EntryService, tierset.SpanKindServer, r.QueryWindow)
		mu.Lock()
		snap.RPS = policy.Reading{Value: v, Err: err}
		mu.Unlock()
		return nil
	})

	for _, svc := range r.Services {
		svc := svc
		g.Go(func() error {
			lat := bottleneck.TierLatency{MetricName: svc.MetricName}

			server, err := r.Metrics.AvgLatencyMS(gctx, svc.MetricName, tierset.SpanKindServer, r.QueryWindow)
			if err != nil {
				return nil //nolint:nilerr // a per-tier metrics failure degrades that tier's self-time to 0, not the whole tick
			}
			lat.ServerTimeMS = server

			// Non-leaf tiers have a single CLIENT span series per spec.md §6's
			// metric schema (service_name + span_kind only), so one query is
			// made per tier. It yields the average latency over all of the
			// tier's outgoing calls: for a single ClientEdge that is the
			// edge's latency; for several edges it is their average, not
			// their sum.
			if len(svc.ClientEdges) > 0 {
				client, err := r.Metrics.AvgLatencyMS(gctx, svc.MetricName, tierset.SpanKindClient, r.QueryWindow)
				if err == nil {
					lat.ClientTimeMS = client
				}
			}

			mu.Lock()
			snap.TierSelfTimes[svc.MetricName] = lat
			mu.Unlock()
			return nil
		})

		g.Go(func() error {
			n, err := r.Orchestrator.GetReplicas(gctx, svc.DeploymentName)
			if err != nil {
				return nil //nolint:nilerr // an unknown replica count degrades that deployment to "unknown" in the snapshot
			}
			mu.Lock()
			snap.Replicas[svc.DeploymentName] = n
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // every Go() above returns nil; failures are carried as Reading.Err/absent map entries instead

	return snap
}

func (r *Reconciler) cooldownRemaining() float64 {
	elapsed := r.Clock().Sub(r.lastScaleAt)
	remaining := r.Cooldown - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining.Seconds()
}
