// Command autoscaler runs the transaction-aware horizontal autoscaler's
// control loop: it reads end-to-end latency from Prometheus, attributes the
// bottleneck tier via self-time decomposition, and patches that tier's
// Deployment replica count, all while respecting a cooldown window. See
// SPEC_FULL.md for the full design.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/PoornavG/txn-autoscaler/internal/config"
	"github.com/PoornavG/txn-autoscaler/internal/metricsclient"
	"github.com/PoornavG/txn-autoscaler/internal/orchestrator"
	"github.com/PoornavG/txn-autoscaler/internal/policy"
	"github.com/PoornavG/txn-autoscaler/internal/reconciler"
)

func main() {
	var (
		kubeconfigPath          string
		queryTimeout            time.Duration
		leaderElect             bool
		leaderElectionID        string
		leaderElectionNamespace string
		healthProbeBindAddress  string
		development             bool
	)

	flag.StringVar(&kubeconfigPath, "kubeconfig", "", "Path to kubeconfig (optional; falls back to in-cluster, then $HOME/.kube/config)")
	flag.DurationVar(&queryTimeout, "query-timeout", 10*time.Second, "Timeout for one tick's metrics and orchestrator calls (a single deadline shared by the whole tick)")
	flag.BoolVar(&leaderElect, "leader-elect", true, "Enable leader election so only one replica of this binary runs the control loop")
	flag.StringVar(&leaderElectionID, "leader-election-id", "txn-autoscaler", "Leader election lease name")
	flag.StringVar(&leaderElectionNamespace, "leader-election-namespace", "", "Leader election lease namespace (defaults to $POD_NAMESPACE, then \"default\")")
	flag.StringVar(&healthProbeBindAddress, "health-probe-bind-address", ":8081", "Liveness/readiness probe bind address")
	flag.BoolVar(&development, "development", false, "Use a human-readable development log encoder instead of JSON")
	flag.Parse()

	log := newLogger(development)
	defer func() { _ = log.Sync() }()

	cfg := config.FromEnv()

	metrics, err := metricsclient.NewWithLogger(cfg.MetricsURL, log)
	if err != nil {
		log.Fatal("build metrics client", zap.Error(err))
	}

	orch, err := orchestrator.New(cfg.Namespace, kubeconfigPath)
	if err != nil {
		log.Fatal("build orchestrator client", zap.Error(err))
	}

	pol := policy.Policy{
		SLOMillis:        cfg.SLOMillis,
		MaxReplicas:      int32(cfg.MaxReplicas),
		MinReplicas:      int32(cfg.MinReplicas),
		IdleRPSThreshold: cfg.IdleRPSThreshold,
		Services:         cfg.Services,
	}

	rec := reconciler.New(
		metrics, orch, pol, cfg.Services, cfg.EntryService, cfg.QueryWindow,
		cfg.Cooldown, queryTimeout, cfg.TickInterval, log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startHealthServer(ctx, healthProbeBindAddress, log)

	if !leaderElect {
		rec.Run(ctx)
		return
	}

	if strings.TrimSpace(leaderElectionNamespace) == "" {
		leaderElectionNamespace = os.Getenv("POD_NAMESPACE")
		if strings.TrimSpace(leaderElectionNamespace) == "" {
			leaderElectionNamespace = cfg.Namespace
		}
	}

	restConfig, err := buildRestConfig(kubeconfigPath)
	if err != nil {
		log.Fatal("build rest config for leader election", zap.Error(err))
	}
	kubeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Fatal("build kubernetes client for leader election", zap.Error(err))
	}

	identity := os.Getenv("POD_NAME")
	if identity == "" {
		hostname, hostErr := os.Hostname()
		if hostErr != nil {
			identity = fmt.Sprintf("pid-%d", os.Getpid())
		} else {
			identity = hostname
		}
	}

	lock, err := resourcelock.New(
		resourcelock.LeasesResourceLock,
		leaderElectionNamespace,
		leaderElectionID,
		kubeClient.CoreV1(),
		kubeClient.CoordinationV1(),
		resourcelock.ResourceLockConfig{Identity: identity},
	)
	if err != nil {
		log.Fatal("build leader election lock", zap.Error(err))
	}

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   15 * time.Second,
		RenewDeadline:   10 * time.Second,
		RetryPeriod:     2 * time.Second,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				log.Info("acquired leadership", zap.String("identity", identity))
				rec.Run(ctx)
			},
			OnStoppedLeading: func() {
				log.Info("lost leadership", zap.String("identity", identity))
				os.Exit(1)
			},
			OnNewLeader: func(newLeader string) {
				if newLeader == identity {
					return
				}
				log.Info("new leader elected", zap.String("leader", newLeader))
			},
		},
		Name: leaderElectionID,
	})
}

func newLogger(development bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if development {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}

func buildRestConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("not in-cluster and could not determine home directory: %w", err)
	}
	return clientcmd.BuildConfigFromFlags("", home+"/.kube/config")
}

func startHealthServer(ctx context.Context, addr string, log *zap.Logger) {
	if strings.TrimSpace(addr) == "" || addr == "0" {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("health server stopped", zap.Error(err))
		}
	}()
}
