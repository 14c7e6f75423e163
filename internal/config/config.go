// Package config holds the controller's compiled-in constants and the single
// environment override the spec allows (PROMETHEUS_URL). There is no layered
// config file/flag/env precedence to manage here, so this stays on os.Getenv
// rather than pulling in a configuration library (see DESIGN.md).
package config

import (
	"os"
	"time"

	"github.com/PoornavG/txn-autoscaler/internal/tierset"
)

// Config is the controller's static configuration, per SPEC_FULL.md §4.6.
type Config struct {
	MetricsURL string

	SLOMillis   float64
	QueryWindow string

	MaxReplicas int
	MinReplicas int

	Namespace string

	Cooldown         time.Duration
	IdleRPSThreshold float64
	TickInterval     time.Duration

	Services     tierset.Map
	EntryService string
}

// Default returns the compiled-in defaults from SPEC_FULL.md §4.6, with the
// three-tier storefront -> mid -> backend service map recovered from
// original_source/scaler/scaler.py.
func Default() Config {
	return Config{
		MetricsURL:       "http://prometheus:9090",
		SLOMillis:        500,
		QueryWindow:      "1m",
		MaxReplicas:      5,
		MinReplicas:      1,
		Namespace:        "default",
		Cooldown:         60 * time.Second,
		IdleRPSThreshold: 0.5,
		TickInterval:     15 * time.Second,
		EntryService:     "storefront-service",
		Services: tierset.Map{
			{
				MetricName:        "storefront-service",
				DeploymentName:    "storefront-deployment",
				ScaleDownEligible: false,
				ClientEdges:       []string{"mid-service"},
			},
			{
				MetricName:        "mid-service",
				DeploymentName:    "mid-deployment",
				ScaleDownEligible: true,
				ClientEdges:       []string{"backend-service"},
			},
			{
				MetricName:        "backend-service",
				DeploymentName:    "backend-deployment",
				ScaleDownEligible: true,
				ClientEdges:       nil,
			},
		},
	}
}

// FromEnv layers the PROMETHEUS_URL environment override (spec.md §6) onto
// the compiled-in defaults.
func FromEnv() Config {
	cfg := Default()
	if v := os.Getenv("PROMETHEUS_URL"); v != "" {
		cfg.MetricsURL = v
	}
	return cfg
}
