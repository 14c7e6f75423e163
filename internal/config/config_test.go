package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_HasThreeTierServiceMapInOrder(t *testing.T) {
	cfg := Default()
	require := assert.New(t)
	require.Len(cfg.Services, 3)
	require.Equal("storefront-service", cfg.Services[0].MetricName)
	require.Equal("mid-service", cfg.Services[1].MetricName)
	require.Equal("backend-service", cfg.Services[2].MetricName)
	require.False(cfg.Services[0].ScaleDownEligible)
	require.True(cfg.Services[1].ScaleDownEligible)
	require.True(cfg.Services[2].ScaleDownEligible)
}

func TestFromEnv_OverridesMetricsURL(t *testing.T) {
	t.Setenv("PROMETHEUS_URL", "http://prom.internal:9090")
	cfg := FromEnv()
	assert.Equal(t, "http://prom.internal:9090", cfg.MetricsURL)
}

func TestFromEnv_KeepsDefaultWhenUnset(t *testing.T) {
	os.Unsetenv("PROMETHEUS_URL")
	cfg := FromEnv()
	assert.Equal(t, Default().MetricsURL, cfg.MetricsURL)
}
