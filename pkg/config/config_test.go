package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
subjects:
  - name: kv-cluster
    type: cluster
    endpoint: http://localhost:2379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.ObserveTimeout)
	assert.Equal(t, 100, cfg.RateLimit.DefaultLimit)
	assert.Equal(t, 60000, cfg.RateLimit.DefaultWindow)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
data_dir: /tmp/warden
monitor:
  interval: 30s
  observe_timeout: 5s
subjects:
  - name: kv-cluster
    type: cluster
    endpoint: http://localhost:2379
  - name: limiters
    type: ratelimiter
    endpoints:
      - http://localhost:8081
      - http://localhost:8082
invariants:
  - name: high_latency
    subject: kv-cluster
    metric: latency_ms
    op: ">"
    threshold: 500
    scope: node
    severity: warning
    grace_period_seconds: 30
ratelimit:
  default_limit: 50
  default_window_ms: 10000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Len(t, cfg.Subjects, 2)
	assert.Len(t, cfg.Invariants, 1)
	assert.Equal(t, 50, cfg.RateLimit.DefaultLimit)

	sc, err := cfg.Subject("limiters")
	require.NoError(t, err)
	assert.Equal(t, SubjectTypeLimiterFleet, sc.Type)
	assert.Len(t, sc.Endpoints, 2)

	_, err = cfg.Subject("nope")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/warden.yaml")
	assert.Error(t, err)
}

func TestValidateObserveTimeoutClamped(t *testing.T) {
	cfg := Default()
	cfg.Monitor.Interval = 10 * time.Second
	cfg.Monitor.ObserveTimeout = time.Minute

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Monitor.ObserveTimeout)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) {
			c.Monitor.Interval = 0
		}},
		{"unknown subject type", func(c *Config) {
			c.Subjects = []SubjectConfig{{Name: "x", Type: "redis"}}
		}},
		{"cluster without endpoint", func(c *Config) {
			c.Subjects = []SubjectConfig{{Name: "x", Type: SubjectTypeCluster}}
		}},
		{"fleet without endpoints", func(c *Config) {
			c.Subjects = []SubjectConfig{{Name: "x", Type: SubjectTypeLimiterFleet}}
		}},
		{"duplicate subject", func(c *Config) {
			c.Subjects = []SubjectConfig{
				{Name: "x", Type: SubjectTypeCluster, Endpoint: "http://a"},
				{Name: "x", Type: SubjectTypeCluster, Endpoint: "http://b"},
			}
		}},
		{"invariant unknown subject", func(c *Config) {
			c.Invariants = []InvariantConfig{{
				Name: "i", Subject: "ghost", Op: ">", Scope: "node", Severity: "warning",
			}}
		}},
		{"invariant bad operator", func(c *Config) {
			c.Invariants = []InvariantConfig{{
				Name: "i", Op: "!=", Scope: "node", Severity: "warning",
			}}
		}},
		{"invariant bad scope", func(c *Config) {
			c.Invariants = []InvariantConfig{{
				Name: "i", Op: ">", Scope: "region", Severity: "warning",
			}}
		}},
		{"invariant bad severity", func(c *Config) {
			c.Invariants = []InvariantConfig{{
				Name: "i", Op: ">", Scope: "node", Severity: "urgent",
			}}
		}},
		{"invariant negative grace", func(c *Config) {
			c.Invariants = []InvariantConfig{{
				Name: "i", Op: ">", Scope: "node", Severity: "info", GracePeriodSeconds: -1,
			}}
		}},
		{"nonpositive default limit", func(c *Config) {
			c.RateLimit.DefaultLimit = 0
		}},
		{"nonpositive default window", func(c *Config) {
			c.RateLimit.DefaultWindow = -5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSingleEndpointFleetIsValid(t *testing.T) {
	cfg := Default()
	cfg.Subjects = []SubjectConfig{{
		Name:     "limiters",
		Type:     SubjectTypeLimiterFleet,
		Endpoint: "http://localhost:8081",
	}}
	cfg.Invariants = []InvariantConfig{{
		Name:     "saturated",
		Subject:  "limiters",
		Metric:   "keys_at_limit",
		Op:       ">",
		Scope:    "cluster",
		Severity: "warning",
	}}
	assert.NoError(t, cfg.Validate())
}

func TestInvariantsFor(t *testing.T) {
	cfg := Default()
	cfg.Invariants = []InvariantConfig{
		{Name: "everywhere", Op: ">", Scope: "cluster", Severity: "info"},
		{Name: "only-kv", Subject: "kv-cluster", Op: ">", Scope: "node", Severity: "info"},
	}

	kv := cfg.InvariantsFor("kv-cluster")
	assert.Len(t, kv, 2)

	other := cfg.InvariantsFor("limiters")
	if assert.Len(t, other, 1) {
		assert.Equal(t, "everywhere", other[0].Name)
	}
}
