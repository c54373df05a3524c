package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/pkg/types"
)

// SubjectType identifies which observation source implementation to use
type SubjectType string

const (
	SubjectTypeCluster      SubjectType = "cluster"
	SubjectTypeLimiterFleet SubjectType = "ratelimiter"
)

// Config is the top-level Warden configuration, loaded once at startup.
// Validation failures here are fatal: the monitor loop never starts on
// a malformed configuration.
type Config struct {
	LogLevel   string            `yaml:"log_level"`
	JSONLogs   bool              `yaml:"json_logs"`
	DataDir    string            `yaml:"data_dir"`
	APIAddr    string            `yaml:"api_addr"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Subjects   []SubjectConfig   `yaml:"subjects"`
	Invariants []InvariantConfig `yaml:"invariants"`
	RateLimit  RateLimitConfig   `yaml:"ratelimit"`
}

// MonitorConfig controls the sampling loop
type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ObserveTimeout time.Duration `yaml:"observe_timeout"`
}

// SubjectConfig describes one monitored subject
type SubjectConfig struct {
	Name      string        `yaml:"name"`
	Type      SubjectType   `yaml:"type"`
	Endpoint  string        `yaml:"endpoint"`
	Endpoints []string      `yaml:"endpoints"`
	Timeout   time.Duration `yaml:"timeout"`
}

// InvariantConfig defines a threshold invariant checked every cycle.
// Scope "node" evaluates the metric per node; scope "cluster"
// evaluates it against the observation's aggregates.
type InvariantConfig struct {
	Name               string  `yaml:"name"`
	Subject            string  `yaml:"subject"`
	Metric             string  `yaml:"metric"`
	Op                 string  `yaml:"op"` // ">", "<", ">=", "<=", "=="
	Threshold          float64 `yaml:"threshold"`
	Scope              string  `yaml:"scope"` // "node" or "cluster"
	Severity           string  `yaml:"severity"`
	GracePeriodSeconds int     `yaml:"grace_period_seconds"`
	Message            string  `yaml:"message"`
}

// RateLimitConfig holds the limiter service defaults
type RateLimitConfig struct {
	Addr          string `yaml:"addr"`
	DefaultLimit  int    `yaml:"default_limit"`
	DefaultWindow int    `yaml:"default_window_ms"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		LogLevel: "info",
		JSONLogs: true,
		DataDir:  "/var/lib/warden",
		APIAddr:  ":8080",
		Monitor: MonitorConfig{
			Interval:       15 * time.Second,
			ObserveTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Addr:          ":8081",
			DefaultLimit:  100,
			DefaultWindow: 60000,
		},
	}
}

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors that must be fatal at
// startup: unknown subject types, invariants referencing undefined
// subjects, malformed severities and operators.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %v", c.Monitor.Interval)
	}
	if c.Monitor.ObserveTimeout <= 0 {
		c.Monitor.ObserveTimeout = c.Monitor.Interval
	}
	if c.Monitor.ObserveTimeout > c.Monitor.Interval {
		// A stuck observation must not stall the loop past its interval
		c.Monitor.ObserveTimeout = c.Monitor.Interval
	}

	subjects := make(map[string]bool)
	for _, s := range c.Subjects {
		if s.Name == "" {
			return fmt.Errorf("subject name must not be empty")
		}
		if subjects[s.Name] {
			return fmt.Errorf("duplicate subject name: %s", s.Name)
		}
		subjects[s.Name] = true
		switch s.Type {
		case SubjectTypeCluster:
			if s.Endpoint == "" {
				return fmt.Errorf("subject %s: cluster subjects require an endpoint", s.Name)
			}
		case SubjectTypeLimiterFleet:
			if len(s.Endpoints) == 0 && s.Endpoint != "" {
				// Accept the singular form for a one-instance fleet
				continue
			}
			if len(s.Endpoints) == 0 {
				return fmt.Errorf("subject %s: ratelimiter subjects require endpoints", s.Name)
			}
		default:
			return fmt.Errorf("subject %s: unknown subject type %q", s.Name, s.Type)
		}
	}

	for _, inv := range c.Invariants {
		if inv.Name == "" {
			return fmt.Errorf("invariant name must not be empty")
		}
		if inv.Subject != "" && !subjects[inv.Subject] {
			return fmt.Errorf("invariant %s references unknown subject %q", inv.Name, inv.Subject)
		}
		switch inv.Op {
		case ">", "<", ">=", "<=", "==":
		default:
			return fmt.Errorf("invariant %s: unknown operator %q", inv.Name, inv.Op)
		}
		switch inv.Scope {
		case "node", "cluster":
		default:
			return fmt.Errorf("invariant %s: scope must be node or cluster, got %q", inv.Name, inv.Scope)
		}
		switch types.Severity(inv.Severity) {
		case types.SeverityCritical, types.SeverityWarning, types.SeverityInfo:
		default:
			return fmt.Errorf("invariant %s: unknown severity %q", inv.Name, inv.Severity)
		}
		if inv.GracePeriodSeconds < 0 {
			return fmt.Errorf("invariant %s: grace period must not be negative", inv.Name)
		}
	}

	if c.RateLimit.DefaultLimit <= 0 {
		return fmt.Errorf("ratelimit default_limit must be positive, got %d", c.RateLimit.DefaultLimit)
	}
	if c.RateLimit.DefaultWindow <= 0 {
		return fmt.Errorf("ratelimit default_window_ms must be positive, got %d", c.RateLimit.DefaultWindow)
	}

	return nil
}

// Subject returns the configuration for a named subject
func (c *Config) Subject(name string) (*SubjectConfig, error) {
	for i := range c.Subjects {
		if c.Subjects[i].Name == name {
			return &c.Subjects[i], nil
		}
	}
	return nil, fmt.Errorf("unknown subject: %s", name)
}

// InvariantsFor returns the threshold invariants bound to a subject.
// Invariants with an empty subject apply to every subject.
func (c *Config) InvariantsFor(subject string) []InvariantConfig {
	var out []InvariantConfig
	for _, inv := range c.Invariants {
		if inv.Subject == "" || inv.Subject == subject {
			out = append(out, inv)
		}
	}
	return out
}
