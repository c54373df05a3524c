package subject

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/types"
)

// Source supplies observations for one monitored subject. Observe is
// blocking; callers bound it with a context deadline so a stuck
// subject cannot stall the monitor loop.
type Source interface {
	// Name identifies the subject
	Name() string

	// Observe fetches a fresh snapshot of the subject's state
	Observe(ctx context.Context) (*types.Observation, error)

	// ActionDefinitions lists the remediation actions the subject
	// exposes. Warden relays these to external tooling; it never
	// executes them itself.
	ActionDefinitions() []types.ActionDefinition
}

// FromConfig builds the source for one configured subject
func FromConfig(cfg *config.SubjectConfig) (Source, error) {
	switch cfg.Type {
	case config.SubjectTypeCluster:
		return NewClusterSource(cfg.Name, cfg.Endpoint, cfg.Timeout), nil
	case config.SubjectTypeLimiterFleet:
		endpoints := cfg.Endpoints
		if len(endpoints) == 0 && cfg.Endpoint != "" {
			endpoints = []string{cfg.Endpoint}
		}
		return NewFleetSource(cfg.Name, endpoints, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown subject type: %s", cfg.Type)
	}
}
