package subject

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wardenhq/warden/pkg/types"
)

// FleetSource observes a fleet of rate limiter instances through
// their HTTP surfaces. An instance that fails its health probe shows
// up as a Down node; the per-instance window stats are summed into
// the observation's aggregates so cluster-scoped invariants like
// limiter saturation can evaluate fleet-wide state.
type FleetSource struct {
	name      string
	endpoints []string
	client    *http.Client
}

// NewFleetSource creates a limiter-fleet observation source
func NewFleetSource(name string, endpoints []string, timeout time.Duration) *FleetSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FleetSource{
		name:      name,
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name identifies the subject
func (f *FleetSource) Name() string {
	return f.name
}

// Observe probes every limiter instance
func (f *FleetSource) Observe(ctx context.Context) (*types.Observation, error) {
	obs := &types.Observation{
		Subject:    f.name,
		ObservedAt: time.Now(),
		Aggregates: map[string]float64{
			"tracked_keys":      0,
			"keys_at_limit":     0,
			"entries_in_window": 0,
		},
	}

	for i, endpoint := range f.endpoints {
		id := fmt.Sprintf("limiter-%d", i)
		node := &types.NodeInfo{
			ID:      id,
			Address: endpoint,
			State:   types.NodeStateUp,
		}

		if err := f.probe(ctx, endpoint); err != nil {
			node.State = types.NodeStateDown
			obs.Nodes = append(obs.Nodes, node)
			continue
		}

		stats, err := f.stats(ctx, endpoint)
		if err == nil {
			node.Metrics = map[string]float64{
				"tracked_keys":      float64(stats.TrackedKeys),
				"keys_at_limit":     float64(stats.KeysAtLimit),
				"entries_in_window": float64(stats.EntriesInWindow),
			}
			obs.Aggregates["tracked_keys"] += float64(stats.TrackedKeys)
			obs.Aggregates["keys_at_limit"] += float64(stats.KeysAtLimit)
			obs.Aggregates["entries_in_window"] += float64(stats.EntriesInWindow)
		}
		obs.Nodes = append(obs.Nodes, node)
	}

	return obs, nil
}

// ActionDefinitions lists limiter remediation actions
func (f *FleetSource) ActionDefinitions() []types.ActionDefinition {
	return []types.ActionDefinition{
		{
			Name:        "reset_counter",
			Description: "Clear the sliding window for a limiter key",
			Parameters:  []string{"key"},
		},
		{
			Name:        "update_limit",
			Description: "Set a per-key limit override",
			Parameters:  []string{"key", "limit", "window_ms"},
		},
	}
}

func (f *FleetSource) probe(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz returned %d", resp.StatusCode)
	}
	return nil
}

type fleetStats struct {
	TrackedKeys     int `json:"tracked_keys"`
	KeysAtLimit     int `json:"keys_at_limit"`
	EntriesInWindow int `json:"entries_in_window"`
}

func (f *FleetSource) stats(ctx context.Context, endpoint string) (*fleetStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/stats", nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats returned %d", resp.StatusCode)
	}

	var stats fleetStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
