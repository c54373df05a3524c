package subject

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wardenhq/warden/pkg/types"
)

// ClusterSource observes a key-value cluster through its status
// endpoint. The endpoint is expected to serve GET /status with a
// JSON body listing stores and cluster aggregates.
type ClusterSource struct {
	name     string
	endpoint string
	client   *http.Client
}

// clusterStatus is the wire shape of the cluster's status endpoint
type clusterStatus struct {
	Stores []struct {
		ID      string             `json:"id"`
		Address string             `json:"address"`
		State   string             `json:"state"`
		Metrics map[string]float64 `json:"metrics"`
	} `json:"stores"`
	Aggregates map[string]float64 `json:"aggregates"`
}

// NewClusterSource creates a cluster observation source
func NewClusterSource(name, endpoint string, timeout time.Duration) *ClusterSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ClusterSource{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name identifies the subject
func (c *ClusterSource) Name() string {
	return c.name
}

// Observe fetches the cluster's current status
func (c *ClusterSource) Observe(ctx context.Context) (*types.Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cluster status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cluster status returned %d", resp.StatusCode)
	}

	var status clusterStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode cluster status: %w", err)
	}

	obs := &types.Observation{
		Subject:    c.name,
		ObservedAt: time.Now(),
		Aggregates: status.Aggregates,
	}
	for _, s := range status.Stores {
		state := types.NodeState(s.State)
		switch state {
		case types.NodeStateUp, types.NodeStateDown:
		default:
			state = types.NodeStateUnknown
		}
		obs.Nodes = append(obs.Nodes, &types.NodeInfo{
			ID:      s.ID,
			Address: s.Address,
			State:   state,
			Metrics: s.Metrics,
		})
	}
	return obs, nil
}

// ActionDefinitions lists cluster remediation actions
func (c *ClusterSource) ActionDefinitions() []types.ActionDefinition {
	return []types.ActionDefinition{
		{
			Name:        "restart_store",
			Description: "Restart a store process on its host",
			Parameters:  []string{"store_id"},
		},
		{
			Name:        "evict_leader",
			Description: "Move region leaders off a store before maintenance",
			Parameters:  []string{"store_id"},
		},
	}
}
