package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of the process
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "unhealthy"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker manages health reports from Warden's components
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
}

var healthChecker = &HealthChecker{
	components: make(map[string]ComponentHealth),
	startTime:  time.Now(),
}

// criticalComponents must all be registered and healthy for the
// process to report ready. The monitor loops add themselves at
// startup via RegisterCriticalComponent.
var criticalComponents = []string{"store"}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterComponent registers or updates a component's health
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// RegisterCriticalComponent registers a component and marks it as
// required for readiness
func RegisterCriticalComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	known := false
	for _, c := range criticalComponents {
		if c == name {
			known = true
			break
		}
	}
	if !known {
		criticalComponents = append(criticalComponents, name)
	}
	healthChecker.mu.Unlock()

	RegisterComponent(name, healthy, message)
}

// GetHealth returns the aggregated health of all registered components
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).Round(time.Second).String(),
	}

	for name, comp := range healthChecker.components {
		if comp.Healthy {
			status.Components[name] = "healthy"
			continue
		}
		status.Status = "unhealthy"
		if comp.Message != "" {
			status.Components[name] = "unhealthy: " + comp.Message
		} else {
			status.Components[name] = "unhealthy"
		}
	}

	return status
}

// ReadinessStatus reports whether the process is ready to serve
type ReadinessStatus struct {
	Status    string    `json:"status"` // "ready", "not_ready"
	Timestamp time.Time `json:"timestamp"`
	Missing   []string  `json:"missing,omitempty"`
}

// GetReadiness checks that every critical component is registered
// and healthy
func GetReadiness() ReadinessStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := ReadinessStatus{
		Status:    "ready",
		Timestamp: time.Now(),
	}

	for _, name := range criticalComponents {
		comp, ok := healthChecker.components[name]
		if !ok || !comp.Healthy {
			status.Status = "not_ready"
			status.Missing = append(status.Missing, name)
		}
	}

	return status
}

// HealthHandler serves GET /healthz
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := GetHealth()

	code := http.StatusOK
	if health.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(health)
}

// ReadinessHandler serves GET /readyz
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	readiness := GetReadiness()

	code := http.StatusOK
	if readiness.Status != "ready" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(readiness)
}
