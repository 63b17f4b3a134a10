package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes. Healthz never
// touches dependencies; Readyz asks the system service to probe them.
type HealthHandlers struct {
	system services.SystemService
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// WithHealthSystemService wires the dependency probe used by Readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthClock overrides the time source, used by tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

type readinessPayload struct {
	Status      string                        `json:"status"`
	Checks      map[string]healthCheckPayload `json:"checks,omitempty"`
	Details     []string                      `json:"details,omitempty"`
	GeneratedAt string                        `json:"generated_at,omitempty"`
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":    string(domain.HealthStatusOK),
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	})
}

// Readyz reports whether the service's dependencies are reachable. Without a
// system service it degrades to a liveness answer.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readinessPayload{Status: string(domain.HealthStatusOK)})
		return
	}

	report, err := h.system.Health(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readinessPayload{
			Status:  string(domain.HealthStatusError),
			Details: []string{err.Error()},
		})
		return
	}

	payload := readinessPayload{
		Status:      string(report.Status),
		GeneratedAt: formatTime(report.GeneratedAt),
	}
	if len(report.Checks) > 0 {
		payload.Checks = make(map[string]healthCheckPayload, len(report.Checks))
		for name, check := range report.Checks {
			payload.Checks[name] = healthCheckPayload{
				Status:    string(check.Status),
				Detail:    check.Detail,
				Error:     check.Error,
				LatencyMS: check.Latency.Milliseconds(),
				CheckedAt: formatTime(check.CheckedAt),
			}
			if check.Status != domain.HealthStatusOK && check.Error != "" {
				payload.Details = append(payload.Details, name+": "+check.Error)
			}
		}
		sort.Strings(payload.Details)
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
