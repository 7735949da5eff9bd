// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package server

import (
	"encoding/json"
	"net/http"

	"github.com/jeremyhahn/go-passkey/pkg/health"
)

// HealthCheckResponse represents the response for health check endpoints.
type HealthCheckResponse struct {
	// Status is the overall health status
	Status health.Status `json:"status"`
	// Message provides additional context
	Message string `json:"message,omitempty"`
	// Checks contains individual check results (for readiness)
	Checks []health.CheckResult `json:"checks,omitempty"`
}

func writeHealthJSON(w http.ResponseWriter, resp HealthCheckResponse, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// HealthHandler handles GET /health, a compact overall check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	results := s.checker.Ready(r.Context())
	overall := health.AggregateStatus(results)

	status := http.StatusOK
	if overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	writeHealthJSON(w, HealthCheckResponse{Status: overall}, status)
}

// LivenessHandler handles GET /health/live requests.
//
// Liveness probes determine if the service is alive and should be
// restarted. This endpoint only fails if the service is in an
// unrecoverable state.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	result := s.checker.Live(r.Context())

	writeHealthJSON(w, HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}, http.StatusOK)
}

// ReadinessHandler handles GET /health/ready requests.
//
// Readiness fails when the credential store is unreachable. A degraded
// challenge backlog is reported but still serves traffic.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	results := s.checker.Ready(r.Context())
	overall := health.AggregateStatus(results)

	resp := HealthCheckResponse{
		Status: overall,
		Checks: results,
	}

	switch overall {
	case health.StatusHealthy:
		resp.Message = "All checks passed"
	case health.StatusDegraded:
		resp.Message = "Service is degraded"
	case health.StatusUnhealthy:
		resp.Message = "One or more checks failed"
	}

	status := http.StatusOK
	if overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	writeHealthJSON(w, resp, status)
}

// StartupHandler handles GET /health/startup requests.
//
// Startup fails until initialization completes, so orchestrators delay
// liveness and readiness probing during slow starts.
func (s *Server) StartupHandler(w http.ResponseWriter, r *http.Request) {
	result := s.checker.Startup(r.Context())

	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	writeHealthJSON(w, HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}, status)
}
