package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ajprasad1994/opsBuddy/internal/governance/circuitbreaker"
	"github.com/ajprasad1994/opsBuddy/internal/health"
)

func (s *Server) gatewayInfo() GatewayInfo {
	now := s.now()
	return GatewayInfo{
		Name:        s.config.Gateway.Name,
		Version:     s.config.Gateway.Version,
		Environment: s.config.Gateway.Environment,
		Uptime:      now.Sub(s.startedAt).Seconds(),
		Timestamp:   unixSeconds(now),
	}
}

// snapshotsByName returns the latest snapshot of every service.
func (s *Server) snapshotsByName() (map[string]health.Snapshot, []health.Snapshot) {
	snaps := s.health.Snapshots()
	byName := make(map[string]health.Snapshot, len(snaps))
	for _, snap := range snaps {
		byName[snap.Service] = snap
	}
	return byName, snaps
}

// handleRoot handles GET /
func (s *Server) handleRoot(c *gin.Context) {
	names := make([]string, 0)
	for _, svc := range s.services.Services() {
		names = append(names, svc.Name)
	}

	c.JSON(http.StatusOK, WelcomeResponse{
		Message: "Welcome to " + s.config.Gateway.Name,
		Gateway: GatewayInfo{
			Name:    s.config.Gateway.Name,
			Version: s.config.Gateway.Version,
			Status:  "running",
		},
		Services:    names,
		HealthCheck: "/health",
		Status:      "/status",
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	byName, snaps := s.snapshotsByName()
	status, unhealthy := health.Aggregate(snaps)

	c.JSON(http.StatusOK, HealthResponse{
		Status:            status,
		Gateway:           s.gatewayInfo(),
		Services:          byName,
		UnhealthyServices: unhealthy,
	})
}

// handleStatus handles GET /status
func (s *Server) handleStatus(c *gin.Context) {
	byName, _ := s.snapshotsByName()

	circuits := make(map[string]CircuitBreakerStatus)
	for _, st := range s.circuits.States() {
		circuits[st.Service] = CircuitBreakerStatus{
			State:                  st.State,
			FailureCount:           st.ConsecutiveFailures,
			FailureThreshold:       st.FailureThreshold,
			RecoveryTimeoutSeconds: st.RecoveryTimeout.Seconds(),
			LastFailureTime:        optionalUnix(st.Statistics.LastFailureTime),
			OpenedAt:               optionalUnix(st.OpenedAt),
			TrialInFlight:          st.TrialInFlight,
			Statistics:             st.Statistics,
		}
	}

	c.JSON(http.StatusOK, StatusResponse{
		Gateway:         s.gatewayInfo(),
		Services:        byName,
		CircuitBreakers: circuits,
	})
}

// handleAPIInfo handles GET /api
func (s *Server) handleAPIInfo(c *gin.Context) {
	services := s.services.Services()
	available := make(map[string]ServiceRoute, len(services))
	rules := make(map[string]string, len(services))

	for _, svc := range services {
		available[svc.Name] = ServiceRoute{
			BasePath: svc.PathPrefix,
			Target:   svc.BaseURL,
			Rewrite:  svc.Rewrite,
			Endpoints: []string{
				"GET " + svc.PathPrefix + "/*",
				"POST " + svc.PathPrefix + "/*",
				"PUT " + svc.PathPrefix + "/*",
				"DELETE " + svc.PathPrefix + "/*",
			},
		}
		if _, exists := rules[svc.PathPrefix]; !exists {
			rules[svc.PathPrefix] = svc.Name
		}
	}

	c.JSON(http.StatusOK, APIInfoResponse{
		Gateway: GatewayInfo{
			Name:    s.config.Gateway.Name,
			Version: s.config.Gateway.Version,
		},
		AvailableServices: available,
		RoutingRules:      rules,
	})
}

// handleServices handles GET /api/services
func (s *Server) handleServices(c *gin.Context) {
	byName, _ := s.snapshotsByName()

	states := make(map[string]circuitbreaker.State)
	for _, st := range s.circuits.States() {
		states[st.Service] = st.State
	}

	services := s.services.Services()
	summaries := make([]ServiceSummary, 0, len(services))
	for _, svc := range services {
		snap, ok := byName[svc.Name]
		if !ok {
			snap = health.Snapshot{Service: svc.Name, Status: health.StatusUnknown}
		}
		summaries = append(summaries, ServiceSummary{
			Name:         svc.Name,
			BaseURL:      svc.BaseURL,
			PathPrefix:   svc.PathPrefix,
			Status:       snap.Status,
			ResponseTime: snap.LatencyMillis,
			LastChecked:  optionalUnix(snap.CheckedAt),
			CircuitState: states[svc.Name],
			Description:  svc.Name + " behind " + svc.PathPrefix,
		})
	}

	c.JSON(http.StatusOK, summaries)
}
