package health

import "time"

// Service-level status values reported in snapshots.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// Aggregate status values for the gateway as a whole.
const (
	AggregateHealthy  = "healthy"
	AggregateDegraded = "degraded"
)

// Snapshot is the outcome of the latest probe of one service.
// A snapshot is never modified after it is published; each probe publishes a new one.
type Snapshot struct {
	Service       string        `json:"service"`
	URL           string        `json:"url"`
	Status        string        `json:"status"`
	Reachable     bool          `json:"reachable"`
	CheckedAt     time.Time     `json:"last_checked_at,omitempty"`
	Latency       time.Duration `json:"-"`
	LatencyMillis float64       `json:"latency_ms"`
	StatusCode    int           `json:"status_code,omitempty"`
	BackendStatus string        `json:"backend_status,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
}

// Checked reports whether the service has been probed at least once.
func (s Snapshot) Checked() bool {
	return !s.CheckedAt.IsZero()
}

func unknownSnapshot(service, url string) *Snapshot {
	return &Snapshot{Service: service, URL: url, Status: StatusUnknown}
}

// Aggregate reduces snapshots to the gateway status: healthy only when every
// service was reachable on its latest probe. Services not yet probed count as unhealthy.
func Aggregate(snapshots []Snapshot) (status string, unhealthy []string) {
	unhealthy = []string{}
	for _, s := range snapshots {
		if !s.Reachable {
			unhealthy = append(unhealthy, s.Service)
		}
	}
	if len(unhealthy) > 0 {
		return AggregateDegraded, unhealthy
	}
	return AggregateHealthy, unhealthy
}
