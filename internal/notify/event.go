// Package notify fans gateway events out to dashboards: websocket clients
// connected to the gateway and subscribers of a Redis pub/sub channel.
package notify

import (
	"context"
	"time"

	"github.com/ajprasad1994/opsBuddy/internal/health"
)

// Event types
const (
	EventHealthUpdate = "service_health_update"
	EventCircuitState = "circuit_state_change"
)

// Event is the JSON document published for every health or circuit change.
type Event struct {
	Type      string      `json:"type"`
	Service   string      `json:"service"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// CircuitChange is the payload of an EventCircuitState event.
type CircuitChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// HealthEvent wraps a probe snapshot.
func HealthEvent(snap health.Snapshot) Event {
	at := snap.CheckedAt
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		Type:      EventHealthUpdate,
		Service:   snap.Service,
		Timestamp: unixSeconds(at),
		Data:      snap,
	}
}

// CircuitEvent describes a circuit state transition observed at at.
func CircuitEvent(service, from, to string, at time.Time) Event {
	return Event{
		Type:      EventCircuitState,
		Service:   service,
		Timestamp: unixSeconds(at),
		Data:      CircuitChange{From: from, To: to},
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
