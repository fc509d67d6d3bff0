package notify

import "errors"

var (
	// ErrHubClosed is returned when publishing to a hub that has stopped.
	ErrHubClosed = errors.New("websocket hub closed")

	// ErrQueueFull is returned when the dispatcher drops an event.
	ErrQueueFull = errors.New("event queue full")
)
