package feed

import "brotherowl/internal/domain"

type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePushConnected
	StatePullActive
	StateReconnecting
	StateExhaustedFallback
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePushConnected:
		return "push-connected"
	case StatePullActive:
		return "pull-active"
	case StateReconnecting:
		return "reconnecting"
	case StateExhaustedFallback:
		return "exhausted-fallback"
	default:
		return "unknown"
	}
}

// Handle identifies one Start/Reconnect/Reset cycle.
type Handle uint64

// Status is a point-in-time view of the controller for operators.
type Status struct {
	State      State
	Retries    int
	PushOpen   bool
	PullActive bool
	LastUpdate int64 // unix ms of the last delivered payload, 0 if none
	LastSource domain.Source
	Generation Handle
}
