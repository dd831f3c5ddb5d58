// ABOUTME: Session lifecycle states
// ABOUTME: Atomic state holder readable from UI and stats goroutines
package session

import "sync/atomic"

// State is a position in a session's lifecycle
type State int32

const (
	StateIdle State = iota
	StateAwaitingConfig
	StateStreaming
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConfig:
		return "awaiting-config"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type stateVar struct {
	v atomic.Int32
}

func (s *stateVar) load() State    { return State(s.v.Load()) }
func (s *stateVar) store(st State) { s.v.Store(int32(st)) }
