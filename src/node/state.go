package node

import (
	"sync/atomic"
)

// State captures the lifecycle state of a node: Stopped, Starting, Running,
// or Exited.
type State uint32

const (
	// Stopped means no engine process is tracked.
	Stopped State = iota
	// Starting means the engine is up but its ledger database has not
	// appeared yet.
	Starting
	// Running means the engine and both sidecars are up.
	Running
	// Exited means a tracked process terminated unexpectedly.
	Exited
)

// String ...
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

type nodeState struct {
	state uint32
}

func (s *nodeState) get() State {
	return State(atomic.LoadUint32(&s.state))
}

func (s *nodeState) set(state State) {
	atomic.StoreUint32(&s.state, uint32(state))
}
