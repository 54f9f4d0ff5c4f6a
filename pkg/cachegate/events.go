package cachegate

import (
	"time"

	"github.com/segarro/cachegate/pkg/lifecycle"
)

// State is the lifecycle state of a worker.
type State = lifecycle.State

// Worker states.
const (
	StateParsed     = lifecycle.StateParsed
	StateInstalling = lifecycle.StateInstalling
	StateInstalled  = lifecycle.StateInstalled
	StateActivating = lifecycle.StateActivating
	StateActivated  = lifecycle.StateActivated
	StateRedundant  = lifecycle.StateRedundant
)

// StateChangeEvent reports a worker state transition.
type StateChangeEvent struct {
	Worker   string
	Previous State
	Current  State
	Reason   string
}

// CacheWriteEvent reports the outcome of a background cache write.
type CacheWriteEvent struct {
	Task     string
	Err      error
	Duration time.Duration
}

// EventHandler receives notifications. Calls are synchronous; return quickly.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnCacheWrite(CacheWriteEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only the events you need.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnCacheWrite(CacheWriteEvent)   {}

// eventEmitterWrapper adapts EventHandler to the lifecycle emitter interface.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(worker string, previous, current lifecycle.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Worker:   worker,
		Previous: previous,
		Current:  current,
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) onTaskDone(name string, err error, elapsed time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnCacheWrite(CacheWriteEvent{Task: name, Err: err, Duration: elapsed})
}
