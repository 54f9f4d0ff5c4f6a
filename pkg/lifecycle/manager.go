package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/segarro/cachegate/pkg/log"
)

// ErrInvalidTransition is returned for a transition the state machine forbids.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State][]State{
	StateParsed:     {StateInstalling},
	StateInstalling: {StateInstalled, StateRedundant},
	StateInstalled:  {StateActivating, StateRedundant},
	StateActivating: {StateActivated, StateRedundant},
	StateActivated:  {StateRedundant},
}

// Manager guards the state of a single worker.
type Manager struct {
	mu      sync.RWMutex
	worker  string
	state   State
	logger  log.Logger
	emitter EventEmitter
}

// NewManager creates a manager for the named worker in StateParsed.
func NewManager(worker string, logger log.Logger, emitter EventEmitter) *Manager {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Manager{
		worker:  worker,
		state:   StateParsed,
		logger:  logger,
		emitter: emitter,
	}
}

// Worker returns the worker name.
func (m *Manager) Worker() string {
	return m.worker
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Is reports whether the worker is in state s.
func (m *Manager) Is(s State) bool {
	return m.State() == s
}

// TransitionTo moves the worker to newState.
// Returns ErrInvalidTransition if the move is not allowed.
func (m *Manager) TransitionTo(newState State, reason string) error {
	m.mu.Lock()
	oldState := m.state
	if !allowed(oldState, newState) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldState, newState)
	}
	m.state = newState
	m.mu.Unlock()

	// Emit event outside of lock
	if m.emitter != nil {
		m.emitter.OnStateChange(m.worker, oldState, newState, reason)
	}

	m.logger.Info("worker state transition",
		log.String("worker", m.worker),
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
