package lifecycle

// State represents the lifecycle state of a worker.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateParsed:
		return "Parsed"
	case StateInstalling:
		return "Installing"
	case StateInstalled:
		return "Installed"
	case StateActivating:
		return "Activating"
	case StateActivated:
		return "Activated"
	case StateRedundant:
		return "Redundant"
	default:
		return "Unknown"
	}
}

// ParseState is the inverse of State.String. Unknown names map to StateParsed.
func ParseState(s string) State {
	for st := StateParsed; st <= StateRedundant; st++ {
		if st.String() == s {
			return st
		}
	}
	return StateParsed
}

// EventEmitter is called when a worker changes state.
type EventEmitter interface {
	OnStateChange(worker string, previous, current State, reason string)
}
