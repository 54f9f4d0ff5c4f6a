package lifecycle

// Version of the worker state machine and tracker API.
const (
	Version              = "2.0.0"
	MinCompatibleVersion = "2.0.0"
)
