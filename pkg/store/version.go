package store

// Version of the Storage and Cache interfaces.
const (
	Version = "1.0.0"
	// MinCompatibleVersion is the oldest Storage implementation version
	// this package accepts.
	MinCompatibleVersion = "1.0.0"
)
