package log

// Version is the log API version. Loggers written against
// MinCompatibleVersion or later still satisfy Logger.
const (
	Version              = "1.0.0"
	MinCompatibleVersion = "1.0.0"
)
