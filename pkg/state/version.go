package state

// Registration file format. 1.1.0 added installed_at; files written by
// 1.0.0 load with a zero InstalledAt.
const (
	Version              = "1.1.0"
	MinCompatibleVersion = "1.0.0"
)
