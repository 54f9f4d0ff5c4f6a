package state

import "time"

// Registration is the persisted record of the active worker.
type Registration struct {
	// ActiveVersion is the cache name of the active worker.
	ActiveVersion string `json:"active_version"`

	// WorkerState is the lifecycle state name of that worker.
	WorkerState string `json:"worker_state"`

	// InstalledAt is when the active version finished installing.
	InstalledAt time.Time `json:"installed_at"`

	// UpdatedAt is the time of the last save.
	UpdatedAt time.Time `json:"updated_at"`
}

// Empty reports whether no worker has been recorded.
func (r Registration) Empty() bool {
	return r.ActiveVersion == ""
}
