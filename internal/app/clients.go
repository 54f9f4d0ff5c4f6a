package app

import "sync"

// Clients tracks the pages talking to the host and whether each one is
// controlled by the active worker.
type Clients struct {
	mu         sync.Mutex
	controlled map[string]bool
}

// NewClients returns an empty registry.
func NewClients() *Clients {
	return &Clients{controlled: make(map[string]bool)}
}

// Touch records a request from client id and reports whether the client is
// controlled. A client first seen while a worker is active is controlled;
// one first seen before that stays uncontrolled until ClaimAll.
func (c *Clients) Touch(id string, activeWorker bool) bool {
	if id == "" {
		return activeWorker
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ctl, ok := c.controlled[id]
	if !ok {
		c.controlled[id] = activeWorker
		return activeWorker
	}
	return ctl
}

// ClaimAll marks every known client controlled.
func (c *Clients) ClaimAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.controlled {
		c.controlled[id] = true
	}
	return len(c.controlled)
}

// Close forgets a client, as when its page is closed.
func (c *Clients) Close(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.controlled, id)
}

// Controlled reports whether client id is controlled.
func (c *Clients) Controlled(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlled[id]
}

// ControlledCount returns the number of controlled clients.
func (c *Clients) ControlledCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ctl := range c.controlled {
		if ctl {
			n++
		}
	}
	return n
}

// Count returns the number of known clients.
func (c *Clients) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.controlled)
}
