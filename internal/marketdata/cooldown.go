package marketdata

import (
	"sync"
	"time"
)

// Cooldown is the process-wide "blocked until" deadline shared by every caller
// of the price provider. The Client is the only writer; a single Cooldown
// instance is created at startup and handed to everything that fetches prices.
type Cooldown struct {
	mu    sync.Mutex
	until time.Time
}

func NewCooldown() *Cooldown { return &Cooldown{} }

// Block remembers that no call may be made before the given deadline.
func (c *Cooldown) Block(until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if until.After(c.until) {
		c.until = until
	}
}

// Active reports whether the deadline has not passed yet.
func (c *Cooldown) Active(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.until)
}

// Until returns the current deadline (zero when never blocked).
func (c *Cooldown) Until() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.until
}
