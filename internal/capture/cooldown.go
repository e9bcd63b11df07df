package capture

import "time"

// Cooldown bounds how often the matcher is invoked.
// It is only touched by the loop goroutine.
type Cooldown struct {
	interval time.Duration
	last     time.Time
}

func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{interval: interval}
}

// Ready reports whether more than the interval has passed since the last mark.
func (c *Cooldown) Ready(now time.Time) bool {
	return c.last.IsZero() || now.Sub(c.last) > c.interval
}

// Mark records an attempt at now.
func (c *Cooldown) Mark(now time.Time) {
	c.last = now
}
