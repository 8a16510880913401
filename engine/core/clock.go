package core

import "time"

// Clock measures time since Start. Readings only move on Update or Tick, so
// everything in one frame sees the same time.
type Clock struct {
	start   time.Time
	elapsed time.Duration
	// elapsed at the previous Tick
	ticked time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Update samples the clock. A stopped clock keeps its last reading.
func (c *Clock) Update() {
	if !c.start.IsZero() {
		c.elapsed = time.Since(c.start)
	}
}

// Tick samples the clock and returns the seconds since the previous Tick,
// or since Start for the first one.
func (c *Clock) Tick() float64 {
	c.Update()
	delta := c.elapsed - c.ticked
	c.ticked = c.elapsed
	return delta.Seconds()
}

// Start resets the clock to zero and runs it.
func (c *Clock) Start() {
	c.start = time.Now()
	c.elapsed = 0
	c.ticked = 0
}

// Stop freezes the reading.
func (c *Clock) Stop() {
	c.start = time.Time{}
}

// Elapsed is the time since Start in seconds, as of the last sample.
func (c *Clock) Elapsed() float64 {
	return c.elapsed.Seconds()
}
