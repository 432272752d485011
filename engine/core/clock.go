package core

import "time"

// Tick is the per-frame time snapshot handed to every controller.
// Now is the engine time since the loop started; Delta is in seconds.
type Tick struct {
	Now   time.Duration
	Delta float64
	Frame uint64
}

// Seconds returns Now expressed in seconds.
func (t Tick) Seconds() float64 {
	return t.Now.Seconds()
}

type Clock struct {
	startTime time.Time
	elapsed   time.Duration
	now       func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockWithSource builds a clock reading time from now. Used by tests to
// drive the loop with a manual clock.
func NewClockWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if !c.startTime.IsZero() {
		c.elapsed = c.now().Sub(c.startTime)
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = c.now()
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}
