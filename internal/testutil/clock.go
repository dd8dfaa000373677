package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time for test clocks.
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// StepClock provides a thread-safe deterministic wall clock for tests.
//
// Each call to Now returns the current time and then advances it by Step.
// A zero Step makes the clock fixed. Implements graph.Clock.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	Step  time.Duration
}

// NewFixedClock creates a clock that always returns t.
func NewFixedClock(t time.Time) *StepClock {
	return &StepClock{start: t, now: t}
}

// NewStepClock creates a clock starting at t that advances by step.
func NewStepClock(t time.Time, step time.Duration) *StepClock {
	return &StepClock{start: t, now: t, Step: step}
}

// Now returns the current time and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Reset rewinds the clock to its start time.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
