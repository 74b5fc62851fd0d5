// Package logic contains pure scheduling and statistics logic for the photometer.
// This package has NO external dependencies on hardware, files or time.Sleep.
// Time is always injectable via time.Time parameters.
package logic

import "time"

// MaxWaitStep is the longest single sleep while waiting for the next cycle.
const MaxWaitStep = 60 * time.Second

// ScheduleState is the scheduler's memory between due checks.
type ScheduleState struct {
	// LastCycleStart is when the most recent cycle was dispatched.
	LastCycleStart time.Time
	// FirstCycle is true until the first cycle has been dispatched.
	FirstCycle bool
}

// Decision is the outcome of a due check.
type Decision struct {
	Due bool
	// Elapsed since LastCycleStart (zero before the first cycle).
	Elapsed time.Duration
	// Remaining until the next cycle is due. Positive whenever Due is false.
	Remaining time.Duration
}

// NewScheduleState returns the initial state: the first check is always due.
func NewScheduleState() ScheduleState {
	return ScheduleState{FirstCycle: true}
}

// Check decides whether a cycle is due at now. When it is, the returned state
// records now as the cycle start and clears FirstCycle; otherwise the state is
// returned unchanged.
func Check(state ScheduleState, now time.Time, period time.Duration) (Decision, ScheduleState) {
	if state.FirstCycle {
		return Decision{Due: true, Remaining: period}, ScheduleState{LastCycleStart: now}
	}

	elapsed := now.Sub(state.LastCycleStart)
	d := Decision{Elapsed: elapsed, Remaining: period - elapsed}
	if elapsed >= period {
		d.Due = true
		return d, ScheduleState{LastCycleStart: now}
	}
	return d, state
}

// WaitStep returns how long to sleep before the next check: the remaining
// time capped at max.
func WaitStep(remaining, max time.Duration) time.Duration {
	if remaining > max {
		return max
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}
