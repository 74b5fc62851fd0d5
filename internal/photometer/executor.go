package photometer

import (
	"context"
	"fmt"
	"time"
)

// Timing holds the process-wide measurement defaults.
type Timing struct {
	// Warmup is the settle time after changing illumination, before sampling.
	Warmup time.Duration
	// Repeats is the number of ADC samples per measurement.
	Repeats int
	// Interval separates consecutive samples.
	Interval time.Duration
}

// DefaultTiming matches the original controller.
func DefaultTiming() Timing {
	return Timing{
		Warmup:   2 * time.Second,
		Repeats:  5,
		Interval: 200 * time.Millisecond,
	}
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor performs one timed single-channel, single-intensity acquisition.
type Executor struct {
	reg    *Registry
	timing Timing
	now    func() time.Time
	sleep  SleepFunc
}

// NewExecutor creates an Executor. A nil now or sleep selects the real clock.
func NewExecutor(reg *Registry, timing Timing, now func() time.Time, sleep SleepFunc) *Executor {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Executor{reg: reg, timing: timing, now: now, sleep: sleep}
}

// Timing returns the executor's defaults.
func (e *Executor) Timing() Timing { return e.timing }

// MeasureOption overrides a default for a single Measure call.
type MeasureOption func(*measureOpts)

type measureOpts struct {
	Timing
	cleanup bool
}

// WithWarmup overrides the warm-up delay.
func WithWarmup(d time.Duration) MeasureOption {
	return func(o *measureOpts) { o.Warmup = d }
}

// WithRepeats overrides the number of samples.
func WithRepeats(n int) MeasureOption {
	return func(o *measureOpts) { o.Repeats = n }
}

// WithInterval overrides the inter-sample delay.
func WithInterval(d time.Duration) MeasureOption {
	return func(o *measureOpts) { o.Interval = d }
}

// WithCleanup sets whether the channel is switched off afterwards (default true).
func WithCleanup(cleanup bool) MeasureOption {
	return func(o *measureOpts) { o.cleanup = cleanup }
}

// Measure sets channel id to intensity with its photoresistor selected, waits
// for the warm-up, then samples the ADC Repeats times with Interval between
// samples. With cleanup the channel is switched off again, also on failure.
func (e *Executor) Measure(ctx context.Context, id, intensity int, opts ...MeasureOption) (rec Record, err error) {
	o := measureOpts{Timing: e.timing, cleanup: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Repeats < 0 {
		return Record{}, newError(ErrRange, "measure", fmt.Sprintf("repeats %d is negative", o.Repeats), nil)
	}

	start := e.now()
	if err := e.reg.SetChannel(id, intensity, true); err != nil {
		return Record{}, err
	}
	if o.cleanup {
		defer func() {
			if cerr := e.reg.SetChannel(id, 0, false); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}

	if o.Warmup > 0 {
		if err := e.sleep(ctx, o.Warmup); err != nil {
			return Record{}, err
		}
	}

	samples := make([]uint16, 0, o.Repeats)
	for i := 0; i < o.Repeats; i++ {
		if i > 0 {
			if err := e.sleep(ctx, o.Interval); err != nil {
				return Record{}, err
			}
		}
		v, err := e.reg.Sample(id)
		if err != nil {
			return Record{}, err
		}
		samples = append(samples, v)
	}

	p := e.reg.Pair(id)
	return Record{
		Time:      start,
		LED:       p.LED,
		Resistor:  p.Resistor,
		Intensity: intensity,
		Samples:   samples,
	}, nil
}
