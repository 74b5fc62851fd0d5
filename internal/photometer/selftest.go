package photometer

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/photometer/internal/logic"
)

// SettleTime is how long all channels rest before each self-test pass.
const SettleTime = 2 * time.Second

// SelfTestResult holds the dark and bright samples of one channel.
type SelfTestResult struct {
	Channel ChannelPair
	Dark    []uint16
	Bright  []uint16
}

// DarkSummary summarizes the dark samples.
func (r SelfTestResult) DarkSummary() logic.Summary { return logic.Summarize(r.Dark) }

// BrightSummary summarizes the bright samples.
func (r SelfTestResult) BrightSummary() logic.Summary { return logic.Summarize(r.Bright) }

// RatioDerivation computes a corrective ratio from a channel's self-test.
// It returns ok=false to leave the ratio unchanged.
type RatioDerivation func(r SelfTestResult) (ratio float64, ok bool)

// Calibrator runs the dark/bright self-test sweep.
type Calibrator struct {
	reg    *Registry
	exec   *Executor
	sleep  SleepFunc
	logger *log.Logger

	// Derive, if set, is applied to every channel after the sweep.
	// There is no default derivation: ratios stay as configured.
	Derive RatioDerivation
}

// NewCalibrator creates a Calibrator sharing exec's registry.
func NewCalibrator(reg *Registry, exec *Executor, logger *log.Logger) *Calibrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Calibrator{reg: reg, exec: exec, sleep: exec.sleep, logger: logger}
}

// Run measures every channel fully dark, then with all LEDs at MaxDuty.
// All channels are reset when it returns, whatever the outcome.
func (c *Calibrator) Run(ctx context.Context) (results []SelfTestResult, err error) {
	release := c.reg.Arm()
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	n := c.reg.Len()
	results = make([]SelfTestResult, n)
	for id := 0; id < n; id++ {
		results[id].Channel = c.reg.Pair(id)
	}

	if err := c.reg.ResetAll(); err != nil {
		return nil, err
	}
	if err := c.sleep(ctx, SettleTime); err != nil {
		return nil, err
	}
	for id := 0; id < n; id++ {
		rec, err := c.exec.Measure(ctx, id, 0, WithWarmup(0))
		if err != nil {
			return nil, err
		}
		results[id].Dark = rec.Samples
	}

	for id := 0; id < n; id++ {
		if err := c.reg.SetChannel(id, MaxDuty, false); err != nil {
			return nil, err
		}
	}
	if err := c.sleep(ctx, SettleTime); err != nil {
		return nil, err
	}
	for id := 0; id < n; id++ {
		rec, err := c.exec.Measure(ctx, id, MaxDuty, WithWarmup(0))
		if err != nil {
			return nil, err
		}
		results[id].Bright = rec.Samples
	}

	if c.Derive != nil {
		for id, r := range results {
			ratio, ok := c.Derive(r)
			if !ok {
				continue
			}
			if err := c.reg.SetRatio(id, ratio); err != nil {
				return nil, err
			}
			results[id].Channel.Ratio = ratio
		}
	}

	c.LogSummary(results)
	return results, nil
}

// LogSummary prints mean, min and max of every channel for operator inspection.
func (c *Calibrator) LogSummary(results []SelfTestResult) {
	c.logger.Printf("self-test: average dark values:")
	for _, r := range results {
		s := r.DarkSummary()
		c.logger.Printf("self-test: led %d: %.1f (min: %.0f, max: %.0f)", r.Channel.LED, s.Mean, s.Min, s.Max)
	}
	c.logger.Printf("self-test: average bright values:")
	for _, r := range results {
		s := r.BrightSummary()
		c.logger.Printf("self-test: led %d: %.1f (min: %.0f, max: %.0f)", r.Channel.LED, s.Mean, s.Min, s.Max)
	}
}
