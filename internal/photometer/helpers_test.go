package photometer

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/photometer/internal/hal"
)

const testADCPin = 26

// testClock is a manual clock; sleeping advances it.
type testClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.Local)}
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

type rig struct {
	hw     *hal.Fake
	reg    *Registry
	exec   *Executor
	clock  *testClock
	logBuf *bytes.Buffer
	logger *log.Logger
}

// newRig builds a registry and executor over a fake board with the ADC
// returning samples in order.
func newRig(t *testing.T, pairs []ChannelPair, timing Timing, samples ...uint16) *rig {
	t.Helper()
	hw := hal.NewFake()
	if len(samples) == 0 {
		samples = []uint16{1000}
	}
	hw.Script(testADCPin, samples...)

	reg, err := NewRegistry(hw, testADCPin, pairs)
	require.NoError(t, err)
	hw.ResetWrites()

	clock := newTestClock()
	var buf bytes.Buffer
	return &rig{
		hw:     hw,
		reg:    reg,
		exec:   NewExecutor(reg, timing, clock.Now, clock.Sleep),
		clock:  clock,
		logBuf: &buf,
		logger: log.New(&buf, "", 0),
	}
}

func twoPairs() []ChannelPair {
	return []ChannelPair{{LED: 0, Resistor: 8}, {LED: 1, Resistor: 9}}
}

// faultHW fails (or panics) on the nth ADC read.
type faultHW struct {
	*hal.Fake
	failAt int
	panics bool
	reads  int
}

func (f *faultHW) ReadADC(pin int) (uint16, error) {
	f.reads++
	if f.reads == f.failAt {
		if f.panics {
			panic("adc bus wedged")
		}
		return 0, errAdc
	}
	return f.Fake.ReadADC(pin)
}

var errAdc = &adcError{}

type adcError struct{}

func (*adcError) Error() string { return "adc timeout" }
