package photometer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/photometer/internal/hal"
)

func testTiming() Timing {
	return Timing{Warmup: 2 * time.Second, Repeats: 3, Interval: 200 * time.Millisecond}
}

func TestMeasureSequence(t *testing.T) {
	r := newRig(t, twoPairs(), testTiming(), 100, 200, 300)
	start := r.clock.Now()

	rec, err := r.exec.Measure(context.Background(), 1, 32767)
	require.NoError(t, err)

	assert.Equal(t, start, rec.Time, "timestamp is captured at call start")
	assert.Equal(t, 1, rec.LED)
	assert.Equal(t, 9, rec.Resistor)
	assert.Equal(t, 32767, rec.Intensity)
	assert.Equal(t, []uint16{100, 200, 300}, rec.Samples)

	// warm-up, then an interval between samples but not after the last one
	assert.Equal(t, []time.Duration{2 * time.Second, 200 * time.Millisecond, 200 * time.Millisecond}, r.clock.sleeps)
	assert.Equal(t, 3, r.hw.Reads[testADCPin])

	want := []hal.Write{
		{Op: "pwm", Pin: 1, Value: 32767},
		{Op: "digital", Pin: 9, Value: 1},
		{Op: "pwm", Pin: 1, Value: 0},
		{Op: "digital", Pin: 9, Value: 0},
	}
	assert.Equal(t, want, r.hw.Writes)
	assert.False(t, r.hw.Energized())
}

func TestMeasureOverrides(t *testing.T) {
	r := newRig(t, twoPairs(), testTiming(), 7)

	rec, err := r.exec.Measure(context.Background(), 0, 500,
		WithWarmup(0), WithRepeats(2), WithInterval(50*time.Millisecond), WithCleanup(false))
	require.NoError(t, err)

	assert.Equal(t, []uint16{7, 7}, rec.Samples)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, r.clock.sleeps)
	assert.Equal(t, uint16(500), r.hw.Duty[0], "channel stays lit without cleanup")
	assert.True(t, r.hw.Digital[8])
}

func TestMeasureSingleSampleDoesNotSleep(t *testing.T) {
	r := newRig(t, twoPairs(), testTiming())

	rec, err := r.exec.Measure(context.Background(), 0, 0, WithWarmup(0), WithRepeats(1))
	require.NoError(t, err)
	assert.Len(t, rec.Samples, 1)
	assert.Empty(t, r.clock.sleeps)
}

func TestMeasureRejectsOutOfRangeIntensity(t *testing.T) {
	r := newRig(t, twoPairs(), testTiming())

	for _, intensity := range []int{-1, MaxDuty + 1} {
		_, err := r.exec.Measure(context.Background(), 0, intensity)
		assert.ErrorIs(t, err, ErrRange)
	}
	assert.Empty(t, r.hw.Writes)
	assert.Zero(t, r.hw.Reads[testADCPin])
	assert.Empty(t, r.clock.sleeps)
}

func TestMeasureADCFaultCleansUp(t *testing.T) {
	r := newRig(t, twoPairs(), testTiming())
	r.hw.ReadError = errAdc

	_, err := r.exec.Measure(context.Background(), 0, 40000)
	assert.ErrorIs(t, err, ErrFault)
	assert.ErrorIs(t, err, errAdc)
	assert.False(t, r.hw.Energized())
}

func TestMeasureCancelledDuringWarmup(t *testing.T) {
	r := newRig(t, twoPairs(), testTiming())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.exec.Measure(ctx, 0, 40000)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, r.hw.Energized())
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
