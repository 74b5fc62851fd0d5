// Package photometer is the measurement scheduling and acquisition engine:
// the channel registry, the timed single-channel executor, the self-test
// calibration sweep, the duty-cycle cycle runner and the periodic scheduler.
package photometer

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/sweeney/photometer/internal/hal"
)

// MaxDuty is the PWM resolution ceiling.
const MaxDuty = hal.MaxDuty

// DefaultRatio is the corrective ratio of an uncalibrated channel.
const DefaultRatio = 1.0

// ChannelPair is one LED emitter and its photoresistor select line.
type ChannelPair struct {
	LED      int
	Resistor int
	// Ratio is the corrective ratio applied to requested intensities, in (0, 2).
	Ratio float64
}

// DefaultPairs is the original eight-channel wiring: LED anodes on 0..7,
// photoresistor anodes on 8..15.
func DefaultPairs() []ChannelPair {
	pairs := make([]ChannelPair, 8)
	for i := range pairs {
		pairs[i] = ChannelPair{LED: i, Resistor: i + 8, Ratio: DefaultRatio}
	}
	return pairs
}

// Registry owns the channel pairs and is the only component that writes
// to the hardware pins.
type Registry struct {
	hw     hal.Hardware
	adcPin int
	pairs  []ChannelPair
	armed  bool
}

// NewRegistry validates pairs and drives every channel to off.
// Nothing is written to the hardware unless the wiring is valid.
func NewRegistry(hw hal.Hardware, adcPin int, pairs []ChannelPair) (*Registry, error) {
	if len(pairs) == 0 {
		return nil, newError(ErrConfiguration, "register", "no channel pairs", nil)
	}

	seen := map[int]bool{}
	owned := make([]ChannelPair, len(pairs))
	for i, p := range pairs {
		for _, pin := range []int{p.LED, p.Resistor} {
			if pin < 0 {
				return nil, newError(ErrConfiguration, "register", fmt.Sprintf("channel %d: negative pin %d", i, pin), nil)
			}
			if seen[pin] {
				return nil, newError(ErrConfiguration, "register", fmt.Sprintf("channel %d: pin %d used twice", i, pin), nil)
			}
			seen[pin] = true
		}
		if p.Ratio == 0 {
			p.Ratio = DefaultRatio
		}
		if !validRatio(p.Ratio) {
			return nil, newError(ErrConfiguration, "register", fmt.Sprintf("channel %d: ratio %v outside (0, 2)", i, p.Ratio), nil)
		}
		owned[i] = p
	}

	r := &Registry{hw: hw, adcPin: adcPin, pairs: owned}
	if err := r.ResetAll(); err != nil {
		return nil, err
	}
	return r, nil
}

// Len returns the number of registered channels.
func (r *Registry) Len() int { return len(r.pairs) }

// Pair returns a copy of channel id.
func (r *Registry) Pair(id int) ChannelPair { return r.pairs[id] }

// Channels returns a copy of all pairs in registration order.
func (r *Registry) Channels() []ChannelPair {
	out := make([]ChannelPair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// SetRatio replaces the corrective ratio of channel id.
func (r *Registry) SetRatio(id int, ratio float64) error {
	if err := r.check(id); err != nil {
		return err
	}
	if !validRatio(ratio) {
		return newError(ErrRange, "set ratio", fmt.Sprintf("ratio %v outside (0, 2)", ratio), nil)
	}
	r.pairs[id].Ratio = ratio
	return nil
}

// SetChannel applies intensity scaled by the channel's corrective ratio and
// drives the photoresistor select line.
func (r *Registry) SetChannel(id, intensity int, on bool) error {
	if err := r.check(id); err != nil {
		return err
	}
	return r.set(id, intensity, r.pairs[id].Ratio, on)
}

// SetChannelWithRatio is SetChannel with an explicit ratio instead of the channel's own.
func (r *Registry) SetChannelWithRatio(id, intensity int, ratio float64, on bool) error {
	if err := r.check(id); err != nil {
		return err
	}
	return r.set(id, intensity, ratio, on)
}

func (r *Registry) set(id, intensity int, ratio float64, on bool) error {
	if intensity < 0 || intensity > MaxDuty {
		return newError(ErrRange, "set channel", fmt.Sprintf("intensity %d outside [0, %d]", intensity, MaxDuty), nil)
	}
	if !validRatio(ratio) {
		return newError(ErrRange, "set channel", fmt.Sprintf("ratio %v outside (0, 2)", ratio), nil)
	}

	p := r.pairs[id]
	if err := r.hw.SetPWMDuty(p.LED, AppliedDuty(intensity, ratio)); err != nil {
		return newError(ErrFault, "set channel", fmt.Sprintf("led pin %d", p.LED), err)
	}
	if err := r.hw.SetDigital(p.Resistor, on); err != nil {
		return newError(ErrFault, "set channel", fmt.Sprintf("resistor pin %d", p.Resistor), err)
	}
	return nil
}

// Sample reads the shared ADC with channel id selected.
func (r *Registry) Sample(id int) (uint16, error) {
	if err := r.check(id); err != nil {
		return 0, err
	}
	v, err := r.hw.ReadADC(r.adcPin)
	if err != nil {
		return 0, newError(ErrFault, "sample", fmt.Sprintf("adc pin %d", r.adcPin), err)
	}
	return v, nil
}

// ResetAll drives every channel to duty 0 with its select line off.
// Every pin is attempted even if some writes fail.
func (r *Registry) ResetAll() error {
	var err error
	for _, p := range r.pairs {
		err = multierr.Append(err, r.hw.SetPWMDuty(p.LED, 0))
		err = multierr.Append(err, r.hw.SetDigital(p.Resistor, false))
	}
	if err != nil {
		return newError(ErrFault, "reset", "", err)
	}
	return nil
}

// Arm marks the start of a period in which channels may be energized.
// The returned release resets all channels and must be deferred.
func (r *Registry) Arm() (release func() error) {
	r.armed = true
	return func() error {
		r.armed = false
		return r.ResetAll()
	}
}

// Armed reports whether a cycle or self-test currently holds the channels.
func (r *Registry) Armed() bool { return r.armed }

func (r *Registry) check(id int) error {
	if id < 0 || id >= len(r.pairs) {
		return newError(ErrRange, "channel", fmt.Sprintf("channel %d not registered", id), nil)
	}
	return nil
}

// AppliedDuty returns min(intensity × ratio, MaxDuty), truncated toward zero.
func AppliedDuty(intensity int, ratio float64) uint16 {
	v := float64(intensity) * ratio
	if v >= MaxDuty {
		return MaxDuty
	}
	if v <= 0 {
		return 0
	}
	return uint16(v)
}

func validRatio(ratio float64) bool {
	return ratio > 0 && ratio < 2
}
