package main

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sweeney/photometer/internal/hal"
	"github.com/sweeney/photometer/internal/photometer"
)

// Simulated optics: a dark reading plus light that grows with LED duty.
const (
	simDark         = 1200.0
	simTransmission = 0.8
	simNoise        = 40.0
)

// simBoard is the "fake" backend. Its ADC answers with the light an
// energized channel would produce, so the daemon can run without hardware.
type simBoard struct {
	mu      sync.Mutex
	adcPin  int
	pairs   []photometer.ChannelPair
	duty    map[int]uint16
	digital map[int]bool
	rng     *rand.Rand
	closed  bool
}

func newSimBoard(adcPin int, pairs []photometer.ChannelPair, seed int64) *simBoard {
	return &simBoard{
		adcPin:  adcPin,
		pairs:   pairs,
		duty:    map[int]uint16{},
		digital: map[int]bool{},
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (b *simBoard) SetPWMDuty(pin int, duty uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("sim: board closed")
	}
	b.duty[pin] = duty
	return nil
}

func (b *simBoard) SetDigital(pin int, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("sim: board closed")
	}
	b.digital[pin] = on
	return nil
}

func (b *simBoard) ReadADC(pin int) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errors.New("sim: board closed")
	}
	if pin != b.adcPin {
		return 0, fmt.Errorf("sim: no adc on pin %d", pin)
	}

	v := simDark
	for _, p := range b.pairs {
		if b.digital[p.Resistor] {
			v += float64(b.duty[p.LED]) * simTransmission
		}
	}
	v += b.rng.NormFloat64() * simNoise
	switch {
	case v < 0:
		v = 0
	case v > hal.MaxDuty:
		v = hal.MaxDuty
	}
	return uint16(v), nil
}

func (b *simBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("sim: already closed")
	}
	b.closed = true
	return nil
}

var _ hal.Hardware = (*simBoard)(nil)
