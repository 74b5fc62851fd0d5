package hal

import (
	"errors"
	"fmt"
)

// Write is a single recorded hardware mutation.
type Write struct {
	Op    string // "pwm" or "digital"
	Pin   int
	Value int // duty for "pwm", 0/1 for "digital"
}

// Fake is a test double that records outputs and returns scripted ADC values.
type Fake struct {
	// Duty holds the last duty written per PWM pin.
	Duty map[int]uint16

	// Digital holds the last level written per digital pin.
	Digital map[int]bool

	// Writes records every mutation in order.
	Writes []Write

	// Samples contains scripted ADC readings per pin.
	// Each ReadADC call consumes the next value; the last one repeats.
	Samples map[int][]uint16

	// index tracks the position in Samples per pin
	index map[int]int

	// Reads counts ReadADC calls per pin.
	Reads map[int]int

	// PWMError, DigitalError and ReadError, if set, are returned by the matching call.
	PWMError     error
	DigitalError error
	ReadError    error

	// Closed tracks if Close was called
	Closed bool
}

// NewFake creates a Fake with no scripted samples.
func NewFake() *Fake {
	return &Fake{
		Duty:    map[int]uint16{},
		Digital: map[int]bool{},
		Samples: map[int][]uint16{},
		index:   map[int]int{},
		Reads:   map[int]int{},
	}
}

// SetPWMDuty records the duty for pin.
func (f *Fake) SetPWMDuty(pin int, duty uint16) error {
	if f.PWMError != nil {
		return f.PWMError
	}
	f.Duty[pin] = duty
	f.Writes = append(f.Writes, Write{Op: "pwm", Pin: pin, Value: int(duty)})
	return nil
}

// SetDigital records the level for pin.
func (f *Fake) SetDigital(pin int, on bool) error {
	if f.DigitalError != nil {
		return f.DigitalError
	}
	f.Digital[pin] = on
	v := 0
	if on {
		v = 1
	}
	f.Writes = append(f.Writes, Write{Op: "digital", Pin: pin, Value: v})
	return nil
}

// ReadADC returns the next scripted sample for pin.
func (f *Fake) ReadADC(pin int) (uint16, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	samples := f.Samples[pin]
	if len(samples) == 0 {
		return 0, fmt.Errorf("no samples configured for pin %d", pin)
	}
	i := f.index[pin]
	if i < len(samples)-1 {
		f.index[pin]++
	}
	f.Reads[pin]++
	return samples[i], nil
}

// Close marks the fake as closed.
func (f *Fake) Close() error {
	if f.Closed {
		return errors.New("already closed")
	}
	f.Closed = true
	return nil
}

// Script sets the samples returned for pin and rewinds it.
func (f *Fake) Script(pin int, samples ...uint16) {
	f.Samples[pin] = samples
	f.index[pin] = 0
}

// Energized reports whether any recorded PWM output is non-zero or any digital output is high.
func (f *Fake) Energized() bool {
	for _, d := range f.Duty {
		if d != 0 {
			return true
		}
	}
	for _, on := range f.Digital {
		if on {
			return true
		}
	}
	return false
}

// ResetWrites clears the mutation log but keeps pin state.
func (f *Fake) ResetWrites() {
	f.Writes = nil
}
