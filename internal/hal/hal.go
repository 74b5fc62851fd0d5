// Package hal is the hardware capability layer of the photometer.
// The GPIO implementation drives a Linux board directly (gpiocdev select lines,
// periph PWM, MCP3x08 ADC). The serial implementation talks to a microcontroller
// running the command firmware. The fake implementation allows testing without hardware.
package hal

import "log"

// MaxDuty is the PWM resolution ceiling. ADC readings share the same range.
const MaxDuty = 65535

// Hardware is the set of primitives the photometer needs from a board.
type Hardware interface {
	// SetPWMDuty sets the duty cycle of a PWM output, 0..MaxDuty.
	SetPWMDuty(pin int, duty uint16) error

	// SetDigital drives a digital output high (on) or low.
	SetDigital(pin int, on bool) error

	// ReadADC returns a 16-bit scaled reading of an analog input.
	ReadADC(pin int) (uint16, error)

	// Close releases hardware resources.
	Close() error
}

// Indicator is the optional "working" LED lit while a cycle runs.
type Indicator interface {
	On()
	Off()
}

// NoIndicator is used when the board has no indicator output.
type NoIndicator struct{}

func (NoIndicator) On()  {}
func (NoIndicator) Off() {}

// PinIndicator drives an indicator LED through a digital output.
// Write failures are logged and otherwise ignored.
type PinIndicator struct {
	hw  Hardware
	pin int
}

// NewIndicator returns a PinIndicator for pin, or NoIndicator when pin is negative.
func NewIndicator(hw Hardware, pin int) Indicator {
	if pin < 0 || hw == nil {
		return NoIndicator{}
	}
	return &PinIndicator{hw: hw, pin: pin}
}

// On lights the indicator.
func (p *PinIndicator) On() { p.set(true) }

// Off turns the indicator off.
func (p *PinIndicator) Off() { p.set(false) }

func (p *PinIndicator) set(on bool) {
	if err := p.hw.SetDigital(p.pin, on); err != nil {
		log.Printf("indicator: set pin %d: %v", p.pin, err)
	}
}

// Default pin assignments (original Pico wiring, BCM numbering on a Pi).
const (
	DefaultADCPin       = 26
	DefaultIndicatorPin = -1
)
