//go:build !linux

package hal

import "errors"

// GPIO is not available on non-Linux platforms.
type GPIO struct{}

// NewGPIO returns an error on non-Linux platforms.
func NewGPIO(cfg GPIOConfig) (*GPIO, error) {
	return nil, errors.New("hal: gpio backend not supported on this platform (requires Linux)")
}

// SetPWMDuty is not implemented on non-Linux platforms.
func (g *GPIO) SetPWMDuty(pin int, duty uint16) error {
	return errors.New("hal: not supported")
}

// SetDigital is not implemented on non-Linux platforms.
func (g *GPIO) SetDigital(pin int, on bool) error {
	return errors.New("hal: not supported")
}

// ReadADC is not implemented on non-Linux platforms.
func (g *GPIO) ReadADC(pin int) (uint16, error) {
	return 0, errors.New("hal: not supported")
}

// Close is not implemented on non-Linux platforms.
func (g *GPIO) Close() error {
	return nil
}
