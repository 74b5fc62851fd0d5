//go:build linux

package hal

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// GPIO drives a Linux board: LED anodes on hardware PWM (periph.io),
// photoresistor select lines and the indicator on the GPIO character
// device, and the photoresistor divider on an MCP3x08 read over bit-bashed
// SPI lines on the same chip.
type GPIO struct {
	chip     *gpiocdev.Chip
	adc      *mcp3x08
	adcLines []*gpiocdev.Line
	freq     physic.Frequency

	lines map[int]*gpiocdev.Line
	pwms  map[int]gpio.PinIO
}

// NewGPIO opens the gpio chip and the ADC described by cfg.
// PWM pins and digital lines are requested lazily on first use.
func NewGPIO(cfg GPIOConfig) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	chip, err := gpiocdev.NewChip(cfg.Chip, gpiocdev.WithConsumer("photometer"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := requestADCLines(chip, cfg.ADC)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("open adc: %w", err)
	}
	adc, err := newMCP3x08(cfg.ADC.Model, lines[0], lines[1], lines[2], lines[3], cfg.ADC.Tclk)
	if err != nil {
		closeLines(lines)
		chip.Close()
		return nil, err
	}

	freq := cfg.PWMFrequency
	if freq <= 0 {
		freq = DefaultPWMFrequency
	}

	return &GPIO{
		chip:     chip,
		adc:      adc,
		adcLines: lines,
		freq:     physic.Frequency(freq) * physic.Hertz,
		lines:    map[int]*gpiocdev.Line{},
		pwms:     map[int]gpio.PinIO{},
	}, nil
}

// requestADCLines returns CLK, CSZ and DI as outputs (clock low, chip
// deselected) followed by DO as an input.
func requestADCLines(chip *gpiocdev.Chip, cfg ADCConfig) ([]*gpiocdev.Line, error) {
	reqs := []struct {
		name   string
		offset int
		opt    gpiocdev.LineReqOption
	}{
		{"clk", cfg.CLK, gpiocdev.AsOutput(0)},
		{"csz", cfg.CSZ, gpiocdev.AsOutput(1)},
		{"di", cfg.DI, gpiocdev.AsOutput(0)},
		{"do", cfg.DO, gpiocdev.AsInput},
	}
	lines := make([]*gpiocdev.Line, 0, len(reqs))
	for _, r := range reqs {
		l, err := chip.RequestLine(r.offset, r.opt)
		if err != nil {
			closeLines(lines)
			return nil, fmt.Errorf("request %s pin %d: %w", r.name, r.offset, err)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func closeLines(lines []*gpiocdev.Line) error {
	var err error
	for _, l := range lines {
		err = multierr.Append(err, l.Close())
	}
	return err
}

// SetPWMDuty sets the duty cycle on a PWM capable pin.
func (g *GPIO) SetPWMDuty(pin int, duty uint16) error {
	p, ok := g.pwms[pin]
	if !ok {
		p = gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
		if p == nil {
			return fmt.Errorf("pwm pin %d: not found", pin)
		}
		g.pwms[pin] = p
	}
	if err := p.PWM(scaleDuty(duty), g.freq); err != nil {
		return fmt.Errorf("pwm pin %d: %w", pin, err)
	}
	return nil
}

// SetDigital drives a digital output line.
func (g *GPIO) SetDigital(pin int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	l, ok := g.lines[pin]
	if !ok {
		var err error
		l, err = g.chip.RequestLine(pin, gpiocdev.AsOutput(v))
		if err != nil {
			return fmt.Errorf("request pin %d: %w", pin, err)
		}
		g.lines[pin] = l
		return nil
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// ReadADC reads an ADC channel and scales it to 16 bits.
func (g *GPIO) ReadADC(pin int) (uint16, error) {
	d, err := g.adc.Read(pin)
	if err != nil {
		return 0, fmt.Errorf("read adc channel %d: %w", pin, err)
	}
	return scaleADC(d, g.adc.bits), nil
}

// Close stops all PWM outputs, returns digital lines to inputs and
// releases the chip.
func (g *GPIO) Close() error {
	var err error
	for pin, p := range g.pwms {
		if e := p.Out(gpio.Low); e != nil {
			err = multierr.Append(err, fmt.Errorf("stop pwm pin %d: %w", pin, e))
		}
	}
	for pin, l := range g.lines {
		if e := l.Reconfigure(gpiocdev.AsInput); e != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure pin %d: %w", pin, e))
		}
		if e := l.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close pin %d: %w", pin, e))
		}
	}
	err = multierr.Append(err, closeLines(g.adcLines))
	if g.chip != nil {
		err = multierr.Append(err, g.chip.Close())
	}
	if err != nil {
		return fmt.Errorf("close errors: %w", err)
	}
	return nil
}

func scaleDuty(duty uint16) gpio.Duty {
	return gpio.Duty(uint64(duty) * uint64(gpio.DutyMax) / MaxDuty)
}

// compile-time check
var _ Hardware = (*GPIO)(nil)
