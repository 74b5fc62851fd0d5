package hal

import (
	"fmt"
	"time"
)

// outputLine and inputLine are the parts of a requested GPIO line the ADC
// driver needs. *gpiocdev.Line satisfies both.
type outputLine interface {
	SetValue(value int) error
}

type inputLine interface {
	Value() (int, error)
}

// mcp3x08 reads an MCP3008 (10-bit) or MCP3208 (12-bit) by bit-bashing SPI
// mode 0 over four GPIO lines.
type mcp3x08 struct {
	clk, csz, di outputLine
	do           inputLine
	bits         uint
	tclk         time.Duration
	delay        func(time.Duration)
}

func newMCP3x08(model string, clk, csz, di outputLine, do inputLine, tclk time.Duration) (*mcp3x08, error) {
	var bits uint
	switch model {
	case "mcp3008":
		bits = 10
	case "mcp3208", "":
		bits = 12
	default:
		return nil, fmt.Errorf("unsupported adc model %q", model)
	}
	return &mcp3x08{clk: clk, csz: csz, di: di, do: do, bits: bits, tclk: tclk, delay: time.Sleep}, nil
}

// Read performs one single-ended conversion of channel ch.
// Chip select is released on return even if a line write fails.
func (a *mcp3x08) Read(ch int) (d uint16, err error) {
	if ch < 0 || ch > 7 {
		return 0, fmt.Errorf("adc channel %d out of range", ch)
	}

	if err := a.clk.SetValue(0); err != nil {
		return 0, fmt.Errorf("clk: %w", err)
	}
	if err := a.csz.SetValue(0); err != nil {
		return 0, fmt.Errorf("csz: %w", err)
	}
	defer func() {
		if e := a.csz.SetValue(1); e != nil && err == nil {
			err = fmt.Errorf("csz: %w", e)
		}
	}()

	// start bit, single-ended, D2..D0
	cmd := 0x18 | ch
	for i := 4; i >= 0; i-- {
		if err := a.di.SetValue((cmd >> i) & 1); err != nil {
			return 0, fmt.Errorf("di: %w", err)
		}
		if err := a.pulse(); err != nil {
			return 0, err
		}
	}

	// sample period, ends with the null bit on DO
	if err := a.pulse(); err != nil {
		return 0, err
	}

	for i := uint(0); i < a.bits; i++ {
		if err := a.pulse(); err != nil {
			return 0, err
		}
		v, err := a.do.Value()
		if err != nil {
			return 0, fmt.Errorf("do: %w", err)
		}
		d = d<<1 | uint16(v&1)
	}
	return d, nil
}

// pulse drives one clock period. The chip latches DI on the rising edge
// and shifts DO on the falling edge.
func (a *mcp3x08) pulse() error {
	a.wait()
	if err := a.clk.SetValue(1); err != nil {
		return fmt.Errorf("clk: %w", err)
	}
	a.wait()
	if err := a.clk.SetValue(0); err != nil {
		return fmt.Errorf("clk: %w", err)
	}
	return nil
}

func (a *mcp3x08) wait() {
	if a.tclk > 0 {
		a.delay(a.tclk / 2)
	}
}
