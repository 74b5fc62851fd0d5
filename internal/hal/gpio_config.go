package hal

import "time"

// DefaultPWMFrequency matches the original controller (PWM frequency equal to the duty resolution).
const DefaultPWMFrequency = 65535

// GPIOConfig describes a directly wired Linux board.
type GPIOConfig struct {
	Chip         string
	PWMFrequency int
	ADC          ADCConfig
}

// ADCConfig describes an MCP3x08 on bit-bashed SPI lines (BCM offsets).
type ADCConfig struct {
	Model string // "mcp3208" or "mcp3008"
	CLK   int
	CSZ   int
	DI    int
	DO    int
	Tclk  time.Duration
}

// scaleADC left-aligns an n-bit conversion into 16 bits, replicating the
// top bits into the low bits so full scale maps to MaxDuty.
func scaleADC(d uint16, bits uint) uint16 {
	if bits == 0 || bits >= 16 {
		return d
	}
	shift := 16 - bits
	if bits < shift {
		return d << shift
	}
	return d<<shift | d>>(bits-shift)
}
