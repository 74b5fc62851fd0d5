// Package config loads the photometer daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/photometer/internal/hal"
	"github.com/sweeney/photometer/internal/photometer"
)

// Hardware backends.
const (
	BackendSerial = "serial"
	BackendGPIO   = "gpio"
	BackendFake   = "fake"
)

// Config represents the daemon configuration.
type Config struct {
	Hardware    HardwareConfig    `yaml:"hardware"`
	Channels    []ChannelConfig   `yaml:"channels"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Storage     StorageConfig     `yaml:"storage"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// HardwareConfig selects and describes the board.
type HardwareConfig struct {
	Backend      string       `yaml:"backend"`       // serial, gpio or fake
	ADCPin       int          `yaml:"adc_pin"`       // serial and fake backends: ADC input shared by all photoresistors
	PWMFrequency int          `yaml:"pwm_frequency"` // Hz
	IndicatorPin int          `yaml:"indicator_pin"` // -1 = no indicator
	Chip         string       `yaml:"chip"`          // gpio backend only
	ADC          ADCConfig    `yaml:"adc"`           // gpio backend only
	Serial       SerialConfig `yaml:"serial"`
}

// ADCConfig describes an MCP3x08 on bit-bashed SPI lines.
type ADCConfig struct {
	Model   string        `yaml:"model"`
	Channel int           `yaml:"channel"` // input shared by all photoresistors
	CLK     int           `yaml:"clk"`
	CSZ     int           `yaml:"csz"`
	DI      int           `yaml:"di"`
	DO      int           `yaml:"do"`
	Tclk    time.Duration `yaml:"tclk"`
}

// SerialConfig describes the microcontroller bridge.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ChannelConfig is one LED / photoresistor pair.
type ChannelConfig struct {
	LED      int     `yaml:"led"`
	Resistor int     `yaml:"resistor"`
	Ratio    float64 `yaml:"ratio"` // 0 = uncalibrated (1.0)
}

// MeasurementConfig contains acquisition timing and the intensity program.
type MeasurementConfig struct {
	Warmup   time.Duration `yaml:"warmup"`
	Repeats  int           `yaml:"repeats"`
	Interval time.Duration `yaml:"interval"`
	Period   time.Duration `yaml:"period"`
	Program  []int         `yaml:"program"`
	SelfTest bool          `yaml:"self_test"` // run the calibration sweep before the first cycle
}

// StorageConfig names the record log and the error record.
type StorageConfig struct {
	LogPath   string `yaml:"log_path"` // empty = <timestamp>_output.csv
	ErrorPath string `yaml:"error_path"`
}

// MQTTConfig contains broker settings. An empty broker disables publishing.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HTTPConfig contains the status server address. Empty disables it.
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// Default returns the original eight-channel controller configuration.
func Default() *Config {
	timing := photometer.DefaultTiming()
	channels := make([]ChannelConfig, 0, 8)
	for _, p := range photometer.DefaultPairs() {
		channels = append(channels, ChannelConfig{LED: p.LED, Resistor: p.Resistor, Ratio: p.Ratio})
	}
	return &Config{
		Hardware: HardwareConfig{
			Backend:      BackendSerial,
			ADCPin:       hal.DefaultADCPin,
			PWMFrequency: hal.DefaultPWMFrequency,
			IndicatorPin: hal.DefaultIndicatorPin,
			Chip:         "gpiochip0",
			ADC: ADCConfig{
				Model: "mcp3208",
				CLK:   21,
				CSZ:   20,
				DI:    22,
				DO:    23,
				Tclk:  500 * time.Nanosecond,
			},
			Serial: SerialConfig{
				Port: "/dev/ttyACM0",
				Baud: hal.DefaultBaudRate,
			},
		},
		Channels: channels,
		Measurement: MeasurementConfig{
			Warmup:   timing.Warmup,
			Repeats:  timing.Repeats,
			Interval: timing.Interval,
			Period:   photometer.DefaultPeriod,
			Program:  photometer.DefaultProgram(),
			SelfTest: true,
		},
		Storage: StorageConfig{
			ErrorPath: "error.log",
		},
		MQTT: MQTTConfig{
			ClientID:    "photometer",
			TopicPrefix: "photometer",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults, missing fields keep their default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills values an explicit empty entry in the file would
// otherwise leave unusable.
func (c *Config) ensureDefaults() {
	d := Default()
	if c.Hardware.Backend == "" {
		c.Hardware.Backend = d.Hardware.Backend
	}
	if c.Hardware.PWMFrequency <= 0 {
		c.Hardware.PWMFrequency = d.Hardware.PWMFrequency
	}
	if c.Hardware.Chip == "" {
		c.Hardware.Chip = d.Hardware.Chip
	}
	if c.Hardware.ADC.Model == "" {
		c.Hardware.ADC.Model = d.Hardware.ADC.Model
	}
	if c.Hardware.Serial.Baud <= 0 {
		c.Hardware.Serial.Baud = d.Hardware.Serial.Baud
	}
	if len(c.Channels) == 0 {
		c.Channels = d.Channels
	}
	if c.Measurement.Period <= 0 {
		c.Measurement.Period = d.Measurement.Period
	}
	if len(c.Measurement.Program) == 0 {
		c.Measurement.Program = d.Measurement.Program
	}
	if c.Storage.ErrorPath == "" {
		c.Storage.ErrorPath = d.Storage.ErrorPath
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}
}

// Validate reports the first setting that cannot drive the hardware.
// Errors match photometer.ErrConfiguration.
func (c *Config) Validate() error {
	switch c.Hardware.Backend {
	case BackendSerial:
		if c.Hardware.Serial.Port == "" {
			return invalid("hardware.serial.port is required for the serial backend")
		}
	case BackendGPIO:
		if ch := c.Hardware.ADC.Channel; ch < 0 || ch > 7 {
			return invalid("hardware.adc.channel %d is not an MCP3x08 channel", ch)
		}
		if m := c.Hardware.ADC.Model; m != "mcp3208" && m != "mcp3008" {
			return invalid("hardware.adc.model %q not supported", m)
		}
	case BackendFake:
	default:
		return invalid("hardware.backend %q not supported", c.Hardware.Backend)
	}
	if c.Hardware.Backend != BackendGPIO && c.Hardware.ADCPin < 0 {
		return invalid("hardware.adc_pin must not be negative")
	}

	if len(c.Channels) == 0 {
		return invalid("at least one channel is required")
	}
	for i, ch := range c.Channels {
		if ch.Ratio < 0 || ch.Ratio >= 2 {
			return invalid("channels[%d].ratio %v outside (0, 2)", i, ch.Ratio)
		}
	}
	if err := c.checkPinOwners(); err != nil {
		return err
	}

	m := c.Measurement
	if m.Warmup < 0 || m.Interval < 0 {
		return invalid("measurement durations must not be negative")
	}
	if m.Repeats < 1 {
		return invalid("measurement.repeats must be at least 1")
	}
	if m.Period <= 0 {
		return invalid("measurement.period must be positive")
	}
	if len(m.Program) == 0 {
		return invalid("measurement.program is empty")
	}
	for i, v := range m.Program {
		if v < 0 || v > photometer.MaxDuty {
			return invalid("measurement.program[%d] = %d outside [0, %d]", i, v, photometer.MaxDuty)
		}
	}
	return nil
}

// checkPinOwners rejects a pin claimed by two components. Channel pins
// belong to the registry alone, so the indicator, the shared ADC input and
// the ADC SPI lines must all sit elsewhere.
func (c *Config) checkPinOwners() error {
	owners := map[int]string{}
	claim := func(pin int, owner string) error {
		if prev, ok := owners[pin]; ok {
			return invalid("pin %d used by both %s and %s", pin, prev, owner)
		}
		owners[pin] = owner
		return nil
	}

	for i, ch := range c.Channels {
		if ch.LED < 0 || ch.Resistor < 0 {
			return invalid("channels[%d] has a negative pin", i)
		}
		if err := claim(ch.LED, fmt.Sprintf("channels[%d].led", i)); err != nil {
			return err
		}
		if err := claim(ch.Resistor, fmt.Sprintf("channels[%d].resistor", i)); err != nil {
			return err
		}
	}

	h := c.Hardware
	if h.IndicatorPin >= 0 {
		if err := claim(h.IndicatorPin, "hardware.indicator_pin"); err != nil {
			return err
		}
	}
	if h.Backend == BackendGPIO {
		for _, l := range []struct {
			pin  int
			name string
		}{
			{h.ADC.CLK, "hardware.adc.clk"},
			{h.ADC.CSZ, "hardware.adc.csz"},
			{h.ADC.DI, "hardware.adc.di"},
			{h.ADC.DO, "hardware.adc.do"},
		} {
			if l.pin < 0 {
				return invalid("%s must not be negative", l.name)
			}
			if err := claim(l.pin, l.name); err != nil {
				return err
			}
		}
		return nil
	}
	return claim(h.ADCPin, "hardware.adc_pin")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{photometer.ErrConfiguration}, args...)...)
}

// Pairs converts the channel list for the registry.
func (c *Config) Pairs() []photometer.ChannelPair {
	pairs := make([]photometer.ChannelPair, len(c.Channels))
	for i, ch := range c.Channels {
		pairs[i] = photometer.ChannelPair{LED: ch.LED, Resistor: ch.Resistor, Ratio: ch.Ratio}
	}
	return pairs
}

// ADCInput returns the ADC input the registry samples: an MCP3x08 channel
// on the gpio backend, the board's ADC pin otherwise.
func (c *Config) ADCInput() int {
	if c.Hardware.Backend == BackendGPIO {
		return c.Hardware.ADC.Channel
	}
	return c.Hardware.ADCPin
}

// Timing returns the process-wide measurement defaults.
func (c *Config) Timing() photometer.Timing {
	return photometer.Timing{
		Warmup:   c.Measurement.Warmup,
		Repeats:  c.Measurement.Repeats,
		Interval: c.Measurement.Interval,
	}
}

// GPIO returns the settings for the direct GPIO backend.
func (c *Config) GPIO() hal.GPIOConfig {
	a := c.Hardware.ADC
	return hal.GPIOConfig{
		Chip:         c.Hardware.Chip,
		PWMFrequency: c.Hardware.PWMFrequency,
		ADC: hal.ADCConfig{
			Model: a.Model,
			CLK:   a.CLK,
			CSZ:   a.CSZ,
			DI:    a.DI,
			DO:    a.DO,
			Tclk:  a.Tclk,
		},
	}
}
