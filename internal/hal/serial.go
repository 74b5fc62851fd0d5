package hal

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the USB CDC rate used by the bridge firmware.
	DefaultBaudRate = 115200
	// DefaultReplyTimeout bounds the wait for a single reply line.
	DefaultReplyTimeout = 2 * time.Second
)

// Serial drives a microcontroller running the photometer bridge firmware.
//
// Commands are single lines, one reply line each:
//
//	P <pin> <duty>   set PWM duty 0..65535      -> OK
//	D <pin> <0|1>    set digital output         -> OK
//	A <pin>          read ADC (16-bit scaled)   -> <value>
//
// Any command may instead be answered with "ERR <message>".
type Serial struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
}

// NewSerial opens the serial port and returns a bridge client.
func NewSerial(port string, baudRate int) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	if err := p.SetReadTimeout(DefaultReplyTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return newSerialConn(p), nil
}

func newSerialConn(conn io.ReadWriteCloser) *Serial {
	return &Serial{conn: conn, reader: bufio.NewReader(conn)}
}

// SetPWMDuty sends a P command.
func (s *Serial) SetPWMDuty(pin int, duty uint16) error {
	_, err := s.command(fmt.Sprintf("P %d %d", pin, duty))
	return err
}

// SetDigital sends a D command.
func (s *Serial) SetDigital(pin int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	_, err := s.command(fmt.Sprintf("D %d %d", pin, v))
	return err
}

// ReadADC sends an A command and parses the reading.
func (s *Serial) ReadADC(pin int) (uint16, error) {
	reply, err := s.command(fmt.Sprintf("A %d", pin))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(reply, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid adc reply %q: %w", reply, err)
	}
	return uint16(v), nil
}

// Close closes the serial port.
func (s *Serial) Close() error {
	return s.conn.Close()
}

// command writes one command line and returns the reply with "OK" mapped to "".
func (s *Serial) command(cmd string) (string, error) {
	if _, err := io.WriteString(s.conn, cmd+"\n"); err != nil {
		return "", fmt.Errorf("send %q: %w", cmd, err)
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return "", fmt.Errorf("no reply to %q (timeout)", cmd)
		}
		if err != io.EOF {
			return "", fmt.Errorf("read reply to %q: %w", cmd, err)
		}
	}
	reply := strings.TrimSpace(line)
	switch {
	case reply == "OK":
		return "", nil
	case strings.HasPrefix(reply, "ERR"):
		return "", fmt.Errorf("bridge rejected %q: %s", cmd, strings.TrimSpace(strings.TrimPrefix(reply, "ERR")))
	case reply == "":
		return "", fmt.Errorf("empty reply to %q", cmd)
	}
	return reply, nil
}

var _ Hardware = (*Serial)(nil)
