package config

import "fmt"

// Default serial parameters applied when a field is left unset: 115200 baud,
// 8 data bits, no parity, 1 stop bit, no flow control.
const (
	DefaultBaudRate = 115200
	DefaultDataBits = 8
	DefaultStopBits = 1
	DefaultParity   = "none"
	DefaultFlow     = "none"
)

// PortConfig describes how a serial device is opened. A channel holds a fully
// populated copy for as long as it is connected; sparse configs from clients
// go through ApplyPortDefaults before hand-off.
type PortConfig struct {
	Path        string  `json:"path"`
	BaudRate    int     `json:"baudRate"`
	DataBits    int     `json:"dataBits"`
	StopBits    float64 `json:"stopBits"` // 1, 1.5 or 2
	Parity      string  `json:"parity"`   // none, even, odd, mark, space
	FlowControl string  `json:"flowControl"` // none, rtscts, xonxoff
}

// ApplyPortDefaults returns a copy of c with every unset field filled in.
// The device path is the one field with no default.
func ApplyPortDefaults(c PortConfig) PortConfig {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	if c.StopBits == 0 {
		c.StopBits = DefaultStopBits
	}
	if c.Parity == "" {
		c.Parity = DefaultParity
	}
	if c.FlowControl == "" {
		c.FlowControl = DefaultFlow
	}
	return c
}

// ValidatePort checks a fully populated port configuration
func ValidatePort(c PortConfig) error {
	if c.Path == "" {
		return fmt.Errorf("device path is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive, got %d", c.BaudRate)
	}
	switch c.DataBits {
	case 5, 6, 7, 8:
	default:
		return fmt.Errorf("data bits must be 5-8, got %d", c.DataBits)
	}
	switch c.StopBits {
	case 1, 1.5, 2:
	default:
		return fmt.Errorf("stop bits must be 1, 1.5 or 2, got %v", c.StopBits)
	}
	switch c.Parity {
	case "none", "even", "odd", "mark", "space":
	default:
		return fmt.Errorf("unknown parity: %q", c.Parity)
	}
	switch c.FlowControl {
	case "none", "rtscts", "xonxoff":
	default:
		return fmt.Errorf("unknown flow control: %q", c.FlowControl)
	}
	return nil
}
