// Package serial wraps go.bug.st/serial behind a small Port interface so the
// channel runtime can be exercised against fake devices in tests.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"serialscope/config"
)

// Sentinel errors for the two ways an open can fail
var (
	// ErrDeviceUnavailable means the device path is missing, permission was
	// denied, or the open timed out.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrInvalidConfig means the driver rejected the port parameters.
	ErrInvalidConfig = errors.New("invalid port configuration")
)

const (
	// OpenTimeout bounds how long Open may block on a wedged driver
	OpenTimeout = 5 * time.Second

	// ReadTimeout is the poll granularity of blocking reads; short enough
	// that a reader goroutine notices shutdown promptly.
	ReadTimeout = 500 * time.Millisecond
)

// Port is the minimal device surface the channel runtime needs
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a device for a fully populated port configuration. Tests
// inject fakes; production code uses Open.
type Opener func(cfg config.PortConfig) (Port, error)

// Open opens a real serial device via go.bug.st/serial. The open itself runs
// on a separate goroutine so a wedged driver cannot block the caller past
// OpenTimeout.
func Open(cfg config.PortConfig) (Port, error) {
	if err := config.ValidatePort(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	mode, err := buildMode(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	type openResult struct {
		port serial.Port
		err  error
	}
	resultCh := make(chan openResult, 1)
	go func() {
		port, err := serial.Open(cfg.Path, mode)
		resultCh <- openResult{port, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, classifyOpenError(cfg.Path, res.err)
		}
		if err := res.port.SetReadTimeout(ReadTimeout); err != nil {
			res.port.Close()
			return nil, fmt.Errorf("%w: set read timeout on %s: %w", ErrDeviceUnavailable, cfg.Path, err)
		}
		return res.port, nil
	case <-time.After(OpenTimeout):
		// Late success leaks nothing: close the port when the open finally
		// returns.
		go func() {
			if res := <-resultCh; res.port != nil {
				res.port.Close()
			}
		}()
		return nil, fmt.Errorf("%w: open %s timed out after %v", ErrDeviceUnavailable, cfg.Path, OpenTimeout)
	}
}

// buildMode translates a PortConfig into a go.bug.st serial mode. The
// driver surface has no flow-control knob; the configured value is recorded
// on the channel but not programmed into the UART.
func buildMode(cfg config.PortConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.Parity {
	case "none":
		mode.Parity = serial.NoParity
	case "even":
		mode.Parity = serial.EvenParity
	case "odd":
		mode.Parity = serial.OddParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unknown parity: %q", cfg.Parity)
	}

	switch cfg.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unknown stop bits: %v", cfg.StopBits)
	}

	return mode, nil
}

// classifyOpenError maps driver failures onto the open-error taxonomy
func classifyOpenError(path string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, path, err)
}
