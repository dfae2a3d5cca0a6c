package serial

import (
	"errors"
	"testing"

	bugst "go.bug.st/serial"

	"serialscope/config"
)

func fullConfig() config.PortConfig {
	return config.ApplyPortDefaults(config.PortConfig{Path: "/dev/ttyUSB0"})
}

func TestBuildModeDefaults(t *testing.T) {
	mode, err := buildMode(fullConfig())
	if err != nil {
		t.Fatalf("buildMode() error = %v", err)
	}
	if mode.BaudRate != 115200 || mode.DataBits != 8 {
		t.Errorf("mode = %+v", mode)
	}
	if mode.Parity != bugst.NoParity {
		t.Errorf("Parity = %v, want NoParity", mode.Parity)
	}
	if mode.StopBits != bugst.OneStopBit {
		t.Errorf("StopBits = %v, want OneStopBit", mode.StopBits)
	}
}

func TestBuildModeMappings(t *testing.T) {
	parities := map[string]bugst.Parity{
		"none":  bugst.NoParity,
		"even":  bugst.EvenParity,
		"odd":   bugst.OddParity,
		"mark":  bugst.MarkParity,
		"space": bugst.SpaceParity,
	}
	for name, want := range parities {
		cfg := fullConfig()
		cfg.Parity = name
		mode, err := buildMode(cfg)
		if err != nil {
			t.Fatalf("buildMode(parity=%s) error = %v", name, err)
		}
		if mode.Parity != want {
			t.Errorf("parity %s mapped to %v", name, mode.Parity)
		}
	}

	stopBits := map[float64]bugst.StopBits{
		1:   bugst.OneStopBit,
		1.5: bugst.OnePointFiveStopBits,
		2:   bugst.TwoStopBits,
	}
	for val, want := range stopBits {
		cfg := fullConfig()
		cfg.StopBits = val
		mode, err := buildMode(cfg)
		if err != nil {
			t.Fatalf("buildMode(stopBits=%v) error = %v", val, err)
		}
		if mode.StopBits != want {
			t.Errorf("stop bits %v mapped to %v", val, mode.StopBits)
		}
	}
}

func TestOpenRejectsInvalidConfigBeforeDriver(t *testing.T) {
	cfg := fullConfig()
	cfg.DataBits = 4

	_, err := Open(cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Open() error = %v, want ErrInvalidConfig", err)
	}
}

func TestOpenMissingDevice(t *testing.T) {
	cfg := fullConfig()
	cfg.Path = "/dev/serialscope-test-no-such-device"

	_, err := Open(cfg)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Open() error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestClassifyOpenError(t *testing.T) {
	plain := errors.New("something odd")
	if got := classifyOpenError("/dev/x", plain); !errors.Is(got, ErrDeviceUnavailable) {
		t.Errorf("plain error classified as %v", got)
	}
}
