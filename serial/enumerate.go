package serial

import (
	"fmt"

	"go.bug.st/serial/enumerator"

	"serialscope/models"
)

// Lister returns the currently visible serial devices. The production
// implementation is ListPorts; the poller takes it as a function so tests
// can script hot-plug sequences.
type Lister func() ([]models.PortInfo, error)

// ListPorts enumerates OS serial devices with USB metadata where available.
// FriendlyName falls back to the device path when the OS supplies nothing
// better.
func ListPorts() ([]models.PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]models.PortInfo, 0, len(details))
	for _, d := range details {
		info := models.PortInfo{
			Path:         d.Name,
			FriendlyName: d.Name,
		}
		if d.IsUSB {
			info.SerialNumber = d.SerialNumber
			info.VendorID = d.VID
			info.ProductID = d.PID
			if d.Product != "" {
				info.FriendlyName = d.Product
			}
		}
		ports = append(ports, info)
	}

	return ports, nil
}
