// Package models holds the data types shared between the channel runtime,
// the event bus and the transport layer.
package models

import "serialscope/config"

// Line direction
const (
	DirectionRx = "rx"
	DirectionTx = "tx"
)

// Send encoding modes
const (
	ModeASCII  = "ascii"
	ModeHex    = "hex"
	ModeBinary = "binary"
)

// LineEntry is one buffered record, rx or tx, with a monotonic per-channel
// index that is never reused and never rewound by eviction.
type LineEntry struct {
	Timestamp int64  `json:"timestamp"` // wall-clock ms since epoch
	Direction string `json:"direction"` // rx or tx
	Data      string `json:"data"`
	Mode      string `json:"mode,omitempty"` // tx only: ascii, hex or binary
	Index     int64  `json:"index"`
	ChannelID string `json:"channelId"`
}

// Stats holds per-channel counters. Monotonic except on explicit reset at
// open time; ConnectedAt is 0 while disconnected.
type Stats struct {
	BytesRx     int64 `json:"bytesRx"`
	BytesTx     int64 `json:"bytesTx"`
	LinesRx     int64 `json:"linesRx"`
	LinesTx     int64 `json:"linesTx"`
	Errors      int64 `json:"errors"`
	ConnectedAt int64 `json:"connectedAt,omitempty"`
}

// DecodedFrame is the result of one decoder over one byte slice. Name is the
// decoder's display name, attached by the registry.
type DecodedFrame struct {
	Name     string         `json:"name"`
	Protocol string         `json:"protocol"`
	Fields   map[string]any `json:"fields"`
	Display  string         `json:"display"`
}

// PortInfo describes one enumerated OS serial device
type PortInfo struct {
	Path         string `json:"path"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	VendorID     string `json:"vendorId,omitempty"`
	ProductID    string `json:"productId,omitempty"`
	FriendlyName string `json:"friendlyName"`
}

// ChannelStatus is the snapshot returned by getStatus
type ChannelStatus struct {
	Connected  bool               `json:"connected"`
	Config     *config.PortConfig `json:"config,omitempty"`
	Stats      Stats              `json:"stats"`
	BufferSize int                `json:"bufferSize"`
}
