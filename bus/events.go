package bus

import (
	"serialscope/config"
	"serialscope/models"
)

// Event is the discriminated union of everything published on the bus.
// Every event except PortsChangedEvent carries the originating channel id.
type Event interface {
	Kind() string
}

// LineEvent carries one framed rx or tx entry. Decoded is set only for rx
// entries for which at least one decoder returned a frame.
type LineEvent struct {
	ChannelID string
	Entry     models.LineEntry
	Decoded   []models.DecodedFrame
}

// RawDataEvent carries one pre-framing chunk as read from the device
type RawDataEvent struct {
	ChannelID string
	Bytes     []byte
	Timestamp int64
}

// ConnectedEvent is published once per successful open
type ConnectedEvent struct {
	ChannelID string
	Config    config.PortConfig
}

// DisconnectedEvent is published exactly once per prior ConnectedEvent
type DisconnectedEvent struct {
	ChannelID string
}

// ErrorEvent surfaces a device-related failure to subscribers
type ErrorEvent struct {
	ChannelID string
	Message   string
}

// ClearedEvent is published when a channel's buffer is emptied
type ClearedEvent struct {
	ChannelID string
}

// PortsChangedEvent is published when the set of enumerated devices changes.
// It is global and carries no channel id.
type PortsChangedEvent struct {
	Ports []models.PortInfo
}

func (LineEvent) Kind() string         { return "line" }
func (RawDataEvent) Kind() string      { return "raw-data" }
func (ConnectedEvent) Kind() string    { return "connected" }
func (DisconnectedEvent) Kind() string { return "disconnected" }
func (ErrorEvent) Kind() string        { return "error" }
func (ClearedEvent) Kind() string      { return "cleared" }
func (PortsChangedEvent) Kind() string { return "ports-changed" }
