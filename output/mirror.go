// Package output mirrors bus events onto NATS subjects so external
// consumers can follow channel activity without holding a websocket. The
// mirror is optional: with no URL configured nothing is connected and every
// method is a nil-safe no-op.
package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"serialscope/bus"
	"serialscope/models"
)

// Mirror forwards bus events to NATS. Line events go to
// <prefix>.lines.<channelId>, status events to <prefix>.events.<channelId>,
// port-set changes to <prefix>.ports.
type Mirror struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
	sub    *bus.Subscription
	done   chan struct{}
}

// envelope is the flat JSON shape published per event. Keep it simple for
// easy querying.
type envelope struct {
	Timestamp time.Time          `json:"ts"`
	Type      string             `json:"type"`
	ChannelID string             `json:"ch,omitempty"`
	Line      *models.LineEntry  `json:"line,omitempty"`
	Decoded   []models.DecodedFrame `json:"decoded,omitempty"`
	Error     string             `json:"error,omitempty"`
	Ports     []models.PortInfo  `json:"ports,omitempty"`
}

// NewMirror connects to NATS and returns a mirror. Returns nil (disabled
// mode) when url is empty; nothing breaks on a nil mirror.
func NewMirror(url, prefix string, logger *slog.Logger) (*Mirror, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	logger.Info("NATS mirror connected", "url", url, "prefix", prefix)
	return &Mirror{
		conn:   conn,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Start attaches the mirror to the bus. Safe to call on a nil receiver.
func (m *Mirror) Start(events *bus.Bus) {
	if m == nil {
		return
	}
	m.sub = events.Subscribe()
	m.done = make(chan struct{})
	go m.loop()
}

// Stop detaches from the bus and closes the connection. Safe to call on a
// nil receiver.
func (m *Mirror) Stop() {
	if m == nil {
		return
	}
	if m.sub != nil {
		m.sub.Cancel()
		<-m.done
	}
	m.conn.Close()
	m.logger.Info("NATS mirror stopped")
}

func (m *Mirror) loop() {
	defer close(m.done)
	for ev := range m.sub.C {
		m.publish(ev)
	}
}

func (m *Mirror) publish(ev bus.Event) {
	env, subject := m.translate(ev)
	if subject == "" {
		return
	}
	if !m.conn.IsConnected() {
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		m.logger.Error("Failed to marshal event", "error", err, "type", env.Type)
		return
	}
	if err := m.conn.Publish(subject, data); err != nil {
		m.logger.Warn("Failed to publish event", "error", err, "subject", subject)
	}
}

// translate maps a bus event onto its envelope and subject. Raw chunks are
// not mirrored; they would swamp the stream.
func (m *Mirror) translate(ev bus.Event) (envelope, string) {
	env := envelope{Timestamp: time.Now().UTC(), Type: ev.Kind()}

	switch e := ev.(type) {
	case bus.LineEvent:
		env.ChannelID = e.ChannelID
		entry := e.Entry
		env.Line = &entry
		env.Decoded = e.Decoded
		return env, m.prefix + ".lines." + e.ChannelID
	case bus.ConnectedEvent:
		env.ChannelID = e.ChannelID
		return env, m.prefix + ".events." + e.ChannelID
	case bus.DisconnectedEvent:
		env.ChannelID = e.ChannelID
		return env, m.prefix + ".events." + e.ChannelID
	case bus.ErrorEvent:
		env.ChannelID = e.ChannelID
		env.Error = e.Message
		return env, m.prefix + ".events." + e.ChannelID
	case bus.ClearedEvent:
		env.ChannelID = e.ChannelID
		return env, m.prefix + ".events." + e.ChannelID
	case bus.PortsChangedEvent:
		env.Ports = e.Ports
		return env, m.prefix + ".ports"
	default:
		return env, ""
	}
}
