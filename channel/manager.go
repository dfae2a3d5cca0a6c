package channel

import (
	"log/slog"
	"sync"

	"serialscope/bus"
	"serialscope/config"
	"serialscope/models"
	"serialscope/serial"
)

// DefaultChannelID is the reserved fallback used when callers omit a
// channel id
const DefaultChannelID = "default"

// Manager owns the mapping from channel id to Channel. Channels are created
// lazily on first reference and destroyed only by Remove.
type Manager struct {
	opener serial.Opener
	decode DecodeFunc
	events *bus.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewManager creates an empty channel manager
func NewManager(opener serial.Opener, decode DecodeFunc, events *bus.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		opener:   opener,
		decode:   decode,
		events:   events,
		logger:   logger,
		channels: make(map[string]*Channel),
	}
}

// Normalize maps an omitted channel id onto the reserved default
func Normalize(id string) string {
	if id == "" {
		return DefaultChannelID
	}
	return id
}

// Get returns the channel for id, creating a fresh closed one if absent.
// This is the single entry point for new channels.
func (m *Manager) Get(id string) *Channel {
	id = Normalize(id)

	m.mu.RLock()
	ch, ok := m.channels[id]
	m.mu.RUnlock()
	if ok {
		return ch
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		return ch
	}
	ch = New(id, m.opener, m.decode, m.events, m.logger)
	m.channels[id] = ch
	m.logger.Debug("Channel created", "channel", id)
	return ch
}

// Connect opens the channel's device
func (m *Manager) Connect(id string, cfg config.PortConfig) error {
	return m.Get(id).Open(cfg)
}

// Disconnect closes the channel's device. Unknown ids are a no-op.
func (m *Manager) Disconnect(id string) {
	if ch := m.lookup(id); ch != nil {
		ch.Close()
	}
}

// Send writes one payload on the channel
func (m *Manager) Send(id, data, mode string) error {
	ch := m.lookup(id)
	if ch == nil {
		return ErrNotConnected
	}
	return ch.Send(data, mode)
}

// ClearBuffer empties the channel's ring buffer
func (m *Manager) ClearBuffer(id string) {
	m.Get(id).ClearBuffer()
}

// Buffer returns a slice of the channel's ring buffer
func (m *Manager) Buffer(id string, start, count int) []models.LineEntry {
	return m.Get(id).Buffer(start, count)
}

// Status returns the snapshot for one channel
func (m *Manager) Status(id string) models.ChannelStatus {
	return m.Get(id).Status()
}

// AllStatuses returns snapshots for every known channel, keyed by id
func (m *Manager) AllStatuses() map[string]models.ChannelStatus {
	m.mu.RLock()
	channels := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	out := make(map[string]models.ChannelStatus, len(channels))
	for _, ch := range channels {
		out[ch.ID()] = ch.Status()
	}
	return out
}

// Remove closes the channel if open and removes the entry entirely. Later
// references to the same id create a fresh channel.
func (m *Manager) Remove(id string) {
	id = Normalize(id)

	m.mu.Lock()
	ch, ok := m.channels[id]
	delete(m.channels, id)
	m.mu.Unlock()

	if ok {
		ch.Close()
		m.logger.Info("Channel removed", "channel", id)
	}
}

// ShutdownAll closes every open channel and waits for their readers. Called
// on process termination; never fails.
func (m *Manager) ShutdownAll() {
	m.mu.RLock()
	channels := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch *Channel) {
			defer wg.Done()
			ch.Close()
		}(ch)
	}
	wg.Wait()

	m.logger.Info("All channels shut down", "count", len(channels))
}

func (m *Manager) lookup(id string) *Channel {
	id = Normalize(id)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[id]
}
