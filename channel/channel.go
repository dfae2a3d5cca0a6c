// Package channel implements the serial channel runtime: per-channel device
// ownership, line framing, the bounded ring buffer, statistics and the
// manager that keys everything by channel id.
package channel

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"serialscope/bus"
	"serialscope/config"
	"serialscope/models"
	"serialscope/serial"
)

// State is the channel lifecycle state
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// readChunkSize is the reader's per-read buffer size
const readChunkSize = 4096

// DecodeFunc runs every registered decoder over a raw chunk and returns the
// non-nil frames. Wired in from the decoder registry; nil disables decoding.
type DecodeFunc func([]byte) []models.DecodedFrame

// Channel owns a single serial connection: the device handle, configuration,
// line framer, ring buffer and statistics. A channel is created lazily on
// first reference to its id, survives any number of open/close cycles, and
// is destroyed only by the manager's Remove.
type Channel struct {
	id      string
	opener  serial.Opener
	decode  DecodeFunc
	events  *bus.Bus
	logger  *slog.Logger

	// opMu serialises Open/Close against each other and against the
	// transient Opening/Closing states.
	opMu sync.Mutex

	// writeMu serialises concurrent Send calls on the device
	writeMu sync.Mutex

	// mu guards everything below
	mu        sync.Mutex
	state     State
	cfg       *config.PortConfig
	port      serial.Port
	stats     models.Stats
	buf       *ringBuffer
	nextIndex int64
	framer    lineFramer
	pending   []models.DecodedFrame
	stopCh    chan struct{}

	readerWG sync.WaitGroup
}

// New creates a closed channel with an empty buffer
func New(id string, opener serial.Opener, decode DecodeFunc, events *bus.Bus, logger *slog.Logger) *Channel {
	return &Channel{
		id:     id,
		opener: opener,
		decode: decode,
		events: events,
		logger: logger.With("channel", id),
		buf:    newRingBuffer(MaxBufferEntries),
	}
}

// ID returns the channel id
func (c *Channel) ID() string {
	return c.id
}

// State returns the current lifecycle state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open opens the device described by cfg, starts the reader and publishes a
// connected event. Counters reset; the ring buffer is kept. Opening an
// already-open channel closes it first and reopens.
func (c *Channel) Open(cfg config.PortConfig) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.closeSession()

	full := config.ApplyPortDefaults(cfg)
	if err := config.ValidatePort(full); err != nil {
		return fmt.Errorf("%w: %w", serial.ErrInvalidConfig, err)
	}

	c.setState(StateOpening)
	port, err := c.opener(full)
	if err != nil {
		c.setState(StateClosed)
		return err
	}

	stop := make(chan struct{})

	c.mu.Lock()
	c.state = StateOpen
	c.cfg = &full
	c.port = port
	c.stats = models.Stats{ConnectedAt: time.Now().UnixMilli()}
	c.framer.Reset()
	c.pending = nil
	c.stopCh = stop
	c.mu.Unlock()

	c.readerWG.Add(1)
	go c.readLoop(port, stop)

	c.logger.Info("Channel opened", "path", full.Path, "baud", full.BaudRate)
	c.events.Publish(bus.ConnectedEvent{ChannelID: c.id, Config: full})
	return nil
}

// Close stops the reader, releases the device and publishes a disconnected
// event. Idempotent.
func (c *Channel) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.closeSession()
}

// closeSession tears down the current session, if any. Caller holds opMu.
func (c *Channel) closeSession() {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	port := c.port
	stop := c.stopCh
	c.mu.Unlock()

	// Closing the port unblocks the reader's pending read; the stop channel
	// tells it this shutdown is deliberate.
	close(stop)
	if port != nil {
		port.Close()
	}
	c.readerWG.Wait()

	c.mu.Lock()
	c.state = StateClosed
	c.port = nil
	c.cfg = nil
	c.stats.ConnectedAt = 0
	c.framer.Reset()
	c.pending = nil
	c.mu.Unlock()

	c.logger.Info("Channel closed")
	c.events.Publish(bus.DisconnectedEvent{ChannelID: c.id})
}

// Send encodes data per mode, writes it to the device, appends a tx entry
// and updates stats. Returns ErrNotConnected when closed; transient write
// failures are surfaced as error events, not returned.
func (c *Channel) Send(data, mode string) error {
	if mode == "" {
		mode = models.ModeASCII
	}
	payload, err := EncodePayload(data, mode)
	if err != nil {
		return err
	}

	c.mu.Lock()
	port := c.port
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	_, werr := port.Write(payload)
	c.writeMu.Unlock()

	if werr != nil {
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		c.logger.Warn("Write failed", "error", werr)
		c.events.Publish(bus.ErrorEvent{ChannelID: c.id, Message: "write failed: " + werr.Error()})
		return nil
	}

	c.mu.Lock()
	entry := models.LineEntry{
		Timestamp: time.Now().UnixMilli(),
		Direction: models.DirectionTx,
		Data:      data,
		Mode:      mode,
		Index:     c.nextIndex,
		ChannelID: c.id,
	}
	c.nextIndex++
	c.buf.Append(entry)
	c.stats.BytesTx += int64(len(payload))
	c.stats.LinesTx++
	c.mu.Unlock()

	c.events.Publish(bus.LineEvent{ChannelID: c.id, Entry: entry})
	return nil
}

// ClearBuffer empties the ring buffer and resets the next index to 0. Stats
// are unaffected.
func (c *Channel) ClearBuffer() {
	c.mu.Lock()
	c.buf.Clear()
	c.nextIndex = 0
	c.mu.Unlock()

	c.events.Publish(bus.ClearedEvent{ChannelID: c.id})
}

// Status returns a snapshot of the channel
func (c *Channel) Status() models.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := models.ChannelStatus{
		Connected:  c.state == StateOpen,
		Stats:      c.stats,
		BufferSize: c.buf.Len(),
	}
	if c.cfg != nil {
		cfg := *c.cfg
		status.Config = &cfg
	}
	return status
}

// Buffer copies out up to count entries starting at the buffer-relative
// position start. count <= 0 means "to the end".
func (c *Channel) Buffer(start, count int) []models.LineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Slice(start, count)
}

// readLoop reads raw chunks from the device until the session stops or the
// device fails. Runs on its own goroutine, one per open session.
func (c *Channel) readLoop(port serial.Port, stop chan struct{}) {
	defer c.readerWG.Done()

	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.handleChunk(chunk)
		}

		if err != nil {
			select {
			case <-stop:
				// Deliberate close; the port error is just the read
				// unblocking.
				return
			default:
			}

			if isTransientReadError(err) {
				c.mu.Lock()
				c.stats.Errors++
				c.mu.Unlock()
				c.logger.Warn("Transient read error", "error", err)
				c.events.Publish(bus.ErrorEvent{ChannelID: c.id, Message: "read error: " + err.Error()})
				continue
			}

			c.fatalReadError(err)
			return
		}
	}
}

// fatalReadError tears the session down from the reader side: the device
// vanished or entered an unrecoverable state. Publishes error then
// disconnected, in that order.
func (c *Channel) fatalReadError(err error) {
	c.mu.Lock()
	if c.state != StateOpen {
		// A concurrent Close already owns the teardown
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	port := c.port
	c.mu.Unlock()

	if port != nil {
		port.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.port = nil
	c.cfg = nil
	c.stats.Errors++
	c.stats.ConnectedAt = 0
	c.framer.Reset()
	c.pending = nil
	c.mu.Unlock()

	c.logger.Error("Device failed, closing channel", "error", err)
	c.events.Publish(bus.ErrorEvent{ChannelID: c.id, Message: "device error: " + err.Error()})
	c.events.Publish(bus.DisconnectedEvent{ChannelID: c.id})
}

// handleChunk processes one raw chunk: counts bytes, runs decoders over the
// pre-framing bytes, frames lines and publishes events. Decoded frames
// attach to the next rx entry that completes.
func (c *Channel) handleChunk(chunk []byte) {
	now := time.Now().UnixMilli()

	var frames []models.DecodedFrame
	if c.decode != nil {
		frames = c.decode(chunk)
	}

	type published struct {
		entry   models.LineEntry
		decoded []models.DecodedFrame
	}

	c.mu.Lock()
	c.stats.BytesRx += int64(len(chunk))
	if len(frames) > 0 {
		c.pending = append(c.pending, frames...)
	}
	lines := c.framer.Push(chunk)
	out := make([]published, 0, len(lines))
	for _, line := range lines {
		entry := models.LineEntry{
			Timestamp: now,
			Direction: models.DirectionRx,
			Data:      line,
			Index:     c.nextIndex,
			ChannelID: c.id,
		}
		c.nextIndex++
		c.buf.Append(entry)
		c.stats.LinesRx++

		p := published{entry: entry}
		if len(c.pending) > 0 {
			p.decoded = c.pending
			c.pending = nil
		}
		out = append(out, p)
	}
	c.mu.Unlock()

	c.events.Publish(bus.RawDataEvent{ChannelID: c.id, Bytes: chunk, Timestamp: now})
	for _, p := range out {
		c.events.Publish(bus.LineEvent{ChannelID: c.id, Entry: p.entry, Decoded: p.decoded})
	}
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.logger.Debug("State changed", "state", state.String())
}

// isTransientReadError reports whether a read failure is a recoverable
// hiccup rather than a vanished device
func isTransientReadError(err error) bool {
	if errors.Is(err, io.EOF) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "resource temporarily unavailable") ||
		strings.Contains(msg, "interrupted system call")
}
