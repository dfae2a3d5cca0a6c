package monitoring

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"serialscope/bus"
	"serialscope/channel"
	"serialscope/config"
)

const (
	// pingInterval is the heartbeat period; a client that misses a full
	// interval is terminated
	pingInterval = 30 * time.Second
	pongWait     = pingInterval + 5*time.Second
	writeWait    = 10 * time.Second

	// clientSendBuffer is the per-socket outbound queue; a client that
	// falls this far behind is dropped
	clientSendBuffer = 256
)

// wsMessage is the inbound client message shape. Every message carries a
// type; the remaining fields depend on it.
type wsMessage struct {
	Type      string             `json:"type"`
	ChannelID string             `json:"channelId"`
	Config    *config.PortConfig `json:"config"`
	Data      string             `json:"data"`
	Mode      string             `json:"mode"`
}

// wsClient is one connected socket. Writes go through send so the bus
// never blocks on a slow socket.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans bus events out to every connected websocket and dispatches
// inbound commands to the channel manager.
type Hub struct {
	deps     *Deps
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	sub  *bus.Subscription
	done chan struct{}
}

// NewHub creates the websocket hub
func NewHub(deps *Deps, logger *slog.Logger) *Hub {
	return &Hub{
		deps:   deps,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Run attaches the hub to the event bus and broadcasts until the
// subscription closes
func (h *Hub) Run() {
	h.sub = h.deps.Events.Subscribe()
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		for ev := range h.sub.C {
			if msg := translateEvent(ev); msg != nil {
				h.broadcast(msg)
			}
		}
	}()
}

// Stop detaches from the bus and closes every client
func (h *Hub) Stop() {
	if h.sub != nil {
		h.sub.Cancel()
		<-h.done
	}

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

// Handle upgrades an HTTP request and services the socket until it closes
func (h *Hub) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("WebSocket client connected", "clients", count)

	// Tell the new client which decoders are available
	h.sendTo(client, map[string]any{
		"type":    "plugins:list",
		"plugins": h.deps.Registry.List(),
	})

	go h.writePump(client)
	h.readPump(client)
	return nil
}

// readPump consumes inbound messages until the socket dies
func (h *Hub) readPump(client *wsClient) {
	defer h.drop(client)

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendTo(client, map[string]any{"type": "error", "error": "Invalid message format"})
			continue
		}
		h.dispatch(client, msg)
	}
}

// writePump drains the send queue and keeps the heartbeat going
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound message
func (h *Hub) dispatch(client *wsClient, msg wsMessage) {
	id := channel.Normalize(msg.ChannelID)

	switch msg.Type {
	case "serial:connect":
		var cfg config.PortConfig
		if msg.Config != nil {
			cfg = *msg.Config
		}
		if err := h.deps.Manager.Connect(id, cfg); err != nil {
			h.sendTo(client, map[string]any{"type": "serial:error", "channelId": id, "error": err.Error()})
		}
	case "serial:disconnect":
		h.deps.Manager.Disconnect(id)
	case "serial:send":
		if err := h.deps.Manager.Send(id, msg.Data, msg.Mode); err != nil {
			h.sendTo(client, map[string]any{"type": "serial:error", "channelId": id, "error": err.Error()})
		}
	case "serial:clear":
		h.deps.Manager.ClearBuffer(id)
	case "serial:getStatus":
		if msg.ChannelID != "" {
			h.sendTo(client, map[string]any{
				"type":      "serial:status",
				"channelId": id,
				"status":    h.deps.Manager.Status(id),
			})
		} else {
			h.sendTo(client, map[string]any{
				"type":     "serial:status",
				"channels": h.deps.Manager.AllStatuses(),
			})
		}
	case "channel:remove":
		h.deps.Manager.Remove(id)
	default:
		h.sendTo(client, map[string]any{"type": "error", "error": "Unknown message type: " + msg.Type})
	}
}

// broadcast queues a message on every client, dropping clients that cannot
// keep up
func (h *Hub) broadcast(msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", "error", err)
		return
	}

	h.mu.Lock()
	var stale []*wsClient
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if len(stale) > 0 {
		h.logger.Warn("Dropped slow websocket clients", "count", len(stale))
	}
}

func (h *Hub) sendTo(client *wsClient, msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal message", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// drop removes a client and closes its queue
func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	client.conn.Close()
}

// ClientCount returns the number of connected sockets
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// translateEvent maps a bus event onto its outbound websocket message.
// Returns nil for events with no websocket representation.
func translateEvent(ev bus.Event) map[string]any {
	switch e := ev.(type) {
	case bus.LineEvent:
		msg := map[string]any{
			"type":      "serial:data",
			"channelId": e.ChannelID,
			"payload":   e.Entry,
		}
		if len(e.Decoded) > 0 {
			msg["decoded"] = e.Decoded
		}
		return msg
	case bus.RawDataEvent:
		return map[string]any{
			"type":      "serial:raw",
			"channelId": e.ChannelID,
			"hex":       hex.EncodeToString(e.Bytes),
			"timestamp": e.Timestamp,
		}
	case bus.ConnectedEvent:
		return map[string]any{
			"type":      "serial:status",
			"channelId": e.ChannelID,
			"status":    "connected",
			"config":    e.Config,
		}
	case bus.DisconnectedEvent:
		return map[string]any{
			"type":      "serial:status",
			"channelId": e.ChannelID,
			"status":    "disconnected",
		}
	case bus.ErrorEvent:
		return map[string]any{
			"type":      "serial:error",
			"channelId": e.ChannelID,
			"error":     e.Message,
		}
	case bus.ClearedEvent:
		return map[string]any{
			"type":      "serial:cleared",
			"channelId": e.ChannelID,
		}
	case bus.PortsChangedEvent:
		return map[string]any{
			"type":  "ports:updated",
			"ports": e.Ports,
		}
	default:
		return nil
	}
}
