package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/ProductionPulse/internal/eventlog"
	"github.com/KevinKickass/ProductionPulse/internal/types"
	"go.uber.org/zap"
)

// StateRenderer turns a state snapshot into the payload clients receive.
type StateRenderer func(state types.AppState) any

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger
	render StateRenderer

	// Latest state_changed frame, sent to clients as they connect
	stateMu    sync.Mutex
	lastFrame  []byte
	lastStatus types.MachineStatus
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, render StateRenderer) *Hub {
	if render == nil {
		render = func(state types.AppState) any { return state }
	}
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
		render:     render,
	}
}

// Prime sets the frame new clients receive before the first change arrives.
func (h *Hub) Prime(state types.AppState) {
	msg := NewStateChangedMessage(0, "snapshot", h.render(state))
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal snapshot message", zap.Error(err))
		return
	}
	h.stateMu.Lock()
	h.lastFrame = data
	h.lastStatus = state.Machine.Status
	h.stateMu.Unlock()
}

// Notify is an eventlog.Listener.
func (h *Hub) Notify(ch eventlog.Change) {
	msg := NewStateChangedMessage(ch.Seq, string(ch.Kind), h.render(ch.State))
	if data, err := json.Marshal(msg); err == nil {
		h.stateMu.Lock()
		h.lastFrame = data
		h.stateMu.Unlock()
	}
	h.Broadcast(msg)

	status := ch.State.Machine.Status
	h.stateMu.Lock()
	previous := h.lastStatus
	h.lastStatus = status
	h.stateMu.Unlock()

	if previous != "" && previous != status {
		reason := ""
		if ch.Downtime != nil {
			reason = ch.Downtime.Reason
		}
		h.Broadcast(NewMachineStateMessage(string(status), string(previous), reason))
	}
}

// Run starts the hub's main event loop
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			h.stateMu.Lock()
			frame := h.lastFrame
			h.stateMu.Unlock()
			if frame != nil {
				client.send <- frame
			}

			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.conn.RemoteAddr().String()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow or dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.conn.RemoteAddr().String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
