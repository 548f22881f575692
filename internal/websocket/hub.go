// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package websocket

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lifeline/internal/metrics"
)

// Message types on the event stream.
const (
	MessageTypeSnapshot  = "snapshot"
	MessageTypeLifecycle = "lifecycle"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
)

// Message is one frame of the event stream.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans supervisor lifecycle events out to websocket clients. It is a
// suture service: Serve delivers broadcasts until its context ends, then
// disconnects every client.
type Hub struct {
	logger   zerolog.Logger
	snapshot func() any
	upgrader websocket.Upgrader

	broadcast chan Message

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a Hub. snapshot, if non-nil, is sent to each client as
// its first message.
func NewHub(logger zerolog.Logger, snapshot func() any) *Hub {
	return &Hub{
		logger:   logger.With().Str("component", "event-hub").Logger(),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		broadcast: make(chan Message, 256),
		clients:   make(map[*Client]struct{}),
	}
}

// Serve implements suture.Service.
//
// Shutdown is checked before each broadcast so a cancelled hub never sends
// another frame.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) String() string {
	return "event-hub"
}

// Broadcast queues msg for every connected client. It never blocks; when
// the queue is full the message is dropped.
func (h *Hub) Broadcast(msgType string, data any) {
	select {
	case h.broadcast <- Message{Type: msgType, Data: data}:
	default:
		metrics.EventStreamDropped.Inc()
		h.logger.Warn().Str("message_type", msgType).Msg("Event stream queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug().Err(err).Msg("Event stream upgrade failed")
		return
	}

	c := newClient(h, conn)
	if h.snapshot != nil {
		c.send <- Message{Type: MessageTypeSnapshot, Data: h.snapshot()}
	}
	h.register(c)
	c.start()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.EventStreamClients.Inc()
	h.logger.Info().Int("total_clients", n).Msg("Event stream client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.EventStreamClients.Dec()
		h.logger.Info().Int("total_clients", n).Msg("Event stream client disconnected")
	}
}

// sortedClients returns clients in connection order. Callers hold mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// deliver sends msg to every client, disconnecting clients whose buffer is
// full.
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	var slow []*Client
	for _, c := range h.sortedClients() {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for range slow {
		metrics.EventStreamClients.Dec()
		metrics.EventStreamDropped.Inc()
	}
	if len(slow) > 0 {
		h.logger.Warn().Int("clients", len(slow)).Msg("Disconnected slow event stream clients")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.sortedClients()
	for _, c := range clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for range clients {
		metrics.EventStreamClients.Dec()
	}
	h.logger.Info().Int("clients_closed", len(clients)).Msg("Event hub stopped")
}
