package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// Message is one event pushed to subscribed clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub tracks connected clients grouped by tenant and fans events out to the
// owning tenant's room only. Delivery is best effort; a client whose send
// buffer is full is dropped rather than allowed to stall the broadcast.
type Hub struct {
	mu      sync.RWMutex
	tenants map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{tenants: make(map[string]map[*Client]struct{})}
}

// Run blocks until ctx is canceled, then closes every connected client.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	closed := 0
	for tenantID, room := range h.tenants {
		for client := range room {
			close(client.send)
			closed++
		}
		delete(h.tenants, tenantID)
	}
	h.mu.Unlock()

	slog.Info("realtime hub stopped", "clients_closed", closed)
	return ctx.Err()
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	room, ok := h.tenants[client.tenantID]
	if !ok {
		room = make(map[*Client]struct{})
		h.tenants[client.tenantID] = room
	}
	room[client] = struct{}{}
	total := len(room)
	h.mu.Unlock()

	slog.Info("realtime client connected", "tenant_id", client.tenantID, "tenant_clients", total)
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	room, ok := h.tenants[client.tenantID]
	if ok {
		if _, present := room[client]; present {
			delete(room, client)
			close(client.send)
		}
		if len(room) == 0 {
			delete(h.tenants, client.tenantID)
		}
	}
	h.mu.Unlock()

	slog.Info("realtime client disconnected", "tenant_id", client.tenantID)
}

// Broadcast delivers msg to every client of tenantID. Clients of other tenants
// never see it. A zero-subscriber tenant is a no-op.
func (h *Hub) Broadcast(tenantID string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.tenants[tenantID]
	if len(room) == 0 {
		return
	}

	var stalled []*Client
	for client := range room {
		select {
		case client.send <- msg:
		default:
			stalled = append(stalled, client)
		}
	}

	for _, client := range stalled {
		close(client.send)
		delete(room, client)
		slog.Warn("realtime client dropped, send buffer full", "tenant_id", tenantID)
	}
	if len(room) == 0 {
		delete(h.tenants, tenantID)
	}
}

func (h *Hub) ClientCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}
