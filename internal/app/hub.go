package app

import (
	"sync"

	"live-quiz-service/internal/domain"
)

// Event is one outbound message destined for a live connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Room names used by the coordinator.
const (
	ArenaRoom   = "arena_room"
	MonitorRoom = "monitor_room"
)

type hubClient struct {
	connID string
	userID string
	role   domain.Role
	send   chan Event
	rooms  map[string]struct{}
}

// Hub is the coordinator-owned registry of live connections. It replaces
// ambient connection globals: handlers receive it explicitly and address
// peers by connection id, user id, or room.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*hubClient
	byUser  map[string]map[string]*hubClient
	rooms   map[string]map[string]*hubClient
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*hubClient),
		byUser:  make(map[string]map[string]*hubClient),
		rooms:   make(map[string]map[string]*hubClient),
	}
}

// Register adds a connection and returns its event stream plus a cleanup
// function. Identity is attached later via Identify, matching connections
// that authenticate after the socket opens.
func (h *Hub) Register(connID string) (<-chan Event, func()) {
	client := &hubClient{
		connID: connID,
		send:   make(chan Event, 16),
		rooms:  make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[connID] = client
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		existing, ok := h.clients[connID]
		if !ok {
			return
		}
		delete(h.clients, connID)
		if existing.userID != "" {
			if conns, ok := h.byUser[existing.userID]; ok {
				delete(conns, connID)
				if len(conns) == 0 {
					delete(h.byUser, existing.userID)
				}
			}
		}
		for room := range existing.rooms {
			if members, ok := h.rooms[room]; ok {
				delete(members, connID)
				if len(members) == 0 {
					delete(h.rooms, room)
				}
			}
		}
		close(existing.send)
	}
	return client.send, cancel
}

// Identify binds a user id and role to a registered connection. Idempotent
// per connection.
func (h *Hub) Identify(connID, userID string, role domain.Role) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if client.userID == userID && client.role == role {
		return
	}
	client.userID = userID
	client.role = role
	conns, ok := h.byUser[userID]
	if !ok {
		conns = make(map[string]*hubClient)
		h.byUser[userID] = conns
	}
	conns[connID] = client
}

// JoinRoom adds the connection to a named broadcast room.
func (h *Hub) JoinRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	client.rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*hubClient)
		h.rooms[room] = members
	}
	members[connID] = client
}

// Send delivers an event to a single connection. Returns false if the
// connection is gone.
func (h *Hub) Send(connID string, ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	deliver(client, ev)
	return true
}

// ToUser delivers an event to every connection bound to a user. Returns
// false when the user has no live connection; callers drop the event.
func (h *Hub) ToUser(userID string, ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.byUser[userID]
	for _, c := range conns {
		deliver(c, ev)
	}
	return len(conns) > 0
}

// ToRoom delivers an event to every member of a room.
func (h *Hub) ToRoom(room string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		deliver(c, ev)
	}
}

// Broadcast delivers an event to every live connection.
func (h *Hub) Broadcast(ev Event) {
	h.broadcastExcept("", ev)
}

// BroadcastExcept delivers to everyone but the given connection, the usual
// shape for "tell everyone else what this socket just did".
func (h *Hub) BroadcastExcept(connID string, ev Event) {
	h.broadcastExcept(connID, ev)
}

func (h *Hub) broadcastExcept(skip string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if id == skip {
			continue
		}
		deliver(c, ev)
	}
}

// OnlineStudents returns the de-duplicated ids of connected students.
func (h *Hub) OnlineStudents() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, conns := range h.byUser {
		for _, c := range conns {
			if c.role != domain.RoleStudent {
				continue
			}
			if _, dup := seen[c.userID]; dup {
				continue
			}
			seen[c.userID] = struct{}{}
			ids = append(ids, c.userID)
		}
	}
	return ids
}

// StudentCount returns the number of distinct online students.
func (h *Hub) StudentCount() int {
	return len(h.OnlineStudents())
}

// deliver never blocks the caller: when the client's buffer is full the
// oldest pending event is dropped in favor of the new one. Callers hold at
// least a read lock, so the channel cannot be closed mid-send (close happens
// under the write lock).
func deliver(c *hubClient, ev Event) {
	select {
	case c.send <- ev:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- ev:
		default:
		}
	}
}
