package chat

import "sync"

// Hub owns room membership for live clients and performs room delivery.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client // room -> conn id -> client
	joined  map[string]map[string]struct{} // conn id -> rooms
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	if h.joined[c.ID] == nil {
		h.joined[c.ID] = make(map[string]struct{})
	}
}

// Remove detaches c from every room and returns the rooms it was in.
func (h *Hub) Remove(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms := make([]string, 0, len(h.joined[c.ID]))
	for room := range h.joined[c.ID] {
		rooms = append(rooms, room)
		h.leaveLocked(c.ID, room)
	}
	delete(h.joined, c.ID)
	delete(h.clients, c.ID)
	return rooms
}

// Join is idempotent; joining twice still delivers once.
func (h *Hub) Join(c *Client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	m := h.rooms[room]
	if m == nil {
		m = make(map[string]*Client)
		h.rooms[room] = m
	}
	m[c.ID] = c
	h.joined[c.ID][room] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c.ID, room)
}

func (h *Hub) leaveLocked(connID, room string) {
	if m := h.rooms[room]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
	if j := h.joined[connID]; j != nil {
		delete(j, room)
	}
}

// ToRoom enqueues frame on every member of room; returns the number of recipients.
func (h *Hub) ToRoom(room string, frame []byte) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range members {
		if c.Enqueue(frame) {
			n++
		}
	}
	return n
}

// ToAll enqueues frame on every client except the one with id except.
func (h *Hub) ToAll(frame []byte, except string) int {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != except {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range all {
		if c.Enqueue(frame) {
			n++
		}
	}
	return n
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.joined[c.ID]))
	for r := range h.joined[c.ID] {
		out = append(out, r)
	}
	return out
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every client; their pumps tear the sockets down.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.Close()
	}
}
