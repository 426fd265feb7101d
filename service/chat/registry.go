package chat

import (
	"sync"
	"time"
)

// Connection is one (connection, room) membership record.
type Connection struct {
	UserID       string         `json:"userId"`
	ConnectionID string         `json:"connectionId"`
	RoomID       string         `json:"roomId"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ConnectedAt  time.Time      `json:"connectedAt"`
}

// Registry is the application level view of who is connected where. Delivery goes
// through Hub rooms; the registry only serves lookups and stats.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string][]Connection
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string][]Connection),
		now:    time.Now,
	}
}

// Register records connectionID as a member of roomID. A repeated join of the same room
// by the same connection is ignored and reports false.
func (r *Registry) Register(userID, connectionID, roomID string, metadata map[string]any) bool {
	if userID == "" || connectionID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byUser[userID] {
		if c.ConnectionID == connectionID && c.RoomID == roomID {
			return false
		}
	}
	r.byUser[userID] = append(r.byUser[userID], Connection{
		UserID:       userID,
		ConnectionID: connectionID,
		RoomID:       roomID,
		Metadata:     metadata,
		ConnectedAt:  r.now(),
	})
	return true
}

// Unregister drops every record of connectionID under userID. Unknown ids are a no-op.
func (r *Registry) Unregister(userID, connectionID string) {
	r.remove(userID, func(c Connection) bool { return c.ConnectionID == connectionID })
}

// UnregisterRoom drops the record of connectionID for a single room.
func (r *Registry) UnregisterRoom(userID, connectionID, roomID string) {
	r.remove(userID, func(c Connection) bool {
		return c.ConnectionID == connectionID && c.RoomID == roomID
	})
}

func (r *Registry) remove(userID string, match func(Connection) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, ok := r.byUser[userID]
	if !ok {
		return
	}
	kept := list[:0]
	for _, c := range list {
		if !match(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(r.byUser, userID)
		return
	}
	r.byUser[userID] = kept
}

// ActiveUsersInChannel lists each user in roomID once, by its earliest record.
func (r *Registry) ActiveUsersInChannel(roomID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Connection
	for _, list := range r.byUser {
		for _, c := range list {
			if c.RoomID == roomID {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// UserRooms returns the distinct rooms joined by any connection of userID.
func (r *Registry) UserRooms(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, c := range r.byUser[userID] {
		if _, ok := seen[c.RoomID]; ok {
			continue
		}
		seen[c.RoomID] = struct{}{}
		out = append(out, c.RoomID)
	}
	return out
}

func (r *Registry) UserConnections(userID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byUser[userID]
	if len(list) == 0 {
		return nil
	}
	return append([]Connection(nil), list...)
}

func (r *Registry) TotalActiveConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, list := range r.byUser {
		n += len(list)
	}
	return n
}

func (r *Registry) HasUser(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}
