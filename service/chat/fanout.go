package chat

import (
	"PPRealtime/logger"
	"PPRealtime/module/event"

	"go.uber.org/zap"
)

// Fanout turns (target, event, payload) into frames and hands them to the hub. It never
// waits on a client: a full queue drops that client's oldest frame.
type Fanout struct {
	hub *Hub
}

func NewFanout(hub *Hub) *Fanout {
	return &Fanout{hub: hub}
}

func (f *Fanout) ToRoom(roomID, name string, payload any) int {
	frame, err := EncodeFrame(name, payload)
	if err != nil {
		logger.Warn("[Fanout] encode failed", zap.String("event", name), zap.Error(err))
		return 0
	}
	return f.hub.ToRoom(roomID, frame)
}

// ToUser reaches every device of userID once, via its per-user room.
func (f *Fanout) ToUser(userID, name string, payload any) int {
	return f.ToRoom(event.UserRoom(userID), name, payload)
}

func (f *Fanout) ToUsers(userIDs []string, name string, payload any) int {
	frame, err := EncodeFrame(name, payload)
	if err != nil {
		logger.Warn("[Fanout] encode failed", zap.String("event", name), zap.Error(err))
		return 0
	}
	seen := make(map[string]struct{}, len(userIDs))
	n := 0
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		n += f.hub.ToRoom(event.UserRoom(id), frame)
	}
	return n
}

// Broadcast sends to every connected client except the connection exceptConnID.
func (f *Fanout) Broadcast(name string, payload any, exceptConnID string) int {
	frame, err := EncodeFrame(name, payload)
	if err != nil {
		logger.Warn("[Fanout] encode failed", zap.String("event", name), zap.Error(err))
		return 0
	}
	return f.hub.ToAll(frame, exceptConnID)
}
