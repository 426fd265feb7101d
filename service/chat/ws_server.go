package chat

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"PPRealtime/logger"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/event"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	MaxDrops     int           `mapstructure:"max_drops"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	ReadLimit    int64         `mapstructure:"read_limit"`

	// PresenceRefresh is how often an active socket re-arms its presence entries.
	// It must stay below the presence TTL.
	PresenceRefresh time.Duration `mapstructure:"presence_refresh"`
}

func DefaultWSConfig() WSConfig {
	return WSConfig{
		QueueSize:    256,
		MaxDrops:     1024,
		PingInterval: 25 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		ReadLimit:    64 * 1024,

		PresenceRefresh: time.Minute,
	}
}

// TokenVerifier resolves a handshake token to the user id it was issued for.
type TokenVerifier interface {
	VerifyUser(token string) (string, error)
}

// Presence mirrors room joins into the shared presence cache.
type Presence interface {
	SetActiveUser(ctx context.Context, userID, channelID string, data event.Payload) bool
	RemoveActiveUser(ctx context.Context, userID, channelID string) bool
}

type WSServer struct {
	cfg      WSConfig
	hub      *Hub
	registry *Registry
	fanout   *Fanout
	verifier TokenVerifier
	presence Presence
	upgrader websocket.Upgrader
	now      func() time.Time

	// rooms each user joined on this node, kept until the user's last socket closes
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

type Option func(*WSServer)

func WithVerifier(v TokenVerifier) Option { return func(s *WSServer) { s.verifier = v } }

func WithPresence(p Presence) Option { return func(s *WSServer) { s.presence = p } }

func NewWSServer(cfg WSConfig, hub *Hub, registry *Registry, fanout *Fanout, opts ...Option) *WSServer {
	d := DefaultWSConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval * 2
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = d.WriteWait
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = d.ReadLimit
	}
	if cfg.PresenceRefresh <= 0 {
		cfg.PresenceRefresh = d.PresenceRefresh
	}
	s := &WSServer{
		cfg:      cfg,
		hub:      hub,
		registry: registry,
		fanout:   fanout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now:   time.Now,
		rooms: make(map[string]map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *WSServer) Hub() *Hub { return s.hub }

func (s *WSServer) Registry() *Registry { return s.registry }

// HandleWS upgrades GET /ws?userId=&username=[&token=] and runs the connection until
// either side closes it.
func (s *WSServer) HandleWS(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	username := strings.TrimSpace(c.Query("username"))

	if s.verifier != nil {
		sub, err := s.verifier.VerifyUser(midsec.TokenFrom(c, nil))
		if err != nil || (userID != "" && sub != userID) {
			logger.Warn("[WS] handshake rejected", zap.String("user", userID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized)
			return
		}
		userID = sub
	}
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errs.ErrUnauthorized.WithDetail("userId required"))
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[WS] upgrade error: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), userID, username, ws, s.cfg.QueueSize, s.cfg.MaxDrops)
	s.attach(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(client)
	}()
	s.readPump(client)

	s.detach(client)
	client.Close()
	<-done
}

func (s *WSServer) attach(c *Client) {
	s.hub.Add(c)
	s.hub.Join(c, event.UserRoom(c.UserID))
	logger.Info("[WS] connected", zap.String("user", c.UserID), zap.String("conn", c.ID))
	s.fanout.Broadcast(event.ClientUserStatusChange, event.Payload{
		"userId":   c.UserID,
		"username": c.Username,
		"isOnline": true,
	}, c.ID)
}

func (s *WSServer) detach(c *Client) {
	s.hub.Remove(c)
	s.registry.Unregister(c.UserID, c.ID)
	if s.hub.RoomSize(event.UserRoom(c.UserID)) == 0 {
		rooms := s.forgetRooms(c.UserID)
		if s.presence != nil && len(rooms) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			for _, r := range rooms {
				s.presence.RemoveActiveUser(ctx, c.UserID, r)
			}
			cancel()
		}
	}
	logger.Info("[WS] disconnected", zap.String("user", c.UserID), zap.String("conn", c.ID),
		zap.Uint64("dropped", c.Dropped()))
	s.fanout.Broadcast(event.ClientUserStatusChange, event.Payload{
		"userId":   c.UserID,
		"username": c.Username,
		"isOnline": false,
		"lastSeen": s.now().UTC().Format(time.RFC3339),
	}, c.ID)
}

func (s *WSServer) readPump(c *Client) {
	ws := c.ws
	ws.SetReadLimit(s.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		s.refreshPresence(c)
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Debug("[WS] peer closed", zap.String("conn", c.ID))
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Info("[WS] read timeout", zap.String("conn", c.ID))
			} else {
				logger.Debug("[WS] read error", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		s.refreshPresence(c)
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		f, err := ParseFrame(data)
		if err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Debug("[WS] bad frame", zap.String("conn", c.ID), zap.ByteString("sample", sample), zap.Error(err))
			continue
		}
		s.handleFrame(c, f)
	}
}

func (s *WSServer) handleFrame(c *Client, f *Frame) {
	switch f.Event {
	case EventJoinChannel:
		ch := f.ChannelID()
		if ch == "" {
			return
		}
		if strings.HasPrefix(ch, event.UserRoom("")) && ch != event.UserRoom(c.UserID) {
			logger.Warn("[WS] foreign user room rejected", zap.String("user", c.UserID), zap.String("room", ch))
			return
		}
		s.hub.Join(c, ch)
		if ch == event.UserRoom(c.UserID) {
			return
		}
		meta := map[string]any{"userId": c.UserID, "username": c.Username}
		s.registry.Register(c.UserID, c.ID, ch, meta)
		s.rememberRoom(c.UserID, ch)
		if s.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			s.presence.SetActiveUser(ctx, c.UserID, ch, event.Payload(meta))
			cancel()
		}
		logger.Debug("[WS] joined", zap.String("user", c.UserID), zap.String("room", ch))
	case EventLeaveChannel:
		ch := f.ChannelID()
		if ch == "" || ch == event.UserRoom(c.UserID) {
			return
		}
		s.hub.Leave(c, ch)
		s.registry.UnregisterRoom(c.UserID, c.ID, ch)
	case EventPing:
		if frame, err := EncodeFrame(EventPong, event.Payload{"ts": s.now().UnixMilli()}); err == nil {
			c.Enqueue(frame)
		}
	default:
		logger.Debug("[WS] unhandled event", zap.String("event", f.Event), zap.String("conn", c.ID))
	}
}

// refreshPresence re-arms the presence entries of every room c has joined, at most once
// per PresenceRefresh. Runs on the read pump.
func (s *WSServer) refreshPresence(c *Client) {
	if s.presence == nil {
		return
	}
	now := s.now()
	if now.Sub(c.presenceAt) < s.cfg.PresenceRefresh {
		return
	}
	c.presenceAt = now
	meta := event.Payload{"userId": c.UserID, "username": c.Username}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, r := range s.hub.Rooms(c) {
		if r != event.UserRoom(c.UserID) {
			s.presence.SetActiveUser(ctx, c.UserID, r, meta)
		}
	}
}

func (s *WSServer) rememberRoom(userID, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.rooms[userID]
	if m == nil {
		m = make(map[string]struct{})
		s.rooms[userID] = m
	}
	m[room] = struct{}{}
}

func (s *WSServer) forgetRooms(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms[userID]))
	for r := range s.rooms[userID] {
		out = append(out, r)
	}
	delete(s.rooms, userID)
	return out
}

// writePump is the only writer of c.ws.
func (s *WSServer) writePump(c *Client) {
	ws := c.ws
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
	}()

	for {
		select {
		case <-c.Done():
			return
		case frame := <-c.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("[WS] write error", zap.String("conn", c.ID), zap.Error(err))
				c.Close()
				return
			}
			c.delivered()
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.cfg.WriteWait)); err != nil {
				logger.Debug("[WS] ping error", zap.String("conn", c.ID), zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
