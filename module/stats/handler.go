package stats

import (
	"context"
	"net/http"
	"strconv"
	"time"

	mid "PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/event"
	"PPRealtime/service/chat"
	"PPRealtime/service/realtime"
	"PPRealtime/service/storage"

	"github.com/gin-gonic/gin"
)

// CacheView is the part of storage.Cache used by the HTTP surface.
type CacheView interface {
	Status(ctx context.Context) storage.CacheStatus
	ChannelStats(ctx context.Context, channelID string) storage.ChannelStats
	GetActiveUsers(ctx context.Context, channelID string) []event.Payload
	GetMessagesByChannel(ctx context.Context, channelID string, limit int) []event.Payload
	GetUnreadCount(ctx context.Context, userID, channelID string) int64
	ClearUnreadCount(ctx context.Context, userID, channelID string) bool
	IncrementUnreadCount(ctx context.Context, userID, channelID string) int64
	InvalidateChannelCache(ctx context.Context, channelID string) bool
}

type LoopReporter interface {
	Stats() []realtime.LoopStats
}

type ProducerReporter interface {
	Stats() realtime.ProducerStats
}

type Handler struct {
	cache     CacheView
	hub       *chat.Hub
	registry  *chat.Registry
	consumers LoopReporter
	producer  ProducerReporter
	started   time.Time
}

func New(cache CacheView, hub *chat.Hub, registry *chat.Registry, consumers LoopReporter, producer ProducerReporter) *Handler {
	return &Handler{
		cache:     cache,
		hub:       hub,
		registry:  registry,
		consumers: consumers,
		producer:  producer,
		started:   time.Now(),
	}
}

// Register mounts the endpoints. Unread and invalidation routes need an authenticated caller.
func (h *Handler) Register(r gin.IRouter, auth *midsec.Options) {
	r.GET("/healthz", h.Healthz)
	g := r.Group("/realtime")
	mid.GET(g, "/stats", h.Stats, mid.RouteOpt{})
	mid.GET(g, "/channels/:id", h.Channel, mid.RouteOpt{})
	mid.GET(g, "/unread/:id", h.Unread, mid.RouteOpt{IsAuth: true, Auth: auth})
	mid.DELETE(g, "/unread/:id", h.ClearUnread, mid.RouteOpt{IsAuth: true, Auth: auth})
	mid.POST(g, "/unread/:id", h.IncrementUnread, mid.RouteOpt{IsAuth: true, Auth: auth})
	mid.DELETE(g, "/channels/:id/cache", h.InvalidateChannel, mid.RouteOpt{IsAuth: true, Auth: auth})
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": time.Since(h.started).Round(time.Second).String()})
}

func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": gin.H{
			"sockets": h.hub.Clients(),
			"records": h.registry.TotalActiveConnections(),
		},
		"consumers": h.consumers.Stats(),
		"producer":  h.producer.Stats(),
		"cache":     h.cache.Status(c.Request.Context()),
	})
}

// Channel reports cached and live state of one channel. ?history=N adds recent messages.
func (h *Handler) Channel(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	resp := gin.H{
		"stats":       h.cache.ChannelStats(ctx, id),
		"activeUsers": h.cache.GetActiveUsers(ctx, id),
		"connections": h.registry.ActiveUsersInChannel(id),
		"sockets":     h.hub.RoomSize(id),
	}
	if raw := c.Query("history"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "history must be a non-negative integer"})
			return
		}
		resp["messages"] = h.cache.GetMessagesByChannel(ctx, id, n)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Unread(c *gin.Context) {
	uid := c.GetString(midsec.PPCtxUserKey)
	if uid == "" {
		uid = c.Query("userId")
	}
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"channelId": id,
		"userId":    uid,
		"unread":    h.cache.GetUnreadCount(c.Request.Context(), uid, id),
	})
}

func (h *Handler) ClearUnread(c *gin.Context) {
	uid := c.GetString(midsec.PPCtxUserKey)
	if uid == "" {
		uid = c.Query("userId")
	}
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}
	if !h.cache.ClearUnreadCount(c.Request.Context(), uid, c.Param("id")) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

// IncrementUnread bumps the counter of ?userId= for a channel a message was delivered to.
// Without userId the caller's own counter is bumped.
func (h *Handler) IncrementUnread(c *gin.Context) {
	uid := c.Query("userId")
	if uid == "" {
		uid = c.GetString(midsec.PPCtxUserKey)
	}
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"channelId": id,
		"userId":    uid,
		"unread":    h.cache.IncrementUnreadCount(c.Request.Context(), uid, id),
	})
}

// InvalidateChannel drops the cached history of a channel, e.g. after it was deleted.
func (h *Handler) InvalidateChannel(c *gin.Context) {
	if !h.cache.InvalidateChannelCache(c.Request.Context(), c.Param("id")) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}
