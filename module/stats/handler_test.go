package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/event"
	"PPRealtime/service/chat"
	"PPRealtime/service/realtime"
	"PPRealtime/service/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	unread      map[string]int64
	cleared     []string
	invalidated []string
	down        bool
}

func (f *fakeCache) Status(ctx context.Context) storage.CacheStatus {
	return storage.CacheStatus{Status: "connected", Timestamp: time.Now()}
}

func (f *fakeCache) ChannelStats(ctx context.Context, id string) storage.ChannelStats {
	return storage.ChannelStats{ChannelID: id, ActiveUsers: 2, RecentMessages: 7}
}

func (f *fakeCache) GetActiveUsers(ctx context.Context, id string) []event.Payload {
	return []event.Payload{{"userId": "u-1"}, {"userId": "u-2"}}
}

func (f *fakeCache) GetMessagesByChannel(ctx context.Context, id string, limit int) []event.Payload {
	out := make([]event.Payload, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, event.Payload{"n": i})
	}
	return out
}

func (f *fakeCache) GetUnreadCount(ctx context.Context, uid, id string) int64 {
	return f.unread[uid+":"+id]
}

func (f *fakeCache) ClearUnreadCount(ctx context.Context, uid, id string) bool {
	if f.down {
		return false
	}
	f.cleared = append(f.cleared, uid+":"+id)
	return true
}

func (f *fakeCache) IncrementUnreadCount(ctx context.Context, uid, id string) int64 {
	if f.down {
		return 0
	}
	if f.unread == nil {
		f.unread = map[string]int64{}
	}
	f.unread[uid+":"+id]++
	return f.unread[uid+":"+id]
}

func (f *fakeCache) InvalidateChannelCache(ctx context.Context, id string) bool {
	if f.down {
		return false
	}
	f.invalidated = append(f.invalidated, id)
	return true
}

type loops []realtime.LoopStats

func (l loops) Stats() []realtime.LoopStats { return l }

type prod realtime.ProducerStats

func (p prod) Stats() realtime.ProducerStats { return realtime.ProducerStats(p) }

type tokens map[string]string

func (t tokens) VerifyUser(tok string) (string, error) {
	if uid, ok := t[tok]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

func newRouter(t *testing.T, cache *fakeCache) (*gin.Engine, *chat.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := chat.NewRegistry()
	h := New(cache, chat.NewHub(), reg,
		loops{{Topic: "messages", Group: "messages-group", Running: true, Processed: 3}},
		prod{Connected: true, Sent: 9})
	auth := midsec.DefaultOptions()
	auth.Verifier = tokens{"tok": "u-1"}
	r := gin.New()
	h.Register(r, auth)
	return r, reg
}

func get(t *testing.T, r http.Handler, method, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestHandler_Stats(t *testing.T) {
	req := require.New(t)
	r, reg := newRouter(t, &fakeCache{})
	reg.Register("u-1", "c-1", "general", nil)

	var body struct {
		Connections struct{ Sockets, Records int }
		Consumers   []realtime.LoopStats
		Producer    realtime.ProducerStats
		Cache       storage.CacheStatus
	}
	req.Equal(http.StatusOK, get(t, r, http.MethodGet, "/realtime/stats", &body))
	req.Equal(1, body.Connections.Records)
	req.Equal(0, body.Connections.Sockets)
	req.Len(body.Consumers, 1)
	req.Equal(uint64(9), body.Producer.Sent)
	req.Equal("connected", body.Cache.Status)

	req.Equal(http.StatusOK, get(t, r, http.MethodGet, "/healthz", nil))
}

func TestHandler_Channel(t *testing.T) {
	req := require.New(t)
	r, reg := newRouter(t, &fakeCache{})
	reg.Register("u-1", "c-1", "general", map[string]any{"username": "ann"})
	reg.Register("u-2", "c-2", "random", nil)

	var body struct {
		Stats       storage.ChannelStats
		ActiveUsers []event.Payload
		Connections []chat.Connection
		Messages    []event.Payload
	}
	req.Equal(http.StatusOK, get(t, r, http.MethodGet, "/realtime/channels/general?history=3", &body))
	req.Equal("general", body.Stats.ChannelID)
	req.Len(body.ActiveUsers, 2)
	req.Len(body.Connections, 1)
	req.Equal("u-1", body.Connections[0].UserID)
	req.Len(body.Messages, 3)

	req.Equal(http.StatusBadRequest, get(t, r, http.MethodGet, "/realtime/channels/general?history=x", nil))
}

func TestHandler_Unread(t *testing.T) {
	req := require.New(t)
	cache := &fakeCache{unread: map[string]int64{"u-1:general": 4}}
	r, _ := newRouter(t, cache)

	var body struct {
		UserID string
		Unread int64
	}
	req.Equal(http.StatusOK, get(t, r, http.MethodGet, "/realtime/unread/general", &body))
	req.Equal("u-1", body.UserID)
	req.Equal(int64(4), body.Unread)

	req.Equal(http.StatusNoContent, get(t, r, http.MethodDelete, "/realtime/unread/general", nil))
	req.Equal([]string{"u-1:general"}, cache.cleared)

	cache.down = true
	req.Equal(http.StatusServiceUnavailable, get(t, r, http.MethodDelete, "/realtime/unread/general", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/realtime/unread/general", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestHandler_IncrementUnread(t *testing.T) {
	req := require.New(t)
	cache := &fakeCache{unread: map[string]int64{"u-2:general": 1}}
	r, _ := newRouter(t, cache)

	var body struct {
		UserID string
		Unread int64
	}
	req.Equal(http.StatusOK, get(t, r, http.MethodPost, "/realtime/unread/general?userId=u-2", &body))
	req.Equal("u-2", body.UserID)
	req.Equal(int64(2), body.Unread)

	// without a target the caller's own counter moves
	req.Equal(http.StatusOK, get(t, r, http.MethodPost, "/realtime/unread/general", &body))
	req.Equal("u-1", body.UserID)
	req.Equal(int64(1), body.Unread)
}

func TestHandler_InvalidateChannel(t *testing.T) {
	req := require.New(t)
	cache := &fakeCache{}
	r, _ := newRouter(t, cache)

	req.Equal(http.StatusNoContent, get(t, r, http.MethodDelete, "/realtime/channels/general/cache", nil))
	req.Equal([]string{"general"}, cache.invalidated)

	cache.down = true
	req.Equal(http.StatusServiceUnavailable, get(t, r, http.MethodDelete, "/realtime/channels/general/cache", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/realtime/channels/general/cache", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
}
