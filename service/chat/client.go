package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one live socket. Outbound frames go through a bounded queue drained by a
// single writer; enqueue never blocks the caller.
type Client struct {
	ID          string
	UserID      string
	Username    string
	ConnectedAt time.Time

	ws   *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	drops    int
	maxDrops int
	dropped  uint64

	closed    chan struct{}
	closeOnce sync.Once

	// read pump only
	presenceAt time.Time
}

func NewClient(id, userID, username string, ws *websocket.Conn, queueSize, maxDrops int) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		ID:          id,
		UserID:      userID,
		Username:    username,
		ConnectedAt: time.Now(),
		ws:          ws,
		send:        make(chan []byte, queueSize),
		maxDrops:    maxDrops,
		closed:      make(chan struct{}),
	}
}

// Enqueue adds frame to the outbound queue. When the queue is full the oldest frame is
// discarded; after maxDrops consecutive discards the client is closed as too slow.
// Returns false when the client is already closed.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		select {
		case c.send <- frame:
			return true
		default:
		}
		select {
		case <-c.send:
			c.dropped++
			c.drops++
			if c.maxDrops > 0 && c.drops > c.maxDrops {
				c.Close()
				return false
			}
		default:
		}
	}
}

// Outbound is read by the write pump.
func (c *Client) Outbound() <-chan []byte { return c.send }

// delivered resets the consecutive drop counter.
func (c *Client) delivered() {
	c.mu.Lock()
	c.drops = 0
	c.mu.Unlock()
}

func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Client) Close() { c.closeOnce.Do(func() { close(c.closed) }) }

func (c *Client) Done() <-chan struct{} { return c.closed }
