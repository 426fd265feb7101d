package chat

import (
	"encoding/json"
	"testing"

	"PPRealtime/module/event"

	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, id, user string, queue, maxDrops int) *Client {
	c := NewClient(id, user, user, nil, queue, maxDrops)
	h.Add(c)
	h.Join(c, event.UserRoom(user))
	return c
}

func pending(c *Client) []Frame {
	var out []Frame
	for {
		select {
		case b := <-c.Outbound():
			var f Frame
			_ = json.Unmarshal(b, &f)
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestFanout_RoomIsolation(t *testing.T) {
	req := require.New(t)
	h := NewHub()
	f := NewFanout(h)
	a := newTestClient(h, "a", "u-a", 8, 0)
	b := newTestClient(h, "b", "u-b", 8, 0)
	c := newTestClient(h, "c", "u-c", 8, 0)

	// Given A and B in r1, C in r2
	h.Join(a, "r1")
	h.Join(b, "r1")
	h.Join(c, "r2")

	// When a message goes to r1
	n := f.ToRoom("r1", event.ClientNewMessage, event.Payload{"_id": "m-1"})

	// Then only A and B see it
	req.Equal(2, n)
	req.Len(pending(a), 1)
	req.Len(pending(b), 1)
	req.Empty(pending(c))
}

func TestFanout_ToUserReachesEveryDeviceOnce(t *testing.T) {
	req := require.New(t)
	h := NewHub()
	f := NewFanout(h)
	phone := newTestClient(h, "p", "u-1", 8, 0)
	laptop := newTestClient(h, "l", "u-1", 8, 0)
	other := newTestClient(h, "o", "u-2", 8, 0)
	h.Join(phone, event.UserRoom("u-1")) // repeated join is harmless

	req.Equal(2, f.ToUser("u-1", event.ClientNotification, event.Payload{"title": "hi"}))
	req.Len(pending(phone), 1)
	req.Len(pending(laptop), 1)
	req.Empty(pending(other))

	req.Equal(3, f.ToUsers([]string{"u-1", "u-2", "u-1", ""}, event.ClientNotification, event.Payload{}))
}

func TestFanout_BroadcastExcept(t *testing.T) {
	req := require.New(t)
	h := NewHub()
	f := NewFanout(h)
	a := newTestClient(h, "a", "u-a", 8, 0)
	b := newTestClient(h, "b", "u-b", 8, 0)

	req.Equal(1, f.Broadcast(event.ClientUserStatusChange, event.Payload{"userId": "u-a", "isOnline": true}, a.ID))
	req.Empty(pending(a))
	frames := pending(b)
	req.Len(frames, 1)
	req.Equal(event.ClientUserStatusChange, frames[0].Event)
}

func TestHub_RemoveLeavesAllRooms(t *testing.T) {
	req := require.New(t)
	h := NewHub()
	a := newTestClient(h, "a", "u-a", 8, 0)
	h.Join(a, "r1")
	h.Join(a, "r2")

	rooms := h.Remove(a)

	req.ElementsMatch([]string{"r1", "r2", event.UserRoom("u-a")}, rooms)
	req.Equal(0, h.RoomSize("r1"))
	req.Equal(0, h.Clients())
	req.Equal(0, NewFanout(h).ToRoom("r1", "x", nil))
}

func TestClient_DropOldest(t *testing.T) {
	req := require.New(t)
	c := NewClient("a", "u-a", "", nil, 2, 0)

	req.True(c.Enqueue([]byte("1")))
	req.True(c.Enqueue([]byte("2")))
	req.True(c.Enqueue([]byte("3")))

	req.Equal([]byte("2"), <-c.Outbound())
	req.Equal([]byte("3"), <-c.Outbound())
	req.Equal(uint64(1), c.Dropped())
}

func TestClient_SlowConsumerClosed(t *testing.T) {
	req := require.New(t)
	c := NewClient("a", "u-a", "", nil, 1, 2)

	req.True(c.Enqueue([]byte("1")))
	req.True(c.Enqueue([]byte("2")))
	req.True(c.Enqueue([]byte("3")))
	req.False(c.Enqueue([]byte("4")))

	select {
	case <-c.Done():
	default:
		t.Fatal("slow client not closed")
	}
	req.False(c.Enqueue([]byte("5")))
}

func TestFrame_ChannelID(t *testing.T) {
	req := require.New(t)

	f, err := ParseFrame([]byte(`{"event":"join_channel","data":"c-1"}`))
	req.NoError(err)
	req.Equal("c-1", f.ChannelID())

	f, err = ParseFrame([]byte(`{"event":"join_channel","data":{"channelId":"c-2"}}`))
	req.NoError(err)
	req.Equal("c-2", f.ChannelID())

	f, err = ParseFrame([]byte(`{"event":"join_channel","data":{"channelId":7,"extra":{"a":1}}}`))
	req.NoError(err)
	req.Equal("7", f.ChannelID())

	f, err = ParseFrame([]byte(`{"event":"join_channel","data":42}`))
	req.NoError(err)
	req.Equal("", f.ChannelID())

	_, err = ParseFrame([]byte(`{"data":1}`))
	req.Error(err)
	_, err = ParseFrame([]byte(`nope`))
	req.Error(err)
}
