package chat

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Multiplicity(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	c1, c2 := uuid.NewString(), uuid.NewString()

	// Given the same user on two devices
	r.Register("u-1", c1, "c-1", map[string]any{"username": "ann"})
	r.Register("u-1", c2, "c-1", map[string]any{"username": "ann"})
	req.Len(r.UserConnections("u-1"), 2)
	req.Equal(2, r.TotalActiveConnections())

	// When one disconnects exactly one record remains
	r.Unregister("u-1", c1)
	conns := r.UserConnections("u-1")
	req.Len(conns, 1)
	req.Equal(c2, conns[0].ConnectionID)

	// When the last disconnects the user key is gone
	r.Unregister("u-1", c2)
	req.False(r.HasUser("u-1"))
	req.Nil(r.UserConnections("u-1"))
	req.Equal(0, r.TotalActiveConnections())
}

func TestRegistry_UnknownIsNoop(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	r.Register("u-1", "conn-1", "c-1", nil)

	r.Unregister("u-1", "nope")
	r.Unregister("ghost", "conn-1")

	req.Len(r.UserConnections("u-1"), 1)
}

func TestRegistry_RoomRecords(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	r.Register("u-1", "conn-1", "c-1", nil)
	r.Register("u-1", "conn-1", "c-2", nil)
	r.Register("u-2", "conn-2", "c-1", nil)

	req.Len(r.ActiveUsersInChannel("c-1"), 2)
	req.Len(r.ActiveUsersInChannel("c-2"), 1)

	r.UnregisterRoom("u-1", "conn-1", "c-1")
	req.Len(r.ActiveUsersInChannel("c-1"), 1)
	req.Len(r.UserConnections("u-1"), 1)

	// all records of a connection go with it
	r.Register("u-1", "conn-1", "c-3", nil)
	r.Unregister("u-1", "conn-1")
	req.False(r.HasUser("u-1"))
	req.Equal(1, r.TotalActiveConnections())
}

func TestRegistry_RepeatedJoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Given one socket joining the same room twice, plus a second device
	req.True(r.Register("u-1", "conn-1", "c-1", nil))
	req.False(r.Register("u-1", "conn-1", "c-1", nil))
	req.True(r.Register("u-1", "conn-2", "c-1", nil))
	req.True(r.Register("u-1", "conn-2", "c-2", nil))

	// Then the user is listed once per room and records are not inflated
	req.Len(r.ActiveUsersInChannel("c-1"), 1)
	req.Equal(3, r.TotalActiveConnections())
	req.ElementsMatch([]string{"c-1", "c-2"}, r.UserRooms("u-1"))
	req.Nil(r.UserRooms("ghost"))
}
