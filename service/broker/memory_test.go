package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub Subscription) *Record {
	t.Helper()
	select {
	case r := <-sub.Records():
		return r
	case <-time.After(time.Second):
		t.Fatal("no record received")
		return nil
	}
}

func TestMemory_GroupsAreIndependent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	m := NewMemory(8)

	a, err := m.Subscribe(ctx, "messages", "g1")
	req.NoError(err)
	b, err := m.Subscribe(ctx, "messages", "g2")
	req.NoError(err)

	req.NoError(m.Publish(ctx, "messages", "c-1", []byte("v1")))

	ra, rb := recv(t, a), recv(t, b)
	req.Equal([]byte("v1"), ra.Value)
	req.Equal([]byte("v1"), rb.Value)
	req.Equal(ra.Partition, rb.Partition)
}

func TestMemory_NoBacklogForLateSubscriber(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	m := NewMemory(8)

	// Given a record published before anyone subscribed
	req.NoError(m.Publish(ctx, "reactions", "m-1", []byte("old")))

	// When a group subscribes afterwards
	sub, err := m.Subscribe(ctx, "reactions", "g")
	req.NoError(err)
	req.NoError(m.Publish(ctx, "reactions", "m-1", []byte("new")))

	// Then it only sees the new record
	r := recv(t, sub)
	req.Equal([]byte("new"), r.Value)
	req.Equal(int64(1), r.Offset)
}

func TestMemory_SameKeySamePartitionInOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	m := NewMemory(16)
	sub, err := m.Subscribe(ctx, "messages", "g")
	req.NoError(err)

	for i := 0; i < 5; i++ {
		req.NoError(m.Publish(ctx, "messages", "room", []byte{byte(i)}))
	}
	var part int32 = -1
	for i := 0; i < 5; i++ {
		r := recv(t, sub)
		req.Equal([]byte{byte(i)}, r.Value)
		if part >= 0 {
			req.Equal(part, r.Partition)
		}
		part = r.Partition
	}
}

func TestMemory_Closed(t *testing.T) {
	req := require.New(t)
	m := NewMemory(1)
	req.NoError(m.Close())

	err := m.Publish(context.Background(), "messages", "k", []byte("v"))
	req.True(errors.Is(err, errs.ErrBrokerUnavailable))
	_, err = m.Subscribe(context.Background(), "messages", "g")
	req.True(errors.Is(err, errs.ErrBrokerUnavailable))
}

func TestRecord_DoneIdempotent(t *testing.T) {
	r := NewRecord("t", 0, 0, nil, nil)
	r.Done()
	r.Done()
	select {
	case <-r.Handled():
	default:
		t.Fatal("record not marked handled")
	}
}
