package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish("session.ready", map[string]any{"session_id": "s1"})

	select {
	case ev := <-ch:
		assert.Equal(t, int64(1), ev.ID)
		assert.Equal(t, "session.ready", ev.Type)
		assert.JSONEq(t, `{"session_id":"s1"}`, string(ev.Data))
		assert.False(t, ev.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestNilPayload(t *testing.T) {
	h := NewHub(1)
	h.Publish("ping", nil)
	snap := h.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, "{}", string(snap[0].Data))
}

func TestSnapshotRingOverwrites(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("tick", i)
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish("flood", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestCancelAndClose(t *testing.T) {
	h := NewHub(4)
	ch1, cancel1 := h.Subscribe()
	ch2, _ := h.Subscribe()
	assert.Equal(t, 2, h.Subscribers())

	cancel1()
	cancel1()
	_, ok := <-ch1
	assert.False(t, ok)
	assert.Equal(t, 1, h.Subscribers())

	h.Close()
	_, ok = <-ch2
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers())

	h.Publish("late", nil)
	assert.Empty(t, h.SnapshotSince(0))

	ch3, cancel3 := h.Subscribe()
	defer cancel3()
	_, ok = <-ch3
	assert.False(t, ok)
}
