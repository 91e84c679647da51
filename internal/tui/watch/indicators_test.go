package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpinnerDecay(t *testing.T) {
	var s Spinner
	t0 := time.Now()
	s.OnEventAt(t0)
	assert.Equal(t, 5, s.Dots())

	s.DecayAt(t0.Add(time.Second))
	assert.Equal(t, 5, s.Dots())

	s.DecayAt(t0.Add(5 * time.Second))
	assert.Equal(t, 3, s.Dots())

	s.DecayAt(t0.Add(time.Minute))
	assert.Equal(t, 0, s.Dots())

	s.OnEventAt(t0.Add(time.Minute))
	assert.Equal(t, 5, s.Dots())
}

func TestTickerStalled(t *testing.T) {
	tk := NewTicker()
	first := tk.Current()
	tk.Tick()
	assert.NotEqual(t, first, tk.Current())
	assert.False(t, tk.Stalled(time.Minute))

	tk.lastTick = time.Now().Add(-time.Minute)
	assert.True(t, tk.Stalled(time.Second))
}

func TestSSEFrame(t *testing.T) {
	var f sseFrame
	for _, line := range []string{"id: 4", "event: session.ready", `data: {"session_id":"a"}`} {
		_, ok := f.feed(line)
		assert.False(t, ok)
	}
	ev, ok := f.feed("")
	assert.True(t, ok)
	assert.Equal(t, int64(4), ev.ID)
	assert.Equal(t, "session.ready", ev.Type)
	assert.JSONEq(t, `{"session_id":"a"}`, string(ev.Data))

	// Comment keep-alives produce nothing.
	_, ok = f.feed(": keep-alive")
	assert.False(t, ok)
	_, ok = f.feed("")
	assert.False(t, ok)
}
