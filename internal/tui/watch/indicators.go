package watch

import (
	"strings"
	"time"
)

// Ticker alternates frames on every UI tick. A ticker whose last tick is
// old means the update loop is stuck.
type Ticker struct {
	frames   []string
	index    int
	lastTick time.Time
}

func NewTicker() Ticker {
	return Ticker{
		frames:   []string{"⟲", "⟳"},
		lastTick: time.Now(),
	}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
	t.lastTick = time.Now()
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Stalled reports whether no tick arrived within d.
func (t Ticker) Stalled(d time.Duration) bool {
	return time.Since(t.lastTick) > d
}

const spinnerDots = 5

// Spinner lights up on events and loses one dot every two seconds.
type Spinner struct {
	dots      int
	lastEvent time.Time
}

func NewSpinner() Spinner {
	return Spinner{}
}

func (s *Spinner) OnEvent() {
	s.OnEventAt(time.Now())
}

// OnEventAt records an event observed at t.
func (s *Spinner) OnEventAt(t time.Time) {
	s.dots = spinnerDots
	s.lastEvent = t
}

// Decay fades the spinner based on time since the last event.
func (s *Spinner) Decay() {
	s.DecayAt(time.Now())
}

// DecayAt fades the spinner as of now.
func (s *Spinner) DecayAt(now time.Time) {
	if s.dots == 0 {
		return
	}
	lit := spinnerDots - int(now.Sub(s.lastEvent)/(2*time.Second))
	if lit < 0 {
		lit = 0
	}
	if lit < s.dots {
		s.dots = lit
	}
}

// Dots returns the number of lit dots.
func (s Spinner) Dots() int {
	return s.dots
}

func (s Spinner) Render(theme Theme) string {
	var result strings.Builder
	for i := range spinnerDots {
		if i < s.dots {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}

func (s Spinner) LastEvent() time.Time {
	return s.lastEvent
}
