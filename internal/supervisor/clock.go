package supervisor

import "time"

// Clock supplies the grace-period timer. Tests substitute a manual clock so
// the readiness race can be decided deterministically.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) Now() time.Time { return time.Now() }
