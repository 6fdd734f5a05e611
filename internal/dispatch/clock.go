package dispatch

import "time"

// Clock supplies the current time. Dispatchers re-derive their windows from
// it on every run, so repeated invocations tolerate clock skew between runs.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant. Used by tests.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
