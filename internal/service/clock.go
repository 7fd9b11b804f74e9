package service

import "time"

// Clock returns the current instant. Services take one so tests can move time.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

func (c Clock) now() time.Time {
	if c == nil {
		return SystemClock()
	}
	return c()
}
