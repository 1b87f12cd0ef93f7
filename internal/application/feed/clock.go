package feed

import "time"

// Timer is a pending callback created by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time so the controller can be driven by a manual clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

// WallClock is the real-time Clock.
func WallClock() Clock { return wallClock{} }

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
