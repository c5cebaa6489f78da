package util

import "time"

// Clock abstracts time so tests can drive order timestamps deterministically.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
