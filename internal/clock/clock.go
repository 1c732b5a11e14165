package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time so services that reason about due dates can be
// exercised with a fake in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func Provide() Clock {
	return SystemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(Provide),
)
