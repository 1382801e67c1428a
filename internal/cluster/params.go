package cluster

import (
	"time"
)

const (
	DefaultMaxDistanceMeters = 500
	DefaultTimeWindow        = 4 * time.Hour
	DefaultMaxRetries        = 3
	DefaultLockWait          = 5 * time.Second
	DefaultLocationName      = "Unknown POI"
)

// Params tunes album detection. Zero fields fall back to the defaults above.
type Params struct {
	MaxDistanceMeters   float64
	TimeWindow          time.Duration
	MaxRetries          int
	LockWait            time.Duration
	DefaultLocationName string
}

func DefaultParams() Params {
	return Params{}.withDefaults()
}

func (p Params) withDefaults() Params {
	if p.MaxDistanceMeters <= 0 {
		p.MaxDistanceMeters = DefaultMaxDistanceMeters
	}
	if p.TimeWindow <= 0 {
		p.TimeWindow = DefaultTimeWindow
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.LockWait <= 0 {
		p.LockWait = DefaultLockWait
	}
	if p.DefaultLocationName == "" {
		p.DefaultLocationName = DefaultLocationName
	}
	return p
}

// Window returns the inclusive time range a post created at t can cluster with.
func (p Params) Window(t time.Time) (from, to time.Time) {
	return t.Add(-p.TimeWindow), t.Add(p.TimeWindow)
}
