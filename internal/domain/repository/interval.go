package repository

import (
	"fmt"
	"time"
)

// Interval is a bar resolution bucket.
type Interval string

const (
	Interval1s Interval = "1s"
	Interval1m Interval = "1m"
	Interval5m Interval = "5m"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1s, Interval1m, Interval5m:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default interval.
func DefaultInterval() Interval { return Interval1m }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// ParseInterval is the strict form of NormalizeInterval.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !IsValidInterval(iv) {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return iv, nil
}

// Duration returns the bucket width.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1s:
		return time.Second
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	default:
		return 0
	}
}

// Millis returns the bucket width in milliseconds.
func (iv Interval) Millis() int64 { return iv.Duration().Milliseconds() }
