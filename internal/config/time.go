package config

import (
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultCacheTTL     = 6 * time.Hour
)

// CalculateBetweenTime converts a timer to a duration with a one second floor.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMilliseconds(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMilliseconds(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func (t Timer) IsZero() bool {
	return CalculateMilliseconds(t) == 0
}

// FetchTimeoutDuration bounds a single source fetch for one ASN.
func (c Config) FetchTimeoutDuration() time.Duration {
	if c.FetchTimeout.IsZero() {
		return defaultFetchTimeout
	}
	return CalculateBetweenTime(c.FetchTimeout)
}

func (c Config) CacheTTL() time.Duration {
	if c.Cache.TTL.IsZero() {
		return defaultCacheTTL
	}
	return CalculateBetweenTime(c.Cache.TTL)
}
