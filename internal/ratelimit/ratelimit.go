package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultHourlyLimit is the per-identity ceiling over a rolling hour.
	DefaultHourlyLimit = 100
	// DefaultDailyLimit is the per-identity ceiling over a rolling day.
	DefaultDailyLimit = 1000
)

// Limiter tracks per-identity request counts over rolling hourly and daily
// windows. Check-and-record is atomic: two concurrent requests can never
// both slip past the last slot of a window.
type Limiter struct {
	hourlyLimit int
	dailyLimit  int

	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed         bool
	RetryAfter      time.Duration
	HourlyRemaining int
	DailyRemaining  int
}

// New constructs a limiter. Non-positive limits fall back to the defaults.
func New(hourlyLimit, dailyLimit int) *Limiter {
	if hourlyLimit <= 0 {
		hourlyLimit = DefaultHourlyLimit
	}
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}

	return &Limiter{
		hourlyLimit: hourlyLimit,
		dailyLimit:  dailyLimit,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Check records a request for the identity if capacity remains in both
// windows, or denies it with the wait until the earliest window frees up.
func (l *Limiter) Check(identity string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := l.pruneLocked(identity, now)

	hourAgo := now.Add(-time.Hour)
	hourCount := 0
	var oldestInHour time.Time
	for _, ts := range stamps {
		if ts.After(hourAgo) {
			if hourCount == 0 {
				oldestInHour = ts
			}
			hourCount++
		}
	}
	dayCount := len(stamps)

	var retryAfter time.Duration
	if hourCount >= l.hourlyLimit {
		retryAfter = oldestInHour.Sub(hourAgo)
	}
	if dayCount >= l.dailyLimit {
		if wait := stamps[0].Sub(now.Add(-24 * time.Hour)); retryAfter == 0 || wait < retryAfter {
			retryAfter = wait
		}
	}

	if retryAfter > 0 {
		return Decision{
			Allowed:         false,
			RetryAfter:      retryAfter,
			HourlyRemaining: remaining(l.hourlyLimit, hourCount),
			DailyRemaining:  remaining(l.dailyLimit, dayCount),
		}
	}

	l.requests[identity] = append(stamps, now)

	return Decision{
		Allowed:         true,
		HourlyRemaining: remaining(l.hourlyLimit, hourCount+1),
		DailyRemaining:  remaining(l.dailyLimit, dayCount+1),
	}
}

// Remaining reports current window headroom without recording a request.
func (l *Limiter) Remaining(identity string) (hourly, daily int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := l.pruneLocked(identity, now)

	hourAgo := now.Add(-time.Hour)
	hourCount := 0
	for _, ts := range stamps {
		if ts.After(hourAgo) {
			hourCount++
		}
	}

	return remaining(l.hourlyLimit, hourCount), remaining(l.dailyLimit, len(stamps))
}

// pruneLocked drops timestamps older than the daily window and returns the
// survivors. Caller must hold the lock.
func (l *Limiter) pruneLocked(identity string, now time.Time) []time.Time {
	dayAgo := now.Add(-24 * time.Hour)
	stamps := l.requests[identity]

	cut := 0
	for cut < len(stamps) && !stamps[cut].After(dayAgo) {
		cut++
	}
	if cut > 0 {
		stamps = stamps[cut:]
	}

	if len(stamps) == 0 {
		delete(l.requests, identity)
	} else {
		l.requests[identity] = stamps
	}

	return stamps
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}
