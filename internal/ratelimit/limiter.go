// Package ratelimit implements sliding-window admission control for the
// external AI providers: a request is admitted only when both the
// per-minute and per-hour windows have remaining capacity.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	// pollInterval is how often AdmitOrWait re-checks admission.
	pollInterval = 250 * time.Millisecond
)

// Config holds limiter capacities.
type Config struct {
	MaxPerMinute int
	MaxPerHour   int
}

// Stats reports remaining quota for observability.
type Stats struct {
	RemainingPerMinute int `json:"remaining_per_minute"`
	RemainingPerHour   int `json:"remaining_per_hour"`
	MaxPerMinute       int `json:"max_per_minute"`
	MaxPerHour         int `json:"max_per_hour"`
}

// Limiter tracks request timestamps in two trailing windows. Entries older
// than a window's span are dropped lazily on each check.
type Limiter struct {
	mu sync.Mutex

	maxPerMinute int
	maxPerHour   int

	minuteStamps []time.Time
	hourStamps   []time.Time

	now    func() time.Time
	logger *zap.Logger
}

// New creates a limiter using the wall clock.
func New(config Config, logger *zap.Logger) *Limiter {
	return &Limiter{
		maxPerMinute: config.MaxPerMinute,
		maxPerHour:   config.MaxPerHour,
		now:          time.Now,
		logger:       logger,
	}
}

// NewWithClock creates a limiter with an injected clock for deterministic tests.
func NewWithClock(config Config, now func() time.Time, logger *zap.Logger) *Limiter {
	l := New(config, logger)
	l.now = now
	return l
}

// Admit reports whether a new request may proceed, recording its timestamp
// in both windows on admission.
func (l *Limiter) Admit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.minuteStamps = trim(l.minuteStamps, now.Add(-minuteWindow))
	l.hourStamps = trim(l.hourStamps, now.Add(-hourWindow))

	if len(l.minuteStamps) >= l.maxPerMinute || len(l.hourStamps) >= l.maxPerHour {
		l.logger.Warn("Rate limit admission denied",
			zap.Int("usedPerMinute", len(l.minuteStamps)),
			zap.Int("usedPerHour", len(l.hourStamps)))
		return false
	}

	l.minuteStamps = append(l.minuteStamps, now)
	l.hourStamps = append(l.hourStamps, now)
	return true
}

// AdmitOrWait polls for admission until it succeeds or maxWait elapses,
// in which case it returns domain.ErrRateLimitTimeout.
func (l *Limiter) AdmitOrWait(maxWait time.Duration) error {
	deadline := l.now().Add(maxWait)
	for {
		if l.Admit() {
			return nil
		}
		if !l.now().Before(deadline) {
			return domain.ErrRateLimitTimeout
		}
		time.Sleep(pollInterval)
	}
}

// Stats returns remaining quota in each window.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.minuteStamps = trim(l.minuteStamps, now.Add(-minuteWindow))
	l.hourStamps = trim(l.hourStamps, now.Add(-hourWindow))

	return Stats{
		RemainingPerMinute: l.maxPerMinute - len(l.minuteStamps),
		RemainingPerHour:   l.maxPerHour - len(l.hourStamps),
		MaxPerMinute:       l.maxPerMinute,
		MaxPerHour:         l.maxPerHour,
	}
}

// trim drops timestamps at or before cutoff. Stamps are appended in order,
// so the first retained index bounds the live suffix.
func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
