package scraper

import "time"

// DefaultTimeBudget bounds the optional work of one scrape attempt.
const DefaultTimeBudget = 90 * time.Second

// Budget is a deadline captured when an attempt starts. It is read-only; steps consult
// Remaining before starting optional work and skip it once the budget is spent.
type Budget struct {
	start time.Time
	limit time.Duration
	clock Clock
}

// NewBudget starts a budget of limit at the clock's current time.
func NewBudget(clock Clock, limit time.Duration) Budget {
	return Budget{start: clock.Now(), limit: limit, clock: clock}
}

// Remaining reports whether less than the limit has elapsed since the start.
func (b Budget) Remaining() bool {
	return b.Elapsed() < b.limit
}

// Elapsed returns the time spent since the start.
func (b Budget) Elapsed() time.Duration {
	return b.clock.Now().Sub(b.start)
}

// Start returns the instant the attempt began.
func (b Budget) Start() time.Time {
	return b.start
}
