// Package metrics records operational counters behind a fire-and-forget sink
// interface. Implementations must never block or propagate errors.
package metrics

import "time"

type Sink interface {
	JobStarted(jobType string)
	JobFinished(jobType, outcome string, d time.Duration)
	PriceFetch(outcome string)
	ReminderCreated()
}

// Noop discards all metrics.
type Noop struct{}

func (Noop) JobStarted(string)                         {}
func (Noop) JobFinished(string, string, time.Duration) {}
func (Noop) PriceFetch(string)                         {}
func (Noop) ReminderCreated()                          {}
