// Package metrics defines the instrumentation surface for payment
// gating. Counters track gate transitions (challenge_issued,
// verify_failed, settle_failed, approval_denied, granted) and
// histograms track facilitator call latency.
package metrics

import "time"

// Recorder receives gate instrumentation. Implementations must be
// safe for concurrent use.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
