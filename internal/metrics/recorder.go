// Package metrics defines observability hooks for site builds, search and
// per-document fetches. Components take a Recorder and default to
// NoopRecorder.
package metrics

import "time"

// Outcome is the final state of a build.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Recorder receives measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	ObservePhaseDuration(phase string, d time.Duration)
	IncBuildOutcome(outcome Outcome)
	AddPagesWritten(n int)
	ObserveSearch(d time.Duration, results int)
	IncImageRefreshFailure()
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(Outcome)                    {}
func (NoopRecorder) AddPagesWritten(int)                        {}
func (NoopRecorder) ObserveSearch(time.Duration, int)           {}
func (NoopRecorder) IncImageRefreshFailure()                    {}
