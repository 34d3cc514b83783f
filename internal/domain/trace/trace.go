// Package trace defines the per-request execution trace: an ordered
// sequence of timed steps plus an overall status. A Trace is mutated only
// by the pipeline invocation that owns it and becomes immutable once
// handed to the trace store.
package trace

import (
	"maps"
	"time"
)

// Status is the terminal outcome of one pipeline invocation.
type Status string

// Trace statuses.
const (
	// StatusSuccess covers both matched and empty result lists; "no
	// results" is not a failure.
	StatusSuccess Status = "success"
	// StatusDegraded marks a request served from partial machinery: a
	// failed branch or a skipped rerank pass.
	StatusDegraded Status = "degraded"
	// StatusFailed marks a request where no branch produced candidates.
	StatusFailed Status = "failed"
	// StatusRejected marks a request that failed validation before any
	// retrieval work.
	StatusRejected Status = "rejected"
)

// Step is a single timed pipeline stage.
type Step struct {
	name     string
	duration time.Duration
	details  map[string]string
}

// Name returns the step name.
func (s *Step) Name() string { return s.name }

// Duration returns the step's elapsed time.
func (s *Step) Duration() time.Duration { return s.duration }

// Details returns a copy of the step diagnostics.
func (s *Step) Details() map[string]string {
	if s.details == nil {
		return nil
	}
	return maps.Clone(s.details)
}

// Trace records the execution of one pipeline invocation.
type Trace struct {
	id      string
	query   string
	steps   []Step
	total   time.Duration
	status  Status
	started time.Time
}

// New creates a trace for one request and starts its total-duration clock.
func New(id, query string) *Trace {
	return &Trace{id: id, query: query, started: time.Now()}
}

// ID returns the trace identifier.
func (t *Trace) ID() string { return t.id }

// Query returns the traced query text.
func (t *Trace) Query() string { return t.query }

// Steps returns a copy of the recorded steps in execution order.
func (t *Trace) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Total returns the total request duration. Zero until Finish.
func (t *Trace) Total() time.Duration { return t.total }

// Status returns the terminal status. Empty until Finish.
func (t *Trace) Status() Status { return t.status }

// Started returns when the trace was created.
func (t *Trace) Started() time.Time { return t.started }

// Finish stamps the total duration and terminal status.
func (t *Trace) Finish(status Status) {
	t.total = time.Since(t.started)
	t.status = status
}

// Begin starts a timed step. The returned timer must be ended exactly once;
// End records the step regardless of how the stage exited.
func (t *Trace) Begin(name string) *StepTimer {
	return &StepTimer{trace: t, name: name, started: time.Now()}
}

// AddStep records a step with an explicit duration, for stages timed
// elsewhere (e.g. inside a concurrently running branch).
func (t *Trace) AddStep(name string, duration time.Duration, details map[string]string) {
	t.steps = append(t.steps, Step{name: name, duration: duration, details: details})
}

// StepTimer is a scoped timer for one pipeline step.
type StepTimer struct {
	trace   *Trace
	name    string
	started time.Time
	done    bool
}

// End records the elapsed time and diagnostics into the owning trace.
// Calling End more than once is a no-op.
func (st *StepTimer) End(details map[string]string) {
	if st.done {
		return
	}
	st.done = true
	st.trace.AddStep(st.name, time.Since(st.started), details)
}
