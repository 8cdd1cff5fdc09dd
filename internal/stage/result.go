package stage

import "time"

// Status is the terminal state of a stage within one run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusSkipped records a stage that was never dispatched because an
	// earlier stage failed.
	StatusSkipped Status = "skipped"
)

// Result is what one stage produced in one run. It is published once and
// never mutated afterwards.
type Result struct {
	Stage    string    `json:"stage"`
	Content  string    `json:"content,omitempty"`
	Status   Status    `json:"status"`
	Err      error     `json:"-"`
	Attempts int       `json:"attempts"`
	Started  time.Time `json:"started,omitzero"`
	Finished time.Time `json:"finished,omitzero"`
}

// OK reports whether the stage succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Duration is the wall time spent in the stage, zero for skipped stages.
func (r Result) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Skipped builds the result recorded for a stage that was never dispatched.
func Skipped(name string, cause error) Result {
	return Result{Stage: name, Status: StatusSkipped, Err: cause}
}
