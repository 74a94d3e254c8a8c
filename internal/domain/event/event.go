package event

import (
	"github.com/kailas-cloud/coursedex/internal/domain/category"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
)

// Type is a course lifecycle event kind.
type Type string

const (
	// Created fires when a course document is written for the first time.
	Created Type = "created"
	// Updated fires when an existing course document changes.
	Updated Type = "updated"
	// Deleted fires when a course document is removed.
	Deleted Type = "deleted"
)

// Event is a lifecycle notification about one course document.
// Before is set for Updated/Deleted, After for Created/Updated.
type Event struct {
	ID     string
	Type   Type
	Before *course.Course
	After  *course.Course
}

// CourseID returns the id of the course the event is about.
func (e Event) CourseID() string {
	if e.After != nil {
		return e.After.ID()
	}
	if e.Before != nil {
		return e.Before.ID()
	}
	return ""
}

// Action summarises what happened to one category kind for one event.
type Action string

const (
	// ActionNoop: reference unchanged or absent on both sides.
	ActionNoop Action = "noop"
	// ActionApplied: the transaction committed.
	ActionApplied Action = "applied"
	// ActionSkipped: validation or not-found; logged and skipped.
	ActionSkipped Action = "skipped"
	// ActionFailed: transient failures exhausted the retry budget; the kind was dropped.
	ActionFailed Action = "failed"
	// ActionDuplicate: the event was already applied for this kind.
	ActionDuplicate Action = "duplicate"
)

// KindOutcome is the per-kind result of processing an event.
type KindOutcome struct {
	Kind        course.Kind       `json:"kind"`
	Action      Action            `json:"action"`
	Results     []category.Result `json:"-"`
	Transitions []string          `json:"transitions,omitempty"`
	Attempts    int               `json:"attempts,omitempty"`
	Err         error             `json:"-"`
	Error       string            `json:"error,omitempty"`
}

// Report is the structured outcome of one lifecycle event.
type Report struct {
	EventID  string        `json:"event_id"`
	Type     Type          `json:"type"`
	CourseID string        `json:"course_id"`
	Outcomes []KindOutcome `json:"outcomes"`
}

// Add appends an outcome, filling the serialisable fields.
func (r *Report) Add(o KindOutcome) {
	if o.Err != nil {
		o.Error = o.Err.Error()
	}
	for _, res := range o.Results {
		o.Transitions = append(o.Transitions, res.Op.Key.String()+":"+string(res.Transition))
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Failed reports whether any kind was dropped after exhausting retries.
func (r Report) Failed() bool {
	return len(r.FailedKinds()) > 0
}

// FailedKinds returns kinds whose updates were dropped.
func (r Report) FailedKinds() []course.Kind {
	var out []course.Kind
	for _, o := range r.Outcomes {
		if o.Action == ActionFailed {
			out = append(out, o.Kind)
		}
	}
	return out
}

// Outcome returns the outcome for kind k.
func (r Report) Outcome(k course.Kind) (KindOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Kind == k {
			return o, true
		}
	}
	return KindOutcome{}, false
}

// Failure describes a per-kind update dropped after exhausting retries,
// with enough context to replay it by hand.
type Failure struct {
	EventID  string
	Type     Type
	CourseID string
	Kind     course.Kind
	Before   course.Ref
	After    course.Ref
	Attempts int
	Err      error
}
