package generator

import "strings"

// Phase of the generation UI.
type Phase string

const (
	PhaseInput      Phase = "INPUT"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseResults    Phase = "RESULTS"
)

// State is the whole UI state of one generation screen.
type State struct {
	Phase        Phase          `json:"phase"`
	Form         Form           `json:"form"`
	Requested    []string       `json:"requested,omitempty"`
	Results      ModelResultSet `json:"results,omitempty"`
	Err          *GenerateError `json:"error,omitempty"`
	SubmissionID string         `json:"submission_id,omitempty"`
}

// NewState is the initial INPUT state.
func NewState(defaultModel string) State {
	return State{Phase: PhaseInput, Form: NewForm(defaultModel)}
}

// CanGenerate reports whether the generate action is enabled.
func (s State) CanGenerate() bool {
	return s.Phase == PhaseInput && strings.TrimSpace(s.Form.BasicContent) != ""
}

func (s State) clone() State {
	out := s
	out.Form = s.Form.clone()
	out.Requested = append([]string(nil), s.Requested...)
	out.Results = s.Results.clone()
	return out
}

// Event drives Reduce.
type Event interface {
	event()
}

// EditEvent replaces the form.
type EditEvent struct{ Form Form }

// InvalidEvent reports a validation failure; no request was sent.
type InvalidEvent struct{ Err *GenerateError }

// SubmitEvent starts a submission.
type SubmitEvent struct {
	SubmissionID string
	Requested    []string
}

// SucceedEvent delivers the indexed results of a submission.
type SucceedEvent struct {
	SubmissionID string
	Results      ModelResultSet
}

// FailEvent ends a submission with an error.
type FailEvent struct {
	SubmissionID string
	Err          *GenerateError
}

// BackToEditEvent returns to the form keeping its values.
type BackToEditEvent struct{}

// ResetEvent clears the form back to the single default model.
type ResetEvent struct{ DefaultModel string }

func (EditEvent) event()       {}
func (InvalidEvent) event()    {}
func (SubmitEvent) event()     {}
func (SucceedEvent) event()    {}
func (FailEvent) event()       {}
func (BackToEditEvent) event() {}
func (ResetEvent) event()      {}

// Reduce is the state machine. Pairs of phase and event that are not a
// defined transition return s unchanged.
//
//	INPUT      --Submit-->      SUBMITTING
//	SUBMITTING --Succeed-->     RESULTS
//	SUBMITTING --Fail-->        INPUT
//	RESULTS    --BackToEdit-->  INPUT (form kept)
//	RESULTS    --Reset-->       INPUT (form cleared)
//	INPUT      --Reset-->       INPUT (form cleared)
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case EditEvent:
		if s.Phase != PhaseInput {
			return s
		}
		s.Form = ev.Form.clone()
		return s

	case InvalidEvent:
		if s.Phase != PhaseInput {
			return s
		}
		s.Err = ev.Err
		return s

	case SubmitEvent:
		if s.Phase != PhaseInput {
			return s
		}
		s.Phase = PhaseSubmitting
		s.SubmissionID = ev.SubmissionID
		s.Requested = append([]string(nil), ev.Requested...)
		s.Results = nil
		s.Err = nil
		return s

	case SucceedEvent:
		if s.Phase != PhaseSubmitting || ev.SubmissionID != s.SubmissionID {
			return s
		}
		s.Phase = PhaseResults
		s.Results = ev.Results.clone()
		return s

	case FailEvent:
		if s.Phase != PhaseSubmitting || ev.SubmissionID != s.SubmissionID {
			return s
		}
		s.Phase = PhaseInput
		s.Results = nil
		s.Requested = nil
		s.Err = ev.Err
		return s

	case BackToEditEvent:
		if s.Phase != PhaseResults {
			return s
		}
		s.Phase = PhaseInput
		s.Results = nil
		s.Requested = nil
		s.Err = nil
		return s

	case ResetEvent:
		if s.Phase == PhaseSubmitting {
			return s
		}
		return NewState(ev.DefaultModel)
	}
	return s
}
