package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func stateIn(phase Phase) State {
	s := NewState("gpt-4o")
	s.Form.BasicContent = "秋季新品上市"
	s.Phase = phase
	if phase != PhaseInput {
		s.SubmissionID = "sub-1"
		s.Requested = []string{"gpt-4o"}
	}
	if phase == PhaseResults {
		s.Results = ModelResultSet{"gpt-4o": &GeneratedNote{ID: 1}}
	}
	return s
}

func TestReduceTransitions(t *testing.T) {
	failure := &GenerateError{Kind: KindNetwork, Message: MsgNetwork}
	results := ModelResultSet{"gpt-4o": &GeneratedNote{ID: 2}}

	tests := []struct {
		name  string
		from  Phase
		event Event
		want  Phase
	}{
		{"input submit", PhaseInput, SubmitEvent{SubmissionID: "sub-2"}, PhaseSubmitting},
		{"input succeed ignored", PhaseInput, SucceedEvent{SubmissionID: "sub-1", Results: results}, PhaseInput},
		{"input fail ignored", PhaseInput, FailEvent{SubmissionID: "sub-1", Err: failure}, PhaseInput},
		{"input back ignored", PhaseInput, BackToEditEvent{}, PhaseInput},
		{"input reset", PhaseInput, ResetEvent{DefaultModel: "gpt-4o"}, PhaseInput},
		{"input edit", PhaseInput, EditEvent{}, PhaseInput},
		{"input invalid", PhaseInput, InvalidEvent{Err: failure}, PhaseInput},

		{"submitting submit ignored", PhaseSubmitting, SubmitEvent{SubmissionID: "sub-2"}, PhaseSubmitting},
		{"submitting succeed", PhaseSubmitting, SucceedEvent{SubmissionID: "sub-1", Results: results}, PhaseResults},
		{"submitting stale succeed", PhaseSubmitting, SucceedEvent{SubmissionID: "old", Results: results}, PhaseSubmitting},
		{"submitting fail", PhaseSubmitting, FailEvent{SubmissionID: "sub-1", Err: failure}, PhaseInput},
		{"submitting stale fail", PhaseSubmitting, FailEvent{SubmissionID: "old", Err: failure}, PhaseSubmitting},
		{"submitting back ignored", PhaseSubmitting, BackToEditEvent{}, PhaseSubmitting},
		{"submitting reset ignored", PhaseSubmitting, ResetEvent{DefaultModel: "gpt-4o"}, PhaseSubmitting},
		{"submitting edit ignored", PhaseSubmitting, EditEvent{}, PhaseSubmitting},

		{"results submit ignored", PhaseResults, SubmitEvent{SubmissionID: "sub-2"}, PhaseResults},
		{"results succeed ignored", PhaseResults, SucceedEvent{SubmissionID: "sub-1", Results: results}, PhaseResults},
		{"results fail ignored", PhaseResults, FailEvent{SubmissionID: "sub-1", Err: failure}, PhaseResults},
		{"results back", PhaseResults, BackToEditEvent{}, PhaseInput},
		{"results reset", PhaseResults, ResetEvent{DefaultModel: "gpt-4o"}, PhaseInput},
		{"results edit ignored", PhaseResults, EditEvent{}, PhaseResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(stateIn(tt.from), tt.event)
			assert.Equal(t, tt.want, got.Phase)
		})
	}
}

func TestReduceFailKeepsFormAndDropsResults(t *testing.T) {
	s := stateIn(PhaseSubmitting)
	s.Form.NotePurpose = "种草"
	s.Form.Models = Selection{"gpt-4o", "glm-4"}

	got := Reduce(s, FailEvent{SubmissionID: "sub-1", Err: &GenerateError{Kind: KindNetwork}})

	assert.Equal(t, s.Form, got.Form)
	assert.Nil(t, got.Results)
	assert.Equal(t, KindNetwork, got.Err.Kind)
}

func TestReduceBackToEditKeepsForm(t *testing.T) {
	s := stateIn(PhaseResults)
	s.Form.WritingStyle = "幽默"

	got := Reduce(s, BackToEditEvent{})

	assert.Equal(t, "幽默", got.Form.WritingStyle)
	assert.Equal(t, "秋季新品上市", got.Form.BasicContent)
	assert.Nil(t, got.Results)
}

func TestReduceResetClearsEverything(t *testing.T) {
	s := stateIn(PhaseResults)
	s.Form.Models = Selection{"glm-4", "deepseek-r1"}
	s.Form.ReferenceLinks = "https://example.com"

	got := Reduce(s, ResetEvent{DefaultModel: "gpt-4o"})

	assert.Equal(t, NewState("gpt-4o"), got)
	assert.Equal(t, Selection{"gpt-4o"}, got.Form.Models)
}

func TestReduceSubmitClearsPreviousError(t *testing.T) {
	s := stateIn(PhaseInput)
	s.Err = &GenerateError{Kind: KindNetwork}

	got := Reduce(s, SubmitEvent{SubmissionID: "sub-9", Requested: []string{"a", "b"}})

	assert.Nil(t, got.Err)
	assert.Equal(t, "sub-9", got.SubmissionID)
	assert.Equal(t, []string{"a", "b"}, got.Requested)
}

func TestCanGenerate(t *testing.T) {
	s := NewState("gpt-4o")
	assert.False(t, s.CanGenerate())

	s.Form.BasicContent = "  "
	assert.False(t, s.CanGenerate())

	s.Form.BasicContent = "内容"
	assert.True(t, s.CanGenerate())

	s.Phase = PhaseSubmitting
	assert.False(t, s.CanGenerate())
}
