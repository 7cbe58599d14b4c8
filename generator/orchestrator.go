package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xhs_note_console/logger"
)

// Backend performs the single generate call. *Client implements it.
type Backend interface {
	Generate(ctx context.Context, r GenerationRequest) ([]ModelOutcome, error)
}

// Notifier is told when new notes were persisted, so history listings can refresh.
type Notifier interface {
	NoteCreated()
}

// Options configures an Orchestrator.
type Options struct {
	DefaultModel string
	// Catalog restricts selectable models; empty allows any id.
	Catalog []string
	// Timeout bounds one generate call; zero leaves it to ctx.
	Timeout  time.Duration
	Notifier Notifier
}

// Orchestrator 驱动一次完整的生成流程，并持有页面状态机。
type Orchestrator struct {
	backend Backend
	opts    Options

	mu    sync.Mutex
	state State
}

func NewOrchestrator(backend Backend, opts Options) (*Orchestrator, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	return &Orchestrator{
		backend: backend,
		opts:    opts,
		state:   NewState(opts.DefaultModel),
	}, nil
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Catalog lists the selectable models.
func (o *Orchestrator) Catalog() []string {
	return append([]string(nil), o.opts.Catalog...)
}

// DefaultModel is the model used when none is selected.
func (o *Orchestrator) DefaultModel() string {
	return o.opts.DefaultModel
}

// Edit applies fn to a copy of the form. Only allowed in INPUT.
func (o *Orchestrator) Edit(fn func(f *Form) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Phase != PhaseInput {
		return ErrWrongPhase
	}
	f := o.state.Form.clone()
	if err := fn(&f); err != nil {
		return err
	}
	o.state = Reduce(o.state, EditEvent{Form: f})
	return nil
}

// ToggleModel selects or deselects a model; a fourth model is rejected.
func (o *Orchestrator) ToggleModel(id string) error {
	if !o.known(id) {
		return ErrUnknownModel
	}
	return o.Edit(func(f *Form) error {
		return f.Models.Toggle(id)
	})
}

// SelectModels replaces the selection with ids, in order. Every id must be
// in the catalog; duplicates collapse and a fourth model is rejected.
func (o *Orchestrator) SelectModels(ids []string) error {
	for _, id := range ids {
		if !o.known(strings.TrimSpace(id)) {
			return fmt.Errorf("%w: %s", ErrUnknownModel, id)
		}
	}
	return o.Edit(func(f *Form) error {
		sel := Selection{}
		for _, id := range ids {
			if err := sel.Add(id); err != nil {
				return err
			}
		}
		f.Models = sel
		return nil
	})
}

// ApplyAccount pre-fills the form from an account.
func (o *Orchestrator) ApplyAccount(a ClientAccount) error {
	return o.Edit(func(f *Form) error {
		f.ApplyAccount(a)
		return nil
	})
}

func (o *Orchestrator) known(id string) bool {
	if len(o.opts.Catalog) == 0 {
		return true
	}
	for _, m := range o.opts.Catalog {
		if m == id {
			return true
		}
	}
	return false
}

// Generate runs one cycle. On success the state is RESULTS and the indexed
// set is returned; on any failure the state is back to INPUT with the form
// untouched and the error recorded. ErrBusy and ErrWrongPhase leave the state as is.
func (o *Orchestrator) Generate(ctx context.Context) (ModelResultSet, error) {
	o.mu.Lock()
	switch o.state.Phase {
	case PhaseSubmitting:
		o.mu.Unlock()
		return nil, ErrBusy
	case PhaseResults:
		o.mu.Unlock()
		return nil, ErrWrongPhase
	}

	req, err := Build(o.state.Form, o.opts.DefaultModel)
	if err != nil {
		ge := asGenerateError(err)
		o.state = Reduce(o.state, InvalidEvent{Err: ge})
		o.mu.Unlock()
		return nil, ge
	}

	id := uuid.NewString()
	o.state = Reduce(o.state, SubmitEvent{SubmissionID: id, Requested: req.Models})
	o.mu.Unlock()

	log := logger.Log.With(zap.String("submission_id", id))
	log.Info("submitting generation", zap.Strings("models", req.Models))

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	set, err := o.call(ctx, req)

	o.mu.Lock()
	if err != nil {
		ge := asGenerateError(err)
		o.state = Reduce(o.state, FailEvent{SubmissionID: id, Err: ge})
		o.mu.Unlock()
		log.Warn("generation failed", zap.String("kind", string(ge.Kind)), zap.Error(ge))
		return nil, ge
	}
	o.state = Reduce(o.state, SucceedEvent{SubmissionID: id, Results: set})
	o.mu.Unlock()

	log.Info("generation succeeded", zap.Int("fulfilled", set.Fulfilled()), zap.Int("requested", len(set)))
	if o.opts.Notifier != nil {
		o.opts.Notifier.NoteCreated()
	}
	return set.clone(), nil
}

func (o *Orchestrator) call(ctx context.Context, req GenerationRequest) (ModelResultSet, error) {
	outcomes, err := o.backend.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	set, dropped := IndexResults(req.Models, outcomes)
	if len(dropped) > 0 {
		logger.Log.Warn("results for models that were not requested", zap.Strings("models", dropped))
	}
	if set.Fulfilled() == 0 {
		return nil, &GenerateError{Kind: KindBackendRejected, Message: MsgAllFailed}
	}
	return set, nil
}

// BackToEdit leaves RESULTS keeping the form values.
func (o *Orchestrator) BackToEdit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Phase != PhaseResults {
		return ErrWrongPhase
	}
	o.state = Reduce(o.state, BackToEditEvent{})
	return nil
}

// Reset clears every field and selects only the default model.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Phase == PhaseSubmitting {
		return ErrBusy
	}
	o.state = Reduce(o.state, ResetEvent{DefaultModel: o.opts.DefaultModel})
	return nil
}

// IndexResults keys outcomes by their declared model. Every requested model
// is a key; unfulfilled ones map to nil. An untagged outcome is attributed to
// the only requested model. Outcomes for models outside the request are
// returned as dropped. The first note for a model wins.
func IndexResults(requested []string, outcomes []ModelOutcome) (ModelResultSet, []string) {
	set := make(ModelResultSet, len(requested))
	for _, m := range requested {
		set[m] = nil
	}

	var dropped []string
	for _, o := range outcomes {
		model := o.Model
		if model == "" && len(requested) == 1 {
			model = requested[0]
		}
		current, ok := set[model]
		if !ok {
			if model != "" {
				dropped = append(dropped, model)
			}
			continue
		}
		if current == nil && o.Note != nil {
			note := *o.Note
			note.Model = model
			set[model] = &note
		}
	}
	return set, dropped
}
