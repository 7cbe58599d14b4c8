// Package clipboard copies generated text to the user's clipboard and keeps the
// short-lived feedback state shown next to copy buttons.
package clipboard

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"xhs_note_console/logger"
)

// Display windows for the transient feedback.
const (
	CopyWindow    = 2 * time.Second
	CopyAllWindow = 3 * time.Second
	ErrorWindow   = 3 * time.Second
)

// FailureMessage is shown when neither writer could copy.
const FailureMessage = "复制失败，请手动选择文本复制"

// Outcome of a copy call.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
)

// Status of a single ClipboardOperation.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCopying   Status = "copying"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Operation is the ephemeral view of one text's copy state.
type Operation struct {
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Snapshot is what the UI reads.
type Snapshot struct {
	Copying    string `json:"copying,omitempty"`
	LastCopied string `json:"last_copied,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Service is safe for concurrent use.
type Service struct {
	native   Writer
	fallback Writer
	cue      Cue
	now      func() time.Time

	mu         sync.Mutex
	seq        uint64
	copying    string
	copyingSeq uint64
	hasCopying bool
	// succeeded text -> end of its display window
	recent   map[string]time.Time
	last     string
	failed   map[string]time.Time
	errMsg   string
	errUntil time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCue sets the signal used after a successful CopyAll.
func WithCue(c Cue) Option {
	return func(s *Service) { s.cue = c }
}

// NewService prefers native and falls back to fallback. Either may be nil.
func NewService(native, fallback Writer, opts ...Option) *Service {
	s := &Service{
		native:   native,
		fallback: fallback,
		now:      time.Now,
		recent:   make(map[string]time.Time),
		failed:   make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Copy copies a single field.
func (s *Service) Copy(text string) Outcome {
	return s.copy(text, CopyWindow, false)
}

// CopyAll copies a whole note and rings the cue on success.
func (s *Service) CopyAll(text string) Outcome {
	return s.copy(text, CopyAllWindow, true)
}

func (s *Service) copy(text string, window time.Duration, cue bool) Outcome {
	seq := s.begin(text)

	err := s.write(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasCopying && s.copyingSeq == seq {
		s.hasCopying = false
		s.copying = ""
	}

	now := s.now()
	if err != nil {
		logger.Log.Warn("clipboard copy failed", zap.Error(err), zap.Int("bytes", len(text)))
		s.errMsg = FailureMessage
		s.errUntil = now.Add(ErrorWindow)
		s.failed[text] = now.Add(ErrorWindow)
		delete(s.recent, text)
		return Failed
	}

	s.recent[text] = now.Add(window)
	s.last = text
	delete(s.failed, text)
	if cue && s.cue != nil {
		s.cue.Cue()
	}
	return Succeeded
}

func (s *Service) begin(text string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.copying = text
	s.copyingSeq = s.seq
	s.hasCopying = true
	return s.seq
}

// write tries the native writer when it has the capability and falls back to
// the legacy writer on any error.
func (s *Service) write(text string) error {
	var nativeErr error
	if s.native != nil && s.native.Available() {
		if nativeErr = s.native.Write(text); nativeErr == nil {
			return nil
		}
		logger.Log.Debug("native clipboard rejected, using fallback", zap.Error(nativeErr))
	}
	if s.fallback == nil || !s.fallback.Available() {
		if nativeErr != nil {
			return nativeErr
		}
		return ErrUnavailable
	}
	return s.fallback.Write(text)
}

// Status returns the current feedback with expired entries cleared.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()

	var snap Snapshot
	if s.hasCopying {
		snap.Copying = s.copying
	}
	if _, ok := s.recent[s.last]; ok {
		snap.LastCopied = s.last
	}
	if s.errMsg != "" {
		snap.Error = s.errMsg
	}
	return snap
}

// OperationFor reports the state of one particular text.
func (s *Service) OperationFor(text string) Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()

	op := Operation{Text: text, Status: StatusIdle}
	switch {
	case s.hasCopying && s.copying == text:
		op.Status = StatusCopying
	case !s.recent[text].IsZero():
		op.Status = StatusSucceeded
		op.ExpiresAt = s.recent[text]
	case !s.failed[text].IsZero():
		op.Status = StatusFailed
		op.ExpiresAt = s.failed[text]
	}
	return op
}

func (s *Service) prune() {
	now := s.now()
	for t, until := range s.recent {
		if !now.Before(until) {
			delete(s.recent, t)
		}
	}
	for t, until := range s.failed {
		if !now.Before(until) {
			delete(s.failed, t)
		}
	}
	if s.errMsg != "" && !now.Before(s.errUntil) {
		s.errMsg = ""
	}
}
