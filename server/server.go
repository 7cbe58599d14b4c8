package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"xhs_note_console/clipboard"
	"xhs_note_console/generator"
	"xhs_note_console/logger"
	"xhs_note_console/preview"
)

// AccountLister supplies the read-only client accounts.
type AccountLister interface {
	ListClientAccounts(ctx context.Context) ([]generator.ClientAccount, error)
}

// NoteSource supplies stored notes for the history listing.
type NoteSource interface {
	ListNotes(ctx context.Context) ([]generator.StoredNote, error)
	GetNote(ctx context.Context, id int64) (generator.StoredNote, error)
}

// Revisioner exposes the history revision.
type Revisioner interface {
	Revision() uint64
}

type Server struct {
	orch     *generator.Orchestrator
	clip     *clipboard.Service
	accounts AccountLister
	notes    NoteSource
	history  Revisioner

	// accounts are listed by the picker and by apply; concurrent fetches share one call
	accountsGroup singleflight.Group

	notesGroup singleflight.Group
	notesMu    sync.Mutex
	notesRev   uint64
	notesOK    bool
	notesList  []noteItem
}

func New(orch *generator.Orchestrator, clip *clipboard.Service, accounts AccountLister, notes NoteSource, history Revisioner) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator required")
	}
	if clip == nil {
		return nil, errors.New("clipboard service required")
	}
	return &Server{orch: orch, clip: clip, accounts: accounts, notes: notes, history: history}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Put("/form", s.handleForm)
		r.Post("/models/{id}/toggle", s.handleToggle)
		r.Post("/generate", s.handleGenerate)
		r.Post("/back", s.handleBack)
		r.Post("/reset", s.handleReset)

		r.Post("/copy", s.handleCopy)
		r.Post("/copy-all", s.handleCopyAll)
		r.Get("/clipboard", s.handleClipboard)

		r.Get("/accounts", s.handleAccounts)
		r.Post("/accounts/{id}/apply", s.handleApplyAccount)

		r.Get("/history/revision", s.handleRevision)
		r.Get("/notes", s.handleNotes)
		r.Get("/notes/{id}", s.handleNote)
	})
	return r
}

// --- State ---

type stateResp struct {
	Phase        generator.Phase             `json:"phase"`
	Form         generator.Form              `json:"form"`
	Requested    []string                    `json:"requested,omitempty"`
	Results      map[string]*preview.Preview `json:"results,omitempty"`
	Error        *generator.GenerateError    `json:"error,omitempty"`
	CanGenerate  bool                        `json:"can_generate"`
	Catalog      []string                    `json:"catalog"`
	DefaultModel string                      `json:"default_model"`
	MaxModels    int                         `json:"max_models"`
}

func (s *Server) state() (stateResp, error) {
	st := s.orch.Snapshot()
	resp := stateResp{
		Phase:        st.Phase,
		Form:         st.Form,
		Requested:    st.Requested,
		Error:        st.Err,
		CanGenerate:  st.CanGenerate(),
		Catalog:      s.orch.Catalog(),
		DefaultModel: s.orch.DefaultModel(),
		MaxModels:    generator.MaxModels,
	}
	if st.Results != nil {
		resp.Results = make(map[string]*preview.Preview, len(st.Results))
		for model, note := range st.Results {
			if note == nil {
				resp.Results[model] = nil
				continue
			}
			p, err := preview.Render(*note)
			if err != nil {
				return stateResp{}, err
			}
			resp.Results[model] = &p
		}
	}
	return resp, nil
}

func (s *Server) writeState(w http.ResponseWriter, status int) {
	resp, err := s.state()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, http.StatusOK)
}

type formReq struct {
	BasicContent   string `json:"basic_content"`
	NotePurpose    string `json:"note_purpose"`
	RecentTrends   string `json:"recent_trends"`
	WritingStyle   string `json:"writing_style"`
	TargetAudience string `json:"target_audience"`
	ContentType    string `json:"content_type"`
	ReferenceLinks string `json:"reference_links"`
}

// handleForm replaces the text fields; selection and account are kept.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	var req formReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.orch.Edit(func(f *generator.Form) error {
		f.BasicContent = req.BasicContent
		f.NotePurpose = req.NotePurpose
		f.RecentTrends = req.RecentTrends
		f.WritingStyle = req.WritingStyle
		f.TargetAudience = req.TargetAudience
		f.ContentType = req.ContentType
		f.ReferenceLinks = req.ReferenceLinks
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeState(w, http.StatusOK)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ToggleModel(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeState(w, http.StatusOK)
}

// handleGenerate runs one cycle. The backend call outlives the browser
// request: a closed tab must not abort a generation the backend may persist.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if _, err := s.orch.Generate(context.WithoutCancel(r.Context())); err != nil {
		status := statusFor(err)
		if status == http.StatusConflict {
			writeError(w, status, err.Error())
			return
		}
		// the state carries the user-facing message
		s.writeState(w, status)
		return
	}
	s.writeState(w, http.StatusOK)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.BackToEdit(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeState(w, http.StatusOK)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Reset(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeState(w, http.StatusOK)
}

// --- Clipboard ---

type copyReq struct {
	Text string `json:"text"`
	// Model selects a result of the current set for copy-all.
	Model string `json:"model,omitempty"`
}

type copyResp struct {
	Outcome   clipboard.Outcome   `json:"outcome"`
	Operation clipboard.Operation `json:"operation"`
	Status    clipboard.Snapshot  `json:"status"`
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req copyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.writeCopy(w, req.Text, s.clip.Copy(req.Text))
}

func (s *Server) handleCopyAll(w http.ResponseWriter, r *http.Request) {
	var req copyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text := req.Text
	if req.Model != "" {
		note := s.orch.Snapshot().Results[req.Model]
		if note == nil {
			writeError(w, http.StatusNotFound, "no result for model "+req.Model)
			return
		}
		text = preview.CopyAllText(*note)
	}
	if text == "" {
		writeError(w, http.StatusBadRequest, "text or model is required")
		return
	}
	s.writeCopy(w, text, s.clip.CopyAll(text))
}

func (s *Server) writeCopy(w http.ResponseWriter, text string, out clipboard.Outcome) {
	writeJSON(w, http.StatusOK, copyResp{
		Outcome:   out,
		Operation: s.clip.OperationFor(text),
		Status:    s.clip.Status(),
	})
}

func (s *Server) handleClipboard(w http.ResponseWriter, r *http.Request) {
	if text := r.URL.Query().Get("text"); text != "" {
		writeJSON(w, http.StatusOK, s.clip.OperationFor(text))
		return
	}
	writeJSON(w, http.StatusOK, s.clip.Status())
}

// --- Accounts ---

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeJSON(w, http.StatusOK, []generator.ClientAccount{})
		return
	}
	list, err := s.listAccounts(r.Context())
	if err != nil {
		logger.Log.Warn("list client accounts failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if list == nil {
		list = []generator.ClientAccount{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleApplyAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if s.accounts == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	list, err := s.listAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	for _, a := range list {
		if a.ID != id {
			continue
		}
		if err := s.orch.ApplyAccount(a); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		s.writeState(w, http.StatusOK)
		return
	}
	writeError(w, http.StatusNotFound, "account not found")
}

func (s *Server) listAccounts(ctx context.Context) ([]generator.ClientAccount, error) {
	v, err, shared := s.accountsGroup.Do("accounts", func() (interface{}, error) {
		// shared by every waiter, so one caller going away must not fail the rest
		return s.accounts.ListClientAccounts(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Log.Debug("client accounts fetch shared")
	}
	return v.([]generator.ClientAccount), nil
}

// --- History ---

func (s *Server) handleRevision(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"revision": s.revision()})
}

type noteItem struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Excerpt      string `json:"excerpt"`
	BasicContent string `json:"basic_content"`
	CreatedAt    string `json:"created_at"`
}

type notesResp struct {
	Revision uint64     `json:"revision"`
	Notes    []noteItem `json:"notes"`
}

func (s *Server) revision() uint64 {
	if s.history == nil {
		return 0
	}
	return s.history.Revision()
}

// historyNotes returns the listing for the current revision, fetching it
// again only after a new note was created.
func (s *Server) historyNotes(ctx context.Context) (uint64, []noteItem, error) {
	rev := s.revision()

	s.notesMu.Lock()
	if s.notesOK && s.notesRev == rev {
		items := s.notesList
		s.notesMu.Unlock()
		return rev, items, nil
	}
	s.notesMu.Unlock()

	v, err, _ := s.notesGroup.Do(strconv.FormatUint(rev, 10), func() (interface{}, error) {
		notes, err := s.notes.ListNotes(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		items := make([]noteItem, 0, len(notes))
		for _, n := range notes {
			items = append(items, noteItem{
				ID:           n.ID,
				Title:        n.NoteTitle,
				Excerpt:      preview.Excerpt(n.NoteContent, preview.ExcerptRunes),
				BasicContent: n.InputBasicContent,
				CreatedAt:    n.CreatedAt,
			})
		}
		return items, nil
	})
	if err != nil {
		return 0, nil, err
	}
	items := v.([]noteItem)

	s.notesMu.Lock()
	if !s.notesOK || rev >= s.notesRev {
		s.notesRev, s.notesList, s.notesOK = rev, items, true
	}
	s.notesMu.Unlock()
	return rev, items, nil
}

// RefreshNotes prefetches the listing; call it when the history revision moves.
func (s *Server) RefreshNotes(ctx context.Context) error {
	if s.notes == nil {
		return nil
	}
	_, _, err := s.historyNotes(ctx)
	return err
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	if s.notes == nil {
		writeJSON(w, http.StatusOK, notesResp{Revision: s.revision(), Notes: []noteItem{}})
		return
	}
	rev, items, err := s.historyNotes(r.Context())
	if err != nil {
		logger.Log.Warn("list notes failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, notesResp{Revision: rev, Notes: items})
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}
	if s.notes == nil {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	n, err := s.notes.GetNote(r.Context(), id)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, generator.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	p, err := preview.Render(n.Note())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Helpers ---

func statusFor(err error) int {
	switch {
	case errors.Is(err, generator.ErrBusy), errors.Is(err, generator.ErrWrongPhase):
		return http.StatusConflict
	case errors.Is(err, generator.ErrTooManyModels):
		return http.StatusConflict
	case errors.Is(err, generator.ErrUnknownModel):
		return http.StatusNotFound
	case errors.Is(err, generator.ErrBlankModel):
		return http.StatusBadRequest
	}

	var ge *generator.GenerateError
	if errors.As(err, &ge) {
		switch ge.Kind {
		case generator.KindEmptyContent, generator.KindTooManyModels:
			return http.StatusBadRequest
		default:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

type errorResp struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
