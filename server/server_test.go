package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xhs_note_console/clipboard"
	"xhs_note_console/generator"
	"xhs_note_console/history"
)

type memWriter struct {
	available bool
	last      string
}

func (m *memWriter) Available() bool { return m.available }

func (m *memWriter) Write(text string) error {
	m.last = text
	return nil
}

type stubAccounts struct {
	list []generator.ClientAccount
	err  error
}

func (s stubAccounts) ListClientAccounts(ctx context.Context) ([]generator.ClientAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.list, s.err
}

type fixture struct {
	srv      *Server
	handler  http.Handler
	hits     *atomic.Int32
	clip     *memWriter
	history  *history.Counter
	backend  *httptest.Server
	accounts *stubAccounts
}

// newFixture wires a server to a fake notes backend that answers with respond.
func newFixture(t *testing.T, respond http.HandlerFunc) *fixture {
	t.Helper()
	hits := &atomic.Int32{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		respond(w, r)
	}))
	t.Cleanup(backend.Close)

	counter := history.NewCounter()
	client := generator.NewClient(backend.URL, backend.Client())
	orch, err := generator.NewOrchestrator(client, generator.Options{
		DefaultModel: "gpt-4o",
		Catalog:      []string{"gpt-4o", "model-a", "model-b", "model-c"},
		Notifier:     counter,
	})
	require.NoError(t, err)

	native := &memWriter{available: true}
	accounts := &stubAccounts{list: []generator.ClientAccount{
		{ID: 3, AccountName: "小美", TopicKeywords: []string{"穿搭", "秋冬"}},
	}}
	srv, err := New(orch, clipboard.NewService(native, nil), accounts, client, counter)
	require.NoError(t, err)

	return &fixture{
		srv:      srv,
		handler:  srv.Routes(),
		hits:     hits,
		clip:     native,
		history:  counter,
		backend:  backend,
		accounts: accounts,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func twoNotes(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true,"data":[
		{"id":1,"note_title":"A 标题","note_content":"**A** 正文","comment_guide":"g","comment_questions":"q1\nq2","created_at":"2024-09-01T10:00:00","model":"model-a"},
		{"id":2,"note_title":"B 标题","note_content":"B 正文","comment_guide":"","comment_questions":"","created_at":"2024-09-01T10:00:00","model":"model-b"}
	]}`))
}

func TestInitialState(t *testing.T) {
	f := newFixture(t, twoNotes)

	code, body := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "INPUT", body["phase"])
	assert.Equal(t, false, body["can_generate"])
	assert.Equal(t, "gpt-4o", body["default_model"])
	assert.Equal(t, float64(3), body["max_models"])
	form := body["form"].(map[string]any)
	assert.Equal(t, []any{"gpt-4o"}, form["models"])
}

func TestGenerateFlow(t *testing.T) {
	f := newFixture(t, twoNotes)

	code, body := f.do(t, http.MethodPut, "/api/form", `{"basic_content":"秋季新品上市","writing_style":"活泼"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["can_generate"])

	code, _ = f.do(t, http.MethodPost, "/api/models/gpt-4o/toggle", "")
	require.Equal(t, http.StatusOK, code)
	f.do(t, http.MethodPost, "/api/models/model-a/toggle", "")
	code, body = f.do(t, http.MethodPost, "/api/models/model-b/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"model-a", "model-b"}, body["form"].(map[string]any)["models"])

	code, body = f.do(t, http.MethodPost, "/api/generate", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "RESULTS", body["phase"])
	results := body["results"].(map[string]any)
	assert.Len(t, results, 2)
	a := results["model-a"].(map[string]any)
	assert.Equal(t, "A 标题", a["title"])
	assert.Contains(t, a["content_html"], "<strong>A</strong>")
	assert.Equal(t, int32(1), f.hits.Load())
	assert.Equal(t, uint64(1), f.history.Revision())

	code, body = f.do(t, http.MethodGet, "/api/history/revision", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["revision"])

	code, _ = f.do(t, http.MethodPost, "/api/generate", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = f.do(t, http.MethodPost, "/api/back", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "INPUT", body["phase"])
	assert.Equal(t, "活泼", body["form"].(map[string]any)["writing_style"])

	code, body = f.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, code)
	form := body["form"].(map[string]any)
	assert.Equal(t, "", form["basic_content"])
	assert.Equal(t, []any{"gpt-4o"}, form["models"])
}

func TestGenerateEmptyContent(t *testing.T) {
	f := newFixture(t, twoNotes)

	code, body := f.do(t, http.MethodPost, "/api/generate", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INPUT", body["phase"])
	e := body["error"].(map[string]any)
	assert.Equal(t, "empty_content", e["kind"])
	assert.Equal(t, generator.MsgEmptyContent, e["message"])
	assert.Zero(t, f.hits.Load())
}

func TestGenerateBackendFailure(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f.do(t, http.MethodPut, "/api/form", `{"basic_content":"内容"}`)

	code, body := f.do(t, http.MethodPost, "/api/generate", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "INPUT", body["phase"])
	assert.Equal(t, "内容", body["form"].(map[string]any)["basic_content"])
	assert.Equal(t, "network_error", body["error"].(map[string]any)["kind"])
	assert.Zero(t, f.history.Revision())
}

func TestToggleErrors(t *testing.T) {
	f := newFixture(t, twoNotes)

	f.do(t, http.MethodPost, "/api/models/model-a/toggle", "")
	f.do(t, http.MethodPost, "/api/models/model-b/toggle", "")
	code, body := f.do(t, http.MethodPost, "/api/models/model-c/toggle", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, generator.ErrTooManyModels.Error(), body["error"])

	code, _ = f.do(t, http.MethodPost, "/api/models/unknown/toggle", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCopyEndpoints(t *testing.T) {
	f := newFixture(t, twoNotes)

	code, body := f.do(t, http.MethodPost, "/api/copy", `{"text":"A 标题"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "succeeded", body["outcome"])
	assert.Equal(t, "A 标题", f.clip.last)
	assert.Equal(t, "succeeded", body["operation"].(map[string]any)["status"])

	code, _ = f.do(t, http.MethodPost, "/api/copy-all", `{"model":"model-a"}`)
	assert.Equal(t, http.StatusNotFound, code)

	f.do(t, http.MethodPut, "/api/form", `{"basic_content":"内容"}`)
	f.do(t, http.MethodPost, "/api/models/model-a/toggle", "")
	f.do(t, http.MethodPost, "/api/generate", "")

	code, body = f.do(t, http.MethodPost, "/api/copy-all", `{"model":"model-a"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "succeeded", body["outcome"])
	assert.Equal(t, "A 标题\n\n**A** 正文\n\n评论引导：\ng\n\n评论问题：\n1. q1\n2. q2", f.clip.last)

	code, body = f.do(t, http.MethodGet, "/api/clipboard", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, f.clip.last, body["last_copied"])

	code, _ = f.do(t, http.MethodPost, "/api/copy", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAccounts(t *testing.T) {
	f := newFixture(t, twoNotes)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []generator.ClientAccount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	code, body := f.do(t, http.MethodPost, "/api/accounts/3/apply", "")
	require.Equal(t, http.StatusOK, code)
	form := body["form"].(map[string]any)
	assert.Equal(t, "穿搭, 秋冬", form["recent_trends"])
	assert.Equal(t, float64(3), form["account_id"])

	code, _ = f.do(t, http.MethodPost, "/api/accounts/99/apply", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodPost, "/api/accounts/x/apply", "")
	assert.Equal(t, http.StatusBadRequest, code)

	f.accounts.err = errors.New("backend down")
	code, _ = f.do(t, http.MethodGet, "/api/accounts", "")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestGenerateSurvivesClosedRequest(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notes/generate" {
			http.NotFound(w, r)
			return
		}
		close(entered)
		<-release
		twoNotes(w, r)
	})
	f.do(t, http.MethodPut, "/api/form", `{"basic_content":"秋季新品上市"}`)
	f.do(t, http.MethodPost, "/api/models/gpt-4o/toggle", "")
	f.do(t, http.MethodPost, "/api/models/model-a/toggle", "")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.ServeHTTP(rec, req)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("backend not called")
	}
	// the browser goes away while the backend is still working
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done

	code, body := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "RESULTS", body["phase"])
	assert.Contains(t, body["results"], "model-a")
	assert.Equal(t, uint64(1), f.history.Revision())
}

func TestAccountsSharedFetchIgnoresCallerCancel(t *testing.T) {
	f := newFixture(t, twoNotes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	list, err := f.srv.listAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func historyBackend(listHits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/notes/generate":
			twoNotes(w, r)
		case "/notes/":
			listHits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[
				{"id":1,"input_basic_content":"旧内容","note_title":"旧","note_content":"# 旧\n\n旧的第一段","created_at":"2024-01-01T08:00:00"},
				{"id":2,"input_basic_content":"新内容","note_title":"新","note_content":"新的第一段\n\n第二段","created_at":"2024-03-01T08:00:00"}
			]`))
		case "/notes/2":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":2,"note_title":"新","note_content":"**新**的第一段","comment_questions":"q1","created_at":"2024-03-01T08:00:00"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestNotesListingFollowsHistoryRevision(t *testing.T) {
	listHits := &atomic.Int32{}
	f := newFixture(t, historyBackend(listHits))

	code, body := f.do(t, http.MethodGet, "/api/notes", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["revision"])
	notes := body["notes"].([]any)
	require.Len(t, notes, 2)
	first := notes[0].(map[string]any)
	assert.Equal(t, float64(2), first["id"])
	assert.Equal(t, "新的第一段", first["excerpt"])
	assert.Equal(t, "旧的第一段", notes[1].(map[string]any)["excerpt"])

	f.do(t, http.MethodGet, "/api/notes", "")
	assert.Equal(t, int32(1), listHits.Load(), "same revision is served from cache")

	f.do(t, http.MethodPut, "/api/form", `{"basic_content":"内容"}`)
	f.do(t, http.MethodPost, "/api/models/model-a/toggle", "")
	code, _ = f.do(t, http.MethodPost, "/api/generate", "")
	require.Equal(t, http.StatusOK, code)

	require.NoError(t, f.srv.RefreshNotes(context.Background()))
	assert.Equal(t, int32(2), listHits.Load())

	code, body = f.do(t, http.MethodGet, "/api/notes", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["revision"])
	assert.Equal(t, int32(2), listHits.Load(), "refresh already fetched the new revision")
}

func TestNoteDetail(t *testing.T) {
	f := newFixture(t, historyBackend(&atomic.Int32{}))

	code, body := f.do(t, http.MethodGet, "/api/notes/2", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "新", body["title"])
	assert.Contains(t, body["content_html"], "<strong>新</strong>")
	assert.Equal(t, []any{"q1"}, body["questions"])

	code, _ = f.do(t, http.MethodGet, "/api/notes/9", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodGet, "/api/notes/abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
