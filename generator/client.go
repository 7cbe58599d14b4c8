package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"xhs_note_console/endpoint"
	"xhs_note_console/logger"
)

const maxResponseBytes = 8 << 20

// generatePayload is the wire body of POST /notes/generate.
type generatePayload struct {
	BasicContent   string  `json:"basic_content"`
	NotePurpose    *string `json:"note_purpose"`
	RecentTrends   *string `json:"recent_trends"`
	WritingStyle   *string `json:"writing_style"`
	TargetAudience *string `json:"target_audience"`
	ContentType    *string `json:"content_type"`
	ReferenceLinks *string `json:"reference_links"`
	AIModel        string  `json:"ai_model"`
}

func payloadOf(r GenerationRequest) generatePayload {
	return generatePayload{
		BasicContent:   r.BasicContent,
		NotePurpose:    r.NotePurpose,
		RecentTrends:   r.RecentTrends,
		WritingStyle:   r.WritingStyle,
		TargetAudience: r.TargetAudience,
		ContentType:    r.ContentType,
		ReferenceLinks: r.ReferenceLinks,
		AIModel:        r.AIModel(),
	}
}

// Client talks to the notes backend.
type Client struct {
	endpoints endpoint.Endpoints
	client    *http.Client
}

// NewClient builds a client for the resolved base URL. A nil httpClient means
// http.DefaultClient; no client-side timeout is set here, callers bound the
// call through ctx.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoints: endpoint.New(baseURL), client: httpClient}
}

// Endpoints exposes the URLs this client uses.
func (c *Client) Endpoints() endpoint.Endpoints {
	return c.endpoints
}

// Generate POSTs one request and returns the per-model outcomes as reported
// by the backend. Errors are always *GenerateError.
func (c *Client) Generate(ctx context.Context, r GenerationRequest) ([]ModelOutcome, error) {
	body, err := json.Marshal(payloadOf(r))
	if err != nil {
		return nil, malformedError(err)
	}

	reqID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.NotesGenerate(), bytes.NewReader(body))
	if err != nil {
		return nil, networkError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	logger.Log.Info("generate request",
		zap.String("request_id", reqID),
		zap.String("url", req.URL.String()),
		zap.String("ai_model", r.AIModel()),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("http status %d", resp.StatusCode)
		if reason := errorReason(raw); reason != "" {
			return nil, rejectedError(reason, statusErr)
		}
		return nil, networkError(statusErr)
	}

	outcomes, err := parseGenerateResponse(raw)
	if err != nil {
		logger.Log.Warn("generate failed", zap.String("request_id", reqID), zap.Error(err))
		return nil, err
	}
	logger.Log.Info("generate done", zap.String("request_id", reqID), zap.Int("results", len(outcomes)))
	return outcomes, nil
}

// parseGenerateResponse accepts `data` as an array of notes or as a single
// note object. Null items and items carrying an `error` field are reported
// as unfulfilled.
func parseGenerateResponse(raw []byte) ([]ModelOutcome, error) {
	if !gjson.ValidBytes(raw) {
		return nil, malformedError(errors.New("response is not valid json"))
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, malformedError(errors.New("response is not an object"))
	}

	success := doc.Get("success")
	if !success.Exists() {
		return nil, malformedError(errors.New("response has no success flag"))
	}
	if !success.Bool() {
		return nil, rejectedError(errorReason(raw), nil)
	}

	data := doc.Get("data")
	var items []gjson.Result
	switch {
	case data.IsArray():
		items = data.Array()
	case data.IsObject():
		items = []gjson.Result{data}
	default:
		return nil, malformedError(errors.New("response has no data collection"))
	}

	outcomes := make([]ModelOutcome, 0, len(items))
	for i, item := range items {
		if item.Type == gjson.Null {
			outcomes = append(outcomes, ModelOutcome{})
			continue
		}
		if !item.IsObject() {
			return nil, malformedError(fmt.Errorf("data[%d] is not an object", i))
		}
		model := item.Get("model").String()
		if e := item.Get("error"); e.Exists() && e.Type != gjson.Null {
			outcomes = append(outcomes, ModelOutcome{Model: model, Reason: e.String()})
			continue
		}
		var note GeneratedNote
		if err := json.Unmarshal([]byte(item.Raw), &note); err != nil {
			return nil, malformedError(fmt.Errorf("data[%d]: %w", i, err))
		}
		outcomes = append(outcomes, ModelOutcome{Model: model, Note: &note})
	}
	return outcomes, nil
}

// errorReason pulls a human readable reason out of an error payload.
// FastAPI validation errors put a list under `detail`.
func errorReason(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	for _, path := range []string{"detail.0.msg", "detail", "error", "message", "data.error"} {
		r := gjson.GetBytes(raw, path)
		if r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

// ListClientAccounts fetches the accounts used to pre-fill topic keywords.
func (c *Client) ListClientAccounts(ctx context.Context) ([]ClientAccount, error) {
	var out []ClientAccount
	if err := c.getJSON(ctx, c.endpoints.ClientAccounts(), &out); err != nil {
		return nil, fmt.Errorf("list client accounts: %w", err)
	}
	return out, nil
}

// ListNotes fetches stored notes, newest first.
func (c *Client) ListNotes(ctx context.Context) ([]StoredNote, error) {
	var out []StoredNote
	if err := c.getJSON(ctx, c.endpoints.NotesList(), &out); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].Note().CreatedTime()
		tj, _ := out[j].Note().CreatedTime()
		return ti.After(tj)
	})
	return out, nil
}

// GetNote fetches one stored note. A missing note wraps ErrNotFound.
func (c *Client) GetNote(ctx context.Context, id int64) (StoredNote, error) {
	var out StoredNote
	if err := c.getJSON(ctx, c.endpoints.NoteDetail(id), &out); err != nil {
		return StoredNote{}, fmt.Errorf("get note %d: %w", id, err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if reason := errorReason(raw); reason != "" {
			return fmt.Errorf("http status %d: %s", resp.StatusCode, reason)
		}
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
