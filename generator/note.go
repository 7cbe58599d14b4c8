package generator

import (
	"sort"
	"strings"
	"time"
)

// GenerationRequest 是提交给后端的一次生成请求（已校验、已规范化）。
type GenerationRequest struct {
	BasicContent   string
	NotePurpose    *string
	RecentTrends   *string
	WritingStyle   *string
	TargetAudience *string
	ContentType    *string
	ReferenceLinks *string
	// Models is ordered and duplicate free, 1 to MaxModels entries.
	Models []string
}

// AIModel is the transport form of Models.
func (r GenerationRequest) AIModel() string {
	return strings.Join(r.Models, ",")
}

// GeneratedNote 是后端为某个模型生成的一篇笔记。
type GeneratedNote struct {
	ID               int64  `json:"id"`
	Title            string `json:"note_title"`
	Content          string `json:"note_content"`
	CommentGuide     string `json:"comment_guide"`
	CommentQuestions string `json:"comment_questions"`
	CreatedAt        string `json:"created_at"`
	Model            string `json:"model"`
}

// Questions splits CommentQuestions on newlines, dropping blank lines.
func (n GeneratedNote) Questions() []string {
	var out []string
	for _, line := range strings.Split(n.CommentQuestions, "\n") {
		if q := strings.TrimSpace(line); q != "" {
			out = append(out, q)
		}
	}
	return out
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// CreatedTime parses CreatedAt; the backend omits the zone for naive timestamps.
func (n GeneratedNote) CreatedTime() (time.Time, bool) {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, n.CreatedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ModelOutcome is one entry of the backend's result collection.
// Note is nil when the backend reported that model as unfulfilled.
type ModelOutcome struct {
	Model  string
	Note   *GeneratedNote
	Reason string
}

// ModelResultSet maps every requested model id to its note, nil meaning absent.
type ModelResultSet map[string]*GeneratedNote

// Fulfilled counts the models that produced a note.
func (s ModelResultSet) Fulfilled() int {
	n := 0
	for _, note := range s {
		if note != nil {
			n++
		}
	}
	return n
}

// Models returns the keys in lexical order.
func (s ModelResultSet) Models() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s ModelResultSet) clone() ModelResultSet {
	if s == nil {
		return nil
	}
	out := make(ModelResultSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ClientAccount 是账号信息页维护的社交媒体账号（只读）。
type ClientAccount struct {
	ID            int64    `json:"id"`
	AccountName   string   `json:"account_name"`
	AccountType   string   `json:"account_type"`
	TopicKeywords []string `json:"topic_keywords"`
	Platform      string   `json:"platform"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     *string  `json:"updated_at,omitempty"`
}

// StoredNote is a persisted note as listed by the history screen.
type StoredNote struct {
	ID                  int64   `json:"id"`
	InputBasicContent   string  `json:"input_basic_content"`
	InputNotePurpose    *string `json:"input_note_purpose"`
	InputRecentTrends   *string `json:"input_recent_trends"`
	InputWritingStyle   *string `json:"input_writing_style"`
	InputTargetAudience *string `json:"input_target_audience"`
	InputContentType    *string `json:"input_content_type"`
	InputReferenceLinks *string `json:"input_reference_links"`
	NoteTitle           string  `json:"note_title"`
	NoteContent         string  `json:"note_content"`
	CommentGuide        string  `json:"comment_guide"`
	CommentQuestions    string  `json:"comment_questions"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           *string `json:"updated_at"`
}

// Note is the generated part of a stored note.
func (n StoredNote) Note() GeneratedNote {
	return GeneratedNote{
		ID:               n.ID,
		Title:            n.NoteTitle,
		Content:          n.NoteContent,
		CommentGuide:     n.CommentGuide,
		CommentQuestions: n.CommentQuestions,
		CreatedAt:        n.CreatedAt,
	}
}
