package generator

import (
	"errors"
	"strings"
)

// MaxModels is the most models one request may fan out to.
const MaxModels = 3

var (
	ErrTooManyModels = errors.New("最多只能选择 3 个模型")
	ErrBlankModel    = errors.New("model id is blank")
)

// Selection is the ordered, duplicate-free list of chosen model ids.
// It is the UI-interaction layer that stops a fourth model from being picked.
type Selection []string

// Add appends id unless it is already selected.
func (s *Selection) Add(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrBlankModel
	}
	if s.Has(id) {
		return nil
	}
	if len(*s) >= MaxModels {
		return ErrTooManyModels
	}
	*s = append(*s, id)
	return nil
}

// Remove drops id, keeping the order of the rest.
func (s *Selection) Remove(id string) {
	out := (*s)[:0]
	for _, m := range *s {
		if m != id {
			out = append(out, m)
		}
	}
	*s = out
}

// Toggle removes a selected id or adds an unselected one.
func (s *Selection) Toggle(id string) error {
	if s.Has(strings.TrimSpace(id)) {
		s.Remove(strings.TrimSpace(id))
		return nil
	}
	return s.Add(id)
}

func (s Selection) Has(id string) bool {
	for _, m := range s {
		if m == id {
			return true
		}
	}
	return false
}

func (s Selection) clone() Selection {
	if s == nil {
		return nil
	}
	return append(Selection{}, s...)
}

// Form 是用户在生成页填写的原始内容。
type Form struct {
	BasicContent   string    `json:"basic_content"`
	NotePurpose    string    `json:"note_purpose"`
	RecentTrends   string    `json:"recent_trends"`
	WritingStyle   string    `json:"writing_style"`
	TargetAudience string    `json:"target_audience"`
	ContentType    string    `json:"content_type"`
	ReferenceLinks string    `json:"reference_links"`
	AccountID      *int64    `json:"account_id,omitempty"`
	Models         Selection `json:"models"`
}

// NewForm returns an empty form with only the default model selected.
func NewForm(defaultModel string) Form {
	f := Form{Models: Selection{}}
	if defaultModel != "" {
		f.Models = Selection{defaultModel}
	}
	return f
}

// ApplyAccount 选择账号后，用账号的常驻话题预填近期热梗（仅当该字段为空时）。
func (f *Form) ApplyAccount(a ClientAccount) {
	id := a.ID
	f.AccountID = &id
	if strings.TrimSpace(f.RecentTrends) != "" {
		return
	}
	var kws []string
	for _, k := range a.TopicKeywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	f.RecentTrends = strings.Join(kws, ", ")
}

func (f Form) clone() Form {
	out := f
	out.Models = f.Models.clone()
	if f.AccountID != nil {
		id := *f.AccountID
		out.AccountID = &id
	}
	return out
}
