package generator

import (
	"fmt"
	"strings"
)

// ValidationError is raised before any network call.
type ValidationError struct {
	Field string
	Kind  ErrorKind
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Kind)
}

// Is lets errors.Is(err, ErrEmptyContent) work on validation failures too.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*GenerateError)
	return ok && t.Kind == e.Kind
}

func (e *ValidationError) generateError() *GenerateError {
	msg := MsgEmptyContent
	if e.Kind == KindTooManyModels {
		msg = MsgTooManyModels
	}
	return &GenerateError{Kind: e.Kind, Message: msg, Err: e}
}

// Build 校验表单并转换为后端需要的请求结构。
// Blank optional fields become nil so the backend can tell "not provided"
// from an explicit empty string. No models selected means defaultModel.
func Build(f Form, defaultModel string) (GenerationRequest, error) {
	content := strings.TrimSpace(f.BasicContent)
	if content == "" {
		return GenerationRequest{}, &ValidationError{Field: "basic_content", Kind: KindEmptyContent}
	}

	models := normalizeModels(f.Models)
	if len(models) == 0 && defaultModel != "" {
		models = []string{defaultModel}
	}
	if len(models) > MaxModels {
		return GenerationRequest{}, &ValidationError{Field: "ai_model", Kind: KindTooManyModels}
	}

	return GenerationRequest{
		BasicContent:   content,
		NotePurpose:    optional(f.NotePurpose),
		RecentTrends:   optional(f.RecentTrends),
		WritingStyle:   optional(f.WritingStyle),
		TargetAudience: optional(f.TargetAudience),
		ContentType:    optional(f.ContentType),
		ReferenceLinks: optional(f.ReferenceLinks),
		Models:         models,
	}, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func normalizeModels(in Selection) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, m := range in {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
