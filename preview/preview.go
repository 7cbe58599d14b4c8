// Package preview 把生成结果转成控制台与终端可展示的形式。
package preview

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"xhs_note_console/generator"
)

// Preview is one model's note ready for display.
type Preview struct {
	Model        string   `json:"model"`
	NoteID       int64    `json:"note_id"`
	Title        string   `json:"title"`
	ContentHTML  string   `json:"content_html"`
	Content      string   `json:"content"`
	Excerpt      string   `json:"excerpt"`
	CommentGuide string   `json:"comment_guide"`
	Questions    []string `json:"questions"`
	CreatedAt    string   `json:"created_at,omitempty"`
	CopyAllText  string   `json:"copy_all_text"`
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	// 笔记正文按行分段，单个换行也要保留
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

func mdToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render converts a note. The body is treated as markdown.
func Render(note generator.GeneratedNote) (Preview, error) {
	body, err := mdToHTML(note.Content)
	if err != nil {
		return Preview{}, fmt.Errorf("render note %d: %w", note.ID, err)
	}
	p := Preview{
		Model:        note.Model,
		NoteID:       note.ID,
		Title:        note.Title,
		ContentHTML:  body,
		Content:      note.Content,
		Excerpt:      Excerpt(note.Content, ExcerptRunes),
		CommentGuide: note.CommentGuide,
		Questions:    note.Questions(),
		CopyAllText:  CopyAllText(note),
	}
	if t, ok := note.CreatedTime(); ok {
		p.CreatedAt = t.Format("2006-01-02 15:04")
	}
	return p, nil
}

// CopyAllText is the text placed on the clipboard by "copy all".
func CopyAllText(note generator.GeneratedNote) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(note.Title))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(note.Content))
	if g := strings.TrimSpace(note.CommentGuide); g != "" {
		b.WriteString("\n\n评论引导：\n")
		b.WriteString(g)
	}
	if qs := note.Questions(); len(qs) > 0 {
		b.WriteString("\n\n评论问题：")
		for i, q := range qs {
			fmt.Fprintf(&b, "\n%d. %s", i+1, q)
		}
	}
	return b.String()
}
