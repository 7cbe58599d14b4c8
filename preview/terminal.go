package preview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"xhs_note_console/generator"
)

const absentText = "该模型未返回结果"

var (
	modelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	mutedStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Terminal renders one card per model in order. Width 0 leaves lines unwrapped.
func Terminal(set generator.ModelResultSet, order []string, width int) string {
	cards := make([]string, 0, len(order))
	for _, m := range order {
		cards = append(cards, card(m, set[m], width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func card(model string, note *generator.GeneratedNote, width int) string {
	style := cardStyle
	if width > 0 {
		// border and padding take four columns
		style = style.Width(max(width-4, 10))
	}

	if note == nil {
		return style.Render(lipgloss.JoinVertical(lipgloss.Left,
			modelStyle.Render(model),
			mutedStyle.Render(absentText),
		))
	}

	parts := []string{
		modelStyle.Render(model),
		titleStyle.Render(note.Title),
		"",
		strings.TrimSpace(note.Content),
	}
	if note.CommentGuide != "" {
		parts = append(parts, "", labelStyle.Render("评论引导"), note.CommentGuide)
	}
	if qs := note.Questions(); len(qs) > 0 {
		parts = append(parts, "", labelStyle.Render("评论问题"))
		for i, q := range qs {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, q))
		}
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
