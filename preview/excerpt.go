package preview

import "strings"

// ExcerptRunes is the length of the summary shown in lists.
const ExcerptRunes = 60

// Excerpt 取正文首段（跳过标题行）作为摘要，过长时按字符截断。
func Excerpt(content string, limit int) string {
	para := firstParagraph(content)
	if para == "" {
		para = strings.Join(strings.Fields(content), " ")
	}
	r := []rune(para)
	if limit <= 0 || len(r) <= limit {
		return para
	}
	return string(r[:limit]) + "…"
}

func firstParagraph(md string) string {
	var parts []string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "" {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}
