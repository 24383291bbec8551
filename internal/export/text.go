package export

import (
	"html"
	"strings"
)

// TextToHTML turns plain document text into paragraphs. Blank lines separate
// paragraphs, single newlines become line breaks and runs of lines starting
// with "- " or "• " become a bullet list.
func TextToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	blocks := strings.Split(text, "\n\n")

	var b strings.Builder
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if isList(lines) {
			b.WriteString("<ul>\n")
			for _, line := range lines {
				b.WriteString("<li>")
				b.WriteString(html.EscapeString(trimBullet(line)))
				b.WriteString("</li>\n")
			}
			b.WriteString("</ul>\n")
			continue
		}
		b.WriteString("<p>")
		for i, line := range lines {
			if i > 0 {
				b.WriteString("<br>")
			}
			b.WriteString(html.EscapeString(strings.TrimSpace(line)))
		}
		b.WriteString("</p>\n")
	}
	return b.String()
}

func isList(lines []string) bool {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "• ") {
			return false
		}
	}
	return len(lines) > 0
}

func trimBullet(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "- ")
	line = strings.TrimPrefix(line, "• ")
	return strings.TrimSpace(line)
}
