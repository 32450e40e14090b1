package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/thebtf/coachctx/pkg/models"
)

// DefaultMaxSectionChars caps the content of one instruction split from a
// markdown book.
const DefaultMaxSectionChars = 2000

// section is a run of body lines under the same chapter and section heading.
type section struct {
	chapter string
	title   string
	lines   []string
}

// SplitMarkdown turns a markdown book into instructions. Level-one headings
// start a chapter and level-two or deeper headings start a section. A section
// longer than maxChars is split between paragraphs. Fenced code blocks are
// never split and their lines are never read as headings.
func SplitMarkdown(content string, d Defaults, maxChars int) ([]models.BookInstruction, error) {
	if strings.TrimSpace(d.BookTitle) == "" {
		return nil, errors.New("book title is required")
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxSectionChars
	}

	sections, err := scanSections(content)
	if err != nil {
		return nil, err
	}

	var out []models.BookInstruction
	for _, s := range sections {
		for _, body := range packParagraphs(s.lines, maxChars) {
			out = append(out, Entry{
				Chapter: s.chapter,
				Section: s.title,
				Content: body,
			}.toInstruction(d))
		}
	}
	return out, nil
}

// maxLineBytes is the longest line scanSections accepts.
const maxLineBytes = 1 << 20

func scanSections(content string) ([]section, error) {
	var (
		out     []section
		cur     section
		inFence bool
	)
	flush := func() {
		if len(cur.lines) > 0 {
			out = append(out, cur)
		}
		cur = section{chapter: cur.chapter, title: cur.title}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if isFence(trimmed) {
			inFence = !inFence
			cur.lines = append(cur.lines, line)
			continue
		}
		if !inFence {
			if level, text := heading(trimmed); level > 0 {
				flush()
				if level == 1 {
					cur.chapter = text
					cur.title = ""
				} else {
					cur.title = text
				}
				continue
			}
		}
		cur.lines = append(cur.lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan markdown: %w", err)
	}
	flush()
	return out, nil
}

// packParagraphs joins paragraphs greedily while they fit in maxChars. A
// single paragraph larger than maxChars is kept whole.
func packParagraphs(lines []string, maxChars int) []string {
	var (
		out  []string
		buf  strings.Builder
		para []string
	)
	emit := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}
	add := func() {
		text := strings.TrimSpace(strings.Join(para, "\n"))
		para = para[:0]
		if text == "" {
			return
		}
		if buf.Len() > 0 && buf.Len()+2+len(text) > maxChars {
			emit()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(text)
	}

	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isFence(trimmed) {
			inFence = !inFence
		}
		if trimmed == "" && !inFence {
			add()
			continue
		}
		para = append(para, line)
	}
	add()
	emit()
	return out
}

func isFence(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// heading returns the ATX level and text of a heading line, or 0.
func heading(trimmed string) (int, string) {
	level := 0
	for level < len(trimmed) && level < 6 && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level >= len(trimmed) || trimmed[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(strings.Trim(trimmed[level:], "# "))
}
