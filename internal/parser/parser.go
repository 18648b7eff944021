// Package parser derives tasks and memories from dated Markdown documents.
//
// Parsing is a pure function of (key, content): record ids are built from the
// document key and the record's ordinal position, so parsing unchanged content
// twice yields identical results.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Traejpg/mission-control-sub000/internal/models"
)

var (
	tagRe  = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	taskRe = regexp.MustCompile(`^\s*[-*+]\s+\[([ xX])\]\s+(.*)$`)
)

// Result holds the output of parsing a Markdown document.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Tags        []string
	Tasks       []models.Task
	Memories    []models.Memory
}

// Parse extracts frontmatter, title, tasks and memories from raw Markdown.
// Memories are the sections introduced by "## " headings; tasks are checkbox
// list items anywhere in the body.
func Parse(key string, data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	offset := strings.Count(string(data[:len(data)-len(body)]), "\n")
	fmTags := frontmatterTags(fm)
	tasks, memories := extractRecords(key, body, offset, fmTags)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Tags:        extractTags(body, fmTags),
		Tasks:       tasks,
		Memories:    memories,
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
// The returned body is always a suffix of data.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: treat the whole document as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

type section struct {
	title string
	line  int
	lines []string
}

// extractRecords walks the body once, collecting checkbox tasks and
// "## " sections. Lines inside fenced code blocks are ignored.
func extractRecords(key, body string, offset int, fmTags []string) ([]models.Task, []models.Memory) {
	tasks := []models.Task{}
	memories := []models.Memory{}

	var cur *section
	flush := func() {
		if cur == nil {
			return
		}
		content := strings.TrimSpace(strings.Join(cur.lines, "\n"))
		memories = append(memories, models.Memory{
			ID:      fmt.Sprintf("%s#m%d", key, len(memories)),
			Date:    key,
			Title:   cur.title,
			Content: content,
			Tags:    extractTags(content, fmTags),
			Line:    cur.line,
		})
		cur = nil
	}

	inFence := false
	for i, line := range strings.Split(body, "\n") {
		lineNo := offset + i + 1
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			if cur != nil {
				cur.lines = append(cur.lines, line)
			}
			continue
		}
		if inFence {
			if cur != nil {
				cur.lines = append(cur.lines, line)
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "## "):
			flush()
			title := strings.TrimSpace(trimmed[3:])
			if title != "" {
				cur = &section{title: title, line: lineNo}
			}
			continue
		case strings.HasPrefix(trimmed, "# "):
			flush()
			continue
		}

		if m := taskRe.FindStringSubmatch(line); m != nil {
			text := strings.TrimSpace(m[2])
			if text != "" {
				t := models.Task{
					ID:   fmt.Sprintf("%s#t%d", key, len(tasks)),
					Date: key,
					Text: text,
					Done: m[1] != " ",
					Line: lineNo,
				}
				if cur != nil {
					t.Section = cur.title
				}
				tasks = append(tasks, t)
			}
		}

		if cur != nil {
			cur.lines = append(cur.lines, line)
		}
	}
	flush()

	return tasks, memories
}

// frontmatterTags returns the "tags" list from frontmatter, if any.
func frontmatterTags(fm map[string]interface{}) []string {
	if fm == nil {
		return nil
	}
	raw, ok := fm["tags"].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// extractTags merges base tags with inline #tags found in text, deduplicated
// in first-seen order.
func extractTags(text string, base []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(t string) {
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range base {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if s, ok := fm["title"].(string); ok && s != "" {
			return s
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
