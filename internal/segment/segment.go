// Package segment splits a source document into named sections. Section
// boundary detection is an external collaborator from the orchestrator's
// point of view; this package supplies the default implementation for
// markdown-style resumes.
package segment

import (
	"fmt"
	"strings"

	"github.com/jonathan/resume-tailor/internal/types"
)

// PreambleName is the name given to content before the first heading.
const PreambleName = "Header"

// Segmenter returns a document's sections in document order.
type Segmenter interface {
	Segment(document string) ([]types.Section, error)
}

// Error represents a segmentation failure.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("segmentation error: %s", e.Message)
}

// MarkdownSegmenter splits on markdown headings (`#`, `##`, ...) and on
// short ALL-CAPS heading lines, which cover the common resume layouts.
type MarkdownSegmenter struct{}

// NewMarkdownSegmenter creates the default segmenter.
func NewMarkdownSegmenter() *MarkdownSegmenter {
	return &MarkdownSegmenter{}
}

// Segment splits the document. An empty document is an error; a document
// with no recognizable headings becomes a single preamble section.
func (s *MarkdownSegmenter) Segment(document string) ([]types.Section, error) {
	if strings.TrimSpace(document) == "" {
		return nil, &Error{Message: "document is empty"}
	}

	var sections []types.Section
	current := types.Section{Name: PreambleName}
	var body []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if content != "" {
			current.Content = content
			sections = append(sections, current)
		}
		body = nil
	}

	for _, line := range strings.Split(document, "\n") {
		if name, ok := headingName(line); ok {
			flush()
			current = types.Section{Name: name}
			continue
		}
		body = append(body, line)
	}
	flush()

	if len(sections) == 0 {
		return nil, &Error{Message: "document has no content sections"}
	}
	return sections, nil
}

// headingName reports whether a line is a section heading and returns its
// normalized name.
func headingName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}

	if strings.HasPrefix(trimmed, "#") {
		name := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		if name == "" {
			return "", false
		}
		return name, true
	}

	// Short ALL-CAPS lines ("EXPERIENCE", "WORK HISTORY") read as
	// headings in plain-text resumes.
	if len(trimmed) <= 40 && trimmed == strings.ToUpper(trimmed) && strings.IndexFunc(trimmed, isLowerLetter) < 0 {
		letters := 0
		for _, r := range trimmed {
			if r >= 'A' && r <= 'Z' {
				letters++
			}
		}
		if letters >= 3 {
			return titleCase(trimmed), true
		}
	}

	return "", false
}

func isLowerLetter(r rune) bool {
	return r >= 'a' && r <= 'z'
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
