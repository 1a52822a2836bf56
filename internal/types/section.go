package types

import "strings"

// Section is one named segment of a document, as produced by the document
// segmenter. Section order follows the original document.
type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// JoinSections renders sections back into a single document, emitting a
// markdown heading per named section.
func JoinSections(sections []Section) string {
	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		if s.Name != "" {
			sb.WriteString("## ")
			sb.WriteString(s.Name)
			sb.WriteString("\n")
		}
		sb.WriteString(s.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// SectionNames returns the names of the given sections in order.
func SectionNames(sections []Section) []string {
	names := make([]string, 0, len(sections))
	for _, s := range sections {
		names = append(names, s.Name)
	}
	return names
}
