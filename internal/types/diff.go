package types

// ChangeType classifies how a section or line differs between the original
// and customized documents.
type ChangeType string

// Change type constants for diff entries.
const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeModified  ChangeType = "modified"
	ChangeUnchanged ChangeType = "unchanged"
)

// LineChange is one line-level entry of a section diff.
type LineChange struct {
	Type ChangeType `json:"type"`
	Text string     `json:"text"`
}

// SectionDiff describes how one section changed.
type SectionDiff struct {
	Section      string       `json:"section"`
	ChangeType   ChangeType   `json:"change_type"`
	OriginalText string       `json:"original_text,omitempty"`
	NewText      string       `json:"new_text,omitempty"`
	Lines        []LineChange `json:"lines,omitempty"`
}

// DiffResult is the ordered, section-aware structural diff between the
// original and customized documents.
type DiffResult struct {
	Sections []SectionDiff `json:"sections"`
}

// Changed reports whether any section differs.
func (d *DiffResult) Changed() bool {
	for _, s := range d.Sections {
		if s.ChangeType != ChangeUnchanged {
			return true
		}
	}
	return false
}
