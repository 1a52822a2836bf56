// Package diff produces a structural, section-aware diff between the
// original and customized documents. It is deterministic and side-effect
// free; no semantic comparison of natural language is attempted, only
// line-level structure inside matching sections.
package diff

import (
	"strings"

	"github.com/jonathan/resume-tailor/internal/types"
)

// Compare diffs the customized sections against the originals. Sections are
// matched by name; output order follows the original document, with sections
// that only exist in the customized document appended as added.
func Compare(original, customized []types.Section) *types.DiffResult {
	customizedByName := make(map[string]types.Section, len(customized))
	for _, s := range customized {
		customizedByName[s.Name] = s
	}
	originalNames := make(map[string]bool, len(original))

	result := &types.DiffResult{}
	for _, orig := range original {
		originalNames[orig.Name] = true
		cust, ok := customizedByName[orig.Name]
		if !ok {
			result.Sections = append(result.Sections, types.SectionDiff{
				Section:      orig.Name,
				ChangeType:   types.ChangeRemoved,
				OriginalText: orig.Content,
			})
			continue
		}
		result.Sections = append(result.Sections, diffSection(orig, cust))
	}

	for _, cust := range customized {
		if !originalNames[cust.Name] {
			result.Sections = append(result.Sections, types.SectionDiff{
				Section:    cust.Name,
				ChangeType: types.ChangeAdded,
				NewText:    cust.Content,
			})
		}
	}

	return result
}

// diffSection classifies a section as modified when any line-level change
// exists, unchanged otherwise.
func diffSection(orig, cust types.Section) types.SectionDiff {
	lines := diffLines(splitLines(orig.Content), splitLines(cust.Content))

	changed := false
	for _, l := range lines {
		if l.Type != types.ChangeUnchanged {
			changed = true
			break
		}
	}

	sd := types.SectionDiff{
		Section:    orig.Name,
		ChangeType: types.ChangeUnchanged,
	}
	if changed {
		sd.ChangeType = types.ChangeModified
		sd.OriginalText = orig.Content
		sd.NewText = cust.Content
		sd.Lines = lines
	}
	return sd
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}

// diffLines is a standard longest-common-subsequence line diff. Removed
// lines are emitted before added lines at each divergence point.
func diffLines(a, b []string) []types.LineChange {
	// LCS length table.
	m, n := len(a), len(b)
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []types.LineChange
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			out = append(out, types.LineChange{Type: types.ChangeUnchanged, Text: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, types.LineChange{Type: types.ChangeRemoved, Text: a[i]})
			i++
		default:
			out = append(out, types.LineChange{Type: types.ChangeAdded, Text: b[j]})
			j++
		}
	}
	for ; i < m; i++ {
		out = append(out, types.LineChange{Type: types.ChangeRemoved, Text: a[i]})
	}
	for ; j < n; j++ {
		out = append(out, types.LineChange{Type: types.ChangeAdded, Text: b[j]})
	}
	return out
}
