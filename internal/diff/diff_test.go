package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-tailor/internal/types"
)

func TestCompareIdenticalDocuments(t *testing.T) {
	sections := []types.Section{
		{Name: "Header", Content: "Jane Doe\njane@example.com"},
		{Name: "Experience", Content: "Built systems\nLed a team"},
	}

	result := Compare(sections, sections)
	require.Len(t, result.Sections, 2)
	for _, s := range result.Sections {
		assert.Equal(t, types.ChangeUnchanged, s.ChangeType)
		assert.Empty(t, s.Lines)
	}
	assert.False(t, result.Changed())
}

func TestCompareModifiedSection(t *testing.T) {
	original := []types.Section{
		{Name: "Skills", Content: "Go\nPython\nSQL"},
	}
	customized := []types.Section{
		{Name: "Skills", Content: "Go\nKubernetes\nSQL"},
	}

	result := Compare(original, customized)
	require.Len(t, result.Sections, 1)
	sd := result.Sections[0]
	assert.Equal(t, types.ChangeModified, sd.ChangeType)
	assert.True(t, result.Changed())

	// LCS keeps the shared lines and emits removed before added at the
	// divergence point.
	expected := []types.LineChange{
		{Type: types.ChangeUnchanged, Text: "Go"},
		{Type: types.ChangeRemoved, Text: "Python"},
		{Type: types.ChangeAdded, Text: "Kubernetes"},
		{Type: types.ChangeUnchanged, Text: "SQL"},
	}
	assert.Equal(t, expected, sd.Lines)
}

func TestCompareAddedAndRemovedSections(t *testing.T) {
	original := []types.Section{
		{Name: "Header", Content: "Jane Doe"},
		{Name: "Objective", Content: "Seeking a role"},
	}
	customized := []types.Section{
		{Name: "Header", Content: "Jane Doe"},
		{Name: "Summary", Content: "Backend engineer"},
	}

	result := Compare(original, customized)
	require.Len(t, result.Sections, 3)

	// Original order first, additions appended.
	assert.Equal(t, "Header", result.Sections[0].Section)
	assert.Equal(t, types.ChangeUnchanged, result.Sections[0].ChangeType)

	assert.Equal(t, "Objective", result.Sections[1].Section)
	assert.Equal(t, types.ChangeRemoved, result.Sections[1].ChangeType)
	assert.Equal(t, "Seeking a role", result.Sections[1].OriginalText)

	assert.Equal(t, "Summary", result.Sections[2].Section)
	assert.Equal(t, types.ChangeAdded, result.Sections[2].ChangeType)
	assert.Equal(t, "Backend engineer", result.Sections[2].NewText)
}

func TestCompareOutputOrderFollowsOriginal(t *testing.T) {
	original := []types.Section{
		{Name: "A", Content: "a"},
		{Name: "B", Content: "b"},
		{Name: "C", Content: "c"},
	}
	// Customized arrives in a different order; the diff must not care.
	customized := []types.Section{
		{Name: "C", Content: "c"},
		{Name: "A", Content: "a"},
		{Name: "B", Content: "b2"},
	}

	result := Compare(original, customized)
	require.Len(t, result.Sections, 3)
	assert.Equal(t, "A", result.Sections[0].Section)
	assert.Equal(t, "B", result.Sections[1].Section)
	assert.Equal(t, "C", result.Sections[2].Section)
	assert.Equal(t, types.ChangeModified, result.Sections[1].ChangeType)
}

func TestCompareIsDeterministic(t *testing.T) {
	original := []types.Section{
		{Name: "Experience", Content: "one\ntwo\nthree"},
	}
	customized := []types.Section{
		{Name: "Experience", Content: "one\n2\nthree\nfour"},
	}

	first := Compare(original, customized)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compare(original, customized))
	}
}

func TestDiffLinesTrailingNewlineInsensitive(t *testing.T) {
	a := []types.Section{{Name: "S", Content: "line\n"}}
	b := []types.Section{{Name: "S", Content: "line"}}

	result := Compare(a, b)
	require.Len(t, result.Sections, 1)
	assert.Equal(t, types.ChangeUnchanged, result.Sections[0].ChangeType)
}
