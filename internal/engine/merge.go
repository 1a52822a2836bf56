package engine

import (
	"github.com/jonathan/resume-tailor/internal/scheduler"
	"github.com/jonathan/resume-tailor/internal/types"
)

// mergeSections assembles the customized document from the fan-out results,
// walking the original section order so the merge is deterministic. A
// section without a successful rewrite keeps its original content and is
// recorded as carried over.
func mergeSections(original []types.Section, results map[string]*scheduler.TaskResult) *types.ImplementationResult {
	impl := &types.ImplementationResult{
		Sections: make([]types.Section, 0, len(original)),
	}

	for _, section := range original {
		res, ok := results[section.Name]
		if !ok {
			// Not planned for change; passes through untouched.
			impl.Sections = append(impl.Sections, section)
			continue
		}

		if res.Status == scheduler.TaskSucceeded {
			rewrite := res.Value.(*types.SectionRewrite)
			impl.Sections = append(impl.Sections, types.Section{
				Name:    section.Name,
				Content: rewrite.Content,
			})
			impl.ChangeLog = append(impl.ChangeLog, types.SectionChange{
				Section: section.Name,
				Summary: rewrite.Summary,
			})
			continue
		}

		impl.Sections = append(impl.Sections, section)
		impl.CarriedOver = append(impl.CarriedOver, section.Name)
	}

	return impl
}
