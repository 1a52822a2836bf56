// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/resume-tailor/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintEvaluation outputs a human-readable summary of the evaluation stage.
func (p *Printer) PrintEvaluation(eval *types.EvaluationResult) {
	if eval == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Match score: %d/100\n\n", eval.MatchScore))

	if len(eval.Strengths) > 0 {
		sb.WriteString("Strengths:\n")
		count := min(len(eval.Strengths), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", eval.Strengths[i]))
		}
		if len(eval.Strengths) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(eval.Strengths)-maxItemsToShow))
		}
		sb.WriteString("\n")
	}

	if len(eval.Weaknesses) > 0 {
		sb.WriteString("Weaknesses:\n")
		count := min(len(eval.Weaknesses), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", eval.Weaknesses[i]))
		}
		if len(eval.Weaknesses) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(eval.Weaknesses)-maxItemsToShow))
		}
		sb.WriteString("\n")
	}

	if len(eval.MissingTerms) > 0 {
		terms := strings.Join(eval.MissingTerms, ", ")
		if len(terms) > 45 {
			terms = terms[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("Missing terms: %s\n", terms))
	}

	p.printBox("EVALUATION", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPlan outputs the planned per-section changes.
func (p *Printer) PrintPlan(plan *types.Plan) {
	if plan == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Target score: %d/100\n\n", plan.TargetScore))

	if len(plan.SectionChanges) > 0 {
		sb.WriteString("Section changes:\n")
		shown := 0
		for section, change := range plan.SectionChanges {
			if shown >= maxItemsToShow {
				sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(plan.SectionChanges)-shown))
				break
			}
			if len(change) > 40 {
				change = change[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf("  • %s: %s\n", section, change))
			shown++
		}
		sb.WriteString("\n")
	}

	if len(plan.TermsToAdd) > 0 {
		terms := strings.Join(plan.TermsToAdd, ", ")
		if len(terms) > 45 {
			terms = terms[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("Terms to add: %s\n", terms))
	}

	p.printBox("CUSTOMIZATION PLAN", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintImplementation outputs what the implement stage did to each section.
func (p *Printer) PrintImplementation(impl *types.ImplementationResult) {
	if impl == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Rewrote %d sections:\n\n", len(impl.ChangeLog)))

	count := min(len(impl.ChangeLog), maxItemsToShow)
	for i := 0; i < count; i++ {
		change := impl.ChangeLog[i]
		summary := change.Summary
		if len(summary) > 40 {
			summary = summary[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("• %s\n", change.Section))
		if summary != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", summary))
		}
	}
	if len(impl.ChangeLog) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more sections", len(impl.ChangeLog)-maxItemsToShow))
	}

	if len(impl.CarriedOver) > 0 {
		sb.WriteString(fmt.Sprintf("\nCarried over unmodified: %s\n", strings.Join(impl.CarriedOver, ", ")))
	}

	p.printBox("IMPLEMENTATION", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintVerification outputs the verification verdict and any truthfulness
// issues found.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintVerification(result *types.VerificationResult) {
	if result == nil {
		return
	}

	if result.IsTruthful && len(result.Issues) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4,
			fmt.Sprintf("✅ VERIFIED TRUTHFUL (final score %d/100)", result.FinalScore))
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Final score: %d/100\n", result.FinalScore))
	sb.WriteString(fmt.Sprintf("Found %d issues:\n\n", len(result.Issues)))

	for i, issue := range result.Issues {
		explanation := issue.Explanation
		if len(explanation) > 45 {
			explanation = explanation[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("⚠ %s (%s)\n", issue.Location, issue.Severity))
		sb.WriteString(fmt.Sprintf("  %s\n", explanation))
		if i < len(result.Issues)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("TRUTHFULNESS ISSUES", sb.String())
}

// PrintDiff outputs a per-section summary of the structural diff.
func (p *Printer) PrintDiff(diff *types.DiffResult) {
	if diff == nil {
		return
	}

	var sb strings.Builder
	changed := 0
	for _, section := range diff.Sections {
		if section.ChangeType != types.ChangeUnchanged {
			changed++
		}
	}
	sb.WriteString(fmt.Sprintf("%d of %d sections changed\n\n", changed, len(diff.Sections)))

	for _, section := range diff.Sections {
		if section.ChangeType == types.ChangeUnchanged {
			continue
		}
		added, removed := 0, 0
		for _, line := range section.Lines {
			switch line.Type {
			case types.ChangeAdded:
				added++
			case types.ChangeRemoved:
				removed++
			}
		}
		sb.WriteString(fmt.Sprintf("• %s: %s (+%d/-%d lines)\n",
			section.Section, section.ChangeType, added, removed))
	}

	p.printBox("SECTION DIFF", strings.TrimSuffix(sb.String(), "\n"))
}
