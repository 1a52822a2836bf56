package types

// KeyMatch links a term from the target description to the resume evidence
// that supports it.
type KeyMatch struct {
	Term     string `json:"term" validate:"required"`
	Evidence string `json:"evidence"`
}

// SectionScore holds a per-section sub-score from the evaluation stage.
type SectionScore struct {
	Score int    `json:"score" validate:"gte=0,lte=100"`
	Notes string `json:"notes"`
}

// EvaluationResult is the structured output of the Evaluate stage.
type EvaluationResult struct {
	MatchScore    int                     `json:"match_score" validate:"gte=0,lte=100"`
	KeyMatches    []KeyMatch              `json:"key_matches"`
	MissingTerms  []string                `json:"missing_terms"`
	Strengths     []string                `json:"strengths" validate:"min=3"`
	Weaknesses    []string                `json:"weaknesses" validate:"min=2"`
	SectionScores map[string]SectionScore `json:"section_scores"`
}

// Plan is the structured output of the Plan stage. TargetScore must fall
// between the evaluation's match score and 100.
type Plan struct {
	TargetScore     int               `json:"target_score" validate:"gte=0,lte=100"`
	SectionChanges  map[string]string `json:"section_changes"`
	TermsToAdd      []string          `json:"terms_to_add"`
	StructuralNotes []string          `json:"structural_notes"`
	Rationale       map[string]string `json:"rationale"`
}

// SectionRewrite is the model output for a single fanned-out section edit.
type SectionRewrite struct {
	Section string `json:"section" validate:"required"`
	Content string `json:"content" validate:"required"`
	Summary string `json:"summary"`
}

// SectionChange records what the Implement stage did to one section.
type SectionChange struct {
	Section string `json:"section"`
	Summary string `json:"summary"`
}

// ImplementationResult is the assembled output of the Implement stage.
// Sections are in the original document's section order regardless of task
// completion order. CarriedOver lists sections kept unmodified because their
// rewrite task failed or was skipped.
type ImplementationResult struct {
	Sections    []Section       `json:"sections"`
	ChangeLog   []SectionChange `json:"change_log"`
	CarriedOver []string        `json:"carried_over,omitempty"`
}

// Document renders the customized sections back into a single document.
func (r *ImplementationResult) Document() string {
	return JoinSections(r.Sections)
}

// VerificationIssue describes one truthfulness problem found by the Verify
// stage.
type VerificationIssue struct {
	Location    string `json:"location"`
	Severity    string `json:"severity"`
	Explanation string `json:"explanation"`
}

// VerificationResult is the structured output of the Verify stage.
// IsTruthful must equal (len(Issues) == 0); that equivalence is enforced by
// the stage validator, not trusted from the model.
type VerificationResult struct {
	IsTruthful         bool                `json:"is_truthful"`
	Issues             []VerificationIssue `json:"issues"`
	FinalScore         int                 `json:"final_score" validate:"gte=0,lte=100"`
	Improvement        int                 `json:"improvement"`
	SectionAssessments map[string]string   `json:"section_assessments"`
}
