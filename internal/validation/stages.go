// Package validation implements the stage gates of the customization
// pipeline. Each validator is pure and deterministic: it checks a stage's
// structured output against domain invariants and either accepts it or
// rejects it with an explanation the orchestrator feeds back into the retry
// prompt. Violations always reject; there is no soft-warning path.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/resume-tailor/internal/types"
)

// validate performs struct-tag checks (ranges, minimum list lengths).
// Cross-field rules are explicit code below.
var validate = validator.New()

// MinSectionsTouched is the minimum number of sections a plan must change.
const MinSectionsTouched = 2

// ValidateEvaluation checks an evaluation result. Rules:
// 0 <= match_score <= 100, at least 3 strengths, at least 2 weaknesses,
// per-section sub-scores in range.
func ValidateEvaluation(result *types.EvaluationResult) *Rejection {
	r := newRejection(types.StageEvaluate)

	if err := validate.Struct(result); err != nil {
		r.addTagErrors(err)
	}
	for name, score := range result.SectionScores {
		if score.Score < 0 || score.Score > 100 {
			r.addf("section %q score %d is out of range [0,100]", name, score.Score)
		}
	}

	return r.orNil()
}

// ValidatePlan checks a plan against the evaluation that produced it. Rules:
// evaluation.match_score <= target_score <= 100, at least 2 sections
// touched, at least half of the evaluation's missing terms addressed.
func ValidatePlan(plan *types.Plan, eval *types.EvaluationResult) *Rejection {
	r := newRejection(types.StagePlan)

	if err := validate.Struct(plan); err != nil {
		r.addTagErrors(err)
	}
	if eval != nil && plan.TargetScore < eval.MatchScore {
		r.addf("target_score %d is below the evaluation match_score %d", plan.TargetScore, eval.MatchScore)
	}
	if len(plan.SectionChanges) < MinSectionsTouched {
		r.addf("plan touches %d sections, need at least %d", len(plan.SectionChanges), MinSectionsTouched)
	}
	if eval != nil && len(eval.MissingTerms) > 0 {
		addressed := countAddressedTerms(plan, eval.MissingTerms)
		required := (len(eval.MissingTerms) + 1) / 2
		if addressed < required {
			r.addf("plan addresses %d of %d missing terms, need at least %d", addressed, len(eval.MissingTerms), required)
		}
	}

	return r.orNil()
}

// ValidateSectionRewrite checks one fanned-out section rewrite against the
// set of section names the plan is allowed to touch.
func ValidateSectionRewrite(rewrite *types.SectionRewrite, allowed map[string]bool) *Rejection {
	r := newRejection(types.StageImplement)

	if err := validate.Struct(rewrite); err != nil {
		r.addTagErrors(err)
	}
	if rewrite.Section != "" && allowed != nil && !allowed[rewrite.Section] {
		r.addf("rewrite targets unknown section %q", rewrite.Section)
	}
	if strings.TrimSpace(rewrite.Content) == "" {
		r.addf("rewrite for section %q has empty content", rewrite.Section)
	}

	return r.orNil()
}

// ValidateImplementation checks the assembled implementation result.
func ValidateImplementation(impl *types.ImplementationResult) *Rejection {
	r := newRejection(types.StageImplement)

	if len(impl.Sections) == 0 {
		r.addf("implementation produced no sections")
	}
	for _, s := range impl.Sections {
		if strings.TrimSpace(s.Content) == "" {
			r.addf("section %q has empty content", s.Name)
		}
	}

	return r.orNil()
}

// ValidateVerification checks a verification result. Rules:
// is_truthful == (len(issues) == 0) and 0 <= final_score <= 100. The
// truthfulness equivalence is an invariant, not a convention; a result that
// claims truthfulness while listing issues is rejected outright.
func ValidateVerification(result *types.VerificationResult) *Rejection {
	r := newRejection(types.StageVerify)

	if err := validate.Struct(result); err != nil {
		r.addTagErrors(err)
	}
	if result.IsTruthful != (len(result.Issues) == 0) {
		r.addf("is_truthful=%t is inconsistent with %d reported issues", result.IsTruthful, len(result.Issues))
	}

	return r.orNil()
}

// countAddressedTerms counts how many missing terms appear in the plan's
// terms_to_add or in a section change description (case-insensitive).
func countAddressedTerms(plan *types.Plan, missing []string) int {
	haystack := make([]string, 0, len(plan.TermsToAdd)+len(plan.SectionChanges))
	for _, t := range plan.TermsToAdd {
		haystack = append(haystack, strings.ToLower(t))
	}
	for _, change := range plan.SectionChanges {
		haystack = append(haystack, strings.ToLower(change))
	}

	count := 0
	for _, term := range missing {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			continue
		}
		for _, h := range haystack {
			if strings.Contains(h, needle) {
				count++
				break
			}
		}
	}
	return count
}

// addTagErrors translates go-playground/validator field errors into
// rejection reasons.
func (r *Rejection) addTagErrors(err error) {
	var fieldErrs validator.ValidationErrors
	if ok := asValidationErrors(err, &fieldErrs); !ok {
		r.addf("invalid result: %v", err)
		return
	}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "gte", "lte":
			r.addf("field %s=%v violates %s=%s", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
		case "min":
			r.addf("field %s needs at least %s entries", fe.Field(), fe.Param())
		case "required":
			r.addf("field %s is required", fe.Field())
		default:
			r.addf("field %s fails constraint %s", fe.Field(), fe.Tag())
		}
	}
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}
