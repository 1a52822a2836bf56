// Package schemas provides JSON Schema validation for structured model
// outputs. The model boundary is the one place untyped data enters the
// system; every stage response is validated here before it is unmarshalled
// into domain types.
package schemas

import (
	"embed"
	"fmt"

	"github.com/jonathan/resume-tailor/internal/types"
)

//go:embed *.json
var schemaFiles embed.FS

// schema file names per stage. The implement stage schema describes one
// fanned-out section rewrite, not the assembled result.
var stageSchemas = map[types.Stage]string{
	types.StageEvaluate:  "evaluation.json",
	types.StagePlan:      "plan.json",
	types.StageImplement: "section_rewrite.json",
	types.StageVerify:    "verification.json",
}

// ForStage returns the JSON Schema source for a stage's expected output.
func ForStage(stage types.Stage) (string, error) {
	name, ok := stageSchemas[stage]
	if !ok {
		return "", fmt.Errorf("no schema registered for stage %q", stage)
	}
	data, err := schemaFiles.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return string(data), nil
}

// MustForStage returns the schema for a stage, panicking if it is missing.
// Use this only at initialization time.
func MustForStage(stage types.Stage) string {
	s, err := ForStage(stage)
	if err != nil {
		panic(fmt.Sprintf("failed to load stage schema: %v", err))
	}
	return s
}
