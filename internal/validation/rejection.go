package validation

import (
	"fmt"
	"strings"

	"github.com/jonathan/resume-tailor/internal/types"
)

// Rejection explains why a stage's output failed its gate. A nil *Rejection
// means the output was accepted.
type Rejection struct {
	Stage   types.Stage
	Reasons []string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("stage %s rejected: %s", r.Stage, r.Reason())
}

// Reason joins all rejection reasons into the single explanation that is
// appended to the retry prompt.
func (r *Rejection) Reason() string {
	return strings.Join(r.Reasons, "; ")
}

func newRejection(stage types.Stage) *Rejection {
	return &Rejection{Stage: stage}
}

func (r *Rejection) addf(format string, args ...any) {
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// orNil collapses an empty rejection to the accepted (nil) result.
func (r *Rejection) orNil() *Rejection {
	if len(r.Reasons) == 0 {
		return nil
	}
	return r
}
