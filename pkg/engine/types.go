package engine

import (
	"time"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/targets"
	"github.com/vizi2000/maicrosoft/pkg/validate"
)

// ValidationReport is the outcome of validating one plan document.
type ValidationReport struct {
	// Plan is the parsed plan, nil when the document was unparseable.
	Plan *plan.Plan `json:"-"`

	// PlanID is the plan id from the document metadata, empty when the
	// document was unparseable.
	PlanID string `json:"plan_id,omitempty"`

	// Target is the compilation target the plan was checked against.
	Target string `json:"target"`

	// Result carries the verdict and every violation found.
	Result *validate.Result `json:"result"`

	// Duration is how long the validation run took.
	Duration time.Duration `json:"duration_ns"`
}

// Valid reports whether the plan passed validation.
func (r *ValidationReport) Valid() bool {
	return r.Result != nil && r.Result.Valid
}

// CompileResult is the outcome of a compile request: the validation
// report, and the artifact when the plan was valid.
type CompileResult struct {
	// Report is the validation run the compile decision was based on.
	Report *ValidationReport `json:"report"`

	// Artifact is the compiled workflow, nil when the plan was invalid.
	Artifact *targets.Artifact `json:"artifact,omitempty"`
}
