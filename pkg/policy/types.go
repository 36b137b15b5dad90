package policy

import (
	"time"

	"github.com/vizi2000/maicrosoft/pkg/plan"
)

// Severity represents the severity level of a policy finding.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that block compilation.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a finding of this severity invalidates a
// plan.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents one governance rule with its Rego code.
type Policy struct {
	// Name is the unique rule id reported in findings.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for findings.
	Severity Severity `json:"severity"`

	// Enabled indicates if the rule is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Finding is one failed rule instance. A rule may produce several
// findings against the same plan, one per offending node.
type Finding struct {
	// Rule is the name of the policy that produced the finding.
	Rule string `json:"rule"`

	// Message is a human-readable description of the failure.
	Message string `json:"message"`

	// NodeID names the offending node when the rule points at one.
	NodeID string `json:"node_id,omitempty"`

	// Severity is the finding severity level.
	Severity Severity `json:"severity"`
}

// Input is the document handed to Rego evaluation. The plan marshals
// into its document shape, so rules address input.plan.nodes,
// input.plan.settings and so on.
type Input struct {
	// Plan is the plan under evaluation.
	Plan *plan.Plan `json:"plan"`

	// Context provides additional evaluation context.
	Context *EvalContext `json:"context"`
}

// EvalContext provides context information for policy evaluation.
type EvalContext struct {
	// Environment is the environment the plan targets.
	Environment string `json:"environment,omitempty"`

	// Operation is the operation being performed.
	Operation string `json:"operation,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// Bundle represents a collection of related policies distributed as
// one JSON document.
type Bundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}
