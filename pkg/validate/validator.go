// Package validate runs plan documents through the six-stage
// validation pipeline: schema shape, registry resolution, interface
// conformance, dependency graph analysis, policy rules, and
// compilation compatibility. Stages accumulate violations rather than
// failing fast, so one round-trip shows a submitter every defect;
// only a document that cannot be parsed into a node/edge list at all
// cuts the run short.
package validate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/registry"
)

// PolicyFinding is one failed rule reported by the policy engine.
type PolicyFinding struct {
	Rule     string
	Message  string
	NodeID   string
	Severity Severity
}

// PolicyEngine runs the enabled policy rules against a plan. All
// enabled rules run; no rule short-circuits another.
type PolicyEngine interface {
	EvaluatePlan(ctx context.Context, p *plan.Plan) ([]PolicyFinding, error)
}

// TargetCatalog answers which compilation targets exist and which
// primitives each can compile.
type TargetCatalog interface {
	Has(name string) bool
	Supports(name string, p *registry.Primitive) bool
}

// Options configures a Validator.
type Options struct {
	// MaxNodes bounds plan size so graph analysis stays linear.
	MaxNodes int

	// MaxEdges bounds the declared edge list.
	MaxEdges int

	// Target is the compilation target the compatibility stage checks
	// plans against.
	Target string

	// Policies runs stage 5. Nil disables the stage.
	Policies PolicyEngine

	// Targets answers stage 6 target support questions. Nil skips the
	// target checks; fallback constraints are checked regardless.
	Targets TargetCatalog
}

// DefaultOptions returns the bounds and target used when the caller
// does not override them.
func DefaultOptions() Options {
	return Options{
		MaxNodes: 200,
		MaxEdges: 500,
		Target:   "n8n",
	}
}

// Validator runs the validation pipeline. One Validator is safe for
// concurrent use; every run works on its own result and a single
// registry snapshot taken at the start of the run.
type Validator struct {
	registry *registry.Registry
	schema   *plan.Schema
	opts     Options
	logger   zerolog.Logger
}

// New creates a validator backed by the given registry.
func New(reg *registry.Registry, opts Options, logger zerolog.Logger) (*Validator, error) {
	if reg == nil {
		return nil, fmt.Errorf("validator requires a registry")
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultOptions().MaxNodes
	}
	if opts.MaxEdges <= 0 {
		opts.MaxEdges = DefaultOptions().MaxEdges
	}
	if opts.Target == "" {
		opts.Target = DefaultOptions().Target
	}

	schema, err := plan.NewSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile plan schema: %w", err)
	}

	return &Validator{
		registry: reg,
		schema:   schema,
		opts:     opts,
		logger:   logger.With().Str("component", "validator").Logger(),
	}, nil
}

// Target returns the compilation target this validator checks against.
func (v *Validator) Target() string { return v.opts.Target }

// ValidateDocument runs the full pipeline over a raw plan document.
// The parsed plan is returned alongside the result so callers can
// compile it without re-parsing; it is nil when the document could
// not be parsed at all. A non-nil error means the engine itself could
// not run, not that the plan is invalid.
func (v *Validator) ValidateDocument(ctx context.Context, data []byte) (*plan.Plan, *Result, error) {
	res := newResult()

	doc, docErr := plan.Document(data)
	p, parseErr := plan.Parse(data)
	if parseErr != nil || docErr != nil {
		err := parseErr
		if err == nil {
			err = docErr
		}
		res.addError(CodeSyntaxError, err.Error(), "", "")
		res.finalize()
		return nil, res, nil
	}

	for _, issue := range v.schema.Check(doc) {
		res.addError(CodeSyntaxError, issue.Message, "", issue.Path)
	}
	v.checkStructure(p, res)

	if err := v.runStages(ctx, p, res); err != nil {
		return nil, nil, err
	}

	res.finalize()
	v.logRun(p, res)
	return p, res, nil
}

// ValidatePlan runs the pipeline over an already-constructed plan,
// as submitted by composition tooling. Structural checks the document
// schema would have made are applied against the typed form instead.
func (v *Validator) ValidatePlan(ctx context.Context, p *plan.Plan) (*Result, error) {
	res := newResult()

	v.checkTyped(p, res)
	v.checkStructure(p, res)

	if err := v.runStages(ctx, p, res); err != nil {
		return nil, err
	}

	res.finalize()
	v.logRun(p, res)
	return res, nil
}

// runStages runs stages 2 through 6 in order, accumulating into res.
func (v *Validator) runStages(ctx context.Context, p *plan.Plan, res *Result) error {
	snap := v.registry.Snapshot()
	if snap == nil {
		return registry.ErrNotLoaded
	}

	v.checkRegistry(p, snap, res)
	v.checkInterfaces(p, snap, res)
	v.checkGraph(p, snap, res)
	if err := v.checkPolicies(ctx, p, res); err != nil {
		return err
	}
	v.checkCompatibility(p, snap, res)
	return nil
}

// checkStructure covers the structural rules the document schema
// cannot express: node id uniqueness, a non-empty node list, and the
// size bounds that keep graph analysis cheap.
func (v *Validator) checkStructure(p *plan.Plan, res *Result) {
	if len(p.Nodes) == 0 {
		res.addError(CodeSyntaxError, "plan has no nodes", "", "nodes")
	}
	if len(p.Nodes) > v.opts.MaxNodes {
		res.addError(CodeSyntaxError,
			fmt.Sprintf("plan exceeds the maximum of %d nodes (got %d)", v.opts.MaxNodes, len(p.Nodes)),
			"", "nodes")
	}
	if len(p.Edges) > v.opts.MaxEdges {
		res.addError(CodeSyntaxError,
			fmt.Sprintf("plan exceeds the maximum of %d edges (got %d)", v.opts.MaxEdges, len(p.Edges)),
			"", "edges")
	}

	seen := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if seen[n.ID] {
			res.addError(CodeSyntaxError, fmt.Sprintf("duplicate node id %q", n.ID), n.ID, "")
		}
		seen[n.ID] = true
	}
}

// checkTyped re-applies the document schema's shape rules to a plan
// built programmatically, where no raw document passed through the
// schema stage.
func (v *Validator) checkTyped(p *plan.Plan, res *Result) {
	if p.Metadata.ID == "" {
		res.addError(CodeSyntaxError, "plan metadata is missing an id", "", "metadata.id")
	}
	if p.Metadata.Name == "" {
		res.addError(CodeSyntaxError, "plan metadata is missing a name", "", "metadata.name")
	}
	if err := p.Settings.RiskLevel.Validate(); err != nil {
		res.addError(CodeSyntaxError, err.Error(), "", "settings.risk_level")
	}
	if err := p.Trigger.Type.Validate(); err != nil {
		res.addError(CodeSyntaxError, err.Error(), "", "trigger.type")
	}

	for _, n := range p.Nodes {
		if n.ID == "" {
			res.addError(CodeSyntaxError, "node is missing an id", "", "nodes")
			continue
		}
		if n.PrimitiveID != nil && !plan.PrimitiveIDPattern.MatchString(*n.PrimitiveID) {
			res.addError(CodeSyntaxError,
				fmt.Sprintf("invalid primitive id %q", *n.PrimitiveID), n.ID, "primitive_id")
		}
		if n.Fallback != nil {
			if err := n.Fallback.Language.Validate(); err != nil {
				res.addError(CodeSyntaxError, err.Error(), n.ID, "fallback.language")
			}
			if n.Fallback.Code == "" {
				res.addError(CodeSyntaxError, "fallback code is empty", n.ID, "fallback.code")
			}
		}
	}

	for i, e := range p.Edges {
		if e.FromNode == "" || e.ToNode == "" {
			res.addError(CodeSyntaxError,
				fmt.Sprintf("edge %d is missing an endpoint", i), "", "edges")
		}
	}
}

// logRun records the outcome of a validation run.
func (v *Validator) logRun(p *plan.Plan, res *Result) {
	v.logger.Debug().
		Str("plan", p.Metadata.ID).
		Bool("valid", res.Valid).
		Int("violations", len(res.Violations)).
		Int("warnings", len(res.Warnings)).
		Msg("Validation completed")
}
