package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/policy"
	"github.com/vizi2000/maicrosoft/pkg/registry"
	"github.com/vizi2000/maicrosoft/pkg/targets"
	"github.com/vizi2000/maicrosoft/pkg/targets/dot"
	"github.com/vizi2000/maicrosoft/pkg/targets/n8n"
	"github.com/vizi2000/maicrosoft/pkg/targets/wasm"
	"github.com/vizi2000/maicrosoft/pkg/validate"
)

// Options configures a new Engine. The zero value loads the builtin
// primitive catalog, the builtin policies, and the builtin targets.
type Options struct {
	// PrimitivesDir loads the catalog from a directory instead of the
	// builtin one.
	PrimitivesDir string

	// PolicyPaths adds policy files or directories on top of the
	// builtin rules.
	PolicyPaths []string

	// PluginsDir loads WASM target plugins from a directory. Missing
	// directories are fine.
	PluginsDir string

	// MaxNodes and MaxEdges bound accepted plan size. Zero keeps the
	// validator defaults.
	MaxNodes int
	MaxEdges int

	// DefaultTarget is used when a request names no target. Empty
	// keeps the validator default.
	DefaultTarget string
}

// Engine is the facade over the catalog, the validator, the policy
// rules, and the compilation targets.
type Engine struct {
	opts     Options
	registry *registry.Registry
	policies *policy.Engine
	targets  *targets.Registry
	plugins  *wasm.Host
	logger   zerolog.Logger

	mu         sync.Mutex
	validators map[string]*validate.Validator
}

// New builds an engine: catalog loaded, policies compiled, builtin
// targets registered, plugins discovered.
func New(ctx context.Context, opts Options, logger zerolog.Logger) (*Engine, error) {
	log := logger.With().Str("component", "engine").Logger()

	reg := registry.New(logger)
	if opts.PrimitivesDir != "" {
		if err := reg.LoadDir(ctx, opts.PrimitivesDir); err != nil {
			return nil, NewPermanentError("failed to load primitive catalog", err).
				WithCode(ErrCodeRegistryLoad).
				WithResource(opts.PrimitivesDir)
		}
	} else {
		if err := reg.LoadBuiltin(ctx); err != nil {
			return nil, NewPermanentError("failed to load builtin catalog", err).
				WithCode(ErrCodeRegistryLoad)
		}
	}

	policies, err := policy.NewEngine(logger)
	if err != nil {
		return nil, NewPermanentError("failed to compile builtin policies", err).
			WithCode(ErrCodeConfigInvalid)
	}
	if len(opts.PolicyPaths) > 0 {
		if err := policies.LoadPolicies(ctx, opts.PolicyPaths); err != nil {
			return nil, NewPermanentError("failed to load policies", err).
				WithCode(ErrCodeConfigInvalid)
		}
	}

	targetReg := targets.NewRegistry(logger)
	if err := targetReg.Register(n8n.New(logger)); err != nil {
		return nil, NewConflictError("failed to register n8n target", err).
			WithCode(ErrCodeDuplicateID)
	}
	if err := targetReg.Register(dot.New(logger)); err != nil {
		return nil, NewConflictError("failed to register dot target", err).
			WithCode(ErrCodeDuplicateID)
	}

	e := &Engine{
		opts:       opts,
		registry:   reg,
		policies:   policies,
		targets:    targetReg,
		logger:     log,
		validators: make(map[string]*validate.Validator),
	}

	if opts.PluginsDir != "" {
		host := wasm.NewHost(nil, logger)
		if _, err := host.Discover(opts.PluginsDir); err != nil {
			return nil, NewPermanentError("failed to load target plugins", err).
				WithCode(ErrCodeConfigInvalid).
				WithResource(opts.PluginsDir)
		}
		if err := host.RegisterAll(targetReg); err != nil {
			return nil, NewConflictError("failed to register target plugin", err).
				WithCode(ErrCodeDuplicateID)
		}
		e.plugins = host
	}

	log.Info().
		Int("primitives", reg.Snapshot().Len()).
		Strs("targets", targetReg.Names()).
		Msg("Engine ready")
	return e, nil
}

// Registry returns the primitive catalog.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Policies returns the policy engine.
func (e *Engine) Policies() *policy.Engine {
	return e.policies
}

// Targets returns the names of every registered compilation target.
func (e *Engine) Targets() []string {
	return e.targets.Names()
}

// RegisterTarget adds a compilation target at runtime.
func (e *Engine) RegisterTarget(t targets.Target) error {
	if err := e.targets.Register(t); err != nil {
		return NewConflictError("failed to register target", err).
			WithCode(ErrCodeDuplicateID).
			WithResource(t.Name())
	}
	return nil
}

// WatchPrimitives reloads the catalog when its directory changes. It
// is a no-op for the builtin catalog.
func (e *Engine) WatchPrimitives(ctx context.Context) error {
	if e.opts.PrimitivesDir == "" {
		return nil
	}
	return e.registry.Watch(ctx, e.opts.PrimitivesDir)
}

// Validate runs the validation pipeline over a plan document against
// the default target.
func (e *Engine) Validate(ctx context.Context, data []byte) (*ValidationReport, error) {
	return e.ValidateForTarget(ctx, data, "")
}

// ValidateForTarget runs the validation pipeline over a plan document
// against the named target. The error is non-nil only when the engine
// itself failed; a rejected plan is reported in the result.
func (e *Engine) ValidateForTarget(ctx context.Context, data []byte, target string) (*ValidationReport, error) {
	v, err := e.validatorFor(target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	p, res, err := v.ValidateDocument(ctx, data)
	if err != nil {
		return nil, NewTransientError("validation pipeline failed", err).
			WithCode(ErrCodePolicyEval).
			WithOperation("validate")
	}
	return e.report(p, v.Target(), res, time.Since(start)), nil
}

// ValidatePlan runs the pipeline over an already-constructed plan, as
// produced by composition tooling.
func (e *Engine) ValidatePlan(ctx context.Context, p *plan.Plan, target string) (*ValidationReport, error) {
	v, err := e.validatorFor(target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := v.ValidatePlan(ctx, p)
	if err != nil {
		return nil, NewTransientError("validation pipeline failed", err).
			WithCode(ErrCodePolicyEval).
			WithOperation("validate")
	}
	return e.report(p, v.Target(), res, time.Since(start)), nil
}

// ValidateFile validates a plan file. CUE files are parsed through the
// CUE frontend; everything else is treated as a YAML or JSON document.
func (e *Engine) ValidateFile(ctx context.Context, path, target string) (*ValidationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewPermanentError("failed to read plan file", err).
			WithCode(ErrCodeParseFailed).
			WithResource(path)
	}

	if strings.EqualFold(filepath.Ext(path), ".cue") {
		v, verr := e.validatorFor(target)
		if verr != nil {
			return nil, verr
		}
		p, perr := plan.ParseCUE(data, filepath.Base(path))
		if perr != nil {
			return e.report(nil, v.Target(), syntaxFailure(perr), 0), nil
		}
		return e.ValidatePlan(ctx, p, target)
	}

	return e.ValidateForTarget(ctx, data, target)
}

// Compile validates a plan document against the named target and, when
// the plan is valid, compiles it. An invalid plan comes back with a
// nil artifact and a nil error; the report says why.
func (e *Engine) Compile(ctx context.Context, data []byte, target string) (*CompileResult, error) {
	name := target
	if name == "" {
		name = e.defaultTarget()
	}
	if !e.targets.Has(name) {
		return nil, NewPermanentError(fmt.Sprintf("unknown compilation target %q", name), nil).
			WithCode(ErrCodeTargetUnknown).
			WithResource(name)
	}

	report, err := e.ValidateForTarget(ctx, data, name)
	if err != nil {
		return nil, err
	}
	return e.compileValidated(ctx, report, name)
}

// CompilePlan validates and compiles an already-constructed plan.
func (e *Engine) CompilePlan(ctx context.Context, p *plan.Plan, target string) (*CompileResult, error) {
	name := target
	if name == "" {
		name = e.defaultTarget()
	}
	if !e.targets.Has(name) {
		return nil, NewPermanentError(fmt.Sprintf("unknown compilation target %q", name), nil).
			WithCode(ErrCodeTargetUnknown).
			WithResource(name)
	}

	report, err := e.ValidatePlan(ctx, p, name)
	if err != nil {
		return nil, err
	}
	return e.compileValidated(ctx, report, name)
}

// CompileFile reads, validates and compiles a plan file, with the same
// CUE handling as ValidateFile. An unparseable CUE document is a judged
// outcome: the result carries the syntax report and no artifact.
func (e *Engine) CompileFile(ctx context.Context, path, target string) (*CompileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewPermanentError("failed to read plan file", err).
			WithCode(ErrCodeParseFailed).
			WithResource(path)
	}

	if strings.EqualFold(filepath.Ext(path), ".cue") {
		name := target
		if name == "" {
			name = e.defaultTarget()
		}
		if !e.targets.Has(name) {
			return nil, NewPermanentError(fmt.Sprintf("unknown compilation target %q", name), nil).
				WithCode(ErrCodeTargetUnknown).
				WithResource(name)
		}

		p, perr := plan.ParseCUE(data, filepath.Base(path))
		if perr != nil {
			v, verr := e.validatorFor(name)
			if verr != nil {
				return nil, verr
			}
			return &CompileResult{Report: e.report(nil, v.Target(), syntaxFailure(perr), 0)}, nil
		}
		return e.CompilePlan(ctx, p, name)
	}

	return e.Compile(ctx, data, target)
}

// compileValidated compiles the plan behind a finished report. The
// report decides: no artifact for invalid plans.
func (e *Engine) compileValidated(ctx context.Context, report *ValidationReport, target string) (*CompileResult, error) {
	if report.Plan == nil || !report.Valid() {
		return &CompileResult{Report: report}, nil
	}

	artifact, err := e.targets.Compile(ctx, target, report.Plan)
	if err != nil {
		var contract *targets.ContractError
		if errors.As(err, &contract) {
			return nil, NewPermanentError("compiler invariant violated", err).
				WithCode(ErrCodeInternalCompiler).
				WithResource(report.PlanID).
				WithOperation("compile")
		}
		return nil, NewPermanentError("compilation failed", err).
			WithCode(ErrCodeCompileFailed).
			WithResource(report.PlanID).
			WithOperation("compile")
	}

	e.logger.Info().
		Str("plan", report.PlanID).
		Str("target", target).
		Str("checksum", artifact.Checksum).
		Msg("Plan compiled")
	return &CompileResult{Report: report, Artifact: artifact}, nil
}

// ListPrimitives lists the catalog, optionally filtered.
func (e *Engine) ListPrimitives(filter registry.ListFilter) []registry.Summary {
	return e.registry.List(filter)
}

// GetPrimitive returns the full definition of one primitive.
func (e *Engine) GetPrimitive(id string) (*registry.Primitive, error) {
	p, err := e.registry.Get(id)
	if err != nil {
		return nil, NewPermanentError("primitive not found", err).
			WithCode(ErrCodeNotFound).
			WithResource(id)
	}
	return p, nil
}

// SearchPrimitives searches the catalog by name, description, and tags.
func (e *Engine) SearchPrimitives(query string, limit int) []registry.SearchResult {
	return e.registry.Search(query, limit)
}

// Close releases plugin runtimes. The engine must not be used after.
func (e *Engine) Close(ctx context.Context) error {
	if e.plugins == nil {
		return nil
	}
	return e.plugins.Close(ctx)
}

// defaultTarget resolves the target used when a request names none.
func (e *Engine) defaultTarget() string {
	if e.opts.DefaultTarget != "" {
		return e.opts.DefaultTarget
	}
	return validate.DefaultOptions().Target
}

// validatorFor returns the cached validator for a target, building it
// on first use.
func (e *Engine) validatorFor(target string) (*validate.Validator, error) {
	if target == "" {
		target = e.defaultTarget()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if v, ok := e.validators[target]; ok {
		return v, nil
	}

	v, err := validate.New(e.registry, validate.Options{
		MaxNodes: e.opts.MaxNodes,
		MaxEdges: e.opts.MaxEdges,
		Target:   target,
		Policies: policyAdapter{engine: e.policies},
		Targets:  e.targets,
	}, e.logger)
	if err != nil {
		return nil, NewPermanentError("failed to build validator", err).
			WithCode(ErrCodeConfigInvalid)
	}
	e.validators[target] = v
	return v, nil
}

// report assembles a ValidationReport.
func (e *Engine) report(p *plan.Plan, target string, res *validate.Result, took time.Duration) *ValidationReport {
	rep := &ValidationReport{
		Plan:     p,
		Target:   target,
		Result:   res,
		Duration: took,
	}
	if p != nil {
		rep.PlanID = p.Metadata.ID
	}
	return rep
}

// syntaxFailure builds the result for a document that never parsed.
func syntaxFailure(err error) *validate.Result {
	return &validate.Result{
		Valid: false,
		Violations: []validate.Violation{{
			Code:     validate.CodeSyntaxError,
			Message:  err.Error(),
			Severity: validate.SeverityError,
		}},
		Warnings: []validate.Violation{},
	}
}

// policyAdapter exposes the policy engine to the validator, folding
// critical findings into the error severity.
type policyAdapter struct {
	engine *policy.Engine
}

func (a policyAdapter) EvaluatePlan(ctx context.Context, p *plan.Plan) ([]validate.PolicyFinding, error) {
	findings, err := a.engine.EvaluatePlan(ctx, p)
	if err != nil {
		return nil, err
	}

	out := make([]validate.PolicyFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, validate.PolicyFinding{
			Rule:     f.Rule,
			Message:  f.Message,
			NodeID:   f.NodeID,
			Severity: policySeverity(f.Severity),
		})
	}
	return out, nil
}

// policySeverity maps policy severities onto violation severities.
func policySeverity(s policy.Severity) validate.Severity {
	switch s {
	case policy.SeverityCritical, policy.SeverityError:
		return validate.SeverityError
	case policy.SeverityWarning:
		return validate.SeverityWarning
	default:
		return validate.SeverityInfo
	}
}
