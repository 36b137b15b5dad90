// Package engine wires the plan validation and compilation pipeline
// behind one facade.
//
// # Overview
//
// Agents emit declarative plan documents that assemble pre-vetted
// primitives into a workflow graph. The engine never executes a plan;
// it judges one and, when the plan is valid, compiles it for an
// external workflow engine. A call runs through up to six stages:
//
//  1. Syntax - Parse the document and check it against the plan schema
//  2. Registry - Resolve every node to a known, usable primitive
//  3. Interfaces - Check required inputs and literal input types
//  4. Graph - Reject cycles, dangling and malformed references
//  5. Policies - Evaluate organization rules over the whole plan
//  6. Compatibility - Confirm the target can compile every node
//
// Stages accumulate: a plan with an unknown primitive and a cycle
// reports both. Only a document that cannot be parsed at all stops
// the pipeline early.
//
// # Core Types
//
// The facade works with a small set of types:
//
//   - Engine: The configured pipeline (catalog, policies, targets)
//   - ValidationReport: One validation run with its parsed plan
//   - CompileResult: A validation report plus the compiled artifact
//   - BatchItem: One file's outcome from a batch validation run
//
// Plan documents, violations, primitives, and artifacts are defined in
// the plan, validate, registry, and targets packages; the facade
// returns them unwrapped so callers can inspect stage output directly.
//
// # Validity and Artifacts
//
// A plan is valid exactly when its report carries no error-severity
// violations. Warnings never block compilation. Compile refuses an
// invalid plan by returning the report with a nil artifact; it does
// not return an error, because a rejected plan is a judged outcome,
// not an engine fault. Valid plans compile deterministically: the
// same document and target produce byte-identical artifact content.
//
// # Error Classification
//
// Errors from this package mean the engine could not do its job, not
// that a plan was bad. They are classified for retry logic:
//
//   - Transient: Temporary failures that may succeed on retry
//   - Conflict: State conflicts, such as duplicate catalog ids
//   - Permanent: Non-recoverable faults in configuration or input
//
// A broken validator or compiler invariant surfaces as a permanent
// error with the internal compiler code; it aborts with no partial
// output and is always a defect in the engine, never in the plan:
//
//	if IsInternalCompiler(err) {
//	    // File a bug; the plan did not cause this.
//	}
//
// # Example Usage
//
//	eng, err := engine.New(ctx, engine.Options{}, logger)
//
//	report, err := eng.Validate(ctx, document)
//	if !report.Result.Valid {
//	    // Inspect report.Result.Violations.
//	}
//
//	result, err := eng.Compile(ctx, document, "n8n")
//	if result.Artifact != nil {
//	    // result.Artifact.Content is the workflow definition.
//	}
//
// # Thread Safety
//
// An Engine is safe for concurrent use. Validation runs work on their
// own result against an immutable catalog snapshot, so a catalog
// reload never tears a run in progress.
package engine
