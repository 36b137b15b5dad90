// Package policy provides Open Policy Agent (OPA) integration for
// plan governance.
//
// Plans that pass structural validation still have to clear the
// organization's governance rules before they compile: size limits,
// fallback usage limits, and risk classification rules. This package
// expresses those rules in Rego and evaluates them with OPA.
//
// # Architecture
//
// The policy system consists of three main components:
//
//  1. Engine - Compiles and evaluates Rego policies against plans
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Built-in Policies - Pre-defined rules for common governance requirements
//
// # Usage
//
// Creating a policy engine and evaluating a plan:
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	findings, err := eng.EvaluatePlan(ctx, p)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, f := range findings {
//	    fmt.Printf("rule %s: %s\n", f.Rule, f.Message)
//	}
//
// Loading custom policies:
//
//	err = eng.LoadPolicies(ctx, []string{"/etc/maicrosoft/policies"})
//
// # Built-in Policies
//
// The following rules are included by default:
//
//  1. node-budget - Flags plans with more than 50 nodes
//  2. fallback-budget - Rejects plans with more than 3 fallback blocks
//  3. fallback-usage - Reports every node that relies on a fallback block
//  4. unsafe-fallback-code - Rejects dynamic evaluation in fallback code
//  5. high-risk-fallback - Rejects fallback blocks in high risk plans
//  6. manual-trigger-review - Flags high risk plans with manual triggers
//
// # Custom Policies
//
// Custom rules are written in Rego against the plan document. The
// plan is available under input.plan in its document shape:
//
//	package custom.policies.naming
//
//	import rego.v1
//
//	deny contains violation if {
//	    some node in input.plan.nodes
//	    not regex.match("^[a-z][a-z0-9_]*$", node.id)
//
//	    violation := {
//	        "message": sprintf("node id %s is not snake_case", [node.id]),
//	        "severity": "warning",
//	        "node": node.id,
//	    }
//	}
//
// A deny entry may be a plain string or an object with message,
// severity, and node keys. The policy's default severity applies when
// an entry does not carry its own.
//
// # Severity Levels
//
// Findings have four severity levels:
//
//   - info: Informational findings
//   - warning: Findings that should be reviewed but don't block compilation
//   - error: Findings that block compilation
//   - critical: Severe findings requiring immediate attention
//
// # Determinism
//
// Rules are evaluated in name order and OPA returns deny sets in
// canonical order, so repeated evaluations of the same plan produce
// byte-identical findings.
//
// # Hot Reload
//
// The loader supports watching policy files for changes and
// reloading automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.LoadPolicies(ctx, paths)
//	})
package policy
