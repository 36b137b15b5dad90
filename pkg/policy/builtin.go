package policy

import (
	"time"
)

// BuiltinPolicies returns the built-in governance rules.
func BuiltinPolicies() []Policy {
	return []Policy{
		nodeBudgetPolicy(),
		fallbackBudgetPolicy(),
		fallbackUsagePolicy(),
		unsafeFallbackCodePolicy(),
		highRiskFallbackPolicy(),
		manualTriggerReviewPolicy(),
	}
}

// nodeBudgetPolicy flags plans that have grown past the point where
// they should be split.
func nodeBudgetPolicy() Policy {
	return Policy{
		Name:        "node-budget",
		Description: "Flags plans with more than 50 nodes, which should be split into smaller workflows",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"sizing"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package maicrosoft.policies.node_budget

import rego.v1

deny contains violation if {
	node_count := count(input.plan.nodes)
	node_count > 50
	violation := {
		"message": sprintf("plan has %d nodes, plans above 50 nodes should be split", [node_count]),
		"severity": "warning",
	}
}
`,
	}
}

// fallbackBudgetPolicy bounds the number of fallback blocks a plan
// may carry.
func fallbackBudgetPolicy() Policy {
	return Policy{
		Name:        "fallback-budget",
		Description: "Rejects plans with more than 3 fallback blocks",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"fallback", "governance"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package maicrosoft.policies.fallback_budget

import rego.v1

fallback_nodes contains node.id if {
	some node in input.plan.nodes
	node.fallback
}

deny contains violation if {
	used := count(fallback_nodes)
	used > 3
	violation := {
		"message": sprintf("plan uses %d fallback blocks, at most 3 are allowed", [used]),
		"severity": "error",
	}
}
`,
	}
}

// fallbackUsagePolicy surfaces every fallback block for review.
func fallbackUsagePolicy() Policy {
	return Policy{
		Name:        "fallback-usage",
		Description: "Reports each node that relies on a fallback block instead of a vetted primitive",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"fallback"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package maicrosoft.policies.fallback_usage

import rego.v1

deny contains violation if {
	some node in input.plan.nodes
	node.fallback
	violation := {
		"message": sprintf("node %s relies on a fallback block instead of a vetted primitive", [node.id]),
		"severity": "info",
		"node": node.id,
	}
}
`,
	}
}

// unsafeFallbackCodePolicy rejects fallback code that reaches for
// dynamic evaluation.
func unsafeFallbackCodePolicy() Policy {
	return Policy{
		Name:        "unsafe-fallback-code",
		Description: "Rejects fallback code containing dynamic evaluation calls",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"fallback", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package maicrosoft.policies.unsafe_code

import rego.v1

dangerous := ["eval(", "exec(", "new Function"]

deny contains violation if {
	some node in input.plan.nodes
	code := node.fallback.code
	some token in dangerous
	contains(code, token)
	violation := {
		"message": sprintf("fallback code on node %s contains dangerous call %s", [node.id, token]),
		"severity": "error",
		"node": node.id,
	}
}
`,
	}
}

// highRiskFallbackPolicy keeps unvetted code out of high risk plans.
func highRiskFallbackPolicy() Policy {
	return Policy{
		Name:        "high-risk-fallback",
		Description: "Rejects fallback blocks in plans declared high risk",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"fallback", "risk"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package maicrosoft.policies.risk

import rego.v1

deny contains violation if {
	input.plan.settings.risk_level == "high"
	some node in input.plan.nodes
	node.fallback
	violation := {
		"message": sprintf("high risk plans may not use fallback code, node %s has a fallback block", [node.id]),
		"severity": "error",
		"node": node.id,
	}
}
`,
	}
}

// manualTriggerReviewPolicy asks for an auditable trigger on high
// risk plans.
func manualTriggerReviewPolicy() Policy {
	return Policy{
		Name:        "manual-trigger-review",
		Description: "Flags high risk plans that rely on manual triggering",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"risk", "trigger"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package maicrosoft.policies.trigger

import rego.v1

deny contains violation if {
	input.plan.trigger.type == "manual"
	input.plan.settings.risk_level == "high"
	violation := {
		"message": "high risk plans should use an auditable trigger instead of manual runs",
		"severity": "warning",
	}
}
`,
	}
}
