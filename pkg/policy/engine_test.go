package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/plan"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func basePlan(nodes ...plan.Node) *plan.Plan {
	return &plan.Plan{
		Metadata: plan.Metadata{ID: "wf-test", Name: "Test Workflow", Version: "1.0.0"},
		Settings: plan.Settings{AllowFallback: true, RiskLevel: plan.RiskLow},
		Trigger:  plan.Trigger{Type: plan.TriggerWebhook},
		Nodes:    nodes,
	}
}

func primitiveNode(id, primitiveID string) plan.Node {
	pid := primitiveID
	return plan.Node{ID: id, PrimitiveID: &pid}
}

func fallbackNode(id, code string) plan.Node {
	return plan.Node{
		ID: id,
		Fallback: &plan.Fallback{
			Language: plan.LanguageJavaScript,
			Code:     code,
		},
	}
}

func findingsForRule(findings []Finding, rule string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Rule == rule {
			out = append(out, f)
		}
	}
	return out
}

func TestNewEngine(t *testing.T) {
	eng := testEngine(t)

	policies := eng.ListPolicies()
	if len(policies) != 6 {
		t.Fatalf("Expected 6 built-in policies, got %d", len(policies))
	}

	expected := []string{
		"fallback-budget",
		"fallback-usage",
		"high-risk-fallback",
		"manual-trigger-review",
		"node-budget",
		"unsafe-fallback-code",
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("Expected policy %s at position %d, got %s", name, i, policies[i].Name)
		}
		if !policies[i].Enabled {
			t.Errorf("Expected built-in policy %s to be enabled", name)
		}
	}
}

func TestEvaluatePlan_CleanPlan(t *testing.T) {
	eng := testEngine(t)

	p := basePlan(
		primitiveNode("fetch", "P001"),
		primitiveNode("store", "P002"),
	)

	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("Expected no findings for a clean plan, got: %+v", findings)
	}
}

func TestEvaluatePlan_FallbackUsage(t *testing.T) {
	eng := testEngine(t)

	p := basePlan(
		primitiveNode("fetch", "P001"),
		fallbackNode("custom", "return input"),
	)

	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("Expected exactly 1 finding, got %d: %+v", len(findings), findings)
	}
	f := findings[0]
	if f.Rule != "fallback-usage" {
		t.Errorf("Expected rule fallback-usage, got %s", f.Rule)
	}
	if f.Severity != SeverityInfo {
		t.Errorf("Expected info severity, got %s", f.Severity)
	}
	if f.NodeID != "custom" {
		t.Errorf("Expected node custom, got %q", f.NodeID)
	}
}

func TestEvaluatePlan_FallbackBudget(t *testing.T) {
	eng := testEngine(t)

	p := basePlan(
		fallbackNode("f1", "return 1"),
		fallbackNode("f2", "return 2"),
		fallbackNode("f3", "return 3"),
		fallbackNode("f4", "return 4"),
	)

	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	budget := findingsForRule(findings, "fallback-budget")
	if len(budget) != 1 {
		t.Fatalf("Expected exactly 1 budget finding, got %d: %+v", len(budget), findings)
	}
	if budget[0].Severity != SeverityError {
		t.Errorf("Expected error severity, got %s", budget[0].Severity)
	}
	if !budget[0].Severity.Blocking() {
		t.Errorf("Expected the budget finding to block")
	}

	usage := findingsForRule(findings, "fallback-usage")
	if len(usage) != 4 {
		t.Errorf("Expected 4 usage findings, got %d", len(usage))
	}
}

func TestEvaluatePlan_UnsafeFallbackCode(t *testing.T) {
	eng := testEngine(t)

	p := basePlan(
		fallbackNode("custom", "const out = eval(input.expr); return out"),
	)

	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	unsafe := findingsForRule(findings, "unsafe-fallback-code")
	if len(unsafe) != 1 {
		t.Fatalf("Expected exactly 1 unsafe-code finding, got %d: %+v", len(unsafe), findings)
	}
	f := unsafe[0]
	if f.NodeID != "custom" {
		t.Errorf("Expected node custom, got %q", f.NodeID)
	}
	if f.Severity != SeverityError {
		t.Errorf("Expected error severity, got %s", f.Severity)
	}
}

func TestEvaluatePlan_HighRiskFallback(t *testing.T) {
	eng := testEngine(t)

	p := basePlan(fallbackNode("custom", "return input"))
	p.Settings.RiskLevel = plan.RiskHigh

	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	risk := findingsForRule(findings, "high-risk-fallback")
	if len(risk) != 1 {
		t.Fatalf("Expected exactly 1 high-risk finding, got %d: %+v", len(risk), findings)
	}
	if risk[0].Severity != SeverityError {
		t.Errorf("Expected error severity, got %s", risk[0].Severity)
	}
	if risk[0].NodeID != "custom" {
		t.Errorf("Expected node custom, got %q", risk[0].NodeID)
	}
}

func TestEvaluatePlan_ManualTriggerReview(t *testing.T) {
	eng := testEngine(t)

	p := basePlan(primitiveNode("fetch", "P001"))
	p.Settings.RiskLevel = plan.RiskHigh
	p.Trigger.Type = plan.TriggerManual

	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("Expected exactly 1 finding, got %d: %+v", len(findings), findings)
	}
	f := findings[0]
	if f.Rule != "manual-trigger-review" {
		t.Errorf("Expected rule manual-trigger-review, got %s", f.Rule)
	}
	if f.Severity != SeverityWarning {
		t.Errorf("Expected warning severity, got %s", f.Severity)
	}
}

func TestEvaluatePlan_NodeBudget(t *testing.T) {
	eng := testEngine(t)

	nodes := make([]plan.Node, 0, 51)
	for i := 0; i < 51; i++ {
		nodes = append(nodes, primitiveNode(fmt.Sprintf("n%02d", i), "P010"))
	}
	p := basePlan(nodes...)

	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	budget := findingsForRule(findings, "node-budget")
	if len(budget) != 1 {
		t.Fatalf("Expected exactly 1 node-budget finding, got %d: %+v", len(budget), findings)
	}
	if budget[0].Severity != SeverityWarning {
		t.Errorf("Expected warning severity, got %s", budget[0].Severity)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := testEngine(t)
	p := basePlan(fallbackNode("custom", "return input"))

	if err := eng.DisablePolicy("fallback-usage"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("Expected no findings with the rule disabled, got: %+v", findings)
	}

	if err := eng.EnablePolicy("fallback-usage"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	findings, err = eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(findings) != 1 {
		t.Errorf("Expected 1 finding with the rule re-enabled, got: %+v", findings)
	}

	if err := eng.DisablePolicy("no-such-rule"); err == nil {
		t.Errorf("Expected an error for an unknown rule")
	}
}

func TestEvaluatePlan_Deterministic(t *testing.T) {
	eng := testEngine(t)

	p := basePlan(
		fallbackNode("f1", "return 1"),
		fallbackNode("f2", "const out = eval(x); return out"),
		fallbackNode("f3", "return 3"),
		fallbackNode("f4", "return 4"),
	)
	p.Settings.RiskLevel = plan.RiskHigh
	p.Trigger.Type = plan.TriggerManual

	first, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("Expected findings for a plan this messy")
	}

	for i := 0; i < 5; i++ {
		next, err := eng.EvaluatePlan(context.Background(), p)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("Run %d differed:\nfirst: %+v\nnext:  %+v", i, first, next)
		}
	}
}

func TestLoadPolicies_CustomRego(t *testing.T) {
	eng := testEngine(t)

	dir := t.TempDir()
	custom := `# Plans must carry a description so reviewers know what they do.
package custom.policies.descriptions

import rego.v1

deny contains violation if {
	not input.plan.metadata.description
	violation := "plans must carry a description"
}
`
	path := filepath.Join(dir, "require-description.rego")
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := eng.GetPolicy("require-description"); err != nil {
		t.Fatalf("Expected the custom policy to be loaded, got: %v", err)
	}

	p := basePlan(primitiveNode("fetch", "P001"))
	findings, err := eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	custom1 := findingsForRule(findings, "require-description")
	if len(custom1) != 1 {
		t.Fatalf("Expected exactly 1 custom finding, got %d: %+v", len(custom1), findings)
	}
	if custom1[0].Message != "plans must carry a description" {
		t.Errorf("Expected the deny string as the message, got: %s", custom1[0].Message)
	}
	if custom1[0].Severity != SeverityWarning {
		t.Errorf("Expected the loader default severity, got %s", custom1[0].Severity)
	}

	p.Metadata.Description = "Fetches orders hourly"
	findings, err = eng.EvaluatePlan(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(findingsForRule(findings, "require-description")) != 0 {
		t.Errorf("Expected no finding once a description is present, got: %+v", findings)
	}
}

func TestGetPolicy(t *testing.T) {
	eng := testEngine(t)

	p, err := eng.GetPolicy("fallback-budget")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if p.Severity != SeverityError {
		t.Errorf("Expected error severity, got %s", p.Severity)
	}

	if _, err := eng.GetPolicy("missing"); err == nil {
		t.Errorf("Expected an error for an unknown policy")
	}
}
