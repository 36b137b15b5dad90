package compose

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vizi2000/maicrosoft/pkg/plan"
)

func TestEvaluator_Compose(t *testing.T) {
	evaluator := NewEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *Result)
		wantErr   bool
	}{
		{
			name: "plan from dict literal",
			script: `
plan = {
    "metadata": {"id": "wf-hello", "name": "Hello"},
    "trigger": {"type": "manual"},
    "nodes": [{"id": "greet", "primitive_id": "P001"}],
    "edges": [],
}
`,
			input: nil,
			checkFunc: func(t *testing.T, r *Result) {
				if r.Plan.Metadata.ID != "wf-hello" {
					t.Errorf("expected plan id wf-hello, got %s", r.Plan.Metadata.ID)
				}
				if r.Plan.Metadata.Version != "1.0.0" {
					t.Errorf("expected default version 1.0.0, got %s", r.Plan.Metadata.Version)
				}
				if r.Plan.Settings.RiskLevel != plan.RiskLow {
					t.Errorf("expected default risk level low, got %s", r.Plan.Settings.RiskLevel)
				}
				if len(r.Plan.Nodes) != 1 {
					t.Fatalf("expected 1 node, got %d", len(r.Plan.Nodes))
				}
				if r.Plan.Nodes[0].PrimitiveID == nil || *r.Plan.Nodes[0].PrimitiveID != "P001" {
					t.Errorf("expected node primitive P001, got %v", r.Plan.Nodes[0].PrimitiveID)
				}
				if len(r.Document) == 0 {
					t.Error("expected non-empty document")
				}
			},
			wantErr: false,
		},
		{
			name: "helper builtins",
			script: `
plan = {
    "metadata": {"id": "wf-sync", "name": "Sync", "version": "2.1.0"},
    "settings": {"allow_fallback": False, "risk_level": "medium"},
    "trigger": trigger("schedule", config={"cron": "0 2 * * *"}),
    "nodes": [
        node("fetch", primitive="P001", inputs={"url": "https://api.example.com/items"}),
        node("store", primitive="P004", inputs={"data": "{{ ref: fetch.body }}"}),
    ],
    "edges": [edge("fetch", "store")],
}
`,
			input: nil,
			checkFunc: func(t *testing.T, r *Result) {
				if r.Plan.Trigger.Type != plan.TriggerSchedule {
					t.Errorf("expected schedule trigger, got %s", r.Plan.Trigger.Type)
				}
				if cron, ok := r.Plan.Trigger.ConfigValue("cron"); !ok || cron != "0 2 * * *" {
					t.Errorf("expected cron config, got %v", cron)
				}
				if r.Plan.Settings.RiskLevel != plan.RiskMedium {
					t.Errorf("expected risk level medium, got %s", r.Plan.Settings.RiskLevel)
				}
				if len(r.Plan.Nodes) != 2 {
					t.Fatalf("expected 2 nodes, got %d", len(r.Plan.Nodes))
				}
				if r.Plan.Nodes[1].Inputs["data"].Kind != plan.ValueReference {
					t.Errorf("expected reference input, got %s", r.Plan.Nodes[1].Inputs["data"].Kind)
				}
				if len(r.Plan.Edges) != 1 || r.Plan.Edges[0].FromNode != "fetch" || r.Plan.Edges[0].ToNode != "store" {
					t.Errorf("unexpected edges: %v", r.Plan.Edges)
				}
			},
			wantErr: false,
		},
		{
			name: "generated fan-out",
			script: `
def shard_nodes(count):
    return [node("shard_" + str(i), primitive="P002", inputs={"index": i}) for i in range(count)]

plan = {
    "metadata": {"id": "wf-shards", "name": "Sharded"},
    "trigger": trigger("manual"),
    "nodes": [node("seed", primitive="P001")] + shard_nodes(4),
    "edges": [edge("seed", "shard_" + str(i)) for i in range(4)],
}
`,
			input: nil,
			checkFunc: func(t *testing.T, r *Result) {
				if len(r.Plan.Nodes) != 5 {
					t.Fatalf("expected 5 nodes, got %d", len(r.Plan.Nodes))
				}
				if r.Plan.Nodes[2].ID != "shard_1" {
					t.Errorf("expected node shard_1 at index 2, got %s", r.Plan.Nodes[2].ID)
				}
				if len(r.Plan.Edges) != 4 {
					t.Errorf("expected 4 edges, got %d", len(r.Plan.Edges))
				}
			},
			wantErr: false,
		},
		{
			name: "input variables",
			script: `
plan = {
    "metadata": {"id": "wf-deploy-" + env, "name": "Deploy to " + env},
    "trigger": trigger("webhook", config={"path": "/deploy/" + env}),
    "nodes": [node("notify_" + str(i), primitive="P007") for i in range(replicas)],
    "edges": [],
}
`,
			input: map[string]interface{}{
				"env":      "prod",
				"replicas": 3,
			},
			checkFunc: func(t *testing.T, r *Result) {
				if r.Plan.Metadata.ID != "wf-deploy-prod" {
					t.Errorf("expected plan id wf-deploy-prod, got %s", r.Plan.Metadata.ID)
				}
				if len(r.Plan.Nodes) != 3 {
					t.Errorf("expected 3 nodes, got %d", len(r.Plan.Nodes))
				}
			},
			wantErr: false,
		},
		{
			name: "fallback node",
			script: `
plan = {
    "metadata": {"id": "wf-fb", "name": "Fallback"},
    "settings": {"allow_fallback": True},
    "trigger": trigger("manual"),
    "nodes": [
        node("custom", fallback=fallback("javascript", "return $input.items.slice(0, 5);", description="no primitive truncates lists")),
    ],
    "edges": [],
}
`,
			input: nil,
			checkFunc: func(t *testing.T, r *Result) {
				if r.Plan.FallbackCount() != 1 {
					t.Fatalf("expected 1 fallback node, got %d", r.Plan.FallbackCount())
				}
				n := r.Plan.Nodes[0]
				if n.PrimitiveID != nil {
					t.Errorf("expected nil primitive id, got %v", n.PrimitiveID)
				}
				if n.Fallback.Language != plan.LanguageJavaScript {
					t.Errorf("expected javascript fallback, got %s", n.Fallback.Language)
				}
				if !n.Fallback.ReviewRequired() {
					t.Error("expected review to default to required")
				}
			},
			wantErr: false,
		},
		{
			name: "missing plan global",
			script: `
x = 1
`,
			input:   nil,
			wantErr: true,
		},
		{
			name: "syntax error",
			script: `
invalid syntax here
`,
			input:   nil,
			wantErr: true,
		},
		{
			name: "unknown trigger type",
			script: `
plan = {
    "metadata": {"id": "wf-x", "name": "X"},
    "trigger": trigger("never"),
    "nodes": [],
}
`,
			input:   nil,
			wantErr: true,
		},
		{
			name: "node without primitive or fallback",
			script: `
plan = {
    "metadata": {"id": "wf-x", "name": "X"},
    "trigger": trigger("manual"),
    "nodes": [node("bare")],
}
`,
			input:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Compose(ctx, tt.script, tt.input)

			if tt.wantErr {
				if err == nil && result.Error == "" {
					t.Errorf("expected error, got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if result.Error != "" {
					t.Errorf("unexpected result error: %s", result.Error)
				}
				if tt.checkFunc != nil {
					tt.checkFunc(t, result)
				}
			}

			// Check execution time is recorded
			if result != nil && result.ExecutionTime == 0 {
				t.Error("expected non-zero execution time")
			}
		})
	}
}

func TestEvaluator_Timeout(t *testing.T) {
	evaluator := NewEvaluator(100 * time.Millisecond)
	ctx := context.Background()

	// Script that takes too long
	script := `
def slow_function():
    result = 0
    for i in range(10000000):
        result = result + i
    return result

plan = {"metadata": {"id": "wf-slow", "name": str(slow_function())}}
`

	result, err := evaluator.Compose(ctx, script, nil)
	if err == nil {
		t.Error("expected timeout error")
	}

	if result != nil && result.Error == "" {
		t.Error("expected timeout error in result")
	}
}

func TestEvaluator_TypeConversion(t *testing.T) {
	evaluator := NewEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		input     map[string]interface{}
		script    string
		checkFunc func(*testing.T, *Result)
	}{
		{
			name: "bool conversion",
			input: map[string]interface{}{
				"dry_run": true,
			},
			script: `
plan = {
    "metadata": {"id": "wf-t", "name": "T"},
    "trigger": trigger("manual", config={"dry_run": dry_run}),
    "nodes": [],
}
`,
			checkFunc: func(t *testing.T, r *Result) {
				if v, ok := r.Plan.Trigger.ConfigValue("dry_run"); !ok || v != true {
					t.Errorf("expected dry_run=true, got %v", v)
				}
			},
		},
		{
			name: "int conversion",
			input: map[string]interface{}{
				"port": 8080,
			},
			script: `
plan = {
    "metadata": {"id": "wf-t", "name": "T"},
    "trigger": trigger("webhook", config={"port": port + 1}),
    "nodes": [],
}
`,
			checkFunc: func(t *testing.T, r *Result) {
				if v, ok := r.Plan.Trigger.ConfigValue("port"); !ok || v != 8081 {
					t.Errorf("expected port=8081, got %v", v)
				}
			},
		},
		{
			name: "float conversion",
			input: map[string]interface{}{
				"ratio": 0.25,
			},
			script: `
plan = {
    "metadata": {"id": "wf-t", "name": "T"},
    "trigger": trigger("manual", config={"ratio": ratio * 2}),
    "nodes": [],
}
`,
			checkFunc: func(t *testing.T, r *Result) {
				v, ok := r.Plan.Trigger.ConfigValue("ratio")
				if !ok {
					t.Fatal("expected ratio config")
				}
				f, ok := v.(float64)
				if !ok || f != 0.5 {
					t.Errorf("expected ratio=0.5, got %v", v)
				}
			},
		},
		{
			name: "string conversion",
			input: map[string]interface{}{
				"region": "eu-1",
			},
			script: `
plan = {
    "metadata": {"id": "wf-t", "name": "T", "description": "runs in " + region},
    "trigger": trigger("manual"),
    "nodes": [],
}
`,
			checkFunc: func(t *testing.T, r *Result) {
				if r.Plan.Metadata.Description != "runs in eu-1" {
					t.Errorf("unexpected description: %s", r.Plan.Metadata.Description)
				}
			},
		},
		{
			name: "list conversion",
			input: map[string]interface{}{
				"tags": []interface{}{"a", "b", "c"},
			},
			script: `
plan = {
    "metadata": {"id": "wf-t", "name": "T"},
    "trigger": trigger("manual", config={"tags": tags, "count": len(tags)}),
    "nodes": [],
}
`,
			checkFunc: func(t *testing.T, r *Result) {
				v, ok := r.Plan.Trigger.ConfigValue("tags")
				if !ok {
					t.Fatal("expected tags config")
				}
				list, ok := v.([]interface{})
				if !ok || len(list) != 3 {
					t.Errorf("expected 3 tags, got %v", v)
				}
			},
		},
		{
			name: "dict conversion",
			input: map[string]interface{}{
				"limits": map[string]interface{}{
					"cpu":    2,
					"memory": "512Mi",
				},
			},
			script: `
plan = {
    "metadata": {"id": "wf-t", "name": "T"},
    "trigger": trigger("manual", config={"limits": limits}),
    "nodes": [],
}
`,
			checkFunc: func(t *testing.T, r *Result) {
				if v, ok := r.Plan.Trigger.ConfigValue("limits.cpu"); !ok || v != 2 {
					t.Errorf("expected limits.cpu=2, got %v", v)
				}
				if v, ok := r.Plan.Trigger.ConfigValue("limits.memory"); !ok || v != "512Mi" {
					t.Errorf("expected limits.memory=512Mi, got %v", v)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Compose(ctx, tt.script, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Error != "" {
				t.Fatalf("unexpected result error: %s", result.Error)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestEvaluator_PrintSuppressed(t *testing.T) {
	evaluator := NewEvaluator(5 * time.Second)
	ctx := context.Background()

	// print output goes nowhere and does not fail the script
	script := `
print("this should not appear")
plan = {
    "metadata": {"id": "wf-quiet", "name": "Quiet"},
    "trigger": trigger("manual"),
    "nodes": [],
}
`

	result, err := evaluator.Compose(ctx, script, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Plan.Metadata.ID != "wf-quiet" {
		t.Errorf("expected plan id wf-quiet, got %s", result.Plan.Metadata.ID)
	}
}

func TestEvaluator_ComposeFile(t *testing.T) {
	evaluator := NewEvaluator(5 * time.Second)
	ctx := context.Background()

	script := `
plan = {
    "metadata": {"id": "wf-from-file", "name": "From file"},
    "trigger": trigger("manual"),
    "nodes": [node("greet", primitive="P001")],
    "edges": [],
}
`

	path := filepath.Join(t.TempDir(), "compose.star")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	result, err := evaluator.ComposeFile(ctx, path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Plan.Metadata.ID != "wf-from-file" {
		t.Errorf("expected plan id wf-from-file, got %s", result.Plan.Metadata.ID)
	}

	if _, err := evaluator.ComposeFile(ctx, filepath.Join(t.TempDir(), "missing.star"), nil); err == nil {
		t.Error("expected error for missing script file")
	}
}
