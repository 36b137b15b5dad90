package dot

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/plan"
)

const pipelineDoc = `
metadata:
  id: wf-render
  name: Render Test
settings:
  allow_fallback: true
trigger:
  type: schedule
nodes:
  - id: fetch
    primitive_id: P001
    inputs:
      url: https://api.example.com/orders
  - id: shape
    primitive_id: P004
    inputs:
      operation: map
      source: "{{ ref: fetch.body }}"
  - id: custom_step
    primitive_id: null
    fallback:
      language: javascript
      code: "return $input.all();"
edges:
  - from_node: shape
    to_node: custom_step
`

func render(t *testing.T, doc string) string {
	t.Helper()

	p, err := plan.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Failed to parse plan: %v", err)
	}

	target := New(zerolog.New(nil).Level(zerolog.Disabled))
	artifact, err := target.Compile(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if artifact.Format != "dot" {
		t.Fatalf("Expected a dot artifact, got: %s", artifact.Format)
	}
	return string(artifact.Content)
}

func TestCompile_RendersGraph(t *testing.T) {
	out := render(t, pipelineDoc)

	if !strings.HasPrefix(out, "digraph Plan {") {
		t.Errorf("Expected a digraph document, got: %q", out[:40])
	}
	for _, want := range []string{
		`"__trigger__" [label="trigger\nschedule"`,
		`"fetch" [label="fetch\nP001"`,
		`"custom_step" [label="custom_step\nfallback(javascript)", fillcolor="lightsalmon"`,
		`subgraph cluster_level_0`,
		`subgraph cluster_level_1`,
		`"__trigger__" -> "fetch";`,
		`"shape" -> "custom_step" [style=solid];`,
		`"fetch" -> "shape" [style=dashed, label="source"];`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
}

func TestCompile_CyclicPlanStillRenders(t *testing.T) {
	doc := `
metadata:
  id: wf-cycle
  name: Cycle Render
settings:
  allow_fallback: false
trigger:
  type: manual
nodes:
  - id: a
    primitive_id: P010
    inputs:
      message: a
  - id: b
    primitive_id: P010
    inputs:
      message: b
edges:
  - from_node: a
    to_node: b
  - from_node: b
    to_node: a
`
	out := render(t, doc)

	for _, want := range []string{`"a" [label=`, `"b" [label=`, `"a" -> "b"`, `"b" -> "a"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
}

func TestCompile_Deterministic(t *testing.T) {
	p, err := plan.Parse([]byte(pipelineDoc))
	if err != nil {
		t.Fatalf("Failed to parse plan: %v", err)
	}
	target := New(zerolog.New(nil).Level(zerolog.Disabled))

	first, err := target.Compile(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for i := 0; i < 3; i++ {
		next, err := target.Compile(context.Background(), p)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !bytes.Equal(first.Content, next.Content) {
			t.Fatalf("Expected byte-identical output, run %d differed", i+1)
		}
	}
}
