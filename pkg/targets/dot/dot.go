// Package dot renders validated plans as Graphviz documents for
// review tooling. The drawing groups nodes into dependency levels,
// distinguishes declared edges from reference-implied ones, and flags
// fallback nodes, so a reviewer sees at a glance where inline code
// lives in a plan.
package dot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/registry"
	"github.com/vizi2000/maicrosoft/pkg/targets"
)

// TargetName is the registry key for this adapter.
const TargetName = "dot"

// Target renders plans to DOT.
type Target struct {
	logger zerolog.Logger
}

// New creates the dot adapter.
func New(logger zerolog.Logger) *Target {
	return &Target{logger: logger.With().Str("component", "dot").Logger()}
}

// Name returns the registry key.
func (t *Target) Name() string { return TargetName }

// Supports always reports true: any plan graph can be drawn.
func (t *Target) Supports(p *registry.Primitive) bool { return true }

// Compile renders the plan's dependency graph. Nodes the topological
// order could not place, which only happens when the graph is cyclic,
// are drawn outside the level clusters so the drawing stays useful for
// diagnosing a rejected plan.
func (t *Target) Compile(ctx context.Context, p *plan.Plan) (*targets.Artifact, error) {
	g := plan.BuildGraph(p)

	var sb strings.Builder
	sb.WriteString("digraph Plan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	fmt.Fprintf(&sb, "  \"__trigger__\" [label=\"trigger\\n%s\", shape=ellipse, fillcolor=\"lightyellow\", style=\"filled\"];\n\n", p.Trigger.Type)

	placed := make(map[string]bool, len(p.Nodes))
	for level, ids := range g.Levels {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Level %d\";\n", level)
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			sb.WriteString("    " + nodeStatement(p, id))
			placed[id] = true
		}

		sb.WriteString("  }\n\n")
	}

	for _, id := range g.Nodes {
		if !placed[id] {
			sb.WriteString("  " + nodeStatement(p, id))
		}
	}

	for _, root := range g.Roots() {
		fmt.Fprintf(&sb, "  \"__trigger__\" -> \"%s\";\n", root)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&sb, "  \"%s\" -> \"%s\" [%s];\n", e.From, e.To, edgeStyle(e))
	}

	sb.WriteString("}\n")

	t.logger.Debug().
		Str("plan", p.Metadata.ID).
		Int("nodes", len(g.Nodes)).
		Msg("Plan rendered")

	return targets.NewArtifact(TargetName, p, "dot", []byte(sb.String())), nil
}

func nodeStatement(p *plan.Plan, id string) string {
	n := p.NodeByID(id)
	if n == nil {
		return fmt.Sprintf("\"%s\";\n", id)
	}

	label := id
	color := "lightblue"
	switch {
	case n.Fallback != nil:
		label = fmt.Sprintf("%s\\nfallback(%s)", id, n.Fallback.Language)
		color = "lightsalmon"
	case n.PrimitiveID != nil:
		label = fmt.Sprintf("%s\\n%s", id, *n.PrimitiveID)
	}

	return fmt.Sprintf("\"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n", id, label, color)
}

// edgeStyle draws declared edges solid and reference-implied ones
// dashed, labelled with the input that implied them.
func edgeStyle(e plan.GraphEdge) string {
	if e.Source == plan.EdgeReference {
		return fmt.Sprintf("style=dashed, label=\"%s\"", e.Input)
	}
	if e.Condition != "" {
		return fmt.Sprintf("label=\"%s\"", e.Condition)
	}
	return "style=solid"
}
