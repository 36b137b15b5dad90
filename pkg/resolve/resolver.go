// Package resolve substitutes reference expressions in validated plans.
//
// Resolution happens at compile time, before any workflow engine sees
// the plan. Three namespaces render symbolically: node references
// become the target's own runtime expression for reading an upstream
// node's output, and input and item references become the target's
// expressions for the trigger payload and the current loop item.
// Config references are different: the trigger configuration is fully
// known at compile time, so they substitute to their literal values.
//
// The target supplies a Renderer; the resolver owns the walk order and
// the namespace semantics.
package resolve

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/plan"
)

// Renderer renders bare reference expressions into one target's
// expression syntax. Implementations are stateless.
type Renderer interface {
	// NodeRef renders a read of an upstream node's output field. An
	// empty field means the target's default output field.
	NodeRef(nodeID, field string) string

	// InputRef renders a read of the trigger payload.
	InputRef(field string) string

	// ItemRef renders a read of the current loop item.
	ItemRef(field string) string

	// WrapExpression finishes a bare expression standing alone as a
	// whole input value.
	WrapExpression(expr string) string

	// EmbedExpression wraps a bare expression for inline use inside
	// surrounding literal text.
	EmbedExpression(expr string) string

	// WrapTemplate finishes a string assembled from literal text and
	// embedded expressions.
	WrapTemplate(s string) string
}

// NodeInputs is one node's inputs after resolution. Values are plain
// literals, statically substituted config values, or rendered target
// expressions.
type NodeInputs map[string]interface{}

// Resolution is the outcome of resolving every node in a plan.
type Resolution struct {
	// Order is the topological node order the walk used. Compilers
	// emit nodes and connections against this order.
	Order []string

	// Inputs maps node id to its resolved inputs.
	Inputs map[string]NodeInputs
}

// Resolver walks plans in dependency order and rewrites every input
// value through a target renderer.
type Resolver struct {
	renderer Renderer
	logger   zerolog.Logger
}

// New creates a resolver for one target renderer.
func New(renderer Renderer, logger zerolog.Logger) *Resolver {
	return &Resolver{
		renderer: renderer,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve resolves every node's inputs. The graph may be nil, in which
// case it is derived from the plan.
//
// The plan is expected to have passed validation. Defects validation
// would have rejected, such as cycles, dangling references, malformed
// expressions, or unknown config keys, are returned as errors so an
// unvalidated plan can never produce a half-resolved result.
func (r *Resolver) Resolve(p *plan.Plan, g *plan.Graph) (*Resolution, error) {
	if g == nil {
		g = plan.BuildGraph(p)
	}
	if g.HasCycle() {
		return nil, fmt.Errorf("plan %s has a dependency cycle: %s", p.Metadata.ID, plan.FormatCycle(g.Cycles[0]))
	}
	if len(g.Dangling) > 0 {
		d := g.Dangling[0]
		return nil, fmt.Errorf("plan %s references missing node %q", p.Metadata.ID, d.Target)
	}

	res := &Resolution{
		Order:  g.Order,
		Inputs: make(map[string]NodeInputs, len(p.Nodes)),
	}

	for _, id := range g.Order {
		n := p.NodeByID(id)
		if n == nil {
			continue
		}
		inputs, err := r.resolveNode(p, n)
		if err != nil {
			return nil, err
		}
		res.Inputs[id] = inputs
	}

	r.logger.Debug().
		Str("plan", p.Metadata.ID).
		Int("nodes", len(res.Inputs)).
		Msg("References resolved")

	return res, nil
}

func (r *Resolver) resolveNode(p *plan.Plan, n *plan.Node) (NodeInputs, error) {
	inputs := make(NodeInputs, len(n.Inputs))
	for name, v := range n.Inputs {
		resolved, err := r.resolveValue(p, n, name, v)
		if err != nil {
			return nil, err
		}
		inputs[name] = resolved
	}
	return inputs, nil
}

func (r *Resolver) resolveValue(p *plan.Plan, n *plan.Node, input string, v plan.Value) (interface{}, error) {
	if m := v.Malformed(); len(m) > 0 {
		return nil, fmt.Errorf("node %s input %s: malformed expression %q: %s", n.ID, input, m[0].Raw, m[0].Reason)
	}

	switch v.Kind {
	case plan.ValueReference:
		return r.resolveWholeRef(p, n, input, v.Ref)
	case plan.ValueTemplate:
		return r.resolveTemplate(p, n, input, v.Segments)
	default:
		return r.resolveLiteral(p, n, input, v.LiteralValue())
	}
}

// resolveWholeRef handles a value that is exactly one expression. Node,
// input, and item references render as a whole-value target expression.
// Config references substitute to the raw configured value, so a
// numeric config key stays numeric instead of becoming a string.
func (r *Resolver) resolveWholeRef(p *plan.Plan, n *plan.Node, input string, ref *plan.Ref) (interface{}, error) {
	if ref.Kind == plan.RefConfig {
		val, ok := p.Trigger.ConfigValue(ref.Field)
		if !ok {
			return nil, fmt.Errorf("node %s input %s: unknown trigger config key %q", n.ID, input, ref.Field)
		}
		return val, nil
	}

	bare, err := r.bare(ref)
	if err != nil {
		return nil, fmt.Errorf("node %s input %s: %w", n.ID, input, err)
	}
	return r.renderer.WrapExpression(bare), nil
}

// resolveTemplate concatenates literal text with embedded expressions.
// Config references are spliced in as plain text. If every expression
// in the template was a config reference the result is an ordinary
// string and is returned without the template wrapping.
func (r *Resolver) resolveTemplate(p *plan.Plan, n *plan.Node, input string, segments []plan.Segment) (interface{}, error) {
	var b strings.Builder
	symbolic := false

	for _, seg := range segments {
		if seg.Ref == nil {
			b.WriteString(seg.Text)
			continue
		}
		if seg.Ref.Kind == plan.RefConfig {
			val, ok := p.Trigger.ConfigValue(seg.Ref.Field)
			if !ok {
				return nil, fmt.Errorf("node %s input %s: unknown trigger config key %q", n.ID, input, seg.Ref.Field)
			}
			fmt.Fprintf(&b, "%v", val)
			continue
		}
		bare, err := r.bare(seg.Ref)
		if err != nil {
			return nil, fmt.Errorf("node %s input %s: %w", n.ID, input, err)
		}
		b.WriteString(r.renderer.EmbedExpression(bare))
		symbolic = true
	}

	if !symbolic {
		return b.String(), nil
	}
	return r.renderer.WrapTemplate(b.String()), nil
}

// resolveLiteral passes scalars through untouched and walks mappings
// and sequences so expressions nested inside structured inputs, such
// as a header map, resolve the same way top-level strings do.
func (r *Resolver) resolveLiteral(p *plan.Plan, n *plan.Node, input string, raw interface{}) (interface{}, error) {
	switch t := raw.(type) {
	case string:
		v := plan.ParseValue(t)
		if v.Kind == plan.ValueLiteral {
			return t, nil
		}
		return r.resolveValue(p, n, input, v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, nested := range t {
			resolved, err := r.resolveLiteral(p, n, input, nested)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, nested := range t {
			resolved, err := r.resolveLiteral(p, n, input, nested)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return raw, nil
	}
}

func (r *Resolver) bare(ref *plan.Ref) (string, error) {
	switch ref.Kind {
	case plan.RefNode:
		return r.renderer.NodeRef(ref.Target, ref.Field), nil
	case plan.RefInput:
		return r.renderer.InputRef(ref.Field), nil
	case plan.RefItem:
		return r.renderer.ItemRef(ref.Field), nil
	default:
		return "", fmt.Errorf("unsupported reference kind %q", ref.Kind)
	}
}
