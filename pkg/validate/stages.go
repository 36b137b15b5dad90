package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/registry"
)

// checkRegistry is stage 2: every non-null primitive id must resolve
// to a stable catalog entry, and fallback blocks are only admitted
// when the plan allows them. Unknown ids are reported, never guessed
// around.
func (v *Validator) checkRegistry(p *plan.Plan, snap *registry.Snapshot, res *Result) {
	for i := range p.Nodes {
		n := &p.Nodes[i]

		if n.Fallback != nil && !p.Settings.AllowFallback {
			res.addError(CodeFallbackDisabled,
				"fallback block present but settings.allow_fallback is false", n.ID, "fallback")
		}

		if n.PrimitiveID == nil {
			if n.Fallback == nil {
				res.addError(CodeFallbackDisabled,
					"node has neither a primitive_id nor a fallback block", n.ID, "")
			}
			continue
		}

		prim := snap.Get(*n.PrimitiveID)
		if prim == nil {
			res.addError(CodeUnknownPrimitive,
				fmt.Sprintf("unknown primitive %s", *n.PrimitiveID), n.ID, "primitive_id")
			continue
		}
		if !prim.IsStable() && !p.Settings.AllowUnstable {
			res.addError(CodeUnstablePrimitive,
				fmt.Sprintf("primitive %s has status %s, only stable primitives may be used",
					prim.ID(), prim.Metadata.Status), n.ID, "primitive_id")
		}
	}
}

// checkInterfaces is stage 3: node inputs against the primitive's
// declared input fields. A reference expression satisfies presence;
// its resolved type is unknowable before resolution, so type checks
// apply to literals only. Unknown extra inputs are warnings.
func (v *Validator) checkInterfaces(p *plan.Plan, snap *registry.Snapshot, res *Result) {
	for i := range p.Nodes {
		n := &p.Nodes[i]
		if n.PrimitiveID == nil {
			continue
		}
		prim := snap.Get(*n.PrimitiveID)
		if prim == nil {
			continue
		}

		for j := range prim.Interface.Inputs {
			spec := &prim.Interface.Inputs[j]
			val, present := n.Inputs[spec.Name]
			if !present {
				if spec.Required {
					res.addError(CodeMissingInput,
						fmt.Sprintf("missing required input %q for primitive %s", spec.Name, prim.ID()),
						n.ID, spec.Name)
				}
				continue
			}
			if val.IsExpression() {
				continue
			}
			if ok, got := literalMatches(val.LiteralValue(), spec); !ok {
				var msg string
				if spec.Type == registry.FieldEnum {
					msg = fmt.Sprintf("input %q must be one of %v, got %s", spec.Name, spec.EnumValues, got)
				} else {
					msg = fmt.Sprintf("input %q must be %s, got %s", spec.Name, spec.Type, got)
				}
				res.addError(CodeTypeMismatch, msg, n.ID, spec.Name)
			}
		}

		for _, name := range sortedKeys(n.Inputs) {
			if prim.Interface.Input(name) == nil {
				res.addWarning(CodeUnknownInput,
					fmt.Sprintf("input %q is not declared by primitive %s", name, prim.ID()),
					n.ID, name)
			}
		}
	}
}

// literalMatches checks a literal value against an input field spec.
// The second return value describes what the value actually was, for
// the violation message.
func literalMatches(value interface{}, spec *registry.InputField) (bool, string) {
	got := describeType(value)

	switch spec.Type {
	case registry.FieldAny:
		return true, got
	case registry.FieldString:
		_, ok := value.(string)
		return ok, got
	case registry.FieldNumber:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true, got
		}
		return false, got
	case registry.FieldBoolean:
		_, ok := value.(bool)
		return ok, got
	case registry.FieldObject:
		_, ok := value.(map[string]interface{})
		return ok, got
	case registry.FieldArray:
		_, ok := value.([]interface{})
		return ok, got
	case registry.FieldEnum:
		s, ok := value.(string)
		if !ok {
			return false, got
		}
		for _, allowed := range spec.EnumValues {
			if s == allowed {
				return true, got
			}
		}
		return false, fmt.Sprintf("%q", s)
	}
	return true, got
}

// describeType names a literal's type the way violation messages
// speak about types.
func describeType(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// checkGraph is stage 4: the dependency graph derived from declared
// edges and reference expressions. Malformed expressions, dangling
// targets, cycles, and item references outside a loop context are all
// reported here.
func (v *Validator) checkGraph(p *plan.Plan, snap *registry.Snapshot, res *Result) {
	for i := range p.Nodes {
		n := &p.Nodes[i]
		for _, name := range sortedKeys(n.Inputs) {
			val := n.Inputs[name]
			for _, m := range val.Malformed() {
				res.addError(CodeMalformedReference,
					fmt.Sprintf("malformed expression %q in input %q: %s", m.Raw, name, m.Reason),
					n.ID, name)
			}
			for _, ref := range val.Refs() {
				if ref.Kind != plan.RefConfig {
					continue
				}
				if _, ok := p.Trigger.ConfigValue(ref.Field); !ok {
					res.addError(CodeDanglingReference,
						fmt.Sprintf("node %q references unknown trigger config key %q", n.ID, ref.Field),
						n.ID, name)
				}
			}
		}
	}

	g := plan.BuildGraph(p)

	for _, d := range g.Dangling {
		if d.Declared {
			holder := ""
			if p.NodeByID(d.NodeID) != nil {
				holder = d.NodeID
			} else if p.NodeByID(d.Target) != nil {
				holder = d.Target
			}
			res.addError(CodeDanglingReference,
				fmt.Sprintf("edge %q -> %q names a node that does not exist", d.NodeID, d.Target),
				holder, "edges")
		} else {
			res.addError(CodeDanglingReference,
				fmt.Sprintf("node %q references unknown node %q in input %q", d.NodeID, d.Target, d.Input),
				d.NodeID, d.Input)
		}
	}

	for _, cycle := range g.Cycles {
		res.addError(CodeCircularDependency,
			fmt.Sprintf("circular dependency: %s", plan.FormatCycle(cycle)), "", "")
	}

	v.checkItemRefs(p, snap, g, res)
}

// checkItemRefs verifies that {{ item.X }} expressions appear only on
// nodes downstream of a loop primitive, the loop node itself included.
func (v *Validator) checkItemRefs(p *plan.Plan, snap *registry.Snapshot, g *plan.Graph, res *Result) {
	var loopIDs []string
	for i := range p.Nodes {
		n := &p.Nodes[i]
		if n.PrimitiveID == nil {
			continue
		}
		if prim := snap.Get(*n.PrimitiveID); prim != nil && prim.HasTag("loop") {
			loopIDs = append(loopIDs, n.ID)
		}
	}
	inLoop := g.ReachableFrom(loopIDs)

	for i := range p.Nodes {
		n := &p.Nodes[i]
		if inLoop[n.ID] {
			continue
		}
		for _, name := range sortedKeys(n.Inputs) {
			for _, ref := range n.Inputs[name].Refs() {
				if ref.Kind != plan.RefItem {
					continue
				}
				res.addError(CodeDanglingReference,
					fmt.Sprintf("item reference %q used outside a loop context", ref.Raw),
					n.ID, name)
			}
		}
	}
}

// checkPolicies is stage 5: every enabled policy rule runs; failures
// become POLICY_VIOLATION entries carrying the rule id.
func (v *Validator) checkPolicies(ctx context.Context, p *plan.Plan, res *Result) error {
	if v.opts.Policies == nil {
		return nil
	}

	findings, err := v.opts.Policies.EvaluatePlan(ctx, p)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, f := range findings {
		sev := f.Severity
		if sev == "" {
			sev = SeverityError
		}
		res.add(Violation{
			Code:     CodePolicyViolation,
			Message:  fmt.Sprintf("policy %s: %s", f.Rule, f.Message),
			NodeID:   f.NodeID,
			Severity: sev,
		})
	}
	return nil
}

// fallbackDenylist lists lowercase tokens whose presence in fallback
// code indicates network or filesystem access, which fallback blocks
// are not allowed to perform.
var fallbackDenylist = []string{
	"require(",
	"import(",
	"fetch(",
	"xmlhttprequest",
	"child_process",
	"process.env",
	"readfilesync",
	"writefilesync",
	"subprocess",
	"urllib",
	"os.system",
	"socket(",
	"open(",
	"requests.get",
	"requests.post",
}

// checkCompatibility is stage 6: the configured target must be
// registered and every used primitive must declare support for it.
// Fallback blocks are re-checked against the length limit, the
// language set, and the capability denylist.
func (v *Validator) checkCompatibility(p *plan.Plan, snap *registry.Snapshot, res *Result) {
	target := v.opts.Target

	if v.opts.Targets != nil {
		if !v.opts.Targets.Has(target) {
			res.addError(CodeTargetUnsupported,
				fmt.Sprintf("target %q is not registered", target), "", "")
		} else {
			for i := range p.Nodes {
				n := &p.Nodes[i]
				if n.PrimitiveID == nil {
					continue
				}
				prim := snap.Get(*n.PrimitiveID)
				if prim == nil {
					continue
				}
				if !v.opts.Targets.Supports(target, prim) {
					res.addError(CodeTargetUnsupported,
						fmt.Sprintf("primitive %s is not supported by target %q", prim.ID(), target),
						n.ID, "primitive_id")
				}
			}
		}
	}

	for i := range p.Nodes {
		n := &p.Nodes[i]
		if n.Fallback != nil {
			v.checkFallback(n, res)
		}
	}
}

// checkFallback applies the fallback constraints to one node.
func (v *Validator) checkFallback(n *plan.Node, res *Result) {
	fb := n.Fallback

	if count := utf8.RuneCountInString(fb.Code); count > plan.MaxFallbackCodeLen {
		res.addError(CodeFallbackConstraintViolated,
			fmt.Sprintf("fallback code is %d characters, the limit is %d", count, plan.MaxFallbackCodeLen),
			n.ID, "fallback.code")
	}

	if err := fb.Language.Validate(); err != nil {
		res.addError(CodeFallbackConstraintViolated, err.Error(), n.ID, "fallback.language")
	}

	lower := strings.ToLower(fb.Code)
	for _, token := range fallbackDenylist {
		if strings.Contains(lower, token) {
			res.addError(CodeFallbackConstraintViolated,
				fmt.Sprintf("fallback code contains forbidden token %q", token),
				n.ID, "fallback.code")
		}
	}
}

// sortedKeys returns input names in sorted order so violation order
// is deterministic.
func sortedKeys(inputs map[string]plan.Value) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
