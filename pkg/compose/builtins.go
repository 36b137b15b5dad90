package compose

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/vizi2000/maicrosoft/pkg/plan"
)

// Helper builtins exposed to composition scripts. Each returns an
// immutable struct shaped like the corresponding document fragment.

// builtinNode implements node(id, primitive=None, inputs={}, fallback=None).
// A node invokes a catalogued primitive unless primitive is None, in
// which case it must carry a fallback block.
func builtinNode(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id string
	var primitive starlark.Value = starlark.None
	var inputs *starlark.Dict
	var fb starlark.Value = starlark.None

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id, "primitive?", &primitive, "inputs?", &inputs, "fallback?", &fb); err != nil {
		return nil, err
	}

	if _, ok := primitive.(starlark.String); !ok && primitive != starlark.None {
		return nil, fmt.Errorf("node: primitive must be a string or None, got %s", primitive.Type())
	}
	if primitive == starlark.None && fb == starlark.None {
		return nil, fmt.Errorf("node %s: needs a primitive or a fallback", id)
	}

	fields := starlark.StringDict{
		"id":           starlark.String(id),
		"primitive_id": primitive,
	}
	if inputs != nil {
		fields["inputs"] = inputs
	}
	if fb != starlark.None {
		fields["fallback"] = fb
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

// builtinEdge implements edge(from_node, to_node, condition="").
func builtinEdge(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fromNode, toNode, condition string

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "from_node", &fromNode, "to_node", &toNode, "condition?", &condition); err != nil {
		return nil, err
	}

	fields := starlark.StringDict{
		"from_node": starlark.String(fromNode),
		"to_node":   starlark.String(toNode),
	}
	if condition != "" {
		fields["condition"] = starlark.String(condition)
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

// builtinTrigger implements trigger(type, config={}). The type must be
// one of the known trigger kinds; unknown kinds fail the script here
// rather than surfacing later as a validation finding.
func builtinTrigger(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var triggerType string
	var config *starlark.Dict

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "type", &triggerType, "config?", &config); err != nil {
		return nil, err
	}

	if err := plan.TriggerType(triggerType).Validate(); err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}

	fields := starlark.StringDict{
		"type": starlark.String(triggerType),
	}
	if config != nil {
		fields["config"] = config
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

// builtinFallback implements fallback(language, code, description="",
// inputs={}, outputs={}, review=True).
func builtinFallback(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var language, code, description string
	var inputs, outputs *starlark.Dict
	review := true

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "language", &language, "code", &code, "description?", &description, "inputs?", &inputs, "outputs?", &outputs, "review?", &review); err != nil {
		return nil, err
	}

	if err := plan.FallbackLanguage(language).Validate(); err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}

	fields := starlark.StringDict{
		"language": starlark.String(language),
		"code":     starlark.String(code),
		"review":   starlark.Bool(review),
	}
	if description != "" {
		fields["description"] = starlark.String(description)
	}
	if inputs != nil {
		fields["inputs_schema"] = inputs
	}
	if outputs != nil {
		fields["outputs_schema"] = outputs
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}
