// Package main implements the echo compilation target as a WASM plugin.
//
// Echo restates a validated plan as a compact JSON trace: workflow identity,
// trigger, one step per node, and the edge flow. It exists as a working
// reference for out-of-tree target adapters; it exports the
// malloc/free/compile_plan ABI the plugin host calls and claims every
// primitive, so any plan that validates will compile.
//
// Build the module with TinyGo and place it next to the manifest:
//
//	tinygo build -o echo.wasm -target=wasip1 .
//
// Pointing the engine's plugins_dir at the parent directory registers
// "echo" as a compilation target alongside the built-in adapters.
package main

import (
	"encoding/json"
	"fmt"
	"unsafe"
)

// planDocument mirrors the JSON document the host hands to compile_plan.
// Only the fields echo reads are declared.
type planDocument struct {
	Metadata planMetadata `json:"metadata"`
	Trigger  planTrigger  `json:"trigger"`
	Nodes    []planNode   `json:"nodes"`
	Edges    []planEdge   `json:"edges"`
}

type planMetadata struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type planTrigger struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

type planNode struct {
	ID          string                 `json:"id"`
	PrimitiveID *string                `json:"primitive_id"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Fallback    *planFallback          `json:"fallback,omitempty"`
}

type planFallback struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type planEdge struct {
	FromNode  string `json:"from_node"`
	ToNode    string `json:"to_node"`
	Condition string `json:"condition,omitempty"`
}

// echoWorkflow is the artifact echo emits. Struct field order and sorted
// map keys keep the encoding byte-identical across runs.
type echoWorkflow struct {
	// Workflow is the plan id.
	Workflow string `json:"workflow"`

	// Name is the human-readable plan name.
	Name string `json:"name,omitempty"`

	// Version is the plan version.
	Version string `json:"version,omitempty"`

	// Trigger restates the plan trigger.
	Trigger planTrigger `json:"trigger"`

	// Steps lists the nodes in document order.
	Steps []echoStep `json:"steps"`

	// Flow renders each edge as "from -> to".
	Flow []string `json:"flow"`
}

type echoStep struct {
	// ID is the node id.
	ID string `json:"id"`

	// Primitive is the primitive id, or "custom/<language>" for a node
	// that runs on its fallback code block.
	Primitive string `json:"primitive"`

	// Inputs carries the node inputs unchanged, references included.
	Inputs map[string]interface{} `json:"inputs,omitempty"`

	// Fallback reports whether the node carries a fallback code block.
	Fallback bool `json:"fallback,omitempty"`
}

// envelope is the response shape the plugin host expects: exactly one of
// content or error is set.
type envelope struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// buildWorkflow converts a decoded plan document into the echo artifact.
func buildWorkflow(doc *planDocument) (*echoWorkflow, error) {
	if doc.Metadata.ID == "" {
		return nil, fmt.Errorf("plan is missing metadata.id")
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("plan %s has no nodes", doc.Metadata.ID)
	}

	steps := make([]echoStep, 0, len(doc.Nodes))
	for _, node := range doc.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("plan %s has a node without an id", doc.Metadata.ID)
		}

		step := echoStep{
			ID:       node.ID,
			Inputs:   node.Inputs,
			Fallback: node.Fallback != nil,
		}
		switch {
		case node.PrimitiveID != nil && *node.PrimitiveID != "":
			step.Primitive = *node.PrimitiveID
		case node.Fallback != nil:
			step.Primitive = "custom/" + node.Fallback.Language
		default:
			return nil, fmt.Errorf("node %s has neither a primitive nor a fallback", node.ID)
		}
		steps = append(steps, step)
	}

	flow := make([]string, 0, len(doc.Edges))
	for _, edge := range doc.Edges {
		if edge.Condition != "" {
			flow = append(flow, fmt.Sprintf("%s -> %s [%s]", edge.FromNode, edge.ToNode, edge.Condition))
			continue
		}
		flow = append(flow, fmt.Sprintf("%s -> %s", edge.FromNode, edge.ToNode))
	}

	return &echoWorkflow{
		Workflow: doc.Metadata.ID,
		Name:     doc.Metadata.Name,
		Version:  doc.Metadata.Version,
		Trigger:  doc.Trigger,
		Steps:    steps,
		Flow:     flow,
	}, nil
}

// compileDocument runs the full compile path on raw plan JSON and wraps the
// outcome in a response envelope.
func compileDocument(input []byte) envelope {
	var doc planDocument
	if err := json.Unmarshal(input, &doc); err != nil {
		return envelope{Error: "malformed plan document: " + err.Error()}
	}

	workflow, err := buildWorkflow(&doc)
	if err != nil {
		return envelope{Error: err.Error()}
	}

	content, err := json.Marshal(workflow)
	if err != nil {
		return envelope{Error: "failed to encode workflow: " + err.Error()}
	}
	return envelope{Content: string(content)}
}

// marshalEnvelope encodes a response envelope, falling back to a static
// error document if encoding itself fails.
func marshalEnvelope(env envelope) []byte {
	out, err := json.Marshal(env)
	if err != nil {
		return []byte(`{"error":"failed to encode plugin response"}`)
	}
	return out
}

// ABI glue. The host allocates through malloc, writes the plan JSON into
// module memory, calls compile_plan, and reads the response at the packed
// pointer/length the call returns.

// allocations pins every buffer handed to the host so the collector keeps
// it alive until free is called.
var allocations = map[uintptr][]byte{}

//export malloc
func malloc(size uint32) uintptr {
	if size == 0 {
		return 0
	}
	buf := make([]byte, size)
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	allocations[ptr] = buf
	return ptr
}

//export free
func free(ptr uintptr, size uint32) {
	delete(allocations, ptr)
}

//export compile_plan
func compilePlan(ptr uintptr, size uint32) uint64 {
	return writeResult(marshalEnvelope(handleCompile(ptr, size)))
}

// handleCompile resolves the input buffer and compiles it.
func handleCompile(ptr uintptr, size uint32) envelope {
	input, ok := allocations[ptr]
	if !ok || uint32(len(input)) != size {
		return envelope{Error: "input buffer was not allocated through malloc"}
	}
	return compileDocument(input)
}

// writeResult copies the response into a fresh allocation the host will
// read and free, packed as (ptr << 32) | len. The packing assumes 32-bit
// pointers, which holds for wasm32 linear memory.
func writeResult(out []byte) uint64 {
	if len(out) == 0 {
		return 0
	}
	ptr := malloc(uint32(len(out)))
	copy(allocations[ptr], out)
	return uint64(ptr)<<32 | uint64(uint32(len(out)))
}

// main is required for a TinyGo wasip1 build; the module does all its work
// through the exports above.
func main() {}
