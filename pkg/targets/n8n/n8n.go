// Package n8n compiles validated plans into n8n workflow JSON.
//
// Every particle in the built-in catalog maps to one n8n node type,
// either through a flat parameter rename table or a generated Code
// node. Output is reproducible: node and workflow ids are SHA-1 UUIDs
// derived from the plan content, object keys serialize in a fixed
// order, and nothing reads the clock.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/registry"
	"github.com/vizi2000/maicrosoft/pkg/resolve"
	"github.com/vizi2000/maicrosoft/pkg/targets"
)

// TargetName is the registry key for this adapter.
const TargetName = "n8n"

// idNamespace seeds every content-derived UUID the adapter emits.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("maicrosoft.dev"))

// particleMapping ties one particle id to an n8n node type. A nil
// params table means the particle compiles through a dedicated
// parameter builder instead of a flat rename.
type particleMapping struct {
	nodeType string
	version  int
	params   map[string]string
}

var particleMappings = map[string]particleMapping{
	"P001": {
		nodeType: "n8n-nodes-base.httpRequest",
		version:  4,
		params: map[string]string{
			"method":       "method",
			"url":          "url",
			"headers":      "headerParameters",
			"body":         "body",
			"query_params": "queryParameters",
			"timeout":      "timeout",
			"auth":         "authentication",
		},
	},
	"P002": {
		nodeType: "n8n-nodes-base.postgres",
		version:  2,
		params: map[string]string{
			"query":     "query",
			"operation": "operation",
		},
	},
	"P003": {
		nodeType: "n8n-nodes-base.readWriteFile",
		version:  1,
		params: map[string]string{
			"operation": "operation",
			"path":      "filePath",
			"content":   "fileContent",
		},
	},
	"P004": {nodeType: "n8n-nodes-base.code", version: 2},
	"P005": {nodeType: "n8n-nodes-base.if", version: 2},
	"P006": {nodeType: "n8n-nodes-base.splitInBatches", version: 3},
	"P007": {nodeType: "@n8n/n8n-nodes-langchain.openAi", version: 1},
	"P008": {
		nodeType: "n8n-nodes-base.redis",
		version:  1,
		params: map[string]string{
			"operation": "operation",
			"key":       "key",
			"value":     "value",
			"ttl":       "expire",
		},
	},
	"P009": {
		nodeType: "n8n-nodes-base.rabbitmq",
		version:  1,
		params: map[string]string{
			"operation": "operation",
			"queue":     "queue",
			"message":   "content",
		},
	},
	"P010": {nodeType: "n8n-nodes-base.code", version: 2},
}

// workflow is the n8n document shell. Field order here is the key
// order in the serialized artifact.
type workflow struct {
	Name        string                     `json:"name"`
	Nodes       []workflowNode             `json:"nodes"`
	Connections map[string]nodeConnections `json:"connections"`
	Active      bool                       `json:"active"`
	Settings    workflowSettings           `json:"settings"`
	VersionID   string                     `json:"versionId"`
	Meta        workflowMeta               `json:"meta"`
}

type workflowNode struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Position    [2]int                 `json:"position"`
	Parameters  map[string]interface{} `json:"parameters"`
	TypeVersion int                    `json:"typeVersion"`
}

type nodeConnections struct {
	Main [][]connectionEnd `json:"main"`
}

type connectionEnd struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type workflowSettings struct {
	ExecutionOrder string `json:"executionOrder"`
}

type workflowMeta struct {
	PlanID      string `json:"maicrosoft_plan_id"`
	PlanVersion string `json:"maicrosoft_version"`
}

// Canvas layout constants. Nodes step right per plan node and cycle
// three rows down so long chains stay readable in the n8n editor.
const (
	baseX = 250
	baseY = 300
	stepX = 250
	stepY = 100
)

// Target compiles plans to n8n workflow JSON.
type Target struct {
	resolver *resolve.Resolver
	logger   zerolog.Logger
}

// New creates the n8n adapter.
func New(logger zerolog.Logger) *Target {
	log := logger.With().Str("component", "n8n").Logger()
	return &Target{
		resolver: resolve.New(renderer{}, log),
		logger:   log,
	}
}

// Name returns the registry key.
func (t *Target) Name() string { return TargetName }

// Supports reports whether the primitive both declares n8n
// compatibility and has a node mapping in this adapter.
func (t *Target) Supports(p *registry.Primitive) bool {
	if _, ok := particleMappings[p.ID()]; !ok {
		return false
	}
	return p.DeclaresTarget(TargetName)
}

// Compile turns a validated plan into n8n workflow JSON. The plan is
// assumed valid; anything the validator should have rejected surfaces
// as a ContractError and yields no output.
func (t *Target) Compile(ctx context.Context, p *plan.Plan) (*targets.Artifact, error) {
	g := plan.BuildGraph(p)

	resolution, err := t.resolver.Resolve(p, g)
	if err != nil {
		return nil, &targets.ContractError{Target: TargetName, Reason: err.Error()}
	}

	nodes := make([]workflowNode, 0, len(p.Nodes)+1)

	trigger := t.compileTrigger(p)
	nodes = append(nodes, trigger)

	names := map[string]string{}
	for i := range p.Nodes {
		n := &p.Nodes[i]
		compiled, err := t.compileNode(p, n, resolution.Inputs[n.ID])
		if err != nil {
			return nil, err
		}
		compiled.Position = [2]int{baseX + stepX*(i+1), baseY + (i%3)*stepY}
		nodes = append(nodes, compiled)
		names[n.ID] = compiled.Name
	}

	wf := workflow{
		Name:        p.Metadata.Name,
		Nodes:       nodes,
		Connections: buildConnections(p, names, trigger.Name),
		Active:      false,
		Settings:    workflowSettings{ExecutionOrder: "v1"},
		VersionID:   contentID("workflow", p.Metadata.ID, p.Metadata.Version),
		Meta: workflowMeta{
			PlanID:      p.Metadata.ID,
			PlanVersion: p.Metadata.Version,
		},
	}

	content, err := encodeWorkflow(wf)
	if err != nil {
		return nil, &targets.ContractError{Target: TargetName, Reason: err.Error()}
	}

	t.logger.Debug().
		Str("plan", p.Metadata.ID).
		Int("nodes", len(nodes)).
		Msg("Plan compiled")

	return targets.NewArtifact(TargetName, p, "json", content), nil
}

// compileTrigger maps the plan trigger to the n8n trigger node, pinned
// at the canvas origin.
func (t *Target) compileTrigger(p *plan.Plan) workflowNode {
	nodeType, version, params := triggerParameters(p.Trigger)
	return workflowNode{
		ID:          contentID("node", p.Metadata.ID, "__trigger__"),
		Name:        "Trigger",
		Type:        nodeType,
		Position:    [2]int{baseX, baseY},
		Parameters:  params,
		TypeVersion: version,
	}
}

func triggerParameters(tr plan.Trigger) (string, int, map[string]interface{}) {
	switch tr.Type {
	case plan.TriggerWebhook:
		params := map[string]interface{}{
			"httpMethod":   "POST",
			"path":         "webhook",
			"responseMode": "responseNode",
		}
		if path, ok := tr.Config["path"]; ok {
			params["path"] = path
		}
		return "n8n-nodes-base.webhook", 2, params
	case plan.TriggerSchedule:
		params := map[string]interface{}{
			"rule": map[string]interface{}{
				"interval": []interface{}{
					map[string]interface{}{"field": "hours", "hoursInterval": 1},
				},
			},
		}
		if cron, ok := tr.Config["cron"]; ok {
			params["rule"] = map[string]interface{}{"cron": cron}
		}
		return "n8n-nodes-base.scheduleTrigger", 1, params
	case plan.TriggerEvent:
		return "n8n-nodes-base.webhook", 2, map[string]interface{}{
			"httpMethod": "POST",
			"path":       "event",
		}
	default:
		return "n8n-nodes-base.manualTrigger", 1, map[string]interface{}{}
	}
}

func (t *Target) compileNode(p *plan.Plan, n *plan.Node, inputs resolve.NodeInputs) (workflowNode, error) {
	if n.Fallback != nil {
		return workflowNode{
			ID:          contentID("node", p.Metadata.ID, n.ID),
			Name:        displayName(n.ID),
			Type:        "n8n-nodes-base.code",
			Parameters:  fallbackParameters(n.Fallback),
			TypeVersion: 2,
		}, nil
	}

	if n.PrimitiveID == nil {
		return workflowNode{}, &targets.ContractError{
			Target: TargetName,
			Reason: fmt.Sprintf("node %s has neither a primitive nor a fallback", n.ID),
		}
	}

	mapping, ok := particleMappings[*n.PrimitiveID]
	if !ok {
		return workflowNode{}, &targets.ContractError{
			Target: TargetName,
			Reason: fmt.Sprintf("primitive %s passed compatibility but has no n8n mapping", *n.PrimitiveID),
		}
	}

	var params map[string]interface{}
	switch *n.PrimitiveID {
	case "P004":
		params = transformParameters(inputs)
	case "P005":
		params = branchParameters(inputs)
	case "P006":
		params = loopParameters(inputs)
	case "P007":
		params = llmParameters(inputs)
	case "P010":
		params = logParameters(inputs)
	default:
		params = mapParameters(inputs, mapping.params)
	}

	return workflowNode{
		ID:          contentID("node", p.Metadata.ID, n.ID),
		Name:        displayName(n.ID),
		Type:        mapping.nodeType,
		Parameters:  params,
		TypeVersion: mapping.version,
	}, nil
}

// mapParameters renames resolved inputs through the particle's table.
// Unlisted inputs keep their own name; a dotted target name nests.
func mapParameters(inputs resolve.NodeInputs, table map[string]string) map[string]interface{} {
	params := make(map[string]interface{}, len(inputs))
	for name, value := range inputs {
		target, ok := table[name]
		if !ok {
			target = name
		}
		setNested(params, target, value)
	}
	return params
}

func setNested(params map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := params
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// buildConnections wires the trigger into every node without an
// incoming declared edge, then appends one connection per declared
// edge in declaration order.
func buildConnections(p *plan.Plan, names map[string]string, triggerName string) map[string]nodeConnections {
	connections := make(map[string]nodeConnections)

	incoming := make(map[string]bool, len(p.Edges))
	for _, e := range p.Edges {
		incoming[e.ToNode] = true
	}

	var roots []connectionEnd
	for _, n := range p.Nodes {
		if !incoming[n.ID] {
			roots = append(roots, connectionEnd{Node: names[n.ID], Type: "main", Index: 0})
		}
	}
	if len(roots) > 0 {
		connections[triggerName] = nodeConnections{Main: [][]connectionEnd{roots}}
	}

	for _, e := range p.Edges {
		source, ok := names[e.FromNode]
		if !ok {
			continue
		}
		target, ok := names[e.ToNode]
		if !ok {
			continue
		}

		entry, exists := connections[source]
		if !exists {
			entry = nodeConnections{Main: [][]connectionEnd{{}}}
		}
		entry.Main[0] = append(entry.Main[0], connectionEnd{Node: target, Type: "main", Index: 0})
		connections[source] = entry
	}

	return connections
}

// contentID derives a stable UUID from the plan content so repeated
// compiles emit identical ids.
func contentID(kind string, parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(kind+"/"+strings.Join(parts, "/"))).String()
}

// displayName turns a snake_case node id into the n8n display name,
// "fetch_data" becoming "Fetch Data". Reference expressions address
// nodes by this name.
func displayName(id string) string {
	words := strings.Split(strings.ReplaceAll(id, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// encodeWorkflow serializes with two-space indentation and no HTML
// escaping, matching the format n8n itself exports.
func encodeWorkflow(wf workflow) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(wf); err != nil {
		return nil, fmt.Errorf("encoding workflow: %w", err)
	}
	return buf.Bytes(), nil
}
