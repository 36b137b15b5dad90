package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/engine"
	"github.com/vizi2000/maicrosoft/pkg/registry"
	"github.com/vizi2000/maicrosoft/pkg/stores"
	"github.com/vizi2000/maicrosoft/pkg/validate"
)

const orderSyncYAML = `
metadata:
  id: wf-api-orders
  name: API Order Sync
  version: 1.0.0
trigger:
  type: webhook
  config:
    path: orders
nodes:
  - id: fetch
    primitive_id: P001
    inputs:
      url: https://api.example.com/orders
      method: GET
  - id: announce
    primitive_id: P010
    inputs:
      message: orders synced
edges:
  - from_node: fetch
    to_node: announce
`

const unknownPrimitiveYAML = `
metadata:
  id: wf-unknown
  name: Unknown Primitive
trigger:
  type: manual
nodes:
  - id: mystery
    primitive_id: P999
    inputs: {}
`

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestStore(t *testing.T) stores.Store {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestServerWithConfig(t *testing.T, config Config, store stores.Store) (*Server, string) {
	t.Helper()

	eng, err := engine.New(context.Background(), engine.Options{}, testLogger())
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(context.Background()) })

	srv := New(config, eng, store, nil, testLogger())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, srv.BaseURL()
}

func newTestServer(t *testing.T, store stores.Store) (*Server, string) {
	t.Helper()
	config := DefaultConfig()
	config.ListenAddress = "127.0.0.1:0"
	return newTestServerWithConfig(t, config, store)
}

// planEnvelope builds the request body for validate and compile. The
// document may be a YAML string or a json.RawMessage object.
func planEnvelope(t *testing.T, document interface{}, target string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"document": document,
		"target":   target,
	})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return body
}

func postJSON(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to POST %s: %v", url, err)
	}
	return resp
}

func getJSON(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("failed to GET %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	srv, base := newTestServer(t, nil)

	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("Expected error starting a running server, got none")
	}

	resp := getJSON(t, base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from healthz, got %d", resp.StatusCode)
	}
	var health healthResponse
	decodeBody(t, resp, &health)
	if health.Status != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", health.Status)
	}
	if health.Store != "" {
		t.Errorf("Expected no store field without a store, got '%s'", health.Store)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Expected clean shutdown, got: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Expected second shutdown to be a no-op, got: %v", err)
	}
	if srv.Addr() != "" {
		t.Error("Expected no address after shutdown")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Expected default config to validate, got: %v", err)
	}

	config := DefaultConfig()
	config.ListenAddress = ""
	if err := config.Validate(); err == nil {
		t.Error("Expected error for empty listen address")
	}

	config = DefaultConfig()
	config.MaxBodyBytes = 0
	if err := config.Validate(); err == nil {
		t.Error("Expected error for zero body limit")
	}

	config = DefaultConfig()
	config.HistoryPageSize = 0
	if err := config.Validate(); err == nil {
		t.Error("Expected error for zero history page size")
	}
}

func TestValidateEndpointValidPlan(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := postJSON(t, base+"/api/v1/validate", planEnvelope(t, orderSyncYAML, ""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var report engine.ValidationReport
	decodeBody(t, resp, &report)
	if !report.Valid() {
		t.Fatalf("Expected valid plan, got violations: %+v", report.Result.Violations)
	}
	if report.PlanID != "wf-api-orders" {
		t.Errorf("Expected plan id 'wf-api-orders', got '%s'", report.PlanID)
	}
	if report.Target != "n8n" {
		t.Errorf("Expected default target 'n8n', got '%s'", report.Target)
	}
}

func TestValidateEndpointJSONDocument(t *testing.T) {
	_, base := newTestServer(t, nil)

	doc := json.RawMessage(`{
		"metadata": {"id": "wf-json", "name": "JSON Plan", "version": "1.0.0"},
		"trigger": {"type": "manual"},
		"nodes": [
			{"id": "announce", "primitive_id": "P010", "inputs": {"message": "hello"}}
		]
	}`)

	resp := postJSON(t, base+"/api/v1/validate", planEnvelope(t, doc, ""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var report engine.ValidationReport
	decodeBody(t, resp, &report)
	if !report.Valid() {
		t.Fatalf("Expected valid plan, got violations: %+v", report.Result.Violations)
	}
	if report.PlanID != "wf-json" {
		t.Errorf("Expected plan id 'wf-json', got '%s'", report.PlanID)
	}
}

func TestValidateEndpointInvalidPlan(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := postJSON(t, base+"/api/v1/validate", planEnvelope(t, unknownPrimitiveYAML, ""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for a judged plan, got %d", resp.StatusCode)
	}

	var report engine.ValidationReport
	decodeBody(t, resp, &report)
	if report.Valid() {
		t.Fatal("Expected invalid plan")
	}
	if !report.Result.HasCode(validate.CodeUnknownPrimitive) {
		t.Errorf("Expected an UNKNOWN_PRIMITIVE violation, got %+v", report.Result.Violations)
	}
}

func TestValidateEndpointUnknownTarget(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := postJSON(t, base+"/api/v1/validate", planEnvelope(t, orderSyncYAML, "airflow"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var report engine.ValidationReport
	decodeBody(t, resp, &report)
	if report.Valid() {
		t.Fatal("Expected rejection for an unregistered target")
	}
	if !report.Result.HasCode(validate.CodeTargetUnsupported) {
		t.Errorf("Expected a TARGET_UNSUPPORTED violation, got %+v", report.Result.Violations)
	}
}

func TestValidateEndpointBadRequests(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := postJSON(t, base+"/api/v1/validate", []byte("not json at all"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", resp.StatusCode)
	}

	resp = postJSON(t, base+"/api/v1/validate", []byte(`{"target": "n8n"}`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a missing document, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/api/v1/validate", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	getResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to GET validate: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET on validate, got %d", getResp.StatusCode)
	}
}

func TestValidateEndpointPayloadLimit(t *testing.T) {
	config := DefaultConfig()
	config.ListenAddress = "127.0.0.1:0"
	config.MaxBodyBytes = 64
	_, base := newTestServerWithConfig(t, config, nil)

	resp := postJSON(t, base+"/api/v1/validate", planEnvelope(t, orderSyncYAML, ""))
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d", resp.StatusCode)
	}
}

func TestCompileEndpoint(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := postJSON(t, base+"/api/v1/compile", planEnvelope(t, orderSyncYAML, "n8n"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var result engine.CompileResult
	decodeBody(t, resp, &result)
	if result.Report == nil || !result.Report.Valid() {
		t.Fatalf("Expected a valid report, got %+v", result.Report)
	}
	if result.Artifact == nil {
		t.Fatal("Expected an artifact")
	}
	if result.Artifact.Target != "n8n" {
		t.Errorf("Expected target 'n8n', got '%s'", result.Artifact.Target)
	}
	if result.Artifact.Checksum == "" {
		t.Error("Expected a content checksum")
	}
	if !json.Valid(result.Artifact.Content) {
		t.Error("Expected JSON artifact content")
	}

	again := postJSON(t, base+"/api/v1/compile", planEnvelope(t, orderSyncYAML, "n8n"))
	var second engine.CompileResult
	decodeBody(t, again, &second)
	if second.Artifact == nil || second.Artifact.Checksum != result.Artifact.Checksum {
		t.Error("Expected identical checksums for identical input")
	}
}

func TestCompileEndpointInvalidPlan(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := postJSON(t, base+"/api/v1/compile", planEnvelope(t, unknownPrimitiveYAML, "n8n"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for a judged plan, got %d", resp.StatusCode)
	}

	var result engine.CompileResult
	decodeBody(t, resp, &result)
	if result.Artifact != nil {
		t.Error("Expected no artifact for an invalid plan")
	}
	if result.Report == nil || result.Report.Valid() {
		t.Error("Expected the report to explain the rejection")
	}
}

func TestCompileEndpointUnknownTarget(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := postJSON(t, base+"/api/v1/compile", planEnvelope(t, orderSyncYAML, "airflow"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}

	var errResp errorResponse
	decodeBody(t, resp, &errResp)
	if errResp.Code != engine.ErrCodeTargetUnknown {
		t.Errorf("Expected code %s, got '%s'", engine.ErrCodeTargetUnknown, errResp.Code)
	}
}

func TestPrimitivesEndpoint(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := getJSON(t, base+"/api/v1/primitives")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var list primitivesResponse
	decodeBody(t, resp, &list)
	if list.Count != 10 {
		t.Fatalf("Expected 10 builtin primitives, got %d", list.Count)
	}

	resp = getJSON(t, base+"/api/v1/primitives?category=control")
	var control primitivesResponse
	decodeBody(t, resp, &control)
	if control.Count == 0 || control.Count >= list.Count {
		t.Fatalf("Expected a narrower control listing, got %d", control.Count)
	}
	for _, summary := range control.Primitives {
		if summary.Category != registry.CategoryControl {
			t.Errorf("Expected only control primitives, got %s in %s", summary.ID, summary.Category)
		}
	}

	resp = getJSON(t, base+"/api/v1/primitives?category=nonexistent")
	var none primitivesResponse
	decodeBody(t, resp, &none)
	if none.Count != 0 {
		t.Errorf("Expected an empty listing, got %d", none.Count)
	}
	if none.Primitives == nil {
		t.Error("Expected an empty array, not null")
	}
}

func TestPrimitiveDetailEndpoint(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := getJSON(t, base+"/api/v1/primitives/P001")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var prim registry.Primitive
	decodeBody(t, resp, &prim)
	if prim.Metadata.Name != "http_call" {
		t.Errorf("Expected name 'http_call', got '%s'", prim.Metadata.Name)
	}
	if len(prim.Interface.Inputs) == 0 {
		t.Error("Expected the full interface on the detail view")
	}

	resp = getJSON(t, base+"/api/v1/primitives/P042")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for an unknown id, got %d", resp.StatusCode)
	}
	var errResp errorResponse
	decodeBody(t, resp, &errResp)
	if errResp.Code != engine.ErrCodeNotFound {
		t.Errorf("Expected code %s, got '%s'", engine.ErrCodeNotFound, errResp.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := getJSON(t, base+"/api/v1/search?q=http")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var hits searchResponse
	decodeBody(t, resp, &hits)
	if hits.Count == 0 {
		t.Fatal("Expected search hits for 'http'")
	}
	if hits.Results[0].ID != "P001" {
		t.Errorf("Expected P001 as the top hit, got %s", hits.Results[0].ID)
	}

	resp = getJSON(t, base+"/api/v1/search")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without a query, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := getJSON(t, base+"/api/v1/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var status engine.Status
	decodeBody(t, resp, &status)
	if status.Primitives != 10 {
		t.Errorf("Expected 10 primitives, got %d", status.Primitives)
	}
	if status.DefaultTarget != "n8n" {
		t.Errorf("Expected default target 'n8n', got '%s'", status.DefaultTarget)
	}
}

func TestHistoryEndpointWithoutStore(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp := getJSON(t, base+"/api/v1/history")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 without a store, got %d", resp.StatusCode)
	}
}

func TestHistoryRecording(t *testing.T) {
	store := newTestStore(t)
	_, base := newTestServer(t, store)
	ctx := context.Background()

	resp := postJSON(t, base+"/api/v1/validate", planEnvelope(t, orderSyncYAML, ""))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp = getJSON(t, base+"/api/v1/history")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var history historyResponse
	decodeBody(t, resp, &history)
	if history.Count != 1 {
		t.Fatalf("Expected 1 recorded submission, got %d", history.Count)
	}

	sub := history.Submissions[0]
	if sub.PlanID != "wf-api-orders" {
		t.Errorf("Expected plan id 'wf-api-orders', got '%s'", sub.PlanID)
	}
	if sub.Via != "api" {
		t.Errorf("Expected via 'api', got '%s'", sub.Via)
	}
	if sub.Status != stores.SubmissionStatusValid {
		t.Errorf("Expected status 'valid', got '%s'", sub.Status)
	}

	validations, err := store.ListValidationsBySubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("failed to list validations: %v", err)
	}
	if len(validations) != 1 {
		t.Fatalf("Expected 1 validation row, got %d", len(validations))
	}
	if validations[0].Status != stores.ValidationStatusCompleted || !validations[0].Valid {
		t.Errorf("Expected a completed valid validation, got %+v", validations[0])
	}
	if validations[0].Report == nil {
		t.Error("Expected the stored validation report")
	}

	resp = postJSON(t, base+"/api/v1/compile", planEnvelope(t, orderSyncYAML, "n8n"))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	artifact, err := store.GetArtifact(ctx, "wf-api-orders", "1.0.0", "n8n")
	if err != nil {
		t.Fatalf("Expected the compiled artifact recorded: %v", err)
	}
	if artifact.Checksum == "" || len(artifact.Content) == 0 {
		t.Error("Expected artifact content and checksum")
	}

	subs, err := store.ListSubmissions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list submissions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("Expected 2 submissions after compile, got %d", len(subs))
	}
	compiled := false
	for _, s := range subs {
		if s.Status == stores.SubmissionStatusCompiled {
			compiled = true
		}
	}
	if !compiled {
		t.Error("Expected a compiled submission")
	}

	audits, err := store.ListAuditEntries(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	actions := make(map[string]int)
	for _, entry := range audits {
		actions[entry.Action]++
	}
	if actions["plan.submitted"] != 2 {
		t.Errorf("Expected 2 plan.submitted audit entries, got %d", actions["plan.submitted"])
	}
	if actions["artifact.compiled"] != 1 {
		t.Errorf("Expected 1 artifact.compiled audit entry, got %d", actions["artifact.compiled"])
	}
}

func TestHistoryRecordsInvalidSubmission(t *testing.T) {
	store := newTestStore(t)
	_, base := newTestServer(t, store)

	resp := postJSON(t, base+"/api/v1/validate", planEnvelope(t, unknownPrimitiveYAML, ""))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	subs, err := store.ListSubmissions(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("failed to list submissions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("Expected 1 submission, got %d", len(subs))
	}
	if subs[0].Status != stores.SubmissionStatusInvalid {
		t.Errorf("Expected status 'invalid', got '%s'", subs[0].Status)
	}
}

func TestHealthzDegradedStore(t *testing.T) {
	store := newTestStore(t)
	_, base := newTestServer(t, store)

	resp := getJSON(t, base+"/healthz")
	var health healthResponse
	decodeBody(t, resp, &health)
	if health.Store != "ok" {
		t.Fatalf("Expected store 'ok', got '%s'", health.Store)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	resp = getJSON(t, base+"/healthz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 with a closed store, got %d", resp.StatusCode)
	}
	var degraded healthResponse
	decodeBody(t, resp, &degraded)
	if degraded.Status != "degraded" || degraded.Store != "unreachable" {
		t.Errorf("Expected a degraded report, got %+v", degraded)
	}
}

func TestDocumentBytes(t *testing.T) {
	object := json.RawMessage(`{"metadata": {"id": "wf"}}`)
	if got := documentBytes(object); !bytes.Equal(got, []byte(`{"metadata": {"id": "wf"}}`)) {
		t.Errorf("Expected object passthrough, got %s", got)
	}

	text := json.RawMessage(`"metadata:\n  id: wf\n"`)
	if got := documentBytes(text); string(got) != "metadata:\n  id: wf\n" {
		t.Errorf("Expected string unwrapping, got %q", got)
	}
}

func TestQueryInt(t *testing.T) {
	if got := queryInt("", 50); got != 50 {
		t.Errorf("Expected fallback 50, got %d", got)
	}
	if got := queryInt("25", 50); got != 25 {
		t.Errorf("Expected 25, got %d", got)
	}
	if got := queryInt("-3", 50); got != 50 {
		t.Errorf("Expected fallback for negative input, got %d", got)
	}
	if got := queryInt("abc", 50); got != 50 {
		t.Errorf("Expected fallback for junk input, got %d", got)
	}
}

func TestShutdownDrainsRequests(t *testing.T) {
	srv, base := newTestServer(t, nil)

	resp := postJSON(t, base+"/api/v1/validate", planEnvelope(t, orderSyncYAML, ""))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Expected clean shutdown, got: %v", err)
	}

	if _, err := http.Get(base + "/healthz"); err == nil {
		t.Error("Expected requests to fail after shutdown")
	}
}
