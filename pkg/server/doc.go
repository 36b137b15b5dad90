// Package server exposes the engine over a JSON HTTP API.
//
// The API mirrors the engine facade: plans are validated and compiled
// by POSTing documents, the primitive catalog is browsable and
// searchable, and past submissions can be listed when a history store
// is attached. Metrics are not served here; the telemetry package owns
// the /metrics listener on its own address.
//
// Endpoints:
//
//	POST /api/v1/validate        validate a plan document
//	POST /api/v1/compile         validate and compile a plan document
//	GET  /api/v1/primitives      list the catalog (type, category, status filters)
//	GET  /api/v1/primitives/{id} fetch one primitive definition
//	GET  /api/v1/search          keyword search over the catalog
//	GET  /api/v1/history         list recorded submissions
//	GET  /api/v1/status          engine status: catalog, targets, policies
//	GET  /healthz                liveness, including store reachability
//
// A rejected plan is not an HTTP error: validate and compile answer
// 200 with the verdict in the report. Error statuses are reserved for
// malformed requests and engine faults. Artifact content rides in the
// compile response base64-encoded, as encoding/json renders byte
// slices.
package server
