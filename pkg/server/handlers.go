package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vizi2000/maicrosoft/pkg/engine"
	"github.com/vizi2000/maicrosoft/pkg/registry"
	"github.com/vizi2000/maicrosoft/pkg/stores"
)

// planRequest is the envelope for validate and compile submissions.
// Document carries the plan: a JSON object, or a JSON string holding
// YAML source.
type planRequest struct {
	Document json.RawMessage `json:"document"`
	Target   string          `json:"target,omitempty"`
}

type primitivesResponse struct {
	Primitives []registry.Summary `json:"primitives"`
	Count      int                `json:"count"`
}

type searchResponse struct {
	Query   string                  `json:"query"`
	Results []registry.SearchResult `json:"results"`
	Count   int                     `json:"count"`
}

type historyResponse struct {
	Submissions []*stores.Submission `json:"submissions"`
	Count       int                  `json:"count"`
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Store         string `json:"store,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, data, ok := s.decodePlanRequest(w, r)
	if !ok {
		return
	}

	report, err := s.engine.ValidateForTarget(r.Context(), data, req.Target)
	if err != nil {
		s.recordFault(r, data, err)
		s.writeEngineError(w, err)
		return
	}

	s.recordValidation(r, data, report, nil)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, data, ok := s.decodePlanRequest(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Compile(r.Context(), data, req.Target)
	if err != nil {
		s.recordFault(r, data, err)
		s.writeEngineError(w, err)
		return
	}

	s.recordValidation(r, data, result.Report, result.Artifact)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListPrimitives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := registry.ListFilter{
		Type:     registry.PrimitiveType(q.Get("type")),
		Category: registry.Category(q.Get("category")),
		Status:   registry.Status(q.Get("status")),
	}

	summaries := s.engine.ListPrimitives(filter)
	if summaries == nil {
		summaries = []registry.Summary{}
	}
	writeJSON(w, http.StatusOK, primitivesResponse{
		Primitives: summaries,
		Count:      len(summaries),
	})
}

func (s *Server) handleGetPrimitive(w http.ResponseWriter, r *http.Request) {
	prim, err := s.engine.GetPrimitive(r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prim)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter q is required"})
		return
	}

	limit := queryInt(q.Get("limit"), 20)
	results := s.engine.SearchPrimitives(query, limit)
	if results == nil {
		results = []registry.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Results: results,
		Count:   len(results),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history store is not configured"})
		return
	}

	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), s.config.HistoryPageSize)
	offset := queryInt(q.Get("offset"), 0)

	subs, err := s.store.ListSubmissions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list submissions")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list submissions"})
		return
	}
	if subs == nil {
		subs = []*stores.Submission{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Submissions: subs,
		Count:       len(subs),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}

	if s.store != nil {
		if err := s.store.HealthCheck(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Store health check failed")
			resp.Status = "degraded"
			resp.Store = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Store = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodePlanRequest reads and decodes a plan submission. On failure it
// has already written the error response.
func (s *Server) decodePlanRequest(w http.ResponseWriter, r *http.Request) (*planRequest, []byte, bool) {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body exceeds limit"})
		} else {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unable to read request body"})
		}
		return nil, nil, false
	}

	var req planRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request is not valid JSON"})
		return nil, nil, false
	}
	if len(bytes.TrimSpace(req.Document)) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "document is required"})
		return nil, nil, false
	}
	return &req, documentBytes(req.Document), true
}

// documentBytes unwraps a string-valued document into its text form so
// clients can submit YAML sources. Object documents pass through as
// raw JSON, which the plan parser accepts directly.
func documentBytes(doc json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err == nil {
			return []byte(text)
		}
	}
	return trimmed
}

// writeEngineError maps an engine fault onto an HTTP status. Client
// mistakes get 4xx, transient faults 503, the rest 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) {
		s.logger.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch engErr.Code {
	case engine.ErrCodeNotFound:
		status = http.StatusNotFound
	case engine.ErrCodeTargetUnknown, engine.ErrCodeParseFailed:
		status = http.StatusBadRequest
	default:
		switch engErr.Class {
		case engine.ErrorClassTransient:
			status = http.StatusServiceUnavailable
		case engine.ErrorClassConflict:
			status = http.StatusConflict
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: engErr.Message, Code: engErr.Code})
}

// queryInt parses a positive integer query parameter, falling back on
// bad or absent input.
func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
