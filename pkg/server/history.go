package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vizi2000/maicrosoft/pkg/engine"
	"github.com/vizi2000/maicrosoft/pkg/stores"
	"github.com/vizi2000/maicrosoft/pkg/targets"
)

// historyTimeout bounds store writes. They run on a background context
// so a client disconnect does not lose the record.
const historyTimeout = 5 * time.Second

// recordValidation persists a submission and its validation outcome,
// plus the artifact when one was compiled. Store failures are logged
// and swallowed; the verdict already went to the client.
func (s *Server) recordValidation(r *http.Request, data []byte, report *engine.ValidationReport, artifact *targets.Artifact) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	now := time.Now().UTC()
	sub := &stores.Submission{
		ID:          uuid.NewString(),
		PlanID:      report.PlanID,
		Via:         "api",
		Format:      documentFormat(data),
		Document:    string(data),
		Status:      stores.SubmissionStatusPending,
		SubmittedAt: now,
		Metadata:    "{}",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record submission")
		return
	}

	val := &stores.Validation{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		Target:       report.Target,
		Status:       stores.ValidationStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateValidation(ctx, val); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record validation")
	} else {
		var reportJSON *string
		if encoded, err := json.Marshal(report); err == nil {
			text := string(encoded)
			reportJSON = &text
		}
		violations, warnings := 0, 0
		if report.Result != nil {
			violations = len(report.Result.Violations)
			warnings = len(report.Result.Warnings)
		}
		if err := s.store.RecordValidationResult(ctx, val.ID, report.Valid(), violations, warnings, reportJSON); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record validation result")
		}
	}

	status := stores.SubmissionStatusInvalid
	if report.Valid() {
		status = stores.SubmissionStatusValid
	}
	if artifact != nil {
		s.recordArtifact(ctx, sub.ID, artifact)
		status = stores.SubmissionStatusCompiled
	}
	if err := s.store.UpdateSubmissionStatus(ctx, sub.ID, status, nil); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update submission status")
	}

	s.audit(ctx, "plan.submitted", report.PlanID, r.RemoteAddr)
}

// recordFault persists a submission that the engine failed on, as
// opposed to one it judged.
func (s *Server) recordFault(r *http.Request, data []byte, engineErr error) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	now := time.Now().UTC()
	sub := &stores.Submission{
		ID:          uuid.NewString(),
		Via:         "api",
		Format:      documentFormat(data),
		Document:    string(data),
		Status:      stores.SubmissionStatusPending,
		SubmittedAt: now,
		Metadata:    "{}",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record submission")
		return
	}

	message := engineErr.Error()
	if err := s.store.UpdateSubmissionStatus(ctx, sub.ID, stores.SubmissionStatusFailed, &message); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update submission status")
	}
	s.audit(ctx, "plan.submitted", "", r.RemoteAddr)
}

// recordArtifact upserts the compiled artifact for its plan version
// and target.
func (s *Server) recordArtifact(ctx context.Context, submissionID string, artifact *targets.Artifact) {
	now := time.Now().UTC()
	row := &stores.Artifact{
		ID:               uuid.NewString(),
		PlanID:           artifact.PlanID,
		PlanVersion:      artifact.PlanVersion,
		Target:           artifact.Target,
		Format:           artifact.Format,
		Checksum:         artifact.Checksum,
		Content:          artifact.Content,
		LastSubmissionID: submissionID,
		CompiledAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.UpsertArtifact(ctx, row); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record artifact")
		return
	}
	s.audit(ctx, "artifact.compiled", artifact.PlanID, "")
}

// audit appends one audit trail entry.
func (s *Server) audit(ctx context.Context, action, planID, remoteAddr string) {
	entry := &stores.AuditEntry{
		Action:    action,
		Actor:     "api",
		Timestamp: time.Now().UTC(),
	}
	if planID != "" {
		entry.PlanID = &planID
	}
	if remoteAddr != "" {
		entry.RemoteAddr = &remoteAddr
	}
	if err := s.store.CreateAuditEntry(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record audit entry")
	}
}

// documentFormat guesses the submitted serialization for the history
// record. JSON is a YAML subset, so the parse path does not care.
func documentFormat(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "json"
	}
	return "yaml"
}
