package stores

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a SQLite store backed by a temporary file
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "maicrosoft.db"),
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

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "maicrosoft.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"submissions", "validations", "artifacts", "events", "audit"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestSubmissionCRUD tests Submission CRUD operations
func TestSubmissionCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Create
	sub := &Submission{
		ID:          "sub-001",
		PlanID:      "wf-order-sync",
		Via:         "cli",
		Format:      "json",
		Document:    `{"id":"wf-order-sync","version":"1.0.0"}`,
		Status:      SubmissionStatusPending,
		SubmittedAt: now,
		Metadata:    `{"env":"test"}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := store.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	// Read
	retrieved, err := store.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("failed to get submission: %v", err)
	}

	if retrieved.ID != sub.ID {
		t.Errorf("expected ID %s, got %s", sub.ID, retrieved.ID)
	}
	if retrieved.PlanID != sub.PlanID {
		t.Errorf("expected PlanID %s, got %s", sub.PlanID, retrieved.PlanID)
	}
	if retrieved.Status != sub.Status {
		t.Errorf("expected Status %s, got %s", sub.Status, retrieved.Status)
	}
	if retrieved.Document != sub.Document {
		t.Errorf("expected Document %s, got %s", sub.Document, retrieved.Document)
	}

	// Update
	errMsg := "policy engine unavailable"
	if err := store.UpdateSubmissionStatus(ctx, sub.ID, SubmissionStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to update submission status: %v", err)
	}

	updated, err := store.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("failed to get updated submission: %v", err)
	}

	if updated.Status != SubmissionStatusFailed {
		t.Errorf("expected Status %s, got %s", SubmissionStatusFailed, updated.Status)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, updated.Error)
	}
	if updated.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// List
	subs, err := store.ListSubmissions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list submissions: %v", err)
	}

	if len(subs) != 1 {
		t.Errorf("expected 1 submission, got %d", len(subs))
	}

	// Delete
	if err := store.DeleteSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("failed to delete submission: %v", err)
	}

	_, err = store.GetSubmission(ctx, sub.ID)
	if err == nil {
		t.Error("expected error when getting deleted submission")
	}
}

// TestPurgeSubmissions tests retention-based deletion
func TestPurgeSubmissions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	stale := now.Add(-48 * time.Hour)

	old := &Submission{
		ID:          "sub-old",
		PlanID:      "wf-old",
		Via:         "api",
		Format:      "json",
		Document:    `{}`,
		Status:      SubmissionStatusCompiled,
		SubmittedAt: stale,
		Metadata:    `{}`,
		CreatedAt:   stale,
		UpdatedAt:   stale,
	}
	recent := &Submission{
		ID:          "sub-new",
		PlanID:      "wf-new",
		Via:         "api",
		Format:      "json",
		Document:    `{}`,
		Status:      SubmissionStatusPending,
		SubmittedAt: now,
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := store.CreateSubmission(ctx, old); err != nil {
		t.Fatalf("failed to create old submission: %v", err)
	}
	if err := store.CreateSubmission(ctx, recent); err != nil {
		t.Fatalf("failed to create recent submission: %v", err)
	}

	purged, err := store.PurgeSubmissions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to purge submissions: %v", err)
	}

	if purged != 1 {
		t.Errorf("expected 1 purged submission, got %d", purged)
	}

	remaining, err := store.ListSubmissions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list submissions: %v", err)
	}

	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining submission, got %d", len(remaining))
	}
	if remaining[0].ID != recent.ID {
		t.Errorf("expected remaining submission %s, got %s", recent.ID, remaining[0].ID)
	}
}

// TestValidationLifecycle tests Validation operations
func TestValidationLifecycle(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Create a submission first (required for foreign key)
	sub := &Submission{
		ID:          "sub-002",
		PlanID:      "wf-order-sync",
		Via:         "api",
		Format:      "json",
		Document:    `{}`,
		Status:      SubmissionStatusValidating,
		SubmittedAt: now,
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	// Create
	v := &Validation{
		ID:           "val-001",
		SubmissionID: sub.ID,
		Target:       "n8n",
		Status:       ValidationStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateValidation(ctx, v); err != nil {
		t.Fatalf("failed to create validation: %v", err)
	}

	// Transition to running
	if err := store.UpdateValidationStatus(ctx, v.ID, ValidationStatusRunning, nil); err != nil {
		t.Fatalf("failed to update validation status: %v", err)
	}

	running, err := store.GetValidation(ctx, v.ID)
	if err != nil {
		t.Fatalf("failed to get validation: %v", err)
	}

	if running.Status != ValidationStatusRunning {
		t.Errorf("expected Status %s, got %s", ValidationStatusRunning, running.Status)
	}
	if running.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}

	// Record the outcome
	report := `{"violations":[{"code":"MISSING_INPUT","node_id":"fetch"}]}`
	if err := store.RecordValidationResult(ctx, v.ID, false, 1, 0, &report); err != nil {
		t.Fatalf("failed to record validation result: %v", err)
	}

	completed, err := store.GetValidation(ctx, v.ID)
	if err != nil {
		t.Fatalf("failed to get completed validation: %v", err)
	}

	if completed.Status != ValidationStatusCompleted {
		t.Errorf("expected Status %s, got %s", ValidationStatusCompleted, completed.Status)
	}
	if completed.Valid {
		t.Error("expected Valid to be false")
	}
	if completed.Violations != 1 {
		t.Errorf("expected 1 violation, got %d", completed.Violations)
	}
	if completed.Report == nil || *completed.Report != report {
		t.Errorf("expected Report %s, got %v", report, completed.Report)
	}
	if completed.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// Increment Retries
	if err := store.IncrementValidationRetries(ctx, v.ID); err != nil {
		t.Fatalf("failed to increment retries: %v", err)
	}

	retried, err := store.GetValidation(ctx, v.ID)
	if err != nil {
		t.Fatalf("failed to get validation after retry increment: %v", err)
	}

	if retried.Retries != 1 {
		t.Errorf("expected Retries 1, got %d", retried.Retries)
	}

	// Failed validation carries the engine error
	failed := &Validation{
		ID:           "val-002",
		SubmissionID: sub.ID,
		Target:       "dot",
		Status:       ValidationStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateValidation(ctx, failed); err != nil {
		t.Fatalf("failed to create second validation: %v", err)
	}

	errMsg := "policy evaluation failed"
	if err := store.UpdateValidationStatus(ctx, failed.ID, ValidationStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to fail validation: %v", err)
	}

	stored, err := store.GetValidation(ctx, failed.ID)
	if err != nil {
		t.Fatalf("failed to get failed validation: %v", err)
	}

	if stored.Error == nil || *stored.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, stored.Error)
	}
	if stored.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// List by submission
	validations, err := store.ListValidationsBySubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("failed to list validations: %v", err)
	}

	if len(validations) != 2 {
		t.Errorf("expected 2 validations, got %d", len(validations))
	}

	// Delete
	if err := store.DeleteValidation(ctx, v.ID); err != nil {
		t.Fatalf("failed to delete validation: %v", err)
	}

	_, err = store.GetValidation(ctx, v.ID)
	if err == nil {
		t.Error("expected error when getting deleted validation")
	}
}

// TestEventOperations tests Event operations
func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Create a submission first
	sub := &Submission{
		ID:          "sub-003",
		PlanID:      "wf-order-sync",
		Via:         "cli",
		Format:      "json",
		Document:    `{}`,
		Status:      SubmissionStatusValidating,
		SubmittedAt: now,
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	// Append events
	events := []*Event{
		{
			SubmissionID: &sub.ID,
			Level:        EventLevelInfo,
			Message:      "validation started",
			Timestamp:    now,
		},
		{
			SubmissionID: &sub.ID,
			Level:        EventLevelWarning,
			Message:      "fallback limit close to maximum",
			Timestamp:    now.Add(1 * time.Second),
		},
		{
			SubmissionID: &sub.ID,
			Level:        EventLevelError,
			Message:      "circular dependency detected",
			Timestamp:    now.Add(2 * time.Second),
		},
	}

	for _, event := range events {
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if event.ID == 0 {
			t.Error("expected event ID to be set after insert")
		}
	}

	// Get all events for the submission
	retrieved, err := store.GetEvents(ctx, &sub.ID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}

	if len(retrieved) != 3 {
		t.Errorf("expected 3 events, got %d", len(retrieved))
	}

	// Filter by level
	errorLevel := EventLevelError
	filtered, err := store.GetEvents(ctx, nil, nil, &errorLevel, 10, 0)
	if err != nil {
		t.Fatalf("failed to get filtered events: %v", err)
	}

	if len(filtered) != 1 {
		t.Errorf("expected 1 error event, got %d", len(filtered))
	}
	if filtered[0].Level != EventLevelError {
		t.Errorf("expected level %s, got %s", EventLevelError, filtered[0].Level)
	}

	// Validation-scoped event
	v := &Validation{
		ID:           "val-003",
		SubmissionID: sub.ID,
		Target:       "n8n",
		Status:       ValidationStatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateValidation(ctx, v); err != nil {
		t.Fatalf("failed to create validation: %v", err)
	}

	scoped := &Event{
		SubmissionID: &sub.ID,
		ValidationID: &v.ID,
		Level:        EventLevelInfo,
		Message:      "reference resolution passed",
		Timestamp:    now.Add(3 * time.Second),
	}
	if err := store.AppendEvent(ctx, scoped); err != nil {
		t.Fatalf("failed to append scoped event: %v", err)
	}

	byValidation, err := store.GetEvents(ctx, nil, &v.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get validation events: %v", err)
	}

	if len(byValidation) != 1 {
		t.Errorf("expected 1 validation event, got %d", len(byValidation))
	}
}

// TestArtifactOperations tests Artifact upserts and retrieval
func TestArtifactOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Upsert (insert)
	artifact := &Artifact{
		ID:               "art-001",
		PlanID:           "wf-order-sync",
		PlanVersion:      "1.0.0",
		Target:           "n8n",
		Format:           "json",
		Checksum:         "abc123def456",
		Content:          []byte(`{"name":"order-sync","nodes":[]}`),
		LastSubmissionID: "sub-001",
		CompiledAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := store.UpsertArtifact(ctx, artifact); err != nil {
		t.Fatalf("failed to upsert artifact: %v", err)
	}

	// Get
	retrieved, err := store.GetArtifact(ctx, artifact.PlanID, artifact.PlanVersion, artifact.Target)
	if err != nil {
		t.Fatalf("failed to get artifact: %v", err)
	}

	if retrieved.Checksum != artifact.Checksum {
		t.Errorf("expected Checksum %s, got %s", artifact.Checksum, retrieved.Checksum)
	}
	if string(retrieved.Content) != string(artifact.Content) {
		t.Errorf("expected Content %s, got %s", artifact.Content, retrieved.Content)
	}

	// Upsert (update)
	artifact.Checksum = "xyz789ghi012"
	artifact.Content = []byte(`{"name":"order-sync","nodes":[{"name":"Fetch"}]}`)
	artifact.CompiledAt = now.Add(1 * time.Second)
	artifact.UpdatedAt = now.Add(1 * time.Second)

	if err := store.UpsertArtifact(ctx, artifact); err != nil {
		t.Fatalf("failed to upsert artifact (update): %v", err)
	}

	updated, err := store.GetArtifact(ctx, artifact.PlanID, artifact.PlanVersion, artifact.Target)
	if err != nil {
		t.Fatalf("failed to get updated artifact: %v", err)
	}

	if updated.Checksum != "xyz789ghi012" {
		t.Errorf("expected updated Checksum xyz789ghi012, got %s", updated.Checksum)
	}

	// Unknown key
	_, err = store.GetArtifact(ctx, artifact.PlanID, "9.9.9", artifact.Target)
	if err == nil {
		t.Error("expected error when getting unknown artifact")
	}

	// List
	artifacts, err := store.ListArtifacts(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list artifacts: %v", err)
	}

	if len(artifacts) != 1 {
		t.Errorf("expected 1 artifact, got %d", len(artifacts))
	}

	// Delete
	if err := store.DeleteArtifact(ctx, artifact.ID); err != nil {
		t.Fatalf("failed to delete artifact: %v", err)
	}

	_, err = store.GetArtifact(ctx, artifact.PlanID, artifact.PlanVersion, artifact.Target)
	if err == nil {
		t.Error("expected error when getting deleted artifact")
	}
}

// TestAuditOperations tests Audit operations
func TestAuditOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	planID := "wf-order-sync"
	entries := []*AuditEntry{
		{
			Action:    "plan.submitted",
			Actor:     "admin",
			PlanID:    &planID,
			Timestamp: now,
		},
		{
			Action:    "artifact.published",
			Actor:     "system",
			Timestamp: now.Add(1 * time.Second),
		},
		{
			Action:    "plan.submitted",
			Actor:     "user1",
			Timestamp: now.Add(2 * time.Second),
		},
	}

	for _, entry := range entries {
		if err := store.CreateAuditEntry(ctx, entry); err != nil {
			t.Fatalf("failed to create audit entry: %v", err)
		}
		if entry.ID == 0 {
			t.Error("expected audit entry ID to be set after insert")
		}
	}

	// List all
	retrieved, err := store.ListAuditEntries(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}

	if len(retrieved) != 3 {
		t.Errorf("expected 3 audit entries, got %d", len(retrieved))
	}

	// Filter by action
	action := "plan.submitted"
	filtered, err := store.ListAuditEntries(ctx, &action, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list filtered audit entries: %v", err)
	}

	if len(filtered) != 2 {
		t.Errorf("expected 2 plan.submitted entries, got %d", len(filtered))
	}

	// Filter by actor
	actor := "admin"
	actorFiltered, err := store.ListAuditEntries(ctx, nil, &actor, 10, 0)
	if err != nil {
		t.Fatalf("failed to list actor filtered audit entries: %v", err)
	}

	if len(actorFiltered) != 1 {
		t.Errorf("expected 1 admin entry, got %d", len(actorFiltered))
	}
	if actorFiltered[0].PlanID == nil || *actorFiltered[0].PlanID != planID {
		t.Errorf("expected PlanID %s, got %v", planID, actorFiltered[0].PlanID)
	}
}

// TestTransactions tests transaction support
func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Begin transaction
	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	query := `
		INSERT INTO submissions (id, plan_id, via, format, document, status, error, submitted_at, completed_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query, "sub-tx-001", "wf-tx", "cli", "json", "{}", "pending", nil, now, nil, "{}", now, now)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert submission in transaction: %v", err)
	}

	// Rollback
	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to rollback transaction: %v", err)
	}

	// Verify submission was not created
	_, err = store.GetSubmission(ctx, "sub-tx-001")
	if err == nil {
		t.Error("expected error when getting rolled back submission")
	}

	// Begin new transaction and commit
	tx, err = store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin second transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx, query, "sub-tx-001", "wf-tx", "cli", "json", "{}", "pending", nil, now, nil, "{}", now, now)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert submission in second transaction: %v", err)
	}

	if err := store.CommitTx(tx); err != nil {
		t.Fatalf("failed to commit transaction: %v", err)
	}

	// Verify submission was created
	retrieved, err := store.GetSubmission(ctx, "sub-tx-001")
	if err != nil {
		t.Fatalf("failed to get committed submission: %v", err)
	}

	if retrieved.ID != "sub-tx-001" {
		t.Errorf("expected ID sub-tx-001, got %s", retrieved.ID)
	}
}

// TestCascadeDelete tests foreign key cascading
func TestCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Create submission
	sub := &Submission{
		ID:          "sub-cascade-001",
		PlanID:      "wf-cascade",
		Via:         "api",
		Format:      "json",
		Document:    `{}`,
		Status:      SubmissionStatusValidating,
		SubmittedAt: now,
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	// Create validation
	v := &Validation{
		ID:           "val-cascade-001",
		SubmissionID: sub.ID,
		Target:       "n8n",
		Status:       ValidationStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateValidation(ctx, v); err != nil {
		t.Fatalf("failed to create validation: %v", err)
	}

	// Create events scoped to both
	event := &Event{
		SubmissionID: &sub.ID,
		Level:        EventLevelInfo,
		Message:      "submission received",
		Timestamp:    now,
	}
	if err := store.AppendEvent(ctx, event); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	scoped := &Event{
		SubmissionID: &sub.ID,
		ValidationID: &v.ID,
		Level:        EventLevelInfo,
		Message:      "validation queued",
		Timestamp:    now.Add(1 * time.Second),
	}
	if err := store.AppendEvent(ctx, scoped); err != nil {
		t.Fatalf("failed to append scoped event: %v", err)
	}

	// Delete submission (should cascade to validations and events)
	if err := store.DeleteSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("failed to delete submission: %v", err)
	}

	// Verify validation was deleted
	_, err := store.GetValidation(ctx, v.ID)
	if err == nil {
		t.Error("expected error when getting cascaded deleted validation")
	}

	// Verify events were deleted
	events, err := store.GetEvents(ctx, &sub.ID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events after cascade delete, got %d", len(events))
	}
}

// TestMain sets up and tears down test environment
func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()

	// Exit
	os.Exit(code)
}
