package stores

import (
	"context"
	"database/sql"
	"time"
)

// SubmissionStatus represents the status of a plan submission
type SubmissionStatus string

const (
	SubmissionStatusPending    SubmissionStatus = "pending"
	SubmissionStatusValidating SubmissionStatus = "validating"
	SubmissionStatusValid      SubmissionStatus = "valid"
	SubmissionStatusInvalid    SubmissionStatus = "invalid"
	SubmissionStatusCompiled   SubmissionStatus = "compiled"
	SubmissionStatusFailed     SubmissionStatus = "failed"
)

// ValidationStatus represents the status of a validation attempt
type ValidationStatus string

const (
	ValidationStatusPending   ValidationStatus = "pending"
	ValidationStatusRunning   ValidationStatus = "running"
	ValidationStatusCompleted ValidationStatus = "completed"
	ValidationStatusFailed    ValidationStatus = "failed"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Submission represents a plan document received for processing
type Submission struct {
	ID          string           `json:"id"`
	PlanID      string           `json:"plan_id"` // empty until the document parses
	Via         string           `json:"via"`     // cli, api, compose
	Format      string           `json:"format"`  // json, cue, starlark
	Document    string           `json:"document"`
	Status      SubmissionStatus `json:"status"`
	Error       *string          `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Metadata    string           `json:"metadata"` // JSON blob
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Validation represents a single validation attempt against a target
type Validation struct {
	ID           string           `json:"id"`
	SubmissionID string           `json:"submission_id"`
	Target       string           `json:"target"`
	Status       ValidationStatus `json:"status"`
	Valid        bool             `json:"valid"`
	Violations   int              `json:"violations"`
	Warnings     int              `json:"warnings"`
	Report       *string          `json:"report,omitempty"` // JSON blob
	Error        *string          `json:"error,omitempty"`
	Retries      int              `json:"retries"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Event represents an append-only log event
type Event struct {
	ID           int64      `json:"id"`
	SubmissionID *string    `json:"submission_id,omitempty"`
	ValidationID *string    `json:"validation_id,omitempty"`
	Level        EventLevel `json:"level"`
	Message      string     `json:"message"`
	Details      *string    `json:"details,omitempty"` // JSON blob
	Timestamp    time.Time  `json:"timestamp"`
}

// Artifact represents a compiled workflow stored for a plan version and target
type Artifact struct {
	ID               string    `json:"id"`
	PlanID           string    `json:"plan_id"`
	PlanVersion      string    `json:"plan_version"`
	Target           string    `json:"target"`
	Format           string    `json:"format"`   // e.g., "json", "dot"
	Checksum         string    `json:"checksum"` // SHA256 of content
	Content          []byte    `json:"content"`
	LastSubmissionID string    `json:"last_submission_id"`
	CompiledAt       time.Time `json:"compiled_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"` // e.g., "plan.submitted", "artifact.compiled"
	Actor      string    `json:"actor"`  // user or system identifier
	PlanID     *string   `json:"plan_id,omitempty"`
	Details    *string   `json:"details,omitempty"` // JSON blob
	RemoteAddr *string   `json:"remote_addr,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Submission operations
	CreateSubmission(ctx context.Context, sub *Submission) error
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id string, status SubmissionStatus, err *string) error
	ListSubmissions(ctx context.Context, limit, offset int) ([]*Submission, error)
	DeleteSubmission(ctx context.Context, id string) error
	PurgeSubmissions(ctx context.Context, before time.Time) (int64, error)

	// Validation operations
	CreateValidation(ctx context.Context, v *Validation) error
	GetValidation(ctx context.Context, id string) (*Validation, error)
	UpdateValidationStatus(ctx context.Context, id string, status ValidationStatus, err *string) error
	RecordValidationResult(ctx context.Context, id string, valid bool, violations, warnings int, report *string) error
	ListValidationsBySubmission(ctx context.Context, submissionID string) ([]*Validation, error)
	DeleteValidation(ctx context.Context, id string) error
	IncrementValidationRetries(ctx context.Context, id string) error

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, submissionID *string, validationID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Artifact operations
	UpsertArtifact(ctx context.Context, artifact *Artifact) error
	GetArtifact(ctx context.Context, planID, planVersion, target string) (*Artifact, error)
	ListArtifacts(ctx context.Context, limit, offset int) ([]*Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error

	// Audit operations
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
