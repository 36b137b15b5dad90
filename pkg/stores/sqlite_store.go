package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters. The
	// pragmas are applied to every pooled connection.
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateSubmission creates a new submission record
func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *Submission) error {
	query := `
		INSERT INTO submissions (id, plan_id, via, format, document, status, error, submitted_at, completed_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		sub.ID,
		sub.PlanID,
		sub.Via,
		sub.Format,
		sub.Document,
		sub.Status,
		sub.Error,
		sub.SubmittedAt,
		sub.CompletedAt,
		sub.Metadata,
		sub.CreatedAt,
		sub.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}

	return nil
}

// GetSubmission retrieves a submission by ID
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	query := `
		SELECT id, plan_id, via, format, document, status, error, submitted_at, completed_at, metadata, created_at, updated_at
		FROM submissions
		WHERE id = ?
	`

	sub := &Submission{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sub.ID,
		&sub.PlanID,
		&sub.Via,
		&sub.Format,
		&sub.Document,
		&sub.Status,
		&sub.Error,
		&sub.SubmittedAt,
		&sub.CompletedAt,
		&sub.Metadata,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	return sub, nil
}

// UpdateSubmissionStatus updates the status of a submission
func (s *SQLiteStore) UpdateSubmissionStatus(ctx context.Context, id string, status SubmissionStatus, errMsg *string) error {
	query := `
		UPDATE submissions
		SET status = ?, error = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var completedAt *time.Time
	if status == SubmissionStatusValid || status == SubmissionStatusInvalid ||
		status == SubmissionStatusCompiled || status == SubmissionStatusFailed {
		now := time.Now().UTC()
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("submission not found: %s", id)
	}

	return nil
}

// ListSubmissions lists submissions with pagination
func (s *SQLiteStore) ListSubmissions(ctx context.Context, limit, offset int) ([]*Submission, error) {
	query := `
		SELECT id, plan_id, via, format, document, status, error, submitted_at, completed_at, metadata, created_at, updated_at
		FROM submissions
		ORDER BY submitted_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	subs := []*Submission{}
	for rows.Next() {
		sub := &Submission{}
		err := rows.Scan(
			&sub.ID,
			&sub.PlanID,
			&sub.Via,
			&sub.Format,
			&sub.Document,
			&sub.Status,
			&sub.Error,
			&sub.SubmittedAt,
			&sub.CompletedAt,
			&sub.Metadata,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}

	return subs, nil
}

// DeleteSubmission deletes a submission by ID
func (s *SQLiteStore) DeleteSubmission(ctx context.Context, id string) error {
	query := `DELETE FROM submissions WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("submission not found: %s", id)
	}

	return nil
}

// PurgeSubmissions deletes submissions created at or before the cutoff.
// Validations and events attached to them are removed by the cascade.
// Stored timestamps are compared as written, so callers pass UTC times.
func (s *SQLiteStore) PurgeSubmissions(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM submissions WHERE created_at <= ?`

	result, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge submissions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// CreateValidation creates a new validation record
func (s *SQLiteStore) CreateValidation(ctx context.Context, v *Validation) error {
	query := `
		INSERT INTO validations (
			id, submission_id, target, status, valid, violations, warnings,
			report, error, retries, started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		v.ID,
		v.SubmissionID,
		v.Target,
		v.Status,
		v.Valid,
		v.Violations,
		v.Warnings,
		v.Report,
		v.Error,
		v.Retries,
		v.StartedAt,
		v.CompletedAt,
		v.CreatedAt,
		v.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create validation: %w", err)
	}

	return nil
}

// GetValidation retrieves a validation by ID
func (s *SQLiteStore) GetValidation(ctx context.Context, id string) (*Validation, error) {
	query := `
		SELECT id, submission_id, target, status, valid, violations, warnings,
			   report, error, retries, started_at, completed_at, created_at, updated_at
		FROM validations
		WHERE id = ?
	`

	v := &Validation{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.SubmissionID,
		&v.Target,
		&v.Status,
		&v.Valid,
		&v.Violations,
		&v.Warnings,
		&v.Report,
		&v.Error,
		&v.Retries,
		&v.StartedAt,
		&v.CompletedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("validation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validation: %w", err)
	}

	return v, nil
}

// UpdateValidationStatus updates the status of a validation
func (s *SQLiteStore) UpdateValidationStatus(ctx context.Context, id string, status ValidationStatus, errMsg *string) error {
	query := `
		UPDATE validations
		SET status = ?, error = ?,
			started_at = CASE WHEN started_at IS NULL AND ? = 'running' THEN CURRENT_TIMESTAMP ELSE started_at END,
			completed_at = CASE WHEN ? IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, errMsg, status, status, id)
	if err != nil {
		return fmt.Errorf("failed to update validation status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("validation not found: %s", id)
	}

	return nil
}

// RecordValidationResult stores the outcome of a completed validation
func (s *SQLiteStore) RecordValidationResult(ctx context.Context, id string, valid bool, violations, warnings int, report *string) error {
	query := `
		UPDATE validations
		SET status = 'completed', valid = ?, violations = ?, warnings = ?, report = ?,
			completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, valid, violations, warnings, report, id)
	if err != nil {
		return fmt.Errorf("failed to record validation result: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("validation not found: %s", id)
	}

	return nil
}

// ListValidationsBySubmission lists all validations for a submission
func (s *SQLiteStore) ListValidationsBySubmission(ctx context.Context, submissionID string) ([]*Validation, error) {
	query := `
		SELECT id, submission_id, target, status, valid, violations, warnings,
			   report, error, retries, started_at, completed_at, created_at, updated_at
		FROM validations
		WHERE submission_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list validations: %w", err)
	}
	defer rows.Close()

	validations := []*Validation{}
	for rows.Next() {
		v := &Validation{}
		err := rows.Scan(
			&v.ID,
			&v.SubmissionID,
			&v.Target,
			&v.Status,
			&v.Valid,
			&v.Violations,
			&v.Warnings,
			&v.Report,
			&v.Error,
			&v.Retries,
			&v.StartedAt,
			&v.CompletedAt,
			&v.CreatedAt,
			&v.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validation: %w", err)
		}
		validations = append(validations, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating validations: %w", err)
	}

	return validations, nil
}

// DeleteValidation deletes a validation by ID
func (s *SQLiteStore) DeleteValidation(ctx context.Context, id string) error {
	query := `DELETE FROM validations WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete validation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("validation not found: %s", id)
	}

	return nil
}

// IncrementValidationRetries increments the retry counter for a validation
func (s *SQLiteStore) IncrementValidationRetries(ctx context.Context, id string) error {
	query := `UPDATE validations SET retries = retries + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("validation not found: %s", id)
	}

	return nil
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (submission_id, validation_id, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.SubmissionID,
		event.ValidationID,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination
func (s *SQLiteStore) GetEvents(ctx context.Context, submissionID *string, validationID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, submission_id, validation_id, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR submission_id = ?)
		  AND (? IS NULL OR validation_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, submissionID, submissionID, validationID, validationID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.SubmissionID,
			&event.ValidationID,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// UpsertArtifact inserts or updates a compiled artifact
func (s *SQLiteStore) UpsertArtifact(ctx context.Context, artifact *Artifact) error {
	query := `
		INSERT INTO artifacts (
			id, plan_id, plan_version, target, format, checksum, content,
			last_submission_id, compiled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, plan_version, target) DO UPDATE SET
			format = excluded.format,
			checksum = excluded.checksum,
			content = excluded.content,
			last_submission_id = excluded.last_submission_id,
			compiled_at = excluded.compiled_at,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		artifact.ID,
		artifact.PlanID,
		artifact.PlanVersion,
		artifact.Target,
		artifact.Format,
		artifact.Checksum,
		artifact.Content,
		artifact.LastSubmissionID,
		artifact.CompiledAt,
		artifact.CreatedAt,
		artifact.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}

	return nil
}

// GetArtifact retrieves the artifact compiled for a plan version and target
func (s *SQLiteStore) GetArtifact(ctx context.Context, planID, planVersion, target string) (*Artifact, error) {
	query := `
		SELECT id, plan_id, plan_version, target, format, checksum, content,
			   last_submission_id, compiled_at, created_at, updated_at
		FROM artifacts
		WHERE plan_id = ? AND plan_version = ? AND target = ?
	`

	artifact := &Artifact{}
	err := s.db.QueryRowContext(ctx, query, planID, planVersion, target).Scan(
		&artifact.ID,
		&artifact.PlanID,
		&artifact.PlanVersion,
		&artifact.Target,
		&artifact.Format,
		&artifact.Checksum,
		&artifact.Content,
		&artifact.LastSubmissionID,
		&artifact.CompiledAt,
		&artifact.CreatedAt,
		&artifact.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact not found: %s/%s/%s", planID, planVersion, target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return artifact, nil
}

// ListArtifacts lists all artifacts with pagination
func (s *SQLiteStore) ListArtifacts(ctx context.Context, limit, offset int) ([]*Artifact, error) {
	query := `
		SELECT id, plan_id, plan_version, target, format, checksum, content,
			   last_submission_id, compiled_at, created_at, updated_at
		FROM artifacts
		ORDER BY compiled_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []*Artifact{}
	for rows.Next() {
		artifact := &Artifact{}
		err := rows.Scan(
			&artifact.ID,
			&artifact.PlanID,
			&artifact.PlanVersion,
			&artifact.Target,
			&artifact.Format,
			&artifact.Checksum,
			&artifact.Content,
			&artifact.LastSubmissionID,
			&artifact.CompiledAt,
			&artifact.CreatedAt,
			&artifact.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return artifacts, nil
}

// DeleteArtifact deletes an artifact by ID
func (s *SQLiteStore) DeleteArtifact(ctx context.Context, id string) error {
	query := `DELETE FROM artifacts WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("artifact not found: %s", id)
	}

	return nil
}

// CreateAuditEntry creates a new audit log entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit (action, actor, plan_id, details, remote_addr, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.Action,
		entry.Actor,
		entry.PlanID,
		entry.Details,
		entry.RemoteAddr,
		entry.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAuditEntries lists audit entries with optional filters and pagination
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, actor, plan_id, details, remote_addr, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		  AND (? IS NULL OR actor = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, actor, actor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.PlanID,
			&entry.Details,
			&entry.RemoteAddr,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
