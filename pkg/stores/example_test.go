package stores_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/vizi2000/maicrosoft/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	dir, err := os.MkdirTemp("", "stores-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            filepath.Join(dir, "maicrosoft.db"),
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// Run migrations to create the schema
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_CreateSubmission demonstrates recording a submitted plan document.
func ExampleSQLiteStore_CreateSubmission() {
	dir, _ := os.MkdirTemp("", "stores-example")
	defer os.RemoveAll(dir)

	store, _ := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(dir, "maicrosoft.db")})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now().UTC()
	sub := &stores.Submission{
		ID:          "sub-001",
		PlanID:      "wf-order-sync",
		Via:         "cli",
		Format:      "json",
		Document:    `{"id":"wf-order-sync","version":"1.0.0"}`,
		Status:      stores.SubmissionStatusPending,
		SubmittedAt: now,
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := store.CreateSubmission(ctx, sub); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Submission ID: %s, Status: %s\n", sub.ID, sub.Status)
	// Output: Submission ID: sub-001, Status: pending
}

// ExampleSQLiteStore_UpsertArtifact demonstrates storing a compiled artifact.
func ExampleSQLiteStore_UpsertArtifact() {
	dir, _ := os.MkdirTemp("", "stores-example")
	defer os.RemoveAll(dir)

	store, _ := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(dir, "maicrosoft.db")})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now().UTC()
	artifact := &stores.Artifact{
		ID:               "art-001",
		PlanID:           "wf-order-sync",
		PlanVersion:      "1.2.0",
		Target:           "n8n",
		Format:           "json",
		Checksum:         "9f86d081884c7d65",
		Content:          []byte(`{"name":"order-sync","nodes":[]}`),
		LastSubmissionID: "sub-001",
		CompiledAt:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Recompiling the same plan version replaces the stored artifact
	if err := store.UpsertArtifact(ctx, artifact); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Artifact for plan %s@%s targeting %s\n", artifact.PlanID, artifact.PlanVersion, artifact.Target)
	// Output: Artifact for plan wf-order-sync@1.2.0 targeting n8n
}

// ExampleSQLiteStore_AppendEvent demonstrates appending events to the log.
func ExampleSQLiteStore_AppendEvent() {
	dir, _ := os.MkdirTemp("", "stores-example")
	defer os.RemoveAll(dir)

	store, _ := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(dir, "maicrosoft.db")})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now().UTC()
	sub := &stores.Submission{
		ID:          "sub-001",
		PlanID:      "wf-order-sync",
		Via:         "api",
		Format:      "json",
		Document:    `{}`,
		Status:      stores.SubmissionStatusValidating,
		SubmittedAt: now,
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = store.CreateSubmission(ctx, sub)

	event := &stores.Event{
		SubmissionID: &sub.ID,
		Level:        stores.EventLevelInfo,
		Message:      "validation started",
		Timestamp:    now,
	}

	if err := store.AppendEvent(ctx, event); err != nil {
		log.Fatal(err)
	}

	events, err := store.GetEvents(ctx, &sub.ID, nil, nil, 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Event count: %d, Message: %s\n", len(events), events[0].Message)
	// Output: Event count: 1, Message: validation started
}

// ExampleSQLiteStore_PurgeSubmissions demonstrates retention-based cleanup.
func ExampleSQLiteStore_PurgeSubmissions() {
	dir, _ := os.MkdirTemp("", "stores-example")
	defer os.RemoveAll(dir)

	store, _ := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(dir, "maicrosoft.db")})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now().UTC()
	stale := now.Add(-48 * time.Hour)

	old := &stores.Submission{
		ID:          "sub-old",
		PlanID:      "wf-old",
		Via:         "api",
		Format:      "json",
		Document:    `{}`,
		Status:      stores.SubmissionStatusCompiled,
		SubmittedAt: stale,
		Metadata:    `{}`,
		CreatedAt:   stale,
		UpdatedAt:   stale,
	}
	recent := &stores.Submission{
		ID:          "sub-new",
		PlanID:      "wf-new",
		Via:         "api",
		Format:      "json",
		Document:    `{}`,
		Status:      stores.SubmissionStatusPending,
		SubmittedAt: now,
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = store.CreateSubmission(ctx, old)
	_ = store.CreateSubmission(ctx, recent)

	// Drop everything older than a day
	purged, err := store.PurgeSubmissions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Purged submissions: %d\n", purged)
	// Output: Purged submissions: 1
}

// ExampleSQLiteStore_BeginTx demonstrates transaction usage.
func ExampleSQLiteStore_BeginTx() {
	dir, _ := os.MkdirTemp("", "stores-example")
	defer os.RemoveAll(dir)

	store, _ := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(dir, "maicrosoft.db")})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Begin a transaction
	tx, err := store.BeginTx(ctx)
	if err != nil {
		log.Fatal(err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO submissions (id, plan_id, via, format, document, status, error, submitted_at, completed_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query, "sub-tx-001", "wf-tx", "cli", "json", "{}", "pending", nil, now, nil, "{}", now, now)
	if err != nil {
		_ = store.RollbackTx(tx)
		log.Fatal(err)
	}

	// Commit the transaction
	if err := store.CommitTx(tx); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Transaction committed: submission %s created\n", "sub-tx-001")
	// Output: Transaction committed: submission sub-tx-001 created
}
