// Package stores provides persistence layer implementations for the plan
// pipeline. It includes SQLite-based storage with WAL mode, connection
// pooling, and comprehensive CRUD operations for submissions, validations,
// compiled artifacts, events, and audit logs.
package stores
