// Package publish delivers compiled artifacts to their destination: a
// directory on the local filesystem or a remote host over SFTP. Uploads
// are atomic; content lands under a temporary name and is renamed into
// place, so a half-written artifact is never visible under its final
// name.
package publish

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
)

// Transport delivers compiled artifacts to a destination.
type Transport interface {
	// Publish writes content under name at the destination and returns
	// the delivery receipt.
	Publish(ctx context.Context, name string, content []byte) (*Receipt, error)

	// Close releases any connection held by the transport.
	Close() error
}

// Receipt describes one delivered artifact.
type Receipt struct {
	// Destination is where the artifact landed, in a form suitable for
	// display: a local path or user@host:path.
	Destination string

	// Bytes is the number of bytes delivered
	Bytes int64

	// Checksum is the SHA256 checksum of the delivered content
	Checksum string

	// StartedAt is when the delivery started
	StartedAt time.Time

	// FinishedAt is when the delivery completed
	FinishedAt time.Time

	// Duration is the total delivery time
	Duration time.Duration
}

// PublishError represents an error from the publishing layer.
type PublishError struct {
	// Op is the operation that failed (e.g., "connect", "publish")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *PublishError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func (e *PublishError) Temporary() bool {
	return e.IsTemporary
}

// checksum returns the SHA256 checksum of content as a hex string.
func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}
