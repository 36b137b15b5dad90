package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// LocalTransport writes artifacts into a directory on the local
// filesystem.
type LocalTransport struct {
	dir    string
	mode   os.FileMode
	logger zerolog.Logger
}

// NewLocalTransport creates a transport that delivers into dir. The
// directory is created on first publish if it does not exist.
func NewLocalTransport(dir string, logger zerolog.Logger) (*LocalTransport, error) {
	if dir == "" {
		return nil, fmt.Errorf("destination directory is required")
	}
	return &LocalTransport{
		dir:    dir,
		mode:   0o644,
		logger: logger.With().Str("component", "publish-local").Logger(),
	}, nil
}

// Publish writes content under name inside the destination directory.
// The write is atomic: content goes to a temporary file first and is
// renamed into place.
func (t *LocalTransport) Publish(ctx context.Context, name string, content []byte) (*Receipt, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, &PublishError{
			Op:  "publish",
			Err: fmt.Errorf("invalid artifact name: %q", name),
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &PublishError{Op: "publish", Err: err, IsTemporary: true}
	}

	startTime := time.Now()

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, &PublishError{
			Op:  "publish",
			Err: fmt.Errorf("failed to create destination directory: %w", err),
		}
	}

	finalPath := filepath.Join(t.dir, name)

	tmp, err := os.CreateTemp(t.dir, "."+name+".tmp-*")
	if err != nil {
		return nil, &PublishError{
			Op:  "publish",
			Err: fmt.Errorf("failed to create temporary file: %w", err),
		}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return nil, &PublishError{
			Op:          "publish",
			Err:         fmt.Errorf("failed to write artifact: %w", err),
			IsTemporary: true,
		}
	}

	if err := tmp.Chmod(t.mode); err != nil {
		t.logger.Warn().Err(err).Msg("failed to set file permissions")
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, &PublishError{
			Op:          "publish",
			Err:         fmt.Errorf("failed to flush artifact: %w", err),
			IsTemporary: true,
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, &PublishError{
			Op:  "publish",
			Err: fmt.Errorf("failed to move artifact into place: %w", err),
		}
	}

	finishedAt := time.Now()
	receipt := &Receipt{
		Destination: finalPath,
		Bytes:       int64(len(content)),
		Checksum:    checksum(content),
		StartedAt:   startTime,
		FinishedAt:  finishedAt,
		Duration:    finishedAt.Sub(startTime),
	}

	t.logger.Info().
		Str("destination", finalPath).
		Int64("bytes", receipt.Bytes).
		Dur("duration", receipt.Duration).
		Msg("artifact published")

	return receipt, nil
}

// Close is a no-op; the local transport holds no connection.
func (t *LocalTransport) Close() error {
	return nil
}
