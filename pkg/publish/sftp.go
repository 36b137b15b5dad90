package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SFTPTransport delivers artifacts to a remote host over SFTP.
type SFTPTransport struct {
	config *Config
	logger zerolog.Logger

	mu     sync.Mutex
	client *ssh.Client
	sftp   *sftp.Client
}

// NewSFTPTransport creates a transport for the given remote host. The
// connection is established lazily on the first publish, or explicitly
// via Connect.
func NewSFTPTransport(config *Config, logger zerolog.Logger) (*SFTPTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &SFTPTransport{
		config: config,
		logger: logger.With().Str("component", "publish-sftp").Logger(),
	}, nil
}

// Connect establishes the SSH connection and opens an SFTP session.
func (t *SFTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked(ctx)
}

// connectLocked dials the remote host (must be called with the lock held).
func (t *SFTPTransport) connectLocked(ctx context.Context) error {
	if t.sftp != nil {
		return nil
	}

	clientConfig, err := t.config.BuildSSHClientConfig()
	if err != nil {
		return &PublishError{
			Op:          "connect",
			Err:         err,
			IsAuthError: true,
		}
	}

	address := t.config.Address()
	t.logger.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &PublishError{
			Op:          "connect",
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case err := <-errChan:
		return &PublishError{
			Op:          "connect",
			Err:         err,
			IsTemporary: true,
		}
	case client := <-connChan:
		sftpClient, err := sftp.NewClient(client)
		if err != nil {
			_ = client.Close()
			return &PublishError{
				Op:          "connect",
				Err:         fmt.Errorf("failed to create SFTP client: %w", err),
				IsTemporary: true,
			}
		}
		t.client = client
		t.sftp = sftpClient
		t.logger.Info().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// IsConnected reports whether an SFTP session is open.
func (t *SFTPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sftp != nil
}

// Publish uploads content under name into the configured remote
// directory. The upload goes to a temporary name first and is renamed
// into place once fully written.
func (t *SFTPTransport) Publish(ctx context.Context, name string, content []byte) (*Receipt, error) {
	if name == "" || name != path.Base(name) {
		return nil, &PublishError{
			Op:  "publish",
			Err: fmt.Errorf("invalid artifact name: %q", name),
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	startTime := time.Now()

	if err := t.connectLocked(ctx); err != nil {
		return nil, err
	}

	if err := t.sftp.MkdirAll(t.config.RemoteDir); err != nil {
		return nil, &PublishError{
			Op:  "publish",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	finalPath := path.Join(t.config.RemoteDir, name)
	tmpPath := path.Join(t.config.RemoteDir, fmt.Sprintf(".%s.%d.tmp", name, startTime.UnixNano()))

	remoteFile, err := t.sftp.Create(tmpPath)
	if err != nil {
		return nil, &PublishError{
			Op:          "publish",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}

	if _, err := copyWithContext(ctx, remoteFile, bytes.NewReader(content)); err != nil {
		_ = remoteFile.Close()
		_ = t.sftp.Remove(tmpPath)
		return nil, &PublishError{
			Op:          "publish",
			Err:         fmt.Errorf("failed to upload artifact: %w", err),
			IsTemporary: true,
		}
	}

	if err := remoteFile.Close(); err != nil {
		_ = t.sftp.Remove(tmpPath)
		return nil, &PublishError{
			Op:          "publish",
			Err:         fmt.Errorf("failed to flush artifact: %w", err),
			IsTemporary: true,
		}
	}

	if err := t.sftp.Chmod(tmpPath, t.config.FileMode); err != nil {
		t.logger.Warn().Err(err).Msg("failed to set file permissions")
	}

	// POSIX rename overwrites atomically; fall back to delete-then-rename
	// where the server lacks the extension.
	if err := t.sftp.PosixRename(tmpPath, finalPath); err != nil {
		_ = t.sftp.Remove(finalPath)
		if err := t.sftp.Rename(tmpPath, finalPath); err != nil {
			_ = t.sftp.Remove(tmpPath)
			return nil, &PublishError{
				Op:          "publish",
				Err:         fmt.Errorf("failed to move artifact into place: %w", err),
				IsTemporary: true,
			}
		}
	}

	finishedAt := time.Now()
	receipt := &Receipt{
		Destination: fmt.Sprintf("%s@%s:%s", t.config.User, t.config.Host, finalPath),
		Bytes:       int64(len(content)),
		Checksum:    checksum(content),
		StartedAt:   startTime,
		FinishedAt:  finishedAt,
		Duration:    finishedAt.Sub(startTime),
	}

	t.logger.Info().
		Str("destination", receipt.Destination).
		Int64("bytes", receipt.Bytes).
		Dur("duration", receipt.Duration).
		Msg("artifact published")

	return receipt, nil
}

// Close shuts down the SFTP session and the SSH connection.
func (t *SFTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	if t.sftp != nil {
		if err := t.sftp.Close(); err != nil {
			firstErr = err
		}
		t.sftp = nil
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		t.client = nil
	}

	if firstErr != nil {
		return &PublishError{Op: "disconnect", Err: firstErr}
	}
	return nil
}

// copyWithContext copies src to dst, checking for cancellation between
// chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
