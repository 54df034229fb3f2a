package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harun/sessionbot/internal/tracing"
	"github.com/harun/sessionbot/pkg/secret"
	"go.opentelemetry.io/otel/attribute"
)

// Artifact is a single-use export file holding exactly one token.
type Artifact struct {
	dir  string
	path string

	once      sync.Once
	removeErr error
}

// Path returns the file location.
func (a *Artifact) Path() string {
	return a.path
}

// Name returns the file name shown to the recipient.
func (a *Artifact) Name() string {
	return filepath.Base(a.path)
}

// Remove shreds the file and deletes its directory. Safe to call repeatedly.
func (a *Artifact) Remove() error {
	a.once.Do(func() {
		if err := secret.ShredFile(a.path); err != nil {
			a.removeErr = err
			return
		}
		if err := os.Remove(a.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.removeErr = fmt.Errorf("failed to remove artifact directory: %w", err)
		}
	})
	return a.removeErr
}

// validateArtifactKey rejects keys that could escape the artifact directory.
func validateArtifactKey(key string) error {
	if key == "" {
		return fmt.Errorf("artifact key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("artifact key cannot contain '..'")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("artifact key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("artifact key cannot contain null bytes")
	}
	return nil
}

// ArtifactName returns the deterministic file name for username.
func ArtifactName(username string) string {
	var b strings.Builder
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if strings.Trim(name, "._") == "" {
		name = "user"
	}
	return "session_" + name + ".txt"
}

// MaterializeArtifact writes token into <artifactDir>/<key>/session_<username>.txt.
// key must be unique per conversation so concurrent deliveries for the same
// username never share a file. The caller owns Remove.
func (l *Log) MaterializeArtifact(ctx context.Context, key, username, token string) (*Artifact, error) {
	_, span := tracing.StartSpan(ctx, "sessionbot.store", "store.materialize_artifact",
		attribute.String("artifact_key", key),
	)
	defer span.End()

	if err := validateArtifactKey(key); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if token == "" {
		err := fmt.Errorf("artifact token cannot be empty")
		tracing.RecordError(span, err)
		return nil, err
	}

	dir := filepath.Join(l.artifactDir, key)
	if err := os.MkdirAll(dir, 0700); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	a := &Artifact{dir: dir, path: filepath.Join(dir, ArtifactName(username))}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		os.Remove(dir)
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}

	if _, err := file.WriteString(token); err != nil {
		file.Close()
		a.Remove()
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := file.Close(); err != nil {
		a.Remove()
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}

	return a, nil
}
