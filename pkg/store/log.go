package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/sessionbot/internal/observability"
	"github.com/harun/sessionbot/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const recordSeparator = ": "

// Record is one successful extraction.
type Record struct {
	Username  string
	Token     string
	Timestamp time.Time
}

// Line renders the record in log format, newline included.
func (r Record) Line() string {
	return r.Username + recordSeparator + r.Token + "\n"
}

// Log is the shared append-only session log.
type Log struct {
	path        string
	artifactDir string
	mu          sync.Mutex
}

// Open prepares the log file and artifact directory. Neither needs to exist.
func Open(path, artifactDir string) (*Log, error) {
	observability.EnsureRegistered()

	if path == "" {
		return nil, fmt.Errorf("sessions log path cannot be empty")
	}
	if artifactDir == "" {
		return nil, fmt.Errorf("artifact directory cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := os.MkdirAll(artifactDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	log.Info().Str("path", path).Str("artifacts", artifactDir).Msg("Session log opened")

	return &Log{path: path, artifactDir: artifactDir}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

func validateRecord(rec Record) error {
	if rec.Username == "" {
		return fmt.Errorf("record username cannot be empty")
	}
	if rec.Token == "" {
		return fmt.Errorf("record token cannot be empty")
	}
	if strings.ContainsAny(rec.Username, "\r\n") || strings.ContainsAny(rec.Token, "\r\n") {
		return fmt.Errorf("record fields cannot contain line breaks")
	}
	return nil
}

// Append writes rec as one line with a single write call and syncs the file.
func (l *Log) Append(ctx context.Context, rec Record) error {
	ctx, span := tracing.StartSpan(ctx, "sessionbot.store", "store.append",
		attribute.String("username", rec.Username),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if err := validateRecord(rec); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to open sessions log: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(rec.Line()); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to append record: %w", err)
	}

	if err := file.Sync(); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to sync sessions log: %w", err)
	}

	observability.RecordSessionAppend()
	logger.Debug().
		Str("username", rec.Username).
		Time("at", rec.Timestamp).
		Msg("Session record appended")

	return nil
}

// Records reads every well-formed line of the log. The log format carries no
// timestamp, so Timestamp is zero on returned records.
func (l *Log) Records() ([]Record, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to open sessions log: %w", err)
	}
	defer file.Close()

	records := []Record{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		idx := strings.LastIndex(line, recordSeparator)
		if idx <= 0 || idx+len(recordSeparator) >= len(line) {
			log.Warn().Int("line", lineNum).Msg("Malformed session record, skipping")
			continue
		}

		records = append(records, Record{
			Username: line[:idx],
			Token:    line[idx+len(recordSeparator):],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions log: %w", err)
	}

	return records, nil
}
