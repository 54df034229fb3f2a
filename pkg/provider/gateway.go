package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/sessionbot/internal/observability"
	"github.com/harun/sessionbot/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Authenticator is a stateful provider client. TwoFactorLogin continues the
// login started by the last Login call on the same instance.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	TwoFactorLogin(ctx context.Context, code string) (string, error)
	Close() error
}

// Factory creates a fresh Authenticator.
type Factory func(ctx context.Context) (Authenticator, error)

// Gateway opens provider sessions.
type Gateway struct {
	factory Factory
	logger  zerolog.Logger
}

// NewGateway creates a gateway backed by factory.
func NewGateway(factory Factory) *Gateway {
	observability.EnsureRegistered()
	return &Gateway{
		factory: factory,
		logger:  log.With().Str("component", "provider").Logger(),
	}
}

// Open creates a new provider client handle.
func (g *Gateway) Open(ctx context.Context) (*Session, error) {
	auth, err := g.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}
	s := &Session{
		id:     uuid.NewString(),
		auth:   auth,
		logger: g.logger,
	}
	logger := tracing.LoggerFromContext(ctx, g.logger)
	logger.Debug().Str("handle", s.id).Msg("Provider client opened")
	return s, nil
}

// Session is one provider client handle.
type Session struct {
	id     string
	auth   Authenticator
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// ID identifies the handle. Two results from the same Session share it.
func (s *Session) ID() string {
	return s.id
}

// Login starts a login. The password is only passed through.
func (s *Session) Login(ctx context.Context, username, password string) Result {
	return s.call(ctx, "login", password, func(ctx context.Context) (string, error) {
		return s.auth.Login(ctx, username, password)
	})
}

// CompleteSecondFactor continues the pending login with code. Anything
// other than success is reported as OutcomeFailure.
func (s *Session) CompleteSecondFactor(ctx context.Context, code string) Result {
	res := s.call(ctx, "second_factor", code, func(ctx context.Context) (string, error) {
		return s.auth.TwoFactorLogin(ctx, code)
	})
	if res.Outcome != OutcomeSuccess {
		res.Outcome = OutcomeFailure
	}
	return res
}

// call runs fn and scrubs secret from any error before it is recorded or returned.
func (s *Session) call(ctx context.Context, operation, secret string, fn func(context.Context) (string, error)) Result {
	ctx, span := tracing.StartSpan(ctx, "sessionbot.provider", "provider."+operation,
		attribute.String("provider.handle", s.id),
	)
	defer span.End()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Result{Outcome: OutcomeFailure, Err: ErrClientClosed}
	}

	start := time.Now()
	token, err := fn(ctx)
	res := Classify(token, scrub(err, secret))
	duration := time.Since(start)

	observability.RecordProviderCall(operation, res.Outcome.String(), duration)
	span.SetAttributes(attribute.String("provider.outcome", res.Outcome.String()))
	if res.Outcome == OutcomeFailure {
		tracing.RecordError(span, res.Err)
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("handle", s.id).
		Str("operation", operation).
		Str("outcome", res.Outcome.String()).
		Dur("duration", duration).
		Msg("Provider call finished")

	return res
}

// Close releases the underlying client. Later calls fail with ErrClientClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.auth.Close()
}
