package secureform

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zenostudy/zeno/internal/domain/ratelimit"
)

const tracerName = "github.com/zenostudy/zeno/internal/domain/secureform"

// Default bounds for the token readiness wait.
const (
	DefaultWaitTimeout = 3 * time.Second
	DefaultWaitStep    = 100 * time.Millisecond
)

// TokenManager is the CSRF surface the protocol needs: validating the
// presented token and issuing the replacement after a successful submission.
type TokenManager interface {
	Validate(ctx context.Context, sessionKey, token string) (bool, error)
	Generate(ctx context.Context, sessionKey string) (string, error)
}

// RateLimiter is the rate limit surface the protocol needs.
type RateLimiter interface {
	Check(ctx context.Context, identifier string, config ratelimit.Config) (ratelimit.Result, error)
}

// Submission runs the gated submission protocol for one form instance.
//
// Gates run in a fixed order and each refusal short-circuits the rest:
// token readiness, CSRF validation, rate limit, callback. The rate limit
// attempt is consumed at check time; a callback failure does not refund it.
// The CSRF token rotates only after a successful callback, so a failed
// attempt can be retried with the same token.
type Submission struct {
	tokens     TokenSource
	manager    TokenManager
	limiter    RateLimiter
	limit      ratelimit.Config
	sessionKey string
	identifier string

	waitTimeout time.Duration
	waitStep    time.Duration

	// sleep is replaceable in tests so readiness waits run instantly.
	sleep func(ctx context.Context, d time.Duration) error

	// now is the clock; replaceable in tests so retry-after countdowns
	// agree with a limiter running on an injected clock.
	now func() time.Time

	inFlight atomic.Bool
}

// NewSubmission wires a submission protocol instance.
//
// sessionKey scopes CSRF validation and rotation; identifier scopes the rate
// limit counter under limit. The two are usually different: an email for the
// limiter, a session or guest key for CSRF.
func NewSubmission(tokens TokenSource, manager TokenManager, limiter RateLimiter, limit ratelimit.Config, sessionKey, identifier string) *Submission {
	return &Submission{
		tokens:      tokens,
		manager:     manager,
		limiter:     limiter,
		limit:       limit,
		sessionKey:  sessionKey,
		identifier:  identifier,
		waitTimeout: DefaultWaitTimeout,
		waitStep:    DefaultWaitStep,
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// WithWait overrides the token readiness wait bounds.
func (s *Submission) WithWait(timeout, step time.Duration) *Submission {
	if timeout > 0 {
		s.waitTimeout = timeout
	}
	if step > 0 {
		s.waitStep = step
	}
	return s
}

// WithSleep overrides the wait sleeper. For tests.
func (s *Submission) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Submission {
	s.sleep = sleep
	return s
}

// WithClock overrides the protocol's clock. For tests.
func (s *Submission) WithClock(now func() time.Time) *Submission {
	s.now = now
	return s
}

// Submit runs one attempt through the gates and, if they all pass, the
// callback. Overlapping calls on the same Submission are refused with
// ErrSubmissionInFlight.
func (s *Submission) Submit(ctx context.Context, form FormData, callback Callback) (Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrSubmissionInFlight
	}
	defer s.inFlight.Store(false)

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "secureform.submit", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("form.operation", s.limit.Operation))
	defer span.End()

	token, err := s.waitForToken(ctx)
	if err != nil {
		span.SetAttributes(attribute.String("form.gate", "token_unavailable"))
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	ok, err := s.manager.Validate(ctx, s.sessionKey, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "csrf validation failed")
		return Result{}, err
	}
	if !ok {
		span.SetAttributes(attribute.String("form.gate", "token_invalid"))
		span.SetStatus(codes.Error, ErrTokenInvalid.Error())
		return Result{}, ErrTokenInvalid
	}

	check, err := s.limiter.Check(ctx, s.identifier, s.limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limit check failed")
		return Result{}, err
	}
	if !check.Allowed {
		limited := &RateLimitedError{
			Seconds: check.RetryAfter(s.now()),
			ResetAt: check.ResetAt,
		}
		span.SetAttributes(
			attribute.String("form.gate", "rate_limited"),
			attribute.Int("ratelimit.retry_after_seconds", limited.Seconds),
		)
		span.SetStatus(codes.Error, limited.Error())
		return Result{}, limited
	}
	span.SetAttributes(attribute.Int("ratelimit.remaining", check.Remaining))

	if err := callback(ctx, form, token); err != nil {
		span.SetAttributes(attribute.String("form.gate", "callback_error"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	next, err := s.manager.Generate(ctx, s.sessionKey)
	if err != nil {
		// The submission itself succeeded; a rotation failure only means the
		// client must fetch a fresh token before the next submit.
		span.RecordError(err)
		next = ""
	}

	span.SetAttributes(attribute.String("form.gate", "success"))
	return Result{
		NextToken: next,
		Remaining: check.Remaining,
		ResetAt:   check.ResetAt,
	}, nil
}

// waitForToken polls the token source until it reports ready, up to the
// configured bound. Fails closed with ErrTokenUnavailable.
func (s *Submission) waitForToken(ctx context.Context) (string, error) {
	if token, ready := s.tokens.Token(); ready {
		return token, nil
	}

	// A static source's readiness never changes; waiting on an absent
	// header token would just stall the response.
	if _, static := s.tokens.(StaticToken); static {
		return "", ErrTokenUnavailable
	}

	deadline := s.now().Add(s.waitTimeout)
	for waited := time.Duration(0); waited < s.waitTimeout; waited += s.waitStep {
		if err := s.sleep(ctx, s.waitStep); err != nil {
			return "", err
		}
		if token, ready := s.tokens.Token(); ready {
			return token, nil
		}
		if s.now().After(deadline) {
			break
		}
	}
	return "", ErrTokenUnavailable
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
