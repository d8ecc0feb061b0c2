// Package fetcher applies the request ceiling, per-host politeness, retries
// and backoff around a single-attempt HTTP transport.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
	"github.com/JakeFAU/jobpost-ingest/internal/logging"
	"github.com/JakeFAU/jobpost-ingest/internal/metrics"
)

// Transport performs one HTTP GET and reports any status as a response.
type Transport interface {
	Do(ctx context.Context, rawURL, userAgent string) (jobs.Response, error)
}

// Ceiling is the global request limiter consulted before every attempt.
type Ceiling interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// HostWaiter applies per-host pacing.
type HostWaiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// pauseController abstracts how the fetcher sleeps between attempts.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config carries the per-attempt settings.
type Config struct {
	Timeout    time.Duration
	UserAgents []string
	Retry      RetryPolicy
}

// Fetcher implements jobs.Fetcher. Each attempt waits on the ceiling first,
// then the host limiter, then issues the request; backoff only follows a
// failed attempt that has another attempt left.
type Fetcher struct {
	transport Transport
	ceiling   Ceiling
	hosts     HostWaiter
	retry     RetryPolicy
	timeout   time.Duration
	agents    *UserAgentPool
	pause     pauseController
	logger    *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHostWaiter enables per-host pacing.
func WithHostWaiter(h HostWaiter) Option {
	return func(f *Fetcher) {
		f.hosts = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logging.OrNop(logger)
	}
}

func withPause(p pauseController) Option {
	return func(f *Fetcher) {
		f.pause = p
	}
}

// New builds a Fetcher.
func New(transport Transport, ceiling Ceiling, cfg Config, opts ...Option) (*Fetcher, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if ceiling == nil {
		return nil, errors.New("rate ceiling is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &Fetcher{
		transport: transport,
		ceiling:   ceiling,
		retry:     cfg.Retry,
		timeout:   timeout,
		agents:    NewUserAgentPool(cfg.UserAgents),
		pause:     timerPauseController{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch retrieves rawURL. A non-nil error is always a *jobs.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (jobs.Response, error) {
	if err := validateURL(rawURL); err != nil {
		return jobs.Response{}, &jobs.FetchError{URL: rawURL, Err: err}
	}

	var lastErr error
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return jobs.Response{}, f.fail(rawURL, attempts, firstNonNil(lastErr, err))
		}
		attempts++

		resp, err := f.attempt(ctx, rawURL)
		if err == nil {
			resp.Attempts = attempts
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !f.retry.ShouldRetry(err, attempts) {
			return jobs.Response{}, f.fail(rawURL, attempts, lastErr)
		}
		delay := f.retry.Backoff(attempts)
		f.logger.Warn("fetch attempt failed; backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := f.pause.Pause(ctx, delay); err != nil {
			return jobs.Response{}, f.fail(rawURL, attempts, lastErr)
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) (jobs.Response, error) {
	waited, err := f.ceiling.Wait(ctx)
	if err != nil {
		return jobs.Response{}, err
	}
	if waited > 0 {
		metrics.ObserveRateLimitWait(waited)
		f.logger.Debug("rate ceiling delayed fetch", zap.String("url", rawURL), zap.Duration("waited", waited))
	}
	if f.hosts != nil {
		if err := f.hosts.Wait(ctx, rawURL); err != nil {
			return jobs.Response{}, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	resp, err := f.transport.Do(attemptCtx, rawURL, f.agents.Next())
	if err != nil {
		metrics.ObserveFetchAttempt(rawURL, metrics.OutcomeError, 0)
		return jobs.Response{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveFetchAttempt(rawURL, metrics.OutcomeStatus, 0)
		return jobs.Response{}, &jobs.StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	metrics.ObserveFetchAttempt(rawURL, metrics.OutcomeSuccess, len(resp.Body))
	return resp, nil
}

func (f *Fetcher) fail(rawURL string, attempts int, err error) error {
	metrics.ObserveFetchFailure(rawURL)
	return &jobs.FetchError{URL: rawURL, Attempts: attempts, Err: err}
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url host is empty")
	}
	return nil
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
