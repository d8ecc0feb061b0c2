// Package collyfetcher performs single HTTP GET attempts through gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// Config controls collector behavior.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int
}

// Transport runs exactly one request per call and reports every HTTP status
// as a response. Retry and rate decisions belong to the caller.
type Transport struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport backed by a pooled http.Transport.
func New(cfg Config) *Transport {
	return NewWithRoundTripper(cfg, newHTTPTransport())
}

// NewWithRoundTripper builds a Transport over rt.
func NewWithRoundTripper(cfg Config, rt http.RoundTripper) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.ParseHTTPErrorResponse = true
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(rt)
	c.SetRequestTimeout(cfg.Timeout)

	return &Transport{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Do issues one GET for rawURL with the given User-Agent.
func (t *Transport) Do(ctx context.Context, rawURL, userAgent string) (jobs.Response, error) {
	var (
		result   jobs.Response
		fetchErr error
	)
	start := time.Now()
	collector := t.baseCollector.Clone()
	colly.StdlibContext(ctx)(collector)
	if userAgent != "" {
		collector.UserAgent = userAgent
	}
	t.configureCollectorHooks(collector, start, &result, &fetchErr)

	if err := t.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return jobs.Response{}, err
	}
	return result, nil
}

func (t *Transport) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *jobs.Response,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = jobs.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (t *Transport) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
