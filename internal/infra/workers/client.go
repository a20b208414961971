// Package workers provides HTTP clients for the external analysis services
// that execute pipeline stages. The orchestrator only ever starts jobs
// through these clients; job progress flows back through the state store and
// the event bus.
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/draftforge/propeller/pkg/common/logger"
)

// ErrJobRejected indicates the worker service refused to start a job. The
// request reached the service, so retrying will not help.
var ErrJobRejected = errors.New("worker rejected job start")

// ClientConfig holds the connection settings shared by worker clients.
type ClientConfig struct {
	// BaseURL is the root of the worker service API, e.g. "http://analyzer:8080".
	BaseURL string `yaml:"base_url"`

	// RequestsPerSecond and Burst bound the request rate to the service.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// ConnectRetries is the number of additional attempts made when the
	// service cannot be reached at all. Rejections are never retried.
	ConnectRetries uint64 `yaml:"connect_retries"`

	// ConnectRetryInterval is the pause between connect attempts.
	ConnectRetryInterval time.Duration `yaml:"connect_retry_interval"`
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 2
	}
	if c.ConnectRetryInterval <= 0 {
		c.ConnectRetryInterval = 2 * time.Second
	}
	return c
}

// jobClient wraps an HTTP client with rate limiting, tracing, and a small
// connect-retry loop shared by the concrete worker clients.
type jobClient struct {
	httpClient *http.Client
	cfg        ClientConfig
	limiter    *rate.Limiter
	logger     *logger.Logger
	tracer     trace.Tracer
}

func newJobClient(httpClient *http.Client, cfg ClientConfig, log *logger.Logger, tracer trace.Tracer) jobClient {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return jobClient{
		httpClient: httpClient,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     log,
		tracer:     tracer,
	}
}

// postJob sends a JSON job-start request and decodes the JSON response into
// out. Network-level failures are retried with a constant backoff; any
// response from the service is final.
func (c *jobClient) postJob(ctx context.Context, spanName, url string, payload, out any) error {
	ctx, span := c.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url", url)),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling job request: %w", err)
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building job request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if isConnectFailure(err) {
				c.logger.Warn(ctx, "worker unreachable, retrying", "url", url, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrJobRejected, resp.StatusCode, msg))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding job response: %w", err))
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.ConnectRetryInterval), c.cfg.ConnectRetries)
	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "job started")
	return nil
}

// isConnectFailure reports whether the error means the service never saw the
// request, which makes a retry safe.
func isConnectFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
