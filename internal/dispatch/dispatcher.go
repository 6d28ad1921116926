// Package dispatch delivers JSON payloads to the peer relay service over a
// pooled HTTP client with bounded concurrency and exponential-backoff retry.
// Both relay directions (task ship and result callback) share one dispatcher.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/vaultrelay/relay-api/internal/config"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
)

// maxErrorBodyBytes caps how much of a failed response body is kept for
// diagnostics.
const maxErrorBodyBytes = 512

// Dispatcher posts JSON envelopes with bounded concurrency and retry. One
// instance is shared per process, constructed at startup and closed at
// shutdown.
type Dispatcher struct {
	client          *http.Client
	gate            *gate
	retryable       map[int]bool
	maxAttempts     int
	initialInterval time.Duration
	multiplier      float64
	maxInterval     time.Duration
	attemptTimeout  time.Duration
	logger          *slog.Logger
}

// NewDispatcher wires the connection pool, admission gate, and retry policy
// from their configuration sections.
func NewDispatcher(pool config.PoolConfig, rate config.RateLimitConfig, retry config.RetryConfig, log *slog.Logger) *Dispatcher {
	connectTimeout := time.Duration(pool.ConnectTimeoutMs) * time.Millisecond
	socketTimeout := time.Duration(pool.SocketTimeoutMs) * time.Millisecond

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          pool.MaxTotal,
		MaxConnsPerHost:       pool.MaxPerRoute,
		MaxIdleConnsPerHost:   pool.MaxPerRoute,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: socketTimeout,
	}

	return &Dispatcher{
		client:          &http.Client{Transport: transport},
		gate:            newGate(rate.MaxConcurrent, rate.QueueCapacity, time.Duration(rate.TimeoutMs)*time.Millisecond),
		retryable:       RetryableSet(retry.RetryableStatusCodes),
		maxAttempts:     retry.MaxAttempts,
		initialInterval: time.Duration(retry.InitialIntervalMs) * time.Millisecond,
		multiplier:      retry.Multiplier,
		maxInterval:     time.Duration(retry.MaxIntervalMs) * time.Millisecond,
		attemptTimeout:  socketTimeout,
		logger:          log,
	}
}

// PostJSON encodes in as JSON and posts it to url, retrying transient
// failures with exponential backoff and jitter. The admission slot is held
// for the whole call, covering every retry attempt. When out is non-nil the
// 2xx response body is decoded into it. Non-2xx terminal responses surface as
// *StatusError; the last failure is returned unchanged once the retry budget
// is spent.
func (d *Dispatcher) PostJSON(ctx context.Context, url string, in, out any) error {
	log := logger.FromContextOrDefault(ctx, d.logger)

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encoding body: %v", ErrInvalidRequest, err)
	}

	release, err := d.gate.acquire(ctx)
	if err != nil {
		log.WarnContext(ctx, "delivery rejected at admission",
			"url", url,
			"error", err)
		return err
	}
	defer release()

	attempts := 0
	operation := func() error {
		attempts++
		err := d.attempt(ctx, url, payload, out)
		if err == nil {
			return nil
		}
		if Classify(err, d.retryable) == ClassPermanent {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		log.WarnContext(ctx, "delivery attempt failed, backing off",
			"url", url,
			"attempt", attempts,
			"delay_ms", delay.Milliseconds(),
			"error", err)
	}

	if err := backoff.RetryNotify(operation, d.policy(ctx), notify); err != nil {
		log.ErrorContext(ctx, "delivery failed",
			"url", url,
			"attempts", attempts,
			"error", err)
		return err
	}

	log.DebugContext(ctx, "delivery succeeded",
		"url", url,
		"attempts", attempts)
	return nil
}

// policy builds the per-call backoff schedule. A retry budget of one means a
// single attempt with no waits.
func (d *Dispatcher) policy(ctx context.Context) backoff.BackOffContext {
	if d.maxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.initialInterval
	expo.RandomizationFactor = 0.5
	expo.Multiplier = d.multiplier
	expo.MaxInterval = d.maxInterval
	expo.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(d.maxAttempts-1)), ctx)
}

// attempt performs one request/response cycle with its own deadline so a
// stalled read cannot pin the admission slot past the socket timeout.
func (d *Dispatcher) attempt(ctx context.Context, url string, payload []byte, out any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: building request for %s: %v", ErrInvalidRequest, url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		// Drain so the connection can go back to the pool.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding reply from %s: %v", ErrMalformedResponse, url, err)
	}
	return nil
}

// Close stops admitting new deliveries, waits for in-flight calls to finish,
// and releases pooled connections. The context bounds the drain.
func (d *Dispatcher) Close(ctx context.Context) error {
	err := d.gate.close(ctx)
	d.client.CloseIdleConnections()
	if err != nil {
		return fmt.Errorf("draining dispatcher: %w", err)
	}
	return nil
}
