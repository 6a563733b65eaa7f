package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/strandapp/strand-service/internal/config"
	"github.com/strandapp/strand-service/internal/types"
)

// Options bound a single logical call: every attempt gets Timeout, transport
// failures are retried up to MaxRetries times, and the nth retry waits
// RetryDelay * n (linear backoff).
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// TransferOptions is the wide budget for large file transfers.
func TransferOptions(cfg config.Upload) Options {
	return Options{
		Timeout:    time.Duration(cfg.TransferTimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Duration(cfg.RetryDelayMillis) * time.Millisecond,
	}
}

// MetadataOptions is the tight budget for small metadata-only calls.
func MetadataOptions(cfg config.Upload) Options {
	return Options{
		Timeout:    time.Duration(cfg.MetadataTimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Duration(cfg.RetryDelayMillis) * time.Millisecond,
	}
}

// Retry executes fn up to 1+MaxRetries times. Each attempt runs under its own
// timeout context. Only transport-class failures are retried; any other error
// is final, since retrying a validation failure cannot succeed. Once retries
// are exhausted the last failure is classified as ErrTimeout or ErrNetwork.
// A cancelled caller context surfaces as the context's own error: the caller
// giving up is not a network failure.
func Retry(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := opts.RetryDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if opts.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		lastErr = err

		// The parent being done means the caller gave up, not the network.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return classify(lastErr)
}

// Retryable reports whether an error is a transport-level failure worth
// retrying: timeouts, connection refusals/resets and generic network errors.
// Errors produced by a successfully delivered response are not retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, types.ErrTimeout) || errors.Is(err, types.ErrNetwork)
}

func classify(err error) error {
	if err == nil {
		return fmt.Errorf("%w: retries exhausted", types.ErrNetwork)
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Errorf("%w: %v", types.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", types.ErrNetwork, err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Client wraps an http.Client with Retry semantics for raw HTTP calls: the
// direct PUT to a presigned storage URL and push deliveries. A delivered
// response is returned as-is whatever its status code; only failures to
// deliver are retried.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// Do executes the request under opts. Requests with a body must set GetBody
// so retried attempts can replay it. The attempt timeout stays armed until
// the caller closes the response body.
func (c *Client) Do(ctx context.Context, req *http.Request, opts Options) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil && opts.MaxRetries > 0 {
		return nil, fmt.Errorf("request body is not replayable; set GetBody")
	}

	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := opts.RetryDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if opts.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}

		r := req.Clone(attemptCtx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				cancel()
				return nil, err
			}
			r.Body = body
		}

		resp, err := c.httpClient.Do(r)
		if err == nil {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}
		cancel()

		if !Retryable(err) {
			return nil, err
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, classify(lastErr)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
