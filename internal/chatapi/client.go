// Package chatapi issues chat-completion calls against the upstream HTTP API.
//
// A call is one POST of a JSON body. Each attempt gets its own timeout and
// transient failures (timeouts, dropped connections, 5xx responses)
// are retried with linear backoff up to the configured limit. Execute never
// returns an error: the outcome of every call, good or bad, is a Result.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config configures a Client.
type Config struct {
	// URL is the chat-completion endpoint.
	URL string
	// Headers are sent with every request.
	Headers map[string]string

	// Timeout bounds a single attempt, including reading the response.
	Timeout time.Duration
	// MaxRetries is the number of attempts allowed after the first.
	MaxRetries int
	// RetryBackoff is the base delay; attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Request is one call: extra headers layered over Config.Headers, and the
// JSON body.
type Request struct {
	Headers map[string]string
	Body    map[string]any
}

// Result is the outcome of a call.
type Result struct {
	// StatusCode of the last response received, 0 if none was.
	StatusCode int
	// Body is the last response body, verbatim.
	Body []byte
	// Content is the assistant message extracted from Body on success.
	Content  string
	Attempts int
	Duration time.Duration
	// Err is nil on success and a *CallError otherwise.
	Err error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Client executes chat-completion calls. It is safe for concurrent use.
type Client struct {
	url        string
	headers    map[string]string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	http       *http.Client
	logger     *slog.Logger
}

// New returns a Client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("chatapi: URL is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		url:        cfg.URL,
		headers:    cfg.Headers,
		timeout:    cfg.Timeout,
		maxRetries: retries,
		backoff:    cfg.RetryBackoff,
		http:       hc,
		logger:     logger,
	}, nil
}

// Execute performs the call described by req.
//
// Attempts are detached from ctx so a cancelled run never cuts a request off
// mid-flight; only the per-attempt timeout bounds them. Cancelling ctx does
// end a pending backoff wait, and the call then reports its last failure.
func (c *Client) Execute(ctx context.Context, req Request) Result {
	start := time.Now()

	payload, err := json.Marshal(req.Body)
	if err != nil {
		return Result{
			Duration: time.Since(start),
			Err:      &CallError{Err: fmt.Errorf("encode request body: %w", err)},
		}
	}

	var res Result
	attempts := c.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt

		status, body, err := c.attempt(ctx, payload, req.Headers)
		res.StatusCode, res.Body = status, body
		if err == nil {
			res.Content = ExtractContent(body)
			res.Err = nil
			break
		}
		res.Err = &CallError{StatusCode: status, Attempts: attempt, Err: err}

		if !retryable(status, err) || attempt == attempts {
			break
		}

		delay := time.Duration(attempt) * c.backoff
		c.logger.Debug("retrying chat request",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if !sleep(ctx, delay) {
			break
		}
	}

	res.Duration = time.Since(start)
	return res
}

func (c *Client) attempt(ctx context.Context, payload []byte, extra map[string]string) (int, []byte, error) {
	actx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(actx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range extra {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, describe(err, c.timeout)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, body, fmt.Errorf("read response: %w", describe(err, c.timeout))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return resp.StatusCode, body, nil
}

// sleep waits for d or until ctx is done, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
