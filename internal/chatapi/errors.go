package chatapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// maxSnippet caps how much of a response body goes into an error message.
const maxSnippet = 512

// CallError is a failed chat-completion call.
type CallError struct {
	// StatusCode of the last response, 0 when none was received.
	StatusCode int
	Attempts   int
	Err        error
}

func (e *CallError) Error() string {
	var b strings.Builder
	b.WriteString("chat api call failed")
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
	if s := snippet(e.Body); s != "" {
		msg += ": " + s
	}
	return msg
}

// TimeoutError is an attempt that exceeded the per-call timeout.
type TimeoutError struct {
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("timeout after %s", e.After)
	}
	return "timeout"
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// describe turns transport timeouts into a TimeoutError and leaves other
// errors as they are.
func describe(err error, timeout time.Duration) error {
	var te *TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if isTimeout(err) {
		return &TimeoutError{After: timeout, Err: err}
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// retryable reports whether a failed attempt is transient. Any 5xx is
// retried; every other status, 429 included, is terminal. Without a status,
// timeouts and dropped or refused connections are retried.
func retryable(status int, err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	if isTimeout(err) {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return status >= 500
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	return s
}
