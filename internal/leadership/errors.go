package leadership

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

var (
	// ErrHeadlessUnavailable is returned when browser rendering is disabled or cannot start.
	ErrHeadlessUnavailable = errors.New("headless rendering unavailable")
	// ErrNotFound indicates a missing batch or object.
	ErrNotFound = errors.New("not found")
)

// FailureClass is the fetch-level failure taxonomy.
type FailureClass string

// Fetch failure classes.
const (
	FailureTimeout    FailureClass = "timeout"
	FailureConnection FailureClass = "connection_error"
	FailureBlocked    FailureClass = "blocked"
	FailureHTTP       FailureClass = "http_error"
)

// Fatal reports whether the class should count against a retry rather than an
// alternate-path pass.
func (c FailureClass) Fatal() bool {
	return c == FailureTimeout || c == FailureConnection
}

// FetchError is a classified failure to retrieve one URL.
type FetchError struct {
	Class      FailureClass
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Class)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err under the given class.
func NewFetchError(class FailureClass, rawURL string, status int, err error) *FetchError {
	return &FetchError{Class: class, URL: rawURL, StatusCode: status, Err: err}
}

// ClassifyError maps an arbitrary fetch error onto the failure taxonomy.
func ClassifyError(err error) FailureClass {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	if errors.Is(err, ErrHeadlessUnavailable) {
		return FailureBlocked
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return FailureConnection
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return FailureTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return FailureConnection
	case strings.Contains(msg, "robots"), strings.Contains(msg, "forbidden"):
		return FailureBlocked
	}
	return FailureHTTP
}
