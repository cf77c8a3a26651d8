// Package client implements the upstream API clients shared by the
// ingest pipelines, with a common retry policy and error taxonomy.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrQuota indicates the provider refused the request for quota or
// rate-limit reasons. Quota failures are never retried within an
// invocation; the daily window has to reset first.
type ErrQuota struct {
	Err error
}

func (e ErrQuota) Error() string {
	return fmt.Errorf("quota_exceeded: %w", e.Err).Error()
}

func (e ErrQuota) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrStatus indicates a non-2xx response that is neither quota-class
// nor a transport failure.
type ErrStatus struct {
	Status int
	Err    error
}

func (e ErrStatus) Error() string {
	return fmt.Errorf("http_status_%d: %w", e.Status, e.Err).Error()
}

func (e ErrStatus) Unwrap() error {
	return e.Err
}

// IsQuota reports whether err is quota-class.
func IsQuota(err error) bool {
	var quota ErrQuota
	return errors.As(err, &quota)
}

// IsRetryable reports whether err is worth another attempt within the
// same invocation. Quota failures and client-side 4xx responses are
// not; timeouts, connection failures, and 5xx responses are.
func IsRetryable(err error) bool {
	if err == nil || IsQuota(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return true
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return status.Status >= http.StatusInternalServerError
	}
	return false
}

// ErrorTypeLabel maps an error to a low-cardinality metrics label.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if IsQuota(err) {
		return "quota"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		if status.Status >= http.StatusInternalServerError {
			return "server"
		}
		return "client"
	}
	return "other"
}

// Classify wraps a transport error or HTTP status into the taxonomy
// above. A nil error with a 2xx status classifies to nil.
func Classify(err error, statusCode int) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden, http.StatusTooManyRequests:
			return ErrQuota{Err: wrapped}
		}
		return ErrStatus{Status: statusCode, Err: wrapped}
	}
	return err
}
