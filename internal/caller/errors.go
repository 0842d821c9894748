package caller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrNetworkRejection means the request never reached the service:
	// refused, unroutable, unresolvable, or denied by security groups.
	ErrNetworkRejection = errors.New("network rejection")
	// ErrUpstream means the service was reached but did not answer with 2xx
	// in time.
	ErrUpstream = errors.New("upstream error")
)

// RejectionError reports a connection that could not be established.
type RejectionError struct {
	Target string
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("POST %s rejected: %s: %v", e.Target, e.Reason, e.Err)
	}
	return fmt.Sprintf("POST %s rejected: %s", e.Target, e.Reason)
}

func (e *RejectionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNetworkRejection, e.Err}
	}
	return []error{ErrNetworkRejection}
}

// UpstreamError reports a reachable service that failed the request.
type UpstreamError struct {
	Target string
	// StatusCode is zero when no response arrived
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("POST %s returned %d: %s", e.Target, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("POST %s failed: %v", e.Target, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}

// classify maps a transport error onto the taxonomy.
func classify(target string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &UpstreamError{Target: target, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("POST %s: %w", target, err)
	}

	reason := "connection failed"
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		reason = "name resolution failed"
	case errors.Is(err, syscall.ECONNREFUSED):
		reason = "connection refused"
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		reason = "no route to host"
	}
	return &RejectionError{Target: target, Reason: reason, Err: err}
}
