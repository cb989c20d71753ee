// Package classify buckets pipeline failures so the scheduler can decide
// whether a failure aborts one run, is contained per-target, or must surface
// through the task queue's own failure channel.
//
// Classification is best-effort: typed checks first, then deterministic
// substring matching over the lower-cased error text.
package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Category is the advisory failure classification.
type Category string

const (
	// Network covers DNS and connection-level failures.
	Network Category = "network"
	// Timeout covers deadline and i/o timeout failures.
	Timeout Category = "timeout"
	// Config covers selector/configuration mistakes on one target.
	Config Category = "config"
	// Unknown is everything else; it propagates to the queue's failure path.
	Unknown Category = "unknown"
)

// ConfigError marks a failure as a target configuration problem. It is never
// retried; the run records it and sibling targets keep running.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err as a configuration failure.
func NewConfigError(err error) *ConfigError {
	return &ConfigError{Err: err}
}

var networkPatterns = []string{
	"dns",
	"resolve",
	"getaddrinfo",
	"no such host",
	"connection refused",
	"connection reset",
	"broken pipe",
}

var timeoutPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

var configPatterns = []string{
	"selector",
	"config",
}

// Classify returns the failure category for err.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}

	var ce *ConfigError
	if errors.As(err, &ce) {
		return Config
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Network
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return Network
	}

	msg := strings.ToLower(err.Error())
	for _, p := range timeoutPatterns {
		if strings.Contains(msg, p) {
			return Timeout
		}
	}
	for _, p := range networkPatterns {
		if strings.Contains(msg, p) {
			return Network
		}
	}
	for _, p := range configPatterns {
		if strings.Contains(msg, p) {
			return Config
		}
	}
	return Unknown
}

// Contained reports whether a failure of this category should be swallowed at
// the job boundary so sibling targets keep running. Unknown failures are not
// contained; they need operator attention.
func Contained(cat Category) bool {
	return cat == Network || cat == Timeout || cat == Config
}
