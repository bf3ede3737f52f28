package core

import (
	"errors"
	"fmt"
)

// ErrCacheMiss is returned by a VerdictCache when no live entry exists for a key
var ErrCacheMiss = errors.New("cache entry not found")

// AuthenticationError is returned when a mail backend rejects the supplied credentials.
// Message carries remediation text meant for the operator.
type AuthenticationError struct {
	Provider string
	Message  string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// QuotaError is returned when a backend throttles the caller
type QuotaError struct {
	Provider string
	Message  string
	Err      error
}

func (e *QuotaError) Error() string {
	return e.Message
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// TransportError covers network and protocol failures
type TransportError struct {
	Provider string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is an HTTP response with a non-success status code
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// ConfigurationError reports a missing API key or an empty project list
type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// NotImplementedError is returned by operations a backend does not support
type NotImplementedError struct {
	Message string
}

func (e *NotImplementedError) Error() string {
	return e.Message
}

// ParseError wraps a failure to decode model output. It never leaves the classifier.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
