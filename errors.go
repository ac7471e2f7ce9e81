package humayat

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindTransport
	KindNotFound
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is implemented only by the four error types of this package.
type Error interface {
	error
	Kind() ErrorKind
	sealed()
}

// ValidationError reports input rejected before it reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Kind() ErrorKind { return KindValidation }
func (e *ValidationError) sealed()         {}

// TransportError reports a network failure that survived every retry.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Kind() ErrorKind { return KindTransport }
func (e *TransportError) sealed()         {}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

func (e NotFoundError) Kind() ErrorKind { return KindNotFound }
func (e NotFoundError) sealed()         {}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// UpstreamServiceError reports a request the remote service rejected.
type UpstreamServiceError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *UpstreamServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Message)
}

func (e *UpstreamServiceError) Kind() ErrorKind { return KindUpstream }
func (e *UpstreamServiceError) sealed()         {}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsUpstream(err error) bool {
	var target *UpstreamServiceError
	return errors.As(err, &target)
}

// KindOf returns the kind of the first taxonomy error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return 0
}
