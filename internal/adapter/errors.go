package adapter

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures into the four categories callers
// are expected to branch on.
type ErrorKind int

const (
	// KindInitializationFailed marks errors detected while loading, compiling
	// or initializing an adapter module. Fatal for that adapter.
	KindInitializationFailed ErrorKind = iota
	// KindExecutionError marks failures local to a single request: a sandbox
	// call failed, the budget ran out, the module returned malformed output,
	// or the upstream transport returned a non-success status.
	KindExecutionError
	// KindInvalidConfig marks bad path layouts, malformed manifests and
	// malformed adapter configuration.
	KindInvalidConfig
	// KindServiceUnavailable means the targeted instance does not exist or has
	// not completed initialization. Distinct from an execution failure: the
	// request was never attempted.
	KindServiceUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInitializationFailed:
		return "initialization_failed"
	case KindExecutionError:
		return "execution_error"
	case KindInvalidConfig:
		return "invalid_config"
	case KindServiceUnavailable:
		return "service_unavailable"
	default:
		return "unknown"
	}
}

// ServiceError is the error type surfaced by every adapter operation.
type ServiceError struct {
	Kind   ErrorKind
	Reason string
	Err    error // optional underlying cause
}

func (e *ServiceError) Error() string {
	switch e.Kind {
	case KindInitializationFailed:
		return "adapter initialization failed: " + e.Reason
	case KindExecutionError:
		return "module execution error: " + e.Reason
	case KindInvalidConfig:
		return "invalid configuration: " + e.Reason
	case KindServiceUnavailable:
		return "service unavailable: " + e.Reason
	default:
		return e.Reason
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Errf builds a ServiceError of the given kind with a formatted reason.
func Errf(kind ErrorKind, format string, args ...any) *ServiceError {
	err := fmt.Errorf(format, args...)
	return &ServiceError{Kind: kind, Reason: err.Error(), Err: errors.Unwrap(err)}
}

// KindOf reports the ErrorKind of err. Errors outside the adapter taxonomy
// are treated as execution errors.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindExecutionError
}

// IsUnavailable reports whether err is a ServiceUnavailable error.
func IsUnavailable(err error) bool {
	return KindOf(err) == KindServiceUnavailable
}
