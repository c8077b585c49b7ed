package model

import (
	"fmt"
	"net/http"
)

// FailureKind classifies why an upstream call did not produce a response.
type FailureKind int

const (
	// UpstreamError means the upstream answered with its own error.
	UpstreamError FailureKind = iota + 1
	// UpstreamUnreachable means no response was received (refused, DNS, TLS, timeout).
	UpstreamUnreachable
	// InternalError means the gateway failed to build or run the call.
	InternalError
)

// String returns the label used for metrics and logs.
func (k FailureKind) String() string {
	switch k {
	case UpstreamError:
		return "upstream_error"
	case UpstreamUnreachable:
		return "unreachable"
	case InternalError:
		return "internal"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the result of one upstream call: either *Success or *Failure.
type Outcome interface {
	outcome()
}

// Success carries an upstream response, whatever its status code.
type Success struct {
	Status int
	Header http.Header
	Body   []byte
}

// Failure carries a classified upstream call failure.
type Failure struct {
	Kind    FailureKind
	Service string
	Detail  string
	Err     error
}

func (*Success) outcome() {}
func (*Failure) outcome() {}

// Error implements error so failures can be logged and wrapped directly.
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s %s: %v", f.Service, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s %s: %s", f.Service, f.Kind, f.Detail)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}
