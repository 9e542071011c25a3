// Package errkind implements the seven-kind error taxonomy from the design:
// Validation, Authentication, Protocol, Resource, Timeout, Byzantine, Fatal.
// Cores never panic on external input; only on an invariant violation
// internal to themselves. Every error that crosses a core boundary carries
// one of these kinds so callers can decide the recovery policy without
// inspecting opaque strings.
package errkind

import (
	"github.com/cockroachdb/errors"
)

// Kind classifies an error for the purpose of recovery policy.
type Kind uint8

const (
	// Validation covers malformed wire data, bad sizes, failed invariants.
	// Always recovered locally by discarding the input.
	Validation Kind = iota
	// Authentication covers bad signatures, unknown key hashes, replay
	// window violations. Input is discarded and the sender's reputation
	// is penalized.
	Authentication
	// Protocol covers state-machine mismatches (wrong phase, wrong round).
	// Recovered by local retry or reset; never surfaced to the caller.
	Protocol
	// Resource covers OOM, full queues, exhausted relay capacity.
	// Backpressure is propagated and the operation retried with backoff.
	Resource
	// Timeout covers exceeded deadlines. Retried up to a bounded attempt
	// count with capped exponential backoff, then surfaced as transient.
	Timeout
	// Byzantine covers equivocation, invalid commits, bad proofs.
	// Surfaced to the challenge manager for slashing; never auto-retried.
	Byzantine
	// Fatal covers disk corruption or crypto subsystem failure. The node
	// shuts down after flushing its audit log.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authentication:
		return "authentication"
	case Protocol:
		return "protocol"
	case Resource:
		return "resource"
	case Timeout:
		return "timeout"
	case Byzantine:
		return "byzantine"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// kindedError pairs a Kind with an underlying cause, without leaking
// internal pointers or stack traces past the core boundary.
type kindedError struct {
	kind Kind
	msg  string
	err  error
}

func (e *kindedError) Error() string {
	if e.msg == "" {
		return e.kind.String() + ": " + e.err.Error()
	}
	return e.kind.String() + ": " + e.msg
}

func (e *kindedError) Unwrap() error { return e.err }

// New creates a new error of the given kind with a diagnostic message free
// of internal pointers.
func New(kind Kind, msg string) error {
	return &kindedError{kind: kind, msg: msg, err: errors.New(msg)}
}

// Wrap annotates an existing error with a kind, preserving it for Unwrap.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind: kind, msg: msg, err: errors.Wrap(err, msg)}
}

// Of extracts the Kind carried by err, if any, and whether one was found.
func Of(err error) (Kind, bool) {
	var ke *kindedError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return 0, false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// Retryable reports whether the error kind is one the spec says should be
// retried (Resource, Timeout) rather than discarded or escalated.
func Retryable(err error) bool {
	k, ok := Of(err)
	return ok && (k == Resource || k == Timeout)
}
