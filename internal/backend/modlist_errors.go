// Package backend provides the LDAP backend interface that wraps the storage engine
// and provides LDAP-specific operations including authentication, entry validation,
// and coordination with the storage layer.
package backend

import (
	"fmt"

	"github.com/pkg/errors"
)

// ModCode classifies the outcome of a single Value Engine or Modify Engine
// operation, independent of the LDAP result code the dispatch layer
// eventually sends back to the wire.
type ModCode int

const (
	// ModOK indicates the modification applied cleanly.
	ModOK ModCode = iota
	// ModTypeOrValueExists indicates an add/replace found a duplicate value
	// and the request was not permissive.
	ModTypeOrValueExists
	// ModNoSuchAttribute indicates a delete targeted a missing attribute or
	// value and the request was not permissive.
	ModNoSuchAttribute
	// ModConstraintViolation indicates a single-value, increment, or
	// duplicate-in-replace constraint was violated.
	ModConstraintViolation
	// ModInvalidSyntax indicates a value failed its attribute's syntax check.
	ModInvalidSyntax
	// ModInsufficientAccess indicates the ACL evaluator refused the modList.
	ModInsufficientAccess
	// ModNoSuchObject indicates the target entry does not exist.
	ModNoSuchObject
	// ModReferral indicates the target is a referral or glue entry and the
	// client did not assert manageDSAIT; the reply carries the referral
	// list instead of applying the change.
	ModReferral
	// ModAssertionFailed indicates the request's assertion evaluated false
	// against the pre-modification entry.
	ModAssertionFailed
	// ModNoOperation indicates the request was flagged no-op; the caller
	// should abort the transaction and reply success without persisting.
	ModNoOperation
	// ModOther covers schema failures and anything else not named above.
	ModOther
)

// String returns a human-readable name for the code.
func (c ModCode) String() string {
	switch c {
	case ModOK:
		return "OK"
	case ModTypeOrValueExists:
		return "TYPE_OR_VALUE_EXISTS"
	case ModNoSuchAttribute:
		return "NO_SUCH_ATTRIBUTE"
	case ModConstraintViolation:
		return "CONSTRAINT_VIOLATION"
	case ModInvalidSyntax:
		return "INVALID_SYNTAX"
	case ModInsufficientAccess:
		return "INSUFFICIENT_ACCESS"
	case ModNoSuchObject:
		return "NO_SUCH_OBJECT"
	case ModReferral:
		return "REFERRAL"
	case ModAssertionFailed:
		return "ASSERTION_FAILED"
	case ModNoOperation:
		return "NO_OPERATION"
	default:
		return "OTHER"
	}
}

// ModError is the structured error returned by the modification engine: a
// machine-checkable code plus the attribute it concerns and human-readable
// text suitable for the diagnostic message of an LDAP reply.
type ModError struct {
	Code    ModCode
	Attr    string
	Message string
	cause   error
}

// Error implements the error interface.
func (e *ModError) Error() string {
	if e.Attr != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Attr)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped storage-layer cause, if any, so callers can use
// errors.As/errors.Is against it.
func (e *ModError) Unwrap() error {
	return e.cause
}

// NewModError builds a ModError for the given code/attribute/message.
func NewModError(code ModCode, attr, message string) *ModError {
	return &ModError{Code: code, Attr: attr, Message: message}
}

// wrapModError attaches a ModError on top of a lower-level cause, preserving
// it for inspection via errors.As while giving the caller a stable code.
func wrapModError(code ModCode, attr string, cause error) *ModError {
	return &ModError{Code: code, Attr: attr, Message: cause.Error(), cause: cause}
}

// TransientCode distinguishes the storage-engine conditions that drive the
// Transaction Driver's retry loop from conditions that must be surfaced to
// the client immediately.
type TransientCode int

const (
	// TransientDeadlock signals the storage engine detected a deadlock and
	// chose this transaction as the victim.
	TransientDeadlock TransientCode = iota
	// TransientNotGranted signals a lock could not be acquired in time.
	TransientNotGranted
)

func (c TransientCode) String() string {
	if c == TransientDeadlock {
		return "DEADLOCK"
	}
	return "NOT_GRANTED"
}

// TransientError wraps a storage error that the modify driver should retry
// rather than surface to the client. The driver matches it with xerrors.As
// at each state-machine boundary.
type TransientError struct {
	Code  TransientCode
	cause error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("backend: transient storage error (%s): %v", e.Code, e.cause)
}

// Unwrap exposes the underlying storage error.
func (e *TransientError) Unwrap() error {
	return e.cause
}

// NewTransientError wraps cause as a transient, retryable storage condition.
func NewTransientError(code TransientCode, cause error) *TransientError {
	return &TransientError{Code: code, cause: cause}
}

// ErrEntryLookupNotFound is the not-found condition from entry lookup. It
// is never retried; the driver's lookup state maps it to a no-such-object
// reply.
var ErrEntryLookupNotFound = errors.New("backend: entry not found")

// wrapFatalStorageError wraps any non-transient, non-not-found storage
// failure with enough context for the internal-error reply path to log a
// stack trace via %+v.
func wrapFatalStorageError(op string, cause error) error {
	return errors.Wrapf(cause, "backend: internal error during %s", op)
}
