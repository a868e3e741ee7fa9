package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures for callers and tests
type ErrorKind string

const (
	KindValidation             ErrorKind = "validation"
	KindAuthenticationRequired ErrorKind = "authentication_required"
	KindNotFound               ErrorKind = "not_found"
	KindAlreadyDone            ErrorKind = "already_done"
	KindLimitExceeded          ErrorKind = "limit_exceeded"
	KindInsufficientFunds      ErrorKind = "insufficient_funds"
	KindInvalidArgument        ErrorKind = "invalid_argument"
	KindInternal               ErrorKind = "internal"
)

// ErrDuplicateUser is returned by UserRepository.Create when a unique column collides
var ErrDuplicateUser = errors.New("username, email or referral code already exists")

// GenericFailureMessage is shown in place of internal error details
const GenericFailureMessage = "An unexpected application error occurred."

// Error is a service failure with a user-facing message
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// internalError wraps a storage or transaction fault
func internalError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: GenericFailureMessage, Err: fmt.Errorf(format+": %w", append(args, err)...)}
}

// KindOf returns the kind of err, KindInternal for errors not raised by this package
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a service error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Kind == kind
}

// UserMessage returns the message safe to show to the caller
func UserMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		return svcErr.Message
	}
	return GenericFailureMessage
}
