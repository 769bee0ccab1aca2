package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure by how the caller must treat it:
// authentication errors are retryable by resubmitting a claim,
// authorization errors are terminal for that action, persistence
// errors reach the initiator only, transient errors are logged and
// swallowed on fire-and-forget paths.
type Kind string

const (
	KindAuthentication Kind = "AUTHENTICATION"
	KindAuthorization  Kind = "AUTHORIZATION"
	KindPersistence    Kind = "PERSISTENCE"
	KindValidation     Kind = "VALIDATION"
	KindTransient      Kind = "TRANSIENT"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Authentication(msg string) error { return New(KindAuthentication, msg) }

func Authorization(msg string) error { return New(KindAuthorization, msg) }

func Persistence(msg string, cause error) error { return Wrap(KindPersistence, msg, cause) }

func Validation(msg string, cause error) error { return Wrap(KindValidation, msg, cause) }

func Transient(msg string, cause error) error { return Wrap(KindTransient, msg, cause) }

// Is and As forward to the standard library so callers never need a
// second errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// KindOf extracts the classification of err, unwrapping as needed.
// Unclassified errors are reported as transient so no caller ever
// treats an unknown failure as more permanent than it is.
func KindOf(err error) Kind {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindTransient
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the wire-safe description of err: the message of
// a classified error, a generic line otherwise. Causes never leak to
// clients.
func UserMessage(err error) string {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// Store-level sentinels, wrapped into kinds by the callers that know
// which action they were serving.
var (
	ErrUserNotFound         = stderrors.New("user not found")
	ErrConversationNotFound = stderrors.New("conversation not found")
	ErrMessageNotFound      = stderrors.New("message not found")
	ErrUserAlreadyExists    = stderrors.New("user already exists")
	ErrWorkerPanic          = stderrors.New("worker panic")
	ErrEmptyBlocklist       = stderrors.New("no blocklist words loaded")
)

// Action-level sentinels surfaced on the wire.
var (
	ErrNotAuthenticated = Authentication("connection is not authenticated")
	ErrUnknownIdentity  = Authentication("identity claim did not resolve to a user")
	ErrNotParticipant   = Authorization("user is not a participant of this conversation")
	ErrNotInRoom        = Authorization("connection has not joined this conversation")
)
