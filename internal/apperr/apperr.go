// Package apperr holds the failure taxonomy shared by the codec, the
// validators, the contract gateway and the command handlers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAmountFormat       Kind = "AMOUNT_FORMAT"
	KindInvalidWeight      Kind = "INVALID_WEIGHT"
	KindValidation         Kind = "VALIDATION"
	KindNotAuthorized      Kind = "NOT_AUTHORIZED"
	KindTerminalState      Kind = "TERMINAL_STATE"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindNotYetDelivered    Kind = "NOT_YET_DELIVERED"
	KindRemoteRejected     Kind = "REMOTE_REJECTED"
	KindNetworkUnavailable Kind = "NETWORK_UNAVAILABLE"
	KindBusy               Kind = "BUSY"
	KindCancelled          Kind = "CANCELLED"
	KindNotSignedIn        Kind = "NOT_SIGNED_IN"
	KindSignatureRequired  Kind = "SIGNATURE_REQUIRED"
)

// Error is a categorized failure. Field is set for KindValidation, Reason
// carries the remote message for KindRemoteRejected.
type Error struct {
	Kind   Kind
	Op     string
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.NotAuthorized)
// works against the sentinel values below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Field == "" && t.Reason == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	AmountFormat       = &Error{Kind: KindAmountFormat}
	InvalidWeight      = &Error{Kind: KindInvalidWeight}
	Validation         = &Error{Kind: KindValidation}
	NotAuthorized      = &Error{Kind: KindNotAuthorized}
	TerminalState      = &Error{Kind: KindTerminalState}
	InvalidTransition  = &Error{Kind: KindInvalidTransition}
	NotYetDelivered    = &Error{Kind: KindNotYetDelivered}
	RemoteRejected     = &Error{Kind: KindRemoteRejected}
	NetworkUnavailable = &Error{Kind: KindNetworkUnavailable}
	Busy               = &Error{Kind: KindBusy}
	Cancelled          = &Error{Kind: KindCancelled}
	NotSignedIn        = &Error{Kind: KindNotSignedIn}
	SignatureRequired  = &Error{Kind: KindSignatureRequired}
)

func New(kind Kind, op string) *Error { return &Error{Kind: kind, Op: op} }

func Field(op, field string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field}
}

func Rejected(op, reason string) *Error {
	return &Error{Kind: KindRemoteRejected, Op: op, Reason: reason}
}

func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindNetworkUnavailable, Op: op, Err: err}
}

func Amount(input string) *Error {
	return &Error{Kind: KindAmountFormat, Op: "money", Reason: fmt.Sprintf("%q", input)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }
