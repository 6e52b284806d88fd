// Package rejection carries the typed failure reasons of the voucher pipeline.
//
// Every failure is classified by Kind so that callers can tell a voter who is not eligible
// (validation) apart from a hub or subgraph outage (upstream), a reward that cannot be
// computed (computation) or a voucher that cannot be signed (signing).
package rejection

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

var (
	Kind_Validation  Kind = "validation"
	Kind_Upstream    Kind = "upstream"
	Kind_Computation Kind = "computation"
	Kind_Signing     Kind = "signing"
	Kind_Internal    Kind = "internal"
)

type Reason string

var (
	Reason_NotEnded            Reason = "not_ended"
	Reason_UnsupportedType     Reason = "unsupported_type"
	Reason_ChoiceMismatch      Reason = "choice_mismatch"
	Reason_ProposalMismatch    Reason = "proposal_mismatch"
	Reason_InvalidRequest      Reason = "invalid_request"
	Reason_UnsupportedStrategy Reason = "unsupported_strategy"

	Reason_ProposalNotFound    Reason = "proposal_not_found"
	Reason_VoteNotFound        Reason = "vote_not_found"
	Reason_BoostNotFound       Reason = "boost_not_found"
	Reason_MalformedResponse   Reason = "malformed_response"
	Reason_UpstreamUnavailable Reason = "upstream_unavailable"

	Reason_DivisionByZero Reason = "division_by_zero"
	Reason_NotImplemented Reason = "not_implemented"
	Reason_InvalidInput   Reason = "invalid_input"

	Reason_UnknownChain  Reason = "unknown_chain"
	Reason_SigningFailed Reason = "signing_failed"

	Reason_Unknown Reason = "unknown"
)

type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.cause.Error())
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Cause satisfies the github.com/pkg/errors causer interface.
func (e *Error) Cause() error {
	return e.cause
}

func New(kind Kind, reason Reason, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

func Wrap(err error, kind Kind, reason Reason, format string, args ...interface{}) *Error {
	e := New(kind, reason, format, args...)
	e.cause = err
	return e
}

func Validation(reason Reason, format string, args ...interface{}) *Error {
	return New(Kind_Validation, reason, format, args...)
}

func Upstream(err error, reason Reason, format string, args ...interface{}) *Error {
	return Wrap(err, Kind_Upstream, reason, format, args...)
}

func Computation(reason Reason, format string, args ...interface{}) *Error {
	return New(Kind_Computation, reason, format, args...)
}

func Signing(err error, reason Reason, format string, args ...interface{}) *Error {
	return Wrap(err, Kind_Signing, reason, format, args...)
}

// From returns the *Error in err's chain, classifying anything else as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var r *Error
	if errors.As(err, &r) {
		return r
	}
	return Wrap(err, Kind_Internal, Reason_Unknown, "unexpected error")
}

func IsKind(err error, kind Kind) bool {
	var r *Error
	return errors.As(err, &r) && r.Kind == kind
}

func IsReason(err error, reason Reason) bool {
	var r *Error
	return errors.As(err, &r) && r.Reason == reason
}
