// Package domain defines the error taxonomy shared by services and handlers.
// Handlers translate these types into HTTP status codes; anything that is not
// one of them is treated as an internal error.
package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Resource string
	Msg      string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Resource + " not found"
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// UnauthorizedError reports an unidentified caller or bad credentials.
type UnauthorizedError struct {
	Msg string
}

func (e *UnauthorizedError) Error() string { return e.Msg }

// ForbiddenError reports an identified caller lacking permission.
type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string { return e.Msg }

// ConflictError reports a state conflict such as a duplicate email or a
// booking that is already cancelled.
type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e *ConflictError) Error() string { return e.Msg }

func (e *ConflictError) Unwrap() error { return e.Err }

// BusinessError reports a broken business rule: sold out tickets, a full
// event, a closed sale window or a failed payment verification.
type BusinessError struct {
	Code string
	Msg  string
	Err  error
}

func (e *BusinessError) Error() string { return e.Msg }

func (e *BusinessError) Unwrap() error { return e.Err }

// UpstreamError reports a failure of an external collaborator such as the
// payment processor.
type UpstreamError struct {
	Service string
	Msg     string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Msg)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Constructors.

func Validation(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

func NotFound(resource, msg string) error { return &NotFoundError{Resource: resource, Msg: msg} }

func Unauthorized(msg string) error { return &UnauthorizedError{Msg: msg} }

func Forbidden(msg string) error { return &ForbiddenError{Msg: msg} }

func Conflict(resource, msg string) error { return &ConflictError{Resource: resource, Msg: msg} }

func Business(code, msg string) error { return &BusinessError{Code: code, Msg: msg} }

func Upstream(service, msg string, err error) error {
	return &UpstreamError{Service: service, Msg: msg, Err: err}
}

// Business rule codes.
const (
	CodeSoldOut         = "ticket_unavailable"
	CodeCapacity        = "capacity_exceeded"
	CodeSaleClosed      = "sale_window_closed"
	CodePaymentFailed   = "payment_not_succeeded"
	CodePaymentMismatch = "payment_mismatch"
	CodeTokenRequired   = "payment_token_required"
)

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsUnauthorized(err error) bool {
	var e *UnauthorizedError
	return errors.As(err, &e)
}

func IsForbidden(err error) bool {
	var e *ForbiddenError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsBusiness reports whether err is a BusinessError, optionally with one of
// the given codes.
func IsBusiness(err error, codes ...string) bool {
	var e *BusinessError
	if !errors.As(err, &e) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if e.Code == c {
			return true
		}
	}
	return false
}

func IsUpstream(err error) bool {
	var e *UpstreamError
	return errors.As(err, &e)
}
