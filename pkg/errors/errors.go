package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

// Domain kinds surfaced by the cart, wishlist, order and analytics services.
const (
	CodeInvalidProduct        Code = "INVALID_PRODUCT"
	CodeInvalidQuantity       Code = "INVALID_QUANTITY"
	CodeDuplicateEntry        Code = "DUPLICATE_ENTRY"
	CodeEmptyCart             Code = "EMPTY_CART"
	CodeInvalidStatus         Code = "INVALID_STATUS"
	CodeIllegalTransition     Code = "ILLEGAL_TRANSITION"
	CodeInvalidRange          Code = "INVALID_RANGE"
	CodeMissingRange          Code = "MISSING_RANGE"
	CodeNotFound              Code = "NOT_FOUND"
	CodeDependencyUnavailable Code = "DEPENDENCY_UNAVAILABLE"
)

// Transport and platform codes.
const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	details
)

func meta(status int, public string, traits ...trait) Metadata {
	m := Metadata{HTTPStatus: status, PublicMessage: public}
	for _, t := range traits {
		m.Retryable = m.Retryable || t == retryable
		m.DetailsAllowed = m.DetailsAllowed || t == details
	}
	return m
}

var metadataByCode = map[Code]Metadata{
	CodeInvalidProduct:        meta(http.StatusBadRequest, "product is unknown or unavailable", details),
	CodeInvalidQuantity:       meta(http.StatusBadRequest, "invalid quantity", details),
	CodeDuplicateEntry:        meta(http.StatusConflict, "entry already exists", details),
	CodeEmptyCart:             meta(http.StatusUnprocessableEntity, "cart is empty"),
	CodeInvalidStatus:         meta(http.StatusBadRequest, "unknown order status", details),
	CodeIllegalTransition:     meta(http.StatusConflict, "status transition not allowed", details),
	CodeInvalidRange:          meta(http.StatusBadRequest, "invalid date range", details),
	CodeMissingRange:          meta(http.StatusBadRequest, "start and end dates are required", details),
	CodeNotFound:              meta(http.StatusNotFound, "resource not found"),
	CodeDependencyUnavailable: meta(http.StatusServiceUnavailable, "dependency unavailable", retryable, details),

	CodeValidation:   meta(http.StatusBadRequest, "validation failed", details),
	CodeUnauthorized: meta(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:    meta(http.StatusForbidden, "access denied"),
	CodeIdempotency:  meta(http.StatusConflict, "idempotency key reused", details),
	CodeRateLimit:    meta(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal:     meta(http.StatusInternalServerError, "internal server error", retryable),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded failure. The message is for logs; clients see the
// code's public message plus details when the code allows them.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is lets errors.Is match on code alone, e.g. errors.Is(err, New(CodeNotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Classify returns err untouched when it already carries a code and wraps it
// with code otherwise. Storage layers use it to turn raw driver failures into
// DEPENDENCY_UNAVAILABLE without masking domain errors raised further down.
func Classify(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	if As(err) != nil {
		return err
	}
	return Wrap(code, err, message)
}
