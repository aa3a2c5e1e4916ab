// Package verr defines the error taxonomy shared by every vakil service.
// Callers switch on the Code; the Public message is the only text that may
// reach an HTTP client.
package verr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a stable error category that callers can switch on.
type Code string

const (
	CodeUnknown                   Code = "unknown"
	CodeAuthenticationRequired    Code = "authentication_required"
	CodeInvalidRequest            Code = "invalid_request"
	CodeCSRFMismatch              Code = "csrf_mismatch"
	CodeConfiguration             Code = "configuration_error"
	CodeEncryptionFailure         Code = "encryption_failure"
	CodeDecryptionFailure         Code = "decryption_failure"
	CodeMalformedCiphertext       Code = "malformed_ciphertext"
	CodeCredentialUnavailable     Code = "credential_unavailable"
	CodeUpstreamUnreachable       Code = "upstream_unreachable"
	CodeUpstreamRejected          Code = "upstream_rejected"
	CodeUpstreamMalformedResponse Code = "upstream_malformed_response"
	CodeNotFoundOrForbidden       Code = "not_found_or_forbidden"
	CodeDuplicateIdentity         Code = "duplicate_identity"
	CodePersistence               Code = "persistence_error"
)

var defaultPublic = map[Code]string{
	CodeUnknown:                   "An unexpected error occurred. Please try again.",
	CodeAuthenticationRequired:    "Authentication required.",
	CodeInvalidRequest:            "Invalid request.",
	CodeCSRFMismatch:              "Invalid CSRF token. Request blocked.",
	CodeConfiguration:             "Server configuration error. Please contact the administrator.",
	CodeEncryptionFailure:         "Failed to secure API key.",
	CodeDecryptionFailure:         "Failed to access API key. Please save it again in your settings.",
	CodeMalformedCiphertext:       "Failed to access API key. Please save it again in your settings.",
	CodeCredentialUnavailable:     "Google AI API Key is not set. Please set it in your user settings.",
	CodeUpstreamUnreachable:       "The AI service could not be reached. Please try again.",
	CodeUpstreamRejected:          "The AI service rejected the request. Please try again later.",
	CodeUpstreamMalformedResponse: "The AI service returned an unexpected response. Please try again.",
	CodeNotFoundOrForbidden:       "Chat not found or access denied.",
	CodeDuplicateIdentity:         "An account with this email already exists. Please log in with the original method.",
	CodePersistence:               "A database error occurred. Please try again later.",
}

var httpStatus = map[Code]int{
	CodeAuthenticationRequired:    http.StatusUnauthorized,
	CodeInvalidRequest:            http.StatusBadRequest,
	CodeCSRFMismatch:              http.StatusForbidden,
	CodeCredentialUnavailable:     http.StatusBadRequest,
	CodeUpstreamUnreachable:       http.StatusBadGateway,
	CodeUpstreamRejected:          http.StatusBadGateway,
	CodeUpstreamMalformedResponse: http.StatusBadGateway,
	CodeNotFoundOrForbidden:       http.StatusNotFound,
	CodeDuplicateIdentity:         http.StatusConflict,
}

// Error is a simple value type that carries a Code, an optional
// caller-safe message and the underlying error.
type Error struct {
	Code   Code
	Public string
	err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.err == nil {
		if e.Public != "" {
			return fmt.Sprintf("%s: %s", e.Code, e.Public)
		}
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// New wraps an error with the provided code. If err is nil a nil is returned.
func New(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, err: err}
}

// Errorf builds a coded error from a format string.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, err: fmt.Errorf(format, args...)}
}

// WithPublic wraps err with a code and an explicit caller-safe message.
func WithPublic(code Code, public string, err error) error {
	return &Error{Code: code, Public: public, err: err}
}

// CodeOf returns the code of the outermost *Error in the chain, or
// CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode helps callers compare codes without type assertions.
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// PublicMessage returns the text that may be shown to an end user for err.
// It never includes the wrapped cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Public != "" {
			return e.Public
		}
		if msg, ok := defaultPublic[e.Code]; ok {
			return msg
		}
	}
	return defaultPublic[CodeUnknown]
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	if status, ok := httpStatus[CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
