// Package apperr defines the structured error kinds shared by the pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure the UI can render consistently.
type Code string

const (
	DeckNotFound         Code = "E_DECK_NOT_FOUND"
	ModelNotFound        Code = "E_MODEL_NOT_FOUND"
	RequiredFieldMissing Code = "E_REQUIRED_FIELD_MISSING"
	ClozeSyntaxInvalid   Code = "E_CLOZE_SYNTAX_INVALID"
	MediaInvalid         Code = "E_MEDIA_INVALID"
	AnkiConnectError     Code = "E_ANKICONNECT_ERROR"
	LLMError             Code = "E_LLM_ERROR"
	LLMParseError        Code = "E_LLM_PARSE_ERROR"
	ConfigInvalid        Code = "E_CONFIG_INVALID"
	Unknown              Code = "E_UNKNOWN"
)

// Error is a coded failure carrying the trace id of the operation that raised it.
type Error struct {
	Code    Code
	Message string
	TraceID string
	Err     error
}

// New creates a coded error.
func New(code Code, traceID, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), TraceID: traceID}
}

// Wrap creates a coded error that keeps err in the chain.
func Wrap(code Code, traceID string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), TraceID: traceID, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or Unknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// Message returns the human-readable message without the code prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
