package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeMapping       Code = "MAPPING_ERROR"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeMalformedFeed Code = "MALFORMED_FEED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Class groups codes by how a batch run reacts to them.
type Class string

const (
	// ClassTransient failures are retried by the next scheduled run.
	ClassTransient Class = "transient"
	// ClassData failures skip the affected item.
	ClassData Class = "data"
	// ClassFatal failures abort the run.
	ClassFatal Class = "fatal"
	// ClassInvariant failures are rejected at the data layer and logged.
	ClassInvariant Class = "invariant"
)

type Metadata struct {
	Class     Class
	Retryable bool
	Summary   string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Class:   ClassData,
		Summary: "validation failed",
	},
	CodeNotFound: {
		Class:   ClassData,
		Summary: "resource not found",
	},
	CodeMapping: {
		Class:   ClassData,
		Summary: "channel data could not be mapped",
	},
	CodeConflict: {
		Class:   ClassInvariant,
		Summary: "conflict detected",
	},
	CodeStateConflict: {
		Class:   ClassInvariant,
		Summary: "state transition disallowed",
	},
	CodeMalformedFeed: {
		Class:   ClassFatal,
		Summary: "channel feed malformed",
	},
	CodeInternal: {
		Class:     ClassTransient,
		Retryable: true,
		Summary:   "internal error",
	},
	CodeDependency: {
		Class:     ClassTransient,
		Retryable: true,
		Summary:   "dependency unavailable",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
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

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether err carries the provided code anywhere in its chain.
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsFatal reports whether err should abort the whole run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(CodeOf(err)).Class == ClassFatal
}
