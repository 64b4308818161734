package returns

import (
	"errors"
)

// errors used by the HTTP layer

type ErrCode string

const (
	ErrUnauthorized                  ErrCode = "UNAUTHORIZED"
	ErrInvalidArgument               ErrCode = "INVALID_ARGUMENT"
	ErrNotFound                      ErrCode = "NOT_FOUND"
	ErrAlreadyProcessed              ErrCode = "ALREADY_PROCESSED"
	ErrInventoryReconciliationFailed ErrCode = "INVENTORY_RECONCILIATION_FAILED"
)

type codedError struct {
	code  ErrCode
	msg   string
	field string
	cause error
}

func (e *codedError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *codedError) Code() ErrCode   { return e.code }
func (e *codedError) Field() string   { return e.field }
func (e *codedError) Unwrap() error   { return e.cause }
func (e *codedError) Message() string { return e.msg }

func makeErr(c ErrCode, msg string, cause error) error {
	return &codedError{code: c, msg: msg, cause: cause}
}

func invalidArg(field, msg string) error {
	return &codedError{code: ErrInvalidArgument, msg: msg, field: field}
}

// Code extracts the error code, or "" for errors the workflow did not classify.
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// Field returns the offending request field of an INVALID_ARGUMENT error.
func Field(err error) string {
	var ce interface{ Field() string }
	if errors.As(err, &ce) {
		return ce.Field()
	}
	return ""
}

// Message returns the caller-facing message without the wrapped cause.
func Message(err error) string {
	var ce interface{ Message() string }
	if errors.As(err, &ce) {
		return ce.Message()
	}
	return err.Error()
}
