package engine

import (
	"errors"
	"fmt"
)

// ErrQueueClosed is returned by Submit once END has been accepted.
var ErrQueueClosed = errors.New("request queue is closed")

// CommandError is returned for input lines that cannot be accepted.
//
// Rejected lines are never enqueued and consume no request id.
type CommandError struct {
	// Code identifies the error category.
	Code CommandErrorCode

	// Message is a human-readable description.
	Message string

	// Line is the offending input, as received.
	Line string
}

// CommandErrorCode categorizes rejected commands.
type CommandErrorCode string

const (
	// ErrCodeEmpty indicates a line with no tokens.
	ErrCodeEmpty CommandErrorCode = "EMPTY"

	// ErrCodeUnknownKeyword indicates the first token is not CHECK, TRANS or END.
	ErrCodeUnknownKeyword CommandErrorCode = "UNKNOWN_KEYWORD"

	// ErrCodeArity indicates the wrong number of tokens for the keyword.
	ErrCodeArity CommandErrorCode = "ARITY"

	// ErrCodeBadAccount indicates a non-integer or out-of-range account id.
	ErrCodeBadAccount CommandErrorCode = "BAD_ACCOUNT"

	// ErrCodeBadAmount indicates a delta that is not an int64.
	ErrCodeBadAmount CommandErrorCode = "BAD_AMOUNT"
)

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("%s: %s (line=%q)", e.Code, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCommandError reports whether err is a rejected command.
// Uses errors.As to handle wrapped errors.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// CommandErrorCodeOf returns the code of a wrapped CommandError, or "".
func CommandErrorCodeOf(err error) CommandErrorCode {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func newCommandError(code CommandErrorCode, line, format string, args ...any) *CommandError {
	return &CommandError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
	}
}
