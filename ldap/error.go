package ldap

import (
	"errors"
	"fmt"
)

// ServerError is a server error.
type ServerError string

// Error satisfies the error interface.
func (err ServerError) Error() string {
	return "ldap: " + string(err)
}

// Error values.
const (
	ErrServerShutdown                   ServerError = "server shutdown"
	ErrNilHandler                       ServerError = "nil handler"
	ErrPacketNotSequence                ServerError = "packet is not a sequence"
	ErrPacketHasInvalidNumberOfChildren ServerError = "packet has invalid number of children"
	ErrPacketHasInvalidMessageID        ServerError = "packet has invalid message id"
	ErrPacketHasInvalidClass            ServerError = "packet has invalid class"
	ErrPacketHasInvalidType             ServerError = "packet has invalid type"
	ErrPacketHasInvalidControls         ServerError = "packet has invalid controls"
	ErrPacketNotRequest                 ServerError = "packet is not a request"
	ErrInvalidField                     ServerError = "invalid field"
	ErrInvalidVersion                   ServerError = "invalid protocol version"
	ErrUnknownAuthChoice                ServerError = "unknown authentication choice"
)

// UnsupportedOpError is returned when parsing a message whose operation is
// well framed but outside the set of operations this package decodes.
type UnsupportedOpError struct {
	ID  int64
	App Application
}

// Error satisfies the error interface.
func (err *UnsupportedOpError) Error() string {
	return fmt.Sprintf("ldap: unsupported operation %s (message %d)", err.App, err.ID)
}

// fieldError wraps ErrInvalidField with the offending operation and field.
func fieldError(app Application, field string) error {
	return fmt.Errorf("%s %s: %w", app, field, ErrInvalidField)
}

// Error is a ldap error, rendered as the result of the response.
type Error struct {
	Result  Result
	Matched string
	Message string
}

// NewError creates a new ldap error.
func NewError(result Result, message string) *Error {
	return &Error{
		Result:  result,
		Message: message,
	}
}

// NewErrorf creates a new ldap error using fmt.Sprintf.
func NewErrorf(result Result, message string, v ...interface{}) *Error {
	return &Error{
		Result:  result,
		Message: fmt.Sprintf(message, v...),
	}
}

// Error satisfies the error interface.
func (err *Error) Error() string {
	return fmt.Sprintf("%s (%d)", err.Message, err.Result)
}

// IsErrorOf returns true if the given error is an ldap error with any one of
// the given result codes.
func IsErrorOf(err error, results ...Result) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	for _, result := range results {
		if e.Result == result {
			return true
		}
	}
	return false
}
