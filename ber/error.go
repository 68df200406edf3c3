package ber

// Error is a asn1 ber error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// Error values.
const (
	ErrIncomplete                 Error = "incomplete packet"
	ErrUnexpectedEOF              Error = "unexpected EOF"
	ErrIndefiniteLengthNotAllowed Error = "indefinite length not allowed"
	ErrIntegerTooLarge            Error = "integer too large"
	ErrInvalidBoolean             Error = "invalid boolean"
	ErrInvalidInteger             Error = "invalid integer"
	ErrInvalidNull                Error = "invalid null"
	ErrInvalidUTF8String          Error = "invalid UTF-8 string"
	ErrLengthGreaterThanMax       Error = "length greater than max"
	ErrPastPacketBoundary         Error = "past packet boundary"
	ErrTrailingData               Error = "trailing data after packet"
	ErrInvalidHighByte            Error = "invalid high byte"
	ErrTagValueOverflow           Error = "tag value overflow"
	ErrInvalidLength              Error = "invalid length"
	ErrLengthValueOverflow        Error = "length value overflow"
	ErrMaxDepthExceeded           Error = "max depth exceeded"
)
