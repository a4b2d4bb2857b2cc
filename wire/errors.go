package wire

import "errors"

// Sentinel codec errors.
var (
	ErrTruncated      = errors.New("wire: truncated input")
	ErrInvalidTag     = errors.New("wire: invalid type tag")
	ErrStringTooLong  = errors.New("wire: short string longer than 255 bytes")
	ErrBufferOverflow = errors.New("wire: value exceeds buffer")
	ErrTypeMismatch   = errors.New("wire: value does not match requested kind")
)
