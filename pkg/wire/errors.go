package wire

import "errors"

var (
	ErrUnsupportedType = errors.New("wire: unsupported type")
	ErrShortBuffer     = errors.New("wire: unexpected end of data")
	ErrTooLarge        = errors.New("wire: length exceeds limit")
	ErrInvalidBool     = errors.New("wire: invalid boolean")
	ErrInvalidPointer  = errors.New("wire: invalid pointer marker")
	ErrTrailingBytes   = errors.New("wire: trailing bytes after value")
)

const (
	errEncodingField = "encoding field '%s': %w"
	errDecodingField = "decoding field '%s': %w"
)
