package nsof

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrTruncated       = errors.New("nsof: truncated data")
	ErrUnknownType     = errors.New("nsof: unknown object type")
	ErrBadPrecedent    = errors.New("nsof: precedent refers to unassigned id")
	ErrInvalidLength   = errors.New("nsof: invalid length")
	ErrTooDeep         = errors.New("nsof: nesting too deep")
	ErrBadFrameKey     = errors.New("nsof: frame key is not a symbol")
	ErrDuplicateSlot   = errors.New("nsof: duplicate frame slot")
	ErrIntegerRange    = errors.New("nsof: integer out of 30-bit range")
	ErrUnsupportedType = errors.New("nsof: unsupported object type")
	ErrBadVersion      = errors.New("nsof: unsupported stream version")
)

// UnknownTypeError reports an unrecognised leading tag byte.
type UnknownTypeError struct {
	Tag byte
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("nsof: unknown object type %d", e.Tag)
}

func (e *UnknownTypeError) Unwrap() error {
	return ErrUnknownType
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %w", ErrTruncated, err)
}
