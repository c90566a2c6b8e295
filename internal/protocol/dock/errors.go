package dock

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrBadMagic         = errors.New("dock: bad command magic")
	ErrTruncated        = errors.New("dock: truncated command")
	ErrInvalidName      = errors.New("dock: command name must be 4 ASCII characters")
	ErrCommandExists    = errors.New("dock: command already registered")
	ErrPayloadTooLarge  = errors.New("dock: command payload too large")
	ErrUnexpectedObject = errors.New("dock: unexpected payload object")
)

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %w", ErrTruncated, err)
}
