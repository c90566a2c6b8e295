package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig    = errors.New("session: invalid config")
	ErrAlreadyStarted   = errors.New("session: handshake already started")
	ErrNotEstablished   = errors.New("session: session not established")
	ErrCanceled         = errors.New("session: operation canceled")
	ErrDisconnected     = errors.New("session: disconnected")
	ErrOperationPending = errors.New("session: operation already has an outstanding command")
)

// UnexpectedCommandError reports a command that does not fit the current
// handshake state. The state is left unchanged.
type UnexpectedCommandError struct {
	State   State
	Command string
}

func (e *UnexpectedCommandError) Error() string {
	return fmt.Sprintf("session: unexpected command %q in state %s", e.Command, e.State)
}

// ResultError carries a non-zero result code reported by the device.
type ResultError struct {
	Code int32
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("session: device reported error %d", e.Code)
}
