package session

import (
	"context"
	"sync"

	"github.com/danmuck/newtdock/internal/observability"
	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/rs/zerolog/log"
)

// Handshake is the desktop side of the docking handshake. It consumes
// device commands and returns the reply to send, if any. Safe for
// concurrent use so Cancel may be called while another goroutine is
// handling traffic.
type Handshake struct {
	cfg Config

	mu              sync.Mutex
	state           State
	kind            Kind
	protocolVersion int32
	device          *dock.NewtonName
	info            *dock.NewtonInfo
	err             error

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewHandshake(cfg Config) *Handshake {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Handshake{cfg: cfg, state: Idle, ctx: ctx, cancel: cancel}
}

// Start moves an idle handshake to waiting for the device's request.
func (h *Handshake) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Idle {
		return ErrAlreadyStarted
	}
	h.transition(AwaitingRequestToDock)
	return nil
}

// Handle applies one device command and returns the replies to send, in
// order. A *UnexpectedCommandError leaves the state unchanged; a
// *ResultError means the device refused the session.
func (h *Handshake) Handle(cmd dock.Command) ([]dock.Command, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch cmd.Name() {
	case dock.NameOperationCanceled:
		if h.state != Disconnected {
			h.disconnect(ErrCanceled)
		}
		return []dock.Command{dock.NewOperationCanceledAck()}, nil
	case dock.NameDisconnect:
		if h.state != Disconnected {
			h.disconnect(ErrDisconnected)
		}
		return nil, nil
	}

	switch h.state {
	case AwaitingRequestToDock:
		if rtdk, ok := cmd.(*dock.RequestToDock); ok {
			h.protocolVersion = rtdk.ProtocolVersion()
			h.transition(AwaitingInitiateDockingAck)
			return []dock.Command{dock.NewInitiateDocking(int32(h.cfg.Kind))}, nil
		}
	case AwaitingInitiateDockingAck:
		if name, ok := cmd.(*dock.NewtonName); ok {
			h.device = name
			h.transition(NameExchanged)
			return h.offer(), nil
		}
	case NameExchanged:
		switch c := cmd.(type) {
		case *dock.Result:
			if code := c.ErrorCode(); code != 0 {
				err := &ResultError{Code: code}
				h.disconnect(err)
				return nil, err
			}
			h.kind = h.cfg.Kind
			h.transition(Established)
			return nil, nil
		}
		switch c := cmd.(type) {
		case *dock.NewtonInfo:
			h.info = c
			return nil, nil
		}
		if cmd.Name() == dock.NameHello {
			return nil, nil
		}
	case Established:
		return nil, nil
	}
	log.Debug().Msgf("session.Handshake.Handle unexpected command=%s state=%s", cmd.Name(), h.state)
	return nil, &UnexpectedCommandError{State: h.state, Command: cmd.Name()}
}

// offer is the desktop's answer to the device name: its own description,
// the icons to enable and the session timeout.
func (h *Handshake) offer() []dock.Command {
	return []dock.Command{
		dock.NewDesktopInfo(h.cfg.ProtocolVersion, int32(h.cfg.Kind), [8]byte{}),
		dock.NewWhichIcons(h.cfg.Icons),
		dock.NewSetTimeout(h.cfg.TimeoutSeconds),
	}
}

// Cancel aborts the session locally and returns the command to send.
func (h *Handshake) Cancel() dock.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Disconnected {
		h.disconnect(ErrCanceled)
	}
	return dock.NewOperationCanceled()
}

// Disconnect ends the session locally and returns the command to send.
func (h *Handshake) Disconnect() dock.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Disconnected {
		h.disconnect(ErrDisconnected)
	}
	return dock.NewDisconnect()
}

func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Kind is the established session kind, KindNone before establishment.
func (h *Handshake) Kind() Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind
}

func (h *Handshake) ProtocolVersion() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.protocolVersion
}

// Device returns the name command received during the handshake.
func (h *Handshake) Device() (*dock.NewtonName, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.device, h.device != nil
}

// Info returns the ninf command the device sent in answer to the desktop
// info, if any.
func (h *Handshake) Info() (*dock.NewtonInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info, h.info != nil
}

// Err returns why the session was disconnected, or nil.
func (h *Handshake) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Context is canceled when the session disconnects; its cause is Err.
func (h *Handshake) Context() context.Context {
	return h.ctx
}

func (h *Handshake) disconnect(cause error) {
	h.err = cause
	h.kind = KindNone
	h.transition(Disconnected)
	h.cancel(cause)
}

func (h *Handshake) transition(next State) {
	log.Debug().Msgf("session.Handshake.transition from=%s to=%s", h.state, next)
	h.state = next
	observability.RecordTransition(next.String())
}
