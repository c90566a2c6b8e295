package session

import "fmt"

// State is a handshake state.
type State int

const (
	Idle State = iota
	AwaitingRequestToDock
	AwaitingInitiateDockingAck
	NameExchanged
	Established
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingRequestToDock:
		return "awaiting_request_to_dock"
	case AwaitingInitiateDockingAck:
		return "awaiting_initiate_docking_ack"
	case NameExchanged:
		return "name_exchanged"
	case Established:
		return "established"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind is the session type requested by the desktop.
type Kind int32

const (
	KindNone Kind = iota
	KindSettingUp
	KindSynchronize
	KindRestore
	KindLoadPackage
	KindTestComm
	KindLoadPatch
	KindUpdatingStores
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSettingUp:
		return "setting-up"
	case KindSynchronize:
		return "synchronize"
	case KindRestore:
		return "restore"
	case KindLoadPackage:
		return "load-package"
	case KindTestComm:
		return "test-comm"
	case KindLoadPatch:
		return "load-patch"
	case KindUpdatingStores:
		return "updating-stores"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

// ParseKind accepts the names printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := KindNone; k <= KindUpdatingStores; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("%w: unknown session kind %q", ErrInvalidConfig, s)
}
