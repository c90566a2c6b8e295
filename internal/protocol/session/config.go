package session

import (
	"fmt"

	"github.com/danmuck/newtdock/internal/protocol/dock"
)

// Config defines the values the desktop offers during the handshake.
type Config struct {
	Kind            Kind
	TimeoutSeconds  int32
	ProtocolVersion int32
	Icons           int32
}

// DefaultConfig returns the desktop defaults for a setting-up session.
func DefaultConfig() Config {
	return Config{
		Kind:            KindSettingUp,
		TimeoutSeconds:  30,
		ProtocolVersion: 10,
		Icons:           dock.IconBackup | dock.IconRestore | dock.IconInstall | dock.IconImport | dock.IconSync,
	}
}

func (c Config) Validate() error {
	if c.Kind < KindNone || c.Kind > KindUpdatingStores {
		return fmt.Errorf("%w: session kind %d", ErrInvalidConfig, c.Kind)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout %d", ErrInvalidConfig, c.TimeoutSeconds)
	}
	return nil
}
