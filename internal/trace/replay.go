package trace

import (
	"bytes"
	"fmt"

	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/segmentio/ksuid"
)

// Replayed is a recorded entry decoded back into a command.
type Replayed struct {
	Seq       uint64
	Direction dock.Direction
	Command   dock.Command
}

// Replay decodes every entry of a trace through factory. Use a factory
// built with dock.WithOutboundPayloads to see desktop payloads too.
func Replay(s *Store, id ksuid.KSUID, factory *dock.Factory) ([]Replayed, error) {
	entries, err := s.Entries(id)
	if err != nil {
		return nil, err
	}
	out := make([]Replayed, 0, len(entries))
	for _, e := range entries {
		cmd, err := factory.Decode(bytes.NewReader(e.Wire))
		if err != nil {
			return out, fmt.Errorf("trace: replay %s/%d: %w", id, e.Seq, err)
		}
		out = append(out, Replayed{Seq: e.Seq, Direction: e.Direction, Command: cmd})
	}
	return out, nil
}
