package trace

import (
	"sync"

	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// Recorder is a dock.Listener that appends the wire bytes of every command
// received or sent to one trace.
type Recorder struct {
	dock.NopListener

	store *Store
	id    ksuid.KSUID

	mu  sync.Mutex
	err error
}

func NewRecorder(store *Store, id ksuid.KSUID) *Recorder {
	return &Recorder{store: store, id: id}
}

func (r *Recorder) ID() ksuid.KSUID {
	return r.id
}

// Err returns the first error hit while recording.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) CommandReceived(cmd dock.Command, wire []byte) {
	r.record(dock.FromDevice, cmd, wire)
}

func (r *Recorder) CommandSent(cmd dock.Command, wire []byte) {
	r.record(dock.ToDevice, cmd, wire)
}

func (r *Recorder) record(dir dock.Direction, cmd dock.Command, wire []byte) {
	_, err := r.store.Append(r.id, dir, wire)
	if err == nil {
		return
	}
	log.Warn().Msgf("trace.Recorder.record failed trace=%s command=%s err=%v", r.id, cmd.Name(), err)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}
