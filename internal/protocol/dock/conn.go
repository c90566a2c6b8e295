package dock

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/danmuck/newtdock/internal/observability"
	"github.com/rs/zerolog/log"
)

// Listener observes command traffic on a Conn. Calls are made synchronously
// on the goroutine doing the I/O. The wire slice holds the bytes as they
// crossed the stream and must not be retained past the call unless copied.
type Listener interface {
	CommandReceiving(name string, done, total uint32)
	CommandReceived(cmd Command, wire []byte)
	CommandSending(cmd Command, done, total uint32)
	CommandSent(cmd Command, wire []byte)
	CommandEOF()
}

// NopListener implements Listener with no-ops, for embedding.
type NopListener struct{}

func (NopListener) CommandReceiving(string, uint32, uint32) {}
func (NopListener) CommandReceived(Command, []byte)         {}
func (NopListener) CommandSending(Command, uint32, uint32)  {}
func (NopListener) CommandSent(Command, []byte)             {}
func (NopListener) CommandEOF()                             {}

// sendChunk is how many bytes are written between progress reports.
const sendChunk = 256

// Conn exchanges commands over a byte stream.
type Conn struct {
	rw      io.ReadWriter
	factory *Factory

	mu        sync.RWMutex
	listeners []Listener

	writeMu sync.Mutex
}

func NewConn(rw io.ReadWriter, factory *Factory) *Conn {
	if factory == nil {
		factory = NewFactory(nil)
	}
	return &Conn{rw: rw, factory: factory}
}

func (c *Conn) Factory() *Factory {
	return c.factory
}

func (c *Conn) AddListener(l Listener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Conn) RemoveListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *Conn) snapshot() []Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Listener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

// Receive reads the next command. io.EOF means the peer closed the stream
// between commands.
func (c *Conn) Receive() (Command, error) {
	listeners := c.snapshot()
	var wire *bytes.Buffer
	if len(listeners) > 0 {
		wire = new(bytes.Buffer)
	}
	cmd, err := c.factory.decode(c.rw, func(name string, done, total uint32) {
		for _, l := range listeners {
			l.CommandReceiving(name, done, total)
		}
	}, wire)
	if errors.Is(err, io.EOF) {
		for _, l := range listeners {
			l.CommandEOF()
		}
		return nil, io.EOF
	}
	if err != nil {
		log.Warn().Msgf("dock.Conn.Receive failed err=%v", err)
		return nil, err
	}
	observability.RecordCommand("in", cmd.Name(), cmd.Length())
	for _, l := range listeners {
		l.CommandReceived(cmd, wire.Bytes())
	}
	return cmd, nil
}

// Send writes cmd, reporting progress to listeners as the bytes go out.
func (c *Conn) Send(cmd Command) error {
	b, err := Marshal(cmd)
	if err != nil {
		return err
	}
	listeners := c.snapshot()
	total := uint32(len(b))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for done := 0; done < len(b); {
		for _, l := range listeners {
			l.CommandSending(cmd, uint32(done), total)
		}
		end := min(done+sendChunk, len(b))
		n, err := c.rw.Write(b[done:end])
		if err == nil && n == 0 {
			err = io.ErrShortWrite
		}
		if err != nil {
			log.Warn().Msgf("dock.Conn.Send failed name=%s err=%v", cmd.Name(), err)
			return err
		}
		done += n
	}
	for _, l := range listeners {
		l.CommandSending(cmd, total, total)
	}
	observability.RecordCommand("out", cmd.Name(), total-uint32(HeaderSize))
	log.Debug().Msgf("dock.Conn.Send name=%s bytes=%d", cmd.Name(), total)
	for _, l := range listeners {
		l.CommandSent(cmd, b)
	}
	return nil
}
