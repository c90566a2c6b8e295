// Package compander maps large-binary compander names to the strategies
// that compress and decompress their data.
package compander

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/newtdock/internal/protocol/nsof"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownCompander = errors.New("compander: unknown compander")
	ErrCompanderExists  = errors.New("compander: compander already registered")
	ErrInvalidName      = errors.New("compander: invalid compander name")
)

// Compander compresses and decompresses the data of a large binary.
type Compander interface {
	Decompress(r io.Reader) (io.Reader, error)
	Compress(r io.Reader) (io.Reader, error)
}

// Registry resolves compander names. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	companders map[string]Compander
}

func NewRegistry() *Registry {
	return &Registry{companders: make(map[string]Compander)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the process registry with the built-in strategies.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := defaultRegistry.Register(FlateName, NewFlate(DefaultFlateLevel)); err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}

func (r *Registry) Register(name string, c Compander) error {
	name = strings.TrimSpace(name)
	if name == "" || c == nil {
		return ErrInvalidName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.companders[name]; exists {
		return fmt.Errorf("%w: %s", ErrCompanderExists, name)
	}
	r.companders[name] = c
	log.Debug().Msgf("compander.Registry.Register name=%s", name)
	return nil
}

func (r *Registry) Lookup(name string) (Compander, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companders[strings.TrimSpace(name)]
	return c, ok
}

// Names returns the registered compander names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.companders))
	for name := range r.companders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open returns a reader over the uncompressed data of lb.
func (r *Registry) Open(lb *nsof.LargeBinary) (io.Reader, error) {
	if lb == nil {
		return nil, fmt.Errorf("%w: nil large binary", ErrUnknownCompander)
	}
	if !lb.Compressed {
		return bytes.NewReader(lb.Data), nil
	}
	c, ok := r.Lookup(lb.Compander)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompander, lb.Compander)
	}
	return c.Decompress(bytes.NewReader(lb.Data))
}

// Pack compresses data with the named compander and returns the large
// binary that carries it.
func (r *Registry) Pack(class nsof.Object, name string, data []byte) (*nsof.LargeBinary, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompander, name)
	}
	cr, err := c.Compress(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	packed, err := io.ReadAll(cr)
	if err != nil {
		return nil, err
	}
	return &nsof.LargeBinary{
		Class:      class,
		Compressed: true,
		Compander:  strings.TrimSpace(name),
		Data:       packed,
	}, nil
}
