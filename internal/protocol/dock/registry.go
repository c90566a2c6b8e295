package dock

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Spec registers one command name with the constructor for its shape.
type Spec struct {
	Name      string
	Direction Direction
	New       func() Command
}

// Registry maps command names to constructors. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

func (r *Registry) Register(spec Spec) error {
	if !validName(spec.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, spec.Name)
	}
	if spec.New == nil {
		return fmt.Errorf("dock: command %s has no constructor", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrCommandExists, spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

func (r *Registry) Lookup(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Create returns a fresh command for name. Unknown names yield a Raw
// command that the device may send.
func (r *Registry) Create(name string) Command {
	spec, ok := r.Lookup(name)
	if !ok {
		return NewRaw(name, FromDevice, nil)
	}
	cmd := spec.New()
	b := cmd.base()
	b.name = spec.Name
	b.direction = spec.Direction
	return cmd
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.specs))
	for name := range r.specs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

func fromDeviceSpecs() []Spec {
	return []Spec{
		{Name: NameRequestToDock, New: func() Command { return NewRequestToDock(0) }},
		{Name: NameNewtonName, New: func() Command { return NewNewtonName("", DeviceInfo{}) }},
		{Name: NameNewtonInfo, New: func() Command { return NewNewtonInfo(0, [8]byte{}) }},
		{Name: NameStoreNames, New: func() Command { return &StoreNames{} }},
		{Name: NameSoupNames, New: func() Command { return &SoupNames{} }},
		{Name: NameEntry, New: func() Command { return &Entry{} }},
		{Name: NameBackupSoupDone, New: func() Command { return NewBackupSoupDone() }},
		{Name: NameHello, New: func() Command { return NewHello() }},
		{Name: NameDisconnect, New: func() Command { return NewDisconnect() }},
		{Name: NameOperationCanceled, New: func() Command { return NewOperationCanceled() }},
		{Name: NameOperationCanceledAck, New: func() Command { return NewOperationCanceledAck() }},
		{Name: NameResult, New: func() Command { return NewResult(0) }},
	}
}

func toDeviceSpecs() []Spec {
	return []Spec{
		{Name: NameInitiateDocking, New: func() Command { return NewInitiateDocking(0) }},
		{Name: NameSetTimeout, New: func() Command { return NewSetTimeout(0) }},
		{Name: NameWhichIcons, New: func() Command { return NewWhichIcons(0) }},
		{Name: NameGetStoreNames, New: func() Command { return NewGetStoreNames() }},
		{Name: NameGetSoupNames, New: func() Command { return NewGetSoupNames() }},
		{Name: NameSetCurrentStore, New: func() Command { return &SetCurrentStore{} }},
		{Name: NameSetCurrentSoup, New: func() Command { return &SetCurrentSoup{} }},
		{Name: NameSendSoup, New: func() Command { return NewSendSoup() }},
		{Name: NameLoadPackage, New: func() Command { return NewLoadPackage(nil) }},
		{Name: NameDesktopInfo, New: func() Command { return NewDesktopInfo(0, 0, [8]byte{}) }},
		{Name: NameHello, New: func() Command { return NewHello() }},
		{Name: NameDisconnect, New: func() Command { return NewDisconnect() }},
		{Name: NameOperationCanceled, New: func() Command { return NewOperationCanceled() }},
		{Name: NameOperationCanceledAck, New: func() Command { return NewOperationCanceledAck() }},
		{Name: NameResult, New: func() Command { return NewResult(0) }},
	}
}

// mergeSpecs combines the per-direction tables; a name present in both
// becomes a Both command.
func mergeSpecs(from, to []Spec) []Spec {
	merged := make(map[string]Spec, len(from)+len(to))
	order := make([]string, 0, len(from)+len(to))
	add := func(spec Spec, dir Direction) {
		if prev, ok := merged[spec.Name]; ok {
			prev.Direction |= dir
			merged[spec.Name] = prev
			return
		}
		spec.Direction = dir
		merged[spec.Name] = spec
		order = append(order, spec.Name)
	}
	for _, spec := range from {
		add(spec, FromDevice)
	}
	for _, spec := range to {
		add(spec, ToDevice)
	}
	out := make([]Spec, 0, len(order))
	for _, name := range order {
		out = append(out, merged[name])
	}
	return out
}

// DefaultRegistry returns the process registry holding the built-in
// command catalogue. It is populated once.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		reg := NewRegistry()
		for _, spec := range mergeSpecs(fromDeviceSpecs(), toDeviceSpecs()) {
			if err := reg.Register(spec); err != nil {
				panic(err)
			}
		}
		log.Debug().Msgf("dock.DefaultRegistry populated commands=%d", len(reg.specs))
		defaultRegistry = reg
	})
	return defaultRegistry
}
