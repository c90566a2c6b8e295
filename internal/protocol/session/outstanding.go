package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Pending tracks one command awaiting its reply.
type Pending struct {
	Key     string
	Command string
	SentAt  time.Time
}

// Outstanding allows at most one pending command per operation key.
type Outstanding struct {
	mu    sync.RWMutex
	items map[string]Pending
}

func NewOutstanding() *Outstanding {
	return &Outstanding{
		items: make(map[string]Pending),
	}
}

// Begin records a command for key, failing while another is pending.
func (o *Outstanding) Begin(key, command string, at time.Time) error {
	key = strings.TrimSpace(key)
	o.mu.Lock()
	defer o.mu.Unlock()
	if prev, ok := o.items[key]; ok {
		return fmt.Errorf("%w: %s waiting on %s", ErrOperationPending, key, prev.Command)
	}
	o.items[key] = Pending{Key: key, Command: command, SentAt: at}
	return nil
}

// Complete clears the pending command for key.
func (o *Outstanding) Complete(key string) (Pending, bool) {
	key = strings.TrimSpace(key)
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	delete(o.items, key)
	return item, ok
}

func (o *Outstanding) Get(key string) (Pending, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[strings.TrimSpace(key)]
	return item, ok
}

func (o *Outstanding) List() []Pending {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sorted()
}

// Clear drops every pending command and returns what was dropped.
func (o *Outstanding) Clear() []Pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.sorted()
	clear(o.items)
	return out
}

// sorted requires o.mu held.
func (o *Outstanding) sorted() []Pending {
	out := make([]Pending, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
