// Package trace persists docking command traffic so sessions can be
// inspected and replayed later.
package trace

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

var (
	ErrUnknownTrace = errors.New("trace: unknown trace")
	ErrCorruptEntry = errors.New("trace: corrupt entry")
)

var listKey = []byte("l")

// idLen is the binary size of a ksuid.
const idLen = 20

// Entry is one recorded command in wire form.
type Entry struct {
	Seq       uint64
	Direction dock.Direction
	Wire      []byte
}

// Store keeps traces in a pebble database. Each trace is identified by a
// ksuid; its entries are keyed by trace and sequence number.
type Store struct {
	db *pebble.DB
	mu sync.Mutex
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	log.Debug().Msgf("trace.Open dir=%s", dir)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(id ksuid.KSUID, seq uint64) []byte {
	key := make([]byte, 0, 2+len(id.String())+1+8)
	key = append(key, "t/"...)
	key = append(key, id.String()...)
	key = append(key, '/')
	return binary.BigEndian.AppendUint64(key, seq)
}

func countKey(id ksuid.KSUID) []byte {
	return append([]byte("c/"), id.String()...)
}

func (s *Store) get(key []byte) ([]byte, error) {
	data, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(data), nil
}

// NewTrace starts an empty trace and returns its ID.
func (s *Store) NewTrace() (ksuid.KSUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ksuid.New()
	list, err := s.get(listKey)
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return ksuid.Nil, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(countKey(id), binary.BigEndian.AppendUint64(nil, 0), nil); err != nil {
		return ksuid.Nil, err
	}
	if err := b.Set(listKey, append(list, id.Bytes()...), nil); err != nil {
		return ksuid.Nil, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return ksuid.Nil, err
	}
	log.Debug().Msgf("trace.Store.NewTrace id=%s", id)
	return id, nil
}

// Traces lists trace IDs in creation order.
func (s *Store) Traces() ([]ksuid.KSUID, error) {
	list, err := s.get(listKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(list)%idLen != 0 {
		return nil, fmt.Errorf("%w: trace list length %d", ErrCorruptEntry, len(list))
	}
	out := make([]ksuid.KSUID, 0, len(list)/idLen)
	for off := 0; off < len(list); off += idLen {
		id, err := ksuid.FromBytes(list[off : off+idLen])
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// Count returns the number of entries in a trace.
func (s *Store) Count(id ksuid.KSUID) (uint64, error) {
	b, err := s.get(countKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTrace, id)
	}
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: count for %s", ErrCorruptEntry, id)
	}
	return binary.BigEndian.Uint64(b), nil
}

// Append stores one command's wire bytes and returns its sequence number.
func (s *Store) Append(id ksuid.KSUID, dir dock.Direction, wire []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.Count(id)
	if err != nil {
		return 0, err
	}
	value := make([]byte, 0, 1+len(wire))
	value = append(value, byte(dir))
	value = append(value, wire...)

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(entryKey(id, seq), value, nil); err != nil {
		return 0, err
	}
	if err := b.Set(countKey(id), binary.BigEndian.AppendUint64(nil, seq+1), nil); err != nil {
		return 0, err
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return 0, err
	}
	return seq, nil
}

// Entries returns every entry of a trace in sequence order.
func (s *Store) Entries(id ksuid.KSUID) ([]Entry, error) {
	n, err := s.Count(id)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, n)
	for seq := uint64(0); seq < n; seq++ {
		value, err := s.get(entryKey(id, seq))
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%d: %w", ErrCorruptEntry, id, seq, err)
		}
		if len(value) == 0 {
			return nil, fmt.Errorf("%w: %s/%d empty", ErrCorruptEntry, id, seq)
		}
		out = append(out, Entry{Seq: seq, Direction: dock.Direction(value[0]), Wire: value[1:]})
	}
	return out, nil
}
