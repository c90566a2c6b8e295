package trace

import (
	"bytes"
	"io"
	"testing"

	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/danmuck/newtdock/internal/protocol/nsof"
	"github.com/danmuck/newtdock/internal/testutil/testlog"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAppendAndEntries(t *testing.T) {
	testlog.Start(t)
	s := openStore(t)

	id, err := s.NewTrace()
	require.NoError(t, err)
	n, err := s.Count(id)
	require.NoError(t, err)
	assert.Zero(t, n)

	hello, err := dock.Marshal(dock.NewHello())
	require.NoError(t, err)
	stim, err := dock.Marshal(dock.NewSetTimeout(30))
	require.NoError(t, err)

	seq, err := s.Append(id, dock.FromDevice, hello)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
	seq, err = s.Append(id, dock.ToDevice, stim)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	entries, err := s.Entries(id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, dock.FromDevice, entries[0].Direction)
	assert.Equal(t, hello, entries[0].Wire)
	assert.Equal(t, dock.ToDevice, entries[1].Direction)
	assert.Equal(t, stim, entries[1].Wire)
}

func TestStoreListsTracesInOrder(t *testing.T) {
	testlog.Start(t)
	s := openStore(t)

	none, err := s.Traces()
	require.NoError(t, err)
	assert.Empty(t, none)

	a, err := s.NewTrace()
	require.NoError(t, err)
	b, err := s.NewTrace()
	require.NoError(t, err)

	ids, err := s.Traces()
	require.NoError(t, err)
	assert.Equal(t, []ksuid.KSUID{a, b}, ids)
}

func TestStoreUnknownTrace(t *testing.T) {
	testlog.Start(t)
	s := openStore(t)
	_, err := s.Entries(ksuid.New())
	assert.ErrorIs(t, err, ErrUnknownTrace)
	_, err = s.Append(ksuid.New(), dock.FromDevice, nil)
	assert.ErrorIs(t, err, ErrUnknownTrace)
}

func TestStoreSurvivesReopen(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	id, err := s.NewTrace()
	require.NoError(t, err)
	_, err = s.Append(id, dock.FromDevice, []byte("wire"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.Entries(id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("wire"), entries[0].Wire)
}

type pipe struct {
	io.Reader
	io.Writer
}

func TestRecorderAndReplay(t *testing.T) {
	testlog.Start(t)
	s := openStore(t)
	id, err := s.NewTrace()
	require.NoError(t, err)

	entry := nsof.NewFrame(nsof.Slot{Name: "title", Value: nsof.NewString("Groceries")})
	in, err := dock.Marshal(dock.NewEntry(entry))
	require.NoError(t, err)

	conn := dock.NewConn(pipe{Reader: bytes.NewReader(in), Writer: io.Discard}, nil)
	rec := NewRecorder(s, id)
	conn.AddListener(rec)

	_, err = conn.Receive()
	require.NoError(t, err)
	require.NoError(t, conn.Send(dock.NewSetTimeout(45)))
	require.NoError(t, rec.Err())

	replayed, err := Replay(s, id, dock.NewFactory(nil, dock.WithOutboundPayloads()))
	require.NoError(t, err)
	require.Len(t, replayed, 2)

	assert.Equal(t, dock.FromDevice, replayed[0].Direction)
	got, err := replayed[0].Command.(*dock.Entry).Frame()
	require.NoError(t, err)
	assert.True(t, nsof.Equal(entry, got))

	assert.Equal(t, dock.ToDevice, replayed[1].Direction)
	assert.Equal(t, int32(45), replayed[1].Command.(*dock.SetTimeout).Seconds())
}

func TestRecorderStoresReceivedBytesVerbatim(t *testing.T) {
	testlog.Start(t)
	s := openStore(t)
	id, err := s.NewTrace()
	require.NoError(t, err)

	docking, err := dock.Marshal(dock.NewRaw(dock.NameInitiateDocking, dock.FromDevice, []byte{0, 0, 0, 2}))
	require.NoError(t, err)
	shortName := []byte{0, 0, 0, 8, 0, 0, 0, 9, 0, 0, 0, 1, 0, 'N', 0, 'e', 0, 'w', 0, 0}
	name, err := dock.Marshal(dock.NewRaw(dock.NameNewtonName, dock.FromDevice, shortName))
	require.NoError(t, err)

	conn := dock.NewConn(pipe{Reader: bytes.NewReader(append(append([]byte{}, docking...), name...)), Writer: io.Discard}, nil)
	rec := NewRecorder(s, id)
	conn.AddListener(rec)
	for i := 0; i < 2; i++ {
		_, err = conn.Receive()
		require.NoError(t, err)
	}
	require.NoError(t, rec.Err())

	entries, err := s.Entries(id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, docking, entries[0].Wire)
	assert.Equal(t, name, entries[1].Wire)

	replayed, err := Replay(s, id, dock.NewFactory(nil, dock.WithOutboundPayloads()))
	require.NoError(t, err)
	assert.Equal(t, int32(2), replayed[0].Command.(*dock.InitiateDocking).SessionType())
	assert.Equal(t, "New", replayed[1].Command.(*dock.NewtonName).Owner)
}
