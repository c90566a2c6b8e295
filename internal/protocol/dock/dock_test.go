package dock

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/newtdock/internal/protocol/nsof"
	"github.com/danmuck/newtdock/internal/testutil/testlog"
)

func mustMarshal(t *testing.T, cmds ...Command) []byte {
	t.Helper()
	var out []byte
	for _, cmd := range cmds {
		b, err := Marshal(cmd)
		if err != nil {
			t.Fatalf("marshal %s: %v", cmd.Name(), err)
		}
		out = append(out, b...)
	}
	return out
}

func TestDisconnectWireBytes(t *testing.T) {
	testlog.Start(t)
	got := mustMarshal(t, NewDisconnect())
	want := append([]byte("newtdockdisc"), 0, 0, 0, 0)
	if !bytes.Equal(got, want) {
		t.Fatalf("disc=%x want=%x", got, want)
	}
}

func TestPaddingBoundaries(t *testing.T) {
	testlog.Start(t)
	want := []uint32{0, 3, 2, 1, 0, 3, 2, 1, 0}
	for n := uint32(0); n <= 8; n++ {
		if got := padding(n); got != want[n] {
			t.Fatalf("padding(%d)=%d want=%d", n, got, want[n])
		}
		b := mustMarshal(t, NewRaw("test", FromDevice, bytes.Repeat([]byte{0xEE}, int(n))))
		if len(b)%4 != 0 || len(b) != HeaderSize+int(n+want[n]) {
			t.Fatalf("n=%d encoded length %d", n, len(b))
		}
	}
}

func TestUnknownCommandDecodesAsRaw(t *testing.T) {
	testlog.Start(t)
	wire := append([]byte("newtdockzzzz"), 0, 0, 0, 3, 1, 2, 3, 0)
	wire = append(wire, mustMarshal(t, NewDisconnect())...)

	cmds, err := NewFactory(nil).DecodeAll(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	raw, ok := cmds[0].(*Raw)
	if !ok || raw.Name() != "zzzz" || !bytes.Equal(raw.Payload(), []byte{1, 2, 3}) {
		t.Fatalf("unexpected fallback command %#v", cmds[0])
	}
	if raw.Length() != 3 {
		t.Fatalf("declared length=%d", raw.Length())
	}
	if cmds[1].Name() != NameDisconnect {
		t.Fatalf("stream desynchronised after unknown command: %s", cmds[1].Name())
	}
}

func TestDecodeAllCleanEOFAndTruncation(t *testing.T) {
	testlog.Start(t)
	f := NewFactory(nil)
	cmds, err := f.DecodeAll(bytes.NewReader(nil))
	if err != nil || len(cmds) != 0 {
		t.Fatalf("empty stream: cmds=%d err=%v", len(cmds), err)
	}

	wire := mustMarshal(t, NewHello(), NewResult(-28012))
	for _, cut := range []int{len(wire) - 1, HeaderSize + 3, HeaderSize + HeaderSize/2} {
		_, err := f.DecodeAll(bytes.NewReader(wire[:cut]))
		if !errors.Is(err, ErrTruncated) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("cut=%d expected truncation, got %v", cut, err)
		}
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	testlog.Start(t)
	wire := mustMarshal(t, NewHello())
	copy(wire, "newtdick")
	if _, err := NewFactory(nil).Decode(bytes.NewReader(wire)); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDecodePayloadLimit(t *testing.T) {
	testlog.Start(t)
	wire := mustMarshal(t, NewRaw("big!", FromDevice, make([]byte, 64)))
	_, err := NewFactory(nil, WithMaxPayload(32)).Decode(bytes.NewReader(wire))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestToDeviceCommandsAreSkipped(t *testing.T) {
	testlog.Start(t)
	wire := mustMarshal(t, NewSetTimeout(30), NewLoadPackage([]byte{1, 2, 3, 4, 5}), NewHello())

	cmds, err := NewFactory(nil).DecodeAll(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(cmds))
	}
	stim, ok := cmds[0].(*SetTimeout)
	if !ok || stim.Length() != 4 || stim.Seconds() != 0 {
		t.Fatalf("outbound payload should be skipped: %#v", cmds[0])
	}
	if pkg := cmds[1].(*LoadPackage); pkg.Package() != nil {
		t.Fatalf("outbound package should not be read")
	}
	if cmds[2].Name() != NameHello {
		t.Fatalf("unexpected trailing command %s", cmds[2].Name())
	}

	cmds, err = NewFactory(nil, WithOutboundPayloads()).DecodeAll(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("decode all outbound: %v", err)
	}
	if got := cmds[0].(*SetTimeout).Seconds(); got != 30 {
		t.Fatalf("timeout=%d", got)
	}
	if got := cmds[1].(*LoadPackage).Package(); !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("package=%x", got)
	}
}

func TestDefaultRegistryDirections(t *testing.T) {
	testlog.Start(t)
	reg := DefaultRegistry()
	if reg != DefaultRegistry() {
		t.Fatalf("default registry should be built once")
	}
	cases := map[string]Direction{
		NameRequestToDock:   FromDevice,
		NameEntry:           FromDevice,
		NameInitiateDocking: ToDevice,
		NameDesktopInfo:     ToDevice,
		NameHello:           Both,
		NameDisconnect:      Both,
		NameResult:          Both,
	}
	for name, want := range cases {
		spec, ok := reg.Lookup(name)
		if !ok || spec.Direction != want {
			t.Fatalf("%s direction=%v want=%v", name, spec.Direction, want)
		}
		if got := reg.Create(name).Direction(); got != want {
			t.Fatalf("%s created with direction %v", name, got)
		}
	}
	if len(reg.Names()) != 22 {
		t.Fatalf("unexpected catalogue size %d", len(reg.Names()))
	}
}

func TestRegistryRegister(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	spec := Spec{Name: "tst1", Direction: FromDevice, New: func() Command { return NewBlank("", 0) }}
	if err := reg.Register(spec); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(spec); !errors.Is(err, ErrCommandExists) {
		t.Fatalf("expected ErrCommandExists, got %v", err)
	}
	if err := reg.Register(Spec{Name: "toolong", New: spec.New}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	cmd := reg.Create("tst1")
	if cmd.Name() != "tst1" || cmd.Direction() != FromDevice {
		t.Fatalf("created %s %v", cmd.Name(), cmd.Direction())
	}
	if _, ok := reg.Create("none").(*Raw); !ok {
		t.Fatalf("unknown name should create Raw")
	}
}

func TestTypedCommandsRoundTrip(t *testing.T) {
	testlog.Start(t)
	store := nsof.NewFrame(
		nsof.Slot{Name: "name", Value: nsof.NewString("Internal")},
		nsof.Slot{Name: "signature", Value: nsof.Integer(12345)},
	)
	entry := nsof.NewFrame(
		nsof.Slot{Name: "_uniqueID", Value: nsof.Integer(7)},
		nsof.Slot{Name: "title", Value: nsof.NewString("Shopping")},
	)
	info := DeviceInfo{NewtonID: 0x1234, ROMVersion: 0x00020002, ScreenHeight: 480, ScreenWidth: 320, SerialNumber: [2]uint32{1, 2}, TargetProtocol: 10}
	wire := mustMarshal(t,
		NewRequestToDock(10),
		NewNewtonName("Ada Lovelace", info),
		NewNewtonInfo(10, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}),
		NewStoreNames(store),
		&SoupNames{Object{Base: NewBase(NameSoupNames, FromDevice), Value: &nsof.PlainArray{Items: []nsof.Object{
			&nsof.PlainArray{Items: []nsof.Object{nsof.NewString("Notes"), nsof.NewString("Names")}},
			&nsof.PlainArray{Items: []nsof.Object{nsof.Integer(1), nsof.Integer(2)}},
		}}}},
		NewEntry(entry),
		NewResult(-28012),
	)

	cmds, err := NewFactory(nil).DecodeAll(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if len(cmds) != 7 {
		t.Fatalf("expected 7 commands, got %d", len(cmds))
	}
	if v := cmds[0].(*RequestToDock).ProtocolVersion(); v != 10 {
		t.Fatalf("protocol version=%d", v)
	}
	name := cmds[1].(*NewtonName)
	if name.Owner != "Ada Lovelace" || name.Info != info {
		t.Fatalf("newton name=%q info=%+v", name.Owner, name.Info)
	}
	if ninf := cmds[2].(*NewtonInfo); ninf.ProtocolVersion != 10 || ninf.Key[7] != 8 {
		t.Fatalf("newton info=%+v", ninf)
	}
	stores, err := cmds[3].(*StoreNames).Stores()
	if err != nil || len(stores) != 1 || !nsof.Equal(stores[0], store) {
		t.Fatalf("stores=%v err=%v", stores, err)
	}
	soups, err := cmds[4].(*SoupNames).Names()
	if err != nil || len(soups) != 2 || soups[1] != "Names" {
		t.Fatalf("soups=%v err=%v", soups, err)
	}
	got, err := cmds[5].(*Entry).Frame()
	if err != nil || !nsof.Equal(got, entry) {
		t.Fatalf("entry=%v err=%v", got, err)
	}
	if code := cmds[6].(*Result).ErrorCode(); code != -28012 {
		t.Fatalf("result code=%d", code)
	}
}

func TestNewtonNameToleratesShortInfo(t *testing.T) {
	testlog.Start(t)
	payload := []byte{0, 0, 0, 8, 0, 0, 0, 9, 0, 0, 0, 1}
	payload = append(payload, 0, 'N', 0, 'e', 0, 'w', 0, 0)
	cmd := NewRaw(NameNewtonName, FromDevice, payload)
	got, err := NewFactory(nil).Decode(bytes.NewReader(mustMarshal(t, cmd)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	name := got.(*NewtonName)
	if name.Owner != "New" || name.Info.NewtonID != 9 || name.Info.Manufacturer != 1 || name.Info.MachineType != 0 {
		t.Fatalf("unexpected name %+v", name)
	}
}

func TestDesktopInfoRoundTrip(t *testing.T) {
	testlog.Start(t)
	sent := NewDesktopInfo(10, 2, [8]byte{9}, DesktopApp{Name: "Newton Connection Utilities", ID: 2, Version: 1})
	sent.SelectiveSync = true
	got, err := NewFactory(nil, WithOutboundPayloads()).Decode(bytes.NewReader(mustMarshal(t, sent)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	info := got.(*DesktopInfo)
	if info.ProtocolVersion != 10 || info.SessionType != 2 || !info.SelectiveSync || info.DesktopType != DesktopWindows {
		t.Fatalf("unexpected desktop info %+v", info)
	}
	if len(info.Apps) != 1 || info.Apps[0] != sent.Apps[0] {
		t.Fatalf("apps=%+v", info.Apps)
	}
}

type recordingListener struct {
	NopListener
	receiving [][3]uint32
	received  []string
	inWire    [][]byte
	sending   [][2]uint32
	sent      []string
	outWire   [][]byte
	eof       int
}

func (l *recordingListener) CommandReceiving(_ string, done, total uint32) {
	l.receiving = append(l.receiving, [3]uint32{0, done, total})
}

func (l *recordingListener) CommandReceived(cmd Command, wire []byte) {
	l.received = append(l.received, cmd.Name())
	l.inWire = append(l.inWire, bytes.Clone(wire))
}

func (l *recordingListener) CommandSending(_ Command, done, total uint32) {
	l.sending = append(l.sending, [2]uint32{done, total})
}

func (l *recordingListener) CommandSent(cmd Command, wire []byte) {
	l.sent = append(l.sent, cmd.Name())
	l.outWire = append(l.outWire, bytes.Clone(wire))
}

func (l *recordingListener) CommandEOF() {
	l.eof++
}

type pipe struct {
	io.Reader
	io.Writer
}

func TestConnReportsProgress(t *testing.T) {
	testlog.Start(t)
	entry := nsof.NewFrame(nsof.Slot{Name: "body", Value: nsof.NewString(string(bytes.Repeat([]byte("x"), 600)))})
	in := bytes.NewReader(mustMarshal(t, NewEntry(entry)))
	var out bytes.Buffer
	conn := NewConn(pipe{Reader: in, Writer: &out}, nil)
	l := &recordingListener{}
	conn.AddListener(l)

	cmd, err := conn.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(l.receiving) < 2 {
		t.Fatalf("expected progress reports, got %v", l.receiving)
	}
	first, last := l.receiving[0], l.receiving[len(l.receiving)-1]
	if first[1] != 0 || last[1] != last[2] || last[2] != cmd.Length() {
		t.Fatalf("progress first=%v last=%v length=%d", first, last, cmd.Length())
	}
	if len(l.received) != 1 || l.received[0] != NameEntry {
		t.Fatalf("received=%v", l.received)
	}
	if _, err := conn.Receive(); !errors.Is(err, io.EOF) || l.eof != 1 {
		t.Fatalf("expected EOF notification, err=%v eof=%d", err, l.eof)
	}

	if err := conn.Send(NewLoadPackage(make([]byte, 1000))); err != nil {
		t.Fatalf("send: %v", err)
	}
	total := uint32(out.Len())
	if l.sending[0] != [2]uint32{0, total} || l.sending[len(l.sending)-1] != [2]uint32{total, total} {
		t.Fatalf("sending progress=%v total=%d", l.sending, total)
	}
	if len(l.sending) < 4 {
		t.Fatalf("expected chunked progress, got %d reports", len(l.sending))
	}
	if len(l.sent) != 1 || l.sent[0] != NameLoadPackage {
		t.Fatalf("sent=%v", l.sent)
	}

	conn.RemoveListener(l)
	if err := conn.Send(NewHello()); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	if len(l.sent) != 1 {
		t.Fatalf("removed listener still notified")
	}
}

func TestConnPassesReceivedWireBytesUnchanged(t *testing.T) {
	testlog.Start(t)
	entry, err := nsof.Marshal(nsof.NewFrame(nsof.Slot{Name: "a", Value: nsof.Integer(1)}))
	if err != nil {
		t.Fatalf("marshal entry: %v", err)
	}
	shortName := []byte{0, 0, 0, 8, 0, 0, 0, 9, 0, 0, 0, 1, 0, 'N', 0, 'e', 0, 'w', 0, 0}
	frames := [][]byte{
		// desktop-originated, payload skipped on receive
		mustMarshal(t, NewRaw(NameInitiateDocking, FromDevice, []byte{0, 0, 0, 2})),
		mustMarshal(t, NewRaw(NameNewtonName, FromDevice, shortName)),
		mustMarshal(t, NewRaw(NameEntry, FromDevice, append(entry, 0xAA, 0xBB))),
		mustMarshal(t, NewRaw(NameHello, FromDevice, []byte{1, 2, 3, 4})),
	}
	conn := NewConn(pipe{Reader: bytes.NewReader(bytes.Join(frames, nil)), Writer: io.Discard}, nil)
	l := &recordingListener{}
	conn.AddListener(l)
	for i := range frames {
		if _, err := conn.Receive(); err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
	}
	if len(l.inWire) != len(frames) {
		t.Fatalf("received %d wire records, want %d", len(l.inWire), len(frames))
	}
	for i, want := range frames {
		if !bytes.Equal(l.inWire[i], want) {
			t.Fatalf("command %d wire=%x want=%x", i, l.inWire[i], want)
		}
	}

	if err := conn.Send(NewSetTimeout(30)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if want := mustMarshal(t, NewSetTimeout(30)); len(l.outWire) != 1 || !bytes.Equal(l.outWire[0], want) {
		t.Fatalf("sent wire=%x want=%x", l.outWire, want)
	}
}

func TestFactoryDecodeWire(t *testing.T) {
	testlog.Start(t)
	first := mustMarshal(t, NewRaw(NameInitiateDocking, FromDevice, []byte{0, 0, 0, 2}))
	second := mustMarshal(t, NewResult(0))
	r := bytes.NewReader(append(append([]byte{}, first...), second...))
	f := NewFactory(nil)

	cmd, wire, err := f.DecodeWire(r)
	if err != nil || cmd.Name() != NameInitiateDocking || !bytes.Equal(wire, first) {
		t.Fatalf("first cmd=%v wire=%x err=%v", cmd, wire, err)
	}
	cmd, wire, err = f.DecodeWire(r)
	if err != nil || cmd.Name() != NameResult || !bytes.Equal(wire, second) {
		t.Fatalf("second cmd=%v wire=%x err=%v", cmd, wire, err)
	}
	if _, _, err := f.DecodeWire(r); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

type stalledWriter struct{}

func (stalledWriter) Write([]byte) (int, error) { return 0, nil }

func TestConnSendFailsOnStalledWriter(t *testing.T) {
	testlog.Start(t)
	conn := NewConn(pipe{Reader: bytes.NewReader(nil), Writer: stalledWriter{}}, nil)
	if err := conn.Send(NewHello()); !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("expected short write, got %v", err)
	}
}
