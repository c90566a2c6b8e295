package dock

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/danmuck/newtdock/internal/protocol/nsof"
	"golang.org/x/text/encoding/unicode"
)

// Command names.
const (
	NameRequestToDock        = "rtdk"
	NameNewtonName           = "name"
	NameNewtonInfo           = "ninf"
	NameStoreNames           = "stor"
	NameSoupNames            = "soup"
	NameEntry                = "entr"
	NameBackupSoupDone       = "bsdn"
	NameInitiateDocking      = "dock"
	NameSetTimeout           = "stim"
	NameWhichIcons           = "wicn"
	NameGetStoreNames        = "gsto"
	NameGetSoupNames         = "gets"
	NameSetCurrentStore      = "ssto"
	NameSetCurrentSoup       = "ssou"
	NameSendSoup             = "snds"
	NameLoadPackage          = "lpkg"
	NameDesktopInfo          = "dinf"
	NameHello                = "helo"
	NameDisconnect           = "disc"
	NameOperationCanceled    = "opca"
	NameOperationCanceledAck = "ocaa"
	NameResult               = "dres"
)

// Icon mask bits for WhichIcons.
const (
	IconBackup   int32 = 1 << 0
	IconRestore  int32 = 1 << 1
	IconInstall  int32 = 1 << 2
	IconImport   int32 = 1 << 3
	IconSync     int32 = 1 << 4
	IconKeyboard int32 = 1 << 5
)

type RequestToDock struct{ Long }

func NewRequestToDock(protocolVersion int32) *RequestToDock {
	return &RequestToDock{Long{Base: NewBase(NameRequestToDock, FromDevice), Value: protocolVersion}}
}

func (c *RequestToDock) ProtocolVersion() int32 { return c.Value }

type InitiateDocking struct{ Long }

func NewInitiateDocking(sessionType int32) *InitiateDocking {
	return &InitiateDocking{Long{Base: NewBase(NameInitiateDocking, ToDevice), Value: sessionType}}
}

func (c *InitiateDocking) SessionType() int32 { return c.Value }

type SetTimeout struct{ Long }

func NewSetTimeout(seconds int32) *SetTimeout {
	return &SetTimeout{Long{Base: NewBase(NameSetTimeout, ToDevice), Value: seconds}}
}

func (c *SetTimeout) Seconds() int32 { return c.Value }

type WhichIcons struct{ Long }

func NewWhichIcons(mask int32) *WhichIcons {
	return &WhichIcons{Long{Base: NewBase(NameWhichIcons, ToDevice), Value: mask}}
}

func (c *WhichIcons) Mask() int32 { return c.Value }

// Result reports the outcome of the previous command. Zero is success.
type Result struct{ Long }

func NewResult(code int32) *Result {
	return &Result{Long{Base: NewBase(NameResult, Both), Value: code}}
}

func (c *Result) ErrorCode() int32 { return c.Value }

func NewBlank(name string, direction Direction) *Blank {
	return &Blank{Base: NewBase(name, direction)}
}

func NewHello() *Blank                { return NewBlank(NameHello, Both) }
func NewDisconnect() *Blank           { return NewBlank(NameDisconnect, Both) }
func NewOperationCanceled() *Blank    { return NewBlank(NameOperationCanceled, Both) }
func NewOperationCanceledAck() *Blank { return NewBlank(NameOperationCanceledAck, Both) }
func NewBackupSoupDone() *Blank       { return NewBlank(NameBackupSoupDone, FromDevice) }
func NewGetStoreNames() *Blank        { return NewBlank(NameGetStoreNames, ToDevice) }
func NewGetSoupNames() *Blank         { return NewBlank(NameGetSoupNames, ToDevice) }
func NewSendSoup() *Blank             { return NewBlank(NameSendSoup, ToDevice) }

// StoreNames lists the device stores, one frame per store.
type StoreNames struct{ Object }

func NewStoreNames(stores ...*nsof.Frame) *StoreNames {
	items := make([]nsof.Object, len(stores))
	for i, s := range stores {
		items[i] = s
	}
	return &StoreNames{Object{Base: NewBase(NameStoreNames, FromDevice), Value: &nsof.PlainArray{Items: items}}}
}

func (c *StoreNames) Stores() ([]*nsof.Frame, error) {
	items, err := arrayItems(c.Value)
	if err != nil {
		return nil, err
	}
	out := make([]*nsof.Frame, 0, len(items))
	for i, item := range items {
		f, ok := item.(*nsof.Frame)
		if !ok {
			return nil, fmt.Errorf("%w: store %d is %s", ErrUnexpectedObject, i, item.Tag())
		}
		out = append(out, f)
	}
	return out, nil
}

// SoupNames lists the soups of the current store.
type SoupNames struct{ Object }

func NewSoupNames(names ...string) *SoupNames {
	items := make([]nsof.Object, len(names))
	for i, n := range names {
		items[i] = nsof.NewString(n)
	}
	return &SoupNames{Object{Base: NewBase(NameSoupNames, FromDevice), Value: &nsof.PlainArray{Items: items}}}
}

// Names returns the soup names. A payload of [names, signatures] is
// accepted as well as a bare array of names.
func (c *SoupNames) Names() ([]string, error) {
	items, err := arrayItems(c.Value)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if _, nested := items[0].(*nsof.PlainArray); nested {
			if items, err = arrayItems(items[0]); err != nil {
				return nil, err
			}
		}
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(*nsof.String)
		if !ok {
			return nil, fmt.Errorf("%w: soup name %d is %s", ErrUnexpectedObject, i, item.Tag())
		}
		out = append(out, s.Value)
	}
	return out, nil
}

// Entry carries one soup entry.
type Entry struct{ Object }

func NewEntry(f *nsof.Frame) *Entry {
	return &Entry{Object{Base: NewBase(NameEntry, FromDevice), Value: f}}
}

func (c *Entry) Frame() (*nsof.Frame, error) {
	f, ok := c.Value.(*nsof.Frame)
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: entry is not a frame", ErrUnexpectedObject)
	}
	return f, nil
}

type SetCurrentStore struct{ Object }

func NewSetCurrentStore(store *nsof.Frame) *SetCurrentStore {
	return &SetCurrentStore{Object{Base: NewBase(NameSetCurrentStore, ToDevice), Value: store}}
}

type SetCurrentSoup struct{ Object }

func NewSetCurrentSoup(name string) *SetCurrentSoup {
	return &SetCurrentSoup{Object{Base: NewBase(NameSetCurrentSoup, ToDevice), Value: nsof.NewString(name)}}
}

func (c *SetCurrentSoup) SoupName() string {
	if s, ok := c.Value.(*nsof.String); ok {
		return s.Value
	}
	return ""
}

// LoadPackage carries a package image to install.
type LoadPackage struct{ Raw }

func NewLoadPackage(pkg []byte) *LoadPackage {
	return &LoadPackage{Raw{Base: NewBase(NameLoadPackage, ToDevice), Data: pkg}}
}

func (c *LoadPackage) Package() []byte { return c.Data }

func arrayItems(o nsof.Object) ([]nsof.Object, error) {
	switch v := o.(type) {
	case *nsof.PlainArray:
		return v.Items, nil
	case *nsof.Array:
		return v.Items, nil
	case nil, nsof.Nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: expected array, got %s", ErrUnexpectedObject, o.Tag())
	}
}

// NewtonInfo is sent by the device with its protocol version and
// encryption key.
type NewtonInfo struct {
	Base
	ProtocolVersion int32
	Key             [8]byte
}

func NewNewtonInfo(version int32, key [8]byte) *NewtonInfo {
	return &NewtonInfo{Base: NewBase(NameNewtonInfo, FromDevice), ProtocolVersion: version, Key: key}
}

func (c *NewtonInfo) DecodePayload(r io.Reader, _ uint32) error {
	var b [12]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return truncated(err)
	}
	c.ProtocolVersion = int32(binary.BigEndian.Uint32(b[:4]))
	copy(c.Key[:], b[4:])
	return nil
}

func (c *NewtonInfo) EncodePayload() ([]byte, error) {
	out := binary.BigEndian.AppendUint32(nil, uint32(c.ProtocolVersion))
	return append(out, c.Key[:]...), nil
}

// DeviceInfo is the hardware description carried by NewtonName.
type DeviceInfo struct {
	NewtonID         uint32
	Manufacturer     uint32
	MachineType      uint32
	ROMVersion       uint32
	ROMStage         uint32
	RAMSize          uint32
	ScreenHeight     uint32
	ScreenWidth      uint32
	PatchVersion     uint32
	OSVersion        uint32
	InternalStoreSig uint32
	ScreenResV       uint32
	ScreenResH       uint32
	ScreenDepth      uint32
	SystemFlags      uint32
	SerialNumber     [2]uint32
	TargetProtocol   uint32
}

func (d *DeviceInfo) fields() []*uint32 {
	return []*uint32{
		&d.NewtonID, &d.Manufacturer, &d.MachineType, &d.ROMVersion, &d.ROMStage,
		&d.RAMSize, &d.ScreenHeight, &d.ScreenWidth, &d.PatchVersion, &d.OSVersion,
		&d.InternalStoreSig, &d.ScreenResV, &d.ScreenResH, &d.ScreenDepth,
		&d.SystemFlags, &d.SerialNumber[0], &d.SerialNumber[1], &d.TargetProtocol,
	}
}

// NewtonName carries the device's owner name and hardware description.
type NewtonName struct {
	Base
	Info DeviceInfo
	Owner string
}

func NewNewtonName(name string, info DeviceInfo) *NewtonName {
	return &NewtonName{Base: NewBase(NameNewtonName, FromDevice), Info: info, Owner: name}
}

// DecodePayload reads the info length, as many info fields as that length
// holds, and then the NUL-terminated UTF-16 name. Older devices send a
// shorter info block.
func (c *NewtonName) DecodePayload(r io.Reader, length uint32) error {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return truncated(err)
	}
	infoLen := binary.BigEndian.Uint32(b[:])
	if length < 4 || infoLen > length-4 {
		return fmt.Errorf("%w: info length %d exceeds payload %d", ErrUnexpectedObject, infoLen, length)
	}
	fields := c.Info.fields()
	for i := uint32(0); i < infoLen/4; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return truncated(err)
		}
		if int(i) < len(fields) {
			*fields[i] = binary.BigEndian.Uint32(b[:])
		}
	}
	if rem := infoLen % 4; rem > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(rem)); err != nil {
			return truncated(err)
		}
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.Owner = decodeUTF16Z(rest)
	return nil
}

func (c *NewtonName) EncodePayload() ([]byte, error) {
	fields := c.Info.fields()
	out := binary.BigEndian.AppendUint32(nil, uint32(len(fields)*4))
	for _, f := range fields {
		out = binary.BigEndian.AppendUint32(out, *f)
	}
	return append(out, encodeUTF16Z(c.Owner)...), nil
}

// DesktopApp names one desktop application offered to the device.
type DesktopApp struct {
	Name    string
	ID      int32
	Version int32
}

// DesktopInfo describes the desktop to the device.
type DesktopInfo struct {
	Base
	ProtocolVersion int32
	DesktopType     int32
	Key             [8]byte
	SessionType     int32
	SelectiveSync   bool
	Apps            []DesktopApp
}

const (
	DesktopMacintosh int32 = 0
	DesktopWindows   int32 = 1
)

func NewDesktopInfo(protocolVersion, sessionType int32, key [8]byte, apps ...DesktopApp) *DesktopInfo {
	return &DesktopInfo{
		Base:            NewBase(NameDesktopInfo, ToDevice),
		ProtocolVersion: protocolVersion,
		DesktopType:     DesktopWindows,
		Key:             key,
		SessionType:     sessionType,
		Apps:            apps,
	}
}

func (c *DesktopInfo) EncodePayload() ([]byte, error) {
	out := binary.BigEndian.AppendUint32(nil, uint32(c.ProtocolVersion))
	out = binary.BigEndian.AppendUint32(out, uint32(c.DesktopType))
	out = append(out, c.Key[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(c.SessionType))
	selective := uint32(0)
	if c.SelectiveSync {
		selective = 1
	}
	out = binary.BigEndian.AppendUint32(out, selective)

	items := make([]nsof.Object, len(c.Apps))
	for i, app := range c.Apps {
		items[i] = nsof.NewFrame(
			nsof.Slot{Name: "name", Value: nsof.NewString(app.Name)},
			nsof.Slot{Name: "id", Value: nsof.Integer(app.ID)},
			nsof.Slot{Name: "version", Value: nsof.Integer(app.Version)},
		)
	}
	apps, err := nsof.Marshal(&nsof.PlainArray{Items: items})
	if err != nil {
		return nil, err
	}
	return append(out, apps...), nil
}

func (c *DesktopInfo) DecodePayload(r io.Reader, _ uint32) error {
	var b [24]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return truncated(err)
	}
	c.ProtocolVersion = int32(binary.BigEndian.Uint32(b[0:4]))
	c.DesktopType = int32(binary.BigEndian.Uint32(b[4:8]))
	copy(c.Key[:], b[8:16])
	c.SessionType = int32(binary.BigEndian.Uint32(b[16:20]))
	c.SelectiveSync = binary.BigEndian.Uint32(b[20:24]) != 0

	o, err := nsof.Unflatten(r)
	if err != nil {
		return err
	}
	items, err := arrayItems(o)
	if err != nil {
		return err
	}
	c.Apps = c.Apps[:0]
	for _, item := range items {
		f, ok := item.(*nsof.Frame)
		if !ok {
			return fmt.Errorf("%w: desktop app is %s", ErrUnexpectedObject, item.Tag())
		}
		name, _ := f.Text("name")
		id, _ := f.Int("id")
		version, _ := f.Int("version")
		c.Apps = append(c.Apps, DesktopApp{Name: name, ID: id, Version: version})
	}
	return nil
}

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// decodeUTF16Z decodes big-endian UTF-16 text up to the first NUL unit.
func decodeUTF16Z(b []byte) string {
	n := len(b) &^ 1
	for i := 0; i+1 < n; i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			n = i
			break
		}
	}
	text, err := utf16BE.NewDecoder().Bytes(b[:n])
	if err != nil {
		return ""
	}
	return string(text)
}

func encodeUTF16Z(s string) []byte {
	b, err := utf16BE.NewEncoder().Bytes([]byte(s + "\x00"))
	if err != nil {
		return []byte{0, 0}
	}
	return b
}
