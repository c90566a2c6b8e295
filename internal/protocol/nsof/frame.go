package nsof

// Slot is one named value of a Frame.
type Slot struct {
	Name  Symbol
	Value Object
}

// Frame is an ordered symbol-keyed record. Slot names are unique and slot
// order is preserved so re-encoding is deterministic.
type Frame struct {
	slots []Slot
}

// NewFrame builds a frame; a repeated name replaces the earlier value in place.
func NewFrame(slots ...Slot) *Frame {
	f := &Frame{slots: make([]Slot, 0, len(slots))}
	for _, s := range slots {
		f.Set(s.Name, s.Value)
	}
	return f
}

func (*Frame) Tag() Tag { return TagFrame }

func (f *Frame) Len() int {
	return len(f.slots)
}

func (f *Frame) index(name Symbol) int {
	for i, s := range f.slots {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func (f *Frame) Has(name Symbol) bool {
	return f.index(name) >= 0
}

func (f *Frame) Get(name Symbol) (Object, bool) {
	if i := f.index(name); i >= 0 {
		return f.slots[i].Value, true
	}
	return nil, false
}

// Set replaces an existing slot in place or appends a new one.
func (f *Frame) Set(name Symbol, v Object) {
	if i := f.index(name); i >= 0 {
		f.slots[i].Value = v
		return
	}
	f.slots = append(f.slots, Slot{Name: name, Value: v})
}

func (f *Frame) Delete(name Symbol) bool {
	i := f.index(name)
	if i < 0 {
		return false
	}
	f.slots = append(f.slots[:i], f.slots[i+1:]...)
	return true
}

// Slots returns a copy of the slots in order.
func (f *Frame) Slots() []Slot {
	out := make([]Slot, len(f.slots))
	copy(out, f.slots)
	return out
}

func (f *Frame) Keys() []Symbol {
	out := make([]Symbol, len(f.slots))
	for i, s := range f.slots {
		out[i] = s.Name
	}
	return out
}

// Text returns the text of a String slot.
func (f *Frame) Text(name Symbol) (string, bool) {
	v, ok := f.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(*String)
	if !ok || s == nil || s.Null {
		return "", false
	}
	return s.Value, true
}

// Int returns the value of an Integer slot.
func (f *Frame) Int(name Symbol) (int32, bool) {
	v, ok := f.Get(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(Integer)
	return int32(i), ok
}
