package nsof

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dump writes a NewtonScript-like rendering of o. Objects reached a second
// time are printed as a back-reference instead of being expanded again.
func Dump(w io.Writer, o Object) error {
	bw := bufio.NewWriter(w)
	d := dumper{w: bw, seen: make(map[Object]int)}
	d.dump(o, 0)
	bw.WriteByte('\n')
	return bw.Flush()
}

// Sprint returns the Dump rendering of o without the trailing newline.
func Sprint(o Object) string {
	var sb strings.Builder
	_ = Dump(&sb, o)
	return strings.TrimSuffix(sb.String(), "\n")
}

type dumper struct {
	w    *bufio.Writer
	seen map[Object]int
}

func (d *dumper) indent(level int) {
	d.w.WriteString(strings.Repeat("  ", level))
}

func (d *dumper) dump(o Object, level int) {
	o = normalize(o)
	switch o.(type) {
	case *Frame, *Array, *PlainArray, *Binary, *LargeBinary:
		if id, ok := d.seen[o]; ok {
			fmt.Fprintf(d.w, "@%d", id)
			return
		}
		d.seen[o] = len(d.seen)
	}

	switch v := o.(type) {
	case Nil:
		d.w.WriteString("nil")
	case Boolean:
		d.w.WriteString("true")
	case Integer:
		d.w.WriteString(strconv.Itoa(int(v)))
	case MagicPointer:
		fmt.Fprintf(d.w, "@magic(%d)", int32(v))
	case Immediate:
		fmt.Fprintf(d.w, "#%X", uint32(v))
	case Char:
		if v < 0x80 && strconv.IsPrint(rune(v)) {
			fmt.Fprintf(d.w, "$%c", rune(v))
		} else {
			fmt.Fprintf(d.w, "$\\u%04X", int32(v))
		}
	case Symbol:
		d.w.WriteString("'" + string(v))
	case *String:
		if v.Null {
			d.w.WriteString("<null string>")
			return
		}
		d.w.WriteString(strconv.Quote(v.Value))
	case *SmallRect:
		fmt.Fprintf(d.w, "{top: %d, left: %d, bottom: %d, right: %d}", v.Top, v.Left, v.Bottom, v.Right)
	case *Binary:
		fmt.Fprintf(d.w, "<binary %s, %d bytes>", Sprint(v.Class), len(v.Data))
	case *LargeBinary:
		fmt.Fprintf(d.w, "<large binary %s, %d bytes", Sprint(v.Class), len(v.Data))
		if v.Compressed {
			fmt.Fprintf(d.w, ", compander %q", v.Compander)
		}
		d.w.WriteString(">")
	case *Array:
		d.w.WriteString("[" + Sprint(v.Class) + ":")
		d.items(v.Items, level)
	case *PlainArray:
		d.w.WriteString("[")
		d.items(v.Items, level)
	case *Frame:
		if len(v.slots) == 0 {
			d.w.WriteString("{}")
			return
		}
		d.w.WriteString("{\n")
		for i, s := range v.slots {
			d.indent(level + 1)
			d.w.WriteString(string(s.Name) + ": ")
			d.dump(s.Value, level+1)
			if i < len(v.slots)-1 {
				d.w.WriteString(",")
			}
			d.w.WriteString("\n")
		}
		d.indent(level)
		d.w.WriteString("}")
	default:
		fmt.Fprintf(d.w, "<%T>", o)
	}
}

func (d *dumper) items(items []Object, level int) {
	for i, item := range items {
		if i > 0 {
			d.w.WriteString(",")
		}
		d.w.WriteString(" ")
		d.dump(item, level)
	}
	d.w.WriteString("]")
}
