package value

import (
	"math/bits"
	"strings"
)

// Width is one concrete byte-level interpretation of a value.
type Width uint8

const (
	I8 Width = iota
	I16
	I32
	I64
	F32
	F64
	Str // variable length text
	Raw // variable length byte pattern

	numWidths
)

var widthNames = [numWidths]string{"i8", "i16", "i32", "i64", "f32", "f64", "str", "raw"}

func (w Width) String() string {
	if w < numWidths {
		return widthNames[w]
	}
	return "invalid"
}

// Size is the byte width, 0 for the variable length widths.
func (w Width) Size() int {
	switch w {
	case I8:
		return 1
	case I16:
		return 2
	case I32, F32:
		return 4
	case I64, F64:
		return 8
	}
	return 0
}

func (w Width) IsFloat() bool   { return w == F32 || w == F64 }
func (w Width) IsInteger() bool { return w <= I64 }
func (w Width) IsNumeric() bool { return w <= F64 }

// Candidates is the set of widths a hit may still be interpreted as.
// A set holding a single width is the concrete case.
type Candidates uint8

// Concrete returns the candidate set holding only w.
func Concrete(w Width) Candidates { return 1 << w }

// Set returns the candidate set holding every width in ws.
func Set(ws ...Width) Candidates {
	var c Candidates
	for _, w := range ws {
		c |= Concrete(w)
	}
	return c
}

func (c Candidates) Has(w Width) bool                  { return c&Concrete(w) != 0 }
func (c Candidates) Len() int                          { return bits.OnesCount8(uint8(c)) }
func (c Candidates) IsEmpty() bool                     { return c == 0 }
func (c Candidates) IsConcrete() bool                  { return c.Len() == 1 }
func (c Candidates) Intersect(o Candidates) Candidates { return c & o }

// Width returns the width of a concrete set.
func (c Candidates) Width() (Width, bool) {
	if !c.IsConcrete() {
		return 0, false
	}
	return Width(bits.TrailingZeros8(uint8(c))), true
}

// Widths lists the members in ascending order.
func (c Candidates) Widths() []Width {
	ws := make([]Width, 0, c.Len())
	for w := Width(0); w < numWidths; w++ {
		if c.Has(w) {
			ws = append(ws, w)
		}
	}
	return ws
}

// MaxSize is the largest fixed size among the members.
func (c Candidates) MaxSize() int {
	n := 0
	for _, w := range c.Widths() {
		if s := w.Size(); s > n {
			n = s
		}
	}
	return n
}

// Widest returns the member with the largest size, preferring integers on ties.
func (c Candidates) Widest() (Width, bool) {
	best, found := Width(0), false
	for _, w := range c.Widths() {
		if !found || w.Size() > best.Size() {
			best, found = w, true
		}
	}
	return best, found
}

func (c Candidates) String() string {
	ws := c.Widths()
	names := make([]string, len(ws))
	for i, w := range ws {
		names[i] = w.String()
	}
	if len(names) == 1 {
		return names[0]
	}
	return "{" + strings.Join(names, ",") + "}"
}
