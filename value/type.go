package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the searchable value types.
type Kind uint8

const (
	KindByte Kind = iota
	KindShort
	KindInt
	KindInt64
	KindFloat
	KindDouble
	KindString
	KindUnknown
	KindPattern
)

// Type is a Kind plus the parameters of the variable ones.
type Type struct {
	Kind     Kind
	MaxLen   int // String: longest accepted text in bytes, 0 for no limit
	MinWidth int // Unknown: smallest candidate size in bytes
	MaxWidth int // Unknown: largest candidate size in bytes
}

var (
	Byte    = Type{Kind: KindByte}
	Short   = Type{Kind: KindShort}
	Int     = Type{Kind: KindInt}
	Int64   = Type{Kind: KindInt64}
	Float   = Type{Kind: KindFloat}
	Double  = Type{Kind: KindDouble}
	Pattern = Type{Kind: KindPattern}
)

func String(maxLen int) Type { return Type{Kind: KindString, MaxLen: maxLen} }

// Unknown is a numeric search of undecided width. Widths outside [minWidth, maxWidth] bytes
// are never considered.
func Unknown(minWidth, maxWidth int) Type {
	return Type{Kind: KindUnknown, MinWidth: minWidth, MaxWidth: maxWidth}
}

// Candidates returns every width a value of this type may be read as.
func (t Type) Candidates() Candidates {
	switch t.Kind {
	case KindByte:
		return Concrete(I8)
	case KindShort:
		return Concrete(I16)
	case KindInt:
		return Concrete(I32)
	case KindInt64:
		return Concrete(I64)
	case KindFloat:
		return Concrete(F32)
	case KindDouble:
		return Concrete(F64)
	case KindString:
		return Concrete(Str)
	case KindPattern:
		return Concrete(Raw)
	case KindUnknown:
		var c Candidates
		for _, w := range []Width{I8, I16, I32, I64, F32, F64} {
			if w.Size() >= t.MinWidth && w.Size() <= t.MaxWidth {
				c |= Concrete(w)
			}
		}
		return c
	}
	return 0
}

func (t Type) String() string {
	switch t.Kind {
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindInt64:
		return "int64"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindString:
		if t.MaxLen > 0 {
			return fmt.Sprintf("string(%d)", t.MaxLen)
		}
		return "string"
	case KindUnknown:
		return fmt.Sprintf("unknown(%d..%d)", t.MinWidth, t.MaxWidth)
	case KindPattern:
		return "aob"
	}
	return "invalid"
}

// ParseType resolves a type name as typed on the command line. Unknown searches get
// the given width range.
func ParseType(name string, minWidth, maxWidth int) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "byte", "u8", "i8":
		return Byte, nil
	case "short", "i16":
		return Short, nil
	case "int", "i32":
		return Int, nil
	case "int64", "long", "i64":
		return Int64, nil
	case "float", "f32":
		return Float, nil
	case "double", "f64":
		return Double, nil
	case "string", "str":
		return String(0), nil
	case "unknown", "guess":
		return Unknown(minWidth, maxWidth), nil
	case "aob", "pattern", "bytes":
		return Pattern, nil
	}
	if rest, ok := strings.CutPrefix(name, "string:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return Type{}, fmt.Errorf("invalid string length %q", rest)
		}
		return String(n), nil
	}
	return Type{}, fmt.Errorf("unknown value type %q", name)
}
