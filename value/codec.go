package value

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrDecode is returned when fewer bytes are supplied than the width needs.
var ErrDecode = errors.New("decode: not enough bytes for width")

// Value is a decoded interpretation of target memory. Integers live in Int (I8 is
// unsigned), floats in Float, text and patterns in Bytes.
type Value struct {
	Width Width
	Int   int64
	Float float64
	Bytes []byte
}

// Decode interprets b under w. Trailing bytes beyond the width are ignored.
func Decode(b []byte, w Width) (Value, error) {
	if len(b) < w.Size() {
		return Value{}, fmt.Errorf("%w: %s needs %d, have %d", ErrDecode, w, w.Size(), len(b))
	}
	v := Value{Width: w}
	switch w {
	case I8:
		v.Int = int64(b[0])
	case I16:
		v.Int = int64(int16(binary.LittleEndian.Uint16(b)))
	case I32:
		v.Int = int64(int32(binary.LittleEndian.Uint32(b)))
	case I64:
		v.Int = int64(binary.LittleEndian.Uint64(b))
	case F32:
		v.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case F64:
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Str, Raw:
		v.Bytes = append([]byte(nil), b...)
	default:
		return Value{}, fmt.Errorf("%w: invalid width %d", ErrDecode, w)
	}
	return v, nil
}

// Encode returns the in-memory representation of v in host (little-endian) order.
func Encode(v Value) []byte {
	switch v.Width {
	case I8:
		return []byte{byte(v.Int)}
	case I16:
		return binary.LittleEndian.AppendUint16(nil, uint16(v.Int))
	case I32:
		return binary.LittleEndian.AppendUint32(nil, uint32(v.Int))
	case I64:
		return binary.LittleEndian.AppendUint64(nil, uint64(v.Int))
	case F32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v.Float)))
	case F64:
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v.Float))
	}
	return append([]byte(nil), v.Bytes...)
}

func (v Value) String() string {
	switch {
	case v.Width.IsInteger():
		return strconv.FormatInt(v.Int, 10)
	case v.Width == F32:
		return strconv.FormatFloat(v.Float, 'g', -1, 32)
	case v.Width == F64:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case v.Width == Str:
		return strconv.Quote(decodeText(v.Bytes))
	}
	return formatHex(v.Bytes)
}

// Format renders raw memory under w, or a placeholder when b is too short.
func Format(b []byte, w Width) string {
	v, err := Decode(b, w)
	if err != nil {
		return "??"
	}
	return v.String()
}

// decodeText guesses between UTF-8 and UTF-16LE.
func decodeText(b []byte) string {
	if utf8.Valid(b) && !looksUTF16(b) {
		return string(b)
	}
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(u))
}

func looksUTF16(b []byte) bool {
	if len(b) < 2 || len(b)%2 != 0 {
		return false
	}
	for i := 1; i < len(b); i += 2 {
		if b[i] != 0 {
			return false
		}
	}
	return true
}

func encodeUTF16(s string) []byte {
	u := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(u))
	for _, c := range u {
		out = binary.LittleEndian.AppendUint16(out, c)
	}
	return out
}

func formatHex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}
