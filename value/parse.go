package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"memcheetah/process"
)

// ParseError reports user text that cannot be turned into a search target.
type ParseError struct {
	Text string
	Type Type
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q as %s: %v", e.Text, e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errOutOfRange = errors.New("value out of range")
	errEmpty      = errors.New("empty input")
	errNoWidth    = errors.New("no candidate width can hold the value")
)

// Target is a parsed search value with its encoding for every candidate width.
type Target struct {
	Type       Type
	Text       string
	Candidates Candidates

	values  [numWidths]Value
	encoded [numWidths][]byte

	UTF16 []byte      // String: the UTF-16LE form searched next to the UTF-8 one
	AOB   process.AOB // Pattern: bytes and wildcard mask
}

// Value returns the decoded target for w.
func (t *Target) Value(w Width) (Value, bool) {
	if !t.Candidates.Has(w) {
		return Value{}, false
	}
	return t.values[w], true
}

// Bytes returns the encoded target for w, nil when w is not a candidate.
func (t *Target) Bytes(w Width) []byte {
	if !t.Candidates.Has(w) {
		return nil
	}
	return t.encoded[w]
}

// MaxLen is the longest byte run a single match can span.
func (t *Target) MaxLen() int {
	n := t.Candidates.MaxSize()
	for _, b := range [][]byte{t.encoded[Str], t.UTF16, t.AOB.Pattern} {
		if len(b) > n {
			n = len(b)
		}
	}
	return n
}

func (t *Target) set(w Width, v Value) {
	v.Width = w
	enc := Encode(v)
	// Store the canonical decoding so e.g. 0xFF as a byte reads back as 255.
	dec, _ := Decode(enc, w)
	t.values[w] = dec
	t.encoded[w] = enc
	t.Candidates |= Concrete(w)
}

// Parse converts user text into a target for typ. Integers accept decimal and 0x hex,
// patterns are space separated hex bytes with ?? wildcards.
func Parse(text string, typ Type) (*Target, error) {
	t := &Target{Type: typ, Text: text}
	fail := func(err error) (*Target, error) {
		return nil, &ParseError{Text: text, Type: typ, Err: err}
	}

	if typ.Kind != KindString {
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return fail(errEmpty)
	}

	switch typ.Kind {
	case KindByte, KindShort, KindInt, KindInt64:
		w, _ := typ.Candidates().Width()
		n, err := parseInteger(text, w)
		if err != nil {
			return fail(err)
		}
		t.set(w, Value{Int: n})

	case KindFloat, KindDouble:
		w, _ := typ.Candidates().Width()
		f, err := parseFloat(text, w)
		if err != nil {
			return fail(err)
		}
		t.set(w, Value{Float: f})

	case KindUnknown:
		allowed := typ.Candidates()
		integral := false
		var asFloat float64
		for _, w := range []Width{I8, I16, I32, I64} {
			n, err := parseInteger(text, w)
			if err != nil {
				continue
			}
			if !integral {
				integral, asFloat = true, float64(n)
			}
			if allowed.Has(w) {
				t.set(w, Value{Int: n})
			}
		}
		for _, w := range []Width{F32, F64} {
			if !allowed.Has(w) {
				continue
			}
			f, err := parseFloat(text, w)
			if err != nil {
				if !integral {
					continue
				}
				f = asFloat
			}
			t.set(w, Value{Float: f})
		}
		if t.Candidates.IsEmpty() {
			return fail(errNoWidth)
		}

	case KindString:
		if typ.MaxLen > 0 && len(text) > typ.MaxLen {
			return fail(fmt.Errorf("string longer than %d bytes", typ.MaxLen))
		}
		t.set(Str, Value{Bytes: []byte(text)})
		t.UTF16 = encodeUTF16(text)

	case KindPattern:
		aob, err := ParseAOB(text)
		if err != nil {
			return fail(err)
		}
		t.AOB = aob
		t.set(Raw, Value{Bytes: aob.Pattern})

	default:
		return fail(fmt.Errorf("unsupported type"))
	}

	return t, nil
}

// EncodeText parses text as a single value of width w, for writes.
func EncodeText(text string, w Width) ([]byte, error) {
	var typ Type
	switch w {
	case I8:
		typ = Byte
	case I16:
		typ = Short
	case I32:
		typ = Int
	case I64:
		typ = Int64
	case F32:
		typ = Float
	case F64:
		typ = Double
	case Str:
		typ = String(0)
	case Raw:
		typ = Pattern
	default:
		return nil, fmt.Errorf("invalid width %d", w)
	}

	t, err := Parse(text, typ)
	if err != nil {
		return nil, err
	}
	if w == Raw {
		for _, m := range t.AOB.Mask {
			if m != 0xFF {
				return nil, &ParseError{Text: text, Type: typ, Err: errors.New("wildcards cannot be written")}
			}
		}
	}
	return t.Bytes(w), nil
}

// parseInteger accepts the signed and the unsigned range of w.
func parseInteger(text string, w Width) (int64, error) {
	bitSize := w.Size() * 8

	n, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(text, 0, 64)
		if uerr != nil {
			return 0, err
		}
		if bitSize < 64 && u>>uint(bitSize) != 0 {
			return 0, errOutOfRange
		}
		return int64(u), nil
	}

	if bitSize < 64 {
		lo := -(int64(1) << (bitSize - 1))
		hi := int64(1)<<bitSize - 1
		if n < lo || n > hi {
			return 0, errOutOfRange
		}
	}
	return n, nil
}

func parseFloat(text string, w Width) (float64, error) {
	bitSize := 64
	if w == F32 {
		bitSize = 32
	}
	return strconv.ParseFloat(text, bitSize)
}

// ParseAOB parses "48 8B ?? 05" style patterns. Tokens without spaces are split
// into byte pairs.
func ParseAOB(text string) (process.AOB, error) {
	var pattern, mask []byte
	for _, tok := range strings.Fields(text) {
		if len(tok) > 2 && tok != "??" {
			if len(tok)%2 != 0 {
				return process.AOB{}, fmt.Errorf("odd length token %q", tok)
			}
			for i := 0; i < len(tok); i += 2 {
				p, m, err := parseAOBByte(tok[i : i+2])
				if err != nil {
					return process.AOB{}, err
				}
				pattern, mask = append(pattern, p), append(mask, m)
			}
			continue
		}
		p, m, err := parseAOBByte(tok)
		if err != nil {
			return process.AOB{}, err
		}
		pattern, mask = append(pattern, p), append(mask, m)
	}
	aob, err := process.NewAOB(pattern, mask)
	if err != nil {
		return process.AOB{}, err
	}
	if _, literal := aob.Literal(); len(literal) == 0 {
		return process.AOB{}, errors.New("pattern has no fixed bytes")
	}
	return aob, nil
}

func parseAOBByte(tok string) (byte, byte, error) {
	if tok == "?" || tok == "??" {
		return 0, 0, nil
	}
	b, err := strconv.ParseUint(tok, 16, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pattern byte %q", tok)
	}
	return byte(b), 0xFF, nil
}
