package value

import (
	"bytes"
	"fmt"
	"math"
)

// Op is a refinement comparison.
type Op uint8

const (
	EqualTo Op = iota
	Increased
	Decreased
	Changed
	Unchanged
)

// Comparator pairs an Op with its operand; only EqualTo uses Target.
type Comparator struct {
	Op     Op
	Target *Target
}

func (op Op) String() string {
	switch op {
	case EqualTo:
		return "equal"
	case Increased:
		return "increased"
	case Decreased:
		return "decreased"
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	}
	return "invalid"
}

// ParseOp accepts the console spellings of the comparison operators.
func ParseOp(s string) (Op, error) {
	switch s {
	case "=", "==", "eq", "equal":
		return EqualTo, nil
	case "+", ">", "inc", "increased":
		return Increased, nil
	case "-", "<", "dec", "decreased":
		return Decreased, nil
	case "!=", "<>", "changed":
		return Changed, nil
	case "same", "unchanged":
		return Unchanged, nil
	}
	return 0, fmt.Errorf("unknown comparison %q", s)
}

// EqualTolerance is how far a float may be from an EqualTo target and still match.
const EqualTolerance = 1.0

func floatEps(old float64) float64  { return math.Max(math.Abs(old)*1e-3, 1e-4) }
func doubleEps(old float64) float64 { return math.Max(math.Abs(old)*1e-4, 1e-6) }

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// sameFloat treats NaN as equal to itself.
func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// MatchTarget reports whether memory b holds target under width w.
func MatchTarget(b []byte, w Width, target *Target) bool {
	switch {
	case w.IsInteger():
		enc := target.Bytes(w)
		return enc != nil && len(b) >= len(enc) && bytes.Equal(b[:len(enc)], enc)
	case w.IsFloat():
		want, ok := target.Value(w)
		if !ok {
			return false
		}
		got, err := Decode(b, w)
		if err != nil {
			return false
		}
		if !isFinite(got.Float) || !isFinite(want.Float) {
			return sameFloat(got.Float, want.Float)
		}
		return math.Abs(got.Float-want.Float) < EqualTolerance
	case w == Str:
		if enc := target.Bytes(Str); enc != nil && bytes.HasPrefix(b, enc) {
			return true
		}
		return len(target.UTF16) > 0 && bytes.HasPrefix(b, target.UTF16)
	case w == Raw:
		return target.AOB.IsValid() && target.AOB.Match(b)
	}
	return false
}

// Compare evaluates c for a hit whose previous bytes were prev and current bytes are cur
// under width w. Short input never passes.
func Compare(prev, cur []byte, w Width, c Comparator) bool {
	if c.Op == EqualTo {
		if c.Target == nil {
			return false
		}
		return MatchTarget(cur, w, c.Target)
	}

	if !w.IsNumeric() {
		n := len(prev)
		if len(cur) < n {
			return false
		}
		same := bytes.Equal(prev, cur[:n])
		switch c.Op {
		case Changed:
			return !same
		case Unchanged:
			return same
		}
		return false
	}

	ov, err := Decode(prev, w)
	if err != nil {
		return false
	}
	nv, err := Decode(cur, w)
	if err != nil {
		return false
	}

	if w.IsInteger() {
		switch c.Op {
		case Increased:
			return nv.Int > ov.Int
		case Decreased:
			return nv.Int < ov.Int
		case Changed:
			return nv.Int != ov.Int
		case Unchanged:
			return nv.Int == ov.Int
		}
		return false
	}

	o, n := ov.Float, nv.Float
	if !isFinite(o) || !isFinite(n) {
		switch c.Op {
		case Changed:
			return !sameFloat(o, n)
		case Unchanged:
			return sameFloat(o, n)
		}
		return false
	}

	eps := floatEps(o)
	if w == F64 {
		eps = doubleEps(o)
	}
	switch c.Op {
	case Increased:
		return n > o+eps
	case Decreased:
		return n < o-eps
	case Changed:
		return math.Abs(n-o) > eps
	case Unchanged:
		return math.Abs(n-o) <= eps
	}
	return false
}

// Narrow returns the members of cands that pass c, given prev and cur bytes of at least
// cands.MaxSize() length. EqualTo is only tried on widths the target has a value for.
func Narrow(prev, cur []byte, cands Candidates, c Comparator) Candidates {
	if c.Op == EqualTo && c.Target != nil {
		cands = cands.Intersect(c.Target.Candidates)
	}
	var out Candidates
	for _, w := range cands.Widths() {
		if Compare(prev, cur, w, c) {
			out |= Concrete(w)
		}
	}
	return out
}
