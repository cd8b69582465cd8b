package lattice

import (
	"fmt"
	"math"

	"github.com/gnolang/absint/internal/ir"
)

// Float is an interval of non-NaN values plus a flag for NaN.
type Float struct {
	t      *Type
	empty  bool // no non-NaN value
	lo, hi float64
	nan    bool
}

func FloatTop(t *Type) Float {
	return Float{t: t, lo: math.Inf(-1), hi: math.Inf(1), nan: true}
}

func FloatBottom(t *Type) Float { return Float{t: t, empty: true} }

func FloatConst(t *Type, v float64) Float {
	if math.IsNaN(v) {
		return Float{t: t, empty: true, nan: true}
	}
	if t.Width == 32 {
		v = float64(float32(v))
	}
	return Float{t: t, lo: v, hi: v}
}

// FloatRange returns [lo, hi] without NaN.
func FloatRange(t *Type, lo, hi float64) Float {
	if lo > hi || math.IsNaN(lo) || math.IsNaN(hi) {
		return FloatBottom(t)
	}
	return Float{t: t, lo: lo, hi: hi}
}

func (f Float) Type() *Type    { return f.t }
func (f Float) IsBottom() bool { return f.empty && !f.nan }
func (f Float) IsTop() bool {
	return !f.empty && f.nan && math.IsInf(f.lo, -1) && math.IsInf(f.hi, 1)
}

func (f Float) MayBeNaN() bool { return f.nan }

func (f Float) Singleton() (float64, bool) {
	if f.empty || f.nan || f.lo != f.hi {
		return 0, false
	}
	return f.lo, true
}

func (f Float) String() string {
	switch {
	case f.IsBottom():
		return "⊥"
	case f.IsTop():
		return "⊤"
	case f.empty:
		return "NaN"
	}
	s := fmt.Sprintf("[%g, %g]", f.lo, f.hi)
	if f.lo == f.hi {
		s = fmt.Sprintf("%g", f.lo)
	}
	if f.nan {
		s += "|NaN"
	}
	return s
}

func (f Float) equal(o Float) bool {
	if f.nan != o.nan || f.empty != o.empty {
		return false
	}
	return f.empty || (f.lo == o.lo && f.hi == o.hi)
}

func (f Float) join(o Float) Float {
	r := Float{t: f.t, nan: f.nan || o.nan}
	switch {
	case f.empty && o.empty:
		r.empty = true
	case f.empty:
		r.lo, r.hi = o.lo, o.hi
	case o.empty:
		r.lo, r.hi = f.lo, f.hi
	default:
		r.lo, r.hi = math.Min(f.lo, o.lo), math.Max(f.hi, o.hi)
	}
	return r
}

func (f Float) meet(o Float) Float {
	r := Float{t: f.t, nan: f.nan && o.nan}
	if f.empty || o.empty {
		r.empty = true
		return r
	}
	r.lo, r.hi = math.Max(f.lo, o.lo), math.Min(f.hi, o.hi)
	if r.lo > r.hi {
		r.empty = true
		r.lo, r.hi = 0, 0
	}
	return r
}

func (f Float) leq(o Float) bool {
	if f.nan && !o.nan {
		return false
	}
	if f.empty {
		return true
	}
	return !o.empty && o.lo <= f.lo && f.hi <= o.hi
}

func (f Float) widen(next Float) Float {
	r := f.join(next)
	if f.empty {
		return r
	}
	if !next.empty && next.lo < f.lo {
		r.lo = math.Inf(-1)
	}
	if !next.empty && next.hi > f.hi {
		r.hi = math.Inf(1)
	}
	return r
}

// roundOut widens a float64 interval so that it contains the float32
// rounding of every point in it.
func (f Float) roundOut() Float {
	if f.t.Width != 32 || f.empty {
		return f
	}
	lo, hi := float32(f.lo), float32(f.hi)
	if float64(lo) > f.lo {
		lo = math.Nextafter32(lo, float32(math.Inf(-1)))
	}
	if float64(hi) < f.hi {
		hi = math.Nextafter32(hi, float32(math.Inf(1)))
	}
	f.lo, f.hi = float64(lo), float64(hi)
	return f
}

func (f Float) binary(op ir.Opcode, o Float) Float {
	r := Float{t: f.t, nan: f.nan || o.nan}
	if f.empty || o.empty {
		r.empty = true
		r.nan = true
		return r
	}
	var fn func(x, y float64) float64
	switch op {
	case ir.OpFAdd:
		fn = func(x, y float64) float64 { return x + y }
	case ir.OpFSub:
		fn = func(x, y float64) float64 { return x - y }
	case ir.OpFMul:
		fn = func(x, y float64) float64 { return x * y }
	case ir.OpFDiv:
		if o.lo <= 0 && 0 <= o.hi {
			return FloatTop(f.t)
		}
		fn = func(x, y float64) float64 { return x / y }
	case ir.OpFRem:
		x, xok := f.Singleton()
		y, yok := o.Singleton()
		if xok && yok {
			return FloatConst(f.t, math.Mod(x, y))
		}
		return FloatTop(f.t)
	default:
		return FloatTop(f.t)
	}
	r.lo, r.hi = math.Inf(1), math.Inf(-1)
	for _, x := range []float64{f.lo, f.hi} {
		for _, y := range []float64{o.lo, o.hi} {
			v := fn(x, y)
			if math.IsNaN(v) {
				return FloatTop(f.t)
			}
			r.lo, r.hi = math.Min(r.lo, v), math.Max(r.hi, v)
		}
	}
	return r.roundOut()
}

func (f Float) neg() Float {
	if f.empty {
		return f
	}
	return Float{t: f.t, lo: -f.hi, hi: -f.lo, nan: f.nan}
}

func (f Float) cmp(pred ir.Predicate, o Float) Bool {
	switch pred {
	case ir.FloatFalse:
		return False
	case ir.FloatTrue:
		return True
	case ir.FloatORD, ir.FloatUNO:
		var r Bool
		if !f.empty && !o.empty {
			r = r.join(True)
		}
		if f.nan || o.nan {
			r = r.join(False)
		}
		if pred == ir.FloatUNO {
			return r.Not()
		}
		return r
	}

	var ordered Bool
	if !f.empty && !o.empty {
		switch pred {
		case ir.FloatOEQ, ir.FloatUEQ:
			ordered = f.cmpRange(o, func(a, b Float) bool { return a.lo == a.hi && b.lo == b.hi && a.lo == b.lo },
				func(a, b Float) bool { return a.hi < b.lo || b.hi < a.lo })
		case ir.FloatONE, ir.FloatUNE:
			ordered = f.cmpRange(o, func(a, b Float) bool { return a.hi < b.lo || b.hi < a.lo },
				func(a, b Float) bool { return a.lo == a.hi && b.lo == b.hi && a.lo == b.lo })
		case ir.FloatOLT, ir.FloatULT:
			ordered = f.cmpRange(o, func(a, b Float) bool { return a.hi < b.lo }, func(a, b Float) bool { return a.lo >= b.hi })
		case ir.FloatOLE, ir.FloatULE:
			ordered = f.cmpRange(o, func(a, b Float) bool { return a.hi <= b.lo }, func(a, b Float) bool { return a.lo > b.hi })
		case ir.FloatOGT, ir.FloatUGT:
			ordered = f.cmpRange(o, func(a, b Float) bool { return a.lo > b.hi }, func(a, b Float) bool { return a.hi <= b.lo })
		case ir.FloatOGE, ir.FloatUGE:
			ordered = f.cmpRange(o, func(a, b Float) bool { return a.lo >= b.hi }, func(a, b Float) bool { return a.hi < b.lo })
		default:
			return BoolTop
		}
	}
	if f.nan || o.nan {
		// a NaN operand makes ordered predicates false and unordered ones true
		unordered := pred >= ir.FloatUEQ && pred <= ir.FloatUGE
		ordered = ordered.join(BoolConst(unordered))
	}
	return ordered
}

func (f Float) cmpRange(o Float, always, never func(a, b Float) bool) Bool {
	switch {
	case always(f, o):
		return True
	case never(f, o):
		return False
	}
	return BoolTop
}
