package lattice

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/gnolang/absint/internal/ir"
)

// Int is a signed interval over a fixed-width two's complement integer.
// Bounds always lie within the range of the width; a result that would
// leave it is approximated by top.
type Int struct {
	t      *Type
	bottom bool
	lo, hi int64
}

func MinOf(width int) int64 {
	if width >= 64 {
		return math.MinInt64
	}
	return -(int64(1) << (width - 1))
}

func MaxOf(width int) int64 {
	if width >= 64 {
		return math.MaxInt64
	}
	return int64(1)<<(width-1) - 1
}

func wrap(v int64, width int) int64 {
	if width >= 64 {
		return v
	}
	shift := uint(64 - width)
	return v << shift >> shift
}

func IntTop(t *Type) Int    { return Int{t: t, lo: MinOf(t.Width), hi: MaxOf(t.Width)} }
func IntBottom(t *Type) Int { return Int{t: t, bottom: true} }

// IntConst returns the singleton {v}, wrapping v to the width of t.
func IntConst(t *Type, v int64) Int {
	v = wrap(v, t.Width)
	return Int{t: t, lo: v, hi: v}
}

// IntRange returns [lo, hi] clamped to the range of t; an empty range is bottom.
func IntRange(t *Type, lo, hi int64) Int {
	lo = max(lo, MinOf(t.Width))
	hi = min(hi, MaxOf(t.Width))
	if lo > hi {
		return IntBottom(t)
	}
	return Int{t: t, lo: lo, hi: hi}
}

func (i Int) Type() *Type    { return i.t }
func (i Int) IsBottom() bool { return i.bottom }
func (i Int) IsTop() bool {
	return !i.bottom && i.lo == MinOf(i.t.Width) && i.hi == MaxOf(i.t.Width)
}

func (i Int) Width() int { return i.t.Width }

// Bounds returns the interval ends. It must not be called on bottom.
func (i Int) Bounds() (int64, int64) { return i.lo, i.hi }

func (i Int) Singleton() (int64, bool) {
	if i.bottom || i.lo != i.hi {
		return 0, false
	}
	return i.lo, true
}

func (i Int) Contains(v int64) bool { return !i.bottom && i.lo <= v && v <= i.hi }

func (i Int) String() string {
	switch {
	case i.bottom:
		return "⊥"
	case i.IsTop():
		return "⊤"
	case i.lo == i.hi:
		return fmt.Sprintf("%d", i.lo)
	}
	return fmt.Sprintf("[%s, %s]", boundString(i.lo, i.t.Width), boundString(i.hi, i.t.Width))
}

func boundString(v int64, width int) string {
	switch v {
	case MinOf(width):
		return "-∞"
	case MaxOf(width):
		return "+∞"
	}
	return fmt.Sprintf("%d", v)
}

func (i Int) join(o Int) Int {
	return Int{t: i.t, lo: min(i.lo, o.lo), hi: max(i.hi, o.hi)}
}

func (i Int) meet(o Int) Int {
	return IntRange(i.t, max(i.lo, o.lo), min(i.hi, o.hi))
}

func (i Int) leq(o Int) bool {
	return o.lo <= i.lo && i.hi <= o.hi
}

func (i Int) widen(next Int) Int {
	r := i.join(next)
	if next.lo < i.lo {
		r.lo = MinOf(i.t.Width)
	}
	if next.hi > i.hi {
		r.hi = MaxOf(i.t.Width)
	}
	return r
}

// fromBig builds [lo, hi]. Exact singletons wrap like the hardware does;
// any other interval leaving the range becomes top.
func (i Int) fromBig(lo, hi *big.Int) Int {
	w := i.t.Width
	minB, maxB := big.NewInt(MinOf(w)), big.NewInt(MaxOf(w))
	if lo.Cmp(minB) >= 0 && hi.Cmp(maxB) <= 0 {
		return Int{t: i.t, lo: lo.Int64(), hi: hi.Int64()}
	}
	if lo.Cmp(hi) == 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(w))
		r := new(big.Int).Mod(lo, mod)
		if r.Cmp(maxB) > 0 {
			r.Sub(r, mod)
		}
		v := r.Int64()
		return Int{t: i.t, lo: v, hi: v}
	}
	return IntTop(i.t)
}

func corners(a, b Int, fn func(x, y *big.Int) *big.Int) (*big.Int, *big.Int) {
	xs := []int64{a.lo, a.hi}
	ys := []int64{b.lo, b.hi}
	var lo, hi *big.Int
	for _, x := range xs {
		for _, y := range ys {
			r := fn(big.NewInt(x), big.NewInt(y))
			if lo == nil || r.Cmp(lo) < 0 {
				lo = r
			}
			if hi == nil || r.Cmp(hi) > 0 {
				hi = r
			}
		}
	}
	return lo, hi
}

func (i Int) unsigned(v int64) uint64 {
	if i.t.Width >= 64 {
		return uint64(v)
	}
	return uint64(v) & (uint64(1)<<uint(i.t.Width) - 1)
}

func (i Int) binary(op ir.Opcode, o Int) Int {
	switch op {
	case ir.OpAdd:
		lo := new(big.Int).Add(big.NewInt(i.lo), big.NewInt(o.lo))
		hi := new(big.Int).Add(big.NewInt(i.hi), big.NewInt(o.hi))
		return i.fromBig(lo, hi)
	case ir.OpSub:
		lo := new(big.Int).Sub(big.NewInt(i.lo), big.NewInt(o.hi))
		hi := new(big.Int).Sub(big.NewInt(i.hi), big.NewInt(o.lo))
		return i.fromBig(lo, hi)
	case ir.OpMul:
		return i.fromBig(corners(i, o, func(x, y *big.Int) *big.Int { return new(big.Int).Mul(x, y) }))
	case ir.OpSDiv:
		return i.sdiv(o)
	case ir.OpSRem:
		return i.srem(o)
	case ir.OpUDiv, ir.OpURem:
		if i.lo >= 0 && o.lo >= 0 {
			if op == ir.OpUDiv {
				return i.sdiv(o)
			}
			return i.srem(o)
		}
		x, xok := i.Singleton()
		y, yok := o.Singleton()
		if xok && yok && y != 0 {
			ux, uy := i.unsigned(x), i.unsigned(y)
			if op == ir.OpUDiv {
				return IntConst(i.t, int64(ux/uy))
			}
			return IntConst(i.t, int64(ux%uy))
		}
		return IntTop(i.t)
	case ir.OpShl:
		if !o.shiftAmount(i.t.Width) {
			return IntTop(i.t)
		}
		if k, ok := o.Singleton(); ok {
			lo := new(big.Int).Lsh(big.NewInt(i.lo), uint(k))
			hi := new(big.Int).Lsh(big.NewInt(i.hi), uint(k))
			return i.fromBig(lo, hi)
		}
		if i.lo >= 0 {
			lo := new(big.Int).Lsh(big.NewInt(i.lo), uint(o.lo))
			hi := new(big.Int).Lsh(big.NewInt(i.hi), uint(o.hi))
			return i.fromBig(lo, hi)
		}
		return IntTop(i.t)
	case ir.OpAShr:
		if !o.shiftAmount(i.t.Width) {
			return IntTop(i.t)
		}
		return i.ashr(o)
	case ir.OpLShr:
		if !o.shiftAmount(i.t.Width) {
			return IntTop(i.t)
		}
		if i.lo >= 0 {
			return i.ashr(o)
		}
		if x, ok := i.Singleton(); ok {
			if k, ok := o.Singleton(); ok {
				return IntConst(i.t, int64(i.unsigned(x)>>uint(k)))
			}
		}
		return IntTop(i.t)
	case ir.OpAnd:
		return i.and(o)
	case ir.OpOr:
		x, xok := i.Singleton()
		y, yok := o.Singleton()
		if xok && yok {
			return IntConst(i.t, x|y)
		}
		if i.lo >= 0 && o.lo >= 0 {
			return IntRange(i.t, max(i.lo, o.lo), lowMask(max(i.hi, o.hi)))
		}
		return IntTop(i.t)
	case ir.OpXor:
		x, xok := i.Singleton()
		y, yok := o.Singleton()
		if xok && yok {
			return IntConst(i.t, x^y)
		}
		if i.lo >= 0 && o.lo >= 0 {
			return IntRange(i.t, 0, lowMask(max(i.hi, o.hi)))
		}
		return IntTop(i.t)
	}
	return IntTop(i.t)
}

// lowMask returns the smallest all-ones value not below v, for v >= 0.
func lowMask(v int64) int64 {
	n := bits.Len64(uint64(v))
	if n >= 63 {
		return math.MaxInt64
	}
	return int64(1)<<uint(n) - 1
}

func (i Int) shiftAmount(width int) bool {
	return i.lo >= 0 && i.hi < int64(width)
}

func (i Int) ashr(o Int) Int {
	lo := min(i.lo>>uint(o.lo), i.lo>>uint(o.hi))
	hi := max(i.hi>>uint(o.lo), i.hi>>uint(o.hi))
	return Int{t: i.t, lo: lo, hi: hi}
}

// and is precise on singletons and on non-negative operands. Masking
// with zero yields zero regardless of the other operand.
func (i Int) and(o Int) Int {
	x, xok := i.Singleton()
	y, yok := o.Singleton()
	switch {
	case xok && yok:
		return IntConst(i.t, x&y)
	case xok && x == 0, yok && y == 0:
		return IntConst(i.t, 0)
	case i.lo >= 0 && o.lo >= 0:
		return IntRange(i.t, 0, min(i.hi, o.hi))
	case i.lo >= 0:
		return IntRange(i.t, 0, i.hi)
	case o.lo >= 0:
		return IntRange(i.t, 0, o.hi)
	}
	return IntTop(i.t)
}

// nonZeroParts splits the divisor around zero.
func (i Int) nonZeroParts() []Int {
	var parts []Int
	if i.lo <= -1 {
		parts = append(parts, Int{t: i.t, lo: i.lo, hi: min(i.hi, -1)})
	}
	if i.hi >= 1 {
		parts = append(parts, Int{t: i.t, lo: max(i.lo, 1), hi: i.hi})
	}
	return parts
}

func (i Int) sdiv(o Int) Int {
	parts := o.nonZeroParts()
	if len(parts) == 0 {
		return IntTop(i.t)
	}
	var lo, hi *big.Int
	for _, p := range parts {
		plo, phi := corners(i, p, func(x, y *big.Int) *big.Int { return new(big.Int).Quo(x, y) })
		if lo == nil || plo.Cmp(lo) < 0 {
			lo = plo
		}
		if hi == nil || phi.Cmp(hi) > 0 {
			hi = phi
		}
	}
	return i.fromBig(lo, hi)
}

func (i Int) srem(o Int) Int {
	x, xok := i.Singleton()
	y, yok := o.Singleton()
	if xok && yok {
		if y == 0 {
			return IntTop(i.t)
		}
		r := new(big.Int).Rem(big.NewInt(x), big.NewInt(y))
		return i.fromBig(r, r)
	}
	if len(o.nonZeroParts()) == 0 {
		return IntTop(i.t)
	}
	// |r| < |divisor|, and r takes the sign of the dividend
	m := new(big.Int).Abs(big.NewInt(o.lo))
	if hiAbs := new(big.Int).Abs(big.NewInt(o.hi)); hiAbs.Cmp(m) > 0 {
		m = hiAbs
	}
	m.Sub(m, big.NewInt(1))
	bound := m.Int64()
	switch {
	case i.lo >= 0:
		return IntRange(i.t, 0, min(i.hi, bound))
	case i.hi <= 0:
		return IntRange(i.t, max(i.lo, -bound), 0)
	}
	return IntRange(i.t, max(i.lo, -bound), min(i.hi, bound))
}

type half int

const (
	mixedHalf half = iota
	nonNegHalf
	negHalf
)

func (i Int) half() half {
	switch {
	case i.lo >= 0:
		return nonNegHalf
	case i.hi < 0:
		return negHalf
	}
	return mixedHalf
}

func (i Int) cmp(pred ir.Predicate, o Int) Bool {
	switch pred {
	case ir.IntEQ:
		x, xok := i.Singleton()
		y, yok := o.Singleton()
		if xok && yok && x == y {
			return True
		}
		if i.hi < o.lo || o.hi < i.lo {
			return False
		}
		return BoolTop
	case ir.IntNE:
		return i.cmp(ir.IntEQ, o).Not()
	case ir.IntSLT:
		if i.hi < o.lo {
			return True
		}
		if i.lo >= o.hi {
			return False
		}
		return BoolTop
	case ir.IntSLE:
		if i.hi <= o.lo {
			return True
		}
		if i.lo > o.hi {
			return False
		}
		return BoolTop
	case ir.IntSGT:
		return o.cmp(ir.IntSLT, i)
	case ir.IntSGE:
		return o.cmp(ir.IntSLE, i)
	case ir.IntULT, ir.IntULE, ir.IntUGT, ir.IntUGE:
		hi, ho := i.half(), o.half()
		if hi == mixedHalf || ho == mixedHalf {
			return BoolTop
		}
		if hi == ho {
			return i.cmp(signedOf(pred), o)
		}
		// negative values are the large unsigned ones
		less := hi == nonNegHalf
		switch pred {
		case ir.IntULT, ir.IntULE:
			return BoolConst(less)
		default:
			return BoolConst(!less)
		}
	}
	return BoolTop
}

func signedOf(pred ir.Predicate) ir.Predicate {
	switch pred {
	case ir.IntULT:
		return ir.IntSLT
	case ir.IntULE:
		return ir.IntSLE
	case ir.IntUGT:
		return ir.IntSGT
	case ir.IntUGE:
		return ir.IntSGE
	}
	return pred
}
