package lattice

import "github.com/gnolang/absint/internal/ir"

// RefineICmp narrows the operands of `icmp pred a, b` under the assumption
// that the comparison evaluated to outcome. A bottom result means the
// outcome is impossible.
func RefineICmp(pred ir.Predicate, a, b Value, outcome bool) (Value, Value) {
	if !outcome {
		pred = pred.Inverse()
	}
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		if !ok || x.t.Width != y.t.Width || x.bottom || y.bottom {
			return a, b
		}
		return refineInt(pred, x, y)
	case Pointer:
		y, ok := b.(Pointer)
		if !ok {
			return a, b
		}
		return refinePointer(pred, x, y)
	case Bool:
		y, ok := b.(Bool)
		if !ok {
			return a, b
		}
		switch pred {
		case ir.IntEQ:
			m := x.meet(y)
			return m, m
		case ir.IntNE:
			if v, ok := y.Singleton(); ok {
				return x.meet(BoolConst(!v)), b
			}
			if v, ok := x.Singleton(); ok {
				return a, y.meet(BoolConst(!v))
			}
		}
	}
	return a, b
}

func refineInt(pred ir.Predicate, x, y Int) (Value, Value) {
	w := x.t.Width
	switch pred {
	case ir.IntEQ:
		m := x.meet(y)
		return m, m
	case ir.IntNE:
		return x.exclude(y), y.exclude(x)
	case ir.IntSLT:
		if y.hi == MinOf(w) || x.lo == MaxOf(w) {
			return IntBottom(x.t), IntBottom(y.t)
		}
		return x.meet(Int{t: x.t, lo: MinOf(w), hi: y.hi - 1}), y.meet(Int{t: y.t, lo: x.lo + 1, hi: MaxOf(w)})
	case ir.IntSLE:
		return x.meet(Int{t: x.t, lo: MinOf(w), hi: y.hi}), y.meet(Int{t: y.t, lo: x.lo, hi: MaxOf(w)})
	case ir.IntSGT:
		b, a := refineInt(ir.IntSLT, y, x)
		return a, b
	case ir.IntSGE:
		b, a := refineInt(ir.IntSLE, y, x)
		return a, b
	case ir.IntULT, ir.IntULE, ir.IntUGT, ir.IntUGE:
		if x.lo >= 0 && y.lo >= 0 {
			return refineInt(signedOf(pred), x, y)
		}
	}
	return x, y
}

// exclude removes the single value of o from the ends of i.
func (i Int) exclude(o Int) Int {
	v, ok := o.Singleton()
	if !ok || i.bottom {
		return i
	}
	switch {
	case i.lo == v && i.hi == v:
		return IntBottom(i.t)
	case i.lo == v:
		return Int{t: i.t, lo: v + 1, hi: i.hi}
	case i.hi == v:
		return Int{t: i.t, lo: i.lo, hi: v - 1}
	}
	return i
}

func refinePointer(pred ir.Predicate, x, y Pointer) (Value, Value) {
	switch pred {
	case ir.IntEQ:
		if y.IsNull() {
			if !x.MayBeNull() {
				return PointerBottom(), y
			}
			return NullPointer(), y
		}
		if x.IsNull() {
			if !y.MayBeNull() {
				return x, PointerBottom()
			}
			return x, NullPointer()
		}
		if x.top || y.top {
			return x, y
		}
		m := x.intersect(y)
		return m, m
	case ir.IntNE:
		if y.IsNull() {
			return x.WithoutNull(), y
		}
		if x.IsNull() {
			return x, y.WithoutNull()
		}
	}
	return x, y
}
