package lattice

import (
	"fmt"
	"math"

	"github.com/gnolang/absint/internal/ir"
)

// Binary applies an arithmetic or bitwise operator. Both operands must
// have the same shape; vectors are processed lane by lane.
func Binary(op ir.Opcode, a, b Value) (Value, error) {
	if !SameShape(a.Type(), b.Type()) {
		return nil, fmt.Errorf("%w: %s %s, %s", ErrTypeMismatch, op, a.Type(), b.Type())
	}
	if a.IsBottom() || b.IsBottom() {
		if _, ok := a.(Struct); !ok {
			return Bottom(a.Type()), nil
		}
	}
	switch x := a.(type) {
	case Int:
		if !op.IsBinary() {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedOperation, op, x.t)
		}
		return x.binary(op, b.(Int)), nil
	case Bool:
		y := b.(Bool)
		switch op {
		case ir.OpAnd, ir.OpMul:
			return x.And(y), nil
		case ir.OpOr:
			return x.Or(y), nil
		case ir.OpXor, ir.OpAdd, ir.OpSub:
			return x.Xor(y), nil
		case ir.OpShl, ir.OpLShr, ir.OpAShr:
			// shifting an i1 by a non-zero amount is poison
			return x.lift(y, func(v, s bool) bool { return v && !s }), nil
		case ir.OpUDiv, ir.OpSDiv:
			return x, nil
		case ir.OpURem, ir.OpSRem:
			return False, nil
		}
		return nil, fmt.Errorf("%w: %s on bool", ErrUnsupportedOperation, op)
	case Float:
		if !op.IsFloatBinary() {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedOperation, op, x.t)
		}
		return x.binary(op, b.(Float)), nil
	case Array:
		if !x.t.Vector {
			return nil, fmt.Errorf("%w: %s on array", ErrUnsupportedOperation, op)
		}
		return lanes(x, b.(Array), func(p, q Value) (Value, error) { return Binary(op, p, q) })
	case Opaque:
		return Opaque{t: x.t, top: true}, nil
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedOperation, op, a.Type().Kind)
}

func lanes(a, b Array, fn func(p, q Value) (Value, error)) (Value, error) {
	elems := make([]Value, len(a.elems))
	var rt *Type
	for i := range a.elems {
		r, err := fn(a.elems[i], b.elems[i])
		if err != nil {
			return nil, err
		}
		elems[i] = r
		rt = r.Type()
	}
	if rt == nil {
		rt = a.t.Elem
	}
	return Array{t: VectorType(rt, a.t.Len), elems: elems}, nil
}

// FNeg negates a float or a vector of floats.
func FNeg(a Value) (Value, error) {
	switch x := a.(type) {
	case Float:
		return x.neg(), nil
	case Array:
		return lanes(x, x, func(p, _ Value) (Value, error) { return FNeg(p) })
	}
	return nil, fmt.Errorf("%w: fneg on %s", ErrTypeMismatch, a.Type())
}

// ICmp compares integers, booleans or pointers.
func ICmp(pred ir.Predicate, a, b Value) (Value, error) {
	if !SameShape(a.Type(), b.Type()) {
		return nil, fmt.Errorf("%w: icmp %s %s, %s", ErrTypeMismatch, pred, a.Type(), b.Type())
	}
	if x, ok := a.(Array); ok && x.t.Vector {
		return lanes(x, b.(Array), func(p, q Value) (Value, error) { return ICmp(pred, p, q) })
	}
	if a.IsBottom() || b.IsBottom() {
		return BoolBottom, nil
	}
	switch x := a.(type) {
	case Int:
		return x.cmp(pred, b.(Int)), nil
	case Bool:
		y := b.(Bool)
		switch pred {
		case ir.IntEQ:
			return x.lift(y, func(p, q bool) bool { return p == q }), nil
		case ir.IntNE:
			return x.lift(y, func(p, q bool) bool { return p != q }), nil
		case ir.IntULT, ir.IntSGT:
			// unsigned true is 1, signed true is -1
			return x.lift(y, func(p, q bool) bool { return !p && q }), nil
		case ir.IntULE, ir.IntSGE:
			return x.lift(y, func(p, q bool) bool { return !p || q }), nil
		case ir.IntUGT, ir.IntSLT:
			return x.lift(y, func(p, q bool) bool { return p && !q }), nil
		case ir.IntUGE, ir.IntSLE:
			return x.lift(y, func(p, q bool) bool { return p || !q }), nil
		}
	case Pointer:
		return x.cmp(pred, b.(Pointer)), nil
	case Opaque:
		return BoolTop, nil
	}
	return nil, fmt.Errorf("%w: icmp on %s", ErrUnsupportedOperation, a.Type().Kind)
}

func (p Pointer) cmp(pred ir.Predicate, o Pointer) Bool {
	var eq Bool
	switch {
	case p.top || o.top:
		eq = BoolTop
	case p.IsNull() && o.IsNull():
		eq = True
	default:
		if p.null && o.null {
			eq = eq.join(True)
		}
		// pointers into distinct objects never compare equal
		shared := false
		for _, a := range p.targets {
			for _, b := range o.targets {
				if a.Loc == b.Loc {
					shared = true
				}
			}
		}
		if shared {
			eq = BoolTop
		} else {
			eq = eq.join(False)
		}
		if len(p.targets) == 1 && len(o.targets) == 1 && !p.null && !o.null &&
			p.targets[0].equal(o.targets[0]) && p.targets[0].Exact() && !p.targets[0].Loc.Summary {
			eq = True
		}
	}
	switch pred {
	case ir.IntEQ:
		return eq
	case ir.IntNE:
		return eq.Not()
	}
	return BoolTop
}

// FCmp compares floats.
func FCmp(pred ir.Predicate, a, b Value) (Value, error) {
	if !SameShape(a.Type(), b.Type()) {
		return nil, fmt.Errorf("%w: fcmp %s %s, %s", ErrTypeMismatch, pred, a.Type(), b.Type())
	}
	if x, ok := a.(Array); ok && x.t.Vector {
		return lanes(x, b.(Array), func(p, q Value) (Value, error) { return FCmp(pred, p, q) })
	}
	if a.IsBottom() || b.IsBottom() {
		return BoolBottom, nil
	}
	x, ok := a.(Float)
	if !ok {
		return nil, fmt.Errorf("%w: fcmp on %s", ErrUnsupportedOperation, a.Type().Kind)
	}
	return x.cmp(pred, b.(Float)), nil
}

// Select picks between a and b on cond.
func Select(cond, a, b Value) (Value, error) {
	c, ok := cond.(Bool)
	if !ok {
		if arr, isArr := cond.(Array); isArr && arr.t.Vector {
			av, aok := a.(Array)
			bv, bok := b.(Array)
			if !aok || !bok || len(av.elems) != len(arr.elems) || len(bv.elems) != len(arr.elems) {
				return nil, fmt.Errorf("%w: vector select", ErrTypeMismatch)
			}
			elems := make([]Value, len(arr.elems))
			for i := range elems {
				r, err := Select(arr.elems[i], av.elems[i], bv.elems[i])
				if err != nil {
					return nil, err
				}
				elems[i] = r
			}
			return Array{t: av.t, elems: elems}, nil
		}
		return nil, fmt.Errorf("%w: select condition of %s", ErrTypeMismatch, cond.Type())
	}
	switch {
	case c.IsBottom():
		return Bottom(a.Type()), nil
	case c == True:
		return a, nil
	case c == False:
		return b, nil
	}
	return Join(a, b), nil
}

// Cast converts v to type to. Conversions between unrelated kinds give top.
func Cast(op ir.Opcode, v Value, to *Type) (Value, error) {
	if v.IsBottom() {
		return Bottom(to), nil
	}
	if x, ok := v.(Array); ok && x.t.Vector && to.Kind == ArrayKind && to.Len == x.t.Len && op != ir.OpBitCast {
		elems := make([]Value, len(x.elems))
		for i, e := range x.elems {
			r, err := Cast(op, e, to.Elem)
			if err != nil {
				return nil, err
			}
			elems[i] = r
		}
		return Array{t: to, elems: elems}, nil
	}
	switch op {
	case ir.OpTrunc:
		return truncate(v, to), nil
	case ir.OpZExt:
		return extend(v, to, false), nil
	case ir.OpSExt:
		return extend(v, to, true), nil
	case ir.OpSIToFP, ir.OpUIToFP:
		return intToFloat(v, to, op == ir.OpUIToFP), nil
	case ir.OpFPToSI, ir.OpFPToUI:
		return floatToInt(v, to, op == ir.OpFPToUI), nil
	case ir.OpFPTrunc, ir.OpFPExt:
		f, ok := v.(Float)
		if !ok || to.Kind != FloatKind {
			return Top(to), nil
		}
		f.t = to
		return f.roundOut(), nil
	case ir.OpPtrToInt:
		if p, ok := v.(Pointer); ok && p.IsNull() {
			return constOf(to, 0), nil
		}
		return Top(to), nil
	case ir.OpIntToPtr:
		if i, ok := v.(Int); ok {
			if k, single := i.Singleton(); single && k == 0 {
				return NullPointer(), nil
			}
		}
		if b, ok := v.(Bool); ok && b == False {
			return NullPointer(), nil
		}
		return PointerTop(), nil
	case ir.OpBitCast:
		if SameShape(v.Type(), to) {
			return v, nil
		}
		return Top(to), nil
	}
	if _, ok := v.(Struct); ok {
		return nil, fmt.Errorf("%w: %s on struct", ErrUnsupportedOperation, op)
	}
	return nil, fmt.Errorf("%w: cast %s", ErrUnsupportedOperation, op)
}

func constOf(t *Type, v int64) Value {
	if t.Kind == BoolKind {
		return BoolConst(v&1 == 1)
	}
	if t.Kind == IntKind {
		return IntConst(t, v)
	}
	return Top(t)
}

func truncate(v Value, to *Type) Value {
	switch x := v.(type) {
	case Int:
		if to.Kind == BoolKind {
			if k, ok := x.Singleton(); ok {
				return BoolConst(k&1 == 1)
			}
			return BoolTop
		}
		if to.Kind != IntKind {
			return Top(to)
		}
		if x.lo >= MinOf(to.Width) && x.hi <= MaxOf(to.Width) {
			return Int{t: to, lo: x.lo, hi: x.hi}
		}
		if k, ok := x.Singleton(); ok {
			return IntConst(to, k)
		}
		// a range narrower than the target keeps its shape if it does not straddle a wrap point
		if uint64(x.hi)-uint64(x.lo) < uint64(1)<<uint(min(to.Width, 63)) {
			lo, hi := wrap(x.lo, to.Width), wrap(x.hi, to.Width)
			if lo <= hi {
				return Int{t: to, lo: lo, hi: hi}
			}
		}
		return IntTop(to)
	case Bool:
		if to.Kind == BoolKind {
			return x
		}
	}
	return Top(to)
}

func extend(v Value, to *Type, signed bool) Value {
	switch x := v.(type) {
	case Bool:
		if to.Kind != IntKind {
			return Top(to)
		}
		one := int64(1)
		if signed {
			one = -1
		}
		switch {
		case x == True:
			return IntConst(to, one)
		case x == False:
			return IntConst(to, 0)
		}
		return IntRange(to, min(0, one), max(0, one))
	case Int:
		if to.Kind != IntKind {
			return Top(to)
		}
		if signed || x.lo >= 0 {
			return Int{t: to, lo: x.lo, hi: x.hi}
		}
		if k, ok := x.Singleton(); ok {
			return IntConst(to, int64(x.unsigned(k)))
		}
		if x.hi < 0 {
			return Int{t: to, lo: int64(x.unsigned(x.lo)), hi: int64(x.unsigned(x.hi))}
		}
		return IntRange(to, 0, int64(x.unsigned(-1)))
	}
	return Top(to)
}

func intToFloat(v Value, to *Type, unsigned bool) Value {
	if to.Kind != FloatKind {
		return Top(to)
	}
	switch x := v.(type) {
	case Bool:
		lo, hi := 0.0, 1.0
		if !unsigned {
			lo, hi = -1, 0
		}
		switch {
		case x == True && unsigned:
			return FloatConst(to, 1)
		case x == True:
			return FloatConst(to, -1)
		case x == False:
			return FloatConst(to, 0)
		}
		return FloatRange(to, lo, hi)
	case Int:
		lo, hi := x.lo, x.hi
		if unsigned && lo < 0 {
			if hi < 0 {
				return Float{t: to, lo: float64(x.unsigned(lo)), hi: float64(x.unsigned(hi))}.roundOut()
			}
			return Float{t: to, lo: 0, hi: float64(x.unsigned(-1))}.roundOut()
		}
		return Float{t: to, lo: float64(lo), hi: float64(hi)}.roundOut()
	}
	return Top(to)
}

func floatToInt(v Value, to *Type, unsigned bool) Value {
	f, ok := v.(Float)
	if !ok || f.nan || f.empty {
		return Top(to)
	}
	lo, hi := math.Trunc(f.lo), math.Trunc(f.hi)
	if to.Kind == BoolKind {
		switch {
		case lo == 0 && hi == 0:
			return False
		case lo == 1 && hi == 1 && unsigned, lo == -1 && hi == -1 && !unsigned:
			return True
		}
		return BoolTop
	}
	if to.Kind != IntKind {
		return Top(to)
	}
	minV, maxV := float64(MinOf(to.Width)), float64(MaxOf(to.Width))
	if unsigned {
		minV = 0
	}
	// out of range conversions are poison
	if lo < minV || hi >= maxV {
		return IntTop(to)
	}
	return IntRange(to, int64(lo), int64(hi))
}

// ExtractValue reads an aggregate member at a constant index path.
func ExtractValue(agg Value, indices []int, want *Type) (Value, error) {
	if err := checkAggregate(agg); err != nil {
		return nil, err
	}
	return Extract(agg, constPath(indices), want), nil
}

// InsertValue replaces an aggregate member at a constant index path.
func InsertValue(agg, v Value, indices []int) (Value, error) {
	if err := checkAggregate(agg); err != nil {
		return nil, err
	}
	return Update(agg, constPath(indices), v, true), nil
}

func checkAggregate(v Value) error {
	switch v.(type) {
	case Array, Struct, Opaque:
		return nil
	}
	return fmt.Errorf("%w: aggregate access on %s", ErrTypeMismatch, v.Type())
}

func constPath(indices []int) []Int {
	path := make([]Int, len(indices))
	for i, k := range indices {
		path[i] = IntConst(IndexType, int64(k))
	}
	return path
}

// ExtractElement reads a vector lane at a possibly inexact index.
func ExtractElement(vec, idx Value, want *Type) (Value, error) {
	arr, ok := vec.(Array)
	if !ok {
		return nil, fmt.Errorf("%w: extractelement on %s", ErrTypeMismatch, vec.Type())
	}
	i, ok := toIndex(idx)
	if !ok {
		return Top(want), nil
	}
	return Extract(arr, []Int{i}, want), nil
}

// InsertElement writes a vector lane; an inexact index updates weakly.
func InsertElement(vec, elt, idx Value) (Value, error) {
	arr, ok := vec.(Array)
	if !ok {
		return nil, fmt.Errorf("%w: insertelement on %s", ErrTypeMismatch, vec.Type())
	}
	i, ok := toIndex(idx)
	if !ok {
		return Top(arr.t), nil
	}
	return Update(arr, []Int{i}, elt, true), nil
}

// Shuffle builds a vector from lanes of a and b. Mask entries index the
// concatenation of a and b; -1 selects an undefined lane. The caller
// validates the mask against the operand length.
func Shuffle(a, b Value, mask []int, to *Type) (Value, error) {
	x, ok := a.(Array)
	y, ok2 := b.(Array)
	if !ok || !ok2 {
		return nil, fmt.Errorf("%w: shufflevector on %s", ErrTypeMismatch, a.Type())
	}
	n := x.t.Len
	if y.t.Len != n {
		return nil, fmt.Errorf("%w: shufflevector of %d and %d lanes", ErrTypeMismatch, n, y.t.Len)
	}
	elems := make([]Value, len(mask))
	for i, m := range mask {
		switch {
		case m >= 2*n:
			return nil, fmt.Errorf("%w: shuffle lane %d of %d", ErrTypeMismatch, m, 2*n)
		case m < 0:
			elems[i] = Top(to.Elem)
		case m < n:
			elems[i] = x.Elem(m)
		default:
			elems[i] = y.Elem(m - n)
		}
	}
	return Array{t: to, elems: elems}, nil
}
