package lattice

import "errors"

var (
	// ErrTypeMismatch is returned when operands have incompatible kinds or widths.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnsupportedOperation is returned for operations meaningless on a kind,
	// such as arithmetic on a struct.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Value is an immutable abstract value. Operations never modify their
// operands; they return new values.
type Value interface {
	Type() *Type
	IsTop() bool
	IsBottom() bool
	String() string
}

// Top returns the value describing every concrete value of t.
func Top(t *Type) Value {
	return extreme(t, true)
}

// Bottom returns the value describing no concrete value of t.
func Bottom(t *Type) Value {
	return extreme(t, false)
}

func extreme(t *Type, top bool) Value {
	if t == nil {
		return Opaque{top: top}
	}
	switch t.Kind {
	case BoolKind:
		if top {
			return BoolTop
		}
		return BoolBottom
	case IntKind:
		if top {
			return IntTop(t)
		}
		return IntBottom(t)
	case FloatKind:
		if top {
			return FloatTop(t)
		}
		return FloatBottom(t)
	case PointerKind:
		if top {
			return PointerTop()
		}
		return PointerBottom()
	case ArrayKind:
		elems := make([]Value, t.cells())
		for i := range elems {
			elems[i] = extreme(t.Elem, top)
		}
		return Array{t: t, elems: elems}
	case StructKind:
		fields := make([]Value, len(t.Fields))
		for i, ft := range t.Fields {
			fields[i] = extreme(ft, top)
		}
		return Struct{t: t, fields: fields}
	}
	return Opaque{t: t, top: top}
}

// Join returns the least upper bound of a and b. Values of different
// shapes join to an opaque top.
func Join(a, b Value) Value {
	if a == nil {
		return b
	}
	if b == nil || b.IsBottom() {
		return a
	}
	if a.IsBottom() {
		return b
	}
	switch x := a.(type) {
	case Bool:
		if y, ok := b.(Bool); ok {
			return x.join(y)
		}
	case Int:
		if y, ok := b.(Int); ok && x.t.Width == y.t.Width {
			return x.join(y)
		}
	case Float:
		if y, ok := b.(Float); ok && x.t.Width == y.t.Width {
			return x.join(y)
		}
	case Pointer:
		if y, ok := b.(Pointer); ok {
			return x.merge(y, Join)
		}
	case Array:
		if y, ok := b.(Array); ok && SameShape(x.t, y.t) {
			return x.zip(y, Join)
		}
	case Struct:
		if y, ok := b.(Struct); ok && SameShape(x.t, y.t) {
			return x.zip(y, Join)
		}
	case Opaque:
		if y, ok := b.(Opaque); ok {
			return Opaque{t: x.t, top: x.top || y.top}
		}
	}
	return Opaque{top: true}
}

// Meet returns the greatest lower bound of a and b.
func Meet(a, b Value) Value {
	if a == nil || b == nil {
		return nil
	}
	if a.IsBottom() {
		return a
	}
	if b.IsBottom() {
		return b
	}
	if b.IsTop() {
		return a
	}
	if a.IsTop() {
		return b
	}
	switch x := a.(type) {
	case Bool:
		if y, ok := b.(Bool); ok {
			return x.meet(y)
		}
	case Int:
		if y, ok := b.(Int); ok && x.t.Width == y.t.Width {
			return x.meet(y)
		}
	case Float:
		if y, ok := b.(Float); ok && x.t.Width == y.t.Width {
			return x.meet(y)
		}
	case Pointer:
		if y, ok := b.(Pointer); ok {
			return x.intersect(y)
		}
	case Array:
		if y, ok := b.(Array); ok && SameShape(x.t, y.t) {
			return x.zip(y, Meet)
		}
	case Struct:
		if y, ok := b.(Struct); ok && SameShape(x.t, y.t) {
			return x.zip(y, Meet)
		}
	case Opaque:
		if y, ok := b.(Opaque); ok {
			return Opaque{t: x.t, top: x.top && y.top}
		}
	}
	return Opaque{}
}

// Widen extrapolates the sequence old, next so that ascending chains
// stabilize. next is expected to be at least old.
func Widen(old, next Value) Value {
	if old == nil || old.IsBottom() {
		return next
	}
	if next == nil || next.IsBottom() {
		return old
	}
	switch x := old.(type) {
	case Int:
		if y, ok := next.(Int); ok && x.t.Width == y.t.Width {
			return x.widen(y)
		}
	case Float:
		if y, ok := next.(Float); ok && x.t.Width == y.t.Width {
			return x.widen(y)
		}
	case Pointer:
		if y, ok := next.(Pointer); ok {
			return x.merge(y, Widen)
		}
	case Array:
		if y, ok := next.(Array); ok && SameShape(x.t, y.t) {
			return x.zip(y, Widen)
		}
	case Struct:
		if y, ok := next.(Struct); ok && SameShape(x.t, y.t) {
			return x.zip(y, Widen)
		}
	}
	// finite height domains
	return Join(old, next)
}

// Leq reports whether a approximates b, that is every concrete value
// described by a is also described by b.
func Leq(a, b Value) bool {
	if a == nil || a.IsBottom() {
		return true
	}
	if b == nil {
		return false
	}
	if b.IsTop() && (sameKind(a, b) || isOpaque(b)) {
		return true
	}
	if b.IsBottom() {
		return false
	}
	switch x := a.(type) {
	case Bool:
		if y, ok := b.(Bool); ok {
			return x.leq(y)
		}
	case Int:
		if y, ok := b.(Int); ok && x.t.Width == y.t.Width {
			return x.leq(y)
		}
	case Float:
		if y, ok := b.(Float); ok && x.t.Width == y.t.Width {
			return x.leq(y)
		}
	case Pointer:
		if y, ok := b.(Pointer); ok {
			return x.leq(y)
		}
	case Array:
		if y, ok := b.(Array); ok && SameShape(x.t, y.t) {
			return x.all(y, Leq)
		}
	case Struct:
		if y, ok := b.(Struct); ok && SameShape(x.t, y.t) {
			return x.all(y, Leq)
		}
	case Opaque:
		// only the shapeless top lies above a shapeless top
		y, ok := b.(Opaque)
		return ok && y.top
	}
	return false
}

// Equal reports whether a and b describe the same set of concrete values.
func Equal(a, b Value) bool {
	aBot := a == nil || a.IsBottom()
	bBot := b == nil || b.IsBottom()
	if aBot || bBot {
		return aBot == bBot
	}
	switch x := a.(type) {
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x.t.Width == y.t.Width && x.lo == y.lo && x.hi == y.hi
	case Float:
		y, ok := b.(Float)
		return ok && x.t.Width == y.t.Width && x.equal(y)
	case Pointer:
		y, ok := b.(Pointer)
		return ok && x.equal(y)
	case Array:
		y, ok := b.(Array)
		return ok && SameShape(x.t, y.t) && x.all(y, Equal)
	case Struct:
		y, ok := b.(Struct)
		return ok && SameShape(x.t, y.t) && x.all(y, Equal)
	case Opaque:
		y, ok := b.(Opaque)
		return ok && x.top == y.top
	}
	return false
}

func sameKind(a, b Value) bool {
	return a.Type() != nil && b.Type() != nil && a.Type().Kind == b.Type().Kind
}

func isOpaque(v Value) bool {
	_, ok := v.(Opaque)
	return ok
}
