package lattice

import (
	"fmt"
	"strings"
)

// Array is a fixed-length sequence of element values. Smashed arrays keep
// one element standing for all cells.
type Array struct {
	t     *Type
	elems []Value
}

// NewArray builds an array of type t. Elements of a smashed array are
// joined into a single summary.
func NewArray(t *Type, elems []Value) Array {
	if t.cells() == 1 && len(elems) != 1 {
		var s Value
		for _, e := range elems {
			s = Join(s, e)
		}
		if s == nil {
			s = Bottom(t.Elem)
		}
		return Array{t: t, elems: []Value{s}}
	}
	return Array{t: t, elems: append([]Value(nil), elems...)}
}

func (a Array) Type() *Type { return a.t }

func (a Array) IsBottom() bool {
	for _, e := range a.elems {
		if !e.IsBottom() {
			return false
		}
	}
	return true
}

func (a Array) IsTop() bool {
	for _, e := range a.elems {
		if !e.IsTop() {
			return false
		}
	}
	return true
}

// Len is the number of stored cells; 1 for smashed arrays.
func (a Array) Len() int { return len(a.elems) }

// Elem returns the value of cell i. Smashed arrays return their summary.
func (a Array) Elem(i int) Value {
	if a.t.cells() == 1 {
		return a.elems[0]
	}
	return a.elems[i]
}

func (a Array) String() string {
	if a.t.Smashed {
		return fmt.Sprintf("[*: %s]", a.elems[0])
	}
	parts := make([]string, len(a.elems))
	for i, e := range a.elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (a Array) zip(b Array, fn func(Value, Value) Value) Value {
	elems := make([]Value, len(a.elems))
	for i := range a.elems {
		elems[i] = fn(a.elems[i], b.elems[i])
	}
	return Array{t: a.t, elems: elems}
}

func (a Array) all(b Array, pred func(Value, Value) bool) bool {
	for i := range a.elems {
		if !pred(a.elems[i], b.elems[i]) {
			return false
		}
	}
	return true
}

func (a Array) with(i int, v Value) Array {
	elems := append([]Value(nil), a.elems...)
	elems[i] = v
	return Array{t: a.t, elems: elems}
}

// Struct is a record of field values.
type Struct struct {
	t      *Type
	fields []Value
}

func NewStruct(t *Type, fields []Value) Struct {
	return Struct{t: t, fields: append([]Value(nil), fields...)}
}

func (s Struct) Type() *Type { return s.t }

func (s Struct) IsBottom() bool {
	for _, f := range s.fields {
		if !f.IsBottom() {
			return false
		}
	}
	return true
}

func (s Struct) IsTop() bool {
	for _, f := range s.fields {
		if !f.IsTop() {
			return false
		}
	}
	return true
}

func (s Struct) Field(i int) Value { return s.fields[i] }

func (s Struct) NumFields() int { return len(s.fields) }

func (s Struct) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s Struct) zip(o Struct, fn func(Value, Value) Value) Value {
	fields := make([]Value, len(s.fields))
	for i := range s.fields {
		fields[i] = fn(s.fields[i], o.fields[i])
	}
	return Struct{t: s.t, fields: fields}
}

func (s Struct) all(o Struct, pred func(Value, Value) bool) bool {
	for i := range s.fields {
		if !pred(s.fields[i], o.fields[i]) {
			return false
		}
	}
	return true
}

func (s Struct) with(i int, v Value) Struct {
	fields := append([]Value(nil), s.fields...)
	fields[i] = v
	return Struct{t: s.t, fields: fields}
}

// Opaque stands for values of a shape no domain models, and for the
// unknown shape produced by joining incompatible values.
type Opaque struct {
	t   *Type
	top bool
}

func (o Opaque) Type() *Type {
	if o.t == nil {
		return OpaqueType
	}
	return o.t
}

func (o Opaque) IsTop() bool    { return o.top }
func (o Opaque) IsBottom() bool { return !o.top }

func (o Opaque) String() string {
	if o.top {
		return "⊤"
	}
	return "⊥"
}

// cellRange clips an index interval to the cells of a. ok is false when
// no index of idx is in bounds.
func (a Array) cellRange(idx Int) (lo, hi int, ok bool) {
	if idx.IsBottom() {
		return 0, 0, false
	}
	if a.t.cells() == 1 {
		if a.t.Len >= 0 && (idx.hi < 0 || idx.lo >= int64(a.t.Len)) {
			return 0, 0, false
		}
		return 0, 0, true
	}
	l := max(idx.lo, 0)
	h := min(idx.hi, int64(len(a.elems)-1))
	if l > h {
		return 0, 0, false
	}
	return int(l), int(h), true
}

// Extract reads the cell of v addressed by path as a value of type want.
// Indices that are not exact read the join of every cell they may select.
func Extract(v Value, path []Int, want *Type) Value {
	if v == nil {
		return Bottom(want)
	}
	if len(path) == 0 {
		return reinterpret(v, want)
	}
	if v.IsBottom() && want != nil {
		return Bottom(want)
	}
	idx, rest := path[0], path[1:]
	switch x := v.(type) {
	case Array:
		lo, hi, ok := x.cellRange(idx)
		if !ok {
			return Top(want)
		}
		var r Value
		for i := lo; i <= hi; i++ {
			r = Join(r, Extract(x.Elem(i), rest, want))
		}
		return r
	case Struct:
		k, ok := idx.Singleton()
		if !ok || k < 0 || k >= int64(len(x.fields)) {
			return Top(want)
		}
		return Extract(x.fields[k], rest, want)
	}
	return Top(want)
}

// reinterpret reads v as a value of type want. Aggregates are read through
// their first cell, matching loads that address the start of an object.
func reinterpret(v Value, want *Type) Value {
	if want == nil || SameShape(v.Type(), want) {
		return v
	}
	if v.IsBottom() {
		return Bottom(want)
	}
	switch x := v.(type) {
	case Array:
		if len(x.elems) > 0 {
			return reinterpret(x.elems[0], want)
		}
	case Struct:
		if len(x.fields) > 0 {
			return reinterpret(x.fields[0], want)
		}
	}
	return Top(want)
}

// Update writes nv into the cell of v addressed by path. A strong update
// replaces the cell; a weak one joins into it. Cells selected by an inexact
// index are always updated weakly.
func Update(v Value, path []Int, nv Value, strong bool) Value {
	if len(path) == 0 {
		return overwrite(v, nv, strong)
	}
	idx, rest := path[0], path[1:]
	switch x := v.(type) {
	case Array:
		lo, hi, ok := x.cellRange(idx)
		if !ok {
			return x
		}
		_, exact := idx.Singleton()
		if x.t.cells() == 1 {
			return x.with(0, Update(x.elems[0], rest, nv, false))
		}
		if exact {
			return x.with(lo, Update(x.elems[lo], rest, nv, strong))
		}
		for i := lo; i <= hi; i++ {
			x = x.with(i, Update(x.elems[i], rest, nv, false))
		}
		return x
	case Struct:
		k, ok := idx.Singleton()
		if !ok || k < 0 || k >= int64(len(x.fields)) {
			return Top(x.t)
		}
		return x.with(int(k), Update(x.fields[k], rest, nv, strong))
	}
	return Top(v.Type())
}

func overwrite(old, nv Value, strong bool) Value {
	if old == nil {
		return nv
	}
	if SameShape(old.Type(), nv.Type()) {
		if strong {
			return nv
		}
		return Join(old, nv)
	}
	switch x := old.(type) {
	case Array:
		if len(x.elems) > 0 {
			return x.with(0, overwrite(x.elems[0], nv, strong && x.t.cells() > 1))
		}
	case Struct:
		if len(x.fields) > 0 {
			return x.with(0, overwrite(x.fields[0], nv, strong))
		}
	case Opaque:
		if !x.top && x.t == nil {
			return nv
		}
	}
	return Top(old.Type())
}
