package lattice

import (
	"fmt"
	"strings"
)

// Kind is the shape of an abstract value.
type Kind int

const (
	OpaqueKind Kind = iota
	BoolKind
	IntKind
	FloatKind
	PointerKind
	ArrayKind
	StructKind
)

func (k Kind) String() string {
	switch k {
	case BoolKind:
		return "bool"
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case PointerKind:
		return "pointer"
	case ArrayKind:
		return "array"
	case StructKind:
		return "struct"
	default:
		return "opaque"
	}
}

// Type is the domain-level descriptor of a concrete type.
//
// Arrays whose Smashed flag is set keep a single element summarizing every
// cell; Len is -1 when the length is unknown.
type Type struct {
	Kind    Kind
	Width   int
	Elem    *Type
	Len     int
	Smashed bool
	Vector  bool
	Fields  []*Type
}

var (
	BoolType    = &Type{Kind: BoolKind, Width: 1}
	PointerType = &Type{Kind: PointerKind}
	OpaqueType  = &Type{Kind: OpaqueKind}
	IndexType   = IntType(64)
)

func IntType(width int) *Type { return &Type{Kind: IntKind, Width: width} }

func FloatType(width int) *Type { return &Type{Kind: FloatKind, Width: width} }

// ArrayType describes an array of n elements. Arrays longer than maxElems,
// or of unknown length, are smashed.
func ArrayType(elem *Type, n int, maxElems int) *Type {
	return &Type{
		Kind:    ArrayKind,
		Elem:    elem,
		Len:     n,
		Smashed: n < 0 || (maxElems > 0 && n > maxElems),
	}
}

func VectorType(elem *Type, n int) *Type {
	return &Type{Kind: ArrayKind, Elem: elem, Len: n, Vector: true}
}

func StructType(fields ...*Type) *Type { return &Type{Kind: StructKind, Fields: fields} }

// cells is the number of element slots an array value stores.
func (t *Type) cells() int {
	if t.Smashed || t.Len < 0 {
		return 1
	}
	return t.Len
}

// SameShape reports whether values of a and b are comparable point-wise.
func SameShape(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case IntKind, FloatKind:
		return a.Width == b.Width
	case ArrayKind:
		return a.Len == b.Len && a.Smashed == b.Smashed && SameShape(a.Elem, b.Elem)
	case StructKind:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if !SameShape(a.Fields[i], b.Fields[i]) {
				return false
			}
		}
	}
	return true
}

func (t *Type) String() string {
	if t == nil {
		return "?"
	}
	switch t.Kind {
	case BoolKind:
		return "bool"
	case IntKind:
		return fmt.Sprintf("i%d", t.Width)
	case FloatKind:
		return fmt.Sprintf("f%d", t.Width)
	case PointerKind:
		return "ptr"
	case ArrayKind:
		if t.Vector {
			return fmt.Sprintf("<%d x %s>", t.Len, t.Elem)
		}
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	case StructKind:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "opaque"
}
