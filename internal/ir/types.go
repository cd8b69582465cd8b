package ir

import (
	"fmt"
	"strings"
)

// TypeKind classifies the shape of an IR type.
type TypeKind int

const (
	VoidKind TypeKind = iota
	IntKind
	FloatKind
	PointerKind
	ArrayKind
	VectorKind
	StructKind
	FunctionKind
)

func (k TypeKind) String() string {
	switch k {
	case VoidKind:
		return "void"
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case PointerKind:
		return "pointer"
	case ArrayKind:
		return "array"
	case VectorKind:
		return "vector"
	case StructKind:
		return "struct"
	case FunctionKind:
		return "function"
	default:
		return "unknown"
	}
}

// Type describes the concrete type of an IR value.
//
// Pointer types may carry a nil Elem, in which case the pointer is opaque
// and the pointee type is taken from the instruction that uses it.
type Type struct {
	Kind     TypeKind
	Width    int     // bit width of Int and Float
	Elem     *Type   // Pointer, Array and Vector element
	Len      int     // Array and Vector length
	Fields   []*Type // Struct fields
	Params   []*Type // Function parameters
	Result   *Type   // Function result
	Variadic bool
	Name     string // named struct types
}

var (
	Void = &Type{Kind: VoidKind}
	I1   = Int(1)
	I8   = Int(8)
	I16  = Int(16)
	I32  = Int(32)
	I64  = Int(64)
	F32  = Float(32)
	F64  = Float(64)
	Ptr  = &Type{Kind: PointerKind}
)

func Int(width int) *Type { return &Type{Kind: IntKind, Width: width} }

func Float(width int) *Type { return &Type{Kind: FloatKind, Width: width} }

func PointerTo(elem *Type) *Type { return &Type{Kind: PointerKind, Elem: elem} }

func ArrayOf(elem *Type, n int) *Type { return &Type{Kind: ArrayKind, Elem: elem, Len: n} }

func VectorOf(elem *Type, n int) *Type { return &Type{Kind: VectorKind, Elem: elem, Len: n} }

func StructOf(fields ...*Type) *Type { return &Type{Kind: StructKind, Fields: fields} }

func FuncOf(result *Type, params ...*Type) *Type {
	if result == nil {
		result = Void
	}
	return &Type{Kind: FunctionKind, Result: result, Params: params}
}

func (t *Type) IsInt() bool     { return t != nil && t.Kind == IntKind }
func (t *Type) IsBool() bool    { return t != nil && t.Kind == IntKind && t.Width == 1 }
func (t *Type) IsFloat() bool   { return t != nil && t.Kind == FloatKind }
func (t *Type) IsPointer() bool { return t != nil && t.Kind == PointerKind }
func (t *Type) IsVoid() bool    { return t == nil || t.Kind == VoidKind }

// Identical reports whether a and b describe the same type.
// Named struct types compare by name so that recursive types terminate.
func Identical(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case VoidKind:
		return true
	case IntKind, FloatKind:
		return a.Width == b.Width
	case PointerKind:
		// pointers are compared by address space only
		return true
	case ArrayKind, VectorKind:
		return a.Len == b.Len && Identical(a.Elem, b.Elem)
	case StructKind:
		if a.Name != "" || b.Name != "" {
			return a.Name == b.Name
		}
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if !Identical(a.Fields[i], b.Fields[i]) {
				return false
			}
		}
		return true
	case FunctionKind:
		if a.Variadic != b.Variadic || len(a.Params) != len(b.Params) {
			return false
		}
		if !Identical(a.Result, b.Result) {
			return false
		}
		for i := range a.Params {
			if !Identical(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case VoidKind:
		return "void"
	case IntKind:
		return fmt.Sprintf("i%d", t.Width)
	case FloatKind:
		if t.Width == 32 {
			return "float"
		}
		return "double"
	case PointerKind:
		return "ptr"
	case ArrayKind:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	case VectorKind:
		return fmt.Sprintf("<%d x %s>", t.Len, t.Elem)
	case StructKind:
		if t.Name != "" {
			return "%" + t.Name
		}
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case FunctionKind:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		if t.Variadic {
			parts = append(parts, "...")
		}
		return fmt.Sprintf("%s (%s)", t.Result, strings.Join(parts, ", "))
	}
	return "?"
}

// Size returns the allocation size of t in bytes with natural alignment,
// or -1 when t has no size.
func (t *Type) Size() int {
	if t == nil {
		return -1
	}
	switch t.Kind {
	case IntKind:
		return scalarSize(t.Width)
	case FloatKind:
		return t.Width / 8
	case PointerKind:
		return 8
	case ArrayKind, VectorKind:
		es := t.Elem.Size()
		if es < 0 || t.Len < 0 {
			return -1
		}
		return es * t.Len
	case StructKind:
		off, align := 0, 1
		for _, f := range t.Fields {
			fs, fa := f.Size(), f.Align()
			if fs < 0 {
				return -1
			}
			off = alignTo(off, fa) + fs
			align = max(align, fa)
		}
		return alignTo(off, align)
	}
	return -1
}

// Align returns the natural alignment of t in bytes.
func (t *Type) Align() int {
	if t == nil {
		return 1
	}
	switch t.Kind {
	case IntKind, FloatKind, PointerKind:
		return min(max(t.Size(), 1), 8)
	case ArrayKind, VectorKind:
		return t.Elem.Align()
	case StructKind:
		align := 1
		for _, f := range t.Fields {
			align = max(align, f.Align())
		}
		return align
	}
	return 1
}

// scalarSize rounds a bit width up to a power-of-two number of bytes.
func scalarSize(width int) int {
	n := 1
	for n*8 < width {
		n *= 2
	}
	return n
}

func alignTo(off, align int) int {
	return (off + align - 1) / align * align
}
