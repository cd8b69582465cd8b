// Package factory maps IR types and constants into the abstract domains
// and holds the operator semantics shared by constant folding and the
// instruction visitor.
package factory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/ir"
)

var (
	// ErrUnreachableConstant is returned for a constant expression whose
	// opcode may not appear in a constant.
	ErrUnreachableConstant = errors.New("unreachable constant")
	// ErrLogic is returned when an operation violates an invariant of the
	// IR type system, such as a shuffle mask selecting a missing lane.
	ErrLogic = errors.New("logic error")
)

// Resolver produces the address of globals and functions used as constants.
type Resolver interface {
	Address(c ir.Constant) (lattice.Value, error)
}

// Factory translates IR types into domain descriptors. Translations are
// memoized per IR type.
type Factory struct {
	mu    sync.Mutex
	types map[*ir.Type]*lattice.Type

	// MaxArrayElements bounds the arrays kept cell by cell; longer arrays
	// are summarized by one element.
	MaxArrayElements int
}

func New(maxArrayElements int) *Factory {
	return &Factory{
		types:            make(map[*ir.Type]*lattice.Type),
		MaxArrayElements: maxArrayElements,
	}
}

// Type returns the domain descriptor of t. Shapes without a dedicated
// domain map to an opaque descriptor.
func (f *Factory) Type(t *ir.Type) *lattice.Type {
	if t == nil {
		return lattice.OpaqueType
	}
	f.mu.Lock()
	lt, ok := f.types[t]
	f.mu.Unlock()
	if ok {
		return lt
	}
	lt = f.translate(t)
	f.mu.Lock()
	f.types[t] = lt
	f.mu.Unlock()
	return lt
}

func (f *Factory) translate(t *ir.Type) *lattice.Type {
	switch t.Kind {
	case ir.IntKind:
		switch {
		case t.Width == 1:
			return lattice.BoolType
		case t.Width > 1 && t.Width <= 64:
			return lattice.IntType(t.Width)
		}
	case ir.FloatKind:
		if t.Width == 32 {
			return lattice.FloatType(32)
		}
		return lattice.FloatType(64)
	case ir.PointerKind:
		return lattice.PointerType
	case ir.ArrayKind:
		return lattice.ArrayType(f.Type(t.Elem), t.Len, f.MaxArrayElements)
	case ir.VectorKind:
		return lattice.VectorType(f.Type(t.Elem), t.Len)
	case ir.StructKind:
		fields := make([]*lattice.Type, len(t.Fields))
		for i, ft := range t.Fields {
			fields[i] = f.Type(ft)
		}
		return lattice.StructType(fields...)
	}
	return &lattice.Type{Kind: lattice.OpaqueKind, Width: t.Width}
}

// Get returns a fresh bottom value shaped like t.
func (f *Factory) Get(t *ir.Type) lattice.Value {
	return lattice.Bottom(f.Type(t))
}

// Top returns the value describing every concrete value of t.
func (f *Factory) Top(t *ir.Type) lattice.Value {
	return lattice.Top(f.Type(t))
}

// Zero returns the exact abstraction of the all-zero value of t.
func (f *Factory) Zero(t *ir.Type) lattice.Value {
	return zero(f.Type(t))
}

// ZeroOf is Zero for a domain descriptor.
func (f *Factory) ZeroOf(t *lattice.Type) lattice.Value {
	return zero(t)
}

func zero(t *lattice.Type) lattice.Value {
	switch t.Kind {
	case lattice.BoolKind:
		return lattice.False
	case lattice.IntKind:
		return lattice.IntConst(t, 0)
	case lattice.FloatKind:
		return lattice.FloatConst(t, 0)
	case lattice.PointerKind:
		return lattice.NullPointer()
	case lattice.ArrayKind:
		n := t.Len
		if t.Smashed || n < 0 {
			n = 1
		}
		elems := make([]lattice.Value, n)
		for i := range elems {
			elems[i] = zero(t.Elem)
		}
		return lattice.NewArray(t, elems)
	case lattice.StructKind:
		fields := make([]lattice.Value, len(t.Fields))
		for i, ft := range t.Fields {
			fields[i] = zero(ft)
		}
		return lattice.NewStruct(t, fields)
	}
	return lattice.Top(t)
}

// Constant returns the exact abstraction of c. Addresses of globals and
// functions are obtained from r; a nil r makes them unknown pointers.
func (f *Factory) Constant(c ir.Constant, r Resolver) (lattice.Value, error) {
	switch c := c.(type) {
	case *ir.ConstInt:
		lt := f.Type(c.Typ)
		switch lt.Kind {
		case lattice.BoolKind:
			return lattice.BoolConst(c.V&1 == 1), nil
		case lattice.IntKind:
			return lattice.IntConst(lt, c.V), nil
		}
		return lattice.Top(lt), nil
	case *ir.ConstFloat:
		lt := f.Type(c.Typ)
		return lattice.FloatConst(lt, c.V), nil
	case *ir.ConstNull:
		return lattice.NullPointer(), nil
	case *ir.ConstZero:
		return f.Zero(c.Typ), nil
	case *ir.Undef:
		return f.Get(c.Typ), nil
	case *ir.ConstAggregate:
		lt := f.Type(c.Typ)
		elems := make([]lattice.Value, len(c.Elems))
		for i, e := range c.Elems {
			v, err := f.Constant(e, r)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		switch lt.Kind {
		case lattice.ArrayKind:
			return lattice.NewArray(lt, elems), nil
		case lattice.StructKind:
			return lattice.NewStruct(lt, elems), nil
		}
		return lattice.Top(lt), nil
	case *ir.Global, *ir.Function:
		if r == nil {
			return lattice.PointerTop(), nil
		}
		return r.Address(c)
	case *ir.ConstExpr:
		if !c.Op.IsConstantExpr() {
			return nil, fmt.Errorf("%w: %s", ErrUnreachableConstant, c.Op)
		}
		args := make([]lattice.Value, len(c.Operands))
		for i, o := range c.Operands {
			v, err := f.Constant(o, r)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return f.Apply(Operation{
			Op:      c.Op,
			Pred:    c.Pred,
			Result:  c.Typ,
			Source:  c.Source,
			Indices: c.Indices,
			Mask:    c.Mask,
		}, args)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnreachableConstant, c)
}
