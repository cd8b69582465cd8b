package interp

import (
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// Call is one invocation of an intrinsic.
type Call struct {
	Inst *ir.Instruction
	Args []lattice.Value
	// State is the caller state; intrinsics may update its memory.
	State *state.State
	// NoReturn is set by intrinsics after which execution cannot continue.
	NoReturn bool

	in *Interpreter
}

// Context returns the analysis context of the call.
func (c *Call) Context() *Context { return c.in.ctx }

// Assume restricts the state to executions where the i-th argument is
// true. It sets NoReturn when no such execution exists.
func (c *Call) Assume(i int) {
	cond, ok := c.Args[i].(lattice.Bool)
	if !ok {
		return
	}
	if !cond.CanBeTrue() {
		c.NoReturn = true
		return
	}
	if !c.in.refine(c.State, c.Inst.Args()[i], true, c.Inst) {
		c.NoReturn = true
	}
}

// Intrinsic models the effect of a declared function.
type Intrinsic func(c *Call) (lattice.Value, error)

// Names of the analyzer intrinsics.
const (
	AssertIntrinsic = "absint.assert"
	AssumeIntrinsic = "absint.assume"
	NondetIntrinsic = "absint.nondet"
)

// DefaultIntrinsics returns the built-in models: allocation, analyzer
// hooks and process termination.
func DefaultIntrinsics() map[string]Intrinsic {
	return map[string]Intrinsic{
		"malloc":        allocate(false),
		"calloc":        allocate(true),
		"free":          free,
		"abort":         exit,
		"exit":          exit,
		AssertIntrinsic: assume,
		AssumeIntrinsic: assume,
		NondetIntrinsic: nondet,
	}
}

// allocate models malloc and calloc. Every call site owns one heap
// location. A site whose size is a constant multiple of the type it is
// first accessed as holds an array of that type; any other site is a
// single untyped cell whose shape follows the stores into it.
func allocate(zeroed bool) Intrinsic {
	return func(c *Call) (lattice.Value, error) {
		ctx := c.Context()
		fn := c.Inst.Parent()
		loc := ctx.site(c.Inst, func() lattice.Location {
			l := lattice.Location{
				Name:    "heap." + fn.Name + "." + c.Inst.Name,
				Kind:    lattice.HeapLocation,
				Count:   -1,
				Summary: ctx.Graph(fn).InLoop(c.Inst.Block) || !ctx.singleInstance(fn),
			}
			if elem, n := heapShape(c.Inst, zeroed); n > 0 {
				l.Content = ctx.Factory.Type(ir.ArrayOf(elem, n))
				l.Count = 1
			}
			return l
		})

		switch {
		case loc.Content == nil && zeroed:
			// the zero pattern of an unknown shape has no exact abstraction
			c.State.Havoc(loc)
		case zeroed && loc.Summary:
			c.State.SetMemory(loc, lattice.Join(c.State.Memory(loc), ctx.Factory.ZeroOf(loc.Content)))
		case zeroed:
			c.State.SetMemory(loc, ctx.Factory.ZeroOf(loc.Content))
		case !loc.Summary || c.State.Memory(loc) == nil:
			// a fresh object is uninitialized; keeping the entry lets
			// stores through unknown pointers reach it
			c.State.SetMemory(loc, lattice.Bottom(loc.Content))
		}
		if loc.Content == nil {
			return lattice.PointerTo(loc), nil
		}
		first := lattice.IntConst(lattice.IndexType, 0)
		return lattice.NewPointer(false, lattice.Target{Loc: loc, Path: []lattice.Int{first, first}}), nil
	}
}

// heapShape returns the element type and count of the allocation made by
// call, or a zero count when the size is not a constant multiple of the
// type the result is first accessed as in the allocating function.
func heapShape(call *ir.Instruction, zeroed bool) (*ir.Type, int) {
	args := call.Args()
	bytes := int64(1)
	want := 1
	if zeroed {
		want = 2
	}
	if len(args) < want {
		return nil, 0
	}
	for _, a := range args[:want] {
		k, ok := a.(*ir.ConstInt)
		if !ok || k.V <= 0 {
			return nil, 0
		}
		bytes *= k.V
	}
	elem := accessType(call)
	size := elem.Size()
	if size <= 0 || bytes%int64(size) != 0 {
		return nil, 0
	}
	return elem, int(bytes / int64(size))
}

// accessType returns the type through which ptr is first accessed
// directly by a load, a store or a getelementptr, or nil.
func accessType(ptr *ir.Instruction) *ir.Type {
	var t *ir.Type
	ptr.Parent().Instructions(func(inst *ir.Instruction) {
		if t != nil {
			return
		}
		switch inst.Op {
		case ir.OpLoad:
			if inst.Operands[0] == ir.Value(ptr) {
				t = inst.Type()
			}
		case ir.OpStore:
			if inst.Operands[1] == ir.Value(ptr) {
				t = inst.Operands[0].Type()
			}
		case ir.OpGEP:
			if inst.Operands[0] == ir.Value(ptr) {
				t = inst.Elem
			}
		}
	})
	return t
}

func free(c *Call) (lattice.Value, error) {
	return nil, nil
}

func exit(c *Call) (lattice.Value, error) {
	c.NoReturn = true
	return nil, nil
}

func assume(c *Call) (lattice.Value, error) {
	if len(c.Args) > 0 {
		c.Assume(0)
	}
	return nil, nil
}

func nondet(c *Call) (lattice.Value, error) {
	return c.Context().Factory.Top(c.Inst.Type()), nil
}
