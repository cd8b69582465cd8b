package interp

import (
	"go.uber.org/zap"

	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// call analyzes a call instruction. Every possible callee is evaluated
// on its own copy of st; the outcomes are joined.
func (in *Interpreter) call(inst *ir.Instruction, st *state.State) (bool, error) {
	args := make([]lattice.Value, len(inst.Args()))
	for i, a := range inst.Args() {
		v, err := in.Eval(a, st)
		if err != nil {
			return false, err
		}
		args[i] = v
	}
	callees, known, err := in.callees(inst, st)
	if err != nil {
		return false, err
	}
	if !known {
		in.ctx.Logger.Debug("call through unknown pointer",
			zap.String("func", inst.Parent().Name),
			zap.String("inst", inst.String()))
		in.havocReachable(st, args, false)
		in.result(inst, st, in.ctx.Factory.Top(inst.Type()))
		return true, nil
	}

	var joined *state.State
	var ret lattice.Value
	for _, fn := range callees {
		out, v, err := in.invoke(fn, inst, args, st.Clone())
		if err != nil {
			return false, err
		}
		if out == nil {
			continue
		}
		if joined == nil {
			joined, ret = out, v
			continue
		}
		joined.Merge(out)
		ret = lattice.Join(ret, v)
	}
	if joined == nil {
		return false, nil
	}
	*st = *joined
	in.result(inst, st, ret)
	return true, nil
}

func (in *Interpreter) result(inst *ir.Instruction, st *state.State, v lattice.Value) {
	if !inst.HasResult() {
		return
	}
	if v == nil {
		v = in.ctx.Factory.Top(inst.Type())
	}
	st.AddVariable(inst, v)
}

// callees resolves the called operand. known is false when the pointer
// may target functions that cannot be enumerated.
func (in *Interpreter) callees(inst *ir.Instruction, st *state.State) ([]*ir.Function, bool, error) {
	if fn, ok := inst.Callee().(*ir.Function); ok {
		return []*ir.Function{fn}, true, nil
	}
	v, err := in.Eval(inst.Callee(), st)
	if err != nil {
		return nil, false, err
	}
	p, ok := v.(lattice.Pointer)
	if !ok || p.IsTop() {
		// any function with a matching signature
		var fns []*ir.Function
		for _, fn := range in.ctx.Module.Functions {
			if in.ctx.taken[fn] && ir.Identical(fn.Sig, inst.Elem) {
				fns = append(fns, fn)
			}
		}
		return fns, len(fns) > 0, nil
	}
	var fns []*ir.Function
	for _, t := range p.Targets() {
		if fn, ok := t.Loc.Ref.(*ir.Function); ok && t.Loc.Kind == lattice.FunctionLocation {
			fns = append(fns, fn)
		}
	}
	return fns, true, nil
}

// invoke runs one callee on st. It returns a nil state when the call
// cannot return.
func (in *Interpreter) invoke(fn *ir.Function, inst *ir.Instruction, args []lattice.Value, st *state.State) (*state.State, lattice.Value, error) {
	log := in.ctx.Logger.With(zap.String("callee", fn.Name))
	if fn.IsDeclaration() {
		if model, ok := in.ctx.Intrinsics[fn.Name]; ok {
			c := &Call{Inst: inst, Args: args, State: st, in: in}
			v, err := model(c)
			if err != nil {
				return nil, nil, located(inst, err)
			}
			if c.NoReturn {
				return nil, nil, nil
			}
			return st, v, nil
		}
		log.Debug("unknown external function")
		in.havocReachable(st, args, false)
		return st, in.ctx.Factory.Top(inst.Type()), nil
	}

	input := st.MemoryOnly()
	for i, p := range fn.Params {
		if i < len(args) {
			input.AddVariable(p, args[i])
		}
	}

	var res *FunctionResult
	s := in.summaries[fn]
	switch {
	case s != nil && (in.replaying || input.Leq(s.input)):
		res = s.result
	case in.replaying, in.onStack(fn), len(in.stack) >= in.ctx.Config.MaxCallDepth:
		log.Debug("call not analyzed", zap.Int("depth", len(in.stack)))
		in.havocReachable(st, args, true)
		return st, in.ctx.Factory.Top(inst.Type()), nil
	default:
		var err error
		res, err = in.summarize(fn, input)
		if err != nil {
			return nil, nil, err
		}
	}
	if res.Exit == nil {
		return nil, nil, nil
	}
	for _, loc := range res.Exit.Locations() {
		if owned(loc, fn) {
			continue
		}
		st.SetMemory(loc, res.Exit.Memory(loc))
	}
	return st, res.Return(), nil
}

func (in *Interpreter) onStack(fn *ir.Function) bool {
	for _, f := range in.stack {
		if f == fn {
			return true
		}
	}
	return false
}

// owned reports whether loc is a stack slot of fn, dead once fn returns.
func owned(loc *lattice.Location, fn *ir.Function) bool {
	inst, ok := loc.Ref.(*ir.Instruction)
	return ok && loc.Kind == lattice.StackLocation && inst.Parent() == fn
}

// havocReachable forgets the content of every location reachable from
// roots, and from the globals too when withGlobals is set. An unknown
// pointer on the way reaches everything.
func (in *Interpreter) havocReachable(st *state.State, roots []lattice.Value, withGlobals bool) {
	seen := make(map[*lattice.Location]bool)
	var work []lattice.Value
	work = append(work, roots...)
	if withGlobals {
		for loc := range in.ctx.Globals.Memory() {
			work = append(work, lattice.PointerTo(loc))
		}
	}
	all := false
	for len(work) > 0 && !all {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		walkPointers(v, func(p lattice.Pointer) {
			if p.IsTop() {
				all = true
				return
			}
			for _, t := range p.Targets() {
				if seen[t.Loc] || t.Loc.Kind == lattice.FunctionLocation {
					continue
				}
				seen[t.Loc] = true
				if c := st.Memory(t.Loc); c != nil {
					work = append(work, c)
				}
			}
		})
	}
	if all {
		for _, loc := range st.Locations() {
			st.Havoc(loc)
		}
		return
	}
	for loc := range seen {
		st.Havoc(loc)
	}
}

func walkPointers(v lattice.Value, fn func(lattice.Pointer)) {
	switch v := v.(type) {
	case lattice.Pointer:
		fn(v)
	case lattice.Array:
		for i := 0; i < v.Len(); i++ {
			walkPointers(v.Elem(i), fn)
		}
	case lattice.Struct:
		for i := 0; i < v.NumFields(); i++ {
			walkPointers(v.Field(i), fn)
		}
	case lattice.Opaque:
		if v.IsTop() {
			fn(lattice.PointerTop())
		}
	}
}
