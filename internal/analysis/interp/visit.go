package interp

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gnolang/absint/internal/analysis/factory"
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// Eval returns the abstract value of v in st. Constants are translated,
// unbound values are bottom.
func (in *Interpreter) Eval(v ir.Value, st *state.State) (lattice.Value, error) {
	if c, ok := v.(ir.Constant); ok {
		return in.ctx.Factory.Constant(c, in.ctx.Globals)
	}
	if d := st.Find(v); d != nil {
		return d, nil
	}
	return in.ctx.Factory.Get(v.Type()), nil
}

func (in *Interpreter) operands(inst *ir.Instruction, st *state.State) ([]lattice.Value, error) {
	args := make([]lattice.Value, len(inst.Operands))
	for i, op := range inst.Operands {
		v, err := in.Eval(op, st)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// visit applies the transfer function of inst to st. It reports false
// when execution cannot continue past inst.
func (in *Interpreter) visit(inst *ir.Instruction, st *state.State) (bool, error) {
	switch inst.Op {
	case ir.OpAlloca:
		in.alloca(inst, st)
		return true, nil
	case ir.OpLoad:
		return in.load(inst, st)
	case ir.OpStore:
		return in.store(inst, st)
	case ir.OpCall:
		return in.call(inst, st)
	case ir.OpRet:
		if len(inst.Operands) > 0 {
			v, err := in.Eval(inst.Operands[0], st)
			if err != nil {
				return false, err
			}
			st.SetReturn(v)
		}
		return true, nil
	case ir.OpUnreachable:
		return false, nil
	case ir.OpBr, ir.OpCondBr, ir.OpSwitch, ir.OpPhi:
		return true, nil
	}

	args, err := in.operands(inst, st)
	if err != nil {
		return false, err
	}
	v, err := in.ctx.Factory.Apply(factory.OperationOf(inst), args)
	if err != nil {
		if errors.Is(err, factory.ErrLogic) {
			return false, err
		}
		in.ctx.Logger.Debug("imprecise operation",
			zap.String("func", inst.Parent().Name),
			zap.String("inst", inst.String()),
			zap.Error(err))
		v = in.ctx.Factory.Top(inst.Type())
	}
	if inst.HasResult() {
		st.AddVariable(inst, v)
	}
	return true, nil
}

// alloca binds inst to its stack slot. A slot executed more than once per
// call is a summary; otherwise every execution starts uninitialized. Both
// keep a memory entry so that stores through unknown pointers reach them.
func (in *Interpreter) alloca(inst *ir.Instruction, st *state.State) {
	fn := inst.Parent()
	loc := in.ctx.site(inst, func() lattice.Location {
		return lattice.Location{
			Name:    fn.Name + "." + inst.Name,
			Kind:    lattice.StackLocation,
			Content: in.ctx.Factory.Type(inst.Elem),
			Count:   1,
			Summary: in.ctx.Graph(fn).InLoop(inst.Block),
		}
	})
	if !loc.Summary || st.Memory(loc) == nil {
		st.SetMemory(loc, lattice.Bottom(loc.Content))
	}
	st.AddVariable(inst, lattice.PointerTo(loc))
}

// dereference evaluates the pointer operand of a memory access. Since the
// access traps on null, the operand is known non-null afterwards. It
// reports false when the pointer can only be null.
func (in *Interpreter) dereference(op ir.Value, st *state.State) (lattice.Pointer, bool, error) {
	v, err := in.Eval(op, st)
	if err != nil {
		return lattice.Pointer{}, false, err
	}
	p, ok := v.(lattice.Pointer)
	if !ok {
		if v.IsTop() {
			return lattice.PointerTop(), true, nil
		}
		return lattice.PointerBottom(), false, nil
	}
	if p.IsNull() || p.IsBottom() {
		return p, false, nil
	}
	if p.MayBeNull() && !p.IsTop() {
		p = p.WithoutNull()
		if _, isConst := op.(ir.Constant); !isConst {
			st.AddVariable(op, p)
		}
	}
	return p, true, nil
}

func (in *Interpreter) load(inst *ir.Instruction, st *state.State) (bool, error) {
	p, live, err := in.dereference(inst.Operands[0], st)
	if err != nil || !live {
		return false, err
	}
	want := in.ctx.Factory.Type(inst.Type())
	if p.IsTop() {
		st.AddVariable(inst, lattice.Top(want))
		return true, nil
	}
	v := lattice.Bottom(want)
	for _, t := range p.Targets() {
		v = lattice.Join(v, st.Load(t, want))
	}
	st.AddVariable(inst, v)
	return true, nil
}

func (in *Interpreter) store(inst *ir.Instruction, st *state.State) (bool, error) {
	v, err := in.Eval(inst.Operands[0], st)
	if err != nil {
		return false, err
	}
	p, live, err := in.dereference(inst.Operands[1], st)
	if err != nil || !live {
		return false, err
	}
	if p.IsTop() {
		in.ctx.Logger.Debug("store through unknown pointer",
			zap.String("func", inst.Parent().Name),
			zap.String("inst", inst.String()))
		for _, loc := range st.Locations() {
			st.Havoc(loc)
		}
		return true, nil
	}
	targets := p.Targets()
	strong := len(targets) == 1
	for _, t := range targets {
		st.Store(t, v, strong)
	}
	return true, nil
}

// bindPhis evaluates the phis of to for the edge from -> to in st and
// binds them all at once.
func (in *Interpreter) bindPhis(from, to *ir.BasicBlock, st *state.State) error {
	phis := to.Phis()
	vals := make([]lattice.Value, len(phis))
	for i, phi := range phis {
		op, ok := phi.IncomingFor(from)
		if !ok {
			return located(phi, fmt.Errorf("%w: no incoming value for %s", ErrLogic, from.Name))
		}
		v, err := in.Eval(op, st)
		if err != nil {
			return located(phi, err)
		}
		vals[i] = v
	}
	for i, phi := range phis {
		st.AddVariable(phi, vals[i])
	}
	return nil
}
