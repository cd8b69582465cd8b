package checker

import (
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// NullDereference flags loads, stores and indirect calls through pointers
// that may be null. An unknown pointer is not reported.
type NullDereference struct{}

func (NullDereference) Name() string { return "null-dereference" }

func (r NullDereference) Check(p *Pass, inst *ir.Instruction, pre *state.State) {
	op, ok := pointerOperand(inst)
	if !ok {
		if inst.Op != ir.OpCall {
			return
		}
		if _, direct := inst.Callee().(*ir.Function); direct {
			return
		}
		op = inst.Callee()
	}
	ptr, ok := p.Eval(op, pre).(lattice.Pointer)
	if !ok || ptr.IsTop() || ptr.IsBottom() {
		return
	}
	switch {
	case ptr.IsNull():
		p.Report(r.Name(), inst, Definite, "memory", "null pointer dereference of "+op.Ident())
	case ptr.MayBeNull():
		p.Report(r.Name(), inst, Possible, "memory", op.Ident()+" may be null")
	}
}
