package interp

import (
	"fmt"

	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

type outEdge struct {
	to *ir.BasicBlock
	st *state.State
}

// successors returns the feasible out edges of b with the state flowing
// along each, refined by the branch condition and with the phis of the
// target bound.
func (in *Interpreter) successors(b *ir.BasicBlock, out *state.State) ([]outEdge, error) {
	term := b.Terminator()
	if term == nil {
		return nil, fmt.Errorf("%w: block %s has no terminator", ErrLogic, b.Name)
	}
	var edges []outEdge
	add := func(to *ir.BasicBlock, st *state.State) error {
		if err := in.bindPhis(b, to, st); err != nil {
			return err
		}
		edges = append(edges, outEdge{to: to, st: st})
		return nil
	}

	switch term.Op {
	case ir.OpBr:
		return edges, add(term.Succs[0], out)
	case ir.OpCondBr:
		v, err := in.Eval(term.Operands[0], out)
		if err != nil {
			return nil, err
		}
		cond, ok := v.(lattice.Bool)
		if !ok {
			if !v.IsTop() {
				return nil, located(term, fmt.Errorf("%w: branch on %s", ErrLogic, v.Type()))
			}
			cond = lattice.BoolTop
		}
		for i, outcome := range []bool{true, false} {
			if outcome && !cond.CanBeTrue() || !outcome && !cond.CanBeFalse() {
				continue
			}
			st := out.Clone()
			if !in.refine(st, term.Operands[0], outcome, term) {
				continue
			}
			if err := add(term.Succs[i], st); err != nil {
				return nil, err
			}
		}
		return edges, nil
	case ir.OpSwitch:
		return edges, in.switchEdges(term, out, add)
	}
	return nil, nil
}

func (in *Interpreter) switchEdges(term *ir.Instruction, out *state.State, add func(*ir.BasicBlock, *state.State) error) error {
	op := term.Operands[0]
	v, err := in.Eval(op, out)
	if err != nil {
		return err
	}
	def := v
	for i, k := range term.Cases {
		kv, err := in.Eval(k, out)
		if err != nil {
			return err
		}
		taken, _ := lattice.RefineICmp(ir.IntEQ, v, kv, true)
		if taken.IsBottom() {
			continue
		}
		def, _ = lattice.RefineICmp(ir.IntNE, def, kv, true)
		st := out.Clone()
		in.bind(st, op, taken, term)
		if err := add(term.Succs[i+1], st); err != nil {
			return err
		}
	}
	if def.IsBottom() {
		return nil
	}
	st := out.Clone()
	in.bind(st, op, def, term)
	return add(term.Succs[0], st)
}

// refine narrows st under the assumption that the boolean cond has the
// given outcome at instruction at. It reports false when the outcome is
// impossible.
func (in *Interpreter) refine(st *state.State, cond ir.Value, outcome bool, at *ir.Instruction) bool {
	if c, ok := cond.(ir.Constant); ok {
		v, err := in.Eval(c, st)
		if err != nil {
			return true
		}
		b, ok := v.(lattice.Bool)
		return !ok || (outcome && b.CanBeTrue()) || (!outcome && b.CanBeFalse())
	}
	in.bind(st, cond, lattice.BoolConst(outcome), at)
	if !in.ctx.Config.RefineBranches {
		return true
	}
	cmp, ok := cond.(*ir.Instruction)
	if !ok || cmp.Op != ir.OpICmp {
		return true
	}
	x, y := cmp.Operands[0], cmp.Operands[1]
	vx, err := in.Eval(x, st)
	if err != nil {
		return true
	}
	vy, err := in.Eval(y, st)
	if err != nil {
		return true
	}
	rx, ry := lattice.RefineICmp(cmp.Pred, vx, vy, outcome)
	if rx.IsBottom() || ry.IsBottom() {
		return false
	}
	in.bind(st, x, rx, at)
	in.bind(st, y, ry, at)
	return true
}

// bind records a narrowed value for v at instruction at. When v was
// loaded from a single exact cell that nothing may have written since,
// the cell is narrowed too.
func (in *Interpreter) bind(st *state.State, v ir.Value, d lattice.Value, at *ir.Instruction) {
	if _, ok := v.(ir.Constant); ok {
		return
	}
	st.AddVariable(v, d)
	ld, ok := v.(*ir.Instruction)
	if !ok || ld.Op != ir.OpLoad || !unclobbered(ld, at) {
		return
	}
	pv, err := in.Eval(ld.Operands[0], st)
	if err != nil {
		return
	}
	p, ok := pv.(lattice.Pointer)
	if !ok || p.IsTop() || p.MayBeNull() || len(p.Targets()) != 1 {
		return
	}
	t := p.Targets()[0]
	if !t.Exact() || t.Loc.Summary || !t.Loc.Single() {
		return
	}
	st.Store(t, d, true)
}

// unclobbered reports whether no store or call runs between ld and at.
func unclobbered(ld, at *ir.Instruction) bool {
	if at == nil || ld.Block != at.Block {
		return false
	}
	after := false
	for _, inst := range ld.Block.Instrs {
		switch {
		case inst == ld:
			after = true
		case inst == at:
			return after
		case after && (inst.Op == ir.OpStore || inst.Op == ir.OpCall):
			return false
		}
	}
	return false
}
