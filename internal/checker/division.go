package checker

import (
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// DivisionByZero flags integer divisions and remainders whose divisor is
// or may be zero. A divisor about which nothing is known is not reported.
type DivisionByZero struct{}

func (DivisionByZero) Name() string { return "division-by-zero" }

func (r DivisionByZero) Check(p *Pass, inst *ir.Instruction, pre *state.State) {
	if !inst.Op.IsDivision() {
		return
	}
	d, ok := p.Eval(inst.Operands[1], pre).(lattice.Int)
	if !ok || d.IsBottom() || d.IsTop() {
		return
	}
	lo, hi := d.Bounds()
	switch {
	case lo == 0 && hi == 0:
		p.Report(r.Name(), inst, Definite, "arithmetic", "divisor is definitely zero")
	case lo <= 0 && hi >= 0:
		p.Report(r.Name(), inst, Possible, "arithmetic", "divisor may be zero")
	}
}
