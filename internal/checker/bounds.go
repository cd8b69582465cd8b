package checker

import (
	"fmt"

	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// OutOfBounds flags memory accesses whose address may lie outside the
// object it was derived from.
type OutOfBounds struct{}

func (OutOfBounds) Name() string { return "out-of-bounds" }

func (r OutOfBounds) Check(p *Pass, inst *ir.Instruction, pre *state.State) {
	op, ok := pointerOperand(inst)
	if !ok {
		return
	}
	ptr, ok := p.Eval(op, pre).(lattice.Pointer)
	if !ok || ptr.IsTop() {
		return
	}
	targets := ptr.Targets()
	if len(targets) == 0 {
		return
	}
	worst, outside := Proven, 0
	var detail string
	for _, t := range targets {
		v, msg := checkTarget(t)
		if v == Proven {
			continue
		}
		outside++
		if v > worst || detail == "" {
			worst, detail = v, msg
		}
	}
	if worst == Definite && outside < len(targets) {
		worst = Possible
	}
	p.Report(r.Name(), inst, worst, "memory", detail)
}

// checkTarget compares every index of t with the extent it selects in.
func checkTarget(t lattice.Target) (Verdict, string) {
	loc := t.Loc
	if t.Any || loc.Content == nil || len(t.Path) == 0 || loc.Kind == lattice.FunctionLocation {
		return Proven, ""
	}
	worst, detail := Proven, ""
	note := func(v Verdict, idx lattice.Int, n int, what string) {
		if v > worst {
			worst = v
			detail = fmt.Sprintf("index %s out of bounds for %s of length %d in %s", idx, what, n, loc.Name)
		}
	}
	if loc.Count > 0 {
		note(within(t.Path[0], loc.Count), t.Path[0], loc.Count, "object")
	}
	typ := loc.Content
	for _, idx := range t.Path[1:] {
		if typ == nil {
			break
		}
		switch typ.Kind {
		case lattice.ArrayKind:
			if typ.Len >= 0 {
				note(within(idx, typ.Len), idx, typ.Len, "array")
			}
			typ = typ.Elem
		case lattice.StructKind:
			k, ok := idx.Singleton()
			if !ok || k < 0 || int(k) >= len(typ.Fields) {
				return worst, detail
			}
			typ = typ.Fields[k]
		default:
			return worst, detail
		}
	}
	return worst, detail
}

// within classifies idx against [0, n).
func within(idx lattice.Int, n int) Verdict {
	if idx.IsBottom() {
		return Proven
	}
	lo, hi := idx.Bounds()
	switch {
	case lo >= int64(n) || hi < 0:
		return Definite
	case lo < 0 || hi >= int64(n):
		return Possible
	}
	return Proven
}
