// Package checker reports defects from the converged abstract states: it
// replays every reached block and lets each rule inspect the state before
// each instruction.
package checker

import (
	"sort"

	"github.com/gnolang/absint/internal/analysis/interp"
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
	tt "github.com/gnolang/absint/internal/types"
)

// Verdict is the outcome of one check.
type Verdict int

const (
	// Proven means no execution reaching the instruction violates the rule.
	Proven Verdict = iota
	// Possible means some abstract execution may violate it.
	Possible
	// Definite means every execution reaching the instruction violates it.
	Definite
)

// Rule inspects one instruction with the state before it.
type Rule interface {
	Name() string
	Check(p *Pass, inst *ir.Instruction, pre *state.State)
}

// Pass carries the analysis of one function through the rules.
type Pass struct {
	Interp   *interp.Interpreter
	Func     *ir.Function
	Filename string

	severity map[string]tt.Severity
	issues   []tt.Issue
}

// Eval returns the abstract value of v in st, or nil when it cannot be
// evaluated.
func (p *Pass) Eval(v ir.Value, st *state.State) lattice.Value {
	d, err := p.Interp.Eval(v, st)
	if err != nil {
		return nil
	}
	return d
}

// Report records a defect of rule at inst. Proven verdicts are dropped;
// possible ones are reported one severity level below the rule's.
func (p *Pass) Report(rule string, inst *ir.Instruction, verdict Verdict, category, message string) {
	if verdict == Proven {
		return
	}
	sev, ok := p.severity[rule]
	if !ok {
		sev = tt.SeverityError
	}
	if verdict == Possible && sev < tt.SeverityInfo {
		sev++
	}
	filename := inst.Pos.Filename
	if filename == "" {
		filename = p.Filename
	}
	p.issues = append(p.issues, tt.Issue{
		Rule:     rule,
		Category: category,
		Filename: filename,
		Function: p.Func.Name,
		Block:    inst.Block.Name,
		Message:  message,
		Note:     inst.String(),
		Severity: sev,
		Start:    inst.Pos,
		End:      inst.Pos,
	})
}

// Options configures Run.
type Options struct {
	Filename string
	// Severity overrides the severity of definite violations per rule.
	Severity map[string]tt.Severity
	// Ignore lists rule names to skip.
	Ignore map[string]bool
}

// Run replays every analyzed function of res in module order and returns
// the defects the rules find.
func Run(in *interp.Interpreter, res *interp.Result, rules []Rule, opts Options) ([]tt.Issue, error) {
	var active []Rule
	for _, r := range rules {
		if !opts.Ignore[r.Name()] {
			active = append(active, r)
		}
	}
	var issues []tt.Issue
	for _, fn := range in.Context().Module.Functions {
		fr, ok := res.Functions[fn]
		if !ok {
			continue
		}
		p := &Pass{Interp: in, Func: fn, Filename: opts.Filename, severity: opts.Severity}
		err := in.Replay(fr, func(inst *ir.Instruction, pre *state.State) {
			for _, r := range active {
				r.Check(p, inst, pre)
			}
		})
		if err != nil {
			return nil, err
		}
		issues = append(issues, p.issues...)
	}
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Start.Line != b.Start.Line {
			return a.Start.Line < b.Start.Line
		}
		return a.Start.Column < b.Start.Column
	})
	return issues, nil
}

// Default returns the built-in rules; contracts may be nil.
func Default(contracts *Contracts) []Rule {
	rules := []Rule{
		NullDereference{},
		OutOfBounds{},
		DivisionByZero{},
		NewContractChecker(contracts),
	}
	if contracts != nil && len(contracts.Deprecated) > 0 {
		d := NewDeprecatedFuncChecker()
		for name, alt := range contracts.Deprecated {
			d.Register(name, alt)
		}
		rules = append(rules, d)
	}
	return rules
}

// pointerOperand returns the dereferenced operand of a memory access.
func pointerOperand(inst *ir.Instruction) (ir.Value, bool) {
	switch inst.Op {
	case ir.OpLoad:
		return inst.Operands[0], true
	case ir.OpStore:
		return inst.Operands[1], true
	}
	return nil, false
}
