package checker

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/absint/internal/analysis/interp"
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// Condition compares a subject with a constant. Subjects are argN for the
// N-th argument, ret for the return value and @name for the content of a
// global.
type Condition struct {
	Subject string `yaml:"subject"`
	Op      string `yaml:"op"`
	Value   int64  `yaml:"value"`
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %d", c.Subject, c.Op, c.Value)
}

var predicates = map[string]ir.Predicate{
	"eq": ir.IntEQ,
	"ne": ir.IntNE,
	"lt": ir.IntSLT,
	"le": ir.IntSLE,
	"gt": ir.IntSGT,
	"ge": ir.IntSGE,
}

func (c Condition) validate() error {
	if _, ok := predicates[c.Op]; !ok {
		return fmt.Errorf("condition %q: unknown operator %q", c, c.Op)
	}
	switch {
	case c.Subject == "ret", strings.HasPrefix(c.Subject, "@") && len(c.Subject) > 1:
		return nil
	case strings.HasPrefix(c.Subject, "arg"):
		if _, err := strconv.Atoi(c.Subject[3:]); err == nil {
			return nil
		}
	}
	return fmt.Errorf("condition %q: unknown subject %q", c, c.Subject)
}

// Contract is the requires/ensures pair of one function.
type Contract struct {
	Requires []Condition `yaml:"requires"`
	Ensures  []Condition `yaml:"ensures"`
}

// Contracts is the content of a contracts file.
type Contracts struct {
	Functions map[string]Contract `yaml:"functions"`
	// Deprecated maps function names to the replacement to suggest.
	Deprecated map[string]string `yaml:"deprecated"`
}

func ParseContracts(data []byte) (*Contracts, error) {
	var c Contracts
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing contracts: %w", err)
	}
	for name, fc := range c.Functions {
		for _, cond := range append(append([]Condition{}, fc.Requires...), fc.Ensures...) {
			if err := cond.validate(); err != nil {
				return nil, fmt.Errorf("contract of %s: %w", name, err)
			}
		}
		for _, cond := range fc.Requires {
			if cond.Subject == "ret" {
				return nil, fmt.Errorf("contract of %s: requires cannot mention ret", name)
			}
		}
	}
	return &c, nil
}

// ContractChecker checks requires clauses at call sites, ensures clauses
// at returns and absint.assert calls in place.
type ContractChecker struct {
	contracts map[string]Contract
}

func NewContractChecker(c *Contracts) *ContractChecker {
	cc := &ContractChecker{contracts: make(map[string]Contract)}
	if c != nil {
		for name, fc := range c.Functions {
			cc.contracts[name] = fc
		}
	}
	return cc
}

func (*ContractChecker) Name() string { return "contract" }

func (c *ContractChecker) Check(p *Pass, inst *ir.Instruction, pre *state.State) {
	switch inst.Op {
	case ir.OpCall:
		callee, ok := inst.Callee().(*ir.Function)
		if !ok {
			return
		}
		if callee.Name == interp.AssertIntrinsic && len(inst.Args()) > 0 {
			c.checkAssert(p, inst, pre)
			return
		}
		fc, ok := c.contracts[callee.Name]
		if !ok {
			return
		}
		for _, cond := range fc.Requires {
			v := c.subject(p, cond, pre, inst.Args(), nil)
			p.Report(c.Name(), inst, decide(cond, v), "contract",
				fmt.Sprintf("requires %s of %s", cond, callee.Name))
		}
	case ir.OpRet:
		fc, ok := c.contracts[p.Func.Name]
		if !ok {
			return
		}
		args := make([]ir.Value, len(p.Func.Params))
		for i, a := range p.Func.Params {
			args[i] = a
		}
		var ret ir.Value
		if len(inst.Operands) > 0 {
			ret = inst.Operands[0]
		}
		for _, cond := range fc.Ensures {
			v := c.subject(p, cond, pre, args, ret)
			p.Report(c.Name(), inst, decide(cond, v), "contract",
				fmt.Sprintf("ensures %s of %s", cond, p.Func.Name))
		}
	}
}

func (c *ContractChecker) checkAssert(p *Pass, inst *ir.Instruction, pre *state.State) {
	b, ok := p.Eval(inst.Args()[0], pre).(lattice.Bool)
	if !ok || b.IsBottom() {
		return
	}
	switch {
	case !b.CanBeTrue():
		p.Report(c.Name(), inst, Definite, "contract", "assertion always fails")
	case b.CanBeFalse():
		p.Report(c.Name(), inst, Possible, "contract", "assertion may fail")
	}
}

// subject evaluates the subject of cond, or returns nil when it does not
// exist at this point.
func (c *ContractChecker) subject(p *Pass, cond Condition, st *state.State, args []ir.Value, ret ir.Value) lattice.Value {
	switch {
	case cond.Subject == "ret":
		if ret == nil {
			return nil
		}
		return p.Eval(ret, st)
	case strings.HasPrefix(cond.Subject, "@"):
		g := p.Interp.Context().Module.Global(cond.Subject[1:])
		if g == nil {
			return nil
		}
		loc, err := p.Interp.Context().Globals.Location(g)
		if err != nil {
			return nil
		}
		return st.Load(lattice.Target{Loc: loc, Path: []lattice.Int{lattice.IntConst(lattice.IndexType, 0)}},
			p.Interp.Context().Factory.Type(g.ValueType))
	}
	k, _ := strconv.Atoi(cond.Subject[3:])
	if k < 0 || k >= len(args) {
		return nil
	}
	return p.Eval(args[k], st)
}

// decide compares v with the constant of cond.
func decide(cond Condition, v lattice.Value) Verdict {
	if v == nil || v.IsBottom() {
		return Proven
	}
	var k lattice.Value
	switch v := v.(type) {
	case lattice.Int:
		k = lattice.IntConst(v.Type(), cond.Value)
	case lattice.Bool:
		k = lattice.BoolConst(cond.Value != 0)
	case lattice.Pointer:
		if cond.Value != 0 {
			return Possible
		}
		k = lattice.NullPointer()
	default:
		return Possible
	}
	r, err := lattice.ICmp(predicates[cond.Op], v, k)
	if err != nil {
		return Possible
	}
	b, ok := r.(lattice.Bool)
	switch {
	case !ok:
		return Possible
	case !b.CanBeTrue():
		return Definite
	case b.CanBeFalse():
		return Possible
	}
	return Proven
}
