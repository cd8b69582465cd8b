package checker

import (
	"fmt"

	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// FuncMap maps function names to their alternatives.
type FuncMap map[string]string

// DeprecatedFunc is one call to a deprecated function.
type DeprecatedFunc struct {
	Caller      string
	Function    string
	Alternative string
}

// DeprecatedFuncChecker flags reachable calls to deprecated functions.
type DeprecatedFuncChecker struct {
	deprecatedFuncs FuncMap
}

func NewDeprecatedFuncChecker() *DeprecatedFuncChecker {
	return &DeprecatedFuncChecker{
		deprecatedFuncs: make(FuncMap),
	}
}

// Register adds a deprecated function. An empty alternative means there
// is no replacement.
func (d *DeprecatedFuncChecker) Register(funcName, alternative string) {
	d.deprecatedFuncs[funcName] = alternative
}

func (*DeprecatedFuncChecker) Name() string { return "deprecated-function" }

// Lookup returns the deprecation of the callee of inst, if any.
func (d *DeprecatedFuncChecker) Lookup(inst *ir.Instruction) (DeprecatedFunc, bool) {
	if inst.Op != ir.OpCall {
		return DeprecatedFunc{}, false
	}
	callee, ok := inst.Callee().(*ir.Function)
	if !ok {
		return DeprecatedFunc{}, false
	}
	alt, ok := d.deprecatedFuncs[callee.Name]
	if !ok {
		return DeprecatedFunc{}, false
	}
	return DeprecatedFunc{
		Caller:      inst.Parent().Name,
		Function:    callee.Name,
		Alternative: alt,
	}, true
}

func (d *DeprecatedFuncChecker) Check(p *Pass, inst *ir.Instruction, _ *state.State) {
	df, ok := d.Lookup(inst)
	if !ok {
		return
	}
	msg := fmt.Sprintf("call to deprecated function %s", df.Function)
	if df.Alternative != "" {
		msg += fmt.Sprintf(", use %s instead", df.Alternative)
	}
	p.Report(d.Name(), inst, Definite, "api", msg)
}
