// Package interp runs the abstract interpreter: a worklist fixpoint over
// the control flow graph of every function, with delayed widening at loop
// headers, branch refinement and summary-based calls.
package interp

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/gnolang/absint/internal/analysis/cfg"
	"github.com/gnolang/absint/internal/analysis/globals"
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

// BlockResult is the converged state around one block.
type BlockResult struct {
	// In is the state on entry, phis bound. Out is the state after the
	// terminator; nil when the block never completes.
	In, Out *state.State
	Visits  int
}

// FunctionResult is the converged analysis of one function.
type FunctionResult struct {
	Func   *ir.Function
	Graph  *cfg.Graph
	Blocks map[*ir.BasicBlock]*BlockResult
	// Exit joins the states reaching a ret; nil when the function never
	// returns.
	Exit *state.State
}

// Return is the abstract return value, nil for void functions or when
// the function never returns.
func (r *FunctionResult) Return() lattice.Value {
	if r.Exit == nil {
		return nil
	}
	return r.Exit.Return()
}

// Reached reports whether b was found reachable.
func (r *FunctionResult) Reached(b *ir.BasicBlock) bool {
	br, ok := r.Blocks[b]
	return ok && br.In != nil
}

// Result gathers the analyses of every function reached.
type Result struct {
	Functions map[*ir.Function]*FunctionResult
	// Roots lists the functions analyzed from the top, in order.
	Roots []*ir.Function
}

// Ordered returns the function results in module order.
func (r *Result) Ordered() []*FunctionResult {
	out := make([]*FunctionResult, 0, len(r.Functions))
	for _, fr := range r.Functions {
		out = append(out, fr)
	}
	index := func(fn *ir.Function) int {
		for i, f := range fn.Module.Functions {
			if f == fn {
				return i
			}
		}
		return -1
	}
	sort.Slice(out, func(i, j int) bool { return index(out[i].Func) < index(out[j].Func) })
	return out
}

type summary struct {
	input    *state.State
	result   *FunctionResult
	analyses int
}

// Interpreter computes function summaries and their fixpoints. It is not
// safe for concurrent use.
type Interpreter struct {
	ctx       *Context
	summaries map[*ir.Function]*summary
	stack     []*ir.Function
	replaying bool
}

func New(ctx *Context) *Interpreter {
	return &Interpreter{
		ctx:       ctx,
		summaries: make(map[*ir.Function]*summary),
	}
}

func (in *Interpreter) Context() *Context { return in.ctx }

// Run analyzes the module from its roots, then, if configured, every
// function left unreached.
func (in *Interpreter) Run() (*Result, error) {
	roots, err := in.roots()
	if err != nil {
		return nil, err
	}
	res := &Result{Functions: make(map[*ir.Function]*FunctionResult)}
	for _, fn := range roots {
		if _, err := in.root(fn); err != nil {
			return nil, err
		}
		res.Roots = append(res.Roots, fn)
	}
	if in.ctx.Config.AnalyzeAll {
		for _, fn := range in.ctx.Module.Functions {
			if fn.IsDeclaration() || in.summaries[fn] != nil {
				continue
			}
			if _, err := in.root(fn); err != nil {
				return nil, err
			}
			res.Roots = append(res.Roots, fn)
		}
	}
	for fn, s := range in.summaries {
		res.Functions[fn] = s.result
	}
	return res, nil
}

func (in *Interpreter) roots() ([]*ir.Function, error) {
	m := in.ctx.Module
	if len(in.ctx.Config.Entry) > 0 {
		var out []*ir.Function
		for _, name := range in.ctx.Config.Entry {
			fn := m.Function(name)
			if fn == nil || fn.IsDeclaration() {
				return nil, fmt.Errorf("entry @%s: %w", name, globals.ErrUnknownGlobal)
			}
			out = append(out, fn)
		}
		return out, nil
	}
	if fn := m.Function("main"); fn != nil && !fn.IsDeclaration() {
		return []*ir.Function{fn}, nil
	}
	var out []*ir.Function
	for _, fn := range m.Functions {
		if !fn.IsDeclaration() && len(in.ctx.calls[fn]) == 0 {
			out = append(out, fn)
		}
	}
	return out, nil
}

// root analyzes fn with unknown arguments over the initial memory image.
func (in *Interpreter) root(fn *ir.Function) (*FunctionResult, error) {
	input := state.New()
	for loc, v := range in.ctx.Globals.Memory() {
		input.SetMemory(loc, v)
	}
	for _, p := range fn.Params {
		input.AddVariable(p, in.ctx.Factory.Top(p.Typ))
	}
	in.ctx.Logger.Debug("analyzing root", zap.String("func", fn.Name))
	return in.summarize(fn, input)
}

// summarize returns a summary of fn covering input, reusing or growing the
// existing one.
func (in *Interpreter) summarize(fn *ir.Function, input *state.State) (*FunctionResult, error) {
	s := in.summaries[fn]
	if s != nil && input.Leq(s.input) {
		return s.result, nil
	}
	if s != nil {
		grown := s.input.Clone()
		if s.analyses >= in.ctx.Config.WideningDelay {
			grown.Widen(input)
		} else {
			grown.Merge(input)
		}
		input = grown
	} else {
		s = &summary{}
	}
	in.stack = append(in.stack, fn)
	res, err := in.Analyze(fn, input)
	in.stack = in.stack[:len(in.stack)-1]
	if err != nil {
		return nil, err
	}
	s.input, s.result = input, res
	s.analyses++
	in.summaries[fn] = s
	return res, nil
}

type status int

const (
	unvisited status = iota
	queued
	processed
)

// Analyze computes the fixpoint of fn from the entry state entry.
func (in *Interpreter) Analyze(fn *ir.Function, entry *state.State) (*FunctionResult, error) {
	g := in.ctx.Graph(fn)
	res := &FunctionResult{
		Func:   fn,
		Graph:  g,
		Blocks: make(map[*ir.BasicBlock]*BlockResult),
	}
	if fn.IsDeclaration() {
		return res, nil
	}

	marks := make(map[*ir.BasicBlock]status)
	joins := make(map[*ir.BasicBlock]int)
	var work []*ir.BasicBlock
	enqueue := func(b *ir.BasicBlock) {
		if marks[b] != queued {
			marks[b] = queued
			work = append(work, b)
		}
	}
	// next pops the queued block earliest in reverse post-order.
	next := func() *ir.BasicBlock {
		best := 0
		for i, b := range work {
			if g.Order(b) < g.Order(work[best]) {
				best = i
			}
		}
		b := work[best]
		work = append(work[:best], work[best+1:]...)
		marks[b] = processed
		return b
	}
	block := func(b *ir.BasicBlock) *BlockResult {
		br, ok := res.Blocks[b]
		if !ok {
			br = &BlockResult{}
			res.Blocks[b] = br
		}
		return br
	}
	propagate := func(from, to *ir.BasicBlock, st *state.State) {
		br := block(to)
		switch {
		case br.In == nil:
			br.In = st
		case st.Leq(br.In):
			return
		case g.IsBackEdge(from, to):
			joins[to]++
			br.In = br.In.Clone()
			if joins[to] > in.ctx.Config.WideningDelay {
				br.In.Widen(st)
			} else {
				br.In.Merge(st)
			}
		default:
			br.In = br.In.Clone()
			br.In.Merge(st)
		}
		enqueue(to)
	}

	start := g.Entry()
	block(start).In = entry.Clone()
	enqueue(start)
	for len(work) > 0 {
		b := next()
		br := res.Blocks[b]
		br.Visits++
		out, err := in.transfer(b, br.In.Clone())
		if err != nil {
			return nil, err
		}
		br.Out = out
		if out == nil {
			continue
		}
		edges, err := in.successors(b, out)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			propagate(b, e.to, e.st)
		}
	}

	for _, b := range g.ReversePostOrder() {
		br, ok := res.Blocks[b]
		if !ok || br.Out == nil {
			continue
		}
		if t := b.Terminator(); t == nil || t.Op != ir.OpRet {
			continue
		}
		if res.Exit == nil {
			res.Exit = br.Out.Clone()
		} else {
			res.Exit.Merge(br.Out)
		}
	}
	return res, nil
}

// transfer runs the instructions of b after its phis. It returns nil when
// execution cannot reach the end of b.
func (in *Interpreter) transfer(b *ir.BasicBlock, st *state.State) (*state.State, error) {
	for _, inst := range b.Instrs {
		if inst.Op == ir.OpPhi {
			continue
		}
		live, err := in.visit(inst, st)
		if err != nil {
			return nil, located(inst, err)
		}
		if !live {
			return nil, nil
		}
	}
	return st, nil
}

func located(inst *ir.Instruction, err error) error {
	where := "@" + inst.Parent().Name + ":" + inst.Block.Name
	if inst.Pos.IsValid() {
		where = inst.Pos.String() + ": " + where
	}
	return fmt.Errorf("%s: %s: %w", where, inst, err)
}

// Replay walks the reachable blocks of res in reverse post-order and calls
// visit with the converged state before each instruction, phis included.
// Calls reuse the summaries of the last run. The state passed to visit is
// only valid during the call.
func (in *Interpreter) Replay(res *FunctionResult, visit func(inst *ir.Instruction, pre *state.State)) error {
	in.replaying = true
	defer func() { in.replaying = false }()
	for _, b := range res.Graph.ReversePostOrder() {
		br, ok := res.Blocks[b]
		if !ok || br.In == nil {
			continue
		}
		st := br.In.Clone()
		for _, inst := range b.Instrs {
			visit(inst, st)
			if inst.Op == ir.OpPhi {
				continue
			}
			live, err := in.visit(inst, st)
			if err != nil {
				return located(inst, err)
			}
			if !live {
				break
			}
		}
	}
	return nil
}
