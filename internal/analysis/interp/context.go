package interp

import (
	"sync"

	"go.uber.org/zap"

	"github.com/gnolang/absint/internal/analysis/cfg"
	"github.com/gnolang/absint/internal/analysis/factory"
	"github.com/gnolang/absint/internal/analysis/globals"
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/ir"
)

// ErrLogic reports a broken IR invariant met during interpretation. It
// aborts the analysis, unlike imprecision, which degrades to top.
var ErrLogic = factory.ErrLogic

// Context is the state shared by every function analysis of one module.
type Context struct {
	Config  Config
	Logger  *zap.Logger
	Module  *ir.Module
	Factory *factory.Factory
	Globals *globals.Manager
	Alloc   *lattice.Allocator
	// Intrinsics models declarations by name.
	Intrinsics map[string]Intrinsic

	mu     sync.Mutex
	graphs map[*ir.Function]*cfg.Graph
	sites  map[*ir.Instruction]*lattice.Location
	calls  map[*ir.Function][]*ir.Instruction
	taken  map[*ir.Function]bool
	single map[*ir.Function]bool
}

// NewContext prepares m for analysis: it registers functions and computes
// the initial value of every global.
func NewContext(m *ir.Module, config Config, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := factory.New(config.MaxArrayElements)
	alloc := lattice.NewAllocator()
	gm := globals.New(f, alloc)
	gm.AddFunctions(m.Functions...)
	if err := gm.Init(m.Globals); err != nil {
		return nil, err
	}
	c := &Context{
		Config:     config,
		Logger:     logger,
		Module:     m,
		Factory:    f,
		Globals:    gm,
		Alloc:      alloc,
		Intrinsics: DefaultIntrinsics(),
		graphs:     make(map[*ir.Function]*cfg.Graph),
		sites:      make(map[*ir.Instruction]*lattice.Location),
		single:     make(map[*ir.Function]bool),
	}
	c.indexCalls()
	return c, nil
}

// Graph returns the memoized control flow graph of fn.
func (c *Context) Graph(fn *ir.Function) *cfg.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.graphs[fn]
	if !ok {
		g = cfg.FromFunc(fn)
		c.graphs[fn] = g
	}
	return g
}

// site returns the location allocated by inst, creating it from the
// prototype proto builds on first use.
func (c *Context) site(inst *ir.Instruction, proto func() lattice.Location) *lattice.Location {
	c.mu.Lock()
	loc, ok := c.sites[inst]
	c.mu.Unlock()
	if ok {
		return loc
	}
	l := proto()
	l.Ref = inst
	c.mu.Lock()
	defer c.mu.Unlock()
	if loc, ok := c.sites[inst]; ok {
		return loc
	}
	loc = c.Alloc.New(l)
	c.sites[inst] = loc
	return loc
}

// indexCalls records the direct call sites of every function and the
// functions whose address escapes.
func (c *Context) indexCalls() {
	c.calls = make(map[*ir.Function][]*ir.Instruction)
	c.taken = make(map[*ir.Function]bool)
	for _, fn := range c.Module.Functions {
		fn.Instructions(func(inst *ir.Instruction) {
			for k, op := range inst.Operands {
				callee, ok := op.(*ir.Function)
				if !ok {
					continue
				}
				if inst.Op == ir.OpCall && k == 0 {
					c.calls[callee] = append(c.calls[callee], inst)
				} else {
					c.taken[callee] = true
				}
			}
		})
	}
	for _, g := range c.Module.Globals {
		markTaken(g.Init, c.taken)
	}
}

func markTaken(k ir.Constant, taken map[*ir.Function]bool) {
	switch k := k.(type) {
	case *ir.Function:
		taken[k] = true
	case *ir.ConstAggregate:
		for _, e := range k.Elems {
			markTaken(e, taken)
		}
	case *ir.ConstExpr:
		for _, o := range k.Operands {
			markTaken(o, taken)
		}
	}
}

// singleInstance reports whether fn runs at most once per program run:
// its address never escapes and it is called from at most one site,
// outside any loop, by a function that itself runs at most once.
func (c *Context) singleInstance(fn *ir.Function) bool {
	c.mu.Lock()
	v, ok := c.single[fn]
	c.mu.Unlock()
	if ok {
		return v
	}
	// recursion through the call chain resolves to false
	c.mu.Lock()
	c.single[fn] = false
	c.mu.Unlock()

	v = false
	sites := c.calls[fn]
	switch {
	case c.taken[fn]:
	case len(sites) == 0:
		v = true
	case len(sites) == 1:
		call := sites[0]
		caller := call.Parent()
		v = !c.Graph(caller).InLoop(call.Block) && c.singleInstance(caller)
	}
	c.mu.Lock()
	c.single[fn] = v
	c.mu.Unlock()
	return v
}
