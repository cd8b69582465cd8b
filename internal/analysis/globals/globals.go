// Package globals computes the initial abstract value of every global
// variable, ordering initializers along their reference graph.
package globals

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gnolang/absint/internal/analysis/factory"
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/ir"
)

// ErrUnknownGlobal is returned for a name or global the manager never
// registered.
var ErrUnknownGlobal = errors.New("unknown global")

type color int

const (
	white color = iota
	grey
	black
)

// node is one global of the reference graph.
type node struct {
	g     *ir.Global
	refs  []*node
	color color
	// cycled marks globals reached again while still on the DFS stack,
	// together with every global between them on that stack.
	cycled bool
	loc    *lattice.Location
	value  lattice.Value
}

// Manager owns the locations and initial contents of globals, and the
// locations standing for functions. It is read-only after Init except for
// the memoized function entries, which are guarded.
type Manager struct {
	factory *factory.Factory
	alloc   *lattice.Allocator

	nodes  []*node
	byGlob map[*ir.Global]*node
	byName map[string]*node
	order  []*node

	mu        sync.Mutex
	functions map[string]*ir.Function
	funcLocs  map[*ir.Function]*lattice.Location
}

func New(f *factory.Factory, alloc *lattice.Allocator) *Manager {
	return &Manager{
		factory:   f,
		alloc:     alloc,
		byGlob:    make(map[*ir.Global]*node),
		byName:    make(map[string]*node),
		functions: make(map[string]*ir.Function),
		funcLocs:  make(map[*ir.Function]*lattice.Location),
	}
}

// AddFunctions registers functions so that Get can resolve them by name.
func (m *Manager) AddFunctions(fns ...*ir.Function) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fn := range fns {
		m.functions[fn.Name] = fn
	}
}

// Init registers globals and every global their initializers reference,
// orders them and computes their initial values.
func (m *Manager) Init(globals []*ir.Global) error {
	m.collect(globals)
	m.sort()

	for _, n := range m.nodes {
		if n.cycled {
			n.value = m.factory.Get(n.g.ValueType)
		}
	}
	for _, n := range m.order {
		if n.cycled {
			continue
		}
		if err := m.compute(n); err != nil {
			return err
		}
	}
	for _, n := range m.order {
		if !n.cycled {
			continue
		}
		if err := m.compute(n); err != nil {
			return err
		}
	}
	return nil
}

// collect builds the reference graph over the transitive closure of globals.
func (m *Manager) collect(globals []*ir.Global) {
	var pending []*node
	add := func(g *ir.Global) *node {
		if n, ok := m.byGlob[g]; ok {
			return n
		}
		n := &node{g: g}
		n.loc = m.alloc.New(lattice.Location{
			Name:    "@" + g.Name,
			Kind:    lattice.GlobalLocation,
			Content: m.factory.Type(g.ValueType),
			Count:   1,
			Ref:     g,
		})
		m.nodes = append(m.nodes, n)
		m.byGlob[g] = n
		m.byName[g.Name] = n
		pending = append(pending, n)
		return n
	}
	for _, g := range globals {
		add(g)
	}
	for len(pending) > 0 {
		n := pending[0]
		pending = pending[1:]
		seen := make(map[*ir.Global]bool)
		walkConstant(n.g.Init, func(ref *ir.Global) {
			if seen[ref] {
				return
			}
			seen[ref] = true
			n.refs = append(n.refs, add(ref))
		})
	}
}

// walkConstant calls fn for every global referenced by c, in operand order.
func walkConstant(c ir.Constant, fn func(*ir.Global)) {
	switch c := c.(type) {
	case *ir.Global:
		fn(c)
	case *ir.ConstAggregate:
		for _, e := range c.Elems {
			walkConstant(e, fn)
		}
	case *ir.ConstExpr:
		for _, o := range c.Operands {
			walkConstant(o, fn)
		}
	}
}

type frame struct {
	n    *node
	next int
}

// sort runs an iterative three-colour DFS from every node in registration
// order and records nodes in post-order, so references precede referrers.
func (m *Manager) sort() {
	for _, root := range m.nodes {
		if root.color != white {
			continue
		}
		stack := []frame{{n: root}}
		root.color = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.n.refs) {
				ref := top.n.refs[top.next]
				top.next++
				switch ref.color {
				case white:
					ref.color = grey
					stack = append(stack, frame{n: ref})
				case grey:
					markCycle(stack, ref)
				}
				continue
			}
			top.n.color = black
			m.order = append(m.order, top.n)
			stack = stack[:len(stack)-1]
		}
	}
}

// markCycle flags every frame from ref up to the top of the stack.
func markCycle(stack []frame, ref *node) {
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i].n.cycled = true
		if stack[i].n == ref {
			return
		}
	}
}

func (m *Manager) compute(n *node) error {
	if n.g.Init == nil {
		n.value = m.factory.Top(n.g.ValueType)
		return nil
	}
	v, err := m.factory.Constant(n.g.Init, m)
	if err != nil {
		return fmt.Errorf("initializer of @%s: %w", n.g.Name, err)
	}
	n.value = v
	return nil
}

// Address resolves globals and functions used as constants to a pointer
// at their location.
func (m *Manager) Address(c ir.Constant) (lattice.Value, error) {
	switch c := c.(type) {
	case *ir.Global:
		n, ok := m.byGlob[c]
		if !ok {
			return nil, fmt.Errorf("%w: @%s", ErrUnknownGlobal, c.Name)
		}
		return lattice.PointerTo(n.loc), nil
	case *ir.Function:
		return lattice.PointerTo(m.FunctionLocation(c)), nil
	}
	return nil, fmt.Errorf("%w: %s is not addressable", ErrUnknownGlobal, c.Ident())
}

// Get returns the initial value of the global called name, or the pointer
// value of the function called name.
func (m *Manager) Get(name string) (lattice.Value, error) {
	if n, ok := m.byName[name]; ok {
		return n.value, nil
	}
	m.mu.Lock()
	fn, ok := m.functions[name]
	m.mu.Unlock()
	if ok {
		return lattice.PointerTo(m.FunctionLocation(fn)), nil
	}
	return nil, fmt.Errorf("%w: @%s", ErrUnknownGlobal, name)
}

// FunctionLocation returns the memoized location standing for fn.
func (m *Manager) FunctionLocation(fn *ir.Function) *lattice.Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loc, ok := m.funcLocs[fn]; ok {
		return loc
	}
	loc := m.alloc.New(lattice.Location{
		Name:  "@" + fn.Name,
		Kind:  lattice.FunctionLocation,
		Count: 1,
		Ref:   fn,
	})
	m.funcLocs[fn] = loc
	if _, ok := m.functions[fn.Name]; !ok {
		m.functions[fn.Name] = fn
	}
	return loc
}

// Location returns the location of g.
func (m *Manager) Location(g *ir.Global) (*lattice.Location, error) {
	n, ok := m.byGlob[g]
	if !ok {
		return nil, fmt.Errorf("%w: @%s", ErrUnknownGlobal, g.Name)
	}
	return n.loc, nil
}

// Order returns the globals in initialization order.
func (m *Manager) Order() []*ir.Global {
	out := make([]*ir.Global, len(m.order))
	for i, n := range m.order {
		out[i] = n.g
	}
	return out
}

// Cycled reports whether g was found on a reference cycle.
func (m *Manager) Cycled(g *ir.Global) bool {
	n, ok := m.byGlob[g]
	return ok && n.cycled
}

// Memory returns the initial memory image: the content of every global
// location.
func (m *Manager) Memory() map[*lattice.Location]lattice.Value {
	mem := make(map[*lattice.Location]lattice.Value, len(m.nodes))
	for _, n := range m.nodes {
		mem[n.loc] = n.value
	}
	return mem
}
