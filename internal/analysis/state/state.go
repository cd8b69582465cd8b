// Package state holds the abstract environment of one program point.
package state

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/ir"
)

// State maps IR values to abstract values, abstract memory locations to
// their content, and carries the function's return slot. A key missing
// from either map stands for bottom.
type State struct {
	values map[ir.Value]lattice.Value
	memory map[*lattice.Location]lattice.Value
	ret    lattice.Value
}

func New() *State {
	return &State{
		values: make(map[ir.Value]lattice.Value),
		memory: make(map[*lattice.Location]lattice.Value),
	}
}

// AddVariable binds v to d, replacing any previous binding.
func (s *State) AddVariable(v ir.Value, d lattice.Value) {
	s.values[v] = d
}

// Find returns the binding of v, or nil.
func (s *State) Find(v ir.Value) lattice.Value {
	return s.values[v]
}

// Variables returns the bound IR values ordered by identifier.
func (s *State) Variables() []ir.Value {
	vs := make([]ir.Value, 0, len(s.values))
	for v := range s.values {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].Ident() < vs[j].Ident() })
	return vs
}

// Memory returns the content of loc, or nil when nothing was stored.
func (s *State) Memory(loc *lattice.Location) lattice.Value {
	return s.memory[loc]
}

func (s *State) SetMemory(loc *lattice.Location, v lattice.Value) {
	s.memory[loc] = v
}

// Locations returns the locations with content ordered by ID.
func (s *State) Locations() []*lattice.Location {
	locs := make([]*lattice.Location, 0, len(s.memory))
	for l := range s.memory {
		locs = append(locs, l)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].ID < locs[j].ID })
	return locs
}

func (s *State) Return() lattice.Value { return s.ret }

func (s *State) SetReturn(v lattice.Value) { s.ret = v }

// Clone returns a copy sharing the immutable abstract values.
func (s *State) Clone() *State {
	c := &State{
		values: make(map[ir.Value]lattice.Value, len(s.values)),
		memory: make(map[*lattice.Location]lattice.Value, len(s.memory)),
		ret:    s.ret,
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	for k, v := range s.memory {
		c.memory[k] = v
	}
	return c
}

// MemoryOnly returns a copy of s without value bindings and return slot.
func (s *State) MemoryOnly() *State {
	c := New()
	for k, v := range s.memory {
		c.memory[k] = v
	}
	return c
}

// DropMemory forgets loc entirely.
func (s *State) DropMemory(loc *lattice.Location) {
	delete(s.memory, loc)
}

// Merge joins o into s point-wise.
func (s *State) Merge(o *State) {
	s.combine(o, lattice.Join)
}

// Widen replaces s by the widening of s with o.
func (s *State) Widen(o *State) {
	s.combine(o, lattice.Widen)
}

func (s *State) combine(o *State, fn func(a, b lattice.Value) lattice.Value) {
	for k, v := range o.values {
		s.values[k] = fn(s.values[k], v)
	}
	for k, v := range o.memory {
		s.memory[k] = fn(s.memory[k], v)
	}
	if o.ret != nil {
		s.ret = fn(s.ret, o.ret)
	}
}

// Equal reports whether s and o bind lattice-equal values everywhere.
func (s *State) Equal(o *State) bool {
	return s.Leq(o) && o.Leq(s)
}

// Leq reports whether every binding of s approximates the one in o.
func (s *State) Leq(o *State) bool {
	for k, v := range s.values {
		if !lattice.Leq(v, o.values[k]) {
			return false
		}
	}
	for k, v := range s.memory {
		if !lattice.Leq(v, o.memory[k]) {
			return false
		}
	}
	return lattice.Leq(s.ret, o.ret)
}

// Load reads the cell addressed by t as a value of type want.
func (s *State) Load(t lattice.Target, want *lattice.Type) lattice.Value {
	if t.Any || len(t.Path) == 0 {
		return lattice.Top(want)
	}
	loc := t.Loc
	content := s.memory[loc]
	if loc.Kind == lattice.FunctionLocation {
		return lattice.Top(want)
	}
	if loc.Content == nil {
		if !isZero(t.Path[0]) || len(t.Path) > 1 {
			return lattice.Top(want)
		}
		return lattice.Extract(content, nil, want)
	}
	if !s.inObject(loc, t.Path[0]) {
		return lattice.Top(want)
	}
	if content == nil {
		content = lattice.Bottom(loc.Content)
	}
	return lattice.Extract(content, t.Path[1:], want)
}

// Store writes v into the cell addressed by t. The update is strong only
// when strong is set, the location stands for a single object and the
// path selects exactly one cell.
func (s *State) Store(t lattice.Target, v lattice.Value, strong bool) {
	loc := t.Loc
	if loc.Kind == lattice.FunctionLocation {
		return
	}
	if t.Any || len(t.Path) == 0 {
		s.Havoc(loc)
		return
	}
	strong = strong && !loc.Summary
	content := s.memory[loc]
	if loc.Content == nil {
		if !isZero(t.Path[0]) || len(t.Path) > 1 {
			s.Havoc(loc)
			return
		}
		s.memory[loc] = lattice.Update(content, nil, v, strong)
		return
	}
	if !s.inObject(loc, t.Path[0]) {
		// writes past the object are undefined
		return
	}
	if loc.Count != 1 || !isZero(t.Path[0]) {
		strong = false
	}
	if content == nil {
		content = lattice.Bottom(loc.Content)
	}
	s.memory[loc] = lattice.Update(content, t.Path[1:], v, strong)
}

// Havoc forgets everything known about the content of loc.
func (s *State) Havoc(loc *lattice.Location) {
	if loc.Kind == lattice.FunctionLocation {
		return
	}
	if loc.Content == nil {
		s.memory[loc] = lattice.Top(nil)
		return
	}
	s.memory[loc] = lattice.Top(loc.Content)
}

// inObject reports whether the object index may select one of the
// objects of loc.
func (s *State) inObject(loc *lattice.Location, idx lattice.Int) bool {
	if idx.IsBottom() {
		return false
	}
	lo, hi := idx.Bounds()
	if hi < 0 {
		return false
	}
	return loc.Count < 0 || lo < int64(loc.Count)
}

func isZero(idx lattice.Int) bool {
	k, ok := idx.Singleton()
	return ok && k == 0
}

// Dump writes the bindings, memory and return slot, one per line, in a
// stable order.
func (s *State) Dump(w io.Writer) error {
	var sb strings.Builder
	for _, v := range s.Variables() {
		fmt.Fprintf(&sb, "%s = %s\n", v.Ident(), s.values[v])
	}
	for _, l := range s.Locations() {
		fmt.Fprintf(&sb, "%s -> %s\n", l.Name, s.memory[l])
	}
	if s.ret != nil {
		fmt.Fprintf(&sb, "ret %s\n", s.ret)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
