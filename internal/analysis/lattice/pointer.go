package lattice

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gnolang/absint/internal/ir"
)

// LocationKind tells where an abstract memory object lives.
type LocationKind int

const (
	StackLocation LocationKind = iota
	GlobalLocation
	HeapLocation
	FunctionLocation
)

func (k LocationKind) String() string {
	switch k {
	case StackLocation:
		return "stack"
	case GlobalLocation:
		return "global"
	case HeapLocation:
		return "heap"
	case FunctionLocation:
		return "function"
	}
	return "unknown"
}

// Location is an abstract memory object: a stack slot, a global, a heap
// allocation site or a function.
//
// Content is nil for untyped storage such as allocations of unknown size;
// such
// locations hold a single cell whose shape is set by the stores into it.
// Count is the number of objects of type Content (-1 when unknown).
// A Summary location stands for several concrete objects, so it can only
// be updated weakly.
type Location struct {
	ID      int
	Name    string
	Kind    LocationKind
	Content *Type
	Count   int
	Summary bool
	// Ref is the IR entity the location was created for.
	Ref any
}

func (l *Location) String() string {
	return l.Name
}

// Single reports whether the location holds exactly one typed object.
func (l *Location) Single() bool {
	return l.Content != nil && l.Count == 1
}

// Allocator hands out locations with run-unique, increasing IDs.
type Allocator struct {
	mu   sync.Mutex
	next int
}

func NewAllocator() *Allocator { return &Allocator{} }

func (a *Allocator) New(proto Location) *Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	loc := proto
	loc.ID = a.next
	a.next++
	return &loc
}

// Target is one possible pointee: a location plus the index path of the
// addressed cell. Path[0] selects the object within the location, further
// indices descend into its content. Any means the offset is unknown.
type Target struct {
	Loc  *Location
	Path []Int
	Any  bool
}

func (t Target) String() string {
	if t.Any {
		return t.Loc.Name + "+?"
	}
	var sb strings.Builder
	sb.WriteString(t.Loc.Name)
	for _, idx := range t.Path {
		fmt.Fprintf(&sb, "[%s]", idx)
	}
	return sb.String()
}

func (t Target) equal(o Target) bool {
	if t.Loc != o.Loc || t.Any != o.Any {
		return false
	}
	if t.Any {
		return true
	}
	if len(t.Path) != len(o.Path) {
		return false
	}
	for i := range t.Path {
		if !Equal(t.Path[i], o.Path[i]) {
			return false
		}
	}
	return true
}

// Exact reports whether every path index is a single value.
func (t Target) Exact() bool {
	if t.Any {
		return false
	}
	for _, idx := range t.Path {
		if _, ok := idx.Singleton(); !ok {
			return false
		}
	}
	return true
}

func mergeTargets(a, b Target, fn func(Value, Value) Value) Target {
	if a.Any || b.Any || len(a.Path) != len(b.Path) {
		return Target{Loc: a.Loc, Any: true}
	}
	path := make([]Int, len(a.Path))
	for i := range a.Path {
		r, ok := fn(a.Path[i], b.Path[i]).(Int)
		if !ok {
			return Target{Loc: a.Loc, Any: true}
		}
		path[i] = r
	}
	return Target{Loc: a.Loc, Path: path}
}

// Pointer is a points-to set. Targets are sorted by location ID with at
// most one target per location.
type Pointer struct {
	top     bool
	null    bool
	targets []Target
}

func PointerTop() Pointer    { return Pointer{top: true} }
func PointerBottom() Pointer { return Pointer{} }
func NullPointer() Pointer   { return Pointer{null: true} }

// PointerTo returns the pointer to the first object of loc.
func PointerTo(loc *Location) Pointer {
	return Pointer{targets: []Target{{Loc: loc, Path: []Int{IntConst(IndexType, 0)}}}}
}

// NewPointer builds a pointer from targets, merging duplicates.
func NewPointer(null bool, targets ...Target) Pointer {
	p := Pointer{null: null}
	for _, t := range targets {
		p = p.merge(Pointer{targets: []Target{t}}, Join)
	}
	return p
}

func (p Pointer) Type() *Type    { return PointerType }
func (p Pointer) IsTop() bool    { return p.top }
func (p Pointer) IsBottom() bool { return !p.top && !p.null && len(p.targets) == 0 }

// MayBeNull reports whether the pointer may be null. Top may be null.
func (p Pointer) MayBeNull() bool { return p.top || p.null }

// IsNull reports whether null is the only possible value.
func (p Pointer) IsNull() bool { return !p.top && p.null && len(p.targets) == 0 }

func (p Pointer) Targets() []Target { return p.targets }

// WithoutNull removes the null possibility.
func (p Pointer) WithoutNull() Pointer {
	if p.top {
		return p
	}
	return Pointer{targets: p.targets}
}

func (p Pointer) String() string {
	switch {
	case p.top:
		return "⊤"
	case p.IsBottom():
		return "⊥"
	}
	var parts []string
	if p.null {
		parts = append(parts, "null")
	}
	for _, t := range p.targets {
		parts = append(parts, "&"+t.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// merge combines points-to sets; targets on the same location combine
// their paths with fn.
func (p Pointer) merge(o Pointer, fn func(Value, Value) Value) Pointer {
	if p.top || o.top {
		return PointerTop()
	}
	r := Pointer{null: p.null || o.null}
	i, j := 0, 0
	for i < len(p.targets) || j < len(o.targets) {
		switch {
		case j >= len(o.targets) || (i < len(p.targets) && p.targets[i].Loc.ID < o.targets[j].Loc.ID):
			r.targets = append(r.targets, p.targets[i])
			i++
		case i >= len(p.targets) || o.targets[j].Loc.ID < p.targets[i].Loc.ID:
			r.targets = append(r.targets, o.targets[j])
			j++
		default:
			r.targets = append(r.targets, mergeTargets(p.targets[i], o.targets[j], fn))
			i++
			j++
		}
	}
	return r
}

func (p Pointer) intersect(o Pointer) Pointer {
	r := Pointer{null: p.null && o.null}
	for _, a := range p.targets {
		for _, b := range o.targets {
			if a.Loc != b.Loc {
				continue
			}
			switch {
			case a.Any:
				r.targets = append(r.targets, b)
			case b.Any:
				r.targets = append(r.targets, a)
			case len(a.Path) == len(b.Path):
				t := mergeTargets(a, b, Meet)
				if !t.Any && !anyBottom(t.Path) {
					r.targets = append(r.targets, t)
				}
			default:
				r.targets = append(r.targets, a)
			}
		}
	}
	return r
}

func anyBottom(path []Int) bool {
	for _, idx := range path {
		if idx.IsBottom() {
			return true
		}
	}
	return false
}

func (p Pointer) leq(o Pointer) bool {
	if o.top {
		return true
	}
	if p.top || (p.null && !o.null) {
		return false
	}
	for _, a := range p.targets {
		found := false
		for _, b := range o.targets {
			if a.Loc != b.Loc {
				continue
			}
			found = b.Any || (!a.Any && pathLeq(a.Path, b.Path))
			break
		}
		if !found {
			return false
		}
	}
	return true
}

func pathLeq(a, b []Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Leq(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (p Pointer) equal(o Pointer) bool {
	if p.top != o.top || p.null != o.null || len(p.targets) != len(o.targets) {
		return false
	}
	for i := range p.targets {
		if !p.targets[i].equal(o.targets[i]) {
			return false
		}
	}
	return true
}

// GEP offsets every target by the index list of a getelementptr whose
// source element type is source: the first index moves across cells of
// that type, the remaining ones descend into the cell. A target whose cell
// does not have the source shape, or indices that are not integers, make
// the offset unknown. A nil source skips the shape check.
func GEP(base Value, source *Type, indices []Value) (Value, error) {
	p, ok := base.(Pointer)
	if !ok {
		if base.IsBottom() {
			return PointerBottom(), nil
		}
		return nil, fmt.Errorf("%w: getelementptr on %s", ErrTypeMismatch, base.Type())
	}
	if p.IsBottom() {
		return p, nil
	}
	path := make([]Int, 0, len(indices))
	known, zero := true, true
	for _, v := range indices {
		if v.IsBottom() {
			return PointerBottom(), nil
		}
		idx, ok := toIndex(v)
		if !ok {
			known = false
			break
		}
		if k, single := idx.Singleton(); !single || k != 0 {
			zero = false
		}
		path = append(path, idx)
	}
	if p.top {
		return p, nil
	}
	r := Pointer{null: p.null}
	for _, t := range p.targets {
		switch {
		case t.Any || !known:
			t = Target{Loc: t.Loc, Any: true}
		case len(path) == 0 || zero && !t.fits(source):
			// same address, read through the first cell
		case !t.fits(source):
			t = Target{Loc: t.Loc, Any: true}
		default:
			last := len(t.Path) - 1
			np := make([]Int, 0, len(t.Path)+len(path)-1)
			np = append(np, t.Path[:last]...)
			np = append(np, t.Path[last].binary(ir.OpAdd, path[0]))
			np = append(np, path[1:]...)
			t = Target{Loc: t.Loc, Path: np}
		}
		r.targets = append(r.targets, t)
	}
	return r, nil
}

// fits reports whether the cell addressed by t has the shape of source.
func (t Target) fits(source *Type) bool {
	if source == nil {
		return len(t.Path) > 0
	}
	ct := t.CellType()
	return ct != nil && SameShape(ct, source)
}

// CellType returns the type of the cell addressed by t, or nil when it is
// not known.
func (t Target) CellType() *Type {
	if t.Any || len(t.Path) == 0 {
		return nil
	}
	ct := t.Loc.Content
	for _, idx := range t.Path[1:] {
		if ct == nil {
			return nil
		}
		switch ct.Kind {
		case ArrayKind:
			ct = ct.Elem
		case StructKind:
			k, ok := idx.Singleton()
			if !ok || k < 0 || k >= int64(len(ct.Fields)) {
				return nil
			}
			ct = ct.Fields[k]
		default:
			return nil
		}
	}
	return ct
}

// toIndex sign-extends an integer index to 64 bits.
func toIndex(v Value) (Int, bool) {
	switch x := v.(type) {
	case Int:
		if x.t.Width == 64 {
			return x, true
		}
		return Int{t: IndexType, lo: x.lo, hi: x.hi}, true
	case Bool:
		switch {
		case x == True:
			return IntConst(IndexType, 1), true
		case x == False:
			return IntConst(IndexType, 0), true
		}
		return IntRange(IndexType, 0, 1), true
	}
	return Int{}, false
}
