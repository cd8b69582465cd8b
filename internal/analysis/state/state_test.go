package state

import (
	"strings"
	"testing"

	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var i32 = lattice.IntType(32)

func args(n int) []*ir.Argument {
	m := ir.NewModule("m")
	params := make([]*ir.Type, n)
	for i := range params {
		params[i] = ir.I32
	}
	fn := m.NewFunction("f", ir.FuncOf(ir.Void, params...), "a", "b", "c")
	return fn.Params
}

func TestMergeTreatsMissingAsBottom(t *testing.T) {
	t.Parallel()
	p := args(3)
	s1, s2 := New(), New()
	s1.AddVariable(p[0], lattice.IntConst(i32, 1))
	s1.AddVariable(p[1], lattice.IntConst(i32, 5))
	s2.AddVariable(p[1], lattice.IntConst(i32, 9))
	s2.AddVariable(p[2], lattice.True)
	s2.SetReturn(lattice.IntConst(i32, 0))

	s1.Merge(s2)
	assert.Equal(t, "1", s1.Find(p[0]).String())
	assert.Equal(t, "[5, 9]", s1.Find(p[1]).String())
	assert.Equal(t, "true", s1.Find(p[2]).String())
	assert.Equal(t, "0", s1.Return().String())
	assert.True(t, s2.Leq(s1))
	assert.False(t, s1.Leq(s2))
}

func TestEqualIsStructural(t *testing.T) {
	t.Parallel()
	p := args(2)
	s1, s2 := New(), New()
	s1.AddVariable(p[0], lattice.IntRange(i32, 0, 3))
	s2.AddVariable(p[0], lattice.IntRange(i32, 0, 3))
	// an explicit bottom equals a missing binding
	s2.AddVariable(p[1], lattice.IntBottom(i32))
	assert.True(t, s1.Equal(s2))
	assert.True(t, s2.Equal(s1))

	s2.AddVariable(p[1], lattice.IntConst(i32, 1))
	assert.False(t, s1.Equal(s2))
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	p := args(1)
	loc := &lattice.Location{ID: 1, Name: "x", Content: i32, Count: 1}
	s := New()
	s.AddVariable(p[0], lattice.IntConst(i32, 1))
	s.SetMemory(loc, lattice.IntConst(i32, 2))

	c := s.Clone()
	c.AddVariable(p[0], lattice.IntConst(i32, 10))
	c.SetMemory(loc, lattice.IntConst(i32, 20))
	assert.Equal(t, "1", s.Find(p[0]).String())
	assert.Equal(t, "2", s.Memory(loc).String())
	assert.Nil(t, s.Find(args(1)[0]))
}

func TestWiden(t *testing.T) {
	t.Parallel()
	p := args(1)
	s1, s2 := New(), New()
	s1.AddVariable(p[0], lattice.IntRange(i32, 0, 1))
	s2.AddVariable(p[0], lattice.IntRange(i32, 0, 2))
	s1.Widen(s2)
	assert.Equal(t, "[0, +∞]", s1.Find(p[0]).String())
}

func TestStrongAndWeakUpdates(t *testing.T) {
	t.Parallel()
	slot := &lattice.Location{ID: 1, Name: "slot", Content: i32, Count: 1}
	summary := &lattice.Location{ID: 2, Name: "site", Content: i32, Count: 1, Summary: true}
	arr := &lattice.Location{ID: 3, Name: "arr", Content: lattice.ArrayType(i32, 3, 8), Count: 1}
	at := func(loc *lattice.Location, path ...int64) lattice.Target {
		tg := lattice.Target{Loc: loc}
		for _, k := range path {
			tg.Path = append(tg.Path, lattice.IntConst(lattice.IndexType, k))
		}
		return tg
	}

	s := New()
	s.SetMemory(slot, lattice.IntConst(i32, 1))
	s.SetMemory(summary, lattice.IntConst(i32, 1))

	s.Store(at(slot, 0), lattice.IntConst(i32, 7), true)
	assert.Equal(t, "7", s.Load(at(slot, 0), i32).String())

	// an aliased pointer writes weakly
	s.Store(at(slot, 0), lattice.IntConst(i32, 9), false)
	assert.Equal(t, "[7, 9]", s.Load(at(slot, 0), i32).String())

	// a summary location is never strongly updated
	s.Store(at(summary, 0), lattice.IntConst(i32, 5), true)
	assert.Equal(t, "[1, 5]", s.Load(at(summary, 0), i32).String())

	s.Store(at(arr, 0, 1), lattice.IntConst(i32, 4), true)
	assert.Equal(t, "[⊥, 4, ⊥]", s.Memory(arr).String())

	inexact := lattice.Target{Loc: arr, Path: []lattice.Int{
		lattice.IntConst(lattice.IndexType, 0), lattice.IntRange(lattice.IndexType, 1, 2),
	}}
	s.Store(inexact, lattice.IntConst(i32, 6), true)
	assert.Equal(t, "[⊥, [4, 6], 6]", s.Memory(arr).String())
	assert.Equal(t, "[4, 6]", s.Load(inexact, i32).String())

	s.Store(lattice.Target{Loc: slot, Any: true}, lattice.IntConst(i32, 0), true)
	assert.True(t, s.Memory(slot).IsTop())
	assert.True(t, s.Load(lattice.Target{Loc: arr, Any: true}, i32).IsTop())

	// out of object reads are unknown, writes are dropped
	before := s.Memory(arr)
	s.Store(at(arr, 1, 0), lattice.IntConst(i32, 1), true)
	assert.True(t, lattice.Equal(before, s.Memory(arr)))
	assert.True(t, s.Load(at(arr, 1, 0), i32).IsTop())
}

func TestUntypedLocation(t *testing.T) {
	t.Parallel()
	heap := &lattice.Location{ID: 4, Name: "heap", Kind: lattice.HeapLocation, Count: -1}
	zero := lattice.Target{Loc: heap, Path: []lattice.Int{lattice.IntConst(lattice.IndexType, 0)}}

	s := New()
	assert.True(t, s.Load(zero, i32).IsBottom())
	s.Store(zero, lattice.IntConst(i32, 3), true)
	assert.Equal(t, "3", s.Load(zero, i32).String())

	off := lattice.Target{Loc: heap, Path: []lattice.Int{lattice.IntConst(lattice.IndexType, 2)}}
	s.Store(off, lattice.IntConst(i32, 1), true)
	assert.True(t, s.Load(zero, i32).IsTop())
}

func TestDump(t *testing.T) {
	t.Parallel()
	p := args(2)
	loc := &lattice.Location{ID: 1, Name: "@g", Content: i32, Count: 1}
	s := New()
	s.AddVariable(p[1], lattice.IntRange(i32, 0, 9))
	s.AddVariable(p[0], lattice.PointerTo(loc))
	s.SetMemory(loc, lattice.IntConst(i32, 4))
	s.SetReturn(lattice.False)

	var sb strings.Builder
	require.NoError(t, s.Dump(&sb))
	assert.Equal(t, "%a = {&@g[0]}\n%b = [0, 9]\n@g -> 4\nret false\n", sb.String())
}

func TestMemoryOnly(t *testing.T) {
	t.Parallel()
	p := args(1)
	loc := &lattice.Location{ID: 1, Name: "x", Content: i32, Count: 1}
	s := New()
	s.AddVariable(p[0], lattice.IntConst(i32, 1))
	s.SetMemory(loc, lattice.IntConst(i32, 2))
	s.SetReturn(lattice.True)

	m := s.MemoryOnly()
	assert.Nil(t, m.Find(p[0]))
	assert.Nil(t, m.Return())
	assert.Equal(t, "2", m.Memory(loc).String())

	m.DropMemory(loc)
	assert.Empty(t, m.Locations())
	assert.Len(t, s.Locations(), 1)
}
