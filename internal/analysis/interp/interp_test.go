package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gnolang/absint/internal/analysis/globals"
	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/analysis/state"
	"github.com/gnolang/absint/internal/ir"
)

func i32(v int64) *ir.ConstInt { return ir.NewInt(ir.I32, v) }

func analyze(t *testing.T, m *ir.Module, opts ...func(*Config)) (*Interpreter, *Result) {
	t.Helper()
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	ctx, err := NewContext(m, config, zaptest.NewLogger(t))
	require.NoError(t, err)
	in := New(ctx)
	res, err := in.Run()
	require.NoError(t, err)
	return in, res
}

func runErr(t *testing.T, m *ir.Module) error {
	t.Helper()
	ctx, err := NewContext(m, DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = New(ctx).Run()
	return err
}

func returned(t *testing.T, res *Result, fn *ir.Function) string {
	t.Helper()
	fr, ok := res.Functions[fn]
	require.True(t, ok, "%s not analyzed", fn.Name)
	require.NotNil(t, fr.Return(), "%s never returns", fn.Name)
	return fr.Return().String()
}

func valueAt(t *testing.T, res *Result, inst *ir.Instruction) string {
	t.Helper()
	out := res.Functions[inst.Parent()].Blocks[inst.Block].Out
	require.NotNil(t, out)
	return out.Find(inst).String()
}

func TestStraightLine(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	b := ir.NewBuilder(fn.NewBlock("entry"))
	x := b.Named("x").Alloca(ir.I32)
	b.Store(i32(5), x)
	v := b.Load(ir.I32, x)
	y := b.Named("y").Binary(ir.OpAdd, v, i32(3))
	b.Ret(y)

	_, res := analyze(t, m)
	assert.Equal(t, "8", valueAt(t, res, y))
	assert.Equal(t, "8", returned(t, res, fn))
	assert.Equal(t, 1, res.Functions[fn].Blocks[fn.Entry()].Visits)
}

func TestStrongAndWeakUpdates(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	nondet := m.NewFunction(NondetIntrinsic, ir.FuncOf(ir.I1))
	fn := m.NewFunction("main", ir.FuncOf(ir.Void))
	b := ir.NewBuilder(fn.NewBlock("entry"))
	a := b.Named("a").Alloca(ir.I32)
	c := b.Named("c").Alloca(ir.I32)
	b.Store(i32(0), a)
	b.Store(i32(0), c)
	b.Store(i32(1), a) // single target: strong
	cond := b.Call(nondet, nondet.Sig)
	p := b.Select(cond, a, c)
	b.Store(i32(7), p) // two targets: weak
	la := b.Load(ir.I32, a)
	lc := b.Load(ir.I32, c)
	b.Ret(nil)

	_, res := analyze(t, m)
	assert.Equal(t, "[1, 7]", valueAt(t, res, la))
	assert.Equal(t, "[0, 7]", valueAt(t, res, lc))
}

// countTo builds a loop incrementing i from 0 while i < limit.
func countTo(limit int64) (*ir.Module, *ir.Function, *ir.Instruction) {
	m := ir.NewModule("m")
	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	entry, header := fn.NewBlock("entry"), fn.NewBlock("header")
	body, exit := fn.NewBlock("body"), fn.NewBlock("exit")
	b := ir.NewBuilder(entry)
	b.Br(header)
	b.SetBlock(header)
	i := b.Named("i").Phi(ir.I32)
	cond := b.ICmp(ir.IntSLT, i, i32(limit))
	b.CondBr(cond, body, exit)
	b.SetBlock(body)
	next := b.Binary(ir.OpAdd, i, i32(1))
	b.Br(header)
	i.AddIncoming(i32(0), entry)
	i.AddIncoming(next, body)
	b.SetBlock(exit)
	b.Ret(i)
	return m, fn, i
}

func TestLoopTerminatesWithWidening(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		delay int
	}{
		{"immediate", 0},
		{"delayed", 3},
		{"long delay", 10},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, fn, i := countTo(100)
			_, res := analyze(t, m, func(c *Config) { c.WideningDelay = tt.delay })

			fr := res.Functions[fn]
			header := fn.Block("header")
			assert.Equal(t, "[0, +∞]", fr.Blocks[header].In.Find(i).String())
			assert.Equal(t, "[100, +∞]", returned(t, res, fn))
			assert.LessOrEqual(t, fr.Blocks[header].Visits, tt.delay+3)
			assert.Equal(t, "[0, 99]", fr.Blocks[fn.Block("body")].In.Find(i).String())
		})
	}
}

func TestBranchRefinement(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	nondet := m.NewFunction(NondetIntrinsic, ir.FuncOf(ir.I32))
	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	entry, pos, neg, tail := fn.NewBlock("entry"), fn.NewBlock("pos"), fn.NewBlock("neg"), fn.NewBlock("tail")
	b := ir.NewBuilder(entry)
	slot := b.Named("slot").Alloca(ir.I32)
	b.Store(b.Call(nondet, nondet.Sig), slot)
	v := b.Load(ir.I32, slot)
	b.CondBr(b.ICmp(ir.IntSGT, v, i32(0)), pos, neg)

	b.SetBlock(pos)
	w := b.Load(ir.I32, slot)
	b.Ret(w)

	b.SetBlock(neg)
	always := b.ICmp(ir.IntEQ, i32(5), i32(5))
	b.CondBr(always, tail, tail)

	b.SetBlock(tail)
	b.Ret(i32(0))

	_, res := analyze(t, m)
	fr := res.Functions[fn]
	assert.Equal(t, "[1, +∞]", valueAt(t, res, w))
	assert.Equal(t, "[-∞, 0]", fr.Blocks[neg].In.Find(v).String())
	assert.Equal(t, "[-∞, 0]", fr.Blocks[neg].In.Memory(fr.Blocks[neg].In.Locations()[0]).String())
	assert.True(t, fr.Reached(tail))
	assert.Equal(t, "[0, +∞]", returned(t, res, fn))
}

func TestInfeasibleEdgesAreDropped(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	entry, yes, no := fn.NewBlock("entry"), fn.NewBlock("yes"), fn.NewBlock("no")
	b := ir.NewBuilder(entry)
	x := b.Binary(ir.OpAdd, i32(2), i32(3))
	b.CondBr(b.ICmp(ir.IntEQ, x, i32(5)), yes, no)
	b.SetBlock(yes)
	b.Ret(i32(1))
	b.SetBlock(no)
	b.Ret(i32(2))

	_, res := analyze(t, m)
	fr := res.Functions[fn]
	assert.True(t, fr.Reached(yes))
	assert.False(t, fr.Reached(no))
	assert.Equal(t, "1", returned(t, res, fn))
}

func TestSwitch(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	nondet := m.NewFunction(NondetIntrinsic, ir.FuncOf(ir.I32))
	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	entry, one, two, def := fn.NewBlock("entry"), fn.NewBlock("one"), fn.NewBlock("two"), fn.NewBlock("def")
	b := ir.NewBuilder(entry)
	x := b.Named("x").Call(nondet, nondet.Sig)
	b.Switch(x, def, ir.SwitchCase{Value: i32(1), Dest: one}, ir.SwitchCase{Value: i32(2), Dest: two})
	for _, bb := range []*ir.BasicBlock{one, two, def} {
		b.SetBlock(bb)
		b.Ret(x)
	}

	_, res := analyze(t, m)
	fr := res.Functions[fn]
	assert.Equal(t, "1", fr.Blocks[one].In.Find(x).String())
	assert.Equal(t, "2", fr.Blocks[two].In.Find(x).String())
	assert.True(t, fr.Blocks[def].In.Find(x).IsTop())
}

func TestCallsAndSummaries(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	inc := m.NewFunction("inc", ir.FuncOf(ir.I32, ir.I32), "x")
	b := ir.NewBuilder(inc.NewBlock("entry"))
	b.Ret(b.Binary(ir.OpAdd, inc.Params[0], i32(1)))

	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	b = ir.NewBuilder(fn.NewBlock("entry"))
	first := b.Call(inc, inc.Sig, i32(5))
	again := b.Call(inc, inc.Sig, i32(5))
	wider := b.Call(inc, inc.Sig, i32(10))
	b.Ret(first)

	in, res := analyze(t, m)
	assert.Equal(t, "6", valueAt(t, res, first))
	assert.Equal(t, "[6, 11]", valueAt(t, res, wider))
	assert.Equal(t, "6", returned(t, res, fn))
	// the second call reused the first summary, the third grew it
	assert.Equal(t, "6", valueAt(t, res, again))
	assert.Equal(t, 2, in.summaries[inc].analyses)
}

func TestCalleeWritesThroughArgument(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	g := m.NewGlobal("g", ir.I32, i32(0))
	set := m.NewFunction("set", ir.FuncOf(ir.Void, ir.Ptr), "p")
	b := ir.NewBuilder(set.NewBlock("entry"))
	local := b.Named("local").Alloca(ir.I32)
	b.Store(i32(1), local)
	b.Store(i32(42), set.Params[0])
	b.Ret(nil)

	ext := m.NewFunction("touch", ir.FuncOf(ir.Void, ir.Ptr))

	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	b = ir.NewBuilder(fn.NewBlock("entry"))
	b.Call(set, set.Sig, g)
	v := b.Load(ir.I32, g)
	b.Call(ext, ext.Sig, g)
	w := b.Load(ir.I32, g)
	b.Ret(v)

	_, res := analyze(t, m)
	assert.Equal(t, "42", valueAt(t, res, v))
	assert.Equal(t, "⊤", valueAt(t, res, w))
	// the callee's stack slot does not leak into the caller
	for _, loc := range res.Functions[fn].Exit.Locations() {
		assert.NotEqual(t, "set.local", loc.Name)
	}
}

func TestFunctionPointers(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	sig := ir.FuncOf(ir.I32, ir.I32)
	double := m.NewFunction("double", sig, "x")
	b := ir.NewBuilder(double.NewBlock("entry"))
	b.Ret(b.Binary(ir.OpMul, double.Params[0], i32(2)))
	triple := m.NewFunction("triple", sig, "x")
	b = ir.NewBuilder(triple.NewBlock("entry"))
	b.Ret(b.Binary(ir.OpMul, triple.Params[0], i32(3)))
	m.NewGlobal("handler", ir.Ptr, double)
	m.NewGlobal("other", ir.Ptr, triple)

	fn := m.NewFunction("main", ir.FuncOf(ir.I32, ir.Ptr), "unknown")
	b = ir.NewBuilder(fn.NewBlock("entry"))
	fp := b.Load(ir.Ptr, m.Global("handler"))
	direct := b.Call(fp, sig, i32(4))
	indirect := b.Call(fn.Params[0], sig, i32(4))
	b.Ret(direct)

	_, res := analyze(t, m)
	assert.Equal(t, "8", valueAt(t, res, direct))
	// an unknown pointer may call any address-taken function of that type
	assert.Equal(t, "[8, 12]", valueAt(t, res, indirect))
}

func TestRecursionAndDepthLimit(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	fact := m.NewFunction("fact", ir.FuncOf(ir.I32, ir.I32), "n")
	entry, base, rec := fact.NewBlock("entry"), fact.NewBlock("base"), fact.NewBlock("rec")
	b := ir.NewBuilder(entry)
	n := fact.Params[0]
	b.CondBr(b.ICmp(ir.IntSLE, n, i32(1)), base, rec)
	b.SetBlock(base)
	b.Ret(i32(1))
	b.SetBlock(rec)
	r := b.Call(fact, fact.Sig, b.Binary(ir.OpSub, n, i32(1)))
	b.Ret(b.Binary(ir.OpMul, n, r))

	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	b = ir.NewBuilder(fn.NewBlock("entry"))
	call := b.Call(fact, fact.Sig, i32(5))
	b.Ret(call)

	_, res := analyze(t, m)
	assert.Equal(t, "⊤", valueAt(t, res, r))
	assert.Equal(t, "⊤", valueAt(t, res, call))

	_, res = analyze(t, m, func(c *Config) { c.MaxCallDepth = 1 })
	assert.Equal(t, "⊤", valueAt(t, res, call))
	_, analyzed := res.Functions[fact]
	// reached through analyze_all only
	assert.True(t, analyzed)
}

func TestIntrinsics(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	nondet := m.NewFunction(NondetIntrinsic, ir.FuncOf(ir.I32))
	assume := m.NewFunction(AssumeIntrinsic, ir.FuncOf(ir.Void, ir.I1))
	malloc := m.NewFunction("malloc", ir.FuncOf(ir.Ptr, ir.I64))
	abort := m.NewFunction("abort", ir.FuncOf(ir.Void))

	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	entry, bad := fn.NewBlock("entry"), fn.NewBlock("bad")
	b := ir.NewBuilder(entry)
	x := b.Call(nondet, nondet.Sig)
	b.Call(assume, assume.Sig, b.ICmp(ir.IntSLT, x, i32(10)))
	p := b.Call(malloc, malloc.Sig, ir.NewInt(ir.I64, 4))
	b.Store(x, p)
	v := b.Load(ir.I32, p)
	b.Ret(v)
	b.SetBlock(bad)
	b.Call(abort, abort.Sig)
	b.Ret(i32(0))

	_, res := analyze(t, m, func(c *Config) { c.Entry = []string{"main"} })
	assert.Equal(t, "[-∞, 9]", valueAt(t, res, v))
	assert.Equal(t, "{&heap.main.t2[0][0]}", valueAt(t, res, p))
	assert.False(t, res.Functions[fn].Reached(bad))
}

func TestStoreThroughUnknownPointer(t *testing.T) {
	t.Parallel()
	sizes := []struct {
		name string
		size func(b *ir.Builder, m *ir.Module) ir.Value
	}{
		{"typed heap", func(*ir.Builder, *ir.Module) ir.Value { return ir.NewInt(ir.I64, 4) }},
		{"untyped heap", func(b *ir.Builder, m *ir.Module) ir.Value {
			nondet := m.NewFunction(NondetIntrinsic, ir.FuncOf(ir.I64))
			return b.Call(nondet, nondet.Sig)
		}},
	}
	for _, tc := range sizes {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := ir.NewModule("m")
			malloc := m.NewFunction("malloc", ir.FuncOf(ir.Ptr, ir.I64))
			ext := m.NewFunction("ext", ir.FuncOf(ir.Ptr))
			g := m.NewGlobal("g", ir.Ptr, &ir.ConstNull{Typ: ir.Ptr})

			fn := m.NewFunction("main", ir.FuncOf(ir.I32))
			entry, yes, no := fn.NewBlock("entry"), fn.NewBlock("yes"), fn.NewBlock("no")
			b := ir.NewBuilder(entry)
			p := b.Named("p").Call(malloc, malloc.Sig, tc.size(b, m))
			b.Store(p, g)
			r := b.Call(ext, ext.Sig)
			b.Store(i32(5), r)
			v := b.Load(ir.I32, p)
			b.CondBr(b.ICmp(ir.IntEQ, v, i32(5)), yes, no)
			b.SetBlock(yes)
			b.Ret(i32(1))
			b.SetBlock(no)
			b.Ret(i32(0))

			_, res := analyze(t, m)
			fr := res.Functions[fn]
			assert.Equal(t, "⊤", valueAt(t, res, v))
			assert.True(t, fr.Reached(yes))
			assert.True(t, fr.Reached(no))
			assert.Equal(t, "[0, 1]", returned(t, res, fn))
		})
	}

	t.Run("loop slot", func(t *testing.T) {
		t.Parallel()
		m := ir.NewModule("m")
		ext := m.NewFunction("ext", ir.FuncOf(ir.Ptr))
		fn := m.NewFunction("main", ir.FuncOf(ir.I32))
		entry, header := fn.NewBlock("entry"), fn.NewBlock("header")
		body, latch, exit := fn.NewBlock("body"), fn.NewBlock("latch"), fn.NewBlock("exit")
		b := ir.NewBuilder(entry)
		b.Br(header)
		b.SetBlock(header)
		i := b.Named("i").Phi(ir.I32)
		b.CondBr(b.ICmp(ir.IntSLT, i, i32(3)), body, exit)
		b.SetBlock(body)
		slot := b.Named("slot").Alloca(ir.I32)
		r := b.Call(ext, ext.Sig)
		b.Store(i32(5), r)
		v := b.Load(ir.I32, slot)
		b.CondBr(b.ICmp(ir.IntEQ, v, i32(5)), latch, latch)
		b.SetBlock(latch)
		next := b.Binary(ir.OpAdd, i, i32(1))
		b.Br(header)
		i.AddIncoming(i32(0), entry)
		i.AddIncoming(next, latch)
		b.SetBlock(exit)
		b.Ret(i)

		_, res := analyze(t, m)
		assert.Equal(t, "⊤", valueAt(t, res, v))
		assert.True(t, res.Functions[fn].Reached(exit))
		assert.NotNil(t, res.Functions[fn].Return())
	})
}

func TestHeapObjects(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	malloc := m.NewFunction("malloc", ir.FuncOf(ir.Ptr, ir.I64))
	calloc := m.NewFunction("calloc", ir.FuncOf(ir.Ptr, ir.I64, ir.I64))
	nondet := m.NewFunction(NondetIntrinsic, ir.FuncOf(ir.I1))
	i64 := func(v int64) *ir.ConstInt { return ir.NewInt(ir.I64, v) }

	fn := m.NewFunction("main", ir.FuncOf(ir.Void))
	b := ir.NewBuilder(fn.NewBlock("entry"))
	p := b.Named("p").Call(malloc, malloc.Sig, i64(40))
	q := b.GEP(ir.I32, p, i64(3))
	b.Store(i32(7), q)
	b.Store(i32(1), p)
	// an index of either 1 or 2 updates both cells weakly
	w := b.GEP(ir.I32, p, b.Select(b.Call(nondet, nondet.Sig), i64(1), i64(2)))
	b.Store(i32(9), w)
	b.Store(i32(4), b.GEP(ir.I32, p, i64(1)))
	b.Store(i32(8), w)
	atQ := b.Load(ir.I32, q)
	atP := b.Load(ir.I32, p)
	at1 := b.Load(ir.I32, b.GEP(ir.I32, p, i64(1)))

	z := b.Named("z").Call(calloc, calloc.Sig, i64(2), i64(8))
	zero := b.Load(ir.I64, b.GEP(ir.I64, z, i64(1)))

	u := b.Named("u").Call(malloc, malloc.Sig, b.Binary(ir.OpMul, i64(4), b.Cast(ir.OpZExt, b.Call(nondet, nondet.Sig), ir.I64)))
	uq := b.GEP(ir.I32, u, i64(3))
	b.Ret(nil)

	in, res := analyze(t, m)
	assert.Equal(t, "{&heap.main.p[0][3]}", valueAt(t, res, q))
	assert.Equal(t, "7", valueAt(t, res, atQ))
	assert.Equal(t, "1", valueAt(t, res, atP))
	assert.Equal(t, "[4, 8]", valueAt(t, res, at1))
	assert.Equal(t, "0", valueAt(t, res, zero))
	// a size unknown before the analysis leaves the object untyped
	assert.Equal(t, "{&heap.main.u+?}", valueAt(t, res, uq))

	loc := in.ctx.sites[p]
	require.NotNil(t, loc)
	assert.Equal(t, "[10 x i32]", loc.Content.String())
	assert.Equal(t, 1, loc.Count)
}

func TestNoReturnPaths(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	abort := m.NewFunction("abort", ir.FuncOf(ir.Void))
	null := m.NewFunction("null", ir.FuncOf(ir.I32))
	b := ir.NewBuilder(null.NewBlock("entry"))
	b.Ret(b.Load(ir.I32, &ir.ConstNull{Typ: ir.Ptr}))

	stop := m.NewFunction("stop", ir.FuncOf(ir.I32))
	b = ir.NewBuilder(stop.NewBlock("entry"))
	b.Call(abort, abort.Sig)
	b.Ret(i32(1))

	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	entry, after := fn.NewBlock("entry"), fn.NewBlock("after")
	b = ir.NewBuilder(entry)
	b.Call(stop, stop.Sig)
	b.Br(after)
	b.SetBlock(after)
	b.Ret(i32(0))

	_, res := analyze(t, m)
	assert.Nil(t, res.Functions[null].Exit)
	assert.Nil(t, res.Functions[stop].Return())
	assert.False(t, res.Functions[fn].Reached(after))
	assert.Nil(t, res.Functions[fn].Exit)
}

func TestLogicErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		build func(m *ir.Module)
	}{
		{
			name: "branch on integer",
			build: func(m *ir.Module) {
				fn := m.NewFunction("main", ir.FuncOf(ir.Void))
				entry, next := fn.NewBlock("entry"), fn.NewBlock("next")
				b := ir.NewBuilder(entry)
				b.CondBr(b.Binary(ir.OpAdd, i32(1), i32(2)), next, next)
				b.SetBlock(next)
				b.Ret(nil)
			},
		},
		{
			name: "phi without incoming value",
			build: func(m *ir.Module) {
				fn := m.NewFunction("main", ir.FuncOf(ir.I32))
				entry, next, other := fn.NewBlock("entry"), fn.NewBlock("next"), fn.NewBlock("other")
				b := ir.NewBuilder(entry)
				b.Br(next)
				b.SetBlock(next)
				phi := b.Phi(ir.I32, ir.Incoming{Value: i32(1), Block: other})
				b.Ret(phi)
				b.SetBlock(other)
				b.Br(next)
			},
		},
		{
			name: "shuffle lane out of range",
			build: func(m *ir.Module) {
				fn := m.NewFunction("main", ir.FuncOf(ir.Void))
				b := ir.NewBuilder(fn.NewBlock("entry"))
				v := &ir.ConstZero{Typ: ir.VectorOf(ir.I32, 2)}
				b.ShuffleVector(v, v, 0, 7)
				b.Ret(nil)
			},
		},
		{
			name: "shuffle of different widths",
			build: func(m *ir.Module) {
				fn := m.NewFunction("main", ir.FuncOf(ir.Void))
				b := ir.NewBuilder(fn.NewBlock("entry"))
				wide := &ir.ConstZero{Typ: ir.VectorOf(ir.I32, 4)}
				narrow := &ir.ConstZero{Typ: ir.VectorOf(ir.I32, 2)}
				b.ShuffleVector(wide, narrow, 7)
				b.Ret(nil)
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := ir.NewModule("m")
			tt.build(m)
			err := runErr(t, m)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLogic)
			assert.Contains(t, err.Error(), "@main")
		})
	}
}

func TestRoots(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	helper := m.NewFunction("helper", ir.FuncOf(ir.I32))
	b := ir.NewBuilder(helper.NewBlock("entry"))
	b.Ret(i32(1))
	lib := m.NewFunction("lib", ir.FuncOf(ir.I32))
	b = ir.NewBuilder(lib.NewBlock("entry"))
	b.Ret(b.Call(helper, helper.Sig))

	_, res := analyze(t, m, func(c *Config) { c.AnalyzeAll = false })
	assert.Equal(t, []*ir.Function{lib}, res.Roots)
	assert.Equal(t, "1", returned(t, res, helper))

	ctx, err := NewContext(m, Config{Entry: []string{"missing"}}, nil)
	require.NoError(t, err)
	_, err = New(ctx).Run()
	assert.ErrorIs(t, err, globals.ErrUnknownGlobal)
}

func TestReplay(t *testing.T) {
	t.Parallel()
	m, fn, i := countTo(10)
	in, res := analyze(t, m)

	seen := map[string]string{}
	err := in.Replay(res.Functions[fn], func(inst *ir.Instruction, pre *state.State) {
		if inst.Op == ir.OpRet {
			seen["ret"] = pre.Find(i).String()
		}
		if inst.Op == ir.OpAdd {
			seen["add"] = pre.Find(i).String()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ret": "[10, +∞]", "add": "[0, 9]"}, seen)
}

func TestMonotonicity(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	fn := m.NewFunction("clamp", ir.FuncOf(ir.I32, ir.I32), "x")
	entry, neg, done := fn.NewBlock("entry"), fn.NewBlock("neg"), fn.NewBlock("done")
	b := ir.NewBuilder(entry)
	x := fn.Params[0]
	b.CondBr(b.ICmp(ir.IntSLT, x, i32(0)), neg, done)
	b.SetBlock(neg)
	b.Br(done)
	b.SetBlock(done)
	r := b.Phi(ir.I32, ir.Incoming{Value: i32(0), Block: neg}, ir.Incoming{Value: x, Block: entry})
	b.Ret(b.Binary(ir.OpMul, r, i32(2)))

	ctx, err := NewContext(m, DefaultConfig(), nil)
	require.NoError(t, err)
	in := New(ctx)

	inputs := []*state.State{state.New(), state.New(), state.New()}
	inputs[0].AddVariable(x, ctx.Factory.Get(ir.I32))
	inputs[1].AddVariable(x, lattice.IntRange(lattice.IntType(32), 0, 5))
	inputs[2].AddVariable(x, lattice.IntRange(lattice.IntType(32), -3, 9))

	var prev *FunctionResult
	for _, input := range inputs {
		res, err := in.Analyze(fn, input)
		require.NoError(t, err)
		if prev != nil {
			for b, br := range prev.Blocks {
				if br.In == nil {
					continue
				}
				assert.True(t, br.In.Leq(res.Blocks[b].In), b.Name)
			}
			assert.True(t, lattice.Leq(prev.Return(), res.Return()))
		}
		prev = res
	}
	assert.Equal(t, "[0, 18]", prev.Return().String())

	again, err := in.Analyze(fn, inputs[2])
	require.NoError(t, err)
	for b, br := range prev.Blocks {
		assert.True(t, br.In.Equal(again.Blocks[b].In), b.Name)
	}
}
