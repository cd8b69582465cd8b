package factory

import (
	"testing"

	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver map[string]*lattice.Location

func (r stubResolver) Address(c ir.Constant) (lattice.Value, error) {
	switch c := c.(type) {
	case *ir.Global:
		return lattice.PointerTo(r[c.Name]), nil
	case *ir.Function:
		return lattice.PointerTo(r[c.Name]), nil
	}
	return lattice.PointerTop(), nil
}

func TestTypeTranslation(t *testing.T) {
	t.Parallel()
	f := New(4)
	tests := []struct {
		name string
		in   *ir.Type
		want string
	}{
		{"bool", ir.I1, "bool"},
		{"int", ir.I32, "i32"},
		{"float", ir.F32, "f32"},
		{"double", ir.F64, "f64"},
		{"pointer", ir.PointerTo(ir.I8), "ptr"},
		{"array", ir.ArrayOf(ir.I16, 3), "[3 x i16]"},
		{"vector", ir.VectorOf(ir.F32, 4), "<4 x f32>"},
		{"struct", ir.StructOf(ir.I64, ir.Ptr, ir.ArrayOf(ir.I1, 2)), "{i64, ptr, [2 x bool]}"},
		{"function", ir.FuncOf(ir.I32, ir.I32), "opaque"},
		{"void", ir.Void, "opaque"},
		{"wide int", ir.Int(128), "opaque"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, f.Type(tt.in).String())
		})
	}
}

func TestTypeIsMemoized(t *testing.T) {
	t.Parallel()
	f := New(4)
	st := ir.StructOf(ir.I32, ir.I32)
	assert.Same(t, f.Type(st), f.Type(st))

	big := f.Type(ir.ArrayOf(ir.I32, 100))
	assert.True(t, big.Smashed)
	assert.False(t, f.Type(ir.ArrayOf(ir.I32, 4)).Smashed)
}

func TestGetIsBottom(t *testing.T) {
	t.Parallel()
	f := New(8)
	for _, typ := range []*ir.Type{
		ir.I1, ir.I32, ir.F64, ir.Ptr,
		ir.ArrayOf(ir.I8, 3), ir.StructOf(ir.I32, ir.Ptr), ir.VectorOf(ir.I32, 2),
	} {
		v := f.Get(typ)
		assert.True(t, v.IsBottom(), "bottom of %s", typ)
		assert.True(t, f.Top(typ).IsTop(), "top of %s", typ)
		assert.True(t, lattice.SameShape(f.Type(typ), v.Type()), "shape of %s", typ)
	}
}

func TestConstant(t *testing.T) {
	t.Parallel()
	f := New(8)
	arr := ir.ArrayOf(ir.I32, 3)
	tests := []struct {
		name string
		c    ir.Constant
		want string
	}{
		{"int", ir.NewInt(ir.I32, 42), "42"},
		{"int wraps", ir.NewInt(ir.I8, 200), "-56"},
		{"bool", ir.NewBool(true), "true"},
		{"float", &ir.ConstFloat{Typ: ir.F64, V: 2.5}, "2.5"},
		{"null", &ir.ConstNull{Typ: ir.Ptr}, "{null}"},
		{"undef", &ir.Undef{Typ: ir.I32}, "⊥"},
		{"zero array", &ir.ConstZero{Typ: arr}, "[0, 0, 0]"},
		{"zero struct", &ir.ConstZero{Typ: ir.StructOf(ir.I1, ir.Ptr, ir.F32)}, "{false, {null}, 0}"},
		{
			"aggregate",
			&ir.ConstAggregate{Typ: arr, Elems: []ir.Constant{ir.NewInt(ir.I32, 1), ir.NewInt(ir.I32, 2), ir.NewInt(ir.I32, 3)}},
			"[1, 2, 3]",
		},
		{
			"constant expression",
			&ir.ConstExpr{Op: ir.OpAdd, Typ: ir.I32, Operands: []ir.Constant{ir.NewInt(ir.I32, 5), ir.NewInt(ir.I32, 3)}},
			"8",
		},
		{
			"nested cast",
			&ir.ConstExpr{Op: ir.OpSExt, Typ: ir.I64, Operands: []ir.Constant{
				&ir.ConstExpr{Op: ir.OpSub, Typ: ir.I8, Operands: []ir.Constant{ir.NewInt(ir.I8, 0), ir.NewInt(ir.I8, 1)}},
			}},
			"-1",
		},
		{
			"compare",
			&ir.ConstExpr{Op: ir.OpICmp, Pred: ir.IntSLT, Typ: ir.I1, Operands: []ir.Constant{ir.NewInt(ir.I32, 1), ir.NewInt(ir.I32, 2)}},
			"true",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, err := f.Constant(tt.c, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestConstantAddresses(t *testing.T) {
	t.Parallel()
	f := New(8)
	m := ir.NewModule("m")
	table := m.NewGlobal("table", ir.ArrayOf(ir.I32, 4), nil)
	loc := &lattice.Location{ID: 7, Name: "@table", Kind: lattice.GlobalLocation, Content: f.Type(table.ValueType), Count: 1}
	r := stubResolver{"table": loc}

	v, err := f.Constant(table, r)
	require.NoError(t, err)
	assert.Equal(t, "{&@table[0]}", v.String())

	gep := &ir.ConstExpr{
		Op:       ir.OpGEP,
		Typ:      ir.Ptr,
		Source:   table.ValueType,
		Operands: []ir.Constant{table, ir.NewInt(ir.I64, 0), ir.NewInt(ir.I64, 2)},
	}
	v, err = f.Constant(gep, r)
	require.NoError(t, err)
	assert.Equal(t, "{&@table[0][2]}", v.String())

	v, err = f.Constant(table, nil)
	require.NoError(t, err)
	assert.True(t, v.IsTop())
}

func TestConstantErrors(t *testing.T) {
	t.Parallel()
	f := New(8)

	_, err := f.Constant(&ir.ConstExpr{Op: ir.OpLoad, Typ: ir.I32, Operands: []ir.Constant{&ir.ConstNull{Typ: ir.Ptr}}}, nil)
	assert.ErrorIs(t, err, ErrUnreachableConstant)

	_, err = f.Constant(&ir.ConstExpr{Op: ir.OpAdd, Typ: ir.I32, Operands: []ir.Constant{ir.NewInt(ir.I32, 1)}}, nil)
	assert.ErrorIs(t, err, ErrLogic)
}

func TestApplyShuffleMask(t *testing.T) {
	t.Parallel()
	f := New(8)
	v2 := ir.VectorOf(ir.I32, 2)
	x := lattice.NewArray(f.Type(v2), []lattice.Value{lattice.IntConst(f.Type(ir.I32), 1), lattice.IntConst(f.Type(ir.I32), 2)})

	out, err := f.Apply(Operation{Op: ir.OpShuffleVector, Result: ir.VectorOf(ir.I32, 2), Mask: []int{1, 2}}, []lattice.Value{x, x})
	require.NoError(t, err)
	assert.Equal(t, "[2, 1]", out.String())

	_, err = f.Apply(Operation{Op: ir.OpShuffleVector, Result: ir.VectorOf(ir.I32, 1), Mask: []int{4}}, []lattice.Value{x, x})
	assert.ErrorIs(t, err, ErrLogic)

	// lanes of the second operand are numbered after those of the first
	v4 := lattice.Top(f.Type(ir.VectorOf(ir.I32, 4)))
	_, err = f.Apply(Operation{Op: ir.OpShuffleVector, Result: ir.VectorOf(ir.I32, 1), Mask: []int{3}}, []lattice.Value{v4, x})
	assert.ErrorIs(t, err, ErrLogic)
	_, err = lattice.Shuffle(v4, x, []int{5}, f.Type(ir.VectorOf(ir.I32, 1)))
	assert.ErrorIs(t, err, lattice.ErrTypeMismatch)
}

func TestApplySharedWithInstructions(t *testing.T) {
	t.Parallel()
	f := New(8)
	m := ir.NewModule("m")
	fn := m.NewFunction("f", ir.FuncOf(ir.I32, ir.I32), "n")
	b := ir.NewBuilder(fn.NewBlock("entry"))
	sum := b.Binary(ir.OpMul, fn.Params[0], ir.NewInt(ir.I32, 0))

	i32 := f.Type(ir.I32)
	got, err := f.Apply(OperationOf(sum), []lattice.Value{lattice.IntTop(i32), lattice.IntConst(i32, 0)})
	require.NoError(t, err)
	assert.Equal(t, "0", got.String())

	_, err = f.Apply(Operation{Op: ir.OpAdd}, []lattice.Value{lattice.True, lattice.IntConst(i32, 1)})
	assert.ErrorIs(t, err, lattice.ErrTypeMismatch)
}
