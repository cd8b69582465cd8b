package gossa

import (
	"go/constant"
	"go/token"
	"go/types"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/tools/go/ssa"

	"github.com/gnolang/absint/internal/ir"
)

type funcLowerer struct {
	*lowerer
	src    *ssa.Function
	fn     *ir.Function
	values map[ssa.Value]ir.Value
	blocks []*ir.BasicBlock
	b      *ir.Builder
	aux    int
}

func blockName(b *ssa.BasicBlock) string {
	if b.Comment == "" {
		return "b" + strconv.Itoa(b.Index)
	}
	return b.Comment + "." + strconv.Itoa(b.Index)
}

// lower fills fn from src. Blocks are visited in dominator order so that
// every operand except phi edges is lowered before its uses; phis are
// created up front and their edges resolved last.
func (fl *funcLowerer) lower() error {
	for i, p := range fl.src.Params {
		fl.values[p] = fl.fn.Params[i]
	}
	fl.blocks = make([]*ir.BasicBlock, len(fl.src.Blocks))
	for i, sb := range fl.src.Blocks {
		fl.blocks[i] = fl.fn.NewBlock(blockName(sb))
	}
	fl.b = ir.NewBuilder(fl.blocks[0])

	var phis []*ssa.Phi
	for _, sb := range fl.src.Blocks {
		fl.b.SetBlock(fl.blocks[sb.Index])
		for _, instr := range sb.Instrs {
			phi, ok := instr.(*ssa.Phi)
			if !ok {
				break
			}
			fl.at(phi)
			fl.values[phi] = fl.b.Named(phi.Name()).Phi(lowerType(phi.Type()))
			phis = append(phis, phi)
		}
	}

	done := make([]bool, len(fl.src.Blocks))
	order := fl.src.DomPreorder()
	for _, sb := range fl.src.Blocks {
		if !containsBlock(order, sb) {
			order = append(order, sb)
		}
	}
	for _, sb := range order {
		if done[sb.Index] {
			continue
		}
		done[sb.Index] = true
		fl.b.SetBlock(fl.blocks[sb.Index])
		for _, instr := range sb.Instrs {
			fl.at(instr)
			fl.instruction(instr)
		}
	}

	for _, phi := range phis {
		inst := fl.values[phi].(*ir.Instruction)
		preds := phi.Block().Preds
		for k, e := range phi.Edges {
			inst.AddIncoming(fl.value(e), fl.blocks[preds[k].Index])
		}
	}
	return nil
}

func containsBlock(bs []*ssa.BasicBlock, b *ssa.BasicBlock) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}

func (fl *funcLowerer) at(instr ssa.Instruction) {
	var pos token.Position
	if p := instr.Pos(); p.IsValid() {
		pos = fl.fset.Position(p)
	}
	fl.b.At(pos)
}

// tmp names an instruction the lowering adds on its own.
func (fl *funcLowerer) tmp() string {
	fl.aux++
	return "a." + strconv.Itoa(fl.aux-1)
}

func (fl *funcLowerer) value(v ssa.Value) ir.Value {
	if x, ok := fl.values[v]; ok {
		return x
	}
	switch v := v.(type) {
	case *ssa.Const:
		return fl.constant(v)
	case *ssa.Function:
		return fl.function(v)
	case *ssa.Global:
		return fl.global(v)
	}
	fl.log.Warn("operand not lowered",
		zap.String("func", fl.fn.Name),
		zap.String("value", v.String()))
	return fl.unknown(fl.tmp(), lowerType(v.Type()))
}

func (fl *funcLowerer) lowerAll(vs []ssa.Value) []ir.Value {
	out := make([]ir.Value, len(vs))
	for i, v := range vs {
		out[i] = fl.value(v)
	}
	return out
}

func (l *lowerer) constant(c *ssa.Const) ir.Constant {
	t := lowerType(c.Type())
	if c.Value == nil {
		if t.IsPointer() {
			return &ir.ConstNull{Typ: t}
		}
		return &ir.ConstZero{Typ: t}
	}
	switch c.Value.Kind() {
	case constant.Bool:
		return ir.NewBool(constant.BoolVal(c.Value))
	case constant.String:
		return l.stringConst(constant.StringVal(c.Value))
	case constant.Int, constant.Float:
		if t.IsFloat() {
			f, _ := constant.Float64Val(constant.ToFloat(c.Value))
			return &ir.ConstFloat{Typ: t, V: f}
		}
		if v, ok := constant.Int64Val(constant.ToInt(c.Value)); ok {
			return ir.NewInt(t, v)
		}
		u, _ := constant.Uint64Val(constant.ToInt(c.Value))
		return ir.NewInt(t, int64(u))
	case constant.Complex:
		re, _ := constant.Float64Val(constant.Real(c.Value))
		im, _ := constant.Float64Val(constant.Imag(c.Value))
		ft := t.Fields[0]
		return &ir.ConstAggregate{Typ: t, Elems: []ir.Constant{
			&ir.ConstFloat{Typ: ft, V: re},
			&ir.ConstFloat{Typ: ft, V: im},
		}}
	}
	return &ir.ConstZero{Typ: t}
}

// unknown emits a call producing an unknown value of type t that depends
// on ops.
func (fl *funcLowerer) unknown(name string, t *ir.Type, ops ...ssa.Value) ir.Value {
	if t.IsVoid() {
		fl.effect(ops...)
		return nil
	}
	f := fl.extern(unknownPrefix+t.String(), ir.FuncOf(t), true)
	args := fl.lowerAll(ops)
	return fl.b.Named(name).Call(f, f.Sig, args...)
}

// effect emits a call with an unknown effect on the memory ops reach.
func (fl *funcLowerer) effect(ops ...ssa.Value) {
	f := fl.extern(effectName, ir.FuncOf(ir.Void), true)
	fl.b.Call(f, f.Sig, fl.lowerAll(ops)...)
}

// operands returns the non-nil operands of instr.
func operands(instr ssa.Instruction) []ssa.Value {
	var out []ssa.Value
	for _, op := range instr.Operands(nil) {
		if op != nil && *op != nil {
			if _, builtin := (*op).(*ssa.Builtin); !builtin {
				out = append(out, *op)
			}
		}
	}
	return out
}

func (fl *funcLowerer) instruction(instr ssa.Instruction) {
	switch v := instr.(type) {
	case *ssa.Phi, *ssa.DebugRef, *ssa.RunDefers:
	case *ssa.Alloc:
		fl.alloc(v)
	case *ssa.BinOp:
		fl.binOp(v)
	case *ssa.UnOp:
		fl.unOp(v)
	case *ssa.Store:
		fl.b.Store(fl.value(v.Val), fl.value(v.Addr))
	case *ssa.FieldAddr:
		st := deref(v.X.Type())
		fl.values[v] = fl.b.Named(v.Name()).GEP(lowerType(st), fl.value(v.X),
			ir.NewInt(ir.I32, 0), ir.NewInt(ir.I32, int64(v.Field)))
	case *ssa.IndexAddr:
		fl.indexAddr(v)
	case *ssa.Field:
		fl.values[v] = fl.b.Named(v.Name()).ExtractValue(fl.value(v.X), lowerType(v.Type()), v.Field)
	case *ssa.Index:
		fl.index(v)
	case *ssa.Extract:
		fl.values[v] = fl.b.Named(v.Name()).ExtractValue(fl.value(v.Tuple), lowerType(v.Type()), v.Index)
	case *ssa.ChangeType:
		fl.values[v] = fl.value(v.X)
	case *ssa.Convert:
		fl.convert(v)
	case *ssa.Call:
		fl.call(v)
	case *ssa.Slice:
		fl.slice(v)
	case *ssa.MakeSlice:
		fl.makeSlice(v)
	case *ssa.If:
		succs := v.Block().Succs
		fl.b.CondBr(fl.value(v.Cond), fl.blocks[succs[0].Index], fl.blocks[succs[1].Index])
	case *ssa.Jump:
		fl.b.Br(fl.blocks[v.Block().Succs[0].Index])
	case *ssa.Return:
		fl.ret(v)
	case *ssa.Panic:
		abort := fl.extern("abort", ir.FuncOf(ir.Void), false)
		fl.b.Call(abort, abort.Sig)
		fl.b.Unreachable()
	default:
		fl.log.Debug("lowering unsupported instruction",
			zap.String("func", fl.fn.Name),
			zap.String("instr", instr.String()))
		if val, ok := instr.(ssa.Value); ok {
			fl.values[val] = fl.unknown(val.Name(), lowerType(val.Type()), operands(instr)...)
			return
		}
		fl.effect(operands(instr)...)
	}
}

func deref(t types.Type) types.Type {
	if p, ok := t.Underlying().(*types.Pointer); ok {
		return p.Elem()
	}
	return t
}

// alloc lowers a local to a stack slot and an escaping variable to a heap
// allocation. Both start zeroed.
func (fl *funcLowerer) alloc(v *ssa.Alloc) {
	elem := deref(v.Type())
	t := lowerType(elem)
	var p ir.Value
	if v.Heap {
		malloc := fl.extern("malloc", ir.FuncOf(ir.Ptr, ir.I64), false)
		p = fl.b.Named(v.Name()).Call(malloc, malloc.Sig, ir.NewInt(ir.I64, sizes.Sizeof(elem)))
	} else {
		p = fl.b.Named(v.Name()).Alloca(t)
	}
	fl.values[v] = p
	fl.b.Store(&ir.ConstZero{Typ: t}, p)
}

var intPredicates = map[token.Token][2]ir.Predicate{
	token.EQL: {ir.IntEQ, ir.IntEQ},
	token.NEQ: {ir.IntNE, ir.IntNE},
	token.LSS: {ir.IntSLT, ir.IntULT},
	token.LEQ: {ir.IntSLE, ir.IntULE},
	token.GTR: {ir.IntSGT, ir.IntUGT},
	token.GEQ: {ir.IntSGE, ir.IntUGE},
}

var floatPredicates = map[token.Token]ir.Predicate{
	token.EQL: ir.FloatOEQ,
	token.NEQ: ir.FloatUNE,
	token.LSS: ir.FloatOLT,
	token.LEQ: ir.FloatOLE,
	token.GTR: ir.FloatOGT,
	token.GEQ: ir.FloatOGE,
}

// arithmetic holds the signed, unsigned and floating point opcode of each
// Go operator.
var arithmetic = map[token.Token][3]ir.Opcode{
	token.ADD: {ir.OpAdd, ir.OpAdd, ir.OpFAdd},
	token.SUB: {ir.OpSub, ir.OpSub, ir.OpFSub},
	token.MUL: {ir.OpMul, ir.OpMul, ir.OpFMul},
	token.QUO: {ir.OpSDiv, ir.OpUDiv, ir.OpFDiv},
	token.REM: {ir.OpSRem, ir.OpURem, ir.OpFRem},
	token.AND: {ir.OpAnd, ir.OpAnd},
	token.OR:  {ir.OpOr, ir.OpOr},
	token.XOR: {ir.OpXor, ir.OpXor},
	token.SHL: {ir.OpShl, ir.OpShl},
	token.SHR: {ir.OpAShr, ir.OpLShr},
}

func (fl *funcLowerer) binOp(v *ssa.BinOp) {
	xt := v.X.Type()
	if preds, ok := intPredicates[v.Op]; ok {
		if !isScalar(xt) {
			fl.values[v] = fl.unknown(v.Name(), ir.I1, v.X, v.Y)
			return
		}
		x, y := fl.value(v.X), fl.value(v.Y)
		switch {
		case isFloat(xt):
			fl.values[v] = fl.b.Named(v.Name()).FCmp(floatPredicates[v.Op], x, y)
		case isUnsigned(xt):
			fl.values[v] = fl.b.Named(v.Name()).ICmp(preds[1], x, y)
		default:
			fl.values[v] = fl.b.Named(v.Name()).ICmp(preds[0], x, y)
		}
		return
	}

	t := lowerType(xt)
	if !isInteger(xt) && !isFloat(xt) {
		fl.values[v] = fl.unknown(v.Name(), t, v.X, v.Y)
		return
	}
	x, y := fl.value(v.X), fl.value(v.Y)
	if v.Op == token.AND_NOT {
		mask := fl.b.Named(fl.tmp()).Binary(ir.OpXor, y, ir.NewInt(t, -1))
		fl.values[v] = fl.b.Named(v.Name()).Binary(ir.OpAnd, x, mask)
		return
	}
	ops, ok := arithmetic[v.Op]
	var op ir.Opcode
	switch {
	case !ok:
	case isFloat(xt):
		op = ops[2]
	case isUnsigned(xt):
		op = ops[1]
	default:
		op = ops[0]
	}
	if op == ir.OpInvalid {
		fl.values[v] = fl.unknown(v.Name(), t, v.X, v.Y)
		return
	}
	if v.Op == token.SHL || v.Op == token.SHR {
		y = fl.resize(y, v.Y.Type(), t)
	}
	fl.values[v] = fl.b.Named(v.Name()).Binary(op, x, y)
}

// resize converts the integer x of Go type from to the width of to.
func (fl *funcLowerer) resize(x ir.Value, from types.Type, to *ir.Type) ir.Value {
	ft := x.Type()
	if ft.Width == to.Width {
		return x
	}
	if c, ok := x.(*ir.ConstInt); ok {
		v := c.V
		if isUnsigned(from) && ft.Width < 64 {
			v &= 1<<uint(ft.Width) - 1
		}
		if v < 0 || v > int64(to.Width) {
			v = int64(to.Width)
		}
		return ir.NewInt(to, v)
	}
	op := ir.OpSExt
	switch {
	case ft.Width > to.Width:
		op = ir.OpTrunc
	case isUnsigned(from):
		op = ir.OpZExt
	}
	return fl.b.Named(fl.tmp()).Cast(op, x, to)
}

func (fl *funcLowerer) unOp(v *ssa.UnOp) {
	t := lowerType(v.Type())
	switch v.Op {
	case token.NOT:
		fl.values[v] = fl.b.Named(v.Name()).Binary(ir.OpXor, fl.value(v.X), ir.NewBool(true))
	case token.SUB:
		x := fl.value(v.X)
		if isFloat(v.X.Type()) {
			fl.values[v] = fl.b.Named(v.Name()).FNeg(x)
			return
		}
		fl.values[v] = fl.b.Named(v.Name()).Binary(ir.OpSub, ir.NewInt(t, 0), x)
	case token.XOR:
		fl.values[v] = fl.b.Named(v.Name()).Binary(ir.OpXor, fl.value(v.X), ir.NewInt(t, -1))
	case token.MUL:
		fl.values[v] = fl.b.Named(v.Name()).Load(t, fl.value(v.X))
	default:
		fl.values[v] = fl.unknown(v.Name(), t, v.X)
	}
}

// index64 widens an index operand to i64.
func (fl *funcLowerer) index64(v ssa.Value) ir.Value {
	return fl.resizeIndex(fl.value(v), v.Type())
}

func (fl *funcLowerer) resizeIndex(x ir.Value, from types.Type) ir.Value {
	if x.Type().Width == 64 {
		return x
	}
	if c, ok := x.(*ir.ConstInt); ok {
		v := c.V
		if isUnsigned(from) {
			v &= 1<<uint(c.Typ.Width) - 1
		}
		return ir.NewInt(ir.I64, v)
	}
	op := ir.OpSExt
	if isUnsigned(from) {
		op = ir.OpZExt
	}
	return fl.b.Named(fl.tmp()).Cast(op, x, ir.I64)
}

func (fl *funcLowerer) indexAddr(v *ssa.IndexAddr) {
	switch u := v.X.Type().Underlying().(type) {
	case *types.Pointer:
		arr := lowerType(u.Elem())
		idx := fl.index64(v.Index)
		fl.values[v] = fl.b.Named(v.Name()).GEP(arr, fl.value(v.X), ir.NewInt(ir.I64, 0), idx)
	case *types.Slice:
		ptr := fl.b.Named(fl.tmp()).ExtractValue(fl.value(v.X), ir.Ptr, 0)
		idx := fl.index64(v.Index)
		fl.values[v] = fl.b.Named(v.Name()).GEP(lowerType(u.Elem()), ptr, idx)
	default:
		fl.values[v] = fl.unknown(v.Name(), ir.Ptr, v.X, v.Index)
	}
}

func (fl *funcLowerer) index(v *ssa.Index) {
	t := lowerType(v.Type())
	if _, ok := v.X.Type().Underlying().(*types.Array); ok {
		if c, ok := v.Index.(*ssa.Const); ok && c.Value != nil {
			if k, exact := constant.Int64Val(c.Value); exact {
				fl.values[v] = fl.b.Named(v.Name()).ExtractValue(fl.value(v.X), t, int(k))
				return
			}
		}
	}
	fl.values[v] = fl.unknown(v.Name(), t, v.X, v.Index)
}

func isUnsafePointer(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Kind() == types.UnsafePointer
}

func (fl *funcLowerer) convert(v *ssa.Convert) {
	from, to := v.X.Type(), v.Type()
	ft, tt := lowerType(from), lowerType(to)
	x := fl.value(v.X)
	var op ir.Opcode
	switch {
	case isInteger(from) && isInteger(to):
		switch {
		case ft.Width == tt.Width:
			fl.values[v] = x
			return
		case ft.Width > tt.Width:
			op = ir.OpTrunc
		case isUnsigned(from):
			op = ir.OpZExt
		default:
			op = ir.OpSExt
		}
	case isInteger(from) && isFloat(to):
		op = ir.OpSIToFP
		if isUnsigned(from) {
			op = ir.OpUIToFP
		}
	case isFloat(from) && isInteger(to):
		op = ir.OpFPToSI
		if isUnsigned(to) {
			op = ir.OpFPToUI
		}
	case isFloat(from) && isFloat(to):
		switch {
		case ft.Width == tt.Width:
			fl.values[v] = x
			return
		case ft.Width > tt.Width:
			op = ir.OpFPTrunc
		default:
			op = ir.OpFPExt
		}
	case isUnsafePointer(from) && isInteger(to):
		op = ir.OpPtrToInt
	case isInteger(from) && isUnsafePointer(to):
		op = ir.OpIntToPtr
	case ft.IsPointer() && tt.IsPointer():
		fl.values[v] = x
		return
	default:
		fl.values[v] = fl.unknown(v.Name(), tt, v.X)
		return
	}
	fl.values[v] = fl.b.Named(v.Name()).Cast(op, x, tt)
}

func (fl *funcLowerer) call(v *ssa.Call) {
	common := v.Common()
	rt := lowerType(v.Type())
	if common.IsInvoke() {
		fl.define(v, fl.unknown(v.Name(), rt, append([]ssa.Value{common.Value}, common.Args...)...))
		return
	}
	if b, ok := common.Value.(*ssa.Builtin); ok {
		fl.builtin(v, b)
		return
	}
	args := fl.lowerAll(common.Args)
	var (
		callee ir.Value
		sig    *ir.Type
	)
	if static := common.StaticCallee(); static != nil {
		callee, sig = fl.function(static), signature(static.Signature)
	} else {
		callee, sig = fl.value(common.Value), signature(common.Signature())
	}
	fl.define(v, fl.b.Named(v.Name()).Call(callee, sig, args...))
}

func (fl *funcLowerer) define(v ssa.Value, x ir.Value) {
	if x != nil {
		fl.values[v] = x
	}
}

func (fl *funcLowerer) builtin(v *ssa.Call, b *ssa.Builtin) {
	args := v.Common().Args
	rt := lowerType(v.Type())
	if b.Name() == "len" || b.Name() == "cap" {
		x := args[0]
		field := 1
		if b.Name() == "cap" {
			field = 2
		}
		switch u := x.Type().Underlying().(type) {
		case *types.Slice:
			fl.values[v] = fl.b.Named(v.Name()).ExtractValue(fl.value(x), ir.I64, field)
			return
		case *types.Basic:
			if u.Info()&types.IsString != 0 {
				fl.values[v] = fl.b.Named(v.Name()).ExtractValue(fl.value(x), ir.I64, 1)
				return
			}
		case *types.Array:
			fl.values[v] = ir.NewInt(ir.I64, u.Len())
			return
		case *types.Pointer:
			if arr, ok := u.Elem().Underlying().(*types.Array); ok {
				fl.values[v] = ir.NewInt(ir.I64, arr.Len())
				return
			}
		}
	}
	fl.define(v, fl.unknown(v.Name(), rt, args...))
}

func (fl *funcLowerer) ret(v *ssa.Return) {
	switch len(v.Results) {
	case 0:
		fl.b.Ret(nil)
	case 1:
		fl.b.Ret(fl.value(v.Results[0]))
	default:
		var agg ir.Value = &ir.Undef{Typ: fl.fn.Sig.Result}
		for i, r := range v.Results {
			agg = fl.b.Named(fl.tmp()).InsertValue(agg, fl.value(r), i)
		}
		fl.b.Ret(agg)
	}
}

// buildSlice packs {ptr, len, cap}.
func (fl *funcLowerer) buildSlice(name string, ptr, length, capacity ir.Value) ir.Value {
	var s ir.Value = &ir.Undef{Typ: sliceType}
	s = fl.b.Named(fl.tmp()).InsertValue(s, ptr, 0)
	s = fl.b.Named(fl.tmp()).InsertValue(s, length, 1)
	return fl.b.Named(name).InsertValue(s, capacity, 2)
}

func (fl *funcLowerer) bound(v ssa.Value, def ir.Value) ir.Value {
	if v == nil {
		return def
	}
	return fl.index64(v)
}

func (fl *funcLowerer) minus(x, low ir.Value) ir.Value {
	if c, ok := low.(*ir.ConstInt); ok && c.V == 0 {
		return x
	}
	return fl.b.Named(fl.tmp()).Binary(ir.OpSub, x, low)
}

func (fl *funcLowerer) slice(v *ssa.Slice) {
	zero := ir.NewInt(ir.I64, 0)
	switch u := v.X.Type().Underlying().(type) {
	case *types.Pointer:
		arr, ok := u.Elem().Underlying().(*types.Array)
		if !ok {
			break
		}
		n := ir.NewInt(ir.I64, arr.Len())
		low := fl.bound(v.Low, zero)
		high := fl.bound(v.High, n)
		limit := fl.bound(v.Max, n)
		ptr := fl.b.Named(fl.tmp()).GEP(lowerType(arr), fl.value(v.X), zero, low)
		fl.values[v] = fl.buildSlice(v.Name(), ptr, fl.minus(high, low), fl.minus(limit, low))
		return
	case *types.Slice:
		x := fl.value(v.X)
		base := fl.b.Named(fl.tmp()).ExtractValue(x, ir.Ptr, 0)
		var length, capacity ir.Value
		if v.High == nil {
			length = fl.b.Named(fl.tmp()).ExtractValue(x, ir.I64, 1)
		}
		if v.Max == nil {
			capacity = fl.b.Named(fl.tmp()).ExtractValue(x, ir.I64, 2)
		}
		low := fl.bound(v.Low, zero)
		high := fl.bound(v.High, length)
		limit := fl.bound(v.Max, capacity)
		ptr := fl.b.Named(fl.tmp()).GEP(lowerType(u.Elem()), base, low)
		fl.values[v] = fl.buildSlice(v.Name(), ptr, fl.minus(high, low), fl.minus(limit, low))
		return
	}
	fl.values[v] = fl.unknown(v.Name(), lowerType(v.Type()), operands(v)...)
}

func (fl *funcLowerer) makeSlice(v *ssa.MakeSlice) {
	elem := v.Type().Underlying().(*types.Slice).Elem()
	length := fl.index64(v.Len)
	capacity := length
	if v.Cap != v.Len {
		capacity = fl.index64(v.Cap)
	}
	size := fl.b.Named(fl.tmp()).Binary(ir.OpMul, capacity, ir.NewInt(ir.I64, sizes.Sizeof(elem)))
	malloc := fl.extern("malloc", ir.FuncOf(ir.Ptr, ir.I64), false)
	ptr := fl.b.Named(fl.tmp()).Call(malloc, malloc.Sig, size)
	fl.values[v] = fl.buildSlice(v.Name(), ptr, length, capacity)
}
