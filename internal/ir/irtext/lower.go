// Package irtext reads modules written in the textual IR form (.air files).
package irtext

import (
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/gnolang/absint/internal/ir"
)

// ErrInvalid reports well-formed syntax that does not describe a module.
var ErrInvalid = errors.New("invalid IR")

var parser = participle.MustBuild[File](
	participle.Lexer(airLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(4),
)

// ParseFile reads and lowers the module stored at path.
func ParseFile(path string) (*ir.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return Parse(path, src)
}

// Parse lowers src into a verified module named after filename.
func Parse(filename string, src []byte) (*ir.Module, error) {
	f, err := parser.ParseBytes(filename, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	m := ir.NewModule(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	m.Source = filename
	l := &lowerer{m: m, symbols: make(map[string]ir.Constant)}
	if err := l.module(f); err != nil {
		return nil, err
	}
	if err := ir.Verify(m); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return m, nil
}

func position(p lexer.Position) token.Position {
	return token.Position{Filename: p.Filename, Offset: p.Offset, Line: p.Line, Column: p.Column}
}

func errorf(p lexer.Position, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", p, ErrInvalid, fmt.Sprintf(format, args...))
}

type lowerer struct {
	m       *ir.Module
	symbols map[string]ir.Constant
}

func (l *lowerer) module(f *File) error {
	var (
		globals []*GlobalDef
		globs   []*ir.Global
		defs    []*FuncDef
		funcs   []*ir.Function
	)
	for _, e := range f.Entries {
		switch {
		case e.Global != nil:
			g, err := l.declareGlobal(e.Global)
			if err != nil {
				return err
			}
			globals = append(globals, e.Global)
			globs = append(globs, g)
		case e.Declare != nil:
			if _, err := l.declareFunction(e.Declare); err != nil {
				return err
			}
		case e.Define != nil:
			fn, err := l.declareFunction(e.Define.Signature)
			if err != nil {
				return err
			}
			defs = append(defs, e.Define)
			funcs = append(funcs, fn)
		}
	}
	for i, def := range globals {
		init := def.Body.Def
		if init == nil {
			continue
		}
		c, err := l.constant(init.Init, globs[i].ValueType)
		if err != nil {
			return err
		}
		globs[i].Init = c
	}
	for i, def := range defs {
		fl := &funcLowerer{
			lowerer: l,
			fn:      funcs[i],
			locals:  make(map[string]ir.Value),
			blocks:  make(map[string]*ir.BasicBlock),
		}
		if err := fl.body(def); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) define(p lexer.Position, name string, c ir.Constant) error {
	if _, dup := l.symbols[name]; dup {
		return errorf(p, "@%s redefined", name)
	}
	l.symbols[name] = c
	return nil
}

func (l *lowerer) declareGlobal(def *GlobalDef) (*ir.Global, error) {
	name := strings.TrimPrefix(def.Name, "@")
	var (
		t   *ir.Type
		err error
	)
	if def.Body.External != nil {
		t, err = l.typ(def.Body.External)
	} else {
		t, err = l.typ(def.Body.Def.Type)
	}
	if err != nil {
		return nil, err
	}
	g := l.m.NewGlobal(name, t, nil)
	g.Pos = position(def.Pos)
	g.IsConst = def.Body.Def != nil && def.Body.Def.Kind == "constant"
	return g, l.define(def.Pos, name, g)
}

func (l *lowerer) declareFunction(sig *Signature) (*ir.Function, error) {
	result, err := l.typ(sig.Result)
	if err != nil {
		return nil, err
	}
	var (
		params   []*ir.Type
		names    []string
		variadic bool
	)
	for k, p := range sig.Params {
		if p.Variadic {
			if k != len(sig.Params)-1 {
				return nil, errorf(sig.Pos, "... must be the last parameter of %s", sig.Name)
			}
			variadic = true
			continue
		}
		t, err := l.typ(p.Type)
		if err != nil {
			return nil, err
		}
		params = append(params, t)
		name := strings.TrimPrefix(p.Name, "%")
		if name == "" {
			name = strconv.Itoa(len(names))
		}
		names = append(names, name)
	}
	ft := ir.FuncOf(result, params...)
	ft.Variadic = variadic
	name := strings.TrimPrefix(sig.Name, "@")
	fn := l.m.NewFunction(name, ft, names...)
	fn.Pos = position(sig.Pos)
	return fn, l.define(sig.Pos, name, fn)
}

func (l *lowerer) typ(t *TypeExpr) (*ir.Type, error) {
	switch {
	case t.Array != nil, t.Vector != nil:
		seq := t.Array
		if seq == nil {
			seq = t.Vector
		}
		if seq.Len < 0 {
			return nil, errorf(t.Pos, "negative length %d", seq.Len)
		}
		elem, err := l.typ(seq.Elem)
		if err != nil {
			return nil, err
		}
		if t.Array != nil {
			return ir.ArrayOf(elem, seq.Len), nil
		}
		return ir.VectorOf(elem, seq.Len), nil
	case t.Struct != nil:
		fields := make([]*ir.Type, len(t.Struct.Fields))
		for i, f := range t.Struct.Fields {
			ft, err := l.typ(f)
			if err != nil {
				return nil, err
			}
			fields[i] = ft
		}
		return ir.StructOf(fields...), nil
	}
	switch t.Name {
	case "void":
		return ir.Void, nil
	case "ptr":
		return ir.Ptr, nil
	case "float":
		return ir.F32, nil
	case "double":
		return ir.F64, nil
	}
	if w, ok := strings.CutPrefix(t.Name, "i"); ok {
		if n, err := strconv.Atoi(w); err == nil && n >= 1 && n <= 64 {
			return ir.Int(n), nil
		}
	}
	return nil, errorf(t.Pos, "unknown type %s", t.Name)
}

func parseInt(p lexer.Position, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return v, nil
	}
	u, uerr := strconv.ParseUint(s, 10, 64)
	if uerr != nil {
		return 0, errorf(p, "integer %s out of range", s)
	}
	return int64(u), nil
}

// constant lowers c as a constant of type t.
func (l *lowerer) constant(c *ConstValue, t *ir.Type) (ir.Constant, error) {
	switch {
	case c.Float != nil:
		v, err := strconv.ParseFloat(*c.Float, 64)
		if err != nil || !t.IsFloat() {
			return nil, errorf(c.Pos, "%s is not a %s constant", *c.Float, t)
		}
		return &ir.ConstFloat{Typ: t, V: v}, nil
	case c.Int != nil:
		v, err := parseInt(c.Pos, *c.Int)
		if err != nil {
			return nil, err
		}
		switch {
		case t.IsInt():
			return ir.NewInt(t, v), nil
		case t.IsFloat():
			return &ir.ConstFloat{Typ: t, V: float64(v)}, nil
		case t.IsPointer() && v == 0:
			return &ir.ConstNull{Typ: t}, nil
		}
		return nil, errorf(c.Pos, "%s is not a %s constant", *c.Int, t)
	case c.Keyword != "":
		switch c.Keyword {
		case "null":
			if !t.IsPointer() {
				return nil, errorf(c.Pos, "null of non-pointer type %s", t)
			}
			return &ir.ConstNull{Typ: t}, nil
		case "zeroinitializer":
			return &ir.ConstZero{Typ: t}, nil
		case "undef":
			return &ir.Undef{Typ: t}, nil
		default:
			if !t.IsBool() {
				return nil, errorf(c.Pos, "%s of non-i1 type %s", c.Keyword, t)
			}
			return ir.NewBool(c.Keyword == "true"), nil
		}
	case c.Global != "":
		sym, ok := l.symbols[strings.TrimPrefix(c.Global, "@")]
		if !ok {
			return nil, errorf(c.Pos, "undefined symbol %s", c.Global)
		}
		return sym, nil
	case c.Aggregate != nil:
		return l.aggregate(c, t)
	case c.GEP != nil:
		src, err := l.typ(c.GEP.Source)
		if err != nil {
			return nil, err
		}
		ops, err := l.typedConsts(c.GEP.Operands)
		if err != nil {
			return nil, err
		}
		return &ir.ConstExpr{Op: ir.OpGEP, Typ: ir.Ptr, Source: src, Operands: ops}, nil
	case c.Expr != nil:
		return l.constExpr(c)
	}
	return nil, errorf(c.Pos, "empty constant")
}

func (l *lowerer) aggregate(c *ConstValue, t *ir.Type) (ir.Constant, error) {
	agg := c.Aggregate
	want := map[string]ir.TypeKind{"[": ir.ArrayKind, "{": ir.StructKind, "<": ir.VectorKind}[agg.Open]
	closer := map[string]string{"[": "]", "{": "}", "<": ">"}[agg.Open]
	if agg.Close != closer || t.Kind != want {
		return nil, errorf(c.Pos, "aggregate does not match type %s", t)
	}
	n := t.Len
	if t.Kind == ir.StructKind {
		n = len(t.Fields)
	}
	if len(agg.Elems) != n {
		return nil, errorf(c.Pos, "%s needs %d elements, got %d", t, n, len(agg.Elems))
	}
	elems, err := l.typedConsts(agg.Elems)
	if err != nil {
		return nil, err
	}
	for i, e := range elems {
		ft := t.Elem
		if t.Kind == ir.StructKind {
			ft = t.Fields[i]
		}
		if !ir.Identical(e.Type(), ft) && !e.Type().IsPointer() {
			return nil, errorf(c.Pos, "element %d has type %s, want %s", i, e.Type(), ft)
		}
	}
	return &ir.ConstAggregate{Typ: t, Elems: elems}, nil
}

func (l *lowerer) typedConsts(tcs []*TypedConst) ([]ir.Constant, error) {
	out := make([]ir.Constant, len(tcs))
	for i, tc := range tcs {
		t, err := l.typ(tc.Type)
		if err != nil {
			return nil, err
		}
		if out[i], err = l.constant(tc.Value, t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *lowerer) constExpr(c *ConstValue) (ir.Constant, error) {
	e := c.Expr
	op := ir.LookupOpcode(e.Op)
	if op == ir.OpInvalid || !op.IsConstantExpr() {
		return nil, errorf(c.Pos, "unknown constant expression %s", e.Op)
	}
	ops, err := l.typedConsts(e.Operands)
	if err != nil {
		return nil, err
	}
	ce := &ir.ConstExpr{Op: op, Operands: ops}
	arity := 2
	switch {
	case op.IsCast():
		if e.To == nil {
			return nil, errorf(c.Pos, "%s needs a target type", e.Op)
		}
		if ce.Typ, err = l.typ(e.To); err != nil {
			return nil, err
		}
		arity = 1
	case op == ir.OpICmp || op == ir.OpFCmp:
		if ce.Pred = ir.LookupPredicate(op, e.Pred); ce.Pred == ir.PredInvalid {
			return nil, errorf(c.Pos, "unknown predicate %q for %s", e.Pred, e.Op)
		}
		ce.Typ = ir.I1
	case op == ir.OpSelect:
		arity = 3
		if len(ops) == 3 {
			ce.Typ = ops[1].Type()
		}
	case op == ir.OpFNeg:
		arity = 1
		ce.Typ = ops[0].Type()
	case op.IsBinary(), op.IsFloatBinary():
		ce.Typ = ops[0].Type()
	default:
		return nil, errorf(c.Pos, "constant %s is not supported in text form", e.Op)
	}
	if len(ops) != arity {
		return nil, errorf(c.Pos, "%s takes %d operands, got %d", e.Op, arity, len(ops))
	}
	if e.Pred != "" && ce.Pred == ir.PredInvalid {
		return nil, errorf(c.Pos, "%s takes no predicate", e.Op)
	}
	return ce, nil
}

type funcLowerer struct {
	*lowerer
	fn     *ir.Function
	locals map[string]ir.Value
	blocks map[string]*ir.BasicBlock
	seq    int
}

type pending struct {
	inst *ir.Instruction
	op   *Operation
	pos  lexer.Position
}

// body lowers the blocks of def in two passes: instructions and their
// result types first, operands once every local is known.
func (fl *funcLowerer) body(def *FuncDef) error {
	for _, a := range fl.fn.Params {
		fl.locals[a.Name] = a
	}
	for _, b := range def.Blocks {
		name := strings.TrimSuffix(b.Label, ":")
		if _, dup := fl.blocks[name]; dup {
			return errorf(b.Pos, "block %s redefined in @%s", name, fl.fn.Name)
		}
		fl.blocks[name] = fl.fn.NewBlock(name)
	}
	var work []pending
	for _, b := range def.Blocks {
		block := fl.blocks[strings.TrimSuffix(b.Label, ":")]
		for _, in := range b.Instrs {
			inst, err := fl.skeleton(in.Op, in.Pos)
			if err != nil {
				return err
			}
			inst.Block = block
			inst.Pos = position(in.Pos)
			if err := fl.name(inst, in); err != nil {
				return err
			}
			block.Instrs = append(block.Instrs, inst)
			work = append(work, pending{inst: inst, op: in.Op, pos: in.Pos})
		}
	}
	for _, w := range work {
		if err := fl.operands(w.inst, w.op, w.pos); err != nil {
			return err
		}
	}
	return nil
}

func (fl *funcLowerer) name(inst *ir.Instruction, in *Instr) error {
	name := strings.TrimPrefix(in.Result, "%")
	if !inst.HasResult() {
		if name != "" {
			return errorf(in.Pos, "%%%s names an instruction without result", name)
		}
		return nil
	}
	if name == "" {
		for {
			name = "t" + strconv.Itoa(fl.seq)
			fl.seq++
			if _, taken := fl.locals[name]; !taken {
				break
			}
		}
	} else if _, dup := fl.locals[name]; dup {
		return errorf(in.Pos, "%%%s redefined in @%s", name, fl.fn.Name)
	}
	inst.Name = name
	fl.locals[name] = inst
	return nil
}

// skeleton creates the instruction for op with its opcode and result type.
func (fl *funcLowerer) skeleton(op *Operation, p lexer.Position) (*ir.Instruction, error) {
	switch {
	case op.Alloca != nil:
		t, err := fl.typ(op.Alloca)
		return &ir.Instruction{Op: ir.OpAlloca, Typ: ir.Ptr, Elem: t}, err
	case op.Load != nil:
		t, err := fl.typ(op.Load.Type)
		return &ir.Instruction{Op: ir.OpLoad, Typ: t, Elem: t}, err
	case op.Store != nil:
		return &ir.Instruction{Op: ir.OpStore, Typ: ir.Void}, nil
	case op.GEP != nil:
		t, err := fl.typ(op.GEP.Source)
		return &ir.Instruction{Op: ir.OpGEP, Typ: ir.Ptr, Elem: t}, err
	case op.Phi != nil:
		t, err := fl.typ(op.Phi.Type)
		return &ir.Instruction{Op: ir.OpPhi, Typ: t}, err
	case op.Select != nil:
		t, err := fl.typ(op.Select.Then.Type)
		return &ir.Instruction{Op: ir.OpSelect, Typ: t}, err
	case op.Call != nil:
		return fl.callSkeleton(op.Call)
	case op.Br != nil:
		if op.Br.Cond != nil {
			return &ir.Instruction{Op: ir.OpCondBr, Typ: ir.Void}, nil
		}
		return &ir.Instruction{Op: ir.OpBr, Typ: ir.Void}, nil
	case op.Switch != nil:
		return &ir.Instruction{Op: ir.OpSwitch, Typ: ir.Void}, nil
	case op.Ret != nil:
		return &ir.Instruction{Op: ir.OpRet, Typ: ir.Void}, nil
	case op.Unreachable:
		return &ir.Instruction{Op: ir.OpUnreachable, Typ: ir.Void}, nil
	case op.FNeg != nil:
		t, err := fl.typ(op.FNeg.Type)
		return &ir.Instruction{Op: ir.OpFNeg, Typ: t}, err
	case op.ExtractValue != nil:
		agg, err := fl.typ(op.ExtractValue.Agg.Type)
		if err != nil {
			return nil, err
		}
		t, err := memberType(agg, op.ExtractValue.Indices)
		if err != nil {
			return nil, errorf(p, "extractvalue: %v", err)
		}
		return &ir.Instruction{Op: ir.OpExtractValue, Typ: t, Indices: op.ExtractValue.Indices}, nil
	case op.InsertValue != nil:
		agg, err := fl.typ(op.InsertValue.Agg.Type)
		if err != nil {
			return nil, err
		}
		if _, err := memberType(agg, op.InsertValue.Indices); err != nil {
			return nil, errorf(p, "insertvalue: %v", err)
		}
		return &ir.Instruction{Op: ir.OpInsertValue, Typ: agg, Indices: op.InsertValue.Indices}, nil
	case op.ExtractElem != nil:
		vec, err := fl.vectorOperand(op.ExtractElem, 2, p)
		if err != nil {
			return nil, err
		}
		return &ir.Instruction{Op: ir.OpExtractElement, Typ: vec.Elem}, nil
	case op.InsertElem != nil:
		vec, err := fl.vectorOperand(op.InsertElem, 3, p)
		if err != nil {
			return nil, err
		}
		return &ir.Instruction{Op: ir.OpInsertElement, Typ: vec}, nil
	case op.Shuffle != nil:
		vec, err := fl.vectorOperand(op.Shuffle, 3, p)
		if err != nil {
			return nil, err
		}
		other, err := fl.typ(op.Shuffle.List[1].Type)
		if err != nil {
			return nil, err
		}
		if !ir.Identical(vec, other) {
			return nil, errorf(p, "shufflevector operands %s and %s differ", vec, other)
		}
		mask, err := fl.mask(op.Shuffle.List[2], p)
		if err != nil {
			return nil, err
		}
		return &ir.Instruction{Op: ir.OpShuffleVector, Typ: ir.VectorOf(vec.Elem, len(mask)), Mask: mask}, nil
	case op.Compare != nil:
		opc := ir.LookupOpcode(op.Compare.Op)
		pred := ir.LookupPredicate(opc, op.Compare.Pred)
		if pred == ir.PredInvalid {
			return nil, errorf(p, "unknown predicate %q for %s", op.Compare.Pred, op.Compare.Op)
		}
		t, err := fl.typ(op.Compare.X.Type)
		if err != nil {
			return nil, err
		}
		rt := ir.I1
		if t.Kind == ir.VectorKind {
			rt = ir.VectorOf(ir.I1, t.Len)
		}
		return &ir.Instruction{Op: opc, Pred: pred, Typ: rt}, nil
	case op.Cast != nil:
		t, err := fl.typ(op.Cast.To)
		return &ir.Instruction{Op: ir.LookupOpcode(op.Cast.Op), Typ: t}, err
	case op.Binary != nil:
		t, err := fl.typ(op.Binary.X.Type)
		return &ir.Instruction{Op: ir.LookupOpcode(op.Binary.Op), Typ: t}, err
	}
	return nil, errorf(p, "empty instruction")
}

func (fl *funcLowerer) callSkeleton(c *Call) (*ir.Instruction, error) {
	result, err := fl.typ(c.Result)
	if err != nil {
		return nil, err
	}
	inst := &ir.Instruction{Op: ir.OpCall, Typ: result}
	if c.Callee.Const != nil && c.Callee.Const.Global != "" {
		if fn, ok := fl.symbols[strings.TrimPrefix(c.Callee.Const.Global, "@")].(*ir.Function); ok {
			inst.Elem = fn.Sig
			return inst, nil
		}
	}
	params := make([]*ir.Type, len(c.Args))
	for i, a := range c.Args {
		if params[i], err = fl.typ(a.Type); err != nil {
			return nil, err
		}
	}
	inst.Elem = ir.FuncOf(result, params...)
	return inst, nil
}

func (fl *funcLowerer) vectorOperand(ops *Operands, arity int, p lexer.Position) (*ir.Type, error) {
	if len(ops.List) != arity {
		return nil, errorf(p, "expected %d operands, got %d", arity, len(ops.List))
	}
	t, err := fl.typ(ops.List[0].Type)
	if err != nil {
		return nil, err
	}
	if t.Kind != ir.VectorKind {
		return nil, errorf(p, "%s is not a vector type", t)
	}
	return t, nil
}

func (fl *funcLowerer) mask(tv *TypedValue, p lexer.Position) ([]int, error) {
	t, err := fl.typ(tv.Type)
	if err != nil {
		return nil, err
	}
	c := tv.Value.Const
	if t.Kind != ir.VectorKind || c == nil {
		return nil, errorf(p, "shufflevector mask must be a constant vector")
	}
	if c.Keyword == "zeroinitializer" {
		return make([]int, t.Len), nil
	}
	if c.Aggregate == nil {
		return nil, errorf(p, "shufflevector mask must be a constant vector")
	}
	mask := make([]int, len(c.Aggregate.Elems))
	for i, e := range c.Aggregate.Elems {
		switch {
		case e.Value.Keyword == "undef":
			mask[i] = -1
		case e.Value.Int != nil:
			v, err := parseInt(e.Value.Pos, *e.Value.Int)
			if err != nil {
				return nil, err
			}
			mask[i] = int(v)
		default:
			return nil, errorf(p, "shufflevector mask lane %d is not an integer", i)
		}
	}
	return mask, nil
}

// memberType follows indices into the aggregate type t.
func memberType(t *ir.Type, indices []int) (*ir.Type, error) {
	for _, k := range indices {
		switch t.Kind {
		case ir.StructKind:
			if k < 0 || k >= len(t.Fields) {
				return nil, fmt.Errorf("index %d out of %s", k, t)
			}
			t = t.Fields[k]
		case ir.ArrayKind:
			if k < 0 || k >= t.Len {
				return nil, fmt.Errorf("index %d out of %s", k, t)
			}
			t = t.Elem
		default:
			return nil, fmt.Errorf("%s is not an aggregate", t)
		}
	}
	return t, nil
}

func (fl *funcLowerer) value(v *Value, t *ir.Type) (ir.Value, error) {
	if v.Local != "" {
		name := strings.TrimPrefix(v.Local, "%")
		if x, ok := fl.locals[name]; ok {
			return x, nil
		}
		return nil, errorf(v.Pos, "undefined value %s in @%s", v.Local, fl.fn.Name)
	}
	return fl.constant(v.Const, t)
}

func (fl *funcLowerer) typedValue(tv *TypedValue) (ir.Value, error) {
	t, err := fl.typ(tv.Type)
	if err != nil {
		return nil, err
	}
	return fl.value(tv.Value, t)
}

func (fl *funcLowerer) typedValues(tvs ...*TypedValue) ([]ir.Value, error) {
	out := make([]ir.Value, len(tvs))
	for i, tv := range tvs {
		v, err := fl.typedValue(tv)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (fl *funcLowerer) block(p lexer.Position, label string) (*ir.BasicBlock, error) {
	b, ok := fl.blocks[strings.TrimPrefix(label, "%")]
	if !ok {
		return nil, errorf(p, "undefined block %s in @%s", label, fl.fn.Name)
	}
	return b, nil
}

// operands resolves the operands and successors of inst.
func (fl *funcLowerer) operands(inst *ir.Instruction, op *Operation, p lexer.Position) error {
	var err error
	switch {
	case op.Load != nil:
		inst.Operands, err = fl.typedValues(op.Load.Ptr)
	case op.Store != nil:
		inst.Operands, err = fl.typedValues(op.Store.Value, op.Store.Ptr)
	case op.GEP != nil:
		inst.Operands, err = fl.typedValues(append([]*TypedValue{op.GEP.Ptr}, op.GEP.Indices...)...)
	case op.Phi != nil:
		for _, e := range op.Phi.Edges {
			v, err := fl.value(e.Value, inst.Typ)
			if err != nil {
				return err
			}
			b, err := fl.block(p, e.Block)
			if err != nil {
				return err
			}
			inst.AddIncoming(v, b)
		}
	case op.Select != nil:
		inst.Operands, err = fl.typedValues(op.Select.Cond, op.Select.Then, op.Select.Else)
	case op.Call != nil:
		callee, err := fl.value(op.Call.Callee, ir.Ptr)
		if err != nil {
			return err
		}
		args, err := fl.typedValues(op.Call.Args...)
		if err != nil {
			return err
		}
		inst.Operands = append([]ir.Value{callee}, args...)
	case op.Br != nil:
		return fl.branch(inst, op.Br, p)
	case op.Switch != nil:
		return fl.switchOperands(inst, op.Switch, p)
	case op.Ret != nil:
		if op.Ret.Value != nil {
			inst.Operands, err = fl.typedValues(op.Ret.Value)
		}
	case op.FNeg != nil:
		inst.Operands, err = fl.typedValues(op.FNeg)
	case op.ExtractValue != nil:
		inst.Operands, err = fl.typedValues(op.ExtractValue.Agg)
	case op.InsertValue != nil:
		inst.Operands, err = fl.typedValues(op.InsertValue.Agg, op.InsertValue.Value)
	case op.ExtractElem != nil:
		inst.Operands, err = fl.typedValues(op.ExtractElem.List...)
	case op.InsertElem != nil:
		inst.Operands, err = fl.typedValues(op.InsertElem.List...)
	case op.Shuffle != nil:
		inst.Operands, err = fl.typedValues(op.Shuffle.List[:2]...)
	case op.Compare != nil:
		inst.Operands, err = fl.sameType(op.Compare.X, op.Compare.Y)
	case op.Cast != nil:
		inst.Operands, err = fl.typedValues(op.Cast.Value)
	case op.Binary != nil:
		inst.Operands, err = fl.sameType(op.Binary.X, op.Binary.Y)
	}
	return err
}

// sameType lowers a typed operand and a second operand sharing its type.
func (fl *funcLowerer) sameType(x *TypedValue, y *Value) ([]ir.Value, error) {
	xv, err := fl.typedValue(x)
	if err != nil {
		return nil, err
	}
	yv, err := fl.value(y, xv.Type())
	if err != nil {
		return nil, err
	}
	return []ir.Value{xv, yv}, nil
}

func (fl *funcLowerer) branch(inst *ir.Instruction, br *Br, p lexer.Position) error {
	if br.Cond == nil {
		dest, err := fl.block(p, br.Dest)
		if err != nil {
			return err
		}
		inst.Succs = []*ir.BasicBlock{dest}
		return nil
	}
	cond, err := fl.typedValue(br.Cond)
	if err != nil {
		return err
	}
	then, err := fl.block(p, br.Then)
	if err != nil {
		return err
	}
	els, err := fl.block(p, br.Else)
	if err != nil {
		return err
	}
	inst.Operands = []ir.Value{cond}
	inst.Succs = []*ir.BasicBlock{then, els}
	return nil
}

func (fl *funcLowerer) switchOperands(inst *ir.Instruction, sw *Switch, p lexer.Position) error {
	cond, err := fl.typedValue(sw.Value)
	if err != nil {
		return err
	}
	def, err := fl.block(p, sw.Default)
	if err != nil {
		return err
	}
	inst.Operands = []ir.Value{cond}
	inst.Succs = []*ir.BasicBlock{def}
	for _, c := range sw.Cases {
		t, err := fl.typ(c.Value.Type)
		if err != nil {
			return err
		}
		k, err := fl.constant(c.Value.Value, t)
		if err != nil {
			return err
		}
		ci, ok := k.(*ir.ConstInt)
		if !ok {
			return errorf(c.Value.Value.Pos, "switch case must be an integer constant")
		}
		dest, err := fl.block(p, c.Dest)
		if err != nil {
			return err
		}
		inst.Cases = append(inst.Cases, ci)
		inst.Succs = append(inst.Succs, dest)
	}
	return nil
}
