package ir

import (
	"go/token"
	"strconv"
)

func NewModule(name string) *Module {
	return &Module{Name: name}
}

// NewGlobal adds a global variable holding a value of type t.
func (m *Module) NewGlobal(name string, t *Type, init Constant) *Global {
	g := &Global{Name: name, ValueType: t, Init: init}
	m.Globals = append(m.Globals, g)
	return g
}

// NewFunction adds a function with signature sig. Parameters are named
// after params, or numbered when params is shorter than the signature.
func (m *Module) NewFunction(name string, sig *Type, params ...string) *Function {
	f := &Function{Name: name, Sig: sig, Module: m}
	for i, pt := range sig.Params {
		pname := strconv.Itoa(i)
		if i < len(params) {
			pname = params[i]
		}
		f.Params = append(f.Params, &Argument{Name: pname, Typ: pt, Index: i, Parent: f})
	}
	m.Functions = append(m.Functions, f)
	return f
}

func (f *Function) NewBlock(name string) *BasicBlock {
	b := &BasicBlock{Name: name, Index: len(f.Blocks), Parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Builder appends instructions to a block.
type Builder struct {
	block *BasicBlock
	name  string
	pos   token.Position
	seq   int
}

func NewBuilder(b *BasicBlock) *Builder {
	return &Builder{block: b}
}

// SetBlock moves the insertion point to the end of b.
func (b *Builder) SetBlock(bb *BasicBlock) { b.block = bb }

func (b *Builder) Block() *BasicBlock { return b.block }

// Named sets the result name of the next instruction.
func (b *Builder) Named(name string) *Builder {
	b.name = name
	return b
}

// At sets the source position attached to subsequent instructions.
func (b *Builder) At(pos token.Position) *Builder {
	b.pos = pos
	return b
}

func (b *Builder) emit(inst *Instruction) *Instruction {
	inst.Block = b.block
	inst.Pos = b.pos
	if inst.HasResult() {
		if b.name != "" {
			inst.Name = b.name
		} else {
			inst.Name = "t" + strconv.Itoa(b.seq)
			b.seq++
		}
	}
	b.name = ""
	b.block.Instrs = append(b.block.Instrs, inst)
	return inst
}

func (b *Builder) Binary(op Opcode, x, y Value) *Instruction {
	return b.emit(&Instruction{Op: op, Typ: x.Type(), Operands: []Value{x, y}})
}

func (b *Builder) FNeg(x Value) *Instruction {
	return b.emit(&Instruction{Op: OpFNeg, Typ: x.Type(), Operands: []Value{x}})
}

func (b *Builder) ICmp(pred Predicate, x, y Value) *Instruction {
	return b.emit(&Instruction{Op: OpICmp, Pred: pred, Typ: cmpType(x.Type()), Operands: []Value{x, y}})
}

func (b *Builder) FCmp(pred Predicate, x, y Value) *Instruction {
	return b.emit(&Instruction{Op: OpFCmp, Pred: pred, Typ: cmpType(x.Type()), Operands: []Value{x, y}})
}

func cmpType(t *Type) *Type {
	if t.Kind == VectorKind {
		return VectorOf(I1, t.Len)
	}
	return I1
}

func (b *Builder) Alloca(t *Type) *Instruction {
	return b.emit(&Instruction{Op: OpAlloca, Typ: Ptr, Elem: t})
}

func (b *Builder) Load(t *Type, ptr Value) *Instruction {
	return b.emit(&Instruction{Op: OpLoad, Typ: t, Elem: t, Operands: []Value{ptr}})
}

func (b *Builder) Store(v, ptr Value) *Instruction {
	return b.emit(&Instruction{Op: OpStore, Typ: Void, Operands: []Value{v, ptr}})
}

// GEP computes an address inside an object of type elem pointed to by ptr.
func (b *Builder) GEP(elem *Type, ptr Value, indices ...Value) *Instruction {
	ops := append([]Value{ptr}, indices...)
	return b.emit(&Instruction{Op: OpGEP, Typ: Ptr, Elem: elem, Operands: ops})
}

func (b *Builder) Cast(op Opcode, v Value, to *Type) *Instruction {
	return b.emit(&Instruction{Op: op, Typ: to, Operands: []Value{v}})
}

// Incoming is one phi edge.
type Incoming struct {
	Value Value
	Block *BasicBlock
}

func (b *Builder) Phi(t *Type, edges ...Incoming) *Instruction {
	inst := &Instruction{Op: OpPhi, Typ: t}
	for _, e := range edges {
		inst.AddIncoming(e.Value, e.Block)
	}
	return b.emit(inst)
}

func (b *Builder) Select(cond, x, y Value) *Instruction {
	return b.emit(&Instruction{Op: OpSelect, Typ: x.Type(), Operands: []Value{cond, x, y}})
}

// Call emits a call through callee with signature sig.
func (b *Builder) Call(callee Value, sig *Type, args ...Value) *Instruction {
	ops := append([]Value{callee}, args...)
	return b.emit(&Instruction{Op: OpCall, Typ: sig.Result, Elem: sig, Operands: ops})
}

func (b *Builder) ExtractValue(agg Value, result *Type, indices ...int) *Instruction {
	return b.emit(&Instruction{Op: OpExtractValue, Typ: result, Operands: []Value{agg}, Indices: indices})
}

func (b *Builder) InsertValue(agg, v Value, indices ...int) *Instruction {
	return b.emit(&Instruction{Op: OpInsertValue, Typ: agg.Type(), Operands: []Value{agg, v}, Indices: indices})
}

func (b *Builder) ExtractElement(vec, idx Value) *Instruction {
	return b.emit(&Instruction{Op: OpExtractElement, Typ: vec.Type().Elem, Operands: []Value{vec, idx}})
}

func (b *Builder) InsertElement(vec, elt, idx Value) *Instruction {
	return b.emit(&Instruction{Op: OpInsertElement, Typ: vec.Type(), Operands: []Value{vec, elt, idx}})
}

func (b *Builder) ShuffleVector(x, y Value, mask ...int) *Instruction {
	t := VectorOf(x.Type().Elem, len(mask))
	return b.emit(&Instruction{Op: OpShuffleVector, Typ: t, Operands: []Value{x, y}, Mask: mask})
}

func (b *Builder) Br(dest *BasicBlock) *Instruction {
	return b.emit(&Instruction{Op: OpBr, Typ: Void, Succs: []*BasicBlock{dest}})
}

func (b *Builder) CondBr(cond Value, then, els *BasicBlock) *Instruction {
	return b.emit(&Instruction{Op: OpCondBr, Typ: Void, Operands: []Value{cond}, Succs: []*BasicBlock{then, els}})
}

// SwitchCase is one arm of a switch.
type SwitchCase struct {
	Value *ConstInt
	Dest  *BasicBlock
}

func (b *Builder) Switch(cond Value, def *BasicBlock, cases ...SwitchCase) *Instruction {
	inst := &Instruction{Op: OpSwitch, Typ: Void, Operands: []Value{cond}, Succs: []*BasicBlock{def}}
	for _, c := range cases {
		inst.Cases = append(inst.Cases, c.Value)
		inst.Succs = append(inst.Succs, c.Dest)
	}
	return b.emit(inst)
}

func (b *Builder) Ret(v Value) *Instruction {
	inst := &Instruction{Op: OpRet, Typ: Void}
	if v != nil {
		inst.Operands = []Value{v}
	}
	return b.emit(inst)
}

func (b *Builder) Unreachable() *Instruction {
	return b.emit(&Instruction{Op: OpUnreachable, Typ: Void})
}
