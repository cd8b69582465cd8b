package ir

import (
	"fmt"
	"go/token"
	"strconv"
	"strings"
)

// Value is anything an instruction can take as an operand.
type Value interface {
	Type() *Type
	// Ident is the textual operand form: %name, @name or a literal.
	Ident() string
}

// Constant is a Value whose content is known before execution.
type Constant interface {
	Value
	isConstant()
}

type (
	// ConstInt holds the sign-extended value of an integer constant.
	ConstInt struct {
		Typ *Type
		V   int64
	}

	ConstFloat struct {
		Typ *Type
		V   float64
	}

	// ConstNull is the null pointer.
	ConstNull struct {
		Typ *Type
	}

	// ConstZero is zeroinitializer of any type.
	ConstZero struct {
		Typ *Type
	}

	Undef struct {
		Typ *Type
	}

	// ConstAggregate is a constant array, vector or struct.
	ConstAggregate struct {
		Typ   *Type
		Elems []Constant
	}

	// ConstExpr is a constant expression such as a GEP or cast over other
	// constants. Source is the GEP source element type.
	ConstExpr struct {
		Op       Opcode
		Pred     Predicate
		Typ      *Type
		Source   *Type
		Operands []Constant
		Indices  []int
		Mask     []int
	}
)

func (*ConstInt) isConstant()       {}
func (*ConstFloat) isConstant()     {}
func (*ConstNull) isConstant()      {}
func (*ConstZero) isConstant()      {}
func (*Undef) isConstant()          {}
func (*ConstAggregate) isConstant() {}
func (*ConstExpr) isConstant()      {}
func (*Global) isConstant()         {}
func (*Function) isConstant()       {}

func (c *ConstInt) Type() *Type       { return c.Typ }
func (c *ConstFloat) Type() *Type     { return c.Typ }
func (c *ConstNull) Type() *Type      { return c.Typ }
func (c *ConstZero) Type() *Type      { return c.Typ }
func (c *Undef) Type() *Type          { return c.Typ }
func (c *ConstAggregate) Type() *Type { return c.Typ }
func (c *ConstExpr) Type() *Type      { return c.Typ }

func (c *ConstInt) Ident() string {
	if c.Typ.IsBool() {
		if c.V != 0 {
			return "true"
		}
		return "false"
	}
	return strconv.FormatInt(c.V, 10)
}

func (c *ConstFloat) Ident() string { return strconv.FormatFloat(c.V, 'g', -1, 64) }
func (c *ConstNull) Ident() string  { return "null" }
func (c *ConstZero) Ident() string  { return "zeroinitializer" }
func (c *Undef) Ident() string      { return "undef" }

func (c *ConstAggregate) Ident() string {
	parts := make([]string, len(c.Elems))
	for i, e := range c.Elems {
		parts[i] = e.Type().String() + " " + e.Ident()
	}
	open, end := "[", "]"
	switch c.Typ.Kind {
	case StructKind:
		open, end = "{", "}"
	case VectorKind:
		open, end = "<", ">"
	}
	return open + strings.Join(parts, ", ") + end
}

func (c *ConstExpr) Ident() string {
	parts := make([]string, len(c.Operands))
	for i, o := range c.Operands {
		parts[i] = o.Type().String() + " " + o.Ident()
	}
	return fmt.Sprintf("%s (%s)", c.Op, strings.Join(parts, ", "))
}

// NewInt returns an integer constant of type t, wrapping v to t's width.
func NewInt(t *Type, v int64) *ConstInt {
	return &ConstInt{Typ: t, V: Wrap(v, t.Width)}
}

func NewBool(v bool) *ConstInt {
	if v {
		return &ConstInt{Typ: I1, V: 1}
	}
	return &ConstInt{Typ: I1, V: 0}
}

// Wrap truncates v to width bits and sign-extends the result.
func Wrap(v int64, width int) int64 {
	if width <= 0 || width >= 64 {
		return v
	}
	if width == 1 {
		return v & 1
	}
	shift := uint(64 - width)
	return v << shift >> shift
}

// Argument is a formal parameter of a function.
type Argument struct {
	Name   string
	Typ    *Type
	Index  int
	Parent *Function
}

func (a *Argument) Type() *Type   { return a.Typ }
func (a *Argument) Ident() string { return "%" + a.Name }

// Global is a module-level variable. As an operand it denotes its address.
type Global struct {
	Name      string
	ValueType *Type
	Init      Constant // nil for external declarations
	IsConst   bool
	Pos       token.Position
}

func (g *Global) Type() *Type   { return PointerTo(g.ValueType) }
func (g *Global) Ident() string { return "@" + g.Name }

// Function is a function definition or, when it has no blocks, a declaration.
// As an operand it denotes its address.
type Function struct {
	Name   string
	Sig    *Type
	Params []*Argument
	Blocks []*BasicBlock
	Module *Module
	Pos    token.Position
}

func (f *Function) Type() *Type   { return PointerTo(f.Sig) }
func (f *Function) Ident() string { return "@" + f.Name }

func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Block returns the block labelled name, or nil.
func (f *Function) Block(name string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Instructions calls fn for every instruction of f in block order.
func (f *Function) Instructions(fn func(*Instruction)) {
	for _, b := range f.Blocks {
		for _, inst := range b.Instrs {
			fn(inst)
		}
	}
}

// BasicBlock is a straight-line instruction sequence ending in a terminator.
type BasicBlock struct {
	Name   string
	Index  int
	Parent *Function
	Instrs []*Instruction
}

// Terminator returns the last instruction if it is a terminator.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Succs returns the successor blocks in terminator order, without duplicates.
func (b *BasicBlock) Succs() []*BasicBlock {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	var out []*BasicBlock
	seen := make(map[*BasicBlock]bool, len(term.Succs))
	for _, s := range term.Succs {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Phis returns the leading phi instructions of b.
func (b *BasicBlock) Phis() []*Instruction {
	var phis []*Instruction
	for _, inst := range b.Instrs {
		if inst.Op != OpPhi {
			break
		}
		phis = append(phis, inst)
	}
	return phis
}

func (b *BasicBlock) String() string { return b.Name }

// Module is a translation unit: globals and functions.
type Module struct {
	Name      string
	Source    string // file the module was loaded from
	Globals   []*Global
	Functions []*Function
}

func (m *Module) Global(name string) *Global {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
