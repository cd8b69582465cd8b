package ir

import (
	"fmt"
	"go/token"
	"strings"
)

// Instruction is a single IR operation.
//
// Operand layout by opcode:
//
//	store:          [value, pointer]
//	load:           [pointer]
//	getelementptr:  [pointer, index...]
//	select:         [cond, then, else]
//	call:           [callee, arg...]
//	condbr, switch: [cond]
//	ret:            [] or [value]
//	phi:            one operand per Incoming block
type Instruction struct {
	Op       Opcode
	Pred     Predicate
	Typ      *Type
	Name     string
	Operands []Value
	Block    *BasicBlock

	// Elem is the allocated type of alloca, the source element type of
	// getelementptr, the loaded type of load and the callee signature of call.
	Elem *Type

	Succs    []*BasicBlock // br: [dest], condbr: [then, else], switch: [default, case...]
	Cases    []*ConstInt   // switch case values, aligned with Succs[1:]
	Incoming []*BasicBlock // phi predecessors, aligned with Operands
	Indices  []int         // extractvalue, insertvalue
	Mask     []int         // shufflevector, -1 for undef lanes

	Pos token.Position
}

func (i *Instruction) Type() *Type {
	if i.Typ == nil {
		return Void
	}
	return i.Typ
}

func (i *Instruction) Ident() string { return "%" + i.Name }

// HasResult reports whether the instruction defines a value.
func (i *Instruction) HasResult() bool { return !i.Type().IsVoid() }

func (i *Instruction) Parent() *Function {
	if i.Block == nil {
		return nil
	}
	return i.Block.Parent
}

// Callee returns the called operand of a call instruction.
func (i *Instruction) Callee() Value {
	if i.Op != OpCall || len(i.Operands) == 0 {
		return nil
	}
	return i.Operands[0]
}

// Args returns the actual arguments of a call instruction.
func (i *Instruction) Args() []Value {
	if i.Op != OpCall || len(i.Operands) == 0 {
		return nil
	}
	return i.Operands[1:]
}

// IncomingFor returns the phi operand flowing in from pred.
func (i *Instruction) IncomingFor(pred *BasicBlock) (Value, bool) {
	for k, b := range i.Incoming {
		if b == pred {
			return i.Operands[k], true
		}
	}
	return nil, false
}

// AddIncoming appends a phi edge.
func (i *Instruction) AddIncoming(v Value, pred *BasicBlock) {
	i.Operands = append(i.Operands, v)
	i.Incoming = append(i.Incoming, pred)
}

func (i *Instruction) String() string {
	var sb strings.Builder
	if i.HasResult() {
		fmt.Fprintf(&sb, "%s = ", i.Ident())
	}
	sb.WriteString(i.Op.String())
	if i.Op == OpICmp || i.Op == OpFCmp {
		sb.WriteString(" " + i.Pred.String())
	}
	switch i.Op {
	case OpPhi:
		sb.WriteString(" " + i.Type().String())
		for k, v := range i.Operands {
			if k > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " [%s, %%%s]", v.Ident(), i.Incoming[k].Name)
		}
		return sb.String()
	case OpBr:
		fmt.Fprintf(&sb, " label %%%s", i.Succs[0].Name)
		return sb.String()
	case OpCondBr:
		fmt.Fprintf(&sb, " %s, label %%%s, label %%%s", i.Operands[0].Ident(), i.Succs[0].Name, i.Succs[1].Name)
		return sb.String()
	case OpSwitch:
		fmt.Fprintf(&sb, " %s, label %%%s [", i.Operands[0].Ident(), i.Succs[0].Name)
		for k, c := range i.Cases {
			if k > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " %s: %%%s", c.Ident(), i.Succs[k+1].Name)
		}
		sb.WriteString(" ]")
		return sb.String()
	case OpAlloca, OpLoad, OpGEP:
		sb.WriteString(" " + i.Elem.String())
		if len(i.Operands) > 0 {
			sb.WriteString(",")
		}
	}
	for k, v := range i.Operands {
		if k > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, " %s %s", v.Type(), v.Ident())
	}
	if i.Op.IsCast() {
		fmt.Fprintf(&sb, " to %s", i.Type())
	}
	for _, idx := range i.Indices {
		fmt.Fprintf(&sb, ", %d", idx)
	}
	return sb.String()
}
