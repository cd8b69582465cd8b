package ir

// Opcode tags an instruction or constant expression.
type Opcode int

const (
	OpInvalid Opcode = iota

	// integer arithmetic and bitwise
	OpAdd
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor

	// floating point arithmetic
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem
	OpFNeg

	// comparisons
	OpICmp
	OpFCmp

	// memory
	OpAlloca
	OpLoad
	OpStore
	OpGEP

	// casts
	OpTrunc
	OpZExt
	OpSExt
	OpFPTrunc
	OpFPExt
	OpFPToSI
	OpFPToUI
	OpSIToFP
	OpUIToFP
	OpPtrToInt
	OpIntToPtr
	OpBitCast

	// other
	OpPhi
	OpSelect
	OpCall
	OpExtractValue
	OpInsertValue
	OpExtractElement
	OpInsertElement
	OpShuffleVector

	// terminators
	OpBr
	OpCondBr
	OpSwitch
	OpRet
	OpUnreachable
)

var opcodeNames = map[Opcode]string{
	OpAdd:            "add",
	OpSub:            "sub",
	OpMul:            "mul",
	OpUDiv:           "udiv",
	OpSDiv:           "sdiv",
	OpURem:           "urem",
	OpSRem:           "srem",
	OpShl:            "shl",
	OpLShr:           "lshr",
	OpAShr:           "ashr",
	OpAnd:            "and",
	OpOr:             "or",
	OpXor:            "xor",
	OpFAdd:           "fadd",
	OpFSub:           "fsub",
	OpFMul:           "fmul",
	OpFDiv:           "fdiv",
	OpFRem:           "frem",
	OpFNeg:           "fneg",
	OpICmp:           "icmp",
	OpFCmp:           "fcmp",
	OpAlloca:         "alloca",
	OpLoad:           "load",
	OpStore:          "store",
	OpGEP:            "getelementptr",
	OpTrunc:          "trunc",
	OpZExt:           "zext",
	OpSExt:           "sext",
	OpFPTrunc:        "fptrunc",
	OpFPExt:          "fpext",
	OpFPToSI:         "fptosi",
	OpFPToUI:         "fptoui",
	OpSIToFP:         "sitofp",
	OpUIToFP:         "uitofp",
	OpPtrToInt:       "ptrtoint",
	OpIntToPtr:       "inttoptr",
	OpBitCast:        "bitcast",
	OpPhi:            "phi",
	OpSelect:         "select",
	OpCall:           "call",
	OpExtractValue:   "extractvalue",
	OpInsertValue:    "insertvalue",
	OpExtractElement: "extractelement",
	OpInsertElement:  "insertelement",
	OpShuffleVector:  "shufflevector",
	OpBr:             "br",
	OpCondBr:         "condbr",
	OpSwitch:         "switch",
	OpRet:            "ret",
	OpUnreachable:    "unreachable",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "invalid"
}

// LookupOpcode returns the opcode spelled name, or OpInvalid.
func LookupOpcode(name string) Opcode {
	return opcodesByName[name]
}

func (op Opcode) IsBinary() bool      { return op >= OpAdd && op <= OpXor }
func (op Opcode) IsFloatBinary() bool { return op >= OpFAdd && op <= OpFRem }
func (op Opcode) IsCast() bool        { return op >= OpTrunc && op <= OpBitCast }
func (op Opcode) IsTerminator() bool  { return op >= OpBr && op <= OpUnreachable }

// IsDivision reports whether op traps on a zero divisor.
func (op Opcode) IsDivision() bool {
	return op == OpUDiv || op == OpSDiv || op == OpURem || op == OpSRem
}

// IsConstantExpr reports whether op may appear inside a constant expression.
func (op Opcode) IsConstantExpr() bool {
	switch {
	case op.IsBinary(), op.IsFloatBinary(), op.IsCast():
		return true
	}
	switch op {
	case OpFNeg, OpICmp, OpFCmp, OpGEP, OpSelect,
		OpExtractValue, OpInsertValue, OpExtractElement, OpInsertElement, OpShuffleVector:
		return true
	}
	return false
}

// Predicate is the condition of an icmp or fcmp.
type Predicate int

const (
	PredInvalid Predicate = iota

	IntEQ
	IntNE
	IntSLT
	IntSLE
	IntSGT
	IntSGE
	IntULT
	IntULE
	IntUGT
	IntUGE

	FloatFalse
	FloatOEQ
	FloatONE
	FloatOLT
	FloatOLE
	FloatOGT
	FloatOGE
	FloatORD
	FloatUEQ
	FloatUNE
	FloatULT
	FloatULE
	FloatUGT
	FloatUGE
	FloatUNO
	FloatTrue
)

var predicateNames = map[Predicate]string{
	IntEQ:      "eq",
	IntNE:      "ne",
	IntSLT:     "slt",
	IntSLE:     "sle",
	IntSGT:     "sgt",
	IntSGE:     "sge",
	IntULT:     "ult",
	IntULE:     "ule",
	IntUGT:     "ugt",
	IntUGE:     "uge",
	FloatFalse: "false",
	FloatOEQ:   "oeq",
	FloatONE:   "one",
	FloatOLT:   "olt",
	FloatOLE:   "ole",
	FloatOGT:   "ogt",
	FloatOGE:   "oge",
	FloatORD:   "ord",
	FloatUEQ:   "ueq",
	FloatUNE:   "une",
	FloatULT:   "ult",
	FloatULE:   "ule",
	FloatUGT:   "ugt",
	FloatUGE:   "uge",
	FloatUNO:   "uno",
	FloatTrue:  "true",
}

func (p Predicate) String() string {
	if name, ok := predicateNames[p]; ok {
		return name
	}
	return "invalid"
}

func (p Predicate) IsInt() bool   { return p >= IntEQ && p <= IntUGE }
func (p Predicate) IsFloat() bool { return p >= FloatFalse && p <= FloatTrue }

// LookupPredicate resolves a predicate spelling for the given comparison.
func LookupPredicate(op Opcode, name string) Predicate {
	for p, n := range predicateNames {
		if n != name {
			continue
		}
		if op == OpICmp && p.IsInt() || op == OpFCmp && p.IsFloat() {
			return p
		}
	}
	return PredInvalid
}

// Inverse returns the predicate that holds exactly when p does not.
func (p Predicate) Inverse() Predicate {
	switch p {
	case IntEQ:
		return IntNE
	case IntNE:
		return IntEQ
	case IntSLT:
		return IntSGE
	case IntSLE:
		return IntSGT
	case IntSGT:
		return IntSLE
	case IntSGE:
		return IntSLT
	case IntULT:
		return IntUGE
	case IntULE:
		return IntUGT
	case IntUGT:
		return IntULE
	case IntUGE:
		return IntULT
	}
	return p
}

// Swap returns the predicate for the comparison with its operands exchanged.
func (p Predicate) Swap() Predicate {
	switch p {
	case IntSLT:
		return IntSGT
	case IntSLE:
		return IntSGE
	case IntSGT:
		return IntSLT
	case IntSGE:
		return IntSLE
	case IntULT:
		return IntUGT
	case IntULE:
		return IntUGE
	case IntUGT:
		return IntULT
	case IntUGE:
		return IntULE
	}
	return p
}
