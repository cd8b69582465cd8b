package factory

import (
	"fmt"

	"github.com/gnolang/absint/internal/analysis/lattice"
	"github.com/gnolang/absint/internal/ir"
)

// Operation describes a value-producing operator independently of whether
// it comes from an instruction or a constant expression.
type Operation struct {
	Op     ir.Opcode
	Pred   ir.Predicate
	Result *ir.Type
	// Source is the getelementptr source element type.
	Source  *ir.Type
	Indices []int
	Mask    []int
}

// OperationOf extracts the operator of inst.
func OperationOf(inst *ir.Instruction) Operation {
	return Operation{
		Op:      inst.Op,
		Pred:    inst.Pred,
		Result:  inst.Typ,
		Source:  inst.Elem,
		Indices: inst.Indices,
		Mask:    inst.Mask,
	}
}

// Apply evaluates op over abstract operands. Lattice errors are returned
// unchanged so callers can tell imprecision from broken invariants.
func (f *Factory) Apply(op Operation, args []lattice.Value) (lattice.Value, error) {
	if err := arity(op.Op, len(args)); err != nil {
		return nil, err
	}
	switch {
	case op.Op.IsBinary(), op.Op.IsFloatBinary():
		return lattice.Binary(op.Op, args[0], args[1])
	case op.Op.IsCast():
		return lattice.Cast(op.Op, args[0], f.Type(op.Result))
	}
	switch op.Op {
	case ir.OpFNeg:
		return lattice.FNeg(args[0])
	case ir.OpICmp:
		return lattice.ICmp(op.Pred, args[0], args[1])
	case ir.OpFCmp:
		return lattice.FCmp(op.Pred, args[0], args[1])
	case ir.OpGEP:
		var source *lattice.Type
		if op.Source != nil {
			source = f.Type(op.Source)
		}
		return lattice.GEP(args[0], source, args[1:])
	case ir.OpSelect:
		return lattice.Select(args[0], args[1], args[2])
	case ir.OpExtractValue:
		return lattice.ExtractValue(args[0], op.Indices, f.Type(op.Result))
	case ir.OpInsertValue:
		return lattice.InsertValue(args[0], args[1], op.Indices)
	case ir.OpExtractElement:
		return lattice.ExtractElement(args[0], args[1], f.Type(op.Result))
	case ir.OpInsertElement:
		return lattice.InsertElement(args[0], args[1], args[2])
	case ir.OpShuffleVector:
		if vec, ok := args[0].(lattice.Array); ok {
			n := vec.Type().Len
			if other, ok := args[1].(lattice.Array); ok && other.Type().Len != n {
				return nil, fmt.Errorf("%w: shufflevector operands have %d and %d lanes", ErrLogic, n, other.Type().Len)
			}
			for _, m := range op.Mask {
				if m < -1 || m >= 2*n {
					return nil, fmt.Errorf("%w: shuffle mask index %d out of range for %d lanes", ErrLogic, m, n)
				}
			}
		}
		return lattice.Shuffle(args[0], args[1], op.Mask, f.Type(op.Result))
	}
	return nil, fmt.Errorf("%w: %s", lattice.ErrUnsupportedOperation, op.Op)
}

func arity(op ir.Opcode, n int) error {
	want := 0
	switch {
	case op.IsBinary(), op.IsFloatBinary(), op == ir.OpICmp, op == ir.OpFCmp,
		op == ir.OpInsertValue, op == ir.OpExtractElement, op == ir.OpShuffleVector:
		want = 2
	case op.IsCast(), op == ir.OpFNeg, op == ir.OpExtractValue:
		want = 1
	case op == ir.OpSelect, op == ir.OpInsertElement:
		want = 3
	case op == ir.OpGEP:
		if n < 1 {
			return fmt.Errorf("%w: getelementptr without base", ErrLogic)
		}
		return nil
	default:
		return nil
	}
	if n != want {
		return fmt.Errorf("%w: %s takes %d operands, got %d", ErrLogic, op, want, n)
	}
	return nil
}
