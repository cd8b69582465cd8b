package gossa

import (
	"go/types"

	"github.com/gnolang/absint/internal/ir"
)

// Layout of the Go reference types once lowered.
var (
	stringType = ir.StructOf(ir.Ptr, ir.I64)
	sliceType  = ir.StructOf(ir.Ptr, ir.I64, ir.I64)
)

// sizes is the memory layout used for heap allocation sizes.
var sizes = types.SizesFor("gc", "amd64")

// lowerType maps a Go type onto the IR. Reference types without a
// structured lowering (maps, channels, interfaces, functions) become
// opaque pointers.
func lowerType(t types.Type) *ir.Type {
	switch t := t.Underlying().(type) {
	case *types.Basic:
		return basicType(t)
	case *types.Slice:
		return sliceType
	case *types.Array:
		return ir.ArrayOf(lowerType(t.Elem()), int(t.Len()))
	case *types.Struct:
		fields := make([]*ir.Type, t.NumFields())
		for i := range fields {
			fields[i] = lowerType(t.Field(i).Type())
		}
		return ir.StructOf(fields...)
	case *types.Tuple:
		return tupleType(t)
	}
	return ir.Ptr
}

func basicType(t *types.Basic) *ir.Type {
	switch t.Kind() {
	case types.Bool, types.UntypedBool:
		return ir.I1
	case types.Int8, types.Uint8:
		return ir.I8
	case types.Int16, types.Uint16:
		return ir.I16
	case types.Int32, types.Uint32, types.UntypedRune:
		return ir.I32
	case types.Int, types.Int64, types.Uint, types.Uint64, types.Uintptr, types.UntypedInt:
		return ir.I64
	case types.Float32:
		return ir.F32
	case types.Float64, types.UntypedFloat:
		return ir.F64
	case types.Complex64:
		return ir.StructOf(ir.F32, ir.F32)
	case types.Complex128, types.UntypedComplex:
		return ir.StructOf(ir.F64, ir.F64)
	case types.String, types.UntypedString:
		return stringType
	}
	return ir.Ptr
}

// tupleType lowers a result list: nothing is void, one result is itself
// and more are packed into a struct.
func tupleType(t *types.Tuple) *ir.Type {
	switch t.Len() {
	case 0:
		return ir.Void
	case 1:
		return lowerType(t.At(0).Type())
	}
	fields := make([]*ir.Type, t.Len())
	for i := range fields {
		fields[i] = lowerType(t.At(i).Type())
	}
	return ir.StructOf(fields...)
}

func signature(sig *types.Signature) *ir.Type {
	var params []*ir.Type
	if recv := sig.Recv(); recv != nil {
		params = append(params, lowerType(recv.Type()))
	}
	for i := 0; i < sig.Params().Len(); i++ {
		params = append(params, lowerType(sig.Params().At(i).Type()))
	}
	return ir.FuncOf(tupleType(sig.Results()), params...)
}

func basicInfo(t types.Type) types.BasicInfo {
	if b, ok := t.Underlying().(*types.Basic); ok {
		return b.Info()
	}
	return 0
}

func isUnsigned(t types.Type) bool { return basicInfo(t)&types.IsUnsigned != 0 }
func isFloat(t types.Type) bool    { return basicInfo(t)&types.IsFloat != 0 }
func isInteger(t types.Type) bool  { return basicInfo(t)&types.IsInteger != 0 }
func isString(t types.Type) bool   { return basicInfo(t)&types.IsString != 0 }

// isScalar reports whether values of t compare with a single icmp/fcmp.
func isScalar(t types.Type) bool {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		return u.Info()&(types.IsBoolean|types.IsInteger|types.IsFloat) != 0 || u.Kind() == types.UnsafePointer
	case *types.Pointer, *types.Chan, *types.Map, *types.Signature:
		return true
	}
	return false
}
