package ir

import (
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed IR")

// Verify checks the structural invariants the analysis relies on: every
// block of a definition ends in a terminator, branch targets belong to the
// same function and phis name only predecessors of their block.
func Verify(m *Module) error {
	for _, f := range m.Functions {
		if err := verifyFunction(f); err != nil {
			return err
		}
	}
	return nil
}

func verifyFunction(f *Function) error {
	if f.IsDeclaration() {
		return nil
	}
	owned := make(map[*BasicBlock]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		owned[b] = true
	}
	preds := make(map[*BasicBlock]map[*BasicBlock]bool)
	for _, b := range f.Blocks {
		term := b.Terminator()
		if term == nil {
			return fmt.Errorf("%w: block %s of @%s has no terminator", ErrMalformed, b.Name, f.Name)
		}
		for _, s := range term.Succs {
			if !owned[s] {
				return fmt.Errorf("%w: block %s of @%s branches outside the function", ErrMalformed, b.Name, f.Name)
			}
			if preds[s] == nil {
				preds[s] = make(map[*BasicBlock]bool)
			}
			preds[s][b] = true
		}
		if term.Op == OpCondBr && len(term.Succs) != 2 {
			return fmt.Errorf("%w: condbr in %s of @%s needs two targets", ErrMalformed, b.Name, f.Name)
		}
		for k, inst := range b.Instrs {
			if inst.Op.IsTerminator() && k != len(b.Instrs)-1 {
				return fmt.Errorf("%w: terminator in the middle of %s of @%s", ErrMalformed, b.Name, f.Name)
			}
		}
	}
	for _, b := range f.Blocks {
		for _, phi := range b.Phis() {
			if len(phi.Incoming) != len(phi.Operands) {
				return fmt.Errorf("%w: phi %s has mismatched incoming list", ErrMalformed, phi.Ident())
			}
			for _, in := range phi.Incoming {
				if !preds[b][in] {
					return fmt.Errorf("%w: phi %s names %s, which is not a predecessor of %s",
						ErrMalformed, phi.Ident(), in.Name, b.Name)
				}
			}
		}
	}
	return nil
}
