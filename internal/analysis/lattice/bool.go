package lattice

// Bool is the four-point boolean lattice: the set of truth values a
// condition may take.
type Bool struct {
	canFalse bool
	canTrue  bool
}

var (
	BoolBottom = Bool{}
	BoolTop    = Bool{canFalse: true, canTrue: true}
	True       = Bool{canTrue: true}
	False      = Bool{canFalse: true}
)

func BoolConst(b bool) Bool {
	if b {
		return True
	}
	return False
}

func (b Bool) Type() *Type    { return BoolType }
func (b Bool) IsTop() bool    { return b.canFalse && b.canTrue }
func (b Bool) IsBottom() bool { return !b.canFalse && !b.canTrue }

func (b Bool) CanBeTrue() bool  { return b.canTrue }
func (b Bool) CanBeFalse() bool { return b.canFalse }

// Singleton returns the only value b may take.
func (b Bool) Singleton() (bool, bool) {
	if b.canTrue != b.canFalse {
		return b.canTrue, true
	}
	return false, false
}

func (b Bool) String() string {
	switch {
	case b.IsTop():
		return "⊤"
	case b.IsBottom():
		return "⊥"
	case b.canTrue:
		return "true"
	}
	return "false"
}

func (b Bool) join(o Bool) Bool {
	return Bool{canFalse: b.canFalse || o.canFalse, canTrue: b.canTrue || o.canTrue}
}

func (b Bool) meet(o Bool) Bool {
	return Bool{canFalse: b.canFalse && o.canFalse, canTrue: b.canTrue && o.canTrue}
}

func (b Bool) leq(o Bool) bool {
	return (!b.canFalse || o.canFalse) && (!b.canTrue || o.canTrue)
}

func (b Bool) Not() Bool {
	return Bool{canFalse: b.canTrue, canTrue: b.canFalse}
}

// lift applies a concrete boolean operator to every pair of possible inputs.
func (b Bool) lift(o Bool, fn func(x, y bool) bool) Bool {
	var r Bool
	for _, x := range b.values() {
		for _, y := range o.values() {
			if fn(x, y) {
				r.canTrue = true
			} else {
				r.canFalse = true
			}
		}
	}
	return r
}

func (b Bool) values() []bool {
	var vs []bool
	if b.canFalse {
		vs = append(vs, false)
	}
	if b.canTrue {
		vs = append(vs, true)
	}
	return vs
}

// And is logical conjunction. A definite false operand decides the result
// even when the other operand is top.
func (b Bool) And(o Bool) Bool { return b.lift(o, func(x, y bool) bool { return x && y }) }
func (b Bool) Or(o Bool) Bool  { return b.lift(o, func(x, y bool) bool { return x || y }) }
func (b Bool) Xor(o Bool) Bool { return b.lift(o, func(x, y bool) bool { return x != y }) }
