package asm

import (
	"fmt"
	"math"
	"strings"
)

// Label is a branch target handle. The zero Label means "none".
type Label int

func (l Label) String() string { return fmt.Sprintf("L%d", int(l)) }

// Labels hands out fresh labels.
type Labels struct {
	next Label
}

func (g *Labels) New() Label {
	g.next++
	return g.next
}

// Ref names a field or method.
type Ref struct {
	Owner string
	Name  string
	Desc  string
}

func (r Ref) String() string {
	if strings.HasPrefix(r.Desc, "(") {
		return r.Owner + "." + r.Name + r.Desc
	}
	return r.Owner + "." + r.Name + ":" + r.Desc
}

// Instr is one symbolic instruction. Only the fields that Op uses are set.
type Instr struct {
	Op      Opcode
	Local   int     // load/store slot
	Operand int32   // bipush/sipush value, newarray type, gosub key, tableswitch low key
	Value   any     // ldc constant: float32, int32 or string
	Target  Label   // branch target, label position, switch/dispatch default
	Return  Label   // gosub return label
	Keys    []int32 // lookupswitch keys
	Targets []Label // switch targets
	Ref     Ref     // field or method reference
	Class   string  // new/anewarray class, multianewarray descriptor
	Dims    int     // multianewarray dimensions
}

// Insn is an instruction without operands.
func Insn(op Opcode) Instr { return Instr{Op: op} }

// Var is a load or store of a local slot, op being the long form.
func Var(op Opcode, slot int) Instr { return Instr{Op: op, Local: slot} }

// Int pushes an int constant using the shortest encoding.
func Int(v int32) Instr {
	switch {
	case v >= -1 && v <= 5:
		return Instr{Op: Opcode(int32(ICONST_0) + v)}
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return Instr{Op: BIPUSH, Operand: v}
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return Instr{Op: SIPUSH, Operand: v}
	}
	return Instr{Op: LDC, Value: v}
}

// Float pushes a float constant.
func Float(v float32) Instr {
	if !math.Signbit(float64(v)) {
		switch v {
		case 0:
			return Instr{Op: FCONST_0}
		case 1:
			return Instr{Op: FCONST_1}
		case 2:
			return Instr{Op: FCONST_2}
		}
	}
	return Instr{Op: LDC, Value: v}
}

// String pushes a string constant.
func String(s string) Instr { return Instr{Op: LDC, Value: s} }

// Jump is a conditional or unconditional branch.
func Jump(op Opcode, target Label) Instr { return Instr{Op: op, Target: target} }

// Mark places l at the current position.
func Mark(l Label) Instr { return Instr{Op: LABEL, Target: l} }

// Field is a getfield or putfield.
func Field(op Opcode, owner, name, desc string) Instr {
	return Instr{Op: op, Ref: Ref{owner, name, desc}}
}

// Invoke is a method call.
func Invoke(op Opcode, owner, name, desc string) Instr {
	return Instr{Op: op, Ref: Ref{owner, name, desc}}
}

// Type is new or anewarray.
func Type(op Opcode, class string) Instr { return Instr{Op: op, Class: class} }

// NewFloatArray allocates a float[] of the length on the stack.
func NewFloatArray() Instr { return Instr{Op: NEWARRAY, Operand: T_FLOAT} }

// MultiArray allocates a dims-dimensional array of the given descriptor.
func MultiArray(desc string, dims int) Instr {
	return Instr{Op: MULTIANEWARRAY, Class: desc, Dims: dims}
}

// TableSwitch jumps to targets[key-low], or to def when out of range.
func TableSwitch(low int32, def Label, targets ...Label) Instr {
	return Instr{Op: TABLESWITCH, Operand: low, Target: def, Targets: targets}
}

// LookupSwitch jumps to the target paired with the key on the stack.
func LookupSwitch(def Label, keys []int32, targets []Label) Instr {
	return Instr{Op: LOOKUPSWITCH, Target: def, Keys: keys, Targets: targets}
}

// Gosub pushes key and jumps to target. ret must be marked directly after.
func Gosub(key int32, target, ret Label) Instr {
	return Instr{Op: GOSUB, Operand: key, Target: target, Return: ret}
}

// Dispatch returns from a subroutine: it pops a return-site key and jumps
// to the return label of the gosub that pushed it, or to def.
func Dispatch(def Label) Instr { return Instr{Op: DISPATCH, Target: def} }

func (in Instr) String() string {
	switch in.Op {
	case LABEL:
		return in.Target.String() + ":"
	case ILOAD, FLOAD, ALOAD, ISTORE, FSTORE, ASTORE:
		return fmt.Sprintf("%s %d", in.Op, in.Local)
	case BIPUSH, SIPUSH:
		return fmt.Sprintf("%s %d", in.Op, in.Operand)
	case NEWARRAY:
		return "newarray float"
	case LDC:
		if s, ok := in.Value.(string); ok {
			return fmt.Sprintf("ldc %q", s)
		}
		return fmt.Sprintf("ldc %v", in.Value)
	case GETFIELD, PUTFIELD, INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC:
		return fmt.Sprintf("%s %s", in.Op, in.Ref)
	case NEW, ANEWARRAY:
		return fmt.Sprintf("%s %s", in.Op, in.Class)
	case MULTIANEWARRAY:
		return fmt.Sprintf("%s %s %d", in.Op, in.Class, in.Dims)
	case TABLESWITCH:
		return fmt.Sprintf("tableswitch %d %v default %s", in.Operand, in.Targets, in.Target)
	case LOOKUPSWITCH:
		return fmt.Sprintf("lookupswitch %v %v default %s", in.Keys, in.Targets, in.Target)
	case GOSUB:
		return fmt.Sprintf("gosub %d %s return %s", in.Operand, in.Target, in.Return)
	case DISPATCH:
		return fmt.Sprintf("dispatch default %s", in.Target)
	}
	if in.Op.IsBranch() {
		return fmt.Sprintf("%s %s", in.Op, in.Target)
	}
	return in.Op.String()
}
