package asm

import "fmt"

// Opcode is a JVM instruction opcode. Values above 0xFF are pseudo
// instructions that the assembler expands or consumes.
type Opcode uint16

// The subset of the instruction set the BASIC compiler and the template
// use. Load and store short forms (iload_0 ...) are picked by the encoder.
const (
	NOP            Opcode = 0x00
	ACONST_NULL    Opcode = 0x01
	ICONST_M1      Opcode = 0x02
	ICONST_0       Opcode = 0x03
	ICONST_1       Opcode = 0x04
	ICONST_2       Opcode = 0x05
	ICONST_3       Opcode = 0x06
	ICONST_4       Opcode = 0x07
	ICONST_5       Opcode = 0x08
	FCONST_0       Opcode = 0x0b
	FCONST_1       Opcode = 0x0c
	FCONST_2       Opcode = 0x0d
	BIPUSH         Opcode = 0x10
	SIPUSH         Opcode = 0x11
	LDC            Opcode = 0x12
	LDC_W          Opcode = 0x13
	ILOAD          Opcode = 0x15
	FLOAD          Opcode = 0x17
	ALOAD          Opcode = 0x19
	ILOAD_0        Opcode = 0x1a
	FLOAD_0        Opcode = 0x22
	ALOAD_0        Opcode = 0x2a
	FALOAD         Opcode = 0x30
	AALOAD         Opcode = 0x32
	ISTORE         Opcode = 0x36
	FSTORE         Opcode = 0x38
	ASTORE         Opcode = 0x3a
	ISTORE_0       Opcode = 0x3b
	FSTORE_0       Opcode = 0x43
	ASTORE_0       Opcode = 0x4b
	FASTORE        Opcode = 0x51
	AASTORE        Opcode = 0x53
	POP            Opcode = 0x57
	DUP            Opcode = 0x59
	SWAP           Opcode = 0x5f
	IADD           Opcode = 0x60
	FADD           Opcode = 0x62
	ISUB           Opcode = 0x64
	FSUB           Opcode = 0x66
	FMUL           Opcode = 0x6a
	FDIV           Opcode = 0x6e
	FNEG           Opcode = 0x76
	I2F            Opcode = 0x86
	F2I            Opcode = 0x8b
	F2D            Opcode = 0x8d
	D2F            Opcode = 0x90
	I2C            Opcode = 0x92
	FCMPL          Opcode = 0x95
	FCMPG          Opcode = 0x96
	IFEQ           Opcode = 0x99
	IFNE           Opcode = 0x9a
	IFLT           Opcode = 0x9b
	IFGE           Opcode = 0x9c
	IFGT           Opcode = 0x9d
	IFLE           Opcode = 0x9e
	IF_ICMPEQ      Opcode = 0x9f
	IF_ICMPNE      Opcode = 0xa0
	IF_ICMPLT      Opcode = 0xa1
	IF_ICMPGE      Opcode = 0xa2
	IF_ICMPGT      Opcode = 0xa3
	IF_ICMPLE      Opcode = 0xa4
	GOTO           Opcode = 0xa7
	TABLESWITCH    Opcode = 0xaa
	LOOKUPSWITCH   Opcode = 0xab
	RETURN         Opcode = 0xb1
	GETFIELD       Opcode = 0xb4
	PUTFIELD       Opcode = 0xb5
	INVOKEVIRTUAL  Opcode = 0xb6
	INVOKESPECIAL  Opcode = 0xb7
	INVOKESTATIC   Opcode = 0xb8
	NEW            Opcode = 0xbb
	NEWARRAY       Opcode = 0xbc
	ANEWARRAY      Opcode = 0xbd
	ARRAYLENGTH    Opcode = 0xbe
	WIDE           Opcode = 0xc4
	MULTIANEWARRAY Opcode = 0xc5
	GOTO_W         Opcode = 0xc8
)

// Pseudo instructions.
const (
	// LABEL marks the position of Instr.Target.
	LABEL Opcode = 0x100 + iota
	// GOSUB pushes Instr.Key and jumps to Instr.Target; Instr.Return is the
	// label placed right after it.
	GOSUB
	// DISPATCH pops a return-site key and jumps to the matching GOSUB's
	// return label, or to Instr.Target when no site matches.
	DISPATCH
)

// T_FLOAT is the newarray type code for float[].
const T_FLOAT = 6

var opNames = map[Opcode]string{
	NOP: "nop", ACONST_NULL: "aconst_null",
	ICONST_M1: "iconst_m1", ICONST_0: "iconst_0", ICONST_1: "iconst_1", ICONST_2: "iconst_2",
	ICONST_3: "iconst_3", ICONST_4: "iconst_4", ICONST_5: "iconst_5",
	FCONST_0: "fconst_0", FCONST_1: "fconst_1", FCONST_2: "fconst_2",
	BIPUSH: "bipush", SIPUSH: "sipush", LDC: "ldc", LDC_W: "ldc_w",
	ILOAD: "iload", FLOAD: "fload", ALOAD: "aload",
	FALOAD: "faload", AALOAD: "aaload",
	ISTORE: "istore", FSTORE: "fstore", ASTORE: "astore",
	FASTORE: "fastore", AASTORE: "aastore",
	POP: "pop", DUP: "dup", SWAP: "swap",
	IADD: "iadd", FADD: "fadd", ISUB: "isub", FSUB: "fsub", FMUL: "fmul", FDIV: "fdiv", FNEG: "fneg",
	I2F: "i2f", F2I: "f2i", F2D: "f2d", D2F: "d2f", I2C: "i2c",
	FCMPL: "fcmpl", FCMPG: "fcmpg",
	IFEQ: "ifeq", IFNE: "ifne", IFLT: "iflt", IFGE: "ifge", IFGT: "ifgt", IFLE: "ifle",
	IF_ICMPEQ: "if_icmpeq", IF_ICMPNE: "if_icmpne", IF_ICMPLT: "if_icmplt",
	IF_ICMPGE: "if_icmpge", IF_ICMPGT: "if_icmpgt", IF_ICMPLE: "if_icmple",
	GOTO: "goto", TABLESWITCH: "tableswitch", LOOKUPSWITCH: "lookupswitch",
	RETURN: "return", GETFIELD: "getfield", PUTFIELD: "putfield",
	INVOKEVIRTUAL: "invokevirtual", INVOKESPECIAL: "invokespecial", INVOKESTATIC: "invokestatic",
	NEW: "new", NEWARRAY: "newarray", ANEWARRAY: "anewarray", ARRAYLENGTH: "arraylength",
	WIDE: "wide", MULTIANEWARRAY: "multianewarray", GOTO_W: "goto_w",
	LABEL: "label", GOSUB: "gosub", DISPATCH: "dispatch",
}

func (op Opcode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("op_0x%02x", uint16(op))
}

// IsBranch reports whether op is a conditional or unconditional jump
// taking a two-byte offset.
func (op Opcode) IsBranch() bool {
	return (op >= IFEQ && op <= IF_ICMPLE) || op == GOTO
}

// Negate returns the conditional branch taken exactly when op is not.
func (op Opcode) Negate() Opcode {
	return IFEQ + ((op - IFEQ) ^ 1)
}

// localForms maps the long-form load/store opcodes to their _0 variant.
var localForms = map[Opcode]Opcode{
	ILOAD: ILOAD_0, FLOAD: FLOAD_0, ALOAD: ALOAD_0,
	ISTORE: ISTORE_0, FSTORE: FSTORE_0, ASTORE: ASTORE_0,
}

// ShortLocal returns the long form and slot of a xload_n/xstore_n opcode.
func ShortLocal(op Opcode) (Opcode, int, bool) {
	for long, zero := range localForms {
		if op >= zero && op < zero+4 {
			return long, int(op - zero), true
		}
	}
	return 0, 0, false
}
