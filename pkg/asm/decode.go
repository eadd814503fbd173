package asm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"gobasic/pkg/classfile"
)

// Decoded is one instruction read back from bytecode. Short load/store
// forms are normalized to the long opcode with Local set, and branch
// targets are absolute offsets.
type Decoded struct {
	Offset  int
	Size    int
	Op      Opcode
	Local   int
	Operand int32 // bipush/sipush value, newarray type, multianewarray dims, tableswitch low
	CP      uint16
	Target  int // branch target or switch default
	Keys    []int32
	Targets []int
}

// Decode splits a method body into instructions.
func Decode(code []byte) ([]Decoded, error) {
	var out []Decoded
	for pc := 0; pc < len(code); {
		d, err := decodeAt(code, pc)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", pc, err)
		}
		out = append(out, d)
		pc += d.Size
	}
	return out, nil
}

func decodeAt(code []byte, pc int) (Decoded, error) {
	need := func(n int) error {
		if pc+n > len(code) {
			return fmt.Errorf("truncated instruction")
		}
		return nil
	}
	u1 := func(at int) uint8 { return code[at] }
	u2 := func(at int) uint16 { return binary.BigEndian.Uint16(code[at:]) }
	s4 := func(at int) int32 { return int32(binary.BigEndian.Uint32(code[at:])) }

	op := Opcode(code[pc])
	d := Decoded{Offset: pc, Op: op, Size: 1}

	if long, slot, ok := ShortLocal(op); ok {
		d.Op, d.Local = long, slot
		return d, nil
	}

	switch op {
	case ILOAD, FLOAD, ALOAD, ISTORE, FSTORE, ASTORE:
		if err := need(2); err != nil {
			return d, err
		}
		d.Local, d.Size = int(u1(pc+1)), 2
	case WIDE:
		if err := need(4); err != nil {
			return d, err
		}
		d.Op = Opcode(u1(pc + 1))
		if _, ok := localForms[d.Op]; !ok {
			return d, fmt.Errorf("unsupported wide %s", d.Op)
		}
		d.Local, d.Size = int(u2(pc+2)), 4
	case BIPUSH, NEWARRAY:
		if err := need(2); err != nil {
			return d, err
		}
		d.Size = 2
		if op == BIPUSH {
			d.Operand = int32(int8(u1(pc + 1)))
		} else {
			d.Operand = int32(u1(pc + 1))
		}
	case SIPUSH:
		if err := need(3); err != nil {
			return d, err
		}
		d.Operand, d.Size = int32(int16(u2(pc+1))), 3
	case LDC:
		if err := need(2); err != nil {
			return d, err
		}
		d.CP, d.Size = uint16(u1(pc+1)), 2
	case LDC_W, GETFIELD, PUTFIELD, INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC, NEW, ANEWARRAY:
		if err := need(3); err != nil {
			return d, err
		}
		d.CP, d.Size = u2(pc+1), 3
		if op == LDC_W {
			d.Op = LDC
		}
	case MULTIANEWARRAY:
		if err := need(4); err != nil {
			return d, err
		}
		d.CP, d.Operand, d.Size = u2(pc+1), int32(u1(pc+3)), 4
	case TABLESWITCH, LOOKUPSWITCH:
		base := pc + 1 + switchPad(pc)
		if err := need(base - pc + 12); err != nil {
			return d, err
		}
		d.Target = pc + int(s4(base))
		if op == TABLESWITCH {
			low, high := s4(base+4), s4(base+8)
			if high < low {
				return d, fmt.Errorf("tableswitch high %d < low %d", high, low)
			}
			n := int(high-low) + 1
			if err := need(base - pc + 12 + 4*n); err != nil {
				return d, err
			}
			d.Operand = low
			for j := 0; j < n; j++ {
				d.Targets = append(d.Targets, pc+int(s4(base+12+4*j)))
			}
			d.Size = base - pc + 12 + 4*n
		} else {
			n := int(s4(base + 4))
			if n < 0 {
				return d, fmt.Errorf("negative lookupswitch size")
			}
			if err := need(base - pc + 8 + 8*n); err != nil {
				return d, err
			}
			for j := 0; j < n; j++ {
				d.Keys = append(d.Keys, s4(base+8+8*j))
				d.Targets = append(d.Targets, pc+int(s4(base+12+8*j)))
			}
			d.Size = base - pc + 8 + 8*n
		}
	case GOTO_W:
		if err := need(5); err != nil {
			return d, err
		}
		d.Target, d.Size = pc+int(s4(pc+1)), 5
	default:
		if op.IsBranch() {
			if err := need(3); err != nil {
				return d, err
			}
			d.Target, d.Size = pc+int(int16(u2(pc+1))), 3
			break
		}
		if _, known := opNames[op]; !known || op > 0xFF {
			return d, fmt.Errorf("unsupported opcode 0x%02x", uint8(op))
		}
	}
	return d, nil
}

// Disassemble renders a method body one instruction per line.
func Disassemble(code []byte, pool *classfile.Pool) (string, error) {
	insns, err := Decode(code)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, d := range insns {
		fmt.Fprintf(&b, "%5d: %s", d.Offset, d.Op)
		switch d.Op {
		case ILOAD, FLOAD, ALOAD, ISTORE, FSTORE, ASTORE:
			fmt.Fprintf(&b, " %d", d.Local)
		case BIPUSH, SIPUSH, NEWARRAY:
			fmt.Fprintf(&b, " %d", d.Operand)
		case LDC:
			c, err := pool.Get(d.CP)
			if err != nil {
				return "", err
			}
			switch c.Tag {
			case classfile.TagFloat:
				fmt.Fprintf(&b, " %v", c.Float)
			case classfile.TagInteger:
				fmt.Fprintf(&b, " %d", c.Int)
			case classfile.TagString:
				s, _ := pool.Utf8(c.Index1)
				fmt.Fprintf(&b, " %q", s)
			}
		case GETFIELD, PUTFIELD, INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC:
			owner, name, desc, err := pool.MemberRef(d.CP)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, " %s", Ref{owner, name, desc})
		case NEW, ANEWARRAY, MULTIANEWARRAY:
			name, err := pool.ClassName(d.CP)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, " %s", name)
			if d.Op == MULTIANEWARRAY {
				fmt.Fprintf(&b, " %d", d.Operand)
			}
		case TABLESWITCH:
			fmt.Fprintf(&b, " low %d targets %v default %d", d.Operand, d.Targets, d.Target)
		case LOOKUPSWITCH:
			fmt.Fprintf(&b, " keys %v targets %v default %d", d.Keys, d.Targets, d.Target)
		default:
			if d.Op.IsBranch() || d.Op == GOTO_W {
				fmt.Fprintf(&b, " %d", d.Target)
			}
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
