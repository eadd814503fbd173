// Package asm assembles symbolic JVM instructions into a Code attribute.
//
// Assembly runs in three passes. A dataflow simulation checks types,
// computes max_stack and resolves subroutine dispatch tables. Layout drops
// unreachable code and fixes every instruction's offset, widening branches
// whose target is more than 32 KiB away. Encoding writes the bytes, branch
// offsets and StackMapTable.
package asm

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"gobasic/pkg/classfile"
)

// Assembler builds the body of an instance method of class owner,
// allocating constants in pool.
type Assembler struct {
	pool      *classfile.Pool
	owner     string
	stackMaps bool
}

// New returns an assembler. With stackMaps set a StackMapTable is emitted,
// as required by class files of version 50 and later.
func New(pool *classfile.Pool, owner string, stackMaps bool) *Assembler {
	return &Assembler{pool: pool, owner: owner, stackMaps: stackMaps}
}

type node struct {
	Instr
	offset int
	size   int
	cp     uint16
	wide   bool   // branch encoded through goto_w
	frame  *frame // incoming frame for labels, fall-through frame for conditional branches
}

// Assemble encodes code as the body of a no-argument instance method.
func (a *Assembler) Assemble(code []Instr) (*classfile.Code, error) {
	entry := &frame{locals: []VType{Object(a.owner)}}
	sim, err := simulate(code, entry)
	if err != nil {
		return nil, err
	}

	nodes := a.lower(code, sim)
	length, err := a.layout(nodes)
	if err != nil {
		return nil, err
	}
	body, err := a.encode(nodes, length)
	if err != nil {
		return nil, err
	}

	out := &classfile.Code{
		MaxStack:  uint16(sim.maxStack),
		MaxLocals: uint16(sim.maxLocals),
		Code:      body,
	}
	if sim.maxLocals > math.MaxUint16 || sim.maxStack > math.MaxUint16 {
		return nil, fmt.Errorf("frame too large: %d locals, %d stack", sim.maxLocals, sim.maxStack)
	}
	if a.stackMaps {
		if attr, ok := a.stackMapTable(nodes, length); ok {
			out.Attributes = append(out.Attributes, attr)
		}
	}
	log.Debug("Assembled method", "owner", a.owner, "instrs", len(code), "bytes", len(body),
		"maxStack", out.MaxStack, "maxLocals", out.MaxLocals)
	return out, nil
}

// lower drops unreachable instructions and expands the pseudo
// instructions into real ones.
func (a *Assembler) lower(code []Instr, sim *simulation) []*node {
	nodes := make([]*node, 0, len(code))
	for i, in := range code {
		if sim.in[i] == nil {
			continue
		}
		switch in.Op {
		case GOSUB:
			nodes = append(nodes, &node{Instr: Int(in.Operand)}, &node{Instr: Jump(GOTO, in.Target)})
		case DISPATCH:
			sites := append([]site(nil), sim.matched[i]...)
			sort.Slice(sites, func(x, y int) bool { return sites[x].key < sites[y].key })
			keys := make([]int32, len(sites))
			targets := make([]Label, len(sites))
			for j, st := range sites {
				keys[j], targets[j] = st.key, st.ret
			}
			nodes = append(nodes, &node{Instr: LookupSwitch(in.Target, keys, targets)})
		case LABEL:
			nodes = append(nodes, &node{Instr: in, frame: sim.in[i]})
		default:
			if in.Op.IsBranch() && in.Op != GOTO && i+1 < len(code) {
				nodes = append(nodes, &node{Instr: in, frame: sim.in[i+1]})
				continue
			}
			nodes = append(nodes, &node{Instr: in})
		}
	}
	return nodes
}

func switchPad(offset int) int {
	return (4 - (offset+1)%4) % 4
}

func (a *Assembler) constant(v any) (uint16, error) {
	switch c := v.(type) {
	case float32:
		return a.pool.AddFloat(c), nil
	case int32:
		return a.pool.AddInteger(c), nil
	case string:
		return a.pool.AddString(c), nil
	}
	return 0, fmt.Errorf("unsupported constant %T", v)
}

// layout assigns offsets and sizes and resolves constant pool indexes.
// Branches that cannot reach their target with a 16-bit offset are marked
// wide and the layout is repeated until no more need widening.
func (a *Assembler) layout(nodes []*node) (int, error) {
	for {
		length, err := a.place(nodes)
		if err != nil {
			return 0, err
		}
		labels := labelOffsets(nodes)
		widened := false
		for _, n := range nodes {
			if !n.Op.IsBranch() || n.wide {
				continue
			}
			to, ok := labels[n.Target]
			if !ok {
				return 0, fmt.Errorf("undefined label %s", n.Target)
			}
			if rel := to - n.offset; rel < math.MinInt16 || rel > math.MaxInt16 {
				n.wide, widened = true, true
			}
		}
		if !widened {
			return length, nil
		}
	}
}

func labelOffsets(nodes []*node) map[Label]int {
	labels := make(map[Label]int)
	for _, n := range nodes {
		if n.Op == LABEL {
			labels[n.Target] = n.offset
		}
	}
	return labels
}

// place runs one layout pass over nodes.
func (a *Assembler) place(nodes []*node) (int, error) {
	pc := 0
	for _, n := range nodes {
		n.offset = pc
		switch n.Op {
		case LABEL:
			n.size = 0
		case ILOAD, FLOAD, ALOAD, ISTORE, FSTORE, ASTORE:
			switch {
			case n.Local < 0 || n.Local > math.MaxUint16:
				return 0, fmt.Errorf("local slot %d out of range", n.Local)
			case n.Local <= 3:
				n.size = 1
			case n.Local <= math.MaxUint8:
				n.size = 2
			default:
				n.size = 4
			}
		case BIPUSH, NEWARRAY:
			n.size = 2
		case SIPUSH:
			n.size = 3
		case LDC, LDC_W:
			cp, err := a.constant(n.Value)
			if err != nil {
				return 0, err
			}
			n.cp = cp
			n.size = 2
			if cp > math.MaxUint8 {
				n.size = 3
			}
		case GETFIELD, PUTFIELD:
			n.cp = a.pool.AddFieldref(n.Ref.Owner, n.Ref.Name, n.Ref.Desc)
			n.size = 3
		case INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC:
			n.cp = a.pool.AddMethodref(n.Ref.Owner, n.Ref.Name, n.Ref.Desc)
			n.size = 3
		case NEW, ANEWARRAY:
			n.cp = a.pool.AddClass(n.Class)
			n.size = 3
		case MULTIANEWARRAY:
			n.cp = a.pool.AddClass(n.Class)
			n.size = 4
		case TABLESWITCH:
			n.size = 1 + switchPad(pc) + 12 + 4*len(n.Targets)
		case LOOKUPSWITCH:
			n.size = 1 + switchPad(pc) + 8 + 8*len(n.Targets)
		default:
			switch {
			case n.wide && n.Op == GOTO:
				n.size = 5
			case n.wide:
				// negated branch over a goto_w
				n.size = 8
			case n.Op.IsBranch():
				n.size = 3
			default:
				n.size = 1
			}
		}
		pc += n.size
	}
	if pc > math.MaxUint16 {
		return 0, fmt.Errorf("method body is %d bytes, limit is %d", pc, math.MaxUint16)
	}
	return pc, nil
}

func (a *Assembler) encode(nodes []*node, length int) ([]byte, error) {
	labels := labelOffsets(nodes)
	target := func(from int, l Label) (int, error) {
		to, ok := labels[l]
		if !ok {
			return 0, fmt.Errorf("undefined label %s", l)
		}
		return to - from, nil
	}

	buf := make([]byte, 0, length)
	u1 := func(v uint8) { buf = append(buf, v) }
	u2 := func(v uint16) { buf = binary.BigEndian.AppendUint16(buf, v) }
	s4 := func(v int32) { buf = binary.BigEndian.AppendUint32(buf, uint32(v)) }

	for _, n := range nodes {
		switch n.Op {
		case LABEL:
		case ILOAD, FLOAD, ALOAD, ISTORE, FSTORE, ASTORE:
			switch n.size {
			case 1:
				u1(uint8(localForms[n.Op] + Opcode(n.Local)))
			case 2:
				u1(uint8(n.Op))
				u1(uint8(n.Local))
			default:
				u1(uint8(WIDE))
				u1(uint8(n.Op))
				u2(uint16(n.Local))
			}
		case BIPUSH:
			u1(uint8(n.Op))
			u1(uint8(int8(n.Operand)))
		case SIPUSH:
			u1(uint8(n.Op))
			u2(uint16(int16(n.Operand)))
		case NEWARRAY:
			u1(uint8(n.Op))
			u1(uint8(n.Operand))
		case LDC, LDC_W:
			if n.size == 2 {
				u1(uint8(LDC))
				u1(uint8(n.cp))
			} else {
				u1(uint8(LDC_W))
				u2(n.cp)
			}
		case GETFIELD, PUTFIELD, INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC, NEW, ANEWARRAY:
			u1(uint8(n.Op))
			u2(n.cp)
		case MULTIANEWARRAY:
			u1(uint8(n.Op))
			u2(n.cp)
			u1(uint8(n.Dims))
		case TABLESWITCH, LOOKUPSWITCH:
			u1(uint8(n.Op))
			for p := switchPad(n.offset); p > 0; p-- {
				u1(0)
			}
			def, err := target(n.offset, n.Target)
			if err != nil {
				return nil, err
			}
			s4(int32(def))
			if n.Op == TABLESWITCH {
				s4(n.Operand)
				s4(n.Operand + int32(len(n.Targets)) - 1)
			} else {
				s4(int32(len(n.Targets)))
			}
			for j, l := range n.Targets {
				rel, err := target(n.offset, l)
				if err != nil {
					return nil, err
				}
				if n.Op == LOOKUPSWITCH {
					s4(n.Keys[j])
				}
				s4(int32(rel))
			}
		case IFEQ, IFNE, IFLT, IFGE, IFGT, IFLE,
			IF_ICMPEQ, IF_ICMPNE, IF_ICMPLT, IF_ICMPGE, IF_ICMPGT, IF_ICMPLE, GOTO:
			from := n.offset
			switch {
			case n.wide && n.Op == GOTO:
				u1(uint8(GOTO_W))
			case n.wide:
				u1(uint8(n.Op.Negate()))
				u2(8)
				u1(uint8(GOTO_W))
				from += 3
			default:
				u1(uint8(n.Op))
			}
			rel, err := target(from, n.Target)
			if err != nil {
				return nil, err
			}
			if n.wide {
				s4(int32(rel))
			} else {
				if rel < math.MinInt16 || rel > math.MaxInt16 {
					return nil, fmt.Errorf("branch from offset %d to %s is out of range (%d bytes)", n.offset, n.Target, rel)
				}
				u2(uint16(int16(rel)))
			}
		default:
			u1(uint8(n.Op))
		}
		if len(buf) != n.offset+n.size {
			return nil, fmt.Errorf("internal error: %s encoded to %d bytes, laid out as %d", n.Instr, len(buf)-n.offset, n.size)
		}
	}
	return buf, nil
}

// stackMapTable writes one full_frame per distinct branch target offset:
// every label, plus the fall-through of each widened conditional branch.
func (a *Assembler) stackMapTable(nodes []*node, length int) (classfile.Attribute, bool) {
	var entries []byte
	count := 0
	prev := -1
	for _, n := range nodes {
		offset := n.offset
		switch {
		case n.Op == LABEL:
		case n.wide && n.Op != GOTO:
			offset += n.size
		default:
			continue
		}
		if offset == prev || offset >= length {
			continue
		}
		delta := offset
		if prev >= 0 {
			delta = offset - prev - 1
		}
		prev = offset
		count++

		entries = append(entries, 255)
		entries = binary.BigEndian.AppendUint16(entries, uint16(delta))
		locals := trimTop(n.frame.locals)
		entries = binary.BigEndian.AppendUint16(entries, uint16(len(locals)))
		for _, t := range locals {
			entries = a.appendVType(entries, t)
		}
		entries = binary.BigEndian.AppendUint16(entries, uint16(len(n.frame.stack)))
		for _, t := range n.frame.stack {
			entries = a.appendVType(entries, t)
		}
	}
	if count == 0 {
		return classfile.Attribute{}, false
	}
	data := binary.BigEndian.AppendUint16(nil, uint16(count))
	data = append(data, entries...)
	return classfile.Attribute{NameIndex: a.pool.AddUtf8("StackMapTable"), Data: data}, true
}

func (a *Assembler) appendVType(b []byte, t VType) []byte {
	switch t.Kind {
	case KindTop:
		return append(b, 0)
	case KindInt:
		return append(b, 1)
	case KindFloat:
		return append(b, 2)
	case KindDouble:
		return append(b, 3)
	case KindNull:
		return append(b, 5)
	}
	return binary.BigEndian.AppendUint16(append(b, 7), a.pool.AddClass(t.Class))
}
