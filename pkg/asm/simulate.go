package asm

import (
	"errors"
	"fmt"
	"strings"
)

// frame is the verifier's view of locals and operand stack at one point.
type frame struct {
	locals []VType
	stack  []VType
}

func (f *frame) clone() *frame {
	return &frame{
		locals: append([]VType(nil), f.locals...),
		stack:  append([]VType(nil), f.stack...),
	}
}

func trimTop(ts []VType) []VType {
	for len(ts) > 0 && ts[len(ts)-1].Kind == KindTop {
		ts = ts[:len(ts)-1]
	}
	return ts
}

func sameTypes(a, b []VType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *frame) equal(o *frame) bool {
	return sameTypes(trimTop(f.locals), trimTop(o.locals)) && sameTypes(f.stack, o.stack)
}

func (f *frame) String() string {
	join := func(ts []VType) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = t.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	return "locals " + join(trimTop(f.locals)) + " stack " + join(f.stack)
}

// depth is the operand stack size in slots.
func (f *frame) depth() int {
	n := 0
	for _, t := range f.stack {
		n += t.Size()
	}
	return n
}

func (f *frame) push(t VType) { f.stack = append(f.stack, t) }

func (f *frame) pop() (VType, error) {
	if len(f.stack) == 0 {
		return TopType, fmt.Errorf("operand stack underflow")
	}
	t := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return t, nil
}

func (f *frame) popKind(k Kind) (VType, error) {
	t, err := f.pop()
	if err != nil {
		return t, err
	}
	if t.Kind != k {
		return t, fmt.Errorf("expected %s on stack, found %s", VType{Kind: k}, t)
	}
	return t, nil
}

func (f *frame) popRef() (VType, error) {
	t, err := f.pop()
	if err != nil {
		return t, err
	}
	if !t.IsRef() {
		return t, fmt.Errorf("expected a reference on stack, found %s", t)
	}
	return t, nil
}

func (f *frame) popType(want VType) error {
	if want.IsRef() {
		_, err := f.popRef()
		return err
	}
	_, err := f.popKind(want.Kind)
	return err
}

func (f *frame) local(i int) VType {
	if i < 0 || i >= len(f.locals) {
		return TopType
	}
	return f.locals[i]
}

func (f *frame) setLocal(i int, t VType) {
	for len(f.locals) <= i {
		f.locals = append(f.locals, TopType)
	}
	f.locals[i] = t
}

// MergeError reports a label reached along two paths with different
// frames, e.g. a line entered both by GOSUB and by plain fall-through.
type MergeError struct {
	Label Label
	Have  string
	Got   string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("inconsistent frames at %s: %s vs %s", e.Label, e.Have, e.Got)
}

// UnmatchedReturnError reports a DISPATCH reached with no return key on
// the stack, i.e. a RETURN that no GOSUB leads to.
type UnmatchedReturnError struct {
	Default Label
}

func (e *UnmatchedReturnError) Error() string {
	return fmt.Sprintf("dispatch %s reached without a gosub", e.Default)
}

type site struct {
	key   int32
	ret   Label
	frame *frame
}

// simulation is a forward dataflow pass over the instruction list. It
// computes the incoming frame of every reachable instruction, the peak
// stack depth and, for every DISPATCH, the gosub sites whose frame
// matches the dispatch's frame once the return key is popped.
type simulation struct {
	code       []Instr
	labels     map[Label]int
	in         []*frame
	sites      []site
	dispatches []int
	matched    map[int][]site
	maxStack   int
	maxLocals  int
	work       []int
}

func simulate(code []Instr, entry *frame) (*simulation, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("empty method body")
	}
	s := &simulation{
		code:    code,
		labels:  make(map[Label]int),
		in:      make([]*frame, len(code)),
		matched: make(map[int][]site),
	}
	for i, in := range code {
		if in.Op != LABEL {
			continue
		}
		if _, dup := s.labels[in.Target]; dup {
			return nil, fmt.Errorf("label %s placed twice", in.Target)
		}
		s.labels[in.Target] = i
	}
	s.maxLocals = len(entry.locals)
	if err := s.flow(0, entry); err != nil {
		return nil, err
	}
	for len(s.work) > 0 {
		i := s.work[len(s.work)-1]
		s.work = s.work[:len(s.work)-1]
		if err := s.step(i); err != nil {
			var me *MergeError
			if errors.As(err, &me) {
				return nil, me
			}
			var ue *UnmatchedReturnError
			if errors.As(err, &ue) {
				return nil, ue
			}
			return nil, fmt.Errorf("instruction %d (%s): %w", i, code[i], err)
		}
	}
	return s, nil
}

func (s *simulation) flow(to int, f *frame) error {
	if to >= len(s.code) {
		return fmt.Errorf("execution falls off the end of the method")
	}
	if cur := s.in[to]; cur != nil {
		if !cur.equal(f) {
			var l Label
			if s.code[to].Op == LABEL {
				l = s.code[to].Target
			}
			return &MergeError{Label: l, Have: cur.String(), Got: f.String()}
		}
		return nil
	}
	s.in[to] = f
	s.work = append(s.work, to)
	return nil
}

func (s *simulation) jump(l Label, f *frame) error {
	i, ok := s.labels[l]
	if !ok {
		return fmt.Errorf("undefined label %s", l)
	}
	return s.flow(i, f)
}

func (s *simulation) addSite(key int32, ret Label, f *frame) error {
	for _, st := range s.sites {
		if st.key == key {
			if st.ret != ret {
				return fmt.Errorf("return-site key %d used by %s and %s", key, st.ret, ret)
			}
			return nil
		}
	}
	s.sites = append(s.sites, site{key: key, ret: ret, frame: f})
	// Dispatches already visited may now reach the new site.
	s.work = append(s.work, s.dispatches...)
	return nil
}

func (s *simulation) step(i int) error {
	in := s.code[i]
	f := s.in[i].clone()
	if d := f.depth(); d > s.maxStack {
		s.maxStack = d
	}
	next := true

	switch op := in.Op; op {
	case LABEL, NOP:
	case ACONST_NULL:
		f.push(NullType)
	case ICONST_M1, ICONST_0, ICONST_1, ICONST_2, ICONST_3, ICONST_4, ICONST_5, BIPUSH, SIPUSH:
		f.push(IntType)
	case FCONST_0, FCONST_1, FCONST_2:
		f.push(FloatType)
	case LDC, LDC_W:
		switch in.Value.(type) {
		case float32:
			f.push(FloatType)
		case int32:
			f.push(IntType)
		case string:
			f.push(Object("java/lang/String"))
		default:
			return fmt.Errorf("unsupported constant %T", in.Value)
		}
	case ILOAD, FLOAD, ALOAD:
		t := f.local(in.Local)
		ok := (op == ILOAD && t.Kind == KindInt) || (op == FLOAD && t.Kind == KindFloat) || (op == ALOAD && t.IsRef())
		if !ok {
			return fmt.Errorf("local %d holds %s", in.Local, t)
		}
		f.push(t)
	case ISTORE, FSTORE, ASTORE:
		var t VType
		var err error
		switch op {
		case ISTORE:
			t, err = f.popKind(KindInt)
		case FSTORE:
			t, err = f.popKind(KindFloat)
		default:
			t, err = f.popRef()
		}
		if err != nil {
			return err
		}
		f.setLocal(in.Local, t)
		if in.Local+1 > s.maxLocals {
			s.maxLocals = in.Local + 1
		}
	case FALOAD, AALOAD:
		if _, err := f.popKind(KindInt); err != nil {
			return err
		}
		arr, err := f.popRef()
		if err != nil {
			return err
		}
		elem, err := arr.Element()
		if err != nil {
			return err
		}
		if (op == FALOAD) != (elem.Kind == KindFloat) {
			return fmt.Errorf("%s on %s", op, arr)
		}
		f.push(elem)
	case FASTORE, AASTORE:
		var err error
		if op == FASTORE {
			_, err = f.popKind(KindFloat)
		} else {
			_, err = f.popRef()
		}
		if err != nil {
			return err
		}
		if _, err := f.popKind(KindInt); err != nil {
			return err
		}
		if _, err := f.popRef(); err != nil {
			return err
		}
	case POP:
		t, err := f.pop()
		if err != nil {
			return err
		}
		if t.Size() != 1 {
			return fmt.Errorf("pop of a two-slot value")
		}
	case DUP:
		t, err := f.pop()
		if err != nil {
			return err
		}
		if t.Size() != 1 {
			return fmt.Errorf("dup of a two-slot value")
		}
		f.push(t)
		f.push(t)
	case SWAP:
		a, err := f.pop()
		if err != nil {
			return err
		}
		b, err := f.pop()
		if err != nil {
			return err
		}
		if a.Size() != 1 || b.Size() != 1 {
			return fmt.Errorf("swap of a two-slot value")
		}
		f.push(a)
		f.push(b)
	case IADD, ISUB:
		if err := popN(f, KindInt, 2); err != nil {
			return err
		}
		f.push(IntType)
	case FADD, FSUB, FMUL, FDIV:
		if err := popN(f, KindFloat, 2); err != nil {
			return err
		}
		f.push(FloatType)
	case FNEG:
		if err := popN(f, KindFloat, 1); err != nil {
			return err
		}
		f.push(FloatType)
	case I2F, F2I, F2D, D2F, I2C:
		conv := conversions[op]
		if _, err := f.popKind(conv[0].Kind); err != nil {
			return err
		}
		f.push(conv[1])
	case FCMPL, FCMPG:
		if err := popN(f, KindFloat, 2); err != nil {
			return err
		}
		f.push(IntType)
	case IFEQ, IFNE, IFLT, IFGE, IFGT, IFLE:
		if err := popN(f, KindInt, 1); err != nil {
			return err
		}
		if err := s.jump(in.Target, f); err != nil {
			return err
		}
	case IF_ICMPEQ, IF_ICMPNE, IF_ICMPLT, IF_ICMPGE, IF_ICMPGT, IF_ICMPLE:
		if err := popN(f, KindInt, 2); err != nil {
			return err
		}
		if err := s.jump(in.Target, f); err != nil {
			return err
		}
	case GOTO:
		next = false
		if err := s.jump(in.Target, f); err != nil {
			return err
		}
	case TABLESWITCH, LOOKUPSWITCH:
		next = false
		if err := popN(f, KindInt, 1); err != nil {
			return err
		}
		if op == LOOKUPSWITCH && len(in.Keys) != len(in.Targets) {
			return fmt.Errorf("%d keys for %d targets", len(in.Keys), len(in.Targets))
		}
		for _, t := range append([]Label{in.Target}, in.Targets...) {
			if err := s.jump(t, f); err != nil {
				return err
			}
		}
	case RETURN:
		next = false
	case GETFIELD, PUTFIELD:
		t, err := FieldType(in.Ref.Desc)
		if err != nil {
			return err
		}
		if op == PUTFIELD {
			if err := f.popType(t); err != nil {
				return err
			}
		}
		if _, err := f.popRef(); err != nil {
			return err
		}
		if op == GETFIELD {
			f.push(t)
		}
	case INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC:
		args, ret, hasRet, err := MethodType(in.Ref.Desc)
		if err != nil {
			return err
		}
		for j := len(args) - 1; j >= 0; j-- {
			if err := f.popType(args[j]); err != nil {
				return fmt.Errorf("argument %d of %s: %w", j, in.Ref, err)
			}
		}
		if op != INVOKESTATIC {
			if _, err := f.popRef(); err != nil {
				return fmt.Errorf("receiver of %s: %w", in.Ref, err)
			}
		}
		if hasRet {
			f.push(ret)
		}
	case NEWARRAY, ANEWARRAY:
		if err := popN(f, KindInt, 1); err != nil {
			return err
		}
		if op == NEWARRAY {
			if in.Operand != T_FLOAT {
				return fmt.Errorf("unsupported newarray type %d", in.Operand)
			}
			f.push(Object("[F"))
		} else {
			f.push(ArrayOf(in.Class))
		}
	case ARRAYLENGTH:
		if _, err := f.popRef(); err != nil {
			return err
		}
		f.push(IntType)
	case MULTIANEWARRAY:
		if in.Dims < 1 || in.Dims > strings.Count(in.Class, "[") {
			return fmt.Errorf("%d dimensions for %s", in.Dims, in.Class)
		}
		if err := popN(f, KindInt, in.Dims); err != nil {
			return err
		}
		f.push(Object(in.Class))
	case GOSUB:
		next = false
		if err := s.addSite(in.Operand, in.Return, s.in[i]); err != nil {
			return err
		}
		f.push(IntType)
		if err := s.jump(in.Target, f); err != nil {
			return err
		}
	case DISPATCH:
		next = false
		if len(f.stack) == 0 {
			return &UnmatchedReturnError{Default: in.Target}
		}
		if err := popN(f, KindInt, 1); err != nil {
			return err
		}
		if _, seen := s.matched[i]; !seen {
			s.dispatches = append(s.dispatches, i)
		}
		var matched []site
		for _, st := range s.sites {
			if st.frame.equal(f) {
				matched = append(matched, st)
				if err := s.jump(st.ret, f); err != nil {
					return err
				}
			}
		}
		s.matched[i] = matched
		if err := s.jump(in.Target, f); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported instruction %s", op)
	}

	if d := f.depth(); d > s.maxStack {
		s.maxStack = d
	}
	if next {
		return s.flow(i+1, f)
	}
	return nil
}

// conversions maps each conversion opcode to its operand and result types.
var conversions = map[Opcode][2]VType{
	I2F: {IntType, FloatType},
	F2I: {FloatType, IntType},
	F2D: {FloatType, DoubleType},
	D2F: {DoubleType, FloatType},
	I2C: {IntType, IntType},
}

func popN(f *frame, k Kind, n int) error {
	for j := 0; j < n; j++ {
		if _, err := f.popKind(k); err != nil {
			return err
		}
	}
	return nil
}
