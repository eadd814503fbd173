// Package vm executes compiled BASIC classes.
//
// It interprets the subset of JVM bytecode the compiler emits and
// implements the runtime class (printing, INPUT, DATA, the built-in
// functions) and the few library methods programs call in Go, so
// programs can be run and tested without a Java installation.
package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"gobasic/pkg/asm"
	"gobasic/pkg/classfile"
)

// DefaultZoneWidth is the width of a PRINT zone.
const DefaultZoneWidth = 14

// Options configure a VM. The zero value writes to os.Stdout, has no
// INPUT source and seeds RND from the clock.
type Options struct {
	Output    io.Writer
	Input     LineReader
	Seed      int64 // RND seed, 0 for a time-based seed
	ZoneWidth int
	MaxSteps  int64 // 0 means unlimited
	CacheSize int   // call-site cache entries
}

// VM runs one loaded class.
type VM struct {
	class   *classfile.ClassFile
	name    string
	super   string
	opts    Options
	out     io.Writer
	methods map[string]*method
	calls   *lru.Cache // constant pool index -> *callTarget
	fields  map[string]any

	data        []any
	nextDataPtr int32

	column     int
	line       strings.Builder
	rng        *rand.Rand
	prevRandom float32
	steps      int64

	Halted bool
}

// object is the receiver of the program's own methods.
type object struct{ vm *VM }

// Load parses a class file and prepares it for running.
func Load(class []byte, opts Options) (*VM, error) {
	cf, err := classfile.Parse(class)
	if err != nil {
		return nil, err
	}
	return New(cf, opts)
}

func New(cf *classfile.ClassFile, opts Options) (*VM, error) {
	name, err := cf.Name()
	if err != nil {
		return nil, err
	}
	super, err := cf.SuperName()
	if err != nil {
		return nil, err
	}
	if opts.ZoneWidth <= 0 {
		opts.ZoneWidth = DefaultZoneWidth
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	calls, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	vm := &VM{
		class:   cf,
		name:    name,
		super:   super,
		opts:    opts,
		out:     opts.Output,
		methods: make(map[string]*method),
		calls:   calls,
		fields:  make(map[string]any),
		rng:     rand.New(rand.NewSource(seed)),
	}
	if vm.out == nil {
		vm.out = os.Stdout
	}
	return vm, nil
}

// Name is the internal name of the loaded class.
func (vm *VM) Name() string { return vm.name }

// Steps is the number of instructions executed so far.
func (vm *VM) Steps() int64 { return vm.steps }

// Run executes the program's run() method.
func (vm *VM) Run(ctx context.Context) error {
	m, err := vm.method("run", "()V")
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = vm.execute(ctx, m, &object{vm: vm}, nil)
	vm.Halted = true
	log.Debug("Program finished", "class", vm.name, "steps", vm.steps, "elapsed", time.Since(start), "err", err)
	return err
}

// RunClass loads and runs a class in one call.
func RunClass(ctx context.Context, class []byte, opts Options) error {
	vm, err := Load(class, opts)
	if err != nil {
		return err
	}
	return vm.Run(ctx)
}

// method is a decoded method body.
type method struct {
	name      string
	desc      string
	params    []string
	ret       string
	insns     []asm.Decoded
	at        map[int]int // bytecode offset -> index in insns
	maxLocals int
}

func (vm *VM) method(name, desc string) (*method, error) {
	key := name + desc
	if m, ok := vm.methods[key]; ok {
		return m, nil
	}
	code, err := vm.class.MethodCode(name, desc)
	if err != nil {
		return nil, err
	}
	insns, err := asm.Decode(code.Code)
	if err != nil {
		return nil, fmt.Errorf("decoding %s%s: %w", name, desc, err)
	}
	params, ret, err := splitDescriptor(desc)
	if err != nil {
		return nil, err
	}
	m := &method{
		name:      name,
		desc:      desc,
		params:    params,
		ret:       ret,
		insns:     insns,
		at:        make(map[int]int, len(insns)),
		maxLocals: int(code.MaxLocals),
	}
	for i, d := range insns {
		m.at[d.Offset] = i
	}
	vm.methods[key] = m
	log.Trace("Decoded method", "name", name, "desc", desc, "insns", len(insns))
	return m, nil
}

// callTarget is a resolved method reference.
type callTarget struct {
	ref    asm.Ref
	params []string
	ret    string
	native native
	method *method
}

func (vm *VM) resolve(cp uint16) (*callTarget, error) {
	if t, ok := vm.calls.Get(cp); ok {
		return t.(*callTarget), nil
	}
	owner, name, desc, err := vm.class.Pool.MemberRef(cp)
	if err != nil {
		return nil, err
	}
	params, ret, err := splitDescriptor(desc)
	if err != nil {
		return nil, err
	}
	t := &callTarget{ref: asm.Ref{Owner: owner, Name: name, Desc: desc}, params: params, ret: ret}
	switch {
	case owner == vm.name || owner == vm.super:
		if n, ok := runtimeNatives[name+desc]; ok {
			t.native = n
		} else if m, err := vm.method(name, desc); err == nil {
			t.method = m
		}
	default:
		t.native = jdkNatives[owner+"."+name+desc]
	}
	if t.native == nil && t.method == nil {
		return nil, runtimeErrorf("unsupported method %s", t.ref)
	}
	vm.calls.Add(cp, t)
	return t, nil
}

// frame is the operand stack and locals of one activation.
type frame struct {
	stack  []any
	locals []any
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() any {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popInt() int32       { return f.pop().(int32) }
func (f *frame) popFloat() float32   { return f.pop().(float32) }
func (f *frame) popDouble() float64  { return f.pop().(float64) }
func (f *frame) popFloats() []float32 { return f.pop().([]float32) }

func (f *frame) popRefs() ([]any, error) {
	switch a := f.pop().(type) {
	case []any:
		return a, nil
	case nil:
		return nil, runtimeErrorf("null array")
	default:
		return nil, runtimeErrorf("not an object array: %T", a)
	}
}

// slotsOf is the number of local slots a value of the given type fills.
func slotsOf(desc string) int {
	if desc == "D" || desc == "J" {
		return 2
	}
	return 1
}

func (vm *VM) execute(ctx context.Context, m *method, this any, args []any) (result any, err error) {
	f := &frame{locals: make([]any, max(m.maxLocals, 1+2*len(args)))}
	f.locals[0] = this
	slot := 1
	for i, a := range args {
		f.locals[slot] = a
		slot += slotsOf(m.params[i])
	}

	pc := 0
	defer func() {
		if r := recover(); r != nil {
			err = runtimeErrorf("invalid operand: %v", r)
		}
		if re, ok := err.(*RuntimeError); ok && re.Method == "" && pc < len(m.insns) {
			re.Method, re.PC = m.name+m.desc, m.insns[pc].Offset
		}
	}()

	jump := func(offset int) (int, error) {
		i, ok := m.at[offset]
		if !ok {
			return 0, runtimeErrorf("branch to %d is not an instruction boundary", offset)
		}
		return i, nil
	}

	for {
		if pc >= len(m.insns) {
			return nil, runtimeErrorf("fell off the end of %s%s", m.name, m.desc)
		}
		vm.steps++
		if vm.opts.MaxSteps > 0 && vm.steps > vm.opts.MaxSteps {
			return nil, runtimeErrorf("step limit of %d exceeded", vm.opts.MaxSteps)
		}
		if vm.steps&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		d := &m.insns[pc]
		next := pc + 1
		switch op := d.Op; op {
		case asm.NOP:

		case asm.ACONST_NULL:
			f.push(nil)

		case asm.ICONST_M1, asm.ICONST_0, asm.ICONST_1, asm.ICONST_2, asm.ICONST_3, asm.ICONST_4, asm.ICONST_5:
			f.push(int32(op) - int32(asm.ICONST_0))

		case asm.FCONST_0, asm.FCONST_1, asm.FCONST_2:
			f.push(float32(op - asm.FCONST_0))

		case asm.BIPUSH, asm.SIPUSH:
			f.push(d.Operand)

		case asm.LDC:
			v, err := vm.constant(d.CP)
			if err != nil {
				return nil, err
			}
			f.push(v)

		case asm.ILOAD, asm.FLOAD, asm.ALOAD:
			f.push(f.locals[d.Local])

		case asm.ISTORE, asm.FSTORE, asm.ASTORE:
			f.locals[d.Local] = f.pop()

		case asm.FALOAD:
			i := f.popInt()
			a := f.popFloats()
			if err := checkIndex(i, len(a)); err != nil {
				return nil, err
			}
			f.push(a[i])

		case asm.AALOAD:
			i := f.popInt()
			a, err := f.popRefs()
			if err != nil {
				return nil, err
			}
			if err := checkIndex(i, len(a)); err != nil {
				return nil, err
			}
			f.push(a[i])

		case asm.FASTORE:
			v := f.popFloat()
			i := f.popInt()
			a := f.popFloats()
			if err := checkIndex(i, len(a)); err != nil {
				return nil, err
			}
			a[i] = v

		case asm.AASTORE:
			v := f.pop()
			i := f.popInt()
			a, err := f.popRefs()
			if err != nil {
				return nil, err
			}
			if err := checkIndex(i, len(a)); err != nil {
				return nil, err
			}
			a[i] = v

		case asm.POP:
			f.pop()

		case asm.DUP:
			f.push(f.stack[len(f.stack)-1])

		case asm.SWAP:
			n := len(f.stack)
			f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

		case asm.IADD:
			b, a := f.popInt(), f.popInt()
			f.push(a + b)

		case asm.ISUB:
			b, a := f.popInt(), f.popInt()
			f.push(a - b)

		case asm.FADD:
			b, a := f.popFloat(), f.popFloat()
			f.push(a + b)

		case asm.FSUB:
			b, a := f.popFloat(), f.popFloat()
			f.push(a - b)

		case asm.FMUL:
			b, a := f.popFloat(), f.popFloat()
			f.push(a * b)

		case asm.FDIV:
			b, a := f.popFloat(), f.popFloat()
			f.push(a / b)

		case asm.FNEG:
			f.push(-f.popFloat())

		case asm.I2F:
			f.push(float32(f.popInt()))

		case asm.F2I:
			f.push(f2i(f.popFloat()))

		case asm.F2D:
			f.push(float64(f.popFloat()))

		case asm.D2F:
			f.push(float32(f.popDouble()))

		case asm.I2C:
			f.push(int32(uint16(f.popInt())))

		case asm.FCMPL, asm.FCMPG:
			b, a := f.popFloat(), f.popFloat()
			f.push(fcmp(a, b, op == asm.FCMPG))

		case asm.IFEQ, asm.IFNE, asm.IFLT, asm.IFGE, asm.IFGT, asm.IFLE:
			if compare(op-asm.IFEQ, f.popInt(), 0) {
				if next, err = jump(d.Target); err != nil {
					return nil, err
				}
			}

		case asm.IF_ICMPEQ, asm.IF_ICMPNE, asm.IF_ICMPLT, asm.IF_ICMPGE, asm.IF_ICMPGT, asm.IF_ICMPLE:
			b, a := f.popInt(), f.popInt()
			if compare(op-asm.IF_ICMPEQ, a, b) {
				if next, err = jump(d.Target); err != nil {
					return nil, err
				}
			}

		case asm.GOTO, asm.GOTO_W:
			if next, err = jump(d.Target); err != nil {
				return nil, err
			}

		case asm.TABLESWITCH:
			key := f.popInt()
			target := d.Target
			if i := int64(key) - int64(d.Operand); i >= 0 && i < int64(len(d.Targets)) {
				target = d.Targets[i]
			}
			if next, err = jump(target); err != nil {
				return nil, err
			}

		case asm.LOOKUPSWITCH:
			key := f.popInt()
			target := d.Target
			for i, k := range d.Keys {
				if k == key {
					target = d.Targets[i]
					break
				}
			}
			if next, err = jump(target); err != nil {
				return nil, err
			}

		case asm.RETURN:
			return nil, nil

		case asm.GETFIELD:
			_, name, _, err := vm.class.Pool.MemberRef(d.CP)
			if err != nil {
				return nil, err
			}
			f.pop()
			f.push(vm.getField(name))

		case asm.PUTFIELD:
			_, name, _, err := vm.class.Pool.MemberRef(d.CP)
			if err != nil {
				return nil, err
			}
			v := f.pop()
			f.pop()
			if err := vm.putField(name, v); err != nil {
				return nil, err
			}

		case asm.INVOKEVIRTUAL, asm.INVOKESPECIAL, asm.INVOKESTATIC:
			t, err := vm.resolve(d.CP)
			if err != nil {
				return nil, err
			}
			callArgs := make([]any, len(t.params))
			for i := len(callArgs) - 1; i >= 0; i-- {
				callArgs[i] = f.pop()
			}
			var recv any
			if op != asm.INVOKESTATIC {
				recv = f.pop()
			}
			var v any
			if t.native != nil {
				v, err = t.native(vm, recv, callArgs)
			} else {
				v, err = vm.execute(ctx, t.method, recv, callArgs)
			}
			if err != nil {
				return nil, err
			}
			if t.ret != "V" {
				f.push(v)
			}

		case asm.NEWARRAY:
			n := f.popInt()
			if n < 0 {
				return nil, runtimeErrorf("negative array size %d", n)
			}
			f.push(make([]float32, n))

		case asm.ANEWARRAY:
			n := f.popInt()
			if n < 0 {
				return nil, runtimeErrorf("negative array size %d", n)
			}
			f.push(make([]any, n))

		case asm.MULTIANEWARRAY:
			desc, err := vm.class.Pool.ClassName(d.CP)
			if err != nil {
				return nil, err
			}
			sizes := make([]int32, d.Operand)
			for i := len(sizes) - 1; i >= 0; i-- {
				sizes[i] = f.popInt()
			}
			a, err := newArray(desc, sizes)
			if err != nil {
				return nil, err
			}
			f.push(a)

		case asm.ARRAYLENGTH:
			switch a := f.pop().(type) {
			case []float32:
				f.push(int32(len(a)))
			case []any:
				f.push(int32(len(a)))
			default:
				return nil, runtimeErrorf("null array")
			}

		default:
			return nil, runtimeErrorf("unsupported instruction %s", op)
		}
		pc = next
	}
}

func (vm *VM) constant(cp uint16) (any, error) {
	c, err := vm.class.Pool.Get(cp)
	if err != nil {
		return nil, err
	}
	switch c.Tag {
	case classfile.TagInteger:
		return c.Int, nil
	case classfile.TagFloat:
		return c.Float, nil
	case classfile.TagString:
		return vm.class.Pool.Utf8(c.Index1)
	}
	return nil, runtimeErrorf("unsupported constant tag %d", c.Tag)
}

func (vm *VM) getField(name string) any {
	switch name {
	case "data":
		return vm.data
	case "nextDataPtr":
		return vm.nextDataPtr
	}
	return vm.fields[name]
}

func (vm *VM) putField(name string, v any) error {
	switch name {
	case "data":
		a, ok := v.([]any)
		if !ok && v != nil {
			return runtimeErrorf("data must be an object array, got %T", v)
		}
		vm.data = a
	case "nextDataPtr":
		vm.nextDataPtr = v.(int32)
	default:
		vm.fields[name] = v
	}
	return nil
}

func checkIndex(i int32, n int) error {
	if i < 0 || int(i) >= n {
		return runtimeErrorf("array index %d out of bounds (size %d)", int64(i)+1, n)
	}
	return nil
}

// fcmp is fcmpl or fcmpg: NaN compares as -1 or 1.
func fcmp(a, b float32, nanIsGreater bool) int32 {
	switch {
	case math.IsNaN(float64(a)) || math.IsNaN(float64(b)):
		if nanIsGreater {
			return 1
		}
		return -1
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// compare applies the condition of an if<cond> family member, cond being
// its offset from the eq form.
func compare(cond asm.Opcode, a, b int32) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}

// newArray builds a multi-dimensional array: nested []any down to a
// []float32 or []any of elements.
func newArray(desc string, sizes []int32) (any, error) {
	n := sizes[0]
	if n < 0 {
		return nil, runtimeErrorf("negative array size %d", n)
	}
	elem := strings.TrimPrefix(desc, "[")
	if len(sizes) == 1 {
		if elem == "F" {
			return make([]float32, n), nil
		}
		return make([]any, n), nil
	}
	out := make([]any, n)
	for i := range out {
		a, err := newArray(elem, sizes[1:])
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// splitDescriptor returns the parameter types and return type of a method
// descriptor.
func splitDescriptor(desc string) ([]string, string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("bad method descriptor %q", desc)
	}
	var params []string
	i := 1
	for i < len(desc) && desc[i] != ')' {
		j := i
		for j < len(desc) && desc[j] == '[' {
			j++
		}
		if j >= len(desc) {
			return nil, "", fmt.Errorf("bad method descriptor %q", desc)
		}
		if desc[j] == 'L' {
			k := strings.IndexByte(desc[j:], ';')
			if k < 0 {
				return nil, "", fmt.Errorf("bad method descriptor %q", desc)
			}
			j += k
		}
		params = append(params, desc[i:j+1])
		i = j + 1
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("bad method descriptor %q", desc)
	}
	return params, desc[i+1:], nil
}
