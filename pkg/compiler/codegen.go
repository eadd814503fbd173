package compiler

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"gobasic/pkg/asm"
)

// IntentKind tags an Intent.
type IntentKind int

const (
	OpIntent       IntentKind = iota // plain opcode
	LocalIntent                      // load or store of Slot
	ConstIntent                      // push Value (float32, int32 or string)
	JumpIntent                       // Op to Target
	LabelIntent                      // place Target
	LineIntent                       // place the target of Line if it is referenced
	RuntimeCall                      // invokevirtual Name Desc on the program class
	JDKCall                          // Op on Owner.Name Desc
	RuntimeField                     // Op (getfield/putfield) Name Desc on the program class
	NewArrayIntent                   // multianewarray Desc with Dims sizes
	NewObjectsIntent                 // anewarray of Owner
	TableSwitchIntent                // keys Key..Key+len(Targets)-1, default Target
	GosubIntent                      // push return site Key, goto Target, return to Return
	ReturnIntent                     // dispatch on the return site, default Target
	RestoreIntent                    // set the data pointer to the DATA at or after Line
)

var intentNames = [...]string{
	OpIntent:          "op",
	LocalIntent:       "local",
	ConstIntent:       "const",
	JumpIntent:        "jump",
	LabelIntent:       "label",
	LineIntent:        "line",
	RuntimeCall:       "runtime",
	JDKCall:           "jdk",
	RuntimeField:      "field",
	NewArrayIntent:    "newarray",
	NewObjectsIntent:  "newobjects",
	TableSwitchIntent: "tableswitch",
	GosubIntent:       "gosub",
	ReturnIntent:      "return",
	RestoreIntent:     "restore",
}

func (k IntentKind) String() string { return intentNames[k] }

// Intent is one queued instruction of the run method, still symbolic in
// the class name and the DATA pool offsets.
type Intent struct {
	Kind    IntentKind
	Op      asm.Opcode
	Slot    int
	Value   any
	Target  asm.Label
	Return  asm.Label
	Targets []asm.Label
	Key     int32
	Owner   string
	Name    string
	Desc    string
	Dims    int
	Line    string
	At      string // label of the statement that queued the intent
}

func (in Intent) String() string {
	switch in.Kind {
	case OpIntent:
		return in.Op.String()
	case LocalIntent:
		return fmt.Sprintf("%s %d", in.Op, in.Slot)
	case ConstIntent:
		if s, ok := in.Value.(string); ok {
			return fmt.Sprintf("const %q", s)
		}
		return fmt.Sprintf("const %v", in.Value)
	case JumpIntent:
		return fmt.Sprintf("%s %s", in.Op, in.Target)
	case LabelIntent:
		return in.Target.String() + ":"
	case LineIntent:
		return "line " + in.Line + ":"
	case RuntimeCall:
		return fmt.Sprintf("invokevirtual this.%s%s", in.Name, in.Desc)
	case JDKCall:
		return fmt.Sprintf("%s %s.%s%s", in.Op, in.Owner, in.Name, in.Desc)
	case RuntimeField:
		return fmt.Sprintf("%s this.%s:%s", in.Op, in.Name, in.Desc)
	case NewArrayIntent:
		return fmt.Sprintf("multianewarray %s %d", in.Desc, in.Dims)
	case NewObjectsIntent:
		return "anewarray " + in.Owner
	case TableSwitchIntent:
		return fmt.Sprintf("tableswitch %d %v default %s", in.Key, in.Targets, in.Target)
	case GosubIntent:
		return fmt.Sprintf("gosub %d %s return %s", in.Key, in.Target, in.Return)
	case ReturnIntent:
		return fmt.Sprintf("return-dispatch default %s", in.Target)
	case RestoreIntent:
		if in.Line == "" {
			return "restore"
		}
		return "restore " + in.Line
	}
	return fmt.Sprintf("intent(%d)", int(in.Kind))
}

// Plan is the output of the first pass: the queued intents of the run
// method and the tables needed to lower them.
type Plan struct {
	Prologue []Intent
	Body     []Intent
	Syms     *SymbolTable
}

// CodeGen walks a program once and queues intents. One CodeGen serves one
// compilation.
type CodeGen struct {
	syms *SymbolTable
	opts Options
	out  []Intent
	line *Line
}

// Generate runs the first pass over prog.
func Generate(prog *Program, opts Options) (*Plan, error) {
	opts = opts.withDefaults()
	g := &CodeGen{syms: NewSymbolTable(prog), opts: opts}
	for _, line := range prog.Lines {
		g.line = line
		g.emit(Intent{Kind: LineIntent, Line: line.Label})
		for _, st := range line.Stmts {
			if err := g.genStmt(st); err != nil {
				return nil, err
			}
		}
	}
	g.line = nil
	g.label(g.syms.End)
	g.op(asm.RETURN)

	if err := g.syms.checkArrays(); err != nil {
		return nil, err
	}
	body := g.out
	g.out = nil
	g.genPrologue()

	log.Debug("Planned program", "lines", len(prog.Lines), "slots", len(g.syms.Slots()),
		"intents", len(body), "data", len(g.syms.Data()), "targets", len(g.syms.LiveTargets()))
	return &Plan{Prologue: g.out, Body: body, Syms: g.syms}, nil
}

func (g *CodeGen) errorf(format string, args ...any) error {
	label := ""
	if g.line != nil {
		label = g.line.Label
	}
	return &CodeGenError{Label: label, Msg: fmt.Sprintf(format, args...)}
}

func (g *CodeGen) newLabel() asm.Label {
	if g.line == nil {
		return g.syms.NewLabel("")
	}
	return g.syms.NewLabel(g.line.Label)
}

func (g *CodeGen) emit(in Intent)                { g.out = append(g.out, in) }
func (g *CodeGen) op(op asm.Opcode)              { g.emit(Intent{Kind: OpIntent, Op: op}) }
func (g *CodeGen) local(op asm.Opcode, slot int) { g.emit(Intent{Kind: LocalIntent, Op: op, Slot: slot}) }
func (g *CodeGen) push(v any)                    { g.emit(Intent{Kind: ConstIntent, Value: v}) }
func (g *CodeGen) jump(op asm.Opcode, l asm.Label) {
	g.emit(Intent{Kind: JumpIntent, Op: op, Target: l})
}
func (g *CodeGen) label(l asm.Label) { g.emit(Intent{Kind: LabelIntent, Target: l}) }
func (g *CodeGen) this()             { g.local(asm.ALOAD, 0) }

func (g *CodeGen) call(name, desc string) {
	g.emit(Intent{Kind: RuntimeCall, Name: name, Desc: desc})
}

func (g *CodeGen) jdk(op asm.Opcode, owner, name, desc string) {
	g.emit(Intent{Kind: JDKCall, Op: op, Owner: owner, Name: name, Desc: desc})
}

func (g *CodeGen) target(label string) (asm.Label, error) {
	l, err := g.syms.LineTarget(label)
	if err != nil {
		return 0, g.errorf("%v", err)
	}
	return l, nil
}

func (g *CodeGen) genStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *Print:
		return g.genPrint(s)

	case *Goto:
		l, err := g.target(s.Target)
		if err != nil {
			return err
		}
		g.jump(asm.GOTO, l)

	case *Gosub:
		l, err := g.target(s.Target)
		if err != nil {
			return err
		}
		ret := g.newLabel()
		g.emit(Intent{Kind: GosubIntent, Key: g.syms.NextReturnSite(), Target: l, Return: ret})
		g.label(ret)

	case *Return:
		def := g.newLabel()
		g.emit(Intent{Kind: ReturnIntent, Target: def})
		g.label(def)
		g.this()
		g.push("no matching GOSUB")
		g.call("runtimeError", "(Ljava/lang/String;)V")
		g.op(asm.RETURN)

	case *OnGoto:
		if err := g.genExpr(s.Expr); err != nil {
			return err
		}
		g.op(asm.F2I)
		targets := make([]asm.Label, len(s.Targets))
		for i, t := range s.Targets {
			l, err := g.target(t)
			if err != nil {
				return err
			}
			targets[i] = l
		}
		after := g.newLabel()
		g.emit(Intent{Kind: TableSwitchIntent, Key: 1, Target: after, Targets: targets})
		g.label(after)

	case *If:
		if err := g.genExpr(s.Cond); err != nil {
			return err
		}
		g.op(asm.F2I)
		g.jump(asm.IFNE, g.syms.NextLineTarget(g.line.Number()))
		return g.genStmt(s.Then)

	case *Let:
		return g.store(s.Var, func() error { return g.genExpr(s.Value) })

	case *Dim:
		for _, a := range s.Arrays {
			if err := g.syms.DeclareArray(a.Dim(), g.line.Label); err != nil {
				return g.errorf("%v", err)
			}
			slot := g.syms.ArraySlot(a.Name)
			for _, size := range a.Sizes {
				if err := g.genExpr(size); err != nil {
					return err
				}
				g.op(asm.F2I)
			}
			g.emit(Intent{Kind: NewArrayIntent, Desc: slot.Descriptor(), Dims: len(a.Sizes)})
			g.local(asm.ASTORE, slot.Index)
		}

	case *For:
		return g.genFor(s)

	case *Next:
		return g.genNext(s)

	case *Input:
		if s.Prompt != "" {
			g.printConst(s.Prompt)
			g.printConst("? ")
		}
		for _, v := range s.Vars {
			t := v.Type
			if err := g.store(v, func() error {
				g.this()
				g.call("input"+t.String(), "()"+t.Descriptor())
				return nil
			}); err != nil {
				return err
			}
		}

	case *Data:
		g.syms.AddData(g.line.Number(), s.Values)

	case *Read:
		for _, v := range s.Vars {
			t := v.Type
			if err := g.store(v, func() error {
				g.this()
				g.call("read"+t.String(), "()"+t.Descriptor())
				return nil
			}); err != nil {
				return err
			}
		}

	case *Restore:
		g.emit(Intent{Kind: RestoreIntent, Line: s.Target, At: g.line.Label})

	case *Rem:

	case *End, *Stop:
		g.op(asm.RETURN)

	default:
		return g.errorf("internal error: unhandled statement %T", stmt)
	}
	return nil
}

func (g *CodeGen) printConst(s string) {
	g.this()
	g.push(s)
	g.call("print", "(Ljava/lang/String;)V")
}

func (g *CodeGen) genPrint(s *Print) error {
	for _, item := range s.Items {
		switch {
		case item.Expr != nil:
			g.this()
			if err := g.genExpr(item.Expr); err != nil {
				return err
			}
			g.call("print", "("+item.Expr.Type().Descriptor()+")V")
		case item.Sep == SepZone:
			g.this()
			g.call("nextPrintZone", "()V")
		case item.Sep == SepSpace:
			g.printConst(" ")
		}
	}
	if s.Newline() {
		g.this()
		g.call("println", "()V")
	}
	return nil
}

func (g *CodeGen) genFor(s *For) error {
	if err := g.store(s.Var, func() error { return g.genExpr(s.Start) }); err != nil {
		return err
	}
	body := g.newLabel()
	id := g.syms.pushLoop(s.Var.Name, body, g.line.Label)
	end := g.syms.allocate(forSlotKey("END", id), FloatType, nil, true)
	inc := g.syms.allocate(forSlotKey("INC", id), FloatType, nil, true)

	if err := g.genExpr(s.End); err != nil {
		return err
	}
	g.local(asm.FSTORE, end.Index)
	if s.Step != nil {
		if err := g.genExpr(s.Step); err != nil {
			return err
		}
	} else {
		g.push(float32(1))
	}
	g.local(asm.FSTORE, inc.Index)
	g.label(body)
	return nil
}

func (g *CodeGen) genNext(s *Next) error {
	names := []string{""}
	if len(s.Vars) > 0 {
		names = names[:0]
		for _, v := range s.Vars {
			names = append(names, v.Name)
		}
	}
	for _, name := range names {
		loop, err := g.syms.popLoop(name)
		if err != nil {
			return g.errorf("%v", err)
		}
		v := g.syms.ScalarSlot(loop.v).Index
		end := g.syms.byKey[forSlotKey("END", loop.id)].Index
		inc := g.syms.byKey[forSlotKey("INC", loop.id)].Index

		// v += inc; continue while sign(inc) differs from sign(v - end)
		g.local(asm.FLOAD, v)
		g.local(asm.FLOAD, inc)
		g.op(asm.FADD)
		g.local(asm.FSTORE, v)
		g.local(asm.FLOAD, inc)
		g.push(float32(0))
		g.op(asm.FCMPG)
		g.local(asm.FLOAD, v)
		g.local(asm.FLOAD, end)
		g.op(asm.FCMPG)
		g.jump(asm.IF_ICMPNE, loop.body)
	}
	return nil
}

// store evaluates value and assigns it to v.
func (g *CodeGen) store(v VarName, value func() error) error {
	if !v.IsArray() {
		slot := g.syms.ScalarSlot(v.Name)
		if err := value(); err != nil {
			return err
		}
		if v.Type == StringType {
			g.local(asm.ASTORE, slot.Index)
		} else {
			g.local(asm.FSTORE, slot.Index)
		}
		return nil
	}
	if err := g.element(v); err != nil {
		return err
	}
	if err := value(); err != nil {
		return err
	}
	if v.Type == StringType {
		g.op(asm.AASTORE)
	} else {
		g.op(asm.FASTORE)
	}
	return nil
}

// element pushes the innermost array and the zero-based last index of v.
func (g *CodeGen) element(v VarName) error {
	if err := g.syms.UseArray(v.Dim(), g.line.Label); err != nil {
		return g.errorf("%v", err)
	}
	slot := g.syms.ArraySlot(v.Name)
	g.local(asm.ALOAD, slot.Index)
	for i, idx := range v.Indexes {
		if err := g.genExpr(idx); err != nil {
			return err
		}
		g.op(asm.F2I)
		g.push(int32(1))
		g.op(asm.ISUB)
		if i < len(v.Indexes)-1 {
			g.op(asm.AALOAD)
		}
	}
	return nil
}

var arithmetic = map[Op]asm.Opcode{
	OpAdd: asm.FADD,
	OpSub: asm.FSUB,
	OpMul: asm.FMUL,
	OpDiv: asm.FDIV,
}

// compareJumps gives the branch taken when a comparison holds, applied to
// the fcmpg or compareTo result.
var compareJumps = map[Op]asm.Opcode{
	OpEq: asm.IFEQ,
	OpNe: asm.IFNE,
	OpLt: asm.IFLT,
	OpLe: asm.IFLE,
	OpGt: asm.IFGT,
	OpGe: asm.IFGE,
}

func (g *CodeGen) genExpr(expr Expr) error {
	switch e := expr.(type) {
	case *NumberLit:
		g.push(e.Value)

	case *StringLit:
		g.push(e.Value)

	case *VarRef:
		if !e.Var.IsArray() {
			slot := g.syms.ScalarSlot(e.Var.Name)
			if e.Var.Type == StringType {
				g.local(asm.ALOAD, slot.Index)
			} else {
				g.local(asm.FLOAD, slot.Index)
			}
			return nil
		}
		if err := g.element(e.Var); err != nil {
			return err
		}
		if e.Var.Type == StringType {
			g.op(asm.AALOAD)
		} else {
			g.op(asm.FALOAD)
		}

	case *Negate:
		if err := g.genExpr(e.X); err != nil {
			return err
		}
		g.op(asm.FNEG)

	case *BinaryExpr:
		return g.genBinary(e)

	case *Call:
		return g.genCall(e)

	default:
		return g.errorf("internal error: unhandled expression %T", expr)
	}
	return nil
}

func (g *CodeGen) genBinary(e *BinaryExpr) error {
	if e.Op == OpAnd || e.Op == OpOr {
		// true is 0 and false is -1: AND stops on a false left operand,
		// OR on a true one, leaving it as the result.
		if err := g.genExpr(e.Left); err != nil {
			return err
		}
		g.op(asm.DUP)
		g.op(asm.F2I)
		done := g.newLabel()
		if e.Op == OpAnd {
			g.jump(asm.IFNE, done)
		} else {
			g.jump(asm.IFEQ, done)
		}
		g.op(asm.POP)
		if err := g.genExpr(e.Right); err != nil {
			return err
		}
		g.label(done)
		return nil
	}

	if err := g.genExpr(e.Left); err != nil {
		return err
	}
	if e.Op == OpPow {
		g.op(asm.F2D)
	}
	if err := g.genExpr(e.Right); err != nil {
		return err
	}
	text := e.Left.Type() == StringType

	switch {
	case e.Op == OpPow:
		g.op(asm.F2D)
		g.jdk(asm.INVOKESTATIC, "java/lang/Math", "pow", "(DD)D")
		g.op(asm.D2F)
	case e.Op == OpAdd && text:
		g.jdk(asm.INVOKEVIRTUAL, "java/lang/String", "concat", "(Ljava/lang/String;)Ljava/lang/String;")
	case e.Op.IsComparison():
		if text {
			g.jdk(asm.INVOKEVIRTUAL, "java/lang/String", "compareTo", "(Ljava/lang/String;)I")
		} else {
			g.op(asm.FCMPG)
		}
		yes, done := g.newLabel(), g.newLabel()
		g.jump(compareJumps[e.Op], yes)
		g.push(float32(-1))
		g.jump(asm.GOTO, done)
		g.label(yes)
		g.push(float32(0))
		g.label(done)
	default:
		op, ok := arithmetic[e.Op]
		if !ok || text {
			return g.errorf("internal error: operator %s on %s", e.Op, e.Left.Type())
		}
		g.op(op)
	}
	return nil
}

func (g *CodeGen) genCall(e *Call) error {
	f := e.Func
	if f.Kind == RuntimeFunc {
		g.this()
	}
	for _, a := range e.Args {
		if err := g.genExpr(a); err != nil {
			return err
		}
	}
	for _, op := range f.Before {
		g.op(op)
	}
	switch f.Kind {
	case RuntimeFunc:
		g.call(f.RuntimeMethod(), f.Descriptor())
	case StaticFunc:
		g.jdk(asm.INVOKESTATIC, f.Owner, f.Method, f.Desc)
	case VirtualFunc:
		g.jdk(asm.INVOKEVIRTUAL, f.Owner, f.Method, f.Desc)
	}
	for _, op := range f.After {
		g.op(op)
	}
	return nil
}

// genPrologue initializes the DATA pool and every slot so all locals are
// defined on every path through the method.
func (g *CodeGen) genPrologue() {
	if data := g.syms.Data(); len(data) > 0 {
		g.this()
		g.push(int32(len(data)))
		g.emit(Intent{Kind: NewObjectsIntent, Owner: "java/lang/Object"})
		for i, v := range data {
			g.op(asm.DUP)
			g.push(int32(i))
			g.push(v)
			if _, ok := v.(float32); ok {
				g.jdk(asm.INVOKESTATIC, "java/lang/Float", "valueOf", "(F)Ljava/lang/Float;")
			}
			g.op(asm.AASTORE)
		}
		g.emit(Intent{Kind: RuntimeField, Op: asm.PUTFIELD, Name: "data", Desc: "[Ljava/lang/Object;"})
	}

	for _, slot := range g.syms.Slots() {
		switch {
		case slot.Array != nil:
			size := int32(g.opts.DefaultArraySize)
			if g.syms.arrays[slot.Key].Dimmed {
				size = 0
			}
			for i := 0; i < slot.Array.Dims; i++ {
				g.push(size)
			}
			g.emit(Intent{Kind: NewArrayIntent, Desc: slot.Descriptor(), Dims: slot.Array.Dims})
			g.local(asm.ASTORE, slot.Index)
		case slot.Type == StringType:
			g.push("")
			g.local(asm.ASTORE, slot.Index)
		default:
			g.push(float32(0))
			g.local(asm.FSTORE, slot.Index)
		}
	}
}

// Dump renders the plan one intent per line.
func (p *Plan) Dump() string {
	var b strings.Builder
	b.WriteString("; prologue\n")
	for _, in := range p.Prologue {
		fmt.Fprintf(&b, "  %s\n", in)
	}
	b.WriteString("; body\n")
	for _, in := range p.Body {
		if in.Kind == LineIntent || in.Kind == LabelIntent {
			fmt.Fprintf(&b, "%s\n", in)
			continue
		}
		fmt.Fprintf(&b, "  %s\n", in)
	}
	return b.String()
}
