package compiler

import (
	"strconv"
	"strings"
)

// DataType is one of the two value types of the language, chosen by the
// '$' suffix of a name.
type DataType int

const (
	FloatType  DataType = iota // numbers, JVM float
	StringType                 // text, java/lang/String
)

func (t DataType) String() string {
	if t == StringType {
		return "STRING"
	}
	return "FLOAT"
}

// Descriptor is the JVM field descriptor for values of type t.
func (t DataType) Descriptor() string {
	if t == StringType {
		return "Ljava/lang/String;"
	}
	return "F"
}

// TypeOfName derives a variable's type from its name.
func TypeOfName(name string) DataType {
	if strings.HasSuffix(name, "$") {
		return StringType
	}
	return FloatType
}

//  Expression nodes

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	Type() DataType
}

// NumberLit is a numeric constant.
type NumberLit struct {
	Value float32
}

// StringLit is a text constant.
type StringLit struct {
	Value string
}

// VarName names a scalar variable or, with Indexes, an array element.
//
//	A(I+1, 2)
//	^^^^^^^^^  VarName{Name: "A", Type: FloatType, Indexes: [I+1, 2]}
type VarName struct {
	Name    string
	Type    DataType
	Indexes []Expr
}

func (v VarName) IsArray() bool { return len(v.Indexes) > 0 }

// Key is the storage key of the variable: arrays and scalars of the same
// name are distinct.
func (v VarName) Key() string {
	if v.IsArray() {
		return v.Name + "()"
	}
	return v.Name
}

// Dim is the array shape implied by this reference.
func (v VarName) Dim() ArrayDim {
	return ArrayDim{Name: v.Name, Type: v.Type, Dims: len(v.Indexes)}
}

// VarRef reads a variable.
type VarRef struct {
	Var VarName
}

// Negate is unary minus.
type Negate struct {
	X Expr
}

// BinaryExpr is Left Op Right. Both operands have the same type.
type BinaryExpr struct {
	Op    Op
	Left  Expr
	Right Expr
}

// Call invokes a built-in function.
type Call struct {
	Func *FunctionDef
	Args []Expr
}

func (*NumberLit) exprNode()  {}
func (*StringLit) exprNode()  {}
func (*VarRef) exprNode()     {}
func (*Negate) exprNode()     {}
func (*BinaryExpr) exprNode() {}
func (*Call) exprNode()       {}

func (*NumberLit) Type() DataType  { return FloatType }
func (*StringLit) Type() DataType  { return StringType }
func (e *VarRef) Type() DataType   { return e.Var.Type }
func (*Negate) Type() DataType     { return FloatType }
func (e *Call) Type() DataType     { return e.Func.Return }
func (e *BinaryExpr) Type() DataType {
	if e.Op == OpAdd {
		return e.Left.Type()
	}
	return FloatType
}

// Op is a binary operator.
type Op int

const (
	OpOr Op = iota
	OpAnd
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
)

var ops = [...]struct {
	text  string
	prec  int
	right bool
}{
	OpOr:  {"OR", 1, false},
	OpAnd: {"AND", 2, false},
	OpEq:  {"=", 3, false},
	OpNe:  {"<>", 3, false},
	OpLt:  {"<", 3, false},
	OpLe:  {"<=", 3, false},
	OpGt:  {">", 3, false},
	OpGe:  {">=", 3, false},
	OpAdd: {"+", 4, false},
	OpSub: {"-", 4, false},
	OpMul: {"*", 5, false},
	OpDiv: {"/", 5, false},
	OpPow: {"^", 6, true},
}

// unaryPrec is the binding power of unary '+' and '-'.
const unaryPrec = 6

func (o Op) String() string   { return ops[o].text }
func (o Op) Precedence() int  { return ops[o].prec }
func (o Op) RightAssoc() bool { return ops[o].right }

func (o Op) IsComparison() bool { return o >= OpEq && o <= OpGe }

// binaryOp maps an operator token to its Op.
func binaryOp(tok Token) (Op, bool) {
	if tok.Type != SYMBOL && tok.Type != KEYWORD {
		return 0, false
	}
	for o := range ops {
		if ops[o].text == tok.Lexeme {
			return Op(o), true
		}
	}
	return 0, false
}

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
}

// Separator is the punctuation between PRINT items.
type Separator int

const (
	SepNone  Separator = iota // ';' no gap
	SepZone                   // ',' advance to the next print zone
	SepSpace                  // adjacent expressions, joined by one space
)

// PrintItem is either an expression or, when Expr is nil, a separator.
type PrintItem struct {
	Expr Expr
	Sep  Separator
}

// Print is PRINT with its items in source order.
type Print struct {
	Items []PrintItem
}

// Newline reports whether the statement ends by moving to a new line.
func (p *Print) Newline() bool {
	if len(p.Items) == 0 {
		return true
	}
	last := p.Items[len(p.Items)-1]
	return last.Expr != nil || last.Sep == SepSpace
}

type Goto struct {
	Target string
}

type Gosub struct {
	Target string
}

type Return struct{}

type OnGoto struct {
	Expr    Expr
	Targets []string
}

// If runs Then when Cond is true (0). A THEN with a line number is parsed
// as a Goto.
type If struct {
	Cond Expr
	Then Stmt
}

type Let struct {
	Var   VarName
	Value Expr
}

// ArrayDecl is one array of a DIM statement.
type ArrayDecl struct {
	Name  string
	Type  DataType
	Sizes []Expr
}

func (a ArrayDecl) Dim() ArrayDim {
	return ArrayDim{Name: a.Name, Type: a.Type, Dims: len(a.Sizes)}
}

type Dim struct {
	Arrays []ArrayDecl
}

// For opens a loop. Step is nil when omitted.
type For struct {
	Var   VarName
	Start Expr
	End   Expr
	Step  Expr
}

// Next closes the innermost loop, or the named loops in order.
type Next struct {
	Vars []VarName
}

type Input struct {
	Prompt string
	Vars   []VarName
}

// Data holds NumberLit and StringLit values.
type Data struct {
	Values []Expr
}

type Read struct {
	Vars []VarName
}

// Restore resets the data pointer to the first DATA at or after Target,
// or to the start when Target is empty.
type Restore struct {
	Target string
}

type Rem struct {
	Text string
}

type End struct{}

type Stop struct{}

func (*Print) stmtNode()   {}
func (*Goto) stmtNode()    {}
func (*Gosub) stmtNode()   {}
func (*Return) stmtNode()  {}
func (*OnGoto) stmtNode()  {}
func (*If) stmtNode()      {}
func (*Let) stmtNode()     {}
func (*Dim) stmtNode()     {}
func (*For) stmtNode()     {}
func (*Next) stmtNode()    {}
func (*Input) stmtNode()   {}
func (*Data) stmtNode()    {}
func (*Read) stmtNode()    {}
func (*Restore) stmtNode() {}
func (*Rem) stmtNode()     {}
func (*End) stmtNode()     {}
func (*Stop) stmtNode()    {}

//  Program structure

// ArrayDim is an array's name, element type and dimension count.
type ArrayDim struct {
	Name string
	Type DataType
	Dims int
}

// Line is one labelled source line.
type Line struct {
	Label      string
	Stmts      []Stmt
	SourceLine int
}

// Number is the numeric value of the label.
func (l *Line) Number() int {
	n, _ := strconv.Atoi(l.Label)
	return n
}

// Program is the parsed source, lines sorted by label.
type Program struct {
	Lines []*Line
}
