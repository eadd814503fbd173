package compiler

import (
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(v float32) *NumberLit { return &NumberLit{Value: v} }
func str(s string) *StringLit  { return &StringLit{Value: s} }
func scalar(name string) VarName {
	return VarName{Name: name, Type: TypeOfName(name)}
}
func ref(name string) *VarRef { return &VarRef{Var: scalar(name)} }
func bin(op Op, l, r Expr) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: l, Right: r}
}
func fn(name string) *FunctionDef {
	for _, f := range Functions {
		if f.Name == name {
			return f
		}
	}
	panic("no function " + name)
}

// parseOne parses a one-line program and returns its statements.
func parseOne(t *testing.T, src string) []Stmt {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Lines, 1)
	return prog.Lines[0].Stmts
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Expr
	}{
		{"Subtraction Is Left Deep", "10 X = 1 - 2 - 3",
			bin(OpSub, bin(OpSub, num(1), num(2)), num(3))},
		{"Division Is Left Deep", "10 X = 8 / 4 / 2",
			bin(OpDiv, bin(OpDiv, num(8), num(4)), num(2))},
		{"Power Is Right Deep", "10 X = 2 ^ 3 ^ 2",
			bin(OpPow, num(2), bin(OpPow, num(3), num(2)))},
		{"Multiplication Binds Tighter", "10 X = 1 + 2 * 3",
			bin(OpAdd, num(1), bin(OpMul, num(2), num(3)))},
		{"Parentheses", "10 X = (1 + 2) * 3",
			bin(OpMul, bin(OpAdd, num(1), num(2)), num(3))},
		{"Unary Minus Below Power", "10 X = -2 ^ 2",
			&Negate{X: bin(OpPow, num(2), num(2))}},
		{"Unary Minus Above Product", "10 X = -A * B",
			bin(OpMul, &Negate{X: ref("A")}, ref("B"))},
		{"Unary Plus Vanishes", "10 X = +A",
			ref("A")},
		{"Logic Below Comparison", "10 X = A < 1 OR B = 2 AND C >= 3",
			bin(OpOr, bin(OpLt, ref("A"), num(1)), bin(OpAnd, bin(OpEq, ref("B"), num(2)), bin(OpGe, ref("C"), num(3))))},
		{"String Concatenation", `10 X$ = "A" + B$`,
			bin(OpAdd, str("A"), ref("B$"))},
		{"String Comparison Is Numeric", `10 X = A$ <> "B"`,
			bin(OpNe, ref("A$"), str("B"))},
		{"Function Call", "10 X = INT(SIN(A)) + LEN(B$)",
			bin(OpAdd, &Call{Func: fn("INT"), Args: []Expr{&Call{Func: fn("SIN"), Args: []Expr{ref("A")}}}},
				&Call{Func: fn("LEN"), Args: []Expr{ref("B$")}})},
		{"Array Element", "10 X = A(I + 1, 2)",
			&VarRef{Var: VarName{Name: "A", Type: FloatType, Indexes: []Expr{bin(OpAdd, ref("I"), num(1)), num(2)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts := parseOne(t, tt.input)
			require.Len(t, stmts, 1)
			let, ok := stmts[0].(*Let)
			require.True(t, ok, "got %s", spew.Sdump(stmts[0]))
			if diff := cmp.Diff(tt.expected, let.Value); diff != "" {
				t.Errorf("AST mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Stmt
	}{
		{"Print Items", `10 PRINT "A"; B, C D;`, []Stmt{&Print{Items: []PrintItem{
			{Expr: str("A")}, {Sep: SepNone}, {Expr: ref("B")}, {Sep: SepZone},
			{Expr: ref("C")}, {Sep: SepSpace}, {Expr: ref("D")}, {Sep: SepNone},
		}}}},
		{"Empty Print", "10 PRINT", []Stmt{&Print{}}},
		{"Goto And Gosub", "10 GOTO 100: GO SUB 200", []Stmt{&Goto{Target: "100"}, &Gosub{Target: "200"}}},
		{"Labels Are Canonical", "10 GOTO 0100", []Stmt{&Goto{Target: "100"}}},
		{"On Goto", "10 ON X GOTO 100, 200,300", []Stmt{&OnGoto{Expr: ref("X"), Targets: []string{"100", "200", "300"}}}},
		{"If Then Line", "10 IF A = 1 THEN 50", []Stmt{&If{Cond: bin(OpEq, ref("A"), num(1)), Then: &Goto{Target: "50"}}}},
		{"If Then Statement", `10 IF A THEN PRINT "Y": END`, []Stmt{
			&If{Cond: ref("A"), Then: &Print{Items: []PrintItem{{Expr: str("Y")}}}}, &End{},
		}},
		{"Implicit Let", "10 A$ = \"X\"", []Stmt{&Let{Var: scalar("A$"), Value: str("X")}}},
		{"Explicit Let", "10 LET A = 1", []Stmt{&Let{Var: scalar("A"), Value: num(1)}}},
		{"Dim", "10 DIM A(10), B$(2, 3)", []Stmt{&Dim{Arrays: []ArrayDecl{
			{Name: "A", Type: FloatType, Sizes: []Expr{num(10)}},
			{Name: "B$", Type: StringType, Sizes: []Expr{num(2), num(3)}},
		}}}},
		{"For With Step", "10 FOR I = 10 TO 1 STEP -1", []Stmt{&For{
			Var: scalar("I"), Start: num(10), End: num(1), Step: &Negate{X: num(1)},
		}}},
		{"For Without Step", "10 FOR I = 1 TO N", []Stmt{&For{Var: scalar("I"), Start: num(1), End: ref("N")}}},
		{"Bare Next", "10 NEXT", []Stmt{&Next{}}},
		{"Named Next", "10 NEXT I, J", []Stmt{&Next{Vars: []VarName{scalar("I"), scalar("J")}}}},
		{"Input With Prompt", `10 INPUT "AGE"; A, N$`, []Stmt{&Input{Prompt: "AGE", Vars: []VarName{scalar("A"), scalar("N$")}}}},
		{"Data", `10 DATA 1, -2.5, "X"`, []Stmt{&Data{Values: []Expr{num(1), num(-2.5), str("X")}}}},
		{"Read", "10 READ A, B$(2)", []Stmt{&Read{Vars: []VarName{
			scalar("A"), {Name: "B$", Type: StringType, Indexes: []Expr{num(2)}},
		}}}},
		{"Restore", "10 RESTORE: RESTORE 50", []Stmt{&Restore{}, &Restore{Target: "50"}}},
		{"Rem Swallows Line", "10 REM A: B \"", []Stmt{&Rem{Text: " A: B \""}}},
		{"Return End Stop", "10 RETURN: END: STOP", []Stmt{&Return{}, &End{}, &Stop{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts := parseOne(t, tt.input)
			if diff := cmp.Diff(tt.expected, stmts); diff != "" {
				t.Errorf("AST mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseSortsLines(t *testing.T) {
	prog, err := Parse("30 END\n\n10 PRINT\n20 GOTO 10\n")
	require.NoError(t, err)
	var labels []string
	for _, l := range prog.Lines {
		labels = append(labels, l.Label)
	}
	assert.Equal(t, []string{"10", "20", "30"}, labels)
	assert.Equal(t, 3, prog.Lines[0].SourceLine)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		label string
		msg   string
	}{
		{"Duplicate Label", "10 END\n10 STOP", "10", "duplicate line label 10"},
		{"Missing Label", "PRINT", "", "expected line label"},
		{"Zero Label", "0 END", "", "invalid line label"},
		{"Type Mismatch", `10 X = 1 + "A"`, "10", "type mismatch"},
		{"String Arithmetic", `10 X$ = "A" - "B"`, "10", "needs numbers"},
		{"Assign Text To Number", `10 X = "A"`, "10", "cannot assign STRING to FLOAT variable X"},
		{"Read Target Checked", `10 A$ = 1`, "10", "cannot assign FLOAT"},
		{"If Needs Number", `10 IF A$ THEN 20`, "10", "IF needs a numeric expression"},
		{"Unknown Arity", "10 X = SIN(1, 2)", "10", "SIN called with 2 arguments"},
		{"Wrong Argument Type", `10 X = SIN("A")`, "10", "SIN does not accept (STRING)"},
		{"Bad Number", "10 X = 1.2.3", "10", "invalid number"},
		{"Trailing Garbage", "10 END 20", "10", "after statement"},
		{"For Needs Number", "10 FOR A$ = 1 TO 2", "10", "FOR needs a numeric variable"},
		{"Go Without To", "10 GO 20", "10", "expected TO or SUB"},
		{"Unary Minus On Text", `10 X$ = -"A"`, "10", "unary - needs a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want ParseError, got %v", err)
			assert.Equal(t, tt.label, pe.Label)
			assert.Contains(t, pe.Msg, tt.msg)
		})
	}
}

func TestParseErrorSnippet(t *testing.T) {
	_, err := Parse("10 PRINT\n20 X = 1 +\n")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, "20 X = 1 +", pe.Snippet)
	assert.Contains(t, pe.Error(), "line 2 (label 20)")
}

func TestParseTokenizingErrorPassesThrough(t *testing.T) {
	_, err := Parse("10 PRINT \"OPEN")
	var te *TokenizingError
	assert.True(t, errors.As(err, &te))
}
