package compiler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatExpr(t *testing.T) {
	tests := []struct {
		name     string
		expr     Expr
		expected string
	}{
		{"Left Deep Subtraction", bin(OpSub, bin(OpSub, num(1), num(2)), num(3)), "1 - 2 - 3"},
		{"Right Deep Subtraction", bin(OpSub, num(1), bin(OpSub, num(2), num(3))), "1 - (2 - 3)"},
		{"Right Deep Power", bin(OpPow, num(2), bin(OpPow, num(3), num(2))), "2 ^ 3 ^ 2"},
		{"Left Deep Power", bin(OpPow, bin(OpPow, num(2), num(3)), num(2)), "(2 ^ 3) ^ 2"},
		{"Sum In Product", bin(OpMul, bin(OpAdd, ref("A"), ref("B")), num(2)), "(A + B) * 2"},
		{"Negated Power", &Negate{X: bin(OpPow, num(2), num(2))}, "-2 ^ 2"},
		{"Negated Base", bin(OpPow, &Negate{X: num(2)}, num(2)), "(-2) ^ 2"},
		{"Negated Sum", &Negate{X: bin(OpAdd, ref("A"), ref("B"))}, "-(A + B)"},
		{"Fraction", num(0.5), "0.5"},
		{"Text", bin(OpAdd, str("A"), ref("B$")), `"A" + B$`},
		{"Call", &Call{Func: fn("SIN"), Args: []Expr{bin(OpMul, ref("A"), num(2))}}, "SIN(A * 2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatExpr(tt.expr))
		})
	}
}

func TestListRoundTrip(t *testing.T) {
	src := `10 REM ROUND TRIP
20 PRINT "A"; B, C D;
30 IF A < 1 AND B$ = "X" THEN 100
40 LET X = -(A + B) * 2 ^ -C
50 FOR I = 10 TO 1 STEP -1: NEXT I
60 DIM M(3, 3), N$(2)
70 INPUT "NAME"; N$(1), Q
80 DATA 1, -2.5, "Z": READ Y: RESTORE 80
90 ON Q GOTO 100, 110: GOSUB 110
100 IF Q THEN PRINT : END
110 RETURN
`
	first, err := Parse(src)
	require.NoError(t, err)
	listed := List(first)
	second, err := Parse(listed)
	require.NoError(t, err, listed)

	ignoreSource := cmpopts.IgnoreFields(Line{}, "SourceLine")
	if diff := cmp.Diff(first, second, ignoreSource); diff != "" {
		t.Errorf("round trip changed the program (-first +second):\n%s\nlisting:\n%s", diff, listed)
	}
	assert.Equal(t, listed, List(second))
}

func TestFormatLine(t *testing.T) {
	prog, err := Parse("10 GO TO 20: GO SUB 30\n20 REM\n30 PRINT\n")
	require.NoError(t, err)
	assert.Equal(t, "10 GOTO 20 : GOSUB 30\n20 REM\n30 PRINT\n", List(prog))
}
