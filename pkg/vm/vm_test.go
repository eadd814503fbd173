package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobasic/pkg/compiler"
)

// run compiles src and executes it with input fed to INPUT.
func run(t *testing.T, src, input string, opts Options) (string, error) {
	t.Helper()
	class, err := compiler.Compile(src, "Test", compiler.Options{})
	require.NoError(t, err)
	var out bytes.Buffer
	opts.Output = &out
	if opts.Input == nil {
		opts.Input = NewStreamReader(strings.NewReader(input))
	}
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	err = RunClass(context.Background(), class, opts)
	return out.String(), err
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		input    string
		expected string
	}{
		{"For Loop", "10 FOR I = 1 TO 3\n20 PRINT I\n30 NEXT I\n", "", "1\n2\n3\n"},
		{"Negative Step", "10 FOR I = 3 TO 1 STEP -1: PRINT I;: NEXT\n20 PRINT\n", "", "321\n"},
		{"Fractional Step", "10 FOR X = 0 TO 1 STEP 0.25: PRINT X, : NEXT X\n", "",
			"0" + strings.Repeat(" ", 13) + "0.25" + strings.Repeat(" ", 10) + "0.5" + strings.Repeat(" ", 11) +
				"0.75" + strings.Repeat(" ", 10) + "1" + strings.Repeat(" ", 13)},
		{"Nested Loops Closed Together", "10 FOR I = 1 TO 2: FOR J = 1 TO 2\n20 PRINT I * 10 + J\n30 NEXT J, I\n", "",
			"11\n12\n21\n22\n"},
		{"Data Read", "10 DATA 1, 2\n20 READ A, B\n30 PRINT A + B\n", "", "3\n"},
		{"Read Text", "10 READ N$, X\n20 PRINT N$; X\n30 DATA \"AB\", -4\n", "", "AB-4\n"},
		{"Restore To Line", "10 DATA 1\n20 DATA 2\n30 READ A\n40 RESTORE 20\n50 READ B\n60 PRINT A: PRINT B\n", "", "1\n2\n"},
		{"Restore To Start", "10 DATA 5\n20 READ A: RESTORE: READ B\n30 PRINT A + B\n", "", "10\n"},
		{"Gosub", "10 GOSUB 100\n20 PRINT \"BACK\"\n30 END\n100 PRINT \"SUB\"\n110 RETURN\n", "", "SUB\nBACK\n"},
		{"Gosub Twice", "10 GOSUB 100: GOSUB 100\n20 END\n100 PRINT \"S\"\n110 RETURN\n", "", "S\nS\n"},
		{"Nested Gosub", "10 GOSUB 100\n20 PRINT \"END\"\n30 END\n100 GOSUB 200\n110 PRINT \"ONE\"\n120 RETURN\n200 PRINT \"TWO\"\n210 RETURN\n", "",
			"TWO\nONE\nEND\n"},
		{"Auto Sized Array", "10 A(5) = 42\n20 PRINT A(5)\n", "", "42\n"},
		{"Two Dimensional Array", "10 DIM M(2, 3)\n20 M(2, 3) = 7: M(1, 1) = 1\n30 PRINT M(2, 3) + M(1, 1)\n", "", "8\n"},
		{"Text Array", "10 DIM A$(2)\n20 A$(2) = \"X\"\n30 PRINT A$(1); A$(2)\n", "", "nullX\n"},
		{"False If Falls Through", "10 IF 1 = 2 THEN PRINT \"B\"\n20 PRINT \"A\"\n", "", "A\n"},
		{"True If Runs Rest Of Line", "10 IF 1 = 1 THEN PRINT \"B\": PRINT \"C\"\n20 PRINT \"A\"\n", "", "B\nC\nA\n"},
		{"If Then Line", "10 IF 2 > 1 THEN 30\n20 PRINT \"NO\"\n30 PRINT \"YES\"\n", "", "YES\n"},
		{"And Or", "10 IF 1 = 1 AND 2 = 2 THEN PRINT \"AND\"\n20 IF 1 = 2 OR 2 = 2 THEN PRINT \"OR\"\n30 IF 1 = 2 AND 2 = 2 THEN PRINT \"NO\"\n", "",
			"AND\nOR\n"},
		{"Text Comparison", "10 IF \"A\" < \"B\" THEN PRINT \"LT\"\n20 IF \"A\" = \"A\" THEN PRINT \"EQ\"\n", "", "LT\nEQ\n"},
		{"On Goto", "10 X = 2\n20 ON X GOTO 40, 50\n30 PRINT \"NONE\": END\n40 PRINT \"ONE\": END\n50 PRINT \"TWO\"\n", "", "TWO\n"},
		{"On Goto Out Of Range", "10 ON 3 GOTO 40, 50\n30 PRINT \"NONE\": END\n40 PRINT \"ONE\": END\n50 PRINT \"TWO\"\n", "", "NONE\n"},
		{"Print Separators", "10 PRINT \"A\", \"B\"\n20 PRINT \"C\" \"D\"\n30 PRINT \"E\";\n40 PRINT \"F\"\n", "",
			"A" + strings.Repeat(" ", 13) + "B\nC D\nEF\n"},
		{"Tab", "10 PRINT \"AB\"; TAB(5); \"C\"\n", "", "AB   C\n"},
		{"Number Formatting", "10 PRINT 1 / 3: PRINT 2 / 3: PRINT 1500.5: PRINT 0.0001\n", "", "0.333\n0.667\n1500.5\n0\n"},
		{"Arithmetic", "10 PRINT 2 + 3 * 4; \" \"; (2 + 3) * 4; \" \"; 2 ^ 10; \" \"; -2 ^ 2; \" \"; 7 - 2 - 1\n", "",
			"14 20 1024 -4 4\n"},
		{"Builtins", `10 PRINT INT(3.7); " "; INT(-3.7); " "; SQR(16); " "; ABS(-2); " "; SGN(-3); " "; SIN(90)
20 PRINT LEN("ABC"); " "; CHR$(65); " "; VAL("2.5") * 2
`, "", "3 -3 4 2 -1 1\n3 A 5\n"},
		{"Concatenation", "10 A$ = \"FOO\": B$ = A$ + \"BAR\"\n20 PRINT B$\n", "", "FOOBAR\n"},
		{"Input Number", "10 INPUT \"AGE\"; A\n20 PRINT A * 2\n", "x\n21\n", "AGE? ?Redo from start\n42\n"},
		{"Input Text", "10 INPUT N$\n20 PRINT \"HI \" + N$\n", "BOB\n", "HI BOB\n"},
		{"Stop", "10 PRINT \"A\": STOP\n20 PRINT \"B\"\n", "", "A\n"},
		{"Random Is Reproducible", `10 X = RND(-3): A = RND(1): X = RND(-3): B = RND(1)
20 IF A = B THEN PRINT "SAME"
30 IF RND(0) = B THEN PRINT "REPEAT"
`, "", "SAME\nREPEAT\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.src, tt.input, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		input string
		msg   string
	}{
		{"Out Of Data", "10 READ A\n", "", "out of DATA"},
		{"Read Text Into Number", "10 DATA \"X\"\n20 READ A\n", "", `READ of "X" into a numeric variable`},
		{"Read Number Into Text", "10 DATA 1\n20 READ A$\n", "", "READ of 1 into a text variable"},
		{"Index Out Of Bounds", "10 DIM A(3)\n20 A(4) = 1\n", "", "array index 4 out of bounds (size 3)"},
		{"Index Zero", "10 PRINT A(0)\n", "", "array index 0 out of bounds"},
		{"End Of Input", "10 INPUT A\n", "", "end of input"},
		{"Null Text", "10 DIM A$(2)\n20 PRINT LEN(A$(1))\n", "", "null text value"},
		{"Bad Number", "10 PRINT VAL(\"X\")\n", "", `invalid number "X"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.src, tt.input, Options{})
			var re *RuntimeError
			require.True(t, errors.As(err, &re), "want RuntimeError, got %v", err)
			assert.Contains(t, re.Msg, tt.msg)
			assert.Equal(t, "run()V", re.Method)
		})
	}
}

func TestOutputBeforeError(t *testing.T) {
	out, err := run(t, "10 PRINT \"BEFORE\"\n20 READ A\n", "", Options{})
	assert.Error(t, err)
	assert.Equal(t, "BEFORE\n", out)
}

func TestStepLimit(t *testing.T) {
	_, err := run(t, "10 GOTO 10\n", "", Options{MaxSteps: 1000})
	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Msg, "step limit of 1000 exceeded")
}

func TestCancel(t *testing.T) {
	class, err := compiler.Compile("10 GOTO 10\n", "Spin", compiler.Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vm, err := Load(class, Options{Output: &bytes.Buffer{}})
	require.NoError(t, err)
	err = vm.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, vm.Halted)
	assert.Equal(t, "Spin", vm.Name())
}

func TestNoInputSource(t *testing.T) {
	class, err := compiler.Compile("10 INPUT A\n", "P", compiler.Options{})
	require.NoError(t, err)
	err = RunClass(context.Background(), class, Options{Output: &bytes.Buffer{}})
	assert.ErrorContains(t, err, "no input available")
}

type promptRecorder struct {
	prompts []string
	answers []string
}

func (p *promptRecorder) ReadLine(prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func TestInputSeesPendingLine(t *testing.T) {
	rec := &promptRecorder{answers: []string{"1", "2"}}
	_, err := run(t, "10 PRINT \"X=\";\n20 INPUT A\n30 INPUT \"Y\"; B\n", "", Options{Input: rec})
	require.NoError(t, err)
	assert.Equal(t, []string{"X=", "Y? "}, rec.prompts)
}

func TestCallSiteCacheIsReused(t *testing.T) {
	class, err := compiler.Compile("10 FOR I = 1 TO 50: PRINT I;: NEXT\n", "P", compiler.Options{})
	require.NoError(t, err)
	vm, err := Load(class, Options{Output: &bytes.Buffer{}, CacheSize: 4})
	require.NoError(t, err)
	require.NoError(t, vm.Run(context.Background()))
	assert.LessOrEqual(t, vm.calls.Len(), 4)
	assert.Greater(t, vm.Steps(), int64(50))
}

func TestZoneWidth(t *testing.T) {
	out, err := run(t, "10 PRINT \"A\", \"B\"\n", "", Options{ZoneWidth: 4})
	require.NoError(t, err)
	assert.Equal(t, "A   B\n", out)
}

// The filler lines put the FOR loop and the subroutine more than 32 KiB of
// bytecode away from the branches that reach them.
func TestFarBranches(t *testing.T) {
	var src strings.Builder
	src.WriteString("10 GOSUB 9000\n20 FOR I = 1 TO 3\n")
	for n := 30; n < 6030; n++ {
		fmt.Fprintf(&src, "%d X = X * 0.5 + 1\n", n)
	}
	src.WriteString("6030 NEXT I\n6040 PRINT I: PRINT X\n6050 END\n9000 PRINT \"SUB\"\n9010 RETURN\n")

	out, err := run(t, src.String(), "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "SUB\n4\n2\n", out)
}
