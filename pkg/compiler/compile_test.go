package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobasic/pkg/asm"
	"gobasic/pkg/classfile"
)

func compileClass(t *testing.T, src, name string, opts Options) *classfile.ClassFile {
	t.Helper()
	out, err := Compile(src, name, opts)
	require.NoError(t, err)
	cf, err := classfile.Parse(out)
	require.NoError(t, err)
	return cf
}

func TestCompileRenamesTemplate(t *testing.T) {
	cf := compileClass(t, "10 PRINT \"HELLO\"\n20 END\n", "Hello", Options{})

	name, err := cf.Name()
	require.NoError(t, err)
	assert.Equal(t, "Hello", name)
	super, err := cf.SuperName()
	require.NoError(t, err)
	assert.Equal(t, DefaultRuntimeClass, super)

	code, err := cf.MethodCode("run", "()V")
	require.NoError(t, err)
	insns, err := asm.Decode(code.Code)
	require.NoError(t, err)
	require.NotEmpty(t, insns)
	assert.Equal(t, asm.RETURN, insns[len(insns)-1].Op)
	assert.EqualValues(t, 1, code.MaxLocals)

	listing, err := asm.Disassemble(code.Code, cf.Pool)
	require.NoError(t, err)
	assert.Contains(t, listing, "Hello.print(Ljava/lang/String;)V")
	assert.Contains(t, listing, "Hello.println()V")
}

func TestCompileCustomRuntimeClass(t *testing.T) {
	cf := compileClass(t, "10 END", "P", Options{RuntimeClass: "my/Runtime"})
	super, err := cf.SuperName()
	require.NoError(t, err)
	assert.Equal(t, "my/Runtime", super)
}

// A template holding the runtime itself, with no runtime superclass.
func TestCompileSelfContainedTemplate(t *testing.T) {
	tpl, err := classfile.BuiltinTemplate("java/lang/Object")
	require.NoError(t, err)
	cf := compileClass(t, "10 PRINT \"X\"\n", "P", Options{Template: tpl})

	name, err := cf.Name()
	require.NoError(t, err)
	assert.Equal(t, "P", name)
	super, err := cf.SuperName()
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", super)

	code, err := cf.MethodCode("run", "()V")
	require.NoError(t, err)
	listing, err := asm.Disassemble(code.Code, cf.Pool)
	require.NoError(t, err)
	assert.Contains(t, listing, "P.print(Ljava/lang/String;)V")
}

func TestCompileLoopHasStackMap(t *testing.T) {
	cf := compileClass(t, "10 FOR I = 1 TO 3\n20 PRINT I\n30 NEXT I\n", "Loop", Options{})
	code, err := cf.MethodCode("run", "()V")
	require.NoError(t, err)
	_, ok := cf.FindAttribute(code.Attributes, "StackMapTable")
	assert.True(t, ok)
	// this, I and the two hidden loop slots
	assert.EqualValues(t, 4, code.MaxLocals)
}

func TestCompileOldClassVersionHasNoStackMap(t *testing.T) {
	cf := compileClass(t, "10 FOR I = 1 TO 3\n20 NEXT I\n", "Old", Options{ClassVersion: 49})
	assert.EqualValues(t, 49, cf.Major)
	code, err := cf.MethodCode("run", "()V")
	require.NoError(t, err)
	_, ok := cf.FindAttribute(code.Attributes, "StackMapTable")
	assert.False(t, ok)
}

func TestCompileSubroutines(t *testing.T) {
	src := `10 GOSUB 100
20 GOSUB 100
30 PRINT "DONE"
40 END
100 PRINT "SUB"
110 RETURN
`
	cf := compileClass(t, src, "Subs", Options{})
	code, err := cf.MethodCode("run", "()V")
	require.NoError(t, err)
	insns, err := asm.Decode(code.Code)
	require.NoError(t, err)
	var switches int
	for _, in := range insns {
		if in.Op == asm.TABLESWITCH || in.Op == asm.LOOKUPSWITCH {
			switches++
			assert.Len(t, in.Targets, 2)
		}
	}
	assert.Equal(t, 1, switches)
}

func TestCompileMixedGosubNesting(t *testing.T) {
	_, err := Compile("10 GOSUB 30\n20 GOTO 30\n30 PRINT\n40 RETURN\n", "Bad", Options{})
	var ce *CodeGenError
	require.True(t, errors.As(err, &ce), "want CodeGenError, got %v", err)
	assert.Equal(t, "30", ce.Label)
	assert.Contains(t, ce.Msg, "different GOSUB nesting")
}

func TestCompileFoldCase(t *testing.T) {
	_, err := Compile("10 print \"x\"", "P", Options{})
	var te *TokenizingError
	assert.True(t, errors.As(err, &te))

	_, err = Compile("10 print \"x\"", "P", Options{FoldCase: true})
	assert.NoError(t, err)
}

func TestCompileBadTemplate(t *testing.T) {
	_, err := Compile("10 END", "P", Options{Template: []byte{0xca, 0xfe}})
	var ce *CodeGenError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Msg, "reading template")
}

func TestCompileErrorsPassThrough(t *testing.T) {
	_, err := Compile("10 GOTO 20", "P", Options{})
	var ce *CodeGenError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "label 10: unknown line 20", ce.Error())

	_, err = Compile("10 X = ", "P", Options{})
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestDumpListsIntents(t *testing.T) {
	p := plan(t, "10 A = 1\n20 GOTO 10")
	dump := p.Dump()
	assert.Contains(t, dump, "; prologue")
	assert.Contains(t, dump, "line 10:")
	assert.Contains(t, dump, "goto L")
}
