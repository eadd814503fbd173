package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"gobasic/pkg/asm"
	"gobasic/pkg/classfile"
	"gobasic/pkg/compiler"
	"gobasic/pkg/vm"
)

func TestCompilerAndVM(t *testing.T) {
	// 1. Define BASIC source
	source := `
10 REM FIBONACCI INTO AN ARRAY
20 DIM F(20)
30 F(1) = 1: F(2) = 1
40 FOR I = 3 TO 20
50 F(I) = F(I - 1) + F(I - 2)
60 NEXT I
70 PRINT F(20)
80 READ N$, K
90 GOSUB 200
100 END
200 PRINT N$; " "; F(K)
210 RETURN
220 DATA "TENTH", 10
`

	// 2. Tokenize and Parse
	tokens, err := compiler.Tokenize(source)
	if err != nil {
		t.Fatalf("Tokenizing failed: %v", err)
	}
	if len(tokens) == 0 {
		t.Fatalf("No tokens")
	}

	prog, err := compiler.Parse(source)
	if err != nil {
		t.Fatalf("Parsing failed: %v", err)
	}

	// 3. Generate the emission plan
	plan, err := compiler.Generate(prog, compiler.Options{})
	if err != nil {
		t.Fatalf("Code generation failed: %v", err)
	}

	t.Logf("Plan:\n%s", plan.Dump())

	// 4. Emit into the built-in template
	template, err := compiler.Options{}.TemplateBytes()
	if err != nil {
		t.Fatalf("Template failed: %v", err)
	}
	class, err := plan.Emit("Fib", template)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	// 5. Load the class
	cf, err := classfile.Parse(class)
	if err != nil {
		t.Fatalf("Class does not parse: %v", err)
	}
	var output bytes.Buffer
	machine, err := vm.New(cf, vm.Options{Output: &output, Seed: 1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// 6. Run
	if err := machine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 7. Assertions
	if !machine.Halted {
		t.Errorf("VM did not halt")
	}
	if got, want := output.String(), "6765\nTENTH 55\n"; got != want {
		t.Errorf("Expected output %q, got %q", want, got)
	}

	code, err := cf.MethodCode("run", "()V")
	if err != nil {
		t.Fatalf("run() missing: %v", err)
	}
	listing, err := asm.Disassemble(code.Code, cf.Pool)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if strings.Count(listing, "lookupswitch") != 1 {
		t.Errorf("Expected one RETURN dispatch in:\n%s", listing)
	}
}

func TestGuessingGame(t *testing.T) {
	source := `10 PRINT "GUESS"
20 INPUT G
30 IF G = 7 THEN 60
40 PRINT "NO"
50 GOTO 20
60 PRINT "YES"
`
	class, err := compiler.Compile(source, "Guess", compiler.Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var output bytes.Buffer
	err = vm.RunClass(context.Background(), class, vm.Options{
		Output: &output,
		Input:  vm.NewStreamReader(strings.NewReader("3\nabc\n7\n")),
		Seed:   1,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := "GUESS\nNO\n?Redo from start\nYES\n"
	if output.String() != want {
		t.Errorf("Expected output %q, got %q", want, output.String())
	}
}
