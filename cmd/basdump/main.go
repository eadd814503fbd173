// Command basdump prints every stage of compiling a BASIC program: the
// tokens, the parsed listing, the code generator's intents and symbol
// tables, and the disassembled run method.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"gobasic/pkg/asm"
	"gobasic/pkg/classfile"
	"gobasic/pkg/compiler"
	"gobasic/pkg/utils"
	"gobasic/pkg/vm"
)

const testSource = `10 FOR I = 1 TO 3
20 GOSUB 100
30 NEXT I
40 END
100 PRINT I
110 RETURN
`

func main() {
	src := testSource
	className := "Demo"
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
		className = utils.ClassName(os.Args[1])
	}

	fmt.Printf("Source:\n%s\n", src)

	// Tokenize
	tokens, err := compiler.Tokenize(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokenize error:", err)
		os.Exit(1)
	}

	fmt.Printf("Tokens (%d)\n", len(tokens))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Line", "Type", "Lexeme"})
	for _, tok := range tokens {
		table.Append([]string{strconv.Itoa(tok.Line), tok.Type.String(), strconv.Quote(tok.Lexeme)})
	}
	table.Render()
	fmt.Println()

	// Parse
	prog, err := compiler.Parse(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}

	fmt.Println("AST")
	fmt.Print(compiler.List(prog))
	fmt.Println()

	// Code generation
	plan, err := compiler.Generate(prog, compiler.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}

	fmt.Println("Intents")
	fmt.Print(plan.Dump())
	fmt.Println()
	printSymbols(plan.Syms)

	// Emit
	template, err := compiler.Options{}.TemplateBytes()
	if err != nil {
		fmt.Fprintln(os.Stderr, "template error:", err)
		os.Exit(1)
	}
	class, err := plan.Emit(className, template)
	if err != nil {
		fmt.Fprintln(os.Stderr, "emit error:", err)
		os.Exit(1)
	}
	cf, err := classfile.Parse(class)
	if err != nil {
		fmt.Fprintln(os.Stderr, "class error:", err)
		os.Exit(1)
	}
	code, err := cf.MethodCode("run", "()V")
	if err != nil {
		fmt.Fprintln(os.Stderr, "class error:", err)
		os.Exit(1)
	}
	listing, err := asm.Disassemble(code.Code, cf.Pool)
	if err != nil {
		fmt.Fprintln(os.Stderr, "disassemble error:", err)
		os.Exit(1)
	}
	fmt.Printf("%s.run()V (%d bytes, max stack %d, max locals %d)\n", className, len(class), code.MaxStack, code.MaxLocals)
	fmt.Print(listing)
}

func printSymbols(syms *compiler.SymbolTable) {
	fmt.Println("Slots")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Slot", "Name", "Descriptor", "Hidden"})
	for _, s := range syms.Slots() {
		table.Append([]string{strconv.Itoa(s.Index), s.Key, s.Descriptor(), strconv.FormatBool(s.Hidden)})
	}
	table.Render()
	fmt.Println()

	if arrays := syms.Arrays(); len(arrays) > 0 {
		fmt.Println("Arrays")
		table = tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name", "Dims", "DIM", "Line"})
		for _, a := range arrays {
			table.Append([]string{a.Dim.Name, strconv.Itoa(a.Dim.Dims), strconv.FormatBool(a.Dimmed), a.Label})
		}
		table.Render()
		fmt.Println()
	}

	fmt.Println("Branch targets")
	table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Line"})
	for _, l := range syms.LiveTargets() {
		table.Append([]string{l})
	}
	table.Render()
	fmt.Println()

	if data := syms.Data(); len(data) > 0 {
		lines := syms.DataLines()
		starts := make(map[int]int, len(lines))
		for line, offset := range lines {
			starts[offset] = line
		}
		fmt.Println("DATA")
		table = tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Offset", "Line", "Value"})
		for i := range data {
			line := ""
			if n, ok := starts[i]; ok {
				line = strconv.Itoa(n)
			}
			table.Append([]string{strconv.Itoa(i), line, dataValue(data[i])})
		}
		table.Render()
		fmt.Println()
	}
}

func dataValue(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return vm.FormatNumber(v.(float32))
}
