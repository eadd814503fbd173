package compiler

import (
	"fmt"
	"strings"

	"gobasic/pkg/asm"
)

// FuncKind selects how a call is emitted.
type FuncKind int

const (
	RuntimeFunc FuncKind = iota // invokevirtual on the program class, inherited from the runtime
	StaticFunc                  // invokestatic on a JDK class
	VirtualFunc                 // invokevirtual on the first argument
)

// FunctionDef describes a built-in function and how to call it.
type FunctionDef struct {
	Name   string
	Return DataType
	Args   []DataType
	Kind   FuncKind

	// JDK target for StaticFunc and VirtualFunc.
	Owner  string
	Method string
	Desc   string

	// Conversions applied to the argument before the call and to the
	// result after it.
	Before []asm.Opcode
	After  []asm.Opcode
}

// RuntimeMethod is the runtime method implementing a RuntimeFunc.
func (f *FunctionDef) RuntimeMethod() string {
	return "fn" + strings.ReplaceAll(f.Name, "$", "_DOLLAR")
}

// Descriptor is the JVM method descriptor of the call.
func (f *FunctionDef) Descriptor() string {
	if f.Kind != RuntimeFunc {
		return f.Desc
	}
	var b strings.Builder
	b.WriteByte('(')
	for _, a := range f.Args {
		b.WriteString(a.Descriptor())
	}
	b.WriteByte(')')
	b.WriteString(f.Return.Descriptor())
	return b.String()
}

func runtimeFn(name string, ret DataType, args ...DataType) *FunctionDef {
	return &FunctionDef{Name: name, Return: ret, Args: args, Kind: RuntimeFunc}
}

func mathFn(name, method string) *FunctionDef {
	return &FunctionDef{
		Name: name, Return: FloatType, Args: []DataType{FloatType}, Kind: StaticFunc,
		Owner: "java/lang/Math", Method: method, Desc: "(D)D",
		Before: []asm.Opcode{asm.F2D}, After: []asm.Opcode{asm.D2F},
	}
}

// Functions is the built-in function table, searched in order.
var Functions = []*FunctionDef{
	runtimeFn("INT", FloatType, FloatType),
	runtimeFn("SIN", FloatType, FloatType),
	runtimeFn("RND", FloatType, FloatType),
	runtimeFn("TAB", StringType, FloatType),

	{Name: "ABS", Return: FloatType, Args: []DataType{FloatType}, Kind: StaticFunc,
		Owner: "java/lang/Math", Method: "abs", Desc: "(F)F"},
	{Name: "SGN", Return: FloatType, Args: []DataType{FloatType}, Kind: StaticFunc,
		Owner: "java/lang/Math", Method: "signum", Desc: "(F)F"},
	mathFn("SQR", "sqrt"),
	mathFn("EXP", "exp"),
	mathFn("LOG", "log"),
	mathFn("ATN", "atan"),
	{Name: "LEN", Return: FloatType, Args: []DataType{StringType}, Kind: VirtualFunc,
		Owner: "java/lang/String", Method: "length", Desc: "()I",
		After: []asm.Opcode{asm.I2F}},
	{Name: "VAL", Return: FloatType, Args: []DataType{StringType}, Kind: StaticFunc,
		Owner: "java/lang/Float", Method: "parseFloat", Desc: "(Ljava/lang/String;)F"},
	{Name: "CHR$", Return: StringType, Args: []DataType{FloatType}, Kind: StaticFunc,
		Owner: "java/lang/String", Method: "valueOf", Desc: "(C)Ljava/lang/String;",
		Before: []asm.Opcode{asm.F2I, asm.I2C}},
}

// FunctionNames lists the distinct function names, for the tokenizer.
func FunctionNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, f := range Functions {
		if !seen[f.Name] {
			seen[f.Name] = true
			names = append(names, f.Name)
		}
	}
	return names
}

// LookupFunction resolves a call by name, then arity, then argument types.
func LookupFunction(name string, args []DataType) (*FunctionDef, error) {
	known, arity := false, false
	for _, f := range Functions {
		if f.Name != name {
			continue
		}
		known = true
		if len(f.Args) != len(args) {
			continue
		}
		arity = true
		match := true
		for i, a := range f.Args {
			if a != args[i] {
				match = false
				break
			}
		}
		if match {
			return f, nil
		}
	}
	switch {
	case !known:
		return nil, fmt.Errorf("unknown function %s", name)
	case !arity:
		return nil, fmt.Errorf("%s called with %d arguments", name, len(args))
	}
	return nil, fmt.Errorf("%s does not accept %s", name, typeList(args))
}

func typeList(ts []DataType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
