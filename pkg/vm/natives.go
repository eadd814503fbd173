package vm

import (
	"errors"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"unicode/utf16"
)

// native implements a method in Go. this is the receiver of virtual
// calls and nil for static ones.
type native func(vm *VM, this any, args []any) (any, error)

// runtimeNatives are the methods a compiled program inherits from its
// runtime class, keyed by name and descriptor.
var runtimeNatives = map[string]native{
	"print(Ljava/lang/String;)V": func(vm *VM, _ any, args []any) (any, error) {
		vm.print(stringValue(args[0]))
		return nil, nil
	},
	"print(F)V": func(vm *VM, _ any, args []any) (any, error) {
		vm.print(FormatNumber(args[0].(float32)))
		return nil, nil
	},
	"println()V": func(vm *VM, _ any, _ []any) (any, error) {
		vm.println()
		return nil, nil
	},
	"nextPrintZone()V": func(vm *VM, _ any, _ []any) (any, error) {
		w := vm.opts.ZoneWidth
		vm.print(strings.Repeat(" ", w-vm.column%w))
		return nil, nil
	},
	"inputFLOAT()F": func(vm *VM, _ any, _ []any) (any, error) {
		for {
			s, err := vm.readAnswer()
			if err != nil {
				return nil, err
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 32); err == nil {
				return float32(f), nil
			}
			vm.print("?Redo from start")
			vm.println()
		}
	},
	"inputSTRING()Ljava/lang/String;": func(vm *VM, _ any, _ []any) (any, error) {
		s, err := vm.readAnswer()
		if err != nil {
			return nil, err
		}
		return s, nil
	},
	"readFLOAT()F": func(vm *VM, _ any, _ []any) (any, error) {
		v, err := vm.nextData()
		if err != nil {
			return nil, err
		}
		f, ok := v.(float32)
		if !ok {
			return nil, runtimeErrorf("READ of %q into a numeric variable", stringValue(v))
		}
		return f, nil
	},
	"readSTRING()Ljava/lang/String;": func(vm *VM, _ any, _ []any) (any, error) {
		v, err := vm.nextData()
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, runtimeErrorf("READ of %s into a text variable", FormatNumber(v.(float32)))
		}
		return s, nil
	},
	"runtimeError(Ljava/lang/String;)V": func(_ *VM, _ any, args []any) (any, error) {
		return nil, runtimeErrorf("%s", stringValue(args[0]))
	},
	"fnINT(F)F": func(_ *VM, _ any, args []any) (any, error) {
		return float32(f2i(args[0].(float32))), nil
	},
	"fnSIN(F)F": func(_ *VM, _ any, args []any) (any, error) {
		deg := float64(args[0].(float32))
		return float32(math.Sin(deg * math.Pi / 180)), nil
	},
	"fnRND(F)F": func(vm *VM, _ any, args []any) (any, error) {
		f := args[0].(float32)
		if f < 0 {
			vm.rng = rand.New(rand.NewSource(int64(f2i(f))))
		}
		if f == 0 {
			return vm.prevRandom, nil
		}
		vm.prevRandom = vm.rng.Float32()
		return vm.prevRandom, nil
	},
	"fnTAB(F)Ljava/lang/String;": func(vm *VM, _ any, args []any) (any, error) {
		f := args[0].(float32)
		var b strings.Builder
		for i := vm.column; float32(i) < f; i++ {
			b.WriteByte(' ')
		}
		return b.String(), nil
	},
}

func mathDD(fn func(float64) float64) native {
	return func(_ *VM, _ any, args []any) (any, error) {
		return fn(args[0].(float64)), nil
	}
}

// jdkNatives are the library methods compiled programs call directly,
// keyed by owner, name and descriptor.
var jdkNatives = map[string]native{
	"java/lang/Object.<init>()V": func(*VM, any, []any) (any, error) { return nil, nil },

	"java/lang/Math.pow(DD)D": func(_ *VM, _ any, args []any) (any, error) {
		return math.Pow(args[0].(float64), args[1].(float64)), nil
	},
	"java/lang/Math.sqrt(D)D": mathDD(math.Sqrt),
	"java/lang/Math.exp(D)D":  mathDD(math.Exp),
	"java/lang/Math.log(D)D":  mathDD(math.Log),
	"java/lang/Math.atan(D)D": mathDD(math.Atan),
	"java/lang/Math.abs(F)F": func(_ *VM, _ any, args []any) (any, error) {
		return float32(math.Abs(float64(args[0].(float32)))), nil
	},
	"java/lang/Math.signum(F)F": func(_ *VM, _ any, args []any) (any, error) {
		f := args[0].(float32)
		switch {
		case f > 0:
			return float32(1), nil
		case f < 0:
			return float32(-1), nil
		}
		return f, nil
	},

	"java/lang/String.concat(Ljava/lang/String;)Ljava/lang/String;": func(_ *VM, this any, args []any) (any, error) {
		s, err := receiver(this)
		if err != nil {
			return nil, err
		}
		if args[0] == nil {
			return nil, nullText()
		}
		return s + args[0].(string), nil
	},
	"java/lang/String.compareTo(Ljava/lang/String;)I": func(_ *VM, this any, args []any) (any, error) {
		s, err := receiver(this)
		if err != nil {
			return nil, err
		}
		if args[0] == nil {
			return nil, nullText()
		}
		return compareUTF16(s, args[0].(string)), nil
	},
	"java/lang/String.length()I": func(_ *VM, this any, _ []any) (any, error) {
		s, err := receiver(this)
		if err != nil {
			return nil, err
		}
		return int32(len(utf16.Encode([]rune(s)))), nil
	},
	"java/lang/String.valueOf(C)Ljava/lang/String;": func(_ *VM, _ any, args []any) (any, error) {
		return string(utf16.Decode([]uint16{uint16(args[0].(int32))})), nil
	},

	"java/lang/Float.valueOf(F)Ljava/lang/Float;": func(_ *VM, _ any, args []any) (any, error) {
		return args[0].(float32), nil
	},
	"java/lang/Float.parseFloat(Ljava/lang/String;)F": func(_ *VM, _ any, args []any) (any, error) {
		if args[0] == nil {
			return nil, nullText()
		}
		s := args[0].(string)
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return nil, runtimeErrorf("invalid number %q", s)
		}
		return float32(f), nil
	},
}

func nullText() error { return runtimeErrorf("null text value") }

func receiver(this any) (string, error) {
	if this == nil {
		return "", nullText()
	}
	return this.(string), nil
}

// stringValue renders a text value, "null" for an unassigned element of a
// text array.
func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return "null"
	case string:
		return s
	case float32:
		return FormatNumber(s)
	}
	return "?"
}

// compareUTF16 orders strings by UTF-16 code units, returning the
// difference of the first mismatch or of the lengths.
func compareUTF16(a, b string) int32 {
	x, y := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(x) && i < len(y); i++ {
		if x[i] != y[i] {
			return int32(x[i]) - int32(y[i])
		}
	}
	return int32(len(x) - len(y))
}

// f2i converts with the JVM's saturating rules.
func f2i(f float32) int32 {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func (vm *VM) print(s string) {
	io.WriteString(vm.out, s)
	for _, r := range s {
		if r == '\n' {
			vm.column = 0
			vm.line.Reset()
			continue
		}
		vm.column++
		vm.line.WriteRune(r)
	}
}

func (vm *VM) println() {
	io.WriteString(vm.out, "\n")
	vm.column = 0
	vm.line.Reset()
}

func (vm *VM) readAnswer() (string, error) {
	if vm.opts.Input == nil {
		return "", runtimeErrorf("INPUT with no input available")
	}
	s, err := vm.opts.Input.ReadLine(vm.line.String())
	if errors.Is(err, io.EOF) {
		return "", runtimeErrorf("end of input")
	}
	if err != nil {
		return "", err
	}
	vm.column = 0
	vm.line.Reset()
	return s, nil
}

func (vm *VM) nextData() (any, error) {
	ptr := int(vm.nextDataPtr)
	if ptr < 0 || ptr >= len(vm.data) {
		return nil, runtimeErrorf("out of DATA")
	}
	vm.nextDataPtr++
	return vm.data[ptr], nil
}
