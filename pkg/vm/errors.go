package vm

import "fmt"

// RuntimeError stops a running program. It is raised by runtimeError(),
// by the runtime natives (out of DATA, bad array index, ...) and when
// the step limit is exceeded.
type RuntimeError struct {
	Msg    string
	Method string // method executing when the error was raised
	PC     int    // bytecode offset within Method, -1 if unknown
}

func (e *RuntimeError) Error() string {
	if e.Method == "" {
		return "runtime error: " + e.Msg
	}
	return fmt.Sprintf("runtime error: %s (in %s at pc %d)", e.Msg, e.Method, e.PC)
}

func runtimeErrorf(format string, args ...any) *RuntimeError {
	return &RuntimeError{Msg: fmt.Sprintf(format, args...), PC: -1}
}
