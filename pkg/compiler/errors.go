package compiler

import "fmt"

// TokenizingError reports a character sequence that is not a token.
type TokenizingError struct {
	Line int
	Msg  string
}

func (e *TokenizingError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ParseError reports a syntax or type error. Label is empty when the
// error occurs before the line label was read.
type ParseError struct {
	Label   string
	Line    int
	Msg     string
	Snippet string
}

func (e *ParseError) Error() string {
	where := fmt.Sprintf("line %d", e.Line)
	if e.Label != "" {
		where = fmt.Sprintf("line %d (label %s)", e.Line, e.Label)
	}
	return fmt.Sprintf("%s: %s\n  |> %s", where, e.Msg, e.Snippet)
}

// CodeGenError reports a program that parses but cannot be compiled.
type CodeGenError struct {
	Label string
	Msg   string
}

func (e *CodeGenError) Error() string {
	if e.Label == "" {
		return e.Msg
	}
	return fmt.Sprintf("label %s: %s", e.Label, e.Msg)
}
