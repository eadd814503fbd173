package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Parser reads tokens from a Tokenizer and builds a Program.
//
// Grammar:
//
//	program    = { line } EOF
//	line       = NUMBER statement { ":" statement } (EOL | EOF)
//	statement  = PRINT { expression | ";" | "," }
//	           | GO TO NUMBER | GO SUB NUMBER | RETURN | END | STOP
//	           | ON expression GO TO NUMBER { "," NUMBER }
//	           | IF expression THEN (NUMBER | statement)
//	           | [LET] variable "=" expression
//	           | DIM NAME "(" expression { "," expression } ")" { "," ... }
//	           | FOR NAME "=" expression TO expression [STEP expression]
//	           | NEXT [NAME { "," NAME }]
//	           | INPUT [STRING ";"] variable { "," variable }
//	           | DATA ["-"] (NUMBER | STRING) { "," ... }
//	           | READ variable { "," variable }
//	           | RESTORE [NUMBER]
//	           | REM <rest of line>
//	variable   = NAME [ "(" expression { "," expression } ")" ]
//	expression = atom { binop expression }     (precedence climbing)
//	atom       = NUMBER | STRING | variable | FUNCTION "(" args ")"
//	           | "(" expression ")" | ("+" | "-") expression
type Parser struct {
	tz          *Tokenizer
	sourceLines []string
	label       string // label of the line being parsed
}

func NewParser(src string) *Parser {
	return &Parser{tz: NewTokenizer(src), sourceLines: strings.Split(src, "\n")}
}

// Parse parses a whole program.
func Parse(src string) (*Program, error) {
	return NewParser(src).Parse()
}

// fmtError builds a ParseError located at tok.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	snippet := "<source unavailable>"
	if i := tok.Line - 1; i >= 0 && i < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[i])
	}
	return &ParseError{Label: p.label, Line: tok.Line, Msg: fmt.Sprintf(format, args...), Snippet: snippet}
}

func (p *Parser) peek() (Token, error) { return p.tz.Peek() }
func (p *Parser) next() (Token, error) { return p.tz.Next() }

// accept consumes the next token if it has the given type and text.
func (p *Parser) accept(tt TokenType, lexeme string) (bool, error) {
	tok, err := p.peek()
	if err != nil {
		return false, err
	}
	if !tok.Is(tt, lexeme) {
		return false, nil
	}
	_, err = p.next()
	return true, err
}

func (p *Parser) expect(tt TokenType, lexeme string) (Token, error) {
	tok, err := p.next()
	if err != nil {
		return tok, err
	}
	if !tok.Is(tt, lexeme) {
		return tok, p.fmtError(tok, "expected %s, got %s", lexeme, describe(tok))
	}
	return tok, nil
}

func describe(tok Token) string {
	switch tok.Type {
	case EOF, EOL:
		return tok.Type.String()
	case STRING:
		return fmt.Sprintf("string %q", tok.Lexeme)
	}
	return fmt.Sprintf("%s %q", strings.ToLower(tok.Type.String()), tok.Lexeme)
}

func endOfStatement(tok Token) bool {
	return tok.Type == EOL || tok.Type == EOF || tok.Is(SYMBOL, ":")
}

// Parse reads every line and returns them sorted by label.
func (p *Parser) Parse() (*Program, error) {
	prog := &Program{}
	seen := make(map[int]int)
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == EOF {
			break
		}
		if tok.Type == EOL {
			continue
		}
		p.label = ""
		label, err := p.lineLabel(tok)
		if err != nil {
			return nil, err
		}
		p.label = label
		n, _ := strconv.Atoi(label)
		if first, dup := seen[n]; dup {
			return nil, p.fmtError(tok, "duplicate line label %s (first used on line %d)", label, first)
		}
		seen[n] = tok.Line

		line := &Line{Label: label, SourceLine: tok.Line}
		for {
			stmt, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			line.Stmts = append(line.Stmts, stmt)
			tok, err := p.next()
			if err != nil {
				return nil, err
			}
			if tok.Is(SYMBOL, ":") {
				continue
			}
			if tok.Type != EOL && tok.Type != EOF {
				return nil, p.fmtError(tok, "unexpected %s after statement", describe(tok))
			}
			break
		}
		prog.Lines = append(prog.Lines, line)
	}
	sort.SliceStable(prog.Lines, func(i, j int) bool { return prog.Lines[i].Number() < prog.Lines[j].Number() })
	return prog, nil
}

// lineLabel validates a line label and returns its canonical text.
func (p *Parser) lineLabel(tok Token) (string, error) {
	if tok.Type != NUMBER {
		return "", p.fmtError(tok, "expected line label, got %s", describe(tok))
	}
	n, err := strconv.Atoi(tok.Lexeme)
	if err != nil || n <= 0 {
		return "", p.fmtError(tok, "invalid line label %q", tok.Lexeme)
	}
	return strconv.Itoa(n), nil
}

func (p *Parser) target() (string, error) {
	tok, err := p.next()
	if err != nil {
		return "", err
	}
	return p.lineLabel(tok)
}

func (p *Parser) parseStatement() (Stmt, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Type == NAME {
		return p.parseAssignment(tok)
	}
	if tok.Type != KEYWORD {
		return nil, p.fmtError(tok, "expected statement, got %s", describe(tok))
	}

	switch tok.Lexeme {
	case "PRINT":
		return p.parsePrint()
	case "GO":
		return p.parseGo()
	case "ON":
		return p.parseOnGoto(tok)
	case "RETURN":
		return &Return{}, nil
	case "END":
		return &End{}, nil
	case "STOP":
		return &Stop{}, nil
	case "IF":
		return p.parseIf(tok)
	case "LET":
		name, err := p.next()
		if err != nil {
			return nil, err
		}
		if name.Type != NAME {
			return nil, p.fmtError(name, "expected variable after LET, got %s", describe(name))
		}
		return p.parseAssignment(name)
	case "DIM":
		return p.parseDim()
	case "FOR":
		return p.parseFor()
	case "NEXT":
		return p.parseNext()
	case "INPUT":
		return p.parseInput()
	case "DATA":
		return p.parseData()
	case "READ":
		vars, err := p.varList()
		if err != nil {
			return nil, err
		}
		return &Read{Vars: vars}, nil
	case "RESTORE":
		next, err := p.peek()
		if err != nil {
			return nil, err
		}
		if endOfStatement(next) {
			return &Restore{}, nil
		}
		label, err := p.target()
		if err != nil {
			return nil, err
		}
		return &Restore{Target: label}, nil
	case "REM":
		return &Rem{Text: p.tz.ReadTillEndOfLine()}, nil
	}
	return nil, p.fmtError(tok, "unexpected keyword %s", tok.Lexeme)
}

func (p *Parser) parsePrint() (Stmt, error) {
	stmt := &Print{}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if endOfStatement(tok) {
			return stmt, nil
		}
		switch {
		case tok.Is(SYMBOL, ";"):
			_, err = p.next()
			stmt.Items = append(stmt.Items, PrintItem{Sep: SepNone})
		case tok.Is(SYMBOL, ","):
			_, err = p.next()
			stmt.Items = append(stmt.Items, PrintItem{Sep: SepZone})
		default:
			if n := len(stmt.Items); n > 0 && stmt.Items[n-1].Expr != nil {
				stmt.Items = append(stmt.Items, PrintItem{Sep: SepSpace})
			}
			var e Expr
			e, err = p.parseExpression()
			stmt.Items = append(stmt.Items, PrintItem{Expr: e})
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseGo() (Stmt, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	switch {
	case tok.Is(KEYWORD, "TO"):
		label, err := p.target()
		if err != nil {
			return nil, err
		}
		return &Goto{Target: label}, nil
	case tok.Is(KEYWORD, "SUB"):
		label, err := p.target()
		if err != nil {
			return nil, err
		}
		return &Gosub{Target: label}, nil
	}
	return nil, p.fmtError(tok, "expected TO or SUB after GO, got %s", describe(tok))
}

func (p *Parser) parseOnGoto(on Token) (Stmt, error) {
	e, err := p.numeric(on, "ON")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KEYWORD, "GO"); err != nil {
		return nil, err
	}
	if _, err := p.expect(KEYWORD, "TO"); err != nil {
		return nil, err
	}
	stmt := &OnGoto{Expr: e}
	for {
		label, err := p.target()
		if err != nil {
			return nil, err
		}
		stmt.Targets = append(stmt.Targets, label)
		if ok, err := p.accept(SYMBOL, ","); err != nil || !ok {
			return stmt, err
		}
	}
}

func (p *Parser) parseIf(tok Token) (Stmt, error) {
	cond, err := p.numeric(tok, "IF")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(KEYWORD, "THEN"); err != nil {
		return nil, err
	}
	next, err := p.peek()
	if err != nil {
		return nil, err
	}
	if next.Type == NUMBER {
		label, err := p.target()
		if err != nil {
			return nil, err
		}
		return &If{Cond: cond, Then: &Goto{Target: label}}, nil
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &If{Cond: cond, Then: then}, nil
}

func (p *Parser) parseAssignment(name Token) (Stmt, error) {
	v, err := p.parseVariable(name)
	if err != nil {
		return nil, err
	}
	eq, err := p.expect(SYMBOL, "=")
	if err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if value.Type() != v.Type {
		return nil, p.fmtError(eq, "cannot assign %s to %s variable %s", value.Type(), v.Type, v.Name)
	}
	return &Let{Var: v, Value: value}, nil
}

func (p *Parser) parseDim() (Stmt, error) {
	stmt := &Dim{}
	for {
		name, err := p.next()
		if err != nil {
			return nil, err
		}
		if name.Type != NAME {
			return nil, p.fmtError(name, "expected array name, got %s", describe(name))
		}
		open, err := p.expect(SYMBOL, "(")
		if err != nil {
			return nil, err
		}
		sizes, err := p.indexes(open)
		if err != nil {
			return nil, err
		}
		stmt.Arrays = append(stmt.Arrays, ArrayDecl{Name: name.Lexeme, Type: TypeOfName(name.Lexeme), Sizes: sizes})
		if ok, err := p.accept(SYMBOL, ","); err != nil || !ok {
			return stmt, err
		}
	}
}

func (p *Parser) parseFor() (Stmt, error) {
	name, err := p.next()
	if err != nil {
		return nil, err
	}
	if name.Type != NAME || TypeOfName(name.Lexeme) != FloatType {
		return nil, p.fmtError(name, "FOR needs a numeric variable, got %s", describe(name))
	}
	eq, err := p.expect(SYMBOL, "=")
	if err != nil {
		return nil, err
	}
	stmt := &For{Var: VarName{Name: name.Lexeme, Type: FloatType}}
	if stmt.Start, err = p.numeric(eq, "FOR"); err != nil {
		return nil, err
	}
	to, err := p.expect(KEYWORD, "TO")
	if err != nil {
		return nil, err
	}
	if stmt.End, err = p.numeric(to, "TO"); err != nil {
		return nil, err
	}
	step, err := p.peek()
	if err != nil {
		return nil, err
	}
	if step.Is(KEYWORD, "STEP") {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		if stmt.Step, err = p.numeric(step, "STEP"); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseNext() (Stmt, error) {
	stmt := &Next{}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if endOfStatement(tok) {
		return stmt, nil
	}
	for {
		name, err := p.next()
		if err != nil {
			return nil, err
		}
		if name.Type != NAME || TypeOfName(name.Lexeme) != FloatType {
			return nil, p.fmtError(name, "NEXT needs a numeric variable, got %s", describe(name))
		}
		stmt.Vars = append(stmt.Vars, VarName{Name: name.Lexeme, Type: FloatType})
		if ok, err := p.accept(SYMBOL, ","); err != nil || !ok {
			return stmt, err
		}
	}
}

func (p *Parser) parseInput() (Stmt, error) {
	stmt := &Input{}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Type == STRING {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		if _, err := p.expect(SYMBOL, ";"); err != nil {
			return nil, err
		}
		stmt.Prompt = tok.Lexeme
	}
	if stmt.Vars, err = p.varList(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseData() (Stmt, error) {
	stmt := &Data{}
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		negative := false
		if tok.Is(SYMBOL, "-") {
			negative = true
			if tok, err = p.next(); err != nil {
				return nil, err
			}
		}
		switch {
		case tok.Type == NUMBER:
			v, err := p.number(tok)
			if err != nil {
				return nil, err
			}
			if negative {
				v = -v
			}
			stmt.Values = append(stmt.Values, &NumberLit{Value: v})
		case tok.Type == STRING && !negative:
			stmt.Values = append(stmt.Values, &StringLit{Value: tok.Lexeme})
		default:
			return nil, p.fmtError(tok, "expected DATA constant, got %s", describe(tok))
		}
		if ok, err := p.accept(SYMBOL, ","); err != nil || !ok {
			return stmt, err
		}
	}
}

func (p *Parser) varList() ([]VarName, error) {
	var vars []VarName
	for {
		name, err := p.next()
		if err != nil {
			return nil, err
		}
		if name.Type != NAME {
			return nil, p.fmtError(name, "expected variable, got %s", describe(name))
		}
		v, err := p.parseVariable(name)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
		if ok, err := p.accept(SYMBOL, ","); err != nil || !ok {
			return vars, err
		}
	}
}

// parseVariable reads the optional index list after a NAME token.
func (p *Parser) parseVariable(name Token) (VarName, error) {
	v := VarName{Name: name.Lexeme, Type: TypeOfName(name.Lexeme)}
	tok, err := p.peek()
	if err != nil {
		return v, err
	}
	if tok.Is(SYMBOL, "(") {
		if _, err := p.next(); err != nil {
			return v, err
		}
		if v.Indexes, err = p.indexes(tok); err != nil {
			return v, err
		}
	}
	return v, nil
}

// indexes reads numeric expressions up to the closing parenthesis.
func (p *Parser) indexes(open Token) ([]Expr, error) {
	var out []Expr
	for {
		e, err := p.numeric(open, "index")
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Is(SYMBOL, ")") {
			return out, nil
		}
		if !tok.Is(SYMBOL, ",") {
			return nil, p.fmtError(tok, "expected , or ), got %s", describe(tok))
		}
	}
}

// numeric parses an expression that must be a number.
func (p *Parser) numeric(at Token, what string) (Expr, error) {
	e, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if e.Type() != FloatType {
		return nil, p.fmtError(at, "%s needs a numeric expression, got %s", what, e.Type())
	}
	return e, nil
}

func (p *Parser) number(tok Token) (float32, error) {
	v, err := strconv.ParseFloat(tok.Lexeme, 32)
	if err != nil {
		return 0, p.fmtError(tok, "invalid number %q", tok.Lexeme)
	}
	return float32(v), nil
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseBinary(1)
}

// parseBinary climbs operators of at least minPrec. Left-associative
// operators parse their right operand one level tighter, right-associative
// ones at the same level.
func (p *Parser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		op, ok := binaryOp(tok)
		if !ok || op.Precedence() < minPrec {
			return left, nil
		}
		if _, err := p.next(); err != nil {
			return nil, err
		}
		next := op.Precedence() + 1
		if op.RightAssoc() {
			next = op.Precedence()
		}
		right, err := p.parseBinary(next)
		if err != nil {
			return nil, err
		}
		if left, err = p.binary(tok, op, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) binary(tok Token, op Op, left, right Expr) (Expr, error) {
	lt, rt := left.Type(), right.Type()
	if lt != rt {
		return nil, p.fmtError(tok, "type mismatch: %s %s %s", lt, op, rt)
	}
	if lt == StringType && op != OpAdd && !op.IsComparison() {
		return nil, p.fmtError(tok, "operator %s needs numbers, got %s", op, lt)
	}
	return &BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseAtom() (Expr, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case NUMBER:
		v, err := p.number(tok)
		if err != nil {
			return nil, err
		}
		return &NumberLit{Value: v}, nil
	case STRING:
		return &StringLit{Value: tok.Lexeme}, nil
	case NAME:
		v, err := p.parseVariable(tok)
		if err != nil {
			return nil, err
		}
		return &VarRef{Var: v}, nil
	case FUNCTION:
		return p.parseCall(tok)
	case SYMBOL:
		switch tok.Lexeme {
		case "(":
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(SYMBOL, ")"); err != nil {
				return nil, err
			}
			return e, nil
		case "-", "+":
			operand, err := p.parseBinary(unaryPrec)
			if err != nil {
				return nil, err
			}
			if operand.Type() != FloatType {
				return nil, p.fmtError(tok, "unary %s needs a number, got %s", tok.Lexeme, operand.Type())
			}
			if tok.Lexeme == "+" {
				return operand, nil
			}
			return &Negate{X: operand}, nil
		}
	}
	return nil, p.fmtError(tok, "expected expression, got %s", describe(tok))
}

func (p *Parser) parseCall(name Token) (Expr, error) {
	open, err := p.expect(SYMBOL, "(")
	if err != nil {
		return nil, err
	}
	var args []Expr
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Is(SYMBOL, ")") {
			break
		}
		if !tok.Is(SYMBOL, ",") {
			return nil, p.fmtError(tok, "expected , or ), got %s", describe(tok))
		}
	}
	types := make([]DataType, len(args))
	for i, a := range args {
		types[i] = a.Type()
	}
	fn, err := LookupFunction(name.Lexeme, types)
	if err != nil {
		return nil, p.fmtError(open, "%v", err)
	}
	return &Call{Func: fn, Args: args}, nil
}
