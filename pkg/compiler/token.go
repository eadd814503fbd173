package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input
	EOL                  // end of a physical line

	KEYWORD  // PRINT, GO, TO, ...
	FUNCTION // built-in function name, e.g. SIN or CHR$
	NUMBER   // digits and '.'
	NAME     // variable name, optionally ending in '$'
	STRING   // "..." with the quotes stripped
	SYMBOL   // operator or punctuation
)

var tokenNames = [...]string{
	EOF:      "END-OF-FILE",
	EOL:      "END-OF-LINE",
	KEYWORD:  "KEYWORD",
	FUNCTION: "FUNCTION",
	NUMBER:   "NUMBER",
	NAME:     "NAME",
	STRING:   "STRING",
	SYMBOL:   "SYMBOL",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// keywordList is the statement and operator vocabulary. GOTO and GOSUB
// are spelled GO TO and GO SUB by the tokenizer.
var keywordList = []string{
	"PRINT", "GO", "TO", "SUB", "ON", "RETURN", "IF", "THEN", "INPUT", "REM",
	"FOR", "STEP", "NEXT", "DATA", "READ", "END", "STOP", "RESTORE", "LET",
	"DIM", "AND", "OR",
}

// symbols are matched longest first.
var symbols = []string{
	"<=", "<>", ">=",
	"=", "<", ">", "+", "-", "*", "/", "^", "(", ")", ",", ";", ":",
}

// Token is a single lexical unit produced by the Tokenizer.
type Token struct {
	Type   TokenType
	Lexeme string // matched text; for STRING the contents without quotes
	Line   int    // 1-based physical source line
	pos    int    // rune offset where scanning began, before blanks
}

func (t Token) String() string {
	return fmt.Sprintf("%-12s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}

// Is reports whether t has the given type and text.
func (t Token) Is(tt TokenType, lexeme string) bool {
	return t.Type == tt && t.Lexeme == lexeme
}
