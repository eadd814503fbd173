package compiler

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type word struct {
	text string
	typ  TokenType
}

// words holds every keyword and built-in function name, longest first, so
// the first prefix match at a position is the longest one.
var words = func() []word {
	var ws []word
	for _, k := range keywordList {
		ws = append(ws, word{k, KEYWORD})
	}
	for _, f := range FunctionNames() {
		ws = append(ws, word{f, FUNCTION})
	}
	sort.SliceStable(ws, func(i, j int) bool { return len(ws[i].text) > len(ws[j].text) })
	return ws
}()

// Tokenizer splits BASIC source into tokens on demand, with one token of
// lookahead.
type Tokenizer struct {
	src    []rune
	pos    int // index of the next rune to consume
	line   int // current 1-based source line
	peeked *Token
}

func NewTokenizer(src string) *Tokenizer {
	return &Tokenizer{src: []rune(src), line: 1}
}

// Peek returns the next token without consuming it.
func (l *Tokenizer) Peek() (Token, error) {
	if l.peeked == nil {
		tok, err := l.scan()
		if err != nil {
			return Token{}, err
		}
		l.peeked = &tok
	}
	return *l.peeked, nil
}

// Next consumes and returns the next token.
func (l *Tokenizer) Next() (Token, error) {
	tok, err := l.Peek()
	if err != nil {
		return Token{}, err
	}
	l.peeked = nil
	return tok, nil
}

// ReadTillEndOfLine returns the raw rest of the current physical line,
// starting at the peeked token if there is one. The newline is left in
// place.
func (l *Tokenizer) ReadTillEndOfLine() string {
	if l.peeked != nil {
		l.pos, l.line = l.peeked.pos, l.peeked.Line
		l.peeked = nil
	}
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
	return string(l.src[start:l.pos])
}

func (l *Tokenizer) hasPrefix(at int, s string) bool {
	if at+len(s) > len(l.src) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if l.src[at+i] != rune(s[i]) {
			return false
		}
	}
	return true
}

// wordAt returns the longest keyword or function name starting at at.
func (l *Tokenizer) wordAt(at int) (word, bool) {
	for _, w := range words {
		if l.hasPrefix(at, w.text) {
			return w, true
		}
	}
	return word{}, false
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func (l *Tokenizer) scan() (Token, error) {
	tok := Token{Line: l.line, pos: l.pos}
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\r') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		tok.Type = EOF
		return tok, nil
	}

	ch := l.src[l.pos]
	switch {
	case ch == '\n':
		l.pos++
		l.line++
		tok.Type, tok.Lexeme = EOL, "\n"
		return tok, nil

	case isUpper(ch):
		if w, ok := l.wordAt(l.pos); ok {
			l.pos += len(w.text)
			tok.Type, tok.Lexeme = w.typ, w.text
			return tok, nil
		}
		return l.scanName(tok), nil

	case isDigit(ch) || ch == '.':
		start := l.pos
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		tok.Type, tok.Lexeme = NUMBER, string(l.src[start:l.pos])
		return tok, nil

	case ch == '"':
		start := l.pos + 1
		for l.pos = start; l.pos < len(l.src) && l.src[l.pos] != '"'; l.pos++ {
			if l.src[l.pos] == '\n' {
				break
			}
		}
		if l.pos >= len(l.src) || l.src[l.pos] != '"' {
			return Token{}, &TokenizingError{Line: tok.Line, Msg: "unterminated string literal"}
		}
		tok.Type, tok.Lexeme = STRING, string(l.src[start:l.pos])
		l.pos++
		return tok, nil
	}

	for _, s := range symbols {
		if l.hasPrefix(l.pos, s) {
			l.pos += len(s)
			tok.Type, tok.Lexeme = SYMBOL, s
			return tok, nil
		}
	}
	return Token{}, &TokenizingError{Line: tok.Line, Msg: fmt.Sprintf("unexpected character %q", ch)}
}

// scanName reads letters up to the start of the next keyword, then any
// digits and an optional '$'.
func (l *Tokenizer) scanName(tok Token) Token {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) && isUpper(l.src[l.pos]) {
		if _, ok := l.wordAt(l.pos); ok {
			break
		}
		l.pos++
	}
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '$' {
		l.pos++
	}
	tok.Type, tok.Lexeme = NAME, string(l.src[start:l.pos])
	return tok
}

// Tokenize returns every token of src including the final EOF.
func Tokenize(src string) ([]Token, error) {
	l := NewTokenizer(src)
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}

// FoldCase upper-cases source text except string literals and the text of
// REM comments. Quotes are matched within a line.
func FoldCase(src string) string {
	upper := cases.Upper(language.Und)
	lines := strings.SplitAfter(src, "\n")
	for i, line := range lines {
		lines[i] = foldLine(upper, line)
	}
	return strings.Join(lines, "")
}

func foldLine(upper cases.Caser, line string) string {
	orig := []rune(line)
	folded := make([]rune, 0, len(orig))
	from := make([]int, 0, len(orig)) // index in orig of each folded rune
	quoted := false
	for i, r := range orig {
		out := []rune{r}
		if r == '"' {
			quoted = !quoted
		} else if !quoted {
			out = []rune(upper.String(string(r)))
		}
		for _, o := range out {
			folded = append(folded, o)
			from = append(from, i)
		}
	}

	// Everything after a REM keyword stays as written.
	tz := NewTokenizer(string(folded))
	for {
		tok, err := tz.Next()
		if err != nil || tok.Type == EOF || tok.Type == EOL {
			return string(folded)
		}
		if tok.Type == KEYWORD && tok.Lexeme == "REM" {
			if tz.pos >= len(folded) {
				return string(folded)
			}
			return string(folded[:tz.pos]) + string(orig[from[tz.pos]:])
		}
	}
}
