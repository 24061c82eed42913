package compiler

import (
	"fmt"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"import":   IMPORT,
	"const":    CONST,
	"struct":   STRUCT,
	"fn":       FN,
	"let":      LET,
	"pub":      PUB,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"return":   RETURN,
	"break":    BREAK,
	"continue": CONTINUE,
	"as":       AS,
	"true":     TRUE,
	"false":    FALSE,
	"i32":      I32,
	"f32":      F32,
	"bool":     BOOL,
	"str":      STR,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	file string
	line int // current 1-based source line
	col  int // current 1-based source column
}

func newLexer(src, file string) *Lexer {
	return &Lexer{src: []rune(src), file: file, line: 1, col: 1}
}

func (l *Lexer) loc() Location {
	return Location{File: l.file, Line: l.line, Col: l.col}
}

func (l *Lexer) errorf(loc Location, format string, args ...any) *LexError {
	return &LexError{Loc: loc, Reason: fmt.Sprintf(format, args...)}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment(open Location) error {
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance() // *
			l.advance() // /
			return nil
		}
		l.advance()
	}
	return l.errorf(open, "unterminated block comment")
}

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	loc := l.loc()
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Loc: loc}
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// scanNumber collects an integer or float literal. Integers may be decimal
// or 0x-prefixed hex; '_' digit separators are allowed and stripped. A
// literal with a '.' or exponent part is a FLOAT.
// The first digit must still be at l.peek().
func (l *Lexer) scanNumber() (Token, error) {
	loc := l.loc()
	var digits []rune

	// '0x' / '0X' prefix
	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		digits = append(digits, l.advance(), l.advance())
		n := 0
		for l.pos < len(l.src) {
			r := l.peek()
			if r == '_' {
				l.advance()
				continue
			}
			if !isHexDigit(r) {
				break
			}
			digits = append(digits, l.advance())
			n++
		}
		if n == 0 {
			return Token{}, l.errorf(loc, "invalid numeric literal: %q has no hex digits", string(digits))
		}
		return Token{Type: INTEGER, Lexeme: string(digits), Loc: loc}, nil
	}

	scanDigits := func() int {
		n := 0
		for l.pos < len(l.src) {
			r := l.peek()
			if r == '_' {
				l.advance()
				continue
			}
			if !unicode.IsDigit(r) {
				break
			}
			digits = append(digits, l.advance())
			n++
		}
		return n
	}
	scanDigits()

	isFloat := false
	// A '.' followed by a digit (or by nothing expression-like) starts the
	// fractional part; "1.foo" keeps the DOT for field access.
	if l.peek() == '.' && (unicode.IsDigit(l.peek2()) || !unicode.IsLetter(l.peek2()) && l.peek2() != '_' && l.peek2() != '.') {
		isFloat = true
		digits = append(digits, l.advance())
		scanDigits()
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		isFloat = true
		digits = append(digits, l.advance())
		if l.peek() == '+' || l.peek() == '-' {
			digits = append(digits, l.advance())
		}
		if scanDigits() == 0 {
			return Token{}, l.errorf(loc, "invalid numeric literal: exponent has no digits")
		}
	}

	tt := INTEGER
	if isFloat {
		tt = FLOAT
	}
	return Token{Type: tt, Lexeme: string(digits), Loc: loc}, nil
}

// scanString collects a string literal "..." with escapes resolved.
func (l *Lexer) scanString() (Token, error) {
	loc := l.loc()
	l.advance() // consume opening "
	var val []rune

	for l.pos < len(l.src) {
		r := l.peek()
		if r == '"' {
			l.advance() // consume closing "
			return Token{Type: STRING, Lexeme: string(val), Loc: loc}, nil
		}
		if r == '\n' {
			return Token{}, l.errorf(loc, "unterminated string literal")
		}
		if r == '\\' {
			escLoc := l.loc()
			l.advance() // consume backslash
			switch next := l.peek(); next {
			case 'n':
				val = append(val, '\n')
			case 'r':
				val = append(val, '\r')
			case 't':
				val = append(val, '\t')
			case '0':
				val = append(val, 0)
			case '\\':
				val = append(val, '\\')
			case '"':
				val = append(val, '"')
			default:
				return Token{}, l.errorf(escLoc, "unknown escape sequence \\%c", next)
			}
			l.advance()
			continue
		}
		val = append(val, r)
		l.advance()
	}
	return Token{}, l.errorf(loc, "unterminated string literal")
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	// Skip whitespace and both comment styles in a loop so that
	// a comment followed immediately by more whitespace is handled.
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Loc: l.loc()}, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			open := l.loc()
			l.advance()
			l.advance()
			if err := l.skipBlockComment(open); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	loc := l.loc()

	if unicode.IsLetter(ch) || ch == '_' {
		return l.scanIdent(), nil
	}
	if unicode.IsDigit(ch) {
		return l.scanNumber()
	}
	if ch == '"' {
		return l.scanString()
	}

	l.advance() // consume the character before the switch
	switch ch {
	case '{':
		return Token{LBRACE, "{", loc}, nil
	case '}':
		return Token{RBRACE, "}", loc}, nil
	case '(':
		return Token{LPAREN, "(", loc}, nil
	case ')':
		return Token{RPAREN, ")", loc}, nil
	case '[':
		return Token{LBRACKET, "[", loc}, nil
	case ']':
		return Token{RBRACKET, "]", loc}, nil
	case '.':
		return Token{DOT, ".", loc}, nil
	case ';':
		return Token{SEMICOLON, ";", loc}, nil
	case ',':
		return Token{COMMA, ",", loc}, nil
	case ':':
		if l.peek() == ':' {
			l.advance()
			return Token{COLONCOLON, "::", loc}, nil
		}
		return Token{COLON, ":", loc}, nil
	case '#':
		return Token{HASH, "#", loc}, nil

	case '+':
		return Token{PLUS, "+", loc}, nil
	case '-':
		if l.peek() == '>' {
			l.advance()
			return Token{ARROW, "->", loc}, nil
		}
		return Token{MINUS, "-", loc}, nil
	case '*':
		return Token{STAR, "*", loc}, nil
	case '/':
		return Token{SLASH, "/", loc}, nil
	case '%':
		return Token{PERCENT, "%", loc}, nil
	case '&':
		if l.peek() == '&' {
			l.advance()
			return Token{AND_LOGICAL, "&&", loc}, nil
		}
		return Token{AND, "&", loc}, nil
	case '|':
		if l.peek() == '|' {
			l.advance()
			return Token{OR_LOGICAL, "||", loc}, nil
		}
		return Token{PIPE, "|", loc}, nil
	case '^':
		return Token{CARET, "^", loc}, nil
	case '~':
		return Token{TILDE, "~", loc}, nil
	case '!':
		if l.peek() == '=' {
			l.advance()
			return Token{NOT_EQ, "!=", loc}, nil
		}
		return Token{NOT, "!", loc}, nil
	case '<':
		if l.peek() == '=' {
			l.advance()
			return Token{LESS_EQ, "<=", loc}, nil
		}
		if l.peek() == '<' {
			l.advance()
			return Token{SHL_OP, "<<", loc}, nil
		}
		return Token{LESS, "<", loc}, nil
	case '>':
		if l.peek() == '=' {
			l.advance()
			return Token{GREATER_EQ, ">=", loc}, nil
		}
		if l.peek() == '>' {
			l.advance()
			return Token{SHR_OP, ">>", loc}, nil
		}
		return Token{GREATER, ">", loc}, nil
	case '=':
		if l.peek() == '=' { // lookahead: distinguish = vs ==
			l.advance()
			return Token{EQUALS, "==", loc}, nil
		}
		return Token{ASSIGN, "=", loc}, nil
	default:
		return Token{}, l.errorf(loc, "unexpected character %q", ch)
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// file is recorded in every token location for diagnostics.
// It returns a non-nil *LexError on the first illegal construct.
func Lex(src, file string) ([]Token, error) {
	l := newLexer(src, file)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
