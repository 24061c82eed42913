package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function / type name
	INTEGER    // integer literal (decimal or hex)
	FLOAT      // floating-point literal
	STRING     // string literal "..."

	// Keywords
	IMPORT   // "import"
	CONST    // "const"
	STRUCT   // "struct"
	FN       // "fn"
	LET      // "let"
	PUB      // "pub"
	IF       // "if"
	ELSE     // "else"
	WHILE    // "while"
	FOR      // "for"
	RETURN   // "return"
	BREAK    // "break"
	CONTINUE // "continue"
	AS       // "as"
	TRUE     // "true"
	FALSE    // "false"
	I32      // "i32"
	F32      // "f32"
	BOOL     // "bool"
	STR      // "str"

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	DOT        // .
	SEMICOLON  // ;
	COMMA      // ,
	COLON      // :
	COLONCOLON // ::
	ARROW      // ->
	HASH       // # (directive prefix, e.g. #[native(lib="std")])

	// Operators
	PLUS        // +
	MINUS       // -
	STAR        // *
	SLASH       // /
	PERCENT     // %
	AND         // &
	PIPE        // |
	CARET       // ^
	TILDE       // ~
	SHL_OP      // <<
	SHR_OP      // >>
	AND_LOGICAL // &&
	OR_LOGICAL  // ||
	NOT         // !

	// Assignment / comparison  (order matters: ASSIGN before EQUALS)
	ASSIGN // =

	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:         "EOF",
	IDENTIFIER:  "IDENTIFIER",
	INTEGER:     "INTEGER",
	FLOAT:       "FLOAT",
	STRING:      "STRING",
	IMPORT:      "IMPORT",
	CONST:       "CONST",
	STRUCT:      "STRUCT",
	FN:          "FN",
	LET:         "LET",
	PUB:         "PUB",
	IF:          "IF",
	ELSE:        "ELSE",
	WHILE:       "WHILE",
	FOR:         "FOR",
	RETURN:      "RETURN",
	BREAK:       "BREAK",
	CONTINUE:    "CONTINUE",
	AS:          "AS",
	TRUE:        "TRUE",
	FALSE:       "FALSE",
	I32:         "I32",
	F32:         "F32",
	BOOL:        "BOOL",
	STR:         "STR",
	LBRACE:      "LBRACE",
	RBRACE:      "RBRACE",
	LPAREN:      "LPAREN",
	RPAREN:      "RPAREN",
	LBRACKET:    "LBRACKET",
	RBRACKET:    "RBRACKET",
	DOT:         "DOT",
	SEMICOLON:   "SEMICOLON",
	COMMA:       "COMMA",
	COLON:       "COLON",
	COLONCOLON:  "COLONCOLON",
	ARROW:       "ARROW",
	HASH:        "HASH",
	PLUS:        "PLUS",
	MINUS:       "MINUS",
	STAR:        "STAR",
	SLASH:       "SLASH",
	PERCENT:     "PERCENT",
	AND:         "AND",
	PIPE:        "PIPE",
	CARET:       "CARET",
	TILDE:       "TILDE",
	SHL_OP:      "SHL_OP",
	SHR_OP:      "SHR_OP",
	AND_LOGICAL: "AND_LOGICAL",
	OR_LOGICAL:  "OR_LOGICAL",
	NOT:         "NOT",
	ASSIGN:      "ASSIGN",
	EQUALS:      "EQUALS",
	NOT_EQ:      "NOT_EQ",
	LESS:        "LESS",
	GREATER:     "GREATER",
	LESS_EQ:     "LESS_EQ",
	GREATER_EQ:  "GREATER_EQ",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Location is a position in a source file. Line and Col are 1-based.
type Location struct {
	File string
	Line int
	Col  int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Col)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // matched source text; escapes are resolved for STRING
	Loc    Location
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  %s", t.Type, t.Lexeme, t.Loc)
}
