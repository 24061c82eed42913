package compiler

import (
	"testing"
)

type tok struct {
	typ    TokenType
	lexeme string
}

func lexToks(t *testing.T, input string) []tok {
	t.Helper()
	tokens, err := Lex(input, "test.sl")
	if err != nil {
		t.Fatalf("Lex(%q): %v", input, err)
	}
	out := make([]tok, len(tokens))
	for i, tk := range tokens {
		out[i] = tok{tk.Type, tk.Lexeme}
	}
	return out
}

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []tok
	}{
		{
			name:     "Empty",
			input:    "",
			expected: []tok{{EOF, ""}},
		},
		{
			name:  "Operators",
			input: "+ - * / % & | ^ ~ << >> && || ! = == != < > <= >=",
			expected: []tok{
				{PLUS, "+"}, {MINUS, "-"}, {STAR, "*"}, {SLASH, "/"}, {PERCENT, "%"},
				{AND, "&"}, {PIPE, "|"}, {CARET, "^"}, {TILDE, "~"},
				{SHL_OP, "<<"}, {SHR_OP, ">>"},
				{AND_LOGICAL, "&&"}, {OR_LOGICAL, "||"}, {NOT, "!"},
				{ASSIGN, "="}, {EQUALS, "=="}, {NOT_EQ, "!="},
				{LESS, "<"}, {GREATER, ">"}, {LESS_EQ, "<="}, {GREATER_EQ, ">="},
				{EOF, ""},
			},
		},
		{
			name:  "Keywords and identifiers",
			input: "fn let const pub struct import if else while for return break continue as i32 f32 bool str value _under_score",
			expected: []tok{
				{FN, "fn"}, {LET, "let"}, {CONST, "const"}, {PUB, "pub"},
				{STRUCT, "struct"}, {IMPORT, "import"}, {IF, "if"}, {ELSE, "else"},
				{WHILE, "while"}, {FOR, "for"}, {RETURN, "return"},
				{BREAK, "break"}, {CONTINUE, "continue"}, {AS, "as"},
				{I32, "i32"}, {F32, "f32"}, {BOOL, "bool"}, {STR, "str"},
				{IDENTIFIER, "value"}, {IDENTIFIER, "_under_score"},
				{EOF, ""},
			},
		},
		{
			name:  "Integers",
			input: "123 0 0x1A 0Xff 1_000_000",
			expected: []tok{
				{INTEGER, "123"}, {INTEGER, "0"}, {INTEGER, "0x1A"},
				{INTEGER, "0Xff"}, {INTEGER, "1000000"},
				{EOF, ""},
			},
		},
		{
			name:  "Floats",
			input: "1.5 0.25 1. 2e3 1.5e-2",
			expected: []tok{
				{FLOAT, "1.5"}, {FLOAT, "0.25"}, {FLOAT, "1."},
				{FLOAT, "2e3"}, {FLOAT, "1.5e-2"},
				{EOF, ""},
			},
		},
		{
			name:  "Strings with escapes",
			input: `"hello" "a\nb" "he said \"hi\"" "tab\there"`,
			expected: []tok{
				{STRING, "hello"}, {STRING, "a\nb"}, {STRING, `he said "hi"`},
				{STRING, "tab\there"},
				{EOF, ""},
			},
		},
		{
			name:  "Qualified names and arrows",
			input: "utils::math -> #[native]",
			expected: []tok{
				{IDENTIFIER, "utils"}, {COLONCOLON, "::"}, {IDENTIFIER, "math"},
				{ARROW, "->"},
				{HASH, "#"}, {LBRACKET, "["}, {IDENTIFIER, "native"}, {RBRACKET, "]"},
				{EOF, ""},
			},
		},
		{
			name:  "Comments",
			input: "a // line comment\nb /* block\ncomment */ c",
			expected: []tok{
				{IDENTIFIER, "a"}, {IDENTIFIER, "b"}, {IDENTIFIER, "c"},
				{EOF, ""},
			},
		},
		{
			name:  "Field access keeps the dot",
			input: "p.x arr[0].y",
			expected: []tok{
				{IDENTIFIER, "p"}, {DOT, "."}, {IDENTIFIER, "x"},
				{IDENTIFIER, "arr"}, {LBRACKET, "["}, {INTEGER, "0"}, {RBRACKET, "]"},
				{DOT, "."}, {IDENTIFIER, "y"},
				{EOF, ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lexToks(t, tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("token count: expected %d, got %d (%v)", len(tt.expected), len(got), got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("token %d: expected %v, got %v", i, tt.expected[i], got[i])
				}
			}
		})
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Unterminated string", `"abc`},
		{"String across newline", "\"abc\ndef\""},
		{"Unknown escape", `"\q"`},
		{"Unterminated block comment", "/* never closed"},
		{"Hex without digits", "0x"},
		{"Exponent without digits", "1e"},
		{"Stray character", "@"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lex(tt.input, "test.sl")
			if err == nil {
				t.Fatalf("Lex(%q): expected error", tt.input)
			}
			if _, ok := err.(*LexError); !ok {
				t.Errorf("Lex(%q): expected *LexError, got %T", tt.input, err)
			}
		})
	}
}

func TestLexLocations(t *testing.T) {
	tokens, err := Lex("fn main()\n  let x", "prog.sl")
	if err != nil {
		t.Fatal(err)
	}
	want := []Location{
		{File: "prog.sl", Line: 1, Col: 1},  // fn
		{File: "prog.sl", Line: 1, Col: 4},  // main
		{File: "prog.sl", Line: 1, Col: 8},  // (
		{File: "prog.sl", Line: 1, Col: 9},  // )
		{File: "prog.sl", Line: 2, Col: 3},  // let
		{File: "prog.sl", Line: 2, Col: 7},  // x
	}
	for i, w := range want {
		if tokens[i].Loc != w {
			t.Errorf("token %d (%s): expected %v, got %v", i, tokens[i].Lexeme, w, tokens[i].Loc)
		}
	}
}
