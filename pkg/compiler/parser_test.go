package compiler

import (
	"fmt"
	"testing"
)

func parseSource(t *testing.T, src string) *SourceModule {
	t.Helper()
	tokens, err := Lex(src, "test.sl")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	mod, err := Parse(tokens, "test.sl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return mod
}

// parseRetExpr parses an expression through a minimal function wrapper
// and returns its printed AST.
func parseRetExpr(t *testing.T, expr string) string {
	t.Helper()
	mod := parseSource(t, fmt.Sprintf("fn f() -> i32 { return %s; }", expr))
	fn := mod.Decls[0].(*FuncDecl)
	ret := fn.Body.Stmts[0].(*ReturnStmt)
	return ret.Expr.String()
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		expr     string
		expected string
	}{
		{"1 + 2 * 3", "(1 PLUS (2 STAR 3))"},
		{"(1 + 2) * 3", "((1 PLUS 2) STAR 3)"},
		{"1 - 2 - 3", "((1 MINUS 2) MINUS 3)"},
		{"a | b ^ c & d", "(a PIPE (b CARET (c AND d)))"},
		{"1 << 2 + 3", "(1 SHL_OP (2 PLUS 3))"},
		{"1 < 2 == true", "((1 LESS 2) EQUALS true)"},
		{"a && b || c && d", "((a AND_LOGICAL b) OR_LOGICAL (c AND_LOGICAL d))"},
		{"!a && b", "((NOT a) AND_LOGICAL b)"},
		{"-x * y", "((MINUS x) STAR y)"},
		{"~x & y", "((TILDE x) AND y)"},
		{"x as f32 + y", "((x as f32) PLUS y)"},
		{"a[1][2]", "((a[1])[2])"},
		{"p.x.y", "((p.x).y)"},
		{"a[i].f", "((a[i]).f)"},
		{"m::get(1, 2)", "Call(m::get, args=[1 2])"},
	}
	for _, tt := range tests {
		got := parseRetExpr(t, tt.expr)
		if got != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.expr, tt.expected, got)
		}
	}
}

func TestParseIntLiterals(t *testing.T) {
	tests := []struct {
		lit      string
		expected int32
	}{
		{"0", 0},
		{"42", 42},
		{"0xFF", 255},
		{"2147483647", 2147483647},
		{"1_000", 1000},
		// The sign folds into the literal, so INT32_MIN is spellable.
		{"-2147483648", -2147483648},
		{"-0x80000000", -2147483648},
	}
	for _, tt := range tests {
		mod := parseSource(t, fmt.Sprintf("fn f() -> i32 { return %s; }", tt.lit))
		ret := mod.Decls[0].(*FuncDecl).Body.Stmts[0].(*ReturnStmt)
		lit, ok := ret.Expr.(*IntLit)
		if !ok {
			t.Fatalf("%s: expected *IntLit, got %T", tt.lit, ret.Expr)
		}
		if lit.Value != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.lit, tt.expected, lit.Value)
		}
	}

	// Out of range on either side, including the positive boundary that
	// only exists as a negated spelling.
	for _, lit := range []string{"2147483648", "2147483649", "-2147483649"} {
		tokens, err := Lex(fmt.Sprintf("fn f() -> i32 { return %s; }", lit), "test.sl")
		if err != nil {
			t.Fatalf("%s: lex: %v", lit, err)
		}
		if _, err := Parse(tokens, "test.sl"); err == nil {
			t.Errorf("%s: expected range error", lit)
		}
	}
}

func TestParseDeclarations(t *testing.T) {
	src := `
import utils::math;

pub const LIMIT: i32 = 10;

pub struct Point {
	x: f32,
	y: f32,
}

#[native(lib="std")]
fn sqrt(v: f32) -> f32;

pub fn origin() -> Point {
	return Point { x: 0.0, y: 0.0 };
}
`
	mod := parseSource(t, src)
	if len(mod.Decls) != 5 {
		t.Fatalf("expected 5 declarations, got %d", len(mod.Decls))
	}

	imp := mod.Decls[0].(*ImportDecl)
	if imp.ModulePath() != "utils/math" || imp.Alias() != "math" {
		t.Errorf("import: path %q alias %q", imp.ModulePath(), imp.Alias())
	}

	c := mod.Decls[1].(*ConstDecl)
	if !c.Pub || c.Name != "LIMIT" {
		t.Errorf("const: pub=%t name=%q", c.Pub, c.Name)
	}

	s := mod.Decls[2].(*StructDecl)
	if s.Name != "Point" || len(s.Fields) != 2 || s.Fields[1].Name != "y" {
		t.Errorf("struct: %+v", s)
	}

	n := mod.Decls[3].(*FuncDecl)
	if !n.Native || n.NativeLib != "std" || n.Body != nil {
		t.Errorf("native fn: native=%t lib=%q", n.Native, n.NativeLib)
	}

	f := mod.Decls[4].(*FuncDecl)
	if f.Native || f.Name != "origin" || f.RetType.String() != "Point" {
		t.Errorf("fn: %+v", f)
	}
}

func TestParseStatements(t *testing.T) {
	src := `
fn f(n: i32) -> i32 {
	let total: i32 = 0;
	let arr: [i32; 3] = [1, 2, 3];
	for let i: i32 = 0; i < n; i = i + 1 {
		if i % 2 == 0 {
			continue;
		} else if i > 10 {
			break;
		}
		total = total + arr[i % 3];
	}
	while total > 100 {
		total = total - 1;
	}
	return total;
}
`
	mod := parseSource(t, src)
	body := mod.Decls[0].(*FuncDecl).Body
	if len(body.Stmts) != 5 {
		t.Fatalf("expected 5 statements, got %d", len(body.Stmts))
	}
	if _, ok := body.Stmts[2].(*ForStmt); !ok {
		t.Errorf("statement 2: expected *ForStmt, got %T", body.Stmts[2])
	}
	if _, ok := body.Stmts[3].(*WhileStmt); !ok {
		t.Errorf("statement 3: expected *WhileStmt, got %T", body.Stmts[3])
	}

	forStmt := body.Stmts[2].(*ForStmt)
	ifStmt := forStmt.Body.Stmts[0].(*IfStmt)
	if _, ok := ifStmt.ElseBody.(*IfStmt); !ok {
		t.Errorf("else-if chain: expected *IfStmt, got %T", ifStmt.ElseBody)
	}
}

func TestParseStructLiteralVsBlock(t *testing.T) {
	// "x {" in condition position is the loop body, not a literal.
	src := `
fn f(x: bool) -> i32 {
	while x {
		return 1;
	}
	return 0;
}
`
	mod := parseSource(t, src)
	w := mod.Decls[0].(*FuncDecl).Body.Stmts[0].(*WhileStmt)
	if _, ok := w.Condition.(*VarRef); !ok {
		t.Errorf("condition: expected *VarRef, got %T", w.Condition)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"Missing semicolon", "const A: i32 = 1"},
		{"Missing paren", "fn f( -> i32 { return 0; }"},
		{"Missing type", "fn f() -> i32 { let x = 1; return x; }"},
		{"Bad directive", `#[foo(lib="std")] fn f();`},
		{"Stray token at top level", "return 1;"},
		{"Unclosed block", "fn f() { let x: i32 = 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Lex(tt.src, "test.sl")
			if err != nil {
				return // lex errors are fine too
			}
			_, err = Parse(tokens, "test.sl")
			if err == nil {
				t.Fatalf("Parse(%q): expected error", tt.src)
			}
			if _, ok := err.(*ParseError); !ok {
				t.Errorf("Parse(%q): expected *ParseError, got %T", tt.src, err)
			}
		})
	}
}
