package compiler

import (
	"crypto/sha256"
	"fmt"
	"testing"
)

// stubResolver serves canned module exports during checker tests.
type stubResolver map[string]*ModuleExports

func (r stubResolver) ResolveImport(path string) (*ModuleExports, error) {
	if m, ok := r[path]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("module %s not found", path)
}

func checkSource(t *testing.T, src string, resolver ImportResolver, program bool) (*CheckedModule, error) {
	t.Helper()
	tokens, err := Lex(src, "test.sl")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	mod, err := Parse(tokens, "test.sl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mod.Name = "test"
	return Check(mod, resolver, program)
}

func TestCheckValidPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			"Minimal main",
			`fn main() -> i32 { return 0; }`,
		},
		{
			"Arithmetic and locals",
			`fn main() -> i32 {
				let a: i32 = 2;
				let b: f32 = a as f32 * 1.5;
				return b as i32;
			}`,
		},
		{
			"Arrays",
			`fn main() -> i32 {
				let arr: [i32; 3] = [1, 2, 3];
				arr[0] = arr[1] + arr[2];
				return len(arr);
			}`,
		},
		{
			"Structs",
			`struct Point { x: f32, y: f32 }
			fn main() -> i32 {
				let p: Point = Point { x: 1.0, y: 2.0 };
				p.x = p.y;
				return 0;
			}`,
		},
		{
			"Control flow with returns on all paths",
			`fn sign(v: i32) -> i32 {
				if v < 0 { return -1; } else if v > 0 { return 1; } else { return 0; }
			}
			fn main() -> i32 { return sign(-5); }`,
		},
		{
			"Native declaration",
			`#[native(lib="std")]
			fn println(s: str);
			fn main() -> i32 { println("hi"); return 0; }`,
		},
		{
			"Consts fold",
			`const N: i32 = 4 * 8;
			fn main() -> i32 { return N << 1; }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := checkSource(t, tt.src, nil, true); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code TypeErrorCode
	}{
		{
			"Undefined name",
			`fn main() -> i32 { return missing; }`,
			UnresolvedSymbol,
		},
		{
			"Undefined function",
			`fn main() -> i32 { return frob(); }`,
			UnresolvedSymbol,
		},
		{
			"Let initializer mismatch",
			`fn main() -> i32 { let x: i32 = 1.5; return x; }`,
			TypeMismatch,
		},
		{
			"Mixed binary operands",
			`fn main() -> i32 { return (1 as f32 + 2) as i32; }`,
			TypeMismatch,
		},
		{
			"Modulo on floats",
			`fn main() -> i32 { let x: f32 = 1.0 % 2.0; return 0; }`,
			TypeMismatch,
		},
		{
			"Non-bool condition",
			`fn main() -> i32 { if 1 { return 1; } return 0; }`,
			TypeMismatch,
		},
		{
			"Str to i32 cast",
			`fn main() -> i32 { return "4" as i32; }`,
			InvalidCast,
		},
		{
			"I32 to bool cast",
			`fn main() -> i32 { let b: bool = 1 as bool; return 0; }`,
			InvalidCast,
		},
		{
			"Duplicate function",
			`fn f() -> i32 { return 1; }
			fn f() -> i32 { return 2; }
			fn main() -> i32 { return f(); }`,
			DuplicateDeclaration,
		},
		{
			"Duplicate local",
			`fn main() -> i32 { let x: i32 = 1; let x: i32 = 2; return x; }`,
			DuplicateDeclaration,
		},
		{
			"Function named len",
			`fn len(a: [i32; 2]) -> i32 { return 2; }
			fn main() -> i32 { return 0; }`,
			DuplicateDeclaration,
		},
		{
			"Function named assert",
			`fn assert(ok: bool) { }
			fn main() -> i32 { return 0; }`,
			DuplicateDeclaration,
		},
		{
			"Missing main",
			`fn helper() -> i32 { return 1; }`,
			InvalidMainSignature,
		},
		{
			"Main with wrong signature",
			`fn main(n: i32) -> i32 { return n; }`,
			InvalidMainSignature,
		},
		{
			"Main returning void",
			`fn main() { }`,
			InvalidMainSignature,
		},
		{
			"Missing return on a path",
			`fn f(b: bool) -> i32 { if b { return 1; } }
			fn main() -> i32 { return f(true); }`,
			TypeMismatch,
		},
		{
			"Break outside loop",
			`fn main() -> i32 { break; return 0; }`,
			TypeMismatch,
		},
		{
			"Assign to const",
			`const N: i32 = 1;
			fn main() -> i32 { N = 2; return N; }`,
			TypeMismatch,
		},
		{
			"Wrong argument count",
			`fn f(a: i32) -> i32 { return a; }
			fn main() -> i32 { return f(1, 2); }`,
			TypeMismatch,
		},
		{
			"Wrong argument type",
			`fn f(a: i32) -> i32 { return a; }
			fn main() -> i32 { return f(true); }`,
			TypeMismatch,
		},
		{
			"Index on non-array",
			`fn main() -> i32 { let x: i32 = 4; return x[0]; }`,
			TypeMismatch,
		},
		{
			"Unknown field",
			`struct P { x: i32 }
			fn main() -> i32 { let p: P = P { x: 1 }; return p.y; }`,
			UnresolvedSymbol,
		},
		{
			"Struct literal field order",
			`struct P { x: i32, y: i32 }
			fn main() -> i32 { let p: P = P { y: 1, x: 2 }; return p.x; }`,
			TypeMismatch,
		},
		{
			"Recursive struct by value",
			`struct Node { next: Node }
			fn main() -> i32 { return 0; }`,
			TypeMismatch,
		},
		{
			"Const from non-constant expression",
			`fn f() -> i32 { return 1; }
			const N: i32 = f();
			fn main() -> i32 { return N; }`,
			TypeMismatch,
		},
		{
			"Assert on non-bool",
			`fn main() -> i32 { assert(1); return 0; }`,
			TypeMismatch,
		},
		{
			"Len on non-array",
			`fn main() -> i32 { return len(3); }`,
			TypeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkSource(t, tt.src, nil, true)
			if err == nil {
				t.Fatal("expected error")
			}
			te, ok := err.(*TypeError)
			if !ok {
				t.Fatalf("expected *TypeError, got %T: %v", err, err)
			}
			if te.Code != tt.code {
				t.Errorf("expected %s, got %s (%v)", tt.code, te.Code, err)
			}
		})
	}
}

func mathExports() *ModuleExports {
	return &ModuleExports{
		Path: "utils/math",
		Hash: sha256.Sum256([]byte("utils/math source")),
		Consts: []ExportedConst{
			{Name: "PI", Type: F32Type, Value: ConstValue{F: 3.14159}},
		},
		Funcs: []ExportedFunc{
			{Name: "add", Params: []Type{I32Type, I32Type}, Ret: I32Type},
			{Name: "sqrt", Params: []Type{F32Type}, Ret: F32Type, Native: true, Lib: "host_math"},
		},
		Types: []ExportedType{
			{Name: "Vec2", Fields: []StructField{
				{Name: "x", Type: F32Type},
				{Name: "y", Type: F32Type},
			}},
		},
	}
}

func TestCheckImports(t *testing.T) {
	resolver := stubResolver{"utils/math": mathExports()}

	src := `
import utils::math;

fn main() -> i32 {
	let v: math::Vec2 = math::Vec2 { x: 1.0, y: 2.0 };
	let r: f32 = math::sqrt(v.x * math::PI);
	return math::add(r as i32, 1);
}
`
	checked, err := checkSource(t, src, resolver, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(checked.Imports) != 1 || checked.Imports[0].Path != "utils/math" {
		t.Fatalf("imports: %+v", checked.Imports)
	}
}

func TestCheckImportErrors(t *testing.T) {
	resolver := stubResolver{"utils/math": mathExports()}

	tests := []struct {
		name string
		src  string
	}{
		{
			"Unknown module",
			`import no::such;
			fn main() -> i32 { return 0; }`,
		},
		{
			"Unknown exported function",
			`import utils::math;
			fn main() -> i32 { return math::pow(2, 8); }`,
		},
		{
			"Unknown exported const",
			`import utils::math;
			fn main() -> i32 { return math::TAU as i32; }`,
		},
		{
			"Imported function argument mismatch",
			`import utils::math;
			fn main() -> i32 { return math::add(1.0, 2.0); }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := checkSource(t, tt.src, resolver, true); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// A module compiled as a library tolerates a missing main; the entry
// point requirement binds programs only.
func TestCheckLibraryMode(t *testing.T) {
	src := `pub fn double(v: i32) -> i32 { return v * 2; }`
	if _, err := checkSource(t, src, nil, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
