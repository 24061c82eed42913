package compiler

import (
	"testing"

	"github.com/flubbe/slang/pkg/bytecode"
)

func compileSource(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	mod, err := Compile([]byte(src), "test.sl", "test", nil, true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return mod
}

func mainFunc(t *testing.T, m *bytecode.Module) *bytecode.Function {
	t.Helper()
	idx := m.FuncByName("main")
	if idx < 0 {
		t.Fatal("no main function")
	}
	return &m.Funcs[idx]
}

func opcodes(fn *bytecode.Function) []bytecode.Opcode {
	out := make([]bytecode.Opcode, len(fn.Code))
	for i, ins := range fn.Code {
		out[i] = ins.Op
	}
	return out
}

func TestGenConstantFolding(t *testing.T) {
	// Constant subexpressions collapse to a single pool load.
	tests := []struct {
		name     string
		src      string
		expected bytecode.Constant
	}{
		{
			"Integer arithmetic",
			`fn main() -> i32 { return (2 + 3) * 4 - 1; }`,
			bytecode.Constant{Kind: bytecode.ConstI32, I: 19},
		},
		{
			"Shift with masked count",
			`fn main() -> i32 { return 1 << 33; }`,
			bytecode.Constant{Kind: bytecode.ConstI32, I: 2},
		},
		{
			"Signed wrap on overflow",
			`fn main() -> i32 { return 2147483647 + 1; }`,
			bytecode.Constant{Kind: bytecode.ConstI32, I: -2147483648},
		},
		{
			"Float to int truncates toward zero",
			`fn main() -> i32 { return -1.9 as i32; }`,
			bytecode.Constant{Kind: bytecode.ConstI32, I: -1},
		},
		{
			"Bool to int",
			`fn main() -> i32 { return true as i32; }`,
			bytecode.Constant{Kind: bytecode.ConstI32, I: 1},
		},
		{
			"Const reference folds",
			`const N: i32 = 6;
			fn main() -> i32 { return N * 7; }`,
			bytecode.Constant{Kind: bytecode.ConstI32, I: 42},
		},
		{
			"String concatenation",
			`fn main() -> i32 { let s: str = "ab" + "cd"; return 0; }`,
			bytecode.Constant{Kind: bytecode.ConstStr, S: "abcd"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := compileSource(t, tt.src)
			found := false
			for _, c := range m.Constants {
				if c.Equal(tt.expected) {
					found = true
				}
			}
			if !found {
				t.Errorf("constant pool %v is missing %v", m.Constants, tt.expected)
			}
		})
	}
}

func TestGenStraightLine(t *testing.T) {
	m := compileSource(t, `fn main() -> i32 { let x: i32 = 5; return x; }`)
	fn := mainFunc(t, m)
	expected := []bytecode.Opcode{
		bytecode.OpLoadConst,
		bytecode.OpStoreLocal,
		bytecode.OpLoadLocal,
		bytecode.OpRet,
	}
	got := opcodes(fn)
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("instruction %d: expected %s, got %s", i, expected[i], got[i])
		}
	}
}

func TestGenJumpTargets(t *testing.T) {
	srcs := []struct {
		name string
		src  string
	}{
		{
			"If else with returns in both arms",
			`fn main() -> i32 { if 1 < 2 { return 1; } else { return 2; } }`,
		},
		{
			"While loop",
			`fn main() -> i32 {
				let i: i32 = 0;
				while i < 10 { i = i + 1; }
				return i;
			}`,
		},
		{
			"For with break and continue",
			`fn main() -> i32 {
				let n: i32 = 0;
				for let i: i32 = 0; i < 100; i = i + 1 {
					if i == 50 { break; }
					if i % 2 == 0 { continue; }
					n = n + i;
				}
				return n;
			}`,
		},
		{
			"Short circuit and",
			`fn check(v: i32) -> bool { return v > 0 && 100 / v > 1; }
			fn main() -> i32 { if check(3) { return 1; } return 0; }`,
		},
	}
	for _, tt := range srcs {
		t.Run(tt.name, func(t *testing.T) {
			m := compileSource(t, tt.src)
			for fi := range m.Funcs {
				fn := &m.Funcs[fi]
				if len(fn.Lines) != len(fn.Code) {
					t.Errorf("%s: %d line entries for %d instructions", fn.Name, len(fn.Lines), len(fn.Code))
				}
				for pc, ins := range fn.Code {
					switch ins.Op {
					case bytecode.OpJmp, bytecode.OpJmpIfFalse, bytecode.OpJmpIfTrue:
						if ins.A < 0 || int(ins.A) >= len(fn.Code) {
							t.Errorf("%s+%d: jump target %d outside [0, %d)", fn.Name, pc, ins.A, len(fn.Code))
						}
					}
				}
			}
		})
	}
}

func TestGenVoidFunctionTerminator(t *testing.T) {
	m := compileSource(t, `
fn log(v: i32) { let x: i32 = v * 2; }
fn main() -> i32 { log(3); return 0; }
`)
	idx := m.FuncByName("log")
	if idx < 0 {
		t.Fatal("no log function")
	}
	code := m.Funcs[idx].Code
	if len(code) == 0 || code[len(code)-1].Op != bytecode.OpRetVoid {
		t.Errorf("void function must end in ret_void, code: %v", code)
	}
}

func TestGenDiscardsUnusedResult(t *testing.T) {
	m := compileSource(t, `
fn f() -> i32 { return 7; }
fn main() -> i32 { f(); return 0; }
`)
	fn := mainFunc(t, m)
	foundPop := false
	for _, ins := range fn.Code {
		if ins.Op == bytecode.OpPop {
			foundPop = true
		}
	}
	if !foundPop {
		t.Error("expression statement result must be popped")
	}
}

func TestGenLocalStructsAreQualified(t *testing.T) {
	m := compileSource(t, `
struct Point { x: f32, y: f32 }
fn main() -> i32 {
	let p: Point = Point { x: 1.0, y: 2.0 };
	return p.x as i32;
}
`)
	if len(m.Structs) != 1 {
		t.Fatalf("expected 1 struct, got %d", len(m.Structs))
	}
	s := m.Structs[0]
	if s.Module != "test" || s.Name != "Point" {
		t.Errorf("struct identity: %s::%s", s.Module, s.Name)
	}
	for _, f := range s.Fields {
		if f.Type.Kind == bytecode.TStruct && f.Type.Module == "" {
			t.Errorf("field %s: struct ref with empty module", f.Name)
		}
	}
}

func TestGenNativeTable(t *testing.T) {
	m := compileSource(t, `
#[native(lib="host_math")]
fn sqrt(v: f32) -> f32;

fn main() -> i32 {
	return sqrt(4.0) as i32;
}
`)
	if len(m.Natives) != 1 {
		t.Fatalf("expected 1 native, got %d", len(m.Natives))
	}
	n := m.Natives[0]
	if n.Lib != "host_math" || n.Name != "sqrt" {
		t.Errorf("native: %s::%s", n.Lib, n.Name)
	}
	fn := mainFunc(t, m)
	found := false
	for _, ins := range fn.Code {
		if ins.Op == bytecode.OpCallNative && ins.A == 0 {
			found = true
		}
	}
	if !found {
		t.Error("main must call the native through the native table")
	}
}

func TestGenExports(t *testing.T) {
	m := compileSource(t, `
pub const LIMIT: i32 = 32;
const hidden: i32 = 1;

pub struct Vec2 { x: f32, y: f32 }

pub fn add(a: i32, b: i32) -> i32 { return a + b; }
fn helper() -> i32 { return 0; }

fn main() -> i32 { return helper() + hidden; }
`)
	if len(m.ExportedConsts) != 1 || m.ExportedConsts[0].Name != "LIMIT" {
		t.Errorf("exported consts: %+v", m.ExportedConsts)
	}
	if m.ExportedConsts[0].Value.I != 32 {
		t.Errorf("LIMIT value: %d", m.ExportedConsts[0].Value.I)
	}
	if len(m.ExportedFuncs) != 1 || m.ExportedFuncs[0].Name != "add" {
		t.Errorf("exported funcs: %+v", m.ExportedFuncs)
	}
	if len(m.ExportedTypes) != 1 || m.ExportedTypes[0].Name != "Vec2" {
		t.Errorf("exported types: %+v", m.ExportedTypes)
	}
}

func TestConstEvalMatchesRuntimeHelpers(t *testing.T) {
	// The folder and the interpreter share one arithmetic definition;
	// spot-check the shared helpers at their edges.
	if got := bytecode.F32ToI32(float32(3.99)); got != 3 {
		t.Errorf("F32ToI32(3.99) = %d", got)
	}
	if got := bytecode.F32ToI32(float32(-3.99)); got != -3 {
		t.Errorf("F32ToI32(-3.99) = %d", got)
	}
	if got := bytecode.F32ToI32(float32(1e30)); got != 2147483647 {
		t.Errorf("F32ToI32(1e30) = %d", got)
	}
	if got := bytecode.F32ToI32(float32(-1e30)); got != -2147483648 {
		t.Errorf("F32ToI32(-1e30) = %d", got)
	}
	nan := float32(0)
	nan /= nan
	if got := bytecode.F32ToI32(nan); got != 0 {
		t.Errorf("F32ToI32(NaN) = %d", got)
	}
	if got := bytecode.I32Shl(1, 33); got != 2 {
		t.Errorf("I32Shl(1, 33) = %d", got)
	}
	if got := bytecode.I32Shr(-8, 1); got != -4 {
		t.Errorf("I32Shr(-8, 1) = %d", got)
	}
}
