package vm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/flubbe/slang/pkg/compiler"
)

// linkSingle wraps one module with no imports into a runnable program.
// Natives, if any, must be bound by the caller.
func linkSingle(t *testing.T, m *LinkedModule) *Program {
	t.Helper()
	entry := m.M.FuncByName("main")
	if entry < 0 {
		t.Fatal("no main function")
	}
	return &Program{Modules: []*LinkedModule{m}, Entry: FuncID{Module: 0, Func: entry}}
}

func runSource(t *testing.T, src string) (int32, *VM) {
	t.Helper()
	mod, err := compiler.Compile([]byte(src), "main.sl", "main", nil, true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	v := New(linkSingle(t, &LinkedModule{M: mod}))
	exit, err := v.Run()
	if err != nil {
		re := &RuntimeError{}
		if !errors.As(err, &re) {
			t.Fatalf("run: %v", err)
		}
	}
	return exit, v
}

func TestRunArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected int32
	}{
		{
			"Division truncates toward zero",
			`fn main() -> i32 { let a: i32 = -7; let b: i32 = 2; return a / b; }`,
			-3,
		},
		{
			"Modulo keeps the dividend sign",
			`fn main() -> i32 { let a: i32 = -7; let b: i32 = 2; return a % b; }`,
			-1,
		},
		{
			"Addition wraps",
			`fn main() -> i32 { let a: i32 = 2147483647; let b: i32 = 1; return a + b; }`,
			-2147483648,
		},
		{
			"Dividing min by minus one wraps",
			`fn main() -> i32 { let a: i32 = -2147483648; let b: i32 = -1; return a / b; }`,
			-2147483648,
		},
		{
			"Shift count is masked",
			`fn main() -> i32 { let a: i32 = 1; let n: i32 = 33; return a << n; }`,
			2,
		},
		{
			"Arithmetic shift right",
			`fn main() -> i32 { let a: i32 = -8; let n: i32 = 1; return a >> n; }`,
			-4,
		},
		{
			"Bitwise ops",
			`fn main() -> i32 { let a: i32 = 12; let b: i32 = 10; return (a & b) | (a ^ b); }`,
			14,
		},
		{
			"Float round trip truncates",
			`fn main() -> i32 { let f: f32 = 2.5; return (f * 3.0) as i32; }`,
			7,
		},
		{
			"Bool to int",
			`fn main() -> i32 { let a: i32 = 3; return (a > 2) as i32; }`,
			1,
		},
		{
			"String compare",
			`fn main() -> i32 {
				let a: str = "ab";
				let b: str = "cd";
				if a + b == "abcd" { return 1; }
				return 0;
			}`,
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, v := runSource(t, tt.src)
			if v.State() != Halted {
				t.Fatalf("state %s, trap %v", v.State(), v.Trap())
			}
			if exit != tt.expected {
				t.Errorf("exit code %d, expected %d", exit, tt.expected)
			}
		})
	}
}

func TestRunControlFlow(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected int32
	}{
		{
			"While accumulates",
			`fn main() -> i32 {
				let sum: i32 = 0;
				let i: i32 = 0;
				while i < 10 { sum = sum + i; i = i + 1; }
				return sum;
			}`,
			45,
		},
		{
			"For with break and continue",
			`fn main() -> i32 {
				let n: i32 = 0;
				for let i: i32 = 0; i < 100; i = i + 1 {
					if i == 10 { break; }
					if i % 2 == 0 { continue; }
					n = n + i;
				}
				return n;
			}`,
			25,
		},
		{
			"Recursion",
			`fn fib(n: i32) -> i32 {
				if n < 2 { return n; }
				return fib(n - 1) + fib(n - 2);
			}
			fn main() -> i32 { return fib(10); }`,
			55,
		},
		{
			"Short circuit skips the divide",
			`fn main() -> i32 {
				let zero: i32 = 0;
				if zero != 0 && 10 / zero > 0 { return 1; }
				return 2;
			}`,
			2,
		},
		{
			"Short circuit or",
			`fn main() -> i32 {
				let zero: i32 = 0;
				if zero == 0 || 10 / zero > 0 { return 1; }
				return 2;
			}`,
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, v := runSource(t, tt.src)
			if v.State() != Halted {
				t.Fatalf("state %s, trap %v", v.State(), v.Trap())
			}
			if exit != tt.expected {
				t.Errorf("exit code %d, expected %d", exit, tt.expected)
			}
		})
	}
}

func TestRunAggregates(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected int32
	}{
		{
			"Array element sum",
			`fn main() -> i32 {
				let arr: [i32; 4] = [1, 2, 3, 4];
				let sum: i32 = 0;
				for let i: i32 = 0; i < len(arr); i = i + 1 { sum = sum + arr[i]; }
				return sum;
			}`,
			10,
		},
		{
			"Assignment copies the array",
			`fn main() -> i32 {
				let a: [i32; 2] = [1, 2];
				let b: [i32; 2] = a;
				b[0] = 99;
				return a[0];
			}`,
			1,
		},
		{
			"Parameters copy structs",
			`struct Point { x: i32, y: i32 }
			fn clobber(p: Point) { p.x = 99; }
			fn main() -> i32 {
				let p: Point = Point { x: 1, y: 2 };
				clobber(p);
				return p.x;
			}`,
			1,
		},
		{
			"Index assignment mutates in place",
			`struct Buf { data: [i32; 3] }
			fn main() -> i32 {
				let b: Buf = Buf { data: [0, 0, 0] };
				b.data[1] = 7;
				return b.data[1];
			}`,
			7,
		},
		{
			"Nested copy is deep",
			`struct Inner { v: [i32; 2] }
			struct Outer { inner: Inner }
			fn main() -> i32 {
				let a: Outer = Outer { inner: Inner { v: [1, 2] } };
				let b: Outer = a;
				b.inner.v[0] = 50;
				return a.inner.v[0];
			}`,
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, v := runSource(t, tt.src)
			if v.State() != Halted {
				t.Fatalf("state %s, trap %v", v.State(), v.Trap())
			}
			if exit != tt.expected {
				t.Errorf("exit code %d, expected %d", exit, tt.expected)
			}
		})
	}
}

func TestRunTraps(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code RuntimeErrorCode
	}{
		{
			"Division by zero",
			`fn main() -> i32 { let z: i32 = 0; return 1 / z; }`,
			DivisionByZero,
		},
		{
			"Modulo by zero",
			`fn main() -> i32 { let z: i32 = 0; return 1 % z; }`,
			DivisionByZero,
		},
		{
			"Read out of bounds",
			`fn main() -> i32 {
				let arr: [i32; 2] = [1, 2];
				let i: i32 = 5;
				return arr[i];
			}`,
			IndexOutOfBounds,
		},
		{
			"Write to negative index",
			`fn main() -> i32 {
				let arr: [i32; 2] = [1, 2];
				let i: i32 = -1;
				arr[i] = 3;
				return 0;
			}`,
			IndexOutOfBounds,
		},
		{
			"Failed assertion",
			`fn main() -> i32 { assert(1 > 2); return 0; }`,
			AssertionFailed,
		},
		{
			"Unbounded recursion",
			`fn spin(n: i32) -> i32 { return spin(n + 1); }
			fn main() -> i32 { return spin(0); }`,
			StackOverflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, v := runSource(t, tt.src)
			if v.State() != Trapped {
				t.Fatalf("state %s, expected trapped", v.State())
			}
			trap := v.Trap()
			if trap == nil {
				t.Fatal("no trap recorded")
			}
			if trap.Code != tt.code {
				t.Errorf("trap %s, expected %s (%v)", trap.Code, tt.code, trap)
			}
			if trap.Module != "main" || trap.Func == "" {
				t.Errorf("trap location: module %q func %q", trap.Module, trap.Func)
			}
			if trap.Line <= 0 {
				t.Errorf("trap has no source line: %v", trap)
			}
		})
	}
}

func TestNativeCalls(t *testing.T) {
	src := `
#[native(lib="test")]
fn add2(a: i32, b: i32) -> i32;

#[native(lib="test")]
fn boom();

fn main() -> i32 { return add2(20, 22); }
`
	mod, err := compiler.Compile([]byte(src), "main.sl", "main", nil, true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	bindings := make([]NativeFunc, len(mod.Natives))
	for i, n := range mod.Natives {
		switch n.Name {
		case "add2":
			bindings[i] = func(args []Value) (Value, error) {
				return I32(args[0].I + args[1].I), nil
			}
		case "boom":
			bindings[i] = func(args []Value) (Value, error) {
				return Void(), fmt.Errorf("host refused")
			}
		default:
			t.Fatalf("unexpected native %s", n.Name)
		}
	}

	v := New(linkSingle(t, &LinkedModule{M: mod, NativeBindings: bindings}))
	exit, err := v.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if exit != 42 {
		t.Errorf("exit code %d, expected 42", exit)
	}
}

func TestNativeCallFailure(t *testing.T) {
	src := `
#[native(lib="test")]
fn boom();

fn main() -> i32 { boom(); return 0; }
`
	mod, err := compiler.Compile([]byte(src), "main.sl", "main", nil, true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	bindings := []NativeFunc{
		func(args []Value) (Value, error) { return Void(), fmt.Errorf("host refused") },
	}

	v := New(linkSingle(t, &LinkedModule{M: mod, NativeBindings: bindings}))
	if _, err := v.Run(); err == nil {
		t.Fatal("expected trap")
	}
	trap := v.Trap()
	if trap == nil || trap.Code != NativeCallFailed {
		t.Fatalf("trap %v, expected NativeCallFailed", trap)
	}
}

func TestVMRunsOnce(t *testing.T) {
	src := `fn main() -> i32 { return 0; }`
	mod, err := compiler.Compile([]byte(src), "main.sl", "main", nil, true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	v := New(linkSingle(t, &LinkedModule{M: mod}))
	if _, err := v.Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := v.Run(); err == nil {
		t.Fatal("second run must be rejected")
	}
}
