package vm

import (
	"fmt"

	"github.com/flubbe/slang/pkg/bytecode"
)

// MaxCallDepth bounds the frame stack; exceeding it traps with
// StackOverflow instead of exhausting the host stack.
const MaxCallDepth = 1024

// FuncID addresses one function inside a linked program.
type FuncID struct {
	Module int
	Func   int
}

// LinkedModule is one module with its external references bound.
// FuncBindings and NativeBindings parallel the module's FuncRefs and
// Natives tables.
type LinkedModule struct {
	M              *bytecode.Module
	FuncBindings   []FuncID
	NativeBindings []NativeFunc
}

// Program is a fully linked set of modules plus the entry point.
type Program struct {
	Modules []*LinkedModule
	Entry   FuncID
}

// State is the lifecycle of a VM instance. A VM runs exactly once.
type State int

const (
	Ready State = iota
	Running
	Halted
	Trapped
)

var stateNames = [...]string{"ready", "running", "halted", "trapped"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type frame struct {
	mod    *LinkedModule
	modIdx int
	fn     *bytecode.Function
	pc     int
	base   int // operand stack base for this frame
	locals []Value
}

// VM interprets a linked program. One instance per execution.
type VM struct {
	prog   *Program
	state  State
	stack  []Value
	frames []frame
	trap   *RuntimeError
}

func New(prog *Program) *VM {
	return &VM{prog: prog}
}

func (v *VM) State() State { return v.state }

// Trap returns the runtime error after a trapped run.
func (v *VM) Trap() *RuntimeError { return v.trap }

// Run executes the program's entry function and returns its exit code.
// A trap returns the RuntimeError and leaves the VM in state Trapped.
func (v *VM) Run() (int32, error) {
	if v.state != Ready {
		return 0, fmt.Errorf("vm: cannot run in state %s", v.state)
	}
	v.state = Running

	v.pushFrame(v.prog.Entry, nil)
	exit, err := v.loop()
	if err != nil {
		v.state = Trapped
		return 0, err
	}
	v.state = Halted
	return exit, nil
}

func (v *VM) pushFrame(id FuncID, args []Value) {
	mod := v.prog.Modules[id.Module]
	fn := &mod.M.Funcs[id.Func]
	locals := make([]Value, fn.NumLocals)
	for i, a := range args {
		locals[i] = a.Copy()
	}
	v.frames = append(v.frames, frame{mod: mod, modIdx: id.Module, fn: fn, base: len(v.stack), locals: locals})
}

func (v *VM) push(val Value) { v.stack = append(v.stack, val) }

func (v *VM) pop() Value {
	val := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return val
}

// popN removes and returns the top n values in push order.
func (v *VM) popN(n int) []Value {
	vals := make([]Value, n)
	copy(vals, v.stack[len(v.stack)-n:])
	v.stack = v.stack[:len(v.stack)-n]
	return vals
}

// raise builds a trap for the current instruction. The program counter
// has already advanced, so the faulting instruction is pc-1.
func (v *VM) raise(code RuntimeErrorCode, format string, args ...any) error {
	f := &v.frames[len(v.frames)-1]
	pc := f.pc - 1
	e := &RuntimeError{
		Code:   code,
		Detail: fmt.Sprintf(format, args...),
		Module: f.mod.M.Name,
		Func:   f.fn.Name,
		PC:     pc,
	}
	if pc >= 0 && pc < len(f.fn.Lines) {
		e.Line = int(f.fn.Lines[pc].Line)
		e.Col = int(f.fn.Lines[pc].Col)
	}
	v.trap = e
	return e
}

func (v *VM) loop() (int32, error) {
	for {
		f := &v.frames[len(v.frames)-1]
		if f.pc >= len(f.fn.Code) {
			return 0, fmt.Errorf("vm: %s::%s ran past the end of its code", f.mod.M.Name, f.fn.Name)
		}
		ins := f.fn.Code[f.pc]
		f.pc++

		switch ins.Op {
		case bytecode.OpNop:

		case bytecode.OpLoadConst:
			v.push(constValue(f.mod.M.Constants[ins.A]))
		case bytecode.OpLoadLocal:
			v.push(f.locals[ins.A])
		case bytecode.OpStoreLocal:
			f.locals[ins.A] = v.pop().Copy()

		case bytecode.OpPop:
			v.pop()
		case bytecode.OpDup:
			v.push(v.stack[len(v.stack)-1])

		case bytecode.OpIAdd:
			b, a := v.pop(), v.pop()
			v.push(I32(a.I + b.I))
		case bytecode.OpISub:
			b, a := v.pop(), v.pop()
			v.push(I32(a.I - b.I))
		case bytecode.OpIMul:
			b, a := v.pop(), v.pop()
			v.push(I32(a.I * b.I))
		case bytecode.OpIDiv:
			b, a := v.pop(), v.pop()
			if b.I == 0 {
				return 0, v.raise(DivisionByZero, "%d / 0", a.I)
			}
			v.push(I32(a.I / b.I))
		case bytecode.OpIMod:
			b, a := v.pop(), v.pop()
			if b.I == 0 {
				return 0, v.raise(DivisionByZero, "%d %% 0", a.I)
			}
			v.push(I32(a.I % b.I))
		case bytecode.OpINeg:
			v.push(I32(-v.pop().I))

		case bytecode.OpFAdd:
			b, a := v.pop(), v.pop()
			v.push(F32(a.F + b.F))
		case bytecode.OpFSub:
			b, a := v.pop(), v.pop()
			v.push(F32(a.F - b.F))
		case bytecode.OpFMul:
			b, a := v.pop(), v.pop()
			v.push(F32(a.F * b.F))
		case bytecode.OpFDiv:
			b, a := v.pop(), v.pop()
			v.push(F32(a.F / b.F))
		case bytecode.OpFNeg:
			v.push(F32(-v.pop().F))

		case bytecode.OpIAnd:
			b, a := v.pop(), v.pop()
			v.push(I32(a.I & b.I))
		case bytecode.OpIOr:
			b, a := v.pop(), v.pop()
			v.push(I32(a.I | b.I))
		case bytecode.OpIXor:
			b, a := v.pop(), v.pop()
			v.push(I32(a.I ^ b.I))
		case bytecode.OpIShl:
			b, a := v.pop(), v.pop()
			v.push(I32(bytecode.I32Shl(a.I, b.I)))
		case bytecode.OpIShr:
			b, a := v.pop(), v.pop()
			v.push(I32(bytecode.I32Shr(a.I, b.I)))
		case bytecode.OpINot:
			v.push(I32(^v.pop().I))

		case bytecode.OpNot:
			v.push(Bool(!v.pop().B))

		case bytecode.OpICmpEq:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.I == b.I))
		case bytecode.OpICmpNe:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.I != b.I))
		case bytecode.OpICmpLt:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.I < b.I))
		case bytecode.OpICmpLe:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.I <= b.I))
		case bytecode.OpICmpGt:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.I > b.I))
		case bytecode.OpICmpGe:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.I >= b.I))

		case bytecode.OpFCmpEq:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.F == b.F))
		case bytecode.OpFCmpNe:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.F != b.F))
		case bytecode.OpFCmpLt:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.F < b.F))
		case bytecode.OpFCmpLe:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.F <= b.F))
		case bytecode.OpFCmpGt:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.F > b.F))
		case bytecode.OpFCmpGe:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.F >= b.F))

		case bytecode.OpSCmpEq:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.S == b.S))
		case bytecode.OpSCmpNe:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.S != b.S))
		case bytecode.OpBCmpEq:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.B == b.B))
		case bytecode.OpBCmpNe:
			b, a := v.pop(), v.pop()
			v.push(Bool(a.B != b.B))

		case bytecode.OpSConcat:
			b, a := v.pop(), v.pop()
			v.push(Str(a.S + b.S))

		case bytecode.OpI2F:
			v.push(F32(float32(v.pop().I)))
		case bytecode.OpF2I:
			v.push(I32(bytecode.F32ToI32(v.pop().F)))
		case bytecode.OpB2I:
			if v.pop().B {
				v.push(I32(1))
			} else {
				v.push(I32(0))
			}

		case bytecode.OpJmp:
			f.pc = int(ins.A)
		case bytecode.OpJmpIfFalse:
			if !v.pop().B {
				f.pc = int(ins.A)
			}
		case bytecode.OpJmpIfTrue:
			if v.pop().B {
				f.pc = int(ins.A)
			}

		case bytecode.OpCall:
			if len(v.frames) >= MaxCallDepth {
				return 0, v.raise(StackOverflow, "call depth exceeds %d", MaxCallDepth)
			}
			args := v.popN(int(ins.B))
			v.pushFrame(FuncID{Module: f.modIdx, Func: int(ins.A)}, args)

		case bytecode.OpCallImport:
			if len(v.frames) >= MaxCallDepth {
				return 0, v.raise(StackOverflow, "call depth exceeds %d", MaxCallDepth)
			}
			args := v.popN(int(ins.B))
			v.pushFrame(f.mod.FuncBindings[ins.A], args)

		case bytecode.OpCallNative:
			args := v.popN(int(ins.B))
			for i := range args {
				args[i] = args[i].Copy()
			}
			desc := &f.mod.M.Natives[ins.A]
			ret, err := f.mod.NativeBindings[ins.A](args)
			if err != nil {
				return 0, v.raise(NativeCallFailed, "%s::%s: %v", desc.Lib, desc.Name, err)
			}
			if desc.Ret.Kind != bytecode.TVoid {
				v.push(ret)
			}

		case bytecode.OpRet:
			ret := v.pop()
			v.stack = v.stack[:f.base]
			v.frames = v.frames[:len(v.frames)-1]
			if len(v.frames) == 0 {
				return ret.I, nil
			}
			v.push(ret)

		case bytecode.OpRetVoid:
			v.stack = v.stack[:f.base]
			v.frames = v.frames[:len(v.frames)-1]
			if len(v.frames) == 0 {
				return 0, nil
			}

		case bytecode.OpNewArray:
			elems := v.popN(int(ins.A))
			for i := range elems {
				elems[i] = elems[i].Copy()
			}
			v.push(Array(elems))

		case bytecode.OpALoad:
			idx, arr := v.pop(), v.pop()
			if idx.I < 0 || int(idx.I) >= len(arr.Arr.Elems) {
				return 0, v.raise(IndexOutOfBounds, "index %d, length %d", idx.I, len(arr.Arr.Elems))
			}
			v.push(arr.Arr.Elems[idx.I])

		case bytecode.OpAStore:
			val, idx, arr := v.pop(), v.pop(), v.pop()
			if idx.I < 0 || int(idx.I) >= len(arr.Arr.Elems) {
				return 0, v.raise(IndexOutOfBounds, "index %d, length %d", idx.I, len(arr.Arr.Elems))
			}
			arr.Arr.Elems[idx.I] = val.Copy()

		case bytecode.OpALen:
			v.push(I32(int32(len(v.pop().Arr.Elems))))

		case bytecode.OpNewStruct:
			desc := &f.mod.M.Structs[ins.A]
			fields := v.popN(len(desc.Fields))
			for i := range fields {
				fields[i] = fields[i].Copy()
			}
			v.push(Struct(ins.A, fields))

		case bytecode.OpGetField:
			obj := v.pop()
			if int(ins.A) >= len(obj.Obj.Fields) {
				return 0, v.raise(IndexOutOfBounds, "field %d of %d-field struct", ins.A, len(obj.Obj.Fields))
			}
			v.push(obj.Obj.Fields[ins.A])

		case bytecode.OpSetField:
			val, obj := v.pop(), v.pop()
			if int(ins.A) >= len(obj.Obj.Fields) {
				return 0, v.raise(IndexOutOfBounds, "field %d of %d-field struct", ins.A, len(obj.Obj.Fields))
			}
			obj.Obj.Fields[ins.A] = val.Copy()

		case bytecode.OpAssert:
			if !v.pop().B {
				return 0, v.raise(AssertionFailed, "")
			}

		default:
			return 0, fmt.Errorf("vm: %s::%s+%d: unknown opcode %d", f.mod.M.Name, f.fn.Name, f.pc-1, ins.Op)
		}
	}
}

func constValue(c bytecode.Constant) Value {
	switch c.Kind {
	case bytecode.ConstI32:
		return I32(c.I)
	case bytecode.ConstF32:
		return F32(c.F)
	case bytecode.ConstBool:
		return Bool(c.B)
	default:
		return Str(c.S)
	}
}
