package bytecode

import "fmt"

// Opcode is the operation of one VM instruction. The instruction set is
// a typed stack machine: arithmetic is split per operand type and the
// verifier-free VM relies on codegen only emitting type-correct code.
type Opcode uint8

const (
	OpNop Opcode = iota

	// Constants and locals
	OpLoadConst  // A = constant pool index; push pool[A]
	OpLoadLocal  // A = slot; push locals[A]
	OpStoreLocal // A = slot; pop into locals[A] (aggregates are copied)

	// Stack
	OpPop // pop-discard one value
	OpDup // duplicate the top of stack

	// i32 arithmetic (two's complement, wrapping)
	OpIAdd
	OpISub
	OpIMul
	OpIDiv // traps DivisionByZero on zero divisor
	OpIMod // traps DivisionByZero on zero divisor
	OpINeg

	// f32 arithmetic (IEEE-754 single precision)
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFNeg

	// i32 bitwise; shift counts are masked to 5 bits
	OpIAnd
	OpIOr
	OpIXor
	OpIShl
	OpIShr
	OpINot // bitwise complement

	// bool
	OpNot // logical complement

	// Comparisons; push bool
	OpICmpEq
	OpICmpNe
	OpICmpLt
	OpICmpLe
	OpICmpGt
	OpICmpGe
	OpFCmpEq
	OpFCmpNe
	OpFCmpLt
	OpFCmpLe
	OpFCmpGt
	OpFCmpGe
	OpSCmpEq // string equality
	OpSCmpNe
	OpBCmpEq // bool equality
	OpBCmpNe

	// str
	OpSConcat // pop b, a; push a + b

	// Conversions
	OpI2F // i32 -> f32
	OpF2I // f32 -> i32 (truncate toward zero, saturating; NaN -> 0)
	OpB2I // bool -> i32 (false=0, true=1)

	// Control flow; A = absolute instruction index within the function
	OpJmp
	OpJmpIfFalse // pop bool; jump when false
	OpJmpIfTrue  // pop bool; jump when true

	// Calls
	OpCall       // A = function index in this module; B = argc
	OpCallNative // A = native table index in this module; B = argc
	OpCallImport // A = imported-function reference index; B = argc
	OpRet        // pop return value, leave it for the caller
	OpRetVoid

	// Arrays
	OpNewArray // A = element count; pop A values, push array
	OpALoad    // pop index, array; push element (bounds checked)
	OpAStore   // pop value, index, array; store (bounds checked)
	OpALen     // pop array; push i32 length

	// Structs; A = struct table index
	OpNewStruct // pop one value per field (in declared order), push struct
	OpGetField  // A = field index; pop struct, push field
	OpSetField  // A = field index; pop value, struct; store

	// Traps
	OpAssert // pop bool; trap AssertionFailed when false

	opcodeCount // not an opcode
)

var opcodeNames = [...]string{
	OpNop:        "nop",
	OpLoadConst:  "load_const",
	OpLoadLocal:  "load_local",
	OpStoreLocal: "store_local",
	OpPop:        "pop",
	OpDup:        "dup",
	OpIAdd:       "iadd",
	OpISub:       "isub",
	OpIMul:       "imul",
	OpIDiv:       "idiv",
	OpIMod:       "imod",
	OpINeg:       "ineg",
	OpFAdd:       "fadd",
	OpFSub:       "fsub",
	OpFMul:       "fmul",
	OpFDiv:       "fdiv",
	OpFNeg:       "fneg",
	OpIAnd:       "iand",
	OpIOr:        "ior",
	OpIXor:       "ixor",
	OpIShl:       "ishl",
	OpIShr:       "ishr",
	OpINot:       "inot",
	OpNot:        "not",
	OpICmpEq:     "icmpeq",
	OpICmpNe:     "icmpne",
	OpICmpLt:     "icmplt",
	OpICmpLe:     "icmple",
	OpICmpGt:     "icmpgt",
	OpICmpGe:     "icmpge",
	OpFCmpEq:     "fcmpeq",
	OpFCmpNe:     "fcmpne",
	OpFCmpLt:     "fcmplt",
	OpFCmpLe:     "fcmple",
	OpFCmpGt:     "fcmpgt",
	OpFCmpGe:     "fcmpge",
	OpSCmpEq:     "scmpeq",
	OpSCmpNe:     "scmpne",
	OpBCmpEq:     "bcmpeq",
	OpBCmpNe:     "bcmpne",
	OpSConcat:    "sconcat",
	OpI2F:        "i2f",
	OpF2I:        "f2i",
	OpB2I:        "b2i",
	OpJmp:        "jmp",
	OpJmpIfFalse: "jmp_if_false",
	OpJmpIfTrue:  "jmp_if_true",
	OpCall:       "call",
	OpCallNative: "call_native",
	OpCallImport: "call_import",
	OpRet:        "ret",
	OpRetVoid:    "ret_void",
	OpNewArray:   "new_array",
	OpALoad:      "aload",
	OpAStore:     "astore",
	OpALen:       "alen",
	OpNewStruct:  "new_struct",
	OpGetField:   "get_field",
	OpSetField:   "set_field",
	OpAssert:     "assert",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// Instr is one instruction. A and B are opcode-specific operands; most
// opcodes use neither or only A.
type Instr struct {
	Op Opcode
	A  int32
	B  int32
}

func (i Instr) String() string {
	switch i.Op {
	case OpCall, OpCallNative, OpCallImport:
		return fmt.Sprintf("%s %d, %d", i.Op, i.A, i.B)
	case OpLoadConst, OpLoadLocal, OpStoreLocal, OpJmp, OpJmpIfFalse, OpJmpIfTrue,
		OpNewArray, OpNewStruct, OpGetField, OpSetField:
		return fmt.Sprintf("%s %d", i.Op, i.A)
	default:
		return i.Op.String()
	}
}
