package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// maxTableLen bounds every decoded table so corrupt length fields fail
// cleanly instead of attempting absurd allocations.
const maxTableLen = 1 << 20

type reader struct {
	r   io.Reader
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) read(v any) {
	if r.err != nil {
		return
	}
	if err := binary.Read(r.r, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.fail(formatErrorf(Truncated, "unexpected end of module data"))
		} else {
			r.fail(err)
		}
	}
}

func (r *reader) u8() uint8 {
	var v uint8
	r.read(&v)
	return v
}

func (r *reader) u16() uint16 {
	var v uint16
	r.read(&v)
	return v
}

func (r *reader) u32() uint32 {
	var v uint32
	r.read(&v)
	return v
}

func (r *reader) i32() int32 {
	var v int32
	r.read(&v)
	return v
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) bool() bool {
	switch v := r.u8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(formatErrorf(Corrupt, "invalid bool byte %d", v))
		return false
	}
}

// count reads a table length and validates it.
func (r *reader) count(what string) int {
	n := r.u32()
	if n > maxTableLen {
		r.fail(formatErrorf(Corrupt, "%s table length %d out of range", what, n))
		return 0
	}
	return int(n)
}

func (r *reader) str() string {
	n := r.count("string")
	if r.err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	r.read(buf)
	if r.err != nil {
		return ""
	}
	return string(buf)
}

func (r *reader) hash() [32]byte {
	var h [32]byte
	r.read(&h)
	return h
}

func (r *reader) typeRef() TypeRef {
	kind := TypeKind(r.u8())
	if r.err != nil {
		return TypeRef{}
	}
	switch kind {
	case TVoid, TI32, TF32, TBool, TStr:
		return TypeRef{Kind: kind}
	case TArray:
		elem := r.typeRef()
		n := r.i32()
		if n < 0 {
			r.fail(formatErrorf(Corrupt, "negative array length %d", n))
			return TypeRef{}
		}
		return TypeRef{Kind: TArray, Elem: &elem, Len: n}
	case TStruct:
		return TypeRef{Kind: TStruct, Module: r.str(), Name: r.str()}
	default:
		r.fail(formatErrorf(Corrupt, "invalid type kind %d", kind))
		return TypeRef{}
	}
}

func (r *reader) typeRefs() []TypeRef {
	n := r.count("type list")
	if r.err != nil || n == 0 {
		return nil
	}
	out := make([]TypeRef, n)
	for i := range out {
		out[i] = r.typeRef()
	}
	return out
}

func (r *reader) constant() Constant {
	kind := ConstKind(r.u8())
	if r.err != nil {
		return Constant{}
	}
	switch kind {
	case ConstI32:
		return Constant{Kind: kind, I: r.i32()}
	case ConstF32:
		return Constant{Kind: kind, F: r.f32()}
	case ConstBool:
		return Constant{Kind: kind, B: r.bool()}
	case ConstStr:
		return Constant{Kind: kind, S: r.str()}
	default:
		r.fail(formatErrorf(Corrupt, "invalid constant kind %d", kind))
		return Constant{}
	}
}

// Decode reads and validates a compiled module. The magic and version
// are checked before any section is trusted.
func Decode(rd io.Reader) (*Module, error) {
	r := &reader{r: rd}

	var magic [4]byte
	r.read(&magic)
	if r.err != nil {
		return nil, r.err
	}
	if magic != Magic {
		return nil, formatErrorf(BadMagic, "got % x", magic)
	}
	version := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	if version != Version {
		return nil, formatErrorf(UnsupportedVersion, "format version %d, this build reads %d", version, Version)
	}

	m := &Module{}
	m.Name = r.str()
	m.SourceFile = r.str()
	m.SourceHash = r.hash()

	if n := r.count("import"); r.err == nil && n > 0 {
		m.Imports = make([]Import, n)
		for i := range m.Imports {
			m.Imports[i] = Import{Path: r.str(), Hash: r.hash()}
		}
	}

	if n := r.count("function reference"); r.err == nil && n > 0 {
		m.FuncRefs = make([]FuncRef, n)
		for i := range m.FuncRefs {
			m.FuncRefs[i] = FuncRef{ImportIndex: r.u32(), Name: r.str(), Params: r.typeRefs(), Ret: r.typeRef()}
		}
	}

	if n := r.count("constant"); r.err == nil && n > 0 {
		m.Constants = make([]Constant, n)
		for i := range m.Constants {
			m.Constants[i] = r.constant()
		}
	}

	if n := r.count("struct"); r.err == nil && n > 0 {
		m.Structs = make([]StructDesc, n)
		for i := range m.Structs {
			s := StructDesc{Module: r.str(), Name: r.str()}
			if fn := r.count("field"); r.err == nil && fn > 0 {
				s.Fields = make([]FieldDesc, fn)
				for j := range s.Fields {
					s.Fields[j] = FieldDesc{Name: r.str(), Type: r.typeRef()}
				}
			}
			m.Structs[i] = s
		}
	}

	if n := r.count("native"); r.err == nil && n > 0 {
		m.Natives = make([]NativeDesc, n)
		for i := range m.Natives {
			m.Natives[i] = NativeDesc{Name: r.str(), Lib: r.str(), Params: r.typeRefs(), Ret: r.typeRef()}
		}
	}

	if n := r.count("exported constant"); r.err == nil && n > 0 {
		m.ExportedConsts = make([]ConstExport, n)
		for i := range m.ExportedConsts {
			m.ExportedConsts[i] = ConstExport{
				Name: r.str(), Type: r.typeRef(), Value: r.constant(),
				OriginModule: r.str(), OriginName: r.str(),
			}
		}
	}

	if n := r.count("exported function"); r.err == nil && n > 0 {
		m.ExportedFuncs = make([]FuncExport, n)
		for i := range m.ExportedFuncs {
			m.ExportedFuncs[i] = FuncExport{
				Name: r.str(), Params: r.typeRefs(), Ret: r.typeRef(),
				Native: r.bool(), Lib: r.str(), Index: r.u32(),
			}
		}
	}

	if n := r.count("exported type"); r.err == nil && n > 0 {
		m.ExportedTypes = make([]TypeExport, n)
		for i := range m.ExportedTypes {
			m.ExportedTypes[i] = TypeExport{Name: r.str(), Index: r.u32()}
		}
	}

	if n := r.count("function"); r.err == nil && n > 0 {
		m.Funcs = make([]Function, n)
		for i := range m.Funcs {
			fn := Function{Name: r.str(), NumParams: r.u32(), NumLocals: r.u32()}
			cn := r.count("instruction")
			if r.err != nil {
				break
			}
			fn.Code = make([]Instr, cn)
			for j := range fn.Code {
				ins := Instr{Op: Opcode(r.u8()), A: r.i32(), B: r.i32()}
				if r.err == nil && !ins.Op.Valid() {
					return nil, formatErrorf(Corrupt, "function %s: invalid opcode %d at %d", fn.Name, ins.Op, j)
				}
				fn.Code[j] = ins
			}
			fn.Lines = make([]LineInfo, cn)
			for j := range fn.Lines {
				fn.Lines[j] = LineInfo{Line: r.i32(), Col: r.i32()}
			}
			m.Funcs[i] = fn
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeBytes decodes a module from an in-memory buffer.
func DecodeBytes(data []byte) (*Module, error) {
	return Decode(bytes.NewReader(data))
}

// validate performs the cross-section checks decoding alone cannot:
// operand indices, call arity and operand stack discipline. A module
// that passes can still trap, but it cannot make the interpreter index
// outside its own stack or tables.
func validate(m *Module) error {
	for i, ref := range m.FuncRefs {
		if int(ref.ImportIndex) >= len(m.Imports) {
			return formatErrorf(Corrupt, "function reference %d: import index %d out of range", i, ref.ImportIndex)
		}
	}

	// Return shape per function. The interpreter decides whether a call
	// leaves a value on the stack by which return opcode the callee
	// runs, so a function mixing the two has no consistent stack effect.
	retsValue := make([]bool, len(m.Funcs))
	for fi := range m.Funcs {
		fn := &m.Funcs[fi]
		if fn.NumParams > fn.NumLocals {
			return formatErrorf(Corrupt, "function %s: %d params exceed %d local slots", fn.Name, fn.NumParams, fn.NumLocals)
		}
		hasRet, hasRetVoid := false, false
		for _, ins := range fn.Code {
			switch ins.Op {
			case OpRet:
				hasRet = true
			case OpRetVoid:
				hasRetVoid = true
			}
		}
		if hasRet && hasRetVoid {
			return formatErrorf(Corrupt, "function %s: mixes ret and ret_void", fn.Name)
		}
		retsValue[fi] = hasRet
	}

	for _, ex := range m.ExportedFuncs {
		limit := len(m.Funcs)
		if ex.Native {
			limit = len(m.Natives)
		}
		if int(ex.Index) >= limit {
			return formatErrorf(Corrupt, "exported function %s: index %d out of range", ex.Name, ex.Index)
		}
		if !ex.Native && retsValue[ex.Index] != (ex.Ret.Kind != TVoid) {
			return formatErrorf(Corrupt, "exported function %s: signature disagrees with its return opcode", ex.Name)
		}
	}
	for _, ex := range m.ExportedTypes {
		if int(ex.Index) >= len(m.Structs) {
			return formatErrorf(Corrupt, "exported type %s: index %d out of range", ex.Name, ex.Index)
		}
	}
	for fi := range m.Funcs {
		fn := &m.Funcs[fi]
		for pc, ins := range fn.Code {
			switch ins.Op {
			case OpLoadConst:
				if ins.A < 0 || int(ins.A) >= len(m.Constants) {
					return formatErrorf(Corrupt, "%s+%d: constant index %d out of range", fn.Name, pc, ins.A)
				}
			case OpLoadLocal, OpStoreLocal:
				if ins.A < 0 || uint32(ins.A) >= fn.NumLocals {
					return formatErrorf(Corrupt, "%s+%d: local slot %d out of range", fn.Name, pc, ins.A)
				}
			case OpJmp, OpJmpIfFalse, OpJmpIfTrue:
				if ins.A < 0 || int(ins.A) >= len(fn.Code) {
					return formatErrorf(Corrupt, "%s+%d: jump target %d out of range", fn.Name, pc, ins.A)
				}
			case OpCall:
				if ins.A < 0 || int(ins.A) >= len(m.Funcs) {
					return formatErrorf(Corrupt, "%s+%d: function index %d out of range", fn.Name, pc, ins.A)
				}
				if callee := &m.Funcs[ins.A]; int(ins.B) != int(callee.NumParams) {
					return formatErrorf(Corrupt, "%s+%d: call passes %d arguments, %s takes %d", fn.Name, pc, ins.B, callee.Name, callee.NumParams)
				}
			case OpCallNative:
				if ins.A < 0 || int(ins.A) >= len(m.Natives) {
					return formatErrorf(Corrupt, "%s+%d: native index %d out of range", fn.Name, pc, ins.A)
				}
				if nd := &m.Natives[ins.A]; int(ins.B) != len(nd.Params) {
					return formatErrorf(Corrupt, "%s+%d: call passes %d arguments, %s::%s takes %d", fn.Name, pc, ins.B, nd.Lib, nd.Name, len(nd.Params))
				}
			case OpCallImport:
				if ins.A < 0 || int(ins.A) >= len(m.FuncRefs) {
					return formatErrorf(Corrupt, "%s+%d: import reference %d out of range", fn.Name, pc, ins.A)
				}
				if ref := &m.FuncRefs[ins.A]; int(ins.B) != len(ref.Params) {
					return formatErrorf(Corrupt, "%s+%d: call passes %d arguments, %s takes %d", fn.Name, pc, ins.B, ref.Name, len(ref.Params))
				}
			case OpNewArray:
				if ins.A < 0 {
					return formatErrorf(Corrupt, "%s+%d: negative element count %d", fn.Name, pc, ins.A)
				}
			case OpNewStruct:
				if ins.A < 0 || int(ins.A) >= len(m.Structs) {
					return formatErrorf(Corrupt, "%s+%d: struct index %d out of range", fn.Name, pc, ins.A)
				}
			case OpGetField, OpSetField:
				// Positive field indices are checked at run time against
				// the value; negative ones would index before the slice.
				if ins.A < 0 {
					return formatErrorf(Corrupt, "%s+%d: negative field index %d", fn.Name, pc, ins.A)
				}
			}
		}
	}

	for fi := range m.Funcs {
		if err := checkStackDepths(m, &m.Funcs[fi], retsValue); err != nil {
			return err
		}
	}
	return nil
}

// checkStackDepths abstractly interprets fn, tracking the operand stack
// depth along every path. Depths must agree where paths join, and no
// instruction may pop below the frame's stack base, so decoded code can
// never underflow the interpreter's operand stack.
func checkStackDepths(m *Module, fn *Function, retsValue []bool) error {
	if len(fn.Code) == 0 {
		return nil
	}
	depth := make([]int, len(fn.Code))
	for i := range depth {
		depth[i] = -1 // unvisited
	}
	depth[0] = 0
	work := []int{0}

	merge := func(next, d int) error {
		if next >= len(fn.Code) {
			// Falling off the end is reported by the interpreter loop.
			return nil
		}
		if depth[next] == -1 {
			depth[next] = d
			work = append(work, next)
			return nil
		}
		if depth[next] != d {
			return formatErrorf(Corrupt, "%s+%d: stack depth %d on one path, %d on another", fn.Name, next, depth[next], d)
		}
		return nil
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		ins := fn.Code[pc]
		pops, pushes := stackEffect(m, retsValue, ins)
		d := depth[pc]
		if d < pops {
			return formatErrorf(Corrupt, "%s+%d: %s pops %d with only %d on the stack", fn.Name, pc, ins.Op, pops, d)
		}
		d += pushes - pops

		switch ins.Op {
		case OpRet, OpRetVoid:
		case OpJmp:
			if err := merge(int(ins.A), d); err != nil {
				return err
			}
		case OpJmpIfFalse, OpJmpIfTrue:
			if err := merge(int(ins.A), d); err != nil {
				return err
			}
			if err := merge(pc+1, d); err != nil {
				return err
			}
		default:
			if err := merge(pc+1, d); err != nil {
				return err
			}
		}
	}
	return nil
}

// stackEffect returns how many values ins pops and pushes. Operand
// indices are range-checked before this runs.
func stackEffect(m *Module, retsValue []bool, ins Instr) (pops, pushes int) {
	switch ins.Op {
	case OpLoadConst, OpLoadLocal:
		return 0, 1
	case OpStoreLocal, OpPop, OpJmpIfFalse, OpJmpIfTrue, OpAssert, OpRet:
		return 1, 0
	case OpDup:
		return 1, 2
	case OpINeg, OpFNeg, OpINot, OpNot, OpI2F, OpF2I, OpB2I, OpALen, OpGetField:
		return 1, 1
	case OpIAdd, OpISub, OpIMul, OpIDiv, OpIMod,
		OpFAdd, OpFSub, OpFMul, OpFDiv,
		OpIAnd, OpIOr, OpIXor, OpIShl, OpIShr,
		OpICmpEq, OpICmpNe, OpICmpLt, OpICmpLe, OpICmpGt, OpICmpGe,
		OpFCmpEq, OpFCmpNe, OpFCmpLt, OpFCmpLe, OpFCmpGt, OpFCmpGe,
		OpSCmpEq, OpSCmpNe, OpBCmpEq, OpBCmpNe,
		OpSConcat, OpALoad:
		return 2, 1
	case OpSetField:
		return 2, 0
	case OpAStore:
		return 3, 0
	case OpNewArray:
		return int(ins.A), 1
	case OpNewStruct:
		return len(m.Structs[ins.A].Fields), 1
	case OpCall:
		if retsValue[ins.A] {
			return int(ins.B), 1
		}
		return int(ins.B), 0
	case OpCallNative:
		if m.Natives[ins.A].Ret.Kind != TVoid {
			return int(ins.B), 1
		}
		return int(ins.B), 0
	case OpCallImport:
		if m.FuncRefs[ins.A].Ret.Kind != TVoid {
			return int(ins.B), 1
		}
		return int(ins.B), 0
	}
	return 0, 0 // nop, jmp, ret_void
}
