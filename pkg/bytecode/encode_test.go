package bytecode

import (
	"bytes"
	"crypto/sha256"
	"reflect"
	"strings"
	"testing"
)

// sampleModule builds a module touching every artifact section.
func sampleModule() *Module {
	i32 := TypeRef{Kind: TI32}
	f32 := TypeRef{Kind: TF32}
	str := TypeRef{Kind: TStr}

	m := &Module{
		Name:       "demo",
		SourceFile: "demo.sl",
		SourceHash: sha256.Sum256([]byte("fn main() -> i32 { return 0; }")),
		Imports: []Import{
			{Path: "utils/math", Hash: sha256.Sum256([]byte("math source"))},
		},
		FuncRefs: []FuncRef{
			{ImportIndex: 0, Name: "add", Params: []TypeRef{i32, i32}, Ret: i32},
		},
		Constants: []Constant{
			{Kind: ConstI32, I: 42},
			{Kind: ConstF32, F: 3.5},
			{Kind: ConstBool, B: true},
			{Kind: ConstStr, S: "hello"},
		},
		Structs: []StructDesc{
			{Module: "demo", Name: "Point", Fields: []FieldDesc{
				{Name: "x", Type: f32},
				{Name: "y", Type: f32},
				{Name: "tags", Type: TypeRef{Kind: TArray, Elem: &TypeRef{Kind: TI32}, Len: 4}},
			}},
		},
		Natives: []NativeDesc{
			{Name: "println", Lib: "std", Params: []TypeRef{str}, Ret: TypeRef{Kind: TVoid}},
		},
		ExportedConsts: []ConstExport{
			{
				Name: "LIMIT", Type: i32, Value: Constant{Kind: ConstI32, I: 32},
				OriginModule: "utils/math", OriginName: "LIMIT",
			},
		},
		ExportedFuncs: []FuncExport{
			{Name: "main", Ret: i32, Index: 0},
			{Name: "println", Params: []TypeRef{str}, Ret: TypeRef{Kind: TVoid}, Native: true, Lib: "std", Index: 0},
		},
		ExportedTypes: []TypeExport{
			{Name: "Point", Index: 0},
		},
		Funcs: []Function{
			{
				Name:      "main",
				NumParams: 0,
				NumLocals: 1,
				Code: []Instr{
					{Op: OpLoadConst, A: 0},
					{Op: OpStoreLocal, A: 0},
					{Op: OpLoadLocal, A: 0},
					{Op: OpLoadConst, A: 0},
					{Op: OpICmpLt},
					{Op: OpJmpIfFalse, A: 8},
					{Op: OpLoadConst, A: 3},
					{Op: OpCallNative, A: 0, B: 1},
					{Op: OpLoadLocal, A: 0},
					{Op: OpLoadLocal, A: 0},
					{Op: OpCallImport, A: 0, B: 2},
					{Op: OpRet},
				},
				Lines: []LineInfo{
					{1, 5}, {1, 5}, {2, 5}, {2, 9}, {2, 9}, {2, 5},
					{3, 9}, {3, 9}, {4, 12}, {4, 15}, {4, 5}, {4, 5},
				},
			},
		},
	}
	return m
}

func encode(t *testing.T, m *Module) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	m := sampleModule()
	got, err := DecodeBytes(encode(t, m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(m, got) {
		t.Errorf("round trip mismatch:\nencoded: %+v\ndecoded: %+v", m, got)
	}
}

func TestRoundTripDeterministic(t *testing.T) {
	m := sampleModule()
	a := encode(t, m)
	b := encode(t, m)
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same module differ")
	}
}

func formatKind(t *testing.T, err error) FormatErrorKind {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	fe, ok := err.(*FormatError)
	if !ok {
		t.Fatalf("expected *FormatError, got %T: %v", err, err)
	}
	return fe.Kind
}

func TestDecodeBadMagic(t *testing.T) {
	data := encode(t, sampleModule())
	data[0] = 'X'
	if kind := formatKind(t, mustFail(t, data)); kind != BadMagic {
		t.Errorf("expected BadMagic, got %s", kind)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	data := encode(t, sampleModule())
	data[4] = 0xFF
	data[5] = 0xFF
	if kind := formatKind(t, mustFail(t, data)); kind != UnsupportedVersion {
		t.Errorf("expected UnsupportedVersion, got %s", kind)
	}
}

func mustFail(t *testing.T, data []byte) error {
	t.Helper()
	m, err := DecodeBytes(data)
	if err == nil {
		t.Fatalf("expected decode failure, got module %q", m.Name)
	}
	return err
}

// Every strict prefix of a valid artifact must be rejected; the decoder
// never returns a partially populated module.
func TestDecodeTruncated(t *testing.T) {
	data := encode(t, sampleModule())
	for i := 0; i < len(data); i++ {
		if _, err := DecodeBytes(data[:i]); err == nil {
			t.Fatalf("prefix of %d/%d bytes decoded successfully", i, len(data))
		} else if _, ok := err.(*FormatError); !ok {
			t.Fatalf("prefix of %d bytes: expected *FormatError, got %T", i, err)
		}
	}
}

func TestDecodeRejectsInvalidOpcode(t *testing.T) {
	m := sampleModule()
	m.Funcs[0].Code[0].Op = Opcode(213)
	if kind := formatKind(t, mustFail(t, encode(t, m))); kind != Corrupt {
		t.Errorf("expected Corrupt, got %s", kind)
	}
}

func TestValidateOperandRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Module)
	}{
		{"Constant index", func(m *Module) { m.Funcs[0].Code[0] = Instr{Op: OpLoadConst, A: 99} }},
		{"Local slot", func(m *Module) { m.Funcs[0].Code[1] = Instr{Op: OpStoreLocal, A: 7} }},
		{"Jump past end", func(m *Module) { m.Funcs[0].Code[5] = Instr{Op: OpJmp, A: 50} }},
		{"Negative jump", func(m *Module) { m.Funcs[0].Code[5] = Instr{Op: OpJmpIfTrue, A: -1} }},
		{"Call index", func(m *Module) { m.Funcs[0].Code[7] = Instr{Op: OpCall, A: 3} }},
		{"Native index", func(m *Module) { m.Funcs[0].Code[7] = Instr{Op: OpCallNative, A: 2} }},
		{"Import ref index", func(m *Module) { m.Funcs[0].Code[10] = Instr{Op: OpCallImport, A: 4} }},
		{"Struct index", func(m *Module) { m.Funcs[0].Code[7] = Instr{Op: OpNewStruct, A: 1} }},
		{"Negative array count", func(m *Module) { m.Funcs[0].Code[7] = Instr{Op: OpNewArray, A: -3} }},
		{"Negative field index", func(m *Module) { m.Funcs[0].Code[7] = Instr{Op: OpGetField, A: -1} }},
		{"Func ref import", func(m *Module) { m.FuncRefs[0].ImportIndex = 9 }},
		{"Export func index", func(m *Module) { m.ExportedFuncs[0].Index = 9 }},
		{"Export type index", func(m *Module) { m.ExportedTypes[0].Index = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			tt.mutate(m)
			if kind := formatKind(t, mustFail(t, encode(t, m))); kind != Corrupt {
				t.Errorf("expected Corrupt, got %s", kind)
			}
		})
	}
}

func setCode(fn *Function, code ...Instr) {
	fn.Code = code
	fn.Lines = make([]LineInfo, len(code))
	for i := range fn.Lines {
		fn.Lines[i] = LineInfo{Line: 1, Col: 1}
	}
}

// Code that passes the operand checks can still be unrunnable: popping
// an empty stack or calling with the wrong argument count would index
// outside the interpreter's stack. Such artifacts must fail Decode.
func TestValidateStackDiscipline(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Module)
	}{
		{"Pop of empty stack", func(m *Module) {
			setCode(&m.Funcs[0], Instr{Op: OpPop}, Instr{Op: OpRetVoid})
			m.ExportedFuncs[0].Ret = TypeRef{Kind: TVoid}
		}},
		{"Binary op with one operand", func(m *Module) {
			setCode(&m.Funcs[0], Instr{Op: OpLoadConst, A: 0}, Instr{Op: OpIAdd}, Instr{Op: OpRet})
		}},
		{"Call argument count", func(m *Module) {
			m.Funcs = append(m.Funcs, Function{Name: "noop", Code: []Instr{{Op: OpRetVoid}}, Lines: []LineInfo{{1, 1}}})
			setCode(&m.Funcs[0],
				Instr{Op: OpLoadConst, A: 0},
				Instr{Op: OpCall, A: 1, B: 1},
				Instr{Op: OpLoadConst, A: 0},
				Instr{Op: OpRet})
		}},
		{"Native argument count", func(m *Module) {
			m.Funcs[0].Code[7].B = 2
		}},
		{"Import argument count", func(m *Module) {
			m.Funcs[0].Code[10].B = 1
		}},
		{"Params exceed local slots", func(m *Module) {
			m.Funcs = append(m.Funcs, Function{
				Name: "bad", NumParams: 2, NumLocals: 1,
				Code: []Instr{{Op: OpRetVoid}}, Lines: []LineInfo{{1, 1}},
			})
		}},
		{"Mixed return forms", func(m *Module) {
			setCode(&m.Funcs[0], Instr{Op: OpLoadConst, A: 0}, Instr{Op: OpRet}, Instr{Op: OpRetVoid})
		}},
		{"Export signature vs return opcode", func(m *Module) {
			m.ExportedFuncs[0].Ret = TypeRef{Kind: TVoid}
		}},
		{"Inconsistent depth at join", func(m *Module) {
			setCode(&m.Funcs[0],
				Instr{Op: OpLoadConst, A: 2},
				Instr{Op: OpLoadConst, A: 2},
				Instr{Op: OpJmpIfTrue, A: 0},
				Instr{Op: OpRet})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			tt.mutate(m)
			if kind := formatKind(t, mustFail(t, encode(t, m))); kind != Corrupt {
				t.Errorf("expected Corrupt, got %s", kind)
			}
		})
	}
}

func TestDisassembleListsFunctions(t *testing.T) {
	var buf strings.Builder
	if err := Disassemble(&buf, sampleModule()); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"demo", "fn main", "load_const", "call_native", "utils/math"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing is missing %q:\n%s", want, out)
		}
	}
}
