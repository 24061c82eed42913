package bytecode

import (
	"fmt"
	"math"
)

// Format identification. Version bumps whenever the encoding changes
// incompatibly; decoders reject anything newer than what they know.
var Magic = [4]byte{'S', 'L', 'N', 'G'}

const Version uint16 = 1

// FileExt is the extension of compiled module artifacts.
const FileExt = ".cmod"

// SourceExt is the extension of source modules.
const SourceExt = ".sl"

// TypeKind discriminates serialized type references.
type TypeKind uint8

const (
	TVoid TypeKind = iota
	TI32
	TF32
	TBool
	TStr
	TArray
	TStruct
)

// TypeRef is the serialized spelling of a type. Struct references are
// nominal: Module + Name. Compiled artifacts always spell the module
// out, including for the module's own structs, so references compare
// across modules without rewriting.
type TypeRef struct {
	Kind   TypeKind
	Elem   *TypeRef // TArray
	Len    int32    // TArray
	Module string   // TStruct
	Name   string   // TStruct
}

// Equal reports structural equality of type references.
func (t TypeRef) Equal(o TypeRef) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TArray:
		return t.Len == o.Len && t.Elem.Equal(*o.Elem)
	case TStruct:
		return t.Module == o.Module && t.Name == o.Name
	default:
		return true
	}
}

func (t TypeRef) String() string {
	switch t.Kind {
	case TVoid:
		return "void"
	case TI32:
		return "i32"
	case TF32:
		return "f32"
	case TBool:
		return "bool"
	case TStr:
		return "str"
	case TArray:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.Len)
	case TStruct:
		if t.Module == "" {
			return t.Name
		}
		return t.Module + "::" + t.Name
	default:
		return fmt.Sprintf("TypeRef(%d)", int(t.Kind))
	}
}

// ConstKind discriminates constant pool entries.
type ConstKind uint8

const (
	ConstI32 ConstKind = iota
	ConstF32
	ConstBool
	ConstStr
)

// Constant is one entry of a module's constant pool, deduplicated at
// codegen time.
type Constant struct {
	Kind ConstKind
	I    int32
	F    float32
	B    bool
	S    string
}

// Equal compares constants for identity. Floats compare by bit
// pattern so NaN payloads and signed zeros are distinguished.
func (c Constant) Equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstI32:
		return c.I == o.I
	case ConstF32:
		return math.Float32bits(c.F) == math.Float32bits(o.F)
	case ConstBool:
		return c.B == o.B
	default:
		return c.S == o.S
	}
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstI32:
		return fmt.Sprintf("i32 %d", c.I)
	case ConstF32:
		return fmt.Sprintf("f32 %g", c.F)
	case ConstBool:
		return fmt.Sprintf("bool %t", c.B)
	case ConstStr:
		return fmt.Sprintf("str %q", c.S)
	default:
		return fmt.Sprintf("Constant(%d)", int(c.Kind))
	}
}

// Import is one entry of the import table: the module path plus the
// exporter's content hash at the importer's compile time. The linker
// uses the hash to detect stale artifacts.
type Import struct {
	Path string
	Hash [32]byte
}

// FuncRef is a reference to a function exported by an imported module.
// OpCallImport operands index this table; the linker binds each entry.
type FuncRef struct {
	ImportIndex uint32 // into Imports
	Name        string
	Params      []TypeRef
	Ret         TypeRef
}

// StructDesc is one entry of the type table: a struct layout needed by
// allocation instructions, diagnostics and cross-module identity checks.
// Imported struct types used by this module's code appear here too,
// with Module naming the declaring module.
type StructDesc struct {
	Module string
	Name   string
	Fields []FieldDesc
}

// FieldDesc is one field of a StructDesc.
type FieldDesc struct {
	Name string
	Type TypeRef
}

// NativeDesc declares a native-bound function used by this module. The
// linker validates each entry against the host registry by (lib, name)
// and signature.
type NativeDesc struct {
	Name   string
	Lib    string
	Params []TypeRef
	Ret    TypeRef
}

// ConstExport is an exported constant with its value. Origin names the
// module that originally declared the constant when it was re-exported;
// both fields are empty for a locally declared constant. The linker
// uses origins to verify that a constant reachable through several
// import paths resolves to one canonical value.
type ConstExport struct {
	Name         string
	Type         TypeRef
	Value        Constant
	OriginModule string
	OriginName   string
}

// FuncExport is an exported function. Index refers to Funcs, or to
// Natives when Native is set.
type FuncExport struct {
	Name   string
	Params []TypeRef
	Ret    TypeRef
	Native bool
	Lib    string
	Index  uint32
}

// TypeExport is an exported struct type. Index refers to Structs.
type TypeExport struct {
	Name  string
	Index uint32
}

// LineInfo is the debug map entry for one instruction: the source line
// and column the instruction originates from.
type LineInfo struct {
	Line int32
	Col  int32
}

// Function is one compiled function body.
type Function struct {
	Name      string
	NumParams uint32
	NumLocals uint32 // local slots including parameters
	Code      []Instr
	Lines     []LineInfo // parallel to Code
}

// Module is a compiled, self-describing module: it can be linked and
// executed without access to its original source.
type Module struct {
	Name       string // canonical module path, e.g. "utils/math"
	SourceFile string // original source path, for diagnostics
	SourceHash [32]byte

	Imports  []Import
	FuncRefs []FuncRef

	Constants []Constant
	Structs   []StructDesc
	Natives   []NativeDesc

	ExportedConsts []ConstExport
	ExportedFuncs  []FuncExport
	ExportedTypes  []TypeExport

	Funcs []Function
}

// FuncByName returns the index of a function by name, -1 if absent.
func (m *Module) FuncByName(name string) int {
	for i := range m.Funcs {
		if m.Funcs[i].Name == name {
			return i
		}
	}
	return -1
}
