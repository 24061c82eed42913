package compiler

// ModuleExports is the externally visible surface of a compiled module:
// everything an importer needs for name resolution and type checking,
// without access to the exporter's source.
type ModuleExports struct {
	Path string // canonical module path, e.g. "utils/math"

	// Hash is the exporter's source hash. Importers record it in their
	// import table so the linker can detect stale artifacts.
	Hash [32]byte

	Consts []ExportedConst
	Funcs  []ExportedFunc
	Types  []ExportedType
}

// ExportedConst is an exported constant with its evaluated value. The
// value travels with the export so importers can fold it and the linker
// can verify cross-module consistency.
type ExportedConst struct {
	Name  string
	Type  Type
	Value ConstValue

	// Origin tracks where the constant was first declared when it is
	// re-exported through an import chain. An empty OriginModule means
	// the exporting module declared it itself.
	OriginModule string
	OriginName   string
}

// ExportedFunc is an exported function signature. Native functions
// additionally carry the host library they must be bound against.
type ExportedFunc struct {
	Name   string
	Params []Type
	Ret    Type
	Native bool
	Lib    string
}

// ExportedType is an exported struct type. Identity is nominal: the
// importing side refers to it as Path::Name, never by shape.
type ExportedType struct {
	Name   string
	Fields []StructField
}

// ImportResolver supplies the exports of an imported module during type
// checking. The module system implements it; tests may stub it.
type ImportResolver interface {
	ResolveImport(path string) (*ModuleExports, error)
}

// Const looks up an exported constant by name.
func (m *ModuleExports) Const(name string) (*ExportedConst, bool) {
	for i := range m.Consts {
		if m.Consts[i].Name == name {
			return &m.Consts[i], true
		}
	}
	return nil, false
}

// Func looks up an exported function by name.
func (m *ModuleExports) Func(name string) (*ExportedFunc, bool) {
	for i := range m.Funcs {
		if m.Funcs[i].Name == name {
			return &m.Funcs[i], true
		}
	}
	return nil, false
}

// Type looks up an exported struct type by name.
func (m *ModuleExports) Type(name string) (*ExportedType, bool) {
	for i := range m.Types {
		if m.Types[i].Name == name {
			return &m.Types[i], true
		}
	}
	return nil, false
}
