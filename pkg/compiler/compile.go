package compiler

import (
	"crypto/sha256"
	"fmt"

	"github.com/flubbe/slang/pkg/bytecode"
)

// Compile runs the full pipeline on one source module: lex, parse,
// check, generate. modPath is the canonical module path the artifact
// is addressed by; file names the source for diagnostics. When program
// is true the module must define fn main() -> i32. On error no partial
// module is returned.
func Compile(src []byte, file, modPath string, resolver ImportResolver, program bool) (*bytecode.Module, error) {
	tokens, err := Lex(string(src), file)
	if err != nil {
		return nil, err
	}
	ast, err := Parse(tokens, file)
	if err != nil {
		return nil, err
	}
	checked, err := Check(ast, resolver, program)
	if err != nil {
		return nil, err
	}
	mod, err := Generate(checked, modPath)
	if err != nil {
		return nil, err
	}
	mod.SourceHash = sha256.Sum256(src)
	return mod, nil
}

// ExportsOf derives the import-facing surface of a compiled module.
// Both freshly compiled and loaded artifacts go through here, so an
// importer sees the same surface either way.
func ExportsOf(m *bytecode.Module) (*ModuleExports, error) {
	ex := &ModuleExports{Path: m.Name, Hash: m.SourceHash}

	for _, c := range m.ExportedConsts {
		t, err := typeFromRef(c.Type)
		if err != nil {
			return nil, fmt.Errorf("module %s, constant %s: %w", m.Name, c.Name, err)
		}
		ex.Consts = append(ex.Consts, ExportedConst{
			Name: c.Name, Type: t, Value: constValueOf(c.Value),
			OriginModule: c.OriginModule, OriginName: c.OriginName,
		})
	}

	for _, f := range m.ExportedFuncs {
		ret, err := typeFromRef(f.Ret)
		if err != nil {
			return nil, fmt.Errorf("module %s, function %s: %w", m.Name, f.Name, err)
		}
		params := make([]Type, len(f.Params))
		for i, p := range f.Params {
			if params[i], err = typeFromRef(p); err != nil {
				return nil, fmt.Errorf("module %s, function %s: %w", m.Name, f.Name, err)
			}
		}
		ex.Funcs = append(ex.Funcs, ExportedFunc{
			Name: f.Name, Params: params, Ret: ret, Native: f.Native, Lib: f.Lib,
		})
	}

	for _, t := range m.ExportedTypes {
		desc := m.Structs[t.Index]
		fields := make([]StructField, len(desc.Fields))
		for i, f := range desc.Fields {
			ft, err := typeFromRef(f.Type)
			if err != nil {
				return nil, fmt.Errorf("module %s, struct %s: %w", m.Name, desc.Name, err)
			}
			fields[i] = StructField{Name: f.Name, Type: ft}
		}
		ex.Types = append(ex.Types, ExportedType{Name: t.Name, Fields: fields})
	}
	return ex, nil
}

func typeFromRef(r bytecode.TypeRef) (Type, error) {
	switch r.Kind {
	case bytecode.TVoid:
		return Void, nil
	case bytecode.TI32:
		return I32Type, nil
	case bytecode.TF32:
		return F32Type, nil
	case bytecode.TBool:
		return BoolTyp, nil
	case bytecode.TStr:
		return StrType, nil
	case bytecode.TArray:
		elem, err := typeFromRef(*r.Elem)
		if err != nil {
			return Void, err
		}
		return ArrayOf(elem, int(r.Len)), nil
	case bytecode.TStruct:
		return StructRef(r.Module, r.Name), nil
	default:
		return Void, fmt.Errorf("unknown type kind %d", r.Kind)
	}
}

func constValueOf(c bytecode.Constant) ConstValue {
	switch c.Kind {
	case bytecode.ConstI32:
		return ConstValue{I: c.I}
	case bytecode.ConstF32:
		return ConstValue{F: c.F}
	case bytecode.ConstBool:
		return ConstValue{B: c.B}
	default:
		return ConstValue{S: c.S}
	}
}
