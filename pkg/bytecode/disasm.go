package bytecode

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble writes a human-readable listing of m. Operands that index
// module tables are annotated with the referenced entry.
func Disassemble(w io.Writer, m *Module) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	p("module %s (source %s)\n", m.Name, m.SourceFile)

	for _, imp := range m.Imports {
		p("import %s ; hash %x\n", imp.Path, imp.Hash[:4])
	}
	for i, c := range m.Constants {
		p("const #%d = %s\n", i, c)
	}
	for _, s := range m.Structs {
		p("struct %s::%s {", s.Module, s.Name)
		for i, f := range s.Fields {
			if i > 0 {
				p(", ")
			}
			p("%s: %s", f.Name, f.Type)
		}
		p("}\n")
	}
	for _, n := range m.Natives {
		p("native %s::%s(%s) -> %s\n", n.Lib, n.Name, typeList(n.Params), n.Ret)
	}
	for i, ref := range m.FuncRefs {
		p("extern #%d = %s::%s(%s) -> %s\n", i, m.Imports[ref.ImportIndex].Path, ref.Name, typeList(ref.Params), ref.Ret)
	}

	for fi := range m.Funcs {
		fn := &m.Funcs[fi]
		p("\nfn %s (params %d, locals %d):\n", fn.Name, fn.NumParams, fn.NumLocals)
		for pc, ins := range fn.Code {
			p("  %4d  %-24s%s\n", pc, ins, annotate(m, ins))
		}
	}
	return err
}

// DisassembleFunc writes the listing of a single function.
func DisassembleFunc(w io.Writer, m *Module, fn *Function) error {
	var err error
	for pc, ins := range fn.Code {
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "  %4d  %-24s%s\n", pc, ins, annotate(m, ins))
	}
	return err
}

func annotate(m *Module, ins Instr) string {
	switch ins.Op {
	case OpLoadConst:
		if int(ins.A) < len(m.Constants) {
			return "; " + m.Constants[ins.A].String()
		}
	case OpCall:
		if int(ins.A) < len(m.Funcs) {
			return "; " + m.Funcs[ins.A].Name
		}
	case OpCallNative:
		if int(ins.A) < len(m.Natives) {
			n := m.Natives[ins.A]
			return fmt.Sprintf("; %s::%s", n.Lib, n.Name)
		}
	case OpCallImport:
		if int(ins.A) < len(m.FuncRefs) {
			ref := m.FuncRefs[ins.A]
			return fmt.Sprintf("; %s::%s", m.Imports[ref.ImportIndex].Path, ref.Name)
		}
	case OpNewStruct:
		if int(ins.A) < len(m.Structs) {
			return "; " + m.Structs[ins.A].Name
		}
	}
	return ""
}

func typeList(ts []TypeRef) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
