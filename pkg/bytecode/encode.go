package bytecode

import (
	"encoding/binary"
	"io"
	"math"
)

func float32bits(v float32) uint32 { return math.Float32bits(v) }

// Encoding is deterministic by construction: every table is a slice
// written in index order, so compiling the same source twice yields
// byte-identical artifacts.

type writer struct {
	w   io.Writer
	err error
}

func (w *writer) write(v any) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(w.w, binary.LittleEndian, v)
}

func (w *writer) u8(v uint8)   { w.write(v) }
func (w *writer) u16(v uint16) { w.write(v) }
func (w *writer) u32(v uint32) { w.write(v) }
func (w *writer) i32(v int32)  { w.write(v) }
func (w *writer) f32(v float32) {
	// f32 constants round-trip bit-exactly.
	w.u32(float32bits(v))
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) str(v string) {
	bs := []byte(v)
	w.u32(uint32(len(bs)))
	w.write(bs)
}

func (w *writer) hash(v [32]byte) { w.write(v) }

func (w *writer) typeRef(t TypeRef) {
	w.u8(uint8(t.Kind))
	switch t.Kind {
	case TArray:
		w.typeRef(*t.Elem)
		w.i32(t.Len)
	case TStruct:
		w.str(t.Module)
		w.str(t.Name)
	}
}

func (w *writer) typeRefs(ts []TypeRef) {
	w.u32(uint32(len(ts)))
	for _, t := range ts {
		w.typeRef(t)
	}
}

func (w *writer) constant(c Constant) {
	w.u8(uint8(c.Kind))
	switch c.Kind {
	case ConstI32:
		w.i32(c.I)
	case ConstF32:
		w.f32(c.F)
	case ConstBool:
		w.bool(c.B)
	case ConstStr:
		w.str(c.S)
	}
}

// Encode writes the binary form of m.
func Encode(w io.Writer, m *Module) error {
	e := &writer{w: w}

	e.write(Magic)
	e.u16(Version)

	e.str(m.Name)
	e.str(m.SourceFile)
	e.hash(m.SourceHash)

	e.u32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		e.str(imp.Path)
		e.hash(imp.Hash)
	}

	e.u32(uint32(len(m.FuncRefs)))
	for _, ref := range m.FuncRefs {
		e.u32(ref.ImportIndex)
		e.str(ref.Name)
		e.typeRefs(ref.Params)
		e.typeRef(ref.Ret)
	}

	e.u32(uint32(len(m.Constants)))
	for _, c := range m.Constants {
		e.constant(c)
	}

	e.u32(uint32(len(m.Structs)))
	for _, s := range m.Structs {
		e.str(s.Module)
		e.str(s.Name)
		e.u32(uint32(len(s.Fields)))
		for _, f := range s.Fields {
			e.str(f.Name)
			e.typeRef(f.Type)
		}
	}

	e.u32(uint32(len(m.Natives)))
	for _, n := range m.Natives {
		e.str(n.Name)
		e.str(n.Lib)
		e.typeRefs(n.Params)
		e.typeRef(n.Ret)
	}

	e.u32(uint32(len(m.ExportedConsts)))
	for _, c := range m.ExportedConsts {
		e.str(c.Name)
		e.typeRef(c.Type)
		e.constant(c.Value)
		e.str(c.OriginModule)
		e.str(c.OriginName)
	}

	e.u32(uint32(len(m.ExportedFuncs)))
	for _, f := range m.ExportedFuncs {
		e.str(f.Name)
		e.typeRefs(f.Params)
		e.typeRef(f.Ret)
		e.bool(f.Native)
		e.str(f.Lib)
		e.u32(f.Index)
	}

	e.u32(uint32(len(m.ExportedTypes)))
	for _, t := range m.ExportedTypes {
		e.str(t.Name)
		e.u32(t.Index)
	}

	e.u32(uint32(len(m.Funcs)))
	for _, fn := range m.Funcs {
		e.str(fn.Name)
		e.u32(fn.NumParams)
		e.u32(fn.NumLocals)
		e.u32(uint32(len(fn.Code)))
		for _, ins := range fn.Code {
			e.u8(uint8(ins.Op))
			e.i32(ins.A)
			e.i32(ins.B)
		}
		for _, li := range fn.Lines {
			e.i32(li.Line)
			e.i32(li.Col)
		}
	}

	return e.err
}
