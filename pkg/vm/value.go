package vm

import (
	"fmt"
	"strings"
)

// ValueKind discriminates runtime values.
type ValueKind uint8

const (
	ValVoid ValueKind = iota
	ValI32
	ValF32
	ValBool
	ValStr
	ValArray
	ValStruct
)

// Value is one runtime value. Aggregates are held by pointer so loads
// push references into the same backing store; value semantics come
// from stores copying (StoreLocal, AStore, SetField and call argument
// binding all deep-copy aggregates).
type Value struct {
	Kind ValueKind
	I    int32
	F    float32
	B    bool
	S    string
	Arr  *ArrayValue
	Obj  *StructValue
}

// ArrayValue is the backing store of an array value.
type ArrayValue struct {
	Elems []Value
}

// StructValue is the backing store of a struct value. TypeIndex points
// into the owning module's type table for diagnostics.
type StructValue struct {
	TypeIndex int32
	Fields    []Value
}

func I32(v int32) Value   { return Value{Kind: ValI32, I: v} }
func F32(v float32) Value { return Value{Kind: ValF32, F: v} }
func Bool(v bool) Value   { return Value{Kind: ValBool, B: v} }
func Str(v string) Value  { return Value{Kind: ValStr, S: v} }
func Void() Value         { return Value{Kind: ValVoid} }

func Array(elems []Value) Value {
	return Value{Kind: ValArray, Arr: &ArrayValue{Elems: elems}}
}

func Struct(typeIndex int32, fields []Value) Value {
	return Value{Kind: ValStruct, Obj: &StructValue{TypeIndex: typeIndex, Fields: fields}}
}

// Copy deep-copies aggregates; primitives and strings copy trivially.
func (v Value) Copy() Value {
	switch v.Kind {
	case ValArray:
		elems := make([]Value, len(v.Arr.Elems))
		for i, e := range v.Arr.Elems {
			elems[i] = e.Copy()
		}
		return Array(elems)
	case ValStruct:
		fields := make([]Value, len(v.Obj.Fields))
		for i, f := range v.Obj.Fields {
			fields[i] = f.Copy()
		}
		return Struct(v.Obj.TypeIndex, fields)
	default:
		return v
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValVoid:
		return "void"
	case ValI32:
		return fmt.Sprintf("%d", v.I)
	case ValF32:
		return fmt.Sprintf("%g", v.F)
	case ValBool:
		return fmt.Sprintf("%t", v.B)
	case ValStr:
		return v.S
	case ValArray:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.Arr.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.String())
		}
		sb.WriteByte(']')
		return sb.String()
	case ValStruct:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, f := range v.Obj.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.String())
		}
		sb.WriteByte('}')
		return sb.String()
	default:
		return fmt.Sprintf("Value(kind=%d)", v.Kind)
	}
}
