package compiler

import (
	"fmt"
	"strings"
)

// TypeKind discriminates the closed set of slang types.
type TypeKind int

const (
	TypeVoid TypeKind = iota
	TypeI32
	TypeF32
	TypeBool
	TypeStr
	TypeArray
	TypeStructRef
	TypeFunc
)

// Type describes the compile-time type of an expression or symbol.
//
// Struct types are nominal: a StructRef carries the declaring module and
// the struct name, and two struct types are equal iff both match. Arrays
// are structural: element type plus fixed length.
type Type struct {
	Kind TypeKind

	// Array
	Elem *Type
	Len  int

	// StructRef: declared identity, not shape.
	Module string
	Name   string

	// Func
	Params []Type
	Ret    *Type
}

var (
	Void    = Type{Kind: TypeVoid}
	I32Type = Type{Kind: TypeI32}
	F32Type = Type{Kind: TypeF32}
	BoolTyp = Type{Kind: TypeBool}
	StrType = Type{Kind: TypeStr}
)

func ArrayOf(elem Type, n int) Type {
	e := elem
	return Type{Kind: TypeArray, Elem: &e, Len: n}
}

func StructRef(module, name string) Type {
	return Type{Kind: TypeStructRef, Module: module, Name: name}
}

func FuncType(params []Type, ret Type) Type {
	r := ret
	return Type{Kind: TypeFunc, Params: params, Ret: &r}
}

// Equal reports structural equality, with struct types compared by
// declared identity (module + name) rather than field shape.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TypeArray:
		return t.Len == o.Len && t.Elem.Equal(*o.Elem)
	case TypeStructRef:
		return t.Module == o.Module && t.Name == o.Name
	case TypeFunc:
		if len(t.Params) != len(o.Params) || !t.Ret.Equal(*o.Ret) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// IsNumeric reports whether t is i32 or f32.
func (t Type) IsNumeric() bool {
	return t.Kind == TypeI32 || t.Kind == TypeF32
}

// IsAggregate reports whether values of t have copy-on-assignment
// semantics (arrays and structs).
func (t Type) IsAggregate() bool {
	return t.Kind == TypeArray || t.Kind == TypeStructRef
}

func (t Type) String() string {
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypeI32:
		return "i32"
	case TypeF32:
		return "f32"
	case TypeBool:
		return "bool"
	case TypeStr:
		return "str"
	case TypeArray:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.Len)
	case TypeStructRef:
		if t.Module == "" {
			return t.Name
		}
		return t.Module + "::" + t.Name
	case TypeFunc:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return fmt.Sprintf("fn(%s) -> %s", strings.Join(parts, ", "), t.Ret)
	default:
		return fmt.Sprintf("Type(%d)", int(t.Kind))
	}
}

// castAllowed is the fixed cast-legality matrix for `expr as T`.
//
//	i32  -> f32        exact int-to-float conversion
//	f32  -> i32        truncation toward zero
//	bool -> i32        false=0, true=1
//	T    -> T          identity, always legal for primitives
//
// Everything else (str casts, int-to-bool, any aggregate cast) is
// rejected with InvalidCast.
func castAllowed(from, to Type) bool {
	if from.Equal(to) {
		return from.Kind != TypeArray && from.Kind != TypeStructRef && from.Kind != TypeFunc
	}
	switch {
	case from.Kind == TypeI32 && to.Kind == TypeF32:
		return true
	case from.Kind == TypeF32 && to.Kind == TypeI32:
		return true
	case from.Kind == TypeBool && to.Kind == TypeI32:
		return true
	}
	return false
}
