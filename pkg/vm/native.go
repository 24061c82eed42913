package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/flubbe/slang/pkg/bytecode"
)

// NativeFunc is a host function callable from script code. A returned
// error surfaces as a NativeCallFailed trap at the call site.
type NativeFunc func(args []Value) (Value, error)

type nativeEntry struct {
	params []bytecode.TypeRef
	ret    bytecode.TypeRef
	fn     NativeFunc
}

type nativeKey struct {
	lib  string
	name string
}

// Registry holds the host functions a program may bind against, keyed
// by (library, name). The linker validates every native declaration in
// a loaded module against the registered signature.
type Registry struct {
	funcs map[nativeKey]*nativeEntry
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[nativeKey]*nativeEntry)}
}

// Register adds or replaces a host function.
func (r *Registry) Register(lib, name string, params []bytecode.TypeRef, ret bytecode.TypeRef, fn NativeFunc) {
	r.funcs[nativeKey{lib, name}] = &nativeEntry{params: params, ret: ret, fn: fn}
}

// Lookup returns the registered signature and implementation.
func (r *Registry) Lookup(lib, name string) (params []bytecode.TypeRef, ret bytecode.TypeRef, fn NativeFunc, ok bool) {
	e, ok := r.funcs[nativeKey{lib, name}]
	if !ok {
		return nil, bytecode.TypeRef{}, nil, false
	}
	return e.params, e.ret, e.fn, true
}

// RegisterStd populates the "std" library: print and println write
// their argument to w.
func (r *Registry) RegisterStd(w io.Writer) {
	strParam := []bytecode.TypeRef{{Kind: bytecode.TStr}}
	voidRet := bytecode.TypeRef{Kind: bytecode.TVoid}

	r.Register("std", "print", strParam, voidRet, func(args []Value) (Value, error) {
		if _, err := fmt.Fprint(w, args[0].S); err != nil {
			return Void(), err
		}
		return Void(), nil
	})
	r.Register("std", "println", strParam, voidRet, func(args []Value) (Value, error) {
		if _, err := fmt.Fprintln(w, args[0].S); err != nil {
			return Void(), err
		}
		return Void(), nil
	})
}

// StdRegistry is a registry with the "std" library bound to stdout.
func StdRegistry() *Registry {
	r := NewRegistry()
	r.RegisterStd(os.Stdout)
	return r
}
