package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// SymbolKind identifies what a name resolves to.
type SymbolKind int

const (
	SymConst SymbolKind = iota
	SymFunc
	SymType
	SymModule // import alias
	SymLocal  // let binding or parameter
)

var symbolKindNames = [...]string{
	SymConst:  "const",
	SymFunc:   "fn",
	SymType:   "type",
	SymModule: "module",
	SymLocal:  "local",
}

func (k SymbolKind) String() string {
	if int(k) >= 0 && int(k) < len(symbolKindNames) {
		return symbolKindNames[k]
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// ConstValue is the evaluated compile-time value of a const symbol.
// Exactly one field is meaningful, selected by the symbol's type.
type ConstValue struct {
	I int32
	F float32
	B bool
	S string
}

// Symbol is one named entity in a module: a const, function, struct
// type, import alias or local. Imported symbols are alias entries whose
// Module names the exporting module; they are never copies.
type Symbol struct {
	Name   string
	Kind   SymbolKind
	Type   Type
	Pub    bool
	Module string // owning module path ("" while compiling the current module)

	// SymLocal
	Slot int

	// SymConst
	Const ConstValue

	// SymFunc
	FuncIndex int // index into the module's function table
	Native    bool
	NativeLib string

	// SymType
	Fields []StructField
}

// StructField is one resolved field of a struct type.
type StructField struct {
	Name string
	Type Type
}

// SymbolTable holds the module-level scope and a stack of local scopes
// for the function currently being checked. Local slots are assigned
// monotonically per function; shadowed names get fresh slots.
type SymbolTable struct {
	module map[string]*Symbol

	// Stack of local scopes, innermost last.
	locals []map[string]*Symbol

	nextSlot int
	maxSlots int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{module: make(map[string]*Symbol)}
}

// DefineModuleSymbol adds a module-level symbol. It reports a duplicate
// if the name is already taken at module scope.
func (s *SymbolTable) DefineModuleSymbol(sym *Symbol) error {
	if prev, ok := s.module[sym.Name]; ok {
		return fmt.Errorf("%s %q already declared as %s", sym.Kind, sym.Name, prev.Kind)
	}
	s.module[sym.Name] = sym
	return nil
}

// ModuleSymbol looks a name up at module scope only.
func (s *SymbolTable) ModuleSymbol(name string) (*Symbol, bool) {
	sym, ok := s.module[name]
	return sym, ok
}

// EnterFunction resets local state for checking one function body.
func (s *SymbolTable) EnterFunction() {
	s.locals = []map[string]*Symbol{make(map[string]*Symbol)}
	s.nextSlot = 0
	s.maxSlots = 0
}

// ExitFunction discards local scopes and returns the number of local
// slots the function body needs.
func (s *SymbolTable) ExitFunction() int {
	s.locals = nil
	return s.maxSlots
}

func (s *SymbolTable) EnterScope() {
	if len(s.locals) == 0 {
		panic("EnterScope called outside function")
	}
	s.locals = append(s.locals, make(map[string]*Symbol))
}

func (s *SymbolTable) ExitScope() {
	if len(s.locals) > 0 {
		s.locals = s.locals[:len(s.locals)-1]
	}
}

// DefineLocal binds a new local in the current scope and assigns it the
// next slot. Redeclaring a name within the same scope is an error;
// shadowing an outer scope is allowed.
func (s *SymbolTable) DefineLocal(name string, typ Type) (*Symbol, error) {
	if len(s.locals) == 0 {
		panic("DefineLocal called outside function")
	}
	scope := s.locals[len(s.locals)-1]
	if _, ok := scope[name]; ok {
		return nil, fmt.Errorf("%q already declared in this scope", name)
	}
	sym := &Symbol{Name: name, Kind: SymLocal, Type: typ, Slot: s.nextSlot}
	s.nextSlot++
	if s.nextSlot > s.maxSlots {
		s.maxSlots = s.nextSlot
	}
	scope[name] = sym
	return sym, nil
}

// Lookup resolves a name: innermost local scope first, then module
// scope. Local scopes shadow module scope.
func (s *SymbolTable) Lookup(name string) (*Symbol, bool) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if sym, ok := s.locals[i][name]; ok {
			return sym, true
		}
	}
	sym, ok := s.module[name]
	return sym, ok
}

// String returns a deterministically ordered dump of the table.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	names := make([]string, 0, len(s.module))
	for name := range s.module {
		names = append(names, name)
	}
	sort.Strings(names)
	sb.WriteString("Module scope:\n")
	for _, name := range names {
		sym := s.module[name]
		fmt.Fprintf(&sb, "  %-20s  %-6s %s\n", name, sym.Kind, sym.Type)
	}
	if len(s.locals) > 0 {
		sb.WriteString("Locals (active stack):\n")
		for i, scope := range s.locals {
			fmt.Fprintf(&sb, "  Scope %d:\n", i)
			names = names[:0]
			for name := range scope {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				sym := scope[name]
				fmt.Fprintf(&sb, "    %-20s  slot %d  %s\n", name, sym.Slot, sym.Type)
			}
		}
	}
	return sb.String()
}
