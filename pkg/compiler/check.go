package compiler

import "fmt"

// builtinFuncs are implicitly declared native functions, available in
// every module without an import. They live in host library "std" and
// are validated against the native registry at link time like any other
// native declaration.
var builtinFuncs = map[string]*Symbol{
	"print": {
		Name: "print", Kind: SymFunc, Native: true, NativeLib: "std",
		Type: FuncType([]Type{StrType}, Void),
	},
	"println": {
		Name: "println", Kind: SymFunc, Native: true, NativeLib: "std",
		Type: FuncType([]Type{StrType}, Void),
	},
}

// ImportRef is one resolved import of the module under compilation.
type ImportRef struct {
	Alias   string
	Path    string
	Exports *ModuleExports
}

// CheckedModule is the output of the checker: the source AST annotated
// in place, plus the ordered tables code generation works from.
type CheckedModule struct {
	Source  *SourceModule
	Syms    *SymbolTable
	Imports []ImportRef

	Funcs   []*FuncDecl // script functions, in declaration order
	Natives []*FuncDecl // native declarations, in declaration order
	Structs []*StructDecl
	Consts  []*ConstDecl
}

// Checker resolves names, checks types and annotates the AST. It is a
// single-pass, depth-first walk per declaration after a registration
// pre-pass that makes forward references within the module work.
type Checker struct {
	mod      *SourceModule
	syms     *SymbolTable
	resolver ImportResolver
	program  bool

	imports map[string]*ImportRef // by alias

	fnRet     Type
	loopDepth int

	out *CheckedModule
}

// Check type-checks mod. resolver supplies the exports of imported
// modules. When program is true, main must have the required signature
// fn main() -> i32.
func Check(mod *SourceModule, resolver ImportResolver, program bool) (*CheckedModule, error) {
	c := &Checker{
		mod:      mod,
		syms:     NewSymbolTable(),
		resolver: resolver,
		program:  program,
		imports:  make(map[string]*ImportRef),
	}
	c.out = &CheckedModule{Source: mod, Syms: c.syms}
	if err := c.registerDecls(); err != nil {
		return nil, err
	}
	if err := c.resolveStructs(); err != nil {
		return nil, err
	}
	if err := c.checkConsts(); err != nil {
		return nil, err
	}
	if err := c.checkFuncs(); err != nil {
		return nil, err
	}
	return c.out, nil
}

//  Registration pre-pass

func (c *Checker) registerDecls() error {
	for _, d := range c.mod.Decls {
		switch decl := d.(type) {
		case *ImportDecl:
			if err := c.registerImport(decl); err != nil {
				return err
			}
		case *StructDecl:
			sym := &Symbol{Name: decl.Name, Kind: SymType, Pub: decl.Pub}
			if err := c.syms.DefineModuleSymbol(sym); err != nil {
				return typeErrorf(decl.Loc, DuplicateDeclaration, "%v", err)
			}
			c.out.Structs = append(c.out.Structs, decl)
		case *ConstDecl:
			sym := &Symbol{Name: decl.Name, Kind: SymConst, Pub: decl.Pub}
			if err := c.syms.DefineModuleSymbol(sym); err != nil {
				return typeErrorf(decl.Loc, DuplicateDeclaration, "%v", err)
			}
			c.out.Consts = append(c.out.Consts, decl)
		case *FuncDecl:
			// assert and len resolve before any symbol lookup, so a
			// function taking their name could never be called.
			switch decl.Name {
			case "assert", "len":
				return typeErrorf(decl.Loc, DuplicateDeclaration, "cannot redeclare builtin %q", decl.Name)
			}
			sym := &Symbol{
				Name: decl.Name, Kind: SymFunc, Pub: decl.Pub,
				Native: decl.Native, NativeLib: decl.NativeLib,
			}
			if decl.Native {
				sym.FuncIndex = len(c.out.Natives)
				c.out.Natives = append(c.out.Natives, decl)
			} else {
				sym.FuncIndex = len(c.out.Funcs)
				c.out.Funcs = append(c.out.Funcs, decl)
			}
			if err := c.syms.DefineModuleSymbol(sym); err != nil {
				return typeErrorf(decl.Loc, DuplicateDeclaration, "%v", err)
			}
		}
	}

	// Function signatures are resolved after all type names are known.
	for _, d := range c.mod.Decls {
		decl, ok := d.(*FuncDecl)
		if !ok {
			continue
		}
		sym, _ := c.syms.ModuleSymbol(decl.Name)
		params := make([]Type, len(decl.Params))
		for i, p := range decl.Params {
			t, err := c.resolveTypeName(p.TypeName)
			if err != nil {
				return err
			}
			params[i] = t
		}
		ret := Void
		if decl.RetType != nil {
			t, err := c.resolveTypeName(decl.RetType)
			if err != nil {
				return err
			}
			ret = t
		}
		sym.Type = FuncType(params, ret)
	}
	return nil
}

func (c *Checker) registerImport(decl *ImportDecl) error {
	alias := decl.Alias()
	path := decl.ModulePath()
	if c.resolver == nil {
		return typeErrorf(decl.Loc, UnresolvedSymbol, "import %s: no import resolver configured", path)
	}
	// Resolver errors pass through unwrapped-able so callers can still
	// classify them (cyclic imports, missing modules).
	exports, err := c.resolver.ResolveImport(path)
	if err != nil {
		return fmt.Errorf("%s: import %s: %w", decl.Loc, path, err)
	}
	sym := &Symbol{Name: alias, Kind: SymModule, Module: path}
	if err := c.syms.DefineModuleSymbol(sym); err != nil {
		return typeErrorf(decl.Loc, DuplicateDeclaration, "%v", err)
	}
	ref := &ImportRef{Alias: alias, Path: path, Exports: exports}
	c.imports[alias] = ref
	c.out.Imports = append(c.out.Imports, *ref)
	return nil
}

//  Types

func (c *Checker) resolveTypeName(tn *TypeName) (Type, error) {
	switch {
	case tn == nil:
		return Void, nil
	case tn.Elem != nil:
		elem, err := c.resolveTypeName(tn.Elem)
		if err != nil {
			return Void, err
		}
		return ArrayOf(elem, tn.Len), nil
	case tn.Name != "":
		if tn.Module != "" {
			ref, ok := c.imports[tn.Module]
			if !ok {
				return Void, typeErrorf(tn.Loc, UnresolvedSymbol, "unknown module alias %q", tn.Module)
			}
			if _, ok := ref.Exports.Type(tn.Name); !ok {
				return Void, typeErrorf(tn.Loc, UnresolvedSymbol, "module %s exports no type %q", ref.Path, tn.Name)
			}
			return StructRef(ref.Path, tn.Name), nil
		}
		sym, ok := c.syms.ModuleSymbol(tn.Name)
		if !ok || sym.Kind != SymType {
			return Void, typeErrorf(tn.Loc, UnresolvedSymbol, "unknown type %q", tn.Name)
		}
		return StructRef("", tn.Name), nil
	default:
		switch tn.Prim {
		case I32:
			return I32Type, nil
		case F32:
			return F32Type, nil
		case BOOL:
			return BoolTyp, nil
		case STR:
			return StrType, nil
		}
		return Void, typeErrorf(tn.Loc, UnresolvedSymbol, "unknown type %s", tn)
	}
}

func (c *Checker) resolveStructs() error {
	for _, decl := range c.out.Structs {
		sym, _ := c.syms.ModuleSymbol(decl.Name)
		fields := make([]StructField, 0, len(decl.Fields))
		seen := make(map[string]bool)
		for _, f := range decl.Fields {
			if seen[f.Name] {
				return typeErrorf(f.Loc, DuplicateDeclaration, "duplicate field %q in struct %s", f.Name, decl.Name)
			}
			seen[f.Name] = true
			t, err := c.resolveTypeName(f.TypeName)
			if err != nil {
				return err
			}
			fields = append(fields, StructField{Name: f.Name, Type: t})
		}
		sym.Type = StructRef("", decl.Name)
		sym.Fields = fields
	}

	// Reject value-recursive structs: a struct embedding itself (directly
	// or through other local structs/arrays) would have infinite size.
	for _, decl := range c.out.Structs {
		if c.structEmbeds(decl.Name, decl.Name, make(map[string]bool)) {
			return typeErrorf(decl.Loc, TypeMismatch, "struct %s recursively contains itself by value", decl.Name)
		}
	}
	return nil
}

func (c *Checker) structEmbeds(root, name string, visiting map[string]bool) bool {
	if visiting[name] {
		return false
	}
	visiting[name] = true
	sym, ok := c.syms.ModuleSymbol(name)
	if !ok || sym.Kind != SymType {
		return false
	}
	for _, f := range sym.Fields {
		t := f.Type
		for t.Kind == TypeArray {
			t = *t.Elem
		}
		if t.Kind != TypeStructRef || t.Module != "" {
			continue
		}
		if t.Name == root {
			return true
		}
		if c.structEmbeds(root, t.Name, visiting) {
			return true
		}
	}
	return false
}

// structFields returns the resolved field list of a struct type, local
// or imported.
func (c *Checker) structFields(t Type, loc Location) ([]StructField, error) {
	if t.Kind != TypeStructRef {
		return nil, typeErrorf(loc, TypeMismatch, "%s is not a struct type", t)
	}
	if t.Module == "" {
		sym, ok := c.syms.ModuleSymbol(t.Name)
		if !ok || sym.Kind != SymType {
			return nil, typeErrorf(loc, UnresolvedSymbol, "unknown struct %q", t.Name)
		}
		return sym.Fields, nil
	}
	for _, ref := range c.out.Imports {
		if ref.Path != t.Module {
			continue
		}
		et, ok := ref.Exports.Type(t.Name)
		if !ok {
			break
		}
		return et.Fields, nil
	}
	return nil, typeErrorf(loc, UnresolvedSymbol, "unknown struct %s::%s", t.Module, t.Name)
}

//  Constants

func (c *Checker) checkConsts() error {
	for _, decl := range c.out.Consts {
		declared, err := c.resolveTypeName(decl.TypeName)
		if err != nil {
			return err
		}
		switch declared.Kind {
		case TypeI32, TypeF32, TypeBool, TypeStr:
		default:
			return typeErrorf(decl.Loc, TypeMismatch, "const %s: constants must have primitive type, got %s", decl.Name, declared)
		}
		actual, err := c.checkExpr(decl.Value)
		if err != nil {
			return err
		}
		if !actual.Equal(declared) {
			return typeErrorf(decl.Value.Pos(), TypeMismatch,
				"const %s declared %s but value has type %s", decl.Name, declared, actual)
		}
		val, ok := evalConst(decl.Value)
		if !ok {
			return typeErrorf(decl.Value.Pos(), TypeMismatch,
				"const %s requires a constant expression", decl.Name)
		}
		sym, _ := c.syms.ModuleSymbol(decl.Name)
		sym.Type = declared
		sym.Const = val
	}
	return nil
}

//  Functions

func (c *Checker) checkFuncs() error {
	for _, decl := range c.out.Funcs {
		if err := c.checkFunc(decl); err != nil {
			return err
		}
	}
	if c.program {
		if err := c.checkMainSignature(); err != nil {
			return err
		}
	}
	return nil
}

// checkMainSignature enforces the required entry point shape
// fn main() -> i32, exactly.
func (c *Checker) checkMainSignature() error {
	sym, ok := c.syms.ModuleSymbol("main")
	if !ok || sym.Kind != SymFunc {
		return typeErrorf(Location{File: c.mod.File, Line: 1, Col: 1}, InvalidMainSignature,
			"program has no main function")
	}
	want := FuncType(nil, I32Type)
	if sym.Native || !sym.Type.Equal(want) {
		return typeErrorf(Location{File: c.mod.File, Line: 1, Col: 1}, InvalidMainSignature,
			"main must be declared as fn main() -> i32, got %s", sym.Type)
	}
	return nil
}

func (c *Checker) checkFunc(decl *FuncDecl) error {
	sym, _ := c.syms.ModuleSymbol(decl.Name)
	c.fnRet = *sym.Type.Ret
	c.loopDepth = 0

	c.syms.EnterFunction()
	for i, p := range decl.Params {
		psym, err := c.syms.DefineLocal(p.Name, sym.Type.Params[i])
		if err != nil {
			return typeErrorf(p.Loc, DuplicateDeclaration, "parameter %v", err)
		}
		_ = psym
	}
	if err := c.checkBlock(decl.Body); err != nil {
		return err
	}
	decl.NumLocals = c.syms.ExitFunction()

	if c.fnRet.Kind != TypeVoid && !blockReturns(decl.Body) {
		return typeErrorf(decl.Loc, TypeMismatch, "function %s: missing return on some path", decl.Name)
	}
	return nil
}

// blockReturns conservatively reports whether every path through the
// block ends in a return.
func blockReturns(b *BlockStmt) bool {
	if b == nil || len(b.Stmts) == 0 {
		return false
	}
	return stmtReturns(b.Stmts[len(b.Stmts)-1])
}

func stmtReturns(s Stmt) bool {
	switch n := s.(type) {
	case *ReturnStmt:
		return true
	case *BlockStmt:
		return blockReturns(n)
	case *IfStmt:
		if n.ElseBody == nil {
			return false
		}
		return blockReturns(n.Body) && stmtReturns(n.ElseBody)
	default:
		return false
	}
}

//  Statements

func (c *Checker) checkBlock(b *BlockStmt) error {
	c.syms.EnterScope()
	defer c.syms.ExitScope()
	for _, s := range b.Stmts {
		if err := c.checkStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkStmt(s Stmt) error {
	switch n := s.(type) {
	case *LetStmt:
		return c.checkLet(n)

	case *AssignStmt:
		return c.checkAssign(n)

	case *ExprStmt:
		_, err := c.checkExpr(n.Expr)
		return err

	case *ReturnStmt:
		if n.Expr == nil {
			if c.fnRet.Kind != TypeVoid {
				return typeErrorf(n.Loc, TypeMismatch, "return without value in function returning %s", c.fnRet)
			}
			return nil
		}
		t, err := c.checkExpr(n.Expr)
		if err != nil {
			return err
		}
		if c.fnRet.Kind == TypeVoid {
			return typeErrorf(n.Loc, TypeMismatch, "return with value in void function")
		}
		if !t.Equal(c.fnRet) {
			return typeErrorf(n.Loc, TypeMismatch, "cannot return %s from function returning %s", t, c.fnRet)
		}
		return nil

	case *IfStmt:
		if err := c.checkCond(n.Condition); err != nil {
			return err
		}
		if err := c.checkBlock(n.Body); err != nil {
			return err
		}
		if n.ElseBody != nil {
			return c.checkStmt(n.ElseBody)
		}
		return nil

	case *WhileStmt:
		if err := c.checkCond(n.Condition); err != nil {
			return err
		}
		c.loopDepth++
		err := c.checkBlock(n.Body)
		c.loopDepth--
		return err

	case *ForStmt:
		c.syms.EnterScope()
		defer c.syms.ExitScope()
		if n.Init != nil {
			if err := c.checkStmt(n.Init); err != nil {
				return err
			}
		}
		if n.Cond != nil {
			if err := c.checkCond(n.Cond); err != nil {
				return err
			}
		}
		if n.Post != nil {
			if err := c.checkStmt(n.Post); err != nil {
				return err
			}
		}
		c.loopDepth++
		err := c.checkBlock(n.Body)
		c.loopDepth--
		return err

	case *BreakStmt:
		if c.loopDepth == 0 {
			return typeErrorf(n.Loc, TypeMismatch, "break outside loop")
		}
		return nil

	case *ContinueStmt:
		if c.loopDepth == 0 {
			return typeErrorf(n.Loc, TypeMismatch, "continue outside loop")
		}
		return nil

	case *BlockStmt:
		return c.checkBlock(n)

	default:
		return fmt.Errorf("checker: unhandled statement %T", s)
	}
}

func (c *Checker) checkCond(e Expr) error {
	t, err := c.checkExpr(e)
	if err != nil {
		return err
	}
	if t.Kind != TypeBool {
		return typeErrorf(e.Pos(), TypeMismatch, "condition must be bool, got %s", t)
	}
	return nil
}

func (c *Checker) checkLet(n *LetStmt) error {
	declared, err := c.resolveTypeName(n.TypeName)
	if err != nil {
		return err
	}
	actual, err := c.checkExpr(n.Init)
	if err != nil {
		return err
	}
	if !actual.Equal(declared) {
		return typeErrorf(n.Init.Pos(), TypeMismatch,
			"let %s declared %s but initializer has type %s", n.Name, declared, actual)
	}
	sym, err := c.syms.DefineLocal(n.Name, declared)
	if err != nil {
		return typeErrorf(n.Loc, DuplicateDeclaration, "%v", err)
	}
	n.Sym = sym
	return nil
}

func (c *Checker) checkAssign(n *AssignStmt) error {
	switch lhs := n.Left.(type) {
	case *VarRef, *IndexExpr, *FieldExpr:
		_ = lhs
	default:
		return typeErrorf(n.Loc, TypeMismatch, "left side of assignment is not assignable")
	}
	lt, err := c.checkExpr(n.Left)
	if err != nil {
		return err
	}
	if v, ok := n.Left.(*VarRef); ok && v.Sym.Kind != SymLocal {
		return typeErrorf(n.Loc, TypeMismatch, "cannot assign to %s %q", v.Sym.Kind, v.Name)
	}
	rt, err := c.checkExpr(n.Value)
	if err != nil {
		return err
	}
	if !rt.Equal(lt) {
		return typeErrorf(n.Loc, TypeMismatch, "cannot assign %s to %s", rt, lt)
	}
	return nil
}

//  Expressions

func (c *Checker) checkExpr(e Expr) (Type, error) {
	t, err := c.checkExprInner(e)
	if err != nil {
		return Void, err
	}
	e.setType(t)
	return t, nil
}

func (c *Checker) checkExprInner(e Expr) (Type, error) {
	switch n := e.(type) {
	case *IntLit:
		return I32Type, nil
	case *FloatLit:
		return F32Type, nil
	case *BoolLit:
		return BoolTyp, nil
	case *StringLit:
		return StrType, nil

	case *ArrayLit:
		if len(n.Elements) == 0 {
			return Void, typeErrorf(n.Loc, TypeMismatch, "cannot infer element type of empty array literal")
		}
		elem, err := c.checkExpr(n.Elements[0])
		if err != nil {
			return Void, err
		}
		for _, el := range n.Elements[1:] {
			t, err := c.checkExpr(el)
			if err != nil {
				return Void, err
			}
			if !t.Equal(elem) {
				return Void, typeErrorf(el.Pos(), TypeMismatch,
					"array literal elements must share one type: %s vs %s", elem, t)
			}
		}
		return ArrayOf(elem, len(n.Elements)), nil

	case *StructLit:
		return c.checkStructLit(n)

	case *VarRef:
		return c.checkVarRef(n)

	case *BinaryExpr:
		return c.checkBinary(n)

	case *LogicalExpr:
		for _, side := range []Expr{n.Left, n.Right} {
			t, err := c.checkExpr(side)
			if err != nil {
				return Void, err
			}
			if t.Kind != TypeBool {
				return Void, typeErrorf(side.Pos(), TypeMismatch, "operand of %s must be bool, got %s", n.Op, t)
			}
		}
		return BoolTyp, nil

	case *UnaryExpr:
		t, err := c.checkExpr(n.Right)
		if err != nil {
			return Void, err
		}
		switch n.Op {
		case MINUS:
			if !t.IsNumeric() {
				return Void, typeErrorf(n.Loc, TypeMismatch, "unary - needs a numeric operand, got %s", t)
			}
			return t, nil
		case NOT:
			if t.Kind != TypeBool {
				return Void, typeErrorf(n.Loc, TypeMismatch, "unary ! needs a bool operand, got %s", t)
			}
			return BoolTyp, nil
		case TILDE:
			if t.Kind != TypeI32 {
				return Void, typeErrorf(n.Loc, TypeMismatch, "unary ~ needs an i32 operand, got %s", t)
			}
			return I32Type, nil
		}
		return Void, typeErrorf(n.Loc, TypeMismatch, "unknown unary operator %s", n.Op)

	case *CastExpr:
		from, err := c.checkExpr(n.Expr)
		if err != nil {
			return Void, err
		}
		to, err := c.resolveTypeName(n.Target)
		if err != nil {
			return Void, err
		}
		if !castAllowed(from, to) {
			return Void, typeErrorf(n.Loc, InvalidCast, "cannot cast %s to %s", from, to)
		}
		return to, nil

	case *CallExpr:
		return c.checkCall(n)

	case *IndexExpr:
		lt, err := c.checkExpr(n.Left)
		if err != nil {
			return Void, err
		}
		if lt.Kind != TypeArray {
			return Void, typeErrorf(n.Loc, TypeMismatch, "cannot index %s", lt)
		}
		it, err := c.checkExpr(n.Index)
		if err != nil {
			return Void, err
		}
		if it.Kind != TypeI32 {
			return Void, typeErrorf(n.Index.Pos(), TypeMismatch, "array index must be i32, got %s", it)
		}
		return *lt.Elem, nil

	case *FieldExpr:
		lt, err := c.checkExpr(n.Left)
		if err != nil {
			return Void, err
		}
		fields, err := c.structFields(lt, n.Loc)
		if err != nil {
			return Void, err
		}
		for i, f := range fields {
			if f.Name == n.Field {
				n.FieldIndex = i
				return f.Type, nil
			}
		}
		return Void, typeErrorf(n.Loc, UnresolvedSymbol, "%s has no field %q", lt, n.Field)

	default:
		return Void, fmt.Errorf("checker: unhandled expression %T", e)
	}
}

func (c *Checker) checkBinary(n *BinaryExpr) (Type, error) {
	lt, err := c.checkExpr(n.Left)
	if err != nil {
		return Void, err
	}
	rt, err := c.checkExpr(n.Right)
	if err != nil {
		return Void, err
	}
	if !lt.Equal(rt) {
		return Void, typeErrorf(n.Loc, TypeMismatch, "operands of %s must match: %s vs %s", n.Op, lt, rt)
	}

	switch n.Op {
	case PLUS:
		if lt.IsNumeric() || lt.Kind == TypeStr {
			return lt, nil
		}
	case MINUS, STAR, SLASH:
		if lt.IsNumeric() {
			return lt, nil
		}
	case PERCENT, AND, PIPE, CARET, SHL_OP, SHR_OP:
		if lt.Kind == TypeI32 {
			return lt, nil
		}
	case LESS, GREATER, LESS_EQ, GREATER_EQ:
		if lt.IsNumeric() {
			return BoolTyp, nil
		}
	case EQUALS, NOT_EQ:
		switch lt.Kind {
		case TypeI32, TypeF32, TypeBool, TypeStr:
			return BoolTyp, nil
		}
	default:
		return Void, fmt.Errorf("checker: unhandled binary operator %s", n.Op)
	}
	return Void, typeErrorf(n.Loc, TypeMismatch, "operator %s is not defined for %s", n.Op, lt)
}

func (c *Checker) checkStructLit(n *StructLit) (Type, error) {
	var fields []StructField
	var typ Type
	if n.Module != "" {
		ref, ok := c.imports[n.Module]
		if !ok {
			return Void, typeErrorf(n.Loc, UnresolvedSymbol, "unknown module alias %q", n.Module)
		}
		et, ok := ref.Exports.Type(n.Name)
		if !ok {
			return Void, typeErrorf(n.Loc, UnresolvedSymbol, "module %s exports no type %q", ref.Path, n.Name)
		}
		fields, typ = et.Fields, StructRef(ref.Path, n.Name)
	} else {
		sym, ok := c.syms.ModuleSymbol(n.Name)
		if !ok || sym.Kind != SymType {
			return Void, typeErrorf(n.Loc, UnresolvedSymbol, "unknown struct %q", n.Name)
		}
		fields, typ = sym.Fields, StructRef("", n.Name)
	}

	// Field names, types and order must match the declaration exactly.
	if len(n.Fields) != len(fields) {
		return Void, typeErrorf(n.Loc, TypeMismatch,
			"struct %s has %d fields, literal provides %d", typ, len(fields), len(n.Fields))
	}
	for i, init := range n.Fields {
		if init.Name != fields[i].Name {
			return Void, typeErrorf(init.Loc, TypeMismatch,
				"struct %s field %d is %q, literal names %q (fields must appear in declared order)",
				typ, i, fields[i].Name, init.Name)
		}
		t, err := c.checkExpr(init.Value)
		if err != nil {
			return Void, err
		}
		if !t.Equal(fields[i].Type) {
			return Void, typeErrorf(init.Loc, TypeMismatch,
				"struct %s field %q is %s, got %s", typ, init.Name, fields[i].Type, t)
		}
	}
	return typ, nil
}

func (c *Checker) checkVarRef(n *VarRef) (Type, error) {
	if n.Module != "" {
		ref, ok := c.imports[n.Module]
		if !ok {
			return Void, typeErrorf(n.Loc, UnresolvedSymbol, "unknown module alias %q", n.Module)
		}
		ec, ok := ref.Exports.Const(n.Name)
		if !ok {
			return Void, typeErrorf(n.Loc, UnresolvedSymbol, "module %s exports no constant %q", ref.Path, n.Name)
		}
		// An import is an alias entry pointing at the exporter's symbol,
		// never a copy.
		n.Sym = &Symbol{Name: n.Name, Kind: SymConst, Type: ec.Type, Const: ec.Value, Module: ref.Path}
		return ec.Type, nil
	}
	sym, ok := c.syms.Lookup(n.Name)
	if !ok {
		return Void, typeErrorf(n.Loc, UnresolvedSymbol, "undefined name %q", n.Name)
	}
	switch sym.Kind {
	case SymLocal, SymConst:
		n.Sym = sym
		return sym.Type, nil
	default:
		return Void, typeErrorf(n.Loc, TypeMismatch, "%s %q cannot be used as a value", sym.Kind, n.Name)
	}
}

func (c *Checker) checkCall(n *CallExpr) (Type, error) {
	if n.Module == "" {
		switch n.Name {
		case "assert":
			if len(n.Args) != 1 {
				return Void, typeErrorf(n.Loc, TypeMismatch, "assert takes exactly one argument")
			}
			t, err := c.checkExpr(n.Args[0])
			if err != nil {
				return Void, err
			}
			if t.Kind != TypeBool {
				return Void, typeErrorf(n.Args[0].Pos(), TypeMismatch, "assert needs a bool, got %s", t)
			}
			return Void, nil
		case "len":
			if len(n.Args) != 1 {
				return Void, typeErrorf(n.Loc, TypeMismatch, "len takes exactly one argument")
			}
			t, err := c.checkExpr(n.Args[0])
			if err != nil {
				return Void, err
			}
			if t.Kind != TypeArray {
				return Void, typeErrorf(n.Args[0].Pos(), TypeMismatch, "len needs an array, got %s", t)
			}
			return I32Type, nil
		}
	}

	sym, err := c.resolveCallee(n)
	if err != nil {
		return Void, err
	}
	n.Sym = sym

	sig := sym.Type
	if len(n.Args) != len(sig.Params) {
		return Void, typeErrorf(n.Loc, TypeMismatch,
			"%s expects %d arguments, got %d", qualName(n.Module, n.Name), len(sig.Params), len(n.Args))
	}
	for i, arg := range n.Args {
		t, err := c.checkExpr(arg)
		if err != nil {
			return Void, err
		}
		if !t.Equal(sig.Params[i]) {
			return Void, typeErrorf(arg.Pos(), TypeMismatch,
				"argument %d of %s: expected %s, got %s", i+1, qualName(n.Module, n.Name), sig.Params[i], t)
		}
	}
	return *sig.Ret, nil
}

func (c *Checker) resolveCallee(n *CallExpr) (*Symbol, error) {
	if n.Module != "" {
		ref, ok := c.imports[n.Module]
		if !ok {
			return nil, typeErrorf(n.Loc, UnresolvedSymbol, "unknown module alias %q", n.Module)
		}
		ef, ok := ref.Exports.Func(n.Name)
		if !ok {
			return nil, typeErrorf(n.Loc, UnresolvedSymbol, "module %s exports no function %q", ref.Path, n.Name)
		}
		return &Symbol{
			Name: n.Name, Kind: SymFunc, Module: ref.Path,
			Type:   FuncType(ef.Params, ef.Ret),
			Native: ef.Native, NativeLib: ef.Lib,
		}, nil
	}
	if sym, ok := c.syms.ModuleSymbol(n.Name); ok {
		if sym.Kind != SymFunc {
			return nil, typeErrorf(n.Loc, TypeMismatch, "%s %q is not callable", sym.Kind, n.Name)
		}
		return sym, nil
	}
	if sym, ok := builtinFuncs[n.Name]; ok {
		return sym, nil
	}
	return nil, typeErrorf(n.Loc, UnresolvedSymbol, "undefined function %q", n.Name)
}
