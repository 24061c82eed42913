package compiler

import (
	"fmt"
	"math"

	"github.com/flubbe/slang/pkg/bytecode"
)

// constKey identifies a constant pool entry for deduplication. Floats
// are keyed by their bit pattern so 0.0 and -0.0 stay distinct.
type constKey struct {
	kind bytecode.ConstKind
	bits uint32
	s    string
}

type nativeKey struct {
	lib  string
	name string
}

type funcRefKey struct {
	module string
	name   string
}

type loopLabels struct {
	breakTo    Label
	continueTo Label
}

// codegen lowers a checked module to bytecode. All tables are built in
// deterministic order: declaration order for pre-registered entries,
// first-use order for interned ones.
type codegen struct {
	checked *CheckedModule
	modPath string
	out     *bytecode.Module

	consts    map[constKey]int32
	natives   map[nativeKey]int32
	funcRefs  map[funcRefKey]int32
	structs   map[funcRefKey]int32 // qualified module+name
	importIdx map[string]uint32    // module path -> import table index

	b     *funcBuilder
	loops []loopLabels
}

// Generate lowers checked to a bytecode module named modPath. The
// caller stamps SourceHash; everything else is filled in here.
func Generate(checked *CheckedModule, modPath string) (*bytecode.Module, error) {
	g := &codegen{
		checked:   checked,
		modPath:   modPath,
		out:       &bytecode.Module{Name: modPath, SourceFile: checked.Source.File},
		consts:    make(map[constKey]int32),
		natives:   make(map[nativeKey]int32),
		funcRefs:  make(map[funcRefKey]int32),
		structs:   make(map[funcRefKey]int32),
		importIdx: make(map[string]uint32),
	}

	for _, ref := range checked.Imports {
		g.importIdx[ref.Path] = uint32(len(g.out.Imports))
		g.out.Imports = append(g.out.Imports, bytecode.Import{Path: ref.Path, Hash: ref.Exports.Hash})
	}

	// Local structs occupy the head of the type table in declaration
	// order; imported structs are interned behind them on first use.
	for _, decl := range checked.Structs {
		sym, _ := checked.Syms.ModuleSymbol(decl.Name)
		desc := bytecode.StructDesc{Module: modPath, Name: decl.Name}
		for _, f := range sym.Fields {
			desc.Fields = append(desc.Fields, bytecode.FieldDesc{Name: f.Name, Type: g.typeRef(f.Type)})
		}
		g.structs[funcRefKey{modPath, decl.Name}] = int32(len(g.out.Structs))
		g.out.Structs = append(g.out.Structs, desc)
	}

	// Declared natives in declaration order; builtins are appended on
	// first use.
	for _, decl := range checked.Natives {
		sym, _ := checked.Syms.ModuleSymbol(decl.Name)
		g.registerNative(sym.NativeLib, decl.Name, sym.Type)
	}

	for _, decl := range checked.Funcs {
		fn, err := g.genFunc(decl)
		if err != nil {
			return nil, err
		}
		g.out.Funcs = append(g.out.Funcs, fn)
	}

	if err := g.buildExports(); err != nil {
		return nil, err
	}
	return g.out, nil
}

func (g *codegen) registerNative(lib, name string, sig Type) int32 {
	key := nativeKey{lib, name}
	if idx, ok := g.natives[key]; ok {
		return idx
	}
	desc := bytecode.NativeDesc{Name: name, Lib: lib, Ret: g.typeRef(*sig.Ret)}
	for _, p := range sig.Params {
		desc.Params = append(desc.Params, g.typeRef(p))
	}
	idx := int32(len(g.out.Natives))
	g.natives[key] = idx
	g.out.Natives = append(g.out.Natives, desc)
	return idx
}

// typeRef lowers a checker type, qualifying local struct references
// with the module's own path so artifacts are position-independent.
func (g *codegen) typeRef(t Type) bytecode.TypeRef {
	switch t.Kind {
	case TypeVoid:
		return bytecode.TypeRef{Kind: bytecode.TVoid}
	case TypeI32:
		return bytecode.TypeRef{Kind: bytecode.TI32}
	case TypeF32:
		return bytecode.TypeRef{Kind: bytecode.TF32}
	case TypeBool:
		return bytecode.TypeRef{Kind: bytecode.TBool}
	case TypeStr:
		return bytecode.TypeRef{Kind: bytecode.TStr}
	case TypeArray:
		elem := g.typeRef(*t.Elem)
		return bytecode.TypeRef{Kind: bytecode.TArray, Elem: &elem, Len: int32(t.Len)}
	case TypeStructRef:
		module := t.Module
		if module == "" {
			module = g.modPath
		}
		return bytecode.TypeRef{Kind: bytecode.TStruct, Module: module, Name: t.Name}
	default:
		panic(fmt.Sprintf("codegen: cannot lower type %s", t))
	}
}

//  Constant pool

func (g *codegen) internConst(c bytecode.Constant) int32 {
	var key constKey
	switch c.Kind {
	case bytecode.ConstI32:
		key = constKey{kind: c.Kind, bits: uint32(c.I)}
	case bytecode.ConstF32:
		key = constKey{kind: c.Kind, bits: math.Float32bits(c.F)}
	case bytecode.ConstBool:
		if c.B {
			key = constKey{kind: c.Kind, bits: 1}
		} else {
			key = constKey{kind: c.Kind}
		}
	case bytecode.ConstStr:
		key = constKey{kind: c.Kind, s: c.S}
	}
	if idx, ok := g.consts[key]; ok {
		return idx
	}
	idx := int32(len(g.out.Constants))
	g.consts[key] = idx
	g.out.Constants = append(g.out.Constants, c)
	return idx
}

func constantOf(t Type, v ConstValue) bytecode.Constant {
	switch t.Kind {
	case TypeI32:
		return bytecode.Constant{Kind: bytecode.ConstI32, I: v.I}
	case TypeF32:
		return bytecode.Constant{Kind: bytecode.ConstF32, F: v.F}
	case TypeBool:
		return bytecode.Constant{Kind: bytecode.ConstBool, B: v.B}
	case TypeStr:
		return bytecode.Constant{Kind: bytecode.ConstStr, S: v.S}
	default:
		panic(fmt.Sprintf("codegen: %s is not a constant type", t))
	}
}

//  Functions

func (g *codegen) genFunc(decl *FuncDecl) (bytecode.Function, error) {
	sym, _ := g.checked.Syms.ModuleSymbol(decl.Name)
	g.b = newFuncBuilder(decl.Name, len(decl.Params), decl.NumLocals)
	g.loops = g.loops[:0]

	if err := g.genBlock(decl.Body); err != nil {
		return bytecode.Function{}, err
	}
	if sym.Type.Ret.Kind == TypeVoid && !g.b.cur.terminated() {
		g.b.emit(decl.Loc, bytecode.OpRetVoid)
	}
	return g.b.finalize(), nil
}

// jumpIfOpen emits a jump unless the current block already ended in a
// return or jump. Skipping dead jumps keeps every emitted jump target
// inside the function body.
func (g *codegen) jumpIfOpen(loc Location, l Label) {
	if !g.b.cur.terminated() {
		g.b.jump(loc, l)
	}
}

//  Statements

func (g *codegen) genBlock(b *BlockStmt) error {
	for _, s := range b.Stmts {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (g *codegen) genStmt(s Stmt) error {
	switch n := s.(type) {
	case *LetStmt:
		if err := g.genExpr(n.Init); err != nil {
			return err
		}
		g.b.emit(n.Loc, bytecode.OpStoreLocal, int32(n.Sym.Slot))
		return nil

	case *AssignStmt:
		return g.genAssign(n)

	case *ExprStmt:
		if err := g.genExpr(n.Expr); err != nil {
			return err
		}
		if n.Expr.ResultType().Kind != TypeVoid {
			g.b.emit(n.Expr.Pos(), bytecode.OpPop)
		}
		return nil

	case *ReturnStmt:
		if n.Expr == nil {
			g.b.emit(n.Loc, bytecode.OpRetVoid)
			return nil
		}
		if err := g.genExpr(n.Expr); err != nil {
			return err
		}
		g.b.emit(n.Loc, bytecode.OpRet)
		return nil

	case *IfStmt:
		return g.genIf(n)

	case *WhileStmt:
		head := g.b.newLabel()
		end := g.b.newLabel()
		g.b.bind(head)
		if err := g.genExpr(n.Condition); err != nil {
			return err
		}
		g.b.branchFalse(n.Condition.Pos(), end)
		g.loops = append(g.loops, loopLabels{breakTo: end, continueTo: head})
		err := g.genBlock(n.Body)
		g.loops = g.loops[:len(g.loops)-1]
		if err != nil {
			return err
		}
		g.jumpIfOpen(n.Loc, head)
		g.b.bind(end)
		return nil

	case *ForStmt:
		return g.genFor(n)

	case *BreakStmt:
		g.b.jump(n.Loc, g.loops[len(g.loops)-1].breakTo)
		return nil

	case *ContinueStmt:
		g.b.jump(n.Loc, g.loops[len(g.loops)-1].continueTo)
		return nil

	case *BlockStmt:
		return g.genBlock(n)

	default:
		return fmt.Errorf("codegen: unhandled statement %T", s)
	}
}

func (g *codegen) genIf(n *IfStmt) error {
	elseL := g.b.newLabel()
	end := g.b.newLabel()
	if err := g.genExpr(n.Condition); err != nil {
		return err
	}
	g.b.branchFalse(n.Condition.Pos(), elseL)
	if err := g.genBlock(n.Body); err != nil {
		return err
	}
	g.jumpIfOpen(n.Loc, end)
	g.b.bind(elseL)
	if n.ElseBody != nil {
		if err := g.genStmt(n.ElseBody); err != nil {
			return err
		}
	}
	g.jumpIfOpen(n.Loc, end)
	g.b.bind(end)
	return nil
}

func (g *codegen) genFor(n *ForStmt) error {
	if n.Init != nil {
		if err := g.genStmt(n.Init); err != nil {
			return err
		}
	}
	head := g.b.newLabel()
	post := g.b.newLabel()
	end := g.b.newLabel()
	g.b.bind(head)
	if n.Cond != nil {
		if err := g.genExpr(n.Cond); err != nil {
			return err
		}
		g.b.branchFalse(n.Cond.Pos(), end)
	}
	g.loops = append(g.loops, loopLabels{breakTo: end, continueTo: post})
	err := g.genBlock(n.Body)
	g.loops = g.loops[:len(g.loops)-1]
	if err != nil {
		return err
	}
	g.jumpIfOpen(n.Loc, post)
	g.b.bind(post)
	if n.Post != nil {
		if err := g.genStmt(n.Post); err != nil {
			return err
		}
	}
	g.b.jump(n.Loc, head)
	g.b.bind(end)
	return nil
}

func (g *codegen) genAssign(n *AssignStmt) error {
	switch lhs := n.Left.(type) {
	case *VarRef:
		if err := g.genExpr(n.Value); err != nil {
			return err
		}
		g.b.emit(n.Loc, bytecode.OpStoreLocal, int32(lhs.Sym.Slot))
		return nil

	case *IndexExpr:
		if err := g.genExpr(lhs.Left); err != nil {
			return err
		}
		if err := g.genExpr(lhs.Index); err != nil {
			return err
		}
		if err := g.genExpr(n.Value); err != nil {
			return err
		}
		g.b.emit(n.Loc, bytecode.OpAStore)
		return nil

	case *FieldExpr:
		if err := g.genExpr(lhs.Left); err != nil {
			return err
		}
		if err := g.genExpr(n.Value); err != nil {
			return err
		}
		g.b.emit(n.Loc, bytecode.OpSetField, int32(lhs.FieldIndex))
		return nil

	default:
		return fmt.Errorf("codegen: unassignable left side %T", n.Left)
	}
}

//  Expressions

// genExpr emits code leaving the expression's value on the stack.
// Constant subexpressions of primitive type fold to a single pool load;
// the folding arithmetic is the interpreter's, so folded and unfolded
// code agree on every result.
func (g *codegen) genExpr(e Expr) error {
	t := e.ResultType()
	switch t.Kind {
	case TypeI32, TypeF32, TypeBool, TypeStr:
		if v, ok := evalConst(e); ok {
			g.b.emit(e.Pos(), bytecode.OpLoadConst, g.internConst(constantOf(t, v)))
			return nil
		}
	}
	return g.genExprFull(e)
}

func (g *codegen) genExprFull(e Expr) error {
	switch n := e.(type) {
	case *IntLit, *FloatLit, *BoolLit, *StringLit:
		// Literals always fold in genExpr.
		panic("codegen: literal reached full expression path")

	case *VarRef:
		// Constants fold in genExpr; only locals reach here.
		g.b.emit(n.Loc, bytecode.OpLoadLocal, int32(n.Sym.Slot))
		return nil

	case *ArrayLit:
		for _, el := range n.Elements {
			if err := g.genExpr(el); err != nil {
				return err
			}
		}
		g.b.emit(n.Loc, bytecode.OpNewArray, int32(len(n.Elements)))
		return nil

	case *StructLit:
		for _, f := range n.Fields {
			if err := g.genExpr(f.Value); err != nil {
				return err
			}
		}
		idx, err := g.structIndex(n.ResultType(), n.Loc)
		if err != nil {
			return err
		}
		g.b.emit(n.Loc, bytecode.OpNewStruct, idx)
		return nil

	case *BinaryExpr:
		return g.genBinary(n)

	case *LogicalExpr:
		return g.genLogical(n)

	case *UnaryExpr:
		if err := g.genExpr(n.Right); err != nil {
			return err
		}
		switch n.Op {
		case MINUS:
			if n.Right.ResultType().Kind == TypeF32 {
				g.b.emit(n.Loc, bytecode.OpFNeg)
			} else {
				g.b.emit(n.Loc, bytecode.OpINeg)
			}
		case NOT:
			g.b.emit(n.Loc, bytecode.OpNot)
		case TILDE:
			g.b.emit(n.Loc, bytecode.OpINot)
		}
		return nil

	case *CastExpr:
		if err := g.genExpr(n.Expr); err != nil {
			return err
		}
		from, to := n.Expr.ResultType().Kind, n.ResultType().Kind
		switch {
		case from == to:
		case from == TypeI32 && to == TypeF32:
			g.b.emit(n.Loc, bytecode.OpI2F)
		case from == TypeF32 && to == TypeI32:
			g.b.emit(n.Loc, bytecode.OpF2I)
		case from == TypeBool && to == TypeI32:
			g.b.emit(n.Loc, bytecode.OpB2I)
		default:
			return fmt.Errorf("codegen: cast %s to %s survived checking", n.Expr.ResultType(), n.ResultType())
		}
		return nil

	case *CallExpr:
		return g.genCall(n)

	case *IndexExpr:
		if err := g.genExpr(n.Left); err != nil {
			return err
		}
		if err := g.genExpr(n.Index); err != nil {
			return err
		}
		g.b.emit(n.Loc, bytecode.OpALoad)
		return nil

	case *FieldExpr:
		if err := g.genExpr(n.Left); err != nil {
			return err
		}
		g.b.emit(n.Loc, bytecode.OpGetField, int32(n.FieldIndex))
		return nil

	default:
		return fmt.Errorf("codegen: unhandled expression %T", e)
	}
}

func (g *codegen) genBinary(n *BinaryExpr) error {
	if err := g.genExpr(n.Left); err != nil {
		return err
	}
	if err := g.genExpr(n.Right); err != nil {
		return err
	}
	op, ok := binaryOpcode(n.Op, n.Left.ResultType().Kind)
	if !ok {
		return fmt.Errorf("codegen: operator %s on %s survived checking", n.Op, n.Left.ResultType())
	}
	g.b.emit(n.Loc, op)
	return nil
}

func binaryOpcode(op TokenType, operand TypeKind) (bytecode.Opcode, bool) {
	switch operand {
	case TypeI32:
		switch op {
		case PLUS:
			return bytecode.OpIAdd, true
		case MINUS:
			return bytecode.OpISub, true
		case STAR:
			return bytecode.OpIMul, true
		case SLASH:
			return bytecode.OpIDiv, true
		case PERCENT:
			return bytecode.OpIMod, true
		case AND:
			return bytecode.OpIAnd, true
		case PIPE:
			return bytecode.OpIOr, true
		case CARET:
			return bytecode.OpIXor, true
		case SHL_OP:
			return bytecode.OpIShl, true
		case SHR_OP:
			return bytecode.OpIShr, true
		case EQUALS:
			return bytecode.OpICmpEq, true
		case NOT_EQ:
			return bytecode.OpICmpNe, true
		case LESS:
			return bytecode.OpICmpLt, true
		case LESS_EQ:
			return bytecode.OpICmpLe, true
		case GREATER:
			return bytecode.OpICmpGt, true
		case GREATER_EQ:
			return bytecode.OpICmpGe, true
		}
	case TypeF32:
		switch op {
		case PLUS:
			return bytecode.OpFAdd, true
		case MINUS:
			return bytecode.OpFSub, true
		case STAR:
			return bytecode.OpFMul, true
		case SLASH:
			return bytecode.OpFDiv, true
		case EQUALS:
			return bytecode.OpFCmpEq, true
		case NOT_EQ:
			return bytecode.OpFCmpNe, true
		case LESS:
			return bytecode.OpFCmpLt, true
		case LESS_EQ:
			return bytecode.OpFCmpLe, true
		case GREATER:
			return bytecode.OpFCmpGt, true
		case GREATER_EQ:
			return bytecode.OpFCmpGe, true
		}
	case TypeStr:
		switch op {
		case PLUS:
			return bytecode.OpSConcat, true
		case EQUALS:
			return bytecode.OpSCmpEq, true
		case NOT_EQ:
			return bytecode.OpSCmpNe, true
		}
	case TypeBool:
		switch op {
		case EQUALS:
			return bytecode.OpBCmpEq, true
		case NOT_EQ:
			return bytecode.OpBCmpNe, true
		}
	}
	return bytecode.OpNop, false
}

// genLogical short-circuits && and || with a Dup/branch: when the left
// side decides the result it stays on the stack and the right side is
// never evaluated.
func (g *codegen) genLogical(n *LogicalExpr) error {
	if err := g.genExpr(n.Left); err != nil {
		return err
	}
	end := g.b.newLabel()
	g.b.emit(n.Loc, bytecode.OpDup)
	if n.Op == AND_LOGICAL {
		g.b.branchFalse(n.Loc, end)
	} else {
		g.b.branchTrue(n.Loc, end)
	}
	g.b.emit(n.Loc, bytecode.OpPop)
	if err := g.genExpr(n.Right); err != nil {
		return err
	}
	g.b.jump(n.Loc, end)
	g.b.bind(end)
	return nil
}

func (g *codegen) genCall(n *CallExpr) error {
	// Intrinsics lower to single instructions.
	if n.Module == "" && n.Sym == nil {
		switch n.Name {
		case "assert":
			if err := g.genExpr(n.Args[0]); err != nil {
				return err
			}
			g.b.emit(n.Loc, bytecode.OpAssert)
			return nil
		case "len":
			if err := g.genExpr(n.Args[0]); err != nil {
				return err
			}
			g.b.emit(n.Loc, bytecode.OpALen)
			return nil
		}
	}

	for _, arg := range n.Args {
		if err := g.genExpr(arg); err != nil {
			return err
		}
	}
	argc := int32(len(n.Args))
	sym := n.Sym

	switch {
	case sym.Native:
		// Natives bind by (lib, name) wherever they were declared.
		idx := g.registerNative(sym.NativeLib, sym.Name, sym.Type)
		g.b.emit(n.Loc, bytecode.OpCallNative, idx, argc)
	case sym.Module != "":
		idx := g.funcRefIndex(sym)
		g.b.emit(n.Loc, bytecode.OpCallImport, idx, argc)
	default:
		g.b.emit(n.Loc, bytecode.OpCall, int32(sym.FuncIndex), argc)
	}
	return nil
}

func (g *codegen) funcRefIndex(sym *Symbol) int32 {
	key := funcRefKey{sym.Module, sym.Name}
	if idx, ok := g.funcRefs[key]; ok {
		return idx
	}
	ref := bytecode.FuncRef{
		ImportIndex: g.importIdx[sym.Module],
		Name:        sym.Name,
		Ret:         g.typeRef(*sym.Type.Ret),
	}
	for _, p := range sym.Type.Params {
		ref.Params = append(ref.Params, g.typeRef(p))
	}
	idx := int32(len(g.out.FuncRefs))
	g.funcRefs[key] = idx
	g.out.FuncRefs = append(g.out.FuncRefs, ref)
	return idx
}

// structIndex interns a struct type in the type table, pulling field
// layouts of imported structs from the exporter's surface.
func (g *codegen) structIndex(t Type, loc Location) (int32, error) {
	ref := g.typeRef(t)
	key := funcRefKey{ref.Module, ref.Name}
	if idx, ok := g.structs[key]; ok {
		return idx, nil
	}
	for _, imp := range g.checked.Imports {
		if imp.Path != ref.Module {
			continue
		}
		et, ok := imp.Exports.Type(ref.Name)
		if !ok {
			break
		}
		desc := bytecode.StructDesc{Module: ref.Module, Name: ref.Name}
		for _, f := range et.Fields {
			desc.Fields = append(desc.Fields, bytecode.FieldDesc{Name: f.Name, Type: g.typeRef(f.Type)})
		}
		idx := int32(len(g.out.Structs))
		g.structs[key] = idx
		g.out.Structs = append(g.out.Structs, desc)
		return idx, nil
	}
	return 0, fmt.Errorf("codegen: struct %s::%s at %s survived checking unresolved", ref.Module, ref.Name, loc)
}

//  Exports

func (g *codegen) buildExports() error {
	for _, decl := range g.checked.Consts {
		if !decl.Pub {
			continue
		}
		sym, _ := g.checked.Syms.ModuleSymbol(decl.Name)
		ex := bytecode.ConstExport{
			Name:  decl.Name,
			Type:  g.typeRef(sym.Type),
			Value: constantOf(sym.Type, sym.Const),
		}
		ex.OriginModule, ex.OriginName = g.constOrigin(decl)
		g.out.ExportedConsts = append(g.out.ExportedConsts, ex)
	}

	for _, decl := range g.checked.Funcs {
		if !decl.Pub {
			continue
		}
		sym, _ := g.checked.Syms.ModuleSymbol(decl.Name)
		g.out.ExportedFuncs = append(g.out.ExportedFuncs, g.funcExport(decl, sym, uint32(sym.FuncIndex)))
	}
	for _, decl := range g.checked.Natives {
		if !decl.Pub {
			continue
		}
		sym, _ := g.checked.Syms.ModuleSymbol(decl.Name)
		idx := g.natives[nativeKey{sym.NativeLib, decl.Name}]
		g.out.ExportedFuncs = append(g.out.ExportedFuncs, g.funcExport(decl, sym, uint32(idx)))
	}

	for _, decl := range g.checked.Structs {
		if !decl.Pub {
			continue
		}
		idx := g.structs[funcRefKey{g.modPath, decl.Name}]
		g.out.ExportedTypes = append(g.out.ExportedTypes, bytecode.TypeExport{Name: decl.Name, Index: uint32(idx)})
	}
	return nil
}

func (g *codegen) funcExport(decl *FuncDecl, sym *Symbol, index uint32) bytecode.FuncExport {
	ex := bytecode.FuncExport{
		Name:   decl.Name,
		Ret:    g.typeRef(*sym.Type.Ret),
		Native: sym.Native,
		Lib:    sym.NativeLib,
		Index:  index,
	}
	for _, p := range sym.Type.Params {
		ex.Params = append(ex.Params, g.typeRef(p))
	}
	return ex
}

// constOrigin resolves where an exported constant was first declared.
// A constant whose initializer is exactly an imported constant
// re-exports it, and importers of this module must agree with the
// declaring module on the value.
func (g *codegen) constOrigin(decl *ConstDecl) (string, string) {
	ref, ok := decl.Value.(*VarRef)
	if !ok || ref.Sym == nil || ref.Sym.Kind != SymConst || ref.Sym.Module == "" {
		return "", ""
	}
	for _, imp := range g.checked.Imports {
		if imp.Path != ref.Sym.Module {
			continue
		}
		if ec, ok := imp.Exports.Const(ref.Name); ok && ec.OriginModule != "" {
			return ec.OriginModule, ec.OriginName
		}
		return ref.Sym.Module, ref.Name
	}
	return ref.Sym.Module, ref.Name
}
