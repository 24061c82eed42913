package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value. After type
// checking, ResultType returns the checked type of the expression; before
// checking it is the zero Type (void).
type Expr interface {
	exprNode()
	Pos() Location
	ResultType() Type
	setType(Type)
	String() string
}

// exprBase carries the pieces shared by all expression nodes: the source
// location and the type annotation filled in by the checker.
type exprBase struct {
	Loc Location
	T   Type
}

func (b *exprBase) Pos() Location    { return b.Loc }
func (b *exprBase) ResultType() Type { return b.T }
func (b *exprBase) setType(t Type)   { b.T = t }

// IntLit is an i32 literal.
type IntLit struct {
	exprBase
	Value int32
}

func (*IntLit) exprNode()        {}
func (l *IntLit) String() string { return fmt.Sprintf("%d", l.Value) }

// FloatLit is an f32 literal.
type FloatLit struct {
	exprBase
	Value float32
}

func (*FloatLit) exprNode()        {}
func (l *FloatLit) String() string { return fmt.Sprintf("%g", l.Value) }

// BoolLit is true or false.
type BoolLit struct {
	exprBase
	Value bool
}

func (*BoolLit) exprNode()        {}
func (l *BoolLit) String() string { return fmt.Sprintf("%t", l.Value) }

// StringLit is a string literal with escapes already resolved.
type StringLit struct {
	exprBase
	Value string
}

func (*StringLit) exprNode()        {}
func (l *StringLit) String() string { return fmt.Sprintf("%q", l.Value) }

// ArrayLit represents [e0, e1, ...]. All elements must check to one
// element type; the literal's type is [elem; len(Elements)].
type ArrayLit struct {
	exprBase
	Elements []Expr
}

func (*ArrayLit) exprNode() {}
func (l *ArrayLit) String() string {
	return fmt.Sprintf("ArrayLit(len=%d, %v)", len(l.Elements), l.Elements)
}

// FieldInit is one "name: expr" entry of a struct literal.
type FieldInit struct {
	Name  string
	Value Expr
	Loc   Location
}

// StructLit represents Name{ field: expr, ... }. Field names, types and
// order must match the declaration exactly.
type StructLit struct {
	exprBase
	Module string // import alias, or "" for the current module
	Name   string
	Fields []FieldInit
}

func (*StructLit) exprNode() {}
func (l *StructLit) String() string {
	return fmt.Sprintf("StructLit(%s, fields=%d)", qualName(l.Module, l.Name), len(l.Fields))
}

// VarRef is a read of a named variable, constant or function. Sym is
// bound by the checker.
type VarRef struct {
	exprBase
	Module string // import alias for qualified references, "" otherwise
	Name   string
	Sym    *Symbol
}

func (*VarRef) exprNode()        {}
func (v *VarRef) String() string { return qualName(v.Module, v.Name) }

// BinaryExpr represents Left Op Right for arithmetic, bitwise,
// relational and equality operators.
type BinaryExpr struct {
	exprBase
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// LogicalExpr represents Left && Right or Left || Right. It is separate
// from BinaryExpr because code generation short-circuits it with jumps.
type LogicalExpr struct {
	exprBase
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*LogicalExpr) exprNode() {}
func (l *LogicalExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Left, l.Op, l.Right)
}

// UnaryExpr represents Op Right (-, !, ~).
type UnaryExpr struct {
	exprBase
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op, u.Right) }

// CastExpr represents Expr as Target.
type CastExpr struct {
	exprBase
	Expr   Expr
	Target *TypeName
}

func (*CastExpr) exprNode()        {}
func (c *CastExpr) String() string { return fmt.Sprintf("(%s as %s)", c.Expr, c.Target) }

// CallExpr represents name(args) or alias::name(args). Sym is bound by
// the checker and refers to a function (script or native) or builtin.
type CallExpr struct {
	exprBase
	Module string
	Name   string
	Args   []Expr
	Sym    *Symbol
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	return fmt.Sprintf("Call(%s, args=%v)", qualName(c.Module, c.Name), c.Args)
}

// IndexExpr represents Left[Index].
type IndexExpr struct {
	exprBase
	Left  Expr
	Index Expr
}

func (*IndexExpr) exprNode()        {}
func (e *IndexExpr) String() string { return fmt.Sprintf("(%s[%s])", e.Left, e.Index) }

// FieldExpr represents Left.Field. FieldIndex is the 0-based slot within
// the struct, set by the checker.
type FieldExpr struct {
	exprBase
	Left       Expr
	Field      string
	FieldIndex int
}

func (*FieldExpr) exprNode()        {}
func (e *FieldExpr) String() string { return fmt.Sprintf("(%s.%s)", e.Left, e.Field) }

//  Type syntax

// TypeName is the parsed (unresolved) spelling of a type: a primitive
// keyword, a possibly qualified struct name, or an array form [T; N].
type TypeName struct {
	Loc    Location
	Prim   TokenType // I32, F32, BOOL, STR, or EOF when not a primitive
	Module string    // import alias for qualified struct names
	Name   string    // struct name, "" for primitives/arrays
	Elem   *TypeName // array element
	Len    int       // array length
}

func (t *TypeName) String() string {
	switch {
	case t == nil:
		return "void"
	case t.Elem != nil:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.Len)
	case t.Name != "":
		return qualName(t.Module, t.Name)
	default:
		return strings.ToLower(t.Prim.String())
	}
}

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// LetStmt represents  let name: T = expr;
type LetStmt struct {
	Loc      Location
	Name     string
	TypeName *TypeName
	Init     Expr
	Sym      *Symbol // bound by the checker
}

func (*LetStmt) stmtNode() {}
func (d *LetStmt) String() string {
	return fmt.Sprintf("LetStmt(%s: %s = %s)", d.Name, d.TypeName, d.Init)
}

// AssignStmt represents  lvalue = expr;  The checker restricts Left to
// VarRef, IndexExpr or FieldExpr.
type AssignStmt struct {
	Loc   Location
	Left  Expr
	Value Expr
}

func (*AssignStmt) stmtNode() {}
func (a *AssignStmt) String() string {
	return fmt.Sprintf("AssignStmt(%s = %s)", a.Left, a.Value)
}

// ReturnStmt represents  return expr?;
type ReturnStmt struct {
	Loc  Location
	Expr Expr // nil for a bare return
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	if r.Expr == nil {
		return "ReturnStmt()"
	}
	return fmt.Sprintf("ReturnStmt(%s)", r.Expr)
}

// BlockStmt represents { statement; ... }
type BlockStmt struct {
	Stmts []Stmt
}

func (*BlockStmt) stmtNode() {}
func (b *BlockStmt) String() string {
	return fmt.Sprintf("BlockStmt(len=%d)", len(b.Stmts))
}

// IfStmt represents if cond { } [else { } | else if ...]
type IfStmt struct {
	Loc       Location
	Condition Expr
	Body      *BlockStmt
	ElseBody  Stmt // *BlockStmt, *IfStmt, or nil
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.ElseBody != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Condition, i.Body, i.ElseBody)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Condition, i.Body)
}

// WhileStmt represents while cond { }
type WhileStmt struct {
	Loc       Location
	Condition Expr
	Body      *BlockStmt
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	return fmt.Sprintf("WhileStmt(while %s do %s)", w.Condition, w.Body)
}

// ForStmt represents for init; cond; post { }
type ForStmt struct {
	Loc  Location
	Init Stmt // *LetStmt or *AssignStmt, may be nil
	Cond Expr // may be nil (infinite loop)
	Post Stmt // *AssignStmt or *ExprStmt, may be nil
	Body *BlockStmt
}

func (*ForStmt) stmtNode() {}
func (f *ForStmt) String() string {
	return fmt.Sprintf("ForStmt(init=%s, cond=%s, post=%s, body=%s)", f.Init, f.Cond, f.Post, f.Body)
}

// ExprStmt represents an expression evaluated for its side effects.
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return fmt.Sprintf("ExprStmt(%s)", e.Expr) }

// BreakStmt represents break;
type BreakStmt struct{ Loc Location }

func (*BreakStmt) stmtNode()        {}
func (s *BreakStmt) String() string { return "BreakStmt" }

// ContinueStmt represents continue;
type ContinueStmt struct{ Loc Location }

func (*ContinueStmt) stmtNode()        {}
func (s *ContinueStmt) String() string { return "ContinueStmt" }

//  Declaration nodes

// Decl is a top-level declaration.
type Decl interface {
	declNode()
	String() string
}

// ImportDecl represents  import a::b::c;  The last path segment is the
// alias under which the module's exports are referenced.
type ImportDecl struct {
	Loc  Location
	Path []string
}

func (*ImportDecl) declNode() {}
func (d *ImportDecl) String() string {
	return fmt.Sprintf("ImportDecl(%s)", strings.Join(d.Path, "::"))
}

// Alias is the name the import is referenced by (its last segment).
func (d *ImportDecl) Alias() string { return d.Path[len(d.Path)-1] }

// ModulePath is the search-path form of the import (slash separated).
func (d *ImportDecl) ModulePath() string { return strings.Join(d.Path, "/") }

// ConstDecl represents  [pub] const NAME: T = expr;
type ConstDecl struct {
	Loc      Location
	Pub      bool
	Name     string
	TypeName *TypeName
	Value    Expr
}

func (*ConstDecl) declNode() {}
func (d *ConstDecl) String() string {
	return fmt.Sprintf("ConstDecl(%s: %s = %s)", d.Name, d.TypeName, d.Value)
}

// FieldDef is one field of a struct declaration.
type FieldDef struct {
	Loc      Location
	Name     string
	TypeName *TypeName
}

// StructDecl represents  [pub] struct Name { field: T, ... }
type StructDecl struct {
	Loc    Location
	Pub    bool
	Name   string
	Fields []FieldDef
}

func (*StructDecl) declNode() {}
func (s *StructDecl) String() string {
	return fmt.Sprintf("StructDecl(%s, fields=%d)", s.Name, len(s.Fields))
}

// ParamDef is one parameter of a function declaration.
type ParamDef struct {
	Loc      Location
	Name     string
	TypeName *TypeName
}

// FuncDecl represents  [pub] fn name(params) -> T { body }  or a native
// declaration  #[native(lib="...")] fn name(params) -> T;
type FuncDecl struct {
	Loc       Location
	Pub       bool
	Name      string
	Params    []ParamDef
	RetType   *TypeName // nil means void
	Body      *BlockStmt
	Native    bool
	NativeLib string

	// NumLocals is the number of local slots the body needs (params
	// included); set by the checker.
	NumLocals int
}

func (*FuncDecl) declNode() {}
func (f *FuncDecl) String() string {
	if f.Native {
		return fmt.Sprintf("FuncDecl(native %s, lib=%q)", f.Name, f.NativeLib)
	}
	return fmt.Sprintf("FuncDecl(%s, params=%d)", f.Name, len(f.Params))
}

// SourceModule is the parsed form of one .sl file.
type SourceModule struct {
	Name  string // canonical module path, e.g. "utils/math"
	File  string
	Decls []Decl
}

// Imports returns the module's import declarations in source order.
func (m *SourceModule) Imports() []*ImportDecl {
	var out []*ImportDecl
	for _, d := range m.Decls {
		if imp, ok := d.(*ImportDecl); ok {
			out = append(out, imp)
		}
	}
	return out
}

func qualName(module, name string) string {
	if module == "" {
		return name
	}
	return module + "::" + name
}
