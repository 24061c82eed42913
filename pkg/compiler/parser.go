package compiler

import (
	"fmt"
	"strconv"
)

// Parser consumes the flat token slice produced by the Lexer and builds
// one SourceModule. Parsing is fail-fast: the first malformed construct
// aborts with a *ParseError and no recovery is attempted.
//
// Grammar:
//
//	module     = declaration* EOF
//	declaration= import | ("pub")? (constDecl | structDecl | fnDecl) | directive fnDecl
//	import     = "import" IDENTIFIER ("::" IDENTIFIER)* ";"
//	constDecl  = "const" IDENTIFIER ":" type "=" expression ";"
//	structDecl = "struct" IDENTIFIER "{" (IDENTIFIER ":" type ",")* "}"
//	fnDecl     = "fn" IDENTIFIER "(" params ")" ("->" type)? (block | ";")
//	directive  = "#" "[" "native" "(" "lib" "=" STRING ")" "]"
//	statement  = letStmt | ifStmt | whileStmt | forStmt | returnStmt
//	           | breakStmt | continueStmt | block | exprOrAssign
//	expression = logical_or
//	logical_or = logical_and ("||" logical_and)*
//	logical_and= bitwise_or ("&&" bitwise_or)*
//	bitwise_or = bitwise_xor ("|" bitwise_xor)*
//	bitwise_xor= bitwise_and ("^" bitwise_and)*
//	bitwise_and= equality ("&" equality)*
//	equality   = relational (("=="|"!=") relational)*
//	relational = shift (("<"|">"|"<="|">=") shift)*
//	shift      = additive (("<<"|">>") additive)*
//	additive   = multiplicative (("+"|"-") multiplicative)*
//	multiplicative = cast (("*"|"/"|"%") cast)*
//	cast       = unary ("as" type)*
//	unary      = ("-"|"!"|"~") unary | postfix
//	postfix    = primary ("[" expression "]" | "." IDENTIFIER | "(" args ")")*
//	primary    = literal | arrayLit | structLit | reference | "(" expression ")"
type Parser struct {
	tokens []Token
	pos    int
	file   string
}

// NewParser wraps a token slice for parsing. file is used for the module
// file recorded in the result.
func NewParser(tokens []Token, file string) *Parser {
	return &Parser{tokens: tokens, file: file}
}

// Parse runs the full grammar and returns the module AST.
func Parse(tokens []Token, file string) (*SourceModule, error) {
	return NewParser(tokens, file).parseModule()
}

func (p *Parser) parseError(tok Token, expected string) error {
	found := tok.Type.String()
	if tok.Lexeme != "" {
		found = fmt.Sprintf("%s (%q)", tok.Type, tok.Lexeme)
	}
	return &ParseError{Loc: tok.Loc, Expected: expected, Found: found}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekNext returns the token immediately after the current one.
func (p *Parser) peekNext() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+1]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise errors.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.parseError(tok, tt.String())
	}
	return tok, nil
}

//  Declarations

func (p *Parser) parseModule() (*SourceModule, error) {
	mod := &SourceModule{File: p.file}
	for p.peek().Type != EOF {
		decl, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		mod.Decls = append(mod.Decls, decl)
	}
	return mod, nil
}

func (p *Parser) parseDeclaration() (Decl, error) {
	switch p.peek().Type {
	case IMPORT:
		return p.parseImport()
	case HASH:
		return p.parseNativeFn()
	case PUB, CONST, STRUCT, FN:
		pub := false
		if p.peek().Type == PUB {
			p.advance()
			pub = true
		}
		switch tok := p.peek(); tok.Type {
		case CONST:
			return p.parseConstDecl(pub)
		case STRUCT:
			return p.parseStructDecl(pub)
		case FN:
			return p.parseFnDecl(pub, false, "")
		default:
			return nil, p.parseError(tok, "const, struct or fn after pub")
		}
	default:
		return nil, p.parseError(p.peek(), "declaration (import, const, struct or fn)")
	}
}

func (p *Parser) parseImport() (*ImportDecl, error) {
	kw, _ := p.expect(IMPORT)
	seg, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	path := []string{seg.Lexeme}
	for p.peek().Type == COLONCOLON {
		p.advance()
		seg, err = p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		path = append(path, seg.Lexeme)
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ImportDecl{Loc: kw.Loc, Path: path}, nil
}

func (p *Parser) parseConstDecl(pub bool) (*ConstDecl, error) {
	kw, _ := p.expect(CONST)
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	typ, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ConstDecl{Loc: kw.Loc, Pub: pub, Name: name.Lexeme, TypeName: typ, Value: value}, nil
}

func (p *Parser) parseStructDecl(pub bool) (*StructDecl, error) {
	kw, _ := p.expect(STRUCT)
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	decl := &StructDecl{Loc: kw.Loc, Pub: pub, Name: name.Lexeme}
	for p.peek().Type != RBRACE {
		fname, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		ftype, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		decl.Fields = append(decl.Fields, FieldDef{Loc: fname.Loc, Name: fname.Lexeme, TypeName: ftype})
		if p.peek().Type != RBRACE {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
	}
	p.advance() // consume }
	return decl, nil
}

// parseNativeFn parses  #[native(lib="...")] fn name(params) -> T;
func (p *Parser) parseNativeFn() (Decl, error) {
	p.advance() // consume #
	if _, err := p.expect(LBRACKET); err != nil {
		return nil, err
	}
	kind, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if kind.Lexeme != "native" {
		return nil, p.parseError(kind, `directive "native"`)
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	arg, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if arg.Lexeme != "lib" {
		return nil, p.parseError(arg, `native argument "lib"`)
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	lib, err := p.expect(STRING)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	pub := false
	if p.peek().Type == PUB {
		p.advance()
		pub = true
	}
	return p.parseFnDecl(pub, true, lib.Lexeme)
}

func (p *Parser) parseFnDecl(pub, native bool, lib string) (*FuncDecl, error) {
	kw, err := p.expect(FN)
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	fn := &FuncDecl{Loc: kw.Loc, Pub: pub, Name: name.Lexeme, Native: native, NativeLib: lib}
	for p.peek().Type != RPAREN {
		pname, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		ptype, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, ParamDef{Loc: pname.Loc, Name: pname.Lexeme, TypeName: ptype})
		if p.peek().Type != RPAREN {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
	}
	p.advance() // consume )

	if p.peek().Type == ARROW {
		p.advance()
		fn.RetType, err = p.parseTypeName()
		if err != nil {
			return nil, err
		}
	}

	if native {
		_, err := p.expect(SEMICOLON)
		return fn, err
	}
	fn.Body, err = p.parseBlock()
	return fn, err
}

// parseTypeName parses a type spelling: a primitive keyword, a possibly
// qualified struct name, or [T; N].
func (p *Parser) parseTypeName() (*TypeName, error) {
	tok := p.peek()
	switch tok.Type {
	case I32, F32, BOOL, STR:
		p.advance()
		return &TypeName{Loc: tok.Loc, Prim: tok.Type}, nil
	case IDENTIFIER:
		p.advance()
		module, name := "", tok.Lexeme
		if p.peek().Type == COLONCOLON {
			p.advance()
			qual, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			module, name = tok.Lexeme, qual.Lexeme
		}
		return &TypeName{Loc: tok.Loc, Prim: EOF, Module: module, Name: name}, nil
	case LBRACKET:
		p.advance()
		elem, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		lenTok, err := p.expect(INTEGER)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(lenTok.Lexeme, 0, 32)
		if err != nil || n < 0 {
			return nil, p.parseError(lenTok, "non-negative array length")
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
		return &TypeName{Loc: tok.Loc, Prim: EOF, Elem: elem, Len: int(n)}, nil
	default:
		return nil, p.parseError(tok, "type")
	}
}

//  Statements

func (p *Parser) parseBlock() (*BlockStmt, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	block := &BlockStmt{}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.parseError(p.peek(), "} to close block")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	p.advance() // consume }
	return block, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch tok := p.peek(); tok.Type {
	case LET:
		return p.parseLet()
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case FOR:
		return p.parseFor()
	case RETURN:
		return p.parseReturn()
	case BREAK:
		p.advance()
		_, err := p.expect(SEMICOLON)
		return &BreakStmt{Loc: tok.Loc}, err
	case CONTINUE:
		p.advance()
		_, err := p.expect(SEMICOLON)
		return &ContinueStmt{Loc: tok.Loc}, err
	case LBRACE:
		return p.parseBlock()
	default:
		return p.parseExprOrAssign()
	}
}

func (p *Parser) parseLet() (*LetStmt, error) {
	kw, _ := p.expect(LET)
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	typ, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	init, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &LetStmt{Loc: kw.Loc, Name: name.Lexeme, TypeName: typ, Init: init}, nil
}

func (p *Parser) parseIf() (*IfStmt, error) {
	kw, _ := p.expect(IF)
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Loc: kw.Loc, Condition: cond, Body: body}
	if p.peek().Type == ELSE {
		p.advance()
		if p.peek().Type == IF {
			stmt.ElseBody, err = p.parseIf()
		} else {
			stmt.ElseBody, err = p.parseBlock()
		}
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (*WhileStmt, error) {
	kw, _ := p.expect(WHILE)
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Loc: kw.Loc, Condition: cond, Body: body}, nil
}

// parseFor parses  for init; cond; post { }. Any of the three header
// slots may be empty.
func (p *Parser) parseFor() (*ForStmt, error) {
	kw, _ := p.expect(FOR)
	stmt := &ForStmt{Loc: kw.Loc}

	var err error
	if p.peek().Type != SEMICOLON {
		if p.peek().Type == LET {
			stmt.Init, err = p.parseLet()
			if err != nil {
				return nil, err
			}
		} else {
			stmt.Init, err = p.parseSimpleStmt()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(SEMICOLON); err != nil {
				return nil, err
			}
		}
	} else {
		p.advance() // empty init
	}

	if p.peek().Type != SEMICOLON {
		stmt.Cond, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}

	if p.peek().Type != LBRACE {
		stmt.Post, err = p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
	}

	stmt.Body, err = p.parseBlock()
	return stmt, err
}

// parseSimpleStmt parses an assignment or expression without the
// trailing semicolon (for-loop header slots).
func (p *Parser) parseSimpleStmt() (Stmt, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == ASSIGN {
		eq := p.advance()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Loc: eq.Loc, Left: expr, Value: value}, nil
	}
	return &ExprStmt{Expr: expr}, nil
}

func (p *Parser) parseReturn() (*ReturnStmt, error) {
	kw, _ := p.expect(RETURN)
	stmt := &ReturnStmt{Loc: kw.Loc}
	if p.peek().Type != SEMICOLON {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Expr = expr
	}
	_, err := p.expect(SEMICOLON)
	return stmt, err
}

func (p *Parser) parseExprOrAssign() (Stmt, error) {
	stmt, err := p.parseSimpleStmt()
	if err != nil {
		return nil, err
	}
	_, err = p.expect(SEMICOLON)
	return stmt, err
}

//  Expressions

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseLogicalOr()
}

// parseLogicalOr handles ||
func (p *Parser) parseLogicalOr() (Expr, error) {
	expr, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == OR_LOGICAL {
		op := p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{exprBase: exprBase{Loc: op.Loc}, Op: op.Type, Left: expr, Right: right}
	}
	return expr, nil
}

// parseLogicalAnd handles &&
func (p *Parser) parseLogicalAnd() (Expr, error) {
	expr, err := p.parseBitwiseOr()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND_LOGICAL {
		op := p.advance()
		right, err := p.parseBitwiseOr()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{exprBase: exprBase{Loc: op.Loc}, Op: op.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseBinaryLevel(next func() (Expr, error), ops ...TokenType) (Expr, error) {
	expr, err := next()
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, tt := range ops {
			if p.peek().Type == tt {
				matched = true
				break
			}
		}
		if !matched {
			return expr, nil
		}
		op := p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Loc: op.Loc}, Op: op.Type, Left: expr, Right: right}
	}
}

// parseBitwiseOr handles | (lowest precedence among bitwise ops)
func (p *Parser) parseBitwiseOr() (Expr, error) {
	return p.parseBinaryLevel(p.parseBitwiseXor, PIPE)
}

// parseBitwiseXor handles ^
func (p *Parser) parseBitwiseXor() (Expr, error) {
	return p.parseBinaryLevel(p.parseBitwiseAnd, CARET)
}

// parseBitwiseAnd handles binary &
func (p *Parser) parseBitwiseAnd() (Expr, error) {
	return p.parseBinaryLevel(p.parseEquality, AND)
}

// parseEquality handles == and !=
func (p *Parser) parseEquality() (Expr, error) {
	return p.parseBinaryLevel(p.parseRelational, EQUALS, NOT_EQ)
}

// parseRelational handles <, >, <= and >=
func (p *Parser) parseRelational() (Expr, error) {
	return p.parseBinaryLevel(p.parseShift, LESS, GREATER, LESS_EQ, GREATER_EQ)
}

// parseShift handles << and >>
func (p *Parser) parseShift() (Expr, error) {
	return p.parseBinaryLevel(p.parseAdditive, SHL_OP, SHR_OP)
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive() (Expr, error) {
	return p.parseBinaryLevel(p.parseMultiplicative, PLUS, MINUS)
}

// parseMultiplicative handles *, / and %
func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.parseBinaryLevel(p.parseCast, STAR, SLASH, PERCENT)
}

// parseCast handles `expr as T`. Casts bind tighter than any binary
// operator but looser than unary, so -x as f32 is (-x) as f32.
func (p *Parser) parseCast() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AS {
		kw := p.advance()
		target, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		expr = &CastExpr{exprBase: exprBase{Loc: kw.Loc}, Expr: expr, Target: target}
	}
	return expr, nil
}

// parseUnary handles -, ! and ~
func (p *Parser) parseUnary() (Expr, error) {
	tok := p.peek()
	if tok.Type == MINUS && p.peekNext().Type == INTEGER {
		// Fold the sign into the literal so -2147483648 stays in range
		// while a bare 2147483648 is rejected.
		p.advance()
		lit := p.advance()
		v, err := strconv.ParseInt("-"+lit.Lexeme, 0, 32)
		if err != nil {
			return nil, p.parseError(lit, "i32 literal in range")
		}
		return &IntLit{exprBase: exprBase{Loc: tok.Loc}, Value: int32(v)}, nil
	}
	if tok.Type == MINUS || tok.Type == NOT || tok.Type == TILDE {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{exprBase: exprBase{Loc: tok.Loc}, Op: tok.Type, Right: right}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles indexing and field access suffixes.
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case LBRACKET:
			open := p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			expr = &IndexExpr{exprBase: exprBase{Loc: open.Loc}, Left: expr, Index: index}
		case DOT:
			dot := p.advance()
			field, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			expr = &FieldExpr{exprBase: exprBase{Loc: dot.Loc}, Left: expr, Field: field.Lexeme}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		// 0-base so hex literals parse too. Only values up to INT32_MAX
		// are accepted here; INT32_MIN spellings fold in parseUnary.
		v, err := strconv.ParseInt(tok.Lexeme, 0, 32)
		if err != nil {
			return nil, p.parseError(tok, "i32 literal in range")
		}
		return &IntLit{exprBase: exprBase{Loc: tok.Loc}, Value: int32(v)}, nil

	case FLOAT:
		p.advance()
		v, err := strconv.ParseFloat(tok.Lexeme, 32)
		if err != nil {
			return nil, p.parseError(tok, "f32 literal")
		}
		return &FloatLit{exprBase: exprBase{Loc: tok.Loc}, Value: float32(v)}, nil

	case STRING:
		p.advance()
		return &StringLit{exprBase: exprBase{Loc: tok.Loc}, Value: tok.Lexeme}, nil

	case TRUE, FALSE:
		p.advance()
		return &BoolLit{exprBase: exprBase{Loc: tok.Loc}, Value: tok.Type == TRUE}, nil

	case LBRACKET:
		return p.parseArrayLit()

	case IDENTIFIER:
		return p.parseReference()

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		_, err = p.expect(RPAREN)
		return expr, err

	default:
		return nil, p.parseError(tok, "expression")
	}
}

func (p *Parser) parseArrayLit() (Expr, error) {
	open, _ := p.expect(LBRACKET)
	lit := &ArrayLit{exprBase: exprBase{Loc: open.Loc}}
	for p.peek().Type != RBRACKET {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		lit.Elements = append(lit.Elements, elem)
		if p.peek().Type != RBRACKET {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
	}
	p.advance() // consume ]
	return lit, nil
}

// parseReference parses an identifier head: a variable read, a call, a
// struct literal, or any of these behind an alias:: qualifier.
func (p *Parser) parseReference() (Expr, error) {
	head := p.advance() // IDENTIFIER
	module, name, nameLoc := "", head.Lexeme, head.Loc
	if p.peek().Type == COLONCOLON {
		p.advance()
		qual, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		module, name, nameLoc = head.Lexeme, qual.Lexeme, qual.Loc
	}

	switch p.peek().Type {
	case LPAREN:
		p.advance()
		call := &CallExpr{exprBase: exprBase{Loc: nameLoc}, Module: module, Name: name}
		for p.peek().Type != RPAREN {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.peek().Type != RPAREN {
				if _, err := p.expect(COMMA); err != nil {
					return nil, err
				}
			}
		}
		p.advance() // consume )
		return call, nil

	case LBRACE:
		// Struct literals need the "name { ident :" lookahead so that a
		// bare identifier condition (`while x { ... }`) keeps its brace as
		// a block opener.
		if p.peekNext().Type == IDENTIFIER && p.peekAt(2).Type == COLON {
			return p.parseStructLit(module, name, nameLoc)
		}
	}
	return &VarRef{exprBase: exprBase{Loc: nameLoc}, Module: module, Name: name}, nil
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) parseStructLit(module, name string, loc Location) (Expr, error) {
	p.advance() // consume {
	lit := &StructLit{exprBase: exprBase{Loc: loc}, Module: module, Name: name}
	for p.peek().Type != RBRACE {
		fname, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		lit.Fields = append(lit.Fields, FieldInit{Name: fname.Lexeme, Value: value, Loc: fname.Loc})
		if p.peek().Type != RBRACE {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
	}
	p.advance() // consume }
	return lit, nil
}
