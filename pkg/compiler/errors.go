package compiler

import "fmt"

// LexError reports an illegal construct found while scanning source text.
type LexError struct {
	Loc    Location
	Reason string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s: lex error: %s", e.Loc, e.Reason)
}

// ParseError reports the first malformed construct found by the parser.
// Parsing is fail-fast: no recovery is attempted after a ParseError.
type ParseError struct {
	Loc      Location
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error: expected %s, found %s", e.Loc, e.Expected, e.Found)
}

// TypeErrorCode discriminates the kinds of semantic errors.
type TypeErrorCode int

const (
	UnresolvedSymbol TypeErrorCode = iota
	TypeMismatch
	InvalidCast
	ConstMismatch
	InvalidMainSignature
	DuplicateDeclaration
)

var typeErrorCodeNames = [...]string{
	UnresolvedSymbol:     "UnresolvedSymbol",
	TypeMismatch:         "TypeMismatch",
	InvalidCast:          "InvalidCast",
	ConstMismatch:        "ConstMismatch",
	InvalidMainSignature: "InvalidMainSignature",
	DuplicateDeclaration: "DuplicateDeclaration",
}

func (c TypeErrorCode) String() string {
	if int(c) >= 0 && int(c) < len(typeErrorCodeNames) {
		return typeErrorCodeNames[c]
	}
	return fmt.Sprintf("TypeErrorCode(%d)", int(c))
}

// TypeError reports a name-resolution or type-checking failure.
type TypeError struct {
	Loc    Location
	Code   TypeErrorCode
	Detail string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: type error [%s]: %s", e.Loc, e.Code, e.Detail)
}

func typeErrorf(loc Location, code TypeErrorCode, format string, args ...any) *TypeError {
	return &TypeError{Loc: loc, Code: code, Detail: fmt.Sprintf(format, args...)}
}
