// Package vm executes compiled modules on a stack machine.
package vm

import "fmt"

// RuntimeErrorCode classifies traps.
type RuntimeErrorCode int

const (
	IndexOutOfBounds RuntimeErrorCode = iota
	DivisionByZero
	AssertionFailed
	StackOverflow
	NativeCallFailed
)

var runtimeErrorNames = [...]string{
	IndexOutOfBounds: "index out of bounds",
	DivisionByZero:   "division by zero",
	AssertionFailed:  "assertion failed",
	StackOverflow:    "stack overflow",
	NativeCallFailed: "native call failed",
}

func (c RuntimeErrorCode) String() string {
	if int(c) < len(runtimeErrorNames) {
		return runtimeErrorNames[c]
	}
	return fmt.Sprintf("RuntimeErrorCode(%d)", int(c))
}

// RuntimeError is a trap raised during execution. Module, Func and PC
// identify the faulting instruction; Line and Col come from the debug
// map and are zero when the artifact carries none.
type RuntimeError struct {
	Code   RuntimeErrorCode
	Detail string

	Module string
	Func   string
	PC     int
	Line   int
	Col    int
}

func (e *RuntimeError) Error() string {
	where := fmt.Sprintf("%s::%s+%d", e.Module, e.Func, e.PC)
	if e.Line > 0 {
		where = fmt.Sprintf("%s (line %d:%d)", where, e.Line, e.Col)
	}
	if e.Detail == "" {
		return fmt.Sprintf("runtime error: %s at %s", e.Code, where)
	}
	return fmt.Sprintf("runtime error: %s at %s: %s", e.Code, where, e.Detail)
}
