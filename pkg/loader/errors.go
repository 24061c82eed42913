// Package loader resolves imports, compiles stale modules and links
// compiled modules into an executable program.
package loader

import "fmt"

// LinkErrorCode classifies module resolution and linking failures.
type LinkErrorCode int

const (
	CyclicImport LinkErrorCode = iota
	UnresolvedImport
	NativeSignatureMismatch
)

var linkErrorNames = [...]string{
	CyclicImport:            "cyclic import",
	UnresolvedImport:        "unresolved import",
	NativeSignatureMismatch: "native signature mismatch",
}

func (c LinkErrorCode) String() string {
	if int(c) < len(linkErrorNames) {
		return linkErrorNames[c]
	}
	return fmt.Sprintf("LinkErrorCode(%d)", int(c))
}

// LinkError is a module resolution or linking failure. Module names
// the module being resolved when the error was raised.
type LinkError struct {
	Code   LinkErrorCode
	Module string
	Detail string
}

func (e *LinkError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("link error: %s: module %s", e.Code, e.Module)
	}
	return fmt.Sprintf("link error: %s: module %s: %s", e.Code, e.Module, e.Detail)
}

func linkErrorf(code LinkErrorCode, module, format string, args ...any) *LinkError {
	return &LinkError{Code: code, Module: module, Detail: fmt.Sprintf(format, args...)}
}
