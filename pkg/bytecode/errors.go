package bytecode

import "fmt"

// FormatErrorKind discriminates decoding failures.
type FormatErrorKind int

const (
	BadMagic FormatErrorKind = iota
	UnsupportedVersion
	Truncated
	Corrupt
)

var formatErrorKindNames = [...]string{
	BadMagic:           "BadMagic",
	UnsupportedVersion: "UnsupportedVersion",
	Truncated:          "Truncated",
	Corrupt:            "Corrupt",
}

func (k FormatErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(formatErrorKindNames) {
		return formatErrorKindNames[k]
	}
	return fmt.Sprintf("FormatErrorKind(%d)", int(k))
}

// FormatError reports malformed compiled-module bytes. Decoding never
// interprets data past the first failure.
type FormatError struct {
	Kind   FormatErrorKind
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("module format error [%s]", e.Kind)
	}
	return fmt.Sprintf("module format error [%s]: %s", e.Kind, e.Detail)
}

func formatErrorf(kind FormatErrorKind, format string, args ...any) *FormatError {
	return &FormatError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
