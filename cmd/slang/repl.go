package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/flubbe/slang/pkg/bytecode"
	"github.com/flubbe/slang/pkg/loader"
	"github.com/flubbe/slang/pkg/vm"
)

const (
	historyFile = ".slang_history"
	promptMain  = ">>> "
	banner      = "slang — Ctrl+D to exit, :help for commands."
	helpText    = `
Commands:
  :help            Show this help
  :quit / :exit    Exit
  :decls           Show accumulated declarations
  :reset           Discard accumulated declarations
Anything else is evaluated: expressions echo their value, statements
run, and declarations (fn, const, struct, import) persist for the rest
of the session.
`
)

// replSession accumulates declarations across inputs. Every evaluation
// compiles a fresh program from the declarations plus the new input,
// so each input sees a consistent, fully checked module.
type replSession struct {
	roots    []string
	registry *vm.Registry
	decls    []string
}

func runREPL(roots []string) int {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	r := newREPLSession(roots)

	for {
		line, err := ln.Prompt(promptMain)
		if err != nil { // Ctrl+D or Ctrl+C
			fmt.Println()
			break
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(input, ":") {
			if done := r.command(input); done {
				break
			}
			continue
		}

		r.eval(input)
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return 0
}

func newREPLSession(roots []string) *replSession {
	r := &replSession{roots: roots, registry: vm.NewRegistry()}
	r.registry.RegisterStd(os.Stdout)
	return r
}

func (r *replSession) command(input string) (exit bool) {
	switch fields := strings.Fields(input); fields[0] {
	case ":quit", ":exit":
		return true
	case ":help":
		fmt.Print(helpText)
	case ":decls":
		for _, d := range r.decls {
			fmt.Println(d)
		}
	case ":reset":
		r.decls = nil
		fmt.Println("session reset")
	default:
		fmt.Printf("unknown command %s (:help for help)\n", fields[0])
	}
	return false
}

// eval tries the input as an expression to echo, then as statements,
// then as a declaration. The first interpretation that compiles wins.
func (r *replSession) eval(input string) {
	// Expression echo: bind a "show" host function per candidate type
	// and let the type checker pick the shape that fits.
	echoTypes := []struct {
		name string
		kind bytecode.TypeKind
	}{
		{"i32", bytecode.TI32},
		{"f32", bytecode.TF32},
		{"bool", bytecode.TBool},
		{"str", bytecode.TStr},
	}
	for _, et := range echoTypes {
		r.registry.Register("repl", "show",
			[]bytecode.TypeRef{{Kind: et.kind}}, bytecode.TypeRef{Kind: bytecode.TVoid},
			func(args []vm.Value) (vm.Value, error) {
				fmt.Println(args[0])
				return vm.Void(), nil
			})
		src := r.program(
			fmt.Sprintf("#[native(lib=%q)]\nfn show(v: %s);", "repl", et.name),
			fmt.Sprintf("show(%s);", input),
		)
		if r.tryRun(src) {
			return
		}
	}

	// Statements.
	if r.tryRun(r.program("", input)) {
		return
	}

	// Declarations: compile-probe with the declaration added, keep it
	// on success.
	probe := r.program(input, "")
	if r.tryRun(probe) {
		r.decls = append(r.decls, input)
		return
	}

	// Nothing compiled: rerun the statement form for its error message.
	if _, err := r.compile(r.program("", input)); err != nil {
		fmt.Println(err)
	}
}

// program assembles a synthetic source: session declarations, extra
// declarations, then a main wrapping the statements.
func (r *replSession) program(extraDecls, stmts string) string {
	var sb strings.Builder
	for _, d := range r.decls {
		sb.WriteString(d)
		sb.WriteByte('\n')
	}
	if extraDecls != "" {
		sb.WriteString(extraDecls)
		sb.WriteByte('\n')
	}
	sb.WriteString("fn main() -> i32 {\n")
	if stmts != "" {
		sb.WriteString(stmts)
		sb.WriteByte('\n')
	}
	sb.WriteString("return 0;\n}\n")
	return sb.String()
}

func (r *replSession) compile(src string) (*vm.Program, error) {
	sess := loader.NewSession(loader.NewFileManager(r.roots...), r.registry)
	sess.WriteArtifacts = false
	return sess.LoadProgramSource([]byte(src), "repl"+bytecode.SourceExt)
}

func (r *replSession) tryRun(src string) bool {
	prog, err := r.compile(src)
	if err != nil {
		return false
	}
	if _, err := vm.New(prog).Run(); err != nil {
		fmt.Println(err)
	}
	return true
}
