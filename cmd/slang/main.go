package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/flubbe/slang/pkg/loader"
	"github.com/flubbe/slang/pkg/vm"
)

type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ":") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	var (
		roots       pathList
		interactive bool
	)
	flag.Var(&roots, "L", "module search path (repeatable)")
	flag.BoolVar(&interactive, "i", false, "start an interactive session")
	flag.Parse()

	switch {
	case interactive || flag.NArg() == 0:
		os.Exit(runREPL(roots))
	default:
		os.Exit(runFile(flag.Arg(0), roots))
	}
}

func runFile(file string, roots []string) int {
	registry := vm.StdRegistry()
	sess := loader.NewSession(loader.NewFileManager(roots...), registry)
	prog, err := sess.LoadProgram(file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "slang:", err)
		return 1
	}

	exit, err := vm.New(prog).Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "slang:", err)
		return 1
	}
	return int(exit)
}
