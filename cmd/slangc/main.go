package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/flubbe/slang/pkg/bytecode"
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
		roots   pathList
		output  string
		listing bool
	)
	flag.Var(&roots, "L", "module search path (repeatable)")
	flag.StringVar(&output, "o", "", "output file (default: source with "+bytecode.FileExt+")")
	flag.BoolVar(&listing, "S", false, "print a disassembly listing instead of writing the artifact")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: slangc [-L dir] [-o out"+bytecode.FileExt+"] [-S] file"+bytecode.SourceExt)
		os.Exit(2)
	}
	file := flag.Arg(0)

	sess := loader.NewSession(loader.NewFileManager(roots...), vm.NewRegistry())
	mod, err := sess.CompileFile(file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "slangc:", err)
		os.Exit(1)
	}

	if listing {
		if err := bytecode.Disassemble(os.Stdout, mod); err != nil {
			fmt.Fprintln(os.Stderr, "slangc:", err)
			os.Exit(1)
		}
		return
	}

	if output == "" {
		output = strings.TrimSuffix(file, bytecode.SourceExt) + bytecode.FileExt
	}
	out, err := os.Create(output)
	if err != nil {
		fmt.Fprintln(os.Stderr, "slangc:", err)
		os.Exit(1)
	}
	if err := bytecode.Encode(out, mod); err != nil {
		out.Close()
		os.Remove(output)
		fmt.Fprintln(os.Stderr, "slangc:", err)
		os.Exit(1)
	}
	if err := out.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "slangc:", err)
		os.Exit(1)
	}
}
