package loader

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flubbe/slang/pkg/bytecode"
	"github.com/flubbe/slang/pkg/compiler"
	"github.com/flubbe/slang/pkg/vm"
)

// Session is one compile/link session: an explicit module cache with
// the lifetime of a single program load. Modules are compiled at most
// once per session; artifacts on disk are reused when their recorded
// source hash still matches the source.
type Session struct {
	fm       *FileManager
	registry *vm.Registry

	// WriteArtifacts controls whether freshly compiled modules are
	// written back as .cmod files next to their source.
	WriteArtifacts bool

	modules map[string]*loadedModule
	order   []*loadedModule
	loading map[string]bool
}

type loadedModule struct {
	path    string
	dir     string // directory the module was found in
	mod     *bytecode.Module
	exports *compiler.ModuleExports
	index   int // slot in the linked program
}

func NewSession(fm *FileManager, registry *vm.Registry) *Session {
	return &Session{
		fm:             fm,
		registry:       registry,
		WriteArtifacts: true,
		modules:        make(map[string]*loadedModule),
		loading:        make(map[string]bool),
	}
}

// Registry exposes the native registry so hosts can add their own
// libraries before loading.
func (s *Session) Registry() *vm.Registry { return s.registry }

// moduleResolver adapts the session to the checker's resolver
// interface, carrying the importing module's directory.
type moduleResolver struct {
	s   *Session
	dir string
}

func (r moduleResolver) ResolveImport(path string) (*compiler.ModuleExports, error) {
	lm, err := r.s.load(path, r.dir)
	if err != nil {
		return nil, err
	}
	return lm.exports, nil
}

// LoadProgram compiles and links the program rooted at mainFile, a
// .sl source file. The file's directory becomes the implicit first
// search root for its imports.
func (s *Session) LoadProgram(mainFile string) (*vm.Program, error) {
	src, err := os.ReadFile(mainFile)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", mainFile, err)
	}
	return s.LoadProgramSource(src, mainFile)
}

// LoadProgramSource is LoadProgram for source held in memory, as the
// REPL produces. file names the source in diagnostics.
func (s *Session) LoadProgramSource(src []byte, file string) (*vm.Program, error) {
	dir := filepath.Dir(file)
	modPath := ModulePathOf(file)

	s.loading[modPath] = true
	mod, err := compiler.Compile(src, file, modPath, moduleResolver{s, dir}, true)
	delete(s.loading, modPath)
	if err != nil {
		return nil, err
	}
	main, err := s.admit(modPath, dir, mod)
	if err != nil {
		return nil, err
	}

	prog, err := s.link()
	if err != nil {
		return nil, err
	}
	entry := main.mod.FuncByName("main")
	if entry < 0 {
		return nil, linkErrorf(UnresolvedImport, modPath, "no main function")
	}
	prog.Entry = vm.FuncID{Module: main.index, Func: entry}
	return prog, nil
}

// CompileFile compiles one source file as a library module, resolving
// and compiling its imports as needed. It does not link; use
// LoadProgram to produce something runnable.
func (s *Session) CompileFile(file string) (*bytecode.Module, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", file, err)
	}
	dir := filepath.Dir(file)
	modPath := ModulePathOf(file)

	s.loading[modPath] = true
	mod, err := compiler.Compile(src, file, modPath, moduleResolver{s, dir}, false)
	delete(s.loading, modPath)
	if err != nil {
		return nil, err
	}
	if _, err := s.admit(modPath, dir, mod); err != nil {
		return nil, err
	}
	return mod, nil
}

// load resolves one imported module, compiling it when no up-to-date
// artifact exists. Import chains are followed depth-first; revisiting
// a module already on the chain is a cycle.
func (s *Session) load(modPath, importerDir string) (*loadedModule, error) {
	if lm, ok := s.modules[modPath]; ok {
		return lm, nil
	}
	if s.loading[modPath] {
		return nil, linkErrorf(CyclicImport, modPath, "import cycle through %s", modPath)
	}
	s.loading[modPath] = true
	defer delete(s.loading, modPath)

	files := s.fm.Locate(modPath, importerDir)
	if !files.Found() {
		return nil, linkErrorf(UnresolvedImport, modPath, "no source or compiled module found")
	}
	dir := filepath.Dir(filepath.Join(files.Root, filepath.FromSlash(modPath)))

	var src []byte
	if files.Source != "" {
		var err error
		if src, err = os.ReadFile(files.Source); err != nil {
			return nil, fmt.Errorf("load %s: %w", modPath, err)
		}
	}

	// An artifact is current when its recorded hash matches the source
	// it was compiled from and none of its imports moved underneath it.
	if files.Artifact != "" {
		mod, err := s.readArtifact(files.Artifact)
		if err == nil && (src == nil || mod.SourceHash == sha256.Sum256(src)) {
			if err := s.loadImportsOf(mod, dir); err != nil {
				return nil, err
			}
			if src == nil || s.importsCurrent(mod) {
				return s.admit(modPath, dir, mod)
			}
		} else if err != nil && src == nil {
			return nil, fmt.Errorf("load %s: %w", modPath, err)
		}
	}

	if src == nil {
		return nil, linkErrorf(UnresolvedImport, modPath, "compiled module is stale and no source is available")
	}

	mod, err := compiler.Compile(src, files.Source, modPath, moduleResolver{s, dir}, false)
	if err != nil {
		return nil, err
	}
	if s.WriteArtifacts {
		target := files.Artifact
		if target == "" {
			target = filepath.Join(files.Root, filepath.FromSlash(modPath)+bytecode.FileExt)
		}
		if err := writeArtifact(target, mod); err != nil {
			return nil, fmt.Errorf("write %s: %w", target, err)
		}
	}
	return s.admit(modPath, dir, mod)
}

// loadImportsOf loads the imports recorded in an artifact, so linking
// sees the full transitive closure even when nothing recompiles.
func (s *Session) loadImportsOf(mod *bytecode.Module, dir string) error {
	for _, imp := range mod.Imports {
		if _, err := s.load(imp.Path, dir); err != nil {
			return err
		}
	}
	return nil
}

// importsCurrent reports whether every exporter hash recorded in the
// artifact still matches the loaded exporter. A mismatch means the
// importer was compiled against an older exporter and must be rebuilt.
func (s *Session) importsCurrent(mod *bytecode.Module) bool {
	for _, imp := range mod.Imports {
		lm, ok := s.modules[imp.Path]
		if !ok || lm.mod.SourceHash != imp.Hash {
			return false
		}
	}
	return true
}

func (s *Session) admit(modPath, dir string, mod *bytecode.Module) (*loadedModule, error) {
	exports, err := compiler.ExportsOf(mod)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", modPath, err)
	}
	lm := &loadedModule{path: modPath, dir: dir, mod: mod, exports: exports, index: len(s.order)}
	s.modules[modPath] = lm
	s.order = append(s.order, lm)
	return lm, nil
}

func (s *Session) readArtifact(path string) (*bytecode.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bytecode.Decode(f)
}

// writeArtifact writes the module atomically: a decode never sees a
// partially written file.
func writeArtifact(path string, mod *bytecode.Module) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if err := bytecode.Encode(tmp, mod); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
