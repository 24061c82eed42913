package loader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/flubbe/slang/pkg/bytecode"
)

// FileManager maps module paths to files under an ordered list of
// search roots. The importing module's own directory is always
// searched first, before any configured root.
type FileManager struct {
	roots []string
}

func NewFileManager(roots ...string) *FileManager {
	return &FileManager{roots: roots}
}

// AddRoot appends a search root with lower priority than the ones
// already present.
func (fm *FileManager) AddRoot(dir string) {
	fm.roots = append(fm.roots, dir)
}

// ModuleFiles is the on-disk location of one module. Either path is
// empty when the corresponding file does not exist.
type ModuleFiles struct {
	Root     string
	Source   string
	Artifact string
}

// Found reports whether a source or compiled artifact exists.
func (f ModuleFiles) Found() bool {
	return f.Source != "" || f.Artifact != ""
}

// Locate resolves a module path like "utils/math" against importerDir
// and then the configured roots. The first root containing a source or
// artifact wins; source and artifact from different roots never mix.
func (fm *FileManager) Locate(modPath, importerDir string) ModuleFiles {
	rel := filepath.FromSlash(modPath)
	roots := fm.roots
	if importerDir != "" {
		roots = append([]string{importerDir}, roots...)
	}
	for _, root := range roots {
		f := ModuleFiles{Root: root}
		if p := filepath.Join(root, rel+bytecode.SourceExt); fileExists(p) {
			f.Source = p
		}
		if p := filepath.Join(root, rel+bytecode.FileExt); fileExists(p) {
			f.Artifact = p
		}
		if f.Found() {
			return f
		}
	}
	return ModuleFiles{}
}

// ModulePathOf derives the canonical module path of a source file
// named directly, e.g. a program passed on the command line.
func ModulePathOf(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(strings.TrimSuffix(base, bytecode.SourceExt), bytecode.FileExt)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
