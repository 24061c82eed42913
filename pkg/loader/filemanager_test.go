package loader

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	src := touch(t, root, "utils/math.sl")
	art := touch(t, root, "utils/math.cmod")
	touch(t, root, "compiled_only.cmod")

	fm := NewFileManager(root)

	f := fm.Locate("utils/math", "")
	if f.Source != src || f.Artifact != art || f.Root != root {
		t.Errorf("utils/math: %+v", f)
	}

	f = fm.Locate("compiled_only", "")
	if f.Source != "" || f.Artifact == "" {
		t.Errorf("compiled_only: %+v", f)
	}

	if f := fm.Locate("missing", ""); f.Found() {
		t.Errorf("missing resolved to %+v", f)
	}
}

func TestLocateImporterDirWins(t *testing.T) {
	root := t.TempDir()
	local := t.TempDir()
	touch(t, root, "lib.sl")
	want := touch(t, local, "lib.sl")

	fm := NewFileManager(root)
	if f := fm.Locate("lib", local); f.Source != want {
		t.Errorf("expected importer-local %s, got %+v", want, f)
	}
}

// A stale artifact in an earlier root must not shadow source in a
// later root within the same module: roots are considered whole.
func TestLocateDoesNotMixRoots(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	art := touch(t, first, "lib.cmod")
	touch(t, second, "lib.sl")

	fm := NewFileManager(first, second)
	f := fm.Locate("lib", "")
	if f.Root != first || f.Artifact != art || f.Source != "" {
		t.Errorf("expected artifact from the first root only, got %+v", f)
	}
}

func TestModulePathOf(t *testing.T) {
	tests := []struct {
		file     string
		expected string
	}{
		{"main.sl", "main"},
		{"dir/sub/prog.sl", "prog"},
		{"mod.cmod", "mod"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := ModulePathOf(tt.file); got != tt.expected {
			t.Errorf("ModulePathOf(%q) = %q, expected %q", tt.file, got, tt.expected)
		}
	}
}
