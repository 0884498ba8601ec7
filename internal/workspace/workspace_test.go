package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDir(t *testing.T) {
	t.Parallel()
	if got := DefaultDir("/src/proj/"); got != "/src/proj_" {
		t.Errorf("DefaultDir = %q", got)
	}
}

func TestCopy(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	src := filepath.Join(base, "proj")
	writeFile(t, src, "main.c", "int main(void) { return 0; }\n")
	writeFile(t, src, "lib/log.c", "void f(void) {}\n")

	dst := DefaultDir(src)
	// A stale copy is replaced.
	writeFile(t, dst, "stale.c", "old")

	if err := Copy(src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "lib", "log.c"))
	if err != nil {
		t.Fatalf("reading copy: %v", err)
	}
	if string(data) != "void f(void) {}\n" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dst, "stale.c")); !os.IsNotExist(err) {
		t.Errorf("stale file survived: %v", err)
	}

	// The original is untouched by later edits to the copy.
	if err := os.WriteFile(filepath.Join(dst, "main.c"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	orig, _ := os.ReadFile(filepath.Join(src, "main.c"))
	if string(orig) != "int main(void) { return 0; }\n" {
		t.Errorf("original modified: %q", orig)
	}
}

func TestCopyRejectsOverlappingTarget(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	src := filepath.Join(parent, "proj")
	writeFile(t, src, "main.c", "int main(void) { return 0; }\n")

	tests := []struct {
		name string
		dst  string
	}{
		{"same directory", src},
		{"inside source", filepath.Join(src, "inner")},
		{"parent", parent},
		{"ancestor", filepath.Dir(parent)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Copy(src, tt.dst); err == nil {
				t.Errorf("Copy(%s, %s) should fail", src, tt.dst)
			}
			if _, err := os.Stat(filepath.Join(src, "main.c")); err != nil {
				t.Fatalf("project damaged: %v", err)
			}
		})
	}
}

func TestCopySymlink(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	src := filepath.Join(base, "proj")
	writeFile(t, src, "real.c", "int x;\n")
	if err := os.Symlink("real.c", filepath.Join(src, "link.c")); err != nil {
		t.Skip("symlinks not supported")
	}

	dst := DefaultDir(src)
	if err := Copy(src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	target, err := os.Readlink(filepath.Join(dst, "link.c"))
	if err != nil {
		t.Fatalf("link not recreated: %v", err)
	}
	if target != "real.c" {
		t.Errorf("link target = %q, want real.c", target)
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
