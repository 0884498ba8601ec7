package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func paths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestDiscoverSourceFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "main.c", "int main(void) { return 0; }")
	writeFile(t, dir, "lib/store.cpp", "void f() {}")
	writeFile(t, dir, "lib/util.cc", "void g() {}")
	// Headers and other files are ignored
	writeFile(t, dir, "lib/store.h", "void f();")
	writeFile(t, dir, "README.md", "hello")
	writeFile(t, dir, ".hidden.c", "int x;")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	want := []string{
		filepath.Join("lib", "store.cpp"),
		filepath.Join("lib", "util.cc"),
		"main.c",
	}
	got := paths(entries)
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}

	langs := map[string]string{"main.c": "c", filepath.Join("lib", "store.cpp"): "cpp"}
	for _, e := range entries {
		if want, ok := langs[e.Path]; ok && e.Language != want {
			t.Errorf("%s: language = %q, want %q", e.Path, e.Language, want)
		}
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "main.c", "")
	writeFile(t, dir, "build/gen.c", "")
	writeFile(t, dir, "CMakeFiles/probe.c", "")
	writeFile(t, dir, ".cache/x.c", "")
	writeFile(t, dir, "third_party/zlib/deflate.c", "")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := paths(entries); len(got) != 1 || got[0] != "main.c" {
		t.Fatalf("entries = %v, want [main.c]", got)
	}

	entries, err = Files(dir, Options{IncludeVendored: true})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("with vendored: entries = %v", paths(entries))
	}
}

func TestDiscoverLanguageFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.c", "")
	writeFile(t, dir, "b.cpp", "")

	entries, err := Files(dir, Options{Languages: []string{"c"}})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := paths(entries); len(got) != 1 || got[0] != "a.c" {
		t.Fatalf("entries = %v, want [a.c]", got)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "generated\n*.pb.c\n")
	writeFile(t, dir, "main.c", "")
	writeFile(t, dir, "msg.pb.c", "")
	writeFile(t, dir, "generated/tables.c", "")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := paths(entries); len(got) != 1 || got[0] != "main.c" {
		t.Fatalf("entries = %v, want [main.c]", got)
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.c", "")

	err := os.Symlink(filepath.Join(dir, "real.c"), filepath.Join(dir, "link.c"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := paths(entries); len(got) != 1 || got[0] != "real.c" {
		t.Fatalf("entries = %v, want [real.c]", got)
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
