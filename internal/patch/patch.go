// Package patch splices synthesized variants, forward declarations and the
// primitive definitions into a source file.
package patch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/phobologic/syncsplit/internal/model"
	"github.com/phobologic/syncsplit/internal/rewrite"
)

var (
	// ErrAlreadyPatched is returned for files that already carry the header.
	ErrAlreadyPatched = errors.New("file already patched")

	// ErrNoInsertionPoint is returned when no function body can be found to
	// place forward declarations before.
	ErrNoInsertionPoint = errors.New("no function body found for forward declarations")
)

// HeaderMarker tags the injected header so patched files can be recognized.
const HeaderMarker = "/* syncsplit */"

// Config describes the fixed text injected into every patched file.
type Config struct {
	Header     string
	Primitives []string
}

// DefaultConfig returns the header and primitive definitions for labels,
// implemented on top of the raw system call numbers.
func DefaultConfig(labels model.Labels, weakSyscall, durableSyscall int) Config {
	return Config{
		Header: "#include <sys/syscall.h> " + HeaderMarker,
		Primitives: []string{
			fmt.Sprintf("static int %s(int fd) {return syscall(%d, fd);}", labels.Weak, weakSyscall),
			fmt.Sprintf("static int %s(int fd) {return syscall(%d, fd);}", labels.Durable, durableSyscall),
		},
	}
}

// Apply returns lines with res spliced in. The input slice is not modified.
func Apply(lines []string, res *rewrite.FileResult, cfg Config) ([]string, error) {
	for _, l := range lines {
		if strings.TrimSpace(l) == strings.TrimSpace(cfg.Header) {
			return nil, fmt.Errorf("%s: %w", res.Path, ErrAlreadyPatched)
		}
	}

	out := make([]string, len(lines))
	copy(out, lines)

	if res.Entry != nil {
		start, end := res.Entry.Span.StartLine-1, res.Entry.Span.EndLine-1
		if start < 0 || end >= len(out) || start > end {
			return nil, fmt.Errorf("%s: entry point span %d-%d outside file", res.Path, start+1, end+1)
		}
		out[start] = "/*" + out[start]
		out[end] = out[end] + "*/"
	}

	decls := dedupe(res.Decls)
	if len(decls) > 0 {
		at, err := InsertionPoint(out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", res.Path, err)
		}
		block := append([]string{""}, decls...)
		out = append(out[:at], append(block, out[at:]...)...)
	}

	out = append([]string{cfg.Header}, out...)

	out = append(out, "")
	out = append(out, cfg.Primitives...)
	out = append(out, "")
	for _, b := range orderBodies(res.Bodies) {
		out = append(out, b.Body, "")
	}
	return out, nil
}

// InsertionPoint finds the first line that closes a parameter list and opens
// a body, either on the same line or with the brace on the next line, then
// backs up to the nearest blank line above it.
func InsertionPoint(lines []string) (int, error) {
	idx := -1
	for i, l := range lines {
		if !strings.Contains(l, ")") {
			continue
		}
		if strings.Contains(l, "{") || (i+1 < len(lines) && strings.Contains(lines[i+1], "{")) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrNoInsertionPoint
	}
	for idx > 0 && strings.TrimSpace(lines[idx]) != "" {
		idx--
	}
	return idx, nil
}

func dedupe(decls []string) []string {
	seen := make(map[string]struct{}, len(decls))
	var out []string
	for _, d := range decls {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func orderBodies(bodies []model.Synthesized) []model.Synthesized {
	sorted := make([]model.Synthesized, len(bodies))
	copy(sorted, bodies)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartLine != sorted[j].StartLine {
			return sorted[i].StartLine < sorted[j].StartLine
		}
		return sorted[i].Variant < sorted[j].Variant
	})
	return sorted
}

// WriteFile replaces path with content atomically, keeping the mode of the
// file it replaces.
func WriteFile(path string, content []byte) error {
	if err := renameio.WriteFile(path, content, 0o644, renameio.WithExistingPermissions()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
