// Package rewrite synthesizes the weak and durable variants of every wrapper
// function by redirecting its nested calls.
package rewrite

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/syncsplit/internal/graph"
	"github.com/phobologic/syncsplit/internal/model"
	"github.com/phobologic/syncsplit/internal/source"
)

var (
	// ErrMissingEntry means the file index names a wrapper absent from the registry.
	ErrMissingEntry = errors.New("missing registry entry")

	// ErrDeclRecovery means no forward declaration could be recovered for a callee.
	ErrDeclRecovery = errors.New("forward declaration recovery failed")
)

// DefaultMaxDeclLines bounds the line scan used when a callee has no tokens.
const DefaultMaxDeclLines = 32

// Config controls naming and which side outputs are produced.
type Config struct {
	Primitive  string
	EntryPoint string
	Labels     model.Labels

	// TrackForwardDecls enables forward-declaration synthesis for rewritten
	// callees. Without it only bodies and statistics are produced.
	TrackForwardDecls bool

	MaxDeclLines int
}

// Engine rewrites wrappers against a frozen closure. It holds no mutable state
// of its own, so File may be called concurrently for different files.
type Engine struct {
	cfg     Config
	closure *graph.ClosureResult
	sites   graph.CallSites
	lines   *source.Cache
}

// New creates an Engine.
func New(cfg Config, closure *graph.ClosureResult, sites graph.CallSites, lines *source.Cache) *Engine {
	if cfg.MaxDeclLines <= 0 {
		cfg.MaxDeclLines = DefaultMaxDeclLines
	}
	return &Engine{cfg: cfg, closure: closure, sites: sites, lines: lines}
}

// FileResult holds everything synthesized for one file.
type FileResult struct {
	Path     string
	Bodies   []model.Synthesized
	Decls    []string
	Stats    model.Stats
	Rewrites []model.Rewrite

	// Skipped lists per-function failures that did not stop the file.
	Skipped []error

	// Entry is the entry-point declaration when it is a wrapper in this file.
	Entry *model.Node
}

// VariantName renames name for variant v. A name containing the primitive has
// that occurrence replaced by the label; any other name gets the label as a
// prefix.
func (e *Engine) VariantName(name string, v model.Variant) string {
	return VariantName(e.cfg.Primitive, e.cfg.Labels, name, v)
}

// VariantName is the engine-free form of Engine.VariantName.
func VariantName(primitive string, labels model.Labels, name string, v model.Variant) string {
	label := labels.Of(v)
	if primitive != "" && strings.Contains(name, primitive) {
		return strings.Replace(name, primitive, label, 1)
	}
	return label + "_" + name
}

// File synthesizes variants for every wrapper defined in path. lines is the
// file's current content. Per-function problems are collected in Skipped; a
// non-nil error means the file must not be patched.
func (e *Engine) File(path string, lines []string) (*FileResult, error) {
	res := &FileResult{Path: path}
	decls := make(map[string]struct{})

	seen := make(map[string]struct{})
	for _, name := range e.closure.Files[path] {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		key := model.Key{File: path, Name: name}
		decl, err := e.closure.Lookup(key)
		if err != nil {
			res.Skipped = append(res.Skipped, fmt.Errorf("%w: %v", ErrMissingEntry, err))
			continue
		}

		variants := []model.Variant{model.Weak, model.Durable}
		if name == e.cfg.EntryPoint {
			variants = []model.Variant{model.Durable}
			res.Entry = decl
		}

		for _, v := range variants {
			out, err := e.synthesize(decl, lines, v)
			if err != nil {
				if errors.Is(err, ErrDeclRecovery) {
					return nil, err
				}
				res.Skipped = append(res.Skipped, err)
				break
			}
			res.Bodies = append(res.Bodies, out.body)
			res.Stats.Add(out.stats)
			res.Rewrites = append(res.Rewrites, out.rewrites...)
			for _, d := range out.decls {
				decls[d] = struct{}{}
			}

			// The variant bodies land at the end of the file, after any
			// caller that may use them.
			if e.cfg.TrackForwardDecls && name != e.cfg.EntryPoint {
				own, err := e.ForwardDecl(decl, v)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				decls[own] = struct{}{}
			}
		}
	}

	for d := range decls {
		res.Decls = append(res.Decls, d)
	}
	sort.Strings(res.Decls)

	sort.SliceStable(res.Bodies, func(i, j int) bool {
		if res.Bodies[i].StartLine != res.Bodies[j].StartLine {
			return res.Bodies[i].StartLine < res.Bodies[j].StartLine
		}
		return res.Bodies[i].Variant < res.Bodies[j].Variant
	})

	return res, nil
}

type synthesis struct {
	body     model.Synthesized
	stats    model.Stats
	rewrites []model.Rewrite
	decls    []string
}

// synthesize produces one variant of decl from the file lines.
func (e *Engine) synthesize(decl *model.Node, lines []string, v model.Variant) (*synthesis, error) {
	key := model.KeyOf(decl)
	start, end := decl.Span.StartLine, decl.Span.EndLine
	if start < 1 || end > len(lines) || start > end {
		return nil, fmt.Errorf("%s: span %d-%d outside file of %d lines", key, start, end, len(lines))
	}

	calls := e.sites[key]
	last, err := graph.LastCall(calls)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	// buf[i] holds file line start+i.
	buf := make([]string, end-start+1)
	copy(buf, lines[start-1:end])

	out := &synthesis{}
	isEntry := decl.Name == e.cfg.EntryPoint
	renamed := 0
	ownName := e.VariantName(decl.Name, v)
	if !isEntry {
		renamed = decl.NameLine
		if renamed < start || renamed > end {
			renamed = start
		}
		i := renamed - start
		buf[i] = replaceIdent(buf[i], decl.Name, ownName)
	}

	rewritten := make(map[int]struct{})
	for _, call := range calls {
		line := call.Line()
		if _, done := rewritten[line]; done {
			continue
		}
		if line < start || line > end {
			continue
		}

		target := model.Weak
		if v == model.Durable && call == last {
			target = model.Durable
		}

		newName := e.VariantName(call.Name, target)
		i := line - start
		from := call.Span.StartCol - 1
		if line == renamed {
			// Columns refer to the text before the declaring line was renamed.
			from += identShift(lines[line-1], decl.Name, ownName, from)
		}
		updated, ok := replaceCall(buf[i], call.Name, newName, from)
		if !ok {
			continue
		}
		buf[i] = updated
		rewritten[line] = struct{}{}

		primitive := e.closure.IsPrimitive(call)
		out.stats.Count(primitive, target)
		out.rewrites = append(out.rewrites, model.Rewrite{
			Caller:  key,
			Variant: v,
			Callee:  call.Name,
			NewName: newName,
			Line:    line,
		})

		if primitive || !e.cfg.TrackForwardDecls || call.Ref == nil {
			continue
		}
		fwd, err := e.ForwardDecl(call.Ref, target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out.decls = append(out.decls, fwd)
	}

	out.body = model.Synthesized{
		Key:       key,
		Variant:   v,
		Body:      strings.Join(buf, "\n"),
		StartLine: start,
	}
	return out, nil
}

// replaceCall replaces the first occurrence of name at or after column from
// that is a whole identifier followed by whitespace, a comma or a
// parenthesis. It reports whether a replacement was made.
func replaceCall(line, name, repl string, from int) (string, bool) {
	if from < 0 || from > len(line) {
		from = 0
	}
	if i := findCall(line, name, from); i >= 0 {
		return line[:i] + repl + line[i+len(name):], true
	}
	// The call node may start before the callee (member calls); fall back to
	// the whole line.
	if i := findCall(line, name, 0); i >= 0 {
		return line[:i] + repl + line[i+len(name):], true
	}
	return line, false
}

func findCall(line, name string, from int) int {
	for i := from; i <= len(line)-len(name); {
		j := strings.Index(line[i:], name)
		if j < 0 {
			return -1
		}
		at := i + j
		end := at + len(name)
		if (at == 0 || !isIdentByte(line[at-1])) && end < len(line) && isCallBoundary(line[end]) {
			return at
		}
		i = at + 1
	}
	return -1
}

// replaceIdent replaces every whole-identifier occurrence of name.
func replaceIdent(text, name, repl string) string {
	var b strings.Builder
	last := 0
	for _, at := range identIndexes(text, name) {
		b.WriteString(text[last:at])
		b.WriteString(repl)
		last = at + len(name)
	}
	b.WriteString(text[last:])
	return b.String()
}

// identShift returns how far column col of text moves once replaceIdent has
// renamed name to repl.
func identShift(text, name, repl string, col int) int {
	n := 0
	for _, at := range identIndexes(text, name) {
		if at+len(name) <= col {
			n++
		}
	}
	return n * (len(repl) - len(name))
}

// identIndexes returns the byte offsets of whole-identifier occurrences of
// name in text.
func identIndexes(text, name string) []int {
	if name == "" {
		return nil
	}
	var out []int
	for i := 0; i <= len(text)-len(name); {
		j := strings.Index(text[i:], name)
		if j < 0 {
			break
		}
		at := i + j
		end := at + len(name)
		if (at == 0 || !isIdentByte(text[at-1])) && (end == len(text) || !isIdentByte(text[end])) {
			out = append(out, at)
			i = end
			continue
		}
		i = at + 1
	}
	return out
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isCallBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f', ',', '(', ')':
		return true
	}
	return false
}
