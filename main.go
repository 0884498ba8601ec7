// syncsplit rewrites a C/C++ project so that every function reaching fsync
// comes in a weak and a durable flavour.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/syncsplit/internal/discover"
	"github.com/phobologic/syncsplit/internal/graph"
	"github.com/phobologic/syncsplit/internal/lang"
	"github.com/phobologic/syncsplit/internal/model"
	"github.com/phobologic/syncsplit/internal/parse"
	"github.com/phobologic/syncsplit/internal/patch"
	"github.com/phobologic/syncsplit/internal/rewrite"
	"github.com/phobologic/syncsplit/internal/source"
	"github.com/phobologic/syncsplit/internal/store"
	"github.com/phobologic/syncsplit/internal/toon"
	"github.com/phobologic/syncsplit/internal/workspace"
)

var version = "dev"

const defaultMaxFileSize = 4_000_000 // 4 MB

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "init" {
		return runInit(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("syncsplit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := defaultConfig()
	var (
		outDir          string
		inPlace         bool
		reportPath      string
		showRewrites    bool
		noForwardDecls  bool
		maxDeclLines    int
		langs           string
		jobs            int
		maxFileSize     int
		includeVendored bool
		verbose         bool
		showVersion     bool
	)

	fs.StringVar(&cfg.Primitive, "primitive", cfg.Primitive, "name of the synchronization primitive to split")
	fs.StringVar(&cfg.EntryPoint, "entry", cfg.EntryPoint, "entry-point function, emitted in its durable form only")
	fs.StringVar(&cfg.Labels.Weak, "weak", cfg.Labels.Weak, "label for the weak variant")
	fs.StringVar(&cfg.Labels.Durable, "durable", cfg.Labels.Durable, "label for the durable variant")
	fs.IntVar(&cfg.WeakSyscall, "weak-syscall", cfg.WeakSyscall, "system call number behind the weak primitive")
	fs.IntVar(&cfg.DurableSyscall, "durable-syscall", cfg.DurableSyscall, "system call number behind the durable primitive")
	fs.StringVar(&outDir, "o", "", "working copy directory (default <root>_)")
	fs.StringVar(&outDir, "out", "", "working copy directory (default <root>_)")
	fs.BoolVar(&inPlace, "in-place", false, "rewrite the project itself instead of a copy")
	fs.StringVar(&reportPath, "report", "", "write a SQLite run report to this file")
	fs.BoolVar(&showRewrites, "rewrites", false, "list every rewritten call site in the summary")
	fs.BoolVar(&noForwardDecls, "no-forward-decls", false, "do not emit forward declarations")
	fs.IntVar(&maxDeclLines, "max-decl-lines", rewrite.DefaultMaxDeclLines, "lines scanned when recovering a declaration from source")
	fs.StringVar(&langs, "l", "", "comma-separated languages to include (c, cpp)")
	fs.StringVar(&langs, "langs", "", "comma-separated languages to include (c, cpp)")
	fs.IntVar(&jobs, "j", runtime.GOMAXPROCS(0), "files rewritten in parallel")
	fs.IntVar(&jobs, "jobs", runtime.GOMAXPROCS(0), "files rewritten in parallel")
	fs.IntVar(&maxFileSize, "max-file-size", defaultMaxFileSize, "skip files larger than this many bytes")
	fs.BoolVar(&includeVendored, "vendored", false, "include third_party directories")
	fs.BoolVar(&verbose, "v", false, "print closure progress")
	fs.BoolVar(&verbose, "verbose", false, "print closure progress")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "syncsplit %s\n", version)
		return nil
	}

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if err := cfg.applyEnv(loadEnv(root), explicit); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	var langFilter []string
	if langs != "" {
		for _, name := range strings.Split(langs, ",") {
			name = strings.TrimSpace(name)
			if _, ok := lang.Languages[name]; !ok {
				return fmt.Errorf("unsupported language %q", name)
			}
			langFilter = append(langFilter, name)
		}
	}

	// Discover files
	files, err := discover.Files(root, discover.Options{Languages: langFilter, IncludeVendored: includeVendored})
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no parseable files found")
	}

	files = filterBySize(root, files, maxFileSize, stderr)
	if len(files) == 0 {
		return fmt.Errorf("no parseable files found (all exceeded size limit)")
	}

	// Prepare the working copy
	work := root
	if !inPlace {
		work = workspace.DefaultDir(root)
		if outDir != "" {
			if work, err = filepath.Abs(outDir); err != nil {
				return fmt.Errorf("resolving output directory: %w", err)
			}
		}
		if err := workspace.Copy(root, work); err != nil {
			return fmt.Errorf("creating working copy: %w", err)
		}
		_, _ = fmt.Fprintf(stderr, "working copy: %s\n", work)
	}

	// Sized to the file set so nothing is evicted: declaration recovery must
	// read the original text while other files are being rewritten.
	lines := source.NewCache(len(files))

	units := parseFilesConcurrent(work, files, lines, stderr)
	if len(units) == 0 {
		return fmt.Errorf("no files could be parsed")
	}

	roots := make([]*model.Node, len(units))
	for i, u := range units {
		roots[i] = u.Root
	}
	parse.Link(roots)

	var onPass func(int, map[string]int)
	if verbose {
		onPass = func(pass int, counts map[string]int) {
			total := 0
			for _, n := range counts {
				total += n
			}
			_, _ = fmt.Fprintf(stderr, "pass %d: %d wrappers in %d files\n", pass, total, len(counts))
		}
	}
	closure := graph.Closure(units, cfg.Primitive, onPass)

	for _, path := range closure.SortedFiles() {
		_, _ = fmt.Fprintf(stderr, "%s: %d wrappers\n", relPath(work, path), len(closure.Files[path]))
	}

	engine := rewrite.New(rewrite.Config{
		Primitive:         cfg.Primitive,
		EntryPoint:        cfg.EntryPoint,
		Labels:            cfg.Labels,
		TrackForwardDecls: !noForwardDecls,
		MaxDeclLines:      maxDeclLines,
	}, closure, graph.LocateCallSites(closure), lines)

	pcfg := patch.DefaultConfig(cfg.Labels, cfg.WeakSyscall, cfg.DurableSyscall)
	results := rewriteFiles(engine, closure.SortedFiles(), lines, pcfg, jobs, work, stderr)

	report := &model.Report{
		Project:   filepath.Base(root),
		Primitive: cfg.Primitive,
		Passes:    closure.PassSizes,
		Wrappers:  len(closure.Registry),
	}

	var failed []string
	for _, r := range results {
		rel := relPath(work, r.path)
		if r.err != nil {
			_, _ = fmt.Fprintf(stderr, "error: %v\n", r.err)
			failed = append(failed, rel)
			continue
		}

		fr := model.FileReport{
			Path:     rel,
			Wrappers: closure.Files[r.path],
			Bodies:   len(r.res.Bodies),
			Decls:    len(r.res.Decls),
		}
		for _, e := range r.res.Skipped {
			fr.Skipped = append(fr.Skipped, e.Error())
		}
		report.Files = append(report.Files, fr)
		report.Stats.Add(r.res.Stats)

		for _, rw := range r.res.Rewrites {
			rw.Caller.File = rel
			report.Rewrites = append(report.Rewrites, rw)
		}
	}

	_, _ = fmt.Fprintln(stdout, toon.Encode(report, showRewrites))

	if reportPath != "" {
		if err := store.Write(reportPath, report); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d file(s) not patched: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

type fileResult struct {
	path string
	res  *rewrite.FileResult
	err  error
}

// rewriteFiles synthesizes and patches every file holding wrappers. A failure
// in one file does not stop the others; results come back in input order.
func rewriteFiles(engine *rewrite.Engine, paths []string, lines *source.Cache, cfg patch.Config, jobs int, work string, stderr io.Writer) []fileResult {
	if jobs <= 0 {
		jobs = 1
	}
	results := make([]fileResult, len(paths))
	var stderrMu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(jobs)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = fileResult{path: path}
			res, err := rewriteFile(engine, path, lines, cfg)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].res = res

			if len(res.Skipped) > 0 {
				stderrMu.Lock()
				for _, e := range res.Skipped {
					_, _ = fmt.Fprintf(stderr, "Warning: %s: %v\n", relPath(work, path), e)
				}
				stderrMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func rewriteFile(engine *rewrite.Engine, path string, lines *source.Cache, cfg patch.Config) (*rewrite.FileResult, error) {
	original, err := lines.Lines(path)
	if err != nil {
		return nil, err
	}

	res, err := engine.File(path, original)
	if err != nil {
		return nil, err
	}

	patched, err := patch.Apply(original, res, cfg)
	if err != nil {
		return nil, err
	}

	if err := patch.WriteFile(path, []byte(source.Join(patched))); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func filterBySize(root string, files []discover.FileEntry, maxSize int, stderr io.Writer) []discover.FileEntry {
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if fi.Size() > int64(maxSize) {
			_, _ = fmt.Fprintf(stderr, "Warning: %s: skipped (>%d bytes)\n", f.Path, maxSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// parseFilesConcurrent parses every file under root and returns the units in
// discovery order. Unit paths are absolute so they can be reopened for
// rewriting. The lines of every parsed file are stored in cache.
func parseFilesConcurrent(root string, files []discover.FileEntry, cache *source.Cache, stderr io.Writer) []graph.Unit {
	type result struct {
		index int
		unit  graph.Unit
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	var stderrMu sync.Mutex

	warn := func(path string, err error) {
		stderrMu.Lock()
		_, _ = fmt.Fprintf(stderr, "Warning: failed to parse %s: %v\n", path, err)
		stderrMu.Unlock()
	}

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			parsers := make(map[string]*parserPair)

			for idx := range work {
				f := files[idx]
				pp, ok := parsers[f.Language]
				if !ok {
					l := lang.Languages[f.Language]
					pp = &parserPair{lang: l, parser: l.NewParser()}
					parsers[f.Language] = pp
				}

				absPath := filepath.Join(root, f.Path)
				src, err := os.ReadFile(absPath)
				if err != nil {
					warn(f.Path, err)
					continue
				}

				node, err := parse.Unit(pp.lang, pp.parser, src, absPath)
				if err != nil {
					if !errors.Is(err, parse.ErrEmptySource) {
						warn(f.Path, err)
					}
					continue
				}
				cache.Put(absPath, source.Split(string(src)))
				results <- result{index: idx, unit: graph.Unit{Path: absPath, Root: node}}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	indexed := make([]graph.Unit, len(files))
	valid := make([]bool, len(files))
	for r := range results {
		indexed[r.index] = r.unit
		valid[r.index] = true
	}

	var units []graph.Unit
	for i, v := range valid {
		if v {
			units = append(units, indexed[i])
		}
	}

	return units
}

type parserPair struct {
	lang   *lang.Language
	parser *sitter.Parser
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-primitive": true, "--primitive": true,
	"-entry": true, "--entry": true,
	"-weak": true, "--weak": true,
	"-durable": true, "--durable": true,
	"-weak-syscall": true, "--weak-syscall": true,
	"-durable-syscall": true, "--durable-syscall": true,
	"-o": true, "--o": true,
	"-out": true, "--out": true,
	"-report": true, "--report": true,
	"-max-decl-lines": true, "--max-decl-lines": true,
	"-l": true, "--l": true,
	"-langs": true, "--langs": true,
	"-j": true, "--j": true,
	"-jobs": true, "--jobs": true,
	"-max-file-size": true, "--max-file-size": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
