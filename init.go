package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	sentinelStart = "# syncsplit:start"
	sentinelEnd   = "# syncsplit:end"
)

// runInit implements the `syncsplit init` subcommand, which writes (or
// updates) a syncsplit configuration section in a .env file.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("syncsplit init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: syncsplit init [flags] [path-to-.env]

Write the syncsplit settings to a .env file. The section is wrapped in
sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content. Values already present in the file are kept;
missing ones get their defaults. Creates the file if it does not exist.

path-to-.env defaults to ./.env.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	// --dry-run with no path: just print the default section.
	if dryRun && fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stdout, generateSection(nil))
		return nil
	}

	path := ".env"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	existing, _ := os.ReadFile(path)
	current, err := godotenv.Unmarshal(string(existing))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	updated := applySection(string(existing), generateSection(current))

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote syncsplit section to %s\n", path)
	return nil
}

// generateSection returns the sentinel-wrapped settings block. Values found in
// current replace the defaults.
func generateSection(current map[string]string) string {
	def := defaultConfig()
	settings := []struct {
		key, value, help string
	}{
		{envPrimitive, def.Primitive, "synchronization primitive whose callers are split"},
		{envEntry, def.EntryPoint, "entry point, emitted in its durable form only"},
		{envWeak, def.Labels.Weak, "weak variant label"},
		{envDurable, def.Labels.Durable, "durable variant label"},
		{envWeakSyscall, strconv.Itoa(def.WeakSyscall), "system call behind the weak primitive"},
		{envDurableSyscall, strconv.Itoa(def.DurableSyscall), "system call behind the durable primitive"},
	}

	lines := []string{sentinelStart, "# Settings for syncsplit. Flags override these; see `syncsplit --help`."}
	for _, s := range settings {
		value := s.value
		if v, ok := current[s.key]; ok && v != "" {
			value = v
		}
		lines = append(lines, "# "+s.help, s.key+"="+value)
	}
	lines = append(lines, sentinelEnd)
	return strings.Join(lines, "\n")
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
