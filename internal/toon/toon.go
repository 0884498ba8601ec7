// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// run reports.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/syncsplit/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a run Report into TOON format. Individual rewrites are
// listed only when withRewrites is set.
func Encode(r *model.Report, withRewrites bool) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("project: %s", encodeValue(r.Project)))
	parts = append(parts, fmt.Sprintf("primitive: %s", encodeValue(r.Primitive)))
	parts = append(parts, fmt.Sprintf("wrappers: %d", r.Wrappers))

	passes := make([]string, len(r.Passes))
	for i, p := range r.Passes {
		passes[i] = strconv.Itoa(p)
	}
	parts = append(parts, fmt.Sprintf("passes[%d]: %s", len(passes), strings.Join(passes, ",")))

	parts = append(parts, strings.Join([]string{
		"stats:",
		fmt.Sprintf("  primitive_weak: %d", r.Stats.PrimitiveWeak),
		fmt.Sprintf("  primitive_durable: %d", r.Stats.PrimitiveDurable),
		fmt.Sprintf("  wrapper_weak: %d", r.Stats.WrapperWeak),
		fmt.Sprintf("  wrapper_durable: %d", r.Stats.WrapperDurable),
	}, "\n"))

	var fileRows [][]string
	for i := range r.Files {
		f := &r.Files[i]
		fileRows = append(fileRows, []string{
			f.Path,
			strconv.Itoa(len(f.Wrappers)),
			strconv.Itoa(f.Bodies),
			strconv.Itoa(f.Decls),
			strconv.Itoa(len(f.Skipped)),
		})
	}
	parts = append(parts, formatTabular("files", []string{"path", "wrappers", "bodies", "decls", "skipped"}, fileRows))

	if withRewrites && len(r.Rewrites) > 0 {
		var rows [][]string
		for i := range r.Rewrites {
			rw := &r.Rewrites[i]
			rows = append(rows, []string{
				rw.Caller.File,
				rw.Caller.Name,
				rw.Variant.String(),
				strconv.Itoa(rw.Line),
				rw.Callee,
				rw.NewName,
			})
		}
		parts = append(parts, formatTabular("rewrites", []string{"file", "caller", "variant", "line", "callee", "target"}, rows))
	}

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
