// Package lang provides a language registry mapping file extensions to
// tree-sitter languages and the node shapes syncsplit cares about.
package lang

import (
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// FunctionTypes lists node types that define a function with a body.
	FunctionTypes []string

	// CallTypes lists node types that represent a call expression.
	CallTypes []string

	// FunctionName returns the identifier node naming a function definition,
	// or nil if it cannot be determined.
	FunctionName func(node *sitter.Node) *sitter.Node

	// CalleeName returns the called name of a call node, or "" for indirect
	// calls (function pointers, computed callees).
	CalleeName func(node *sitter.Node, source []byte) string

	// Body returns the body node of a function definition, or nil.
	Body func(node *sitter.Node) *sitter.Node
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// IsFunction reports whether a node type is a function definition.
func (l *Language) IsFunction(nodeType string) bool {
	return contains(l.FunctionTypes, nodeType)
}

// IsCall reports whether a node type is a call expression.
func (l *Language) IsCall(nodeType string) bool {
	return contains(l.CallTypes, nodeType)
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
// Matching is case-insensitive so that ".C" and ".CPP" are recognized.
func ForExtension(ext string) string {
	m := getExtensionMap()
	if name, ok := m[ext]; ok {
		return name
	}
	return m[strings.ToLower(ext)]
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
