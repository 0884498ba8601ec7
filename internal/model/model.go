// Package model defines core data structures for syncsplit.
package model

import "fmt"

// NodeKind is the syntactic kind of a Node.
type NodeKind int

const (
	Other NodeKind = iota
	FunctionDeclaration
	CallExpression
)

func (k NodeKind) String() string {
	switch k {
	case FunctionDeclaration:
		return "function"
	case CallExpression:
		return "call"
	default:
		return "other"
	}
}

// Span is a 1-based source range within a single file.
type Span struct {
	File      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Node is a simplified syntax tree node produced by the parse package.
type Node struct {
	Kind     NodeKind
	Name     string
	Span     Span
	Children []*Node

	// NameLine is the line holding a function declaration's name. It differs
	// from Span.StartLine when the return type sits on its own line.
	NameLine int

	// Ref is the declaration a call resolves to, possibly in another file.
	// Nil when the callee is not defined anywhere in the project.
	Ref *Node

	// Tokens holds the lexical tokens of a function declaration up to the
	// opening of its body. Empty for other kinds.
	Tokens []string
}

// Line returns the starting line of the node.
func (n *Node) Line() int {
	return n.Span.StartLine
}

// Key identifies a function within a project by file and name.
type Key struct {
	File string
	Name string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.File, k.Name)
}

// KeyOf returns the registry key of a declaration node.
func KeyOf(decl *Node) Key {
	return Key{File: decl.Span.File, Name: decl.Name}
}

// Variant selects which rewritten copy of a wrapper is being produced.
type Variant int

const (
	Weak Variant = iota
	Durable
)

func (v Variant) String() string {
	if v == Durable {
		return "durable"
	}
	return "weak"
}

// Labels maps variants to the identifiers used when renaming.
type Labels struct {
	Weak    string
	Durable string
}

// Of returns the label for v.
func (l Labels) Of(v Variant) string {
	if v == Durable {
		return l.Durable
	}
	return l.Weak
}

// Synthesized is one rewritten function body awaiting insertion.
type Synthesized struct {
	Key       Key
	Variant   Variant
	Body      string
	StartLine int
}

// Stats counts call-site rewrites by callee kind and target variant.
type Stats struct {
	PrimitiveWeak    int
	PrimitiveDurable int
	WrapperWeak      int
	WrapperDurable   int
}

// Count records a single rewrite.
func (s *Stats) Count(primitive bool, v Variant) {
	switch {
	case primitive && v == Durable:
		s.PrimitiveDurable++
	case primitive:
		s.PrimitiveWeak++
	case v == Durable:
		s.WrapperDurable++
	default:
		s.WrapperWeak++
	}
}

// Add merges o into s.
func (s *Stats) Add(o Stats) {
	s.PrimitiveWeak += o.PrimitiveWeak
	s.PrimitiveDurable += o.PrimitiveDurable
	s.WrapperWeak += o.WrapperWeak
	s.WrapperDurable += o.WrapperDurable
}

// Rewrite records a single call site that was redirected to a variant.
type Rewrite struct {
	Caller  Key
	Variant Variant
	Callee  string
	NewName string
	Line    int
}

// FileReport summarizes the work done on one file.
type FileReport struct {
	Path     string
	Wrappers []string
	Bodies   int
	Decls    int
	Skipped  []string
}

// Report is the end-of-run summary.
type Report struct {
	Project   string
	Primitive string
	Passes    []int
	Wrappers  int
	Stats     Stats
	Files     []FileReport
	Rewrites  []Rewrite
}
