// Package parse turns C/C++ sources into model.Node trees using tree-sitter
// and links call expressions to the declarations they name.
package parse

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/syncsplit/internal/lang"
	"github.com/phobologic/syncsplit/internal/model"
)

// ErrEmptySource is returned for files with no content.
var ErrEmptySource = errors.New("empty source")

// Unit parses a single translation unit and returns its root node.
// The parser must be created for the correct language.
// filePath is recorded in every node's Span and becomes part of registry keys.
func Unit(l *lang.Language, parser *sitter.Parser, source []byte, filePath string) (*model.Node, error) {
	if len(source) == 0 {
		return nil, ErrEmptySource
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer tree.Close()

	b := builder{lang: l, source: source, file: filePath}
	return b.build(tree.RootNode()), nil
}

type builder struct {
	lang   *lang.Language
	source []byte
	file   string
}

// build converts named tree-sitter nodes; anonymous punctuation is dropped.
func (b *builder) build(n *sitter.Node) *model.Node {
	node := &model.Node{
		Kind: model.Other,
		Span: b.span(n),
	}

	switch {
	case b.lang.IsFunction(n.Type()):
		node.Kind = model.FunctionDeclaration
		node.NameLine = node.Span.StartLine
		if id := b.lang.FunctionName(n); id != nil {
			node.Name = lang.NodeText(id, b.source)
			node.NameLine = int(id.StartPoint().Row) + 1
		}
		node.Tokens = b.headTokens(n)
	case b.lang.IsCall(n.Type()):
		node.Kind = model.CallExpression
		node.Name = b.lang.CalleeName(n, b.source)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		node.Children = append(node.Children, b.build(child))
	}
	return node
}

func (b *builder) span(n *sitter.Node) model.Span {
	start, end := n.StartPoint(), n.EndPoint()
	return model.Span{
		File:      b.file,
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

// headTokens collects the leaf tokens of a function definition that precede
// its body.
func (b *builder) headTokens(fn *sitter.Node) []string {
	body := b.lang.Body(fn)
	var tokens []string
	var collect func(n *sitter.Node)
	collect = func(n *sitter.Node) {
		if body != nil && sameNode(n, body) {
			return
		}
		if n.Type() == "comment" {
			return
		}
		if n.ChildCount() == 0 {
			if text := lang.NodeText(n, b.source); text != "" {
				tokens = append(tokens, text)
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			collect(n.Child(i))
		}
	}
	collect(fn)
	return tokens
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// Link resolves every call in units to a function declaration by name. A
// definition in the caller's own file wins; otherwise the first definition in
// unit order is used. Calls to names defined nowhere keep a nil Ref.
func Link(units []*model.Node) {
	defs := make(map[string][]*model.Node)
	for _, u := range units {
		Walk(u, func(n *model.Node) {
			if n.Kind == model.FunctionDeclaration && n.Name != "" {
				defs[n.Name] = append(defs[n.Name], n)
			}
		})
	}

	for _, u := range units {
		Walk(u, func(n *model.Node) {
			if n.Kind != model.CallExpression || n.Name == "" {
				return
			}
			candidates := defs[n.Name]
			if len(candidates) == 0 {
				return
			}
			n.Ref = candidates[0]
			for _, c := range candidates {
				if c.Span.File == n.Span.File {
					n.Ref = c
					break
				}
			}
		})
	}
}

// Walk visits n and its descendants in pre-order.
func Walk(n *model.Node, fn func(*model.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		Walk(c, fn)
	}
}
