package rewrite

import (
	"fmt"
	"strings"

	"github.com/phobologic/syncsplit/internal/lang"
	"github.com/phobologic/syncsplit/internal/model"
)

// ForwardDecl builds the prototype of callee renamed for variant v.
//
// The callee's tokens are read up to and including the first closing
// parenthesis. When the tokens carry no parameter list the callee's file is
// scanned line by line from its start instead.
func (e *Engine) ForwardDecl(callee *model.Node, v model.Variant) (string, error) {
	newName := e.VariantName(callee.Name, v)

	if decl := tokenDecl(callee.Tokens, callee.Name, newName); decl != "" {
		return decl, nil
	}

	head, err := e.scanDecl(callee)
	if err != nil {
		return "", err
	}
	return replaceIdent(head, callee.Name, newName), nil
}

func tokenDecl(tokens []string, name, newName string) string {
	var parts []string
	for _, tok := range tokens {
		if tok == name {
			tok = newName
		}
		parts = append(parts, tok)
		if tok == ")" {
			return strings.Join(parts, " ") + ";"
		}
	}
	return ""
}

// scanDecl concatenates lines from the callee's start line until one holds a
// closing parenthesis, and cuts the text there.
func (e *Engine) scanDecl(callee *model.Node) (string, error) {
	if e.lines == nil {
		return "", fmt.Errorf("%w: %s: no source available", ErrDeclRecovery, model.KeyOf(callee))
	}
	lines, err := e.lines.Lines(callee.Span.File)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeclRecovery, err)
	}

	start := callee.Span.StartLine - 1
	if start < 0 || start >= len(lines) {
		return "", fmt.Errorf("%w: %s: start line %d outside file", ErrDeclRecovery, model.KeyOf(callee), callee.Span.StartLine)
	}

	var b strings.Builder
	for i := start; i < len(lines) && i-start < e.cfg.MaxDeclLines; i++ {
		if i > start {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(lines[i]))
		text := b.String()
		if idx := strings.Index(text, ")"); idx >= 0 {
			return lang.CollapseWhitespace(text[:idx]) + ");", nil
		}
	}
	return "", fmt.Errorf("%w: %s: no closing parenthesis within %d lines", ErrDeclRecovery, model.KeyOf(callee), e.cfg.MaxDeclLines)
}
