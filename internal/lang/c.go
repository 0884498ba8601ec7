package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

func init() {
	Languages["c"] = &Language{
		Name:          "c",
		Extensions:    []string{".c"},
		lang:          c.GetLanguage(),
		FunctionTypes: []string{"function_definition"},
		CallTypes:     []string{"call_expression"},
		FunctionName:  cFunctionName,
		CalleeName:    cCalleeName,
		Body:          cBody,
	}
}

// cFunctionName unwraps the declarator chain of a function_definition:
// function_definition → (pointer_declarator →)* function_declarator → identifier.
func cFunctionName(node *sitter.Node) *sitter.Node {
	return declaratorName(node.ChildByFieldName("declarator"))
}

// declaratorName follows nested declarators down to the declared identifier.
// C++ shapes (qualified names, references, operators) are handled here too
// since the C grammar never produces them.
func declaratorName(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Type() {
		case "identifier", "field_identifier", "destructor_name", "operator_name":
			return node
		case "qualified_identifier", "template_function":
			node = node.ChildByFieldName("name")
		case "function_declarator", "pointer_declarator", "parenthesized_declarator",
			"attributed_declarator", "array_declarator":
			next := node.ChildByFieldName("declarator")
			if next == nil {
				next = firstNamedChild(node)
			}
			node = next
		case "reference_declarator":
			node = firstNamedChild(node)
		default:
			return nil
		}
	}
	return nil
}

// cCalleeName returns the name of a direct call. Member calls yield the field
// name; calls through expressions yield "".
func cCalleeName(node *sitter.Node, source []byte) string {
	fn := node.ChildByFieldName("function")
	for fn != nil {
		switch fn.Type() {
		case "identifier", "field_identifier":
			return NodeText(fn, source)
		case "field_expression":
			fn = fn.ChildByFieldName("field")
		case "qualified_identifier", "template_function":
			fn = fn.ChildByFieldName("name")
		default:
			return ""
		}
	}
	return ""
}

func cBody(node *sitter.Node) *sitter.Node {
	return node.ChildByFieldName("body")
}

func firstNamedChild(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "attribute_declaration" && child.Type() != "type_qualifier" {
			return child
		}
	}
	return nil
}
