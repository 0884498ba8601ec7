package lang

import (
	"github.com/smacker/go-tree-sitter/cpp"
)

func init() {
	Languages["cpp"] = &Language{
		Name:          "cpp",
		Extensions:    []string{".cpp", ".cc", ".cxx", ".c++"},
		lang:          cpp.GetLanguage(),
		FunctionTypes: []string{"function_definition"},
		CallTypes:     []string{"call_expression"},
		FunctionName:  cFunctionName,
		CalleeName:    cCalleeName,
		Body:          cBody,
	}
}
