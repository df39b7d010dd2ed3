package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/gentleman/internal/lang"
	"github.com/phobologic/gentleman/internal/model"
	"github.com/phobologic/gentleman/internal/vocab"
)

// literalTypes maps syntactic literal forms to the type they denote.
var literalTypes = map[string]string{
	"true":                     "bool",
	"false":                    "bool",
	"integer":                  "int",
	"float":                    "float",
	"string":                   "str",
	"concatenated_string":      "str",
	"none":                     "None",
	"list":                     "list",
	"list_comprehension":       "list",
	"dictionary":               "dict",
	"dictionary_comprehension": "dict",
	"set":                      "set",
	"set_comprehension":        "set",
	"tuple":                    "tuple",
	"expression_list":          "tuple",
}

// returnSample returns the literal text of a return statement's value and
// its syntactically inferred type. A bare return is typed None.
func returnSample(node *sitter.Node, source []byte) model.Return {
	var value *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		value = child
		break
	}
	if value == nil {
		return model.Return{Expr: "", Type: "None"}
	}
	return model.Return{
		Expr: lang.NodeText(value, source),
		Type: InferLiteral(value),
	}
}

// InferLiteral infers a type from the syntactic form of an expression.
// Names, calls and anything else not recognized infer to the wildcard.
func InferLiteral(node *sitter.Node) string {
	switch node.Type() {
	case "parenthesized_expression":
		if node.NamedChildCount() == 1 {
			return InferLiteral(node.NamedChild(0))
		}
	case "unary_operator":
		// -1, +2.5
		if arg := node.ChildByFieldName("argument"); arg != nil {
			if t := InferLiteral(arg); t == "int" || t == "float" {
				return t
			}
		}
	}
	if t, ok := literalTypes[node.Type()]; ok {
		return t
	}
	return vocab.Wildcard
}
