package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Python is the registered Python language.
var Python *Language

func init() {
	Python = &Language{
		Name:                  "python",
		Extensions:            []string{".py"},
		lang:                  python.GetLanguage(),
		FindEnclosingFunction: pythonFindEnclosingFunction,
	}
	Languages["python"] = Python
}

// pythonFindEnclosingFunction returns the innermost function_definition that
// contains node. Calls inside a nested def belong to the nested def, not to
// the outer function.
func pythonFindEnclosingFunction(node *sitter.Node) *sitter.Node {
	current := node.Parent()
	for current != nil {
		if current.Type() == "function_definition" {
			return current
		}
		current = current.Parent()
	}
	return nil
}

// FunctionName returns the identifier of a function_definition node.
func FunctionName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return NodeText(name, source)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" {
			return NodeText(child, source)
		}
	}
	return ""
}

// ParameterNames returns the declared parameter names of a function_definition
// in order. Splat parameters keep their star prefix; the bare "*" and "/"
// separators are skipped.
func ParameterNames(node *sitter.Node, source []byte) []string {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}

	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		if name := parameterName(child, source); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func parameterName(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "identifier":
		return NodeText(node, source)
	case "default_parameter", "typed_default_parameter":
		if name := node.ChildByFieldName("name"); name != nil {
			return NodeText(name, source)
		}
	case "typed_parameter":
		// name: type, where name may itself be a splat pattern
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "type" {
				continue
			}
			if name := parameterName(child, source); name != "" {
				return name
			}
		}
	case "list_splat_pattern":
		if id := firstIdentifier(node); id != nil {
			return "*" + NodeText(id, source)
		}
	case "dictionary_splat_pattern":
		if id := firstIdentifier(node); id != nil {
			return "**" + NodeText(id, source)
		}
	}
	return ""
}

func firstIdentifier(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "identifier" {
			return child
		}
	}
	return nil
}

// ImportNames returns the names an import statement binds: the alias when
// present, otherwise the dotted name. Wildcard imports bind nothing.
func ImportNames(node *sitter.Node, source []byte) []string {
	var names []string
	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if name := importedName(node.NamedChild(i), source); name != "" {
				names = append(names, name)
			}
		}
	case "import_from_statement":
		module := node.ChildByFieldName("module_name")
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if module != nil && child.StartByte() == module.StartByte() {
				continue
			}
			if name := importedName(child, source); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

func importedName(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "dotted_name":
		return NodeText(node, source)
	case "aliased_import":
		if alias := node.ChildByFieldName("alias"); alias != nil {
			return NodeText(alias, source)
		}
		if name := node.ChildByFieldName("name"); name != nil {
			return NodeText(name, source)
		}
	}
	return ""
}
