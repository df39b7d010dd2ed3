// Package extract builds a FileAnalysis from Python source using tree-sitter:
// function records, literal return samples, imports and the intra-file call graph.
package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/gentleman/internal/graph"
	"github.com/phobologic/gentleman/internal/lang"
	"github.com/phobologic/gentleman/internal/model"
	"github.com/phobologic/gentleman/internal/vocab"
)

// ParseError reports source the parser could not accept. It is fatal for
// the file.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: parse error: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s:%d:%d: syntax error", e.Path, e.Line, e.Column)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor holds the compiled call query; it is safe for concurrent use.
type Extractor struct {
	lang  *lang.Language
	query *sitter.Query
}

// New returns an Extractor for Python source.
func New() (*Extractor, error) {
	q, err := lang.Python.GetCallQuery()
	if err != nil {
		return nil, fmt.Errorf("loading call query: %w", err)
	}
	return &Extractor{lang: lang.Python, query: q}, nil
}

// Extract parses source once and returns its FileAnalysis. The same input
// always yields the same output.
func (e *Extractor) Extract(ctx context.Context, path string, source []byte) (*model.FileAnalysis, error) {
	fa := &model.FileAnalysis{
		Path:           path,
		Content:        string(source),
		Functions:      []model.FunctionRecord{},
		Imports:        []string{},
		DuplicateNames: []string{},
	}
	if len(source) == 0 {
		return fa, nil
	}

	parser := e.lang.NewParser()
	defer parser.Close()

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		pe := &ParseError{Path: path, Line: 1, Column: 1}
		if bad := firstError(root); bad != nil {
			pe.Line = int(bad.StartPoint().Row) + 1
			pe.Column = int(bad.StartPoint().Column) + 1
		}
		return nil, pe
	}

	w := &walker{
		source:  source,
		lines:   strings.Split(string(source), "\n"),
		fns:     []model.FunctionRecord{},
		byStart: make(map[uint32]int),
		imports: make(map[string]struct{}),
	}
	w.walk(root, -1)

	e.collectCalls(root, source, w)

	graph.Link(w.fns)

	fa.Functions = w.fns
	fa.Imports = sortedKeys(w.imports)
	fa.DuplicateNames = graph.Duplicates(w.fns)
	if fa.DuplicateNames == nil {
		fa.DuplicateNames = []string{}
	}
	return fa, nil
}

type walker struct {
	source  []byte
	lines   []string
	fns     []model.FunctionRecord
	byStart map[uint32]int // function_definition start byte -> index in fns
	imports map[string]struct{}
}

// walk visits nodes depth-first in source order. current is the index of the
// innermost enclosing function record, or -1 at module level.
func (w *walker) walk(node *sitter.Node, current int) {
	switch node.Type() {
	case "function_definition":
		current = w.addFunction(node)
	case "return_statement":
		if current >= 0 {
			// Last return visited wins; no flow-sensitive merge.
			w.fns[current].Return = returnSample(node, w.source)
		}
	case "import_statement", "import_from_statement":
		for _, name := range lang.ImportNames(node, w.source) {
			if tok, err := vocab.Sanitize(name); err == nil {
				w.imports[tok] = struct{}{}
			}
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i), current)
	}
}

func (w *walker) addFunction(node *sitter.Node) int {
	start := int(node.StartPoint().Row) + 1
	end := int(node.EndPoint().Row) + 1

	names := lang.ParameterNames(node, w.source)
	params := make([]model.Parameter, len(names))
	for i, n := range names {
		params[i] = model.Parameter{Name: n}
	}

	w.fns = append(w.fns, model.FunctionRecord{
		Name:       lang.FunctionName(node, w.source),
		Parameters: params,
		Span: model.Span{
			StartLine: start,
			EndLine:   end,
			Source:    w.sourceLines(start, end),
		},
		Calls:    []string{},
		CalledBy: []string{},
		Tags:     []string{},
	})
	idx := len(w.fns) - 1
	w.byStart[node.StartByte()] = idx
	return idx
}

func (w *walker) sourceLines(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(w.lines) {
		end = len(w.lines)
	}
	return strings.Join(w.lines[start-1:end], "\n")
}

// collectCalls runs the call-site query and attributes each callee whose
// name is a function defined in this file to the innermost enclosing function.
func (e *Extractor) collectCalls(root *sitter.Node, source []byte, w *walker) {
	if len(w.fns) == 0 {
		return
	}
	known := graph.Index(w.fns)

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(e.query, root)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		for _, c := range match.Captures {
			if e.query.CaptureNameForId(c.Index) != "name" {
				continue
			}
			callee := lang.NodeText(c.Node, source)
			if _, ok := known[callee]; !ok {
				continue
			}
			enclosing := e.lang.FindEnclosingFunction(c.Node)
			if enclosing == nil {
				continue
			}
			if i, ok := w.byStart[enclosing.StartByte()]; ok {
				w.fns[i].Calls = append(w.fns[i].Calls, callee)
			}
		}
	}
}

func firstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !child.HasError() && !child.IsMissing() {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
