package extract

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/phobologic/gentleman/internal/model"
)

func setup(t *testing.T) func(source string) *model.FileAnalysis {
	t.Helper()
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return func(source string) *model.FileAnalysis {
		t.Helper()
		fa, err := e.Extract(context.Background(), "test.py", []byte(source))
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		return fa
	}
}

func find(t *testing.T, fa *model.FileAnalysis, name string) *model.FunctionRecord {
	t.Helper()
	for i := range fa.Functions {
		if fa.Functions[i].Name == name {
			return &fa.Functions[i]
		}
	}
	t.Fatalf("function %q not found in %+v", name, fa.Functions)
	return nil
}

func TestExtractFunction(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	source := "import os\n\ndef list_files(directory: str, limit=10):\n    return os.listdir(directory)\n"
	fa := extract(source)
	if len(fa.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(fa.Functions))
	}
	fn := fa.Functions[0]
	if fn.Name != "list_files" {
		t.Errorf("name = %q", fn.Name)
	}
	if want := []model.Parameter{{Name: "directory"}, {Name: "limit"}}; !reflect.DeepEqual(fn.Parameters, want) {
		t.Errorf("parameters = %+v, want %+v", fn.Parameters, want)
	}
	if fn.Span.StartLine != 3 || fn.Span.EndLine != 4 {
		t.Errorf("span = %d-%d, want 3-4", fn.Span.StartLine, fn.Span.EndLine)
	}
	wantSrc := "def list_files(directory: str, limit=10):\n    return os.listdir(directory)"
	if fn.Span.Source != wantSrc {
		t.Errorf("source = %q, want %q", fn.Span.Source, wantSrc)
	}
	if fn.Return.Expr != "os.listdir(directory)" || fn.Return.Type != "any" {
		t.Errorf("return = %+v", fn.Return)
	}
	if !reflect.DeepEqual(fa.Imports, []string{"os"}) {
		t.Errorf("imports = %v", fa.Imports)
	}
}

func TestExtractCallGraphScenario(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	fa := extract("def a():\n    return b()\n\ndef b():\n    return 1\n")
	a := find(t, fa, "a")
	b := find(t, fa, "b")

	if !reflect.DeepEqual(a.Calls, []string{"b"}) {
		t.Errorf("a.Calls = %v, want [b]", a.Calls)
	}
	if !reflect.DeepEqual(b.CalledBy, []string{"a"}) {
		t.Errorf("b.CalledBy = %v, want [a]", b.CalledBy)
	}
	if b.Return.Type != "int" || b.Return.Expr != "1" {
		t.Errorf("b.Return = %+v, want 1/int", b.Return)
	}
	if a.Return.Type != "any" {
		t.Errorf("a.Return.Type = %q, want any", a.Return.Type)
	}
}

func TestExtractAttributeCall(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	source := `class Repo:
    def load(self):
        return self.fetch()

    def fetch(self):
        return []

def main():
    r = Repo()
    r.load()
    print("done")
`
	fa := extract(source)
	load := find(t, fa, "load")
	if !reflect.DeepEqual(load.Calls, []string{"fetch"}) {
		t.Errorf("load.Calls = %v", load.Calls)
	}
	main := find(t, fa, "main")
	if !reflect.DeepEqual(main.Calls, []string{"load"}) {
		t.Errorf("main.Calls = %v (print and Repo are not functions of this file)", main.Calls)
	}
	fetch := find(t, fa, "fetch")
	if fetch.Return.Type != "list" {
		t.Errorf("fetch return type = %q, want list", fetch.Return.Type)
	}
}

func TestExtractLiteralReturnTypes(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	tests := []struct {
		expr string
		want string
	}{
		{"True", "bool"},
		{"3", "int"},
		{"-3", "int"},
		{"2.5", "float"},
		{"'x'", "str"},
		{`f"{x}"`, "str"},
		{"None", "None"},
		{"[1, 2]", "list"},
		{"[i for i in x]", "list"},
		{"{'a': 1}", "dict"},
		{"{1, 2}", "set"},
		{"(1, 2)", "tuple"},
		{"1, 2", "tuple"},
		{"(5)", "int"},
		{"x", "any"},
		{"len(x)", "any"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			fa := extract("def f(x):\n    return " + tt.expr + "\n")
			fn := fa.Functions[0]
			if fn.Return.Type != tt.want {
				t.Errorf("return %s: type = %q, want %q", tt.expr, fn.Return.Type, tt.want)
			}
			if fn.Return.Expr != tt.expr {
				t.Errorf("return expr = %q, want %q", fn.Return.Expr, tt.expr)
			}
		})
	}
}

func TestExtractNoReturn(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	fa := extract("def noop():\n    pass\n\ndef bare():\n    return\n")
	noop := find(t, fa, "noop")
	if !noop.Return.IsEmpty() {
		t.Errorf("noop return = %+v, want empty", noop.Return)
	}
	if len(noop.Parameters) != 0 {
		t.Errorf("noop parameters = %v", noop.Parameters)
	}
	bare := find(t, fa, "bare")
	if bare.Return.Expr != "" || bare.Return.Type != "None" {
		t.Errorf("bare return = %+v, want \"\"/None", bare.Return)
	}
}

func TestExtractLastReturnWins(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	fa := extract("def f(x):\n    if x:\n        return 1\n    return 'no'\n")
	if got := fa.Functions[0].Return; got.Expr != "'no'" || got.Type != "str" {
		t.Errorf("return = %+v, want last return 'no'/str", got)
	}
}

func TestExtractNestedFunctionReturnsAndCalls(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	source := `def helper():
    return 0

def outer():
    def inner():
        helper()
        return "inner"
    inner()
`
	fa := extract(source)
	if len(fa.Functions) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(fa.Functions))
	}
	names := []string{fa.Functions[0].Name, fa.Functions[1].Name, fa.Functions[2].Name}
	if !reflect.DeepEqual(names, []string{"helper", "outer", "inner"}) {
		t.Errorf("order = %v, want source order", names)
	}

	outer := find(t, fa, "outer")
	if !outer.Return.IsEmpty() {
		t.Errorf("outer return = %+v; nested returns must not leak", outer.Return)
	}
	if !reflect.DeepEqual(outer.Calls, []string{"inner"}) {
		t.Errorf("outer.Calls = %v", outer.Calls)
	}
	inner := find(t, fa, "inner")
	if !reflect.DeepEqual(inner.Calls, []string{"helper"}) {
		t.Errorf("inner.Calls = %v", inner.Calls)
	}
	if inner.Return.Type != "str" {
		t.Errorf("inner return type = %q", inner.Return.Type)
	}
	helper := find(t, fa, "helper")
	if !reflect.DeepEqual(helper.CalledBy, []string{"inner"}) {
		t.Errorf("helper.CalledBy = %v", helper.CalledBy)
	}
}

func TestExtractImports(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	fa := extract("import os.path\nimport numpy as np\nfrom pathlib import Path\nfrom typing import *\nimport json, os\n")
	want := []string{"json", "np", "os", "path"}
	if !reflect.DeepEqual(fa.Imports, want) {
		t.Errorf("imports = %v, want %v", fa.Imports, want)
	}
}

func TestExtractEmpty(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	for _, src := range []string{"", "x = 1\n", "import os\n", "class C:\n    pass\n"} {
		fa := extract(src)
		if len(fa.Functions) != 0 {
			t.Errorf("%q: expected no functions, got %d", src, len(fa.Functions))
		}
		if fa.Functions == nil {
			t.Errorf("%q: Functions must be an empty list, not nil", src)
		}
	}
}

// The grammar is permissive: Python 2 print statements parse without an
// error node, so they yield an empty analysis rather than a ParseError.
func TestExtractPython2PrintIsNotAParseError(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	fa := extract("print 'hello'\n")
	if len(fa.Functions) != 0 {
		t.Errorf("expected no functions, got %d", len(fa.Functions))
	}
}

func TestExtractParseError(t *testing.T) {
	t.Parallel()

	e, err := New()
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Extract(context.Background(), "bad.py", []byte("def broken(:\n    return\n"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Path != "bad.py" || pe.Line < 1 {
		t.Errorf("parse error = %+v", pe)
	}
}

func TestExtractDuplicateNames(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	fa := extract("def f():\n    return 1\n\ndef g():\n    f()\n\ndef f():\n    return 'x'\n")
	if len(fa.Functions) != 3 {
		t.Fatalf("expected both definitions kept, got %d", len(fa.Functions))
	}
	if !reflect.DeepEqual(fa.DuplicateNames, []string{"f"}) {
		t.Errorf("DuplicateNames = %v", fa.DuplicateNames)
	}
	if len(fa.Functions[0].CalledBy) != 0 || !reflect.DeepEqual(fa.Functions[2].CalledBy, []string{"g"}) {
		t.Errorf("last definition should own CalledBy: first=%v last=%v",
			fa.Functions[0].CalledBy, fa.Functions[2].CalledBy)
	}
}

func TestExtractDeterministic(t *testing.T) {
	t.Parallel()
	extract := setup(t)

	source := `import os

def a(x, y):
    b(x)
    return c(y)

def b(v):
    return [v]

def c(v):
    a(v, v)
    return {v}
`
	first := extract(source)
	for i := 0; i < 5; i++ {
		again := extract(source)
		if !reflect.DeepEqual(first.Functions, again.Functions) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first.Functions, again.Functions)
		}
		if !reflect.DeepEqual(first.Imports, again.Imports) {
			t.Fatalf("imports differ on run %d", i)
		}
	}
}
