// Package prompt loads the prompt bundle: per-field system and user message
// templates, the retry message template and the category vocabulary.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultBundle []byte

// Bundle keys, one per annotated field.
const (
	ParameterTypes = "parameter_types"
	Tags           = "tags"
	Description    = "description"
	ReturnType     = "return_type"
	Category       = "category"
)

var requiredFields = []string{ParameterTypes, Tags, Description, ReturnType, Category}

// Data is the template input for every field.
type Data struct {
	Content        string
	Source         string
	ParameterNames []string
	// Parameters is the rendered (name, type) list.
	Parameters    string
	Imports       []string
	Vocabulary    string
	Tags          []string
	Description   string
	ReturnExpr    string
	ReturnType    string
	MaxTags       int
	MinLen        int
	MaxLen        int
	Categories    []string
	CategoryGuide string
	Error         string
}

type fieldSpec struct {
	System []string `yaml:"system"`
	User   string   `yaml:"user"`
}

type bundleFile struct {
	Retry         string               `yaml:"retry"`
	Categories    []string             `yaml:"categories"`
	CategoryGuide string               `yaml:"category_guide"`
	Fields        map[string]fieldSpec `yaml:"fields"`
}

type fieldTemplates struct {
	system []*template.Template
	user   *template.Template
}

// Bundle is a parsed, ready-to-render prompt bundle. It is safe for
// concurrent use.
type Bundle struct {
	retry         *template.Template
	categories    []string
	categoryGuide string
	fields        map[string]fieldTemplates
}

var funcs = template.FuncMap{
	"join":   strings.Join,
	"pylist": PyList,
}

// Default returns the embedded bundle.
func Default() (*Bundle, error) {
	return Parse(defaultBundle)
}

// Load reads a bundle from path. An empty path yields the embedded bundle.
func Load(path string) (*Bundle, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt bundle: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Parse decodes and compiles a YAML bundle. Every field must be present.
func Parse(data []byte) (*Bundle, error) {
	var bf bundleFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("decoding prompt bundle: %w", err)
	}
	if len(bf.Categories) == 0 {
		return nil, fmt.Errorf("prompt bundle: no categories")
	}
	if bf.Retry == "" {
		bf.Retry = "Previous attempt failed:\n{{.Error}}"
	}

	retry, err := template.New("retry").Funcs(funcs).Parse(bf.Retry)
	if err != nil {
		return nil, fmt.Errorf("prompt bundle: retry: %w", err)
	}
	b := &Bundle{
		retry:         retry,
		categories:    bf.Categories,
		categoryGuide: bf.CategoryGuide,
		fields:        make(map[string]fieldTemplates, len(bf.Fields)),
	}

	for _, name := range requiredFields {
		fs, ok := bf.Fields[name]
		if !ok {
			return nil, fmt.Errorf("prompt bundle: missing field %q", name)
		}
		ft := fieldTemplates{}
		for i, s := range fs.System {
			t, err := template.New(fmt.Sprintf("%s.system.%d", name, i)).Funcs(funcs).Parse(s)
			if err != nil {
				return nil, fmt.Errorf("prompt bundle: %s system %d: %w", name, i, err)
			}
			ft.system = append(ft.system, t)
		}
		ft.user, err = template.New(name + ".user").Funcs(funcs).Parse(fs.User)
		if err != nil {
			return nil, fmt.Errorf("prompt bundle: %s user: %w", name, err)
		}
		b.fields[name] = ft
	}
	return b, nil
}

// Categories returns the category vocabulary declared by the bundle.
func (b *Bundle) Categories() []string {
	return append([]string(nil), b.categories...)
}

// CategoryGuide returns the free-text category guide.
func (b *Bundle) CategoryGuide() string {
	return b.categoryGuide
}

// Render produces the system messages and the user message for field.
func (b *Bundle) Render(field string, d Data) ([]string, string, error) {
	ft, ok := b.fields[field]
	if !ok {
		return nil, "", fmt.Errorf("prompt: unknown field %q", field)
	}
	if d.CategoryGuide == "" {
		d.CategoryGuide = b.categoryGuide
	}
	if d.Categories == nil {
		d.Categories = b.categories
	}

	system := make([]string, 0, len(ft.system))
	for _, t := range ft.system {
		s, err := execute(t, d)
		if err != nil {
			return nil, "", err
		}
		system = append(system, s)
	}
	user, err := execute(ft.user, d)
	if err != nil {
		return nil, "", err
	}
	return system, user, nil
}

// Retry renders the system message carrying the previous failure.
func (b *Bundle) Retry(reason string) string {
	s, err := execute(b.retry, Data{Error: reason})
	if err != nil {
		return "Previous attempt failed:\n" + reason
	}
	return s
}

func execute(t *template.Template, d Data) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("prompt: rendering %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// PyList renders items as a list literal of quoted strings, e.g. ['a', 'b'].
func PyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// PyPairs renders (name, type) pairs, e.g. [('a', 'int'), ('b', '')].
func PyPairs(names, types []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		t := ""
		if i < len(types) {
			t = types[i]
		}
		parts[i] = fmt.Sprintf("('%s', '%s')", n, t)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
