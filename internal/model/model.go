// Package model defines core data structures for gentleman.
package model

import "encoding/json"

// Parameter is one (name, type) pair of a function signature.
// Type starts empty and is filled by annotation.
type Parameter struct {
	Name string
	Type string
}

// MarshalJSON encodes a parameter as a two-element array: [name, type].
func (p Parameter) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Name, p.Type})
}

// UnmarshalJSON decodes the two-element array form written by MarshalJSON.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.Name, p.Type = pair[0], pair[1]
	return nil
}

// Span locates a definition in its file. Lines are 1-based and inclusive.
type Span struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Source    string `json:"source"`
}

// Return holds the literal return expression of a function and its type.
// Type is either a literally inferred token, the wildcard "any" left for the
// model to resolve, or empty when the function has no return statement.
type Return struct {
	Expr string
	Type string
}

// MarshalJSON encodes a return as a two-element array: [expr, type].
func (r Return) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{r.Expr, r.Type})
}

// UnmarshalJSON decodes the two-element array form written by MarshalJSON.
func (r *Return) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	r.Expr, r.Type = pair[0], pair[1]
	return nil
}

// IsEmpty reports whether the function had no return statement at all.
func (r Return) IsEmpty() bool {
	return r.Expr == "" && r.Type == ""
}

// FunctionRecord is one function definition found in a file. The span
// fields are flattened into the record when encoded.
type FunctionRecord struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
	Span
	Return      Return   `json:"return"`
	Calls       []string `json:"calls"`
	CalledBy    []string `json:"called_by"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
}

// ParameterNames returns the parameter names in declaration order.
func (f *FunctionRecord) ParameterNames() []string {
	names := make([]string, len(f.Parameters))
	for i, p := range f.Parameters {
		names[i] = p.Name
	}
	return names
}

// FileAnalysis is the file-level unit produced by the extractor and enriched
// by the annotator.
type FileAnalysis struct {
	Path      string
	Content   string
	Functions []FunctionRecord
	// Imports holds sanitized import tokens, sorted for determinism.
	Imports []string
	// DuplicateNames lists function names defined more than once. Name-based
	// lookups resolve to the last definition.
	DuplicateNames []string
}

// ImportSet returns the import tokens as a set.
func (fa *FileAnalysis) ImportSet() map[string]struct{} {
	set := make(map[string]struct{}, len(fa.Imports))
	for _, imp := range fa.Imports {
		set[imp] = struct{}{}
	}
	return set
}
