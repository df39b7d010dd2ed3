// Package toon renders a FileAnalysis in TOON (Token-Oriented Object
// Notation), a compact tabular text form for terminals and prompts.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/gentleman/internal/graph"
	"github.com/phobologic/gentleman/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a FileAnalysis into TOON format. The annotations table is
// only emitted when at least one function carries annotation output.
func Encode(fa *model.FileAnalysis) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("file: %s", encodeValue(fa.Path)))
	parts = append(parts, formatList("imports", fa.Imports))

	var fnRows [][]string
	for i := range fa.Functions {
		fn := &fa.Functions[i]
		fnRows = append(fnRows, []string{
			fn.Name,
			fmt.Sprintf("%d", fn.StartLine),
			fmt.Sprintf("%d", fn.EndLine),
			formatParams(fn.Parameters),
			fn.Return.Expr,
			fn.Return.Type,
		})
	}
	parts = append(parts, formatTabular("functions",
		[]string{"name", "start", "end", "params", "return_expr", "return_type"}, fnRows))

	var callRows [][]string
	for _, e := range graph.Edges(fa.Functions) {
		callRows = append(callRows, []string{e.Caller, e.Callee})
	}
	parts = append(parts, formatTabular("calls", []string{"caller", "callee"}, callRows))

	var annRows [][]string
	for i := range fa.Functions {
		fn := &fa.Functions[i]
		if fn.Category == "" && fn.Description == "" && len(fn.Tags) == 0 {
			continue
		}
		annRows = append(annRows, []string{
			fn.Name,
			fn.Category,
			strings.Join(fn.Tags, " "),
			fn.Description,
		})
	}
	if len(annRows) > 0 {
		parts = append(parts, formatTabular("annotations",
			[]string{"name", "category", "tags", "description"}, annRows))
	}

	if len(fa.DuplicateNames) > 0 {
		parts = append(parts, formatList("duplicates", fa.DuplicateNames))
	}

	return strings.Join(parts, "\n")
}

// formatParams renders parameters as space-separated name or name=type.
func formatParams(params []model.Parameter) string {
	out := make([]string, len(params))
	for i, p := range params {
		if p.Type == "" {
			out[i] = p.Name
			continue
		}
		out[i] = p.Name + "=" + p.Type
	}
	return strings.Join(out, " ")
}

func formatList(name string, values []string) string {
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = encodeValue(v)
	}
	return fmt.Sprintf("%s[%d]: %s", name, len(values), strings.Join(encoded, ","))
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	switch {
	case value == "":
		return `""`
	case value != strings.TrimSpace(value), strings.ContainsAny(value, "\n\r\t"):
		return quote(value)
	}
	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}
	if looksNumeric.MatchString(value) {
		return value
	}
	if needsQuoting.MatchString(value) || strings.HasPrefix(value, "-") {
		return quote(value)
	}
	return value
}

func quote(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(value) + `"`
}
