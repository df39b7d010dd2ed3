// Package vocab defines the closed grammar of type-name tokens and function
// categories that model answers are validated against.
package vocab

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Wildcard is the token for a type that cannot be resolved literally.
const Wildcard = "any"

// Primitives are the leaf type tokens.
var Primitives = []string{
	"int", "float", "complex", "str", "bool", "bytes", "none", "any", "object",
}

// UnaryContainers take exactly one type argument, e.g. list[int].
var UnaryContainers = []string{"list", "set", "frozenset", "tuple", "optional"}

// MappingKeys are the key types enumerated for dict[k, v].
var MappingKeys = []string{"str", "int", "bool"}

// WellKnown lists common non-enumerable types accepted as bare tokens.
var WellKnown = []string{
	"date", "datetime", "time", "timedelta", "timezone",
	"path", "purepath", "uuid", "decimal", "fraction",
	"pattern", "match", "callable", "iterator", "iterable", "generator",
	"coroutine", "awaitable", "sequence", "mapping", "type", "exception",
	"logger", "enum", "namedtuple", "textio", "binaryio", "bytesio", "stringio",
	"range", "slice", "bytearray", "memoryview", "self",
}

// Vocabulary is the closed set of type tokens expanded up to a nesting depth.
type Vocabulary struct {
	depth     int
	tokens    map[string]struct{}
	wellKnown map[string]struct{}
}

// New expands the primitive and container tokens to the given nesting depth.
// Depth 0 admits only bare tokens; depth 1 admits list[int]; depth 2 admits
// dict[str, list[int]].
func New(depth int) *Vocabulary {
	if depth < 0 {
		depth = 0
	}

	level := make([]string, 0, len(Primitives)+len(UnaryContainers)+1)
	level = append(level, Primitives...)
	level = append(level, UnaryContainers...)
	level = append(level, "dict")

	tokens := make(map[string]struct{})
	for _, t := range level {
		tokens[t] = struct{}{}
	}

	for d := 0; d < depth; d++ {
		var next []string
		for _, inner := range level {
			for _, c := range UnaryContainers {
				next = append(next, c+"["+inner+"]")
			}
			for _, k := range MappingKeys {
				next = append(next, "dict["+k+", "+inner+"]")
			}
		}
		for _, t := range next {
			tokens[t] = struct{}{}
		}
		level = append(level, next...)
	}

	wk := make(map[string]struct{}, len(WellKnown))
	for _, t := range WellKnown {
		wk[t] = struct{}{}
	}

	return &Vocabulary{depth: depth, tokens: tokens, wellKnown: wk}
}

// Depth returns the configured nesting depth.
func (v *Vocabulary) Depth() int {
	return v.depth
}

// Contains reports whether a sanitized token belongs to the expanded
// primitive/container vocabulary or the well-known vocabulary.
func (v *Vocabulary) Contains(token string) bool {
	if _, ok := v.tokens[token]; ok {
		return true
	}
	_, ok := v.wellKnown[token]
	return ok
}

// Len returns the number of enumerated primitive/container tokens.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// Tokens returns every enumerated token, sorted.
func (v *Vocabulary) Tokens() []string {
	out := make([]string, 0, len(v.tokens))
	for t := range v.tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Describe summarizes the vocabulary for a prompt without listing every
// expanded combination.
func (v *Vocabulary) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "base types: %s; ", strings.Join(Primitives, ", "))
	fmt.Fprintf(&b, "containers: %s, dict", strings.Join(UnaryContainers, ", "))
	if v.depth > 0 {
		fmt.Fprintf(&b, " (nested up to %d levels, e.g. list[int], dict[str, list[str]])", v.depth)
	}
	fmt.Fprintf(&b, "; also: %s", strings.Join(WellKnown, ", "))
	return b.String()
}

var (
	prefixRe    = regexp.MustCompile(`^[A-Za-z_]\w*\s*(?::|\s-)\s*(\S.*)$`)
	spaceRe     = regexp.MustCompile(`\s+`)
	typeRootRe  = regexp.MustCompile(`^\w+(?:\[[\w\[\],]*\])?`)
	quoteCutset = "\"'`"
)

// ErrMalformedType is returned by Sanitize for composite syntax the grammar
// does not parse.
var ErrMalformedType = errors.New("malformed type syntax")

// Sanitize normalizes one type answer into a candidate token. It strips a
// leading "name:" or "name -" prefix, collapses whitespace, lowercases and
// extracts the leading word run plus an optional bracketed argument list.
// Tokens still containing "(", ")", "{", "}" or "[[" are rejected.
func Sanitize(token string) (string, error) {
	s := strings.Trim(strings.TrimSpace(token), quoteCutset)
	if m := prefixRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.Trim(strings.TrimSpace(s), quoteCutset)
	s = strings.ToLower(spaceRe.ReplaceAllString(s, ""))

	if strings.ContainsAny(s, "(){}") || strings.Contains(s, "[[") {
		return "", fmt.Errorf("%w: %q", ErrMalformedType, token)
	}

	root := typeRootRe.FindString(s)
	if root == "" {
		return "", fmt.Errorf("%w: %q has no type name", ErrMalformedType, token)
	}
	return strings.ReplaceAll(root, ",", ", "), nil
}
